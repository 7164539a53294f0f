// Package task provides asynchronous units of work bound to zero-or-one
// isolation domain, with a structured parent/child hierarchy and advisory
// cancellation.
//
// Cancellation is cooperative: Cancel sets a monotonic flag and never
// preempts. Running work observes the flag via Cancelled and decides whether
// to stop; work that never checks runs to normal completion and lands in the
// Cancelled state still carrying the value it produced.
package task

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/AlaaAmrAmin/concurrency-playground/internal/isolation"
)

var (
	// ErrCancelled is the cancellation outcome tag. Work returns it to
	// surface an observed cancellation; Await returns it for any task that
	// ended in the Cancelled state.
	ErrCancelled = errors.New("task cancelled")

	// ErrNotFound is returned for unknown task ids.
	ErrNotFound = errors.New("task not found")
)

// Status represents the lifecycle state of a task.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// Terminal reports whether the status is final.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

// Edge tags how a task hangs in the hierarchy. The tag is fixed at spawn
// time and never changes: cancellation propagates across structured edges
// only, and a detached task is unreachable from the task that spawned it.
type Edge string

const (
	EdgeStructured Edge = "structured"
	EdgeDetached   Edge = "detached"
)

// Work is the function a task executes.
type Work func(ctx context.Context) (any, error)

// GenerateTaskID creates a unique task identifier.
func GenerateTaskID() string {
	u := uuid.New().String()
	return "task_" + strings.ReplaceAll(u[:8], "-", "")
}

// Task is a spawned unit of asynchronous work.
type Task struct {
	id        string
	name      string
	iso       isolation.Context
	edge      Edge
	parent    *Task
	spawnedBy string // id of the task whose execution created this one (diagnostics only)
	createdAt time.Time

	cancelled atomic.Bool

	mu          sync.Mutex
	status      Status
	value       any
	err         error
	children    []*Task // structured children only
	startedAt   *time.Time
	completedAt *time.Time

	done chan struct{}
}

// ID returns the task identifier.
func (t *Task) ID() string { return t.id }

// Name returns the optional human-readable name.
func (t *Task) Name() string { return t.name }

// Isolation returns the isolation context the task was created with.
func (t *Task) Isolation() isolation.Context { return t.iso }

// Edge returns the hierarchy edge tag fixed at spawn.
func (t *Task) Edge() Edge { return t.edge }

// Parent returns the structured parent, or nil for roots and detached tasks.
func (t *Task) Parent() *Task { return t.parent }

// Status returns the current lifecycle state.
func (t *Task) Status() Status {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.status
}

// IsCancelled reports the advisory cancellation flag. The flag is monotonic:
// once set it is never cleared.
func (t *Task) IsCancelled() bool {
	return t.cancelled.Load()
}

// Done returns a channel closed when the task reaches a terminal state.
func (t *Task) Done() <-chan struct{} {
	return t.done
}

// Await blocks until the task is terminal and returns its outcome: the
// value for Completed, the work's error for Failed, and the produced value
// together with ErrCancelled for Cancelled.
//
// Await never cancels the task, even when ctx is done before the task
// finishes — the task's lifecycle is independent of its awaiters.
// Awaiting a not-yet-terminal task bound to the caller's own domain would
// block that domain's queue forever, so it fails with an isolation
// violation instead.
func (t *Task) Await(ctx context.Context) (any, error) {
	select {
	case <-t.done:
	default:
		if d := t.iso.Domain(); d != nil && isolation.Current(ctx) == d {
			return nil, &isolation.ViolationError{
				Op:      "Await " + t.id,
				Domain:  d.Name(),
				Current: d.Name(),
			}
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-t.done:
		}
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	switch t.status {
	case StatusFailed:
		return nil, t.err
	case StatusCancelled:
		return t.value, ErrCancelled
	default:
		return t.value, nil
	}
}

func (t *Task) addChild(c *Task) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.children = append(t.children, c)
}

// structuredChildren returns a snapshot of the structured children.
func (t *Task) structuredChildren() []*Task {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]*Task, len(t.children))
	copy(out, t.children)
	return out
}

// Info is the serializable snapshot used by the gateway and CLI.
type Info struct {
	ID          string     `json:"id"`
	Name        string     `json:"name,omitempty"`
	Domain      string     `json:"domain"`
	Status      Status     `json:"status"`
	Edge        Edge       `json:"edge"`
	ParentID    string     `json:"parent_id,omitempty"`
	SpawnedBy   string     `json:"spawned_by,omitempty"`
	Cancelled   bool       `json:"cancelled"`
	CreatedAt   time.Time  `json:"created_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	Error       string     `json:"error,omitempty"`
}

// Snapshot returns a point-in-time view of the task.
func (t *Task) Snapshot() Info {
	t.mu.Lock()
	defer t.mu.Unlock()

	info := Info{
		ID:          t.id,
		Name:        t.name,
		Domain:      t.iso.String(),
		Status:      t.status,
		Edge:        t.edge,
		SpawnedBy:   t.spawnedBy,
		Cancelled:   t.cancelled.Load(),
		CreatedAt:   t.createdAt,
		StartedAt:   t.startedAt,
		CompletedAt: t.completedAt,
	}
	if t.parent != nil {
		info.ParentID = t.parent.id
	}
	if t.err != nil {
		info.Error = t.err.Error()
	}
	return info
}

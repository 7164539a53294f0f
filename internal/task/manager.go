package task

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/AlaaAmrAmin/concurrency-playground/internal/events"
	"github.com/AlaaAmrAmin/concurrency-playground/internal/isolation"
	"github.com/AlaaAmrAmin/concurrency-playground/internal/sched"
)

// Manager tracks the task hierarchy and drives execution through the
// scheduler. Structured edges propagate cancellation downward; detached
// tasks are roots with fully independent lifecycles.
type Manager struct {
	sched sched.Scheduler
	bus   *events.Bus

	mu    sync.Mutex
	tasks map[string]*Task
}

// NewManager creates a Manager executing on the given scheduler. The bus is
// optional; a nil bus disables lifecycle events.
func NewManager(s sched.Scheduler, bus *events.Bus) *Manager {
	return &Manager{sched: s, bus: bus, tasks: make(map[string]*Task)}
}

// SpawnOption configures a spawn.
type SpawnOption func(*spawnConfig)

type spawnConfig struct {
	name    string
	payload any
}

// WithName attaches a human-readable name to the task.
func WithName(name string) SpawnOption {
	return func(c *spawnConfig) { c.name = name }
}

// WithPayload attaches a value made available to the work via
// PayloadFromContext. When the spawn crosses into a bound domain the payload
// must be shareable; a mutable payload fails the spawn with an isolation
// violation rather than racing silently.
func WithPayload(payload any) SpawnOption {
	return func(c *spawnConfig) { c.payload = payload }
}

// SpawnStructured registers and starts a structured child of parent. A nil
// parent creates a structured root. The child inherits the parent's
// cancellation: if the parent's flag is already set, the child starts
// flagged.
func (m *Manager) SpawnStructured(ctx context.Context, parent *Task, iso isolation.Context, work Work, opts ...SpawnOption) (*Task, error) {
	return m.spawn(ctx, parent, EdgeStructured, iso, work, opts)
}

// SpawnDetached registers and starts a root task with no structured parent.
// Its lifecycle is fully independent: no ancestor's cancellation can reach
// it, by construction.
func (m *Manager) SpawnDetached(ctx context.Context, iso isolation.Context, work Work, opts ...SpawnOption) (*Task, error) {
	return m.spawn(ctx, nil, EdgeDetached, iso, work, opts)
}

// SpawnClosure spawns a closure as a task under the given edge. This is the
// one place a detached ("independently-executable") closure inherits a
// domain: the spawn site's current domain is stamped onto it. A captured
// closure keeps its lexical domain as usual.
func (m *Manager) SpawnClosure(ctx context.Context, parent *Task, edge Edge, c *isolation.Closure, opts ...SpawnOption) (*Task, error) {
	var iso isolation.Context
	if c.IsDetached() {
		if d := isolation.Current(ctx); d != nil {
			iso = isolation.Bound(d)
		}
	} else {
		iso = c.Lexical()
	}

	if edge == EdgeDetached {
		return m.SpawnDetached(ctx, iso, Work(c.Fn()), opts...)
	}
	return m.SpawnStructured(ctx, parent, iso, Work(c.Fn()), opts...)
}

func (m *Manager) spawn(ctx context.Context, parent *Task, edge Edge, iso isolation.Context, work Work, opts []SpawnOption) (*Task, error) {
	var cfg spawnConfig
	for _, opt := range opts {
		opt(&cfg)
	}

	// Shareability is checked at the boundary where the payload would cross
	// onto another domain's queue.
	if cfg.payload != nil && iso.IsBound() && isolation.Current(ctx) != iso.Domain() {
		if err := isolation.EnsureShareable(cfg.payload); err != nil {
			if m.bus != nil {
				m.bus.Publish(events.NewEvent(events.EventIsolationViolation, events.SourceIsolation, map[string]any{
					"op":     "spawn payload",
					"domain": iso.String(),
					"error":  err.Error(),
				}))
			}
			return nil, fmt.Errorf("spawn payload: %w", err)
		}
	}

	t := &Task{
		id:        GenerateTaskID(),
		name:      cfg.name,
		iso:       iso,
		edge:      edge,
		createdAt: time.Now(),
		status:    StatusPending,
		done:      make(chan struct{}),
	}
	if spawner := FromContext(ctx); spawner != nil {
		t.spawnedBy = spawner.id
	}

	if edge == EdgeStructured && parent != nil {
		t.parent = parent
		parent.addChild(t)
		// A child spawned under an already-cancelled parent starts flagged,
		// so propagation reaches it before it goes terminal.
		if parent.IsCancelled() {
			t.cancelled.Store(true)
		}
	}

	m.mu.Lock()
	m.tasks[t.id] = t
	m.mu.Unlock()

	m.publish(events.EventTaskSpawned, t)
	slog.Debug("task spawned", "task_id", t.id, "name", t.name, "domain", iso.String(), "edge", edge)

	run := func(runCtx context.Context) error {
		m.execute(withPayload(withTask(runCtx, t), cfg.payload), t, work)
		return nil
	}

	if d := iso.Domain(); d != nil {
		d.Enter(ctx, run)
	} else {
		m.sched.Enqueue(sched.Item{Run: run})
	}
	return t, nil
}

// execute runs the work and records the outcome. Cancelled work that never
// observed its flag still keeps the value it produced.
func (m *Manager) execute(ctx context.Context, t *Task, work Work) {
	now := time.Now()
	t.mu.Lock()
	t.status = StatusRunning
	t.startedAt = &now
	t.mu.Unlock()
	m.publish(events.EventTaskStarted, t)

	value, err := work(ctx)

	end := time.Now()
	t.mu.Lock()
	t.completedAt = &end
	switch {
	case errors.Is(err, ErrCancelled):
		t.status = StatusCancelled
		t.cancelled.Store(true)
		t.value = value
	case err != nil:
		t.status = StatusFailed
		t.err = err
	case t.cancelled.Load():
		t.status = StatusCancelled
		t.value = value
	default:
		t.status = StatusCompleted
		t.value = value
	}
	status := t.status
	t.mu.Unlock()
	close(t.done)

	switch status {
	case StatusCancelled:
		m.publish(events.EventTaskCancelled, t)
	case StatusFailed:
		m.publish(events.EventTaskFailed, t)
		slog.Debug("task failed", "task_id", t.id, "error", err)
	default:
		m.publish(events.EventTaskCompleted, t)
	}
}

// Cancel sets the advisory cancellation flag on the task and every
// structured descendant. Detached descendants — even ones spawned by code
// running inside the cancelled subtree — are never touched.
func (m *Manager) Cancel(id string) error {
	m.mu.Lock()
	t, ok := m.tasks[id]
	m.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	m.cancelTask(t)
	return nil
}

func (m *Manager) cancelTask(t *Task) {
	// Hold the task lock so the flag cannot land after the final state has
	// been decided; the flag is monotonic and only set pre-terminal.
	t.mu.Lock()
	if t.status.Terminal() {
		t.mu.Unlock()
		return
	}
	first := t.cancelled.CompareAndSwap(false, true)
	t.mu.Unlock()

	if first {
		m.publish(events.EventTaskCancelRequested, t)
		slog.Debug("task cancel requested", "task_id", t.id)
	}
	for _, child := range t.structuredChildren() {
		m.cancelTask(child)
	}
}

// Get returns a task by id.
func (m *Manager) Get(id string) (*Task, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tasks[id]
	return t, ok
}

// List returns snapshots of all known tasks, oldest first.
func (m *Manager) List() []Info {
	m.mu.Lock()
	all := make([]*Task, 0, len(m.tasks))
	for _, t := range m.tasks {
		all = append(all, t)
	}
	m.mu.Unlock()

	sort.Slice(all, func(i, j int) bool {
		return all[i].createdAt.Before(all[j].createdAt)
	})

	out := make([]Info, len(all))
	for i, t := range all {
		out[i] = t.Snapshot()
	}
	return out
}

func (m *Manager) publish(eventType events.EventType, t *Task) {
	if m.bus == nil {
		return
	}
	info := t.Snapshot()
	m.bus.Publish(events.NewEvent(eventType, events.SourceTasks, map[string]any{
		"task_id":   info.ID,
		"name":      info.Name,
		"domain":    info.Domain,
		"status":    string(info.Status),
		"edge":      string(info.Edge),
		"parent_id": info.ParentID,
	}))
}

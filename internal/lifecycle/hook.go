// Package lifecycle adapts host view events to task spawns: every
// view-appear event starts one root task, and — in structured mode — the
// matching disappear event cancels it along with its structured
// descendants.
package lifecycle

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/AlaaAmrAmin/concurrency-playground/internal/events"
	"github.com/AlaaAmrAmin/concurrency-playground/internal/isolation"
	"github.com/AlaaAmrAmin/concurrency-playground/internal/task"
)

// Mode selects the hierarchy shape of view root tasks.
type Mode string

const (
	// ModeDetached spawns independent roots; disappear events are ignored.
	ModeDetached Mode = "detached"
	// ModeStructured spawns roots whose cancellation follows the view.
	ModeStructured Mode = "structured"
)

// ParseMode validates a configured spawn mode.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case ModeDetached, ModeStructured:
		return Mode(s), nil
	default:
		return "", fmt.Errorf("unknown lifecycle spawn mode %q", s)
	}
}

// Hook is the single integration point the host UI layer drives.
type Hook struct {
	tasks *task.Manager
	bus   *events.Bus
	mode  Mode

	mu    sync.Mutex
	views map[string]*task.Task // view name → live root (structured mode)
}

// New creates a Hook spawning through the given manager.
func New(tasks *task.Manager, bus *events.Bus, mode Mode) *Hook {
	return &Hook{tasks: tasks, bus: bus, mode: mode, views: make(map[string]*task.Task)}
}

// OnAppear spawns one root task for a view lifecycle event. A second appear
// for a live view in structured mode cancels the previous root first, so a
// view never owns two live roots.
func (h *Hook) OnAppear(ctx context.Context, view string, iso isolation.Context, entry task.Work) (*task.Task, error) {
	if h.bus != nil {
		h.bus.Publish(events.NewEvent(events.EventViewAppear, events.SourceLifecycle, map[string]any{
			"view": view,
		}))
	}

	if h.mode == ModeDetached {
		return h.tasks.SpawnDetached(ctx, iso, entry, task.WithName(view))
	}

	h.mu.Lock()
	prev := h.views[view]
	h.mu.Unlock()
	if prev != nil && !prev.Status().Terminal() {
		h.cancelRoot(view, prev)
	}

	root, err := h.tasks.SpawnStructured(ctx, nil, iso, entry, task.WithName(view))
	if err != nil {
		return nil, err
	}
	h.mu.Lock()
	h.views[view] = root
	h.mu.Unlock()
	return root, nil
}

// OnDisappear cancels the view's live root in structured mode. Detached
// roots are unreachable by construction, so the event is only published.
func (h *Hook) OnDisappear(view string) {
	if h.bus != nil {
		h.bus.Publish(events.NewEvent(events.EventViewDisappear, events.SourceLifecycle, map[string]any{
			"view": view,
		}))
	}
	if h.mode != ModeStructured {
		return
	}

	h.mu.Lock()
	root := h.views[view]
	delete(h.views, view)
	h.mu.Unlock()

	if root != nil {
		h.cancelRoot(view, root)
	}
}

func (h *Hook) cancelRoot(view string, root *task.Task) {
	if err := h.tasks.Cancel(root.ID()); err != nil {
		slog.Warn("view root cancel failed", "view", view, "task_id", root.ID(), "error", err)
	}
}

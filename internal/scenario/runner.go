package scenario

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/AlaaAmrAmin/concurrency-playground/internal/isolation"
	"github.com/AlaaAmrAmin/concurrency-playground/internal/runtime"
	"github.com/AlaaAmrAmin/concurrency-playground/internal/task"
)

// Result is the outcome of one scenario task.
type Result struct {
	Name      string        `json:"name"`
	TaskID    string        `json:"task_id"`
	Domain    string        `json:"domain"`
	Status    task.Status   `json:"status"`
	Cancelled bool          `json:"cancelled"`
	Error     string        `json:"error,omitempty"`
	Elapsed   time.Duration `json:"elapsed"`
}

// Runner executes scenarios against a runtime.
type Runner struct {
	rt *runtime.Runtime
}

// NewRunner creates a Runner.
func NewRunner(rt *runtime.Runtime) *Runner {
	return &Runner{rt: rt}
}

type spawned struct {
	name string
	task *task.Task
}

// Run spawns the scenario's task tree and awaits every task, returning
// results in spawn order.
func (r *Runner) Run(ctx context.Context, sc *Scenario) ([]Result, error) {
	for _, name := range sc.Domains {
		r.rt.AddDomain(name)
	}
	slog.Info("scenario started", "scenario", sc.Name, "tasks", len(sc.Tasks))

	var all []spawned
	var spawnTree func(parent *task.Task, specs []TaskSpec) error
	spawnTree = func(parent *task.Task, specs []TaskSpec) error {
		for _, spec := range specs {
			t, err := r.spawnOne(ctx, parent, spec)
			if err != nil {
				return fmt.Errorf("task %s: %w", spec.Name, err)
			}
			all = append(all, spawned{name: spec.Name, task: t})
			if err := spawnTree(t, spec.Children); err != nil {
				return err
			}
		}
		return nil
	}
	if err := spawnTree(nil, sc.Tasks); err != nil {
		return nil, err
	}

	results := make([]Result, 0, len(all))
	for _, s := range all {
		start := time.Now()
		_, err := s.task.Await(ctx)
		info := s.task.Snapshot()

		res := Result{
			Name:      s.name,
			TaskID:    info.ID,
			Domain:    info.Domain,
			Status:    info.Status,
			Cancelled: info.Cancelled,
			Elapsed:   time.Since(start),
		}
		if info.StartedAt != nil && info.CompletedAt != nil {
			res.Elapsed = info.CompletedAt.Sub(*info.StartedAt)
		}
		if err != nil && !errors.Is(err, task.ErrCancelled) {
			res.Error = err.Error()
		}
		results = append(results, res)
	}

	slog.Info("scenario finished", "scenario", sc.Name)
	return results, nil
}

func (r *Runner) spawnOne(ctx context.Context, parent *task.Task, spec TaskSpec) (*task.Task, error) {
	iso := isolation.None()
	if spec.Domain != "" {
		iso = isolation.Bound(r.rt.AddDomain(spec.Domain))
	}

	var t *task.Task
	var err error
	if spec.Detached {
		t, err = r.rt.Tasks().SpawnDetached(ctx, iso, r.workFor(spec), task.WithName(spec.Name))
	} else {
		t, err = r.rt.Tasks().SpawnStructured(ctx, parent, iso, r.workFor(spec), task.WithName(spec.Name))
	}
	if err != nil {
		return nil, err
	}

	if d := time.Duration(spec.CancelAfter); d > 0 {
		clock := r.rt.Scheduler().Clock()
		manager := r.rt.Tasks()
		id := t.ID()
		go func() {
			if err := clock.Sleep(context.Background(), d); err != nil {
				return
			}
			if err := manager.Cancel(id); err != nil {
				slog.Warn("scenario cancel failed", "task_id", id, "error", err)
			}
		}()
	}
	return t, nil
}

func (r *Runner) workFor(spec TaskSpec) task.Work {
	sleep := time.Duration(spec.Sleep)
	clock := r.rt.Scheduler().Clock()

	return func(ctx context.Context) (any, error) {
		if sleep > 0 {
			if err := clock.Sleep(ctx, sleep); err != nil {
				return nil, err
			}
		}
		if spec.Fail != "" {
			return nil, errors.New(spec.Fail)
		}
		if spec.ObserveCancel {
			if err := task.CheckCancelled(ctx); err != nil {
				return nil, err
			}
		}
		return spec.Name + " done", nil
	}
}

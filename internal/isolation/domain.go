// Package isolation implements exclusive-execution contexts (domains) and
// the resolution rules deciding which domain a unit of work runs in.
//
// A domain owns a serial run-queue: at most one unit of work bound to a
// domain executes at any instant, and enqueued work runs in submission
// order. The current domain travels in the context.Context handed to work,
// so code can assert where it is running.
package isolation

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"github.com/AlaaAmrAmin/concurrency-playground/internal/sched"
)

// Domain is a single-threaded execution context guaranteeing exclusive
// access to the state it owns.
type Domain struct {
	id    string
	name  string
	sched sched.Scheduler
}

// GenerateDomainID creates a unique domain identifier.
func GenerateDomainID() string {
	u := uuid.New().String()
	return "dom_" + strings.ReplaceAll(u[:8], "-", "")
}

// NewDomain creates a domain whose queue is serialized by the given
// scheduler.
func NewDomain(name string, s sched.Scheduler) *Domain {
	return &Domain{id: GenerateDomainID(), name: name, sched: s}
}

// ID returns the domain's unique identifier.
func (d *Domain) ID() string {
	return d.id
}

// Name returns the domain's human-readable name.
func (d *Domain) Name() string {
	return d.name
}

type currentDomainKey struct{}

// WithCurrent returns a context marked as executing on d.
func WithCurrent(ctx context.Context, d *Domain) context.Context {
	return context.WithValue(ctx, currentDomainKey{}, d)
}

// Current returns the domain the context is executing on, or nil.
func Current(ctx context.Context) *Domain {
	if d, ok := ctx.Value(currentDomainKey{}).(*Domain); ok {
		return d
	}
	return nil
}

// Enter enqueues work for exclusive execution on this domain and returns a
// future that completes when the work finishes or fails. The work context
// carries this domain as current plus the values of the caller's context;
// its lifetime is the scheduler's, not the caller's.
//
// Enter always enqueues. Waiting on the future from inside this same
// domain's queue deadlocks; resolved call paths (Behavior, Closure, task
// spawns) run inline when already current instead.
func (d *Domain) Enter(ctx context.Context, work func(context.Context) error) *sched.Future {
	values := ctx
	return d.sched.Enqueue(sched.Item{
		DomainID: d.id,
		Run: func(runCtx context.Context) error {
			return work(WithCurrent(carryValues(runCtx, values), d))
		},
	})
}

// AssertCurrent fails with an isolation violation if the calling context's
// current domain differs from this domain.
func (d *Domain) AssertCurrent(ctx context.Context) error {
	cur := Current(ctx)
	if cur == d {
		return nil
	}
	e := &ViolationError{Op: "AssertCurrent", Domain: d.name}
	if cur != nil {
		e.Current = cur.name
	}
	return e
}

// AssumeCurrent executes work inline, trusting the caller's claim that this
// domain is already current. The runtime does not re-verify the claim; if
// the caller is wrong, the result is a silent correctness bug (unsound if
// misused), detectable only by AssertCurrent calls made inside work.
func (d *Domain) AssumeCurrent(ctx context.Context, work func(context.Context) error) error {
	return work(WithCurrent(ctx, d))
}

// runAwait executes fn under this domain: inline when the caller is already
// current, otherwise enqueue-and-suspend until the work completes.
func (d *Domain) runAwait(ctx context.Context, fn Work) (any, error) {
	if Current(ctx) == d {
		return fn(ctx)
	}

	var value any
	var workErr error
	fut := d.Enter(ctx, func(c context.Context) error {
		value, workErr = fn(c)
		return workErr
	})
	if err := fut.Wait(ctx); err != nil {
		if workErr != nil {
			return nil, workErr
		}
		return nil, err
	}
	return value, nil
}

// carryValues layers the values of a source context over a base context
// while keeping the base's deadline and cancellation. Used so task and
// domain markers travel across an enqueue boundary without tying the work's
// lifetime to the caller.
func carryValues(base, values context.Context) context.Context {
	if values == nil {
		return base
	}
	return &carriedCtx{Context: base, values: values}
}

type carriedCtx struct {
	context.Context
	values context.Context
}

func (c *carriedCtx) Value(key any) any {
	if v := c.Context.Value(key); v != nil {
		return v
	}
	return c.values.Value(key)
}

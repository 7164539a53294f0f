// Package sched provides the execution collaborator consumed by the runtime:
// a per-domain serializing work scheduler and a clock for sleep/timeout
// primitives. Work submitted for the same domain id executes in submission
// order on a single goroutine; work with no domain id runs unserialized.
package sched

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

var (
	// ErrStopped is returned for work enqueued after the scheduler shut down.
	ErrStopped = errors.New("scheduler stopped")
)

// Item is a unit of work bound to zero-or-one domain queue.
// An empty DomainID means the item has no exclusivity requirement.
type Item struct {
	DomainID string
	Run      func(ctx context.Context) error
}

// Future completes when its work item finishes or fails.
type Future struct {
	mu   sync.Mutex
	err  error
	done chan struct{}
}

func newFuture() *Future {
	return &Future{done: make(chan struct{})}
}

func (f *Future) complete(err error) {
	f.mu.Lock()
	f.err = err
	f.mu.Unlock()
	close(f.done)
}

// Done returns a channel closed when the work item has finished.
func (f *Future) Done() <-chan struct{} {
	return f.done
}

// Err returns the work item's error. Valid only after Done is closed.
func (f *Future) Err() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.err
}

// Wait blocks until the work item finishes or ctx is done.
func (f *Future) Wait(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-f.done:
		return f.Err()
	}
}

// Scheduler executes queued work items. Items sharing a domain id are
// strictly serialized in FIFO order; items on different domain ids may run
// in parallel.
type Scheduler interface {
	// Enqueue submits a work item and returns a future for its completion.
	Enqueue(item Item) *Future

	// RunLoop blocks until ctx is done, then drains pending work and stops.
	RunLoop(ctx context.Context) error

	// Clock returns the scheduler's time source.
	Clock() Clock
}

// recoverPanic converts a work panic into an error so a single misbehaving
// item never takes down its domain worker.
func recoverPanic(errp *error) {
	if r := recover(); r != nil {
		*errp = fmt.Errorf("work panicked: %v", r)
	}
}

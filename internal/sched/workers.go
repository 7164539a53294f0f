package sched

import (
	"context"
	"log/slog"
	"sync"
)

const workerQueueSize = 128

type queued struct {
	item Item
	fut  *Future
}

// Workers is the default Scheduler: one serial worker goroutine per domain
// id, created lazily on first enqueue. Items without a domain id run on
// their own goroutine with no serialization.
type Workers struct {
	clock Clock

	mu      sync.RWMutex
	workers map[string]*worker
	stopped bool

	runCtx    context.Context
	runCancel context.CancelFunc
	wg        sync.WaitGroup
}

type worker struct {
	domainID string
	ch       chan queued
}

// NewWorkers creates a Workers scheduler using the given clock.
func NewWorkers(clock Clock) *Workers {
	if clock == nil {
		clock = NewClock()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Workers{
		clock:     clock,
		workers:   make(map[string]*worker),
		runCtx:    ctx,
		runCancel: cancel,
	}
}

// Clock returns the scheduler's time source.
func (s *Workers) Clock() Clock {
	return s.clock
}

// Enqueue submits an item. Within one domain id, items execute in submission
// order; an item enqueued after Stop completes immediately with ErrStopped.
func (s *Workers) Enqueue(item Item) *Future {
	fut := newFuture()

	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.stopped {
		fut.complete(ErrStopped)
		return fut
	}

	if item.DomainID == "" {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			fut.complete(s.runItem(item))
		}()
		return fut
	}

	w := s.workerLocked(item.DomainID)
	// workerLocked may have dropped the read lock; Stop could have run in
	// that window and closed the worker channel.
	if s.stopped {
		fut.complete(ErrStopped)
		return fut
	}
	w.ch <- queued{item: item, fut: fut}
	return fut
}

// workerLocked returns the worker for a domain id, starting one if needed.
// Caller holds at least the read lock; worker creation upgrades briefly.
func (s *Workers) workerLocked(domainID string) *worker {
	if w, ok := s.workers[domainID]; ok {
		return w
	}

	// Upgrade to create. Re-check after re-acquire.
	s.mu.RUnlock()
	s.mu.Lock()
	w, ok := s.workers[domainID]
	if !ok {
		w = &worker{domainID: domainID, ch: make(chan queued, workerQueueSize)}
		s.workers[domainID] = w
		s.wg.Add(1)
		go s.drain(w)
		slog.Debug("domain worker started", "domain", domainID)
	}
	s.mu.Unlock()
	s.mu.RLock()
	return w
}

// drain processes a domain's queue until the channel is closed, finishing
// everything already queued before exiting.
func (s *Workers) drain(w *worker) {
	defer s.wg.Done()
	for q := range w.ch {
		q.fut.complete(s.runItem(q.item))
	}
	slog.Debug("domain worker stopped", "domain", w.domainID)
}

func (s *Workers) runItem(item Item) (err error) {
	defer recoverPanic(&err)
	return item.Run(s.runCtx)
}

// RunLoop blocks until ctx is done, then stops the scheduler.
func (s *Workers) RunLoop(ctx context.Context) error {
	<-ctx.Done()
	s.Stop()
	return nil
}

// Stop cancels the run context, drains every domain queue, and waits for all
// in-flight work to finish. Subsequent enqueues fail with ErrStopped.
func (s *Workers) Stop() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.stopped = true
	s.runCancel()
	for _, w := range s.workers {
		close(w.ch)
	}
	s.mu.Unlock()

	s.wg.Wait()
	slog.Debug("scheduler stopped", "workers", len(s.workers))
}

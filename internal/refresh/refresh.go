// Package refresh runs background refresh tasks on a bounded worker pool.
//
// Submit never blocks: when every worker is busy, or a task for the same key
// is already queued or running, the submission is dropped and the caller
// carries on. Readers that trigger a refresh therefore never pay for it.
package refresh

import (
	"context"
	"sync"

	"golang.org/x/sync/errgroup"
)

// DefaultWorkers is used when New is given a non-positive worker count.
const DefaultWorkers = 16

// Task is a unit of background work. ctx is cancelled when the scheduler closes.
type Task func(ctx context.Context)

// Scheduler is a bounded pool with per-key deduplication.
type Scheduler struct {
	ctx    context.Context
	cancel context.CancelFunc
	g      errgroup.Group

	mu      sync.Mutex // guards pending, closed, and orders TryGo against Wait
	pending map[string]struct{}
	closed  bool
}

// New starts a scheduler running at most workers tasks at once.
func New(workers int) *Scheduler {
	if workers <= 0 {
		workers = DefaultWorkers
	}
	ctx, cancel := context.WithCancel(context.Background())
	s := &Scheduler{
		ctx:     ctx,
		cancel:  cancel,
		pending: make(map[string]struct{}),
	}
	s.g.SetLimit(workers)
	return s
}

// Submit schedules task for key. It reports false when the task was dropped
// (duplicate key, pool saturated, or scheduler closed).
func (s *Scheduler) Submit(key string, task Task) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return false
	}
	if _, dup := s.pending[key]; dup {
		return false
	}
	ok := s.g.TryGo(func() error {
		defer s.finish(key)
		task(s.ctx)
		return nil
	})
	if ok {
		s.pending[key] = struct{}{}
	}
	return ok
}

// Pending returns the number of queued or running tasks.
func (s *Scheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

// Close cancels running tasks and waits for them to return.
// It is safe to call more than once.
func (s *Scheduler) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	s.cancel()
	return s.g.Wait()
}

func (s *Scheduler) finish(key string) {
	s.mu.Lock()
	delete(s.pending, key)
	s.mu.Unlock()
}

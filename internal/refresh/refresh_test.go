package refresh

import (
	"context"
	"sync/atomic"
	"testing"
	"time"
)

func TestSubmit_RunsTask(t *testing.T) {
	t.Parallel()

	s := New(2)
	t.Cleanup(func() { _ = s.Close() })

	done := make(chan struct{})
	if !s.Submit("k", func(context.Context) { close(done) }) {
		t.Fatal("Submit must accept the first task")
	}
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("task did not run")
	}
}

// A second task for a key that is still pending is dropped.
func TestSubmit_DedupesByKey(t *testing.T) {
	t.Parallel()

	s := New(4)
	t.Cleanup(func() { _ = s.Close() })

	block := make(chan struct{})
	if !s.Submit("k", func(context.Context) { <-block }) {
		t.Fatal("first Submit must succeed")
	}
	if s.Submit("k", func(context.Context) {}) {
		t.Fatal("duplicate key must be dropped")
	}
	if !s.Submit("other", func(context.Context) {}) {
		t.Fatal("different key must be accepted")
	}
	close(block)
}

// When every worker is busy Submit returns false instead of blocking.
func TestSubmit_SaturatedPoolDrops(t *testing.T) {
	t.Parallel()

	s := New(1)
	t.Cleanup(func() { _ = s.Close() })

	block := make(chan struct{})
	s.Submit("a", func(context.Context) { <-block })

	start := time.Now()
	if s.Submit("b", func(context.Context) {}) {
		t.Fatal("saturated pool must drop")
	}
	if time.Since(start) > 100*time.Millisecond {
		t.Fatal("Submit must not block")
	}
	close(block)
}

// Close cancels the task context and waits for tasks to finish.
func TestClose_CancelsAndWaits(t *testing.T) {
	t.Parallel()

	s := New(2)
	var finished atomic.Bool
	started := make(chan struct{})
	s.Submit("k", func(ctx context.Context) {
		close(started)
		<-ctx.Done()
		finished.Store(true)
	})
	<-started

	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if !finished.Load() {
		t.Fatal("Close must wait for running tasks")
	}
	if s.Submit("k2", func(context.Context) {}) {
		t.Fatal("Submit after Close must be dropped")
	}
	if s.Pending() != 0 {
		t.Fatalf("pending must be empty, got %d", s.Pending())
	}
	_ = s.Close() // idempotent
}

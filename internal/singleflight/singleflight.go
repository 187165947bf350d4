// Package singleflight coordinates per-key computations so that at most one
// runs at a time while concurrent callers share its result.
package singleflight

import (
	"context"
	"sync"
	"sync/atomic"
)

// Group is a table of in-flight tickets keyed by K.
//
// Concurrency notes:
//   - The first Acquire for a key makes the caller the leader; later callers
//     get the same ticket and wait on it.
//   - Publishing (val, err) happens-before close(done), so reads after the
//     done channel fires observe the final values.
//   - A ticket may be resolved before it is removed from the table. This is
//     how a leader hands an early error (timeout, cancellation) to its
//     followers while the abandoned work is still running: the key stays
//     occupied until Release/Forget, so no second computation can start.
type Group[K comparable, V any] struct {
	mu sync.Mutex
	m  map[K]*Ticket[V]
}

// Ticket is the shared future for one computation of one key.
type Ticket[V any] struct {
	done    chan struct{}
	once    sync.Once
	val     V
	err     error
	waiters atomic.Int32

	mu     sync.Mutex
	cancel context.CancelFunc
}

// Acquire returns the ticket for key. isLeader is true when the ticket was
// created by this call; the leader must eventually Release (or Forget) it.
func (g *Group[K, V]) Acquire(key K) (t *Ticket[V], isLeader bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.m == nil {
		g.m = make(map[K]*Ticket[V])
	}
	if t, ok := g.m[key]; ok {
		t.waiters.Add(1)
		return t, false
	}
	t = &Ticket[V]{done: make(chan struct{})}
	g.m[key] = t
	return t, true
}

// Resolve publishes the result once; later calls are ignored.
// It reports whether this call was the one that resolved the ticket.
func (g *Group[K, V]) Resolve(t *Ticket[V], v V, err error) bool {
	resolved := false
	t.once.Do(func() {
		t.val, t.err = v, err
		close(t.done)
		resolved = true
	})
	return resolved
}

// Release resolves the ticket (if not yet resolved) and removes it from the
// table so the next miss starts a fresh computation.
func (g *Group[K, V]) Release(key K, t *Ticket[V], v V, err error) {
	g.Resolve(t, v, err)
	g.Forget(key, t)
}

// Forget removes t from the table if it is still the current ticket for key.
func (g *Group[K, V]) Forget(key K, t *Ticket[V]) {
	g.mu.Lock()
	if cur, ok := g.m[key]; ok && cur == t {
		delete(g.m, key)
	}
	g.mu.Unlock()
}

// InFlight reports whether a ticket exists for key.
func (g *Group[K, V]) InFlight(key K) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	_, ok := g.m[key]
	return ok
}

// Len returns the number of tickets in the table.
func (g *Group[K, V]) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.m)
}

// CancelAll fires the cancellation signal of every in-flight ticket.
func (g *Group[K, V]) CancelAll() {
	g.mu.Lock()
	ts := make([]*Ticket[V], 0, len(g.m))
	for _, t := range g.m {
		ts = append(ts, t)
	}
	g.mu.Unlock()
	for _, t := range ts {
		t.Cancel()
	}
}

// Do runs fn once for key; concurrent callers with the same key share the
// result. shared is true for followers. A follower whose ctx ends returns
// ctx.Err() while the leader keeps running fn with the leader's ctx.
func (g *Group[K, V]) Do(ctx context.Context, key K, fn func(context.Context) (V, error)) (v V, shared bool, err error) {
	t, leader := g.Acquire(key)
	if !leader {
		v, err = t.Wait(ctx)
		return v, true, err
	}
	v, err = fn(ctx)
	g.Release(key, t, v, err)
	return v, false, err
}

// Wait blocks until the ticket is resolved or ctx ends.
func (t *Ticket[V]) Wait(ctx context.Context) (V, error) {
	select {
	case <-t.done:
		return t.val, t.err
	case <-ctx.Done():
		var zero V
		return zero, ctx.Err()
	}
}

// Done is closed once the ticket is resolved.
func (t *Ticket[V]) Done() <-chan struct{} { return t.done }

// Waiters returns how many followers joined this ticket.
func (t *Ticket[V]) Waiters() int { return int(t.waiters.Load()) }

// SetCancel attaches the cancellation signal of the leader's computation.
func (t *Ticket[V]) SetCancel(cancel context.CancelFunc) {
	t.mu.Lock()
	t.cancel = cancel
	t.mu.Unlock()
}

// Cancel fires the attached cancellation signal, if any.
func (t *Ticket[V]) Cancel() {
	t.mu.Lock()
	cancel := t.cancel
	t.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

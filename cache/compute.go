package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/IvanBrykalov/resilientcache/internal/singleflight"
)

// outcome is what a ComputeFunc returned.
type outcome[V any] struct {
	val V
	err error
}

// GetOrCompute returns the cached value for key, computing it with fn on a
// miss. Concurrent callers for the same key share one invocation of fn.
// A non-positive duration uses the default Duration.
func (c *Cache[V]) GetOrCompute(ctx context.Context, key string, fn ComputeFunc[V], duration time.Duration, opts ...EntryOption) (V, error) {
	r, err := c.GetOrComputeResult(ctx, key, fn, duration, opts...)
	return r.Value, err
}

// GetOrComputeResult is GetOrCompute that also reports whether the value
// was served stale by fail-safe, and the failure that caused it.
func (c *Cache[V]) GetOrComputeResult(ctx context.Context, key string, fn ComputeFunc[V], duration time.Duration, opts ...EntryOption) (Result[V], error) {
	if c.closed.Load() {
		return Result[V]{}, ErrClosed
	}
	eo := c.entryOptions(duration, opts)
	now := c.now()
	s := c.shardFor(key)

	if e, ok := s.lookup(key, now, true); ok {
		if e.IsFresh {
			s.hits.Add(1)
			c.opt.Metrics.Hit()
			c.maybeRefresh(key, e, now, fn, eo)
			return Result[V]{Value: e.Value}, nil
		}
		// A recent failure: serve stale without calling fn again.
		if eo.FailSafe && now.Before(e.throttleUntil) {
			s.staleHits.Add(1)
			c.opt.Metrics.StaleHit()
			return Result[V]{Value: e.Value, Stale: true}, nil
		}
	}
	s.misses.Add(1)
	c.opt.Metrics.Miss()

	t, leader := c.flight.Acquire(key)
	if leader {
		return c.lead(ctx, key, t, fn, eo, false)
	}

	wctx := ctx
	if eo.Timeout > 0 {
		var cancel context.CancelFunc
		wctx, cancel = context.WithTimeout(ctx, eo.Timeout)
		defer cancel()
	}
	r, err := t.Wait(wctx)
	if err == nil {
		return r, nil
	}
	if werr := wctx.Err(); werr != nil && err == werr {
		err = waitError(key, err)
	}
	return c.serveStale(key, eo, err)
}

// lead runs the computation for key as the ticket's leader. In refresh mode
// a fresh entry is recomputed instead of returned, and the secondary tier is
// not consulted.
func (c *Cache[V]) lead(ctx context.Context, key string, t *singleflight.Ticket[Result[V]], fn ComputeFunc[V], eo EntryOptions, refreshing bool) (Result[V], error) {
	now := c.now()
	var cand candidate[V]
	if e, ok := c.shardFor(key).lookup(key, now, false); ok {
		// Another leader may have written it between our miss and Acquire.
		if e.IsFresh && !refreshing {
			r := Result[V]{Value: e.Value}
			c.flight.Release(key, t, r, nil)
			return r, nil
		}
		cand = candidate[V]{val: e.Value, ok: true}
	}

	if !refreshing && !eo.SkipSecondary {
		if hit := c.loadSecondary(ctx, key); hit != nil {
			if now.Before(hit.expires) {
				c.install(key, hit, eo)
				r := Result[V]{Value: hit.val}
				c.flight.Release(key, t, r, nil)
				return r, nil
			}
			if !cand.ok {
				cand = candidate[V]{val: hit.val, ok: true, remote: hit}
			}
		}
	}

	cc := &ComputeContext[V]{
		Key:           key,
		StaleValue:    cand.val,
		HasStaleValue: cand.ok,
		Duration:      eo.Duration,
		Tags:          eo.Tags,
	}
	return c.run(ctx, key, t, fn, cc, eo, cand)
}

// run invokes fn in its own goroutine and waits for it, the call's Timeout
// or ctx, whichever comes first. When the wait ends early the ticket is
// released right away, so followers get the fail-safe result and the next
// miss starts a new compute. A late success is stored unless a newer value
// was written meanwhile.
func (c *Cache[V]) run(ctx context.Context, key string, t *singleflight.Ticket[Result[V]], fn ComputeFunc[V], cc *ComputeContext[V], eo EntryOptions, cand candidate[V]) (Result[V], error) {
	started := c.now()
	parent := ctx
	if eo.BackgroundCompletion {
		parent = context.WithoutCancel(ctx)
	}
	cctx, cancel := context.WithCancel(parent)
	if eo.Timeout > 0 && !eo.BackgroundCompletion {
		cctx, cancel = withTimeout(cctx, cancel, eo.Timeout)
	}
	t.SetCancel(cancel)

	wctx := ctx
	if eo.Timeout > 0 {
		var wcancel context.CancelFunc
		wctx, wcancel = context.WithTimeout(ctx, eo.Timeout)
		defer wcancel()
	}

	done := make(chan outcome[V], 1)
	go func() {
		v, err := call(cctx, fn, cc)
		done <- outcome[V]{val: v, err: err}
	}()

	select {
	case o := <-done:
		err := o.err
		if err != nil {
			if cerr := cctx.Err(); cerr != nil && errors.Is(err, cerr) {
				err = waitError(key, err)
			} else {
				err = &ComputeError{Key: key, Err: err}
			}
		}
		cancel()
		if err != nil {
			r, ferr := c.failSafe(key, eo, cand, err)
			c.flight.Release(key, t, r, ferr)
			if errors.Is(ctx.Err(), context.Canceled) {
				return Result[V]{}, err
			}
			return r, ferr
		}
		c.store(ctx, key, o.val, cc.Duration, cc.Tags, eo)
		r := Result[V]{Value: o.val}
		c.flight.Release(key, t, r, nil)
		return r, nil

	case <-wctx.Done():
		werr := waitError(key, wctx.Err())
		r, ferr := c.failSafe(key, eo, cand, werr)
		c.flight.Release(key, t, r, ferr)
		go c.complete(ctx, key, started, cc, eo, cancel, done)
		if errors.Is(ctx.Err(), context.Canceled) {
			return Result[V]{}, werr
		}
		return r, ferr
	}
}

// complete waits for an abandoned computation and stores a late success.
// Close cancels it and drops the result.
func (c *Cache[V]) complete(ctx context.Context, key string, started time.Time, cc *ComputeContext[V], eo EntryOptions, cancel context.CancelFunc, done <-chan outcome[V]) {
	defer cancel()
	if !eo.BackgroundCompletion {
		cancel()
	}
	var o outcome[V]
	select {
	case o = <-done:
	case <-c.closing:
		return
	}
	if o.err != nil {
		c.log.Debug("cache: abandoned compute failed", "key", key, "err", o.err)
		return
	}
	if !c.storeLate(ctx, key, o.val, cc.Duration, cc.Tags, eo, started) {
		c.log.Debug("cache: late result dropped", "key", key)
		return
	}
	c.log.Debug("cache: background completion", "key", key)
}

// maybeRefresh submits an eager refresh when a fresh entry is past its
// threshold. The Fresh->Refreshing transition lets exactly one reader submit.
func (c *Cache[V]) maybeRefresh(key string, e Entry[V], now time.Time, fn ComputeFunc[V], eo EntryOptions) {
	if e.State != StateFresh || e.eagerAt.IsZero() || now.Before(e.eagerAt) || now.Before(e.throttleUntil) {
		return
	}
	if c.flight.InFlight(key) {
		return
	}
	s := c.shardFor(key)
	if !s.transition(key, StateFresh, StateRefreshing) {
		return
	}
	ok := c.sched.Submit(key, func(ctx context.Context) {
		c.refresh(ctx, key, fn, eo)
	})
	if !ok {
		s.transition(key, StateRefreshing, StateFresh)
		c.opt.Metrics.Refresh(RefreshDropped)
	}
}

// refresh recomputes key in the background. Failures only reach logs and
// metrics.
func (c *Cache[V]) refresh(ctx context.Context, key string, fn ComputeFunc[V], eo EntryOptions) {
	defer c.shardFor(key).transition(key, StateRefreshing, StateFresh)

	t, leader := c.flight.Acquire(key)
	if !leader {
		return
	}
	r, err := c.lead(ctx, key, t, fn, eo, true)
	switch {
	case err != nil:
		c.opt.Metrics.Refresh(RefreshFailed)
		c.log.Warn("cache: eager refresh failed", "key", key, "err", err)
	case r.Cause != nil:
		c.opt.Metrics.Refresh(RefreshFailed)
	default:
		c.opt.Metrics.Refresh(RefreshOK)
	}
}

// call runs fn, turning a panic into an error.
func call[V any](ctx context.Context, fn ComputeFunc[V], cc *ComputeContext[V]) (v V, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("panic: %v", p)
		}
	}()
	return fn(ctx, cc)
}

func withTimeout(ctx context.Context, cancel context.CancelFunc, d time.Duration) (context.Context, context.CancelFunc) {
	tctx, tcancel := context.WithTimeout(ctx, d)
	return tctx, func() {
		tcancel()
		cancel()
	}
}

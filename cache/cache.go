package cache

import (
	"context"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/IvanBrykalov/resilientcache/codec"
	"github.com/IvanBrykalov/resilientcache/internal/expiry"
	"github.com/IvanBrykalov/resilientcache/internal/refresh"
	"github.com/IvanBrykalov/resilientcache/internal/singleflight"
	"github.com/IvanBrykalov/resilientcache/internal/tagindex"
	"github.com/IvanBrykalov/resilientcache/internal/util"
	"github.com/IvanBrykalov/resilientcache/policy/lru"
)

// Cache is a sharded in-memory cache with stampede-protected compute,
// fail-safe stale serving, eager refresh, tag invalidation and an optional
// secondary tier. All methods are safe for concurrent use.
type Cache[V any] struct {
	shards []*shard[V]
	tags   *tagindex.Index
	size   atomic.Int64

	// flight coalesces computes; l2 coalesces secondary loads of TryGet.
	flight singleflight.Group[string, Result[V]]
	l2     singleflight.Group[string, *secondaryHit[V]]
	sched  *refresh.Scheduler

	opt      Options[V]
	defaults EntryOptions
	log      *slog.Logger

	closed  atomic.Bool
	closing chan struct{}
	stop    context.CancelFunc
	wg      sync.WaitGroup
}

// New constructs a cache with the provided Options. See Options for defaults.
func New[V any](opt Options[V]) *Cache[V] {
	if opt.Metrics == nil {
		opt.Metrics = NoopMetrics{}
	}
	if opt.Policy == nil {
		opt.Policy = lru.New()
	}
	if opt.Codec == nil {
		opt.Codec = codec.JSON[V]{}
	}
	if opt.SecondaryTimeout <= 0 {
		opt.SecondaryTimeout = time.Second
	}
	if opt.Logger == nil {
		opt.Logger = slog.New(slog.DiscardHandler)
	}
	defaults := DefaultEntryOptions()
	if opt.DefaultEntryOptions != nil {
		defaults = *opt.DefaultEntryOptions
	}

	// number of shards -> power of two
	sh := opt.Shards
	if sh <= 0 {
		sh = util.ReasonableShardCount()
	} else {
		sh = int(util.NextPow2(uint64(sh)))
	}
	perShardCap := 0
	if opt.Capacity > 0 {
		perShardCap = (opt.Capacity + sh - 1) / sh // split capacity evenly (ceil)
	}

	c := &Cache[V]{
		tags:     tagindex.New(),
		sched:    refresh.New(opt.RefreshWorkers),
		opt:      opt,
		defaults: defaults,
		log:      opt.Logger,
		closing:  make(chan struct{}),
	}
	c.shards = make([]*shard[V], sh)
	for i := range c.shards {
		c.shards[i] = newShard(perShardCap, opt.Policy, c.tags, &c.size, &c.opt)
	}

	if opt.SweepInterval > 0 {
		ctx, cancel := context.WithCancel(context.Background())
		c.stop = cancel
		c.wg.Add(1)
		go c.janitor(ctx, opt.SweepInterval)
	}
	return c
}

// Set writes v for key, replacing any existing entry, and mirrors it to the
// secondary tier. A non-positive duration uses the default Duration.
func (c *Cache[V]) Set(ctx context.Context, key string, v V, duration time.Duration, opts ...EntryOption) {
	if c.closed.Load() {
		return
	}
	eo := c.entryOptions(duration, opts)
	c.store(ctx, key, v, eo.Duration, eo.Tags, eo)
}

// TryGet returns a fresh value for key from the primary tier, falling back
// to the secondary tier. It never computes and never serves stale values.
func (c *Cache[V]) TryGet(ctx context.Context, key string) (V, bool) {
	var zero V
	if c.closed.Load() {
		return zero, false
	}
	now := c.now()
	s := c.shardFor(key)
	if e, ok := s.lookup(key, now, true); ok && e.IsFresh {
		s.hits.Add(1)
		c.opt.Metrics.Hit()
		return e.Value, true
	}

	if c.opt.Secondary != nil {
		hit, _, err := c.l2.Do(ctx, key, func(ctx context.Context) (*secondaryHit[V], error) {
			return c.loadSecondary(ctx, key), nil
		})
		if err == nil && hit != nil && now.Before(hit.expires) {
			c.install(key, hit, c.defaults)
			s.hits.Add(1)
			c.opt.Metrics.Hit()
			return hit.val, true
		}
	}

	s.misses.Add(1)
	c.opt.Metrics.Miss()
	return zero, false
}

// Get is TryGet with an error: ErrNotFound on a miss, ErrClosed after Close.
func (c *Cache[V]) Get(ctx context.Context, key string) (V, error) {
	if c.closed.Load() {
		var zero V
		return zero, ErrClosed
	}
	if v, ok := c.TryGet(ctx, key); ok {
		return v, nil
	}
	var zero V
	return zero, ErrNotFound
}

// Lookup returns the primary-tier entry for key regardless of freshness.
// It does not affect eviction order or counters.
func (c *Cache[V]) Lookup(key string) (Entry[V], bool) {
	e, ok := c.shardFor(key).lookup(key, c.now(), false)
	if ok {
		e.Tags = slices.Clone(e.Tags)
	}
	return e, ok
}

// Remove deletes key from both tiers. Removing a missing key is a no-op.
func (c *Cache[V]) Remove(ctx context.Context, key string) {
	if c.closed.Load() {
		return
	}
	c.shardFor(key).remove(key)
	c.removeSecondary(ctx, key)
}

// RemoveByTag evicts every key whose current entry carries tag and returns
// how many were evicted. Unknown tags evict nothing. Writes racing with the
// call are not invalidated retroactively.
func (c *Cache[V]) RemoveByTag(ctx context.Context, tag string) int {
	if c.closed.Load() {
		return 0
	}
	now := c.now()
	evicted := 0
	for _, key := range c.tags.Keys(tag) {
		if c.shardFor(key).removeIfTagged(key, tag, now) {
			evicted++
			c.removeSecondary(ctx, key)
		}
	}
	if evicted > 0 {
		c.log.Debug("cache: removed by tag", "tag", tag, "evicted", evicted)
	}
	return evicted
}

// Sweep evicts every entry past its physical lifetime and returns the count.
func (c *Cache[V]) Sweep() int {
	now := c.now()
	total := 0
	for _, s := range c.shards {
		total += s.sweep(now)
	}
	return total
}

// Len returns the total number of resident entries across all shards,
// including stale ones kept for fail-safe.
func (c *Cache[V]) Len() int {
	total := 0
	for _, s := range c.shards {
		total += s.Len()
	}
	return total
}

// Stats sums the per-shard counters.
func (c *Cache[V]) Stats() Stats {
	var st Stats
	for _, s := range c.shards {
		st.Hits += s.hits.Load()
		st.Misses += s.misses.Load()
		st.StaleHits += s.staleHits.Load()
		st.Evictions += s.evicts.Load()
	}
	return st
}

// Close stops the janitor, cancels in-flight and abandoned computes and
// drains the refresh pool. Later mutating calls are no-ops and compute calls
// return ErrClosed.
func (c *Cache[V]) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}
	close(c.closing)
	if c.stop != nil {
		c.stop()
	}
	c.wg.Wait()
	c.flight.CancelAll()
	return c.sched.Close()
}

// ---- helpers ----

// janitor periodically sweeps until ctx is cancelled.
func (c *Cache[V]) janitor(ctx context.Context, every time.Duration) {
	defer c.wg.Done()
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if n := c.Sweep(); n > 0 {
				c.log.Debug("cache: sweep", "evicted", n)
			}
		}
	}
}

// shardFor picks a shard by hashing the key.
func (c *Cache[V]) shardFor(key string) *shard[V] {
	return c.shards[util.ShardIndex(util.HashKey(key), len(c.shards))]
}

func (c *Cache[V]) now() time.Time {
	if c.opt.Clock != nil {
		return time.Unix(0, c.opt.Clock.NowUnixNano())
	}
	return time.Now()
}

// entryOptions layers per-call modifiers over a copy of the defaults.
func (c *Cache[V]) entryOptions(duration time.Duration, opts []EntryOption) EntryOptions {
	eo := c.defaults
	eo.Tags = slices.Clone(c.defaults.Tags)
	if duration > 0 {
		eo.Duration = duration
	}
	for _, o := range opts {
		o(&eo)
	}
	return eo
}

// newWrite derives lifetimes for a value written at now.
func newWrite[V any](now time.Time, v V, d time.Duration, tags []string, eo EntryOptions) write[V] {
	expires := now.Add(expiry.EffectiveDuration(d, eo.Jitter))
	w := write[V]{
		val:     v,
		created: now,
		expires: expires,
		retain:  expiry.RetainUntil(expires, eo.FailSafe, eo.FailSafeMaxDuration),
		tags:    slices.Clone(tags),
	}
	if at, ok := expiry.EagerRefreshThreshold(now, expires, eo.EagerRefreshFraction); ok {
		w.eager = at
	}
	return w
}

// store writes v to the primary tier and, unless skipped, the secondary tier.
// It does nothing after Close.
func (c *Cache[V]) store(ctx context.Context, key string, v V, d time.Duration, tags []string, eo EntryOptions) {
	if c.closed.Load() {
		return
	}
	if d <= 0 {
		d = eo.Duration
	}
	w := newWrite(c.now(), v, d, tags, eo)
	c.shardFor(key).put(key, w)
	if !eo.SkipSecondary {
		c.saveSecondary(ctx, key, w)
	}
}

// storeLate is store for a result computed from started on. It reports false
// when a newer entry is resident or the cache is closed.
func (c *Cache[V]) storeLate(ctx context.Context, key string, v V, d time.Duration, tags []string, eo EntryOptions, started time.Time) bool {
	if c.closed.Load() {
		return false
	}
	if d <= 0 {
		d = eo.Duration
	}
	w := newWrite(c.now(), v, d, tags, eo)
	if !c.shardFor(key).putLate(key, w, started) {
		return false
	}
	if !eo.SkipSecondary {
		c.saveSecondary(ctx, key, w)
	}
	return true
}

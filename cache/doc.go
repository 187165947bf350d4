// Package cache provides a resilient, generic, sharded in-memory cache built
// around get-or-compute: stampede protection, jittered expiry, fail-safe
// serving of stale values, eager background refresh, tag invalidation and an
// optional secondary (distributed) tier.
//
// Design
//
//   - Concurrency: the entry store is split into shards, each protected by a
//     mutex. The default shard count is chosen by a heuristic
//     (util.ReasonableShardCount) and is a power of two.
//
//   - Storage: each shard keeps a map[string]*node for lookups and an
//     intrusive MRU↔LRU doubly linked list. With Options.Capacity set, the
//     pluggable policy (LRU by default, 2Q available) decides what to evict.
//
//   - Lifetimes: a value is fresh until ExpiresAt (Duration ± Jitter/2).
//     Written with fail-safe, it is retained for FailSafeMaxDuration longer
//     as a fallback. Expired entries are dropped lazily on access, by Sweep,
//     or by the janitor when Options.SweepInterval > 0.
//
//   - Stampede protection: concurrent GetOrCompute calls for one key share a
//     single invocation of the ComputeFunc. A leader that times out or is
//     cancelled still resolves its followers.
//
//   - Fail-safe: when compute fails or times out and a previous value is
//     retained, the entry turns Stale and the previous value is returned
//     with Result.Stale set. For FailSafeThrottleDuration afterwards the
//     stale value is served without calling the ComputeFunc.
//
//   - Eager refresh: a read of a fresh entry past EagerRefreshFraction of its
//     lifetime schedules a background recompute on a bounded worker pool and
//     returns immediately.
//
//   - Tags: entries carry tags; RemoveByTag evicts every key currently
//     holding the tag.
//
//   - Secondary tier: Options.Secondary is consulted on a local miss before
//     compute and receives every write, encoded with Options.Codec. Its
//     failures are logged and counted, never returned.
//
//   - Metrics: Options.Metrics receives hit/miss/stale/fail-safe/refresh/
//     eviction signals. NoopMetrics is the default; see metrics/prom.
//
// Basic usage
//
//	c := cache.New(cache.Options[string]{})
//	defer c.Close()
//
//	v, err := c.GetOrCompute(ctx, "user:42", func(ctx context.Context, cc *cache.ComputeContext[string]) (string, error) {
//	    return db.LoadUser(ctx, 42)
//	}, 5*time.Minute,
//	    cache.WithJitter(30*time.Second),
//	    cache.WithEagerRefresh(0.8),
//	    cache.WithFailSafe(24*time.Hour, 0),
//	    cache.WithTags("users"),
//	)
//
// Observing fail-safe
//
//	r, err := c.GetOrComputeResult(ctx, "user:42", load, time.Minute)
//	if err == nil && r.Stale {
//	    log.Printf("served stale: %v", r.Cause)
//	}
//
// With a Redis secondary tier
//
//	c := cache.New(cache.Options[User]{
//	    Secondary: redisstore.New(rdb, "users:"),
//	    Codec:     codec.Msgpack[User]{},
//	})
package cache

package cache

import "github.com/IvanBrykalov/resilientcache/internal/expiry"

// candidate is a previous value usable by fail-safe. remote is set when it
// came from the secondary tier and is not resident yet.
type candidate[V any] struct {
	val    V
	ok     bool
	remote *secondaryHit[V]
}

// failSafe decides what a failed computation returns. With fail-safe enabled
// and a candidate at hand, the entry turns Stale, recompute is throttled and
// the previous value is served; otherwise cause propagates.
func (c *Cache[V]) failSafe(key string, eo EntryOptions, cand candidate[V], cause error) (Result[V], error) {
	if !eo.FailSafe || !cand.ok {
		return Result[V]{}, cause
	}
	now := c.now()
	s := c.shardFor(key)
	if h := cand.remote; h != nil {
		s.put(key, write[V]{
			val:     h.val,
			created: h.created,
			expires: h.expires,
			retain:  expiry.FailSafeWindow(now, eo.FailSafeMaxDuration),
			tags:    h.tags,
		})
	}
	e, ok := s.markStale(key, now,
		expiry.FailSafeWindow(now, eo.FailSafeMaxDuration),
		now.Add(eo.FailSafeThrottleDuration))
	if !ok {
		return Result[V]{}, cause
	}

	c.opt.Metrics.FailSafe()
	c.log.Warn("cache: fail-safe activated",
		"key", key,
		"err", cause,
		"stale_until", e.StaleUntil,
		"throttle", eo.FailSafeThrottleDuration,
	)
	return Result[V]{Value: e.Value, Stale: !e.IsFresh, Cause: cause}, nil
}

// serveStale applies a follower's own fail-safe to the leader's failure.
func (c *Cache[V]) serveStale(key string, eo EntryOptions, cause error) (Result[V], error) {
	if !eo.FailSafe {
		return Result[V]{}, cause
	}
	e, ok := c.shardFor(key).lookup(key, c.now(), false)
	if !ok {
		return Result[V]{}, cause
	}
	c.opt.Metrics.FailSafe()
	return Result[V]{Value: e.Value, Stale: !e.IsFresh, Cause: cause}, nil
}

package cache

import (
	"context"
	"time"

	"github.com/IvanBrykalov/resilientcache/internal/expiry"
	"github.com/vmihailenco/msgpack/v5"
)

// envelope is the secondary-tier record. It carries the logical lifetime so
// a value loaded from the secondary tier expires when it would have locally,
// and a logically expired one can still back fail-safe.
type envelope struct {
	Value     []byte   `msgpack:"v"`
	CreatedAt int64    `msgpack:"c"`
	ExpiresAt int64    `msgpack:"e"`
	Tags      []string `msgpack:"t,omitempty"`
}

// secondaryHit is a decoded envelope.
type secondaryHit[V any] struct {
	val     V
	created time.Time
	expires time.Time
	tags    []string
}

// saveSecondary mirrors w to the secondary tier for its physical lifetime.
func (c *Cache[V]) saveSecondary(ctx context.Context, key string, w write[V]) {
	if c.opt.Secondary == nil {
		return
	}
	ttl := w.retain.Sub(w.created)
	if ttl <= 0 {
		return
	}
	data, err := c.opt.Codec.Marshal(w.val)
	if err != nil {
		c.secondaryFailed("encode", key, err)
		return
	}
	raw, err := msgpack.Marshal(&envelope{
		Value:     data,
		CreatedAt: w.created.UnixNano(),
		ExpiresAt: w.expires.UnixNano(),
		Tags:      w.tags,
	})
	if err != nil {
		c.secondaryFailed("encode", key, err)
		return
	}

	ctx, cancel := c.secondaryContext(ctx)
	defer cancel()
	if err := c.opt.Secondary.Save(ctx, key, raw, ttl); err != nil {
		c.secondaryFailed("save", key, err)
	}
}

// loadSecondary returns the decoded record for key, or nil on a miss or error.
func (c *Cache[V]) loadSecondary(ctx context.Context, key string) *secondaryHit[V] {
	if c.opt.Secondary == nil {
		return nil
	}
	ctx, cancel := c.secondaryContext(ctx)
	defer cancel()

	raw, found, err := c.opt.Secondary.Load(ctx, key)
	if err != nil {
		c.secondaryFailed("load", key, err)
		return nil
	}
	if !found {
		return nil
	}
	var env envelope
	if err := msgpack.Unmarshal(raw, &env); err != nil {
		c.secondaryFailed("decode", key, err)
		return nil
	}
	v, err := c.opt.Codec.Unmarshal(env.Value)
	if err != nil {
		c.secondaryFailed("decode", key, err)
		return nil
	}
	return &secondaryHit[V]{
		val:     v,
		created: time.Unix(0, env.CreatedAt),
		expires: time.Unix(0, env.ExpiresAt),
		tags:    env.Tags,
	}
}

// removeSecondary deletes key from the secondary tier, best effort.
func (c *Cache[V]) removeSecondary(ctx context.Context, key string) {
	if c.opt.Secondary == nil {
		return
	}
	ctx, cancel := c.secondaryContext(ctx)
	defer cancel()
	if err := c.opt.Secondary.Remove(ctx, key); err != nil {
		c.secondaryFailed("remove", key, err)
	}
}

// install makes a fresh secondary-tier value resident in the primary tier,
// keeping its original lifetime.
func (c *Cache[V]) install(key string, h *secondaryHit[V], eo EntryOptions) {
	w := write[V]{
		val:     h.val,
		created: h.created,
		expires: h.expires,
		retain:  expiry.RetainUntil(h.expires, eo.FailSafe, eo.FailSafeMaxDuration),
		tags:    h.tags,
	}
	w.eager, _ = expiry.EagerRefreshThreshold(h.created, h.expires, eo.EagerRefreshFraction)
	c.shardFor(key).put(key, w)
}

// secondaryContext bounds a secondary-tier call. The caller's cancellation
// is not inherited, so writes finish even for abandoned calls.
func (c *Cache[V]) secondaryContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), c.opt.SecondaryTimeout)
}

func (c *Cache[V]) secondaryFailed(op, key string, err error) {
	c.opt.Metrics.SecondaryError()
	c.log.Warn("cache: secondary tier failed", "op", op, "key", key, "err", err)
}

package cache

import "time"

// node is an intrusive doubly linked list element owned by a shard.
// All fields are guarded by the shard lock.
type node[V any] struct {
	key string
	val V

	// head is MRU, tail is LRU.
	prev *node[V]
	next *node[V]

	created time.Time
	expires time.Time
	// retain is the physical end of life while the entry is not Stale:
	// expires plus the fail-safe window it was written with.
	retain time.Time
	// eager is the eager-refresh threshold; zero disables.
	eager time.Time
	// stale is StaleUntil; only meaningful in StateStale.
	stale time.Time
	// throttle suppresses recompute of a failing key until it passes.
	throttle time.Time

	tags  []string
	state State
}

// Key implements policy.Node.
func (n *node[V]) Key() string { return n.key }

// deadline is the instant after which the entry is gone.
func (n *node[V]) deadline() time.Time {
	if n.state == StateStale {
		return n.stale
	}
	return n.retain
}

// write is a full replacement of a node's payload and lifetime.
type write[V any] struct {
	val     V
	created time.Time
	expires time.Time
	retain  time.Time
	eager   time.Time
	tags    []string
}

func (n *node[V]) apply(w write[V]) {
	n.val = w.val
	n.created = w.created
	n.expires = w.expires
	n.retain = w.retain
	n.eager = w.eager
	n.tags = w.tags
	n.state = StateFresh
	n.stale = time.Time{}
	n.throttle = time.Time{}
}

// entry snapshots the node. An expired node that has not failed a refresh
// yet is reported as Stale with StaleUntil at its retention limit.
// Tags are shared: writers always replace the slice, never mutate it.
func (n *node[V]) entry(now time.Time) Entry[V] {
	e := Entry[V]{
		Key:           n.key,
		Value:         n.val,
		CreatedAt:     n.created,
		ExpiresAt:     n.expires,
		Tags:          n.tags,
		State:         n.state,
		IsFresh:       now.Before(n.expires),
		eagerAt:       n.eager,
		throttleUntil: n.throttle,
	}
	switch {
	case n.state == StateStale:
		e.StaleUntil = n.stale
	case n.state == StateFresh && !e.IsFresh:
		e.State = StateStale
		e.StaleUntil = n.retain
	}
	return e
}

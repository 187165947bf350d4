package cache

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/IvanBrykalov/resilientcache/internal/tagindex"
	"github.com/IvanBrykalov/resilientcache/internal/util"
	"github.com/IvanBrykalov/resilientcache/policy"
)

// shard is an independent partition of the entry store with its own lock,
// map, and an intrusive doubly linked list (head=MRU, tail=LRU).
//
// The shard is the single writer of entry state and lifetimes. Tag index
// membership is updated under the shard lock, so the index never lists a
// key whose current entry lacks the tag (lock order: shard, then index).
type shard[V any] struct {
	// ---- guarded by mu ----
	mu   sync.Mutex
	m    map[string]*node[V]
	head *node[V]
	tail *node[V]
	len  int
	cap  int // per-shard entry limit, 0 = unbounded

	pol     policy.ShardPolicy
	tags    *tagindex.Index
	size    *atomic.Int64 // cache-wide resident count
	metrics Metrics
	onEvict func(key string, v V, reason EvictReason)

	// ---- hot counters (separate cache lines to avoid false sharing) ----
	_         util.CacheLinePad
	hits      util.PaddedAtomicInt64
	misses    util.PaddedAtomicInt64
	staleHits util.PaddedAtomicInt64
	evicts    util.PaddedAtomicInt64
}

func newShard[V any](capacity int, pol policy.Policy, tags *tagindex.Index, size *atomic.Int64, opt *Options[V]) *shard[V] {
	s := &shard[V]{
		m:       make(map[string]*node[V]),
		cap:     capacity,
		tags:    tags,
		size:    size,
		metrics: opt.Metrics,
		onEvict: opt.OnEvict,
	}
	s.pol = pol.New(shardHooks[V]{s: s})
	return s
}

// lookup returns the current entry regardless of freshness. Entries past
// their physical lifetime are evicted and reported absent. touch promotes
// the entry in the eviction order.
func (s *shard[V]) lookup(key string, now time.Time, touch bool) (Entry[V], bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n, ok := s.m[key]
	if !ok {
		return Entry[V]{}, false
	}
	if !now.Before(n.deadline()) {
		s.evictNode(n, EvictTTL)
		return Entry[V]{}, false
	}
	if touch {
		s.pol.OnGet(n)
	}
	return n.entry(now), true
}

// put creates or replaces the entry for key and re-indexes its tags.
func (s *shard[V]) put(key string, w write[V]) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.putLocked(key, w)
}

// putLate is put for a result whose computation started at started. It does
// nothing when the resident entry was written after that.
func (s *shard[V]) putLate(key string, w write[V], started time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if n, ok := s.m[key]; ok && n.created.After(started) {
		return false
	}
	s.putLocked(key, w)
	return true
}

func (s *shard[V]) putLocked(key string, w write[V]) {
	if n, ok := s.m[key]; ok {
		n.apply(w)
		s.tags.Set(key, w.tags)
		s.pol.OnUpdate(n)
		s.enforceLimitsLocked()
		return
	}

	n := &node[V]{key: key}
	n.apply(w)
	s.m[key] = n
	s.tags.Set(key, w.tags)

	if ev := s.pol.OnAdd(n); ev != nil {
		s.evictNode(ev.(*node[V]), EvictPolicy)
	}
	s.enforceLimitsLocked()
}

// markStale records a failed recompute for key. An expired entry turns
// Stale with StaleUntil = staleUntil (kept from the first failure); a still
// fresh entry keeps serving. Either way recompute is throttled until
// throttleUntil. It reports false when the entry is gone.
func (s *shard[V]) markStale(key string, now, staleUntil, throttleUntil time.Time) (Entry[V], bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n, ok := s.m[key]
	if !ok {
		return Entry[V]{}, false
	}
	if !now.Before(n.deadline()) {
		s.evictNode(n, EvictTTL)
		return Entry[V]{}, false
	}
	if now.Before(n.expires) {
		if n.state == StateRefreshing {
			n.state = StateFresh
		}
	} else if n.state != StateStale {
		n.state = StateStale
		n.stale = staleUntil
	}
	n.throttle = throttleUntil
	return n.entry(now), true
}

// transition moves key from state from to state to, reporting success.
func (s *shard[V]) transition(key string, from, to State) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.m[key]
	if !ok || n.state != from {
		return false
	}
	n.state = to
	return true
}

// remove deletes key. Explicit removal is not counted as an eviction.
func (s *shard[V]) remove(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	n, ok := s.m[key]
	if !ok {
		return false
	}
	s.dropLocked(n)
	return true
}

// removeIfTagged evicts key only if its current entry still carries tag.
// An entry already past its physical lifetime is evicted as expired and not
// reported.
func (s *shard[V]) removeIfTagged(key, tag string, now time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	n, ok := s.m[key]
	if !ok || !hasTag(n.tags, tag) {
		return false
	}
	if !now.Before(n.deadline()) {
		s.evictNode(n, EvictTTL)
		return false
	}
	s.evictNode(n, EvictTag)
	return true
}

// sweep evicts every entry past its physical lifetime.
func (s *shard[V]) sweep(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	evicted := 0
	for _, n := range s.m {
		if !now.Before(n.deadline()) {
			s.evictNode(n, EvictTTL)
			evicted++
		}
	}
	return evicted
}

// Len returns the number of resident entries in this shard.
func (s *shard[V]) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.len
}

// -------------------- internals (mu held) --------------------

// dropLocked unlinks n from every structure and marks it Gone.
func (s *shard[V]) dropLocked(n *node[V]) {
	s.pol.OnRemove(n)
	s.removeNode(n)
	delete(s.m, n.key)
	s.tags.RemoveKey(n.key)
	n.state = StateGone
	s.metrics.Size(int(s.size.Load()))
}

// evictNode drops n and reports the eviction.
func (s *shard[V]) evictNode(n *node[V], reason EvictReason) {
	s.dropLocked(n)
	s.evicts.Add(1)
	s.metrics.Evict(reason)
	if cb := s.onEvict; cb != nil {
		cb(n.key, n.val, reason)
	}
}

// enforceLimitsLocked evicts from the LRU end until the count limit holds.
func (s *shard[V]) enforceLimitsLocked() {
	if s.cap > 0 {
		for s.len > s.cap && s.tail != nil {
			s.evictNode(s.tail, EvictCapacity)
		}
	}
	s.metrics.Size(int(s.size.Load()))
}

// insertFront links n at MRU in O(1).
func (s *shard[V]) insertFront(n *node[V]) {
	n.prev = nil
	n.next = s.head
	if s.head != nil {
		s.head.prev = n
	}
	s.head = n
	if s.tail == nil {
		s.tail = n
	}
	s.len++
	s.size.Add(1)
}

// moveToFront promotes n to MRU in O(1).
func (s *shard[V]) moveToFront(n *node[V]) {
	if n == s.head {
		return
	}
	if n.prev != nil {
		n.prev.next = n.next
	}
	if n.next != nil {
		n.next.prev = n.prev
	}
	if s.tail == n {
		s.tail = n.prev
	}
	n.prev = nil
	n.next = s.head
	if s.head != nil {
		s.head.prev = n
	}
	s.head = n
	if s.tail == nil {
		s.tail = n
	}
}

// removeNode unlinks n and updates counters in O(1).
func (s *shard[V]) removeNode(n *node[V]) {
	if n.prev != nil {
		n.prev.next = n.next
	}
	if n.next != nil {
		n.next.prev = n.prev
	}
	if s.head == n {
		s.head = n.next
	}
	if s.tail == n {
		s.tail = n.prev
	}
	n.prev, n.next = nil, nil
	s.len--
	s.size.Add(-1)
}

func hasTag(tags []string, tag string) bool {
	for _, t := range tags {
		if t == tag {
			return true
		}
	}
	return false
}

// -------------------- policy hooks --------------------

// shardHooks adapts the shard's list operations to policy.Hooks.
type shardHooks[V any] struct{ s *shard[V] }

func (h shardHooks[V]) MoveToFront(x policy.Node) { h.s.moveToFront(x.(*node[V])) }
func (h shardHooks[V]) PushFront(x policy.Node)   { h.s.insertFront(x.(*node[V])) }
func (h shardHooks[V]) Len() int                  { return h.s.len }

// Back must return an untyped nil on an empty list, not a nil *node.
func (h shardHooks[V]) Back() policy.Node {
	if h.s.tail == nil {
		return nil
	}
	return h.s.tail
}

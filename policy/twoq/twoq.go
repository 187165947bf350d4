// Package twoq implements the 2Q eviction policy, which resists scan
// pollution: one-off keys age out of a small probation queue before they can
// push hot keys out of the main queue.
package twoq

import (
	"container/list"

	"github.com/IvanBrykalov/resilientcache/policy"
)

// twoQ keeps two resident classes and one ghost queue:
//   - A1in: first-time admissions, tracked in its own list (MRU at front).
//   - Am: everything resident that is not in A1in; ordered by the shard list.
//   - A1out: keys (no values) recently evicted from A1in. A key found here
//     on re-admission skips A1in and goes straight to Am.
//
// All methods are called under the shard lock.
type twoQ struct {
	h policy.Hooks

	capIn    int
	capGhost int

	inList *list.List
	inIdx  map[policy.Node]*list.Element

	ghostList *list.List
	ghostIdx  map[string]*list.Element
}

type twoQPolicy struct {
	capIn    int
	capGhost int
}

// New constructs a 2Q policy factory with per-shard queue sizes.
// Common choices: capIn ≈ 25% and capGhost ≈ 50% of the per-shard capacity.
func New(capIn, capGhost int) policy.Policy {
	return twoQPolicy{capIn: max(capIn, 1), capGhost: max(capGhost, 1)}
}

func (p twoQPolicy) New(h policy.Hooks) policy.ShardPolicy {
	return &twoQ{
		h:         h,
		capIn:     p.capIn,
		capGhost:  p.capGhost,
		inList:    list.New(),
		inIdx:     make(map[policy.Node]*list.Element),
		ghostList: list.New(),
		ghostIdx:  make(map[string]*list.Element),
	}
}

// OnAdd admits n. Ghost hits go straight to Am; everything else enters A1in,
// and an overflowing A1in proposes its LRU member for eviction.
func (q *twoQ) OnAdd(n policy.Node) policy.Node {
	k := n.Key()
	if ge, ok := q.ghostIdx[k]; ok {
		q.ghostList.Remove(ge)
		delete(q.ghostIdx, k)
		q.h.PushFront(n)
		return nil
	}

	q.h.PushFront(n)
	q.inIdx[n] = q.inList.PushFront(n)

	if q.inList.Len() > q.capIn {
		if tail := q.inList.Back(); tail != nil {
			return tail.Value.(policy.Node)
		}
	}
	return nil
}

// OnGet promotes an A1in member to Am and moves it to MRU.
func (q *twoQ) OnGet(n policy.Node) {
	if el, ok := q.inIdx[n]; ok {
		q.inList.Remove(el)
		delete(q.inIdx, n)
	}
	q.h.MoveToFront(n)
}

// OnUpdate follows OnGet.
func (q *twoQ) OnUpdate(n policy.Node) { q.OnGet(n) }

// OnRemove remembers keys leaving A1in as ghosts. Removals from Am leave no ghost.
func (q *twoQ) OnRemove(n policy.Node) {
	el, ok := q.inIdx[n]
	if !ok {
		return
	}
	q.inList.Remove(el)
	delete(q.inIdx, n)

	k := n.Key()
	if old := q.ghostIdx[k]; old != nil {
		q.ghostList.Remove(old)
	}
	q.ghostIdx[k] = q.ghostList.PushFront(k)

	for q.ghostList.Len() > q.capGhost {
		tail := q.ghostList.Back()
		delete(q.ghostIdx, tail.Value.(string))
		q.ghostList.Remove(tail)
	}
}

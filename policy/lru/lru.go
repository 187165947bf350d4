// Package lru implements the LRU eviction policy.
package lru

import "github.com/IvanBrykalov/resilientcache/policy"

// lru is a move-to-front policy. Capacity enforcement lives in the shard,
// which evicts from the list tail.
type lru struct {
	h policy.Hooks
}

type lruPolicy struct{}

// New returns a Policy factory that constructs per-shard LRU instances.
func New() policy.Policy { return lruPolicy{} }

// New implements policy.Policy.
func (lruPolicy) New(h policy.Hooks) policy.ShardPolicy { return &lru{h: h} }

// OnAdd places the new entry at MRU and never proposes an eviction itself.
func (p *lru) OnAdd(n policy.Node) policy.Node {
	p.h.PushFront(n)
	return nil
}

// OnGet promotes the entry to MRU.
func (p *lru) OnGet(n policy.Node) { p.h.MoveToFront(n) }

// OnUpdate promotes the entry to MRU; a rewrite counts as recent use.
func (p *lru) OnUpdate(n policy.Node) { p.h.MoveToFront(n) }

// OnRemove is a no-op: LRU keeps no state outside the shard list.
func (p *lru) OnRemove(policy.Node) {}

// Package policy defines the pluggable eviction contract used by cache shards
// when a capacity bound is configured.
package policy

// Node is the view of a resident cache entry a policy may see.
type Node interface {
	Key() string
}

// Hooks expose O(1) operations on the shard's intrusive MRU/LRU list.
// All hook calls happen under the shard lock. Hooks manage only the list;
// the shard owns the key->entry map.
type Hooks interface {
	// MoveToFront promotes the node to MRU.
	MoveToFront(Node)
	// PushFront links a newly admitted node at MRU.
	PushFront(Node)
	// Back returns the current LRU node (or nil if empty).
	Back() Node
	// Len returns the number of resident nodes in the shard.
	Len() int
}

// ShardPolicy is a per-shard eviction policy instance bound to shard hooks.
// All methods are invoked under the shard lock.
//
//   - OnAdd may return an eviction candidate; the shard evicts it and then
//     calls OnRemove for it.
//   - OnGet/OnUpdate typically promote the node.
//   - OnRemove lets the policy drop its own bookkeeping. The shard performs
//     the actual unlinking.
type ShardPolicy interface {
	OnAdd(Node) (evict Node)
	OnGet(Node)
	OnUpdate(Node)
	OnRemove(Node)
}

// Policy creates shard-local policy instances.
type Policy interface {
	New(Hooks) ShardPolicy
}

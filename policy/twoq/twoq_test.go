package twoq

import (
	"testing"

	"github.com/IvanBrykalov/resilientcache/policy"
)

type testNode struct{ k string }

func (n *testNode) Key() string { return n.k }

type mockHooks struct {
	pushFrontCnt   int
	moveToFrontCnt int
}

func (h *mockHooks) MoveToFront(policy.Node) { h.moveToFrontCnt++ }
func (h *mockHooks) PushFront(policy.Node)   { h.pushFrontCnt++ }
func (h *mockHooks) Back() policy.Node       { return nil }
func (h *mockHooks) Len() int                { return 0 }

func newTwoQ(capIn, capGhost int) (*twoQ, *mockHooks) {
	h := &mockHooks{}
	return New(capIn, capGhost).New(h).(*twoQ), h
}

func TestTwoQ_AddGoesToA1in(t *testing.T) {
	t.Parallel()

	p, h := newTwoQ(2, 4)
	n := &testNode{k: "a"}
	if ev := p.OnAdd(n); ev != nil {
		t.Fatalf("no eviction expected, got %v", ev)
	}
	if _, ok := p.inIdx[n]; !ok || p.inList.Len() != 1 {
		t.Fatal("first admission must land in A1in")
	}
	if h.pushFrontCnt != 1 {
		t.Fatal("admission must link the node at MRU")
	}
}

func TestTwoQ_OverflowReturnsLRUOfA1in(t *testing.T) {
	t.Parallel()

	p, _ := newTwoQ(2, 4)
	n1, n2, n3 := &testNode{k: "a"}, &testNode{k: "b"}, &testNode{k: "c"}
	p.OnAdd(n1)
	p.OnAdd(n2)
	if ev := p.OnAdd(n3); ev != n1 {
		t.Fatalf("expected n1 as eviction candidate, got %v", ev)
	}
}

// A key evicted from A1in is re-admitted straight into Am.
func TestTwoQ_GhostSecondChance(t *testing.T) {
	t.Parallel()

	p, _ := newTwoQ(1, 2)
	n1 := &testNode{k: "a"}
	p.OnAdd(n1)
	p.OnRemove(n1)
	if _, ok := p.ghostIdx["a"]; !ok {
		t.Fatal("removed A1in key must become a ghost")
	}

	n2 := &testNode{k: "a"}
	if ev := p.OnAdd(n2); ev != nil {
		t.Fatalf("ghost re-admission must not evict, got %v", ev)
	}
	if _, ok := p.inIdx[n2]; ok {
		t.Fatal("ghost re-admission must bypass A1in")
	}
	if _, ok := p.ghostIdx["a"]; ok {
		t.Fatal("ghost must be consumed")
	}
}

func TestTwoQ_GhostCapacity(t *testing.T) {
	t.Parallel()

	p, _ := newTwoQ(8, 2)
	for _, k := range []string{"a", "b", "c"} {
		n := &testNode{k: k}
		p.OnAdd(n)
		p.OnRemove(n)
	}
	if p.ghostList.Len() != 2 {
		t.Fatalf("ghost queue must be capped at 2, got %d", p.ghostList.Len())
	}
	if _, ok := p.ghostIdx["a"]; ok {
		t.Fatal("oldest ghost must be dropped first")
	}
}

func TestTwoQ_GetPromotesFromA1in(t *testing.T) {
	t.Parallel()

	p, h := newTwoQ(2, 2)
	n := &testNode{k: "a"}
	p.OnAdd(n)
	p.OnGet(n)
	if _, ok := p.inIdx[n]; ok {
		t.Fatal("Get must promote out of A1in")
	}
	if h.moveToFrontCnt != 1 {
		t.Fatal("Get must move the node to MRU")
	}
}

package lru

import (
	"testing"

	"github.com/IvanBrykalov/resilientcache/policy"
)

type testNode struct{ k string }

func (n *testNode) Key() string { return n.k }

type mockHooks struct {
	pushFrontCnt   int
	moveToFrontCnt int

	lastPush policy.Node
	lastMove policy.Node
}

func (h *mockHooks) MoveToFront(n policy.Node) { h.moveToFrontCnt++; h.lastMove = n }
func (h *mockHooks) PushFront(n policy.Node)   { h.pushFrontCnt++; h.lastPush = n }
func (h *mockHooks) Back() policy.Node         { return nil }
func (h *mockHooks) Len() int                  { return 0 }

func TestLRU_OnAdd_PushFrontAndNoEvict(t *testing.T) {
	t.Parallel()

	h := &mockHooks{}
	p := New().New(h)

	n := &testNode{k: "k1"}
	if ev := p.OnAdd(n); ev != nil {
		t.Fatalf("LRU must not propose evictions, got %v", ev)
	}
	if h.pushFrontCnt != 1 || h.lastPush != n {
		t.Fatal("OnAdd must call PushFront exactly once with the node")
	}
	if h.moveToFrontCnt != 0 {
		t.Fatal("OnAdd must not call MoveToFront")
	}
}

func TestLRU_OnGetAndUpdate_Promote(t *testing.T) {
	t.Parallel()

	h := &mockHooks{}
	p := New().New(h)

	n := &testNode{k: "k2"}
	p.OnGet(n)
	p.OnUpdate(n)

	if h.moveToFrontCnt != 2 || h.lastMove != n {
		t.Fatalf("OnGet/OnUpdate must promote, got %d moves", h.moveToFrontCnt)
	}
	if h.pushFrontCnt != 0 {
		t.Fatal("promotion must not push")
	}
}

func TestLRU_OnRemove_NoOp(t *testing.T) {
	t.Parallel()

	h := &mockHooks{}
	New().New(h).OnRemove(&testNode{k: "k3"})

	if h.pushFrontCnt != 0 || h.moveToFrontCnt != 0 {
		t.Fatal("OnRemove must not touch the list")
	}
}

package singleflight

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"golang.org/x/sync/errgroup"
)

func TestAcquire_LeaderThenFollower(t *testing.T) {
	t.Parallel()

	var g Group[string, int]
	t1, leader := g.Acquire("k")
	if !leader {
		t.Fatal("first Acquire must lead")
	}
	t2, leader2 := g.Acquire("k")
	if leader2 || t2 != t1 {
		t.Fatal("second Acquire must follow the same ticket")
	}
	if t1.Waiters() != 1 {
		t.Fatalf("waiters: want 1, got %d", t1.Waiters())
	}

	g.Release("k", t1, 7, nil)
	v, err := t2.Wait(context.Background())
	if err != nil || v != 7 {
		t.Fatalf("follower: want 7, got %d err=%v", v, err)
	}
	if g.InFlight("k") {
		t.Fatal("ticket must be removed after Release")
	}

	// A later miss starts over.
	if _, leader := g.Acquire("k"); !leader {
		t.Fatal("Acquire after Release must lead again")
	}
}

// Resolve publishes exactly once; the first result wins.
func TestResolve_Once(t *testing.T) {
	t.Parallel()

	var g Group[string, int]
	tk, _ := g.Acquire("k")
	if !g.Resolve(tk, 1, nil) {
		t.Fatal("first Resolve must win")
	}
	if g.Resolve(tk, 2, errors.New("late")) {
		t.Fatal("second Resolve must be ignored")
	}
	v, err := tk.Wait(context.Background())
	if v != 1 || err != nil {
		t.Fatalf("want (1, nil), got (%d, %v)", v, err)
	}
	// Resolved but not released: key is still occupied.
	if !g.InFlight("k") {
		t.Fatal("resolved ticket must stay until Forget")
	}
	g.Forget("k", tk)
	if g.InFlight("k") {
		t.Fatal("Forget must remove the ticket")
	}
}

// Forget must not remove a newer ticket for the same key.
func TestForget_StaleTicketIgnored(t *testing.T) {
	t.Parallel()

	var g Group[string, int]
	old, _ := g.Acquire("k")
	g.Forget("k", old)
	cur, _ := g.Acquire("k")
	g.Forget("k", old)
	if !g.InFlight("k") {
		t.Fatal("Forget with an old ticket removed the current one")
	}
	g.Release("k", cur, 0, nil)
}

// Follower cancellation unblocks only that follower.
func TestWait_FollowerContext(t *testing.T) {
	t.Parallel()

	var g Group[string, int]
	tk, _ := g.Acquire("k")
	follower, _ := g.Acquire("k")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if _, err := follower.Wait(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("want deadline exceeded, got %v", err)
	}
	select {
	case <-tk.Done():
		t.Fatal("leader ticket must still be pending")
	default:
	}
	g.Release("k", tk, 1, nil)
}

// waitForWaiters blocks until the ticket for key has n followers.
func waitForWaiters[V any](t *testing.T, g *Group[string, V], key string, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		g.mu.Lock()
		tk := g.m[key]
		g.mu.Unlock()
		if tk != nil && tk.Waiters() >= n {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Errorf("followers did not join in time")
}

// Concurrent Do calls for one key run fn exactly once and share its result.
func TestDo_ExactlyOnce(t *testing.T) {
	t.Parallel()

	var g Group[string, string]
	var calls atomic.Int64

	const n = 64
	var eg errgroup.Group
	for i := 0; i < n; i++ {
		eg.Go(func() error {
			v, _, err := g.Do(context.Background(), "k", func(context.Context) (string, error) {
				calls.Add(1)
				waitForWaiters(t, &g, "k", n-1)
				return "v", nil
			})
			if err != nil {
				return err
			}
			if v != "v" {
				return errors.New("unexpected value " + v)
			}
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		t.Fatal(err)
	}
	if got := calls.Load(); got != 1 {
		t.Fatalf("fn must run once, got %d", got)
	}
}

func TestCancelAll(t *testing.T) {
	t.Parallel()

	var g Group[string, int]
	tk, _ := g.Acquire("k")
	ctx, cancel := context.WithCancel(context.Background())
	tk.SetCancel(cancel)

	g.CancelAll()
	select {
	case <-ctx.Done():
	default:
		t.Fatal("CancelAll must fire the ticket's cancel func")
	}
	g.Release("k", tk, 0, ctx.Err())
	if g.Len() != 0 {
		t.Fatalf("table must be empty, got %d", g.Len())
	}
}

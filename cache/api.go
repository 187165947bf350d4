package cache

import (
	"context"
	"time"
)

// ComputeFunc produces the value for a key on a miss, or on eager refresh.
// ctx carries the call's timeout and cancellation; honour it.
type ComputeFunc[V any] func(ctx context.Context, cc *ComputeContext[V]) (V, error)

// ComputeContext describes the computation to the ComputeFunc and lets it
// adapt how its result is cached.
type ComputeContext[V any] struct {
	Key string

	// StaleValue is the previous value for Key, when one is still retained.
	StaleValue    V
	HasStaleValue bool

	// Duration and Tags start from the call's options; the function may
	// change them to cache its result differently (e.g. shorter for partial data).
	Duration time.Duration
	Tags     []string
}

// Result is the outcome of GetOrComputeResult.
type Result[V any] struct {
	Value V
	// Stale is true when Value is a previous value served by fail-safe.
	Stale bool
	// Cause is the failure fail-safe absorbed, when Stale is true after a
	// failed compute. It is nil for throttled stale serves.
	Cause error
}

// State is the lifecycle state of an entry.
type State uint8

const (
	// StateFresh: within its logical lifetime.
	StateFresh State = iota
	// StateStale: past ExpiresAt but still retained as a fail-safe candidate.
	StateStale
	// StateRefreshing: a background recompute is in flight.
	StateRefreshing
	// StateGone: evicted; never observable through lookups.
	StateGone
)

func (s State) String() string {
	switch s {
	case StateFresh:
		return "fresh"
	case StateStale:
		return "stale"
	case StateRefreshing:
		return "refreshing"
	default:
		return "gone"
	}
}

// Entry is a snapshot of an entry in the primary tier.
type Entry[V any] struct {
	Key       string
	Value     V
	CreatedAt time.Time
	ExpiresAt time.Time
	// StaleUntil bounds fail-safe serving; meaningful only when State is StateStale.
	StaleUntil time.Time
	Tags       []string
	State      State
	// IsFresh reports now < ExpiresAt at the time of the snapshot.
	IsFresh bool

	eagerAt       time.Time
	throttleUntil time.Time
}

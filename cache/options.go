package cache

import (
	"context"
	"log/slog"
	"time"

	"github.com/IvanBrykalov/resilientcache/codec"
	"github.com/IvanBrykalov/resilientcache/policy"
)

// EvictReason explains why an entry was removed.
type EvictReason int

const (
	// EvictPolicy: proposed by the active eviction policy (e.g. 2Q probation overflow).
	EvictPolicy EvictReason = iota
	// EvictTTL: past its physical lifetime (lazily on access or by Sweep).
	EvictTTL
	// EvictCapacity: removed to satisfy the entry count limit.
	EvictCapacity
	// EvictTag: invalidated by RemoveByTag.
	EvictTag
)

// RefreshOutcome classifies a background eager refresh.
type RefreshOutcome int

const (
	// RefreshOK: the value was recomputed and written.
	RefreshOK RefreshOutcome = iota
	// RefreshFailed: compute failed; the current value was kept.
	RefreshFailed
	// RefreshDropped: the worker pool was saturated, the refresh did not run.
	RefreshDropped
)

// Metrics receives cache events. Calls happen inline and must be cheap and
// non-blocking. NoopMetrics is used when none is configured.
type Metrics interface {
	Hit()
	Miss()
	// StaleHit counts stale values served directly, without compute, while
	// the fail-safe throttle window of a failing key is open.
	StaleHit()
	// FailSafe counts fail-safe activations (a failure absorbed by a stale value).
	FailSafe()
	Refresh(RefreshOutcome)
	// SecondaryError counts failed secondary-tier or codec operations.
	SecondaryError()
	Evict(reason EvictReason)
	Size(entries int)
}

// Clock provides time in UnixNano; useful for deterministic tests.
type Clock interface{ NowUnixNano() int64 }

// SecondaryStore is an optional durable/distributed tier consulted on a
// local miss before compute runs. Values arrive already encoded.
// Errors are never fatal: the cache logs them and keeps serving from memory.
type SecondaryStore interface {
	// Load returns the stored bytes; found is false on a clean miss.
	Load(ctx context.Context, key string) (data []byte, found bool, err error)
	// Save stores data for ttl (physical lifetime, including the fail-safe window).
	Save(ctx context.Context, key string, data []byte, ttl time.Duration) error
	// Remove deletes key; removing a missing key is not an error.
	Remove(ctx context.Context, key string) error
}

// Options configures a Cache. Zero values are safe; New applies defaults:
//   - Shards <= 0              => auto (≈ 2*GOMAXPROCS, power of two)
//   - Capacity <= 0            => unbounded
//   - nil Policy               => LRU (only consulted when Capacity > 0)
//   - nil DefaultEntryOptions  => DefaultEntryOptions()
//   - RefreshWorkers <= 0      => refresh.DefaultWorkers
//   - nil Codec                => codec.JSON (only used with a Secondary)
//   - SecondaryTimeout <= 0    => 1s
//   - nil Metrics              => NoopMetrics
//   - nil Logger               => discard
type Options[V any] struct {
	// Shards is the number of independent partitions of the entry store.
	Shards int

	// Capacity bounds the number of resident entries, split evenly across shards.
	Capacity int
	// Policy orders entries for capacity eviction (LRU/2Q/…).
	Policy policy.Policy

	// DefaultEntryOptions seeds every call; per-call EntryOption values are
	// applied on top of a copy. Its Tags go on every entry unless a call
	// replaces them with WithTags.
	DefaultEntryOptions *EntryOptions

	// RefreshWorkers bounds concurrent background eager refreshes.
	RefreshWorkers int

	// SweepInterval runs a janitor that evicts entries past their physical
	// lifetime. 0 disables it; expired entries are still dropped lazily on access.
	SweepInterval time.Duration

	// Secondary tier and the codec used to encode values for it.
	Secondary        SecondaryStore
	Codec            codec.Codec[V]
	SecondaryTimeout time.Duration

	// OnEvict is called on eviction (not on explicit Remove) under the shard
	// lock; keep callbacks lightweight and never call back into the cache.
	OnEvict func(key string, v V, reason EvictReason)
	Metrics Metrics
	Logger  *slog.Logger

	// Clock allows overriding the time source (tests). Nil => time.Now().
	Clock Clock
}

// EntryOptions controls how one value is computed, stored and served.
type EntryOptions struct {
	// Duration is the logical lifetime of a value before jitter.
	Duration time.Duration
	// Jitter is the total span of the random offset added to Duration
	// (uniform in [-Jitter/2, +Jitter/2]).
	Jitter time.Duration
	// EagerRefreshFraction in (0,1) makes a read of a fresh entry past that
	// fraction of its lifetime trigger a background recompute. 0 disables.
	EagerRefreshFraction float64

	// FailSafe serves the last value when recompute fails, for at most
	// FailSafeMaxDuration, and skips recompute for FailSafeThrottleDuration
	// after each failure.
	FailSafe                 bool
	FailSafeMaxDuration      time.Duration
	FailSafeThrottleDuration time.Duration

	// Timeout bounds how long a caller waits for compute. 0 means no limit
	// beyond the caller's context.
	Timeout time.Duration
	// BackgroundCompletion lets a timed-out compute keep running detached
	// from the caller; a late success is still written to the cache.
	BackgroundCompletion bool

	// Tags are attached to the written entry for RemoveByTag.
	Tags []string

	// SkipSecondary bypasses the secondary tier for this call.
	SkipSecondary bool
}

// EntryOption adjusts EntryOptions for one call.
type EntryOption func(*EntryOptions)

// DefaultEntryOptions returns the defaults used when Options.DefaultEntryOptions is nil.
func DefaultEntryOptions() EntryOptions {
	return EntryOptions{
		Duration:                 5 * time.Minute,
		FailSafe:                 true,
		FailSafeMaxDuration:      time.Hour,
		FailSafeThrottleDuration: time.Minute,
	}
}

// WithJitter sets the jitter span.
func WithJitter(span time.Duration) EntryOption {
	return func(o *EntryOptions) { o.Jitter = span }
}

// WithEagerRefresh enables background refresh after fraction of the lifetime.
func WithEagerRefresh(fraction float64) EntryOption {
	return func(o *EntryOptions) { o.EagerRefreshFraction = fraction }
}

// WithFailSafe enables fail-safe. Non-positive durations keep the current values.
func WithFailSafe(maxDuration, throttle time.Duration) EntryOption {
	return func(o *EntryOptions) {
		o.FailSafe = true
		if maxDuration > 0 {
			o.FailSafeMaxDuration = maxDuration
		}
		if throttle > 0 {
			o.FailSafeThrottleDuration = throttle
		}
	}
}

// WithoutFailSafe disables fail-safe for the call.
func WithoutFailSafe() EntryOption {
	return func(o *EntryOptions) { o.FailSafe = false }
}

// WithTimeout bounds the wait for compute.
func WithTimeout(d time.Duration) EntryOption {
	return func(o *EntryOptions) { o.Timeout = d }
}

// WithBackgroundCompletion lets timed-out computes finish and populate the cache.
func WithBackgroundCompletion() EntryOption {
	return func(o *EntryOptions) { o.BackgroundCompletion = true }
}

// WithTags attaches tags to the written entry.
func WithTags(tags ...string) EntryOption {
	return func(o *EntryOptions) { o.Tags = tags }
}

// WithoutSecondary bypasses the secondary tier.
func WithoutSecondary() EntryOption {
	return func(o *EntryOptions) { o.SkipSecondary = true }
}

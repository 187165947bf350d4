// Package expiry computes entry lifetimes: jittered durations, the
// eager-refresh threshold and the fail-safe retention window.
package expiry

import (
	"math/rand/v2"
	"time"
)

// EffectiveDuration returns base perturbed by a uniform random offset in
// [-span/2, +span/2], clamped to zero. A non-positive span returns base.
func EffectiveDuration(base, span time.Duration) time.Duration {
	return effectiveDuration(base, span, rand.Int64N)
}

// effectiveDuration takes the random source so tests can pin the extremes.
// intn must return a value in [0, n).
func effectiveDuration(base, span time.Duration, intn func(n int64) int64) time.Duration {
	d := base
	if half := span / 2; half > 0 {
		// [0, 2*half] shifted left by half.
		d += time.Duration(intn(2*int64(half)+1)) - half
	}
	if d < 0 {
		return 0
	}
	return d
}

// EagerRefreshThreshold returns createdAt + fraction*(expiresAt-createdAt),
// the instant after which a read of a still-fresh entry triggers a background
// refresh. ok is false when fraction is outside (0,1) or the lifetime is empty.
func EagerRefreshThreshold(createdAt, expiresAt time.Time, fraction float64) (at time.Time, ok bool) {
	if fraction <= 0 || fraction >= 1 {
		return time.Time{}, false
	}
	life := expiresAt.Sub(createdAt)
	if life <= 0 {
		return time.Time{}, false
	}
	return createdAt.Add(time.Duration(float64(life) * fraction)), true
}

// RetainUntil is the physical lifetime of an entry: how long an expired
// value is kept around as a fail-safe candidate.
func RetainUntil(expiresAt time.Time, failSafe bool, maxStale time.Duration) time.Time {
	if !failSafe || maxStale <= 0 {
		return expiresAt
	}
	return expiresAt.Add(maxStale)
}

// FailSafeWindow returns the end of the stale-serving window that opens at now.
func FailSafeWindow(now time.Time, maxStale time.Duration) time.Time {
	if maxStale <= 0 {
		return now
	}
	return now.Add(maxStale)
}

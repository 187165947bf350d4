package expiry

import (
	"testing"
	"time"
)

// EffectiveDuration must stay within [base-span/2, base+span/2] and never go negative.
func TestEffectiveDuration_Bounds(t *testing.T) {
	t.Parallel()

	cases := []struct{ base, span time.Duration }{
		{time.Minute, 30 * time.Second},
		{time.Second, 0},
		{100 * time.Millisecond, time.Second}, // span larger than base -> clamp
		{0, 10 * time.Millisecond},
		{5 * time.Minute, time.Nanosecond},
	}
	for _, tc := range cases {
		lo, hi := tc.base-tc.span/2, tc.base+tc.span/2
		if lo < 0 {
			lo = 0
		}
		for i := 0; i < 2_000; i++ {
			d := EffectiveDuration(tc.base, tc.span)
			if d < 0 {
				t.Fatalf("negative duration %v for base=%v span=%v", d, tc.base, tc.span)
			}
			if d < lo || d > hi {
				t.Fatalf("duration %v outside [%v, %v]", d, lo, hi)
			}
		}
	}
}

// Pin the random source to its extremes to check both edges exactly.
func TestEffectiveDuration_Extremes(t *testing.T) {
	t.Parallel()

	base, span := 10*time.Second, 4*time.Second
	low := effectiveDuration(base, span, func(int64) int64 { return 0 })
	high := effectiveDuration(base, span, func(n int64) int64 { return n - 1 })

	if low != 8*time.Second {
		t.Fatalf("low edge: want 8s, got %v", low)
	}
	if high != 12*time.Second {
		t.Fatalf("high edge: want 12s, got %v", high)
	}
}

func TestEagerRefreshThreshold(t *testing.T) {
	t.Parallel()

	created := time.Unix(1_000, 0)
	expires := created.Add(time.Minute)

	at, ok := EagerRefreshThreshold(created, expires, 0.8)
	if !ok {
		t.Fatal("0.8 must enable eager refresh")
	}
	if want := created.Add(48 * time.Second); !at.Equal(want) {
		t.Fatalf("threshold: want %v, got %v", want, at)
	}

	for _, f := range []float64{0, 1, -0.5, 1.5} {
		if _, ok := EagerRefreshThreshold(created, expires, f); ok {
			t.Fatalf("fraction %v must disable eager refresh", f)
		}
	}
	if _, ok := EagerRefreshThreshold(created, created, 0.5); ok {
		t.Fatal("empty lifetime must disable eager refresh")
	}
}

func TestRetainUntil(t *testing.T) {
	t.Parallel()

	exp := time.Unix(2_000, 0)
	if got := RetainUntil(exp, false, time.Hour); !got.Equal(exp) {
		t.Fatalf("fail-safe off: want %v, got %v", exp, got)
	}
	if got := RetainUntil(exp, true, time.Hour); !got.Equal(exp.Add(time.Hour)) {
		t.Fatalf("fail-safe on: want %v, got %v", exp.Add(time.Hour), got)
	}
	if got := FailSafeWindow(exp, 0); !got.Equal(exp) {
		t.Fatalf("zero window must end at now")
	}
}

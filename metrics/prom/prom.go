// Package prom exports cache signals as Prometheus metrics.
package prom

import (
	"github.com/IvanBrykalov/resilientcache/cache"
	"github.com/prometheus/client_golang/prometheus"
)

// Adapter implements cache.Metrics and exports Prometheus counters/gauges.
// Safe for concurrent use; all Prometheus metric types are goroutine-safe.
type Adapter struct {
	hits      prometheus.Counter
	misses    prometheus.Counter
	staleHits prometheus.Counter
	failSafe  prometheus.Counter
	refreshes *prometheus.CounterVec
	secErrors prometheus.Counter
	evicts    *prometheus.CounterVec
	sizeEnt   prometheus.Gauge
}

// New constructs a Prometheus metrics adapter.
//   - reg:          registry to register metrics with (nil => prometheus.DefaultRegisterer)
//   - ns, sub:      Prometheus namespace and subsystem
//   - constLabels:  static labels applied to all metrics (may be nil)
func New(reg prometheus.Registerer, ns, sub string, constLabels prometheus.Labels) *Adapter {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	opts := func(name, help string) prometheus.CounterOpts {
		return prometheus.CounterOpts{Namespace: ns, Subsystem: sub, Name: name, Help: help, ConstLabels: constLabels}
	}
	a := &Adapter{
		hits:      prometheus.NewCounter(opts("hits_total", "Fresh cache hits")),
		misses:    prometheus.NewCounter(opts("misses_total", "Cache misses that went to compute")),
		staleHits: prometheus.NewCounter(opts("stale_hits_total", "Stale values served inside the fail-safe throttle window")),
		failSafe:  prometheus.NewCounter(opts("failsafe_total", "Compute failures absorbed by a stale value")),
		secErrors: prometheus.NewCounter(opts("secondary_errors_total", "Failed secondary tier or codec operations")),
		refreshes: prometheus.NewCounterVec(opts("refresh_total", "Eager background refreshes by outcome"), []string{"outcome"}),
		evicts:    prometheus.NewCounterVec(opts("evictions_total", "Cache evictions by reason"), []string{"reason"}),
		sizeEnt: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   ns,
			Subsystem:   sub,
			Name:        "size_entries",
			Help:        "Number of resident entries, stale ones included",
			ConstLabels: constLabels,
		}),
	}
	reg.MustRegister(a.hits, a.misses, a.staleHits, a.failSafe, a.secErrors, a.refreshes, a.evicts, a.sizeEnt)
	return a
}

// Hit increments the hit counter.
func (a *Adapter) Hit() { a.hits.Inc() }

// Miss increments the miss counter.
func (a *Adapter) Miss() { a.misses.Inc() }

func (a *Adapter) StaleHit() { a.staleHits.Inc() }

func (a *Adapter) FailSafe() { a.failSafe.Inc() }

// Refresh counts an eager refresh with an outcome label.
func (a *Adapter) Refresh(o cache.RefreshOutcome) {
	a.refreshes.WithLabelValues(outcome(o)).Inc()
}

func (a *Adapter) SecondaryError() { a.secErrors.Inc() }

// Evict increments the eviction counter with a reason label.
func (a *Adapter) Evict(r cache.EvictReason) {
	a.evicts.WithLabelValues(reason(r)).Inc()
}

// Size updates the resident entries gauge.
func (a *Adapter) Size(entries int) {
	a.sizeEnt.Set(float64(entries))
}

// reason maps EvictReason to a stable label value.
func reason(r cache.EvictReason) string {
	switch r {
	case cache.EvictTTL:
		return "ttl"
	case cache.EvictCapacity:
		return "capacity"
	case cache.EvictTag:
		return "tag"
	default:
		return "policy"
	}
}

func outcome(o cache.RefreshOutcome) string {
	switch o {
	case cache.RefreshOK:
		return "ok"
	case cache.RefreshFailed:
		return "failed"
	default:
		return "dropped"
	}
}

// Compile-time check: ensure Adapter implements cache.Metrics.
var _ cache.Metrics = (*Adapter)(nil)

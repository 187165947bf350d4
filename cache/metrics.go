package cache

// NoopMetrics is a Metrics implementation that does nothing.
type NoopMetrics struct{}

func (NoopMetrics) Hit()                   {}
func (NoopMetrics) Miss()                  {}
func (NoopMetrics) StaleHit()              {}
func (NoopMetrics) FailSafe()              {}
func (NoopMetrics) Refresh(RefreshOutcome) {}
func (NoopMetrics) SecondaryError()        {}
func (NoopMetrics) Evict(EvictReason)      {}
func (NoopMetrics) Size(int)               {}

var _ Metrics = NoopMetrics{}

// Stats is a point-in-time copy of the cache's own counters.
type Stats struct {
	Hits      int64
	Misses    int64
	StaleHits int64
	Evictions int64
}

// HitRate returns fresh hits over all lookups, or 0 with no traffic.
func (s Stats) HitRate() float64 {
	total := s.Hits + s.Misses + s.StaleHits
	if total == 0 {
		return 0
	}
	return float64(s.Hits) / float64(total)
}

package cache

import (
	"github.com/ohtostado/duperscooper/internal/metrics"
	"github.com/ohtostado/duperscooper/internal/model"
)

// instrumented wraps a Backend, recording hit/miss counts on a process
// metrics handle around Get. Every other method delegates straight
// through to the wrapped Backend.
type instrumented struct {
	Backend
	metrics *metrics.Metrics
}

// Instrument wraps b so every Get call increments m's cache hit/miss
// counters. Returns b unchanged if either argument is nil.
func Instrument(b Backend, m *metrics.Metrics) Backend {
	if b == nil || m == nil {
		return b
	}
	return &instrumented{Backend: b, metrics: m}
}

func (i *instrumented) Get(hash string) (model.Fingerprint, bool, error) {
	fp, ok, err := i.Backend.Get(hash)
	if err == nil {
		if ok {
			i.metrics.CacheHits.Inc()
		} else {
			i.metrics.CacheMisses.Inc()
		}
	}
	return fp, ok, err
}

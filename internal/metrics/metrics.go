package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the process-wide counters and histograms duperscooper
// exposes. Registration happens once in NewMetrics; callers keep the
// returned handle rather than reaching back into the default registry.
type Metrics struct {
	CacheHits        prometheus.Counter
	CacheMisses      prometheus.Counter
	ScanErrors       *prometheus.CounterVec
	FilesScanned     prometheus.Counter
	GroupsFound      prometheus.Counter
	BytesStaged      prometheus.Counter
	FingerprintTime  prometheus.Histogram
	StagingItems     *prometheus.CounterVec
}

// NewMetrics creates and registers the duperscooper metric set on reg.
// Pass prometheus.NewRegistry() in tests to avoid colliding with the
// default global registry across package-level test runs.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		CacheHits: factory.NewCounter(prometheus.CounterOpts{
			Name: "duperscooper_cache_hits_total",
			Help: "Fingerprint cache hits.",
		}),
		CacheMisses: factory.NewCounter(prometheus.CounterOpts{
			Name: "duperscooper_cache_misses_total",
			Help: "Fingerprint cache misses.",
		}),
		ScanErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "duperscooper_scan_errors_total",
			Help: "Per-file scan errors by category.",
		}, []string{"category"}),
		FilesScanned: factory.NewCounter(prometheus.CounterOpts{
			Name: "duperscooper_files_scanned_total",
			Help: "Audio files discovered and processed.",
		}),
		GroupsFound: factory.NewCounter(prometheus.CounterOpts{
			Name: "duperscooper_groups_found_total",
			Help: "Duplicate groups found across all scans in this process.",
		}),
		BytesStaged: factory.NewCounter(prometheus.CounterOpts{
			Name: "duperscooper_bytes_staged_total",
			Help: "Total bytes moved into staging.",
		}),
		FingerprintTime: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "duperscooper_fingerprint_seconds",
			Help:    "Wall-clock time spent invoking the external fingerprinter per file.",
			Buckets: prometheus.DefBuckets,
		}),
		StagingItems: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "duperscooper_staging_items_total",
			Help: "Staging/restoration outcomes by result.",
		}, []string{"outcome"}),
	}
}

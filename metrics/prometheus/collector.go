// Package prometheus exports feed metrics to Prometheus.
package prometheus

import (
	"time"

	"github.com/hupe1980/mediapool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Collector is the Prometheus implementation of mediapool.MetricsCollector.
type Collector struct {
	cacheLookups   *prometheus.CounterVec
	fetches        *prometheus.CounterVec
	fetchAttempts  prometheus.Histogram
	fetchDuration  prometheus.Histogram
	fetchBytes     prometheus.Histogram
	evictions      prometheus.Counter
	evictedBytes   prometheus.Counter
	transitions    *prometheus.CounterVec
	degradedWrites prometheus.Counter
}

var _ mediapool.MetricsCollector = (*Collector)(nil)

// New creates a Collector and registers its metrics with reg.
// A nil reg uses prometheus.DefaultRegisterer.
func New(reg prometheus.Registerer) *Collector {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	return &Collector{
		cacheLookups: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "mediapool_cache_lookups_total",
				Help: "Total number of cache lookups by result",
			},
			[]string{"result"}, // "hit", "miss"
		),
		fetches: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "mediapool_upstream_fetches_total",
				Help: "Total number of upstream fetches by status",
			},
			[]string{"status"}, // "success", "error"
		),
		fetchAttempts: promauto.With(reg).NewHistogram(
			prometheus.HistogramOpts{
				Name:    "mediapool_upstream_fetch_attempts",
				Help:    "Number of attempts made per upstream fetch",
				Buckets: []float64{1, 2, 3, 5, 8},
			},
		),
		fetchDuration: promauto.With(reg).NewHistogram(
			prometheus.HistogramOpts{
				Name: "mediapool_upstream_fetch_duration_milliseconds",
				Help: "Duration of upstream fetches including retries in milliseconds",
				Buckets: []float64{
					5,    // 5ms - nearby CDN edge
					25,   // 25ms
					100,  // 100ms
					250,  // 250ms
					1000, // 1s
					2500, // 2.5s
					5000, // 5s - retries with backoff
					15000,
				},
			},
		),
		fetchBytes: promauto.With(reg).NewHistogram(
			prometheus.HistogramOpts{
				Name: "mediapool_upstream_fetch_bytes",
				Help: "Distribution of bytes fetched from upstream",
				Buckets: []float64{
					32768,    // 32KB - thumbnails
					262144,   // 256KB
					1048576,  // 1MB - typical prefetch
					4194304,  // 4MB
					16777216, // 16MB
					67108864, // 64MB - full clips
				},
			},
		),
		evictions: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Name: "mediapool_cache_evictions_total",
				Help: "Total number of cache entries evicted to stay under capacity",
			},
		),
		evictedBytes: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Name: "mediapool_cache_evicted_bytes_total",
				Help: "Total bytes evicted from the cache",
			},
		),
		transitions: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "mediapool_resource_transitions_total",
				Help: "Total number of resource state changes",
			},
			[]string{"from", "to"},
		),
		degradedWrites: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Name: "mediapool_cache_degraded_writes_total",
				Help: "Total number of cache writes kept in memory after a disk failure",
			},
		),
	}
}

// RecordCacheLookup implements mediapool.MetricsCollector.
func (c *Collector) RecordCacheLookup(hit bool) {
	if hit {
		c.cacheLookups.WithLabelValues("hit").Inc()
	} else {
		c.cacheLookups.WithLabelValues("miss").Inc()
	}
}

// RecordFetch implements mediapool.MetricsCollector.
func (c *Collector) RecordFetch(bytes int, attempts int, d time.Duration, err error) {
	c.fetchAttempts.Observe(float64(attempts))
	c.fetchDuration.Observe(float64(d.Microseconds()) / 1000.0)
	if err != nil {
		c.fetches.WithLabelValues("error").Inc()
		return
	}
	c.fetches.WithLabelValues("success").Inc()
	c.fetchBytes.Observe(float64(bytes))
}

// RecordEviction implements mediapool.MetricsCollector.
func (c *Collector) RecordEviction(bytes int64) {
	c.evictions.Inc()
	c.evictedBytes.Add(float64(bytes))
}

// RecordTransition implements mediapool.MetricsCollector.
func (c *Collector) RecordTransition(from, to string) {
	c.transitions.WithLabelValues(from, to).Inc()
}

// RecordDegradedWrite implements mediapool.MetricsCollector.
func (c *Collector) RecordDegradedWrite() {
	c.degradedWrites.Inc()
}

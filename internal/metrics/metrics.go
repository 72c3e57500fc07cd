// Package metrics exposes pipeline counters for operational diagnostics.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics bundles the pipeline's instrumentation. A nil *Metrics is a valid
// no-op so callers need no conditional wiring.
type Metrics struct {
	cacheHits     *prometheus.CounterVec
	cacheMisses   *prometheus.CounterVec
	fetchAttempts prometheus.Counter
	fetchFailures prometheus.Counter
	fetchDuration prometheus.Histogram
	extractions   *prometheus.CounterVec
}

// New registers the collectors on reg and returns the handle.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		cacheHits: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "docpipe_cache_hits_total",
			Help: "Cache hits by namespace.",
		}, []string{"namespace"}),
		cacheMisses: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "docpipe_cache_misses_total",
			Help: "Cache misses by namespace.",
		}, []string{"namespace"}),
		fetchAttempts: factory.NewCounter(prometheus.CounterOpts{
			Name: "docpipe_fetch_attempts_total",
			Help: "Network fetch attempts, including retries.",
		}),
		fetchFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "docpipe_fetch_failures_total",
			Help: "Fetches that failed after exhausting retries.",
		}),
		fetchDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "docpipe_fetch_duration_seconds",
			Help:    "Wall-clock duration of successful fetches.",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 10),
		}),
		extractions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "docpipe_extractions_total",
			Help: "Extraction outcomes by winning method, including failed.",
		}, []string{"method"}),
	}
}

func (m *Metrics) CacheHit(namespace string) {
	if m != nil {
		m.cacheHits.WithLabelValues(namespace).Inc()
	}
}

func (m *Metrics) CacheMiss(namespace string) {
	if m != nil {
		m.cacheMisses.WithLabelValues(namespace).Inc()
	}
}

func (m *Metrics) FetchAttempt() {
	if m != nil {
		m.fetchAttempts.Inc()
	}
}

func (m *Metrics) FetchFailure() {
	if m != nil {
		m.fetchFailures.Inc()
	}
}

func (m *Metrics) FetchDone(d time.Duration) {
	if m != nil {
		m.fetchDuration.Observe(d.Seconds())
	}
}

func (m *Metrics) Extraction(method string) {
	if m != nil {
		m.extractions.WithLabelValues(method).Inc()
	}
}

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	CacheHits      *prometheus.CounterVec
	CacheMisses    *prometheus.CounterVec
	RegistryCalls  *prometheus.CounterVec
	FallbackTotal  *prometheus.CounterVec
	LookupDuration *prometheus.HistogramVec
}

func New() *Metrics {
	return &Metrics{
		CacheHits: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "veriflow_validation_cache_hits_total",
			Help: "Total number of validation lookups served from cache",
		}, []string{"kind"}),
		CacheMisses: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "veriflow_validation_cache_misses_total",
			Help: "Total number of validation lookups that missed the cache",
		}, []string{"kind"}),
		RegistryCalls: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "veriflow_validation_registry_calls_total",
			Help: "Total number of calls made to external registries",
		}, []string{"kind"}),
		FallbackTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "veriflow_validation_fallback_results_total",
			Help: "Total number of degraded fallback results returned",
		}, []string{"kind", "category"}),
		LookupDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "veriflow_validation_lookup_duration_seconds",
			Help:    "Latency of validation lookups",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 2.5, 5},
		}, []string{"kind", "source"}),
	}
}

func (m *Metrics) RecordCacheHit(kind string) {
	if m == nil {
		return
	}
	m.CacheHits.WithLabelValues(kind).Inc()
}

func (m *Metrics) RecordCacheMiss(kind string) {
	if m == nil {
		return
	}
	m.CacheMisses.WithLabelValues(kind).Inc()
}

func (m *Metrics) RecordRegistryCall(kind string) {
	if m == nil {
		return
	}
	m.RegistryCalls.WithLabelValues(kind).Inc()
}

func (m *Metrics) RecordFallback(kind, category string) {
	if m == nil {
		return
	}
	m.FallbackTotal.WithLabelValues(kind, category).Inc()
}

func (m *Metrics) ObserveLookupDuration(kind, source string, seconds float64) {
	if m == nil {
		return
	}
	m.LookupDuration.WithLabelValues(kind, source).Observe(seconds)
}

package obs

import (
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"accessdash/internal/cache"
)

type CacheStatsSource interface {
	Stats() cache.Stats
}

type Metrics struct {
	registry          *prometheus.Registry
	requests          *prometheus.CounterVec
	requestDuration   *prometheus.HistogramVec
	cacheRequests     *prometheus.CounterVec
	supplierFailures  *prometheus.CounterVec
	coalesceBreakaway prometheus.Counter
	storeReloads      *prometheus.CounterVec
	insights          *prometheus.CounterVec
	cacheOnce         sync.Once
}

func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "accessdash_http_requests_total",
		Help: "Total API requests",
	}, []string{"route", "status_class"})

	requestDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "accessdash_http_request_duration_seconds",
		Help:    "API request duration",
		Buckets: prometheus.DefBuckets,
	}, []string{"route"})

	cacheRequests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "accessdash_cache_requests_total",
		Help: "Total cache lookups made by API routes",
	}, []string{"route", "status"})

	supplierFailures := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "accessdash_cache_supplier_failures_total",
		Help: "Total failed cache fills",
	}, []string{"route"})

	coalesceBreakaway := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "accessdash_cache_coalesce_breakaway_total",
		Help: "Total cache fills that ran outside a shared flight",
	})

	storeReloads := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "accessdash_store_reloads_total",
		Help: "Total seed file reloads",
	}, []string{"result"})

	insights := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "accessdash_insights_requests_total",
		Help: "Total insight generations",
	}, []string{"result"})

	registry.MustRegister(requests, requestDuration, cacheRequests, supplierFailures, coalesceBreakaway, storeReloads, insights)

	return &Metrics{
		registry:          registry,
		requests:          requests,
		requestDuration:   requestDuration,
		cacheRequests:     cacheRequests,
		supplierFailures:  supplierFailures,
		coalesceBreakaway: coalesceBreakaway,
		storeReloads:      storeReloads,
		insights:          insights,
	}
}

// RegisterCache exports the cache's own counters. Only the first call has
// an effect.
func (m *Metrics) RegisterCache(source CacheStatsSource) {
	if m == nil || source == nil {
		return
	}
	m.cacheOnce.Do(func() {
		m.registry.MustRegister(
			prometheus.NewCounterFunc(prometheus.CounterOpts{
				Name: "accessdash_cache_hits_total",
				Help: "Cache gets that found a live entry",
			}, func() float64 { return float64(source.Stats().Hits) }),
			prometheus.NewCounterFunc(prometheus.CounterOpts{
				Name: "accessdash_cache_misses_total",
				Help: "Cache gets that found nothing or an expired entry",
			}, func() float64 { return float64(source.Stats().Misses) }),
			prometheus.NewGaugeFunc(prometheus.GaugeOpts{
				Name: "accessdash_cache_entries",
				Help: "Resident cache entries, including expired ones not yet accessed",
			}, func() float64 { return float64(source.Stats().Size) }),
			prometheus.NewGaugeFunc(prometheus.GaugeOpts{
				Name: "accessdash_cache_hit_ratio",
				Help: "Cache hits over total gets",
			}, func() float64 { return source.Stats().HitRate }),
		)
	})
}

func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) ObserveRequest(route string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	route = defaultString(route, "unmatched")
	m.requests.WithLabelValues(route, statusClass(status)).Inc()
	m.requestDuration.WithLabelValues(route).Observe(duration.Seconds())
}

func (m *Metrics) RecordCacheRequest(route string, status string) {
	if m == nil {
		return
	}
	m.cacheRequests.WithLabelValues(defaultString(route, "unmatched"), defaultString(status, "unknown")).Inc()
}

func (m *Metrics) RecordSupplierFailure(route string) {
	if m == nil {
		return
	}
	m.supplierFailures.WithLabelValues(defaultString(route, "unmatched")).Inc()
}

func (m *Metrics) RecordCoalesceBreakaway(string) {
	if m == nil {
		return
	}
	m.coalesceBreakaway.Inc()
}

func (m *Metrics) RecordStoreReload(err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.storeReloads.WithLabelValues(result).Inc()
}

func (m *Metrics) RecordInsights(result string) {
	if m == nil {
		return
	}
	m.insights.WithLabelValues(defaultString(result, "unknown")).Inc()
}

func statusClass(status int) string {
	if status <= 0 {
		return "unknown"
	}
	class := status / 100
	return fmt.Sprintf("%dxx", class)
}

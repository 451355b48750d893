// Package metrics exposes the service's Prometheus collectors: HTTP traffic,
// cache effectiveness, provider calls and migration outcomes.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/SuzumiyaAoba/ees-sub005/pkg/types"
)

const namespace = "ees"

var (
	// HTTPRequests counts requests by method, route pattern and status.
	HTTPRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	// HTTPLatency tracks request latency by method and route pattern.
	HTTPLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	// CacheHits counts cache hits by namespace.
	CacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_hits_total",
			Help:      "Total cache hits",
		},
		[]string{"namespace"},
	)

	// CacheMisses counts cache misses by namespace.
	CacheMisses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_misses_total",
			Help:      "Total cache misses",
		},
		[]string{"namespace"},
	)

	// CacheEvictions counts entries the cache removed on its own, by
	// namespace and reason ("lru" or "expired").
	CacheEvictions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_evictions_total",
			Help:      "Total cache evictions",
		},
		[]string{"namespace", "reason"},
	)

	// ProviderRequests counts embedding backend calls by provider, model and
	// outcome ("ok" or a provider error kind).
	ProviderRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "provider_requests_total",
			Help:      "Total embedding provider requests",
		},
		[]string{"provider", "model", "status"},
	)

	// ProviderLatency tracks embedding backend call latency. Buckets top out
	// near the per-call timeout.
	ProviderLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "provider_request_duration_seconds",
			Help:      "Embedding provider request latency in seconds",
			Buckets:   []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		},
		[]string{"provider", "model"},
	)

	// MigrationRecords counts migrated records by outcome.
	MigrationRecords = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "migration_records_total",
			Help:      "Total records processed by model migrations",
		},
		[]string{"status"},
	)
)

// RecordCacheLookup records one cache probe.
func RecordCacheLookup(ns string, hit bool) {
	if hit {
		CacheHits.WithLabelValues(ns).Inc()
	} else {
		CacheMisses.WithLabelValues(ns).Inc()
	}
}

// RecordCacheEviction records an eviction. Shaped to plug into
// cache.Cache.OnEvict directly.
func RecordCacheEviction(ns, reason string) {
	CacheEvictions.WithLabelValues(ns, reason).Inc()
}

// RecordProviderRequest records one embedding backend call.
func RecordProviderRequest(provider, model string, err error, latency time.Duration) {
	status := "ok"
	if err != nil {
		status = "error"
		if pe := types.ProviderErrorOf(err); pe != nil {
			status = string(pe.Kind)
		}
	}
	ProviderRequests.WithLabelValues(provider, model, status).Inc()
	ProviderLatency.WithLabelValues(provider, model).Observe(latency.Seconds())
}

// RecordMigration records the outcome counts of a finished migration run.
func RecordMigration(result *types.MigrationResult) {
	if result == nil {
		return
	}
	if result.Successful > 0 {
		MigrationRecords.WithLabelValues("success").Add(float64(result.Successful))
	}
	if result.Failed > 0 {
		MigrationRecords.WithLabelValues("error").Add(float64(result.Failed))
	}
}

// statusRecorder wraps http.ResponseWriter to capture the status code.
type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.statusCode = code
	r.ResponseWriter.WriteHeader(code)
}

// Middleware records request count and latency. Mounted inside a chi router
// it labels by route pattern so path parameters don't explode cardinality.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		recorder := &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(recorder, r)

		route := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				route = pattern
			}
		}

		HTTPRequests.WithLabelValues(r.Method, route, strconv.Itoa(recorder.statusCode)).Inc()
		HTTPLatency.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}

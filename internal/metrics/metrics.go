// Package metrics exposes Prometheus collectors for the dashboard service.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests, labeled by method and code.",
		},
		[]string{"method", "code"},
	)

	httpRequestDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Histogram of HTTP request latencies, labeled by method and route.",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
		},
		[]string{"method", "route"},
	)

	httpInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "http_requests_in_flight",
			Help: "HTTP requests currently being served.",
		},
	)

	httpResponseSizeBytes = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_response_size_bytes",
			Help:    "Response body sizes, labeled by route.",
			Buckets: prometheus.ExponentialBuckets(256, 4, 7),
		},
		[]string{"route"},
	)

	cacheLookupsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dashboard_cache_lookups_total",
			Help: "Cache lookups, labeled by tier and result (hit/miss).",
		},
		[]string{"tier", "result"},
	)

	cacheErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dashboard_cache_errors_total",
			Help: "Cache tier failures that were degraded, labeled by tier and operation.",
		},
		[]string{"tier", "op"},
	)

	etlRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dashboard_etl_runs_total",
			Help: "ETL runs, labeled by status.",
		},
		[]string{"status"},
	)

	etlRecordsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dashboard_etl_records_total",
			Help: "Records seen by the ETL pipeline, labeled by outcome (written/rejected/coerced).",
		},
		[]string{"outcome"},
	)

	etlRunDurationSeconds = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "dashboard_etl_run_duration_seconds",
			Help:    "Duration of ETL runs.",
			Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60, 120},
		},
	)

	upstreamFetchAttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dashboard_upstream_fetch_attempts_total",
			Help: "Outbound dataset fetch attempts, labeled by outcome.",
		},
		[]string{"outcome"},
	)
)

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}

// ObserveHTTPResponseSize records the body size written for a route.
func ObserveHTTPResponseSize(route string, bytes int) {
	httpResponseSizeBytes.WithLabelValues(route).Observe(float64(bytes))
}

// ObserveCacheLookup counts a hit or miss on a cache tier.
func ObserveCacheLookup(tier string, hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	cacheLookupsTotal.WithLabelValues(tier, result).Inc()
}

// ObserveCacheError counts a swallowed cache tier failure.
func ObserveCacheError(tier, op string) {
	cacheErrorsTotal.WithLabelValues(tier, op).Inc()
}

// ObserveETLRun records one pipeline run.
func ObserveETLRun(status string, duration time.Duration) {
	etlRunsTotal.WithLabelValues(status).Inc()
	etlRunDurationSeconds.Observe(duration.Seconds())
}

// ObserveETLRecords adds n records under the given outcome.
func ObserveETLRecords(outcome string, n int) {
	if n <= 0 {
		return
	}
	etlRecordsTotal.WithLabelValues(outcome).Add(float64(n))
}

// ObserveUpstreamAttempt counts one outbound fetch attempt.
func ObserveUpstreamAttempt(outcome string) {
	upstreamFetchAttemptsTotal.WithLabelValues(outcome).Inc()
}

package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	BuildInfo = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "stakewatch_indexer_build_info",
			Help: "Build information of the staking indexer",
		},
		[]string{"version", "commit", "date"},
	)

	CycleTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stakewatch_indexer_cycle_total",
			Help: "Total number of reconciliation cycles by outcome",
		},
		[]string{"status"},
	)

	CycleDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "stakewatch_indexer_cycle_duration_seconds",
			Help:    "Duration of reconciliation cycles",
			Buckets: prometheus.ExponentialBuckets(0.5, 2, 12), // 0.5s to ~17 minutes
		},
	)

	CycleInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "stakewatch_indexer_cycle_in_flight",
			Help: "1 while a reconciliation cycle is running",
		},
	)

	CycleStuckTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "stakewatch_indexer_cycle_stuck_total",
			Help: "Cycles that exceeded the stuck-cycle warning threshold",
		},
	)

	ValidatorsProcessedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stakewatch_indexer_validators_processed_total",
			Help: "Validators processed by the per-validator pipeline",
		},
		[]string{"status"},
	)

	CacheUpdatesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stakewatch_indexer_cache_updates_total",
			Help: "Cache entry replacements by key",
		},
		[]string{"key"},
	)

	ChainRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stakewatch_indexer_chain_requests_total",
			Help: "Requests made to upstream chain and 1KV gateways",
		},
		[]string{"method", "status"},
	)

	ChainRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "stakewatch_indexer_chain_request_duration_seconds",
			Help:    "Duration of upstream gateway requests",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12), // 10ms to ~41s
		},
		[]string{"method"},
	)

	DatabaseQueriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stakewatch_indexer_database_queries_total",
			Help: "Total number of database queries",
		},
		[]string{"operation", "status"},
	)

	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stakewatch_indexer_http_requests_total",
			Help: "Total number of HTTP requests served",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "stakewatch_indexer_http_request_duration_seconds",
			Help:    "Duration of HTTP requests served",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)
)

// Middleware records request counts and durations by route pattern.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		path := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			path = rctx.RoutePattern()
		}
		HTTPRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(ww.Status())).Inc()
		HTTPRequestDuration.WithLabelValues(r.Method, path).Observe(time.Since(start).Seconds())
	})
}

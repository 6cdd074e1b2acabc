// Package metrics provides centralized Prometheus metrics for the application.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// HTTP metrics track inbound callback traffic
var (
	// HTTPRequestsTotal counts total HTTP requests by method, path, and status
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	// HTTPRequestDuration measures HTTP request duration in seconds
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)

	// HTTPRequestSize measures HTTP request body size in bytes
	HTTPRequestSize = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_size_bytes",
			Help:    "HTTP request size in bytes",
			Buckets: prometheus.ExponentialBuckets(100, 10, 8),
		},
		[]string{"method", "path"},
	)
)

// Business metrics track the review sync pipeline
var (
	// SyncRunsTotal counts per-application sync runs by strategy and outcome
	SyncRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "review_sync_runs_total",
			Help: "Total number of per-application review sync runs",
		},
		[]string{"app_id", "strategy", "status"}, // status: success|failure
	)

	// SyncDuration measures time to sync one application
	SyncDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "review_sync_duration_seconds",
			Help:    "Time taken to sync the reviews of one application",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
		},
		[]string{"app_id"},
	)

	// SyncErrors counts aborted runs by the pipeline step that failed
	SyncErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "review_sync_errors_total",
			Help: "Total number of aborted review sync runs",
		},
		[]string{"app_id", "step"},
	)

	// ReviewsProcessedTotal counts reviews by pipeline outcome
	ReviewsProcessedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reviews_processed_total",
			Help: "Total number of reviews processed by outcome",
		},
		[]string{"app_id", "outcome"}, // outcome: fetched|new|updated|pushed|skipped|invalid
	)

	// LastSyncTimestamp is the unix time of the last successful sync per application
	LastSyncTimestamp = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "review_sync_last_success_timestamp_seconds",
			Help: "Unix timestamp of the last successful sync",
		},
		[]string{"app_id"},
	)

	// SyncAllDuration measures a full multi-application cycle
	SyncAllDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "review_sync_cycle_duration_seconds",
			Help:    "Time taken to sync all configured applications",
			Buckets: prometheus.ExponentialBuckets(0.5, 2, 12),
		},
	)

	// SyncAppsFailed is the number of applications that failed in the last cycle
	SyncAppsFailed = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "review_sync_cycle_failed_apps",
			Help: "Number of applications that failed in the last sync cycle",
		},
	)
)

// Database metrics track database performance
var (
	// DBQueryDuration measures database query duration
	DBQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "db_query_duration_seconds",
			Help:    "Database query duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 10),
		},
		[]string{"operation"},
	)

	// DBConnectionsActive tracks active database connections
	DBConnectionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "db_connections_active",
			Help: "Number of active database connections",
		},
	)

	// DBConnectionsIdle tracks idle database connections
	DBConnectionsIdle = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "db_connections_idle",
			Help: "Number of idle database connections",
		},
	)
)

// RecordHTTPRequest records an HTTP request with its metadata
func RecordHTTPRequest(method, path, status string, duration time.Duration, requestSize int) {
	HTTPRequestsTotal.WithLabelValues(method, path, status).Inc()
	HTTPRequestDuration.WithLabelValues(method, path, status).Observe(duration.Seconds())

	if requestSize > 0 {
		HTTPRequestSize.WithLabelValues(method, path).Observe(float64(requestSize))
	}
}

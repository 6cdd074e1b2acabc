package appstore

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	requestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "appstore_requests_total",
			Help: "Total number of App Store Connect API calls",
		},
		[]string{"operation", "status"}, // status: success|error|unauthorized|circuit_breaker_open
	)

	requestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "appstore_request_duration_seconds",
			Help:    "Duration of App Store Connect API operations including retries",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"operation"},
	)

	reviewsFetched = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "appstore_reviews_fetched_total",
			Help: "Total number of reviews fetched from App Store Connect",
		},
		[]string{"app_id"},
	)
)

func recordRequest(operation, status string, seconds float64) {
	requestsTotal.WithLabelValues(operation, status).Inc()
	requestDuration.WithLabelValues(operation).Observe(seconds)
}

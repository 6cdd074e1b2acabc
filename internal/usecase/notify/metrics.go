package notify

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus metrics for review announcements
var (
	// notificationRenderedTotal tracks rendered cards per kind
	notificationRenderedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notification_rendered_total",
			Help: "Total number of review cards rendered",
		},
		[]string{"kind", "status"}, // status: success|failure
	)

	// notificationPushedTotal tracks messages handed to the connection mode
	notificationPushedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notification_pushed_total",
			Help: "Total number of notifications pushed to the connection mode",
		},
		[]string{"kind"},
	)

	// notificationPushErrorsTotal tracks pushes the connection mode refused
	notificationPushErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notification_push_errors_total",
			Help: "Total number of rejected notification pushes",
		},
		[]string{"kind"},
	)
)

// RecordRendered records the outcome of rendering one card.
//
// Parameters:
//   - kind: The announcement kind (new, historical, updated, reply)
//   - ok: Whether rendering succeeded
func RecordRendered(kind string, ok bool) {
	status := "success"
	if !ok {
		status = "failure"
	}
	notificationRenderedTotal.WithLabelValues(kind, status).Inc()
}

// RecordPushed records n messages accepted by the connection mode.
func RecordPushed(kind string, n int) {
	notificationPushedTotal.WithLabelValues(kind).Add(float64(n))
}

// RecordPushError records a push rejected by the connection mode.
func RecordPushError(kind string) {
	notificationPushErrorsTotal.WithLabelValues(kind).Inc()
}

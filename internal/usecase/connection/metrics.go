package connection

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// connectionUp is 1 while the mode reports connected
	connectionUp = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "connection_up",
			Help: "Whether the connection mode is connected (1) or not (0)",
		},
		[]string{"mode"},
	)

	connectionErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "connection_errors_total",
			Help: "Total number of transport errors observed by the connection mode",
		},
		[]string{"mode"},
	)

	connectionReconnectsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "connection_reconnect_attempts_total",
			Help: "Total number of scheduled reconnect attempts",
		},
		[]string{"mode"},
	)

	connectionReconnectExhaustedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "connection_reconnect_exhausted_total",
			Help: "Total number of times reconnect attempts were exhausted",
		},
		[]string{"mode"},
	)

	connectionMessagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "connection_messages_total",
			Help: "Total number of messages delivered or accounted by the connection mode",
		},
		[]string{"mode", "kind"},
	)

	connectionDedupSkippedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "connection_dedup_skipped_total",
			Help: "Total number of messages skipped because their content was already delivered",
		},
		[]string{"mode"},
	)

	connectionUnhandledEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "connection_unhandled_events_total",
			Help: "Total number of inbound events with no registered handler",
		},
		[]string{"mode", "kind"},
	)
)

func recordConnected(mode string, up bool) {
	v := 0.0
	if up {
		v = 1
	}
	connectionUp.WithLabelValues(mode).Set(v)
}

func recordError(mode string) {
	connectionErrorsTotal.WithLabelValues(mode).Inc()
}

func recordReconnectAttempt(mode string) {
	connectionReconnectsTotal.WithLabelValues(mode).Inc()
}

func recordReconnectExhausted(mode string) {
	connectionReconnectExhaustedTotal.WithLabelValues(mode).Inc()
}

func recordMessage(mode, kind string) {
	connectionMessagesTotal.WithLabelValues(mode, kind).Inc()
}

func recordDedupSkipped(mode string) {
	connectionDedupSkippedTotal.WithLabelValues(mode).Inc()
}

func recordUnhandledEvent(mode string, kind EventKind) {
	connectionUnhandledEventsTotal.WithLabelValues(mode, kind.String()).Inc()
}

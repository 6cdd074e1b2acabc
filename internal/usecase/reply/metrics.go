package reply

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	replySubmissionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reply_submissions_total",
			Help: "Total number of developer replies submitted from chat",
		},
		[]string{"source", "status"}, // source: card|command|api, status: success|invalid|not_found|error
	)

	replyDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "reply_round_trip_duration_seconds",
			Help:    "Duration of the reply round-trip from chat to marketplace and back",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
		},
	)
)

func recordSubmission(source, status string) {
	replySubmissionsTotal.WithLabelValues(source, status).Inc()
}

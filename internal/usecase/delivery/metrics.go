package delivery

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// queueSize tracks buffered tasks per queue
	queueSize = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "delivery_queue_size",
			Help: "Number of notification tasks waiting in the delivery queue",
		},
		[]string{"queue"},
	)

	// tasksTotal tracks task outcomes
	tasksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "delivery_tasks_total",
			Help: "Total number of delivery task outcomes",
		},
		[]string{"queue", "status"}, // status: processed|retried|dropped
	)

	// flushDuration tracks batch processing time
	flushDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "delivery_flush_duration_seconds",
			Help:    "Time spent processing one delivery batch",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10},
		},
		[]string{"queue", "status"}, // status: success|failure
	)
)

func recordQueueSize(queue string, size int) {
	queueSize.WithLabelValues(queue).Set(float64(size))
}

func recordTasks(queue, status string, n int) {
	if n == 0 {
		return
	}
	tasksTotal.WithLabelValues(queue, status).Add(float64(n))
}

func recordFlush(queue string, d time.Duration, err error) {
	status := "success"
	if err != nil {
		status = "failure"
	}
	flushDuration.WithLabelValues(queue, status).Observe(d.Seconds())
}

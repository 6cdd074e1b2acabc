package worker

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"protalk/internal/pkg/config"
)

// WorkerMetrics tracks scheduled sync jobs plus the worker's config metrics.
type WorkerMetrics struct {
	*config.ConfigMetrics

	// JobRunsTotal counts scheduled sync jobs by status (success/partial/failure).
	JobRunsTotal *prometheus.CounterVec

	JobDurationSeconds prometheus.Histogram

	JobReviewsProcessedTotal prometheus.Counter

	JobLastSuccessTimestamp prometheus.Gauge
}

// NewWorkerMetrics registers the worker metrics with the default registry.
// Call it once per process.
func NewWorkerMetrics() *WorkerMetrics {
	return NewWorkerMetricsWithRegistry(prometheus.DefaultRegisterer)
}

// NewWorkerMetricsWithRegistry registers the worker metrics with reg.
func NewWorkerMetricsWithRegistry(reg prometheus.Registerer) *WorkerMetrics {
	f := promauto.With(reg)
	return &WorkerMetrics{
		ConfigMetrics: config.NewConfigMetricsWithRegistry(reg, "worker"),

		JobRunsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "worker_sync_job_runs_total",
			Help: "Total number of scheduled sync jobs by status",
		}, []string{"status"}),

		JobDurationSeconds: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "worker_sync_job_duration_seconds",
			Help:    "Duration of one scheduled sync job over all apps",
			Buckets: []float64{1, 5, 15, 30, 60, 180, 600, 1800},
		}),

		JobReviewsProcessedTotal: f.NewCounter(prometheus.CounterOpts{
			Name: "worker_sync_job_reviews_processed_total",
			Help: "Total number of reviews fetched across all sync jobs",
		}),

		JobLastSuccessTimestamp: f.NewGauge(prometheus.GaugeOpts{
			Name: "worker_sync_job_last_success_timestamp",
			Help: "Unix timestamp of the last sync job in which every app succeeded",
		}),
	}
}

func (m *WorkerMetrics) RecordJobRun(status string) {
	m.JobRunsTotal.WithLabelValues(status).Inc()
}

func (m *WorkerMetrics) RecordJobDuration(seconds float64) {
	m.JobDurationSeconds.Observe(seconds)
}

func (m *WorkerMetrics) RecordReviewsProcessed(count int) {
	if count <= 0 {
		return
	}
	m.JobReviewsProcessedTotal.Add(float64(count))
}

func (m *WorkerMetrics) RecordLastSuccess() {
	m.JobLastSuccessTimestamp.SetToCurrentTime()
}

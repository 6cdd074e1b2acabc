package metrics

import (
	"time"
)

// Review outcomes reported by RecordReviews.
const (
	OutcomeFetched = "fetched"
	OutcomeNew     = "new"
	OutcomeUpdated = "updated"
	OutcomePushed  = "pushed"
	OutcomeSkipped = "skipped"
	OutcomeInvalid = "invalid"
)

// RecordSyncRun records the end of one per-application sync run.
// A successful run also moves the application's last-success timestamp.
func RecordSyncRun(appID, strategy string, success bool, duration time.Duration) {
	status := "success"
	if !success {
		status = "failure"
	}
	SyncRunsTotal.WithLabelValues(appID, strategy, status).Inc()
	SyncDuration.WithLabelValues(appID).Observe(duration.Seconds())
	if success {
		LastSyncTimestamp.WithLabelValues(appID).Set(float64(time.Now().Unix()))
	}
}

// RecordSyncError records an aborted run. Step names the failed pipeline step
// (fetch, load, persist, deliver, checkpoint).
func RecordSyncError(appID, step string) {
	SyncErrors.WithLabelValues(appID, step).Inc()
}

// RecordReviews adds count reviews with the given outcome.
// Zero counts are skipped so idle applications do not create series.
func RecordReviews(appID, outcome string, count int) {
	if count <= 0 {
		return
	}
	ReviewsProcessedTotal.WithLabelValues(appID, outcome).Add(float64(count))
}

// RecordSyncCycle records a full SyncAllApps cycle.
//
// Parameters:
//   - duration: Wall time of the cycle
//   - failedApps: Number of applications whose run was aborted
func RecordSyncCycle(duration time.Duration, failedApps int) {
	SyncAllDuration.Observe(duration.Seconds())
	SyncAppsFailed.Set(float64(failedApps))
}

// RecordDBQuery records the duration of a database query operation.
// Operation should describe the query type (e.g., "upsert_reviews", "get_existing_ids").
func RecordDBQuery(operation string, duration time.Duration) {
	DBQueryDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// UpdateDBConnectionStats updates database connection pool statistics.
func UpdateDBConnectionStats(active, idle int) {
	DBConnectionsActive.Set(float64(active))
	DBConnectionsIdle.Set(float64(idle))
}

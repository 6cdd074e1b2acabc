package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestRecordSyncRun(t *testing.T) {
	tests := []struct {
		name    string
		appID   string
		success bool
		status  string
	}{
		{name: "success", appID: "metrics-app-1", success: true, status: "success"},
		{name: "failure", appID: "metrics-app-2", success: false, status: "failure"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			before := testutil.ToFloat64(SyncRunsTotal.WithLabelValues(tt.appID, "smart", tt.status))

			RecordSyncRun(tt.appID, "smart", tt.success, 250*time.Millisecond)

			after := testutil.ToFloat64(SyncRunsTotal.WithLabelValues(tt.appID, "smart", tt.status))
			assert.Equal(t, before+1, after)
		})
	}
}

func TestRecordSyncRun_SetsLastSuccessOnlyOnSuccess(t *testing.T) {
	RecordSyncRun("metrics-app-3", "baseline", false, time.Second)
	assert.Zero(t, testutil.ToFloat64(LastSyncTimestamp.WithLabelValues("metrics-app-3")))

	RecordSyncRun("metrics-app-3", "baseline", true, time.Second)
	assert.InDelta(t, float64(time.Now().Unix()), testutil.ToFloat64(LastSyncTimestamp.WithLabelValues("metrics-app-3")), 5)
}

func TestRecordReviews(t *testing.T) {
	counter := ReviewsProcessedTotal.WithLabelValues("metrics-app-4", OutcomeNew)
	before := testutil.ToFloat64(counter)

	RecordReviews("metrics-app-4", OutcomeNew, 3)
	RecordReviews("metrics-app-4", OutcomeNew, 0)
	RecordReviews("metrics-app-4", OutcomeNew, -1)

	assert.Equal(t, before+3, testutil.ToFloat64(counter))
}

func TestRecordSyncError(t *testing.T) {
	counter := SyncErrors.WithLabelValues("metrics-app-5", "fetch")
	before := testutil.ToFloat64(counter)

	RecordSyncError("metrics-app-5", "fetch")

	assert.Equal(t, before+1, testutil.ToFloat64(counter))
}

func TestRecordSyncCycle(t *testing.T) {
	assert.NotPanics(t, func() {
		RecordSyncCycle(3*time.Second, 2)
	})
	assert.Equal(t, float64(2), testutil.ToFloat64(SyncAppsFailed))
}

func TestDBMetrics(t *testing.T) {
	assert.NotPanics(t, func() {
		RecordDBQuery("upsert_reviews", 15*time.Millisecond)
	})

	UpdateDBConnectionStats(4, 6)

	assert.Equal(t, float64(4), testutil.ToFloat64(DBConnectionsActive))
	assert.Equal(t, float64(6), testutil.ToFloat64(DBConnectionsIdle))
}

func TestRecordHTTPRequest(t *testing.T) {
	counter := HTTPRequestsTotal.WithLabelValues("POST", "/callback/event", "200")
	before := testutil.ToFloat64(counter)

	RecordHTTPRequest("POST", "/callback/event", "200", 10*time.Millisecond, 512)
	RecordHTTPRequest("POST", "/callback/event", "200", 10*time.Millisecond, 0)

	assert.Equal(t, before+2, testutil.ToFloat64(counter))
}

// Package slo exposes the worker's service level indicators next to their targets.
//
// Indicators:
//   - sync success: share of apps whose last sync cycle succeeded
//   - delivery success: share of queued notifications delivered rather than dropped
//
// Alert on the gauges falling below the targets; the targets are also
// exported so dashboards need not hard-code them.
package slo

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	// SyncSuccessSLO is the target ratio of apps synced successfully per cycle.
	SyncSuccessSLO = 0.99

	// DeliverySuccessSLO is the target ratio of notifications delivered.
	DeliverySuccessSLO = 0.999
)

var (
	SLOSyncSuccess = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "slo_sync_success_ratio",
			Help: "Ratio of apps synced successfully in the last cycle (0-1), target: 0.99",
		},
	)

	SLODeliverySuccess = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "slo_delivery_success_ratio",
			Help: "Ratio of notifications delivered vs dropped since start (0-1), target: 0.999",
		},
	)

	SLOTarget = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "slo_target_ratio",
			Help: "Target value of each service level objective",
		},
		[]string{"slo"},
	)
)

func init() {
	SLOTarget.WithLabelValues("sync_success").Set(SyncSuccessSLO)
	SLOTarget.WithLabelValues("delivery_success").Set(DeliverySuccessSLO)
}

// RecordSyncCycle updates the sync success ratio. A cycle without apps is ignored.
func RecordSyncCycle(succeeded, total int) {
	if total <= 0 {
		return
	}
	SLOSyncSuccess.Set(ratio(int64(succeeded), int64(total)))
}

// RecordDelivery updates the delivery ratio from cumulative queue counters.
// Nothing is recorded before the first delivery outcome.
func RecordDelivery(processed, dropped int64) {
	total := processed + dropped
	if total <= 0 {
		return
	}
	SLODeliverySuccess.Set(ratio(processed, total))
}

func ratio(n, total int64) float64 {
	return float64(n) / float64(total)
}

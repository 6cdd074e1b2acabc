// Package metrics provides Prometheus metrics registry and recording utilities.
//
// This package centralizes the application-wide metrics:
//   - Inbound callback HTTP metrics (duration, count, size)
//   - Review sync metrics (runs, per-outcome review counts, cycle duration)
//   - Database query and pool metrics
//
// Component-local metrics (delivery queue, connection mode, App Store client)
// live next to their component in a metrics.go file.
//
// All metrics are automatically registered with the Prometheus default registry
// and exposed via the /metrics endpoint.
//
// Example usage:
//
//	import "protalk/internal/observability/metrics"
//
//	func syncApp(appID string) {
//	    start := time.Now()
//	    // ... fetch, decide, persist, deliver ...
//	    metrics.RecordReviews(appID, metrics.OutcomeNew, 3)
//	    metrics.RecordSyncRun(appID, "smart", true, time.Since(start))
//	}
package metrics

// Package observability provides the worker's observability infrastructure
// including structured logging, Prometheus metrics, and OpenTelemetry tracing.
//
// Subpackages:
//   - logging: Structured logging utilities with slog
//   - metrics: Prometheus metrics registry and recorders for the sync pipeline
//   - tracing: OpenTelemetry spans for sync runs and callbacks
//
// Example usage:
//
//	import (
//	    "protalk/internal/observability/logging"
//	    "protalk/internal/observability/metrics"
//	)
//
//	func main() {
//	    slog.SetDefault(logging.New())
//	    metrics.RecordReviews("app-1", metrics.OutcomeFetched, 10)
//	}
package observability

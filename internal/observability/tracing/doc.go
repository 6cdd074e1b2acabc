// Package tracing provides OpenTelemetry tracing integration.
//
// Spans are created through the global otel tracer provider, so they are no-ops
// until a provider with an exporter is installed by the process.
//
// Traced operations:
//   - Inbound platform callbacks (Middleware)
//   - Per-application review sync runs (reviewsync.SyncReviews)
//
// Example usage:
//
//	import "protalk/internal/observability/tracing"
//
//	func syncApp(ctx context.Context, appID string) {
//	    ctx, span := tracing.GetTracer().Start(ctx, "reviewsync.SyncReviews",
//	        trace.WithAttributes(attribute.String("app_id", appID)))
//	    defer span.End()
//	}
package tracing

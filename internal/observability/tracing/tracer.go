package tracing

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

// instrumentationName identifies spans created by this application.
const instrumentationName = "protalk"

// GetTracer returns the tracer of the currently installed global provider.
// It is resolved on every call so tests can swap providers.
//
// Example usage:
//
//	ctx, span := tracing.GetTracer().Start(ctx, "reviewsync.SyncReviews")
//	defer span.End()
func GetTracer() trace.Tracer {
	return otel.Tracer(instrumentationName)
}

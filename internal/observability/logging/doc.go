// Package logging provides structured logging utilities with context propagation.
//
// This package wraps the standard library's log/slog package with helper functions
// for common logging patterns used throughout the application.
//
// Key features:
//   - JSON and text output formats (LOG_FORMAT)
//   - Configurable log levels (LOG_LEVEL)
//   - Context-aware logging, e.g. a sync run id carried by every line of the run
//   - Request ID propagation for the callback server
//
// Example usage:
//
//	import "protalk/internal/observability/logging"
//
//	func main() {
//	    slog.SetDefault(logging.New())
//	}
//
//	func syncApp(ctx context.Context, syncID string) {
//	    ctx = logging.WithAttrs(ctx, slog.String("sync_id", syncID))
//	    logging.FromContext(ctx).Info("sync started")
//	}
package logging

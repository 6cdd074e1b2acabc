package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"protalk/internal/handler/http/callback"
	workerPkg "protalk/internal/infra/worker"
)

// newMetricsServer serves /metrics plus the health probes, so a single port
// can be scraped and probed.
func newMetricsServer(addr string, health *workerPkg.HealthServer) *http.Server {
	r := chi.NewRouter()
	r.Handle("/metrics", promhttp.Handler())
	health.Register(r)

	return &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
	}
}

func newCallbackServer(addr string, h *callback.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           callback.NewRouter(h),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		// reply round-trips call App Store Connect before answering
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}
}

// serve runs srv until ctx is cancelled, then shuts it down gracefully.
func serve(ctx context.Context, logger *slog.Logger, name string, srv *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		logger.Info(name+" server starting", slog.String("addr", srv.Addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		logger.Info(name + " server shutdown initiated")
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("%s server shutdown: %w", name, err)
		}
		logger.Info(name + " server stopped")
		return nil
	case err := <-errCh:
		if err := ignoreClosed(err); err != nil {
			return fmt.Errorf("%s server: %w", name, err)
		}
		return nil
	}
}

func ignoreClosed(err error) error {
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

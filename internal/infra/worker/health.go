package worker

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"

	"protalk/internal/usecase/connection"
)

// ConnectionReporter exposes the chat connection state; connection.Mode implements it.
type ConnectionReporter interface {
	Status() connection.Status
}

// HealthServer serves the worker's probe endpoints:
//   - GET /health: liveness, always 200
//   - GET /health/ready: 200 once SetReady(true) was called, 503 otherwise
//   - GET /health/connection: connection status, 503 when disconnected or
//     when reconnection has been given up
//
// Example usage:
//
//	hs := NewHealthServer(":9091", logger, mode)
//	go func() { _ = hs.Start(ctx) }()
//	hs.SetReady(true)
type HealthServer struct {
	addr    string
	logger  *slog.Logger
	conn    ConnectionReporter
	isReady *atomic.Bool
	server  *http.Server
}

type healthResponse struct {
	Status string `json:"status"`
}

type connectionResponse struct {
	Status     string            `json:"status"`
	Connection connection.Status `json:"connection"`
}

// NewHealthServer creates a server that is not ready and not started.
// conn may be nil, in which case /health/connection reports "unknown".
func NewHealthServer(addr string, logger *slog.Logger, conn ConnectionReporter) *HealthServer {
	return &HealthServer{
		addr:    addr,
		logger:  logger,
		conn:    conn,
		isReady: &atomic.Bool{},
	}
}

// Handler returns a router serving only the probe routes.
func (h *HealthServer) Handler() http.Handler {
	r := chi.NewRouter()
	h.Register(r)
	return r
}

// Register mounts the probe routes on r.
func (h *HealthServer) Register(r chi.Router) {
	r.Get("/health", h.handleLiveness)
	r.Get("/health/ready", h.handleReadiness)
	r.Get("/health/connection", h.handleConnection)
}

// Start serves until ctx is cancelled, then shuts down with a 5-second grace
// period. It returns http.ErrServerClosed after a graceful shutdown.
func (h *HealthServer) Start(ctx context.Context) error {
	h.server = &http.Server{
		Addr:         h.addr,
		Handler:      h.Handler(),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errChan := make(chan error, 1)
	go func() {
		h.logger.Info("health server starting", slog.String("addr", h.addr))
		if err := h.server.ListenAndServe(); err != nil {
			errChan <- err
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		h.logger.Info("health server shutting down")
		if err := h.server.Shutdown(shutdownCtx); err != nil {
			h.logger.Error("health server shutdown failed", slog.Any("error", err))
			return err
		}
		h.logger.Info("health server stopped")
		return http.ErrServerClosed

	case err := <-errChan:
		if !errors.Is(err, http.ErrServerClosed) {
			h.logger.Error("health server failed", slog.Any("error", err))
		}
		return err
	}
}

// SetReady flips the /health/ready answer.
func (h *HealthServer) SetReady(ready bool) {
	h.isReady.Store(ready)
	h.logger.Info("health server readiness changed", slog.Bool("ready", ready))
}

func (h *HealthServer) handleLiveness(w http.ResponseWriter, _ *http.Request) {
	h.write(w, http.StatusOK, healthResponse{Status: "ok"})
}

func (h *HealthServer) handleReadiness(w http.ResponseWriter, _ *http.Request) {
	if h.isReady.Load() {
		h.write(w, http.StatusOK, healthResponse{Status: "ok"})
		return
	}
	h.write(w, http.StatusServiceUnavailable, healthResponse{Status: "not ready"})
}

func (h *HealthServer) handleConnection(w http.ResponseWriter, _ *http.Request) {
	if h.conn == nil {
		h.write(w, http.StatusOK, healthResponse{Status: "unknown"})
		return
	}

	st := h.conn.Status()
	switch {
	case st.Exhausted:
		h.write(w, http.StatusServiceUnavailable, connectionResponse{Status: "exhausted", Connection: st})
	case !st.Connected:
		h.write(w, http.StatusServiceUnavailable, connectionResponse{Status: "disconnected", Connection: st})
	default:
		h.write(w, http.StatusOK, connectionResponse{Status: "ok", Connection: st})
	}
}

func (h *HealthServer) write(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		h.logger.Error("failed to encode health response", slog.Any("error", err))
	}
}

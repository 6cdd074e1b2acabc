package worker

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"protalk/internal/usecase/connection"
)

type stubConn struct{ st connection.Status }

func (s stubConn) Status() connection.Status { return s.st }

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func get(t *testing.T, h http.Handler, path string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return rec, body
}

func TestHealthServer_Liveness(t *testing.T) {
	hs := NewHealthServer(":0", discardLogger(), nil)

	rec, body := get(t, hs.Handler(), "/health")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.Equal(t, "ok", body["status"])
}

func TestHealthServer_ReadinessTransition(t *testing.T) {
	hs := NewHealthServer(":0", discardLogger(), nil)

	rec, body := get(t, hs.Handler(), "/health/ready")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "not ready", body["status"])

	hs.SetReady(true)
	rec, _ = get(t, hs.Handler(), "/health/ready")
	assert.Equal(t, http.StatusOK, rec.Code)

	hs.SetReady(false)
	rec, _ = get(t, hs.Handler(), "/health/ready")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestHealthServer_Connection(t *testing.T) {
	tests := []struct {
		name       string
		st         connection.Status
		wantCode   int
		wantStatus string
	}{
		{
			name:       "connected",
			st:         connection.Status{Mode: connection.ModeStreaming, State: connection.StateConnected, Connected: true},
			wantCode:   http.StatusOK,
			wantStatus: "ok",
		},
		{
			name:       "reconnecting",
			st:         connection.Status{Mode: connection.ModeStreaming, State: connection.StateConnecting, ReconnectAttempts: 2},
			wantCode:   http.StatusServiceUnavailable,
			wantStatus: "disconnected",
		},
		{
			name:       "gave up",
			st:         connection.Status{Mode: connection.ModeStreaming, State: connection.StateDisconnected, Exhausted: true},
			wantCode:   http.StatusServiceUnavailable,
			wantStatus: "exhausted",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hs := NewHealthServer(":0", discardLogger(), stubConn{st: tt.st})

			rec, body := get(t, hs.Handler(), "/health/connection")

			assert.Equal(t, tt.wantCode, rec.Code)
			assert.Equal(t, tt.wantStatus, body["status"])
			conn, ok := body["connection"].(map[string]any)
			require.True(t, ok)
			assert.Equal(t, tt.st.Mode, conn["mode"])
		})
	}
}

func TestHealthServer_ConnectionUnknownWithoutReporter(t *testing.T) {
	hs := NewHealthServer(":0", discardLogger(), nil)

	rec, body := get(t, hs.Handler(), "/health/connection")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "unknown", body["status"])
}

func TestHealthServer_StartStopsOnCancel(t *testing.T) {
	hs := NewHealthServer("127.0.0.1:0", discardLogger(), nil)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- hs.Start(ctx) }()
	cancel()

	err := <-done
	assert.True(t, errors.Is(err, http.ErrServerClosed), "got %v", err)
}

package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

/* ───────── Logger construction ───────── */

func TestNew_SelectsFormat(t *testing.T) {
	tests := []struct {
		name   string
		format string
	}{
		{name: "default json", format: ""},
		{name: "text", format: "text"},
		{name: "text upper case", format: "TEXT"},
		{name: "unknown falls back to json", format: "xml"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Arrange
			t.Setenv("LOG_FORMAT", tt.format)

			// Act
			logger := New()

			// Assert
			assert.NotNil(t, logger)
		})
	}
}

func TestNewLogger_RespectsLevel(t *testing.T) {
	t.Setenv("LOG_LEVEL", "error")

	logger := NewLogger()

	assert.False(t, logger.Enabled(context.Background(), slog.LevelWarn))
	assert.True(t, logger.Enabled(context.Background(), slog.LevelError))
}

func TestNewTextLogger_RespectsLevel(t *testing.T) {
	t.Setenv("LOG_LEVEL", "debug")

	logger := NewTextLogger()

	assert.True(t, logger.Enabled(context.Background(), slog.LevelDebug))
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"", slog.LevelInfo},
		{"debug", slog.LevelDebug},
		{"DEBUG", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{" error ", slog.LevelError},
		{"invalid", slog.LevelInfo},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseLevel(tt.in))
		})
	}
}

func TestNewWithWriter_DebugFiltering(t *testing.T) {
	// Arrange
	var buf bytes.Buffer
	logger := NewWithWriter(&buf, slog.LevelInfo)

	// Act
	logger.Debug("this should not appear")
	logger.Info("this should appear", slog.String("app_id", "app-1"))

	// Assert
	output := buf.String()
	assert.NotContains(t, output, "this should not appear")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "this should appear", entry["msg"])
	assert.Equal(t, "app-1", entry["app_id"])
	assert.Equal(t, "INFO", entry["level"])
}

/* ───────── Context propagation ───────── */

func TestWithRequestID(t *testing.T) {
	// Arrange
	var buf bytes.Buffer
	base := NewWithWriter(&buf, slog.LevelInfo)

	var got string
	h := middleware.RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = middleware.GetReqID(r.Context())
		WithRequestID(r.Context(), base).Info("callback received")
	}))

	// Act
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/callback/event", nil))

	// Assert
	require.NotEmpty(t, got)
	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, got, entry["request_id"])
}

func TestWithRequestID_EmptyRequestID(t *testing.T) {
	var buf bytes.Buffer
	base := NewWithWriter(&buf, slog.LevelInfo)

	WithRequestID(context.Background(), base).Info("test message")

	assert.Contains(t, buf.String(), "test message")
	assert.NotContains(t, buf.String(), "request_id")
}

func TestWithFields(t *testing.T) {
	var buf bytes.Buffer
	base := NewWithWriter(&buf, slog.LevelInfo)

	WithFields(base, map[string]interface{}{"review_id": "r-1", "rating": 4}).Info("review stored")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "r-1", entry["review_id"])
	assert.Equal(t, float64(4), entry["rating"])
}

func TestFromContext_DefaultWhenMissing(t *testing.T) {
	assert.Equal(t, slog.Default(), FromContext(context.Background()))
}

func TestWithLogger_RoundTrip(t *testing.T) {
	logger := slog.New(slog.NewJSONHandler(&bytes.Buffer{}, nil))

	ctx := WithLogger(context.Background(), logger)

	assert.Same(t, logger, FromContext(ctx))
}

func TestWithAttrs_Accumulates(t *testing.T) {
	// Arrange
	var buf bytes.Buffer
	ctx := WithLogger(context.Background(), NewWithWriter(&buf, slog.LevelInfo))

	// Act
	ctx = WithAttrs(ctx, slog.String("sync_id", "s-1"))
	ctx = WithAttrs(ctx, slog.String("app_id", "app-1"))
	FromContext(ctx).Info("sync started")

	// Assert
	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "s-1", entry["sync_id"])
	assert.Equal(t, "app-1", entry["app_id"])
}

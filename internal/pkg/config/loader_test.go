package config

import (
	"bytes"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadEnvString(t *testing.T) {
	t.Setenv("PT_STRING", "  value ")
	assert.Equal(t, "value", LoadEnvString("PT_STRING", "def"))

	t.Setenv("PT_STRING", "   ")
	assert.Equal(t, "def", LoadEnvString("PT_STRING", "def"))
	assert.Equal(t, "def", LoadEnvString("PT_STRING_UNSET", "def"))
}

func TestLoadEnvWithFallback(t *testing.T) {
	reject := func(s string) error {
		if s == "bad" {
			return errors.New("rejected")
		}
		return nil
	}

	tests := []struct {
		name         string
		env          string
		want         string
		wantFallback bool
	}{
		{name: "unset uses default", env: "", want: "def"},
		{name: "valid value", env: "good", want: "good"},
		{name: "invalid falls back", env: "bad", want: "def", wantFallback: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("PT_FALLBACK", tt.env)

			r := LoadEnvWithFallback("PT_FALLBACK", "def", reject)

			assert.Equal(t, tt.want, r.Value)
			assert.Equal(t, tt.wantFallback, r.FallbackApplied)
			assert.Equal(t, "PT_FALLBACK", r.Key)
			if tt.wantFallback {
				assert.Contains(t, r.Warning, "rejected")
			} else {
				assert.Empty(t, r.Warning)
			}
		})
	}
}

func TestLoadEnvDuration(t *testing.T) {
	t.Setenv("PT_DURATION", "45m")
	r := LoadEnvDuration("PT_DURATION", time.Minute, ValidateDuration(time.Minute, time.Hour))
	assert.Equal(t, 45*time.Minute, r.Value)
	assert.False(t, r.FallbackApplied)

	t.Setenv("PT_DURATION", "3h")
	r = LoadEnvDuration("PT_DURATION", time.Minute, ValidateDuration(time.Minute, time.Hour))
	assert.Equal(t, time.Minute, r.Value)
	assert.True(t, r.FallbackApplied)

	t.Setenv("PT_DURATION", "soon")
	r = LoadEnvDuration("PT_DURATION", time.Minute, nil)
	assert.Equal(t, time.Minute, r.Value)
	assert.True(t, r.FallbackApplied)
	assert.Contains(t, r.Warning, "cannot parse")
}

func TestLoadEnvInt(t *testing.T) {
	t.Setenv("PT_INT", "8")
	assert.Equal(t, 8, LoadEnvInt("PT_INT", 1, ValidateIntRange(1, 16)).Value)

	t.Setenv("PT_INT", "0")
	r := LoadEnvInt("PT_INT", 1, ValidateIntRange(1, 16))
	assert.Equal(t, 1, r.Value)
	assert.True(t, r.FallbackApplied)

	t.Setenv("PT_INT", "eight")
	assert.True(t, LoadEnvInt("PT_INT", 1, nil).FallbackApplied)
}

func TestLoadEnvBool(t *testing.T) {
	t.Setenv("PT_BOOL", "true")
	assert.True(t, LoadEnvBool("PT_BOOL", false).Value)

	t.Setenv("PT_BOOL", "0")
	assert.False(t, LoadEnvBool("PT_BOOL", true).Value)

	t.Setenv("PT_BOOL", "maybe")
	r := LoadEnvBool("PT_BOOL", true)
	assert.True(t, r.Value)
	assert.True(t, r.FallbackApplied)
}

func TestLoadEnvList(t *testing.T) {
	t.Setenv("PT_LIST", " 123, ,456 ,")
	assert.Equal(t, []string{"123", "456"}, LoadEnvList("PT_LIST", nil).Value)

	t.Setenv("PT_LIST", " , ")
	r := LoadEnvList("PT_LIST", []string{"def"})
	assert.Equal(t, []string{"def"}, r.Value)
	assert.True(t, r.FallbackApplied)
}

func TestApply_RecordsFallback(t *testing.T) {
	// Arrange
	reg := prometheus.NewRegistry()
	m := NewConfigMetricsWithRegistry(reg, "apply_test")
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	t.Setenv("PT_APPLY", "-1")

	// Act
	got := Apply(logger, m, "concurrency", LoadEnvInt("PT_APPLY", 4, ValidateIntRange(1, 16)))

	// Assert
	assert.Equal(t, 4, got)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ValidationErrorsTotal.WithLabelValues("concurrency")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.FallbacksTotal.WithLabelValues("concurrency", "invalid_value")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.FallbackActive.WithLabelValues("concurrency")))
	assert.Contains(t, buf.String(), "configuration fallback applied")
	assert.Contains(t, buf.String(), "PT_APPLY")
}

func TestApply_ClearsActiveFlag(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewConfigMetricsWithRegistry(reg, "apply_clear_test")
	m.SetFallbackActive("timezone", true)

	got := Apply(nil, m, "timezone", LoadResult[string]{Key: "TZ", Value: "UTC"})

	assert.Equal(t, "UTC", got)
	assert.Equal(t, 0.0, testutil.ToFloat64(m.FallbackActive.WithLabelValues("timezone")))
}

func TestApply_NilMetricsAndLogger(t *testing.T) {
	got := Apply[int](nil, nil, "x", LoadResult[int]{Value: 3, FallbackApplied: true, Warning: "w"})
	require.Equal(t, 3, got)
}

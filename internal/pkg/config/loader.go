// Package config holds fail-open environment loaders shared by the worker and
// the service configuration. A value that fails validation never stops the
// process: the default is used instead and the fallback is reported.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// LoadResult is the outcome of loading one environment value.
//
// Fields:
//   - Key: environment variable name
//   - Value: loaded value, or the default when FallbackApplied is true
//   - Warning: reason for the fallback, empty otherwise
//   - FallbackApplied: true if the variable was set but rejected
type LoadResult[T any] struct {
	Key             string
	Value           T
	Warning         string
	FallbackApplied bool
}

// LoadEnvString returns the variable value, or defaultValue when unset or blank.
func LoadEnvString(envKey, defaultValue string) string {
	value := strings.TrimSpace(os.Getenv(envKey))
	if value == "" {
		return defaultValue
	}
	return value
}

// LoadEnvWithFallback loads a string and validates it.
//
// Loading behavior:
//  1. Unset or blank: default, no warning
//  2. Set and valid: the value
//  3. Set and invalid: default plus a warning
//
// A nil validator accepts any value.
func LoadEnvWithFallback(envKey, defaultValue string, validator func(string) error) LoadResult[string] {
	return load(envKey, defaultValue, func(s string) (string, error) { return s, nil }, validator)
}

// LoadEnvDuration loads a time.Duration in time.ParseDuration syntax ("30m", "1h30m").
func LoadEnvDuration(envKey string, defaultValue time.Duration, validator func(time.Duration) error) LoadResult[time.Duration] {
	return load(envKey, defaultValue, time.ParseDuration, validator)
}

// LoadEnvInt loads a base-10 integer.
func LoadEnvInt(envKey string, defaultValue int, validator func(int) error) LoadResult[int] {
	return load(envKey, defaultValue, strconv.Atoi, validator)
}

// LoadEnvBool loads a boolean in strconv.ParseBool syntax ("true", "1", "false", ...).
func LoadEnvBool(envKey string, defaultValue bool) LoadResult[bool] {
	return load(envKey, defaultValue, strconv.ParseBool, nil)
}

// LoadEnvList loads a comma-separated list. Blank items are dropped and an
// empty result falls back to the default.
func LoadEnvList(envKey string, defaultValue []string) LoadResult[[]string] {
	return load(envKey, defaultValue, func(s string) ([]string, error) {
		var out []string
		for _, item := range strings.Split(s, ",") {
			if item = strings.TrimSpace(item); item != "" {
				out = append(out, item)
			}
		}
		if len(out) == 0 {
			return nil, fmt.Errorf("no items in %q", s)
		}
		return out, nil
	}, nil)
}

func load[T any](envKey string, defaultValue T, parse func(string) (T, error), validator func(T) error) LoadResult[T] {
	result := LoadResult[T]{Key: envKey, Value: defaultValue}

	raw := strings.TrimSpace(os.Getenv(envKey))
	if raw == "" {
		return result
	}

	value, err := parse(raw)
	if err != nil {
		result.FallbackApplied = true
		result.Warning = fmt.Sprintf("%s: cannot parse %q: %v", envKey, raw, err)
		return result
	}
	if validator != nil {
		if err := validator(value); err != nil {
			result.FallbackApplied = true
			result.Warning = fmt.Sprintf("%s: %v", envKey, err)
			return result
		}
	}

	result.Value = value
	return result
}

// Apply logs and records a fallback for field, then returns the value to use.
// metrics may be nil.
func Apply[T any](logger *slog.Logger, metrics *ConfigMetrics, field string, r LoadResult[T]) T {
	if !r.FallbackApplied {
		if metrics != nil {
			metrics.SetFallbackActive(field, false)
		}
		return r.Value
	}

	if logger != nil {
		logger.Warn("configuration fallback applied",
			slog.String("field", field),
			slog.String("env", r.Key),
			slog.String("warning", r.Warning),
			slog.Any("default", r.Value))
	}
	if metrics != nil {
		metrics.RecordValidationError(field)
		metrics.RecordFallback(field, "invalid_value")
		metrics.SetFallbackActive(field, true)
	}
	return r.Value
}

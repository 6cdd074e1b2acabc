// Package worker holds the sync worker's runtime configuration, health
// endpoints and job metrics.
package worker

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"protalk/internal/pkg/config"
)

// Environment variables read by LoadConfigFromEnv.
const (
	EnvCronSchedule    = "SYNC_CRON_SCHEDULE"
	EnvTimezone        = "WORKER_TIMEZONE"
	EnvSyncTimeout     = "SYNC_TIMEOUT"
	EnvSyncConcurrency = "SYNC_CONCURRENCY"
	EnvSyncOnStart     = "SYNC_ON_START"
	EnvHealthPort      = "WORKER_HEALTH_PORT"
)

const (
	minSyncTimeout     = time.Minute
	maxSyncTimeout     = 2 * time.Hour
	maxSyncConcurrency = 16
	minPort            = 1024
	maxPort            = 65535
)

// WorkerConfig controls when and how the sync cycle runs.
type WorkerConfig struct {
	// CronSchedule is a 5-field cron expression or descriptor ("@every 30m").
	CronSchedule string
	// Timezone is the IANA zone the schedule is evaluated in.
	Timezone string
	// SyncTimeout bounds one full cycle over all apps.
	SyncTimeout time.Duration
	// SyncConcurrency is the number of apps synced in parallel.
	SyncConcurrency int
	// SyncOnStart runs one cycle immediately after startup.
	SyncOnStart bool
	// HealthPort serves /health, /health/ready and /health/connection.
	HealthPort int
}

// DefaultConfig returns the production defaults: every 30 minutes in JST,
// one app at a time.
func DefaultConfig() WorkerConfig {
	return WorkerConfig{
		CronSchedule:    "*/30 * * * *",
		Timezone:        "Asia/Tokyo",
		SyncTimeout:     10 * time.Minute,
		SyncConcurrency: 1,
		SyncOnStart:     false,
		HealthPort:      9091,
	}
}

// Location resolves Timezone, falling back to UTC.
func (c WorkerConfig) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// Validate reports every invalid field at once.
func (c WorkerConfig) Validate() error {
	var errs []error
	if err := config.ValidateCronSchedule(c.CronSchedule); err != nil {
		errs = append(errs, err)
	}
	if err := config.ValidateTimezone(c.Timezone); err != nil {
		errs = append(errs, err)
	}
	if err := config.ValidateDuration(minSyncTimeout, maxSyncTimeout)(c.SyncTimeout); err != nil {
		errs = append(errs, fmt.Errorf("sync timeout: %w", err))
	}
	if err := config.ValidateIntRange(1, maxSyncConcurrency)(c.SyncConcurrency); err != nil {
		errs = append(errs, fmt.Errorf("sync concurrency: %w", err))
	}
	if err := config.ValidateIntRange(minPort, maxPort)(c.HealthPort); err != nil {
		errs = append(errs, fmt.Errorf("health port: %w", err))
	}
	return errors.Join(errs...)
}

// LoadConfigFromEnv reads the worker configuration. Invalid values never fail
// the load: each falls back to its default, is logged and counted in metrics.
//
// Parameters:
//   - logger: receives one warning per fallback
//   - metrics: config metrics to record fallbacks in (nil disables recording)
//
// Returns:
//   - WorkerConfig: always valid
//   - error: reserved, currently always nil
func LoadConfigFromEnv(logger *slog.Logger, metrics *WorkerMetrics) (WorkerConfig, error) {
	def := DefaultConfig()

	var cm *config.ConfigMetrics
	if metrics != nil {
		cm = metrics.ConfigMetrics
	}

	cfg := WorkerConfig{
		CronSchedule: config.Apply(logger, cm, "cron_schedule",
			config.LoadEnvWithFallback(EnvCronSchedule, def.CronSchedule, config.ValidateCronSchedule)),
		Timezone: config.Apply(logger, cm, "timezone",
			config.LoadEnvWithFallback(EnvTimezone, def.Timezone, config.ValidateTimezone)),
		SyncTimeout: config.Apply(logger, cm, "sync_timeout",
			config.LoadEnvDuration(EnvSyncTimeout, def.SyncTimeout, config.ValidateDuration(minSyncTimeout, maxSyncTimeout))),
		SyncConcurrency: config.Apply(logger, cm, "sync_concurrency",
			config.LoadEnvInt(EnvSyncConcurrency, def.SyncConcurrency, config.ValidateIntRange(1, maxSyncConcurrency))),
		SyncOnStart: config.Apply(logger, cm, "sync_on_start",
			config.LoadEnvBool(EnvSyncOnStart, def.SyncOnStart)),
		HealthPort: config.Apply(logger, cm, "health_port",
			config.LoadEnvInt(EnvHealthPort, def.HealthPort, config.ValidateIntRange(minPort, maxPort))),
	}

	if cm != nil {
		cm.RecordLoadTimestamp()
	}
	return cfg, nil
}

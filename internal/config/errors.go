package config

import "errors"

var (
	// ErrInvalidConfig wraps every validation failure reported by Load.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrNoApps is returned when neither APPS_FILE nor APPSTORE_APP_IDS yields an enabled app.
	ErrNoApps = errors.New("no enabled apps configured")

	// ErrAppsFile is returned when APPS_FILE cannot be read or parsed.
	ErrAppsFile = errors.New("invalid apps file")
)

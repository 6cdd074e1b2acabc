package config

import (
	"bytes"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// App is one marketplace app to sync.
type App struct {
	ID   string `yaml:"id"`
	Name string `yaml:"name"`
	// Enabled defaults to true when omitted.
	Enabled *bool `yaml:"enabled"`
}

// IsEnabled reports whether the app takes part in sync cycles.
func (a App) IsEnabled() bool {
	return a.ID != "" && (a.Enabled == nil || *a.Enabled)
}

type appsFile struct {
	Apps []App `yaml:"apps"`
}

// LoadAppsFile parses a YAML apps file:
//
//	apps:
//	  - id: "1234567890"
//	    name: "Pro Talk"
//	  - id: "2345678901"
//	    enabled: false
func LoadAppsFile(path string) ([]App, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrAppsFile, err)
	}
	return parseApps(data)
}

func parseApps(data []byte) ([]App, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var f appsFile
	if err := dec.Decode(&f); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrAppsFile, err)
	}

	seen := make(map[string]bool, len(f.Apps))
	for i, a := range f.Apps {
		id := strings.TrimSpace(a.ID)
		if id == "" {
			return nil, fmt.Errorf("%w: apps[%d] has no id", ErrAppsFile, i)
		}
		if seen[id] {
			return nil, fmt.Errorf("%w: duplicate app id %q", ErrAppsFile, id)
		}
		seen[id] = true
		f.Apps[i].ID = id
	}
	return f.Apps, nil
}

// resolveApps prefers the apps file; APPSTORE_APP_IDS is the fallback.
func resolveApps(c AppStoreConfig) ([]App, error) {
	if c.AppsFile != "" {
		return LoadAppsFile(c.AppsFile)
	}

	var apps []App
	seen := make(map[string]bool, len(c.AppIDs))
	for _, id := range c.AppIDs {
		id = strings.TrimSpace(id)
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		apps = append(apps, App{ID: id})
	}
	return apps, nil
}

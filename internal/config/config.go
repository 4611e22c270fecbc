// Package config loads miner settings from an optional YAML file.
// Flags override file values; file values override defaults.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds run-wide miner settings.
type Config struct {
	// CacheRoot holds the shared cache tiers (mirrors, logs, issue indexes).
	CacheRoot string `yaml:"cache_root"`

	// OutputRoot holds per-project output trees (ledger, patches, reports).
	OutputRoot string `yaml:"output_root"`

	// Model is the adjudication model for the semantic matcher.
	Model string `yaml:"model"`

	// Workers bounds concurrent adjudication calls.
	Workers int `yaml:"workers"`

	// RequestIntervalMS is the minimum spacing between adjudication calls.
	RequestIntervalMS int `yaml:"request_interval_ms"`

	// GitTimeoutMinutes bounds a single git invocation.
	GitTimeoutMinutes int `yaml:"git_timeout_minutes"`

	// ListerCommand is the issue-lister collaborator executable. When
	// set, a missing issue index is produced by invoking it; when
	// empty, a missing index fails the project.
	ListerCommand string `yaml:"lister_command"`
}

// Default returns the built-in settings.
func Default() Config {
	return Config{
		CacheRoot:         "cache",
		OutputRoot:        "output",
		Workers:           5,
		RequestIntervalMS: 100,
		GitTimeoutMinutes: 90,
	}
}

// Load reads path over the defaults. A missing file is fine when the
// path is the default location; an explicitly requested file must
// exist.
func Load(path string, explicit bool) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) && !explicit {
			return cfg, nil
		}
		return cfg, fmt.Errorf("cannot read config file %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parsing config file %s: %w", path, err)
	}
	return cfg, nil
}

// RequestInterval returns the adjudication pacing as a duration.
func (c Config) RequestInterval() time.Duration {
	return time.Duration(c.RequestIntervalMS) * time.Millisecond
}

// GitTimeout returns the git command bound as a duration.
func (c Config) GitTimeout() time.Duration {
	return time.Duration(c.GitTimeoutMinutes) * time.Minute
}

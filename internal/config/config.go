// Synclinic - Two-Way CRM and Clinical Intake Sync
// Copyright 2026 Synclinic Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/synclinic/synclinic

// Package config loads process configuration from defaults, an optional
// YAML file, and environment variables, in that precedence order.
// Runtime sync settings (direction, filters, field mapping) live in the
// store, not here; this package covers only what the process needs to
// boot.
package config

import (
	"fmt"
	"time"

	"github.com/synclinic/synclinic/internal/validation"
)

// Config is the complete process configuration.
type Config struct {
	Server  ServerConfig  `koanf:"server"`
	CRM     SystemConfig  `koanf:"crm"`
	Intake  SystemConfig  `koanf:"intake"`
	Store   StoreConfig   `koanf:"store"`
	Sync    SyncConfig    `koanf:"sync"`
	Logging LoggingConfig `koanf:"logging"`
}

// ServerConfig configures the HTTP API server.
type ServerConfig struct {
	Host            string        `koanf:"host"`
	Port            int           `koanf:"port" validate:"min=1,max=65535"`
	Timeout         time.Duration `koanf:"timeout"`
	CORSOrigins     []string      `koanf:"cors_origins"`
	RateLimitReqs   int           `koanf:"rate_limit_reqs" validate:"min=1"`
	RateLimitWindow time.Duration `koanf:"rate_limit_window"`
}

// SystemConfig holds the bootstrap credentials and client tuning for one
// upstream system. Credentials set here are seeded into the credentials
// store at startup; the dashboard can replace them later.
type SystemConfig struct {
	BaseURL        string        `koanf:"base_url" validate:"omitempty,url"`
	APIKey         string        `koanf:"api_key"`
	AccountID      string        `koanf:"account_id"`
	Timeout        time.Duration `koanf:"timeout"`
	RequestsPerSec float64       `koanf:"requests_per_sec" validate:"min=0"`
	MaxRetries     int           `koanf:"max_retries" validate:"min=0,max=10"`
}

// StoreConfig configures the embedded BadgerDB store.
type StoreConfig struct {
	Path           string        `koanf:"path" validate:"required"`
	DebounceWindow time.Duration `koanf:"debounce_window"`
}

// SyncConfig configures the periodic sync scheduler. A zero interval
// disables periodic runs; syncs then happen only via the API trigger.
type SyncConfig struct {
	Interval time.Duration `koanf:"interval"`
}

// LoggingConfig configures structured logging output.
type LoggingConfig struct {
	Level  string `koanf:"level" validate:"oneof=trace debug info warn error fatal panic"`
	Format string `koanf:"format" validate:"oneof=json console"`
	Caller bool   `koanf:"caller"`
}

// Validate checks the configuration against its validate tags plus the
// cross-field rules tags cannot express.
func (c *Config) Validate() error {
	if err := validation.ValidateStruct(c); err != nil {
		return err
	}

	if c.CRM.APIKey != "" && c.CRM.BaseURL == "" {
		return fmt.Errorf("crm.base_url is required when crm.api_key is set")
	}
	if c.Intake.APIKey != "" && c.Intake.BaseURL == "" {
		return fmt.Errorf("intake.base_url is required when intake.api_key is set")
	}
	if c.Sync.Interval != 0 && c.Sync.Interval < time.Minute {
		return fmt.Errorf("sync.interval must be at least 1m (got %s)", c.Sync.Interval)
	}
	return nil
}

// Addr returns the server listen address.
func (c *ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

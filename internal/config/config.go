// xbltracker - Xbox Live Achievement Overlay Core
// Copyright 2026 xbltracker contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/xbltracker/xbltracker

package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigPaths lists where a config file is searched, in order.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/xbltracker/config.yaml",
	"/etc/xbltracker/config.yml",
}

// ConfigPathEnvVar overrides the config file path.
const ConfigPathEnvVar = "CONFIG_PATH"

// Config is the full tracker configuration.
type Config struct {
	State   StateConfig   `koanf:"state"`
	Cache   CacheConfig   `koanf:"cache"`
	HTTP    HTTPConfig    `koanf:"http"`
	RTA     RTAConfig     `koanf:"rta"`
	Logging LoggingConfig `koanf:"logging"`
	Metrics MetricsConfig `koanf:"metrics"`
}

// StateConfig locates the persistent state document.
type StateConfig struct {
	// Dir is the directory holding the state file. Defaults to the
	// user config directory.
	Dir string `koanf:"dir" validate:"required"`
}

// CacheConfig locates the asset cache.
type CacheConfig struct {
	// Dir is the directory icons and covers are written to. Defaults
	// to the system temp directory.
	Dir string `koanf:"dir" validate:"required"`
}

// HTTPConfig tunes outbound HTTP.
type HTTPConfig struct {
	Timeout  time.Duration `koanf:"timeout" validate:"gt=0"`
	Language string        `koanf:"language" validate:"required"`
}

// RTAConfig tunes the realtime connection.
type RTAConfig struct {
	URL string `koanf:"url" validate:"required,startswith=ws"`
}

// LoggingConfig tunes log output.
type LoggingConfig struct {
	Level  string `koanf:"level" validate:"oneof=trace debug info warn error"`
	Format string `koanf:"format" validate:"oneof=json console"`
}

// MetricsConfig controls the optional Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `koanf:"enabled"`
	Addr    string `koanf:"addr" validate:"required_if=Enabled true"`
}

func defaultConfig() *Config {
	stateDir := "."
	if dir, err := os.UserConfigDir(); err == nil {
		stateDir = filepath.Join(dir, "xbltracker")
	}
	return &Config{
		State: StateConfig{Dir: stateDir},
		Cache: CacheConfig{Dir: os.TempDir()},
		HTTP: HTTPConfig{
			Timeout:  30 * time.Second,
			Language: "en-US",
		},
		RTA: RTAConfig{URL: "wss://rta.xboxlive.com:443/connect"},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
		Metrics: MetricsConfig{
			Enabled: false,
			Addr:    "127.0.0.1:9464",
		},
	}
}

// Load builds the configuration from three layers: built-in defaults,
// an optional YAML file, and XBL_-prefixed environment variables
// (XBL_LOGGING_LEVEL=debug maps to logging.level).
func Load() (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("load defaults: %w", err)
	}

	if path := findConfigFile(); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config file %s: %w", path, err)
		}
	}

	envProvider := env.Provider("XBL_", ".", envTransform)
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("load environment: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshal configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate configuration: %w", err)
	}
	return cfg, nil
}

// Validate checks the struct-level constraints.
func (c *Config) Validate() error {
	return validator.New(validator.WithRequiredStructEnabled()).Struct(c)
}

func findConfigFile() string {
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}
	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// Copyright (C) 2025 Flatiron Institute
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the process configuration, loaded from an optional YAML
// file and then overridden by environment variables and flags, in that
// order of precedence (flags win).
type Config struct {
	// Dir is the data directory holding analyses/, projects/ and
	// output/. Required for every command.
	Dir string `yaml:"dir"`

	// Port is the HTTP listen port for serve.
	Port int `yaml:"port"`

	// PollInterval is how often the processor scans for queued
	// analyses.
	PollInterval time.Duration `yaml:"poll_interval"`

	// ListedOnly restricts the summary projection to listed analyses.
	ListedOnly bool `yaml:"listed_only"`

	// LogLevel is debug, info, warn or error.
	LogLevel string `yaml:"log_level"`

	// LogDir enables JSON file logging when non-empty.
	LogDir string `yaml:"log_dir"`

	// OTLPEndpoint is the OpenTelemetry collector address. Tracing is
	// disabled when empty.
	OTLPEndpoint string `yaml:"otlp_endpoint"`

	// CompilerCommand and PythonCommand override the external tool
	// names, mainly for container images with nonstandard paths.
	CompilerCommand string `yaml:"compiler_command"`
	PythonCommand   string `yaml:"python_command"`
}

func defaultConfig() Config {
	return Config{
		Port:         12500,
		PollInterval: 10 * time.Second,
		LogLevel:     "info",
	}
}

// loadConfig reads path (when it exists) over the defaults, then
// applies environment overrides. A missing file is fine unless the
// operator named it explicitly.
func loadConfig(path string, explicit bool) (Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) || explicit {
			return cfg, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	} else if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse config %s: %w", path, err)
	}

	applyEnv(&cfg)
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("STAN_PLAYGROUND_DIR"); v != "" {
		cfg.Dir = v
	}
	if v := os.Getenv("STAN_PLAYGROUND_PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			cfg.Port = p
		}
	}
	if v := os.Getenv("STAN_PLAYGROUND_POLL_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.PollInterval = d
		}
	}
	if v := os.Getenv("STAN_PLAYGROUND_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("STAN_PLAYGROUND_LOG_DIR"); v != "" {
		cfg.LogDir = v
	}
	if v := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"); v != "" {
		cfg.OTLPEndpoint = v
	}
}

// validate checks the fields every command depends on.
func (c Config) validate() error {
	if c.Dir == "" {
		return fmt.Errorf("no data directory configured: set --dir, STAN_PLAYGROUND_DIR, or dir in the config file")
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Port)
	}
	if c.PollInterval <= 0 {
		return fmt.Errorf("poll_interval must be positive, got %s", c.PollInterval)
	}
	return nil
}

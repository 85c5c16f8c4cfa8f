// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package config loads the govern service configuration.
//
// Precedence, lowest to highest: embedded defaults, the YAML file
// passed to Load, then GOVERN_* environment variables.
package config

import (
	_ "embed"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/AleutianAI/AleutianGovern/services/govern/datatypes"
	"github.com/AleutianAI/AleutianGovern/services/govern/telemetry"
)

//go:embed defaults.yaml
var defaultsYAML []byte

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	ListenAddr           string `yaml:"listen_addr" validate:"required"`
	MetricsAddr          string `yaml:"metrics_addr"`
	ShutdownGraceSeconds int    `yaml:"shutdown_grace_seconds" validate:"gte=0"`
}

// RetryConfig bounds capability call retries.
type RetryConfig struct {
	MaxAttempts      int `yaml:"max_attempts" validate:"gte=1"`
	InitialBackoffMs int `yaml:"initial_backoff_ms" validate:"gte=0"`
	MaxBackoffMs     int `yaml:"max_backoff_ms" validate:"gte=0"`
}

// CapabilityConfig configures the matching capability client.
type CapabilityConfig struct {
	BaseURL        string      `yaml:"base_url" validate:"required,url"`
	TimeoutSeconds int         `yaml:"timeout_seconds" validate:"gte=1"`
	RatePerSecond  float64     `yaml:"rate_per_second" validate:"gte=0"`
	Retry          RetryConfig `yaml:"retry"`
}

// CacheConfig configures the match result cache.
type CacheConfig struct {
	DefaultTTLSeconds    int `yaml:"default_ttl_seconds" validate:"gte=1"`
	SweepIntervalSeconds int `yaml:"sweep_interval_seconds" validate:"gte=0"`

	// BadgerPath, when set, persists match results on disk across
	// restarts instead of the in-memory cache.
	BadgerPath string `yaml:"badger_path"`
}

// HistoryConfig configures per-entity match history.
type HistoryConfig struct {
	Capacity int `yaml:"capacity" validate:"gte=1"`
}

// VectorConfig configures the semantic vector cache.
type VectorConfig struct {
	Dimensions int `yaml:"dimensions" validate:"gte=1"`
}

// DispatchConfig configures the strategy dispatcher.
type DispatchConfig struct {
	StrategyTimeoutSeconds int                `yaml:"strategy_timeout_seconds" validate:"gte=1"`
	Weights                map[string]float64 `yaml:"weights"`
}

// LoggingConfig configures structured logging.
type LoggingConfig struct {
	Level string `yaml:"level" validate:"oneof=debug info warn error"`
	JSON  bool   `yaml:"json"`
}

// Config is the full service configuration.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Capability CapabilityConfig `yaml:"capability"`
	Cache      CacheConfig      `yaml:"cache"`
	History    HistoryConfig    `yaml:"history"`
	Vectors    VectorConfig     `yaml:"vectors"`
	Dispatch   DispatchConfig   `yaml:"dispatch"`
	Logging    LoggingConfig    `yaml:"logging"`
	Telemetry  telemetry.Config `yaml:"telemetry"`
}

// Load builds the configuration from the embedded defaults, an
// optional YAML file and GOVERN_* environment variables.
//
// # Inputs
//
//   - path: YAML file path. Empty skips the file layer.
func Load(path string) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(defaultsYAML, &cfg); err != nil {
		return nil, fmt.Errorf("parsing embedded defaults: %w", err)
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parsing config file %s: %w", path, err)
		}
	}

	applyEnv(&cfg)

	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return &cfg, nil
}

// applyEnv overlays GOVERN_* environment variables.
func applyEnv(cfg *Config) {
	if v := os.Getenv("GOVERN_LISTEN_ADDR"); v != "" {
		cfg.Server.ListenAddr = v
	}
	if v := os.Getenv("GOVERN_METRICS_ADDR"); v != "" {
		cfg.Server.MetricsAddr = v
	}
	if v := os.Getenv("GOVERN_CAPABILITY_URL"); v != "" {
		cfg.Capability.BaseURL = v
	}
	if v := os.Getenv("GOVERN_CACHE_TTL_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Cache.DefaultTTLSeconds = n
		}
	}
	if v := os.Getenv("GOVERN_BADGER_PATH"); v != "" {
		cfg.Cache.BadgerPath = v
	}
	if v := os.Getenv("GOVERN_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
}

// DefaultTTL returns the cache TTL as a duration.
func (c *Config) DefaultTTL() time.Duration {
	return time.Duration(c.Cache.DefaultTTLSeconds) * time.Second
}

// StrategyTimeout returns the per-strategy timeout as a duration.
func (c *Config) StrategyTimeout() time.Duration {
	return time.Duration(c.Dispatch.StrategyTimeoutSeconds) * time.Second
}

// ShutdownGrace returns the graceful shutdown window.
func (c *Config) ShutdownGrace() time.Duration {
	return time.Duration(c.Server.ShutdownGraceSeconds) * time.Second
}

// Weights converts the configured weight map to strategy keys.
func (c *Config) Weights() map[datatypes.Strategy]float64 {
	if len(c.Dispatch.Weights) == 0 {
		return nil
	}
	weights := make(map[datatypes.Strategy]float64, len(c.Dispatch.Weights))
	for name, w := range c.Dispatch.Weights {
		weights[datatypes.Strategy(name)] = w
	}
	return weights
}

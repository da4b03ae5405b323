// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package config loads derive configuration from files and environment.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/AleutianAI/derive/services/derive/catalog"
	"github.com/AleutianAI/derive/services/derive/library"
	"github.com/AleutianAI/derive/services/derive/search"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "DERIVE_"

// Config contains all derive configuration.
//
// Thread Safety: Safe to read concurrently. Not safe to modify after creation.
type Config struct {
	// Search contains search budget settings.
	Search SearchConfig `json:"search" yaml:"search"`

	// Library contains op catalog settings.
	Library LibraryConfig `json:"library" yaml:"library"`

	// Storage contains program store settings.
	Storage StorageConfig `json:"storage" yaml:"storage"`

	// Telemetry contains tracing and metrics settings.
	Telemetry TelemetryConfig `json:"telemetry" yaml:"telemetry"`

	// Server contains HTTP API settings.
	Server ServerConfig `json:"server" yaml:"server"`

	// Log contains logging settings.
	Log LogConfig `json:"log" yaml:"log"`
}

// SearchConfig contains search budget settings.
type SearchConfig struct {
	MaxGenerations int `json:"max_generations" yaml:"max_generations" validate:"gte=1,lte=64"`
	MaxValues      int `json:"max_values" yaml:"max_values" validate:"gte=0"`
	MaxArrows      int `json:"max_arrows" yaml:"max_arrows" validate:"gte=0"`
}

// LibraryConfig selects the base ops and how far to pre-derive.
type LibraryConfig struct {
	Ops      []string `json:"ops" yaml:"ops" validate:"required,min=1,dive,opname"`
	Seed     int      `json:"seed" yaml:"seed" validate:"gte=0,lte=1000"`
	MaxDepth int      `json:"max_depth" yaml:"max_depth" validate:"gte=0"`
}

// StorageConfig contains program store settings.
type StorageConfig struct {
	Path     string `json:"path" yaml:"path" validate:"required_without=InMemory"`
	InMemory bool   `json:"in_memory" yaml:"in_memory"`
}

// TelemetryConfig contains tracing and metrics settings.
type TelemetryConfig struct {
	ServiceName    string  `json:"service_name" yaml:"service_name" validate:"required"`
	TraceExporter  string  `json:"trace_exporter" yaml:"trace_exporter" validate:"oneof=none stdout otlp"`
	MetricExporter string  `json:"metric_exporter" yaml:"metric_exporter" validate:"oneof=none stdout prometheus"`
	OTLPEndpoint   string  `json:"otlp_endpoint" yaml:"otlp_endpoint" validate:"required_if=TraceExporter otlp"`
	SampleRate     float64 `json:"sample_rate" yaml:"sample_rate" validate:"gte=0,lte=1"`
}

// ServerConfig contains HTTP API settings.
type ServerConfig struct {
	Addr            string        `json:"addr" yaml:"addr" validate:"required,hostname_port"`
	RateLimit       float64       `json:"rate_limit" yaml:"rate_limit" validate:"gt=0"`
	Burst           int           `json:"burst" yaml:"burst" validate:"gte=1"`
	ShutdownTimeout time.Duration `json:"shutdown_timeout" yaml:"shutdown_timeout" validate:"gte=0"`
}

// LogConfig contains logging settings.
type LogConfig struct {
	Level  string `json:"level" yaml:"level" validate:"oneof=debug info warn error"`
	Format string `json:"format" yaml:"format" validate:"oneof=text json"`
}

var validate *validator.Validate

func init() {
	validate = validator.New()
	_ = validate.RegisterValidation("opname", validateOpName)
}

// validateOpName accepts names of catalog ops.
func validateOpName(fl validator.FieldLevel) bool {
	return slices.Contains(catalog.Names(), fl.Field().String())
}

// Default returns the default configuration.
//
// Outputs:
//   - Config: Default configuration with sensible values.
func Default() Config {
	return Config{
		Search: SearchConfig{
			MaxGenerations: search.DefaultMaxGenerations,
		},
		Library: LibraryConfig{
			Ops:  catalog.Names(),
			Seed: 12,
		},
		Storage: StorageConfig{
			Path: defaultStoragePath(),
		},
		Telemetry: TelemetryConfig{
			ServiceName:    "derive",
			TraceExporter:  "none",
			MetricExporter: "prometheus",
			SampleRate:     1.0,
		},
		Server: ServerConfig{
			Addr:            "127.0.0.1:8087",
			RateLimit:       2,
			Burst:           4,
			ShutdownTimeout: 10 * time.Second,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

func defaultStoragePath() string {
	if dir, err := os.UserCacheDir(); err == nil {
		return filepath.Join(dir, "derive", "programs")
	}
	return filepath.Join(".derive", "programs")
}

// Load loads configuration with priority: env > file > defaults.
//
// Inputs:
//   - path: Path to YAML/JSON config file (optional, can be empty). A
//     missing file leaves the defaults in place.
//
// Outputs:
//   - Config: Merged configuration.
//   - error: Non-nil if the file is unreadable or invalid, or if the merged
//     configuration fails validation.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		if err := loadFile(path, &cfg); err != nil {
			return cfg, fmt.Errorf("load config file: %w", err)
		}
	}

	if err := loadEnv(&cfg); err != nil {
		return cfg, fmt.Errorf("load config env: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func loadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	// Try YAML first, then JSON
	if err := yaml.Unmarshal(data, cfg); err != nil {
		if jsonErr := json.Unmarshal(data, cfg); jsonErr != nil {
			return fmt.Errorf("parse config (tried YAML and JSON): YAML error: %v, JSON error: %w", err, jsonErr)
		}
	}
	return nil
}

func loadEnv(cfg *Config) error {
	var errs []string
	atoi := func(key string, dst *int) {
		if v, ok := os.LookupEnv(EnvPrefix + key); ok && v != "" {
			i, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Sprintf("%s%s: %v", EnvPrefix, key, err))
				return
			}
			*dst = i
		}
	}
	str := func(key string, dst *string) {
		if v, ok := os.LookupEnv(EnvPrefix + key); ok && v != "" {
			*dst = v
		}
	}

	// Search
	atoi("MAX_GENERATIONS", &cfg.Search.MaxGenerations)
	atoi("MAX_VALUES", &cfg.Search.MaxValues)
	atoi("MAX_ARROWS", &cfg.Search.MaxArrows)

	// Library
	if v := os.Getenv(EnvPrefix + "OPS"); v != "" {
		cfg.Library.Ops = splitList(v)
	}
	atoi("SEED", &cfg.Library.Seed)
	atoi("MAX_DEPTH", &cfg.Library.MaxDepth)

	// Storage
	str("STORAGE_PATH", &cfg.Storage.Path)
	if v := os.Getenv(EnvPrefix + "STORAGE_IN_MEMORY"); v != "" {
		cfg.Storage.InMemory = v == "true" || v == "1"
	}

	// Telemetry
	str("SERVICE_NAME", &cfg.Telemetry.ServiceName)
	str("TRACE_EXPORTER", &cfg.Telemetry.TraceExporter)
	str("METRIC_EXPORTER", &cfg.Telemetry.MetricExporter)
	str("OTLP_ENDPOINT", &cfg.Telemetry.OTLPEndpoint)
	if v := os.Getenv(EnvPrefix + "TRACE_SAMPLE_RATE"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			errs = append(errs, fmt.Sprintf("%sTRACE_SAMPLE_RATE: %v", EnvPrefix, err))
		} else {
			cfg.Telemetry.SampleRate = f
		}
	}

	// Server
	str("ADDR", &cfg.Server.Addr)
	if v := os.Getenv(EnvPrefix + "RATE_LIMIT"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			errs = append(errs, fmt.Sprintf("%sRATE_LIMIT: %v", EnvPrefix, err))
		} else {
			cfg.Server.RateLimit = f
		}
	}
	atoi("BURST", &cfg.Server.Burst)

	// Log
	str("LOG_LEVEL", &cfg.Log.Level)
	str("LOG_FORMAT", &cfg.Log.Format)

	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}
	return nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// Validate checks that the configuration is valid.
//
// Outputs:
//   - error: validator.ValidationErrors if any field is invalid.
func (c Config) Validate() error {
	return validate.Struct(c)
}

// SlogLevel returns the slog level for Log.Level.
func (c LogConfig) SlogLevel() slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.Level)); err != nil {
		return slog.LevelInfo
	}
	return level
}

// SearchOptions converts SearchConfig to search options.
func (c SearchConfig) SearchOptions() []search.Option {
	return []search.Option{
		search.WithMaxGenerations(c.MaxGenerations),
		search.WithMaxValues(c.MaxValues),
		search.WithMaxArrows(c.MaxArrows),
	}
}

// NewLibrary builds the op library: the configured catalog ops with the
// catalog combinators, pre-derived Seed times.
//
// Outputs:
//   - *library.Library: The seeded library. Not safe for concurrent use.
//   - error: Wraps library.ErrUnknownOp for an unknown op name. Running out
//     of derivations before Seed is not an error.
func (c LibraryConfig) NewLibrary(logger *slog.Logger) (*library.Library, error) {
	ops, err := catalog.ByName(c.Ops...)
	if err != nil {
		return nil, err
	}
	lib, err := library.New(ops, catalog.Combinators(),
		library.WithMaxDepth(c.MaxDepth),
		library.WithLogger(logger))
	if err != nil {
		return nil, err
	}
	if _, err := lib.Seed(c.Seed); err != nil && !errors.Is(err, library.ErrLibraryExhausted) {
		return nil, err
	}
	return lib, nil
}

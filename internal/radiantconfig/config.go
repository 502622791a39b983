// Package radiantconfig loads radiantd's TOML configuration and wires the
// structured logger, mirroring the shape gateway/config.Config uses for
// service/rate-limit/observability/auth sections, adapted to TOML (the rest
// of the fleet's config layer) instead of YAML.
package radiantconfig

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/BurntSushi/toml"

	"radiantcore/observability/logging"
)

// HTTPConfig configures the lending HTTP API listener.
type HTTPConfig struct {
	ListenAddress string        `toml:"listen"`
	ReadTimeout   time.Duration `toml:"read_timeout"`
	WriteTimeout  time.Duration `toml:"write_timeout"`
	IdleTimeout   time.Duration `toml:"idle_timeout"`
}

// AuthConfig configures JWT bearer authentication on mutating endpoints.
type AuthConfig struct {
	Enabled        bool     `toml:"enabled"`
	HMACSecret     string   `toml:"hmac_secret"`
	Issuer         string   `toml:"issuer"`
	Audience       string   `toml:"audience"`
	ScopeClaim     string   `toml:"scope_claim"`
	OptionalPaths  []string `toml:"optional_paths"`
	AllowAnonymous bool     `toml:"allow_anonymous"`
}

// AdminSigningConfig configures the HMAC request-signing + nonce replay
// protection layered on top of JWT for the admin route group (spec §6's
// init_market/init_reserve/set_emergency_mode/collect_fees surface).
type AdminSigningConfig struct {
	Enabled       bool              `toml:"enabled"`
	Secrets       map[string]string `toml:"secrets"`
	NoncePath     string            `toml:"nonce_path"`
	NonceCapacity int               `toml:"nonce_capacity"`
}

// RateLimitConfig configures a named token-bucket limit applied to one or
// more route groups (the unauthenticated refresh endpoints in particular
// need this to resist spam).
type RateLimitConfig struct {
	ID            string  `toml:"id"`
	RatePerSecond float64 `toml:"rate_per_second"`
	Burst         int     `toml:"burst"`
}

// QuotaConfig bounds how much borrow volume and how many requests per minute
// a single caller may issue against the engine per epoch (adapted from
// native/common's quota guard).
type QuotaConfig struct {
	MaxRequestsPerMin uint32 `toml:"max_requests_per_min"`
	MaxBorrowPerEpoch uint64 `toml:"max_borrow_per_epoch"`
	EpochSeconds      uint32 `toml:"epoch_seconds"`
}

// TelemetryConfig configures the OTLP exporters.
type TelemetryConfig struct {
	Endpoint string `toml:"endpoint"`
	Insecure bool   `toml:"insecure"`
	Metrics  bool   `toml:"metrics"`
	Traces   bool   `toml:"traces"`
	Headers  string `toml:"headers"`
}

// StorageConfig configures the goleveldb persistence directory.
type StorageConfig struct {
	DataDir string `toml:"data_dir"`
}

// LoggingConfig controls where structured logs are written. An empty
// FilePath keeps logs on stdout; a non-empty path rotates via lumberjack.
type LoggingConfig struct {
	FilePath string `toml:"file_path"`
}

// AnalyticsConfig configures the optional Postgres sink and parquet export
// path for historical reserve/obligation snapshots (SPEC_FULL §C).
type AnalyticsConfig struct {
	Enabled         bool   `toml:"enabled"`
	PostgresDSN     string `toml:"postgres_dsn"`
	ParquetExportDir string `toml:"parquet_export_dir"`
}

// Config is radiantd's top-level configuration, loaded from a single TOML
// file the way gateway/config.Config loads its YAML file.
type Config struct {
	Service      string              `toml:"service"`
	Environment  string              `toml:"environment"`
	HTTP         HTTPConfig          `toml:"http"`
	Auth         AuthConfig          `toml:"auth"`
	AdminSigning AdminSigningConfig  `toml:"admin_signing"`
	RateLimits   []RateLimitConfig   `toml:"rate_limits"`
	Quota        QuotaConfig         `toml:"quota"`
	Telemetry    TelemetryConfig     `toml:"telemetry"`
	Storage      StorageConfig       `toml:"storage"`
	Analytics    AnalyticsConfig     `toml:"analytics"`
	Logging      LoggingConfig       `toml:"logging"`
}

// Default returns a Config with the same conservative defaults the original
// Radiant program's reserve/market defaults use elsewhere in this codebase.
func Default() Config {
	return Config{
		Service:     "radiantd",
		Environment: "development",
		HTTP: HTTPConfig{
			ListenAddress: ":8080",
			ReadTimeout:   10 * time.Second,
			WriteTimeout:  10 * time.Second,
			IdleTimeout:   60 * time.Second,
		},
		RateLimits: []RateLimitConfig{
			{ID: "permissionless", RatePerSecond: 5, Burst: 10},
			{ID: "authenticated", RatePerSecond: 20, Burst: 40},
		},
		Quota: QuotaConfig{
			MaxRequestsPerMin: 120,
			EpochSeconds:       60,
		},
		Storage: StorageConfig{DataDir: "./data/radiantd"},
	}
}

// Load reads and decodes a TOML configuration file over Default(), so any
// field the file leaves unset keeps its default. An empty path returns
// Default(); a path that does not exist is an error.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	if _, err := os.Stat(path); err != nil {
		return Config{}, fmt.Errorf("radiantconfig: stat %s: %w", path, err)
	}
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return Config{}, fmt.Errorf("radiantconfig: decode %s: %w", path, err)
	}
	return cfg, nil
}

// Logger builds the structured logger for the configured service/environment,
// reusing observability/logging.Setup's JSON handler and stdlib bridge.
func (c Config) Logger() *slog.Logger {
	return logging.Setup(c.Service, c.Environment, c.Logging.FilePath)
}

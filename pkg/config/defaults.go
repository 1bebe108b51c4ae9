package config

import (
	"strings"
	"time"

	adminstore "github.com/artstore/artstore/pkg/admin/store"
	"github.com/artstore/artstore/pkg/registry"
)

// ApplyDefaults sets default values for any unspecified configuration
// fields. Zero values are replaced; explicit values are preserved.
func ApplyDefaults(cfg *Config) {
	applyLoggingDefaults(&cfg.Logging)
	applyTelemetryDefaults(&cfg.Telemetry)
	applyShutdownTimeoutDefaults(cfg)

	cfg.Redis.ApplyDefaults()
	cfg.Metrics.ApplyDefaults()
	cfg.Events.Producer.ApplyDefaults()

	applyAuthDefaults(&cfg.Auth)
	applyElementDefaults(&cfg.Element)
	applyAdminDefaults(&cfg.Admin)
	applyIngesterDefaults(&cfg.Ingester)
	applyQueryDefaults(&cfg.Query)
}

// applyLoggingDefaults sets logging defaults and normalizes the level.
func applyLoggingDefaults(cfg *LoggingConfig) {
	if cfg.Level == "" {
		cfg.Level = "INFO"
	}
	cfg.Level = strings.ToUpper(cfg.Level)

	if cfg.Format == "" {
		cfg.Format = "text"
	}
	if cfg.Output == "" {
		cfg.Output = "stdout"
	}
}

// applyTelemetryDefaults sets OpenTelemetry defaults.
func applyTelemetryDefaults(cfg *TelemetryConfig) {
	if cfg.Endpoint == "" {
		cfg.Endpoint = "localhost:4317"
	}
	if cfg.SampleRate == 0 {
		cfg.SampleRate = 1.0
	}
	applyProfilingDefaults(&cfg.Profiling)
}

// applyProfilingDefaults sets Pyroscope profiling defaults.
func applyProfilingDefaults(cfg *ProfilingConfig) {
	if cfg.Endpoint == "" {
		cfg.Endpoint = "http://localhost:4040"
	}
	if len(cfg.ProfileTypes) == 0 {
		cfg.ProfileTypes = []string{
			"cpu",
			"alloc_objects",
			"alloc_space",
			"inuse_objects",
			"inuse_space",
			"goroutines",
		}
	}
}

func applyShutdownTimeoutDefaults(cfg *Config) {
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 30 * time.Second
	}
}

func applyAuthDefaults(cfg *AuthConfig) {
	if cfg.Issuer.Issuer == "" {
		cfg.Issuer.Issuer = "artstore"
	}
	if cfg.Verifier.Issuer == "" {
		cfg.Verifier.Issuer = cfg.Issuer.Issuer
	}
}

func applyElementDefaults(cfg *ElementConfig) {
	if cfg.Mode == "" {
		cfg.Mode = string(registry.ModeRW)
	}
	if cfg.Storage.Type == "" {
		cfg.Storage.Type = "fs"
	}
	if cfg.RetentionDays == 0 {
		cfg.RetentionDays = 365
	}
	if cfg.API.Port == 0 {
		cfg.API.Port = 8081
	}
	cfg.Report.ApplyDefaults()
	cfg.API.ApplyDefaults()
}

func applyAdminDefaults(cfg *AdminConfig) {
	cfg.Database.ApplyDefaults()
	cfg.Rotation.ApplyDefaults()
	cfg.Topology.ApplyDefaults()
	cfg.API.ApplyDefaults()
}

func applyIngesterDefaults(cfg *IngesterConfig) {
	if cfg.AdminURL == "" {
		cfg.AdminURL = "http://localhost:8080"
	}
	if cfg.API.Port == 0 {
		cfg.API.Port = 8082
	}
	cfg.RateLimit.ApplyDefaults()
	cfg.API.ApplyDefaults()
}

func applyQueryDefaults(cfg *QueryConfig) {
	if cfg.Consumer.Group == "" {
		cfg.Consumer.Group = "query-indexers"
	}
	if cfg.API.Port == 0 {
		cfg.API.Port = 8083
	}
	cfg.Store.ApplyDefaults()
	cfg.Consumer.ApplyDefaults()
	cfg.RateLimit.ApplyDefaults()
	cfg.API.ApplyDefaults()
}

// GetDefaultConfig returns a Config with all default values applied.
//
// Useful for generating sample configuration files, testing, and
// documentation.
func GetDefaultConfig() *Config {
	cfg := &Config{
		Admin: AdminConfig{
			Database: adminstore.Config{
				Type: adminstore.DatabaseTypeSQLite,
			},
		},
	}

	ApplyDefaults(cfg)
	return cfg
}

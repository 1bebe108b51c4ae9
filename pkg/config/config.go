// Package config loads the ArtStore configuration from YAML files and
// ARTSTORE_-prefixed environment variables. One file configures all four
// services; each start command reads its own section plus the shared ones.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/artstore/artstore/internal/bytesize"
	"github.com/artstore/artstore/pkg/admin"
	"github.com/artstore/artstore/pkg/admin/keys"
	adminstore "github.com/artstore/artstore/pkg/admin/store"
	"github.com/artstore/artstore/pkg/api"
	"github.com/artstore/artstore/pkg/auth"
	"github.com/artstore/artstore/pkg/element"
	"github.com/artstore/artstore/pkg/events"
	"github.com/artstore/artstore/pkg/metrics"
	querystore "github.com/artstore/artstore/pkg/query/store"
	"github.com/artstore/artstore/pkg/ratelimit"
	"github.com/artstore/artstore/pkg/registry"
)

// Config is the full ArtStore configuration.
//
// Shared sections (logging, telemetry, redis, metrics, auth, events) apply
// to whichever service is started; the per-service sections are only read
// by their own start command, so a config file may leave the others empty.
//
// Configuration sources (in order of precedence):
//  1. Environment variables (ARTSTORE_*)
//  2. Configuration file (YAML)
//  3. Default values
type Config struct {
	// Logging controls log output behavior.
	Logging LoggingConfig `mapstructure:"logging" yaml:"logging"`

	// Telemetry controls OpenTelemetry tracing and Pyroscope profiling.
	Telemetry TelemetryConfig `mapstructure:"telemetry" yaml:"telemetry"`

	// ShutdownTimeout is the maximum time to wait for graceful shutdown.
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"required,gt=0" yaml:"shutdown_timeout"`

	// Redis configures the shared Redis connection used for topology,
	// file events, locks, and rate limiting.
	Redis registry.RedisConfig `mapstructure:"redis" yaml:"redis"`

	// Metrics configures the Prometheus metrics listener.
	Metrics metrics.Config `mapstructure:"metrics" yaml:"metrics"`

	// Auth configures JWT key material, issuance, and validation.
	Auth AuthConfig `mapstructure:"auth" yaml:"auth"`

	// Events configures the file-events stream producer. The consumer
	// side lives under the query section.
	Events EventsConfig `mapstructure:"events" yaml:"events"`

	// Element configures the storage-element service. Validated by the
	// element start command, not at load time, so one config file can
	// serve any service.
	Element ElementConfig `mapstructure:"element" validate:"-" yaml:"element"`

	// Admin configures the admin module.
	Admin AdminConfig `mapstructure:"admin" validate:"-" yaml:"admin"`

	// Ingester configures the upload router.
	Ingester IngesterConfig `mapstructure:"ingester" validate:"-" yaml:"ingester"`

	// Query configures the read-side search service.
	Query QueryConfig `mapstructure:"query" validate:"-" yaml:"query"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	// Level is the minimum log level to output.
	// Valid values: DEBUG, INFO, WARN, ERROR (case-insensitive).
	Level string `mapstructure:"level" validate:"required,oneof=DEBUG INFO WARN ERROR debug info warn error" yaml:"level"`

	// Format specifies the log output format: text or json.
	Format string `mapstructure:"format" validate:"required,oneof=text json" yaml:"format"`

	// Output specifies where logs are written: stdout, stderr, or a file path.
	Output string `mapstructure:"output" validate:"required" yaml:"output"`
}

// TelemetryConfig controls OpenTelemetry distributed tracing.
type TelemetryConfig struct {
	// Enabled controls whether distributed tracing is enabled.
	// Default: false.
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// Endpoint is the OTLP collector endpoint (host:port).
	// Default: "localhost:4317".
	Endpoint string `mapstructure:"endpoint" yaml:"endpoint"`

	// Insecure controls whether to use a non-TLS connection.
	// Default: true.
	Insecure bool `mapstructure:"insecure" yaml:"insecure"`

	// SampleRate controls trace sampling (0.0 to 1.0). Default: 1.0.
	SampleRate float64 `mapstructure:"sample_rate" validate:"omitempty,gte=0,lte=1" yaml:"sample_rate"`

	// Profiling contains Pyroscope continuous profiling configuration.
	Profiling ProfilingConfig `mapstructure:"profiling" yaml:"profiling"`
}

// ProfilingConfig controls Pyroscope continuous profiling.
type ProfilingConfig struct {
	// Enabled controls whether continuous profiling is enabled.
	// Default: false.
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// Endpoint is the Pyroscope server URL. Default: "http://localhost:4040".
	Endpoint string `mapstructure:"endpoint" yaml:"endpoint"`

	// ProfileTypes selects which profiles to collect.
	ProfileTypes []string `mapstructure:"profile_types" yaml:"profile_types"`
}

// AuthConfig groups JWT concerns. Keys feed the verifier on every service;
// only the admin module issues tokens, and it signs with its own rotating
// database-backed keys rather than this key material.
type AuthConfig struct {
	// Keys is the file- or PEM-backed key material used for local token
	// validation on the element, ingester, and query services.
	Keys auth.KeyManagerConfig `mapstructure:"keys" yaml:"keys"`

	// Issuer tunes token minting on the admin module.
	Issuer auth.IssuerConfig `mapstructure:"issuer" yaml:"issuer"`

	// Verifier tunes token validation on every service.
	Verifier auth.VerifierConfig `mapstructure:"verifier" yaml:"verifier"`
}

// EventsConfig configures the file-events stream producer.
type EventsConfig struct {
	Producer events.ProducerConfig `mapstructure:"producer" yaml:"producer"`
}

// StorageConfig selects and configures the element's object store backend.
type StorageConfig struct {
	// Type selects the backend: fs or s3. Default: fs.
	Type string `mapstructure:"type" validate:"omitempty,oneof=fs s3" yaml:"type"`

	// FS configures the filesystem backend.
	FS FSStorageConfig `mapstructure:"fs" yaml:"fs"`

	// S3 configures the S3-compatible backend.
	S3 S3StorageConfig `mapstructure:"s3" yaml:"s3"`
}

// FSStorageConfig configures the filesystem backend.
type FSStorageConfig struct {
	// BasePath is the root directory for file storage.
	BasePath string `mapstructure:"base_path" yaml:"base_path"`
}

// S3StorageConfig configures the S3-compatible backend.
type S3StorageConfig struct {
	// Bucket is the S3 bucket name.
	Bucket string `mapstructure:"bucket" yaml:"bucket"`

	// Region is the AWS region. Empty uses the SDK default chain.
	Region string `mapstructure:"region" yaml:"region,omitempty"`

	// Endpoint overrides the S3 endpoint URL for S3-compatible services.
	Endpoint string `mapstructure:"endpoint" yaml:"endpoint,omitempty"`

	// AccessKeyID and SecretAccessKey are static credentials for
	// S3-compatible services. Empty uses the SDK default chain.
	AccessKeyID     string `mapstructure:"access_key_id" yaml:"access_key_id,omitempty"`
	SecretAccessKey string `mapstructure:"secret_access_key" yaml:"secret_access_key,omitempty"`

	// KeyPrefix is prepended to all object keys.
	KeyPrefix string `mapstructure:"key_prefix" yaml:"key_prefix,omitempty"`

	// ForcePathStyle forces path-style addressing (MinIO, Localstack).
	ForcePathStyle bool `mapstructure:"force_path_style" yaml:"force_path_style"`

	// PartSize is the multipart chunk size for streamed writes.
	// Supports human-readable values like "8Mi". Default: 8 MiB.
	PartSize bytesize.ByteSize `mapstructure:"part_size" yaml:"part_size,omitempty"`
}

// ElementConfig configures the storage-element service.
type ElementConfig struct {
	// ID is the element's stable identifier in the topology.
	ID string `mapstructure:"id" yaml:"id"`

	// Name is the human-readable element name.
	Name string `mapstructure:"name" yaml:"name"`

	// APIURL is the base URL other services reach this element at.
	// Example: http://se-a.internal:8081
	APIURL string `mapstructure:"api_url" yaml:"api_url"`

	// Priority orders elements during upload selection; lower goes first.
	Priority uint16 `mapstructure:"priority" yaml:"priority"`

	// RetentionDays is the default retention advertised in the topology.
	RetentionDays int `mapstructure:"retention_days" validate:"omitempty,min=1,max=3650" yaml:"retention_days"`

	// Mode is the element's startup mode: RW, RO, EDIT, or AR.
	// EDIT can only be entered this way; there is no runtime transition
	// into it.
	Mode string `mapstructure:"mode" validate:"omitempty,oneof=RW RO EDIT AR" yaml:"mode"`

	// Storage selects the object store backend.
	Storage StorageConfig `mapstructure:"storage" yaml:"storage"`

	// WALPath is the SQLite file backing the write-ahead log.
	WALPath string `mapstructure:"wal_path" yaml:"wal_path"`

	// CachePath is the SQLite file backing the local metadata cache.
	CachePath string `mapstructure:"cache_path" yaml:"cache_path"`

	// Report tunes the registry heartbeat loop.
	Report element.ReporterConfig `mapstructure:"report" yaml:"report"`

	// API configures the element's HTTP server.
	API api.ServerConfig `mapstructure:"api" yaml:"api"`
}

// AdminConfig configures the admin module.
type AdminConfig struct {
	// Database configures the registry database (SQLite or PostgreSQL).
	Database adminstore.Config `mapstructure:"database" yaml:"database"`

	// Rotation tunes the JWT signing-key rotation schedule.
	Rotation keys.RotatorConfig `mapstructure:"rotation" yaml:"rotation"`

	// Topology tunes snapshot publication.
	Topology admin.TopologyConfig `mapstructure:"topology" yaml:"topology"`

	// API configures the admin module's HTTP server.
	API api.ServerConfig `mapstructure:"api" yaml:"api"`
}

// IngesterConfig configures the upload router.
type IngesterConfig struct {
	// AdminURL is the admin module's base URL for file registration.
	AdminURL string `mapstructure:"admin_url" yaml:"admin_url"`

	// ClientID and ClientSecret are the ingester's service-account
	// credentials against the admin module.
	ClientID     string `mapstructure:"client_id" yaml:"client_id"`
	ClientSecret string `mapstructure:"client_secret" yaml:"client_secret,omitempty"`

	// MaxUploadSize rejects declared sizes above this bound. Zero means
	// no ingester-side cap; elements still enforce their own space checks.
	MaxUploadSize bytesize.ByteSize `mapstructure:"max_upload_size" yaml:"max_upload_size,omitempty"`

	// RateLimit tunes the per-client sliding window.
	RateLimit ratelimit.Config `mapstructure:"rate_limit" yaml:"rate_limit"`

	// API configures the ingester's HTTP server.
	API api.ServerConfig `mapstructure:"api" yaml:"api"`
}

// QueryConfig configures the read-side search service.
type QueryConfig struct {
	// Store configures the Postgres search index.
	Store querystore.Config `mapstructure:"store" yaml:"store"`

	// Consumer configures the file-events group consumer.
	Consumer events.ConsumerConfig `mapstructure:"consumer" yaml:"consumer"`

	// RateLimit tunes the per-client sliding window.
	RateLimit ratelimit.Config `mapstructure:"rate_limit" yaml:"rate_limit"`

	// API configures the query service's HTTP server.
	API api.ServerConfig `mapstructure:"api" yaml:"api"`
}

// Load loads configuration from file, environment, and defaults.
//
// Configuration precedence (highest to lowest):
//  1. Environment variables (ARTSTORE_*)
//  2. Configuration file
//  3. Default values
//
// An empty configPath uses the default location; a missing file is not an
// error and yields the defaults.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	setupViper(v, configPath)

	configFileFound, err := readConfigFile(v)
	if err != nil {
		return nil, err
	}

	if !configFileFound {
		cfg := GetDefaultConfig()
		return cfg, nil
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, viper.DecodeHook(configDecodeHooks())); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	ApplyDefaults(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}

// MustLoad loads configuration with helpful error messages when the file
// is missing.
func MustLoad(configPath string) (*Config, error) {
	if configPath == "" {
		if !DefaultConfigExists() {
			return nil, fmt.Errorf("no configuration file found at default location: %s\n\n"+
				"Create one:\n"+
				"  artstore init\n\n"+
				"Or specify a custom config file:\n"+
				"  artstore <command> --config /path/to/config.yaml",
				GetDefaultConfigPath())
		}
		configPath = GetDefaultConfigPath()
	} else {
		if _, err := os.Stat(configPath); os.IsNotExist(err) {
			return nil, fmt.Errorf("configuration file not found: %s\n\n"+
				"Create it first:\n"+
				"  artstore init --config %s",
				configPath, configPath)
		}
	}

	cfg, err := Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	return cfg, nil
}

// SaveConfig writes the configuration to path in YAML.
func SaveConfig(cfg *Config, path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	// 0600: the file may carry client secrets and Redis passwords.
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// setupViper configures environment variable support and the file search.
func setupViper(v *viper.Viper, configPath string) {
	// Environment variables use the ARTSTORE_ prefix with underscores.
	// Example: ARTSTORE_LOGGING_LEVEL=DEBUG
	v.SetEnvPrefix("ARTSTORE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		configDir := getConfigDir()
		v.AddConfigPath(configDir)
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}
}

// readConfigFile reads the configuration file if it exists.
// Returns (fileFound, error).
func readConfigFile(v *viper.Viper) (bool, error) {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return false, nil
		}
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to read config file: %w", err)
	}

	return true, nil
}

// configDecodeHooks returns the combined decode hook for all custom types.
func configDecodeHooks() mapstructure.DecodeHookFunc {
	return mapstructure.ComposeDecodeHookFunc(
		byteSizeDecodeHook(),
		durationDecodeHook(),
		boolDecodeHook(),
	)
}

// byteSizeDecodeHook converts strings and numbers to bytesize.ByteSize so
// config files can say "1Gi", "500Mi", "100MB" or a plain byte count.
func byteSizeDecodeHook() mapstructure.DecodeHookFunc {
	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if to != reflect.TypeOf(bytesize.ByteSize(0)) {
			return data, nil
		}

		switch v := data.(type) {
		case string:
			return bytesize.ParseByteSize(v)
		case int:
			return bytesize.ByteSize(v), nil
		case int64:
			return bytesize.ByteSize(v), nil
		case uint64:
			return bytesize.ByteSize(v), nil
		case float64:
			// YAML often deserializes numbers as float64
			return bytesize.ByteSize(v), nil
		default:
			return data, nil
		}
	}
}

// durationDecodeHook converts strings to time.Duration so config files can
// say "30s", "5m", "1h".
func durationDecodeHook() mapstructure.DecodeHookFunc {
	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if to != reflect.TypeOf(time.Duration(0)) {
			return data, nil
		}

		switch v := data.(type) {
		case string:
			return time.ParseDuration(v)
		case int:
			// Assume nanoseconds for raw integers
			return time.Duration(v), nil
		case int64:
			return time.Duration(v), nil
		case float64:
			return time.Duration(v), nil
		default:
			return data, nil
		}
	}
}

// boolDecodeHook converts "on"/"off" strings to bool. YAML booleans decode
// natively; this hook covers environment values and quoted strings, and
// rejects anything that is not a recognizable boolean instead of silently
// treating it as false.
func boolDecodeHook() mapstructure.DecodeHookFunc {
	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if from.Kind() != reflect.String || to.Kind() != reflect.Bool {
			return data, nil
		}

		s, ok := data.(string)
		if !ok {
			return data, nil
		}
		switch strings.ToLower(strings.TrimSpace(s)) {
		case "on", "true", "yes", "1":
			return true, nil
		case "off", "false", "no", "0":
			return false, nil
		default:
			return nil, fmt.Errorf("invalid boolean value %q (use on or off)", s)
		}
	}
}

// getConfigDir returns the configuration directory path.
//
// Uses XDG_CONFIG_HOME if set, otherwise ~/.config, or falls back to the
// current directory if the home directory cannot be determined.
func getConfigDir() string {
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "artstore")
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}

	return filepath.Join(home, ".config", "artstore")
}

// GetDefaultConfigPath returns the default configuration file path.
func GetDefaultConfigPath() string {
	return filepath.Join(getConfigDir(), "config.yaml")
}

// DefaultConfigExists checks if a config file exists at the default location.
func DefaultConfigExists() bool {
	path := GetDefaultConfigPath()
	_, err := os.Stat(path)
	return err == nil
}

// GetConfigDir returns the configuration directory path (exposed for the
// init command).
func GetConfigDir() string {
	return getConfigDir()
}

package config

import (
	"fmt"

	"github.com/go-playground/validator/v10"
)

// Validate checks the shared configuration sections for errors.
//
// Struct tags cover field-level rules; cross-field rules that tags cannot
// express are checked explicitly. The per-service sections are excluded
// here: each start command calls Validate on its own section, so a config
// file used for the query service does not need a storage element in it.
func Validate(cfg *Config) error {
	if err := validateTags(cfg); err != nil {
		return err
	}

	if cfg.Telemetry.Enabled && cfg.Telemetry.Endpoint == "" {
		return fmt.Errorf("telemetry is enabled but no endpoint is configured")
	}
	if cfg.Telemetry.Profiling.Enabled && cfg.Telemetry.Profiling.Endpoint == "" {
		return fmt.Errorf("profiling is enabled but no endpoint is configured")
	}

	return nil
}

// validateTags runs validator/v10 over a struct and renders the first
// failure with its field path and tag name.
func validateTags(v interface{}) error {
	if err := validator.New().Struct(v); err != nil {
		if validationErrors, ok := err.(validator.ValidationErrors); ok {
			for _, fieldError := range validationErrors {
				return fmt.Errorf("invalid value for %s: failed %q validation",
					fieldError.Namespace(), fieldError.Tag())
			}
		}
		return fmt.Errorf("config validation: %w", err)
	}
	return nil
}

// Validate checks the fields the storage-element service cannot start
// without.
func (c *ElementConfig) Validate() error {
	if err := validateTags(c); err != nil {
		return err
	}
	if c.ID == "" {
		return fmt.Errorf("element id is required")
	}
	if c.APIURL == "" {
		return fmt.Errorf("element api_url is required")
	}
	if c.WALPath == "" {
		return fmt.Errorf("element wal_path is required")
	}
	if c.CachePath == "" {
		return fmt.Errorf("element cache_path is required")
	}
	switch c.Storage.Type {
	case "fs":
		if c.Storage.FS.BasePath == "" {
			return fmt.Errorf("element storage fs.base_path is required")
		}
	case "s3":
		if c.Storage.S3.Bucket == "" {
			return fmt.Errorf("element storage s3.bucket is required")
		}
	default:
		return fmt.Errorf("unsupported storage type: %q", c.Storage.Type)
	}
	return nil
}

// Validate checks the fields the admin module cannot start without.
func (c *AdminConfig) Validate() error {
	if err := c.Database.Validate(); err != nil {
		return fmt.Errorf("admin database: %w", err)
	}
	return nil
}

// Validate checks the fields the ingester cannot start without.
func (c *IngesterConfig) Validate() error {
	if c.AdminURL == "" {
		return fmt.Errorf("ingester admin_url is required")
	}
	if c.ClientID == "" {
		return fmt.Errorf("ingester client_id is required")
	}
	if c.ClientSecret == "" {
		return fmt.Errorf("ingester client_secret is required")
	}
	return nil
}

// Validate checks the fields the query service cannot start without.
func (c *QueryConfig) Validate() error {
	if err := c.Store.Validate(); err != nil {
		return fmt.Errorf("query store: %w", err)
	}
	return nil
}

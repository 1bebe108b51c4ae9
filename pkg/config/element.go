package config

import (
	"context"
	"fmt"

	"github.com/artstore/artstore/pkg/element"
	"github.com/artstore/artstore/pkg/element/store"
	"github.com/artstore/artstore/pkg/element/store/fs"
	"github.com/artstore/artstore/pkg/element/store/s3"
	"github.com/artstore/artstore/pkg/registry"
)

// CreateBackend builds the element's object store backend from
// configuration.
func CreateBackend(ctx context.Context, cfg StorageConfig) (store.Backend, error) {
	switch cfg.Type {
	case "fs", "":
		return fs.New(fs.DefaultConfig(cfg.FS.BasePath))
	case "s3":
		return s3.NewFromConfig(ctx, s3.Config{
			Bucket:          cfg.S3.Bucket,
			Region:          cfg.S3.Region,
			Endpoint:        cfg.S3.Endpoint,
			AccessKeyID:     cfg.S3.AccessKeyID,
			SecretAccessKey: cfg.S3.SecretAccessKey,
			KeyPrefix:       cfg.S3.KeyPrefix,
			ForcePathStyle:  cfg.S3.ForcePathStyle,
			PartSize:        int64(cfg.S3.PartSize),
		})
	default:
		return nil, fmt.Errorf("unknown storage type: %q", cfg.Type)
	}
}

// StorageType maps the backend selection onto the registry's vocabulary.
func (c *StorageConfig) StorageType() registry.StorageType {
	if c.Type == "s3" {
		return registry.StorageTypeS3
	}
	return registry.StorageTypeLocal
}

// InitialMode parses the configured startup mode.
func (c *ElementConfig) InitialMode() registry.Mode {
	m := registry.Mode(c.Mode)
	if !m.Valid() {
		return registry.ModeRW
	}
	return m
}

// Identity collects the static slice of the element's registry record.
func (c *ElementConfig) Identity() element.Identity {
	return element.Identity{
		ElementID:     c.ID,
		Name:          c.Name,
		APIURL:        c.APIURL,
		Priority:      c.Priority,
		StorageType:   c.Storage.StorageType(),
		RetentionDays: c.RetentionDays,
	}
}

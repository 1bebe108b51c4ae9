// Package store persists the query service's search index: one Postgres row
// per file, maintained from the file-events stream and queried through a
// generated full-text vector. Event application is idempotent, so redelivered
// stream entries leave the index unchanged.
package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/artstore/artstore/internal/logger"
)

// ErrFileNotFound is returned when a file ID has no row in the index.
var ErrFileNotFound = errors.New("file not found in search index")

// Store is the Postgres-backed search index.
type Store struct {
	pool *pgxpool.Pool
}

// Open connects to Postgres, verifies the connection, and optionally applies
// pending migrations.
func Open(ctx context.Context, cfg Config) (*Store, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid query store config: %w", err)
	}

	poolConfig, err := pgxpool.ParseConfig(cfg.ConnectionString())
	if err != nil {
		return nil, fmt.Errorf("parse connection string: %w", err)
	}
	poolConfig.MaxConns = cfg.MaxConns
	poolConfig.MinConns = cfg.MinConns
	poolConfig.MaxConnLifetime = cfg.MaxConnLifetime
	poolConfig.MaxConnIdleTime = cfg.MaxConnIdleTime
	poolConfig.HealthCheckPeriod = cfg.HealthCheckPeriod
	if cfg.QueryTimeout > 0 {
		poolConfig.ConnConfig.RuntimeParams["statement_timeout"] = fmt.Sprintf("%dms", cfg.QueryTimeout.Milliseconds())
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	if cfg.AutoMigrate {
		if err := Migrate(ctx, cfg); err != nil {
			pool.Close()
			return nil, err
		}
	}

	logger.Info("query store opened",
		"host", cfg.Host,
		"database", cfg.Database,
		"max_conns", cfg.MaxConns)

	return &Store{pool: pool}, nil
}

// Ping reports whether the database is reachable. Readiness checks use it.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close releases the connection pool.
func (s *Store) Close() {
	s.pool.Close()
}

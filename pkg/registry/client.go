package registry

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/artstore/artstore/internal/logger"
)

// RedisConfig configures the shared Redis connection.
type RedisConfig struct {
	// Addr is the host:port of the Redis server. Default: localhost:6379.
	Addr string `mapstructure:"addr" yaml:"addr"`

	// Password authenticates the connection. Empty means no AUTH.
	Password string `mapstructure:"password" yaml:"password"`

	// DB selects the logical database. Default: 0.
	DB int `mapstructure:"db" validate:"omitempty,min=0,max=15" yaml:"db"`

	// PoolSize caps the connection pool. Default: 10.
	PoolSize int `mapstructure:"pool_size" yaml:"pool_size"`

	// MinIdleConns keeps warm connections around. Default: 2.
	MinIdleConns int `mapstructure:"min_idle_conns" yaml:"min_idle_conns"`

	// DialTimeout bounds the initial connect. Default: 5s.
	DialTimeout time.Duration `mapstructure:"dial_timeout" yaml:"dial_timeout"`
}

// ApplyDefaults fills in zero values with sensible defaults.
func (c *RedisConfig) ApplyDefaults() {
	if c.Addr == "" {
		c.Addr = "localhost:6379"
	}
	if c.PoolSize <= 0 {
		c.PoolSize = 10
	}
	if c.MinIdleConns <= 0 {
		c.MinIdleConns = 2
	}
	if c.DialTimeout == 0 {
		c.DialTimeout = 5 * time.Second
	}
}

// NewClient creates a Redis client and verifies connectivity with a ping.
//
// Topology, events, rate limiting and locks all share one client; callers
// own its lifecycle and should Close it on shutdown.
func NewClient(ctx context.Context, config RedisConfig) (*redis.Client, error) {
	config.ApplyDefaults()

	client := redis.NewClient(&redis.Options{
		Addr:         config.Addr,
		Password:     config.Password,
		DB:           config.DB,
		PoolSize:     config.PoolSize,
		MinIdleConns: config.MinIdleConns,
		DialTimeout:  config.DialTimeout,
	})

	pingCtx, cancel := context.WithTimeout(ctx, config.DialTimeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", config.Addr, err)
	}

	logger.Debug("redis client connected", "addr", config.Addr, "db", config.DB)
	return client, nil
}

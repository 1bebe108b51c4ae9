package events

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/artstore/artstore/internal/logger"
)

const (
	// DefaultStream is the shared file lifecycle stream.
	DefaultStream = "file-events"

	// DefaultDeadLetterStream receives entries that exhausted their
	// delivery budget.
	DefaultDeadLetterStream = "file-events:dead-letter"
)

// ProducerConfig controls where events are appended and how far the stream
// is allowed to grow before Redis trims old entries.
type ProducerConfig struct {
	Stream string `mapstructure:"stream" yaml:"stream"`
	MaxLen int64  `mapstructure:"max_len" yaml:"max_len"`
}

// ApplyDefaults fills zero values with production defaults.
func (c *ProducerConfig) ApplyDefaults() {
	if c.Stream == "" {
		c.Stream = DefaultStream
	}
	if c.MaxLen == 0 {
		c.MaxLen = 100_000
	}
}

// Producer appends file events to the stream.
type Producer struct {
	client *redis.Client
	config ProducerConfig
}

// NewProducer returns a producer for the configured stream.
func NewProducer(client *redis.Client, config ProducerConfig) *Producer {
	config.ApplyDefaults()
	return &Producer{client: client, config: config}
}

// Publish appends the event and returns its stream entry ID. The stream is
// trimmed approximately to the configured MaxLen. Callers on the write path
// must treat failures as non-fatal: the originating operation already
// committed.
func (p *Producer) Publish(ctx context.Context, event FileEvent) (string, error) {
	if !event.Type.Valid() {
		return "", fmt.Errorf("invalid event type %q", event.Type)
	}
	if event.FileID == "" {
		return "", fmt.Errorf("event for %s has no file ID", event.Type)
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	id, err := p.client.XAdd(ctx, &redis.XAddArgs{
		Stream: p.config.Stream,
		MaxLen: p.config.MaxLen,
		Approx: true,
		Values: event.streamValues(),
	}).Result()
	if err != nil {
		return "", fmt.Errorf("failed to publish %s for file %s: %w", event.Type, event.FileID, err)
	}

	logger.Debug("published file event",
		logger.EventType(string(event.Type)),
		logger.FileID(event.FileID),
		logger.StreamID(id))
	return id, nil
}

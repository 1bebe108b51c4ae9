package events

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/artstore/artstore/internal/logger"
	"github.com/artstore/artstore/internal/telemetry"
)

// Handler processes one delivered event. A nil return acknowledges the
// entry; an error leaves it in the pending list for the claim sweep.
type Handler func(ctx context.Context, msg Message) error

// ConsumerConfig controls group membership and redelivery behavior.
type ConsumerConfig struct {
	Stream           string        `mapstructure:"stream" yaml:"stream"`
	Group            string        `mapstructure:"group" yaml:"group"`
	Consumer         string        `mapstructure:"consumer" yaml:"consumer"`
	DeadLetterStream string        `mapstructure:"dead_letter_stream" yaml:"dead_letter_stream"`
	DeadLetterMaxLen int64         `mapstructure:"dead_letter_max_len" yaml:"dead_letter_max_len"`
	BatchSize        int64         `mapstructure:"batch_size" yaml:"batch_size"`
	Block            time.Duration `mapstructure:"block" yaml:"block"`
	MaxDeliveries    int64         `mapstructure:"max_deliveries" yaml:"max_deliveries"`
	ClaimMinIdle     time.Duration `mapstructure:"claim_min_idle" yaml:"claim_min_idle"`
	ClaimInterval    time.Duration `mapstructure:"claim_interval" yaml:"claim_interval"`
}

// ApplyDefaults fills zero values with production defaults. Block may be set
// negative for non-blocking reads.
func (c *ConsumerConfig) ApplyDefaults() {
	if c.Stream == "" {
		c.Stream = DefaultStream
	}
	if c.Group == "" {
		c.Group = "file-processors"
	}
	if c.Consumer == "" {
		host, err := os.Hostname()
		if err != nil || host == "" {
			host = "consumer"
		}
		c.Consumer = fmt.Sprintf("%s-%d", host, os.Getpid())
	}
	if c.DeadLetterStream == "" {
		c.DeadLetterStream = DefaultDeadLetterStream
	}
	if c.DeadLetterMaxLen == 0 {
		c.DeadLetterMaxLen = 10_000
	}
	if c.BatchSize == 0 {
		c.BatchSize = 16
	}
	if c.Block == 0 {
		c.Block = 5 * time.Second
	}
	if c.MaxDeliveries == 0 {
		c.MaxDeliveries = 5
	}
	if c.ClaimMinIdle == 0 {
		c.ClaimMinIdle = 30 * time.Second
	}
	if c.ClaimInterval == 0 {
		c.ClaimInterval = 15 * time.Second
	}
}

// Consumer reads file events through a consumer group and acknowledges them
// once the handler succeeds.
type Consumer struct {
	client  *redis.Client
	config  ConsumerConfig
	handler Handler
}

// NewConsumer returns a consumer bound to the configured group. The client
// should be dedicated to stream reads so blocking XREADGROUP calls do not
// starve other Redis traffic.
func NewConsumer(client *redis.Client, config ConsumerConfig, handler Handler) *Consumer {
	config.ApplyDefaults()
	return &Consumer{client: client, config: config, handler: handler}
}

// EnsureGroup creates the consumer group (and the stream, if missing). A
// group that already exists is not an error.
func (c *Consumer) EnsureGroup(ctx context.Context) error {
	err := c.client.XGroupCreateMkStream(ctx, c.config.Stream, c.config.Group, "0").Err()
	if err != nil && !strings.Contains(err.Error(), "BUSYGROUP") {
		return fmt.Errorf("failed to create consumer group %s: %w", c.config.Group, err)
	}
	return nil
}

// Run consumes until the context is cancelled: new entries continuously,
// plus a periodic sweep that reclaims stalled pending entries.
func (c *Consumer) Run(ctx context.Context) error {
	if err := c.EnsureGroup(ctx); err != nil {
		return err
	}

	logger.Info("event consumer started",
		"stream", c.config.Stream,
		"group", c.config.Group,
		"consumer", c.config.Consumer)

	ticker := time.NewTicker(c.config.ClaimInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info("event consumer stopped", "group", c.config.Group)
			return nil
		case <-ticker.C:
			if _, _, err := c.SweepPending(ctx); err != nil && ctx.Err() == nil {
				logger.Warn("pending entry sweep failed", logger.Err(err))
			}
		default:
		}

		acked, err := c.ProcessOnce(ctx)
		if err != nil {
			if ctx.Err() != nil {
				logger.Info("event consumer stopped", "group", c.config.Group)
				return nil
			}
			logger.Warn("stream read failed", logger.Err(err))
			if !sleepCtx(ctx, time.Second) {
				return nil
			}
			continue
		}
		// Non-blocking reads need pacing on an idle stream.
		if acked == 0 && c.config.Block < 0 {
			if !sleepCtx(ctx, 10*time.Millisecond) {
				return nil
			}
		}
	}
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	select {
	case <-ctx.Done():
		return false
	case <-time.After(d):
		return true
	}
}

// ProcessOnce reads one batch of fresh entries and runs the handler on
// each. It returns the number of entries acknowledged.
func (c *Consumer) ProcessOnce(ctx context.Context) (int, error) {
	streams, err := c.client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    c.config.Group,
		Consumer: c.config.Consumer,
		Streams:  []string{c.config.Stream, ">"},
		Count:    c.config.BatchSize,
		Block:    c.config.Block,
	}).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		return 0, err
	}

	acked := 0
	for _, stream := range streams {
		for _, raw := range stream.Messages {
			if c.process(ctx, raw, 1) {
				acked++
			}
		}
	}
	return acked, nil
}

// SweepPending reclaims entries that sat unacknowledged past ClaimMinIdle.
// Entries still under the delivery budget are re-run through the handler;
// the rest move to the dead-letter stream.
func (c *Consumer) SweepPending(ctx context.Context) (retried, deadLettered int, err error) {
	pending, err := c.client.XPendingExt(ctx, &redis.XPendingExtArgs{
		Stream: c.config.Stream,
		Group:  c.config.Group,
		Start:  "-",
		End:    "+",
		Count:  c.config.BatchSize,
	}).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, 0, nil
		}
		return 0, 0, err
	}

	for _, entry := range pending {
		if entry.Idle < c.config.ClaimMinIdle {
			continue
		}

		claimed, err := c.client.XClaim(ctx, &redis.XClaimArgs{
			Stream:   c.config.Stream,
			Group:    c.config.Group,
			Consumer: c.config.Consumer,
			MinIdle:  c.config.ClaimMinIdle,
			Messages: []string{entry.ID},
		}).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				continue
			}
			return retried, deadLettered, err
		}
		if len(claimed) == 0 {
			// Acked or grabbed by another consumer in the meantime.
			continue
		}
		raw := claimed[0]

		if entry.RetryCount >= c.config.MaxDeliveries {
			if err := c.deadLetter(ctx, raw, entry.RetryCount, "delivery budget exhausted"); err != nil {
				return retried, deadLettered, err
			}
			deadLettered++
			logger.Warn("moved entry to dead-letter stream",
				logger.StreamID(raw.ID),
				"deliveries", entry.RetryCount)
			continue
		}

		if c.process(ctx, raw, entry.RetryCount+1) {
			retried++
		}
	}
	return retried, deadLettered, nil
}

// process decodes and handles one raw entry. Undecodable entries go straight
// to the dead-letter stream since redelivery cannot fix them. Returns true
// when the entry was acknowledged after a successful handler run.
func (c *Consumer) process(ctx context.Context, raw redis.XMessage, delivery int64) bool {
	msg, err := decodeMessage(raw)
	if err != nil {
		logger.Warn("dead-lettering undecodable entry", logger.StreamID(raw.ID), logger.Err(err))
		if dlErr := c.deadLetter(ctx, raw, delivery, err.Error()); dlErr != nil {
			logger.Error("failed to dead-letter entry", logger.StreamID(raw.ID), logger.Err(dlErr))
		}
		return false
	}

	if err := c.handle(ctx, msg); err != nil {
		logger.Warn("event handler failed, entry stays pending",
			logger.StreamID(msg.ID),
			logger.EventType(string(msg.Event.Type)),
			logger.FileID(msg.Event.FileID),
			"delivery", delivery,
			logger.Err(err))
		return false
	}

	if err := c.client.XAck(ctx, c.config.Stream, c.config.Group, raw.ID).Err(); err != nil {
		logger.Warn("failed to ack entry", logger.StreamID(raw.ID), logger.Err(err))
		return false
	}
	return true
}

// handle runs the handler under a span covering one delivery.
func (c *Consumer) handle(ctx context.Context, msg Message) (err error) {
	ctx, span := telemetry.StartEventSpan(ctx, "apply", c.config.Stream,
		telemetry.EventType(string(msg.Event.Type)),
		telemetry.EventID(msg.ID),
		telemetry.FileID(msg.Event.FileID))
	defer span.End()
	defer func() {
		if err != nil {
			telemetry.RecordError(ctx, err)
		}
	}()

	return c.handler(ctx, msg)
}

// deadLetter copies the raw entry onto the dead-letter stream and acks the
// original so the group can make progress.
func (c *Consumer) deadLetter(ctx context.Context, raw redis.XMessage, deliveries int64, reason string) error {
	values := make(map[string]any, len(raw.Values)+3)
	for k, v := range raw.Values {
		values[k] = v
	}
	values["origin_id"] = raw.ID
	values["delivery_count"] = strconv.FormatInt(deliveries, 10)
	if reason != "" {
		values["reason"] = reason
	}

	err := c.client.XAdd(ctx, &redis.XAddArgs{
		Stream: c.config.DeadLetterStream,
		MaxLen: c.config.DeadLetterMaxLen,
		Approx: true,
		Values: values,
	}).Err()
	if err != nil {
		return fmt.Errorf("failed to append to dead-letter stream: %w", err)
	}
	return c.client.XAck(ctx, c.config.Stream, c.config.Group, raw.ID).Err()
}

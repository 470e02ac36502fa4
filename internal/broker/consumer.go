package broker

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/rafaeljc/daffodil/internal/apperr"
	"github.com/rafaeljc/daffodil/internal/validation"
)

// GroupConfig identifies a consumer within a consumer group.
type GroupConfig struct {
	Stream       string
	Group        string
	Consumer     string
	BatchSize    int64
	BlockTimeout time.Duration
	ClaimMinIdle time.Duration
}

// StreamConsumer reads a stream through a consumer group.
// Entries stay pending until acknowledged; entries pending longer than
// ClaimMinIdle are reclaimed for redelivery.
type StreamConsumer struct {
	client redis.UniversalClient
	cfg    GroupConfig
	cursor string
}

// NewStreamConsumer creates a consumer. Call EnsureGroup before reading.
func NewStreamConsumer(client redis.UniversalClient, cfg GroupConfig) *StreamConsumer {
	validation.AssertDependency(client, "broker: redis client")
	return &StreamConsumer{client: client, cfg: cfg, cursor: "0-0"}
}

// EnsureGroup creates the stream and group if they do not exist yet.
func (c *StreamConsumer) EnsureGroup(ctx context.Context) error {
	err := c.client.XGroupCreateMkStream(ctx, c.cfg.Stream, c.cfg.Group, "0").Err()
	if err != nil && !strings.HasPrefix(err.Error(), "BUSYGROUP") {
		return apperr.Unavailable("broker", fmt.Errorf("failed to create group %s: %w", c.cfg.Group, err))
	}
	return nil
}

// Read blocks up to BlockTimeout for new entries. An empty result is not an error.
func (c *StreamConsumer) Read(ctx context.Context) ([]Message, error) {
	streams, err := c.client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    c.cfg.Group,
		Consumer: c.cfg.Consumer,
		Streams:  []string{c.cfg.Stream, ">"},
		Count:    c.cfg.BatchSize,
		Block:    c.cfg.BlockTimeout,
	}).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, apperr.Unavailable("broker", err)
	}

	var out []Message
	for _, s := range streams {
		out = append(out, toMessages(s.Messages)...)
	}
	return out, nil
}

// Claim takes over entries left pending by any consumer for at least ClaimMinIdle.
// Successive calls walk the pending list; the cursor wraps around at the end.
func (c *StreamConsumer) Claim(ctx context.Context) ([]Message, error) {
	msgs, next, err := c.client.XAutoClaim(ctx, &redis.XAutoClaimArgs{
		Stream:   c.cfg.Stream,
		Group:    c.cfg.Group,
		Consumer: c.cfg.Consumer,
		MinIdle:  c.cfg.ClaimMinIdle,
		Start:    c.cursor,
		Count:    c.cfg.BatchSize,
	}).Result()
	if err != nil {
		return nil, apperr.Unavailable("broker", err)
	}
	c.cursor = next
	return toMessages(msgs), nil
}

// Ack acknowledges processed entries.
func (c *StreamConsumer) Ack(ctx context.Context, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}
	if err := c.client.XAck(ctx, c.cfg.Stream, c.cfg.Group, ids...).Err(); err != nil {
		return apperr.Unavailable("broker", err)
	}
	return nil
}

// Pending returns the number of delivered but unacknowledged entries.
func (c *StreamConsumer) Pending(ctx context.Context) (int64, error) {
	res, err := c.client.XPending(ctx, c.cfg.Stream, c.cfg.Group).Result()
	if err != nil {
		return 0, apperr.Unavailable("broker", err)
	}
	return res.Count, nil
}

func toMessages(in []redis.XMessage) []Message {
	out := make([]Message, 0, len(in))
	for _, m := range in {
		out = append(out, Message{ID: m.ID, Values: m.Values})
	}
	return out
}

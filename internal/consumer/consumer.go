// Package consumer drives segment recomputation from order events.
//
// Delivery is at-least-once: a message is acknowledged only after the user's
// segments were refreshed and the cache invalidated. Failed messages stay
// pending in the group and are reclaimed after ClaimMinIdle. Redelivery is
// safe because a refresh replaces the whole membership set.
package consumer

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/rafaeljc/daffodil/internal/apperr"
	"github.com/rafaeljc/daffodil/internal/broker"
	"github.com/rafaeljc/daffodil/internal/logger"
	"github.com/rafaeljc/daffodil/internal/observability"
	"github.com/rafaeljc/daffodil/internal/validation"
)

// Message outcomes.
const (
	StatusProcessed = "processed"
	StatusSkipped   = "skipped"
	StatusFailed    = "failed"
)

// errorBackoff is the pause after a failed stream round trip.
const errorBackoff = time.Second

// Stream is the consumer-group view of the event stream.
type Stream interface {
	EnsureGroup(ctx context.Context) error
	Read(ctx context.Context) ([]broker.Message, error)
	Claim(ctx context.Context) ([]broker.Message, error)
	Ack(ctx context.Context, ids ...string) error
}

// Refresher recomputes a user's segment memberships.
type Refresher interface {
	Refresh(ctx context.Context, userID string) ([]string, error)
}

// Invalidator drops a user's cached assignments.
type Invalidator interface {
	Invalidate(ctx context.Context, userID string) error
}

// Consumer processes order_placed events.
type Consumer struct {
	stream     Stream
	segments   Refresher
	cache      Invalidator
	claimEvery time.Duration
	now        func() time.Time
}

// New creates a consumer. Idle pending messages are reclaimed every claimEvery.
func New(stream Stream, segments Refresher, cache Invalidator, claimEvery time.Duration) *Consumer {
	validation.AssertDependency(stream, "consumer: stream")
	validation.AssertDependency(segments, "consumer: refresher")
	validation.AssertDependency(cache, "consumer: invalidator")
	if claimEvery <= 0 {
		claimEvery = time.Minute
	}
	return &Consumer{
		stream:     stream,
		segments:   segments,
		cache:      cache,
		claimEvery: claimEvery,
		now:        time.Now,
	}
}

// Run consumes until ctx is cancelled. It returns an error only when the
// consumer group cannot be created.
func (c *Consumer) Run(ctx context.Context) error {
	log := logger.FromContext(ctx)

	if err := c.stream.EnsureGroup(ctx); err != nil {
		return err
	}
	log.Info("order event consumer started", slog.Duration("claim_every", c.claimEvery))

	lastClaim := time.Time{}
	for {
		if ctx.Err() != nil {
			log.Info("order event consumer stopped")
			return nil
		}

		if c.now().Sub(lastClaim) >= c.claimEvery {
			lastClaim = c.now()
			claimed, err := c.stream.Claim(ctx)
			if err != nil && !errors.Is(err, context.Canceled) {
				log.Error("failed to claim pending events", slog.Any("error", err))
			}
			if len(claimed) > 0 {
				log.Info("reclaimed pending events", slog.Int("count", len(claimed)))
				c.Process(ctx, claimed)
			}
		}

		msgs, err := c.stream.Read(ctx)
		if err != nil {
			if ctx.Err() != nil {
				continue
			}
			log.Error("failed to read events", slog.Any("error", err))
			select {
			case <-ctx.Done():
			case <-time.After(errorBackoff):
			}
			continue
		}
		c.Process(ctx, msgs)
	}
}

// Process handles a batch and acknowledges every message that needs no
// redelivery. One message's failure never affects the others.
func (c *Consumer) Process(ctx context.Context, msgs []broker.Message) {
	if len(msgs) == 0 {
		return
	}

	acks := make([]string, 0, len(msgs))
	for _, msg := range msgs {
		status := c.handle(ctx, msg)
		observability.ConsumerMessages.WithLabelValues(status).Inc()
		if status != StatusFailed {
			acks = append(acks, msg.ID)
		}
	}

	if len(acks) == 0 {
		return
	}
	if err := c.stream.Ack(ctx, acks...); err != nil {
		// Unacked messages are reclaimed later; reprocessing is idempotent.
		logger.FromContext(ctx).Error("failed to ack events",
			slog.Int("count", len(acks)),
			slog.Any("error", err),
		)
	}
}

func (c *Consumer) handle(ctx context.Context, msg broker.Message) string {
	log := logger.FromContext(ctx).With(slog.String("message_id", msg.ID))

	evt, err := msg.DecodeOrderPlaced()
	if err != nil {
		log.Warn("skipping malformed event", slog.Any("error", err))
		return StatusSkipped
	}
	if evt.UserID == "" {
		evt.UserID = msg.UserID()
	}
	if evt.UserID == "" {
		log.Warn("skipping event without user_id")
		return StatusSkipped
	}
	log = log.With(slog.String("user_id", evt.UserID))

	if _, err := c.segments.Refresh(ctx, evt.UserID); err != nil {
		return c.failed(log, "refresh", err)
	}
	if err := c.cache.Invalidate(ctx, evt.UserID); err != nil {
		return c.failed(log, "invalidate", err)
	}

	if !evt.CreatedAt.IsZero() {
		observability.ConsumerLag.Observe(c.now().Sub(evt.CreatedAt).Seconds())
	}
	log.Debug("order event processed", slog.String("order_id", evt.OrderID))
	return StatusProcessed
}

func (c *Consumer) failed(log *slog.Logger, step string, err error) string {
	if errors.Is(err, apperr.ErrNotFound) {
		log.Warn("skipping event for missing entity", slog.String("step", step), slog.Any("error", err))
		return StatusSkipped
	}
	log.Error("order event failed, leaving it pending", slog.String("step", step), slog.Any("error", err))
	return StatusFailed
}

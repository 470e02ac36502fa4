// Package dormancy re-evaluates a user's segments once they have gone quiet
// for the configured horizon after an order.
package dormancy

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/rafaeljc/daffodil/internal/apperr"
	"github.com/rafaeljc/daffodil/internal/logger"
	"github.com/rafaeljc/daffodil/internal/observability"
	"github.com/rafaeljc/daffodil/internal/scheduler"
	"github.com/rafaeljc/daffodil/internal/validation"
)

// JobPrefix routes dormancy jobs in the scheduler.
const JobPrefix = "dormancy:"

// Check outcomes.
const (
	OutcomeActive    = "active"
	OutcomeRefreshed = "refreshed"
	OutcomeFailed    = "failed"
)

// JobKey is the scheduler key for userID. Scheduling it again replaces the
// previous check, so each user has at most one pending.
func JobKey(userID string) string {
	return JobPrefix + userID
}

// Payload is the scheduled job body.
type Payload struct {
	UserID         string    `json:"user_id"`
	OrderID        string    `json:"order_id"`
	OrderCreatedAt time.Time `json:"order_created_at"`
}

// Encode marshals p for scheduling.
func (p Payload) Encode() ([]byte, error) {
	return json.Marshal(p)
}

// OrderLedger reports whether a user ordered after a point in time.
type OrderLedger interface {
	HasOrderAfter(ctx context.Context, userID string, t time.Time) (bool, error)
}

// Refresher recomputes a user's segment memberships.
type Refresher interface {
	Refresh(ctx context.Context, userID string) ([]string, error)
}

// Invalidator drops a user's cached assignments.
type Invalidator interface {
	Invalidate(ctx context.Context, userID string) error
}

// Checker runs dormancy checks.
type Checker struct {
	orders   OrderLedger
	segments Refresher
	cache    Invalidator
}

// NewChecker creates a Checker. It panics if any dependency is nil.
func NewChecker(orders OrderLedger, segments Refresher, cache Invalidator) *Checker {
	validation.AssertDependency(orders, "dormancy: order ledger")
	validation.AssertDependency(segments, "dormancy: refresher")
	validation.AssertDependency(cache, "dormancy: invalidator")
	return &Checker{orders: orders, segments: segments, cache: cache}
}

// Check refreshes the user's segments unless a newer order exists. A newer
// order carries its own pending check, so this one is a no-op.
func (c *Checker) Check(ctx context.Context, p Payload) (string, error) {
	if p.UserID == "" {
		return OutcomeFailed, apperr.Validation("dormancy check without user_id")
	}

	newer, err := c.orders.HasOrderAfter(ctx, p.UserID, p.OrderCreatedAt)
	if err != nil {
		return c.fail(fmt.Errorf("checking newer orders: %w", err))
	}
	if newer {
		observability.DormancyChecks.WithLabelValues(OutcomeActive).Inc()
		return OutcomeActive, nil
	}

	if _, err := c.segments.Refresh(ctx, p.UserID); err != nil {
		return c.fail(fmt.Errorf("refreshing segments: %w", err))
	}
	if err := c.cache.Invalidate(ctx, p.UserID); err != nil {
		return c.fail(fmt.Errorf("invalidating cache: %w", err))
	}

	observability.DormancyChecks.WithLabelValues(OutcomeRefreshed).Inc()
	return OutcomeRefreshed, nil
}

func (c *Checker) fail(err error) (string, error) {
	observability.DormancyChecks.WithLabelValues(OutcomeFailed).Inc()
	return OutcomeFailed, err
}

// Handle adapts Check to a scheduler handler. Jobs that can never succeed
// (bad payload, unknown user) are dropped instead of retried.
func (c *Checker) Handle(ctx context.Context, job scheduler.Job) error {
	log := logger.FromContext(ctx).With(slog.String("job", job.Key))

	var p Payload
	if err := json.Unmarshal(job.Payload, &p); err != nil {
		observability.DormancyChecks.WithLabelValues(OutcomeFailed).Inc()
		log.Error("dropping dormancy job with malformed payload", slog.Any("error", err))
		return nil
	}
	if p.UserID == "" {
		p.UserID = strings.TrimPrefix(job.Key, JobPrefix)
	}

	outcome, err := c.Check(ctx, p)
	if err == nil {
		log.Info("dormancy check finished",
			slog.String("user_id", p.UserID),
			slog.String("outcome", outcome),
		)
		return nil
	}
	if kind := apperr.Kind(err); kind == apperr.ErrNotFound || kind == apperr.ErrValidation {
		log.Warn("dropping dormancy job", slog.String("user_id", p.UserID), slog.Any("error", err))
		return nil
	}
	return err
}

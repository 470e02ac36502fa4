// Package orders implements the order write path: persist, then propagate the
// change to the cache, the event stream and the dormancy scheduler.
package orders

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/rafaeljc/daffodil/internal/apperr"
	"github.com/rafaeljc/daffodil/internal/broker"
	"github.com/rafaeljc/daffodil/internal/dormancy"
	"github.com/rafaeljc/daffodil/internal/logger"
	"github.com/rafaeljc/daffodil/internal/observability"
	"github.com/rafaeljc/daffodil/internal/store"
	"github.com/rafaeljc/daffodil/internal/validation"
)

// Propagation steps reported in PlaceOrderResult.Degraded.
const (
	StepInvalidate = "invalidate"
	StepPublish    = "publish"
	StepSchedule   = "schedule"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// PlaceOrderInput describes a new order.
type PlaceOrderInput struct {
	UserID string  `json:"user_id" validate:"required,max=255"`
	Amount float64 `json:"amount" validate:"gte=0"`
	City   *string `json:"city,omitempty" validate:"omitempty,max=255"`

	// DormancyDelay overrides the dormancy horizon for this order. Zero keeps
	// the configured horizon. Only honoured when overrides are allowed.
	DormancyDelay time.Duration `json:"-" validate:"gte=0"`
}

// PlaceOrderResult reports the committed order and any propagation step that
// failed after the commit.
type PlaceOrderResult struct {
	Order           *store.Order
	DormancyCheckAt time.Time
	Degraded        []string
}

// Invalidator drops a user's cached assignments.
type Invalidator interface {
	Invalidate(ctx context.Context, userID string) error
}

// EventPublisher emits order events.
type EventPublisher interface {
	Publish(ctx context.Context, evt broker.OrderPlaced) error
}

// JobScheduler schedules deferred jobs, replacing any pending job with the same key.
type JobScheduler interface {
	Schedule(ctx context.Context, key string, runAt time.Time, payload []byte) error
}

// Service places orders.
type Service struct {
	orders        store.OrderRepository
	cache         Invalidator
	events        EventPublisher
	jobs          JobScheduler
	horizon       time.Duration
	allowOverride bool
	propagation   time.Duration
	now           func() time.Time
}

// DefaultPropagationTimeout bounds the post-commit steps of PlaceOrder.
const DefaultPropagationTimeout = 3 * time.Second

// MaxDormancyDelay is the longest accepted PlaceOrderInput.DormancyDelay.
const MaxDormancyDelay = 365 * 24 * time.Hour

// Option customizes a Service.
type Option func(*Service)

// WithClock overrides the clock used for created_at.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithDelayOverride allows PlaceOrderInput.DormancyDelay. Production keeps it off.
func WithDelayOverride(allowed bool) Option {
	return func(s *Service) { s.allowOverride = allowed }
}

// WithPropagationTimeout bounds the post-commit steps. They run detached from
// the caller's cancellation so a dropped client does not skip them.
func WithPropagationTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.propagation = d
		}
	}
}

// NewService creates the order service. horizon is the default dormancy delay.
func NewService(orders store.OrderRepository, cache Invalidator, events EventPublisher, jobs JobScheduler, horizon time.Duration, opts ...Option) *Service {
	validation.AssertDependency(orders, "orders: repository")
	validation.AssertDependency(cache, "orders: invalidator")
	validation.AssertDependency(events, "orders: publisher")
	validation.AssertDependency(jobs, "orders: scheduler")
	if horizon <= 0 {
		panic("orders: dormancy horizon must be positive")
	}

	s := &Service{
		orders:      orders,
		cache:       cache,
		events:      events,
		jobs:        jobs,
		horizon:     horizon,
		propagation: DefaultPropagationTimeout,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// PlaceOrder persists the order and propagates it. Only a persistence failure
// is returned as an error; later steps degrade the result instead, because the
// order is already committed and the sweep eventually repairs the user.
func (s *Service) PlaceOrder(ctx context.Context, in PlaceOrderInput) (*PlaceOrderResult, error) {
	if err := validate.Struct(in); err != nil {
		return nil, apperr.Validation("%s", validation.Describe(err))
	}
	if in.DormancyDelay > 0 && !s.allowOverride {
		return nil, apperr.Validation("dormancy delay override is disabled in this environment")
	}
	if in.DormancyDelay > MaxDormancyDelay {
		return nil, apperr.Validation("DormancyDelay: must not exceed %s", MaxDormancyDelay)
	}

	order := &store.Order{
		ID:        uuid.NewString(),
		UserID:    in.UserID,
		Amount:    in.Amount,
		City:      in.City,
		CreatedAt: s.now().UTC().Truncate(time.Microsecond),
	}
	if err := s.orders.CreateOrder(ctx, order); err != nil {
		return nil, err
	}
	observability.OrdersPlaced.Inc()

	delay := s.horizon
	if in.DormancyDelay > 0 {
		delay = in.DormancyDelay
	}
	res := &PlaceOrderResult{Order: order, DormancyCheckAt: order.CreatedAt.Add(delay)}

	log := logger.FromContext(ctx).With(
		slog.String("order_id", order.ID),
		slog.String("user_id", order.UserID),
	)

	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.propagation)
	defer cancel()

	if err := s.cache.Invalidate(pctx, order.UserID); err != nil {
		s.degrade(log, res, StepInvalidate, err)
	}

	evt := broker.OrderPlaced{
		OrderID:   order.ID,
		UserID:    order.UserID,
		Amount:    order.Amount,
		City:      order.City,
		CreatedAt: order.CreatedAt,
	}
	if err := s.events.Publish(pctx, evt); err != nil {
		s.degrade(log, res, StepPublish, err)
	}

	if err := s.scheduleDormancy(pctx, order, res.DormancyCheckAt); err != nil {
		s.degrade(log, res, StepSchedule, err)
	}

	log.Info("order placed",
		slog.Float64("amount", order.Amount),
		slog.Time("dormancy_check_at", res.DormancyCheckAt),
		slog.Any("degraded", res.Degraded),
	)
	return res, nil
}

func (s *Service) scheduleDormancy(ctx context.Context, o *store.Order, runAt time.Time) error {
	payload, err := dormancy.Payload{
		UserID:         o.UserID,
		OrderID:        o.ID,
		OrderCreatedAt: o.CreatedAt,
	}.Encode()
	if err != nil {
		return fmt.Errorf("encoding dormancy payload: %w", err)
	}
	return s.jobs.Schedule(ctx, dormancy.JobKey(o.UserID), runAt, payload)
}

func (s *Service) degrade(log *slog.Logger, res *PlaceOrderResult, step string, err error) {
	observability.OrderPropagationFailures.WithLabelValues(step).Inc()
	res.Degraded = append(res.Degraded, step)
	log.Error("order propagation failed", slog.String("step", step), slog.Any("error", err))
}

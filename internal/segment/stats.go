// Package segment computes user facts from the order ledger and maintains each
// user's segment membership snapshot.
package segment

import (
	"context"
	"time"

	"github.com/rafaeljc/daffodil/internal/ruleengine"
	"github.com/rafaeljc/daffodil/internal/store"
	"github.com/rafaeljc/daffodil/internal/validation"
)

// Fact names produced by StatsProvider.
const (
	FactTotalOrders           = "total_orders"
	FactLTV                   = "ltv"
	FactSecondsSinceLastOrder = "seconds_since_last_order"
	FactDaysSinceLastOrder    = "days_since_last_order"
	FactCity                  = "city"
	FactIsNewUser             = "is_new_user"
)

// Recency values reported for users who never ordered. They are large enough
// that "at least N days since last order" rules match new users.
const (
	NoOrderSeconds = 1_000_000_000
	NoOrderDays    = 1_000_000
)

// FactSource produces the fact map rules are evaluated against.
type FactSource interface {
	Stats(ctx context.Context, userID string, windows []int) (ruleengine.Facts, error)
}

var _ FactSource = (*StatsProvider)(nil)

// StatsProvider computes facts fresh from the order ledger on every call.
type StatsProvider struct {
	orders store.OrderRepository
	now    func() time.Time
}

// Option customizes a StatsProvider.
type Option func(*StatsProvider)

// WithClock overrides the time source used for windows and recency.
func WithClock(now func() time.Time) Option {
	return func(p *StatsProvider) { p.now = now }
}

// NewStatsProvider creates a provider backed by the order ledger.
func NewStatsProvider(orders store.OrderRepository, opts ...Option) *StatsProvider {
	validation.AssertDependency(orders, "segment: order repository")
	p := &StatsProvider{orders: orders, now: time.Now}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Stats returns the user's facts, including order_count_last_N_days for each window.
func (p *StatsProvider) Stats(ctx context.Context, userID string, windows []int) (ruleengine.Facts, error) {
	now := p.now()

	agg, err := p.orders.OrderStats(ctx, userID, now, windows)
	if err != nil {
		return nil, err
	}

	facts := ruleengine.Facts{
		FactTotalOrders:           agg.TotalOrders,
		FactLTV:                   agg.LTV,
		FactIsNewUser:             agg.TotalOrders == 0,
		FactSecondsSinceLastOrder: int64(NoOrderSeconds),
		FactDaysSinceLastOrder:    int64(NoOrderDays),
	}

	if agg.LastOrderAt != nil {
		since := max(now.Sub(*agg.LastOrderAt), 0)
		facts[FactSecondsSinceLastOrder] = int64(since / time.Second)
		facts[FactDaysSinceLastOrder] = int64(since / (24 * time.Hour))
	}
	if agg.LastCity != nil {
		facts[FactCity] = *agg.LastCity
	}
	for _, n := range windows {
		facts[ruleengine.WindowField(n)] = agg.WindowCounts[n]
	}
	return facts, nil
}

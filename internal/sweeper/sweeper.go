// Package sweeper periodically re-evaluates users who went dormant, covering
// dormancy checks that were lost or dropped as misfires.
package sweeper

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/rafaeljc/daffodil/internal/config"
	"github.com/rafaeljc/daffodil/internal/logger"
	"github.com/rafaeljc/daffodil/internal/observability"
	"github.com/rafaeljc/daffodil/internal/store"
	"github.com/rafaeljc/daffodil/internal/validation"
)

// DormantLister selects users whose latest order is older than a cutoff.
type DormantLister interface {
	ListDormantUsers(ctx context.Context, cutoff time.Time, after *store.DormantUser, limit int) ([]store.DormantUser, error)
}

// Refresher recomputes a user's segment memberships.
type Refresher interface {
	Refresh(ctx context.Context, userID string) ([]string, error)
}

// Invalidator drops a user's cached assignments.
type Invalidator interface {
	Invalidate(ctx context.Context, userID string) error
}

// Result summarizes one sweep.
type Result struct {
	Refreshed int
	Failed    int
}

// Service runs the periodic sweep.
type Service struct {
	users    DormantLister
	segments Refresher
	cache    Invalidator
	cfg      *config.SweeperConfig
	horizon  time.Duration
	now      func() time.Time

	// mu serializes sweeps; cursor is where the next limited batch resumes.
	mu     sync.Mutex
	cursor *store.DormantUser
}

// Option customizes a Service.
type Option func(*Service)

// WithClock overrides the clock used to compute the dormancy cutoff.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// New creates a sweeper. horizon is the dormancy window.
func New(users DormantLister, segments Refresher, cache Invalidator, cfg *config.SweeperConfig, horizon time.Duration, opts ...Option) *Service {
	validation.AssertDependency(users, "sweeper: order repository")
	validation.AssertDependency(segments, "sweeper: refresher")
	validation.AssertDependency(cache, "sweeper: invalidator")
	validation.AssertNotNil(cfg, "sweeper: config")

	s := &Service{
		users:    users,
		segments: segments,
		cache:    cache,
		cfg:      cfg,
		horizon:  horizon,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run sweeps once immediately, then every interval, until ctx is cancelled.
func (s *Service) Run(ctx context.Context) error {
	log := logger.FromContext(ctx)
	log.Info("starting sweeper",
		slog.Duration("interval", s.cfg.Interval),
		slog.Duration("horizon", s.horizon),
		slog.Int("concurrency", s.cfg.Concurrency),
	)

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	if _, err := s.Sweep(ctx); err != nil {
		log.Error("initial sweep failed", slog.Any("error", err))
	}

	for {
		select {
		case <-ctx.Done():
			log.Info("sweeper stopping...")
			return nil
		case <-ticker.C:
			if _, err := s.Sweep(ctx); err != nil {
				// Retry on next tick.
				log.Error("sweep failed", slog.Any("error", err))
			}
		}
	}
}

// Sweep refreshes dormant users, most recently dormant first. With a batch
// limit each call handles the next page after the previous call's last user
// and wraps around once the list is exhausted, so every dormant user is
// reached within a full pass. Per-user failures are logged and counted; only
// a failure to list users fails the sweep.
func (s *Service) Sweep(ctx context.Context) (Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	start := time.Now()
	log := logger.FromContext(ctx)

	cutoff := s.now().Add(-s.horizon)
	users, err := s.nextBatch(ctx, cutoff)
	if err != nil {
		observability.SweepRuns.WithLabelValues("error").Inc()
		return Result{}, err
	}

	var refreshed, failed atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.Concurrency)

	for _, u := range users {
		userID := u.UserID
		g.Go(func() error {
			if err := s.sweepUser(gctx, userID); err != nil {
				failed.Add(1)
				observability.SweepUsers.WithLabelValues("failed").Inc()
				log.Warn("failed to refresh dormant user",
					slog.String("user_id", userID),
					slog.Any("error", err),
				)
				return nil
			}
			refreshed.Add(1)
			observability.SweepUsers.WithLabelValues("refreshed").Inc()
			return nil
		})
	}
	_ = g.Wait()

	res := Result{Refreshed: int(refreshed.Load()), Failed: int(failed.Load())}
	observability.SweepRuns.WithLabelValues("success").Inc()
	observability.SweepDuration.Observe(time.Since(start).Seconds())

	if len(users) > 0 {
		log.Info("sweep completed",
			slog.Time("cutoff", cutoff),
			slog.Int("refreshed", res.Refreshed),
			slog.Int("failed", res.Failed),
			slog.Duration("duration", time.Since(start)),
		)
	}
	return res, nil
}

// nextBatch lists the page after the cursor, restarting from the top when
// the previous pass reached the end. Callers hold s.mu.
func (s *Service) nextBatch(ctx context.Context, cutoff time.Time) ([]store.DormantUser, error) {
	limit := s.cfg.BatchLimit
	users, err := s.users.ListDormantUsers(ctx, cutoff, s.cursor, limit)
	if err != nil {
		return nil, err
	}
	if len(users) == 0 && s.cursor != nil {
		s.cursor = nil
		if users, err = s.users.ListDormantUsers(ctx, cutoff, nil, limit); err != nil {
			return nil, err
		}
	}

	if limit > 0 && len(users) == limit {
		last := users[len(users)-1]
		s.cursor = &last
	} else {
		s.cursor = nil
	}
	return users, nil
}

func (s *Service) sweepUser(ctx context.Context, userID string) error {
	if _, err := s.segments.Refresh(ctx, userID); err != nil {
		return err
	}
	return s.cache.Invalidate(ctx, userID)
}

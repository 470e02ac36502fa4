// Package banner draws the per-user banner mixture from the banners offered by
// the user's experiment variants.
package banner

import (
	"context"
	"errors"
	"log/slog"
	"math/rand/v2"
	"slices"
	"sync"
	"time"

	"github.com/rafaeljc/daffodil/internal/cache"
	"github.com/rafaeljc/daffodil/internal/experiment"
	"github.com/rafaeljc/daffodil/internal/logger"
	"github.com/rafaeljc/daffodil/internal/validation"
)

// DefaultSize is the number of banners drawn when the pool is large enough.
const DefaultSize = 3

// MixtureCache is the part of the assignment cache the generator needs.
type MixtureCache interface {
	GetMixture(ctx context.Context, userID string) (*cache.BannerMixture, error)
	SetMixture(ctx context.Context, userID string, m *cache.BannerMixture) error
	MixtureTTL() time.Duration
}

// AssignmentResolver returns a user's experiment assignments.
type AssignmentResolver interface {
	Resolve(ctx context.Context, userID string) ([]experiment.Assignment, error)
}

// Generator builds and caches banner mixtures.
type Generator struct {
	cache       MixtureCache
	experiments AssignmentResolver
	size        int
	now         func() time.Time

	mu  sync.Mutex
	rnd *rand.Rand
}

// Option customizes a Generator.
type Option func(*Generator)

// WithSize sets the number of banners drawn.
func WithSize(n int) Option {
	return func(g *Generator) {
		if n > 0 {
			g.size = n
		}
	}
}

// WithSource replaces the random source, e.g. with a seeded PCG in tests.
func WithSource(src rand.Source) Option {
	return func(g *Generator) { g.rnd = rand.New(src) }
}

// WithClock overrides the time source for assigned_at and expires_at.
func WithClock(now func() time.Time) Option {
	return func(g *Generator) { g.now = now }
}

// NewGenerator creates a banner mixture generator.
func NewGenerator(mixtures MixtureCache, experiments AssignmentResolver, opts ...Option) *Generator {
	validation.AssertDependency(mixtures, "banner: mixture cache")
	validation.AssertDependency(experiments, "banner: assignment resolver")

	g := &Generator{
		cache:       mixtures,
		experiments: experiments,
		size:        DefaultSize,
		now:         time.Now,
		rnd:         rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Mixture returns the user's banner mixture, or nil when no experiment variant
// of the user offers banners. A cached mixture is returned unchanged until it
// expires or is invalidated.
func (g *Generator) Mixture(ctx context.Context, userID string) (*cache.BannerMixture, error) {
	m, err := g.cache.GetMixture(ctx, userID)
	if err == nil {
		return m, nil
	}
	if !errors.Is(err, cache.ErrMiss) {
		logger.FromContext(ctx).Warn("mixture cache read failed, recomputing",
			slog.String("user_id", userID),
			slog.Any("error", err),
		)
	}

	assignments, err := g.experiments.Resolve(ctx, userID)
	if err != nil {
		return nil, err
	}
	return g.FromAssignments(ctx, userID, assignments), nil
}

// FromAssignments draws and caches a mixture from already resolved assignments.
// Nothing is cached when no assignment carries banners, so a later experiment
// becomes visible on the next read.
func (g *Generator) FromAssignments(ctx context.Context, userID string, assignments []experiment.Assignment) *cache.BannerMixture {
	var (
		pool       []int
		provenance []cache.BannerSource
	)
	for _, a := range assignments {
		if len(a.Banners) == 0 {
			continue
		}
		provenance = append(provenance, cache.BannerSource{
			ExperimentID: a.ExperimentID,
			Variant:      a.Variant,
			Banners:      slices.Clone(a.Banners),
		})
		pool = append(pool, a.Banners...)
	}
	if len(pool) == 0 {
		return nil
	}

	slices.Sort(pool)
	pool = slices.Compact(pool)

	ttl := g.cache.MixtureTTL()
	assignedAt := g.now().UTC()
	m := &cache.BannerMixture{
		Banners:    g.sample(pool),
		Provenance: provenance,
		AssignedAt: assignedAt,
		ExpiresAt:  assignedAt.Add(ttl),
		TTLSeconds: int64(ttl / time.Second),
	}

	if err := g.cache.SetMixture(ctx, userID, m); err != nil {
		logger.FromContext(ctx).Warn("failed to cache banner mixture",
			slog.String("user_id", userID),
			slog.Any("error", err),
		)
	}
	return m
}

// sample draws min(size, len(pool)) distinct banners and returns them sorted.
// pool is reordered in place.
func (g *Generator) sample(pool []int) []int {
	k := min(g.size, len(pool))

	g.mu.Lock()
	// Partial Fisher-Yates: the first k slots end up a uniform sample.
	for i := range k {
		j := i + g.rnd.IntN(len(pool)-i)
		pool[i], pool[j] = pool[j], pool[i]
	}
	g.mu.Unlock()

	out := slices.Clone(pool[:k])
	slices.Sort(out)
	return out
}

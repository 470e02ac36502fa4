package cache

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/rafaeljc/daffodil/internal/config"
	"github.com/rafaeljc/daffodil/internal/experiment"
	"github.com/rafaeljc/daffodil/internal/logger"
	"github.com/rafaeljc/daffodil/internal/observability"
	"github.com/rafaeljc/daffodil/internal/validation"
)

// AssignmentCache is the cache-aside layer in front of experiment resolution and
// banner mixture generation. Each user has two independent entries with their
// own TTL; Invalidate clears both.
type AssignmentCache struct {
	store          Store
	prefix         string
	experimentsTTL time.Duration
	mixtureTTL     time.Duration
}

// NewAssignmentCache creates a cache over store using the key prefix and TTLs in cfg.
func NewAssignmentCache(store Store, cfg *config.CacheConfig) *AssignmentCache {
	validation.AssertDependency(store, "cache: store")
	validation.AssertNotNil(cfg, "cache: config")

	return &AssignmentCache{
		store:          store,
		prefix:         cfg.KeyPrefix,
		experimentsTTL: cfg.ExperimentsTTL,
		mixtureTTL:     cfg.MixtureTTL,
	}
}

// ExperimentsKey returns the key of the user's experiment assignment entry.
func (c *AssignmentCache) ExperimentsKey(userID string) string {
	return c.prefix + ":user:" + userID + ":experiments"
}

// MixtureKey returns the key of the user's banner mixture entry.
func (c *AssignmentCache) MixtureKey(userID string) string {
	return c.prefix + ":user:" + userID + ":banner_mixture"
}

// MixtureTTL is the lifetime of a cached banner mixture.
func (c *AssignmentCache) MixtureTTL() time.Duration {
	return c.mixtureTTL
}

// GetExperiments returns the cached assignments for userID, or ErrMiss.
func (c *AssignmentCache) GetExperiments(ctx context.Context, userID string) ([]experiment.Assignment, error) {
	var entry ExperimentAssignmentEntry
	if err := c.get(ctx, KindExperiments, experimentsVersion, c.ExperimentsKey(userID), &entry); err != nil {
		return nil, err
	}
	return entry.Assignments, nil
}

// SetExperiments caches the assignments for userID.
func (c *AssignmentCache) SetExperiments(ctx context.Context, userID string, assignments []experiment.Assignment) error {
	if assignments == nil {
		assignments = []experiment.Assignment{}
	}
	entry := ExperimentAssignmentEntry{Assignments: assignments}
	return c.set(ctx, KindExperiments, experimentsVersion, c.ExperimentsKey(userID), entry, c.experimentsTTL)
}

// GetMixture returns the cached banner mixture for userID, or ErrMiss.
func (c *AssignmentCache) GetMixture(ctx context.Context, userID string) (*BannerMixture, error) {
	var entry BannerMixtureEntry
	if err := c.get(ctx, KindBannerMixture, bannerMixtureVersion, c.MixtureKey(userID), &entry); err != nil {
		return nil, err
	}
	return &entry.Mixture, nil
}

// SetMixture caches the banner mixture for userID until its TTL expires.
func (c *AssignmentCache) SetMixture(ctx context.Context, userID string, m *BannerMixture) error {
	entry := BannerMixtureEntry{Mixture: *m}
	return c.set(ctx, KindBannerMixture, bannerMixtureVersion, c.MixtureKey(userID), entry, c.mixtureTTL)
}

// Invalidate removes both entries for userID.
func (c *AssignmentCache) Invalidate(ctx context.Context, userID string) error {
	if err := c.store.Delete(ctx, c.ExperimentsKey(userID), c.MixtureKey(userID)); err != nil {
		observability.CacheInvalidations.WithLabelValues("error").Inc()
		return err
	}
	observability.CacheInvalidations.WithLabelValues("success").Inc()
	return nil
}

func (c *AssignmentCache) get(ctx context.Context, kind string, version int, key string, dst any) error {
	raw, err := c.store.Get(ctx, key)
	switch {
	case errors.Is(err, ErrMiss):
		observability.CacheRequests.WithLabelValues(kind, "miss").Inc()
		return ErrMiss
	case err != nil:
		observability.CacheRequests.WithLabelValues(kind, "error").Inc()
		return err
	}

	if err := decodeEntry(raw, kind, version, dst); err != nil {
		observability.CacheRequests.WithLabelValues(kind, "stale").Inc()
		logger.FromContext(ctx).Warn("discarding cache entry",
			slog.String("key", key),
			slog.String("reason", err.Error()),
		)
		// A failed delete only leaves the entry until it expires or is overwritten.
		_ = c.store.Delete(ctx, key)
		return ErrMiss
	}

	observability.CacheRequests.WithLabelValues(kind, "hit").Inc()
	return nil
}

func (c *AssignmentCache) set(ctx context.Context, kind string, version int, key string, payload any, ttl time.Duration) error {
	raw, err := encodeEntry(kind, version, payload)
	if err != nil {
		observability.CacheWrites.WithLabelValues(kind, "error").Inc()
		return err
	}
	if err := c.store.Set(ctx, key, raw, ttl); err != nil {
		observability.CacheWrites.WithLabelValues(kind, "error").Inc()
		return err
	}
	observability.CacheWrites.WithLabelValues(kind, "success").Inc()
	return nil
}

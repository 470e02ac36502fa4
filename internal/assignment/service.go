// Package assignment implements the read path: cache-aside lookups of a user's
// experiment assignments and banner mixture, with lazy first-time segmentation.
package assignment

import (
	"context"
	"errors"
	"log/slog"

	"github.com/rafaeljc/daffodil/internal/apperr"
	"github.com/rafaeljc/daffodil/internal/cache"
	"github.com/rafaeljc/daffodil/internal/experiment"
	"github.com/rafaeljc/daffodil/internal/logger"
	"github.com/rafaeljc/daffodil/internal/observability"
	"github.com/rafaeljc/daffodil/internal/validation"
)

// Where a response was served from.
const (
	SourceCache = "cache"
	SourceDB    = "db"
)

// UserView is a user's experiments and banner mixture.
type UserView struct {
	UserID        string                  `json:"user_id"`
	Experiments   []experiment.Assignment `json:"experiments"`
	BannerMixture *cache.BannerMixture    `json:"banner_mixture"`
	Source        string                  `json:"source"`
}

// Cache is the assignment cache as seen by the read path.
type Cache interface {
	GetExperiments(ctx context.Context, userID string) ([]experiment.Assignment, error)
	SetExperiments(ctx context.Context, userID string, assignments []experiment.Assignment) error
	GetMixture(ctx context.Context, userID string) (*cache.BannerMixture, error)
	Invalidate(ctx context.Context, userID string) error
}

// Segments exposes the segment resolver operations the read path needs.
type Segments interface {
	HasMemberships(ctx context.Context, userID string) (bool, error)
	Refresh(ctx context.Context, userID string) ([]string, error)
}

// Experiments resolves a user's experiment assignments.
type Experiments interface {
	Resolve(ctx context.Context, userID string) ([]experiment.Assignment, error)
}

// Mixtures generates banner mixtures.
type Mixtures interface {
	Mixture(ctx context.Context, userID string) (*cache.BannerMixture, error)
	FromAssignments(ctx context.Context, userID string, assignments []experiment.Assignment) *cache.BannerMixture
}

// Service serves user assignments.
type Service struct {
	cache       Cache
	segments    Segments
	experiments Experiments
	mixtures    Mixtures
}

// NewService creates the read path service.
func NewService(c Cache, segments Segments, experiments Experiments, mixtures Mixtures) *Service {
	validation.AssertDependency(c, "assignment: cache")
	validation.AssertDependency(segments, "assignment: segments")
	validation.AssertDependency(experiments, "assignment: experiments")
	validation.AssertDependency(mixtures, "assignment: mixtures")

	return &Service{cache: c, segments: segments, experiments: experiments, mixtures: mixtures}
}

// UserExperiments returns the user's experiments and banner mixture.
// A cache failure degrades to recomputation instead of failing the request.
func (s *Service) UserExperiments(ctx context.Context, userID string) (*UserView, error) {
	if userID == "" {
		return nil, apperr.Validation("user id is required")
	}
	log := logger.FromContext(ctx)

	assignments, err := s.cache.GetExperiments(ctx, userID)
	switch {
	case err == nil:
		mixture, err := s.mixtures.Mixture(ctx, userID)
		if err != nil {
			return nil, err
		}
		observability.AssignmentsServed.WithLabelValues("experiments", SourceCache).Inc()
		return &UserView{UserID: userID, Experiments: assignments, BannerMixture: mixture, Source: SourceCache}, nil
	case !errors.Is(err, cache.ErrMiss):
		log.Warn("assignment cache read failed, treating as miss",
			slog.String("user_id", userID),
			slog.Any("error", err),
		)
	}

	if err := s.ensureSegments(ctx, userID); err != nil {
		return nil, err
	}

	assignments, err = s.experiments.Resolve(ctx, userID)
	if err != nil {
		return nil, err
	}

	mixture, err := s.cache.GetMixture(ctx, userID)
	if err != nil {
		mixture = s.mixtures.FromAssignments(ctx, userID, assignments)
	}

	if err := s.cache.SetExperiments(ctx, userID, assignments); err != nil {
		log.Warn("failed to cache experiment assignments",
			slog.String("user_id", userID),
			slog.Any("error", err),
		)
	}

	observability.AssignmentsServed.WithLabelValues("experiments", SourceDB).Inc()
	return &UserView{UserID: userID, Experiments: assignments, BannerMixture: mixture, Source: SourceDB}, nil
}

// BannerMixture returns the user's banner mixture, or nil when the user is in
// no experiment that offers banners.
func (s *Service) BannerMixture(ctx context.Context, userID string) (*cache.BannerMixture, error) {
	if userID == "" {
		return nil, apperr.Validation("user id is required")
	}

	m, err := s.cache.GetMixture(ctx, userID)
	if err == nil {
		observability.AssignmentsServed.WithLabelValues("banner_mixture", SourceCache).Inc()
		return m, nil
	}
	if !errors.Is(err, cache.ErrMiss) {
		logger.FromContext(ctx).Warn("mixture cache read failed, treating as miss",
			slog.String("user_id", userID),
			slog.Any("error", err),
		)
	}

	if err := s.ensureSegments(ctx, userID); err != nil {
		return nil, err
	}
	assignments, err := s.experiments.Resolve(ctx, userID)
	if err != nil {
		return nil, err
	}

	observability.AssignmentsServed.WithLabelValues("banner_mixture", SourceDB).Inc()
	return s.mixtures.FromAssignments(ctx, userID, assignments), nil
}

// InvalidateUser clears both cached entries of the user.
func (s *Service) InvalidateUser(ctx context.Context, userID string) error {
	if userID == "" {
		return apperr.Validation("user id is required")
	}
	return s.cache.Invalidate(ctx, userID)
}

// ensureSegments resolves a user that has no membership yet. Users that were
// resolved before rely on the write path, the consumer and the sweep to stay
// fresh.
func (s *Service) ensureSegments(ctx context.Context, userID string) error {
	has, err := s.segments.HasMemberships(ctx, userID)
	if err != nil {
		return err
	}
	if has {
		return nil
	}

	matched, err := s.segments.Refresh(ctx, userID)
	if err != nil {
		return err
	}
	logger.FromContext(ctx).Debug("resolved segments on first read",
		slog.String("user_id", userID),
		slog.Int("matched", len(matched)),
	)
	return nil
}

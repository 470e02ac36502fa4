package experiment

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/rafaeljc/daffodil/internal/apperr"
	"github.com/rafaeljc/daffodil/internal/logger"
	"github.com/rafaeljc/daffodil/internal/observability"
	"github.com/rafaeljc/daffodil/internal/store"
	"github.com/rafaeljc/daffodil/internal/validation"
)

// Service resolves assignments and manages experiment definitions.
type Service struct {
	experiments store.ExperimentRepository
	memberships store.MembershipRepository
}

// NewService creates an experiment service.
func NewService(experiments store.ExperimentRepository, memberships store.MembershipRepository) *Service {
	validation.AssertDependency(experiments, "experiment: repository")
	validation.AssertDependency(memberships, "experiment: membership repository")
	return &Service{experiments: experiments, memberships: memberships}
}

// Resolve returns the user's assignment for every active experiment targeting
// at least one of the user's segments.
func (s *Service) Resolve(ctx context.Context, userID string) ([]Assignment, error) {
	segmentIDs, err := s.memberships.ListMemberships(ctx, userID)
	if err != nil {
		return nil, err
	}
	if len(segmentIDs) == 0 {
		return []Assignment{}, nil
	}

	member := make(map[string]struct{}, len(segmentIDs))
	for _, id := range segmentIDs {
		member[id] = struct{}{}
	}

	experiments, err := s.experiments.ListActiveExperiments(ctx)
	if err != nil {
		return nil, err
	}

	assignments := make([]Assignment, 0, len(experiments))
	for _, exp := range experiments {
		if !targets(exp, member) {
			continue
		}
		v := Assign(userID, exp)
		observability.VariantAssignments.WithLabelValues(exp.Name, v.Name).Inc()
		assignments = append(assignments, Assignment{
			ExperimentID: exp.ID,
			Name:         exp.Name,
			Variant:      v.Name,
			Banners:      v.Banners,
		})
	}
	return assignments, nil
}

func targets(exp *store.Experiment, member map[string]struct{}) bool {
	for _, id := range exp.SegmentIDs {
		if _, ok := member[id]; ok {
			return true
		}
	}
	return false
}

// CreateExperiment validates and stores a new experiment with its segment links.
// If an experiment with the same name exists, the new segment ids are linked to
// it and the existing experiment is returned with created=false.
func (s *Service) CreateExperiment(ctx context.Context, in CreateInput) (*store.Experiment, bool, error) {
	if err := in.Validate(); err != nil {
		return nil, false, err
	}

	exp := in.toExperiment(uuid.NewString())
	err := s.experiments.CreateExperiment(ctx, exp)
	if err == nil {
		logger.FromContext(ctx).Info("experiment created",
			slog.String("experiment_id", exp.ID),
			slog.String("name", exp.Name),
			slog.Int("variants", len(exp.Variants)),
		)
		return exp, true, nil
	}
	if !errors.Is(err, apperr.ErrConflict) {
		return nil, false, err
	}

	existing, err := s.experiments.GetExperimentByName(ctx, in.Name)
	if err != nil {
		return nil, false, fmt.Errorf("failed to load existing experiment: %w", err)
	}

	linked, err := s.experiments.LinkSegments(ctx, existing.ID, exp.SegmentIDs)
	if err != nil {
		return nil, false, err
	}
	if linked > 0 {
		logger.FromContext(ctx).Info("linked segments to existing experiment",
			slog.String("experiment_id", existing.ID),
			slog.Int64("linked", linked),
		)
		if existing, err = s.experiments.GetExperiment(ctx, existing.ID); err != nil {
			return nil, false, err
		}
	}
	return existing, false, nil
}

// GetExperiment returns an experiment by id.
func (s *Service) GetExperiment(ctx context.Context, id string) (*store.Experiment, error) {
	return s.experiments.GetExperiment(ctx, id)
}

package segment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/rafaeljc/daffodil/internal/apperr"
	"github.com/rafaeljc/daffodil/internal/logger"
	"github.com/rafaeljc/daffodil/internal/observability"
	"github.com/rafaeljc/daffodil/internal/ruleengine"
	"github.com/rafaeljc/daffodil/internal/store"
	"github.com/rafaeljc/daffodil/internal/validation"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// CreateInput holds the fields required to define a segment.
type CreateInput struct {
	Name        string          `json:"name" validate:"required,max=255"`
	Description string          `json:"description" validate:"max=1000"`
	Rules       json.RawMessage `json:"rules" validate:"required"`
}

// Resolver evaluates every segment for a user and stores the matches.
type Resolver struct {
	segments    store.SegmentRepository
	memberships store.MembershipRepository
	facts       FactSource
}

// NewResolver creates a segment resolver.
func NewResolver(segments store.SegmentRepository, memberships store.MembershipRepository, facts FactSource) *Resolver {
	validation.AssertDependency(segments, "segment: repository")
	validation.AssertDependency(memberships, "segment: membership repository")
	validation.AssertDependency(facts, "segment: fact source")
	return &Resolver{segments: segments, memberships: memberships, facts: facts}
}

// Refresh evaluates all segments against one stats snapshot and replaces the
// user's memberships with the matches. It returns the matched ids, sorted.
//
// A stored rule that does not compile aborts the refresh before anything is
// written; the error wraps ruleengine.ErrInvalidRule.
func (r *Resolver) Refresh(ctx context.Context, userID string) ([]string, error) {
	start := time.Now()

	segments, err := r.segments.ListSegments(ctx)
	if err != nil {
		return nil, err
	}

	compiled := make([]ruleengine.Node, len(segments))
	var windows []int
	for i, seg := range segments {
		node, err := ruleengine.Parse(seg.Rules)
		if err != nil {
			observability.SegmentRuleFailures.Inc()
			return nil, fmt.Errorf("segment %q (%s): %w", seg.Name, seg.ID, err)
		}
		compiled[i] = node
		windows = append(windows, ruleengine.Windows(ruleengine.Fields(node))...)
	}
	slices.Sort(windows)
	windows = slices.Compact(windows)

	facts, err := r.facts.Stats(ctx, userID, windows)
	if err != nil {
		return nil, err
	}

	matched := make([]string, 0, len(segments))
	for i, seg := range segments {
		if ruleengine.Evaluate(compiled[i], facts) {
			matched = append(matched, seg.ID)
		}
	}
	slices.Sort(matched)

	if err := r.memberships.ReplaceMemberships(ctx, userID, matched); err != nil {
		return nil, err
	}

	observability.SegmentResolveDuration.Observe(time.Since(start).Seconds())
	logger.FromContext(ctx).Debug("segments refreshed",
		slog.String("user_id", userID),
		slog.Int("evaluated", len(segments)),
		slog.Int("matched", len(matched)),
	)
	return matched, nil
}

// HasMemberships reports whether the user has been resolved with at least one match.
func (r *Resolver) HasMemberships(ctx context.Context, userID string) (bool, error) {
	return r.memberships.HasMemberships(ctx, userID)
}

// Memberships returns the user's current segment ids.
func (r *Resolver) Memberships(ctx context.Context, userID string) ([]string, error) {
	return r.memberships.ListMemberships(ctx, userID)
}

// CreateSegment validates and stores a segment. A segment with the same name
// is returned as is, with created=false.
func (r *Resolver) CreateSegment(ctx context.Context, in CreateInput) (*store.Segment, bool, error) {
	if err := validate.Struct(in); err != nil {
		return nil, false, apperr.Validation("%s", validation.Describe(err))
	}
	if _, err := ruleengine.Parse(in.Rules); err != nil {
		return nil, false, err
	}

	seg := &store.Segment{
		ID:          uuid.NewString(),
		Name:        in.Name,
		Description: in.Description,
		Rules:       in.Rules,
	}

	err := r.segments.CreateSegment(ctx, seg)
	if err == nil {
		logger.FromContext(ctx).Info("segment created",
			slog.String("segment_id", seg.ID),
			slog.String("name", seg.Name),
		)
		return seg, true, nil
	}
	if !errors.Is(err, apperr.ErrConflict) {
		return nil, false, err
	}

	existing, err := r.segments.GetSegmentByName(ctx, in.Name)
	if err != nil {
		return nil, false, fmt.Errorf("failed to load existing segment: %w", err)
	}
	return existing, false, nil
}

// ListSegments returns every segment definition.
func (r *Resolver) ListSegments(ctx context.Context) ([]*store.Segment, error) {
	return r.segments.ListSegments(ctx)
}

// ListSegmentsPage returns one page of segment definitions and the total count.
func (r *Resolver) ListSegmentsPage(ctx context.Context, limit, offset int) ([]*store.Segment, int64, error) {
	return r.segments.ListSegmentsPage(ctx, limit, offset)
}

// GetSegment returns a segment by id.
func (r *Resolver) GetSegment(ctx context.Context, id string) (*store.Segment, error) {
	return r.segments.GetSegment(ctx, id)
}

package experiment_test

import (
	"context"
	"slices"
	"sync"

	"github.com/rafaeljc/daffodil/internal/apperr"
	"github.com/rafaeljc/daffodil/internal/store"
)

// fakeRepo is an in-memory ExperimentRepository and MembershipRepository.
type fakeRepo struct {
	mu          sync.Mutex
	experiments map[string]*store.Experiment
	segments    map[string]bool
	memberships map[string][]string
	creates     int
	err         error
}

func newFakeRepo(segmentIDs ...string) *fakeRepo {
	r := &fakeRepo{
		experiments: map[string]*store.Experiment{},
		segments:    map[string]bool{},
		memberships: map[string][]string{},
	}
	for _, id := range segmentIDs {
		r.segments[id] = true
	}
	return r
}

func (r *fakeRepo) CreateExperiment(_ context.Context, e *store.Experiment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.creates++
	if r.err != nil {
		return r.err
	}
	for _, existing := range r.experiments {
		if existing.Name == e.Name {
			return apperr.ErrConflict
		}
	}
	for _, id := range e.SegmentIDs {
		if !r.segments[id] {
			return apperr.NotFound("segment", id)
		}
	}
	cp := *e
	cp.SegmentIDs = slices.Clone(e.SegmentIDs)
	r.experiments[e.ID] = &cp
	return nil
}

func (r *fakeRepo) GetExperiment(_ context.Context, id string) (*store.Experiment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.experiments[id]
	if !ok {
		return nil, apperr.NotFound("experiment", id)
	}
	cp := *e
	return &cp, nil
}

func (r *fakeRepo) GetExperimentByName(_ context.Context, name string) (*store.Experiment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.experiments {
		if e.Name == name {
			cp := *e
			return &cp, nil
		}
	}
	return nil, apperr.NotFound("experiment", name)
}

func (r *fakeRepo) LinkSegments(_ context.Context, experimentID string, segmentIDs []string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.experiments[experimentID]
	if !ok {
		return 0, apperr.NotFound("experiment", experimentID)
	}
	for _, id := range segmentIDs {
		if !r.segments[id] {
			return 0, apperr.NotFound("segment", id)
		}
	}
	var added int64
	for _, id := range segmentIDs {
		if !slices.Contains(e.SegmentIDs, id) {
			e.SegmentIDs = append(e.SegmentIDs, id)
			added++
		}
	}
	return added, nil
}

func (r *fakeRepo) ListActiveExperiments(context.Context) ([]*store.Experiment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return nil, r.err
	}
	var out []*store.Experiment
	for _, e := range r.experiments {
		if e.Status == store.StatusActive {
			cp := *e
			out = append(out, &cp)
		}
	}
	slices.SortFunc(out, func(a, b *store.Experiment) int {
		if a.Name < b.Name {
			return -1
		}
		if a.Name > b.Name {
			return 1
		}
		return 0
	})
	return out, nil
}

func (r *fakeRepo) ReplaceMemberships(_ context.Context, userID string, segmentIDs []string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.memberships[userID] = slices.Clone(segmentIDs)
	return nil
}

func (r *fakeRepo) HasMemberships(_ context.Context, userID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.memberships[userID]) > 0, nil
}

func (r *fakeRepo) ListMemberships(_ context.Context, userID string) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.memberships[userID]), nil
}

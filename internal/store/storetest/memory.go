// Package storetest provides an in-memory implementation of the store
// repositories for unit tests of the services built on them.
package storetest

import (
	"cmp"
	"context"
	"slices"
	"sync"
	"time"

	"github.com/rafaeljc/daffodil/internal/apperr"
	"github.com/rafaeljc/daffodil/internal/store"
)

const day = 24 * time.Hour

var (
	_ store.UserRepository       = (*Memory)(nil)
	_ store.OrderRepository      = (*Memory)(nil)
	_ store.SegmentRepository    = (*Memory)(nil)
	_ store.ExperimentRepository = (*Memory)(nil)
	_ store.MembershipRepository = (*Memory)(nil)
)

// Memory mirrors the constraints of the Postgres schema: unique names,
// segment foreign keys and whole-set membership replacement.
type Memory struct {
	mu          sync.Mutex
	users       map[string]time.Time
	orders      []store.Order
	segments    []*store.Segment
	experiments []*store.Experiment
	memberships map[string][]string

	// Err, when set, is returned by every call.
	Err error

	replaces map[string]int
}

func New() *Memory {
	return &Memory{
		users:       map[string]time.Time{},
		memberships: map[string][]string{},
		replaces:    map[string]int{},
	}
}

// ReplaceCount reports how many times the user's memberships were replaced.
func (m *Memory) ReplaceCount(userID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.replaces[userID]
}

// SetErr changes the injected error under the lock.
func (m *Memory) SetErr(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Err = err
}

func (m *Memory) CreateUser(_ context.Context, userID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return false, m.Err
	}
	if _, ok := m.users[userID]; ok {
		return false, nil
	}
	m.users[userID] = time.Now()
	return true, nil
}

func (m *Memory) UserExists(_ context.Context, userID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return false, m.Err
	}
	_, ok := m.users[userID]
	return ok, nil
}

func (m *Memory) CreateOrder(_ context.Context, o *store.Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	for _, existing := range m.orders {
		if existing.ID == o.ID {
			return apperr.ErrConflict
		}
	}
	if _, ok := m.users[o.UserID]; !ok {
		m.users[o.UserID] = o.CreatedAt
	}
	m.orders = append(m.orders, *o)
	return nil
}

func (m *Memory) OrderStats(_ context.Context, userID string, now time.Time, windows []int) (*store.OrderStats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return nil, m.Err
	}

	stats := &store.OrderStats{WindowCounts: make(map[int]int64, len(windows))}
	for _, n := range windows {
		stats.WindowCounts[n] = 0
	}
	for _, o := range m.orders {
		if o.UserID != userID {
			continue
		}
		stats.TotalOrders++
		stats.LTV += o.Amount
		if stats.LastOrderAt == nil || !o.CreatedAt.Before(*stats.LastOrderAt) {
			at := o.CreatedAt
			stats.LastOrderAt = &at
			stats.LastCity = o.City
		}
		for _, n := range windows {
			if !o.CreatedAt.Before(now.Add(-time.Duration(n) * day)) {
				stats.WindowCounts[n]++
			}
		}
	}
	return stats, nil
}

func (m *Memory) HasOrderAfter(_ context.Context, userID string, t time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return false, m.Err
	}
	for _, o := range m.orders {
		if o.UserID == userID && o.CreatedAt.After(t) {
			return true, nil
		}
	}
	return false, nil
}

func (m *Memory) ListDormantUsers(_ context.Context, cutoff time.Time, after *store.DormantUser, limit int) ([]store.DormantUser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return nil, m.Err
	}

	last := map[string]time.Time{}
	for _, o := range m.orders {
		if t, ok := last[o.UserID]; !ok || o.CreatedAt.After(t) {
			last[o.UserID] = o.CreatedAt
		}
	}

	// Descending by (last order, user id), matching the postgres keyset.
	desc := func(a, b store.DormantUser) int {
		if c := b.LastOrderAt.Compare(a.LastOrderAt); c != 0 {
			return c
		}
		return cmp.Compare(b.UserID, a.UserID)
	}

	var dormant []store.DormantUser
	for user, at := range last {
		if !at.Before(cutoff) {
			continue
		}
		d := store.DormantUser{UserID: user, LastOrderAt: at}
		if after != nil && desc(*after, d) >= 0 {
			continue
		}
		dormant = append(dormant, d)
	}
	slices.SortFunc(dormant, desc)
	if limit > 0 && len(dormant) > limit {
		dormant = dormant[:limit]
	}
	return dormant, nil
}

func (m *Memory) CreateSegment(_ context.Context, s *store.Segment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	for _, existing := range m.segments {
		if existing.Name == s.Name {
			return apperr.ErrConflict
		}
	}
	now := time.Now().UTC()
	s.CreatedAt, s.UpdatedAt = now, now
	cp := *s
	m.segments = append(m.segments, &cp)
	return nil
}

func (m *Memory) GetSegment(_ context.Context, id string) (*store.Segment, error) {
	return m.findSegment(func(s *store.Segment) bool { return s.ID == id }, id)
}

func (m *Memory) GetSegmentByName(_ context.Context, name string) (*store.Segment, error) {
	return m.findSegment(func(s *store.Segment) bool { return s.Name == name }, name)
}

func (m *Memory) findSegment(match func(*store.Segment) bool, ref string) (*store.Segment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return nil, m.Err
	}
	for _, s := range m.segments {
		if match(s) {
			cp := *s
			return &cp, nil
		}
	}
	return nil, apperr.NotFound("segment", ref)
}

func (m *Memory) ListSegments(_ context.Context) ([]*store.Segment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return nil, m.Err
	}
	out := make([]*store.Segment, 0, len(m.segments))
	for _, s := range m.segments {
		cp := *s
		out = append(out, &cp)
	}
	return out, nil
}

func (m *Memory) ListSegmentsPage(ctx context.Context, limit, offset int) ([]*store.Segment, int64, error) {
	all, err := m.ListSegments(ctx)
	if err != nil {
		return nil, 0, err
	}
	total := int64(len(all))
	if offset >= len(all) {
		return []*store.Segment{}, total, nil
	}
	end := len(all)
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}
	return all[offset:end], total, nil
}

func (m *Memory) CreateExperiment(_ context.Context, e *store.Experiment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	for _, existing := range m.experiments {
		if existing.Name == e.Name {
			return apperr.ErrConflict
		}
	}
	if err := m.checkSegments(e.SegmentIDs); err != nil {
		return err
	}
	e.CreatedAt = time.Now().UTC()
	cp := *e
	cp.Variants = slices.Clone(e.Variants)
	cp.SegmentIDs = slices.Sorted(slices.Values(dedupe(e.SegmentIDs)))
	m.experiments = append(m.experiments, &cp)
	return nil
}

func (m *Memory) GetExperiment(_ context.Context, id string) (*store.Experiment, error) {
	return m.findExperiment(func(e *store.Experiment) bool { return e.ID == id }, id)
}

func (m *Memory) GetExperimentByName(_ context.Context, name string) (*store.Experiment, error) {
	return m.findExperiment(func(e *store.Experiment) bool { return e.Name == name }, name)
}

func (m *Memory) findExperiment(match func(*store.Experiment) bool, ref string) (*store.Experiment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return nil, m.Err
	}
	for _, e := range m.experiments {
		if match(e) {
			return cloneExperiment(e), nil
		}
	}
	return nil, apperr.NotFound("experiment", ref)
}

func (m *Memory) LinkSegments(_ context.Context, experimentID string, segmentIDs []string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return 0, m.Err
	}
	if err := m.checkSegments(segmentIDs); err != nil {
		return 0, err
	}
	for _, e := range m.experiments {
		if e.ID != experimentID {
			continue
		}
		var added int64
		for _, id := range dedupe(segmentIDs) {
			if !slices.Contains(e.SegmentIDs, id) {
				e.SegmentIDs = append(e.SegmentIDs, id)
				added++
			}
		}
		slices.Sort(e.SegmentIDs)
		return added, nil
	}
	return 0, apperr.NotFound("experiment", experimentID)
}

func (m *Memory) ListActiveExperiments(_ context.Context) ([]*store.Experiment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return nil, m.Err
	}
	var out []*store.Experiment
	for _, e := range m.experiments {
		if e.Status == store.StatusActive {
			out = append(out, cloneExperiment(e))
		}
	}
	return out, nil
}

func (m *Memory) ReplaceMemberships(_ context.Context, userID string, segmentIDs []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	if err := m.checkSegments(segmentIDs); err != nil {
		return err
	}
	m.replaces[userID]++
	if len(segmentIDs) == 0 {
		delete(m.memberships, userID)
		return nil
	}
	m.memberships[userID] = slices.Sorted(slices.Values(dedupe(segmentIDs)))
	return nil
}

func (m *Memory) HasMemberships(_ context.Context, userID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return false, m.Err
	}
	return len(m.memberships[userID]) > 0, nil
}

func (m *Memory) ListMemberships(_ context.Context, userID string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return nil, m.Err
	}
	return slices.Clone(m.memberships[userID]), nil
}

// checkSegments enforces the segment foreign key. Callers hold mu.
func (m *Memory) checkSegments(ids []string) error {
	for _, id := range ids {
		if !slices.ContainsFunc(m.segments, func(s *store.Segment) bool { return s.ID == id }) {
			return apperr.NotFound("segment", id)
		}
	}
	return nil
}

func cloneExperiment(e *store.Experiment) *store.Experiment {
	cp := *e
	cp.Variants = slices.Clone(e.Variants)
	cp.SegmentIDs = slices.Clone(e.SegmentIDs)
	if cp.SegmentIDs == nil {
		cp.SegmentIDs = []string{}
	}
	return &cp
}

func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

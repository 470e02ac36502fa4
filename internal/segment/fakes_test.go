package segment_test

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/rafaeljc/daffodil/internal/apperr"
	"github.com/rafaeljc/daffodil/internal/store"
)

// fakeLedger computes OrderStats from an in-memory order list.
type fakeLedger struct {
	mu     sync.Mutex
	orders []store.Order
	err    error
}

func (l *fakeLedger) add(userID string, amount float64, city string, at time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	o := store.Order{ID: at.String(), UserID: userID, Amount: amount, CreatedAt: at}
	if city != "" {
		o.City = &city
	}
	l.orders = append(l.orders, o)
}

func (l *fakeLedger) CreateOrder(_ context.Context, o *store.Order) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.orders = append(l.orders, *o)
	return nil
}

func (l *fakeLedger) OrderStats(_ context.Context, userID string, now time.Time, windows []int) (*store.OrderStats, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.err != nil {
		return nil, l.err
	}

	stats := &store.OrderStats{WindowCounts: map[int]int64{}}
	for _, n := range windows {
		stats.WindowCounts[n] = 0
	}
	for _, o := range l.orders {
		if o.UserID != userID {
			continue
		}
		stats.TotalOrders++
		stats.LTV += o.Amount
		if stats.LastOrderAt == nil || o.CreatedAt.After(*stats.LastOrderAt) {
			at := o.CreatedAt
			stats.LastOrderAt = &at
			stats.LastCity = o.City
		}
		for _, n := range windows {
			if !o.CreatedAt.Before(now.Add(-time.Duration(n) * 24 * time.Hour)) {
				stats.WindowCounts[n]++
			}
		}
	}
	return stats, nil
}

func (l *fakeLedger) HasOrderAfter(context.Context, string, time.Time) (bool, error) {
	return false, nil
}

func (l *fakeLedger) ListDormantUsers(context.Context, time.Time, *store.DormantUser, int) ([]store.DormantUser, error) {
	return nil, nil
}

// fakeSegments is an in-memory SegmentRepository and MembershipRepository.
type fakeSegments struct {
	mu          sync.Mutex
	segments    []*store.Segment
	memberships map[string][]string
	replaces    int
}

func newFakeSegments() *fakeSegments {
	return &fakeSegments{memberships: map[string][]string{}}
}

func (f *fakeSegments) CreateSegment(_ context.Context, s *store.Segment) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, existing := range f.segments {
		if existing.Name == s.Name {
			return apperr.ErrConflict
		}
	}
	now := time.Now()
	s.CreatedAt, s.UpdatedAt = now, now
	cp := *s
	f.segments = append(f.segments, &cp)
	return nil
}

func (f *fakeSegments) GetSegment(_ context.Context, id string) (*store.Segment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, s := range f.segments {
		if s.ID == id {
			return s, nil
		}
	}
	return nil, apperr.NotFound("segment", id)
}

func (f *fakeSegments) GetSegmentByName(_ context.Context, name string) (*store.Segment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, s := range f.segments {
		if s.Name == name {
			return s, nil
		}
	}
	return nil, apperr.NotFound("segment", name)
}

func (f *fakeSegments) ListSegments(context.Context) ([]*store.Segment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.segments), nil
}

func (f *fakeSegments) ListSegmentsPage(ctx context.Context, limit, offset int) ([]*store.Segment, int64, error) {
	all, _ := f.ListSegments(ctx)
	end := min(offset+limit, len(all))
	if offset >= len(all) {
		return []*store.Segment{}, int64(len(all)), nil
	}
	return all[offset:end], int64(len(all)), nil
}

func (f *fakeSegments) ReplaceMemberships(_ context.Context, userID string, ids []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.replaces++
	f.memberships[userID] = slices.Clone(ids)
	return nil
}

func (f *fakeSegments) HasMemberships(_ context.Context, userID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.memberships[userID]) > 0, nil
}

func (f *fakeSegments) ListMemberships(_ context.Context, userID string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.memberships[userID]), nil
}

//go:build integration

// Package store_test contains integration tests for the data access layer,
// run against a real PostgreSQL container.
package store_test

import (
	"context"
	"encoding/json"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rafaeljc/daffodil/internal/apperr"
	"github.com/rafaeljc/daffodil/internal/store"
	"github.com/rafaeljc/daffodil/internal/testsupport"
)

const day = 24 * time.Hour

func TestPostgresStore_Integration(t *testing.T) {
	ctx := context.Background()

	pgContainer, err := testsupport.StartPostgresContainer(ctx, "../../migrations")
	require.NoError(t, err, "failed to start postgres container")
	defer func() {
		if err := pgContainer.Terminate(ctx); err != nil {
			t.Logf("failed to terminate container: %v", err)
		}
	}()

	repo := store.NewPostgresStore(pgContainer.DB)
	now := time.Now().UTC().Truncate(time.Microsecond)

	reset := func(t *testing.T) {
		t.Helper()
		require.NoError(t, pgContainer.Reset(ctx))
	}

	mustSegment := func(t *testing.T, name string) *store.Segment {
		t.Helper()
		seg := &store.Segment{
			ID:    uuid.NewString(),
			Name:  name,
			Rules: json.RawMessage(`{"field":"is_new_user","op":"eq","value":true}`),
		}
		require.NoError(t, repo.CreateSegment(ctx, seg))
		return seg
	}

	order := func(t *testing.T, userID string, amount float64, city string, at time.Time) {
		t.Helper()
		o := &store.Order{ID: uuid.NewString(), UserID: userID, Amount: amount, CreatedAt: at}
		if city != "" {
			o.City = &city
		}
		require.NoError(t, repo.CreateOrder(ctx, o))
	}

	t.Run("Users_CreateIsIdempotent", func(t *testing.T) {
		reset(t)

		created, err := repo.CreateUser(ctx, "u1")
		require.NoError(t, err)
		assert.True(t, created)

		created, err = repo.CreateUser(ctx, "u1")
		require.NoError(t, err)
		assert.False(t, created)

		exists, err := repo.UserExists(ctx, "u2")
		require.NoError(t, err)
		assert.False(t, exists)
	})

	t.Run("Orders_StatsAndWindows", func(t *testing.T) {
		reset(t)
		order(t, "u1", 10.50, "Porto", now.Add(-40*day))
		order(t, "u1", 20.25, "", now.Add(-10*day))
		order(t, "u1", 5, "Lisbon", now.Add(-1*day))
		order(t, "u2", 99, "Madrid", now.Add(-1*day))

		exists, err := repo.UserExists(ctx, "u1")
		require.NoError(t, err)
		assert.True(t, exists, "orders register their user")

		stats, err := repo.OrderStats(ctx, "u1", now, []int{7, 30, 90})
		require.NoError(t, err)
		assert.Equal(t, int64(3), stats.TotalOrders)
		assert.InDelta(t, 35.75, stats.LTV, 0.001)
		require.NotNil(t, stats.LastOrderAt)
		assert.True(t, now.Add(-1*day).Equal(*stats.LastOrderAt))
		require.NotNil(t, stats.LastCity)
		assert.Equal(t, "Lisbon", *stats.LastCity)
		assert.Equal(t, map[int]int64{7: 1, 30: 2, 90: 3}, stats.WindowCounts)
	})

	t.Run("Orders_LastCityMayBeNull", func(t *testing.T) {
		reset(t)
		order(t, "u1", 1, "Porto", now.Add(-2*day))
		order(t, "u1", 1, "", now.Add(-1*day))

		stats, err := repo.OrderStats(ctx, "u1", now, nil)
		require.NoError(t, err)
		assert.Nil(t, stats.LastCity)
	})

	t.Run("Orders_StatsForUnknownUser", func(t *testing.T) {
		reset(t)

		stats, err := repo.OrderStats(ctx, "ghost", now, []int{30})
		require.NoError(t, err)
		assert.Zero(t, stats.TotalOrders)
		assert.Zero(t, stats.LTV)
		assert.Nil(t, stats.LastOrderAt)
		assert.Nil(t, stats.LastCity)
		assert.Equal(t, map[int]int64{30: 0}, stats.WindowCounts)
	})

	t.Run("Orders_HasOrderAfterIsStrict", func(t *testing.T) {
		reset(t)
		at := now.Add(-5 * day)
		order(t, "u1", 1, "", at)

		after, err := repo.HasOrderAfter(ctx, "u1", at)
		require.NoError(t, err)
		assert.False(t, after)

		after, err = repo.HasOrderAfter(ctx, "u1", at.Add(-time.Microsecond))
		require.NoError(t, err)
		assert.True(t, after)
	})

	t.Run("Orders_ListDormantUsers", func(t *testing.T) {
		reset(t)
		order(t, "oldest", 1, "", now.Add(-60*day))
		order(t, "dormant", 1, "", now.Add(-20*day))
		order(t, "returning", 1, "", now.Add(-30*day))
		order(t, "returning", 1, "", now.Add(-1*day))

		ids := func(users []store.DormantUser) []string {
			out := make([]string, 0, len(users))
			for _, u := range users {
				out = append(out, u.UserID)
			}
			return out
		}

		cutoff := now.Add(-14 * day)
		users, err := repo.ListDormantUsers(ctx, cutoff, nil, 0)
		require.NoError(t, err)
		assert.Equal(t, []string{"dormant", "oldest"}, ids(users))

		page, err := repo.ListDormantUsers(ctx, cutoff, nil, 1)
		require.NoError(t, err)
		require.Equal(t, []string{"dormant"}, ids(page))
		assert.True(t, page[0].LastOrderAt.Equal(now.Add(-20*day)))

		page, err = repo.ListDormantUsers(ctx, cutoff, &page[0], 1)
		require.NoError(t, err)
		require.Equal(t, []string{"oldest"}, ids(page))

		page, err = repo.ListDormantUsers(ctx, cutoff, &page[0], 1)
		require.NoError(t, err)
		assert.Empty(t, page)
	})

	t.Run("Segments_CRUDAndConflict", func(t *testing.T) {
		reset(t)
		seg := mustSegment(t, "new_user")
		assert.False(t, seg.CreatedAt.IsZero())

		got, err := repo.GetSegment(ctx, seg.ID)
		require.NoError(t, err)
		assert.Equal(t, "new_user", got.Name)
		assert.JSONEq(t, string(seg.Rules), string(got.Rules))

		byName, err := repo.GetSegmentByName(ctx, "new_user")
		require.NoError(t, err)
		assert.Equal(t, seg.ID, byName.ID)

		err = repo.CreateSegment(ctx, &store.Segment{ID: uuid.NewString(), Name: "new_user", Rules: seg.Rules})
		assert.ErrorIs(t, err, apperr.ErrConflict)

		_, err = repo.GetSegment(ctx, "missing")
		assert.ErrorIs(t, err, apperr.ErrNotFound)
	})

	t.Run("Segments_Pagination", func(t *testing.T) {
		reset(t)
		for _, name := range []string{"a", "b", "c"} {
			mustSegment(t, name)
		}

		page, total, err := repo.ListSegmentsPage(ctx, 2, 0)
		require.NoError(t, err)
		assert.Equal(t, int64(3), total)
		assert.Len(t, page, 2)

		page, _, err = repo.ListSegmentsPage(ctx, 2, 2)
		require.NoError(t, err)
		assert.Len(t, page, 1)

		all, err := repo.ListSegments(ctx)
		require.NoError(t, err)
		assert.Len(t, all, 3)
	})

	t.Run("Experiments_CreateLinkAndList", func(t *testing.T) {
		reset(t)
		s1 := mustSegment(t, "s1")
		s2 := mustSegment(t, "s2")

		exp := &store.Experiment{
			ID:     uuid.NewString(),
			Name:   "hero",
			Status: store.StatusActive,
			Variants: []store.Variant{
				{Name: "A", Weight: 50, Banners: []int{1, 2}},
				{Name: "B", Weight: 50},
			},
			SegmentIDs: []string{s1.ID},
		}
		require.NoError(t, repo.CreateExperiment(ctx, exp))
		assert.False(t, exp.CreatedAt.IsZero())

		draft := &store.Experiment{
			ID:         uuid.NewString(),
			Name:       "draft",
			Status:     store.StatusDraft,
			Variants:   []store.Variant{{Name: "A", Weight: 100}},
			SegmentIDs: []string{s1.ID},
		}
		require.NoError(t, repo.CreateExperiment(ctx, draft))

		linked, err := repo.LinkSegments(ctx, exp.ID, []string{s1.ID, s2.ID})
		require.NoError(t, err)
		assert.Equal(t, int64(1), linked, "existing links are kept")

		got, err := repo.GetExperimentByName(ctx, "hero")
		require.NoError(t, err)
		assert.ElementsMatch(t, []string{s1.ID, s2.ID}, got.SegmentIDs)
		assert.Equal(t, exp.Variants, got.Variants)

		active, err := repo.ListActiveExperiments(ctx)
		require.NoError(t, err)
		require.Len(t, active, 1)
		assert.Equal(t, exp.ID, active[0].ID)
		assert.Len(t, active[0].SegmentIDs, 2)
	})

	t.Run("Experiments_WithoutSegments", func(t *testing.T) {
		reset(t)
		exp := &store.Experiment{
			ID:       uuid.NewString(),
			Name:     "orphan",
			Status:   store.StatusActive,
			Variants: []store.Variant{{Name: "A", Weight: 100}},
		}
		require.NoError(t, repo.CreateExperiment(ctx, exp))

		got, err := repo.GetExperiment(ctx, exp.ID)
		require.NoError(t, err)
		assert.Empty(t, got.SegmentIDs)
	})

	t.Run("Experiments_Errors", func(t *testing.T) {
		reset(t)
		s1 := mustSegment(t, "s1")
		base := func(name string, segments ...string) *store.Experiment {
			return &store.Experiment{
				ID:         uuid.NewString(),
				Name:       name,
				Status:     store.StatusActive,
				Variants:   []store.Variant{{Name: "A", Weight: 100}},
				SegmentIDs: segments,
			}
		}

		err := repo.CreateExperiment(ctx, base("bad-link", "missing-segment"))
		assert.ErrorIs(t, err, apperr.ErrNotFound)

		_, err = repo.GetExperimentByName(ctx, "bad-link")
		assert.ErrorIs(t, err, apperr.ErrNotFound, "the failed create leaves no row behind")

		require.NoError(t, repo.CreateExperiment(ctx, base("dup", s1.ID)))
		err = repo.CreateExperiment(ctx, base("dup", s1.ID))
		assert.ErrorIs(t, err, apperr.ErrConflict)
	})

	t.Run("Memberships_ReplaceIsWholeSet", func(t *testing.T) {
		reset(t)
		s1 := mustSegment(t, "s1")
		s2 := mustSegment(t, "s2")
		s3 := mustSegment(t, "s3")

		require.NoError(t, repo.ReplaceMemberships(ctx, "u1", []string{s1.ID, s2.ID, s2.ID}))
		got, err := repo.ListMemberships(ctx, "u1")
		require.NoError(t, err)
		assert.ElementsMatch(t, []string{s1.ID, s2.ID}, got)

		require.NoError(t, repo.ReplaceMemberships(ctx, "u1", []string{s3.ID}))
		got, err = repo.ListMemberships(ctx, "u1")
		require.NoError(t, err)
		assert.Equal(t, []string{s3.ID}, got)

		require.NoError(t, repo.ReplaceMemberships(ctx, "u1", nil))
		has, err := repo.HasMemberships(ctx, "u1")
		require.NoError(t, err)
		assert.False(t, has)
	})

	t.Run("Memberships_FailedReplaceKeepsPreviousSet", func(t *testing.T) {
		reset(t)
		s1 := mustSegment(t, "s1")
		require.NoError(t, repo.ReplaceMemberships(ctx, "u1", []string{s1.ID}))

		err := repo.ReplaceMemberships(ctx, "u1", []string{"missing-segment"})
		assert.ErrorIs(t, err, apperr.ErrNotFound)

		got, err := repo.ListMemberships(ctx, "u1")
		require.NoError(t, err)
		assert.Equal(t, []string{s1.ID}, got)
	})

	t.Run("Memberships_ConcurrentReplacesNeverInterleave", func(t *testing.T) {
		reset(t)
		a1, a2 := mustSegment(t, "a1"), mustSegment(t, "a2")
		b1, b2 := mustSegment(t, "b1"), mustSegment(t, "b2")
		setA := []string{a1.ID, a2.ID}
		setB := []string{b1.ID, b2.ID}

		var wg sync.WaitGroup
		for i := range 20 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				set := setA
				if i%2 == 1 {
					set = setB
				}
				assert.NoError(t, repo.ReplaceMemberships(ctx, "u1", set))
			}()
		}
		wg.Wait()

		got, err := repo.ListMemberships(ctx, "u1")
		require.NoError(t, err)
		is := func(want []string) bool {
			return assert.ObjectsAreEqual(slices.Sorted(slices.Values(want)), got)
		}
		assert.True(t, is(setA) || is(setB), "membership mixes two snapshots: %v", got)
	})
}

package experiment_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rafaeljc/daffodil/internal/apperr"
	"github.com/rafaeljc/daffodil/internal/experiment"
	"github.com/rafaeljc/daffodil/internal/store"
)

func bannerInput(name string, segments ...string) experiment.CreateInput {
	return experiment.CreateInput{
		Name: name,
		Variants: []experiment.VariantInput{
			{Name: "A", Weight: 50, Banners: []int{1, 2}},
			{Name: "B", Weight: 50, Banners: []int{3, 4}},
		},
		SegmentIDs: segments,
	}
}

func TestCreateInput_Validate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		mutate  func(in *experiment.CreateInput)
		wantErr string
	}{
		{name: "valid", mutate: func(*experiment.CreateInput) {}},
		{
			name:    "weights below 100",
			mutate:  func(in *experiment.CreateInput) { in.Variants[0].Weight, in.Variants[1].Weight = 40, 40 },
			wantErr: "sum to 100, got 80",
		},
		{
			name:    "weights above 100",
			mutate:  func(in *experiment.CreateInput) { in.Variants[0].Weight = 60 },
			wantErr: "got 110",
		},
		{
			name:    "missing name",
			mutate:  func(in *experiment.CreateInput) { in.Name = "" },
			wantErr: "Name: required",
		},
		{
			name:    "no variants",
			mutate:  func(in *experiment.CreateInput) { in.Variants = nil },
			wantErr: "Variants: required",
		},
		{
			name:    "duplicate variant names",
			mutate:  func(in *experiment.CreateInput) { in.Variants[1].Name = "A" },
			wantErr: "Variants: unique",
		},
		{
			name:    "weight out of range",
			mutate:  func(in *experiment.CreateInput) { in.Variants[0].Weight, in.Variants[1].Weight = 150, -50 },
			wantErr: "Weight",
		},
		{
			name:    "unknown status",
			mutate:  func(in *experiment.CreateInput) { in.Status = "paused" },
			wantErr: "Status: oneof",
		},
		{
			name:    "empty segment id",
			mutate:  func(in *experiment.CreateInput) { in.SegmentIDs = []string{""} },
			wantErr: "SegmentIDs[0]: required",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			in := bannerInput("exp", "seg-1")
			tt.mutate(&in)

			err := in.Validate()
			if tt.wantErr == "" {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.ErrorIs(t, err, apperr.ErrValidation)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestService_CreateExperiment(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("creates with default status", func(t *testing.T) {
		t.Parallel()
		repo := newFakeRepo("seg-1")
		svc := experiment.NewService(repo, repo)

		exp, created, err := svc.CreateExperiment(ctx, bannerInput("homepage", "seg-1"))
		require.NoError(t, err)
		assert.True(t, created)
		assert.NotEmpty(t, exp.ID)
		assert.Equal(t, store.StatusActive, exp.Status)
		assert.Equal(t, []string{"seg-1"}, exp.SegmentIDs)
		assert.Equal(t, []int{3, 4}, exp.Variants[1].Banners)
	})

	t.Run("rejects weights that do not sum to 100 without writing", func(t *testing.T) {
		t.Parallel()
		repo := newFakeRepo("seg-1")
		svc := experiment.NewService(repo, repo)

		in := bannerInput("homepage", "seg-1")
		in.Variants[0].Weight, in.Variants[1].Weight = 40, 40

		_, _, err := svc.CreateExperiment(ctx, in)
		require.ErrorIs(t, err, apperr.ErrValidation)
		assert.Zero(t, repo.creates, "repository must not be called")
		assert.Empty(t, repo.experiments)
	})

	t.Run("duplicate name links new segments to the existing experiment", func(t *testing.T) {
		t.Parallel()
		repo := newFakeRepo("seg-1", "seg-2")
		svc := experiment.NewService(repo, repo)

		first, created, err := svc.CreateExperiment(ctx, bannerInput("homepage", "seg-1"))
		require.NoError(t, err)
		require.True(t, created)

		second, created, err := svc.CreateExperiment(ctx, bannerInput("homepage", "seg-1", "seg-2"))
		require.NoError(t, err)
		assert.False(t, created)
		assert.Equal(t, first.ID, second.ID)
		assert.ElementsMatch(t, []string{"seg-1", "seg-2"}, second.SegmentIDs)
		assert.Len(t, repo.experiments, 1)
	})

	t.Run("unknown segment is not found", func(t *testing.T) {
		t.Parallel()
		repo := newFakeRepo()
		svc := experiment.NewService(repo, repo)

		_, _, err := svc.CreateExperiment(ctx, bannerInput("homepage", "missing"))
		assert.ErrorIs(t, err, apperr.ErrNotFound)
	})

	t.Run("store failures propagate", func(t *testing.T) {
		t.Parallel()
		repo := newFakeRepo("seg-1")
		repo.err = apperr.Unavailable("postgres", errors.New("connection refused"))
		svc := experiment.NewService(repo, repo)

		_, _, err := svc.CreateExperiment(ctx, bannerInput("homepage", "seg-1"))
		assert.ErrorIs(t, err, apperr.ErrUnavailable)
	})
}

func TestService_Resolve(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	repo := newFakeRepo("new_user", "vip", "dormant")
	svc := experiment.NewService(repo, repo)

	_, _, err := svc.CreateExperiment(ctx, bannerInput("onboarding", "new_user"))
	require.NoError(t, err)
	_, _, err = svc.CreateExperiment(ctx, bannerInput("loyalty", "vip", "dormant"))
	require.NoError(t, err)

	draft := bannerInput("draft-only", "new_user")
	draft.Status = store.StatusDraft
	_, _, err = svc.CreateExperiment(ctx, draft)
	require.NoError(t, err)

	tests := []struct {
		name        string
		memberships []string
		expected    []string
	}{
		{name: "no memberships", memberships: nil, expected: []string{}},
		{name: "single match", memberships: []string{"new_user"}, expected: []string{"onboarding"}},
		{name: "any linked segment matches", memberships: []string{"dormant"}, expected: []string{"loyalty"}},
		{name: "multiple experiments", memberships: []string{"new_user", "vip"}, expected: []string{"loyalty", "onboarding"}},
		{name: "unrelated segment", memberships: []string{"other"}, expected: []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			user := "user-" + tt.name
			require.NoError(t, repo.ReplaceMemberships(ctx, user, tt.memberships))

			got, err := svc.Resolve(ctx, user)
			require.NoError(t, err)

			names := make([]string, 0, len(got))
			for _, a := range got {
				names = append(names, a.Name)
				assert.Contains(t, []string{"A", "B"}, a.Variant)
				assert.NotEmpty(t, a.Banners)
			}
			assert.ElementsMatch(t, tt.expected, names)
		})
	}
}

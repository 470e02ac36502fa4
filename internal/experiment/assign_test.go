package experiment_test

import (
	"fmt"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/rafaeljc/daffodil/internal/experiment"
	"github.com/rafaeljc/daffodil/internal/store"
)

func TestAssign_Deterministic(t *testing.T) {
	t.Parallel()

	exp := &store.Experiment{
		ID: "exp-checkout",
		Variants: []store.Variant{
			{Name: "control", Weight: 50},
			{Name: "treatment", Weight: 50},
		},
	}

	for i := range 1000 {
		user := fmt.Sprintf("user-%d", i)
		first := experiment.Assign(user, exp)
		second := experiment.Assign(user, exp)
		assert.Equal(t, first, second, "assignment must be stable for %s", user)
	}
}

func TestAssign_Distribution(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		weights []int
	}{
		{name: "50/50", weights: []int{50, 50}},
		{name: "10/30/60", weights: []int{10, 30, 60}},
	}

	const users = 100_000

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			exp := &store.Experiment{ID: "exp-" + tt.name}
			for i, w := range tt.weights {
				exp.Variants = append(exp.Variants, store.Variant{Name: fmt.Sprintf("v%d", i), Weight: w})
			}

			counts := map[string]int{}
			for i := range users {
				counts[experiment.Assign(fmt.Sprintf("user-%d", i), exp).Name]++
			}

			for i, w := range tt.weights {
				got := float64(counts[fmt.Sprintf("v%d", i)]) / users * 100
				assert.LessOrEqual(t, math.Abs(got-float64(w)), 2.0,
					"variant v%d: expected ~%d%%, got %.2f%%", i, w, got)
			}
		})
	}
}

func TestAssign_Boundaries(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		variants []store.Variant
		expected string
	}{
		{
			name:     "single variant takes everyone",
			variants: []store.Variant{{Name: "only", Weight: 100}},
			expected: "only",
		},
		{
			name:     "zero weight variant is never chosen",
			variants: []store.Variant{{Name: "off", Weight: 0}, {Name: "on", Weight: 100}},
			expected: "on",
		},
		{
			name:     "shortfall falls back to the last variant",
			variants: []store.Variant{{Name: "a", Weight: 0}, {Name: "b", Weight: 0}},
			expected: "b",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			exp := &store.Experiment{ID: "exp", Variants: tt.variants}
			for i := range 200 {
				assert.Equal(t, tt.expected, experiment.Assign(fmt.Sprintf("u%d", i), exp).Name)
			}
		})
	}
}

func TestAssign_NoVariants(t *testing.T) {
	t.Parallel()

	v := experiment.Assign("u1", &store.Experiment{ID: "empty"})
	assert.Equal(t, store.Variant{}, v)
}

package ruleengine

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBucket_Deterministic(t *testing.T) {
	t.Parallel()

	for i := range 1000 {
		user := fmt.Sprintf("user-%d", i)
		first := Bucket(user, "exp-1")
		assert.Equal(t, first, Bucket(user, "exp-1"))
		assert.GreaterOrEqual(t, first, 0)
		assert.Less(t, first, Buckets)
	}
}

func TestBucket_SaltChangesPlacement(t *testing.T) {
	t.Parallel()

	// Across many users, a different salt must move at least some of them.
	moved := 0
	for i := range 1000 {
		user := fmt.Sprintf("user-%d", i)
		if Bucket(user, "exp-a") != Bucket(user, "exp-b") {
			moved++
		}
	}
	assert.Greater(t, moved, 900)
}

func TestBucket_UniformDistribution(t *testing.T) {
	t.Parallel()

	const users = 100_000
	counts := make([]int, Buckets)
	for i := range users {
		counts[Bucket(fmt.Sprintf("user-%d", i), "banner-test")]++
	}

	expected := users / Buckets
	for b, c := range counts {
		// 1000 expected per bucket; +/-20% is far outside normal variance.
		assert.InDelta(t, expected, c, float64(expected)*0.2, "bucket %d is skewed", b)
	}
}

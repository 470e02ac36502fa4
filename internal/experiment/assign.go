// Package experiment resolves a user's experiment assignments and manages
// experiment definitions.
package experiment

import (
	"github.com/rafaeljc/daffodil/internal/ruleengine"
	"github.com/rafaeljc/daffodil/internal/store"
)

// Assignment is one experiment a user takes part in and the variant they got.
type Assignment struct {
	ExperimentID string `json:"experiment_id"`
	Name         string `json:"name"`
	Variant      string `json:"variant"`
	Banners      []int  `json:"banners,omitempty"`
}

// Assign buckets userID into one of the experiment's variants.
//
// The bucket is a stable hash of "userID:experimentID" in [0, 100). Variants are
// walked in declared order; the first whose cumulative weight exceeds the bucket
// wins, and the last variant absorbs any shortfall below 100. Reordering the
// variants of a running experiment moves users between variants.
func Assign(userID string, exp *store.Experiment) store.Variant {
	if len(exp.Variants) == 0 {
		return store.Variant{}
	}

	bucket := ruleengine.Bucket(userID, exp.ID)
	cumulative := 0
	for _, v := range exp.Variants {
		cumulative += v.Weight
		if cumulative > bucket {
			return v
		}
	}
	return exp.Variants[len(exp.Variants)-1]
}

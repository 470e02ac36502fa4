package experiment

import (
	"github.com/go-playground/validator/v10"

	"github.com/rafaeljc/daffodil/internal/apperr"
	"github.com/rafaeljc/daffodil/internal/store"
	"github.com/rafaeljc/daffodil/internal/validation"
)

// TotalWeight is the exact sum variant weights must reach.
const TotalWeight = 100

var validate = validator.New(validator.WithRequiredStructEnabled())

// VariantInput describes one variant of a new experiment.
type VariantInput struct {
	Name    string `json:"name" validate:"required,max=100"`
	Weight  int    `json:"weight" validate:"min=0,max=100"`
	Banners []int  `json:"banners,omitempty"`
}

// CreateInput holds the fields required to create an experiment.
type CreateInput struct {
	Name       string         `json:"name" validate:"required,max=255"`
	Status     string         `json:"status" validate:"omitempty,oneof=draft active"`
	Variants   []VariantInput `json:"variants" validate:"required,min=1,unique=Name,dive"`
	SegmentIDs []string       `json:"segment_ids" validate:"dive,required"`
}

// Validate checks field constraints and that weights add up to TotalWeight.
func (in *CreateInput) Validate() error {
	if err := validate.Struct(in); err != nil {
		return apperr.Validation("%s", validation.Describe(err))
	}

	sum := 0
	for _, v := range in.Variants {
		sum += v.Weight
	}
	if sum != TotalWeight {
		return apperr.Validation("variant weights must sum to %d, got %d", TotalWeight, sum)
	}
	return nil
}

func (in *CreateInput) toExperiment(id string) *store.Experiment {
	status := in.Status
	if status == "" {
		status = store.StatusActive
	}

	variants := make([]store.Variant, len(in.Variants))
	for i, v := range in.Variants {
		variants[i] = store.Variant{Name: v.Name, Weight: v.Weight, Banners: v.Banners}
	}

	return &store.Experiment{
		ID:         id,
		Name:       in.Name,
		Status:     status,
		Variants:   variants,
		SegmentIDs: dedupe(in.SegmentIDs),
	}
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

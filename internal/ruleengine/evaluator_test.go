package ruleengine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustParse(t *testing.T, raw string) Node {
	t.Helper()
	node, err := Parse([]byte(raw))
	require.NoError(t, err)
	return node
}

func TestEvaluate_LeafOperators(t *testing.T) {
	t.Parallel()

	facts := Facts{
		"total_orders":             int64(6),
		"ltv":                      1499.5,
		"city":                     "HSR Layout",
		"is_new_user":              false,
		"order_count_last_15_days": 3,
	}

	tests := []struct {
		name string
		rule string
		want bool
	}{
		{"gt true", `{"field":"total_orders","op":"gt","value":5}`, true},
		{"gt false on equal", `{"field":"total_orders","op":"gt","value":6}`, false},
		{"gte on equal", `{"field":"total_orders","op":"gte","value":6}`, true},
		{"lt with float fact", `{"field":"ltv","op":"lt","value":1500}`, true},
		{"lte false", `{"field":"ltv","op":"lte","value":1000}`, false},
		{"eq int fact against json number", `{"field":"order_count_last_15_days","op":"eq","value":3}`, true},
		{"eq string", `{"field":"city","op":"eq","value":"HSR Layout"}`, true},
		{"eq is case sensitive", `{"field":"city","op":"eq","value":"hsr layout"}`, false},
		{"eq bool", `{"field":"is_new_user","op":"eq","value":false}`, true},
		{"neq string", `{"field":"city","op":"neq","value":"Whitefield"}`, true},
		{"neq bool equal", `{"field":"is_new_user","op":"neq","value":false}`, false},
		{"in string list", `{"field":"city","op":"in","value":["Koramangala","HSR Layout"]}`, true},
		{"in number list", `{"field":"total_orders","op":"in","value":[1,6,9]}`, true},
		{"in miss", `{"field":"city","op":"in","value":["Koramangala"]}`, false},
		{"not_in miss", `{"field":"city","op":"not_in","value":["Koramangala"]}`, true},
		{"not_in hit", `{"field":"city","op":"not_in","value":["HSR Layout"]}`, false},
		{"string ordering", `{"field":"city","op":"gt","value":"Bellandur"}`, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, Evaluate(mustParse(t, tt.rule), facts))
		})
	}
}

func TestEvaluate_MissingAndIncompatibleFacts(t *testing.T) {
	t.Parallel()

	facts := Facts{
		"total_orders": 2,
		"city":         "HSR Layout",
		"is_new_user":  true,
		"nullable":     nil,
		"nested":       map[string]any{"a": 1},
	}

	tests := []struct {
		name string
		rule string
	}{
		{"missing field", `{"field":"ltv","op":"gte","value":0}`},
		{"missing field with neq", `{"field":"ltv","op":"neq","value":1}`},
		{"missing field with not_in", `{"field":"ltv","op":"not_in","value":[1]}`},
		{"nil fact", `{"field":"nullable","op":"eq","value":1}`},
		{"unsupported fact type", `{"field":"nested","op":"eq","value":1}`},
		{"number against string", `{"field":"total_orders","op":"gt","value":"1"}`},
		{"string against number", `{"field":"city","op":"lt","value":10}`},
		{"bool ordering", `{"field":"is_new_user","op":"gte","value":true}`},
		{"bool eq number", `{"field":"is_new_user","op":"eq","value":1}`},
		{"neq across types", `{"field":"city","op":"neq","value":1}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.NotPanics(t, func() {
				assert.False(t, Evaluate(mustParse(t, tt.rule), facts))
			})
		})
	}
}

func TestEvaluate_Combinators(t *testing.T) {
	t.Parallel()

	const (
		trueLeaf  = `{"field":"opted_in","op":"eq","value":true}`
		falseLeaf = `{"field":"opted_in","op":"eq","value":false}`
	)
	facts := Facts{"opted_in": true}

	tests := []struct {
		name string
		rule string
		want bool
	}{
		{"AND [true,false]", `{"operator":"AND","conditions":[` + trueLeaf + `,` + falseLeaf + `]}`, false},
		{"OR [true,false]", `{"operator":"OR","conditions":[` + trueLeaf + `,` + falseLeaf + `]}`, true},
		{"AND [true,true]", `{"operator":"AND","conditions":[` + trueLeaf + `,` + trueLeaf + `]}`, true},
		{"OR [false,false]", `{"operator":"OR","conditions":[` + falseLeaf + `,` + falseLeaf + `]}`, false},
		{"empty AND", `{"operator":"AND","conditions":[]}`, true},
		{"empty OR", `{"operator":"OR","conditions":[]}`, false},
		{
			// {AND:[{OR:[A,B]}, C]} with A=false, B=true, C=true
			"nested AND of OR",
			`{"operator":"AND","conditions":[{"operator":"OR","conditions":[` + falseLeaf + `,` + trueLeaf + `]},` + trueLeaf + `]}`,
			true,
		},
		{
			"incompatible sibling does not poison OR",
			`{"operator":"OR","conditions":[{"field":"opted_in","op":"gt","value":1},` + trueLeaf + `]}`,
			true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, Evaluate(mustParse(t, tt.rule), facts))
		})
	}
}

func TestEvaluate_IsPure(t *testing.T) {
	t.Parallel()

	node := mustParse(t, `{"operator":"AND","conditions":[{"field":"ltv","op":"gte","value":1500},{"field":"days_since_last_order","op":"lt","value":7}]}`)
	facts := Facts{"ltv": 2000.0, "days_since_last_order": int64(3)}

	first := Evaluate(node, facts)
	for range 100 {
		require.Equal(t, first, Evaluate(node, facts))
	}
	assert.True(t, first)
	assert.Equal(t, Facts{"ltv": 2000.0, "days_since_last_order": int64(3)}, facts, "facts must not be mutated")
}

func TestEvaluate_NilNode(t *testing.T) {
	t.Parallel()
	assert.False(t, Evaluate(nil, Facts{"a": 1}))
}

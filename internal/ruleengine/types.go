// Package ruleengine evaluates segment rule trees against a user's fact map.
//
// Rule trees are stored as JSON and compiled once into a closed set of node
// types (Group and Leaf). Unknown combinators or comparison operators are
// rejected at compile time, so evaluating a compiled tree cannot fail.
package ruleengine

import "encoding/json"

// Facts is the flat map of user statistics a tree is evaluated against
// (e.g. "total_orders", "ltv", "city").
type Facts map[string]any

// Combinator joins the results of a Group's children.
type Combinator string

const (
	// And is true when every child is true (an empty AND is true).
	And Combinator = "AND"
	// Or is true when any child is true (an empty OR is false).
	Or Combinator = "OR"
)

// Operator is the comparison applied by a Leaf.
type Operator string

const (
	OpGt    Operator = "gt"
	OpGte   Operator = "gte"
	OpLt    Operator = "lt"
	OpLte   Operator = "lte"
	OpEq    Operator = "eq"
	OpNeq   Operator = "neq"
	OpIn    Operator = "in"
	OpNotIn Operator = "not_in"
)

// Tree mirrors the JSON document stored in the segments.rules column.
// A node is either a group ({"operator","conditions"}) or a leaf ({"field","op","value"}).
type Tree struct {
	Operator   string          `json:"operator,omitempty"`
	Conditions []Tree          `json:"conditions,omitempty"`
	Field      string          `json:"field,omitempty"`
	Op         string          `json:"op,omitempty"`
	Value      json.RawMessage `json:"value,omitempty"`

	// hasConditions records whether a decoded group carried a conditions array,
	// so {"operator":"AND"} can be told apart from {"operator":"AND","conditions":[]}.
	hasConditions bool
}

// UnmarshalJSON decodes a node and remembers whether "conditions" was present.
func (t *Tree) UnmarshalJSON(b []byte) error {
	type plain Tree
	var p plain
	if err := json.Unmarshal(b, &p); err != nil {
		return err
	}
	var keys map[string]json.RawMessage
	if err := json.Unmarshal(b, &keys); err != nil {
		return err
	}
	*t = Tree(p)
	if raw, ok := keys["conditions"]; ok && string(raw) != "null" {
		t.hasConditions = true
	}
	return nil
}

// Node is a compiled rule tree node. The set of implementations is closed.
type Node interface {
	eval(facts Facts) bool
	walk(fn func(*Leaf))
}

// Group combines child nodes with AND or OR.
type Group struct {
	Combinator Combinator
	Children   []Node
}

// Leaf compares one fact against a literal.
type Leaf struct {
	Field string
	Op    Operator
	// Value is a float64, string or bool for scalar operators,
	// and a []any of those for in/not_in.
	Value any
}

func (g *Group) walk(fn func(*Leaf)) {
	for _, c := range g.Children {
		c.walk(fn)
	}
}

func (l *Leaf) walk(fn func(*Leaf)) { fn(l) }

package ruleengine

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/rafaeljc/daffodil/internal/apperr"
)

const (
	// MaxDepth bounds group nesting. Deeper trees are almost certainly generated by mistake.
	MaxDepth = 32

	// MaxCollectionSize limits the literal list of an in/not_in leaf.
	// Large lists belong in a dedicated segment, not in a rule literal.
	MaxCollectionSize = 10_000
)

// ErrInvalidRule reports a malformed rule tree. It wraps apperr.ErrValidation so
// API callers get a 400; when found in stored data it is a configuration error.
var ErrInvalidRule = fmt.Errorf("%w: invalid rule", apperr.ErrValidation)

var operators = map[string]Operator{
	string(OpGt): OpGt, string(OpGte): OpGte, string(OpLt): OpLt, string(OpLte): OpLte,
	string(OpEq): OpEq, string(OpNeq): OpNeq, string(OpIn): OpIn, string(OpNotIn): OpNotIn,
}

// Parse decodes and compiles a JSON rule tree.
func Parse(raw []byte) (Node, error) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil, fmt.Errorf("%w: empty rule tree", ErrInvalidRule)
	}
	var tree Tree
	if err := json.Unmarshal(raw, &tree); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRule, err)
	}
	return Compile(tree)
}

// Compile converts a decoded tree into its compiled form.
func Compile(tree Tree) (Node, error) {
	return compileNode(tree, "$", 0)
}

func compileNode(t Tree, path string, depth int) (Node, error) {
	if depth > MaxDepth {
		return nil, fmt.Errorf("%w: %s: nesting deeper than %d", ErrInvalidRule, path, MaxDepth)
	}

	if t.Operator != "" {
		if t.Field != "" || t.Op != "" {
			return nil, fmt.Errorf("%w: %s: node mixes group and leaf keys", ErrInvalidRule, path)
		}
		var comb Combinator
		switch Combinator(t.Operator) {
		case And, Or:
			comb = Combinator(t.Operator)
		default:
			return nil, fmt.Errorf("%w: %s: unsupported operator %q", ErrInvalidRule, path, t.Operator)
		}
		if t.Conditions == nil && !t.hasConditions {
			return nil, fmt.Errorf("%w: %s: %s group without conditions", ErrInvalidRule, path, comb)
		}

		children := make([]Node, 0, len(t.Conditions))
		for i, c := range t.Conditions {
			child, err := compileNode(c, fmt.Sprintf("%s.conditions[%d]", path, i), depth+1)
			if err != nil {
				return nil, err
			}
			children = append(children, child)
		}
		return &Group{Combinator: comb, Children: children}, nil
	}

	return compileLeaf(t, path)
}

func compileLeaf(t Tree, path string) (*Leaf, error) {
	if t.Field == "" {
		return nil, fmt.Errorf("%w: %s: leaf without field", ErrInvalidRule, path)
	}
	op, ok := operators[t.Op]
	if !ok {
		return nil, fmt.Errorf("%w: %s: unsupported op %q for field %q", ErrInvalidRule, path, t.Op, t.Field)
	}
	if len(t.Value) == 0 {
		return nil, fmt.Errorf("%w: %s: leaf %q without value", ErrInvalidRule, path, t.Field)
	}

	var value any
	if err := json.Unmarshal(t.Value, &value); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidRule, path, err)
	}

	switch op {
	case OpIn, OpNotIn:
		list, ok := value.([]any)
		if !ok {
			return nil, fmt.Errorf("%w: %s: op %q requires an array value", ErrInvalidRule, path, op)
		}
		if len(list) > MaxCollectionSize {
			return nil, fmt.Errorf("%w: %s: %d elements exceed maximum of %d", ErrInvalidRule, path, len(list), MaxCollectionSize)
		}
		for i, el := range list {
			if !isScalar(el) {
				return nil, fmt.Errorf("%w: %s: element %d is not a scalar", ErrInvalidRule, path, i)
			}
		}
	default:
		if !isScalar(value) {
			return nil, fmt.Errorf("%w: %s: op %q requires a scalar value", ErrInvalidRule, path, op)
		}
	}

	return &Leaf{Field: t.Field, Op: op, Value: value}, nil
}

func isScalar(v any) bool {
	switch v.(type) {
	case float64, string, bool:
		return true
	}
	return false
}

// IsInvalidRule reports whether err was produced by Parse or Compile.
func IsInvalidRule(err error) bool {
	return errors.Is(err, ErrInvalidRule)
}

package ruleengine

import (
	"slices"
	"strings"
)

// Evaluate reports whether facts satisfy the compiled tree.
// It is a pure function: a missing fact makes its leaf false, and a fact whose
// type cannot be compared with the literal makes its leaf false without
// affecting sibling leaves.
func Evaluate(node Node, facts Facts) bool {
	if node == nil {
		return false
	}
	return node.eval(facts)
}

func (g *Group) eval(facts Facts) bool {
	// Children are all evaluated; the result is the plain all/any.
	switch g.Combinator {
	case And:
		result := true
		for _, c := range g.Children {
			if !c.eval(facts) {
				result = false
			}
		}
		return result
	case Or:
		result := false
		for _, c := range g.Children {
			if c.eval(facts) {
				result = true
			}
		}
		return result
	}
	return false
}

func (l *Leaf) eval(facts Facts) bool {
	raw, ok := facts[l.Field]
	if !ok || raw == nil {
		return false
	}
	fact, ok := normalize(raw)
	if !ok {
		return false
	}

	switch l.Op {
	case OpEq:
		eq, comparable := equal(fact, l.Value)
		return comparable && eq
	case OpNeq:
		eq, comparable := equal(fact, l.Value)
		return comparable && !eq
	case OpGt, OpGte, OpLt, OpLte:
		c, comparable := order(fact, l.Value)
		if !comparable {
			return false
		}
		switch l.Op {
		case OpGt:
			return c > 0
		case OpGte:
			return c >= 0
		case OpLt:
			return c < 0
		default:
			return c <= 0
		}
	case OpIn:
		return contains(l.Value, fact)
	case OpNotIn:
		return !contains(l.Value, fact)
	}
	return false
}

// normalize maps fact values onto the three literal kinds produced by JSON
// decoding: float64, string and bool.
func normalize(v any) (any, bool) {
	switch x := v.(type) {
	case float64, string, bool:
		return x, true
	case float32:
		return float64(x), true
	case int:
		return float64(x), true
	case int8:
		return float64(x), true
	case int16:
		return float64(x), true
	case int32:
		return float64(x), true
	case int64:
		return float64(x), true
	case uint:
		return float64(x), true
	case uint8:
		return float64(x), true
	case uint16:
		return float64(x), true
	case uint32:
		return float64(x), true
	case uint64:
		return float64(x), true
	}
	return nil, false
}

// equal compares two normalized scalars. comparable is false when the kinds differ.
func equal(a, b any) (eq bool, comparable bool) {
	switch x := a.(type) {
	case float64:
		y, ok := b.(float64)
		return ok && x == y, ok
	case string:
		y, ok := b.(string)
		return ok && x == y, ok
	case bool:
		y, ok := b.(bool)
		return ok && x == y, ok
	}
	return false, false
}

// order returns -1, 0 or +1. Only number/number and string/string pairs are ordered.
func order(a, b any) (int, bool) {
	switch x := a.(type) {
	case float64:
		y, ok := b.(float64)
		if !ok {
			return 0, false
		}
		switch {
		case x < y:
			return -1, true
		case x > y:
			return 1, true
		}
		return 0, true
	case string:
		y, ok := b.(string)
		if !ok {
			return 0, false
		}
		return strings.Compare(x, y), true
	}
	return 0, false
}

func contains(collection, fact any) bool {
	list, ok := collection.([]any)
	if !ok {
		return false
	}
	return slices.ContainsFunc(list, func(el any) bool {
		eq, _ := equal(fact, el)
		return eq
	})
}

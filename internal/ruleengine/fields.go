package ruleengine

import (
	"slices"
	"strconv"
	"strings"
)

const (
	windowPrefix = "order_count_last_"
	windowSuffix = "_days"
)

// Fields returns the distinct fact names referenced by the tree, sorted.
func Fields(node Node) []string {
	if node == nil {
		return nil
	}
	seen := make(map[string]struct{})
	node.walk(func(l *Leaf) { seen[l.Field] = struct{}{} })

	out := make([]string, 0, len(seen))
	for f := range seen {
		out = append(out, f)
	}
	slices.Sort(out)
	return out
}

// WindowField returns the fact name for an order-count window of n days.
func WindowField(days int) string {
	return windowPrefix + strconv.Itoa(days) + windowSuffix
}

// Windows extracts the day windows of "order_count_last_<N>_days" fields.
// Malformed or non-positive windows are ignored; their leaves simply never match.
func Windows(fields []string) []int {
	var out []int
	for _, f := range fields {
		if !strings.HasPrefix(f, windowPrefix) || !strings.HasSuffix(f, windowSuffix) {
			continue
		}
		n, err := strconv.Atoi(strings.TrimSuffix(strings.TrimPrefix(f, windowPrefix), windowSuffix))
		if err != nil || n <= 0 {
			continue
		}
		if !slices.Contains(out, n) {
			out = append(out, n)
		}
	}
	slices.Sort(out)
	return out
}

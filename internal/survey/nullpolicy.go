package survey

import (
	"math"
	"strings"
)

// NullPolicy replaces missing values with nil, the absent-value marker.
//
// A value is missing when it is an empty or whitespace-only string, a NaN
// float, or a string equal (case-insensitively, after trimming) to one of the
// configured null tokens. "nan" is always a null token, including for the
// zero value.
type NullPolicy struct {
	tokens map[string]struct{}
}

// NewNullPolicy builds a policy with the default tokens plus extra.
func NewNullPolicy(extra ...string) NullPolicy {
	p := NullPolicy{tokens: map[string]struct{}{}}
	for _, t := range extra {
		t = strings.ToLower(strings.TrimSpace(t))
		if t != "" {
			p.tokens[t] = struct{}{}
		}
	}
	return p
}

// IsMissing reports whether v should become the absent-value marker.
func (p NullPolicy) IsMissing(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		s := strings.TrimSpace(t)
		if s == "" {
			return true
		}
		s = strings.ToLower(s)
		if s == "nan" {
			return true
		}
		_, ok := p.tokens[s]
		return ok
	case float64:
		return math.IsNaN(t)
	case float32:
		return math.IsNaN(float64(t))
	default:
		return false
	}
}

// Apply rewrites every missing value of t to nil and returns how many values
// changed. Integer indicator values are never missing and stay untouched.
func (p NullPolicy) Apply(t *Table) int {
	n := 0
	for _, row := range t.Rows {
		for i, v := range row {
			if v != nil && p.IsMissing(v) {
				row[i] = nil
				n++
			}
		}
	}
	return n
}

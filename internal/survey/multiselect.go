package survey

import (
	"fmt"
	"sort"
	"strings"
)

// CollisionPolicy decides what happens when two distinct option texts of one
// multi-select question normalize to the same indicator column.
type CollisionPolicy string

const (
	// CollisionFail aborts the run with a *CollisionError.
	CollisionFail CollisionPolicy = "error"
	// CollisionMerge folds the options into one indicator and records a warning.
	CollisionMerge CollisionPolicy = "warn"
)

var answerNoise = strings.NewReplacer("\r\n", " ", "\r", " ", "\n", " ")

// ParseTokens splits a raw multi-select answer into its canonical token set:
// newlines become spaces, the answer is split on ',', every token is trimmed,
// empty tokens are dropped, duplicates removed and the result sorted.
func ParseTokens(answer string) []string {
	answer = strings.TrimSpace(answerNoise.Replace(answer))
	if answer == "" {
		return nil
	}

	parts := strings.Split(answer, ",")
	set := make(map[string]struct{}, len(parts))
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if _, dup := set[p]; dup {
			continue
		}
		set[p] = struct{}{}
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// SerializeTokens renders a canonical token set back to one answer string.
func SerializeTokens(tokens []string) string {
	return strings.Join(tokens, ", ")
}

// QuestionPrefix derives the indicator prefix for a question header from its
// leading number ("8. Como você estuda..." -> "q8"). Headers without a leading
// number fall back to their canonical name.
func QuestionPrefix(header string) string {
	lead, _, found := strings.Cut(strings.TrimSpace(header), ".")
	lead = strings.TrimSpace(lead)
	if found && lead != "" && isDigits(lead) {
		return "q" + lead
	}
	return CanonicalName(header)
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// IndicatorName is the column name for one option of a question.
func IndicatorName(prefix, option string) string {
	return prefix + "_" + CanonicalName(option)
}

// Expansion is the one-hot form of a single multi-select column.
type Expansion struct {
	Header  string
	Prefix  string
	Columns []string   // indicator columns, sorted
	Values  [][]int64  // one row per respondent, aligned to Columns
	Answers []string   // canonical serialized answer per respondent
	Sources [][]string // raw option texts behind each column, aligned to Columns
}

// Expand one-hot encodes column col of raw.
//
// Indicator columns are discovered from the data: the union of normalized
// options observed across all respondents. A respondent without an answer gets
// an all-zero row. Values are always 0 or 1, never absent.
func Expand(raw RawTable, col int, prefix string, policy CollisionPolicy) (*Expansion, []string, error) {
	if col < 0 || col >= len(raw.Headers) {
		return nil, nil, fmt.Errorf("survey: expand: column index %d out of range", col)
	}
	header := raw.Headers[col]
	if prefix == "" {
		prefix = QuestionPrefix(header)
	}

	perRow := make([][]string, len(raw.Rows))
	answers := make([]string, len(raw.Rows))
	seen := newCollisions()
	for r := range raw.Rows {
		tokens := ParseTokens(raw.Cell(r, col))
		perRow[r] = tokens
		answers[r] = SerializeTokens(tokens)
		for _, tok := range tokens {
			seen.add(IndicatorName(prefix, tok), tok)
		}
	}

	var warnings []string
	if c := seen.conflicts(); c != nil {
		if policy != CollisionMerge {
			return nil, nil, &CollisionError{Scope: prefix, Collisions: c}
		}
		names := make([]string, 0, len(c))
		for n := range c {
			names = append(names, n)
		}
		sort.Strings(names)
		for _, n := range names {
			warnings = append(warnings, fmt.Sprintf("%s: merged options %q into %s", prefix, c[n], n))
		}
	}

	columns := append([]string(nil), seen.order...)
	sort.Strings(columns)
	index := make(map[string]int, len(columns))
	sources := make([][]string, len(columns))
	for i, c := range columns {
		index[c] = i
		sources[i] = seen.sources[c]
	}

	values := make([][]int64, len(raw.Rows))
	for r, tokens := range perRow {
		row := make([]int64, len(columns))
		for _, tok := range tokens {
			row[index[IndicatorName(prefix, tok)]] = 1
		}
		values[r] = row
	}

	return &Expansion{
		Header:  header,
		Prefix:  prefix,
		Columns: columns,
		Values:  values,
		Answers: answers,
		Sources: sources,
	}, warnings, nil
}

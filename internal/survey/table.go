// Package survey implements the survey-response normalization core: header
// canonicalization, multi-select expansion into indicator columns, record
// assembly into a principal table plus per-question side tables, and the
// null policy applied to every output table.
//
// The package is pure: it never touches files, networks or databases. Sources
// produce a RawTable, Transform produces a Result, and sinks persist it.
package survey

// RawTable is the untyped response set as downloaded from the form backend.
//
// Headers are the raw question texts. Each row holds one respondent's answers
// in submission order; a row shorter than Headers is padded with "" when read.
type RawTable struct {
	Headers []string
	Rows    [][]string
}

// Cell returns row r, column c, or "" when the row is short.
func (t RawTable) Cell(r, c int) string {
	if r < 0 || r >= len(t.Rows) {
		return ""
	}
	row := t.Rows[r]
	if c < 0 || c >= len(row) {
		return ""
	}
	return row[c]
}

// Table is one output dataset.
//
// Values are string, int64 or nil. nil is the absent-value marker and is the
// only representation of a missing value after the null policy ran.
type Table struct {
	Name    string
	Columns []string
	Rows    [][]any
}

// ColumnIndex returns the position of name in Columns, or -1.
func (t *Table) ColumnIndex(name string) int {
	for i, c := range t.Columns {
		if c == name {
			return i
		}
	}
	return -1
}

// Column returns all values of the named column, or nil if it does not exist.
func (t *Table) Column(name string) []any {
	ix := t.ColumnIndex(name)
	if ix < 0 {
		return nil
	}
	out := make([]any, len(t.Rows))
	for i, row := range t.Rows {
		out[i] = row[ix]
	}
	return out
}

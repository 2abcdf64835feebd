package survey

import (
	"fmt"
	"strings"
)

const (
	DefaultPrincipalTable = "respostas"
	DefaultIDColumn       = "respondent_id"
)

// Rename maps one canonical column name to its final name.
type Rename struct {
	From string
	To   string
}

// RenameMap is an ordered canonical -> final mapping. Names without an entry
// pass through unchanged.
type RenameMap []Rename

// Lookup returns the final name for canonical. The first matching entry wins.
func (m RenameMap) Lookup(canonical string) string {
	for _, r := range m {
		if r.From == canonical {
			return r.To
		}
	}
	return canonical
}

func (m RenameMap) index() map[string]string {
	ix := make(map[string]string, len(m))
	for _, r := range m {
		if _, ok := ix[r.From]; !ok {
			ix[r.From] = r.To
		}
	}
	return ix
}

// MultiSelectField designates a column whose answers are comma-separated options.
type MultiSelectField struct {
	// Column is the raw header or its canonical name.
	Column string
	// Prefix overrides the indicator prefix (default: QuestionPrefix of the header).
	Prefix string
	// Table overrides the side table name (default: <principal>_<prefix>).
	Table string
	// Required turns a missing column into a fatal *MissingColumnError.
	Required bool
	// KeepAnswer keeps the canonical serialized answer in the principal table.
	KeepAnswer bool
}

// Options configures one Transform call.
type Options struct {
	PrincipalTable  string
	IDColumn        string
	IDs             IDGenerator // nil means sequential
	DropColumns     []string
	RequiredColumns []string
	MultiSelect     []MultiSelectField
	Rename          RenameMap
	OnCollision     CollisionPolicy
	Nulls           NullPolicy
}

// Result holds the principal table and one indicator table per multi-select
// field found in the input.
type Result struct {
	Principal  *Table
	Indicators []*Table
	Warnings   []string
	// Skipped lists optional multi-select columns absent from the input.
	Skipped []string
}

// Tables returns the principal table followed by the indicator tables.
func (r *Result) Tables() []*Table {
	out := make([]*Table, 0, 1+len(r.Indicators))
	out = append(out, r.Principal)
	return append(out, r.Indicators...)
}

// Transform runs the whole normalization core on raw:
//
//  1. drop configured columns (timestamps, scores)
//  2. canonicalize headers, failing on collisions
//  3. expand every multi-select column into indicator columns
//  4. assemble the principal table and the side tables keyed by respondent id
//  5. apply the rename map, failing on collisions it introduces
//  6. apply the null policy to every table
//
// raw is never modified.
func Transform(raw RawTable, opt Options) (*Result, error) {
	principal := opt.PrincipalTable
	if principal == "" {
		principal = DefaultPrincipalTable
	}
	idCol := opt.IDColumn
	if idCol == "" {
		idCol = DefaultIDColumn
	}
	gen := opt.IDs
	if gen == nil {
		gen = &SequentialIDs{}
	}

	kept := keptColumns(raw.Headers, opt.DropColumns)
	keptHeaders := make([]string, len(kept))
	for i, c := range kept {
		keptHeaders[i] = raw.Headers[c]
	}
	canon, err := CanonicalHeaders(keptHeaders)
	if err != nil {
		return nil, err
	}

	for _, req := range opt.RequiredColumns {
		if findColumn(keptHeaders, canon, req) < 0 {
			return nil, &MissingColumnError{Column: req, Role: "required"}
		}
	}

	res := &Result{}

	// kept position -> multi-select field
	multi := make(map[int]MultiSelectField, len(opt.MultiSelect))
	var order []int
	for _, f := range opt.MultiSelect {
		k := findColumn(keptHeaders, canon, f.Column)
		if k < 0 {
			if f.Required {
				return nil, &MissingColumnError{Column: f.Column, Role: "multi_select"}
			}
			res.Skipped = append(res.Skipped, f.Column)
			res.Warnings = append(res.Warnings, fmt.Sprintf("multi-select column %q not in input; skipped", f.Column))
			continue
		}
		if _, dup := multi[k]; dup {
			return nil, fmt.Errorf("survey: column %q designated as multi-select more than once", keptHeaders[k])
		}
		multi[k] = f
		order = append(order, k)
	}

	ids, err := assignIDs(gen, len(raw.Rows))
	if err != nil {
		return nil, err
	}

	expansions := make(map[int]*Expansion, len(multi))
	for _, k := range order {
		f := multi[k]
		policy := opt.OnCollision
		if policy == "" {
			policy = CollisionFail
		}
		exp, warns, err := Expand(raw, kept[k], f.Prefix, policy)
		if err != nil {
			return nil, err
		}
		expansions[k] = exp
		res.Warnings = append(res.Warnings, warns...)
	}

	rename := opt.Rename.index()
	final := func(name string) string {
		if to, ok := rename[name]; ok {
			return to
		}
		return name
	}

	// Principal table.
	p := &Table{Name: principal, Columns: []string{idCol}}
	type source struct {
		raw    int        // raw column index, or -1
		answer *Expansion // serialized multi-select answer
	}
	srcs := []source{{raw: -1}}
	for k, c := range kept {
		if exp, ok := expansions[k]; ok {
			if multi[k].KeepAnswer {
				p.Columns = append(p.Columns, final(canon[k]))
				srcs = append(srcs, source{raw: -1, answer: exp})
			}
			continue
		}
		p.Columns = append(p.Columns, final(canon[k]))
		srcs = append(srcs, source{raw: c})
	}
	p.Rows = make([][]any, len(raw.Rows))
	for r := range raw.Rows {
		row := make([]any, len(srcs))
		row[0] = ids[r]
		for i := 1; i < len(srcs); i++ {
			s := srcs[i]
			if s.answer != nil {
				row[i] = s.answer.Answers[r]
			} else {
				row[i] = raw.Cell(r, s.raw)
			}
		}
		p.Rows[r] = row
	}
	res.Principal = p

	// One side table per expanded field, in configuration order.
	for _, k := range order {
		exp := expansions[k]
		name := multi[k].Table
		if name == "" {
			name = principal + "_" + exp.Prefix
		}
		t := &Table{Name: name, Columns: make([]string, 0, 1+len(exp.Columns))}
		t.Columns = append(t.Columns, idCol)
		for _, c := range exp.Columns {
			t.Columns = append(t.Columns, final(c))
		}
		t.Rows = make([][]any, len(raw.Rows))
		for r, vals := range exp.Values {
			row := make([]any, 1+len(vals))
			row[0] = ids[r]
			for i, v := range vals {
				row[1+i] = v
			}
			t.Rows[r] = row
		}
		res.Indicators = append(res.Indicators, t)
	}

	if err := checkOutputNames(res); err != nil {
		return nil, err
	}

	for _, t := range res.Tables() {
		opt.Nulls.Apply(t)
	}
	return res, nil
}

// keptColumns returns raw column indexes that survive drop, matching drop
// entries by raw header or canonical name.
func keptColumns(headers []string, drop []string) []int {
	dropSet := make(map[string]struct{}, 2*len(drop))
	for _, d := range drop {
		dropSet[strings.TrimSpace(d)] = struct{}{}
		dropSet[CanonicalName(d)] = struct{}{}
	}
	out := make([]int, 0, len(headers))
	for i, h := range headers {
		if _, ok := dropSet[strings.TrimSpace(h)]; ok {
			continue
		}
		if _, ok := dropSet[CanonicalName(h)]; ok {
			continue
		}
		out = append(out, i)
	}
	return out
}

// findColumn matches want against raw headers first, then canonical names.
func findColumn(headers, canon []string, want string) int {
	w := strings.TrimSpace(want)
	for i, h := range headers {
		if strings.TrimSpace(h) == w {
			return i
		}
	}
	cw := CanonicalName(want)
	for i, c := range canon {
		if c == cw {
			return i
		}
	}
	return -1
}

// checkOutputNames rejects duplicate column names within a table and
// duplicate table names; both can only come from renaming.
func checkOutputNames(res *Result) error {
	tables := newCollisions()
	for ti, t := range res.Tables() {
		tables.addEach(t.Name, fmt.Sprintf("table #%d", ti+1))

		cols := newCollisions()
		for i, c := range t.Columns {
			cols.addEach(c, fmt.Sprintf("column #%d", i+1))
		}
		if c := cols.conflicts(); c != nil {
			return &CollisionError{Scope: t.Name, Collisions: c}
		}
	}
	if c := tables.conflicts(); c != nil {
		return &CollisionError{Scope: "table", Collisions: c}
	}
	return nil
}

// Package probe inspects a sample of raw survey responses and drafts a
// pipeline config for it.
//
// The probe is responsible for:
//   - canonical column names, as the transform will produce them
//   - column kinds: integer, text, submission timestamp or multi-select
//   - a starter config that drops timestamps, expands multi-select
//     questions and suggests short final names
//
// All inference is best-effort: it never fails on odd data, and the draft
// is meant to be refined by hand.
package probe

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"surveyetl/internal/config"
	"surveyetl/internal/loader"
	"surveyetl/internal/storage"
	"surveyetl/internal/survey"
)

type Kind string

const (
	KindText        Kind = "text"
	KindInteger     Kind = "integer"
	KindTimestamp   Kind = "timestamp"
	KindMultiSelect Kind = "multi_select"
)

// Column describes one raw column of the sample.
type Column struct {
	Header    string
	Canonical string
	Kind      Kind
	// Layout is the time layout for KindTimestamp.
	Layout string
	// Filled counts non-missing answers.
	Filled   int
	Distinct int
	// Options are the distinct options for KindMultiSelect, sorted.
	Options []string
	// Prefix is the indicator prefix for KindMultiSelect.
	Prefix string
}

type Report struct {
	Rows    int
	Columns []Column
	// Collision is set when two headers share a canonical name; the
	// transform would reject the input until one is dropped.
	Collision error
}

// Form exports write timestamps in the locale of the spreadsheet.
var timestampLayouts = []string{
	"2006/01/02 15:04:05",
	"02/01/2006 15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02T15:04:05Z07:00",
	"02.01.2006 15:04:05",
	"1/2/2006 15:04:05",
}

// Inspect profiles every column of raw.
func Inspect(raw survey.RawTable) Report {
	rep := Report{Rows: len(raw.Rows), Columns: make([]Column, len(raw.Headers))}
	if _, err := survey.CanonicalHeaders(raw.Headers); err != nil {
		rep.Collision = err
	}

	nulls := survey.NewNullPolicy()
	for c, h := range raw.Headers {
		var values []string
		for r := range raw.Rows {
			v := raw.Cell(r, c)
			if !nulls.IsMissing(v) {
				values = append(values, v)
			}
		}
		rep.Columns[c] = inspectColumn(h, values)
	}
	return rep
}

func inspectColumn(header string, values []string) Column {
	col := Column{
		Header:    header,
		Canonical: survey.CanonicalName(header),
		Kind:      KindText,
		Filled:    len(values),
	}

	distinct := make(map[string]struct{}, len(values))
	for _, v := range values {
		distinct[strings.TrimSpace(v)] = struct{}{}
	}
	col.Distinct = len(distinct)

	if len(values) == 0 {
		return col
	}
	if lay := timestampLayout(values); lay != "" {
		col.Kind = KindTimestamp
		col.Layout = lay
		return col
	}
	if opts, ok := multiSelectOptions(values); ok {
		col.Kind = KindMultiSelect
		col.Options = opts
		col.Prefix = survey.QuestionPrefix(header)
		return col
	}
	if isIntegerColumn(values) {
		col.Kind = KindInteger
	}
	return col
}

// timestampLayout returns the first layout that parses every value.
func timestampLayout(values []string) string {
	for _, lay := range timestampLayouts {
		ok := true
		for _, v := range values {
			if _, err := time.Parse(lay, strings.TrimSpace(v)); err != nil {
				ok = false
				break
			}
		}
		if ok {
			return lay
		}
	}
	return ""
}

// multiSelectOptions reports a column as multi-select when at least one
// answer lists more than one option.
func multiSelectOptions(values []string) ([]string, bool) {
	set := map[string]struct{}{}
	multi := false
	for _, v := range values {
		toks := survey.ParseTokens(v)
		if len(toks) > 1 {
			multi = true
		}
		for _, t := range toks {
			set[t] = struct{}{}
		}
	}
	if !multi {
		return nil, false
	}
	out := make([]string, 0, len(set))
	for t := range set {
		out = append(out, t)
	}
	sort.Strings(out)
	return out, true
}

// isIntegerColumn applies the loader's inference so the probe and the
// database agree on types.
func isIntegerColumn(values []string) bool {
	t := &survey.Table{Columns: []string{"v"}, Rows: make([][]any, len(values))}
	for i, v := range values {
		t.Rows[i] = []any{strings.TrimSpace(v)}
	}
	return loader.InferColumns(t)[0].Type == storage.TypeInteger
}

// WriteText renders the report as an aligned table.
func (r Report) WriteText(w io.Writer) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "rows: %d\n", r.Rows)
	fmt.Fprintln(tw, "canonical\tkind\tfilled\tdistinct\tdetail")
	for _, c := range r.Columns {
		detail := ""
		switch c.Kind {
		case KindTimestamp:
			detail = "layout " + c.Layout
		case KindMultiSelect:
			detail = fmt.Sprintf("%s, %d options", c.Prefix, len(c.Options))
		}
		fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%s\n", c.Canonical, c.Kind, c.Filled, c.Distinct, detail)
	}
	if r.Collision != nil {
		fmt.Fprintf(tw, "warning: %v\n", r.Collision)
	}
	return tw.Flush()
}

type DraftOptions struct {
	Job            string
	Source         config.Source
	PrincipalTable string
	OutputDir      string
	Storage        config.Storage
}

// Draft builds a starter pipeline from rep: timestamp columns are dropped,
// multi-select columns get their own table and keep the serialized answer,
// and long question headers get a shorter final name.
func Draft(rep Report, opt DraftOptions) config.Pipeline {
	principal := opt.PrincipalTable
	if principal == "" {
		principal = survey.DefaultPrincipalTable
	}

	p := config.Pipeline{
		Job:     opt.Job,
		Source:  opt.Source,
		Output:  config.Output{Dir: opt.OutputDir},
		Storage: opt.Storage,
	}
	t := &p.Transform
	t.PrincipalTable = principal
	t.ID = config.IDSpec{Column: survey.DefaultIDColumn, Strategy: survey.IDSequential}
	t.OnCollision = string(survey.CollisionFail)

	used := map[string]bool{survey.DefaultIDColumn: true}
	for _, c := range rep.Columns {
		if c.Kind != KindTimestamp {
			used[c.Canonical] = true
		}
	}
	for _, c := range rep.Columns {
		switch c.Kind {
		case KindTimestamp:
			t.DropColumns = append(t.DropColumns, c.Header)
			continue
		case KindMultiSelect:
			t.MultiSelect = append(t.MultiSelect, config.MultiSelect{
				Column:     c.Header,
				Table:      principal + "_" + c.Prefix,
				KeepAnswer: true,
			})
		}
		short := ShortName(c.Canonical)
		if short == "" || short == c.Canonical || used[short] {
			continue
		}
		used[short] = true
		t.Rename = append(t.Rename, config.RenamePair{From: c.Canonical, To: short})
	}
	return p
}

// ShortName strips the question number and repeated or edge underscores
// from a canonical name: "3__qual_e_a_sua_idade_" becomes "qual_e_a_sua_idade".
func ShortName(canonical string) string {
	s := strings.TrimLeft(canonical, "0123456789_")
	parts := strings.FieldsFunc(s, func(r rune) bool { return r == '_' })
	return strings.Join(parts, "_")
}

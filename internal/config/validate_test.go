package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func validPipeline() Pipeline {
	return Pipeline{
		Job:    "j",
		Source: Source{Kind: "file", File: &FileSource{Path: "in.csv"}},
		Output: Output{Dir: "out"},
	}
}

func issuePaths(issues []Issue, sev Severity) []string {
	var out []string
	for _, i := range issues {
		if i.Severity == sev {
			out = append(out, i.Path)
		}
	}
	return out
}

func TestValidatePipeline_TableDriven(t *testing.T) {
	tests := []struct {
		name       string
		mutate     func(p *Pipeline)
		wantErrors []string
		wantWarns  []string
	}{
		{
			name:   "valid",
			mutate: func(p *Pipeline) {},
		},
		{
			name:       "missing_source_kind",
			mutate:     func(p *Pipeline) { p.Source = Source{} },
			wantErrors: []string{"source.kind"},
		},
		{
			name:       "file_without_path",
			mutate:     func(p *Pipeline) { p.Source.File = &FileSource{} },
			wantErrors: []string{"source.file.path"},
		},
		{
			name: "sheets_bad_format",
			mutate: func(p *Pipeline) {
				p.Source = Source{Kind: "sheets", Sheets: &SheetsSource{SheetID: "x", Format: "pdf"}}
			},
			wantErrors: []string{"source.sheets.format"},
		},
		{
			name:       "bad_id_strategy",
			mutate:     func(p *Pipeline) { p.Transform.ID.Strategy = "random" },
			wantErrors: []string{"transform.id.strategy"},
		},
		{
			name:      "uuid_warns",
			mutate:    func(p *Pipeline) { p.Transform.ID.Strategy = "uuid" },
			wantWarns: []string{"transform.id.strategy"},
		},
		{
			name: "duplicate_multi_select",
			mutate: func(p *Pipeline) {
				p.Transform.MultiSelect = []MultiSelect{{Column: "8. Como?"}, {Column: "8__como_"}}
			},
			wantErrors: []string{"transform.multi_select[1].column"},
		},
		{
			name: "rename_duplicate_and_noncanonical",
			mutate: func(p *Pipeline) {
				p.Transform.Rename = RenameMap{{"a", "x"}, {"a", "y"}, {"Bad Name", "z"}}
			},
			wantErrors: []string{`transform.rename["a"]`},
			wantWarns:  []string{`transform.rename["Bad Name"]`},
		},
		{
			name: "storage_errors",
			mutate: func(p *Pipeline) {
				p.Storage = Storage{Kind: "oracle", Mode: "merge", Conflict: "overwrite", BatchSize: -1}
			},
			wantErrors: []string{"storage.kind", "storage.dsn", "storage.mode", "storage.conflict", "storage.batch_size"},
		},
		{
			name:      "no_sinks",
			mutate:    func(p *Pipeline) { p.Output.Dir = "" },
			wantWarns: []string{"output"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := validPipeline()
			tt.mutate(&p)
			issues := ValidatePipeline(p)

			assert.Equal(t, tt.wantErrors, issuePaths(issues, SeverityError))
			assert.Equal(t, tt.wantWarns, issuePaths(issues, SeverityWarning))
			assert.Equal(t, len(tt.wantErrors) > 0, HasErrors(issues))
		})
	}
}

package config

import (
	"fmt"
	"strings"

	"surveyetl/internal/storage"
	"surveyetl/internal/survey"
)

type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// Issue is one validation finding, addressed by a JSON-path-like Path.
type Issue struct {
	Severity Severity
	Path     string
	Message  string
}

func (i Issue) String() string {
	return fmt.Sprintf("%s: %s: %s", i.Severity, i.Path, i.Message)
}

// HasErrors reports whether any issue is error-severity.
func HasErrors(issues []Issue) bool {
	for _, iss := range issues {
		if iss.Severity == SeverityError {
			return true
		}
	}
	return false
}

var storageKinds = map[string]bool{"postgres": true, "sqlite": true, "mssql": true}

// ValidatePipeline checks p for structural problems. It never touches the
// filesystem or network.
func ValidatePipeline(p Pipeline) []Issue {
	var issues []Issue
	errf := func(path, format string, a ...any) {
		issues = append(issues, Issue{SeverityError, path, fmt.Sprintf(format, a...)})
	}
	warnf := func(path, format string, a ...any) {
		issues = append(issues, Issue{SeverityWarning, path, fmt.Sprintf(format, a...)})
	}

	switch p.Source.Kind {
	case "file":
		f := p.Source.File
		if f == nil || strings.TrimSpace(f.Path) == "" {
			errf("source.file.path", "required when source.kind=file")
			break
		}
		switch strings.ToLower(f.Format) {
		case "", "csv", "xlsx":
		default:
			errf("source.file.format", "must be csv or xlsx, got %q", f.Format)
		}
		if f.Comma != "tab" && f.Comma != `\t` && len([]rune(f.Comma)) > 1 {
			errf("source.file.comma", "must be a single character, got %q", f.Comma)
		}
	case "sheets":
		s := p.Source.Sheets
		if s == nil || (s.SheetID == "" && s.URL == "") {
			errf("source.sheets.sheet_id", "sheet_id or url is required when source.kind=sheets")
			break
		}
		switch strings.ToLower(s.Format) {
		case "", "csv", "html":
		default:
			errf("source.sheets.format", "must be csv or html, got %q", s.Format)
		}
		if s.TimeoutSeconds < 0 {
			errf("source.sheets.timeout_seconds", "must not be negative")
		}
	case "":
		errf("source.kind", "required")
	default:
		errf("source.kind", "unsupported kind %q (want file or sheets)", p.Source.Kind)
	}

	t := p.Transform
	switch t.ID.Strategy {
	case "", survey.IDSequential:
	case survey.IDUUID:
		warnf("transform.id.strategy", "uuid ids make runs non-reproducible")
	default:
		errf("transform.id.strategy", "must be sequential or uuid, got %q", t.ID.Strategy)
	}

	switch survey.CollisionPolicy(t.OnCollision) {
	case "", survey.CollisionFail, survey.CollisionMerge:
	default:
		errf("transform.on_collision", "must be error or warn, got %q", t.OnCollision)
	}

	seenCols := map[string]int{}
	for i, m := range t.MultiSelect {
		path := fmt.Sprintf("transform.multi_select[%d]", i)
		if strings.TrimSpace(m.Column) == "" {
			errf(path+".column", "required")
			continue
		}
		key := survey.CanonicalName(m.Column)
		if j, dup := seenCols[key]; dup {
			errf(path+".column", "same column as transform.multi_select[%d]", j)
		}
		seenCols[key] = i
		if m.Prefix != "" && survey.CanonicalName(m.Prefix) != m.Prefix {
			warnf(path+".prefix", "%q is not a canonical name", m.Prefix)
		}
	}

	seenFrom := map[string]bool{}
	for _, r := range t.Rename {
		path := fmt.Sprintf("transform.rename[%q]", r.From)
		if seenFrom[r.From] {
			errf(path, "duplicate entry")
		}
		seenFrom[r.From] = true
		if strings.TrimSpace(r.To) == "" {
			errf(path, "target name is empty")
		}
		if survey.CanonicalName(r.From) != r.From {
			warnf(path, "source %q is not a canonical name and will never match", r.From)
		}
	}

	if p.Output.Dir == "" && p.Storage.Kind == "" {
		warnf("output", "neither output.dir nor storage.kind is set; run writes nothing")
	}

	if s := p.Storage; s.Kind != "" {
		if !storageKinds[s.Kind] {
			errf("storage.kind", "unsupported kind %q (want postgres, sqlite or mssql)", s.Kind)
		}
		if strings.TrimSpace(s.DSN) == "" {
			errf("storage.dsn", "required when storage.kind is set")
		}
		if _, err := storage.ParseLoadMode(s.Mode); err != nil {
			errf("storage.mode", "%v", err)
		}
		if _, err := storage.ParseConflictPolicy(s.Conflict); err != nil {
			errf("storage.conflict", "%v", err)
		}
		if s.BatchSize < 0 {
			errf("storage.batch_size", "must not be negative")
		}
	}

	return issues
}

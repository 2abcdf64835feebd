// Package source reads raw survey responses: CSV or XLSX files on disk and
// Google Sheets documents through their public export endpoints.
package source

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"surveyetl/internal/config"
	"surveyetl/internal/logging"
	"surveyetl/internal/survey"
)

// ErrEncoding matches every *EncodingError.
var ErrEncoding = errors.New("source: input is not valid in the declared encoding")

// EncodingError reports input that cannot be decoded. It is fatal for the run.
type EncodingError struct {
	// Line is the 1-based input line, or 0 when the encoding itself is unknown.
	Line     int
	Encoding string
	Err      error
}

func (e *EncodingError) Error() string {
	msg := fmt.Sprintf("source: cannot decode input as %s", e.Encoding)
	if e.Line > 0 {
		msg += fmt.Sprintf(" (line %d)", e.Line)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *EncodingError) Is(target error) bool { return target == ErrEncoding }

func (e *EncodingError) Unwrap() error { return e.Err }

// Source produces one snapshot of raw responses per call.
type Source interface {
	Read(ctx context.Context) (survey.RawTable, error)
}

// New builds the Source described by cfg.
func New(cfg config.Source, log *zap.Logger) (Source, error) {
	log = logging.OrNop(log)

	switch cfg.Kind {
	case "", "file":
		if cfg.File == nil || cfg.File.Path == "" {
			return nil, fmt.Errorf("source: file.path is required")
		}
		comma, err := ParseComma(cfg.File.Comma)
		if err != nil {
			return nil, err
		}
		return &File{
			Path:   cfg.File.Path,
			Format: cfg.File.Format,
			Sheet:  cfg.File.Sheet,
			CSV:    CSVOptions{Encoding: cfg.File.Encoding, Comma: comma},
			Log:    log,
		}, nil

	case "sheets":
		s := cfg.Sheets
		if s == nil || (s.SheetID == "" && s.URL == "") {
			return nil, fmt.Errorf("source: sheets.sheet_id or sheets.url is required")
		}
		return &Sheets{
			SheetID: s.SheetID,
			GID:     s.GID,
			Format:  s.Format,
			URL:     s.URL,
			Timeout: time.Duration(s.TimeoutSeconds) * time.Second,
			Log:     log,
		}, nil

	default:
		return nil, fmt.Errorf("source: unsupported kind %q", cfg.Kind)
	}
}

// ParseComma turns a configured delimiter into a rune. "" is ',', and "tab"
// or a literal "\t" is a tab.
func ParseComma(s string) (rune, error) {
	switch s {
	case "":
		return ',', nil
	case "tab", `\t`:
		return '\t', nil
	}
	r, size := utf8.DecodeRuneInString(s)
	if size != len(s) || r == '"' || r == '\r' || r == '\n' || r == utf8.RuneError {
		return 0, fmt.Errorf("source: invalid comma %q", s)
	}
	return r, nil
}

// formatFor picks "xlsx" or "csv", inferring from the extension when format is empty.
func formatFor(format, path string) string {
	if format != "" {
		return strings.ToLower(format)
	}
	if strings.EqualFold(filepath.Ext(path), ".xlsx") {
		return "xlsx"
	}
	return "csv"
}

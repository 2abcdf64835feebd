package source

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"

	"surveyetl/internal/survey"
)

type CSVOptions struct {
	// Encoding is a WHATWG label such as "utf-8" (default), "windows-1252"
	// or "iso-8859-1".
	Encoding string
	// Comma defaults to ','.
	Comma rune
}

// ReadCSV reads a header row followed by response rows.
//
// A leading byte order mark selects UTF-8 or UTF-16 regardless of Encoding.
// Quoted fields may span lines (multi-select answers often do). Rows may be
// ragged. Any byte sequence that does not decode, surfacing as U+FFFD after
// decoding, is an *EncodingError.
func ReadCSV(r io.Reader, opt CSVOptions) (survey.RawTable, error) {
	name := opt.Encoding
	if name == "" {
		name = "utf-8"
	}
	enc, err := htmlindex.Get(name)
	if err != nil {
		return survey.RawTable{}, &EncodingError{Encoding: name, Err: err}
	}
	if canonical, err := htmlindex.Name(enc); err == nil {
		name = canonical
	}

	cr := csv.NewReader(transform.NewReader(r, unicode.BOMOverride(enc.NewDecoder())))
	cr.Comma = ','
	if opt.Comma != 0 {
		cr.Comma = opt.Comma
	}
	cr.LazyQuotes = true
	cr.FieldsPerRecord = -1

	var t survey.RawTable
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return survey.RawTable{}, fmt.Errorf("read csv: %w", err)
		}
		for i, f := range rec {
			if !utf8.ValidString(f) || strings.ContainsRune(f, utf8.RuneError) {
				line, _ := cr.FieldPos(i)
				return survey.RawTable{}, &EncodingError{Line: line, Encoding: name}
			}
		}

		if t.Headers == nil {
			t.Headers = rec
			continue
		}
		t.Rows = append(t.Rows, rec)
	}

	if t.Headers == nil {
		return survey.RawTable{}, fmt.Errorf("read csv: no header row")
	}
	return t, nil
}

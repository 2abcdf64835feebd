package csvfile

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"surveyetl/internal/source"
	"surveyetl/internal/survey"
)

// ReadDir reads every *.csv file in dir, sorted by name, as a table named
// after the file. Headers are canonicalized so hand-edited files load under
// the same column names the transform produces. Empty fields become nil.
func ReadDir(dir string) ([]*survey.Table, error) {
	paths, err := filepath.Glob(filepath.Join(dir, "*.csv"))
	if err != nil {
		return nil, err
	}
	if len(paths) == 0 {
		return nil, fmt.Errorf("csvfile: no .csv files in %s", dir)
	}
	sort.Strings(paths)

	tables := make([]*survey.Table, 0, len(paths))
	for _, p := range paths {
		t, err := ReadTable(p)
		if err != nil {
			return nil, err
		}
		tables = append(tables, t)
	}
	return tables, nil
}

// ReadTable reads one table file.
func ReadTable(path string) (*survey.Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("csvfile: %w", err)
	}
	defer f.Close()

	raw, err := source.ReadCSV(f, source.CSVOptions{})
	if err != nil {
		return nil, fmt.Errorf("csvfile: %s: %w", path, err)
	}
	cols, err := survey.CanonicalHeaders(raw.Headers)
	if err != nil {
		return nil, fmt.Errorf("csvfile: %s: %w", path, err)
	}

	t := &survey.Table{
		Name:    strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)),
		Columns: cols,
		Rows:    make([][]any, len(raw.Rows)),
	}
	for r := range raw.Rows {
		row := make([]any, len(cols))
		for c := range cols {
			if v := raw.Cell(r, c); v != "" {
				row[c] = v
			}
		}
		t.Rows[r] = row
	}
	return t, nil
}

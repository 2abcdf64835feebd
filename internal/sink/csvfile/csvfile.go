// Package csvfile persists survey tables as a directory of CSV files, one
// file per table, and reads such a directory back for loading.
//
// Files are UTF-8 with a leading byte order mark so spreadsheet tools pick
// the right encoding for accented answers. A nil value is an empty field.
package csvfile

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"

	"surveyetl/internal/logging"
	"surveyetl/internal/survey"
)

const maxParallelWrites = 4

// Writer writes tables into Dir as <table>.csv.
type Writer struct {
	Dir string
	Log *zap.Logger
}

// WriteTables writes every table or none of them: each file goes to a
// temporary name first and all are renamed into place only after every
// write succeeded. It returns the final paths in table order.
func (w *Writer) WriteTables(tables []*survey.Table) ([]string, error) {
	if err := os.MkdirAll(w.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("csvfile: create %s: %w", w.Dir, err)
	}

	temps := make([]string, len(tables))
	cleanup := func() {
		for _, p := range temps {
			if p != "" {
				_ = os.Remove(p)
			}
		}
	}

	var g errgroup.Group
	g.SetLimit(maxParallelWrites)
	for i, t := range tables {
		g.Go(func() error {
			tmp, err := writeTemp(w.Dir, t.Name, func(cw *csv.Writer) error {
				return writeTable(cw, t)
			})
			if err != nil {
				return fmt.Errorf("csvfile: write %s: %w", t.Name, err)
			}
			temps[i] = tmp
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		cleanup()
		return nil, err
	}

	paths := make([]string, len(tables))
	for i, t := range tables {
		paths[i] = filepath.Join(w.Dir, t.Name+".csv")
		if err := os.Rename(temps[i], paths[i]); err != nil {
			cleanup()
			return nil, fmt.Errorf("csvfile: rename %s: %w", paths[i], err)
		}
	}

	log := logging.OrNop(w.Log)
	for i, t := range tables {
		log.Info("wrote table",
			zap.String("table", t.Name),
			zap.String("path", paths[i]),
			zap.Int("rows", len(t.Rows)),
			zap.Int("columns", len(t.Columns)))
	}
	return paths, nil
}

// WriteRaw writes raw responses, header row first, to path.
func WriteRaw(path string, raw survey.RawTable) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("csvfile: create %s: %w", dir, err)
	}

	tmp, err := writeTemp(dir, filepath.Base(path), func(cw *csv.Writer) error {
		if err := cw.Write(raw.Headers); err != nil {
			return err
		}
		return cw.WriteAll(raw.Rows)
	})
	if err != nil {
		return fmt.Errorf("csvfile: write %s: %w", path, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("csvfile: rename %s: %w", path, err)
	}
	return nil
}

// writeTemp creates a hidden temporary file in dir, writes a BOM-prefixed
// CSV through fill and returns its name. The file is removed on error.
func writeTemp(dir, name string, fill func(cw *csv.Writer) error) (string, error) {
	f, err := os.CreateTemp(dir, "."+name+"-*.tmp")
	if err != nil {
		return "", err
	}
	tmpName := f.Name()

	werr := encode(f, fill)
	cerr := f.Close()
	if werr == nil {
		werr = cerr
	}
	if werr != nil {
		_ = os.Remove(tmpName)
		return "", werr
	}
	return tmpName, nil
}

func encode(dst io.Writer, fill func(cw *csv.Writer) error) error {
	bw := transform.NewWriter(dst, unicode.UTF8BOM.NewEncoder())
	cw := csv.NewWriter(bw)
	if err := fill(cw); err != nil {
		return err
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return err
	}
	return bw.Close()
}

func writeTable(cw *csv.Writer, t *survey.Table) error {
	if err := cw.Write(t.Columns); err != nil {
		return err
	}
	rec := make([]string, len(t.Columns))
	for _, row := range t.Rows {
		for i := range rec {
			rec[i] = ""
			if i < len(row) {
				rec[i] = formatValue(row[i])
			}
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	return nil
}

func formatValue(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case int64:
		return strconv.FormatInt(x, 10)
	case int:
		return strconv.Itoa(x)
	case fmt.Stringer:
		return x.String()
	default:
		return fmt.Sprint(x)
	}
}

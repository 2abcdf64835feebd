package source

import (
	"context"
	"fmt"
	"os"

	"go.uber.org/zap"

	"surveyetl/internal/logging"
	"surveyetl/internal/survey"
)

// File reads responses from a local CSV or XLSX export.
type File struct {
	Path string
	// Format is "csv" or "xlsx"; empty infers from the extension.
	Format string
	// Sheet selects the XLSX worksheet.
	Sheet string
	CSV   CSVOptions
	Log   *zap.Logger
}

func (f *File) Read(ctx context.Context) (survey.RawTable, error) {
	if err := ctx.Err(); err != nil {
		return survey.RawTable{}, err
	}

	fh, err := os.Open(f.Path)
	if err != nil {
		return survey.RawTable{}, fmt.Errorf("open responses: %w", err)
	}
	defer fh.Close()

	var t survey.RawTable
	format := formatFor(f.Format, f.Path)
	switch format {
	case "csv":
		t, err = ReadCSV(fh, f.CSV)
	case "xlsx":
		t, err = ReadXLSX(fh, f.Sheet)
	default:
		return survey.RawTable{}, fmt.Errorf("unsupported file format %q", format)
	}
	if err != nil {
		return survey.RawTable{}, fmt.Errorf("%s: %w", f.Path, err)
	}

	logging.OrNop(f.Log).Debug("read responses",
		zap.String("path", f.Path),
		zap.String("format", format),
		zap.Int("columns", len(t.Headers)),
		zap.Int("rows", len(t.Rows)))
	return t, nil
}

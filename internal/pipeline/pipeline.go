// Package pipeline wires a survey run together: source, transform, CSV sink
// and database loader. Each operation opens and releases its own resources.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"surveyetl/internal/config"
	"surveyetl/internal/loader"
	"surveyetl/internal/logging"
	"surveyetl/internal/metrics"
	"surveyetl/internal/sink/csvfile"
	"surveyetl/internal/source"
	"surveyetl/internal/storage"
	"surveyetl/internal/survey"
)

// Runner executes the operations of one pipeline file.
type Runner struct {
	Config config.Pipeline
	Log    *zap.Logger

	// Source overrides the source built from Config.Source.
	Source source.Source
}

// Summary describes what a run produced.
type Summary struct {
	RawRows  int
	Tables   []TableSummary
	Files    []string
	Reports  []loader.Report
	Warnings []string
	Skipped  []string
}

type TableSummary struct {
	Name    string
	Columns int
	Rows    int
}

func (r *Runner) log() *zap.Logger {
	return logging.OrNop(r.Log)
}

// step times fn and records it under name.
func (r *Runner) step(name string, fn func() error) error {
	start := time.Now()
	err := fn()
	status := "ok"
	if err != nil {
		status = "error"
	}
	metrics.RecordStep(name, status, time.Since(start))
	r.log().Debug("step finished",
		zap.String("step", name),
		zap.String("status", status),
		zap.Duration("took", time.Since(start)))
	return err
}

func (r *Runner) openSource() (source.Source, error) {
	if r.Source != nil {
		return r.Source, nil
	}
	return source.New(r.Config.Source, r.log())
}

// Download reads the configured source and writes it as raw CSV to
// download.path.
func (r *Runner) Download(ctx context.Context) (survey.RawTable, error) {
	path := r.Config.Download.Path
	if path == "" {
		return survey.RawTable{}, fmt.Errorf("download: download.path is not set")
	}

	var raw survey.RawTable
	err := r.step("download", func() error {
		var err error
		raw, err = r.fetch(ctx)
		if err != nil {
			return err
		}
		return csvfile.WriteRaw(path, raw)
	})
	if err != nil {
		return survey.RawTable{}, fmt.Errorf("download: %w", err)
	}

	r.log().Info("downloaded responses", zap.String("path", path), zap.Int("rows", len(raw.Rows)))
	return raw, nil
}

func (r *Runner) fetch(ctx context.Context) (survey.RawTable, error) {
	src, err := r.openSource()
	if err != nil {
		return survey.RawTable{}, err
	}
	raw, err := src.Read(ctx)
	if err != nil {
		return survey.RawTable{}, err
	}
	metrics.RecordRecords("raw", len(raw.Rows))
	return raw, nil
}

// readRaw prefers an existing download.path over the source, so transform
// works on exactly what download fetched. A file source that already points
// at download.path is read through the source to keep its format, encoding
// and delimiter.
func (r *Runner) readRaw(ctx context.Context) (survey.RawTable, error) {
	path := r.Config.Download.Path
	if r.Source == nil && path != "" && !r.sourceIsFile(path) {
		if _, err := os.Stat(path); err == nil {
			f := &source.File{Path: path, Format: "csv", Log: r.log()}
			raw, err := f.Read(ctx)
			if err != nil {
				return survey.RawTable{}, err
			}
			metrics.RecordRecords("raw", len(raw.Rows))
			return raw, nil
		}
	}
	return r.fetch(ctx)
}

func (r *Runner) sourceIsFile(path string) bool {
	f := r.Config.Source.File
	if r.Config.Source.Kind != "file" || f == nil || f.Path == "" {
		return false
	}
	return filepath.Clean(f.Path) == filepath.Clean(path)
}

// Transform normalizes raw responses into the output tables.
func (r *Runner) Transform(raw survey.RawTable) (*survey.Result, error) {
	opt, err := r.Config.Transform.Options()
	if err != nil {
		return nil, fmt.Errorf("transform: %w", err)
	}

	var res *survey.Result
	err = r.step("transform", func() error {
		var err error
		res, err = survey.Transform(raw, opt)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("transform: %w", err)
	}

	log := r.log()
	for _, w := range res.Warnings {
		log.Warn("transform warning", zap.String("detail", w))
	}
	for _, t := range res.Tables() {
		metrics.RecordRecords("output", len(t.Rows))
		log.Info("assembled table",
			zap.String("table", t.Name),
			zap.Int("columns", len(t.Columns)),
			zap.Int("rows", len(t.Rows)))
	}
	return res, nil
}

// TransformToDir reads raw responses, transforms them and writes the tables
// into output.dir (or dir when set).
func (r *Runner) TransformToDir(ctx context.Context, dir string) (*Summary, error) {
	if dir == "" {
		dir = r.Config.Output.Dir
	}
	if dir == "" {
		return nil, fmt.Errorf("transform: output.dir is not set")
	}

	raw, err := r.readRaw(ctx)
	if err != nil {
		return nil, fmt.Errorf("transform: %w", err)
	}
	res, err := r.Transform(raw)
	if err != nil {
		return nil, err
	}

	sum := newSummary(raw, res)
	if sum.Files, err = r.writeTables(dir, res.Tables()); err != nil {
		return nil, err
	}
	return sum, nil
}

func (r *Runner) writeTables(dir string, tables []*survey.Table) ([]string, error) {
	var files []string
	err := r.step("write", func() error {
		var err error
		files, err = (&csvfile.Writer{Dir: dir, Log: r.log()}).WriteTables(tables)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("write: %w", err)
	}
	return files, nil
}

// Load imports every CSV file in dir (output.dir when empty) into the
// configured database.
func (r *Runner) Load(ctx context.Context, dir string) ([]loader.Report, error) {
	if dir == "" {
		dir = r.Config.Output.Dir
	}
	if dir == "" {
		return nil, fmt.Errorf("load: no directory given and output.dir is not set")
	}

	tables, err := csvfile.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("load: %w", err)
	}
	return r.loadTables(ctx, tables)
}

func (r *Runner) loadTables(ctx context.Context, tables []*survey.Table) ([]loader.Report, error) {
	st := r.Config.Storage
	if st.Kind == "" {
		return nil, fmt.Errorf("load: storage.kind is not set")
	}
	opt, err := r.loaderOptions()
	if err != nil {
		return nil, fmt.Errorf("load: %w", err)
	}

	var reports []loader.Report
	err = r.step("load", func() error {
		var err error
		reports, err = loader.Open(ctx, storage.Config{Kind: st.Kind, DSN: st.ExpandedDSN()}, opt, tables, r.log())
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("load: %w", err)
	}
	return reports, nil
}

func (r *Runner) loaderOptions() (loader.Options, error) {
	st := r.Config.Storage
	mode, err := storage.ParseLoadMode(st.Mode)
	if err != nil {
		return loader.Options{}, err
	}
	conflict, err := storage.ParseConflictPolicy(st.Conflict)
	if err != nil {
		return loader.Options{}, err
	}
	key := r.Config.Transform.ID.Column
	if key == "" {
		key = survey.DefaultIDColumn
	}
	return loader.Options{Mode: mode, Conflict: conflict, BatchSize: st.BatchSize, Key: key}, nil
}

// Run chains source, transform, CSV sink (when output.dir is set) and
// database load (when storage.kind is set) in memory. download.path, when
// set, receives a copy of the raw responses.
func (r *Runner) Run(ctx context.Context) (*Summary, error) {
	if r.Config.Output.Dir == "" && r.Config.Storage.Kind == "" {
		return nil, errors.New("run: neither output.dir nor storage.kind is set")
	}

	var (
		raw survey.RawTable
		err error
	)
	if r.Config.Download.Path != "" {
		raw, err = r.Download(ctx)
	} else {
		raw, err = r.fetch(ctx)
	}
	if err != nil {
		return nil, err
	}

	res, err := r.Transform(raw)
	if err != nil {
		return nil, err
	}
	sum := newSummary(raw, res)

	if dir := r.Config.Output.Dir; dir != "" {
		if sum.Files, err = r.writeTables(dir, res.Tables()); err != nil {
			return nil, err
		}
	}
	if r.Config.Storage.Kind != "" {
		if sum.Reports, err = r.loadTables(ctx, res.Tables()); err != nil {
			return nil, err
		}
	}
	return sum, nil
}

func newSummary(raw survey.RawTable, res *survey.Result) *Summary {
	sum := &Summary{RawRows: len(raw.Rows), Warnings: res.Warnings, Skipped: res.Skipped}
	for _, t := range res.Tables() {
		sum.Tables = append(sum.Tables, TableSummary{Name: t.Name, Columns: len(t.Columns), Rows: len(t.Rows)})
	}
	return sum
}

// Package loader persists survey tables into a relational database through a
// storage.Repository: one destination table per output table, columns
// reconciled per load mode, rows inserted in batches under a single
// transaction keyed on the respondent id.
package loader

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"surveyetl/internal/logging"
	"surveyetl/internal/metrics"
	"surveyetl/internal/storage"
	"surveyetl/internal/survey"
)

// DefaultBatchSize is the number of rows handed to one InsertRows call.
// Backends split further to respect their bind parameter limits.
const DefaultBatchSize = 1000

// ErrSink matches every *SinkError.
var ErrSink = errors.New("loader: destination rejected the write")

// SinkError reports a database failure. The whole load was rolled back.
type SinkError struct {
	Table string
	// Op is the failed step: open, begin, drop, create, columns, alter, insert
	// or commit.
	Op  string
	Err error
}

func (e *SinkError) Error() string {
	if e.Table == "" {
		return fmt.Sprintf("loader: %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("loader: %s %s: %v", e.Op, e.Table, e.Err)
}

func (e *SinkError) Is(target error) bool { return target == ErrSink }

func (e *SinkError) Unwrap() error { return e.Err }

type Options struct {
	Mode     storage.LoadMode
	Conflict storage.ConflictPolicy
	// BatchSize defaults to DefaultBatchSize.
	BatchSize int
	// Key is the respondent id column. Tables without it load without a
	// primary key and without conflict handling.
	Key string
}

// Report is the outcome for one table.
//
// With ConflictIgnore, Inserted counts new rows and Skipped counts rows whose
// key already existed. With ConflictUpsert, Inserted counts rows inserted or
// updated.
type Report struct {
	Table    string
	Rows     int
	Inserted int64
	Skipped  int64
}

type Loader struct {
	Repo storage.Repository
	Opt  Options
	Log  *zap.Logger
}

// Open opens the repository for cfg, loads tables and closes it again.
func Open(ctx context.Context, cfg storage.Config, opt Options, tables []*survey.Table, log *zap.Logger) ([]Report, error) {
	repo, err := storage.New(ctx, cfg)
	if err != nil {
		return nil, &SinkError{Op: "open", Err: err}
	}
	defer repo.Close()

	l := &Loader{Repo: repo, Opt: opt, Log: log}
	return l.Load(ctx, tables)
}

// Load writes all tables in one transaction. On any error nothing is
// committed and previously persisted state is left untouched.
func (l *Loader) Load(ctx context.Context, tables []*survey.Table) ([]Report, error) {
	log := logging.OrNop(l.Log)

	tx, err := l.Repo.Begin(ctx)
	if err != nil {
		return nil, &SinkError{Op: "begin", Err: err}
	}
	committed := false
	defer func() {
		if committed {
			return
		}
		if err := tx.Rollback(ctx); err != nil {
			log.Debug("rollback", zap.Error(err))
		}
	}()

	reports := make([]Report, 0, len(tables))
	for _, t := range tables {
		rep, err := l.loadTable(ctx, tx, t)
		if err != nil {
			return nil, err
		}
		reports = append(reports, rep)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, &SinkError{Op: "commit", Err: err}
	}
	committed = true

	for _, r := range reports {
		log.Info("loaded table",
			zap.String("table", r.Table),
			zap.Int("rows", r.Rows),
			zap.Int64("inserted", r.Inserted),
			zap.Int64("skipped", r.Skipped))
		metrics.RecordRecords("inserted", int(r.Inserted))
		metrics.RecordRecords("skipped", int(r.Skipped))
	}
	return reports, nil
}

func (l *Loader) loadTable(ctx context.Context, tx storage.Tx, t *survey.Table) (Report, error) {
	log := logging.OrNop(l.Log)
	rep := Report{Table: t.Name, Rows: len(t.Rows)}

	cols := InferColumns(t)
	spec := storage.TableSpec{Name: t.Name, Columns: cols}
	if l.Opt.Key != "" && t.ColumnIndex(l.Opt.Key) >= 0 {
		spec.Key = l.Opt.Key
	} else if l.Opt.Key != "" {
		log.Warn("table has no respondent id column; loading without key",
			zap.String("table", t.Name), zap.String("key", l.Opt.Key))
	}

	switch l.Opt.Mode {
	case storage.LoadAppend:
		existing, err := tx.TableColumns(ctx, t.Name)
		if err != nil {
			return rep, &SinkError{Table: t.Name, Op: "columns", Err: err}
		}
		if existing == nil {
			if err := tx.CreateTable(ctx, spec); err != nil {
				return rep, &SinkError{Table: t.Name, Op: "create", Err: err}
			}
			break
		}
		if missing := missingColumns(cols, existing); len(missing) > 0 {
			if err := tx.AddColumns(ctx, t.Name, missing); err != nil {
				return rep, &SinkError{Table: t.Name, Op: "alter", Err: err}
			}
			log.Info("added columns", zap.String("table", t.Name), zap.Int("count", len(missing)))
		}

	default:
		if err := tx.DropTable(ctx, t.Name); err != nil {
			return rep, &SinkError{Table: t.Name, Op: "drop", Err: err}
		}
		if err := tx.CreateTable(ctx, spec); err != nil {
			return rep, &SinkError{Table: t.Name, Op: "create", Err: err}
		}
	}

	batch := l.Opt.BatchSize
	if batch <= 0 {
		batch = DefaultBatchSize
	}
	for _, part := range storage.Chunk(ConvertRows(t, cols), batch) {
		n, err := tx.InsertRows(ctx, t.Name, t.Columns, part, spec.Key, l.Opt.Conflict)
		if err != nil {
			return rep, &SinkError{Table: t.Name, Op: "insert", Err: err}
		}
		rep.Inserted += n
		metrics.RecordBatch(t.Name)
	}
	rep.Skipped = max(0, int64(rep.Rows)-rep.Inserted)
	return rep, nil
}

func missingColumns(cols []storage.ColumnSpec, existing []string) []storage.ColumnSpec {
	have := make(map[string]struct{}, len(existing))
	for _, c := range existing {
		have[c] = struct{}{}
	}
	var out []storage.ColumnSpec
	for _, c := range cols {
		if _, ok := have[c.Name]; !ok {
			out = append(out, c)
		}
	}
	return out
}

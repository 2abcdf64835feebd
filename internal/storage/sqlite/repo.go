package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "modernc.org/sqlite"

	"surveyetl/internal/storage"
)

// maxParams is SQLITE_MAX_VARIABLE_NUMBER for SQLite >= 3.32.
const maxParams = 32766

// Repo implements storage.Repository for SQLite.
//
// Key design points vs Postgres:
//   - SQLite has no IF NOT EXISTS for ADD COLUMN; the loader only asks for
//     columns that TableColumns did not report.
//   - "INSERT OR IGNORE" gives duplicate-ignoring inserts against the
//     primary key; upserts use ON CONFLICT (...) DO UPDATE.
//   - INTEGER PRIMARY KEY aliases the rowid, which is what sequential
//     respondent ids want anyway.
type Repo struct {
	db *sql.DB
}

func init() {
	storage.Register("sqlite", New)
}

func New(ctx context.Context, cfg storage.Config) (storage.Repository, error) {
	db, err := sql.Open("sqlite", cfg.DSN)
	if err != nil {
		return nil, err
	}
	// One writer; avoids SQLITE_BUSY between pooled connections.
	db.SetMaxOpenConns(1)
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Repo{db: db}, nil
}

func (r *Repo) Close() { _ = r.db.Close() }

func (r *Repo) Begin(ctx context.Context) (storage.Tx, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	return &Tx{tx: tx}, nil
}

type Tx struct {
	tx *sql.Tx
}

func (t *Tx) TableColumns(ctx context.Context, table string) ([]string, error) {
	rows, err := t.tx.QueryContext(ctx, `SELECT name FROM pragma_table_info(?) ORDER BY cid`, table)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var cols []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		cols = append(cols, name)
	}
	return cols, rows.Err()
}

func (t *Tx) DropTable(ctx context.Context, table string) error {
	_, err := t.tx.ExecContext(ctx, "DROP TABLE IF EXISTS "+sqlIdent(table))
	return err
}

func (t *Tx) CreateTable(ctx context.Context, spec storage.TableSpec) error {
	q, err := buildCreateTableSQL(spec)
	if err != nil {
		return err
	}
	if _, err := t.tx.ExecContext(ctx, q); err != nil {
		return fmt.Errorf("create table %s: %w", spec.Name, err)
	}
	return nil
}

func (t *Tx) AddColumns(ctx context.Context, table string, cols []storage.ColumnSpec) error {
	for _, c := range cols {
		q := fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s", sqlIdent(table), sqlIdent(c.Name), sqliteType(c.Type))
		if _, err := t.tx.ExecContext(ctx, q); err != nil {
			return fmt.Errorf("add column %s.%s: %w", table, c.Name, err)
		}
	}
	return nil
}

func (t *Tx) InsertRows(
	ctx context.Context,
	table string,
	columns []string,
	rows [][]any,
	key string,
	policy storage.ConflictPolicy,
) (int64, error) {
	var total int64
	for _, part := range storage.Chunk(rows, storage.RowsPerStatement(maxParams, len(columns))) {
		q, args := buildInsertSQL(table, columns, part, key, policy)
		res, err := t.tx.ExecContext(ctx, q, args...)
		if err != nil {
			return total, err
		}
		n, _ := res.RowsAffected()
		total += n
	}
	return total, nil
}

func (t *Tx) Commit(ctx context.Context) error { return t.tx.Commit() }

func (t *Tx) Rollback(ctx context.Context) error { return t.tx.Rollback() }

func sqlIdent(id string) string {
	// SQLite supports "quoted identifiers"
	return `"` + strings.ReplaceAll(id, `"`, `""`) + `"`
}

func sqliteType(t storage.ColumnType) string {
	if t == storage.TypeInteger {
		return "INTEGER"
	}
	return "TEXT"
}

func buildCreateTableSQL(t storage.TableSpec) (string, error) {
	if strings.TrimSpace(t.Name) == "" {
		return "", fmt.Errorf("table name is empty")
	}
	if len(t.Columns) == 0 {
		return "", fmt.Errorf("table %s has no columns", t.Name)
	}

	parts := make([]string, 0, len(t.Columns))
	for _, c := range t.Columns {
		col := fmt.Sprintf("%s %s", sqlIdent(c.Name), sqliteType(c.Type))
		if c.Name == t.Key {
			col += " NOT NULL PRIMARY KEY"
		}
		parts = append(parts, col)
	}
	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s)", sqlIdent(t.Name), strings.Join(parts, ", ")), nil
}

// buildInsertSQL performs a multi-row insert.
//
// With a key column, ignore becomes "INSERT OR IGNORE" and upsert becomes
// "ON CONFLICT (key) DO UPDATE SET c = excluded.c".
func buildInsertSQL(table string, columns []string, rows [][]any, key string, policy storage.ConflictPolicy) (string, []any) {
	var set []string
	if key != "" && policy == storage.ConflictUpsert {
		for _, c := range columns {
			if c != key {
				set = append(set, sqlIdent(c)+" = excluded."+sqlIdent(c))
			}
		}
	}

	insertPrefix := "INSERT INTO "
	if key != "" && len(set) == 0 {
		insertPrefix = "INSERT OR IGNORE INTO "
	}

	colList := make([]string, 0, len(columns))
	for _, c := range columns {
		colList = append(colList, sqlIdent(c))
	}
	placeholders := "(" + strings.TrimRight(strings.Repeat("?,", len(columns)), ",") + ")"

	var b strings.Builder
	b.WriteString(insertPrefix)
	b.WriteString(sqlIdent(table))
	b.WriteString(" (")
	b.WriteString(strings.Join(colList, ", "))
	b.WriteString(") VALUES ")

	args := make([]any, 0, len(rows)*len(columns))
	for i, row := range rows {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(placeholders)
		args = append(args, row...)
	}

	if len(set) > 0 {
		b.WriteString(" ON CONFLICT (")
		b.WriteString(sqlIdent(key))
		b.WriteString(") DO UPDATE SET ")
		b.WriteString(strings.Join(set, ", "))
	}

	return b.String(), args
}

var (
	_ storage.Repository = (*Repo)(nil)
	_ storage.Tx         = (*Tx)(nil)
)

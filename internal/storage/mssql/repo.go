package mssql

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/microsoft/go-mssqldb"

	"surveyetl/internal/storage"
)

// SQL Server rejects statements with more than 2100 parameters.
const maxParams = 2000

// Repo implements storage.Repository for Microsoft SQL Server.
//
// SQL Server has neither ON CONFLICT nor INSERT OR IGNORE:
//   - ignore inserts use INSERT ... SELECT FROM (VALUES ...) WHERE NOT EXISTS
//   - upserts use MERGE keyed on the respondent id column
//
// Neither statement collapses duplicate keys inside its own VALUES source, so
// each batch is deduplicated first (first occurrence wins).
type Repo struct {
	db dbConn
}

func init() {
	storage.Register("mssql", New)
}

// New opens a pool with the "sqlserver" driver and validates connectivity.
func New(ctx context.Context, cfg storage.Config) (storage.Repository, error) {
	raw, err := sql.Open("sqlserver", cfg.DSN)
	if err != nil {
		return nil, err
	}
	if err := raw.PingContext(ctx); err != nil {
		_ = raw.Close()
		return nil, err
	}
	return &Repo{db: &sqlDB{db: raw}}, nil
}

func (r *Repo) Close() {
	if r == nil || r.db == nil {
		return
	}
	_ = r.db.Close()
}

func (r *Repo) Begin(ctx context.Context) (storage.Tx, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	return &Tx{tx: tx}, nil
}

type Tx struct {
	tx txConn
}

func (t *Tx) TableColumns(ctx context.Context, table string) ([]string, error) {
	schema, name := splitQualifiedName(table)
	rows, err := t.tx.QueryContext(ctx, `
SELECT COLUMN_NAME
FROM INFORMATION_SCHEMA.COLUMNS
WHERE TABLE_SCHEMA = COALESCE(NULLIF(@p1, ''), SCHEMA_NAME()) AND TABLE_NAME = @p2
ORDER BY ORDINAL_POSITION`, schema, name)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var cols []string
	for rows.Next() {
		var c string
		if err := rows.Scan(&c); err != nil {
			return nil, err
		}
		cols = append(cols, c)
	}
	return cols, rows.Err()
}

func (t *Tx) DropTable(ctx context.Context, table string) error {
	_, err := t.tx.ExecContext(ctx, buildDropSQL(table))
	return err
}

func (t *Tx) CreateTable(ctx context.Context, spec storage.TableSpec) error {
	q, err := buildCreateSQL(spec)
	if err != nil {
		return err
	}
	if _, err := t.tx.ExecContext(ctx, q); err != nil {
		return fmt.Errorf("mssql: create table %s: %w", spec.Name, err)
	}
	return nil
}

func (t *Tx) AddColumns(ctx context.Context, table string, cols []storage.ColumnSpec) error {
	if len(cols) == 0 {
		return nil
	}
	if _, err := t.tx.ExecContext(ctx, buildAddColumnsSQL(table, cols)); err != nil {
		return fmt.Errorf("mssql: add columns to %s: %w", table, err)
	}
	return nil
}

// InsertRows inserts rows in parameter-bounded chunks.
//
// Without a key column every row is inserted as-is.
func (t *Tx) InsertRows(
	ctx context.Context,
	table string,
	columns []string,
	rows [][]any,
	key string,
	policy storage.ConflictPolicy,
) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	keyIdx := -1
	if key != "" {
		keyIdx = indexOfColumn(columns, key)
		if keyIdx < 0 {
			return 0, fmt.Errorf("mssql: key column %q not present in columns", key)
		}
		rows = dedupeRowsByKey(rows, keyIdx)
	}

	var total int64
	for _, part := range storage.Chunk(rows, storage.RowsPerStatement(maxParams, len(columns))) {
		var q string
		var args []any
		switch {
		case keyIdx < 0:
			q, args = buildBulkInsertSQL(table, columns, part)
		case policy == storage.ConflictUpsert && len(columns) > 1:
			q, args = buildMergeSQL(table, columns, part, key)
		default:
			q, args = buildInsertNotExistsSQL(table, columns, part, key)
		}

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

func mssqlType(t storage.ColumnType) string {
	if t == storage.TypeInteger {
		return "BIGINT"
	}
	return "NVARCHAR(MAX)"
}

// buildCreateSQL wraps CREATE TABLE in an OBJECT_ID guard so it can run
// against an existing table. NVARCHAR(MAX) cannot be indexed, so a text key
// column is capped at 450 characters (the 900 byte index key limit).
func buildCreateSQL(t storage.TableSpec) (string, error) {
	if strings.TrimSpace(t.Name) == "" {
		return "", fmt.Errorf("mssql: table name is empty")
	}
	if len(t.Columns) == 0 {
		return "", fmt.Errorf("mssql: table %s has no columns", t.Name)
	}

	parts := make([]string, 0, len(t.Columns))
	for _, c := range t.Columns {
		if strings.TrimSpace(c.Name) == "" {
			return "", fmt.Errorf("mssql: column name is empty")
		}
		typ := mssqlType(c.Type)
		if c.Name == t.Key {
			if c.Type != storage.TypeInteger {
				typ = "NVARCHAR(450)"
			}
			typ += " NOT NULL PRIMARY KEY"
		}
		parts = append(parts, mssqlIdent(c.Name)+" "+typ)
	}

	return fmt.Sprintf(
		"IF OBJECT_ID(N'%s', N'U') IS NULL BEGIN CREATE TABLE %s (%s); END;",
		strings.ReplaceAll(t.Name, "'", "''"),
		mssqlTableIdent(t.Name),
		strings.Join(parts, ", "),
	), nil
}

func buildDropSQL(table string) string {
	return fmt.Sprintf(
		"IF OBJECT_ID(N'%s', N'U') IS NOT NULL DROP TABLE %s;",
		strings.ReplaceAll(table, "'", "''"),
		mssqlTableIdent(table),
	)
}

func buildAddColumnsSQL(table string, cols []storage.ColumnSpec) string {
	defs := make([]string, 0, len(cols))
	for _, c := range cols {
		defs = append(defs, mssqlIdent(c.Name)+" "+mssqlType(c.Type))
	}
	return fmt.Sprintf("ALTER TABLE %s ADD %s;", mssqlTableIdent(table), strings.Join(defs, ", "))
}

// writeValues appends "(@p1, @p2), (@p3, @p4)" and returns the flattened args.
func writeValues(b *strings.Builder, width int, rows [][]any) []any {
	args := make([]any, 0, len(rows)*width)
	p := 1
	for i, row := range rows {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString("(")
		for j := 0; j < width; j++ {
			if j > 0 {
				b.WriteString(", ")
			}
			fmt.Fprintf(b, "@p%d", p)
			args = append(args, row[j])
			p++
		}
		b.WriteString(")")
	}
	return args
}

func identList(prefix string, columns []string) string {
	out := make([]string, len(columns))
	for i, c := range columns {
		out[i] = prefix + mssqlIdent(c)
	}
	return strings.Join(out, ", ")
}

func buildBulkInsertSQL(table string, columns []string, rows [][]any) (string, []any) {
	var b strings.Builder
	b.WriteString("INSERT INTO ")
	b.WriteString(mssqlTableIdent(table))
	b.WriteString(" (")
	b.WriteString(identList("", columns))
	b.WriteString(") VALUES ")
	args := writeValues(&b, len(columns), rows)
	return b.String(), args
}

// buildInsertNotExistsSQL materializes the chunk as a derived table V and
// inserts only rows whose key is not already present.
func buildInsertNotExistsSQL(table string, columns []string, rows [][]any, key string) (string, []any) {
	var b strings.Builder
	b.WriteString("INSERT INTO ")
	b.WriteString(mssqlTableIdent(table))
	b.WriteString(" (")
	b.WriteString(identList("", columns))
	b.WriteString(") SELECT ")
	b.WriteString(identList("v.", columns))
	b.WriteString(" FROM (VALUES ")
	args := writeValues(&b, len(columns), rows)
	b.WriteString(") AS v(")
	b.WriteString(identList("", columns))
	b.WriteString(") WHERE NOT EXISTS (SELECT 1 FROM ")
	b.WriteString(mssqlTableIdent(table))
	b.WriteString(" t WHERE t.")
	b.WriteString(mssqlIdent(key))
	b.WriteString(" = v.")
	b.WriteString(mssqlIdent(key))
	b.WriteString(")")
	return b.String(), args
}

func buildMergeSQL(table string, columns []string, rows [][]any, key string) (string, []any) {
	var set []string
	for _, c := range columns {
		if c != key {
			set = append(set, "tgt."+mssqlIdent(c)+" = v."+mssqlIdent(c))
		}
	}

	var b strings.Builder
	b.WriteString("MERGE INTO ")
	b.WriteString(mssqlTableIdent(table))
	b.WriteString(" AS tgt USING (VALUES ")
	args := writeValues(&b, len(columns), rows)
	b.WriteString(") AS v(")
	b.WriteString(identList("", columns))
	b.WriteString(") ON tgt.")
	b.WriteString(mssqlIdent(key))
	b.WriteString(" = v.")
	b.WriteString(mssqlIdent(key))
	b.WriteString(" WHEN MATCHED THEN UPDATE SET ")
	b.WriteString(strings.Join(set, ", "))
	b.WriteString(" WHEN NOT MATCHED THEN INSERT (")
	b.WriteString(identList("", columns))
	b.WriteString(") VALUES (")
	b.WriteString(identList("v.", columns))
	b.WriteString(");")
	return b.String(), args
}

// dedupeRowsByKey keeps the first row for each key value, preserving order.
func dedupeRowsByKey(rows [][]any, keyIdx int) [][]any {
	seen := make(map[string]struct{}, len(rows))
	out := make([][]any, 0, len(rows))
	for _, r := range rows {
		k := fmt.Sprint(r[keyIdx])
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, r)
	}
	return out
}

func indexOfColumn(columns []string, name string) int {
	for i, c := range columns {
		if c == name {
			return i
		}
	}
	return -1
}

// mssqlIdent bracket-quotes a single identifier.
func mssqlIdent(name string) string {
	return "[" + strings.ReplaceAll(name, "]", "]]") + "]"
}

// mssqlTableIdent quotes each part of a schema-qualified name.
//
// Example: "dbo.respostas" -> "[dbo].[respostas]"
func mssqlTableIdent(name string) string {
	parts := strings.Split(name, ".")
	for i := range parts {
		parts[i] = mssqlIdent(strings.TrimSpace(parts[i]))
	}
	return strings.Join(parts, ".")
}

func splitQualifiedName(name string) (schema, table string) {
	if i := strings.LastIndex(name, "."); i >= 0 {
		return name[:i], name[i+1:]
	}
	return "", name
}

// dbConn is a small interface over *sql.DB used to make this package testable.
type dbConn interface {
	BeginTx(ctx context.Context, opts *sql.TxOptions) (txConn, error)
	Close() error
}

// txConn is a small interface over *sql.Tx.
type txConn interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	Commit() error
	Rollback() error
}

type sqlDB struct {
	db *sql.DB
}

func (s *sqlDB) BeginTx(ctx context.Context, opts *sql.TxOptions) (txConn, error) {
	tx, err := s.db.BeginTx(ctx, opts)
	if err != nil {
		return nil, err
	}
	return tx, nil
}

func (s *sqlDB) Close() error { return s.db.Close() }

var (
	_ storage.Repository = (*Repo)(nil)
	_ storage.Tx         = (*Tx)(nil)
)

package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"surveyetl/internal/storage"
)

// maxParams is the Postgres wire-protocol limit on bind parameters per statement.
const maxParams = 65535

func init() {
	storage.Register("postgres", New)
}

// Repo implements storage.Repository for Postgres on a pgx pool.
type Repo struct {
	pool *pgxpool.Pool
}

// New creates a pool for cfg.DSN and checks connectivity.
func New(ctx context.Context, cfg storage.Config) (storage.Repository, error) {
	pool, err := pgxpool.New(ctx, cfg.DSN)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return &Repo{pool: pool}, nil
}

// Close closes the connection pool.
func (r *Repo) Close() {
	r.pool.Close()
}

func (r *Repo) Begin(ctx context.Context) (storage.Tx, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	return &Tx{tx: tx}, nil
}

// Tx runs DDL and inserts inside one pgx transaction. Postgres DDL is
// transactional, so a rollback also undoes drops and creates.
type Tx struct {
	tx pgx.Tx
}

func (t *Tx) TableColumns(ctx context.Context, table string) ([]string, error) {
	schema, name := splitQualifiedName(table)
	rows, err := t.tx.Query(ctx, columnsSQL, schema, name)
	if err != nil {
		return nil, err
	}
	cols, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, err
	}
	if len(cols) == 0 {
		return nil, nil
	}
	return cols, nil
}

const columnsSQL = `SELECT column_name FROM information_schema.columns ` +
	`WHERE table_schema = COALESCE(NULLIF($1, ''), current_schema()) AND table_name = $2 ` +
	`ORDER BY ordinal_position`

func (t *Tx) DropTable(ctx context.Context, table string) error {
	_, err := t.tx.Exec(ctx, "DROP TABLE IF EXISTS "+pgTableIdent(table))
	return err
}

func (t *Tx) CreateTable(ctx context.Context, spec storage.TableSpec) error {
	schemaSQL, tableSQL, err := buildCreateSQL(spec)
	if err != nil {
		return err
	}
	if schemaSQL != "" {
		if _, err := t.tx.Exec(ctx, schemaSQL); err != nil {
			return fmt.Errorf("create schema for %s: %w", spec.Name, err)
		}
	}
	if _, err := t.tx.Exec(ctx, tableSQL); err != nil {
		return fmt.Errorf("create table %s: %w", spec.Name, err)
	}
	return nil
}

func (t *Tx) AddColumns(ctx context.Context, table string, cols []storage.ColumnSpec) error {
	if len(cols) == 0 {
		return nil
	}
	_, err := t.tx.Exec(ctx, buildAddColumnsSQL(table, cols))
	return err
}

// InsertRows inserts rows in statements sized to the bind parameter limit.
//
// With a key column the insert is idempotent:
//
//	ignore: ON CONFLICT (key) DO NOTHING
//	upsert: ON CONFLICT (key) DO UPDATE SET c = EXCLUDED.c, ...
//
// DO UPDATE cannot touch the same row twice in one statement, so upserts
// keep only the first row per key.
func (t *Tx) InsertRows(
	ctx context.Context,
	table string,
	columns []string,
	rows [][]any,
	key string,
	policy storage.ConflictPolicy,
) (int64, error) {
	if key != "" && policy == storage.ConflictUpsert {
		keyIdx := indexOfColumn(columns, key)
		if keyIdx < 0 {
			return 0, fmt.Errorf("postgres: key column %q not present in columns", key)
		}
		rows = dedupeRowsByKey(rows, keyIdx)
	}

	var total int64
	for _, part := range storage.Chunk(rows, storage.RowsPerStatement(maxParams, len(columns))) {
		sql, args := buildInsertSQL(table, columns, part, key, policy)
		cmd, err := t.tx.Exec(ctx, sql, args...)
		if err != nil {
			return total, err
		}
		total += cmd.RowsAffected()
	}
	return total, nil
}

func (t *Tx) Commit(ctx context.Context) error   { return t.tx.Commit(ctx) }
func (t *Tx) Rollback(ctx context.Context) error { return t.tx.Rollback(ctx) }

// buildInsertSQL constructs a single INSERT statement and its args.
//
// It is pure and deterministic, so placeholder numbering and ON CONFLICT
// clauses are unit tested without a database.
//
// Constraints:
//   - every row has len(columns) values.
//   - columns is non-empty.
func buildInsertSQL(table string, columns []string, rows [][]any, key string, policy storage.ConflictPolicy) (string, []any) {
	var b strings.Builder
	b.WriteString("INSERT INTO ")
	b.WriteString(pgTableIdent(table))
	b.WriteString(" (")

	for i, c := range columns {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(pgIdent(c))
	}
	b.WriteString(") VALUES ")

	args := make([]any, 0, len(rows)*len(columns))
	p := 1
	for i, row := range rows {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString("(")
		for j := range columns {
			if j > 0 {
				b.WriteString(", ")
			}
			b.WriteString(fmt.Sprintf("$%d", p))
			args = append(args, row[j])
			p++
		}
		b.WriteString(")")
	}

	if key != "" {
		b.WriteString(" ON CONFLICT (")
		b.WriteString(pgIdent(key))
		b.WriteString(")")

		var set []string
		if policy == storage.ConflictUpsert {
			for _, c := range columns {
				if c == key {
					continue
				}
				set = append(set, pgIdent(c)+" = EXCLUDED."+pgIdent(c))
			}
		}
		if len(set) == 0 {
			b.WriteString(" DO NOTHING")
		} else {
			b.WriteString(" DO UPDATE SET ")
			b.WriteString(strings.Join(set, ", "))
		}
	}

	b.WriteString(";")
	return b.String(), args
}

// buildCreateSQL returns an optional CREATE SCHEMA statement (for
// schema-qualified names) and the CREATE TABLE IF NOT EXISTS statement.
func buildCreateSQL(t storage.TableSpec) (schemaSQL, tableSQL string, err error) {
	if strings.TrimSpace(t.Name) == "" {
		return "", "", fmt.Errorf("table name is empty")
	}
	if len(t.Columns) == 0 {
		return "", "", fmt.Errorf("table %s has no columns", t.Name)
	}

	if schema, _ := splitQualifiedName(t.Name); schema != "" {
		schemaSQL = "CREATE SCHEMA IF NOT EXISTS " + pgIdent(schema) + ";"
	}

	defs := make([]string, 0, len(t.Columns))
	for _, c := range t.Columns {
		def := pgIdent(c.Name) + " " + pgType(c.Type)
		if c.Name == t.Key {
			def += " NOT NULL PRIMARY KEY"
		}
		defs = append(defs, def)
	}

	tableSQL = fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (\n  %s\n);", pgTableIdent(t.Name), strings.Join(defs, ",\n  "))
	return schemaSQL, tableSQL, nil
}

func buildAddColumnsSQL(table string, cols []storage.ColumnSpec) string {
	parts := make([]string, 0, len(cols))
	for _, c := range cols {
		parts = append(parts, "ADD COLUMN IF NOT EXISTS "+pgIdent(c.Name)+" "+pgType(c.Type))
	}
	return "ALTER TABLE " + pgTableIdent(table) + " " + strings.Join(parts, ", ") + ";"
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

func pgType(t storage.ColumnType) string {
	switch t {
	case storage.TypeInteger:
		return "BIGINT"
	default:
		return "TEXT"
	}
}

// pgIdent double-quotes an identifier, escaping embedded quotes.
func pgIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// pgTableIdent quotes each part of a possibly schema-qualified name.
func pgTableIdent(name string) string {
	schema, table := splitQualifiedName(name)
	if schema == "" {
		return pgIdent(table)
	}
	return pgIdent(schema) + "." + pgIdent(table)
}

// splitQualifiedName splits "schema.table".
//
// This helper only handles a single dot. Anything else is treated as
// unqualified.
func splitQualifiedName(name string) (schema string, table string) {
	name = strings.TrimSpace(name)
	parts := strings.Split(name, ".")
	if len(parts) != 2 {
		return "", name
	}
	return strings.TrimSpace(parts[0]), strings.TrimSpace(parts[1])
}

var (
	_ storage.Repository = (*Repo)(nil)
	_ storage.Tx         = (*Tx)(nil)
)

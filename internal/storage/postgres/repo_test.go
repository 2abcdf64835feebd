package postgres

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"surveyetl/internal/storage"
)

// recordingTx captures Exec calls; every other pgx.Tx method is unused.
type recordingTx struct {
	pgx.Tx
	sql  []string
	args [][]any
}

func (r *recordingTx) Exec(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	r.sql = append(r.sql, sql)
	r.args = append(r.args, args)
	return pgconn.NewCommandTag(fmt.Sprintf("INSERT 0 %d", len(args)/2)), nil
}

func TestInsertRows_UpsertKeepsFirstRowPerKey(t *testing.T) {
	t.Parallel()

	rec := &recordingTx{}
	tx := &Tx{tx: rec}
	rows := [][]any{
		{int64(1), "a"},
		{int64(2), "b"},
		{int64(1), "c"}, // same key again
	}

	n, err := tx.InsertRows(context.Background(), "respostas", []string{"id", "serie"}, rows, "id", storage.ConflictUpsert)
	if err != nil {
		t.Fatalf("InsertRows: %v", err)
	}
	if n != 2 {
		t.Fatalf("expected 2 affected rows, got %d", n)
	}
	if len(rec.sql) != 1 {
		t.Fatalf("expected one statement, got %d", len(rec.sql))
	}
	want := []any{int64(1), "a", int64(2), "b"}
	if fmt.Sprint(rec.args[0]) != fmt.Sprint(want) {
		t.Fatalf("unexpected args: %v", rec.args[0])
	}
}

func TestInsertRows_IgnoreKeepsDuplicatesForDoNothing(t *testing.T) {
	t.Parallel()

	rec := &recordingTx{}
	tx := &Tx{tx: rec}
	rows := [][]any{{int64(1), "a"}, {int64(1), "b"}}

	if _, err := tx.InsertRows(context.Background(), "respostas", []string{"id", "serie"}, rows, "id", storage.ConflictIgnore); err != nil {
		t.Fatalf("InsertRows: %v", err)
	}
	if len(rec.args[0]) != 4 {
		t.Fatalf("expected both rows bound, got %v", rec.args[0])
	}
}

func TestInsertRows_UpsertRejectsUnknownKey(t *testing.T) {
	t.Parallel()

	tx := &Tx{tx: &recordingTx{}}
	_, err := tx.InsertRows(context.Background(), "t", []string{"a"}, [][]any{{1}}, "id", storage.ConflictUpsert)
	if err == nil {
		t.Fatal("expected error for key outside columns")
	}
}

func TestBuildInsertSQL_IgnoreUsesDoNothing(t *testing.T) {
	t.Parallel()

	sql, args := buildInsertSQL(
		"respostas",
		[]string{"id_respondente", "serie"},
		[][]any{{int64(1), "3º ano"}, {int64(2), nil}},
		"id_respondente",
		storage.ConflictIgnore,
	)

	want := `INSERT INTO "respostas" ("id_respondente", "serie") VALUES ($1, $2), ($3, $4) ON CONFLICT ("id_respondente") DO NOTHING;`
	if sql != want {
		t.Fatalf("unexpected SQL:\n got: %s\nwant: %s", sql, want)
	}
	if len(args) != 4 || args[0] != int64(1) || args[3] != nil {
		t.Fatalf("unexpected args: %#v", args)
	}
}

func TestBuildInsertSQL_UpsertUpdatesNonKeyColumns(t *testing.T) {
	t.Parallel()

	sql, _ := buildInsertSQL("public.respostas_q8", []string{"id", "a", "b"}, [][]any{{1, 0, 1}}, "id", storage.ConflictUpsert)

	if !strings.HasPrefix(sql, `INSERT INTO "public"."respostas_q8"`) {
		t.Fatalf("expected schema-qualified table, got %s", sql)
	}
	if !strings.HasSuffix(sql, `ON CONFLICT ("id") DO UPDATE SET "a" = EXCLUDED."a", "b" = EXCLUDED."b";`) {
		t.Fatalf("unexpected upsert clause: %s", sql)
	}
}

func TestBuildInsertSQL_UpsertWithOnlyKeyFallsBackToDoNothing(t *testing.T) {
	t.Parallel()

	sql, _ := buildInsertSQL("t", []string{"id"}, [][]any{{1}}, "id", storage.ConflictUpsert)
	if !strings.HasSuffix(sql, `DO NOTHING;`) {
		t.Fatalf("expected DO NOTHING, got %s", sql)
	}
}

func TestBuildInsertSQL_NoKeyIsPlainInsert(t *testing.T) {
	t.Parallel()

	sql, _ := buildInsertSQL("t", []string{"a"}, [][]any{{1}}, "", storage.ConflictIgnore)
	if strings.Contains(sql, "ON CONFLICT") {
		t.Fatalf("unexpected ON CONFLICT: %s", sql)
	}
}

func TestBuildCreateSQL_KeyAndTypes(t *testing.T) {
	t.Parallel()

	spec := storage.TableSpec{
		Name: "pesquisa.respostas",
		Key:  "id_respondente",
		Columns: []storage.ColumnSpec{
			{Name: "id_respondente", Type: storage.TypeInteger},
			{Name: "serie", Type: storage.TypeText},
		},
	}

	schemaSQL, tableSQL, err := buildCreateSQL(spec)
	if err != nil {
		t.Fatalf("buildCreateSQL: %v", err)
	}
	if schemaSQL != `CREATE SCHEMA IF NOT EXISTS "pesquisa";` {
		t.Fatalf("unexpected schema SQL: %q", schemaSQL)
	}
	for _, frag := range []string{
		`CREATE TABLE IF NOT EXISTS "pesquisa"."respostas"`,
		`"id_respondente" BIGINT NOT NULL PRIMARY KEY`,
		`"serie" TEXT`,
	} {
		if !strings.Contains(tableSQL, frag) {
			t.Fatalf("tableSQL missing %q:\n%s", frag, tableSQL)
		}
	}
}

func TestBuildCreateSQL_RejectsEmpty(t *testing.T) {
	t.Parallel()

	if _, _, err := buildCreateSQL(storage.TableSpec{}); err == nil {
		t.Fatalf("expected error for empty name")
	}
	if _, _, err := buildCreateSQL(storage.TableSpec{Name: "t"}); err == nil {
		t.Fatalf("expected error for no columns")
	}
}

func TestBuildAddColumnsSQL(t *testing.T) {
	t.Parallel()

	got := buildAddColumnsSQL("respostas_q8", []storage.ColumnSpec{
		{Name: "q8_nova_opcao", Type: storage.TypeInteger},
		{Name: "obs", Type: storage.TypeText},
	})
	want := `ALTER TABLE "respostas_q8" ADD COLUMN IF NOT EXISTS "q8_nova_opcao" BIGINT, ADD COLUMN IF NOT EXISTS "obs" TEXT;`
	if got != want {
		t.Fatalf("unexpected SQL:\n got: %s\nwant: %s", got, want)
	}
}

func TestSplitQualifiedName(t *testing.T) {
	t.Parallel()

	if s, n := splitQualifiedName("public.t"); s != "public" || n != "t" {
		t.Fatalf("got %q %q", s, n)
	}
	if s, n := splitQualifiedName("t"); s != "" || n != "t" {
		t.Fatalf("got %q %q", s, n)
	}
	if s, n := splitQualifiedName("a.b.c"); s != "" || n != "a.b.c" {
		t.Fatalf("got %q %q", s, n)
	}
}

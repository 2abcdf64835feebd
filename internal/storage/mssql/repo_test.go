package mssql

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"testing"

	"surveyetl/internal/storage"
)

type execCall struct {
	query string
	args  []any
}

// fakeTx records ExecContext calls and reports one affected row per arg row.
type fakeTx struct {
	calls   []execCall
	width   int
	failOn  int
	commits int
}

type fakeResult int64

func (r fakeResult) LastInsertId() (int64, error) { return 0, errors.New("unsupported") }
func (r fakeResult) RowsAffected() (int64, error) { return int64(r), nil }

func (f *fakeTx) ExecContext(_ context.Context, q string, args ...any) (sql.Result, error) {
	f.calls = append(f.calls, execCall{query: q, args: args})
	if f.failOn > 0 && len(f.calls) == f.failOn {
		return nil, errors.New("boom")
	}
	if f.width == 0 {
		return fakeResult(0), nil
	}
	return fakeResult(len(args) / f.width), nil
}

func (f *fakeTx) QueryContext(context.Context, string, ...any) (*sql.Rows, error) {
	return nil, errors.New("not implemented")
}

func (f *fakeTx) Commit() error   { f.commits++; return nil }
func (f *fakeTx) Rollback() error { return nil }

func TestDedupeRowsByKey_StableAndCorrect(t *testing.T) {
	rows := [][]any{
		{int64(1), "a"},
		{int64(1), "b"}, // duplicate key, dropped
		{int64(2), "c"},
		{int64(1), "d"}, // duplicate key, dropped
		{int64(3), "e"},
	}

	got := dedupeRowsByKey(rows, 0)
	if len(got) != 3 {
		t.Fatalf("expected 3 rows after dedupe, got %d", len(got))
	}
	if got[0][1] != "a" || got[1][1] != "c" || got[2][1] != "e" {
		t.Fatalf("first occurrences not preserved in order: %v", got)
	}
}

func TestBuildInsertNotExistsSQL(t *testing.T) {
	q, args := buildInsertNotExistsSQL("dbo.respostas", []string{"id", "sexo"}, [][]any{{1, "F"}, {2, nil}}, "id")

	want := "INSERT INTO [dbo].[respostas] ([id], [sexo]) SELECT v.[id], v.[sexo] FROM (VALUES (@p1, @p2), (@p3, @p4)) AS v([id], [sexo]) WHERE NOT EXISTS (SELECT 1 FROM [dbo].[respostas] t WHERE t.[id] = v.[id])"
	if q != want {
		t.Fatalf("got  %s\nwant %s", q, want)
	}
	if len(args) != 4 || args[3] != nil {
		t.Fatalf("unexpected args: %v", args)
	}
}

func TestBuildMergeSQL(t *testing.T) {
	q, _ := buildMergeSQL("t", []string{"id", "a", "b"}, [][]any{{1, 2, 3}}, "id")

	for _, frag := range []string{
		"MERGE INTO [t] AS tgt USING (VALUES (@p1, @p2, @p3)) AS v([id], [a], [b])",
		"ON tgt.[id] = v.[id]",
		"WHEN MATCHED THEN UPDATE SET tgt.[a] = v.[a], tgt.[b] = v.[b]",
		"WHEN NOT MATCHED THEN INSERT ([id], [a], [b]) VALUES (v.[id], v.[a], v.[b]);",
	} {
		if !strings.Contains(q, frag) {
			t.Fatalf("missing %q in %s", frag, q)
		}
	}
}

func TestBuildCreateSQL_KeyTypes(t *testing.T) {
	tests := []struct {
		name    string
		keyType storage.ColumnType
		want    string
	}{
		{"integer key", storage.TypeInteger, "[id] BIGINT NOT NULL PRIMARY KEY"},
		{"text key", storage.TypeText, "[id] NVARCHAR(450) NOT NULL PRIMARY KEY"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q, err := buildCreateSQL(storage.TableSpec{
				Name:    "respostas",
				Key:     "id",
				Columns: []storage.ColumnSpec{{Name: "id", Type: tt.keyType}, {Name: "sala", Type: storage.TypeText}},
			})
			if err != nil {
				t.Fatalf("buildCreateSQL: %v", err)
			}
			if !strings.HasPrefix(q, "IF OBJECT_ID(N'respostas', N'U') IS NULL BEGIN CREATE TABLE [respostas] (") {
				t.Fatalf("missing guard: %s", q)
			}
			if !strings.Contains(q, tt.want) || !strings.Contains(q, "[sala] NVARCHAR(MAX)") {
				t.Fatalf("unexpected DDL: %s", q)
			}
		})
	}

	if _, err := buildCreateSQL(storage.TableSpec{Name: " "}); err == nil {
		t.Fatalf("expected error for empty table name")
	}
}

func TestBuildAddColumnsAndDrop(t *testing.T) {
	got := buildAddColumnsSQL("t", []storage.ColumnSpec{{Name: "q8_a", Type: storage.TypeInteger}, {Name: "obs", Type: storage.TypeText}})
	if got != "ALTER TABLE [t] ADD [q8_a] BIGINT, [obs] NVARCHAR(MAX);" {
		t.Fatalf("unexpected ALTER: %s", got)
	}
	if got := buildDropSQL("o'brien"); got != "IF OBJECT_ID(N'o''brien', N'U') IS NOT NULL DROP TABLE [o'brien];" {
		t.Fatalf("unexpected DROP: %s", got)
	}
}

func TestTx_InsertRowsChunksAndPicksStatement(t *testing.T) {
	ctx := context.Background()
	cols := []string{"id", "v"}
	rows := make([][]any, 0, 1500)
	for i := 0; i < 1500; i++ {
		rows = append(rows, []any{int64(i), "x"})
	}

	f := &fakeTx{width: len(cols)}
	tx := &Tx{tx: f}

	n, err := tx.InsertRows(ctx, "t", cols, rows, "id", storage.ConflictIgnore)
	if err != nil {
		t.Fatalf("InsertRows: %v", err)
	}
	if n != 1500 {
		t.Fatalf("expected 1500 affected, got %d", n)
	}
	// 2000 params / 2 columns = 1000 rows per statement.
	if len(f.calls) != 2 {
		t.Fatalf("expected 2 statements, got %d", len(f.calls))
	}
	if !strings.Contains(f.calls[0].query, "WHERE NOT EXISTS") {
		t.Fatalf("expected NOT EXISTS insert, got %s", f.calls[0].query)
	}

	f = &fakeTx{width: len(cols)}
	tx = &Tx{tx: f}
	if _, err := tx.InsertRows(ctx, "t", cols, rows[:2], "id", storage.ConflictUpsert); err != nil {
		t.Fatalf("InsertRows upsert: %v", err)
	}
	if !strings.HasPrefix(f.calls[0].query, "MERGE INTO") {
		t.Fatalf("expected MERGE, got %s", f.calls[0].query)
	}

	f = &fakeTx{width: len(cols)}
	tx = &Tx{tx: f}
	if _, err := tx.InsertRows(ctx, "t", cols, rows[:2], "", storage.ConflictIgnore); err != nil {
		t.Fatalf("InsertRows plain: %v", err)
	}
	if !strings.HasPrefix(f.calls[0].query, "INSERT INTO [t] ([id], [v]) VALUES") {
		t.Fatalf("expected plain insert, got %s", f.calls[0].query)
	}
}

func TestTx_InsertRowsErrors(t *testing.T) {
	ctx := context.Background()

	tx := &Tx{tx: &fakeTx{}}
	if _, err := tx.InsertRows(ctx, "t", []string{"a"}, [][]any{{1}}, "missing", storage.ConflictIgnore); err == nil {
		t.Fatalf("expected error for key not in columns")
	}

	f := &fakeTx{width: 1, failOn: 1}
	tx = &Tx{tx: f}
	if _, err := tx.InsertRows(ctx, "t", []string{"a"}, [][]any{{1}}, "", storage.ConflictIgnore); err == nil {
		t.Fatalf("expected exec error to propagate")
	}
}

package csvfile

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"surveyetl/internal/source"
	"surveyetl/internal/survey"
)

var bom = []byte{0xEF, 0xBB, 0xBF}

func sampleTables() []*survey.Table {
	return []*survey.Table{
		{
			Name:    "respostas",
			Columns: []string{"id", "sala", "como_estuda"},
			Rows: [][]any{
				{int64(1), "3A", "Cursinho, Videoaulas"},
				{int64(2), nil, nil},
			},
		},
		{
			Name:    "respostas_como_estuda",
			Columns: []string{"id", "q8_cursinho", "q8_videoaulas"},
			Rows: [][]any{
				{int64(1), int64(1), int64(1)},
				{int64(2), int64(0), int64(0)},
			},
		},
	}
}

func TestWriteTables_BOMAndNulls(t *testing.T) {
	dir := t.TempDir()
	w := &Writer{Dir: dir}

	paths, err := w.WriteTables(sampleTables())
	require.NoError(t, err)
	require.Equal(t, []string{
		filepath.Join(dir, "respostas.csv"),
		filepath.Join(dir, "respostas_como_estuda.csv"),
	}, paths)

	b, err := os.ReadFile(paths[0])
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(b, bom), "missing BOM")
	assert.Equal(t, "id,sala,como_estuda\n1,3A,\"Cursinho, Videoaulas\"\n2,,\n", string(b[len(bom):]))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 2, "temporary files left behind")
}

func TestWriteTables_AllOrNothing(t *testing.T) {
	dir := t.TempDir()
	tables := sampleTables()
	tables = append(tables, &survey.Table{Name: "bad/name", Columns: []string{"id"}})

	_, err := (&Writer{Dir: dir}).WriteTables(tables)
	require.Error(t, err)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestReadDir_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	_, err := (&Writer{Dir: dir}).WriteTables(sampleTables())
	require.NoError(t, err)

	got, err := ReadDir(dir)
	require.NoError(t, err)

	want := []*survey.Table{
		{
			Name:    "respostas",
			Columns: []string{"id", "sala", "como_estuda"},
			Rows:    [][]any{{"1", "3A", "Cursinho, Videoaulas"}, {"2", nil, nil}},
		},
		{
			Name:    "respostas_como_estuda",
			Columns: []string{"id", "q8_cursinho", "q8_videoaulas"},
			Rows:    [][]any{{"1", "1", "1"}, {"2", "0", "0"}},
		},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("ReadDir mismatch (-want +got):\n%s", diff)
	}
}

func TestReadTable_CanonicalizesHeaders(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "extra.csv")
	require.NoError(t, os.WriteFile(p, []byte("Qual a sua sala?,Série\n3A,\n"), 0o644))

	got, err := ReadTable(p)
	require.NoError(t, err)
	assert.Equal(t, "extra", got.Name)
	assert.Equal(t, []string{"qual_a_sua_sala_", "serie"}, got.Columns)
	assert.Equal(t, [][]any{{"3A", nil}}, got.Rows)
}

func TestReadTable_HeaderCollision(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "dup.csv")
	require.NoError(t, os.WriteFile(p, []byte("Série,serie\n1,2\n"), 0o644))

	_, err := ReadTable(p)
	require.ErrorIs(t, err, survey.ErrNameCollision)
}

func TestReadDir_Empty(t *testing.T) {
	_, err := ReadDir(t.TempDir())
	require.Error(t, err)
}

func TestWriteRaw_RoundTripThroughSource(t *testing.T) {
	raw := survey.RawTable{
		Headers: []string{"Carimbo de data/hora", "8. Como você estuda?"},
		Rows:    [][]string{{"2024-01-01", "Videoaulas,\nCursinho"}, {"2024-01-02"}},
	}
	p := filepath.Join(t.TempDir(), "nested", "respostas-brutas.csv")
	require.NoError(t, WriteRaw(p, raw))

	f, err := os.Open(p)
	require.NoError(t, err)
	defer f.Close()

	got, err := source.ReadCSV(f, source.CSVOptions{})
	require.NoError(t, err)
	assert.Equal(t, raw, got)
}

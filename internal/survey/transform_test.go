package survey

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const q10 = "10. Quais fatores mais influenciam sua decisão de fazer ou não o ENEM? (Máximo 3 alternativas)"

func sampleRaw() RawTable {
	return RawTable{
		Headers: []string{"Carimbo de data/hora", "1. Qual é a sua série atual?", q8, "Qual o seu sexo"},
		Rows: [][]string{
			{"2025/09/01 10:00", "3º ano", "Plataformas online, Cursinhos presenciais, Plataformas online", "Feminino"},
			{"2025/09/01 10:05", "2º ano", "", ""},
			{"2025/09/01 10:07", "nan", "Cursinhos presenciais"},
		},
	}
}

func sampleOptions() Options {
	return Options{
		PrincipalTable: "respostas",
		IDColumn:       "id_respondente",
		DropColumns:    []string{"Carimbo de data/hora"},
		MultiSelect: []MultiSelectField{
			{Column: q8},
			{Column: q10},
		},
		Rename: RenameMap{
			{From: "1__qual_e_a_sua_serie_atual_", To: "serie"},
			{From: "qual_o_seu_sexo", To: "sexo"},
			{From: "q8_plataformas_online", To: "plataformas_online"},
		},
		Nulls: NewNullPolicy(),
	}
}

func TestTransform_PrincipalAndSideTables(t *testing.T) {
	t.Parallel()

	res, err := Transform(sampleRaw(), sampleOptions())
	require.NoError(t, err)

	assert.Equal(t, []string{q10}, res.Skipped)
	require.Len(t, res.Warnings, 1)

	p := res.Principal
	assert.Equal(t, "respostas", p.Name)
	assert.Equal(t, []string{"id_respondente", "serie", "sexo"}, p.Columns)
	want := [][]any{
		{int64(1), "3º ano", "Feminino"},
		{int64(2), "2º ano", nil},
		{int64(3), nil, nil},
	}
	if diff := cmp.Diff(want, p.Rows); diff != "" {
		t.Fatalf("principal rows mismatch (-want +got):\n%s", diff)
	}

	require.Len(t, res.Indicators, 1)
	side := res.Indicators[0]
	assert.Equal(t, "respostas_q8", side.Name)
	assert.Equal(t, []string{"id_respondente", "q8_cursinhos_presenciais", "plataformas_online"}, side.Columns)
	wantSide := [][]any{
		{int64(1), int64(1), int64(1)},
		{int64(2), int64(0), int64(0)},
		{int64(3), int64(1), int64(0)},
	}
	if diff := cmp.Diff(wantSide, side.Rows); diff != "" {
		t.Fatalf("indicator rows mismatch (-want +got):\n%s", diff)
	}
}

func TestTransform_IsDeterministic(t *testing.T) {
	t.Parallel()

	a, err := Transform(sampleRaw(), sampleOptions())
	require.NoError(t, err)
	b, err := Transform(sampleRaw(), sampleOptions())
	require.NoError(t, err)

	if diff := cmp.Diff(a.Tables(), b.Tables()); diff != "" {
		t.Fatalf("two runs differ (-first +second):\n%s", diff)
	}
}

func TestTransform_DoesNotMutateInput(t *testing.T) {
	t.Parallel()

	raw := sampleRaw()
	_, err := Transform(raw, sampleOptions())
	require.NoError(t, err)
	assert.Equal(t, sampleRaw(), raw)
}

func TestTransform_NoEmptyStringsOutsideIndicators(t *testing.T) {
	t.Parallel()

	res, err := Transform(sampleRaw(), sampleOptions())
	require.NoError(t, err)
	for _, row := range res.Principal.Rows {
		for _, v := range row {
			if s, ok := v.(string); ok {
				assert.NotEmpty(t, s)
			}
		}
	}
}

func TestTransform_KeepAnswer(t *testing.T) {
	t.Parallel()

	opt := sampleOptions()
	opt.MultiSelect = []MultiSelectField{{Column: q8, KeepAnswer: true, Table: "como_estuda"}}
	opt.Rename = append(opt.Rename, Rename{From: "8__como_voce_estuda_para_o_enem____no_maximo_3_", To: "como_estuda"})

	res, err := Transform(sampleRaw(), opt)
	require.NoError(t, err)

	assert.Equal(t, []any{"Cursinhos presenciais, Plataformas online", nil, "Cursinhos presenciais"}, res.Principal.Column("como_estuda"))
	assert.Equal(t, "como_estuda", res.Indicators[0].Name)
}

func TestTransform_RequiredColumnMissing(t *testing.T) {
	t.Parallel()

	opt := sampleOptions()
	opt.MultiSelect[1].Required = true
	_, err := Transform(sampleRaw(), opt)
	require.ErrorIs(t, err, ErrMissingInputColumn)

	var me *MissingColumnError
	require.True(t, errors.As(err, &me))
	assert.Equal(t, q10, me.Column)

	opt = sampleOptions()
	opt.RequiredColumns = []string{"turno"}
	_, err = Transform(sampleRaw(), opt)
	assert.ErrorIs(t, err, ErrMissingInputColumn)
}

func TestTransform_DroppedColumnIsNotRequiredToBeUnique(t *testing.T) {
	t.Parallel()

	raw := RawTable{
		Headers: []string{"Sala", "sala", "Turno"},
		Rows:    [][]string{{"A", "A", "Manhã"}},
	}
	_, err := Transform(raw, Options{})
	require.ErrorIs(t, err, ErrNameCollision)

	res, err := Transform(raw, Options{DropColumns: []string{"sala"}})
	require.NoError(t, err)
	assert.Equal(t, []string{DefaultIDColumn, "turno"}, res.Principal.Columns)
}

func TestTransform_RenameCollision(t *testing.T) {
	t.Parallel()

	opt := sampleOptions()
	opt.Rename = RenameMap{
		{From: "1__qual_e_a_sua_serie_atual_", To: "serie"},
		{From: "qual_o_seu_sexo", To: "serie"},
	}
	_, err := Transform(sampleRaw(), opt)
	assert.ErrorIs(t, err, ErrNameCollision)
}

func TestTransform_UUIDs(t *testing.T) {
	t.Parallel()

	n := 0
	opt := sampleOptions()
	opt.IDs = &UUIDs{New: func() uuid.UUID {
		n++
		return uuid.NewSHA1(uuid.NameSpaceOID, []byte{byte(n)})
	}}
	res, err := Transform(sampleRaw(), opt)
	require.NoError(t, err)

	ids := res.Principal.Column("id_respondente")
	require.Len(t, ids, 3)
	for i, id := range ids {
		_, err := uuid.Parse(id.(string))
		require.NoError(t, err)
		assert.Equal(t, id, res.Indicators[0].Rows[i][0])
	}
}

func TestTransform_DuplicateIDsRejected(t *testing.T) {
	t.Parallel()

	opt := sampleOptions()
	opt.IDs = &UUIDs{New: func() uuid.UUID { return uuid.Nil }}
	_, err := Transform(sampleRaw(), opt)
	assert.Error(t, err)
}

func TestNullPolicy(t *testing.T) {
	t.Parallel()

	p := NewNullPolicy("N/A")
	tbl := &Table{Columns: []string{"a", "b", "c"}, Rows: [][]any{
		{"", "  ", "x"},
		{"NaN", "n/a", int64(0)},
	}}
	assert.Equal(t, 4, p.Apply(tbl))
	assert.Equal(t, [][]any{{nil, nil, "x"}, {nil, nil, int64(0)}}, tbl.Rows)
}

func TestNullPolicy_ZeroValueTreatsNaNAsMissing(t *testing.T) {
	t.Parallel()

	var p NullPolicy
	assert.True(t, p.IsMissing("nan"))
	assert.True(t, p.IsMissing(" NaN "))
	assert.False(t, p.IsMissing("n/a"))

	raw := RawTable{
		Headers: []string{"Nome", "Turno"},
		Rows:    [][]string{{"Ana", "nan"}, {"Bia", "Manhã"}},
	}
	res, err := Transform(raw, Options{})
	require.NoError(t, err)
	turno := res.Principal.ColumnIndex("turno")
	require.GreaterOrEqual(t, turno, 0)
	assert.Nil(t, res.Principal.Rows[0][turno])
	assert.Equal(t, "Manhã", res.Principal.Rows[1][turno])
}

func TestRenameMap_Lookup(t *testing.T) {
	t.Parallel()

	m := RenameMap{{From: "a", To: "x"}, {From: "a", To: "y"}}
	assert.Equal(t, "x", m.Lookup("a"))
	assert.Equal(t, "b", m.Lookup("b"))
}

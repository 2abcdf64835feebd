package source

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/unicode"
)

func TestReadCSV_BOMAndMultilineAnswers(t *testing.T) {
	in := "\uFEFFCarimbo,8. Como você estuda?\r\n" +
		"2024-01-01,\"Videoaulas,\nCursinho\"\r\n" +
		"2024-01-02,\r\n"

	got, err := ReadCSV(strings.NewReader(in), CSVOptions{})
	require.NoError(t, err)

	assert.Equal(t, []string{"Carimbo", "8. Como você estuda?"}, got.Headers)
	require.Len(t, got.Rows, 2)
	assert.Equal(t, "Videoaulas,\nCursinho", got.Rows[0][1])
	assert.Equal(t, "", got.Rows[1][1])
}

func TestReadCSV_RaggedRowsAndComma(t *testing.T) {
	got, err := ReadCSV(strings.NewReader("a;b;c\n1;2\n1;2;3;4\n"), CSVOptions{Comma: ';'})
	require.NoError(t, err)

	assert.Equal(t, []string{"a", "b", "c"}, got.Headers)
	assert.Equal(t, [][]string{{"1", "2"}, {"1", "2", "3", "4"}}, got.Rows)
}

func TestReadCSV_Windows1252(t *testing.T) {
	raw, err := charmap.Windows1252.NewEncoder().String("Série,Período\nNão,Manhã\n")
	require.NoError(t, err)

	got, err := ReadCSV(strings.NewReader(raw), CSVOptions{Encoding: "windows-1252"})
	require.NoError(t, err)
	assert.Equal(t, []string{"Série", "Período"}, got.Headers)
	assert.Equal(t, [][]string{{"Não", "Manhã"}}, got.Rows)
}

func TestReadCSV_UTF16WithBOM(t *testing.T) {
	enc := unicode.UTF16(unicode.LittleEndian, unicode.UseBOM).NewEncoder()
	raw, err := enc.String("sala,sexo\n3A,Feminino\n")
	require.NoError(t, err)

	// The BOM wins over the declared encoding.
	got, err := ReadCSV(strings.NewReader(raw), CSVOptions{Encoding: "utf-8"})
	require.NoError(t, err)
	assert.Equal(t, []string{"sala", "sexo"}, got.Headers)
	assert.Equal(t, [][]string{{"3A", "Feminino"}}, got.Rows)
}

func TestReadCSV_InvalidUTF8IsEncodingError(t *testing.T) {
	// Latin-1 bytes read as UTF-8.
	var b bytes.Buffer
	b.WriteString("a,b\n")
	b.WriteString("ok,ok\n")
	b.Write([]byte{'S', 0xE9, 'r', 'i', 'e', ',', 'x', '\n'})

	_, err := ReadCSV(&b, CSVOptions{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrEncoding))

	var encErr *EncodingError
	require.True(t, errors.As(err, &encErr))
	assert.Equal(t, 3, encErr.Line)
	assert.Equal(t, "utf-8", encErr.Encoding)
}

func TestReadCSV_UnknownEncoding(t *testing.T) {
	_, err := ReadCSV(strings.NewReader("a\n"), CSVOptions{Encoding: "klingon"})
	require.ErrorIs(t, err, ErrEncoding)
	assert.Contains(t, err.Error(), "klingon")
}

func TestReadCSV_Empty(t *testing.T) {
	_, err := ReadCSV(strings.NewReader(""), CSVOptions{})
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrEncoding))
}

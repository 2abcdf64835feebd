package source

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Shape of a sheet published to the web.
const publishedSheet = `<html><body><div id="sheets-viewport">
<table class="waffle" cellspacing="0" cellpadding="0">
<thead><tr><th class="row-header freezebar-origin-ltr"></th><th class="column-headers-background">A</th><th class="column-headers-background">B</th></tr></thead>
<tbody>
<tr style="height: 20px"><th class="row-headers-background"><div class="row-header-wrapper">1</div></th><td class="s0">Qual a sua sala?</td><td class="s0">8. Como você estuda para o ENEM?</td></tr>
<tr><th class="freezebar-cell"></th><td class="freezebar-cell"></td><td class="freezebar-cell"></td></tr>
<tr style="height: 20px"><th class="row-headers-background"><div class="row-header-wrapper">2</div></th><td class="s1">3A</td><td class="s1">Videoaulas,<br>Cursinho</td></tr>
<tr style="height: 20px"><th class="row-headers-background"><div class="row-header-wrapper">3</div></th><td class="s1">3B</td><td class="s1"></td></tr>
</tbody></table></div></body></html>`

func TestReadHTMLTable_PublishedSheet(t *testing.T) {
	got, err := ReadHTMLTable(strings.NewReader(publishedSheet))
	require.NoError(t, err)

	assert.Equal(t, []string{"Qual a sua sala?", "8. Como você estuda para o ENEM?"}, got.Headers)
	assert.Equal(t, [][]string{
		{"3A", "Videoaulas,\nCursinho"},
		{"3B", ""},
	}, got.Rows)
}

func TestReadHTMLTable_PlainTable(t *testing.T) {
	in := `<table><tr><th>a</th><th>b</th></tr><tr><td>1</td><td>2</td></tr></table>`

	got, err := ReadHTMLTable(strings.NewReader(in))
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, got.Headers)
	assert.Equal(t, [][]string{{"1", "2"}}, got.Rows)
}

func TestReadHTMLTable_NoTable(t *testing.T) {
	_, err := ReadHTMLTable(strings.NewReader(`<p>sign in</p>`))
	require.Error(t, err)
}

package source

import (
	"fmt"
	"io"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"surveyetl/internal/survey"
)

// ReadHTMLTable reads the first <table> of a document, such as a sheet
// published to the web.
//
// Only body rows are read. On published sheets the <thead> holds the A, B, C
// column letters and every body row starts with a <th> row number, so <td>
// cells are preferred and a row falls back to <th> cells only when it has no
// <td>. Freeze-bar spacer cells and rows with no text are dropped. <br>
// becomes a newline.
func ReadHTMLTable(r io.Reader) (survey.RawTable, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return survey.RawTable{}, fmt.Errorf("parse html: %w", err)
	}

	table := doc.Find("table").First()
	if table.Length() == 0 {
		return survey.RawTable{}, fmt.Errorf("html has no table")
	}

	var rows [][]string
	table.Find("tbody > tr").Each(func(_ int, tr *goquery.Selection) {
		cells := tr.ChildrenFiltered("td")
		if cells.Length() == 0 {
			cells = tr.ChildrenFiltered("th")
		}
		cells = cells.Not(".freezebar-cell")

		row := make([]string, 0, cells.Length())
		blank := true
		cells.Each(func(_ int, cell *goquery.Selection) {
			cell.Find("br").ReplaceWithHtml("\n")
			v := strings.TrimSpace(cell.Text())
			if v != "" {
				blank = false
			}
			row = append(row, v)
		})
		if !blank {
			rows = append(rows, row)
		}
	})

	if len(rows) == 0 {
		return survey.RawTable{}, fmt.Errorf("html table has no header row")
	}
	return survey.RawTable{Headers: rows[0], Rows: rows[1:]}, nil
}

package source

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"

	"surveyetl/internal/survey"
)

// ReadXLSX reads a worksheet (the first one when sheet is empty). Row 1 is the
// header row. Cells come back as their formatted text.
func ReadXLSX(r io.Reader, sheet string) (survey.RawTable, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return survey.RawTable{}, fmt.Errorf("open xlsx: %w", err)
	}
	defer f.Close()

	if sheet == "" {
		list := f.GetSheetList()
		if len(list) == 0 {
			return survey.RawTable{}, fmt.Errorf("xlsx has no worksheets")
		}
		sheet = list[0]
	}

	rows, err := f.GetRows(sheet)
	if err != nil {
		return survey.RawTable{}, fmt.Errorf("read sheet %q: %w", sheet, err)
	}
	if len(rows) == 0 {
		return survey.RawTable{}, fmt.Errorf("sheet %q has no header row", sheet)
	}

	return survey.RawTable{Headers: rows[0], Rows: rows[1:]}, nil
}

package loader

import (
	"strconv"

	"surveyetl/internal/storage"
	"surveyetl/internal/survey"
)

// InferColumns types each column: integer when every non-nil value is an
// integer, text otherwise. An all-nil column is text.
//
// Strings count as integers only in plain decimal form: an optional leading
// '-' and no leading zeros. Codes such as "007" and "-0" stay text, since
// they would not read back unchanged.
func InferColumns(t *survey.Table) []storage.ColumnSpec {
	out := make([]storage.ColumnSpec, len(t.Columns))
	for c, name := range t.Columns {
		typ := storage.TypeText
		seen := false
		integer := true
		for _, row := range t.Rows {
			if c >= len(row) || row[c] == nil {
				continue
			}
			seen = true
			if _, ok := asInt(row[c]); !ok {
				integer = false
				break
			}
		}
		if seen && integer {
			typ = storage.TypeInteger
		}
		out[c] = storage.ColumnSpec{Name: name, Type: typ}
	}
	return out
}

// ConvertRows returns copies of t's rows with integer columns as int64 and
// text columns as string. Short rows are padded with nil.
func ConvertRows(t *survey.Table, cols []storage.ColumnSpec) [][]any {
	out := make([][]any, len(t.Rows))
	for r, row := range t.Rows {
		conv := make([]any, len(cols))
		for c, col := range cols {
			if c >= len(row) || row[c] == nil {
				continue
			}
			v := row[c]
			if col.Type == storage.TypeInteger {
				n, _ := asInt(v)
				conv[c] = n
				continue
			}
			switch x := v.(type) {
			case string:
				conv[c] = x
			default:
				if n, ok := asInt(x); ok {
					conv[c] = strconv.FormatInt(n, 10)
				} else {
					conv[c] = x
				}
			}
		}
		out[r] = conv
	}
	return out
}

func asInt(v any) (int64, bool) {
	switch x := v.(type) {
	case int64:
		return x, true
	case int:
		return int64(x), true
	case int32:
		return int64(x), true
	case string:
		if !plainInteger(x) {
			return 0, false
		}
		n, err := strconv.ParseInt(x, 10, 64)
		return n, err == nil
	default:
		return 0, false
	}
}

func plainInteger(s string) bool {
	if s == "" {
		return false
	}
	neg := s[0] == '-'
	if neg {
		s = s[1:]
	}
	if s == "" || (len(s) > 1 && s[0] == '0') || (neg && s == "0") {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

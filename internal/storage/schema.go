// Table and load-policy types shared by the loader and every backend, kept
// here so both sides can import them without cycles.
package storage

import (
	"fmt"
	"strings"
)

type ColumnType string

const (
	TypeText    ColumnType = "text"
	TypeInteger ColumnType = "integer"
)

type ColumnSpec struct {
	Name string
	Type ColumnType
}

type TableSpec struct {
	Name    string
	Columns []ColumnSpec
	// Key is the respondent id column; it becomes the primary key.
	Key string
}

// KeyType returns the type of the key column, defaulting to text.
func (t TableSpec) KeyType() ColumnType {
	for _, c := range t.Columns {
		if c.Name == t.Key {
			return c.Type
		}
	}
	return TypeText
}

// LoadMode chooses what happens to an existing destination table.
type LoadMode string

const (
	// LoadReplace drops and recreates the table.
	LoadReplace LoadMode = "replace"
	// LoadAppend keeps the table, adding any missing columns.
	LoadAppend LoadMode = "append"
)

// ParseLoadMode accepts "replace", "append" or "" (replace).
func ParseLoadMode(s string) (LoadMode, error) {
	switch LoadMode(strings.ToLower(strings.TrimSpace(s))) {
	case "", LoadReplace:
		return LoadReplace, nil
	case LoadAppend:
		return LoadAppend, nil
	default:
		return "", fmt.Errorf("unknown load mode %q (want replace or append)", s)
	}
}

// ConflictPolicy chooses what happens to a row whose key already exists.
type ConflictPolicy string

const (
	// ConflictIgnore keeps the stored row and skips the incoming one.
	ConflictIgnore ConflictPolicy = "ignore"
	// ConflictUpsert overwrites the stored row's non-key columns.
	ConflictUpsert ConflictPolicy = "upsert"
)

// ParseConflictPolicy accepts "ignore", "upsert" or "" (ignore).
func ParseConflictPolicy(s string) (ConflictPolicy, error) {
	switch ConflictPolicy(strings.ToLower(strings.TrimSpace(s))) {
	case "", ConflictIgnore:
		return ConflictIgnore, nil
	case ConflictUpsert:
		return ConflictUpsert, nil
	default:
		return "", fmt.Errorf("unknown conflict policy %q (want ignore or upsert)", s)
	}
}

// Package config defines the survey pipeline configuration file and its
// validation. Files are JSON, or YAML when the extension is .yaml/.yml.
package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"surveyetl/internal/survey"
)

type Pipeline struct {
	Job       string    `json:"job" yaml:"job"`
	Source    Source    `json:"source" yaml:"source"`
	Download  Download  `json:"download" yaml:"download"`
	Transform Transform `json:"transform" yaml:"transform"`
	Output    Output    `json:"output" yaml:"output"`
	Storage   Storage   `json:"storage" yaml:"storage"`
}

// Source selects where raw responses come from.
type Source struct {
	// Kind: "file" | "sheets"
	Kind   string        `json:"kind" yaml:"kind"`
	File   *FileSource   `json:"file,omitempty" yaml:"file,omitempty"`
	Sheets *SheetsSource `json:"sheets,omitempty" yaml:"sheets,omitempty"`
}

type FileSource struct {
	Path string `json:"path" yaml:"path"`
	// Format: "csv" | "xlsx"; empty infers from the extension.
	Format string `json:"format,omitempty" yaml:"format,omitempty"`
	// Encoding of CSV input, e.g. "utf-8" (default) or "windows-1252".
	Encoding string `json:"encoding,omitempty" yaml:"encoding,omitempty"`
	Comma    string `json:"comma,omitempty" yaml:"comma,omitempty"`
	// Sheet names the XLSX worksheet; empty means the first one.
	Sheet string `json:"sheet,omitempty" yaml:"sheet,omitempty"`
}

// SheetsSource reads a Google Sheets document through its public export endpoints.
type SheetsSource struct {
	SheetID string `json:"sheet_id" yaml:"sheet_id"`
	GID     string `json:"gid,omitempty" yaml:"gid,omitempty"`
	// Format: "csv" (default) | "html"
	Format string `json:"format,omitempty" yaml:"format,omitempty"`
	// URL overrides the derived export URL.
	URL            string `json:"url,omitempty" yaml:"url,omitempty"`
	TimeoutSeconds int    `json:"timeout_seconds,omitempty" yaml:"timeout_seconds,omitempty"`
}

type Download struct {
	Path string `json:"path" yaml:"path"`
}

type Transform struct {
	PrincipalTable  string        `json:"principal_table,omitempty" yaml:"principal_table,omitempty"`
	DropColumns     []string      `json:"drop_columns,omitempty" yaml:"drop_columns,omitempty"`
	RequiredColumns []string      `json:"required_columns,omitempty" yaml:"required_columns,omitempty"`
	MultiSelect     []MultiSelect `json:"multi_select,omitempty" yaml:"multi_select,omitempty"`
	ID              IDSpec        `json:"id" yaml:"id"`
	Rename          RenameMap     `json:"rename,omitempty" yaml:"rename,omitempty"`
	// OnCollision: "error" (default) | "warn"
	OnCollision string   `json:"on_collision,omitempty" yaml:"on_collision,omitempty"`
	NullValues  []string `json:"null_values,omitempty" yaml:"null_values,omitempty"`
}

type MultiSelect struct {
	Column     string `json:"column" yaml:"column"`
	Prefix     string `json:"prefix,omitempty" yaml:"prefix,omitempty"`
	Table      string `json:"table,omitempty" yaml:"table,omitempty"`
	Required   bool   `json:"required,omitempty" yaml:"required,omitempty"`
	KeepAnswer bool   `json:"keep_answer,omitempty" yaml:"keep_answer,omitempty"`
}

type IDSpec struct {
	Column string `json:"column,omitempty" yaml:"column,omitempty"`
	// Strategy: "sequential" (default) | "uuid"
	Strategy string `json:"strategy,omitempty" yaml:"strategy,omitempty"`
}

type Output struct {
	Dir string `json:"dir,omitempty" yaml:"dir,omitempty"`
}

type Storage struct {
	// Kind: "postgres" | "sqlite" | "mssql"; empty disables the database load.
	Kind string `json:"kind,omitempty" yaml:"kind,omitempty"`
	DSN  string `json:"dsn,omitempty" yaml:"dsn,omitempty"`
	// Mode: "replace" (default) | "append"
	Mode string `json:"mode,omitempty" yaml:"mode,omitempty"`
	// Conflict: "ignore" (default) | "upsert"
	Conflict  string `json:"conflict,omitempty" yaml:"conflict,omitempty"`
	BatchSize int    `json:"batch_size,omitempty" yaml:"batch_size,omitempty"`
}

// Load reads and decodes a pipeline file. It does not validate it.
func Load(path string) (Pipeline, error) {
	var p Pipeline
	raw, err := os.ReadFile(path)
	if err != nil {
		return p, fmt.Errorf("read config: %w", err)
	}
	if err := Decode(raw, filepath.Ext(path), &p); err != nil {
		return p, fmt.Errorf("decode config %s: %w", path, err)
	}
	return p, nil
}

// Decode parses raw as YAML when ext is .yaml/.yml and as JSON otherwise.
func Decode(raw []byte, ext string, p *Pipeline) error {
	switch strings.ToLower(ext) {
	case ".yaml", ".yml":
		return yaml.Unmarshal(raw, p)
	default:
		return json.NewDecoder(bytes.NewReader(raw)).Decode(p)
	}
}

// ExpandedDSN returns the DSN with $VAR / ${VAR} references resolved.
func (s Storage) ExpandedDSN() string {
	return os.ExpandEnv(s.DSN)
}

// Options converts the transform section into core options.
func (t Transform) Options() (survey.Options, error) {
	gen, err := survey.NewIDGenerator(t.ID.Strategy)
	if err != nil {
		return survey.Options{}, err
	}

	fields := make([]survey.MultiSelectField, len(t.MultiSelect))
	for i, m := range t.MultiSelect {
		fields[i] = survey.MultiSelectField{
			Column:     m.Column,
			Prefix:     m.Prefix,
			Table:      m.Table,
			Required:   m.Required,
			KeepAnswer: m.KeepAnswer,
		}
	}

	return survey.Options{
		PrincipalTable:  t.PrincipalTable,
		IDColumn:        t.ID.Column,
		IDs:             gen,
		DropColumns:     t.DropColumns,
		RequiredColumns: t.RequiredColumns,
		MultiSelect:     fields,
		Rename:          t.Rename.Survey(),
		OnCollision:     survey.CollisionPolicy(t.OnCollision),
		Nulls:           survey.NewNullPolicy(t.NullValues...),
	}, nil
}

package config

import (
	"bytes"
	"encoding/json"
	"fmt"

	"gopkg.in/yaml.v3"

	"surveyetl/internal/survey"
)

// RenamePair is one canonical -> final column name entry.
type RenamePair struct {
	From string
	To   string
}

// RenameMap is written as a JSON object or YAML mapping but decoded in
// document order, so the file reads like a lookup table while staying ordered.
type RenameMap []RenamePair

func (m RenameMap) Survey() survey.RenameMap {
	out := make(survey.RenameMap, len(m))
	for i, p := range m {
		out[i] = survey.Rename{From: p.From, To: p.To}
	}
	return out
}

// UnmarshalJSON decodes {"from": "to", ...} preserving key order.
func (m *RenameMap) UnmarshalJSON(b []byte) error {
	dec := json.NewDecoder(bytes.NewReader(b))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if tok == nil {
		*m = nil
		return nil
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return fmt.Errorf("rename: expected object, got %v", tok)
	}

	var out RenameMap
	for dec.More() {
		kt, err := dec.Token()
		if err != nil {
			return err
		}
		key, ok := kt.(string)
		if !ok {
			return fmt.Errorf("rename: expected string key, got %v", kt)
		}
		var to string
		if err := dec.Decode(&to); err != nil {
			return fmt.Errorf("rename[%q]: %w", key, err)
		}
		out = append(out, RenamePair{From: key, To: to})
	}
	if _, err := dec.Token(); err != nil {
		return err
	}
	*m = out
	return nil
}

// MarshalJSON writes the map back as an object in the same order.
func (m RenameMap) MarshalJSON() ([]byte, error) {
	var b bytes.Buffer
	b.WriteByte('{')
	for i, p := range m {
		if i > 0 {
			b.WriteByte(',')
		}
		k, err := json.Marshal(p.From)
		if err != nil {
			return nil, err
		}
		v, err := json.Marshal(p.To)
		if err != nil {
			return nil, err
		}
		b.Write(k)
		b.WriteByte(':')
		b.Write(v)
	}
	b.WriteByte('}')
	return b.Bytes(), nil
}

// UnmarshalYAML decodes a mapping node preserving key order.
func (m *RenameMap) UnmarshalYAML(n *yaml.Node) error {
	if n.Kind != yaml.MappingNode {
		return fmt.Errorf("rename: line %d: expected mapping", n.Line)
	}
	out := make(RenameMap, 0, len(n.Content)/2)
	for i := 0; i+1 < len(n.Content); i += 2 {
		k, v := n.Content[i], n.Content[i+1]
		if k.Kind != yaml.ScalarNode || v.Kind != yaml.ScalarNode {
			return fmt.Errorf("rename: line %d: expected scalar key and value", k.Line)
		}
		out = append(out, RenamePair{From: k.Value, To: v.Value})
	}
	*m = out
	return nil
}

// MarshalYAML writes the map back as a mapping in the same order.
func (m RenameMap) MarshalYAML() (any, error) {
	n := &yaml.Node{Kind: yaml.MappingNode}
	for _, p := range m {
		n.Content = append(n.Content,
			&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: p.From},
			&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: p.To},
		)
	}
	return n, nil
}

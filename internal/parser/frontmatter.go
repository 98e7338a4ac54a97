package parser

import (
	"bytes"
	"errors"
	"fmt"

	"gopkg.in/yaml.v3"
)

// ErrNotMapping is returned when a metadata block is not a YAML mapping.
var ErrNotMapping = errors.New("parser: frontmatter is not a mapping")

// SetField sets key to value in the metadata block, creating the block when
// the document has none. The body bytes are preserved as-is. The boolean
// reports whether the document changed.
func SetField(data []byte, key string, value any) ([]byte, bool, error) {
	s := split(data)
	m, err := loadMapping(s)
	if err != nil {
		return nil, false, err
	}

	var vn yaml.Node
	if err := vn.Encode(value); err != nil {
		return nil, false, fmt.Errorf("parser: encode %s: %w", key, err)
	}

	if i := keyIndex(m, key); i >= 0 {
		cur := m.Content[i+1]
		if cur.Kind == vn.Kind && cur.Kind == yaml.ScalarNode && cur.Value == vn.Value {
			return data, false, nil
		}
		m.Content[i+1] = &vn
	} else {
		m.Content = append(m.Content, scalar(key), &vn)
	}

	out, err := assemble(m, s)
	if err != nil {
		return nil, false, err
	}
	return out, true, nil
}

// DeleteField removes key from the metadata block.
func DeleteField(data []byte, key string) ([]byte, bool, error) {
	s := split(data)
	if !s.found {
		return data, false, nil
	}
	m, err := loadMapping(s)
	if err != nil {
		return nil, false, err
	}
	i := keyIndex(m, key)
	if i < 0 {
		return data, false, nil
	}
	m.Content = append(m.Content[:i], m.Content[i+2:]...)

	out, err := assemble(m, s)
	if err != nil {
		return nil, false, err
	}
	return out, true, nil
}

// AddTag appends tag to the frontmatter "tags" list. A tag already present
// (with or without a leading '#') leaves the document untouched. A scalar
// tags value is converted to a list.
func AddTag(data []byte, tag string) ([]byte, bool, error) {
	s := split(data)
	m, err := loadMapping(s)
	if err != nil {
		return nil, false, err
	}

	i := keyIndex(m, "tags")
	switch {
	case i < 0:
		seq := &yaml.Node{Kind: yaml.SequenceNode, Tag: "!!seq", Content: []*yaml.Node{scalar(tag)}}
		m.Content = append(m.Content, scalar("tags"), seq)

	case m.Content[i+1].Kind == yaml.SequenceNode:
		seq := m.Content[i+1]
		for _, item := range seq.Content {
			if item.Kind == yaml.ScalarNode && SameTag(item.Value, tag) {
				return data, false, nil
			}
		}
		seq.Content = append(seq.Content, scalar(tag))

	case m.Content[i+1].Kind == yaml.ScalarNode:
		cur := m.Content[i+1]
		if SameTag(cur.Value, tag) {
			return data, false, nil
		}
		items := []*yaml.Node{}
		if cur.Value != "" && cur.Tag != "!!null" {
			items = append(items, scalar(cur.Value))
		}
		items = append(items, scalar(tag))
		m.Content[i+1] = &yaml.Node{Kind: yaml.SequenceNode, Tag: "!!seq", Content: items}

	default:
		return nil, false, fmt.Errorf("parser: tags field has unsupported shape")
	}

	out, err := assemble(m, s)
	if err != nil {
		return nil, false, err
	}
	return out, true, nil
}

func loadMapping(s sections) (*yaml.Node, error) {
	empty := &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
	if !s.found || len(bytes.TrimSpace(s.block)) == 0 {
		return empty, nil
	}
	var doc yaml.Node
	if err := yaml.Unmarshal(s.block, &doc); err != nil {
		return nil, fmt.Errorf("parser: frontmatter: %w", err)
	}
	if doc.Kind == 0 {
		return empty, nil
	}
	if doc.Kind != yaml.DocumentNode || len(doc.Content) == 0 {
		return nil, ErrNotMapping
	}
	root := doc.Content[0]
	if root.Kind == yaml.ScalarNode && root.Tag == "!!null" {
		return empty, nil
	}
	if root.Kind != yaml.MappingNode {
		return nil, ErrNotMapping
	}
	return root, nil
}

// assemble writes the mapping back in front of the untouched remainder.
func assemble(m *yaml.Node, s sections) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString(delim + "\n")
	if len(m.Content) > 0 {
		enc := yaml.NewEncoder(&buf)
		enc.SetIndent(2)
		if err := enc.Encode(m); err != nil {
			return nil, fmt.Errorf("parser: encode frontmatter: %w", err)
		}
		if err := enc.Close(); err != nil {
			return nil, fmt.Errorf("parser: encode frontmatter: %w", err)
		}
	}
	buf.WriteString(delim)

	if s.found {
		buf.Write(s.rest)
	} else {
		buf.WriteByte('\n')
		buf.Write(s.data)
	}
	return buf.Bytes(), nil
}

func keyIndex(m *yaml.Node, key string) int {
	for i := 0; i+1 < len(m.Content); i += 2 {
		if m.Content[i].Value == key {
			return i
		}
	}
	return -1
}

func scalar(v string) *yaml.Node {
	return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: v}
}

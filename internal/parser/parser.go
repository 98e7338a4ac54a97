// Package parser splits Markdown documents into frontmatter and body and
// collects their tags.
package parser

import (
	"bytes"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

const delim = "---"

var tagRe = regexp.MustCompile(`(?:^|\s)#([A-Za-z][A-Za-z0-9_/-]*)`)

// Result holds the output of parsing a Markdown file.
type Result struct {
	Frontmatter map[string]any
	Body        string
	Tags        []string
}

// Parse extracts frontmatter, body, and tags from raw Markdown bytes.
// Invalid YAML yields a nil Frontmatter but the block is still removed from Body.
func Parse(data []byte) (*Result, error) {
	s := split(data)
	body := s.body()

	var fm map[string]any
	if s.found {
		if err := yaml.Unmarshal(s.block, &fm); err != nil {
			fm = nil
		}
	}

	return &Result{
		Frontmatter: fm,
		Body:        body,
		Tags:        extractTags(body, fm),
	}, nil
}

// StripFrontmatter returns data without its leading metadata block.
func StripFrontmatter(data []byte) string {
	return split(data).body()
}

// NormalizeTag returns tag with exactly one leading '#'.
func NormalizeTag(tag string) string {
	tag = strings.TrimSpace(tag)
	if tag == "" {
		return ""
	}
	return "#" + strings.TrimLeft(tag, "#")
}

// SameTag reports whether a and b name the same tag, ignoring the leading '#'.
func SameTag(a, b string) bool {
	return NormalizeTag(a) == NormalizeTag(b)
}

type sections struct {
	found bool
	block []byte
	// rest is everything after the closing delimiter, newline included.
	rest []byte
	data []byte
}

func (s sections) body() string {
	if !s.found {
		return string(s.data)
	}
	return strings.TrimLeft(string(s.rest), "\n\r")
}

// split separates the YAML block (between leading --- delimiters) from the
// rest of the document. Leading blank lines before the opening delimiter
// are tolerated.
func split(data []byte) sections {
	trimmed := bytes.TrimLeft(data, "\n\r")
	if !bytes.HasPrefix(trimmed, []byte(delim)) {
		return sections{data: data}
	}

	rest := trimmed[len(delim):]
	if len(rest) > 0 && rest[0] != '\n' && rest[0] != '\r' {
		// "----" or "---text" is a rule, not a metadata block.
		return sections{data: data}
	}

	idx := bytes.Index(rest, []byte("\n"+delim))
	if idx < 0 {
		return sections{data: data}
	}

	return sections{
		found: true,
		block: rest[:idx],
		rest:  rest[idx+1+len(delim):],
		data:  data,
	}
}

// extractTags collects tags from the frontmatter "tags" field and inline
// #tags in the body, normalized to a leading '#', frontmatter first.
func extractTags(body string, fm map[string]any) []string {
	seen := make(map[string]struct{})
	var out []string
	add := func(raw string) {
		t := NormalizeTag(raw)
		if t == "" || t == "#" {
			return
		}
		if _, dup := seen[t]; dup {
			return
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}

	if fm != nil {
		switch v := fm["tags"].(type) {
		case []any:
			for _, item := range v {
				if s, ok := item.(string); ok {
					add(s)
				}
			}
		case string:
			for _, s := range strings.FieldsFunc(v, func(r rune) bool { return r == ',' || r == ' ' }) {
				add(s)
			}
		}
	}

	for _, m := range tagRe.FindAllStringSubmatch(body, -1) {
		add(m[1])
	}

	return out
}

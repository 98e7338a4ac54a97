// Package render converts Markdown card bodies to the HTML stored in the
// Back field.
package render

import (
	"github.com/gomarkdown/markdown"
	"github.com/gomarkdown/markdown/html"
	"github.com/gomarkdown/markdown/parser"
	"github.com/microcosm-cc/bluemonday"
)

// Markdown renders CommonMark-ish Markdown with gomarkdown. When sanitizing
// is enabled the output passes through bluemonday's UGC policy.
type Markdown struct {
	policy *bluemonday.Policy
}

// NewMarkdown returns a renderer; sanitize enables HTML sanitizing.
func NewMarkdown(sanitize bool) *Markdown {
	m := &Markdown{}
	if sanitize {
		m.policy = bluemonday.UGCPolicy()
	}
	return m
}

// Render converts src to HTML.
func (m *Markdown) Render(src string) (string, error) {
	// Parsers keep state between calls; build one per document.
	p := parser.NewWithExtensions(parser.CommonExtensions | parser.NoEmptyLineBeforeBlock)
	doc := p.Parse([]byte(src))

	renderer := html.NewRenderer(html.RendererOptions{Flags: html.CommonFlags})
	out := markdown.Render(doc, renderer)

	if m.policy != nil {
		out = m.policy.SanitizeBytes(out)
	}
	return string(out), nil
}

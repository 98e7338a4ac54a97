// Package transform turns a vault document into the front/back card pushed
// to the remote service.
package transform

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/starford/cardsync/internal/apperr"
	"github.com/starford/cardsync/internal/deck"
	"github.com/starford/cardsync/internal/media"
	"github.com/starford/cardsync/internal/models"
	"github.com/starford/cardsync/internal/parser"
)

var (
	diagramRef = regexp.MustCompile(`\.excalidraw(\.[A-Za-z0-9]+)?`)
	brackets   = regexp.MustCompile(`\[\[|\]\]`)
)

// Renderer converts the transformed Markdown body to HTML.
type Renderer interface {
	Render(markdown string) (string, error)
}

// Settings controls card construction.
type Settings struct {
	DefaultDeck string
	ExcludeTags []string
	IgnoreTags  []string
	// ExclusionPattern, when set, is removed from the body before rendering.
	ExclusionPattern *regexp.Regexp
	DiagramSupport   bool

	BasePath      string
	AssetFolder   string
	DiagramFolder string
}

// Result is a built card plus the images its Back field references.
type Result struct {
	Card   models.Card
	Images []models.ImageRef
}

// Transformer builds cards. It performs no I/O besides rendering.
type Transformer struct {
	settings Settings
	renderer Renderer
}

// New returns a Transformer.
func New(settings Settings, renderer Renderer) *Transformer {
	return &Transformer{settings: settings, renderer: renderer}
}

// Tags returns the document tags with ignored tags removed.
func (t *Transformer) Tags(doc *models.Document) []string {
	out := make([]string, 0, len(doc.Tags))
	for _, tag := range doc.Tags {
		if !containsTag(t.settings.IgnoreTags, tag) {
			out = append(out, tag)
		}
	}
	return out
}

// Deck resolves the target deck of doc, failing with apperr.ErrExcluded
// when the document carries an exclusion tag.
func (t *Transformer) Deck(doc *models.Document) (string, error) {
	tags := t.Tags(doc)
	for _, tag := range tags {
		if containsTag(t.settings.ExcludeTags, tag) {
			return "", fmt.Errorf("%w: %s", apperr.ErrExcluded, tag)
		}
	}
	return deck.Resolve(tags, t.settings.DefaultDeck), nil
}

// Build produces the card for doc.
func (t *Transformer) Build(doc *models.Document) (*Result, error) {
	group, err := t.Deck(doc)
	if err != nil {
		return nil, err
	}

	body := parser.StripFrontmatter(doc.Raw)

	if t.settings.ExclusionPattern != nil {
		body = t.settings.ExclusionPattern.ReplaceAllString(body, "")
	}

	if t.settings.DiagramSupport {
		body = rewriteDiagramRefs(body)
	}

	images := media.Extract(body, t.settings.BasePath, t.settings.AssetFolder, t.settings.DiagramFolder)
	if len(images) > 0 {
		body = media.RewriteEmbeds(body)
		body = brackets.ReplaceAllString(body, "*")
	}

	back, err := t.renderer.Render(body)
	if err != nil {
		return nil, fmt.Errorf("transform: render %s: %w", doc.Path, err)
	}

	return &Result{
		Card: models.Card{
			Front: doc.Title,
			Back:  back,
			Group: group,
		},
		Images: images,
	}, nil
}

// rewriteDiagramRefs points Excalidraw drawings at their SVG exports.
// References that already name an export (.excalidraw.svg, .png, ...) stay.
func rewriteDiagramRefs(body string) string {
	return diagramRef.ReplaceAllStringFunc(body, func(m string) string {
		ext := strings.TrimPrefix(m, ".excalidraw")
		if ext == "" || strings.EqualFold(ext, ".md") {
			return ".excalidraw.svg"
		}
		return m
	})
}

func containsTag(list []string, tag string) bool {
	for _, item := range list {
		if parser.SameTag(item, tag) {
			return true
		}
	}
	return false
}

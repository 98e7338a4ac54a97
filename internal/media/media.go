// Package media finds images embedded in document bodies, resolves them to
// files in the vault, and uploads them to the remote media store.
package media

import (
	"context"
	"fmt"
	"html"
	"path"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/starford/cardsync/internal/apperr"
	"github.com/starford/cardsync/internal/models"
)

// diagramMarker identifies exports of the Excalidraw plugin.
const diagramMarker = ".excalidraw"

var (
	embedRe = regexp.MustCompile(`(?s)!\[\[(.*?)\]\]`)

	imageExtensions = map[string]bool{
		".png": true, ".jpg": true, ".jpeg": true,
		".gif": true, ".webp": true, ".svg": true,
	}
)

// Store receives a batch of images.
type Store interface {
	StoreMedia(ctx context.Context, refs []models.ImageRef) error
}

// Extract returns one ImageRef per distinct image embed in body, in order of
// first appearance. Non-image embeds are ignored.
func Extract(body, basePath, assetFolder, diagramFolder string) []models.ImageRef {
	var out []models.ImageRef
	seen := make(map[string]struct{})
	for _, m := range embedRe.FindAllStringSubmatch(body, -1) {
		name := target(m[1])
		if !IsImage(name) {
			continue
		}
		if _, dup := seen[name]; dup {
			continue
		}
		seen[name] = struct{}{}
		out = append(out, models.ImageRef{
			Filename:     name,
			ResolvedPath: ResolvePath(name, basePath, assetFolder, diagramFolder),
		})
	}
	return out
}

// ResolvePath joins basePath with the diagram folder for Excalidraw exports
// and with the asset folder for everything else.
func ResolvePath(filename, basePath, assetFolder, diagramFolder string) string {
	if strings.Contains(filename, diagramMarker) {
		return filepath.Join(basePath, diagramFolder, filename)
	}
	return filepath.Join(basePath, assetFolder, filename)
}

// IsImage reports whether name has an image extension.
func IsImage(name string) bool {
	return imageExtensions[strings.ToLower(path.Ext(name))]
}

// RewriteEmbeds replaces image embeds with inline <img> tags. Other embeds
// are left as they are.
func RewriteEmbeds(body string) string {
	return embedRe.ReplaceAllStringFunc(body, func(match string) string {
		name := target(embedRe.FindStringSubmatch(match)[1])
		if !IsImage(name) {
			return match
		}
		return "<img src='" + html.EscapeString(name) + "'>"
	})
}

// Upload sends all refs in a single batch. Nothing is sent for an empty
// list. Any failure is reported as apperr.ErrMediaUpload.
func Upload(ctx context.Context, store Store, refs []models.ImageRef) error {
	if len(refs) == 0 {
		return nil
	}
	if err := store.StoreMedia(ctx, refs); err != nil {
		return fmt.Errorf("%w: %s: %w", apperr.ErrMediaUpload, names(refs), err)
	}
	return nil
}

// target strips the "|alias" or "|size" suffix of an embed.
func target(raw string) string {
	if i := strings.Index(raw, "|"); i >= 0 {
		raw = raw[:i]
	}
	return strings.TrimSpace(raw)
}

func names(refs []models.ImageRef) string {
	out := make([]string, len(refs))
	for i, r := range refs {
		out[i] = r.Filename
	}
	return strings.Join(out, ", ")
}

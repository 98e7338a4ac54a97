// Package vault exposes the Markdown documents of a vault to the sync
// pipeline: enumeration, parsing, and the metadata edits a run performs.
package vault

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"strings"

	"github.com/starford/cardsync/internal/apperr"
	"github.com/starford/cardsync/internal/identity"
	"github.com/starford/cardsync/internal/models"
	"github.com/starford/cardsync/internal/parser"
	"github.com/starford/cardsync/internal/storage"
)

// Vault reads and edits documents through a storage.Provider.
// Every edit writes the file only when its bytes actually change.
type Vault struct {
	store     storage.Provider
	recursive bool
}

// New returns a Vault. When recursive is false, Documents lists only the
// direct children of a folder.
func New(store storage.Provider, recursive bool) *Vault {
	return &Vault{store: store, recursive: recursive}
}

// Root returns the absolute vault directory.
func (v *Vault) Root() string {
	return v.store.Root()
}

// Documents lists the Markdown documents in dir in path order.
func (v *Vault) Documents(_ context.Context, dir string) ([]models.DocumentMeta, error) {
	items, err := v.store.List(dir, v.recursive)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("vault: folder %q: %w", dir, apperr.ErrNotFound)
		}
		return nil, err
	}
	return items, nil
}

// Load reads and parses the document at p.
func (v *Vault) Load(_ context.Context, p string) (*models.Document, error) {
	data, err := v.read(p)
	if err != nil {
		return nil, err
	}
	res, err := parser.Parse(data)
	if err != nil {
		return nil, fmt.Errorf("vault: parse %s: %w", p, err)
	}

	name := path.Base(p)
	doc := &models.Document{
		Path:        p,
		Title:       strings.TrimSuffix(name, path.Ext(name)),
		Raw:         data,
		Body:        res.Body,
		Frontmatter: res.Frontmatter,
		Tags:        res.Tags,
	}
	if id, ok := identity.Extract(string(data)); ok {
		doc.ID = &id
	}
	return doc, nil
}

// SetIdentity stores id in the document's metadata.
func (v *Vault) SetIdentity(_ context.Context, p string, id int64) error {
	_, err := v.rewrite(p, func(data []byte) ([]byte, bool, error) {
		return identity.Embed(data, id)
	})
	return err
}

// ClearIdentity removes the identity from the document's metadata.
func (v *Vault) ClearIdentity(_ context.Context, p string) error {
	_, err := v.rewrite(p, identity.Clear)
	return err
}

// AddTag adds tag to the document's metadata. It reports whether the file
// changed.
func (v *Vault) AddTag(_ context.Context, p, tag string) (bool, error) {
	return v.rewrite(p, func(data []byte) ([]byte, bool, error) {
		return parser.AddTag(data, tag)
	})
}

// AppendLine appends line to the document body unless a line with the same
// text is already present. It reports whether the file changed.
func (v *Vault) AppendLine(_ context.Context, p, line string) (bool, error) {
	line = strings.TrimSpace(line)
	return v.rewrite(p, func(data []byte) ([]byte, bool, error) {
		if hasLine(parser.StripFrontmatter(data), line) {
			return data, false, nil
		}
		out := make([]byte, 0, len(data)+len(line)+2)
		out = append(out, data...)
		if len(out) > 0 && out[len(out)-1] != '\n' {
			out = append(out, '\n')
		}
		out = append(out, line...)
		out = append(out, '\n')
		return out, true, nil
	})
}

func (v *Vault) read(p string) ([]byte, error) {
	data, err := v.store.Read(p)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("vault: %s: %w", p, apperr.ErrNotFound)
		}
		return nil, err
	}
	return data, nil
}

func (v *Vault) rewrite(p string, edit func([]byte) ([]byte, bool, error)) (bool, error) {
	data, err := v.read(p)
	if err != nil {
		return false, err
	}
	out, changed, err := edit(data)
	if err != nil {
		return false, fmt.Errorf("vault: edit %s: %w", p, err)
	}
	if !changed {
		return false, nil
	}
	if err := v.store.Write(p, out); err != nil {
		return false, err
	}
	return true, nil
}

func hasLine(body, line string) bool {
	for _, l := range strings.Split(body, "\n") {
		if strings.TrimSpace(l) == line {
			return true
		}
	}
	return false
}

// Package models defines the domain types for cardsync.
package models

import "time"

// Document is a parsed Markdown file in the vault.
type Document struct {
	Path        string         `json:"path"`
	Title       string         `json:"title"`
	Raw         []byte         `json:"-"`
	Body        string         `json:"body"`
	Frontmatter map[string]any `json:"frontmatter,omitempty"`
	Tags        []string       `json:"tags,omitempty"`
	// ID is the embedded anki-id, nil when the document was never pushed.
	ID *int64 `json:"id,omitempty"`
}

// HasID reports whether the document carries an identity.
func (d *Document) HasID() bool {
	return d.ID != nil
}

// DocumentMeta is a lightweight representation returned by list operations.
type DocumentMeta struct {
	Path      string    `json:"path"`
	Checksum  string    `json:"checksum"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Package storage defines the vault file-system abstraction.
package storage

import "github.com/starford/cardsync/internal/models"

// Provider is the interface for vault file operations.
type Provider interface {
	// Root returns the absolute vault directory.
	Root() string
	// List returns metadata for every .md file under dir (relative to vault
	// root) in lexical path order. Hidden directories are skipped; when
	// recursive is false only direct children of dir are listed.
	List(dir string, recursive bool) ([]models.DocumentMeta, error)
	// Read returns the raw bytes of the file at path (relative to vault root).
	Read(path string) ([]byte, error)
	// Write atomically writes content to path (relative to vault root).
	Write(path string, content []byte) error
}

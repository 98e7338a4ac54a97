// Package deck derives target deck names from document tags and makes sure
// each deck exists remotely once per run.
package deck

import (
	"context"
	"strings"
)

// Resolve returns the deck for a tag list: the first tag without its
// leading '#', hyphens rendered as spaces. Without tags (or when the first
// tag is empty) defaultDeck is returned.
func Resolve(tags []string, defaultDeck string) string {
	if len(tags) == 0 {
		return defaultDeck
	}
	name := strings.TrimSpace(strings.TrimPrefix(tags[0], "#"))
	name = strings.ReplaceAll(name, "-", " ")
	if name == "" {
		return defaultDeck
	}
	return name
}

// Creator creates a deck on the remote service.
type Creator interface {
	CreateGroup(ctx context.Context, name string) error
}

// Registry tracks the decks already confirmed during one run. It is not
// safe for concurrent use; a run owns its registry.
type Registry struct {
	creator Creator
	known   map[string]struct{}
}

// NewRegistry returns an empty registry backed by creator.
func NewRegistry(creator Creator) *Registry {
	return &Registry{creator: creator, known: make(map[string]struct{})}
}

// Ensure creates name remotely unless it was already confirmed this run.
// A failed create is not remembered.
func (r *Registry) Ensure(ctx context.Context, name string) error {
	if r.Known(name) {
		return nil
	}
	if err := r.creator.CreateGroup(ctx, name); err != nil {
		return err
	}
	r.known[name] = struct{}{}
	return nil
}

// Known reports whether name was confirmed this run.
func (r *Registry) Known(name string) bool {
	_, ok := r.known[name]
	return ok
}

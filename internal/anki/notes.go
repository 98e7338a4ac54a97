package anki

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/starford/cardsync/internal/apperr"
	"github.com/starford/cardsync/internal/models"
)

type noteFields struct {
	Front string `json:"Front"`
	Back  string `json:"Back"`
}

type newNote struct {
	DeckName  string      `json:"deckName"`
	ModelName string      `json:"modelName"`
	Fields    noteFields  `json:"fields"`
	Options   noteOptions `json:"options"`
}

type noteOptions struct {
	AllowDuplicate bool `json:"allowDuplicate"`
}

type noteUpdate struct {
	ID     int64      `json:"id"`
	Fields noteFields `json:"fields"`
}

// CreateRecord adds a note for card and returns its id.
func (c *Client) CreateRecord(ctx context.Context, card models.Card) (int64, error) {
	params := map[string]any{
		"note": newNote{
			DeckName:  card.Group,
			ModelName: c.model,
			Fields:    noteFields{Front: card.Front, Back: card.Back},
		},
	}
	var id *int64
	if err := c.invoke(ctx, "addNote", params, &id); err != nil {
		return 0, err
	}
	if id == nil || *id <= 0 {
		return 0, fmt.Errorf("anki: addNote: %w: no note id returned", apperr.ErrRemoteRejected)
	}
	return *id, nil
}

// UpdateRecord replaces the fields of note id. The note's deck is left as is.
func (c *Client) UpdateRecord(ctx context.Context, id int64, card models.Card) error {
	params := map[string]any{
		"note": noteUpdate{
			ID:     id,
			Fields: noteFields{Front: card.Front, Back: card.Back},
		},
	}
	return c.invoke(ctx, "updateNote", params, nil)
}

// DeleteRecords removes the given notes.
func (c *Client) DeleteRecords(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	return c.invoke(ctx, "deleteNotes", map[string]any{"notes": ids}, nil)
}

// CreateGroup creates a deck. Creating an existing deck is not an error.
func (c *Client) CreateGroup(ctx context.Context, name string) error {
	return c.invoke(ctx, "createDeck", map[string]any{"deck": name}, nil)
}

// Ping returns the AnkiConnect protocol version.
func (c *Client) Ping(ctx context.Context) (int, error) {
	var v int
	if err := c.invoke(ctx, "version", nil, &v); err != nil {
		return 0, err
	}
	return v, nil
}

// QueryRecords returns the notes of a deck, or the notes with the given ids
// when q.IDs is set. Entries that fail validation are dropped and counted.
func (c *Client) QueryRecords(ctx context.Context, q models.RecordQuery) (models.RecordSet, error) {
	var ids []int64
	if len(q.IDs) > 0 {
		ids = q.IDs
	} else {
		if err := c.invoke(ctx, "findNotes", map[string]any{"query": DeckQuery(q.Group)}, &ids); err != nil {
			return models.RecordSet{}, err
		}
	}
	if len(ids) == 0 {
		return models.RecordSet{}, nil
	}

	var infos []noteInfo
	if err := c.invoke(ctx, "notesInfo", map[string]any{"notes": ids}, &infos); err != nil {
		return models.RecordSet{}, err
	}

	var set models.RecordSet
	for i, info := range infos {
		if info.missing() {
			continue
		}
		if err := info.Validate(); err != nil {
			set.Quarantined++
			c.logger.Warn("anki: quarantined malformed note",
				slog.Int("index", i),
				slog.Int64("note_id", info.NoteID),
				slog.String("error", fmt.Errorf("%w: %w", apperr.ErrMalformedRecord, err).Error()))
			continue
		}
		set.Records = append(set.Records, info.record(q.Group))
	}
	return set, nil
}

// DeckQuery builds the search expression selecting every note in deck.
func DeckQuery(deck string) string {
	var b strings.Builder
	for _, r := range deck {
		switch r {
		case '\\', '"', '*', '_':
			b.WriteRune('\\')
		}
		b.WriteRune(r)
	}
	return `deck:"` + b.String() + `"`
}

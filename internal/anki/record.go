package anki

import (
	"context"
	"errors"
	"fmt"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/cardsync/internal/apperr"
	"github.com/starford/cardsync/internal/models"
)

type fieldValue struct {
	Value string `json:"value"`
	Order int    `json:"order"`
}

// noteInfo is one entry of a notesInfo result.
type noteInfo struct {
	NoteID    int64                 `json:"noteId"`
	ModelName string                `json:"modelName"`
	Tags      []string              `json:"tags"`
	Fields    map[string]fieldValue `json:"fields"`
}

// Validate checks the entry carries an id and both card fields.
func (n noteInfo) Validate() error {
	return validation.ValidateStruct(&n,
		validation.Field(&n.NoteID, validation.Required, validation.Min(int64(1))),
		validation.Field(&n.Fields, validation.Required, validation.Map(
			validation.Key("Front"),
			validation.Key("Back"),
		).AllowExtraKeys()),
	)
}

// missing reports the empty object AnkiConnect returns for unknown ids.
func (n noteInfo) missing() bool {
	return n.NoteID == 0 && len(n.Fields) == 0 && len(n.Tags) == 0
}

func (n noteInfo) record(group string) models.Record {
	tags := n.Tags
	if tags == nil {
		tags = []string{}
	}
	return models.Record{
		ID:    n.NoteID,
		Group: group,
		Fields: models.Fields{
			Front: n.Fields["Front"].Value,
			Back:  n.Fields["Back"].Value,
		},
		Tags: tags,
	}
}

type mediaAction struct {
	Action  string         `json:"action"`
	Version int            `json:"version"`
	Params  map[string]any `json:"params"`
}

type multiResult struct {
	Result any     `json:"result"`
	Error  *string `json:"error"`
}

// StoreMedia uploads every ref in one multi call. AnkiConnect reads the
// files from disk itself, so only paths cross the wire.
func (c *Client) StoreMedia(ctx context.Context, refs []models.ImageRef) error {
	if len(refs) == 0 {
		return nil
	}
	actions := make([]mediaAction, len(refs))
	for i, ref := range refs {
		actions[i] = mediaAction{
			Action:  "storeMediaFile",
			Version: c.version,
			Params: map[string]any{
				"filename": ref.Filename,
				"path":     ref.ResolvedPath,
			},
		}
	}

	var results []multiResult
	if err := c.invoke(ctx, "multi", map[string]any{"actions": actions}, &results); err != nil {
		return err
	}

	var errs []error
	for i, r := range results {
		if r.Error != nil && i < len(refs) {
			errs = append(errs, fmt.Errorf("%s: %s", refs[i].Filename, *r.Error))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("anki: storeMediaFile: %w: %w", apperr.ErrRemoteRejected, errors.Join(errs...))
	}
	return nil
}

package reconcile

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/starford/cardsync/internal/apperr"
	"github.com/starford/cardsync/internal/models"
)

func TestDecide(t *testing.T) {
	id := int64(7)
	withID := &models.Document{Path: "a.md", ID: &id}
	noID := &models.Document{Path: "b.md"}
	rec := &models.Record{ID: 7}

	cases := []struct {
		name   string
		doc    *models.Document
		remote *models.Record
		want   Decision
	}{
		{"no identity", noID, nil, DecisionCreate},
		{"no identity ignores remote", noID, rec, DecisionCreate},
		{"identity present remotely", withID, rec, DecisionUpdate},
		{"identity missing remotely", withID, nil, DecisionAnnotateRemoved},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Decide(tc.doc, tc.remote); got != tc.want {
				t.Errorf("Decide = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestExtractRevisionReason(t *testing.T) {
	cases := map[string]string{
		"marked: wrong date;":                 "wrong date",
		"<p>answer</p>marked:typo in title;":  "typo in title",
		"marked: first; and later marked: x;": "first",
		"marked: spans\nlines;":               "spans\nlines",
		"marked: no terminator":               "",
		"nothing to see":                      "",
		"":                                    "",
	}
	for in, want := range cases {
		if got := ExtractRevisionReason(in); got != want {
			t.Errorf("ExtractRevisionReason(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestGuard_InProcess(t *testing.T) {
	g := NewGuard("")
	release, err := g.Acquire()
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if !g.Running() {
		t.Error("Running() = false while held")
	}
	if _, err := g.Acquire(); !errors.Is(err, apperr.ErrRunInProgress) {
		t.Errorf("second Acquire err = %v", err)
	}

	release()
	release() // extra calls are harmless
	if g.Running() {
		t.Error("Running() = true after release")
	}
	again, err := g.Acquire()
	if err != nil {
		t.Fatalf("Acquire after release: %v", err)
	}
	again()
}

func TestGuard_LockFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".cardsync.lock")
	a := NewGuard(path)
	b := NewGuard(path)

	release, err := a.Acquire()
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if _, err := b.Acquire(); !errors.Is(err, apperr.ErrRunInProgress) {
		t.Errorf("other guard err = %v, want ErrRunInProgress", err)
	}
	release()

	releaseB, err := b.Acquire()
	if err != nil {
		t.Fatalf("Acquire after release: %v", err)
	}
	releaseB()
}

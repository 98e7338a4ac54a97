package vault

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/starford/cardsync/internal/apperr"
	"github.com/starford/cardsync/internal/testutil"
)

func TestLoad(t *testing.T) {
	dir, store := testutil.TestVault(t)
	testutil.WriteDoc(t, dir, "bio/Mitosis.md", "---\nanki-id: 1700000000001\ntags: [cell-biology]\n---\nProphase #extra\n")
	v := New(store, true)

	doc, err := v.Load(context.Background(), "bio/Mitosis.md")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if doc.Title != "Mitosis" {
		t.Errorf("title = %q", doc.Title)
	}
	if !doc.HasID() || *doc.ID != 1700000000001 {
		t.Errorf("id = %v", doc.ID)
	}
	if strings.Join(doc.Tags, ",") != "#cell-biology,#extra" {
		t.Errorf("tags = %v", doc.Tags)
	}
	if doc.Body != "Prophase #extra\n" {
		t.Errorf("body = %q", doc.Body)
	}
}

func TestLoad_NotFound(t *testing.T) {
	_, store := testutil.TestVault(t)
	v := New(store, true)
	if _, err := v.Load(context.Background(), "missing.md"); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestDocuments_MissingFolder(t *testing.T) {
	_, store := testutil.TestVault(t)
	v := New(store, true)
	if _, err := v.Documents(context.Background(), "nowhere"); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestSetAndClearIdentity(t *testing.T) {
	dir, store := testutil.TestVault(t)
	testutil.WriteDoc(t, dir, "a.md", "Body\n")
	v := New(store, true)
	ctx := context.Background()

	if err := v.SetIdentity(ctx, "a.md", 42); err != nil {
		t.Fatalf("SetIdentity: %v", err)
	}
	if got := testutil.ReadDoc(t, dir, "a.md"); got != "---\nanki-id: 42\n---\nBody\n" {
		t.Errorf("content = %q", got)
	}

	if err := v.ClearIdentity(ctx, "a.md"); err != nil {
		t.Fatalf("ClearIdentity: %v", err)
	}
	doc, err := v.Load(ctx, "a.md")
	if err != nil {
		t.Fatal(err)
	}
	if doc.HasID() {
		t.Errorf("identity still present: %v", *doc.ID)
	}
	if doc.Body != "Body\n" {
		t.Errorf("body = %q", doc.Body)
	}
}

func TestAddTag_Idempotent(t *testing.T) {
	dir, store := testutil.TestVault(t)
	testutil.WriteDoc(t, dir, "a.md", "---\ntags: [x]\n---\nBody")
	v := New(store, true)
	ctx := context.Background()

	changed, err := v.AddTag(ctx, "a.md", "marked")
	if err != nil || !changed {
		t.Fatalf("first AddTag: changed=%v err=%v", changed, err)
	}
	before := testutil.ReadDoc(t, dir, "a.md")

	changed, err = v.AddTag(ctx, "a.md", "marked")
	if err != nil || changed {
		t.Fatalf("second AddTag: changed=%v err=%v", changed, err)
	}
	if testutil.ReadDoc(t, dir, "a.md") != before {
		t.Error("file rewritten on no-op")
	}
}

func TestAppendLine_Idempotent(t *testing.T) {
	dir, store := testutil.TestVault(t)
	testutil.WriteDoc(t, dir, "a.md", "---\ntags: [x]\n---\nBody")
	v := New(store, true)
	ctx := context.Background()

	changed, err := v.AppendLine(ctx, "a.md", "marked: wrong date")
	if err != nil || !changed {
		t.Fatalf("first AppendLine: changed=%v err=%v", changed, err)
	}
	if got := testutil.ReadDoc(t, dir, "a.md"); got != "---\ntags: [x]\n---\nBody\nmarked: wrong date\n" {
		t.Errorf("content = %q", got)
	}

	changed, err = v.AppendLine(ctx, "a.md", "marked: wrong date")
	if err != nil || changed {
		t.Fatalf("second AppendLine: changed=%v err=%v", changed, err)
	}
}

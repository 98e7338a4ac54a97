package storage

import (
	"os"
	"path/filepath"
	"testing"
)

func tempVault(t *testing.T) *FS {
	t.Helper()
	dir := t.TempDir()
	fs, err := NewFS(dir)
	if err != nil {
		t.Fatalf("NewFS: %v", err)
	}
	return fs
}

func TestWriteAndRead(t *testing.T) {
	s := tempVault(t)
	content := []byte("# Hello\nWorld\n")
	if err := s.Write("note.md", content); err != nil {
		t.Fatalf("Write: %v", err)
	}
	got, err := s.Read("note.md")
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if string(got) != string(content) {
		t.Errorf("content mismatch: got %q", got)
	}
}

func TestWriteCreatesSubdirs(t *testing.T) {
	s := tempVault(t)
	if err := s.Write("a/b/c.md", []byte("deep")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	got, err := s.Read("a/b/c.md")
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if string(got) != "deep" {
		t.Errorf("content = %q", got)
	}
}

func TestWritePreservesMode(t *testing.T) {
	s := tempVault(t)
	abs := filepath.Join(s.Root(), "mode.md")
	if err := os.WriteFile(abs, []byte("x"), 0o600); err != nil {
		t.Fatal(err)
	}
	if err := s.Write("mode.md", []byte("y")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		t.Fatal(err)
	}
	if info.Mode().Perm() != 0o600 {
		t.Errorf("mode = %v, want 0600", info.Mode().Perm())
	}
}

func TestList(t *testing.T) {
	s := tempVault(t)
	_ = s.Write("b.md", []byte("b"))
	_ = s.Write("a.md", []byte("a"))
	_ = s.Write("sub/c.md", []byte("c"))
	_ = s.Write(".obsidian/workspace.md", []byte("hidden"))
	_ = s.Write("readme.txt", []byte("not md"))

	items, err := s.List("", true)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	want := []string{"a.md", "b.md", "sub/c.md"}
	if len(items) != len(want) {
		t.Fatalf("items = %+v, want %v", items, want)
	}
	for i, w := range want {
		if items[i].Path != w {
			t.Errorf("items[%d] = %q, want %q", i, items[i].Path, w)
		}
		if items[i].Checksum == "" {
			t.Errorf("items[%d] has no checksum", i)
		}
	}
}

func TestList_NonRecursive(t *testing.T) {
	s := tempVault(t)
	_ = s.Write("cards/a.md", []byte("a"))
	_ = s.Write("cards/nested/b.md", []byte("b"))

	items, err := s.List("cards", false)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(items) != 1 || items[0].Path != "cards/a.md" {
		t.Errorf("items = %+v", items)
	}
}

func TestList_MissingDir(t *testing.T) {
	s := tempVault(t)
	if _, err := s.List("nope", true); err == nil {
		t.Error("expected error for missing folder")
	}
}

func TestTraversalBlocked(t *testing.T) {
	s := tempVault(t)

	cases := []string{
		"../../etc/passwd",
		"../outside.md",
		"/etc/shadow",
	}
	for _, p := range cases {
		if _, err := s.Read(p); err == nil {
			t.Errorf("expected error for path %q", p)
		}
		if err := s.Write(p, []byte("x")); err == nil {
			t.Errorf("expected error for write to %q", p)
		}
	}
	if _, err := s.List("..", true); err == nil {
		t.Error("expected error listing outside the vault")
	}
}

func TestAtomicWriteNoCorruption(t *testing.T) {
	s := tempVault(t)
	original := []byte("original content")
	_ = s.Write("atomic.md", original)

	updated := []byte("updated content")
	if err := s.Write("atomic.md", updated); err != nil {
		t.Fatalf("Write: %v", err)
	}
	got, _ := s.Read("atomic.md")
	if string(got) != string(updated) {
		t.Errorf("expected updated content, got %q", got)
	}

	// Confirm no leftover temp files.
	matches, _ := filepath.Glob(filepath.Join(s.root, tmpPattern))
	if len(matches) != 0 {
		t.Errorf("leftover temp files: %v", matches)
	}
}

func TestNewFS_NonExistentDir(t *testing.T) {
	_, err := NewFS(filepath.Join(t.TempDir(), "does-not-exist"))
	if err == nil {
		t.Error("expected error for non-existent dir")
	}
}

func TestNewFS_FileNotDir(t *testing.T) {
	f, _ := os.CreateTemp(t.TempDir(), "cardsync-test-*")
	_ = f.Close()
	_, err := NewFS(f.Name())
	if err == nil {
		t.Error("expected error when root is a file")
	}
}

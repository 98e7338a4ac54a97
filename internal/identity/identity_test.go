package identity

import (
	"math"
	"strconv"
	"strings"
	"testing"

	"pgregory.net/rapid"
)

func TestExtract(t *testing.T) {
	cases := []struct {
		in   string
		want int64
		ok   bool
	}{
		{"---\nanki-id: 1496198395707\n---\nbody", 1496198395707, true},
		{"anki-id:42", 42, true},
		{"anki-id: \"42\"", 42, true},
		{"text before\nanki-id: 7 and anki-id: 8", 7, true},
		{"anki-id: none", 0, false},
		{"no identity here", 0, false},
		{"anki-id: 99999999999999999999999", 0, false},
		{"", 0, false},
	}
	for _, tc := range cases {
		got, ok := Extract(tc.in)
		if ok != tc.ok || got != tc.want {
			t.Errorf("Extract(%q) = %d, %v; want %d, %v", tc.in, got, ok, tc.want, tc.ok)
		}
	}
}

func TestExtract_AbsentProperty(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		text := rapid.StringMatching(`[a-zA-Z0-9 :\n#\[\]!]*`).Draw(rt, "text")
		if _, ok := Extract(text); ok {
			rt.Fatalf("found identity in %q", text)
		}
	})
}

func TestExtract_AnyOffsetProperty(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		prefix := rapid.StringMatching(`[a-z \n]*`).Draw(rt, "prefix")
		suffix := rapid.StringMatching(`[a-z \n]*`).Draw(rt, "suffix")
		id := rapid.Int64Range(0, math.MaxInt64).Draw(rt, "id")

		text := prefix + "anki-id: " + formatInt(id) + suffix
		got, ok := Extract(text)
		if !ok || got != id {
			rt.Fatalf("Extract(%q) = %d, %v; want %d", text, got, ok, id)
		}
	})
}

func TestEmbedExtract_RoundTripProperty(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		id := rapid.Int64Range(1, math.MaxInt64).Draw(rt, "id")
		body := rapid.StringMatching(`[a-z ]{0,40}`).Draw(rt, "body")
		withBlock := rapid.Bool().Draw(rt, "withBlock")

		raw := []byte(body)
		if withBlock {
			raw = []byte("---\ntags:\n  - biology\n---\n" + body)
		}
		out, changed, err := Embed(raw, id)
		if err != nil {
			rt.Fatalf("Embed: %v", err)
		}
		if !changed {
			rt.Fatal("Embed reported no change")
		}
		got, ok := Extract(string(out))
		if !ok || got != id {
			rt.Fatalf("round trip = %d, %v; want %d (doc %q)", got, ok, id, out)
		}
	})
}

func TestClear(t *testing.T) {
	raw := []byte("---\nanki-id: 5\ntags:\n  - a\n---\nbody")
	out, changed, err := Clear(raw)
	if err != nil {
		t.Fatalf("Clear: %v", err)
	}
	if !changed {
		t.Fatal("expected change")
	}
	if _, ok := Extract(string(out)); ok {
		t.Errorf("identity still present: %q", out)
	}
	if !strings.HasSuffix(string(out), "\nbody") {
		t.Errorf("body lost: %q", out)
	}
}

func formatInt(v int64) string {
	return strconv.FormatInt(v, 10)
}

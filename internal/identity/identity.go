// Package identity reads and writes the anki-id that links a document to
// its remote note.
package identity

import (
	"regexp"
	"strconv"

	"github.com/starford/cardsync/internal/parser"
)

// Field is the frontmatter key holding the identity.
const Field = "anki-id"

var idRe = regexp.MustCompile(`anki-id:[ \t]*["']?(\d+)`)

// Extract returns the first identity declared anywhere in text.
// Absent, malformed, or out-of-range values report false.
func Extract(text string) (int64, bool) {
	m := idRe.FindStringSubmatch(text)
	if m == nil {
		return 0, false
	}
	id, err := strconv.ParseInt(m[1], 10, 64)
	if err != nil {
		return 0, false
	}
	return id, true
}

// Embed returns raw with the identity field set to id.
func Embed(raw []byte, id int64) ([]byte, bool, error) {
	return parser.SetField(raw, Field, id)
}

// Clear returns raw without the identity field.
func Clear(raw []byte) ([]byte, bool, error) {
	return parser.DeleteField(raw, Field)
}

// Package checksum computes content digests used for change detection.
package checksum

import (
	"crypto/sha256"
	"encoding/hex"

	"github.com/starford/cardsync/internal/models"
)

// Sum returns the hex-encoded SHA-256 digest of data.
func Sum(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}

// Card returns the digest of everything pushed for a card. Fields are
// NUL-separated so shifting text between them changes the sum.
func Card(c models.Card) string {
	h := sha256.New()
	h.Write([]byte(c.Group))
	h.Write([]byte{0})
	h.Write([]byte(c.Front))
	h.Write([]byte{0})
	h.Write([]byte(c.Back))
	return hex.EncodeToString(h.Sum(nil))
}

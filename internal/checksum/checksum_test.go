package checksum

import (
	"testing"

	"github.com/starford/cardsync/internal/models"
)

func TestSum(t *testing.T) {
	// sha256("") is well known.
	if got := Sum(nil); got != "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855" {
		t.Errorf("Sum(nil) = %s", got)
	}
}

func TestCard_FieldBoundaries(t *testing.T) {
	a := Card(models.Card{Front: "ab", Back: "c", Group: "g"})
	b := Card(models.Card{Front: "a", Back: "bc", Group: "g"})
	if a == b {
		t.Error("moving text between fields must change the checksum")
	}
	if a != Card(models.Card{Front: "ab", Back: "c", Group: "g"}) {
		t.Error("checksum is not deterministic")
	}
}

package firestore

import (
	"crypto/rand"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
)

// newULID returns a lexicographically sortable document id. ULIDs keep
// Firestore document ids time-ordered, which the list cursors rely on.
func newULID() string {
	id := ulid.MustNew(ulid.Timestamp(time.Now().UTC()), rand.Reader)
	return strings.ToLower(id.String())
}

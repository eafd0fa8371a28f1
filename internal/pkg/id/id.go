package id

import (
	"crypto/rand"

	"github.com/oklog/ulid/v2"
)

// New generates a new ULID string. ULIDs are lexicographically sortable
// by creation time; they serve as account ids, record ETags and lease holder tokens.
func New() string {
	return ulid.MustNew(ulid.Now(), rand.Reader).String()
}

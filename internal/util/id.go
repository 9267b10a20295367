package util

import (
	"crypto/rand"
	"encoding/hex"
	"strings"

	"github.com/oklog/ulid/v2"
)

// NewID returns a random hex identifier, optionally prefixed.
func NewID(prefix string) string {
	bytes := make([]byte, 16)
	_, _ = rand.Read(bytes)
	if prefix == "" {
		return hex.EncodeToString(bytes)
	}
	return prefix + "_" + hex.EncodeToString(bytes)
}

// NewSortableID returns a lowercase ULID. IDs minted later in the same
// process sort after earlier ones.
func NewSortableID() string {
	return strings.ToLower(ulid.Make().String())
}

package store

import "time"

// Note is a creator-owned record. Text and owner never change after insert.
type Note struct {
	ID         string
	Text       string
	OwnerID    string
	OwnerName  string
	OwnerColor string
	// CreatedAt is stamped by the store clock; nil while pending.
	CreatedAt *time.Time
}

// NewNote carries the caller-supplied fields of a note. ID and CreatedAt are
// always assigned by the store.
type NewNote struct {
	Text       string
	OwnerID    string
	OwnerName  string
	OwnerColor string
}

// Package wire holds the JSON shapes exchanged over HTTP and the WebSocket
// sync channel.
package wire

import (
	"time"

	"noteboard/api/internal/channel"
	"noteboard/api/internal/identity"
	"noteboard/api/internal/store"
)

const (
	TypeHello    = "hello"
	TypeSnapshot = "snapshot"
	TypeError    = "error"
	TypeCreate   = "create"
	TypeDelete   = "delete"
)

// Note is a note as clients see it. Timestamp is Unix milliseconds, or nil
// while the server has not stamped it yet.
type Note struct {
	ID        string `json:"id"`
	Text      string `json:"text"`
	UserID    string `json:"userId"`
	UserName  string `json:"userName"`
	Color     string `json:"color"`
	Timestamp *int64 `json:"timestamp"`
}

func FromNote(note store.Note) Note {
	out := Note{
		ID:       note.ID,
		Text:     note.Text,
		UserID:   note.OwnerID,
		UserName: note.OwnerName,
		Color:    note.OwnerColor,
	}
	if note.CreatedAt != nil {
		ms := note.CreatedAt.UnixMilli()
		out.Timestamp = &ms
	}
	return out
}

func (n Note) ToNote() store.Note {
	out := store.Note{
		ID:         n.ID,
		Text:       n.Text,
		OwnerID:    n.UserID,
		OwnerName:  n.UserName,
		OwnerColor: n.Color,
	}
	if n.Timestamp != nil {
		ts := time.UnixMilli(*n.Timestamp).UTC()
		out.CreatedAt = &ts
	}
	return out
}

func FromNotes(notes []store.Note) []Note {
	out := make([]Note, 0, len(notes))
	for _, note := range notes {
		out = append(out, FromNote(note))
	}
	return out
}

type HelloFrame struct {
	Type     string            `json:"type"`
	Identity identity.Identity `json:"identity"`
	Token    string            `json:"token"`
}

type SnapshotFrame struct {
	Type    string `json:"type"`
	Version uint64 `json:"version"`
	Count   int    `json:"count"`
	Notes   []Note `json:"notes"`
}

func NewSnapshotFrame(snap channel.Snapshot) SnapshotFrame {
	return SnapshotFrame{
		Type:    TypeSnapshot,
		Version: snap.Version,
		Count:   len(snap.Notes),
		Notes:   FromNotes(snap.Notes),
	}
}

// Snapshot converts the frame back into the hub's representation.
func (f SnapshotFrame) Snapshot() channel.Snapshot {
	notes := make([]store.Note, 0, len(f.Notes))
	for _, note := range f.Notes {
		notes = append(notes, note.ToNote())
	}
	return channel.Snapshot{Version: f.Version, Notes: notes}
}

type ErrorFrame struct {
	Type    string `json:"type"`
	Code    string `json:"code"`
	Message string `json:"error"`
	Ref     string `json:"ref,omitempty"`
}

// CommandFrame is anything a client sends. Only the fields relevant to Type
// are read.
type CommandFrame struct {
	Type   string `json:"type"`
	Text   string `json:"text,omitempty"`
	NoteID string `json:"noteId,omitempty"`
	Ref    string `json:"ref,omitempty"`
}

// Envelope is used to peek at the type of an incoming frame.
type Envelope struct {
	Type string `json:"type"`
}

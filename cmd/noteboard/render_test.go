package main

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"noteboard/api/internal/channel"
	"noteboard/api/internal/store"
)

func TestRenderMarksOwnNotesAndCounts(t *testing.T) {
	created := time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC)
	snap := channel.Snapshot{Version: 4, Notes: []store.Note{
		{ID: "n2", Text: "Walk the dog", OwnerID: "me", OwnerName: "User 1", CreatedAt: &created},
		{ID: "n1", Text: "Buy milk", OwnerID: "you", OwnerName: "User 2"},
	}}

	var out bytes.Buffer
	render(&out, snap, "me")
	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	if len(lines) != 4 {
		t.Fatalf("expected 4 lines, got %d:\n%s", len(lines), out.String())
	}
	if !strings.HasPrefix(lines[1], "* n2") {
		t.Fatalf("own note not marked: %q", lines[1])
	}
	if !strings.HasPrefix(lines[2], "  n1") || !strings.Contains(lines[2], "pending") {
		t.Fatalf("unexpected line for foreign pending note: %q", lines[2])
	}
	if lines[3] != "Total notes: 2" {
		t.Fatalf("footer = %q", lines[3])
	}
}

func TestContainsNote(t *testing.T) {
	snap := channel.Snapshot{Notes: []store.Note{{ID: "a"}}}
	if !containsNote(snap, "a") || containsNote(snap, "b") {
		t.Fatal("containsNote mismatch")
	}
}

func TestNoteMatcherIgnoresNotesAlreadyOnBoard(t *testing.T) {
	before := channel.Snapshot{Version: 3, Notes: []store.Note{
		{ID: "old", Text: "Buy milk", OwnerID: "me"},
	}}
	match := newNoteMatcher(before, "me", "Buy milk")

	if id, ok := match(before); ok {
		t.Fatalf("matched pre-existing note %q", id)
	}
	unrelated := channel.Snapshot{Version: 4, Notes: []store.Note{
		{ID: "other", Text: "Buy milk", OwnerID: "you"},
		{ID: "old", Text: "Buy milk", OwnerID: "me"},
	}}
	if id, ok := match(unrelated); ok {
		t.Fatalf("matched someone else's note %q", id)
	}
	after := channel.Snapshot{Version: 5, Notes: []store.Note{
		{ID: "new", Text: "Buy milk", OwnerID: "me"},
		{ID: "other", Text: "Buy milk", OwnerID: "you"},
		{ID: "old", Text: "Buy milk", OwnerID: "me"},
	}}
	id, ok := match(after)
	if !ok || id != "new" {
		t.Fatalf("match = %q, %v; want new", id, ok)
	}
}

package board

import (
	"sort"
	"time"

	"noteboard/api/internal/store"
)

// Order returns notes newest first by CreatedAt. A note without a timestamp
// counts as created at now. Equal timestamps keep their input order.
func Order(notes []store.Note, now time.Time) []store.Note {
	ordered := make([]store.Note, len(notes))
	copy(ordered, notes)
	sort.SliceStable(ordered, func(i, j int) bool {
		return sortKey(ordered[i], now).After(sortKey(ordered[j], now))
	})
	return ordered
}

func sortKey(note store.Note, now time.Time) time.Time {
	if note.CreatedAt == nil {
		return now
	}
	return *note.CreatedAt
}

package store

import (
	"context"
	"database/sql"
	"sync"
	"time"

	"noteboard/api/internal/util"
)

// MemoryStore keeps the note collection in process. It is the default
// backend when no DATABASE_URL is configured.
type MemoryStore struct {
	mu    sync.RWMutex
	notes map[string]Note
	order []string
	now   func() time.Time
	last  time.Time
}

func NewMemoryStore() *MemoryStore {
	return NewMemoryStoreWithClock(time.Now)
}

// NewMemoryStoreWithClock uses now as the store clock. Timestamps handed out
// never go backwards even if now does.
func NewMemoryStoreWithClock(now func() time.Time) *MemoryStore {
	return &MemoryStore{
		notes: make(map[string]Note),
		now:   now,
	}
}

func (s *MemoryStore) InsertNote(_ context.Context, input NewNote) (Note, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	createdAt := s.stamp()
	note := Note{
		ID:         util.NewSortableID(),
		Text:       input.Text,
		OwnerID:    input.OwnerID,
		OwnerName:  input.OwnerName,
		OwnerColor: input.OwnerColor,
		CreatedAt:  &createdAt,
	}
	s.notes[note.ID] = note
	s.order = append(s.order, note.ID)
	return note, nil
}

func (s *MemoryStore) GetNote(_ context.Context, noteID string) (Note, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	note, ok := s.notes[noteID]
	if !ok {
		return Note{}, sql.ErrNoRows
	}
	return note, nil
}

// DeleteNoteOwnedBy removes the note only while it is still owned by
// ownerID. It reports whether a row was removed.
func (s *MemoryStore) DeleteNoteOwnedBy(_ context.Context, noteID, ownerID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	note, ok := s.notes[noteID]
	if !ok || note.OwnerID != ownerID {
		return false, nil
	}
	delete(s.notes, noteID)
	for i, id := range s.order {
		if id == noteID {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return true, nil
}

// ListNotes returns every note in insertion order.
func (s *MemoryStore) ListNotes(context.Context) ([]Note, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	items := make([]Note, 0, len(s.order))
	for _, id := range s.order {
		items = append(items, s.notes[id])
	}
	return items, nil
}

func (s *MemoryStore) Ping(context.Context) error {
	return nil
}

func (s *MemoryStore) stamp() time.Time {
	now := s.now().UTC()
	if now.Before(s.last) {
		now = s.last
	}
	s.last = now
	return now
}

package session

import (
	"context"
	"fmt"
	"sync"
	"time"
)

type memoryEntry struct {
	record    Record
	expiresAt time.Time
}

const sweepInterval = time.Minute

// MemoryStore is the single-instance session registry used when Redis is
// not configured. Expired entries are dropped on lookup and swept on save.
type MemoryStore struct {
	mu        sync.Mutex
	entries   map[string]memoryEntry
	now       func() time.Time
	nextSweep time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string]memoryEntry), now: time.Now}
}

func (s *MemoryStore) SaveSession(_ context.Context, tokenHash string, record Record, expiresAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	if !expiresAt.After(now) {
		return fmt.Errorf("save session: already expired")
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = now.UTC()
	}
	if !now.Before(s.nextSweep) {
		s.sweep(now)
	}
	s.entries[tokenHash] = memoryEntry{record: record, expiresAt: expiresAt}
	return nil
}

func (s *MemoryStore) LookupSession(_ context.Context, tokenHash string) (Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.entries[tokenHash]
	if !ok {
		return Record{}, ErrNotFound
	}
	if !entry.expiresAt.After(s.now()) {
		delete(s.entries, tokenHash)
		return Record{}, ErrNotFound
	}
	return entry.record, nil
}

func (s *MemoryStore) RevokeSession(_ context.Context, tokenHash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, tokenHash)
	return nil
}

// sweep must be called with mu held.
func (s *MemoryStore) sweep(now time.Time) {
	for hash, entry := range s.entries {
		if !entry.expiresAt.After(now) {
			delete(s.entries, hash)
		}
	}
	s.nextSweep = now.Add(sweepInterval)
}

func (s *MemoryStore) Ping(context.Context) error { return nil }

func (s *MemoryStore) Close() error { return nil }

package store

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"testing"
	"time"
)

func TestMemoryStoreInsertAssignsIDAndTimestamp(t *testing.T) {
	fixed := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s := NewMemoryStoreWithClock(func() time.Time { return fixed })

	note, err := s.InsertNote(context.Background(), NewNote{Text: "Buy milk", OwnerID: "a", OwnerName: "User 1", OwnerColor: "#112233"})
	if err != nil {
		t.Fatalf("InsertNote() error = %v", err)
	}
	if note.ID == "" {
		t.Fatal("expected store-assigned id")
	}
	if note.CreatedAt == nil || !note.CreatedAt.Equal(fixed) {
		t.Fatalf("CreatedAt = %v, want %v", note.CreatedAt, fixed)
	}

	got, err := s.GetNote(context.Background(), note.ID)
	if err != nil {
		t.Fatalf("GetNote() error = %v", err)
	}
	if got.OwnerColor != "#112233" || got.Text != "Buy milk" {
		t.Fatalf("unexpected note %+v", got)
	}
}

func TestMemoryStoreClockNeverGoesBackwards(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	ticks := []time.Time{base, base.Add(-time.Hour), base.Add(time.Second)}
	i := 0
	s := NewMemoryStoreWithClock(func() time.Time {
		now := ticks[i]
		i++
		return now
	})

	var stamps []time.Time
	for range ticks {
		note, err := s.InsertNote(context.Background(), NewNote{Text: "x", OwnerID: "a"})
		if err != nil {
			t.Fatalf("InsertNote() error = %v", err)
		}
		stamps = append(stamps, *note.CreatedAt)
	}
	if !stamps[1].Equal(base) {
		t.Fatalf("skewed clock leaked into timestamp: %v", stamps[1])
	}
	if !stamps[2].After(stamps[1]) {
		t.Fatalf("expected %v after %v", stamps[2], stamps[1])
	}
}

func TestMemoryStoreDeleteOwnedBy(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	note, _ := s.InsertNote(ctx, NewNote{Text: "mine", OwnerID: "a"})

	if deleted, err := s.DeleteNoteOwnedBy(ctx, note.ID, "b"); err != nil || deleted {
		t.Fatalf("non-owner delete = %v, %v", deleted, err)
	}
	if deleted, err := s.DeleteNoteOwnedBy(ctx, note.ID, "a"); err != nil || !deleted {
		t.Fatalf("owner delete = %v, %v", deleted, err)
	}
	if deleted, err := s.DeleteNoteOwnedBy(ctx, note.ID, "a"); err != nil || deleted {
		t.Fatalf("repeat delete = %v, %v", deleted, err)
	}
	if _, err := s.GetNote(ctx, note.ID); !errors.Is(err, sql.ErrNoRows) {
		t.Fatalf("GetNote() after delete error = %v, want sql.ErrNoRows", err)
	}
}

func TestMemoryStoreListKeepsInsertionOrder(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	first, _ := s.InsertNote(ctx, NewNote{Text: "1", OwnerID: "a"})
	second, _ := s.InsertNote(ctx, NewNote{Text: "2", OwnerID: "a"})
	third, _ := s.InsertNote(ctx, NewNote{Text: "3", OwnerID: "a"})
	if _, err := s.DeleteNoteOwnedBy(ctx, second.ID, "a"); err != nil {
		t.Fatalf("delete: %v", err)
	}

	items, err := s.ListNotes(ctx)
	if err != nil {
		t.Fatalf("ListNotes() error = %v", err)
	}
	if len(items) != 2 || items[0].ID != first.ID || items[1].ID != third.ID {
		t.Fatalf("unexpected order: %+v", items)
	}
}

func TestMemoryStoreConcurrentInserts(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := s.InsertNote(ctx, NewNote{Text: "n", OwnerID: "a"}); err != nil {
				t.Errorf("InsertNote() error = %v", err)
			}
		}()
	}
	wg.Wait()

	items, _ := s.ListNotes(ctx)
	seen := map[string]bool{}
	for _, item := range items {
		if seen[item.ID] {
			t.Fatalf("duplicate id %s", item.ID)
		}
		seen[item.ID] = true
	}
	if len(seen) != 50 {
		t.Fatalf("expected 50 notes, got %d", len(seen))
	}
}

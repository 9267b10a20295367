package search

import (
	"log"
	"strings"
	"sync"
	"unicode/utf8"

	"noteboard/api/internal/store"
)

const snippetRunes = 120

// noteIndex is the external full-text engine.
type noteIndex interface {
	Healthy() bool
	Search(Query) ([]Hit, int, error)
	IndexNotes([]NoteRecord) error
	DeleteNote(id string) error
}

const pendingWrites = 256

// Service tries the index first and falls back to scanning the snapshot the
// caller already holds. Index writes are applied in call order by a single
// worker, and hits are always checked against the snapshot.
type Service struct {
	index  noteIndex
	writes chan func(noteIndex)
	done   chan struct{}
	once   sync.Once
}

// NewService creates a search service. meili may be nil.
func NewService(meili *Meili) *Service {
	if meili == nil {
		return &Service{}
	}
	return newService(meili)
}

func newService(index noteIndex) *Service {
	s := &Service{
		index:  index,
		writes: make(chan func(noteIndex), pendingWrites),
		done:   make(chan struct{}),
	}
	go s.applyWrites()
	return s
}

// Close stops the index writer. Pending writes are dropped.
func (s *Service) Close() {
	if s.done == nil {
		return
	}
	s.once.Do(func() { close(s.done) })
}

// Healthy reports the index state; it is true when none is configured.
func (s *Service) Healthy() bool {
	return s.index == nil || s.index.Healthy()
}

// Backend names the engine Search will use.
func (s *Service) Backend() string {
	if s.index != nil && s.index.Healthy() {
		return "meilisearch"
	}
	return "snapshot"
}

// Search queries the index, or filters notes when the index is unavailable.
// notes must already be in display order.
func (s *Service) Search(q Query, notes []store.Note) Response {
	q.Text = strings.TrimSpace(q.Text)
	if q.Text == "" {
		return Response{Results: []Result{}, Total: 0, Query: q.Text}
	}
	if s.index != nil && s.index.Healthy() {
		hits, total, err := s.index.Search(q)
		if err == nil {
			results, dropped := resolveHits(hits, notes)
			return Response{Results: results, Total: max(total-dropped, len(results)), Query: q.Text}
		}
		log.Printf("search: index error, falling back to snapshot scan: %v", err)
	}
	results, total := scan(q, notes)
	return Response{Results: results, Total: total, Query: q.Text}
}

// resolveHits keeps hits that are still on the board, in index rank order,
// and fills them from the snapshot.
func resolveHits(hits []Hit, notes []store.Note) ([]Result, int) {
	live := make(map[string]store.Note, len(notes))
	for _, note := range notes {
		live[note.ID] = note
	}
	results := make([]Result, 0, len(hits))
	dropped := 0
	for _, hit := range hits {
		note, ok := live[hit.ID]
		if !ok {
			dropped++
			continue
		}
		result := resultFromNote(note)
		if strings.TrimSpace(hit.Snippet) != "" {
			result.Snippet = hit.Snippet
		}
		results = append(results, result)
	}
	return results, dropped
}

func (s *Service) IndexNote(note store.Note) {
	record := RecordFromNote(note)
	s.enqueue("index note "+note.ID, func(index noteIndex) error {
		return index.IndexNotes([]NoteRecord{record})
	})
}

func (s *Service) RemoveNote(id string) {
	s.enqueue("delete note "+id, func(index noteIndex) error {
		return index.DeleteNote(id)
	})
}

// Reindex pushes every note to the index; called once the board has loaded
// its first snapshot.
func (s *Service) Reindex(notes []store.Note) {
	if len(notes) == 0 {
		return
	}
	records := make([]NoteRecord, 0, len(notes))
	for _, note := range notes {
		records = append(records, RecordFromNote(note))
	}
	s.enqueue("reindex notes", func(index noteIndex) error {
		return index.IndexNotes(records)
	})
}

// enqueue never blocks the caller. A dropped write only costs recall, since
// stale hits are filtered against the snapshot.
func (s *Service) enqueue(what string, write func(noteIndex) error) {
	if s.index == nil {
		return
	}
	op := func(index noteIndex) {
		if !index.Healthy() {
			return
		}
		if err := write(index); err != nil {
			log.Printf("search: %s: %v", what, err)
		}
	}
	select {
	case <-s.done:
		return
	default:
	}
	select {
	case s.writes <- op:
	default:
		log.Printf("search: write queue full, dropping %s", what)
	}
}

func (s *Service) applyWrites() {
	for {
		select {
		case <-s.done:
			return
		case op := <-s.writes:
			op(s.index)
		}
	}
}

func RecordFromNote(note store.Note) NoteRecord {
	record := NoteRecord{
		ID:       note.ID,
		Text:     note.Text,
		UserID:   note.OwnerID,
		UserName: note.OwnerName,
		Color:    note.OwnerColor,
	}
	if note.CreatedAt != nil {
		record.Timestamp = note.CreatedAt.UnixMilli()
	}
	return record
}

func scan(q Query, notes []store.Note) ([]Result, int) {
	needle := strings.ToLower(q.Text)
	results := make([]Result, 0)
	total := 0
	for _, note := range notes {
		if q.UserID != "" && note.OwnerID != q.UserID {
			continue
		}
		if !strings.Contains(strings.ToLower(note.Text), needle) && !strings.Contains(strings.ToLower(note.OwnerName), needle) {
			continue
		}
		total++
		if len(results) >= q.limit() {
			continue
		}
		result := resultFromNote(note)
		results = append(results, result)
	}
	return results, total
}

func resultFromNote(note store.Note) Result {
	result := Result{
		ID:       note.ID,
		Text:     note.Text,
		Snippet:  snippet(note.Text),
		UserID:   note.OwnerID,
		UserName: note.OwnerName,
		Color:    note.OwnerColor,
	}
	if note.CreatedAt != nil {
		ts := note.CreatedAt.UnixMilli()
		result.Timestamp = &ts
	}
	return result
}

func snippet(text string) string {
	if utf8.RuneCountInString(text) <= snippetRunes {
		return text
	}
	runes := []rune(text)
	return string(runes[:snippetRunes]) + "…"
}


package search

import (
	"fmt"
	"log"
	"sync"
	"time"

	meili "github.com/meilisearch/meilisearch-go"
)

const (
	notesIndex   = "noteboard_notes"
	recheckAfter = 10 * time.Second
)

// Meili keeps note text in a Meilisearch index.
type Meili struct {
	client meili.ServiceManager
	now    func() time.Time

	mu        sync.Mutex
	healthy   bool
	checkedAt time.Time
}

// NewMeili connects to Meilisearch. An unreachable server is tolerated and
// probed again on later use.
func NewMeili(url, apiKey string) *Meili {
	m := &Meili{
		client: meili.New(url, meili.WithAPIKey(apiKey)),
		now:    time.Now,
	}
	if !m.Healthy() {
		log.Printf("search: meilisearch unavailable at %s, scanning snapshots instead", url)
	}
	return m
}

// Healthy reports the last known state. A down server is re-probed at most
// every recheckAfter, and the index is configured whenever it comes back.
func (m *Meili) Healthy() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.healthy || (!m.checkedAt.IsZero() && m.now().Sub(m.checkedAt) < recheckAfter) {
		return m.healthy
	}
	m.checkedAt = m.now()
	if _, err := m.client.Health(); err != nil {
		return false
	}
	m.configureIndex()
	m.healthy = true
	return true
}

func (m *Meili) markDown(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.healthy {
		log.Printf("search: meilisearch marked down: %v", err)
	}
	m.healthy = false
	m.checkedAt = m.now()
}

func (m *Meili) configureIndex() {
	if _, err := m.client.CreateIndex(&meili.IndexConfig{Uid: notesIndex, PrimaryKey: "id"}); err != nil {
		log.Printf("search: create index %s (may already exist): %v", notesIndex, err)
	}
	index := m.client.Index(notesIndex)
	filterable := []interface{}{"userId"}
	if _, err := index.UpdateFilterableAttributes(&filterable); err != nil {
		log.Printf("search: filterable attributes for %s: %v", notesIndex, err)
	}
	searchable := []string{"text", "userName"}
	if _, err := index.UpdateSearchableAttributes(&searchable); err != nil {
		log.Printf("search: searchable attributes for %s: %v", notesIndex, err)
	}
}

// Search returns matching note ids with a highlighted snippet, and the
// engine's estimate of the total.
func (m *Meili) Search(q Query) ([]Hit, int, error) {
	req := &meili.SearchRequest{
		Limit:                 int64(q.limit()),
		AttributesToHighlight: []string{"text"},
		HighlightPreTag:       "<mark>",
		HighlightPostTag:      "</mark>",
	}
	if q.UserID != "" {
		req.Filter = fmt.Sprintf("userId = %q", q.UserID)
	}
	resp, err := m.client.Index(notesIndex).Search(q.Text, req)
	if err != nil {
		m.markDown(err)
		return nil, 0, fmt.Errorf("meilisearch search: %w", err)
	}

	hits := make([]Hit, 0, len(resp.Hits))
	for _, raw := range resp.Hits {
		hit, err := decodeHit(raw)
		if err != nil {
			log.Printf("search: skipping undecodable hit: %v", err)
			continue
		}
		hits = append(hits, hit)
	}
	return hits, int(resp.EstimatedTotalHits), nil
}

func decodeHit(raw meili.Hit) (Hit, error) {
	var doc struct {
		ID        string `json:"id"`
		Formatted struct {
			Text string `json:"text"`
		} `json:"_formatted"`
	}
	if err := raw.DecodeInto(&doc); err != nil {
		return Hit{}, err
	}
	return Hit{ID: doc.ID, Snippet: doc.Formatted.Text}, nil
}

// IndexNotes adds or replaces notes in the index.
func (m *Meili) IndexNotes(records []NoteRecord) error {
	if len(records) == 0 {
		return nil
	}
	if _, err := m.client.Index(notesIndex).AddDocuments(records, nil); err != nil {
		m.markDown(err)
		return err
	}
	return nil
}

func (m *Meili) DeleteNote(id string) error {
	if _, err := m.client.Index(notesIndex).DeleteDocument(id, nil); err != nil {
		m.markDown(err)
		return err
	}
	return nil
}

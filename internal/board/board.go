// Package board is the authoritative note board: it validates mutations,
// enforces ownership against the stored record, and publishes a complete
// ordered snapshot after every change.
package board

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"noteboard/api/internal/authz"
	"noteboard/api/internal/channel"
	"noteboard/api/internal/identity"
	"noteboard/api/internal/search"
	"noteboard/api/internal/store"
)

const MaxNoteLength = 1000

const propagateTimeout = 10 * time.Second

var (
	ErrEmptyText   = errors.New("note text is empty")
	ErrTextTooLong = fmt.Errorf("note text exceeds %d characters", MaxNoteLength)
	ErrNoIdentity  = errors.New("an identity is required")
	ErrNotOwner    = errors.New("only the note's creator may delete it")
)

// NoteStore is the persistence backend. Implementations must assign note ids
// and timestamps themselves.
type NoteStore interface {
	InsertNote(context.Context, store.NewNote) (store.Note, error)
	GetNote(context.Context, string) (store.Note, error)
	DeleteNoteOwnedBy(context.Context, string, string) (bool, error)
	ListNotes(context.Context) ([]store.Note, error)
	Ping(context.Context) error
}

type Service struct {
	store    NoteStore
	hub      *channel.Hub
	notifier channel.Notifier
	search   *search.Service
	now      func() time.Time

	// refreshMu keeps snapshots published in the order they were read.
	refreshMu sync.Mutex
}

type Option func(*Service)

func WithNotifier(notifier channel.Notifier) Option {
	return func(s *Service) { s.notifier = notifier }
}

func WithSearch(svc *search.Service) Option {
	return func(s *Service) { s.search = svc }
}

// WithClock sets the clock used to place pending notes in the ordering.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func New(noteStore NoteStore, opts ...Option) *Service {
	s := &Service{
		store:    noteStore,
		hub:      channel.NewHub(),
		notifier: channel.NopNotifier{},
		search:   search.NewService(nil),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start loads the initial snapshot and seeds the search index.
func (s *Service) Start(ctx context.Context) error {
	if err := s.ensureLoaded(ctx); err != nil {
		return err
	}
	s.search.Reindex(s.hub.Latest().Notes)
	return nil
}

// Run follows change notices from peer instances until ctx is done.
func (s *Service) Run(ctx context.Context) error {
	return s.notifier.Listen(ctx, func(ctx context.Context) {
		if err := s.Refresh(ctx); err != nil {
			log.Printf("board: refresh after change notice: %v", err)
		}
	})
}

// Close ends every live subscription.
func (s *Service) Close() {
	s.hub.Close()
}

func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

// Create adds a note owned by owner. Blank text is rejected before the
// store is touched.
func (s *Service) Create(ctx context.Context, text string, owner identity.Identity) (store.Note, error) {
	if strings.TrimSpace(text) == "" {
		return store.Note{}, ErrEmptyText
	}
	if utf8.RuneCountInString(text) > MaxNoteLength {
		return store.Note{}, ErrTextTooLong
	}
	if !authz.Can(authz.ActionCreate, "", owner.ID) {
		return store.Note{}, ErrNoIdentity
	}

	note, err := s.store.InsertNote(ctx, store.NewNote{
		Text:       text,
		OwnerID:    owner.ID,
		OwnerName:  owner.DisplayName,
		OwnerColor: owner.Color,
	})
	if err != nil {
		return store.Note{}, fmt.Errorf("create note: %w", err)
	}
	s.search.IndexNote(note)
	s.changed(ctx)
	return note, nil
}

// Delete removes a note on behalf of requester. A missing note is not an
// error. A note owned by someone else is left untouched and ErrNotOwner is
// returned.
func (s *Service) Delete(ctx context.Context, noteID string, requester identity.Identity) error {
	note, err := s.store.GetNote(ctx, noteID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("load note: %w", err)
	}
	if !authz.CanDelete(note.OwnerID, requester.ID) {
		return ErrNotOwner
	}

	deleted, err := s.store.DeleteNoteOwnedBy(ctx, noteID, requester.ID)
	if err != nil {
		return fmt.Errorf("delete note: %w", err)
	}
	if !deleted {
		// Someone else's delete of the same note won the race.
		return nil
	}
	s.search.RemoveNote(noteID)
	s.changed(ctx)
	return nil
}

// Snapshot returns the latest published snapshot.
func (s *Service) Snapshot(ctx context.Context) (channel.Snapshot, error) {
	if err := s.ensureLoaded(ctx); err != nil {
		return channel.Snapshot{}, err
	}
	return s.hub.Latest(), nil
}

// Subscribe registers an observer; the current snapshot is delivered first.
func (s *Service) Subscribe(ctx context.Context) (*channel.Subscription, error) {
	if err := s.ensureLoaded(ctx); err != nil {
		return nil, err
	}
	return s.hub.Subscribe(), nil
}

// Search looks notes up by text within the current snapshot.
func (s *Service) Search(ctx context.Context, q search.Query) (search.Response, error) {
	snap, err := s.Snapshot(ctx)
	if err != nil {
		return search.Response{}, err
	}
	return s.search.Search(q, snap.Notes), nil
}

// SearchHealthy reports whether the search backend is reachable.
func (s *Service) SearchHealthy() bool {
	return s.search.Healthy()
}

func (s *Service) SearchBackend() string {
	return s.search.Backend()
}

// Refresh re-reads the store and publishes the ordered result.
func (s *Service) Refresh(ctx context.Context) error {
	s.refreshMu.Lock()
	defer s.refreshMu.Unlock()
	notes, err := s.store.ListNotes(ctx)
	if err != nil {
		return fmt.Errorf("list notes: %w", err)
	}
	s.hub.Publish(Order(notes, s.now()))
	return nil
}

func (s *Service) ensureLoaded(ctx context.Context) error {
	if s.hub.Latest().Version > 0 {
		return nil
	}
	return s.Refresh(ctx)
}

// changed runs after a committed mutation. The write is already durable, so
// propagation must not die with the caller's request. Failures are logged.
func (s *Service) changed(ctx context.Context) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), propagateTimeout)
	defer cancel()
	if err := s.Refresh(ctx); err != nil {
		log.Printf("board: refresh after mutation: %v", err)
	}
	if err := s.notifier.Notify(ctx); err != nil {
		log.Printf("board: notify peers: %v", err)
	}
}

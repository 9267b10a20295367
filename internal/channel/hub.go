// Package channel fans full note snapshots out to subscribers.
//
// Every subscriber owns a one-slot mailbox. Publishing replaces an
// undelivered snapshot with the newer one, so a slow observer skips
// intermediate states instead of stalling publishers. Snapshots are total,
// so skipping is lossless.
package channel

import (
	"sync"

	"noteboard/api/internal/store"
)

// Snapshot is the complete ordered note collection at one point in time.
type Snapshot struct {
	Version uint64
	Notes   []store.Note
}

type Hub struct {
	mu     sync.Mutex
	latest Snapshot
	subs   map[*Subscription]struct{}
	closed bool
}

func NewHub() *Hub {
	return &Hub{
		latest: Snapshot{Notes: []store.Note{}},
		subs:   make(map[*Subscription]struct{}),
	}
}

// Publish stamps notes with the next version and offers the snapshot to
// every subscriber. It never blocks on observers.
func (h *Hub) Publish(notes []store.Note) Snapshot {
	if notes == nil {
		notes = []store.Note{}
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	snap := Snapshot{Version: h.latest.Version + 1, Notes: notes}
	h.latest = snap
	for sub := range h.subs {
		sub.offer(snap)
	}
	return snap
}

// Latest returns the most recently published snapshot.
func (h *Hub) Latest() Snapshot {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.latest
}

// Subscribe registers an observer. The latest snapshot is already waiting
// in the returned subscription's mailbox.
func (h *Hub) Subscribe() *Subscription {
	h.mu.Lock()
	defer h.mu.Unlock()
	sub := &Subscription{hub: h, ch: make(chan Snapshot, 1)}
	if h.closed {
		close(sub.ch)
		return sub
	}
	h.subs[sub] = struct{}{}
	sub.offer(h.latest)
	return sub
}

// Subscribers reports how many observers are registered.
func (h *Hub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// Close ends every subscription. Later subscriptions are closed on arrival.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for sub := range h.subs {
		delete(h.subs, sub)
		close(sub.ch)
	}
}

func (h *Hub) remove(sub *Subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.subs[sub]; !ok {
		return
	}
	delete(h.subs, sub)
	close(sub.ch)
}

// Subscription is one observer's view of a hub.
type Subscription struct {
	hub  *Hub
	ch   chan Snapshot
	once sync.Once
}

// C yields snapshots until the subscription is closed.
func (s *Subscription) C() <-chan Snapshot {
	return s.ch
}

// Close unsubscribes. It is safe to call more than once and from any
// goroutine.
func (s *Subscription) Close() {
	s.once.Do(func() {
		s.hub.remove(s)
	})
}

// offer must be called with hub.mu held; only the hub sends on ch.
func (s *Subscription) offer(snap Snapshot) {
	select {
	case <-s.ch:
	default:
	}
	s.ch <- snap
}

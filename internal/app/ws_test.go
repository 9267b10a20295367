package app

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"noteboard/api/internal/board"
	"noteboard/api/internal/identity"
	"noteboard/api/internal/session"
	"noteboard/api/internal/store"
	"noteboard/api/internal/wire"
)

type wsPeer struct {
	t     *testing.T
	conn  *websocket.Conn
	hello wire.HelloFrame
}

func dialPeer(t *testing.T, srv *httptest.Server, token string) *wsPeer {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/ws"
	if token != "" {
		url += "?token=" + token
	}
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })

	p := &wsPeer{t: t, conn: conn}
	p.readInto(&p.hello)
	if p.hello.Type != wire.TypeHello || p.hello.Token == "" || p.hello.Identity.ID == "" {
		t.Fatalf("unexpected hello %+v", p.hello)
	}
	return p
}

func (p *wsPeer) readInto(target any) {
	p.t.Helper()
	_ = p.conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if err := p.conn.ReadJSON(target); err != nil {
		p.t.Fatalf("read frame: %v", err)
	}
}

func (p *wsPeer) send(frame wire.CommandFrame) {
	p.t.Helper()
	if err := p.conn.WriteJSON(frame); err != nil {
		p.t.Fatalf("write frame: %v", err)
	}
}

// nextSnapshot reads until a snapshot frame arrives.
func (p *wsPeer) nextSnapshot() wire.SnapshotFrame {
	p.t.Helper()
	var frame wire.SnapshotFrame
	p.readInto(&frame)
	if frame.Type != wire.TypeSnapshot {
		p.t.Fatalf("expected snapshot frame, got %q", frame.Type)
	}
	return frame
}

// awaitSnapshot reads snapshots until one satisfies ok.
func (p *wsPeer) awaitSnapshot(ok func(wire.SnapshotFrame) bool) wire.SnapshotFrame {
	p.t.Helper()
	for {
		frame := p.nextSnapshot()
		if ok(frame) {
			return frame
		}
	}
}

func newSyncServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(newTestServer(t, nil).Handler())
	t.Cleanup(srv.Close)
	return srv
}

func TestSyncHelloThenSnapshot(t *testing.T) {
	srv := newSyncServer(t)
	peer := dialPeer(t, srv, "")

	snap := peer.nextSnapshot()
	if snap.Count != 0 || len(snap.Notes) != 0 {
		t.Fatalf("expected empty board, got %+v", snap)
	}
	if !strings.HasPrefix(peer.hello.Identity.DisplayName, "User ") {
		t.Fatalf("unexpected display name %q", peer.hello.Identity.DisplayName)
	}
}

func TestSyncOwnerOnlyDeleteScenario(t *testing.T) {
	srv := newSyncServer(t)
	a := dialPeer(t, srv, "")
	a.nextSnapshot()

	a.send(wire.CommandFrame{Type: wire.TypeCreate, Text: "Buy milk", Ref: "c1"})
	created := a.awaitSnapshot(func(f wire.SnapshotFrame) bool { return f.Count == 1 })
	note := created.Notes[0]
	if note.UserID != a.hello.Identity.ID || note.Text != "Buy milk" {
		t.Fatalf("unexpected note %+v", note)
	}

	b := dialPeer(t, srv, "")
	if b.hello.Identity.ID == a.hello.Identity.ID {
		t.Fatal("second connection reused the first identity")
	}
	seen := b.nextSnapshot()
	if seen.Count != 1 || seen.Notes[0].ID != note.ID {
		t.Fatalf("B did not see A's note: %+v", seen)
	}

	b.send(wire.CommandFrame{Type: wire.TypeDelete, NoteID: note.ID, Ref: "d1"})
	var rejected wire.ErrorFrame
	b.readInto(&rejected)
	if rejected.Type != wire.TypeError || rejected.Code != "FORBIDDEN" || rejected.Ref != "d1" {
		t.Fatalf("unexpected reply %+v", rejected)
	}

	a.send(wire.CommandFrame{Type: wire.TypeDelete, NoteID: note.ID, Ref: "d2"})
	a.awaitSnapshot(func(f wire.SnapshotFrame) bool { return f.Count == 0 })
	b.awaitSnapshot(func(f wire.SnapshotFrame) bool { return f.Count == 0 })
}

func TestSyncRejectsBlankCreate(t *testing.T) {
	srv := newSyncServer(t)
	peer := dialPeer(t, srv, "")
	peer.nextSnapshot()

	peer.send(wire.CommandFrame{Type: wire.TypeCreate, Text: "  ", Ref: "blank"})
	var reply wire.ErrorFrame
	peer.readInto(&reply)
	if reply.Code != "VALIDATION_ERROR" || reply.Ref != "blank" {
		t.Fatalf("unexpected reply %+v", reply)
	}
}

func TestSyncRejectsUnknownAndMalformedFrames(t *testing.T) {
	srv := newSyncServer(t)
	peer := dialPeer(t, srv, "")
	peer.nextSnapshot()

	if err := peer.conn.WriteMessage(websocket.TextMessage, []byte("{nope")); err != nil {
		t.Fatalf("write: %v", err)
	}
	var reply wire.ErrorFrame
	peer.readInto(&reply)
	if reply.Code != "INVALID_FRAME" {
		t.Fatalf("unexpected reply %+v", reply)
	}

	peer.send(wire.CommandFrame{Type: "rename", Ref: "r1"})
	peer.readInto(&reply)
	if reply.Code != "UNKNOWN_COMMAND" || reply.Ref != "r1" {
		t.Fatalf("unexpected reply %+v", reply)
	}
}

func TestSyncResumesIdentityWithToken(t *testing.T) {
	srv := newSyncServer(t)
	first := dialPeer(t, srv, "")
	_ = first.conn.Close()

	resumed := dialPeer(t, srv, first.hello.Token)
	if resumed.hello.Identity != first.hello.Identity {
		t.Fatalf("identity not resumed: %+v vs %+v", resumed.hello.Identity, first.hello.Identity)
	}

	fresh := dialPeer(t, srv, "garbage")
	if fresh.hello.Identity.ID == first.hello.Identity.ID {
		t.Fatal("an invalid token must yield a fresh identity")
	}
}

type countingSessions struct {
	*session.MemoryStore
	saves atomic.Int32
}

func (c *countingSessions) SaveSession(ctx context.Context, hash string, record session.Record, expiresAt time.Time) error {
	c.saves.Add(1)
	return c.MemoryStore.SaveSession(ctx, hash, record, expiresAt)
}

func TestSyncRejectsPlainRequestsWithoutMintingSessions(t *testing.T) {
	sessions := &countingSessions{MemoryStore: session.NewMemoryStore()}
	notes := board.New(store.NewMemoryStore())
	t.Cleanup(notes.Close)
	handler := NewHTTPServer(notes, identity.NewProvider([]byte("test-secret"), time.Hour, sessions), "*", time.Second).Handler()

	for i := 0; i < 50; i++ {
		rr := doRequest(t, handler, http.MethodGet, "/api/ws", "", "")
		if rr.Code != http.StatusBadRequest {
			t.Fatalf("plain GET /api/ws status = %d, want 400", rr.Code)
		}
	}
	if got := sessions.saves.Load(); got != 0 {
		t.Fatalf("%d sessions registered by non-upgrade requests", got)
	}
}

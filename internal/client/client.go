// Package client is the Go side of the sync channel: it keeps a WebSocket to
// the board open, reconnecting with backoff, and exposes the latest snapshot
// plus create/delete requests to a presentation layer.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"noteboard/api/internal/authz"
	"noteboard/api/internal/channel"
	"noteboard/api/internal/identity"
	"noteboard/api/internal/store"
	"noteboard/api/internal/util"
	"noteboard/api/internal/wire"
)

var (
	ErrEmptyText    = errors.New("note text is empty")
	ErrNotOwner     = errors.New("only the note's creator may delete it")
	ErrNotConnected = errors.New("not connected to the board")
	ErrClosed       = errors.New("client is closed")
)

const writeTimeout = 5 * time.Second

type Options struct {
	// URL of the sync endpoint, e.g. ws://localhost:8787/api/ws.
	URL string
	// Token resumes an earlier session when it is still valid.
	Token string

	Dialer     *websocket.Dialer
	MinBackoff time.Duration
	MaxBackoff time.Duration

	// OnError receives rejected commands. It runs on the read goroutine.
	OnError func(wire.ErrorFrame)
}

type Client struct {
	opts   Options
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	ready     chan struct{}
	readyOnce sync.Once
	snapshots chan channel.Snapshot

	mu       sync.Mutex
	conn     *websocket.Conn
	identity identity.Identity
	token    string
	latest   channel.Snapshot

	writeMu sync.Mutex
}

// Dial starts connecting in the background and returns immediately. Use
// Ready to wait for the first identity.
func Dial(ctx context.Context, opts Options) *Client {
	if opts.Dialer == nil {
		opts.Dialer = websocket.DefaultDialer
	}
	if opts.MinBackoff <= 0 {
		opts.MinBackoff = 250 * time.Millisecond
	}
	if opts.MaxBackoff < opts.MinBackoff {
		opts.MaxBackoff = 10 * time.Second
	}
	ctx, cancel := context.WithCancel(ctx)
	c := &Client{
		opts:      opts,
		ctx:       ctx,
		cancel:    cancel,
		done:      make(chan struct{}),
		ready:     make(chan struct{}),
		snapshots: make(chan channel.Snapshot, 1),
		token:     opts.Token,
	}
	go c.run()
	return c
}

// Ready is closed once the server has assigned an identity.
func (c *Client) Ready() <-chan struct{} {
	return c.ready
}

// Identity is the zero value until Ready is closed.
func (c *Client) Identity() identity.Identity {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.identity
}

// Token is the session token to pass as Options.Token to resume later.
func (c *Client) Token() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.token
}

// Snapshots delivers the newest board state. Unread snapshots are replaced
// by newer ones. The channel is closed by Close.
func (c *Client) Snapshots() <-chan channel.Snapshot {
	return c.snapshots
}

// Latest returns the most recent snapshot received.
func (c *Client) Latest() channel.Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.latest
}

// CanDelete reports whether the local identity owns note. The server
// decides; this only drives the UI.
func (c *Client) CanDelete(note store.Note) bool {
	return authz.CanDelete(note.OwnerID, c.Identity().ID)
}

// RequestCreate asks the server to add a note and returns the request ref
// that a rejection will carry.
func (c *Client) RequestCreate(text string) (string, error) {
	if strings.TrimSpace(text) == "" {
		return "", ErrEmptyText
	}
	ref := util.NewID("req")
	return ref, c.send(wire.CommandFrame{Type: wire.TypeCreate, Text: text, Ref: ref})
}

// RequestDelete asks the server to remove a note. Notes known to belong to
// someone else are refused locally.
func (c *Client) RequestDelete(noteID string) (string, error) {
	for _, note := range c.Latest().Notes {
		if note.ID == noteID && !c.CanDelete(note) {
			return "", ErrNotOwner
		}
	}
	ref := util.NewID("req")
	return ref, c.send(wire.CommandFrame{Type: wire.TypeDelete, NoteID: noteID, Ref: ref})
}

// Close stops reconnecting, drops the connection and closes Snapshots.
func (c *Client) Close() {
	c.cancel()
	c.mu.Lock()
	if c.conn != nil {
		_ = c.conn.Close()
	}
	c.mu.Unlock()
	<-c.done
}

func (c *Client) send(frame wire.CommandFrame) error {
	if c.ctx.Err() != nil {
		return ErrClosed
	}
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return ErrNotConnected
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := conn.WriteJSON(frame); err != nil {
		return fmt.Errorf("send %s: %w", frame.Type, err)
	}
	return nil
}

func (c *Client) run() {
	defer close(c.done)
	defer close(c.snapshots)

	backoff := c.opts.MinBackoff
	for {
		conn, err := c.connect()
		if err == nil {
			backoff = c.opts.MinBackoff
			if err := c.serve(conn); err != nil && c.ctx.Err() == nil {
				log.Printf("client: connection lost: %v", err)
			}
		}
		select {
		case <-c.ctx.Done():
			return
		case <-time.After(backoff):
		}
		if err != nil {
			backoff *= 2
			if backoff > c.opts.MaxBackoff {
				backoff = c.opts.MaxBackoff
			}
		}
	}
}

// connect dials and waits for the hello frame.
func (c *Client) connect() (*websocket.Conn, error) {
	url := c.opts.URL
	if token := c.Token(); token != "" {
		sep := "?"
		if strings.Contains(url, "?") {
			sep = "&"
		}
		url += sep + "token=" + token
	}
	conn, _, err := c.opts.Dialer.DialContext(c.ctx, url, nil)
	if err != nil {
		return nil, err
	}

	// Close must not wait out the hello deadline.
	stop := context.AfterFunc(c.ctx, func() { _ = conn.Close() })
	var hello wire.HelloFrame
	_ = conn.SetReadDeadline(time.Now().Add(writeTimeout))
	err = conn.ReadJSON(&hello)
	if !stop() {
		return nil, c.ctx.Err()
	}
	if err != nil || hello.Type != wire.TypeHello {
		_ = conn.Close()
		if err == nil {
			err = fmt.Errorf("expected hello, got %q", hello.Type)
		}
		return nil, err
	}
	_ = conn.SetReadDeadline(time.Time{})

	c.mu.Lock()
	if c.identity.ID != "" && c.identity.ID != hello.Identity.ID {
		log.Printf("client: session expired, now %s", hello.Identity.DisplayName)
	}
	c.identity = hello.Identity
	c.token = hello.Token
	c.conn = conn
	c.mu.Unlock()
	if c.ctx.Err() != nil {
		_ = conn.Close()
		return nil, c.ctx.Err()
	}

	c.readyOnce.Do(func() { close(c.ready) })
	return conn, nil
}

func (c *Client) serve(conn *websocket.Conn) error {
	defer func() {
		c.mu.Lock()
		if c.conn == conn {
			c.conn = nil
		}
		c.mu.Unlock()
		_ = conn.Close()
	}()

	// Versions are per server hub, so they only order frames on one
	// connection.
	var lastVersion uint64
	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		var env wire.Envelope
		if err := json.Unmarshal(raw, &env); err != nil {
			log.Printf("client: ignoring malformed frame: %v", err)
			continue
		}
		switch env.Type {
		case wire.TypeSnapshot:
			var frame wire.SnapshotFrame
			if err := json.Unmarshal(raw, &frame); err != nil {
				log.Printf("client: ignoring malformed snapshot: %v", err)
				continue
			}
			if frame.Version != 0 && frame.Version <= lastVersion {
				continue
			}
			lastVersion = frame.Version
			c.deliver(frame.Snapshot())
		case wire.TypeError:
			var frame wire.ErrorFrame
			if err := json.Unmarshal(raw, &frame); err != nil {
				continue
			}
			if c.opts.OnError != nil {
				c.opts.OnError(frame)
			}
		}
	}
}

// deliver is only called from the run goroutine, the sole sender.
func (c *Client) deliver(snap channel.Snapshot) {
	c.mu.Lock()
	c.latest = snap
	c.mu.Unlock()
	select {
	case <-c.snapshots:
	default:
	}
	c.snapshots <- snap
}

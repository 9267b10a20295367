package app

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/sync/errgroup"

	"noteboard/api/internal/auth"
	"noteboard/api/internal/board"
	"noteboard/api/internal/channel"
	"noteboard/api/internal/identity"
	"noteboard/api/internal/wire"
)

const (
	writeWait      = 10 * time.Second
	maxFrameBytes  = 16 * 1024
	pendingReplies = 16
)

var (
	errClientGone         = errors.New("client went away")
	errSubscriptionClosed = errors.New("board closed the subscription")
)

// handleSync upgrades to the WebSocket sync channel. A still-valid ?token=
// resumes that identity; anything else gets a fresh one.
func (s *HTTPServer) handleSync(w http.ResponseWriter, r *http.Request) {
	if !websocket.IsWebSocketUpgrade(r) {
		writeError(w, http.StatusBadRequest, "UPGRADE_REQUIRED", "Expected a WebSocket upgrade", nil)
		return
	}
	ctx := r.Context()
	session, err := s.syncSession(ctx, r.URL.Query().Get("token"))
	if err != nil {
		log.Printf("app: sync session: %v", err)
		writeError(w, http.StatusInternalServerError, "SESSION_FAILED", "Failed to create session", nil)
		return
	}
	sub, err := s.board.Subscribe(ctx)
	if err != nil {
		writeMappedError(w, err)
		return
	}
	defer sub.Close()

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already replied.
		log.Printf("app: websocket upgrade: %v", err)
		return
	}
	defer conn.Close()

	c := &syncConn{
		conn:       conn,
		board:      s.board,
		session:    session,
		sub:        sub,
		replies:    make(chan wire.ErrorFrame, pendingReplies),
		pingPeriod: s.pingPeriod,
	}
	if err := c.serve(ctx); err != nil {
		log.Printf("app: sync connection %s: %v", session.Identity.ID, err)
	}
}

func (s *HTTPServer) syncSession(ctx context.Context, token string) (identity.Session, error) {
	if token != "" {
		who, err := s.identities.Resolve(ctx, token)
		if err == nil {
			return identity.Session{Identity: who, Token: token}, nil
		}
		if !errors.Is(err, auth.ErrInvalidToken) && !errors.Is(err, auth.ErrExpiredToken) {
			return identity.Session{}, err
		}
	}
	return s.identities.Start(ctx)
}

// syncConn owns one WebSocket. Only writeLoop writes to conn.
type syncConn struct {
	conn       *websocket.Conn
	board      *board.Service
	session    identity.Session
	sub        *channel.Subscription
	replies    chan wire.ErrorFrame
	pingPeriod time.Duration
}

func (c *syncConn) serve(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return c.writeLoop(gctx) })
	g.Go(func() error { return c.readLoop(gctx) })
	g.Go(func() error {
		<-gctx.Done()
		_ = c.conn.Close()
		return nil
	})

	err := g.Wait()
	if errors.Is(err, errClientGone) || errors.Is(err, errSubscriptionClosed) || errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func (c *syncConn) writeLoop(ctx context.Context) error {
	hello := wire.HelloFrame{Type: wire.TypeHello, Identity: c.session.Identity, Token: c.session.Token}
	if err := c.write(hello); err != nil {
		return errClientGone
	}

	ticker := time.NewTicker(c.pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case snap, ok := <-c.sub.C():
			if !ok {
				deadline := time.Now().Add(writeWait)
				_ = c.conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"), deadline)
				return errSubscriptionClosed
			}
			if err := c.write(wire.NewSnapshotFrame(snap)); err != nil {
				return errClientGone
			}
		case reply := <-c.replies:
			if err := c.write(reply); err != nil {
				return errClientGone
			}
		case <-ticker.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return errClientGone
			}
		}
	}
}

func (c *syncConn) write(frame any) error {
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return c.conn.WriteJSON(frame)
}

func (c *syncConn) readLoop(ctx context.Context) error {
	pongWait := 2 * c.pingPeriod
	c.conn.SetReadLimit(maxFrameBytes)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			return errClientGone
		}
		_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))

		var cmd wire.CommandFrame
		if err := json.Unmarshal(raw, &cmd); err != nil {
			c.reply(wire.ErrorFrame{Type: wire.TypeError, Code: "INVALID_FRAME", Message: "frame is not valid JSON"})
			continue
		}
		if err := c.apply(ctx, cmd); err != nil {
			_, code, message, _ := mapError(err)
			if code == "SERVER_ERROR" {
				log.Printf("app: %s from %s: %v", cmd.Type, c.session.Identity.ID, err)
			}
			c.reply(wire.ErrorFrame{Type: wire.TypeError, Code: code, Message: message, Ref: cmd.Ref})
		}
	}
}

// apply runs one client command. Successful commands are answered by the
// snapshot they cause, not by a reply of their own.
func (c *syncConn) apply(ctx context.Context, cmd wire.CommandFrame) error {
	switch cmd.Type {
	case wire.TypeCreate:
		_, err := c.board.Create(ctx, cmd.Text, c.session.Identity)
		return err
	case wire.TypeDelete:
		if cmd.NoteID == "" {
			return domainError(http.StatusBadRequest, "INVALID_FRAME", "noteId is required", nil)
		}
		return c.board.Delete(ctx, cmd.NoteID, c.session.Identity)
	default:
		return domainError(http.StatusBadRequest, "UNKNOWN_COMMAND", "unknown command type", map[string]any{"type": cmd.Type})
	}
}

func (c *syncConn) reply(frame wire.ErrorFrame) {
	select {
	case c.replies <- frame:
	default:
		log.Printf("app: dropping %s reply to %s, writer is behind", frame.Code, c.session.Identity.ID)
	}
}

// Package identity issues the ephemeral per-connection identities that own
// notes. There are no credentials: an identity lives as long as its session
// token.
package identity

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"noteboard/api/internal/auth"
	"noteboard/api/internal/session"
	"noteboard/api/internal/util"
)

// Identity is immutable for the lifetime of its session.
type Identity struct {
	ID          string `json:"id"`
	DisplayName string `json:"name"`
	Color       string `json:"color"`
}

// Session pairs an identity with the bearer token that proves it.
type Session struct {
	Identity  Identity
	Token     string
	ExpiresAt time.Time
}

type sessionStore interface {
	SaveSession(context.Context, string, session.Record, time.Time) error
	LookupSession(context.Context, string) (session.Record, error)
	RevokeSession(context.Context, string) error
}

type Provider struct {
	secret   []byte
	ttl      time.Duration
	sessions sessionStore
	random   io.Reader
	now      func() time.Time
}

func NewProvider(secret []byte, ttl time.Duration, sessions sessionStore) *Provider {
	return &Provider{
		secret:   secret,
		ttl:      ttl,
		sessions: sessions,
		random:   rand.Reader,
		now:      time.Now,
	}
}

// Connect mints a fresh identity: a random UUID, a "User N" display name
// with N in [0, 999] and a #rrggbb color.
func (p *Provider) Connect(context.Context) (Identity, error) {
	id, err := uuid.NewRandomFromReader(p.random)
	if err != nil {
		return Identity{}, fmt.Errorf("generate identity id: %w", err)
	}
	var buf [5]byte
	if _, err := io.ReadFull(p.random, buf[:]); err != nil {
		return Identity{}, fmt.Errorf("generate identity traits: %w", err)
	}
	n := (int(buf[0])<<8 | int(buf[1])) % 1000
	return Identity{
		ID:          id.String(),
		DisplayName: fmt.Sprintf("User %d", n),
		Color:       fmt.Sprintf("#%02x%02x%02x", buf[2], buf[3], buf[4]),
	}, nil
}

// Issue signs a session token for identity and registers it.
func (p *Provider) Issue(ctx context.Context, identity Identity) (Session, error) {
	now := p.now()
	expiresAt := now.Add(p.ttl)
	token, err := auth.IssueToken(p.secret, auth.Claims{
		Name:  identity.DisplayName,
		Color: identity.Color,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   identity.ID,
			ID:        util.NewID(""),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	})
	if err != nil {
		return Session{}, err
	}

	record := session.Record{
		UserID:      identity.ID,
		DisplayName: identity.DisplayName,
		Color:       identity.Color,
		CreatedAt:   now.UTC(),
	}
	if err := p.sessions.SaveSession(ctx, auth.HashToken(token), record, expiresAt); err != nil {
		return Session{}, err
	}
	return Session{Identity: identity, Token: token, ExpiresAt: expiresAt}, nil
}

// Start is Connect followed by Issue.
func (p *Provider) Start(ctx context.Context) (Session, error) {
	identity, err := p.Connect(ctx)
	if err != nil {
		return Session{}, err
	}
	return p.Issue(ctx, identity)
}

// Resolve returns the identity behind a live token. Unknown, revoked and
// expired tokens all yield auth.ErrInvalidToken or auth.ErrExpiredToken.
func (p *Provider) Resolve(ctx context.Context, token string) (Identity, error) {
	claims, err := auth.ParseToken(p.secret, token)
	if err != nil {
		return Identity{}, err
	}
	record, err := p.sessions.LookupSession(ctx, auth.HashToken(token))
	if errors.Is(err, session.ErrNotFound) {
		return Identity{}, auth.ErrInvalidToken
	}
	if err != nil {
		return Identity{}, err
	}
	if record.UserID != claims.Subject {
		return Identity{}, auth.ErrInvalidToken
	}
	return Identity{ID: record.UserID, DisplayName: record.DisplayName, Color: record.Color}, nil
}

// Release forgets a session. Releasing twice is harmless.
func (p *Provider) Release(ctx context.Context, token string) error {
	return p.sessions.RevokeSession(ctx, auth.HashToken(token))
}

package token

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/huroof/go/internal/models"
)

// DefaultTTL is how long a reconnection token stays valid.
const DefaultTTL = 7 * 24 * time.Hour

// Token binds an opaque credential to one (session, name, role) triple.
type Token struct {
	Token     string
	SessionID string
	Name      string
	Role      models.Role
	CreatedAt time.Time
	ExpiresAt time.Time
}

// Repository records token bindings durably.
type Repository interface {
	Create(ctx context.Context, t Token) error
	Get(ctx context.Context, token string) (*Token, error)
	Delete(ctx context.Context, token string) error
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

// Authority issues and verifies reconnection tokens.
type Authority struct {
	repo  Repository
	clock clockwork.Clock
	ttl   time.Duration
}

// NewAuthority creates an Authority. A non-positive ttl uses DefaultTTL.
func NewAuthority(repo Repository, clock clockwork.Clock, ttl time.Duration) *Authority {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Authority{repo: repo, clock: clock, ttl: ttl}
}

// Issue creates a new token for the triple and records it.
func (a *Authority) Issue(ctx context.Context, sessionID, name string, role models.Role) (*Token, error) {
	if sessionID == "" || name == "" || !role.Valid() {
		return nil, ErrInvalidBinding
	}

	// durable records keep milliseconds
	now := a.clock.Now().UTC().Truncate(time.Millisecond)
	t := Token{
		Token:     uuid.NewString(),
		SessionID: sessionID,
		Name:      name,
		Role:      role,
		CreatedAt: now,
		ExpiresAt: now.Add(a.ttl),
	}
	if err := a.repo.Create(ctx, t); err != nil {
		return nil, fmt.Errorf("record token: %w", err)
	}

	log.Debug().
		Str("session_id", sessionID).
		Str("role", string(role)).
		Time("expires_at", t.ExpiresAt).
		Msg("issued reconnection token")
	return &t, nil
}

// Verify returns the binding for raw, or ErrTokenUnknown / ErrTokenExpired.
func (a *Authority) Verify(ctx context.Context, raw string) (*Token, error) {
	if raw == "" {
		return nil, ErrTokenUnknown
	}
	t, err := a.repo.Get(ctx, raw)
	if err != nil {
		return nil, err
	}
	if !a.clock.Now().Before(t.ExpiresAt) {
		return nil, ErrTokenExpired
	}
	return t, nil
}

// Invalidate removes a token so it can no longer be verified.
func (a *Authority) Invalidate(ctx context.Context, raw string) error {
	if err := a.repo.Delete(ctx, raw); err != nil {
		return fmt.Errorf("delete token: %w", err)
	}
	return nil
}

// Purge deletes tokens that expired before now.
func (a *Authority) Purge(ctx context.Context, now time.Time) (int64, error) {
	n, err := a.repo.DeleteExpired(ctx, now)
	if err != nil {
		return 0, fmt.Errorf("purge expired tokens: %w", err)
	}
	return n, nil
}

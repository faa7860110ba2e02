package token

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/mcdev12/huroof/go/internal/models"
	"github.com/mcdev12/huroof/go/internal/sqlutil"
	"github.com/mcdev12/huroof/go/internal/storage"
)

// SQLRepository stores tokens in the session_tokens table.
type SQLRepository struct {
	db *storage.DB
}

func NewSQLRepository(db *storage.DB) *SQLRepository {
	return &SQLRepository{db: db}
}

func (r *SQLRepository) Create(ctx context.Context, t Token) error {
	_, err := r.db.ExecContext(ctx, r.db.Dialect.Rebind(`
		INSERT INTO session_tokens (token, session_id, player_name, role, created_at, expires_at)
		VALUES (?, ?, ?, ?, ?, ?)`),
		t.Token, t.SessionID, t.Name, string(t.Role),
		sqlutil.ToMillis(t.CreatedAt), sqlutil.ToMillis(t.ExpiresAt),
	)
	if err != nil {
		return fmt.Errorf("insert token: %w", err)
	}
	return nil
}

func (r *SQLRepository) Get(ctx context.Context, token string) (*Token, error) {
	var (
		t                    Token
		role                 string
		createdAt, expiresAt int64
	)
	err := r.db.QueryRowContext(ctx, r.db.Dialect.Rebind(`
		SELECT token, session_id, player_name, role, created_at, expires_at
		FROM session_tokens WHERE token = ?`), token,
	).Scan(&t.Token, &t.SessionID, &t.Name, &role, &createdAt, &expiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrTokenUnknown
	}
	if err != nil {
		return nil, fmt.Errorf("select token: %w", err)
	}
	t.Role = models.Role(role)
	t.CreatedAt = sqlutil.FromMillis(createdAt)
	t.ExpiresAt = sqlutil.FromMillis(expiresAt)
	return &t, nil
}

func (r *SQLRepository) Delete(ctx context.Context, token string) error {
	_, err := r.db.ExecContext(ctx, r.db.Dialect.Rebind(`DELETE FROM session_tokens WHERE token = ?`), token)
	return err
}

func (r *SQLRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, r.db.Dialect.Rebind(`DELETE FROM session_tokens WHERE expires_at <= ?`), sqlutil.ToMillis(now))
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// MemoryRepository keeps tokens in process memory. Used when no database is
// configured and in tests.
type MemoryRepository struct {
	mu     sync.RWMutex
	tokens map[string]Token
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{tokens: make(map[string]Token)}
}

func (r *MemoryRepository) Create(_ context.Context, t Token) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tokens[t.Token]; exists {
		return fmt.Errorf("token %s already recorded", t.Token)
	}
	r.tokens[t.Token] = t
	return nil
}

func (r *MemoryRepository) Get(_ context.Context, token string) (*Token, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tokens[token]
	if !ok {
		return nil, ErrTokenUnknown
	}
	return &t, nil
}

func (r *MemoryRepository) Delete(_ context.Context, token string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.tokens, token)
	return nil
}

func (r *MemoryRepository) DeleteExpired(_ context.Context, now time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for k, t := range r.tokens {
		if !t.ExpiresAt.After(now) {
			delete(r.tokens, k)
			n++
		}
	}
	return n, nil
}

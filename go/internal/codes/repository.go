package codes

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/mcdev12/huroof/go/internal/sqlutil"
	"github.com/mcdev12/huroof/go/internal/storage"
)

// Repository reads the subscribers table.
type Repository struct {
	db *storage.DB
}

func NewRepository(db *storage.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) LookupCode(ctx context.Context, code string) (bool, bool, error) {
	var isAdmin bool
	err := r.db.QueryRowContext(ctx, r.db.Dialect.Rebind(`SELECT is_admin FROM subscribers WHERE code = ?`), code).Scan(&isAdmin)
	if errors.Is(err, sql.ErrNoRows) {
		return false, false, nil
	}
	if err != nil {
		return false, false, fmt.Errorf("select subscriber: %w", err)
	}
	return true, isAdmin, nil
}

// AddCode registers a subscriber code. Existing codes are left untouched.
func (r *Repository) AddCode(ctx context.Context, code string, isAdmin bool, now time.Time) (bool, error) {
	res, err := r.db.ExecContext(ctx, r.db.Dialect.Rebind(`
		INSERT INTO subscribers (code, is_admin, created_at) VALUES (?, ?, ?)
		ON CONFLICT (code) DO NOTHING`), code, isAdmin, sqlutil.ToMillis(now))
	if err != nil {
		return false, fmt.Errorf("insert subscriber: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// MemoryQuerier is a fixed code set, used in development and tests.
type MemoryQuerier struct {
	mu    sync.RWMutex
	codes map[string]bool
}

func NewMemoryQuerier() *MemoryQuerier {
	return &MemoryQuerier{codes: make(map[string]bool)}
}

func (m *MemoryQuerier) Add(code string, isAdmin bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.codes[code] = isAdmin
}

func (m *MemoryQuerier) LookupCode(_ context.Context, code string) (bool, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	isAdmin, ok := m.codes[code]
	return ok, isAdmin, nil
}

package session

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sqlc-dev/pqtype"

	"github.com/mcdev12/huroof/go/internal/models"
	"github.com/mcdev12/huroof/go/internal/sqlutil"
	"github.com/mcdev12/huroof/go/internal/storage"
)

// Repository is the durable session store.
type Repository interface {
	Save(ctx context.Context, s *models.Session) error
	Load(ctx context.Context, id string) (*models.Session, error)
	DeleteInactive(ctx context.Context, before time.Time) (int64, error)
}

// SQLRepository persists sessions as JSON documents in game_sessions.
type SQLRepository struct {
	db *storage.DB
}

func NewSQLRepository(db *storage.DB) *SQLRepository {
	return &SQLRepository{db: db}
}

func (r *SQLRepository) Save(ctx context.Context, s *models.Session) error {
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}
	_, err = r.db.ExecContext(ctx, r.db.Dialect.Rebind(`
		INSERT INTO game_sessions (session_id, data, last_activity)
		VALUES (?, ?, ?)
		ON CONFLICT (session_id) DO UPDATE
		SET data = excluded.data, last_activity = excluded.last_activity`),
		s.ID,
		pqtype.NullRawMessage{RawMessage: data, Valid: len(data) > 0},
		sqlutil.ToMillis(s.LastActivity),
	)
	if err != nil {
		return fmt.Errorf("upsert session: %w", err)
	}
	return nil
}

func (r *SQLRepository) Load(ctx context.Context, id string) (*models.Session, error) {
	var data pqtype.NullRawMessage
	err := r.db.QueryRowContext(ctx, r.db.Dialect.Rebind(`SELECT data FROM game_sessions WHERE session_id = ?`), id).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("select session: %w", err)
	}
	if !data.Valid {
		return nil, ErrNotFound
	}
	var s models.Session
	if err := json.Unmarshal(data.RawMessage, &s); err != nil {
		return nil, fmt.Errorf("unmarshal session %s: %w", id, err)
	}
	return &s, nil
}

func (r *SQLRepository) DeleteInactive(ctx context.Context, before time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, r.db.Dialect.Rebind(`DELETE FROM game_sessions WHERE last_activity < ?`), sqlutil.ToMillis(before))
	if err != nil {
		return 0, fmt.Errorf("delete inactive sessions: %w", err)
	}
	return res.RowsAffected()
}

// MemoryRepository keeps encoded sessions in process memory.
type MemoryRepository struct {
	mu      sync.RWMutex
	records map[string]memoryRecord
}

type memoryRecord struct {
	data         []byte
	lastActivity time.Time
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{records: make(map[string]memoryRecord)}
}

func (m *MemoryRepository) Save(_ context.Context, s *models.Session) error {
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[s.ID] = memoryRecord{data: data, lastActivity: s.LastActivity}
	return nil
}

func (m *MemoryRepository) Load(_ context.Context, id string) (*models.Session, error) {
	m.mu.RLock()
	rec, ok := m.records[id]
	m.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}
	var s models.Session
	if err := json.Unmarshal(rec.data, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

func (m *MemoryRepository) DeleteInactive(_ context.Context, before time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for id, rec := range m.records {
		if rec.lastActivity.Before(before) {
			delete(m.records, id)
			n++
		}
	}
	return n, nil
}

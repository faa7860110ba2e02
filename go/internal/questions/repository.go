package questions

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/mcdev12/huroof/go/internal/models"
	"github.com/mcdev12/huroof/go/internal/sqlutil"
	"github.com/mcdev12/huroof/go/internal/storage"
)

// Repository is the storage behind a Bank.
type Repository interface {
	ListGeneral(ctx context.Context) (models.QuestionPool, error)
	ListSession(ctx context.Context, sessionID string) (models.QuestionPool, error)
	InsertSession(ctx context.Context, sessionID, letter string, q models.Question, now time.Time) error
}

// SQLRepository reads general_questions and session_questions.
type SQLRepository struct {
	db *storage.DB
}

func NewSQLRepository(db *storage.DB) *SQLRepository {
	return &SQLRepository{db: db}
}

func (r *SQLRepository) ListGeneral(ctx context.Context) (models.QuestionPool, error) {
	return r.list(ctx, `SELECT letter, question, answer FROM general_questions ORDER BY id`)
}

func (r *SQLRepository) ListSession(ctx context.Context, sessionID string) (models.QuestionPool, error) {
	return r.list(ctx, `SELECT letter, question, answer FROM session_questions WHERE session_code = ? ORDER BY id`, sessionID)
}

func (r *SQLRepository) list(ctx context.Context, query string, args ...any) (models.QuestionPool, error) {
	rows, err := r.db.QueryContext(ctx, r.db.Dialect.Rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("query questions: %w", err)
	}
	defer rows.Close()

	pool := models.QuestionPool{}
	for rows.Next() {
		var letter string
		var q models.Question
		if err := rows.Scan(&letter, &q.Question, &q.Answer); err != nil {
			return nil, fmt.Errorf("scan question: %w", err)
		}
		pool[letter] = append(pool[letter], q)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate questions: %w", err)
	}
	return pool, nil
}

func (r *SQLRepository) InsertSession(ctx context.Context, sessionID, letter string, q models.Question, now time.Time) error {
	_, err := r.db.ExecContext(ctx, r.db.Dialect.Rebind(`
		INSERT INTO session_questions (session_code, letter, question, answer, created_at)
		VALUES (?, ?, ?, ?, ?)`), sessionID, letter, q.Question, q.Answer, sqlutil.ToMillis(now))
	if err != nil {
		return fmt.Errorf("insert session question: %w", err)
	}
	return nil
}

// MemoryRepository holds questions in process memory.
type MemoryRepository struct {
	mu      sync.RWMutex
	general models.QuestionPool
	session map[string]models.QuestionPool
}

func NewMemoryRepository(general models.QuestionPool) *MemoryRepository {
	if general == nil {
		general = models.QuestionPool{}
	}
	return &MemoryRepository{general: general, session: make(map[string]models.QuestionPool)}
}

func (m *MemoryRepository) ListGeneral(context.Context) (models.QuestionPool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.general.Clone(), nil
}

func (m *MemoryRepository) ListSession(_ context.Context, sessionID string) (models.QuestionPool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.session[sessionID].Clone(), nil
}

func (m *MemoryRepository) InsertSession(_ context.Context, sessionID, letter string, q models.Question, _ time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	pool := m.session[sessionID]
	if pool == nil {
		pool = models.QuestionPool{}
		m.session[sessionID] = pool
	}
	pool[letter] = append(pool[letter], q)
	return nil
}

// Package questions serves the general question pool and each session's own
// additions.
package questions

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/huroof/go/internal/models"
)

// ErrInvalidQuestion is returned for additions with an unknown letter or empty text.
var ErrInvalidQuestion = errors.New("invalid question")

// Bank caches the general pool after its first successful load. The general
// pool is treated as immutable for the life of the process.
type Bank struct {
	repo  Repository
	clock clockwork.Clock

	mu      sync.Mutex
	general models.QuestionPool
}

func NewBank(repo Repository, clock clockwork.Clock) *Bank {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Bank{repo: repo, clock: clock}
}

// LoadGeneral returns the shared reference pool. Callers must not modify it.
func (b *Bank) LoadGeneral(ctx context.Context) (models.QuestionPool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.general != nil {
		return b.general, nil
	}
	pool, err := b.repo.ListGeneral(ctx)
	if err != nil {
		return nil, fmt.Errorf("load general questions: %w", err)
	}
	b.general = pool
	log.Info().Int("questions", pool.Count()).Msg("loaded general question pool")
	return pool, nil
}

// LoadSessionScoped returns the questions added for one session.
func (b *Bank) LoadSessionScoped(ctx context.Context, sessionID string) (models.QuestionPool, error) {
	pool, err := b.repo.ListSession(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("load session questions: %w", err)
	}
	return pool, nil
}

// AddSessionQuestion records a question for sessionID under letter.
func (b *Bank) AddSessionQuestion(ctx context.Context, sessionID, letter string, q models.Question) error {
	if !models.IsLetter(letter) || strings.TrimSpace(q.Question) == "" || strings.TrimSpace(q.Answer) == "" {
		return ErrInvalidQuestion
	}
	return b.repo.InsertSession(ctx, sessionID, letter, q, b.clock.Now())
}

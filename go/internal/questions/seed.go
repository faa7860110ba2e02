package questions

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/mcdev12/huroof/go/internal/models"
	"github.com/mcdev12/huroof/go/internal/sqlutil"
)

// ParsePool decodes a {"letter": [["question", "answer"], ...]} document.
// Entries for letters outside the board alphabet are rejected.
func ParsePool(data []byte) (models.QuestionPool, error) {
	var pool models.QuestionPool
	if err := json.Unmarshal(data, &pool); err != nil {
		return nil, fmt.Errorf("decode question pool: %w", err)
	}
	for letter := range pool {
		if !models.IsLetter(letter) {
			return nil, fmt.Errorf("%w: unknown letter %q", ErrInvalidQuestion, letter)
		}
	}
	return pool, nil
}

// SeedGeneral fills general_questions from pool when the table is empty and
// returns the number of rows inserted. A populated table is left untouched.
func (r *SQLRepository) SeedGeneral(ctx context.Context, pool models.QuestionPool) (int, error) {
	var existing int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM general_questions`).Scan(&existing); err != nil {
		return 0, fmt.Errorf("count general questions: %w", err)
	}
	if existing > 0 {
		return 0, nil
	}

	inserted := 0
	err := sqlutil.Run(ctx, r.db.DB, func(tx *sql.Tx) error {
		stmt := r.db.Dialect.Rebind(`
			INSERT INTO general_questions (letter, question, answer) VALUES (?, ?, ?)
			ON CONFLICT (letter, question) DO NOTHING`)
		for _, letter := range models.Alphabet {
			for _, q := range pool[letter] {
				res, err := tx.ExecContext(ctx, stmt, letter, q.Question, q.Answer)
				if err != nil {
					return fmt.Errorf("insert general question: %w", err)
				}
				if n, _ := res.RowsAffected(); n == 1 {
					inserted++
				}
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	log.Info().Int("questions", inserted).Msg("seeded general question pool")
	return inserted, nil
}

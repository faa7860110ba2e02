package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/mcdev12/huroof/go/internal/sqlutil"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS game_sessions (
	   session_id    TEXT PRIMARY KEY,
	   data          {{json}} NOT NULL,
	   last_activity BIGINT NOT NULL
	 )`,
	`CREATE INDEX IF NOT EXISTS game_sessions_last_activity_idx ON game_sessions (last_activity)`,
	`CREATE TABLE IF NOT EXISTS session_tokens (
	   token       TEXT PRIMARY KEY,
	   session_id  TEXT NOT NULL,
	   player_name TEXT NOT NULL,
	   role        TEXT NOT NULL,
	   created_at  BIGINT NOT NULL,
	   expires_at  BIGINT NOT NULL
	 )`,
	`CREATE INDEX IF NOT EXISTS session_tokens_expires_at_idx ON session_tokens (expires_at)`,
	`CREATE TABLE IF NOT EXISTS subscribers (
	   code       TEXT PRIMARY KEY,
	   is_admin   BOOLEAN NOT NULL DEFAULT FALSE,
	   created_at BIGINT NOT NULL
	 )`,
	`CREATE TABLE IF NOT EXISTS general_questions (
	   id       {{serial}},
	   letter   TEXT NOT NULL,
	   question TEXT NOT NULL,
	   answer   TEXT NOT NULL,
	   UNIQUE (letter, question)
	 )`,
	`CREATE TABLE IF NOT EXISTS session_questions (
	   id           {{serial}},
	   session_code TEXT NOT NULL,
	   letter       TEXT NOT NULL,
	   question     TEXT NOT NULL,
	   answer       TEXT NOT NULL,
	   created_at   BIGINT NOT NULL
	 )`,
	`CREATE INDEX IF NOT EXISTS session_questions_code_idx ON session_questions (session_code)`,
}

// Migrate creates any missing tables. Statements are idempotent.
func Migrate(ctx context.Context, db *DB) error {
	return sqlutil.Run(ctx, db.DB, func(tx *sql.Tx) error {
		for _, stmt := range schema {
			if _, err := tx.ExecContext(ctx, render(stmt, db.Dialect)); err != nil {
				return fmt.Errorf("exec %q: %w", firstLine(stmt), err)
			}
		}
		return nil
	})
}

func render(stmt string, d sqlutil.Dialect) string {
	json, serial := "BLOB", "INTEGER PRIMARY KEY AUTOINCREMENT"
	if d == sqlutil.Postgres {
		json, serial = "JSONB", "BIGSERIAL PRIMARY KEY"
	}
	return strings.NewReplacer("{{json}}", json, "{{serial}}", serial).Replace(stmt)
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}

// Package storage opens the durable database shared by the session, token,
// code and question repositories.
package storage

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"strings"

	_ "github.com/lib/pq"
	"github.com/rs/zerolog/log"
	_ "modernc.org/sqlite"

	"github.com/mcdev12/huroof/go/internal/dbconfig"
	"github.com/mcdev12/huroof/go/internal/sqlutil"
)

// Options selects and locates the database.
type Options struct {
	Driver     sqlutil.Dialect
	SQLitePath string
	Postgres   dbconfig.Config
}

// DB is an open handle plus the dialect its statements must use.
type DB struct {
	*sql.DB
	Dialect sqlutil.Dialect
}

// Open connects, pings and applies the schema.
func Open(ctx context.Context, opts Options) (*DB, error) {
	var (
		sqlDB *sql.DB
		err   error
	)
	switch opts.Driver {
	case sqlutil.Postgres:
		sqlDB, err = sql.Open("postgres", opts.Postgres.DSN())
	case sqlutil.SQLite:
		path := strings.TrimSpace(opts.SQLitePath)
		if path == "" {
			return nil, fmt.Errorf("sqlite path is required")
		}
		dsn := filepath.Clean(path) + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
		sqlDB, err = sql.Open("sqlite", dsn)
		if err == nil {
			// one writer at a time keeps SQLITE_BUSY out of the hot path
			sqlDB.SetMaxOpenConns(1)
		}
	default:
		return nil, fmt.Errorf("unsupported storage driver %q", opts.Driver)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create database connection: %w", err)
	}

	if err := sqlDB.PingContext(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	db := &DB{DB: sqlDB, Dialect: opts.Driver}
	if err := Migrate(ctx, db); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	log.Info().Str("driver", string(opts.Driver)).Msg("connected to database")
	return db, nil
}

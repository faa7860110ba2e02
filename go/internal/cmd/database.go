package main

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/mcdev12/huroof/go/internal/config"
	"github.com/mcdev12/huroof/go/internal/dbconfig"
	"github.com/mcdev12/huroof/go/internal/sqlutil"
	"github.com/mcdev12/huroof/go/internal/storage"
)

// setupDatabase opens the durable store. The memory driver returns nil and
// every repository falls back to its in-process implementation.
func setupDatabase(ctx context.Context, cfg config.Storage) (*storage.DB, error) {
	if cfg.Driver == "memory" {
		log.Warn().Msg("using in-memory storage, sessions will not survive a restart")
		return nil, nil
	}

	opts := storage.Options{
		Driver:     sqlutil.Dialect(cfg.Driver),
		SQLitePath: cfg.SQLitePath,
	}
	if opts.Driver == sqlutil.Postgres {
		opts.Postgres = dbconfig.NewConfigFromEnv()
		log.Info().Str("dsn", opts.Postgres.Redacted()).Msg("connecting to postgres")
	}
	return storage.Open(ctx, opts)
}

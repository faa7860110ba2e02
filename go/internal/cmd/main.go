package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/huroof/go/internal/telemetry"
)

func main() {
	configPath := flag.String("config", getEnv("HUROOF_CONFIG", ""), "path to a YAML config file")
	flag.Parse()

	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		log.Debug().Err(err).Msg("no .env file loaded")
	}

	cfg, err := loadSettings(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}
	setupLogger(cfg.Log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := telemetry.Setup(ctx, cfg.Telemetry)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to set up tracing")
	}

	db, err := setupDatabase(ctx, cfg.Storage)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open storage")
	}

	services, err := setupServices(ctx, cfg, db)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to wire services")
	}

	server := setupServer(cfg.Server, services)

	runCtx, cancel := context.WithCancel(context.Background())
	done := services.start(runCtx)

	go func() {
		log.Info().Str("addr", server.Addr).Str("storage", cfg.Storage.Driver).Msg("HTTP server starting")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("received shutdown signal")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown failed")
	}

	cancel()
	select {
	case <-done:
	case <-shutdownCtx.Done():
		log.Warn().Msg("background workers did not stop in time")
	}

	services.close()
	if db != nil {
		if err := db.Close(); err != nil {
			log.Error().Err(err).Msg("failed to close database")
		}
	}
	if err := shutdownTracing(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("failed to flush traces")
	}

	log.Info().Msg("huroof server shutdown complete")
}

package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/huroof/go/internal/events"
)

// Tails the session event stream into the log.
func main() {
	session := flag.String("session", "", "only log events for this session id")
	durable := flag.String("consumer", "huroof-event-log", "durable consumer name")
	flag.Parse()

	if err := godotenv.Load(); err != nil {
		log.Warn().Err(err).Msg("could not load .env file")
	}

	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	cfg := events.DefaultConsumerConfig()
	cfg.URL = getEnv("NATS_URL", cfg.URL)
	cfg.ConsumerName = *durable
	if *session != "" {
		cfg.SubjectFilter = events.SessionFilter("huroof.events", *session)
		// a filtered view gets its own durable so it does not steal the full log's acks
		cfg.ConsumerName = *durable + "-" + *session
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	consumer, err := events.NewConsumer(ctx, cfg, func(_ context.Context, env events.Envelope) error {
		log.Info().
			Str("event_id", env.EventID).
			Str("session_id", env.SessionID).
			Str("event_type", env.EventType).
			Time("timestamp", env.Timestamp).
			RawJSON("payload", env.Payload).
			Msg("session event")
		return nil
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create event consumer")
	}
	defer consumer.Stop()

	if err := consumer.Start(ctx); err != nil {
		log.Fatal().Err(err).Msg("event consumer failed")
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

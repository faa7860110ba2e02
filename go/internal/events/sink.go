package events

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

// SinkConfig tunes the sink queue.
type SinkConfig struct {
	QueueSize      int
	PublishTimeout time.Duration
}

func DefaultSinkConfig() SinkConfig {
	return SinkConfig{QueueSize: 1024, PublishTimeout: 5 * time.Second}
}

// Sink queues broadcasts and publishes them from a single goroutine, so a
// slow or absent stream never delays a session.
type Sink struct {
	publisher Publisher
	clock     clockwork.Clock
	config    SinkConfig
	queue     chan Envelope
	dropped   atomic.Int64
}

func NewSink(publisher Publisher, clock clockwork.Clock, config SinkConfig) *Sink {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	def := DefaultSinkConfig()
	if config.QueueSize <= 0 {
		config.QueueSize = def.QueueSize
	}
	if config.PublishTimeout <= 0 {
		config.PublishTimeout = def.PublishTimeout
	}
	return &Sink{
		publisher: publisher,
		clock:     clock,
		config:    config,
		queue:     make(chan Envelope, config.QueueSize),
	}
}

// Publish enqueues a broadcast. It never blocks; a full queue drops the event.
func (s *Sink) Publish(sessionID, eventType string, message []byte) {
	env := Envelope{
		EventID:   uuid.NewString(),
		EventType: eventType,
		SessionID: sessionID,
		Timestamp: s.clock.Now().UTC(),
		Payload:   append([]byte(nil), message...),
	}
	select {
	case s.queue <- env:
	default:
		s.dropped.Add(1)
		droppedTotal.Inc()
		log.Warn().
			Str("session_id", sessionID).
			Str("event_type", eventType).
			Msg("event sink queue full, dropping event")
	}
}

// Dropped returns the number of events dropped so far.
func (s *Sink) Dropped() int64 {
	return s.dropped.Load()
}

// Run publishes queued events until ctx is done, then flushes what is left.
func (s *Sink) Run(ctx context.Context) {
	log.Info().Msg("event sink started")
	for {
		select {
		case <-ctx.Done():
			s.flush()
			log.Info().Msg("event sink stopped")
			return
		case env := <-s.queue:
			s.publish(context.WithoutCancel(ctx), env)
		}
	}
}

func (s *Sink) flush() {
	for {
		select {
		case env := <-s.queue:
			s.publish(context.Background(), env)
		default:
			return
		}
	}
}

func (s *Sink) publish(ctx context.Context, env Envelope) {
	ctx, cancel := context.WithTimeout(ctx, s.config.PublishTimeout)
	defer cancel()

	if err := s.publisher.Publish(ctx, env); err != nil {
		publishFailuresTotal.Inc()
		log.Error().
			Err(err).
			Str("session_id", env.SessionID).
			Str("event_type", env.EventType).
			Msg("failed to publish event")
		return
	}
	publishedTotal.Inc()
}

package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog/log"
)

const (
	DefaultStream        = "HUROOF_EVENTS"
	DefaultSubjectPrefix = "huroof.events"

	headerSession   = "Huroof-Session"
	headerEventType = "Huroof-Event-Type"
)

// StreamConfig locates the broker and shapes the session event stream.
// Retain bounds how long a session's history can be replayed.
type StreamConfig struct {
	URL           string
	Stream        string
	SubjectPrefix string
	Retain        time.Duration
	MaxBytes      int64
	DedupWindow   time.Duration
}

func DefaultStreamConfig() StreamConfig {
	return StreamConfig{
		URL:           nats.DefaultURL,
		Stream:        DefaultStream,
		SubjectPrefix: DefaultSubjectPrefix,
		Retain:        24 * time.Hour,
		MaxBytes:      -1,
		DedupWindow:   2 * time.Minute,
	}
}

func (c StreamConfig) jetstream() jetstream.StreamConfig {
	return jetstream.StreamConfig{
		Name:        c.Stream,
		Description: "huroof session broadcasts",
		Subjects:    []string{c.SubjectPrefix + ".>"},
		Retention:   jetstream.LimitsPolicy,
		Discard:     jetstream.DiscardOld,
		MaxAge:      c.Retain,
		MaxBytes:    c.MaxBytes,
		Storage:     jetstream.FileStorage,
		Duplicates:  c.DedupWindow,
	}
}

// Publisher writes envelopes to a stream.
type Publisher interface {
	Publish(ctx context.Context, env Envelope) error
	Close() error
}

// JetStreamPublisher stores every envelope under prefix.session.type.
type JetStreamPublisher struct {
	nc     *nats.Conn
	js     jetstream.JetStream
	config StreamConfig
}

// connect dials NATS with unlimited reconnects, logging connection changes
// under name.
func connect(url, name string) (*nats.Conn, jetstream.JetStream, error) {
	nc, err := nats.Connect(url,
		nats.Name(name),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			log.Warn().Err(err).Str("client", name).Msg("event stream disconnected")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info().Str("client", name).Str("url", nc.ConnectedUrl()).Msg("event stream reconnected")
		}),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("connect to NATS: %w", err)
	}
	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, nil, fmt.Errorf("create JetStream context: %w", err)
	}
	return nc, js, nil
}

// NewJetStreamPublisher connects and creates the stream, or updates it to
// match config.
func NewJetStreamPublisher(ctx context.Context, config StreamConfig) (*JetStreamPublisher, error) {
	nc, js, err := connect(config.URL, "huroof-server")
	if err != nil {
		return nil, err
	}
	stream, err := js.CreateOrUpdateStream(ctx, config.jetstream())
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("ensure stream %s: %w", config.Stream, err)
	}
	log.Info().
		Str("stream", stream.CachedInfo().Config.Name).
		Dur("retain", config.Retain).
		Msg("session event stream ready")
	return &JetStreamPublisher{nc: nc, js: js, config: config}, nil
}

// Publish stores env. The event id doubles as the dedup id, so a retried
// publish inside the dedup window is stored once.
func (p *JetStreamPublisher) Publish(ctx context.Context, env Envelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	msg := nats.NewMsg(Subject(p.config.SubjectPrefix, env.SessionID, env.EventType))
	msg.Data = data
	msg.Header.Set(headerSession, env.SessionID)
	msg.Header.Set(headerEventType, env.EventType)

	ack, err := p.js.PublishMsg(ctx, msg,
		jetstream.WithMsgID(env.EventID),
		jetstream.WithExpectStream(p.config.Stream),
	)
	if err != nil {
		return fmt.Errorf("publish %s for session %s: %w", env.EventType, env.SessionID, err)
	}
	if ack.Duplicate {
		log.Debug().Str("event_id", env.EventID).Msg("duplicate event ignored by stream")
	}
	return nil
}

func (p *JetStreamPublisher) Close() error {
	return p.nc.Drain()
}

// Package session owns the canonical per-session aggregate. Every read and
// write goes through a Store, which serializes work per session id and
// writes committed state through to a Repository.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/mcdev12/huroof/go/internal/models"
)

var tracer = otel.Tracer("github.com/mcdev12/huroof/go/internal/session")

// QuestionSource supplies the question pools attached to a session.
type QuestionSource interface {
	LoadGeneral(ctx context.Context) (models.QuestionPool, error)
	LoadSessionScoped(ctx context.Context, sessionID string) (models.QuestionPool, error)
}

// Config tunes persistence and eviction.
type Config struct {
	SaveTimeout    time.Duration
	IdleEvictAfter time.Duration
	Retention      time.Duration
}

func DefaultConfig() Config {
	return Config{
		SaveTimeout:    5 * time.Second,
		IdleEvictAfter: 30 * time.Minute,
		Retention:      24 * time.Hour,
	}
}

// Mutation is handed to ApplyMutation callbacks. Session is a private copy
// that becomes canonical only if the callback returns nil.
type Mutation struct {
	Session *models.Session
	Now     time.Time

	noChange bool
	effects  []func()
}

// AfterCommit registers f to run after the mutation is persisted, while the
// session is still held. Effects run in registration order.
func (m *Mutation) AfterCommit(f func()) {
	m.effects = append(m.effects, f)
}

// NoChange marks the mutation as a no-op: nothing is persisted and the copy is
// discarded, but registered effects still run.
func (m *Mutation) NoChange() {
	m.noChange = true
}

type entry struct {
	mu      sync.Mutex
	session *models.Session
	evicted bool

	// guarded by Store.mu
	refs int
}

// Store caches sessions and serializes access per session id.
type Store struct {
	repo      Repository
	questions QuestionSource
	clock     clockwork.Clock
	config    Config

	mu      sync.Mutex
	entries map[string]*entry
	onEvict []func(sessionID string)
}

// NewStore creates a Store. questions may be nil.
func NewStore(repo Repository, questions QuestionSource, clock clockwork.Clock, config Config) *Store {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	def := DefaultConfig()
	if config.SaveTimeout <= 0 {
		config.SaveTimeout = def.SaveTimeout
	}
	if config.IdleEvictAfter <= 0 {
		config.IdleEvictAfter = def.IdleEvictAfter
	}
	if config.Retention <= 0 {
		config.Retention = def.Retention
	}
	return &Store{
		repo:      repo,
		questions: questions,
		clock:     clock,
		config:    config,
		entries:   make(map[string]*entry),
	}
}

// OnEvict registers f to run, with the session held, when a session leaves the cache.
func (s *Store) OnEvict(f func(sessionID string)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onEvict = append(s.onEvict, f)
}

// GetOrCreate returns a copy of the session, loading or creating it as needed.
func (s *Store) GetOrCreate(ctx context.Context, id string) (*models.Session, error) {
	e, err := s.lock(ctx, id)
	if err != nil {
		return nil, err
	}
	defer e.mu.Unlock()
	return e.session.Clone(), nil
}

// Snapshot returns a copy suitable for an init message for role. Only hosts
// receive the session's own question pool.
func (s *Store) Snapshot(ctx context.Context, id string, role models.Role) (*models.Session, error) {
	snap, err := s.GetOrCreate(ctx, id)
	if err != nil {
		return nil, err
	}
	return Redact(snap, role), nil
}

// Redact strips fields role may not see. snap is modified in place.
func Redact(snap *models.Session, role models.Role) *models.Session {
	if role != models.RoleHost {
		snap.Questions = models.Questions{}
	}
	return snap
}

// View runs fn with the session held. fn must not modify or retain s.
func (s *Store) View(ctx context.Context, id string, fn func(s *models.Session) error) error {
	e, err := s.lock(ctx, id)
	if err != nil {
		return err
	}
	defer e.mu.Unlock()
	return fn(e.session)
}

// ApplyMutation runs fn against a copy of the session. On success the copy
// becomes canonical, last activity is bumped, the session is written through
// to the repository and AfterCommit effects run, all before any other
// mutation of the same session can start. A failed write is logged and
// counted; the in-memory state stays authoritative.
func (s *Store) ApplyMutation(ctx context.Context, id string, fn func(m *Mutation) error) error {
	ctx, span := tracer.Start(ctx, "session.apply_mutation",
		trace.WithAttributes(attribute.String("session.id", id)))
	defer span.End()

	e, err := s.lock(ctx, id)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	defer e.mu.Unlock()

	m := &Mutation{Session: e.session.Clone(), Now: s.clock.Now()}
	if err := fn(m); err != nil {
		span.RecordError(err)
		return err
	}

	if !m.noChange {
		m.Session.LastActivity = m.Now
		e.session = m.Session
		mutationsTotal.Inc()
		s.persist(ctx, e.session)
	}
	span.SetAttributes(attribute.Bool("session.changed", !m.noChange))

	for _, effect := range m.effects {
		effect()
	}
	return nil
}

// Acquire marks the session as referenced by a live connection, which keeps
// it from being evicted.
func (s *Store) Acquire(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entryLocked(id).refs++
}

// Release drops a reference taken by Acquire.
func (s *Store) Release(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.entries[id]; ok && e.refs > 0 {
		e.refs--
	}
}

// Len returns the number of cached sessions.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Evict drops unreferenced sessions idle since before now minus the idle
// threshold. The durable record is untouched. Returns the number evicted.
func (s *Store) Evict(now time.Time) int {
	s.mu.Lock()
	candidates := make(map[string]*entry)
	for id, e := range s.entries {
		if e.refs == 0 {
			candidates[id] = e
		}
	}
	hooks := append([]func(string){}, s.onEvict...)
	s.mu.Unlock()

	evicted := 0
	for id, e := range candidates {
		// a held session is in use and therefore not idle
		if !e.mu.TryLock() {
			continue
		}
		if e.session != nil && now.Sub(e.session.LastActivity) < s.config.IdleEvictAfter {
			e.mu.Unlock()
			continue
		}

		s.mu.Lock()
		removed := e.refs == 0 && s.entries[id] == e
		if removed {
			delete(s.entries, id)
			e.evicted = true
		}
		s.mu.Unlock()

		if removed {
			for _, hook := range hooks {
				hook(id)
			}
			evicted++
			evictionsTotal.Inc()
			log.Debug().Str("session_id", id).Msg("evicted idle session from memory")
		}
		e.mu.Unlock()
	}

	cachedSessions.Set(float64(s.Len()))
	return evicted
}

// Purge evicts idle sessions and deletes durable records whose last activity
// is older than the retention window.
func (s *Store) Purge(ctx context.Context, now time.Time) (int64, error) {
	if n := s.Evict(now); n > 0 {
		log.Info().Int("evicted", n).Msg("evicted idle sessions")
	}
	n, err := s.repo.DeleteInactive(ctx, now.Add(-s.config.Retention))
	if err != nil {
		return 0, fmt.Errorf("reap durable sessions: %w", err)
	}
	return n, nil
}

func (s *Store) entryLocked(id string) *entry {
	e, ok := s.entries[id]
	if !ok {
		e = &entry{}
		s.entries[id] = e
		cachedSessions.Set(float64(len(s.entries)))
	}
	return e
}

// lock returns the entry for id with its mutex held and its session loaded.
func (s *Store) lock(ctx context.Context, id string) (*entry, error) {
	if id == "" {
		return nil, ErrInvalidID
	}
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		s.mu.Lock()
		e := s.entryLocked(id)
		s.mu.Unlock()

		e.mu.Lock()
		if e.evicted {
			e.mu.Unlock()
			continue
		}
		if e.session == nil {
			sess, err := s.load(ctx, id)
			if err != nil {
				e.mu.Unlock()
				return nil, err
			}
			e.session = sess
		}
		return e, nil
	}
}

// load rehydrates id from the repository or builds a fresh session.
func (s *Store) load(ctx context.Context, id string) (*models.Session, error) {
	sess, err := s.repo.Load(ctx, id)
	switch {
	case errors.Is(err, ErrNotFound):
		sess = models.NewSession(id, s.clock.Now())
		log.Info().Str("session_id", id).Msg("created session")
	case err != nil:
		return nil, fmt.Errorf("load session %s: %w", id, err)
	default:
		sess.ID = id
		sess.Normalize()
		// timers and sockets do not survive a restart
		sess.ResetEphemeral()
		log.Info().Str("session_id", id).Msg("rehydrated session")
	}

	s.attachQuestions(ctx, sess)
	return sess, nil
}

func (s *Store) attachQuestions(ctx context.Context, sess *models.Session) {
	sess.Questions = models.Questions{General: models.QuestionPool{}, Session: models.QuestionPool{}}
	if s.questions == nil {
		return
	}
	if general, err := s.questions.LoadGeneral(ctx); err != nil {
		log.Warn().Err(err).Str("session_id", sess.ID).Msg("general questions unavailable")
	} else {
		sess.Questions.General = general
	}
	if scoped, err := s.questions.LoadSessionScoped(ctx, sess.ID); err != nil {
		log.Warn().Err(err).Str("session_id", sess.ID).Msg("session questions unavailable")
	} else {
		sess.Questions.Session = scoped
	}
}

func (s *Store) persist(ctx context.Context, sess *models.Session) {
	saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.config.SaveTimeout)
	defer cancel()

	if err := s.repo.Save(saveCtx, sess); err != nil {
		persistFailuresTotal.Inc()
		trace.SpanFromContext(ctx).RecordError(err)
		log.Error().
			Err(err).
			Str("session_id", sess.ID).
			Msg("failed to persist session, serving from memory")
	}
}

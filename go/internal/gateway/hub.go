package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/huroof/go/internal/buzzer"
	"github.com/mcdev12/huroof/go/internal/codes"
	"github.com/mcdev12/huroof/go/internal/models"
	"github.com/mcdev12/huroof/go/internal/session"
	"github.com/mcdev12/huroof/go/internal/token"
)

// Tokens issues and verifies reconnection tokens.
type Tokens interface {
	Issue(ctx context.Context, sessionID, name string, role models.Role) (*token.Token, error)
	Verify(ctx context.Context, raw string) (*token.Token, error)
}

// CodeValidator checks session codes.
type CodeValidator interface {
	Validate(ctx context.Context, code string) (string, codes.Validation, error)
}

// QuestionWriter records session-scoped questions.
type QuestionWriter interface {
	AddSessionQuestion(ctx context.Context, sessionID, letter string, q models.Question) error
}

// DefaultTimeUpWarning is sent with timeUpWarning.
const DefaultTimeUpWarning = "باقي ثانية!"

type handlerFunc func(ctx context.Context, c *Connection, data json.RawMessage) error

// route adapts a typed handler to the dispatch table. The payload is decoded
// and validated before h runs.
func route[T any, P interface {
	*T
	inbound
}](h func(ctx context.Context, c *Connection, p P) error) handlerFunc {
	return func(ctx context.Context, c *Connection, data json.RawMessage) error {
		p := P(new(T))
		if len(data) > 0 && string(data) != "null" {
			if err := json.Unmarshal(data, p); err != nil {
				return fmt.Errorf("%w: %v", errMalformed, err)
			}
		}
		if err := p.validate(); err != nil {
			return fmt.Errorf("%w: %v", errMalformed, err)
		}
		return h(ctx, c, p)
	}
}

// Hub applies client messages and timer expiries to sessions.
type Hub struct {
	store     *session.Store
	arbiter   *buzzer.Arbiter
	registry  *Registry
	router    *Router
	monitor   *Monitor
	tokens    Tokens
	codes     CodeValidator
	questions QuestionWriter

	warningMessage string
	handlers       map[MessageType]handlerFunc
}

// HubDeps are the collaborators of a Hub. Questions may be nil, in which case
// addQuestion only updates memory.
type HubDeps struct {
	Store     *session.Store
	Arbiter   *buzzer.Arbiter
	Registry  *Registry
	Router    *Router
	Tokens    Tokens
	Codes     CodeValidator
	Questions QuestionWriter
	Clock     clockwork.Clock
}

// NewHub creates a Hub and its liveness Monitor.
func NewHub(deps HubDeps, liveness LivenessConfig, warningMessage string) *Hub {
	if warningMessage == "" {
		warningMessage = DefaultTimeUpWarning
	}
	h := &Hub{
		store:          deps.Store,
		arbiter:        deps.Arbiter,
		registry:       deps.Registry,
		router:         deps.Router,
		tokens:         deps.Tokens,
		codes:          deps.Codes,
		questions:      deps.Questions,
		warningMessage: warningMessage,
	}
	h.monitor = NewMonitor(deps.Clock, liveness, h.expireGrace)
	h.handlers = map[MessageType]handlerFunc{
		MsgVerifyCode:            route(h.handleVerifyCode),
		MsgVerifyPhone:           route(h.handleVerifyCode),
		MsgJoin:                  route(h.handleJoin),
		MsgReconnect:             route(h.handleReconnect),
		MsgUpdateHexagon:         route(h.handleUpdateHexagon),
		MsgShuffle:               route(h.handleShuffle),
		MsgSwapColors:            route(h.handleSwapColors),
		MsgChangeColors:          route(h.handleChangeColors),
		MsgParty:                 route(h.handleParty),
		MsgGoldenLetterActivated: route(h.handleGoldenLetter),
		MsgBuzzer:                route(h.handleBuzzer),
		MsgResetBuzzer:           route(h.handleResetBuzzer),
		MsgUpdateTeams:           route(h.handleUpdateTeams),
		MsgAddQuestion:           route(h.handleAddQuestion),
	}
	deps.Store.OnEvict(h.arbiter.Cancel)
	return h
}

func (h *Hub) Monitor() *Monitor {
	return h.monitor
}

// Start runs the liveness monitor and routes buzzer timer fires until ctx is done.
func (h *Hub) Start(ctx context.Context) {
	log.Info().Msg("session hub started")
	go h.monitor.Run(ctx)

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("session hub shutting down")
			return
		case fire := <-h.arbiter.Fired():
			go h.onFire(ctx, fire)
		}
	}
}

// Serve runs the read loop of an upgraded connection. It returns when the
// socket closes. A non-empty token is handled like a reconnect message.
func (h *Hub) Serve(ctx context.Context, c *Connection, config ConnectionConfig, initialToken string) {
	h.monitor.Track(c)
	go c.writePump(config)

	defer h.disconnect(ctx, c)

	if initialToken != "" {
		h.run(c, MsgReconnect, func() error {
			return h.handleReconnect(ctx, c, &reconnectPayload{Token: initialToken})
		})
	}

	c.readPump(config, func(message []byte) {
		h.Dispatch(ctx, c, message)
	})
}

// Dispatch decodes one client message and runs its handler. Faults are
// reported to the sender only.
func (h *Hub) Dispatch(ctx context.Context, c *Connection, message []byte) {
	var env envelope
	if err := json.Unmarshal(message, &env); err != nil {
		messagesTotal.WithLabelValues("invalid", "malformed").Inc()
		h.reportError(c, "", fmt.Errorf("%w: %v", errMalformed, err))
		return
	}
	handler, ok := h.handlers[env.Type]
	if !ok {
		messagesTotal.WithLabelValues("unknown", "malformed").Inc()
		h.reportError(c, env.Type, fmt.Errorf("%w: %w %q", errMalformed, errUnknownType, env.Type))
		return
	}
	h.run(c, env.Type, func() error {
		return handler(ctx, c, env.Data)
	})
}

func (h *Hub) run(c *Connection, t MessageType, fn func() error) {
	defer func() {
		if r := recover(); r != nil {
			messagesTotal.WithLabelValues(string(t), "panic").Inc()
			log.Error().
				Interface("panic", r).
				Str("connection_id", c.ID).
				Str("message_type", string(t)).
				Msg("recovered from handler panic")
			h.router.SendTo(c, errorEvent(MsgError, "internal error"))
		}
	}()

	if err := fn(); err != nil {
		messagesTotal.WithLabelValues(string(t), "error").Inc()
		h.reportError(c, t, err)
		return
	}
	messagesTotal.WithLabelValues(string(t), "ok").Inc()
}

// reportError maps a handler error to the event the sender sees, if any.
func (h *Hub) reportError(c *Connection, t MessageType, err error) {
	switch {
	case errors.Is(err, errMalformed):
		log.Debug().Err(err).Str("connection_id", c.ID).Msg("malformed message")
		h.router.SendTo(c, errorEvent(MsgError, "malformed message"))
	case errors.Is(err, codes.ErrInvalidCode), errors.Is(err, codes.ErrMalformedCode):
		h.router.SendTo(c, errorEvent(MsgCodeError, "invalid code"))
	case errors.Is(err, token.ErrTokenExpired):
		h.router.SendTo(c, errorEvent(MsgError, "token expired"))
	case errors.Is(err, token.ErrTokenUnknown):
		h.router.SendTo(c, errorEvent(MsgError, "unknown token"))
	case errors.Is(err, ErrRoleConflict):
		h.router.SendTo(c, errorEvent(MsgJoinError, "host already present"))
	case errors.Is(err, ErrNameTaken):
		h.router.SendTo(c, errorEvent(MsgJoinError, "name already taken"))
	case errors.Is(err, ErrAlreadyRegistered):
		h.router.SendTo(c, errorEvent(MsgJoinError, "already joined"))
	case errors.Is(err, errNotVerified):
		h.router.SendTo(c, errorEvent(MsgJoinError, "verify your code first"))
	case errors.Is(err, ErrDisplayOccupied):
		log.Debug().Str("connection_id", c.ID).Msg("display slot occupied, ignoring connection")
	default:
		log.Error().
			Err(err).
			Str("connection_id", c.ID).
			Str("message_type", string(t)).
			Msg("failed to handle message")
		h.router.SendTo(c, errorEvent(MsgError, "internal error"))
	}
}

// disconnect runs once the read loop ends.
func (h *Hub) disconnect(ctx context.Context, c *Connection) {
	c.Close()
	h.monitor.Untrack(c)

	id, ok := h.registry.Unregister(c)
	if !ok {
		return
	}
	h.store.Release(id.SessionID)

	log.Info().
		Str("connection_id", c.ID).
		Str("session_id", id.SessionID).
		Str("role", string(id.Role)).
		Msg("connection closed")

	switch id.Role {
	case models.RoleDisplay:
		err := h.store.ApplyMutation(context.WithoutCancel(ctx), id.SessionID, func(m *session.Mutation) error {
			if h.registry.IsLive(id) {
				m.NoChange()
				return nil
			}
			m.Session.DisplayConnected = false
			return nil
		})
		if err != nil {
			log.Error().Err(err).Str("session_id", id.SessionID).Msg("failed to release display slot")
		}
	default:
		h.monitor.ScheduleRemoval(id)
	}
}

// onFire routes a buzzer timer expiry back through the session.
func (h *Hub) onFire(ctx context.Context, f buzzer.Fire) {
	err := h.store.ApplyMutation(ctx, f.SessionID, func(m *session.Mutation) error {
		switch f.Kind {
		case buzzer.FireWarning:
			m.NoChange()
			if h.arbiter.Warn(m.Session, f.Cycle) {
				m.AfterCommit(func() {
					h.router.Broadcast(f.SessionID, Event{Type: MsgTimeUpWarning, Data: messageData{Message: h.warningMessage}}, nil)
				})
			}
		case buzzer.FireRelease:
			// both timers can be due at once; the warning still goes out first
			warn := h.arbiter.Warn(m.Session, f.Cycle)
			if !h.arbiter.Expire(m.Session, f.Cycle) {
				m.NoChange()
				return nil
			}
			if warn {
				m.AfterCommit(func() {
					h.router.Broadcast(f.SessionID, Event{Type: MsgTimeUpWarning, Data: messageData{Message: h.warningMessage}}, nil)
				})
			}
			m.AfterCommit(func() {
				h.router.Broadcast(f.SessionID, Event{Type: MsgTimeUp, Data: struct{}{}}, nil)
			})
		}
		return nil
	})
	if err != nil {
		log.Error().
			Err(err).
			Str("session_id", f.SessionID).
			Str("fire", string(f.Kind)).
			Msg("failed to apply buzzer timer")
	}
}

// expireGrace runs when an identity did not reconnect in time.
func (h *Hub) expireGrace(id Identity) {
	if id.Role != models.RoleContestant {
		log.Info().
			Str("session_id", id.SessionID).
			Str("name", id.Name).
			Msg("host did not reconnect within grace period")
		return
	}

	err := h.store.ApplyMutation(context.Background(), id.SessionID, func(m *session.Mutation) error {
		if h.registry.IsLive(id) {
			m.NoChange()
			return nil
		}
		if _, ok := m.Session.Teams.Remove(id.Name); !ok {
			m.NoChange()
			return nil
		}
		if m.Session.Buzzer.Player == id.Name && h.arbiter.Release(m.Session) {
			m.AfterCommit(func() {
				h.router.Broadcast(id.SessionID, resetBuzzerEvent(), nil)
			})
		}
		teams := teamsEvent(m.Session)
		m.AfterCommit(func() {
			h.router.Broadcast(id.SessionID, teams, nil)
		})
		log.Info().
			Str("session_id", id.SessionID).
			Str("name", id.Name).
			Msg("removed contestant after grace period")
		return nil
	})
	if err != nil {
		log.Error().Err(err).Str("session_id", id.SessionID).Msg("failed to remove contestant")
	}
}

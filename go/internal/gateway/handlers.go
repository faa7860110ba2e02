package gateway

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/mcdev12/huroof/go/internal/models"
	"github.com/mcdev12/huroof/go/internal/session"
	"github.com/mcdev12/huroof/go/internal/token"
)

func (h *Hub) verify(ctx context.Context, c *Connection, code string) (string, bool, error) {
	normalized, res, err := h.codes.Validate(ctx, code)
	if err != nil {
		return "", false, err
	}
	c.setVerified(normalized, res.IsAdmin)
	if _, err := h.store.GetOrCreate(ctx, normalized); err != nil {
		return "", false, err
	}
	return normalized, res.IsAdmin, nil
}

func (h *Hub) handleVerifyCode(ctx context.Context, c *Connection, p *verifyCodePayload) error {
	code, isAdmin, err := h.verify(ctx, c, p.Code)
	if err != nil {
		return err
	}
	log.Info().
		Str("connection_id", c.ID).
		Str("session_id", code).
		Bool("is_admin", isAdmin).
		Msg("session code verified")
	h.router.SendTo(c, Event{Type: MsgCodeVerified, Data: codeVerifiedData{Code: code, IsAdmin: isAdmin}})
	return nil
}

func (h *Hub) handleJoin(ctx context.Context, c *Connection, p *joinPayload) error {
	if p.Code != "" {
		if _, _, err := h.verify(ctx, c, p.Code); err != nil {
			return err
		}
	}
	sessionID, _ := c.Verified()
	if sessionID == "" {
		return errNotVerified
	}
	return h.join(ctx, c, Identity{SessionID: sessionID, Role: p.Role, Name: p.Name}, nil)
}

func (h *Hub) handleReconnect(ctx context.Context, c *Connection, p *reconnectPayload) error {
	t, err := h.tokens.Verify(ctx, p.Token)
	if err != nil {
		return err
	}
	if code, _ := c.Verified(); code != t.SessionID {
		c.setVerified(t.SessionID, false)
	}
	return h.join(ctx, c, Identity{SessionID: t.SessionID, Role: t.Role, Name: t.Name}, t)
}

// join registers c as id and sends it the session snapshot. A presented
// token allows replacing a live connection with the same identity and is
// echoed back instead of issuing a new one.
func (h *Hub) join(ctx context.Context, c *Connection, id Identity, presented *token.Token) error {
	return h.store.ApplyMutation(ctx, id.SessionID, func(m *session.Mutation) error {
		res, err := h.registry.Register(c, id, RegisterOptions{Reclaim: presented != nil})
		if err != nil {
			return err
		}

		var tok string
		if presented != nil {
			tok = presented.Token
		} else {
			issued, err := h.tokens.Issue(ctx, id.SessionID, id.Name, id.Role)
			if err != nil {
				if !res.Existing {
					h.registry.Unregister(c)
				}
				return fmt.Errorf("issue token: %w", err)
			}
			tok = issued.Token
		}

		if !res.Existing {
			h.store.Acquire(id.SessionID)
		}
		if res.Replaced != nil {
			h.store.Release(id.SessionID)
		}
		// only a presented token ends a pending removal; a name rejoin rides
		// it out and the expiry sees the identity live again
		if presented != nil {
			h.monitor.Cancel(id)
		}

		s := m.Session
		added := false
		switch id.Role {
		case models.RoleContestant:
			if _, ok := s.Teams.TeamOf(id.Name); !ok {
				s.Teams.Add(id.Name)
				added = true
			}
		case models.RoleDisplay:
			s.DisplayConnected = true
		}
		if !added && id.Role != models.RoleDisplay {
			m.NoChange()
		}

		snap := session.Redact(s.Clone(), id.Role)
		m.AfterCommit(func() {
			if res.Replaced != nil {
				res.Replaced.Close()
			}
			h.router.SendTo(c, Event{Type: MsgInit, Data: newInitPayload(snap, id, tok)})
			if added {
				h.router.Broadcast(id.SessionID, teamsEvent(s), nil)
			}
		})

		log.Info().
			Str("connection_id", c.ID).
			Str("session_id", id.SessionID).
			Str("role", string(id.Role)).
			Str("name", id.Name).
			Bool("reconnect", presented != nil).
			Msg("connection joined session")
		return nil
	})
}

// hostMutation applies fn only when c is the session's current host. Other
// senders are ignored without an error.
func (h *Hub) hostMutation(ctx context.Context, c *Connection, fn func(m *session.Mutation) error) error {
	id, ok := c.Identity()
	if !ok || id.Role != models.RoleHost {
		return nil
	}
	return h.store.ApplyMutation(ctx, id.SessionID, func(m *session.Mutation) error {
		if h.registry.Host(id.SessionID) != c {
			m.NoChange()
			return nil
		}
		return fn(m)
	})
}

func (h *Hub) handleUpdateHexagon(ctx context.Context, c *Connection, p *updateHexagonPayload) error {
	return h.hostMutation(ctx, c, func(m *session.Mutation) error {
		s := m.Session
		s.Hexagons[p.Letter] = models.Hexagon{Color: p.Color, ClickCount: p.ClickCount}
		ev := Event{Type: MsgUpdateHexagon, Data: hexagonData{Letter: p.Letter, Color: p.Color, ClickCount: p.ClickCount}}
		m.AfterCommit(func() {
			h.router.Broadcast(s.ID, ev, nil)
		})
		return nil
	})
}

func (h *Hub) handleShuffle(ctx context.Context, c *Connection, p *shufflePayload) error {
	return h.hostMutation(ctx, c, func(m *session.Mutation) error {
		s := m.Session
		s.LettersOrder = p.LettersOrder
		s.Hexagons = p.Hexagons
		s.GoldenLetter = p.GoldenLetter
		m.AfterCommit(func() {
			h.router.Broadcast(s.ID, Event{Type: MsgShuffle, Data: newBoardData(s)}, nil)
		})
		return nil
	})
}

func (h *Hub) handleSwapColors(ctx context.Context, c *Connection, p *swapColorsPayload) error {
	return h.hostMutation(ctx, c, func(m *session.Mutation) error {
		s := m.Session
		models.SwapColors(s.Hexagons, s.ColorSetIndex)
		if p.IsSwapped != nil {
			s.IsSwapped = *p.IsSwapped
		} else {
			s.IsSwapped = !s.IsSwapped
		}
		if p.LettersOrder != nil {
			s.LettersOrder = p.LettersOrder
		}
		m.AfterCommit(func() {
			h.router.Broadcast(s.ID, Event{Type: MsgSwapColors, Data: newBoardData(s)}, nil)
		})
		return nil
	})
}

func (h *Hub) handleChangeColors(ctx context.Context, c *Connection, p *changeColorsPayload) error {
	return h.hostMutation(ctx, c, func(m *session.Mutation) error {
		s := m.Session
		models.ChangeColorSet(s.Hexagons, p.ColorSetIndex, s.IsSwapped)
		s.ColorSetIndex = p.ColorSetIndex
		if p.LettersOrder != nil {
			s.LettersOrder = p.LettersOrder
		}
		m.AfterCommit(func() {
			h.router.Broadcast(s.ID, Event{Type: MsgChangeColors, Data: newBoardData(s)}, nil)
		})
		return nil
	})
}

func (h *Hub) handleParty(ctx context.Context, c *Connection, p *partyPayload) error {
	return h.hostMutation(ctx, c, func(m *session.Mutation) error {
		m.Session.PartyMode = p.Active
		id := m.Session.ID
		m.AfterCommit(func() {
			h.router.Broadcast(id, Event{Type: MsgParty, Data: activeData{Active: p.Active}}, nil)
		})
		return nil
	})
}

func (h *Hub) handleGoldenLetter(ctx context.Context, c *Connection, p *goldenLetterPayload) error {
	return h.hostMutation(ctx, c, func(m *session.Mutation) error {
		m.NoChange()
		id := m.Session.ID
		m.AfterCommit(func() {
			h.router.Broadcast(id, Event{Type: MsgGoldenLetterActivated, Data: activeData{Active: p.Active, Letter: p.Letter}}, nil)
		})
		return nil
	})
}

// handleBuzzer presses for the connection's registered name. Losing presses
// are dropped silently.
func (h *Hub) handleBuzzer(ctx context.Context, c *Connection, p *buzzerPayload) error {
	id, ok := c.Identity()
	if !ok || id.Role != models.RoleContestant {
		return nil
	}
	if p.Player != "" && p.Player != id.Name {
		buzzerPressesTotal.WithLabelValues("ignored").Inc()
		return nil
	}
	return h.store.ApplyMutation(ctx, id.SessionID, func(m *session.Mutation) error {
		if !h.registry.IsCurrent(c) || !h.arbiter.Press(m.Session, id.Name) {
			buzzerPressesTotal.WithLabelValues("ignored").Inc()
			m.NoChange()
			return nil
		}
		buzzerPressesTotal.WithLabelValues("accepted").Inc()
		state := m.Session.Buzzer
		m.AfterCommit(func() {
			h.router.Broadcast(id.SessionID, Event{Type: MsgBuzzer, Data: state}, nil)
		})
		return nil
	})
}

func (h *Hub) handleResetBuzzer(ctx context.Context, c *Connection, _ *resetBuzzerPayload) error {
	return h.hostMutation(ctx, c, func(m *session.Mutation) error {
		if !h.arbiter.Release(m.Session) {
			m.NoChange()
		}
		id := m.Session.ID
		m.AfterCommit(func() {
			h.router.Broadcast(id, resetBuzzerEvent(), nil)
		})
		return nil
	})
}

func (h *Hub) handleUpdateTeams(ctx context.Context, c *Connection, p *updateTeamsPayload) error {
	return h.hostMutation(ctx, c, func(m *session.Mutation) error {
		s := m.Session
		s.Teams = p.Teams.Clone()
		teams := teamsEvent(s)
		m.AfterCommit(func() {
			h.router.Broadcast(s.ID, teams, nil)
		})

		// the lock holder must stay on the team that took the lock
		if s.Buzzer.Active {
			if team, ok := s.Teams.TeamOf(s.Buzzer.Player); !ok || team != s.Buzzer.Team {
				h.arbiter.Release(s)
				m.AfterCommit(func() {
					h.router.Broadcast(s.ID, resetBuzzerEvent(), nil)
				})
			}
		}
		return nil
	})
}

func (h *Hub) handleAddQuestion(ctx context.Context, c *Connection, p *addQuestionPayload) error {
	return h.hostMutation(ctx, c, func(m *session.Mutation) error {
		s := m.Session
		q := models.Question{Question: p.Question, Answer: p.Answer}
		if h.questions != nil {
			if err := h.questions.AddSessionQuestion(ctx, s.ID, p.Letter, q); err != nil {
				return fmt.Errorf("add session question: %w", err)
			}
		}
		if s.Questions.Session == nil {
			s.Questions.Session = models.QuestionPool{}
		}
		s.Questions.Session[p.Letter] = append(s.Questions.Session[p.Letter], q)

		pool := s.Questions.Session.Clone()
		m.AfterCommit(func() {
			h.router.SendToRole(s.ID, models.RoleHost, Event{Type: MsgUpdateQuestions, Data: questionsData{Session: pool}})
		})
		return nil
	})
}

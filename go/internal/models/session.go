package models

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Role identifies what a connection is allowed to do in a session.
type Role string

const (
	RoleHost       Role = "host"
	RoleContestant Role = "contestant"
	RoleDisplay    Role = "display"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleHost, RoleContestant, RoleDisplay:
		return true
	}
	return false
}

// Team is one of the two contestant teams.
type Team string

const (
	TeamRed   Team = "red"
	TeamGreen Team = "green"
)

// ClickCount is the number of times the host has cycled a cell's color.
// Clients send and compare it as a string, so it is accepted as either a
// JSON number or a JSON string and always written as a string.
type ClickCount int

func (c ClickCount) MarshalJSON() ([]byte, error) {
	return json.Marshal(strconv.Itoa(int(c)))
}

func (c *ClickCount) UnmarshalJSON(data []byte) error {
	raw := strings.TrimSpace(string(data))
	if raw == "null" || raw == `""` {
		*c = 0
		return nil
	}
	raw = strings.Trim(raw, `"`)
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return fmt.Errorf("invalid click count %q", raw)
	}
	*c = ClickCount(n)
	return nil
}

// Hexagon is the state of one board cell.
type Hexagon struct {
	Color      string     `json:"color"`
	ClickCount ClickCount `json:"clickCount"`
}

// Buzzer is the observable buzzer state. Active implies Player and Team are set.
type Buzzer struct {
	Active bool   `json:"active"`
	Player string `json:"player"`
	Team   Team   `json:"team"`
}

// Session is the canonical per-session aggregate.
type Session struct {
	ID               string             `json:"id"`
	Hexagons         map[string]Hexagon `json:"hexagons"`
	LettersOrder     []string           `json:"lettersOrder"`
	GoldenLetter     string             `json:"goldenLetter,omitempty"`
	Teams            Teams              `json:"teams"`
	Buzzer           Buzzer             `json:"buzzer"`
	BuzzerLock       bool               `json:"buzzerLock"`
	ColorSetIndex    int                `json:"colorSetIndex"`
	IsSwapped        bool               `json:"isSwapped"`
	PartyMode        bool               `json:"partyMode"`
	DisplayConnected bool               `json:"displayConnected"`
	LastActivity     time.Time          `json:"lastActivity"`

	// Questions are reloaded from the question bank and never persisted with
	// the session record.
	Questions Questions `json:"-"`
}

// NewSession returns a fresh session with an empty board laid out in the
// canonical letter order.
func NewSession(id string, now time.Time) *Session {
	return &Session{
		ID:           id,
		Hexagons:     make(map[string]Hexagon),
		LettersOrder: CanonicalOrder(),
		Teams:        Teams{Red: []string{}, Green: []string{}},
		LastActivity: now,
		Questions:    Questions{General: QuestionPool{}, Session: QuestionPool{}},
	}
}

// Clone returns a deep copy. The general question pool is immutable and
// shared between copies.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	out := *s
	out.Hexagons = make(map[string]Hexagon, len(s.Hexagons))
	for k, v := range s.Hexagons {
		out.Hexagons[k] = v
	}
	out.LettersOrder = append([]string(nil), s.LettersOrder...)
	out.Teams = s.Teams.Clone()
	out.Questions = Questions{
		General: s.Questions.General,
		Session: s.Questions.Session.Clone(),
	}
	return &out
}

// ClearBuzzer returns the buzzer to idle.
func (s *Session) ClearBuzzer() {
	s.Buzzer = Buzzer{}
	s.BuzzerLock = false
}

// ResetEphemeral clears state that cannot outlive the process that created
// it: buzzer locks whose timers are gone and display slots whose socket is gone.
func (s *Session) ResetEphemeral() {
	s.ClearBuzzer()
	s.DisplayConnected = false
}

// Normalize fills in fields that older or partial records may lack.
func (s *Session) Normalize() {
	if s.Hexagons == nil {
		s.Hexagons = make(map[string]Hexagon)
	}
	if ValidateLettersOrder(s.LettersOrder) != nil {
		s.LettersOrder = CanonicalOrder()
	}
	if s.Teams.Red == nil {
		s.Teams.Red = []string{}
	}
	if s.Teams.Green == nil {
		s.Teams.Green = []string{}
	}
	if s.ColorSetIndex < 0 || s.ColorSetIndex >= len(ColorSets) {
		s.ColorSetIndex = 0
	}
	if s.Questions.General == nil {
		s.Questions.General = QuestionPool{}
	}
	if s.Questions.Session == nil {
		s.Questions.Session = QuestionPool{}
	}
}

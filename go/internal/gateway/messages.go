package gateway

import (
	"encoding/json"
	"fmt"

	"github.com/mcdev12/huroof/go/internal/models"
)

// MessageType names a message in the websocket catalogue.
type MessageType string

// Client to server.
const (
	MsgVerifyCode            MessageType = "verifyCode"
	MsgVerifyPhone           MessageType = "verifyPhone"
	MsgJoin                  MessageType = "join"
	MsgReconnect             MessageType = "reconnect"
	MsgUpdateHexagon         MessageType = "updateHexagon"
	MsgShuffle               MessageType = "shuffle"
	MsgSwapColors            MessageType = "swapColors"
	MsgChangeColors          MessageType = "changeColors"
	MsgParty                 MessageType = "party"
	MsgGoldenLetterActivated MessageType = "goldenLetterActivated"
	MsgBuzzer                MessageType = "buzzer"
	MsgResetBuzzer           MessageType = "resetBuzzer"
	MsgUpdateTeams           MessageType = "updateTeams"
	MsgAddQuestion           MessageType = "addQuestion"
)

// Server to client. Board and buzzer events reuse the client names.
const (
	MsgCodeVerified    MessageType = "codeVerified"
	MsgCodeError       MessageType = "codeError"
	MsgInit            MessageType = "init"
	MsgJoinError       MessageType = "joinError"
	MsgError           MessageType = "error"
	MsgTimeUpWarning   MessageType = "timeUpWarning"
	MsgTimeUp          MessageType = "timeUp"
	MsgUpdateQuestions MessageType = "updateQuestions"
)

// Event is a server to client message.
type Event struct {
	Type MessageType `json:"type"`
	Data any         `json:"data"`
}

type envelope struct {
	Type MessageType     `json:"type"`
	Data json.RawMessage `json:"data"`
}

// inbound payloads validate and normalize themselves after decoding.
type inbound interface {
	validate() error
}

type verifyCodePayload struct {
	Code        string `json:"code"`
	PhoneNumber string `json:"phoneNumber"`
}

func (p *verifyCodePayload) validate() error {
	if p.Code == "" {
		p.Code = p.PhoneNumber
	}
	if p.Code == "" {
		return fmt.Errorf("code is required")
	}
	return nil
}

type joinPayload struct {
	Role models.Role `json:"role"`
	Name string      `json:"name"`
	Code string      `json:"code,omitempty"`
}

func (p *joinPayload) validate() error {
	if !p.Role.Valid() {
		return fmt.Errorf("unknown role %q", p.Role)
	}
	p.Name = models.NormalizeText(p.Name)
	switch p.Role {
	case models.RoleContestant:
		if p.Name == "" {
			return fmt.Errorf("contestant name is required")
		}
	case models.RoleHost:
		if p.Name == "" {
			p.Name = "host"
		}
	case models.RoleDisplay:
		p.Name = "display"
	}
	return nil
}

type reconnectPayload struct {
	Token string `json:"token"`
}

func (p *reconnectPayload) validate() error {
	if p.Token == "" {
		return fmt.Errorf("token is required")
	}
	return nil
}

type updateHexagonPayload struct {
	Letter     string            `json:"letter"`
	Color      string            `json:"color"`
	ClickCount models.ClickCount `json:"clickCount"`
}

func (p *updateHexagonPayload) validate() error {
	p.Letter = models.NormalizeText(p.Letter)
	if !models.IsLetter(p.Letter) {
		return fmt.Errorf("unknown letter %q", p.Letter)
	}
	return nil
}

type shufflePayload struct {
	LettersOrder []string                  `json:"lettersOrder"`
	Hexagons     map[string]models.Hexagon `json:"hexagons"`
	GoldenLetter string                    `json:"goldenLetter,omitempty"`
}

func (p *shufflePayload) validate() error {
	for i, l := range p.LettersOrder {
		p.LettersOrder[i] = models.NormalizeText(l)
	}
	if err := models.ValidateLettersOrder(p.LettersOrder); err != nil {
		return err
	}
	hexagons := make(map[string]models.Hexagon, len(p.Hexagons))
	for l, h := range p.Hexagons {
		l = models.NormalizeText(l)
		if !models.IsLetter(l) {
			return fmt.Errorf("unknown letter %q", l)
		}
		hexagons[l] = h
	}
	p.Hexagons = hexagons
	p.GoldenLetter = models.NormalizeText(p.GoldenLetter)
	if p.GoldenLetter != "" && !models.IsLetter(p.GoldenLetter) {
		return fmt.Errorf("unknown golden letter %q", p.GoldenLetter)
	}
	return nil
}

// optionalOrder validates a letters order that may be omitted.
func optionalOrder(order []string) ([]string, error) {
	if len(order) == 0 {
		return nil, nil
	}
	out := make([]string, len(order))
	for i, l := range order {
		out[i] = models.NormalizeText(l)
	}
	if err := models.ValidateLettersOrder(out); err != nil {
		return nil, err
	}
	return out, nil
}

type swapColorsPayload struct {
	IsSwapped    *bool    `json:"isSwapped"`
	LettersOrder []string `json:"lettersOrder"`
}

func (p *swapColorsPayload) validate() (err error) {
	p.LettersOrder, err = optionalOrder(p.LettersOrder)
	return err
}

type changeColorsPayload struct {
	ColorSetIndex int      `json:"colorSetIndex"`
	LettersOrder  []string `json:"lettersOrder"`
}

func (p *changeColorsPayload) validate() (err error) {
	if p.ColorSetIndex < 0 || p.ColorSetIndex >= len(models.ColorSets) {
		return fmt.Errorf("color set index %d out of range", p.ColorSetIndex)
	}
	p.LettersOrder, err = optionalOrder(p.LettersOrder)
	return err
}

type partyPayload struct {
	Active bool `json:"active"`
}

func (p *partyPayload) validate() error { return nil }

type goldenLetterPayload struct {
	Active bool   `json:"active"`
	Letter string `json:"letter"`
}

func (p *goldenLetterPayload) validate() error {
	p.Letter = models.NormalizeText(p.Letter)
	if p.Active && !models.IsLetter(p.Letter) {
		return fmt.Errorf("unknown letter %q", p.Letter)
	}
	return nil
}

type buzzerPayload struct {
	Player string `json:"player"`
}

func (p *buzzerPayload) validate() error {
	p.Player = models.NormalizeText(p.Player)
	return nil
}

type resetBuzzerPayload struct{}

func (p *resetBuzzerPayload) validate() error { return nil }

type updateTeamsPayload struct {
	Teams models.Teams `json:"teams"`
}

func (p *updateTeamsPayload) validate() error {
	p.Teams.Red = normalizeNames(p.Teams.Red)
	p.Teams.Green = normalizeNames(p.Teams.Green)
	return p.Teams.Validate()
}

func normalizeNames(names []string) []string {
	out := make([]string, 0, len(names))
	for _, n := range names {
		if n = models.NormalizeText(n); n != "" {
			out = append(out, n)
		}
	}
	return out
}

type addQuestionPayload struct {
	Letter   string `json:"letter"`
	Question string `json:"question"`
	Answer   string `json:"answer"`
}

func (p *addQuestionPayload) validate() error {
	p.Letter = models.NormalizeText(p.Letter)
	p.Question = models.NormalizeText(p.Question)
	p.Answer = models.NormalizeText(p.Answer)
	if !models.IsLetter(p.Letter) {
		return fmt.Errorf("unknown letter %q", p.Letter)
	}
	if p.Question == "" || p.Answer == "" {
		return fmt.Errorf("question and answer are required")
	}
	return nil
}

// InitPayload is the snapshot a client receives after joining.
type InitPayload struct {
	SessionID     string                    `json:"sessionId"`
	Role          models.Role               `json:"role"`
	Name          string                    `json:"name"`
	Token         string                    `json:"token"`
	Hexagons      map[string]models.Hexagon `json:"hexagons"`
	LettersOrder  []string                  `json:"lettersOrder"`
	GoldenLetter  string                    `json:"goldenLetter,omitempty"`
	Teams         models.Teams              `json:"teams"`
	Buzzer        models.Buzzer             `json:"buzzer"`
	ColorSetIndex int                       `json:"colorSetIndex"`
	IsSwapped     bool                      `json:"isSwapped"`
	PartyMode     bool                      `json:"partyMode"`
	Questions     *models.Questions         `json:"questions,omitempty"`
}

func newInitPayload(s *models.Session, id Identity, token string) InitPayload {
	p := InitPayload{
		SessionID:     s.ID,
		Role:          id.Role,
		Name:          id.Name,
		Token:         token,
		Hexagons:      s.Hexagons,
		LettersOrder:  s.LettersOrder,
		GoldenLetter:  s.GoldenLetter,
		Teams:         s.Teams,
		Buzzer:        s.Buzzer,
		ColorSetIndex: s.ColorSetIndex,
		IsSwapped:     s.IsSwapped,
		PartyMode:     s.PartyMode,
	}
	if id.Role == models.RoleHost {
		q := s.Questions
		p.Questions = &q
	}
	return p
}

type reasonData struct {
	Reason string `json:"reason"`
}

func errorEvent(t MessageType, reason string) Event {
	return Event{Type: t, Data: reasonData{Reason: reason}}
}

type codeVerifiedData struct {
	Code    string `json:"code"`
	IsAdmin bool   `json:"isAdmin"`
}

type hexagonData struct {
	Letter     string            `json:"letter"`
	Color      string            `json:"color"`
	ClickCount models.ClickCount `json:"clickCount"`
}

type boardData struct {
	Hexagons      map[string]models.Hexagon `json:"hexagons"`
	LettersOrder  []string                  `json:"lettersOrder"`
	GoldenLetter  string                    `json:"goldenLetter,omitempty"`
	ColorSetIndex int                       `json:"colorSetIndex"`
	IsSwapped     bool                      `json:"isSwapped"`
}

func newBoardData(s *models.Session) boardData {
	return boardData{
		Hexagons:      s.Hexagons,
		LettersOrder:  s.LettersOrder,
		GoldenLetter:  s.GoldenLetter,
		ColorSetIndex: s.ColorSetIndex,
		IsSwapped:     s.IsSwapped,
	}
}

type activeData struct {
	Active bool   `json:"active"`
	Letter string `json:"letter,omitempty"`
}

type messageData struct {
	Message string `json:"message"`
}

type teamsData struct {
	Teams models.Teams `json:"teams"`
}

type questionsData struct {
	Session models.QuestionPool `json:"session"`
}

func resetBuzzerEvent() Event {
	return Event{Type: MsgResetBuzzer, Data: struct{}{}}
}

func teamsEvent(s *models.Session) Event {
	return Event{Type: MsgUpdateTeams, Data: teamsData{Teams: s.Teams.Clone()}}
}

package gateway

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/mcdev12/huroof/go/internal/buzzer"
	"github.com/mcdev12/huroof/go/internal/codes"
	"github.com/mcdev12/huroof/go/internal/models"
	"github.com/mcdev12/huroof/go/internal/questions"
	"github.com/mcdev12/huroof/go/internal/session"
	"github.com/mcdev12/huroof/go/internal/token"
)

const testCode = "AB12CD"

type testEnv struct {
	ctx   context.Context
	hub   *Hub
	clock *clockwork.FakeClock
	store *session.Store
	repo  *session.MemoryRepository
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	clock := clockwork.NewFakeClock()
	repo := session.NewMemoryRepository()
	bank := questions.NewBank(questions.NewMemoryRepository(models.QuestionPool{
		models.Alphabet[0]: {{Question: "general question", Answer: "answer"}},
	}), clock)
	store := session.NewStore(repo, bank, clock, session.Config{})

	q := codes.NewMemoryQuerier()
	q.Add(testCode, true)

	registry := NewRegistry()
	hub := NewHub(HubDeps{
		Store:     store,
		Arbiter:   buzzer.NewArbiter(clock, buzzer.Timing{}),
		Registry:  registry,
		Router:    NewRouter(registry, nil),
		Tokens:    token.NewAuthority(token.NewMemoryRepository(), clock, time.Hour),
		Codes:     codes.NewValidator(q, ""),
		Questions: bank,
		Clock:     clock,
	}, LivenessConfig{
		PingInterval:    24 * time.Hour,
		ContestantGrace: 30 * time.Second,
		HostGrace:       30 * time.Second,
	}, "")

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go hub.Start(ctx)

	return &testEnv{ctx: ctx, hub: hub, clock: clock, store: store, repo: repo}
}

type received struct {
	Type MessageType     `json:"type"`
	Data json.RawMessage `json:"data"`
}

func (e *testEnv) send(t *testing.T, c *Connection, typ MessageType, data any) {
	t.Helper()
	raw, err := json.Marshal(map[string]any{"type": typ, "data": data})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	e.hub.Dispatch(e.ctx, c, raw)
}

func next(t *testing.T, c *Connection, want MessageType) received {
	t.Helper()
	select {
	case msg := <-c.send:
		var r received
		if err := json.Unmarshal(msg, &r); err != nil {
			t.Fatalf("decode %s: %v", msg, err)
		}
		if r.Type != want {
			t.Fatalf("got %s (%s), want %s", r.Type, r.Data, want)
		}
		return r
	case <-time.After(2 * time.Second):
		t.Fatalf("no %s message", want)
	}
	return received{}
}

func nothing(t *testing.T, c *Connection) {
	t.Helper()
	select {
	case msg := <-c.send:
		t.Fatalf("unexpected message %s", msg)
	case <-time.After(50 * time.Millisecond):
	}
}

func decode[T any](t *testing.T, r received) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(r.Data, &v); err != nil {
		t.Fatalf("decode %s data: %v", r.Type, err)
	}
	return v
}

// joinHost verifies the test code and joins as host, returning the init payload.
func (e *testEnv) joinHost(t *testing.T, c *Connection) InitPayload {
	t.Helper()
	e.send(t, c, MsgVerifyCode, map[string]string{"code": testCode})
	next(t, c, MsgCodeVerified)
	e.send(t, c, MsgJoin, map[string]string{"role": "host", "name": "host"})
	return decode[InitPayload](t, next(t, c, MsgInit))
}

func (e *testEnv) joinContestant(t *testing.T, c *Connection, name string) InitPayload {
	t.Helper()
	e.send(t, c, MsgJoin, map[string]string{"role": "contestant", "name": name, "code": testCode})
	init := decode[InitPayload](t, next(t, c, MsgInit))
	next(t, c, MsgUpdateTeams)
	return init
}

func TestJoinFlow(t *testing.T) {
	e := newTestEnv(t)
	h := testConn()

	e.send(t, h, MsgVerifyCode, map[string]string{"code": " ab12cd "})
	verified := decode[codeVerifiedData](t, next(t, h, MsgCodeVerified))
	if verified.Code != testCode || !verified.IsAdmin {
		t.Fatalf("codeVerified = %+v", verified)
	}

	e.send(t, h, MsgJoin, map[string]string{"role": "host"})
	init := decode[InitPayload](t, next(t, h, MsgInit))
	if init.Token == "" || init.Role != models.RoleHost || init.SessionID != testCode {
		t.Fatalf("host init = %+v", init)
	}
	if init.Questions == nil || init.Questions.General.Count() != 1 {
		t.Fatalf("host did not receive question pools: %+v", init.Questions)
	}
	if len(init.LettersOrder) != len(models.Alphabet) || len(init.Hexagons) != 0 {
		t.Fatalf("fresh board not default: %+v", init)
	}

	p1 := testConn()
	e.send(t, p1, MsgJoin, map[string]string{"role": "contestant", "name": "P1", "code": testCode})
	raw := next(t, p1, MsgInit)
	var fields map[string]json.RawMessage
	json.Unmarshal(raw.Data, &fields)
	if _, ok := fields["questions"]; ok {
		t.Fatalf("contestant init carries the question bank")
	}

	teams := decode[teamsData](t, next(t, h, MsgUpdateTeams))
	if len(teams.Teams.Red) != 1 || teams.Teams.Red[0] != "P1" {
		t.Fatalf("teams = %+v", teams.Teams)
	}
	next(t, p1, MsgUpdateTeams)

	p2 := testConn()
	e.send(t, p2, MsgJoin, map[string]string{"role": "contestant", "name": "P2", "code": testCode})
	next(t, p2, MsgInit)
	teams = decode[teamsData](t, next(t, h, MsgUpdateTeams))
	if len(teams.Teams.Green) != 1 || teams.Teams.Green[0] != "P2" {
		t.Fatalf("second contestant not balanced onto green: %+v", teams.Teams)
	}
}

func TestAuthFailures(t *testing.T) {
	e := newTestEnv(t)
	c := testConn()

	e.send(t, c, MsgVerifyCode, map[string]string{"code": "ZZ99ZZ"})
	next(t, c, MsgCodeError)

	e.send(t, c, MsgVerifyPhone, map[string]string{"phoneNumber": "12"})
	next(t, c, MsgCodeError)

	e.send(t, c, MsgJoin, map[string]string{"role": "contestant", "name": "P1"})
	next(t, c, MsgJoinError)

	e.send(t, c, MsgReconnect, map[string]string{"token": "not-a-token"})
	if r := decode[reasonData](t, next(t, c, MsgError)); r.Reason != "unknown token" {
		t.Fatalf("reason = %q", r.Reason)
	}

	if e.store.Len() != 0 {
		t.Fatalf("failed auth touched sessions")
	}
}

func TestSecondHostIsRefused(t *testing.T) {
	e := newTestEnv(t)
	e.joinHost(t, testConn())

	second := testConn()
	e.send(t, second, MsgVerifyCode, map[string]string{"code": testCode})
	next(t, second, MsgCodeVerified)
	e.send(t, second, MsgJoin, map[string]string{"role": "host"})
	next(t, second, MsgJoinError)
}

func TestMalformedMessagesKeepConnectionUsable(t *testing.T) {
	e := newTestEnv(t)
	h := testConn()
	e.joinHost(t, h)

	e.hub.Dispatch(e.ctx, h, []byte("not json"))
	next(t, h, MsgError)

	e.send(t, h, "launchRockets", nil)
	next(t, h, MsgError)

	e.send(t, h, MsgUpdateHexagon, map[string]any{"letter": "Q", "color": "red"})
	next(t, h, MsgError)

	e.send(t, h, MsgChangeColors, map[string]any{"colorSetIndex": 99})
	next(t, h, MsgError)

	p := testConn()
	e.joinContestant(t, p, "P1")
	next(t, h, MsgUpdateTeams)
	e.send(t, h, MsgParty, map[string]bool{"active": true})
	next(t, p, MsgParty)
}

func TestHostBoardEditsAreWrittenThroughAndBroadcast(t *testing.T) {
	e := newTestEnv(t)
	h, p := testConn(), testConn()
	e.joinHost(t, h)
	e.joinContestant(t, p, "P1")
	next(t, h, MsgUpdateTeams)

	letter := models.Alphabet[3]
	e.send(t, h, MsgUpdateHexagon, map[string]any{"letter": letter, "color": models.ColorSets[0].Red, "clickCount": 1})
	got := decode[hexagonData](t, next(t, p, MsgUpdateHexagon))
	if got.Letter != letter || got.ClickCount != 1 {
		t.Fatalf("updateHexagon = %+v", got)
	}
	next(t, h, MsgUpdateHexagon)

	saved, err := e.repo.Load(context.Background(), testCode)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if saved.Hexagons[letter].Color != models.ColorSets[0].Red {
		t.Fatalf("edit not persisted: %+v", saved.Hexagons)
	}

	e.send(t, h, MsgSwapColors, map[string]any{})
	board := decode[boardData](t, next(t, p, MsgSwapColors))
	if !board.IsSwapped || board.Hexagons[letter].Color != models.ColorSets[0].Green {
		t.Fatalf("swapColors = %+v", board)
	}

	e.send(t, h, MsgChangeColors, map[string]any{"colorSetIndex": 2})
	board = decode[boardData](t, next(t, p, MsgChangeColors))
	// the cell changed hands with the swap, so it takes the new set's red
	if board.ColorSetIndex != 2 || board.Hexagons[letter].Color != models.ColorSets[2].Red {
		t.Fatalf("changeColors = %+v", board)
	}
}

func TestContestantCannotEditBoard(t *testing.T) {
	e := newTestEnv(t)
	h, p := testConn(), testConn()
	e.joinHost(t, h)
	e.joinContestant(t, p, "P1")
	next(t, h, MsgUpdateTeams)

	e.send(t, p, MsgUpdateHexagon, map[string]any{"letter": models.Alphabet[0], "color": "x"})
	e.send(t, p, MsgResetBuzzer, nil)
	e.send(t, p, MsgUpdateTeams, map[string]any{"teams": map[string][]string{"red": {}, "green": {}}})
	nothing(t, h)
	nothing(t, p)

	snap, _ := e.store.GetOrCreate(context.Background(), testCode)
	if len(snap.Hexagons) != 0 || snap.Teams.Size() != 1 {
		t.Fatalf("contestant changed the session: %+v", snap)
	}
}

func TestBuzzerRaceAndTimedRelease(t *testing.T) {
	e := newTestEnv(t)
	h, p1, p2 := testConn(), testConn(), testConn()
	e.joinHost(t, h)
	e.joinContestant(t, p1, "P1")
	next(t, h, MsgUpdateTeams)
	e.joinContestant(t, p2, "P2")
	next(t, h, MsgUpdateTeams)
	next(t, p1, MsgUpdateTeams)

	e.send(t, p1, MsgBuzzer, map[string]string{"player": "P1"})
	e.send(t, p2, MsgBuzzer, map[string]string{"player": "P2"})

	for _, c := range []*Connection{h, p1, p2} {
		b := decode[models.Buzzer](t, next(t, c, MsgBuzzer))
		if !b.Active || b.Player != "P1" || b.Team != models.TeamRed {
			t.Fatalf("buzzer = %+v", b)
		}
		nothing(t, c)
	}

	e.clock.Advance(6 * time.Second)
	for _, c := range []*Connection{h, p1, p2} {
		if m := decode[messageData](t, next(t, c, MsgTimeUpWarning)); m.Message == "" {
			t.Fatalf("empty warning message")
		}
	}

	e.clock.Advance(time.Second)
	for _, c := range []*Connection{h, p1, p2} {
		next(t, c, MsgTimeUp)
	}

	e.send(t, p2, MsgBuzzer, map[string]string{"player": "P2"})
	if b := decode[models.Buzzer](t, next(t, h, MsgBuzzer)); b.Player != "P2" || b.Team != models.TeamGreen {
		t.Fatalf("press after release = %+v", b)
	}
}

func TestWarningPrecedesReleaseWhenBothAreDue(t *testing.T) {
	for i := 0; i < 20; i++ {
		e := newTestEnv(t)
		h, p := testConn(), testConn()
		e.joinHost(t, h)
		e.joinContestant(t, p, "P1")
		next(t, h, MsgUpdateTeams)

		e.send(t, p, MsgBuzzer, nil)
		next(t, h, MsgBuzzer)
		next(t, p, MsgBuzzer)

		e.clock.Advance(7 * time.Second)
		for _, c := range []*Connection{h, p} {
			next(t, c, MsgTimeUpWarning)
			next(t, c, MsgTimeUp)
			nothing(t, c)
		}
	}
}

func TestHostResetCancelsTimeout(t *testing.T) {
	e := newTestEnv(t)
	h, p := testConn(), testConn()
	e.joinHost(t, h)
	e.joinContestant(t, p, "P1")
	next(t, h, MsgUpdateTeams)

	e.send(t, p, MsgBuzzer, map[string]string{"player": "P1"})
	next(t, h, MsgBuzzer)
	next(t, p, MsgBuzzer)

	e.clock.Advance(2 * time.Second)
	e.send(t, h, MsgResetBuzzer, nil)
	next(t, h, MsgResetBuzzer)
	next(t, p, MsgResetBuzzer)

	e.clock.Advance(10 * time.Second)
	nothing(t, h)
	nothing(t, p)

	snap, _ := e.store.GetOrCreate(context.Background(), testCode)
	if snap.Buzzer.Active || snap.BuzzerLock {
		t.Fatalf("buzzer still locked: %+v", snap.Buzzer)
	}
}

func TestTeamEditReleasesRemovedHolder(t *testing.T) {
	e := newTestEnv(t)
	h, p := testConn(), testConn()
	e.joinHost(t, h)
	e.joinContestant(t, p, "P1")
	next(t, h, MsgUpdateTeams)

	e.send(t, p, MsgBuzzer, nil)
	next(t, h, MsgBuzzer)
	next(t, p, MsgBuzzer)

	e.send(t, h, MsgUpdateTeams, map[string]any{"teams": map[string][]string{"red": {}, "green": {"P9"}}})
	for _, c := range []*Connection{h, p} {
		if teams := decode[teamsData](t, next(t, c, MsgUpdateTeams)); teams.Teams.Size() != 1 {
			t.Fatalf("teams = %+v", teams.Teams)
		}
		next(t, c, MsgResetBuzzer)
	}

	e.send(t, h, MsgUpdateTeams, map[string]any{"teams": map[string][]string{"red": {"A", "A"}, "green": {}}})
	next(t, h, MsgError)
}

func TestReconnectWithinGraceKeepsTeam(t *testing.T) {
	e := newTestEnv(t)
	h, p := testConn(), testConn()
	e.joinHost(t, h)
	init := e.joinContestant(t, p, "P1")
	next(t, h, MsgUpdateTeams)

	e.hub.disconnect(e.ctx, p)
	id := contestant(testCode, "P1")
	if _, ok := e.hub.Monitor().Pending(id); !ok {
		t.Fatalf("no grace period after disconnect")
	}

	e.clock.Advance(20 * time.Second)
	back := testConn()
	e.send(t, back, MsgReconnect, map[string]string{"token": init.Token})
	again := decode[InitPayload](t, next(t, back, MsgInit))
	if again.Token != init.Token || again.Name != "P1" {
		t.Fatalf("reconnect init = %+v", again)
	}
	if len(again.Teams.Red) != 1 || again.Teams.Red[0] != "P1" {
		t.Fatalf("team lost across reconnect: %+v", again.Teams)
	}
	if _, ok := e.hub.Monitor().Pending(id); ok {
		t.Fatalf("grace period still pending after reconnect")
	}

	e.clock.Advance(time.Minute)
	nothing(t, h)
}

func TestNameRejoinDuringGraceKeepsRemovalPending(t *testing.T) {
	e := newTestEnv(t)
	h, p := testConn(), testConn()
	e.joinHost(t, h)
	e.joinContestant(t, p, "P1")
	next(t, h, MsgUpdateTeams)

	e.hub.disconnect(e.ctx, p)
	id := contestant(testCode, "P1")

	back := testConn()
	e.send(t, back, MsgJoin, map[string]string{"role": "contestant", "name": "P1", "code": testCode})
	init := decode[InitPayload](t, next(t, back, MsgInit))
	if len(init.Teams.Red) != 1 || init.Teams.Red[0] != "P1" {
		t.Fatalf("rejoin lost the team: %+v", init.Teams)
	}
	if _, ok := e.hub.Monitor().Pending(id); !ok {
		t.Fatalf("name rejoin cancelled the pending removal")
	}

	// the expiry finds P1 live again and leaves the roster alone
	e.clock.Advance(30 * time.Second)
	nothing(t, h)
	snap, _ := e.store.GetOrCreate(context.Background(), testCode)
	if team, ok := snap.Teams.TeamOf("P1"); !ok || team != models.TeamRed {
		t.Fatalf("P1 removed after rejoin: %+v", snap.Teams)
	}
}

func TestReconnectReplacesLiveConnection(t *testing.T) {
	e := newTestEnv(t)
	old := testConn()
	init := e.joinHost(t, old)

	fresh := testConn()
	e.send(t, fresh, MsgReconnect, map[string]string{"token": init.Token})
	next(t, fresh, MsgInit)
	if !old.Closed() {
		t.Fatalf("replaced connection left open")
	}
	if e.hub.registry.Host(testCode) != fresh {
		t.Fatalf("host slot not moved to the reconnecting socket")
	}

	// the old socket's late close must not start a grace period
	e.hub.disconnect(e.ctx, old)
	if e.hub.Monitor().PendingCount() != 0 {
		t.Fatalf("stale disconnect scheduled a removal")
	}
}

func TestGraceExpiryRemovesContestant(t *testing.T) {
	e := newTestEnv(t)
	h, p := testConn(), testConn()
	e.joinHost(t, h)
	e.joinContestant(t, p, "P1")
	next(t, h, MsgUpdateTeams)

	e.hub.disconnect(e.ctx, p)
	e.clock.Advance(30 * time.Second)

	teams := decode[teamsData](t, next(t, h, MsgUpdateTeams))
	if teams.Teams.Size() != 0 {
		t.Fatalf("contestant not removed: %+v", teams.Teams)
	}
}

func TestExpiredTokenIsRejected(t *testing.T) {
	e := newTestEnv(t)
	init := e.joinHost(t, testConn())

	e.clock.Advance(time.Hour)
	c := testConn()
	e.send(t, c, MsgReconnect, map[string]string{"token": init.Token})
	if r := decode[reasonData](t, next(t, c, MsgError)); r.Reason != "token expired" {
		t.Fatalf("reason = %q", r.Reason)
	}
}

func TestDisplaySlot(t *testing.T) {
	e := newTestEnv(t)
	d1, d2 := testConn(), testConn()

	e.send(t, d1, MsgJoin, map[string]string{"role": "display", "code": testCode})
	next(t, d1, MsgInit)
	e.send(t, d2, MsgJoin, map[string]string{"role": "display", "code": testCode})
	nothing(t, d2)

	snap, _ := e.store.GetOrCreate(context.Background(), testCode)
	if !snap.DisplayConnected {
		t.Fatalf("display flag not set")
	}

	e.hub.disconnect(e.ctx, d1)
	snap, _ = e.store.GetOrCreate(context.Background(), testCode)
	if snap.DisplayConnected {
		t.Fatalf("display flag not cleared")
	}
}

func TestAddQuestionGoesToHostOnly(t *testing.T) {
	e := newTestEnv(t)
	h, p := testConn(), testConn()
	e.joinHost(t, h)
	e.joinContestant(t, p, "P1")
	next(t, h, MsgUpdateTeams)

	letter := models.Alphabet[5]
	e.send(t, h, MsgAddQuestion, map[string]string{"letter": letter, "question": "q?", "answer": "a"})
	pool := decode[questionsData](t, next(t, h, MsgUpdateQuestions))
	if len(pool.Session[letter]) != 1 || pool.Session[letter][0].Answer != "a" {
		t.Fatalf("updateQuestions = %+v", pool.Session)
	}
	nothing(t, p)

	e.send(t, p, MsgAddQuestion, map[string]string{"letter": letter, "question": "x", "answer": "y"})
	nothing(t, h)
}

// Package buzzer implements the single-winner buzzer lock with timed release.
//
// The arbiter holds no session state of its own beyond the timers of the
// current lock cycle; the observable state lives on models.Session. Every
// method that takes a session must be called with that session held by the
// session store so presses, resets and timer fires are serialized.
package buzzer

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/huroof/go/internal/models"
)

// FireKind distinguishes the two timers of a lock cycle.
type FireKind string

const (
	FireWarning FireKind = "warning"
	FireRelease FireKind = "release"
)

// Fire is delivered on Fired when a cycle timer elapses.
type Fire struct {
	SessionID string
	Cycle     uint64
	Kind      FireKind
}

// Timing holds the delays measured from lock acquisition.
type Timing struct {
	WarnAfter    time.Duration
	ReleaseAfter time.Duration
}

func DefaultTiming() Timing {
	return Timing{WarnAfter: 6 * time.Second, ReleaseAfter: 7 * time.Second}
}

// cycle is one Locked period and its cancellable timers.
type cycle struct {
	id      uint64
	warned  bool
	warn    clockwork.Timer
	release clockwork.Timer
	stop    chan struct{}
}

// Arbiter decides buzzer presses and owns the lock cycle timers.
type Arbiter struct {
	clock  clockwork.Clock
	timing Timing
	fired  chan Fire

	mu     sync.Mutex
	seq    uint64
	cycles map[string]*cycle
}

// NewArbiter creates an Arbiter. Zero timing fields take the defaults.
func NewArbiter(clock clockwork.Clock, timing Timing) *Arbiter {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	def := DefaultTiming()
	if timing.WarnAfter <= 0 {
		timing.WarnAfter = def.WarnAfter
	}
	if timing.ReleaseAfter <= timing.WarnAfter {
		timing.ReleaseAfter = timing.WarnAfter + (def.ReleaseAfter - def.WarnAfter)
	}
	return &Arbiter{
		clock:  clock,
		timing: timing,
		fired:  make(chan Fire, 256),
		cycles: make(map[string]*cycle),
	}
}

// Fired delivers timer expiries. The receiver must route each Fire back
// through the session store and call Warn or Expire.
func (a *Arbiter) Fired() <-chan Fire {
	return a.fired
}

// Press attempts to take the lock for name. It returns false without changing
// anything when the lock is held or name is on neither roster.
func (a *Arbiter) Press(s *models.Session, name string) bool {
	if s.Buzzer.Active || s.BuzzerLock {
		return false
	}
	team, ok := s.Teams.TeamOf(name)
	if !ok {
		return false
	}

	s.Buzzer = models.Buzzer{Active: true, Player: name, Team: team}
	s.BuzzerLock = true
	id := a.startCycle(s.ID)

	log.Debug().
		Str("session_id", s.ID).
		Str("player", name).
		Str("team", string(team)).
		Uint64("cycle", id).
		Msg("buzzer locked")
	return true
}

// Release is the host reset. It cancels the cycle timers and returns the
// buzzer to idle. It reports whether a lock was held.
func (a *Arbiter) Release(s *models.Session) bool {
	held := s.Buzzer.Active || s.BuzzerLock
	a.Cancel(s.ID)
	s.ClearBuzzer()
	return held
}

// Warn reports whether the warning for cycle should be announced. It is true
// at most once per cycle and false for superseded cycles.
func (a *Arbiter) Warn(s *models.Session, cycleID uint64) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	c, ok := a.cycles[s.ID]
	if !ok || c.id != cycleID || c.warned || !s.BuzzerLock {
		return false
	}
	c.warned = true
	return true
}

// Expire is the timeout path. It releases the lock if cycle is still current.
func (a *Arbiter) Expire(s *models.Session, cycleID uint64) bool {
	a.mu.Lock()
	c, ok := a.cycles[s.ID]
	if !ok || c.id != cycleID {
		a.mu.Unlock()
		return false
	}
	delete(a.cycles, s.ID)
	a.mu.Unlock()

	stopCycle(c)
	s.ClearBuzzer()
	return true
}

// Cancel stops any outstanding timers for sessionID.
func (a *Arbiter) Cancel(sessionID string) {
	a.mu.Lock()
	c, ok := a.cycles[sessionID]
	delete(a.cycles, sessionID)
	a.mu.Unlock()

	if ok {
		stopCycle(c)
		log.Debug().Str("session_id", sessionID).Uint64("cycle", c.id).Msg("cancelled buzzer timers")
	}
}

// Current returns the id of the live cycle for sessionID.
func (a *Arbiter) Current(sessionID string) (uint64, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	c, ok := a.cycles[sessionID]
	if !ok {
		return 0, false
	}
	return c.id, true
}

// Active returns the number of sessions with a running cycle.
func (a *Arbiter) Active() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.cycles)
}

func (a *Arbiter) startCycle(sessionID string) uint64 {
	a.mu.Lock()
	a.seq++
	c := &cycle{
		id:      a.seq,
		warn:    a.clock.NewTimer(a.timing.WarnAfter),
		release: a.clock.NewTimer(a.timing.ReleaseAfter),
		stop:    make(chan struct{}),
	}
	previous, replaced := a.cycles[sessionID]
	a.cycles[sessionID] = c
	a.mu.Unlock()

	if replaced {
		stopCycle(previous)
	}

	go a.await(sessionID, c.id, c.warn, FireWarning, c.stop)
	go a.await(sessionID, c.id, c.release, FireRelease, c.stop)
	return c.id
}

func (a *Arbiter) await(sessionID string, cycleID uint64, t clockwork.Timer, kind FireKind, stop <-chan struct{}) {
	select {
	case <-t.Chan():
		fire := Fire{SessionID: sessionID, Cycle: cycleID, Kind: kind}
		select {
		case a.fired <- fire:
		case <-stop:
		}
	case <-stop:
	}
}

func stopCycle(c *cycle) {
	close(c.stop)
	stopAndDrainTimer(c.warn)
	stopAndDrainTimer(c.release)
}

// stopAndDrainTimer stops a timer and drains its channel if it already fired.
func stopAndDrainTimer(timer clockwork.Timer) {
	if !timer.Stop() {
		select {
		case <-timer.Chan():
		default:
		}
	}
}

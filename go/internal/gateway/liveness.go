package gateway

import (
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/huroof/go/internal/models"
)

// LivenessConfig tunes probing and reconnect grace.
type LivenessConfig struct {
	PingInterval    time.Duration
	ContestantGrace time.Duration
	HostGrace       time.Duration
}

func DefaultLivenessConfig() LivenessConfig {
	return LivenessConfig{
		PingInterval:    10 * time.Second,
		ContestantGrace: 30 * time.Second,
		HostGrace:       30 * time.Second,
	}
}

type pendingRemoval struct {
	since time.Time
	timer clockwork.Timer
	stop  chan struct{}
}

// Monitor probes open connections and runs the grace timers of identities
// whose connection dropped.
type Monitor struct {
	clock    clockwork.Clock
	config   LivenessConfig
	onExpire func(Identity)

	mu      sync.Mutex
	conns   map[*Connection]struct{}
	pending map[Identity]*pendingRemoval
}

// NewMonitor creates a Monitor. onExpire runs on its own goroutine when a
// grace period elapses without Cancel.
func NewMonitor(clock clockwork.Clock, config LivenessConfig, onExpire func(Identity)) *Monitor {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	def := DefaultLivenessConfig()
	if config.PingInterval <= 0 {
		config.PingInterval = def.PingInterval
	}
	if config.ContestantGrace <= 0 {
		config.ContestantGrace = def.ContestantGrace
	}
	if config.HostGrace <= 0 {
		config.HostGrace = def.HostGrace
	}
	return &Monitor{
		clock:    clock,
		config:   config,
		onExpire: onExpire,
		conns:    make(map[*Connection]struct{}),
		pending:  make(map[Identity]*pendingRemoval),
	}
}

// Track adds an open connection to the probe set.
func (m *Monitor) Track(c *Connection) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.conns[c] = struct{}{}
	openConnections.Inc()
}

// Untrack removes a closed connection from the probe set.
func (m *Monitor) Untrack(c *Connection) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.conns[c]; ok {
		delete(m.conns, c)
		openConnections.Dec()
	}
}

// Run sweeps on every tick until ctx is done.
func (m *Monitor) Run(ctx context.Context) {
	ticker := m.clock.NewTicker(m.config.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			m.stopAll()
			return
		case <-ticker.Chan():
			m.Sweep()
		}
	}
}

// Sweep closes connections that have not answered since the previous sweep
// and probes the rest. It returns the number closed.
func (m *Monitor) Sweep() int {
	m.mu.Lock()
	conns := make([]*Connection, 0, len(m.conns))
	for c := range m.conns {
		conns = append(conns, c)
	}
	m.mu.Unlock()

	terminated := 0
	for _, c := range conns {
		if !c.alive.Swap(false) {
			log.Info().Str("connection_id", c.ID).Msg("connection missed liveness probe, closing")
			terminatedTotal.Inc()
			c.Close()
			terminated++
			continue
		}
		c.requestPing()
	}
	return terminated
}

func (m *Monitor) grace(role models.Role) time.Duration {
	if role == models.RoleHost {
		return m.config.HostGrace
	}
	return m.config.ContestantGrace
}

// ScheduleRemoval starts the grace timer for id, replacing any pending one.
func (m *Monitor) ScheduleRemoval(id Identity) {
	p := &pendingRemoval{
		since: m.clock.Now(),
		timer: m.clock.NewTimer(m.grace(id.Role)),
		stop:  make(chan struct{}),
	}

	m.mu.Lock()
	previous, replaced := m.pending[id]
	m.pending[id] = p
	m.mu.Unlock()

	if replaced {
		stopPending(previous)
	}

	log.Debug().
		Str("session_id", id.SessionID).
		Str("role", string(id.Role)).
		Str("name", id.Name).
		Msg("scheduled removal after grace period")

	go m.await(id, p)
}

func (m *Monitor) await(id Identity, p *pendingRemoval) {
	select {
	case <-p.timer.Chan():
	case <-p.stop:
		return
	}

	m.mu.Lock()
	current := m.pending[id] == p
	if current {
		delete(m.pending, id)
	}
	m.mu.Unlock()

	if current && m.onExpire != nil {
		graceRemovalsTotal.WithLabelValues(string(id.Role)).Inc()
		m.onExpire(id)
	}
}

// Cancel stops the grace timer for id. It reports whether one was pending.
func (m *Monitor) Cancel(id Identity) bool {
	m.mu.Lock()
	p, ok := m.pending[id]
	delete(m.pending, id)
	m.mu.Unlock()

	if ok {
		stopPending(p)
	}
	return ok
}

// Pending reports when id's grace period started, if one is running.
func (m *Monitor) Pending(id Identity) (time.Time, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.pending[id]
	if !ok {
		return time.Time{}, false
	}
	return p.since, true
}

// PendingCount returns the number of running grace timers.
func (m *Monitor) PendingCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.pending)
}

// Tracked returns the number of open connections being probed.
func (m *Monitor) Tracked() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.conns)
}

// closeAll closes every tracked connection.
func (m *Monitor) closeAll() {
	m.mu.Lock()
	conns := make([]*Connection, 0, len(m.conns))
	for c := range m.conns {
		conns = append(conns, c)
	}
	m.mu.Unlock()

	for _, c := range conns {
		c.Close()
	}
}

func (m *Monitor) stopAll() {
	m.mu.Lock()
	pending := m.pending
	m.pending = make(map[Identity]*pendingRemoval)
	m.mu.Unlock()

	for _, p := range pending {
		stopPending(p)
	}
}

func stopPending(p *pendingRemoval) {
	close(p.stop)
	if !p.timer.Stop() {
		select {
		case <-p.timer.Chan():
		default:
		}
	}
}

package gateway

import (
	"sync"

	"github.com/mcdev12/huroof/go/internal/models"
)

// RegisterOptions modify Register.
type RegisterOptions struct {
	// Reclaim lets a token-proven identity replace the live connection that
	// holds the same host or contestant name.
	Reclaim bool
}

// RegisterResult describes a successful Register.
type RegisterResult struct {
	// Replaced is the previous connection for the identity, already removed
	// from the registry. The caller closes it.
	Replaced *Connection
	// Existing is true when the connection was already registered under the
	// same identity.
	Existing bool
}

type sessionConnections struct {
	all         map[*Connection]struct{}
	host        *Connection
	display     *Connection
	contestants map[string]*Connection
}

func newSessionConnections() *sessionConnections {
	return &sessionConnections{
		all:         make(map[*Connection]struct{}),
		contestants: make(map[string]*Connection),
	}
}

func (sc *sessionConnections) empty() bool {
	return len(sc.all) == 0
}

// Registry maps live connections to identities, indexed by session.
type Registry struct {
	mu        sync.RWMutex
	conns     map[*Connection]Identity
	bySession map[string]*sessionConnections
}

func NewRegistry() *Registry {
	return &Registry{
		conns:     make(map[*Connection]Identity),
		bySession: make(map[string]*sessionConnections),
	}
}

// Register binds c to id, enforcing one host and one display per session and
// unique live contestant names.
func (r *Registry) Register(c *Connection, id Identity, opts RegisterOptions) (RegisterResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if current, ok := r.conns[c]; ok {
		if current == id {
			c.markAlive()
			return RegisterResult{Existing: true}, nil
		}
		return RegisterResult{}, ErrAlreadyRegistered
	}

	sc := r.bySession[id.SessionID]
	var replaced *Connection
	if sc != nil {
		switch id.Role {
		case models.RoleHost:
			if sc.host != nil {
				if !opts.Reclaim || r.conns[sc.host].Name != id.Name {
					return RegisterResult{}, ErrRoleConflict
				}
				replaced = sc.host
			}
		case models.RoleDisplay:
			if sc.display != nil {
				return RegisterResult{}, ErrDisplayOccupied
			}
		case models.RoleContestant:
			if existing := sc.contestants[id.Name]; existing != nil {
				if !opts.Reclaim {
					return RegisterResult{}, ErrNameTaken
				}
				replaced = existing
			}
		}
	}

	if replaced != nil {
		r.removeLocked(replaced)
		sc = r.bySession[id.SessionID]
	}
	if sc == nil {
		sc = newSessionConnections()
		r.bySession[id.SessionID] = sc
	}

	r.conns[c] = id
	sc.all[c] = struct{}{}
	switch id.Role {
	case models.RoleHost:
		sc.host = c
	case models.RoleDisplay:
		sc.display = c
	case models.RoleContestant:
		sc.contestants[id.Name] = c
	}
	identity := id
	c.setIdentity(&identity)
	registeredConnections.WithLabelValues(string(id.Role)).Inc()

	return RegisterResult{Replaced: replaced}, nil
}

// Unregister removes c if it is the currently registered instance.
func (r *Registry) Unregister(c *Connection) (Identity, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id, ok := r.conns[c]
	if !ok {
		return Identity{}, false
	}
	r.removeLocked(c)
	return id, true
}

func (r *Registry) removeLocked(c *Connection) {
	id, ok := r.conns[c]
	if !ok {
		return
	}
	delete(r.conns, c)
	registeredConnections.WithLabelValues(string(id.Role)).Dec()

	sc := r.bySession[id.SessionID]
	if sc == nil {
		return
	}
	delete(sc.all, c)
	switch id.Role {
	case models.RoleHost:
		if sc.host == c {
			sc.host = nil
		}
	case models.RoleDisplay:
		if sc.display == c {
			sc.display = nil
		}
	case models.RoleContestant:
		if sc.contestants[id.Name] == c {
			delete(sc.contestants, id.Name)
		}
	}
	if sc.empty() {
		delete(r.bySession, id.SessionID)
	}
}

// IdentityOf returns the identity c is registered under.
func (r *Registry) IdentityOf(c *Connection) (Identity, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.conns[c]
	return id, ok
}

// IsCurrent reports whether c is registered.
func (r *Registry) IsCurrent(c *Connection) bool {
	_, ok := r.IdentityOf(c)
	return ok
}

// Host returns the session's live host connection, or nil.
func (r *Registry) Host(sessionID string) *Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if sc := r.bySession[sessionID]; sc != nil {
		return sc.host
	}
	return nil
}

// IsLive reports whether some connection currently holds id.
func (r *Registry) IsLive(id Identity) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	sc := r.bySession[id.SessionID]
	if sc == nil {
		return false
	}
	switch id.Role {
	case models.RoleHost:
		return sc.host != nil && r.conns[sc.host].Name == id.Name
	case models.RoleDisplay:
		return sc.display != nil
	case models.RoleContestant:
		return sc.contestants[id.Name] != nil
	}
	return false
}

// SessionConnections returns the registered connections of a session.
func (r *Registry) SessionConnections(sessionID string) []*Connection {
	return r.collect(sessionID, func(Identity) bool { return true })
}

// RoleConnections returns the registered connections of a session with role.
func (r *Registry) RoleConnections(sessionID string, role models.Role) []*Connection {
	return r.collect(sessionID, func(id Identity) bool { return id.Role == role })
}

func (r *Registry) collect(sessionID string, keep func(Identity) bool) []*Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()
	sc := r.bySession[sessionID]
	if sc == nil {
		return nil
	}
	out := make([]*Connection, 0, len(sc.all))
	for c := range sc.all {
		if keep(r.conns[c]) {
			out = append(out, c)
		}
	}
	return out
}

// RegistryStats summarizes the registry.
type RegistryStats struct {
	Connections int            `json:"connections"`
	Sessions    int            `json:"sessions"`
	ByRole      map[string]int `json:"by_role"`
}

func (r *Registry) Stats() RegistryStats {
	r.mu.RLock()
	defer r.mu.RUnlock()
	stats := RegistryStats{
		Connections: len(r.conns),
		Sessions:    len(r.bySession),
		ByRole:      make(map[string]int),
	}
	for _, id := range r.conns {
		stats.ByRole[string(id.Role)]++
	}
	return stats
}

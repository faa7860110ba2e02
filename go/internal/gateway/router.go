package gateway

import (
	"encoding/json"

	"github.com/rs/zerolog/log"

	"github.com/mcdev12/huroof/go/internal/models"
)

// EventSink receives every session-wide broadcast. Publish must not block.
type EventSink interface {
	Publish(sessionID string, eventType string, message []byte)
}

type nopSink struct{}

func (nopSink) Publish(string, string, []byte) {}

// Router fans events out to registered connections.
type Router struct {
	registry *Registry
	sink     EventSink
}

// NewRouter creates a Router. sink may be nil.
func NewRouter(registry *Registry, sink EventSink) *Router {
	if sink == nil {
		sink = nopSink{}
	}
	return &Router{registry: registry, sink: sink}
}

// Broadcast sends ev to every connection of the session except exclude and
// returns the number of connections it was queued for.
func (r *Router) Broadcast(sessionID string, ev Event, exclude *Connection) int {
	data, ok := marshalEvent(sessionID, ev)
	if !ok {
		return 0
	}
	sent := 0
	for _, c := range r.registry.SessionConnections(sessionID) {
		if c == exclude {
			continue
		}
		if r.deliver(c, data) {
			sent++
		}
	}
	r.sink.Publish(sessionID, string(ev.Type), data)

	log.Debug().
		Str("session_id", sessionID).
		Str("event_type", string(ev.Type)).
		Int("recipients", sent).
		Msg("broadcast event")
	return sent
}

// SendToRole sends ev to the session's connections with role. Role-targeted
// events are private and not published to the sink.
func (r *Router) SendToRole(sessionID string, role models.Role, ev Event) int {
	data, ok := marshalEvent(sessionID, ev)
	if !ok {
		return 0
	}
	sent := 0
	for _, c := range r.registry.RoleConnections(sessionID, role) {
		if r.deliver(c, data) {
			sent++
		}
	}
	return sent
}

// SendTo sends ev to a single connection, registered or not.
func (r *Router) SendTo(c *Connection, ev Event) bool {
	data, ok := marshalEvent("", ev)
	if !ok {
		return false
	}
	return r.deliver(c, data)
}

func (r *Router) deliver(c *Connection, data []byte) bool {
	if c.Enqueue(data) {
		return true
	}
	if !c.Closed() {
		slowConsumersTotal.Inc()
		log.Warn().
			Str("connection_id", c.ID).
			Msg("send buffer full, closing connection")
		c.Close()
	}
	return false
}

func marshalEvent(sessionID string, ev Event) ([]byte, bool) {
	data, err := json.Marshal(ev)
	if err != nil {
		log.Error().
			Err(err).
			Str("session_id", sessionID).
			Str("event_type", string(ev.Type)).
			Msg("failed to marshal event")
		return nil, false
	}
	return data, true
}

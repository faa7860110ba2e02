package gateway

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

// WebSocketHandler handles WebSocket upgrade requests for session connections
type WebSocketHandler struct {
	hub      *Hub
	upgrader websocket.Upgrader
	config   ConnectionConfig
	ctx      context.Context
}

// NewWebSocketHandler creates a new WebSocket handler. Connections it serves
// live until their socket closes or ctx is done.
func NewWebSocketHandler(ctx context.Context, hub *Hub, config ConnectionConfig) *WebSocketHandler {
	return &WebSocketHandler{
		hub: hub,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  config.ReadBufferSize,
			WriteBufferSize: config.WriteBufferSize,
			CheckOrigin:     config.CheckOrigin,
		},
		config: config,
		ctx:    ctx,
	}
}

// HandleConnection upgrades the request. Displays may pass their token in
// the query string; everyone else verifies and joins over the socket.
func (h *WebSocketHandler) HandleConnection(w http.ResponseWriter, r *http.Request) {
	initialToken := r.URL.Query().Get("token")

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already replied to the client
		log.Error().Err(err).Msg("failed to upgrade WebSocket connection")
		return
	}

	c := newConnection(conn, h.config.SendBufferSize)
	log.Info().
		Str("connection_id", c.ID).
		Str("remote_addr", r.RemoteAddr).
		Str("session_id", r.URL.Query().Get("sessionId")).
		Msg("WebSocket connection established")

	go h.hub.Serve(h.ctx, c, h.config, initialToken)
}

// ConnectionStats is served on /ws/stats.
type ConnectionStats struct {
	Registry        RegistryStats `json:"registry"`
	OpenConnections int           `json:"open_connections"`
	PendingRemovals int           `json:"pending_removals"`
	CachedSessions  int           `json:"cached_sessions"`
	ActiveBuzzers   int           `json:"active_buzzers"`
}

// Stats returns a snapshot of connection and session counts.
func (h *Hub) Stats() ConnectionStats {
	return ConnectionStats{
		Registry:        h.registry.Stats(),
		OpenConnections: h.monitor.Tracked(),
		PendingRemovals: h.monitor.PendingCount(),
		CachedSessions:  h.store.Len(),
		ActiveBuzzers:   h.arbiter.Active(),
	}
}

// HandleConnectionStats returns statistics about active connections
func (h *WebSocketHandler) HandleConnectionStats(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(h.hub.Stats()); err != nil {
		log.Error().Err(err).Msg("failed to write connection stats")
	}
}

// RegisterRoutes registers WebSocket routes with an HTTP mux
func (h *WebSocketHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/ws", h.HandleConnection)
	mux.HandleFunc("/ws/stats", h.HandleConnectionStats)
}

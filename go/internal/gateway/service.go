package gateway

import (
	"context"
	"net/http"

	"github.com/rs/zerolog/log"
)

// Config holds configuration for the session gateway service
type Config struct {
	Connection     ConnectionConfig
	Liveness       LivenessConfig
	WarningMessage string
	PublicURL      string
}

// DefaultConfig returns default configuration for the session gateway
func DefaultConfig() Config {
	return Config{
		Connection:     DefaultConnectionConfig(),
		Liveness:       DefaultLivenessConfig(),
		WarningMessage: DefaultTimeUpWarning,
		PublicURL:      "http://localhost:3000",
	}
}

// Service is the websocket gateway: it accepts connections and runs the hub
// that applies their messages to sessions.
type Service struct {
	hub          *Hub
	registry     *Registry
	wsHandler    *WebSocketHandler
	displayLinks *DisplayLinkHandler
	cancel       context.CancelFunc
	ctx          context.Context
}

// NewService wires a Service. deps.Registry and deps.Router are created when nil;
// sink receives broadcasts when the router is created here.
func NewService(config Config, deps HubDeps, sink EventSink) *Service {
	if deps.Registry == nil {
		deps.Registry = NewRegistry()
	}
	if deps.Router == nil {
		deps.Router = NewRouter(deps.Registry, sink)
	}
	hub := NewHub(deps, config.Liveness, config.WarningMessage)

	ctx, cancel := context.WithCancel(context.Background())
	return &Service{
		hub:          hub,
		registry:     deps.Registry,
		wsHandler:    NewWebSocketHandler(ctx, hub, config.Connection),
		displayLinks: NewDisplayLinkHandler(deps.Tokens, config.PublicURL),
		cancel:       cancel,
		ctx:          ctx,
	}
}

// Start runs the hub until ctx is done, then closes every connection.
func (s *Service) Start(ctx context.Context) error {
	log.Info().Msg("starting session gateway service")

	go s.hub.Start(s.ctx)

	<-ctx.Done()

	log.Info().Msg("session gateway service shutting down")
	return s.Stop()
}

// Stop stops the hub and closes open connections.
func (s *Service) Stop() error {
	s.cancel()
	s.hub.monitor.closeAll()
	log.Info().Msg("session gateway service stopped")
	return nil
}

// RegisterRoutes registers the WebSocket and display-link HTTP routes
func (s *Service) RegisterRoutes(mux *http.ServeMux) {
	s.wsHandler.RegisterRoutes(mux)
	s.displayLinks.RegisterRoutes(mux)
	log.Info().Msg("session gateway routes registered")
}

// Hub returns the service's hub.
func (s *Service) Hub() *Hub {
	return s.hub
}

// GetStats returns statistics about the gateway service
func (s *Service) GetStats() ConnectionStats {
	return s.hub.Stats()
}

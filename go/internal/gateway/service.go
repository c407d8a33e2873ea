// Package gateway serves the synchronised board over HTTP and websockets.
// Every board change is pushed to connected clients as a BoardSnapshot
// event; clients send commands back over the same socket or POST them.
package gateway

import (
	"context"
	"net/http"
	"sync"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

// Service is the board gateway: connection manager, websocket and REST
// handlers, and the loop that turns board changes into broadcasts.
type Service struct {
	connectionManager *ConnectionManager
	wsHandler         *WebSocketHandler
	stateHandler      *StateHandler
	syncer            BoardSyncer
	clock             clockwork.Clock

	quit     chan struct{}
	quitOnce sync.Once
}

// Config holds configuration for the board gateway service
type Config struct {
	ConnectionConfig ConnectionConfig
}

// DefaultConfig returns default configuration for the board gateway
func DefaultConfig() Config {
	return Config{
		ConnectionConfig: DefaultConnectionConfig(),
	}
}

// NewService creates a new board gateway. metrics and clock may be nil.
func NewService(config Config, syncer BoardSyncer, metrics MetricsSource, clock clockwork.Clock) *Service {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	cm := NewConnectionManager(config.ConnectionConfig, syncer, clock)
	return &Service{
		connectionManager: cm,
		wsHandler:         NewWebSocketHandler(cm, syncer),
		stateHandler:      NewStateHandler(syncer, metrics),
		syncer:            syncer,
		clock:             clock,
		quit:              make(chan struct{}),
	}
}

// Start runs the gateway until ctx is cancelled or Stop is called.
func (s *Service) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-s.quit:
			cancel()
		case <-ctx.Done():
		}
	}()

	log.Info().Msg("starting board gateway service")

	changes, unwatch := s.syncer.Watch()
	defer unwatch()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		s.connectionManager.Start(ctx)
	}()

	s.broadcastChanges(ctx, changes)
	cancel()
	wg.Wait()

	log.Info().Msg("board gateway service stopped")
	return nil
}

// broadcastChanges pushes a snapshot for every change signal. It returns
// when ctx ends or the syncer stops.
func (s *Service) broadcastChanges(ctx context.Context, changes <-chan struct{}) {
	for {
		select {
		case <-ctx.Done():
			return
		case _, ok := <-changes:
			if !ok {
				log.Info().Msg("board syncer stopped, closing gateway")
				return
			}
			if s.syncer.Board() == nil {
				continue
			}
			event, err := snapshotEvent(s.syncer, s.clock.Now())
			if err != nil {
				log.Error().Err(err).Msg("failed to build board snapshot")
				continue
			}
			s.connectionManager.Broadcast(event)
		}
	}
}

// Stop makes Start return and close every connection. A Start called
// after Stop returns immediately.
func (s *Service) Stop() error {
	s.quitOnce.Do(func() { close(s.quit) })
	return nil
}

// RegisterRoutes registers the websocket and REST routes
func (s *Service) RegisterRoutes(mux *http.ServeMux) {
	s.wsHandler.RegisterRoutes(mux)
	s.stateHandler.RegisterStateRoutes(mux)
	log.Info().Msg("board gateway routes registered")
}

// GetStats returns statistics about the gateway service
func (s *Service) GetStats() map[string]interface{} {
	stats := s.connectionManager.GetConnectionStats()
	return map[string]interface{}{
		"service":            "board_gateway",
		"sync_state":         s.syncer.State().String(),
		"total_connections":  stats.TotalConnections,
		"member_connections": stats.MemberConnections,
	}
}

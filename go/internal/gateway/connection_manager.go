package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

// ConnectionManager manages the websocket connections watching the board
type ConnectionManager struct {
	connections map[*Connection]bool
	mu          sync.RWMutex

	upgrader websocket.Upgrader
	config   ConnectionConfig
	clock    clockwork.Clock

	// Commands received from clients are applied here
	mutator Mutator

	broadcastCh chan BroadcastMessage
}

// Connection represents a websocket connection to a board member's client
type Connection struct {
	ID       string
	MemberID int
	Conn     *websocket.Conn
	Send     chan []byte
	Manager  *ConnectionManager

	ConnectedAt time.Time

	pingMu   sync.Mutex
	lastPing time.Time
}

// ConnectionConfig holds configuration for websocket connections
type ConnectionConfig struct {
	WriteTimeout    time.Duration
	ReadTimeout     time.Duration
	PingInterval    time.Duration
	MaxMessageSize  int64
	ReadBufferSize  int
	WriteBufferSize int
	SendBufferSize  int
	CheckOrigin     func(r *http.Request) bool
}

// BroadcastMessage is an event queued for every connection
type BroadcastMessage struct {
	Event *BoardEvent
}

// DefaultConnectionConfig returns default websocket configuration
func DefaultConnectionConfig() ConnectionConfig {
	return ConnectionConfig{
		WriteTimeout:    10 * time.Second,
		ReadTimeout:     60 * time.Second,
		PingInterval:    30 * time.Second,
		MaxMessageSize:  8 * 1024, // Slot descriptions make commands larger than a ping
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		SendBufferSize:  64,
		CheckOrigin: func(r *http.Request) bool {
			return true
		},
	}
}

// NewConnectionManager creates a new websocket connection manager
func NewConnectionManager(config ConnectionConfig, mutator Mutator, clock clockwork.Clock) *ConnectionManager {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &ConnectionManager{
		connections: make(map[*Connection]bool),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  config.ReadBufferSize,
			WriteBufferSize: config.WriteBufferSize,
			CheckOrigin:     config.CheckOrigin,
		},
		config:      config,
		clock:       clock,
		mutator:     mutator,
		broadcastCh: make(chan BroadcastMessage, 256),
	}
}

// Start processes broadcast messages until ctx is cancelled
func (cm *ConnectionManager) Start(ctx context.Context) {
	log.Info().Msg("connection manager started")

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("connection manager shutting down")
			cm.closeAll()
			return
		case message := <-cm.broadcastCh:
			cm.handleBroadcast(message)
		}
	}
}

// UpgradeConnection upgrades an HTTP connection and registers it. initial,
// when set, builds the first message the client receives. It runs after
// registration and under the registry lock, so every later broadcast is
// queued behind it.
func (cm *ConnectionManager) UpgradeConnection(w http.ResponseWriter, r *http.Request, memberID int, initial func() (*BoardEvent, error)) error {
	conn, err := cm.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return fmt.Errorf("failed to upgrade connection: %w", err)
	}

	now := cm.clock.Now()
	connection := &Connection{
		ID:          uuid.New().String(),
		MemberID:    memberID,
		Conn:        conn,
		Send:        make(chan []byte, cm.config.SendBufferSize),
		Manager:     cm,
		ConnectedAt: now,
		lastPing:    now,
	}

	cm.registerConnection(connection, initial)

	go connection.writePump()
	go connection.readPump()

	log.Info().
		Str("connection_id", connection.ID).
		Int("member_id", memberID).
		Msg("websocket connection established")
	return nil
}

func (cm *ConnectionManager) registerConnection(conn *Connection, initial func() (*BoardEvent, error)) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	cm.connections[conn] = true

	if initial != nil {
		event, err := initial()
		if err == nil {
			var data []byte
			if data, err = json.Marshal(event); err == nil {
				select {
				case conn.Send <- data:
				default:
					err = errors.New("send buffer has no room")
				}
			}
		}
		if err != nil {
			log.Error().Err(err).Str("connection_id", conn.ID).Msg("failed to build initial snapshot")
		}
	}

	log.Debug().
		Str("connection_id", conn.ID).
		Int("total_connections", len(cm.connections)).
		Msg("connection registered")
}

func (cm *ConnectionManager) unregisterConnection(conn *Connection) {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	if _, exists := cm.connections[conn]; !exists {
		return
	}
	delete(cm.connections, conn)
	close(conn.Send)

	log.Info().
		Str("connection_id", conn.ID).
		Int("member_id", conn.MemberID).
		Msg("connection unregistered")
}

func (cm *ConnectionManager) closeAll() {
	cm.mu.RLock()
	conns := make([]*Connection, 0, len(cm.connections))
	for conn := range cm.connections {
		conns = append(conns, conn)
	}
	cm.mu.RUnlock()

	for _, conn := range conns {
		cm.unregisterConnection(conn)
	}
}

// Broadcast queues an event for every connection. It drops the event when
// the queue is full.
func (cm *ConnectionManager) Broadcast(event *BoardEvent) {
	select {
	case cm.broadcastCh <- BroadcastMessage{Event: event}:
	default:
		log.Warn().Str("event_type", string(event.Type)).Msg("broadcast channel full, dropping message")
	}
}

func (cm *ConnectionManager) handleBroadcast(message BroadcastMessage) {
	eventData, err := json.Marshal(message.Event)
	if err != nil {
		log.Error().Err(err).Msg("failed to marshal event for broadcast")
		return
	}

	var slow []*Connection
	cm.mu.RLock()
	for conn := range cm.connections {
		select {
		case conn.Send <- eventData:
		default:
			slow = append(slow, conn)
		}
	}
	total := len(cm.connections)
	cm.mu.RUnlock()

	for _, conn := range slow {
		log.Warn().
			Str("connection_id", conn.ID).
			Int("member_id", conn.MemberID).
			Msg("connection send buffer full, closing connection")
		cm.unregisterConnection(conn)
		conn.Conn.Close()
	}

	log.Debug().
		Str("event_type", string(message.Event.Type)).
		Int("connections", total-len(slow)).
		Msg("event broadcasted")
}

// sendTo delivers an event to a single connection if it is still registered.
func (cm *ConnectionManager) sendTo(conn *Connection, event *BoardEvent) {
	data, err := json.Marshal(event)
	if err != nil {
		log.Error().Err(err).Msg("failed to marshal event")
		return
	}

	cm.mu.RLock()
	defer cm.mu.RUnlock()
	if !cm.connections[conn] {
		return
	}
	select {
	case conn.Send <- data:
	default:
		log.Warn().Str("connection_id", conn.ID).Msg("connection send buffer full, dropping message")
	}
}

// GetConnectionStats returns statistics about active connections
func (cm *ConnectionManager) GetConnectionStats() ConnectionStats {
	cm.mu.RLock()
	defer cm.mu.RUnlock()

	stats := ConnectionStats{
		TotalConnections:  len(cm.connections),
		MemberConnections: make(map[int]int),
		Connections:       make([]ConnectionInfo, 0, len(cm.connections)),
	}
	for conn := range cm.connections {
		stats.MemberConnections[conn.MemberID]++
		stats.Connections = append(stats.Connections, ConnectionInfo{
			ID:          conn.ID,
			MemberID:    conn.MemberID,
			ConnectedAt: conn.ConnectedAt,
			LastPing:    conn.LastPing(),
		})
	}
	sort.Slice(stats.Connections, func(i, j int) bool {
		return stats.Connections[i].ConnectedAt.Before(stats.Connections[j].ConnectedAt)
	})
	return stats
}

// ConnectionStats summarises the connected clients.
type ConnectionStats struct {
	TotalConnections  int              `json:"total_connections"`
	MemberConnections map[int]int      `json:"member_connections"`
	Connections       []ConnectionInfo `json:"connections"`
}

// ConnectionInfo describes one connected client.
type ConnectionInfo struct {
	ID          string    `json:"id"`
	MemberID    int       `json:"member_id"`
	ConnectedAt time.Time `json:"connected_at"`
	LastPing    time.Time `json:"last_ping"`
}

// LastPing returns when the connection last sent a ping or saw a pong.
func (c *Connection) LastPing() time.Time {
	c.pingMu.Lock()
	defer c.pingMu.Unlock()
	return c.lastPing
}

func (c *Connection) touch() {
	c.pingMu.Lock()
	c.lastPing = c.Manager.clock.Now()
	c.pingMu.Unlock()
}

// writePump handles sending messages to the websocket connection
func (c *Connection) writePump() {
	ticker := c.Manager.clock.NewTicker(c.Manager.config.PingInterval)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
		c.Manager.unregisterConnection(c)
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(c.Manager.config.WriteTimeout))
			if !ok {
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				log.Error().
					Err(err).
					Str("connection_id", c.ID).
					Msg("failed to write message to websocket")
				return
			}

		case <-ticker.Chan():
			c.Conn.SetWriteDeadline(time.Now().Add(c.Manager.config.WriteTimeout))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				log.Error().
					Err(err).
					Str("connection_id", c.ID).
					Msg("failed to send ping")
				return
			}
			c.touch()
		}
	}
}

// readPump reads client commands until the connection fails
func (c *Connection) readPump() {
	defer func() {
		c.Manager.unregisterConnection(c)
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(c.Manager.config.MaxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(c.Manager.config.ReadTimeout))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(c.Manager.config.ReadTimeout))
		c.touch()
		return nil
	})

	for {
		_, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Error().
					Err(err).
					Str("connection_id", c.ID).
					Msg("unexpected websocket close error")
			}
			break
		}

		c.handleClientMessage(message)
		c.Conn.SetReadDeadline(time.Now().Add(c.Manager.config.ReadTimeout))
	}
}

// handleClientMessage applies a command on behalf of the connection's member
// and answers with a CommandResult.
func (c *Connection) handleClientMessage(message []byte) {
	var cmd Command
	result := CommandResultPayload{}
	if err := json.Unmarshal(message, &cmd); err != nil {
		result.Error = fmt.Sprintf("malformed command: %v", err)
	} else {
		result.RequestID = cmd.RequestID
		c.actAs(&cmd)
		changed, err := Apply(c.Manager.mutator, cmd)
		result.Changed = changed
		if err != nil {
			result.Error = err.Error()
		}
	}

	log.Debug().
		Str("connection_id", c.ID).
		Int("member_id", c.MemberID).
		Str("command", string(cmd.Type)).
		Bool("changed", result.Changed).
		Str("error", result.Error).
		Msg("received client command")

	event, err := newEvent(EventTypeCommandResult, c.Manager.clock.Now(), result)
	if err != nil {
		log.Error().Err(err).Msg("failed to build command result")
		return
	}
	c.Manager.sendTo(c, event)
}

// actAs binds a command to the connection's member. Members edit only their
// own list and vote as themselves.
func (c *Connection) actAs(cmd *Command) {
	id := c.MemberID
	switch cmd.Type {
	case CommandToggleVote:
		cmd.ActorID = &id
	default:
		cmd.MemberID = &id
	}
}

package gateway

import (
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/huroof/go/internal/models"
)

// ConnectionConfig holds configuration for WebSocket connections
type ConnectionConfig struct {
	WriteTimeout    time.Duration
	MaxMessageSize  int64
	ReadBufferSize  int
	WriteBufferSize int
	SendBufferSize  int
	CheckOrigin     func(r *http.Request) bool
}

// DefaultConnectionConfig returns default WebSocket configuration
func DefaultConnectionConfig() ConnectionConfig {
	return ConnectionConfig{
		WriteTimeout:    10 * time.Second,
		MaxMessageSize:  64 * 1024, // shuffle carries the whole board
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		SendBufferSize:  256,
		CheckOrigin: func(r *http.Request) bool {
			return true
		},
	}
}

// Identity is who a registered connection speaks for.
type Identity struct {
	SessionID string
	Role      models.Role
	Name      string
}

// Connection represents a WebSocket connection to a client
type Connection struct {
	ID          string
	ConnectedAt time.Time

	conn *websocket.Conn
	send chan []byte
	ping chan struct{}
	done chan struct{}

	closeOnce sync.Once
	alive     atomic.Bool

	mu       sync.RWMutex
	identity *Identity
	verified string
	isAdmin  bool
}

func newConnection(conn *websocket.Conn, sendBuffer int) *Connection {
	if sendBuffer <= 0 {
		sendBuffer = 256
	}
	c := &Connection{
		ID:          uuid.NewString(),
		ConnectedAt: time.Now(),
		conn:        conn,
		send:        make(chan []byte, sendBuffer),
		ping:        make(chan struct{}, 1),
		done:        make(chan struct{}),
	}
	c.alive.Store(true)
	return c
}

// Identity returns the registered identity, if the connection has joined.
func (c *Connection) Identity() (Identity, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.identity == nil {
		return Identity{}, false
	}
	return *c.identity, true
}

func (c *Connection) setIdentity(id *Identity) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.identity = id
}

// Verified returns the session code this socket proved, if any.
func (c *Connection) Verified() (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.verified, c.isAdmin
}

func (c *Connection) setVerified(code string, isAdmin bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.verified = code
	c.isAdmin = isAdmin
}

// Enqueue queues msg for the write pump without blocking. It returns false
// when the connection is closed or its buffer is full.
func (c *Connection) Enqueue(msg []byte) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.send <- msg:
		return true
	default:
		return false
	}
}

// Close stops the connection. The write pump sends a close frame and tears
// down the socket. Safe to call more than once.
func (c *Connection) Close() {
	c.closeOnce.Do(func() {
		close(c.done)
	})
}

// Closed reports whether Close has been called.
func (c *Connection) Closed() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

func (c *Connection) markAlive() {
	c.alive.Store(true)
}

// requestPing asks the write pump to send a ping frame.
func (c *Connection) requestPing() {
	select {
	case c.ping <- struct{}{}:
	default:
	}
}

// writePump handles sending messages to the WebSocket connection
func (c *Connection) writePump(config ConnectionConfig) {
	defer c.conn.Close()

	for {
		select {
		case message := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(config.WriteTimeout))
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				log.Debug().
					Err(err).
					Str("connection_id", c.ID).
					Msg("failed to write message to WebSocket")
				c.Close()
				return
			}

		case <-c.ping:
			c.conn.SetWriteDeadline(time.Now().Add(config.WriteTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				log.Debug().
					Err(err).
					Str("connection_id", c.ID).
					Msg("failed to send ping")
				c.Close()
				return
			}

		case <-c.done:
			c.conn.SetWriteDeadline(time.Now().Add(config.WriteTimeout))
			c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}

// readPump reads client messages until the socket fails, handing each to handle.
func (c *Connection) readPump(config ConnectionConfig, handle func(message []byte)) {
	defer c.conn.Close()

	c.conn.SetReadLimit(config.MaxMessageSize)
	c.conn.SetPongHandler(func(string) error {
		c.markAlive()
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				log.Warn().
					Err(err).
					Str("connection_id", c.ID).
					Msg("unexpected WebSocket close error")
			}
			return
		}
		c.markAlive()
		handle(message)
	}
}

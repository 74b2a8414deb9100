package server

import (
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// ConnConfig configures a single client connection.
type ConnConfig struct {
	SendBuffer   int           // Outbound channel buffer size
	WriteTimeout time.Duration // Write deadline for sends
	PingInterval time.Duration // Interval between ping control frames
	ReadTimeout  time.Duration // Max time without traffic or pong before the read fails
}

// DefaultConnConfig returns sensible defaults.
func DefaultConnConfig() ConnConfig {
	return ConnConfig{
		SendBuffer:   256,
		WriteTimeout: 5 * time.Second,
		PingInterval: 15 * time.Second,
		ReadTimeout:  60 * time.Second,
	}
}

// Conn wraps one client's WebSocket. All writes go through a buffered send
// channel drained by a single write pump, so deliveries from concurrent
// broadcasts never interleave frames.
type Conn struct {
	id     uuid.UUID
	sock   *websocket.Conn
	cfg    ConnConfig
	logger *slog.Logger

	send chan []byte
	done chan struct{}

	mu     sync.Mutex
	closed bool
}

func newConn(sock *websocket.Conn, cfg ConnConfig, logger *slog.Logger) *Conn {
	if logger == nil {
		logger = slog.Default()
	}
	id := uuid.New()
	return &Conn{
		id:     id,
		sock:   sock,
		cfg:    cfg,
		logger: logger.With("conn_id", id),
		send:   make(chan []byte, cfg.SendBuffer),
		done:   make(chan struct{}),
	}
}

// ID returns the connection's unique identifier.
func (c *Conn) ID() uuid.UUID {
	return c.id
}

// Deliver queues a frame for the write pump. It never blocks: a full
// buffer or a closed connection drops the frame and returns false.
func (c *Conn) Deliver(data []byte) bool {
	select {
	case <-c.done:
		return false
	default:
	}

	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

// writePump drains the send channel onto the socket and emits periodic
// pings. It owns all writes to the socket.
func (c *Conn) writePump() {
	ticker := time.NewTicker(c.cfg.PingInterval)
	defer func() {
		ticker.Stop()
		c.Close()
	}()

	for {
		select {
		case <-c.done:
			return

		case data := <-c.send:
			c.sock.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
			if err := c.sock.WriteMessage(websocket.TextMessage, data); err != nil {
				c.logger.Debug("write failed", "error", err)
				return
			}

		case <-ticker.C:
			deadline := time.Now().Add(c.cfg.WriteTimeout)
			if err := c.sock.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				c.logger.Debug("ping failed", "error", err)
				return
			}
		}
	}
}

// readLoop reads frames until the connection fails or closes, handing each
// one to handle. Pongs extend the read deadline.
func (c *Conn) readLoop(handle func(data []byte)) {
	c.sock.SetReadDeadline(time.Now().Add(c.cfg.ReadTimeout))
	c.sock.SetPongHandler(func(string) error {
		c.sock.SetReadDeadline(time.Now().Add(c.cfg.ReadTimeout))
		return nil
	})

	for {
		_, data, err := c.sock.ReadMessage()
		if err != nil {
			select {
			case <-c.done:
			default:
				c.logger.Debug("read failed", "error", err)
			}
			return
		}

		// Any inbound traffic proves liveness.
		c.sock.SetReadDeadline(time.Now().Add(c.cfg.ReadTimeout))

		handle(data)
	}
}

// Close shuts the connection down. Idempotent.
func (c *Conn) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	close(c.done)

	c.sock.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second),
	)
	return c.sock.Close()
}

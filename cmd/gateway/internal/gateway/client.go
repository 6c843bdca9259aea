package gateway

import (
	"errors"
	"io"
	"net"
	"sync"
	"time"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/shubham-shewale/watchlist-stream/cmd/gateway/internal/hub"
)

const (
	maxMessageSize = 4 * 1024
	sendBufferSize = 256
)

var (
	ErrClientClosed   = errors.New("client connection closed")
	ErrSendBufferFull = errors.New("client send buffer full")
)

// Registry is the part of the hub a connection talks to.
type Registry interface {
	Unregister(client hub.ClientInterface) bool
}

// ClientAdapter owns one server-side websocket. Writes go through a buffered channel
// drained by writePump; readPump only watches for close, pong and transport errors,
// since subscribers have nothing to say beyond keeping the connection alive.
type ClientAdapter struct {
	id       string
	conn     net.Conn
	registry Registry
	send     chan []byte
	logger   *zap.Logger

	closeOnce sync.Once
	mu        sync.RWMutex
	closed    bool
	done      chan struct{}

	writeWait  time.Duration
	pongWait   time.Duration
	pingPeriod time.Duration
}

func NewClient(conn net.Conn, registry Registry, logger *zap.Logger) *ClientAdapter {
	return &ClientAdapter{
		id:         uuid.NewString(),
		conn:       conn,
		registry:   registry,
		send:       make(chan []byte, sendBufferSize),
		logger:     logger,
		done:       make(chan struct{}),
		writeWait:  5 * time.Second,
		pongWait:   60 * time.Second,
		pingPeriod: 50 * time.Second,
	}
}

// Start launches the pumps. Register the client with the hub after Start so the
// welcome frame has a writer.
func (c *ClientAdapter) Start() {
	go c.writePump()
	go c.readPump()
}

func (c *ClientAdapter) ID() string { return c.id }

// Close stops the writer, which sends a close frame and closes the socket. Safe to call
// more than once.
func (c *ClientAdapter) Close() {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.closed = true
		c.mu.Unlock()
		close(c.done)
	})
}

// SendBytes queues a frame without blocking. A full buffer means the subscriber cannot
// keep up and is reported as a failed send.
func (c *ClientAdapter) SendBytes(b []byte) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return ErrClientClosed
	}

	select {
	case c.send <- b:
		return nil
	default:
		return ErrSendBufferFull
	}
}

func (c *ClientAdapter) readPump() {
	defer func() {
		c.registry.Unregister(c)
		c.Close()
	}()

	c.conn.SetReadDeadline(time.Now().Add(c.pongWait))

	for {
		header, err := ws.ReadHeader(c.conn)
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, net.ErrClosed) {
				c.logger.Debug("Read error", zap.String("client", c.id), zap.Error(err))
			}
			return
		}

		if header.Length > int64(maxMessageSize) {
			c.logger.Warn("Msg too big", zap.String("client", c.id), zap.Int64("size", header.Length))
			return
		}

		payload := make([]byte, header.Length)
		if _, err := io.ReadFull(c.conn, payload); err != nil {
			return
		}
		if header.Masked {
			ws.Cipher(payload, header.Mask, 0)
		}

		if header.OpCode == ws.OpClose {
			return
		}
		// Any client frame, pong included, counts as liveness.
		c.conn.SetReadDeadline(time.Now().Add(c.pongWait))
	}
}

func (c *ClientAdapter) writePump() {
	ticker := time.NewTicker(c.pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(c.writeWait))
			if err := wsutil.WriteServerText(c.conn, msg); err != nil {
				c.logger.Debug("Write failed", zap.String("client", c.id), zap.Error(err))
				c.registry.Unregister(c)
				c.Close()
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(c.writeWait))
			if err := wsutil.WriteServerMessage(c.conn, ws.OpPing, nil); err != nil {
				c.registry.Unregister(c)
				c.Close()
				return
			}

		case <-c.done:
			c.conn.SetWriteDeadline(time.Now().Add(c.writeWait))
			c.conn.Write(ws.CompiledClose)
			return
		}
	}
}

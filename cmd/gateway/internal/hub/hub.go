package hub

import (
	"encoding/json"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/shubham-shewale/watchlist-stream/cmd/gateway/internal/cache"
	"github.com/shubham-shewale/watchlist-stream/pkg/protocol"
)

var ErrHubClosed = errors.New("hub is closed")

// ClientInterface is a registered push connection.
type ClientInterface interface {
	ID() string
	SendBytes(b []byte) error
	Close()
}

// SnapshotSource supplies the quotes a late joiner receives right after welcome.
type SnapshotSource interface {
	SnapshotAll() []cache.Entry
}

// Result counts the outcome of one broadcast.
type Result struct {
	Sent   int
	Failed int
}

// Hub is the connection registry and the broadcaster. Every open connection receives
// every message; one failing connection never affects delivery to the others.
type Hub struct {
	clients   map[string]ClientInterface
	snapshots SnapshotSource
	logger    *zap.Logger
	now       func() time.Time
	mu        sync.RWMutex
	// deliverMu orders a join sequence against broadcasts so a joiner never sees a
	// ticker before its welcome or a snapshot older than a ticker it already has.
	deliverMu sync.Mutex
	closed    bool
}

func NewHub(snapshots SnapshotSource, logger *zap.Logger) *Hub {
	return &Hub{
		clients:   make(map[string]ClientInterface),
		snapshots: snapshots,
		logger:    logger,
		now:       time.Now,
	}
}

// Register adds client, then sends it a welcome and the current snapshot so a late
// joiner does not wait for the next ingestion cycle.
func (h *Hub) Register(client ClientInterface) error {
	h.deliverMu.Lock()
	defer h.deliverMu.Unlock()

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		client.Close()
		return ErrHubClosed
	}
	h.clients[client.ID()] = client
	count := len(h.clients)
	h.mu.Unlock()

	h.logger.Debug("Client connected", zap.String("client", client.ID()), zap.Int("clients", count))

	if err := h.send(client, protocol.Welcome(h.now().UnixMilli())); err != nil {
		h.logger.Warn("Welcome failed, dropping client", zap.String("client", client.ID()), zap.Error(err))
		h.Unregister(client)
		return err
	}

	if h.snapshots == nil {
		return nil
	}
	for _, entry := range h.snapshots.SnapshotAll() {
		if err := h.send(client, protocol.Ticker(entry.Quote)); err != nil {
			h.logger.Warn("Snapshot delivery failed, dropping client", zap.String("client", client.ID()), zap.Error(err))
			h.Unregister(client)
			return err
		}
	}
	return nil
}

// Unregister removes client and closes it. Only the first call for a client has any
// effect; it reports whether this call did the removal.
func (h *Hub) Unregister(client ClientInterface) bool {
	h.mu.Lock()
	current, ok := h.clients[client.ID()]
	if !ok || current != client {
		h.mu.Unlock()
		return false
	}
	delete(h.clients, client.ID())
	count := len(h.clients)
	h.mu.Unlock()

	client.Close()
	h.logger.Debug("Client disconnected", zap.String("client", client.ID()), zap.Int("clients", count))
	return true
}

func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) IsEmpty() bool { return h.Count() == 0 }

// HasSubscribers reports whether any connection is open.
func (h *Hub) HasSubscribers() bool { return !h.IsEmpty() }

// Broadcast serializes msg once and writes it to every registered client. A failed write
// is retried once; a client that fails twice is counted and removed.
func (h *Hub) Broadcast(msg protocol.Message) Result {
	payload, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error("Broadcast marshal failed", zap.String("type", msg.Type), zap.Error(err))
		return Result{}
	}
	return h.BroadcastBytes(payload)
}

// BroadcastBytes is Broadcast for an already serialized frame.
func (h *Hub) BroadcastBytes(payload []byte) Result {
	h.deliverMu.Lock()
	h.mu.RLock()
	targets := make([]ClientInterface, 0, len(h.clients))
	for _, c := range h.clients {
		targets = append(targets, c)
	}
	h.mu.RUnlock()

	var res Result
	var broken []ClientInterface
	for _, client := range targets {
		if err := client.SendBytes(payload); err != nil {
			if err = client.SendBytes(payload); err != nil {
				res.Failed++
				broken = append(broken, client)
				h.logger.Warn("Send failed", zap.String("client", client.ID()), zap.Error(err))
				continue
			}
		}
		res.Sent++
	}
	h.deliverMu.Unlock()

	for _, client := range broken {
		h.Unregister(client)
	}

	if res.Failed > 0 {
		h.logger.Debug("Broadcast completed with errors", zap.Int("sent", res.Sent), zap.Int("failed", res.Failed))
	}
	return res
}

// CloseAll closes every connection and refuses later registrations.
func (h *Hub) CloseAll() {
	h.mu.Lock()
	clients := h.clients
	h.clients = make(map[string]ClientInterface)
	h.closed = true
	h.mu.Unlock()

	for _, c := range clients {
		c.Close()
	}
	h.logger.Info("Closed all connections", zap.Int("clients", len(clients)))
}

func (h *Hub) send(client ClientInterface, msg protocol.Message) error {
	b, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return client.SendBytes(b)
}

// Package ws implements the websocket transport: the connection hub, the
// per-connection client pumps and the event router that binds inbound
// protocol events to handlers.
package ws

import (
	"log/slog"
	"sync"

	"github.com/openrealms/presenced/internal/model"
)

// Conn is one live client connection the hub can address
type Conn interface {
	ID() model.ConnectionID
	Send(event model.EventName, payload any)
	Close()
}

// Hub is the registry of live connections, keyed by connection id.
// It is the dispatch target for unicast and multicast sends and implements
// the join coordinator's Notifier.
type Hub struct {
	logger *slog.Logger

	mu    sync.RWMutex
	conns map[model.ConnectionID]Conn
}

// NewHub creates an empty hub
func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		logger: logger,
		conns:  make(map[model.ConnectionID]Conn),
	}
}

// Register adds a connection to the hub
func (h *Hub) Register(conn Conn) {
	h.mu.Lock()
	h.conns[conn.ID()] = conn
	total := len(h.conns)
	h.mu.Unlock()

	h.logger.Info("connection registered",
		slog.String("connection_id", string(conn.ID())),
		slog.Int("total_connections", total))
}

// Unregister removes a connection from the hub
func (h *Hub) Unregister(connID model.ConnectionID) {
	h.mu.Lock()
	_, ok := h.conns[connID]
	delete(h.conns, connID)
	total := len(h.conns)
	h.mu.Unlock()

	if ok {
		h.logger.Info("connection unregistered",
			slog.String("connection_id", string(connID)),
			slog.Int("total_connections", total))
	}
}

// Unicast sends an event to a single connection. Unknown connection ids are
// ignored; they legitimately occur when a peer disconnects mid-dispatch.
func (h *Hub) Unicast(connID model.ConnectionID, event model.EventName, payload any) {
	h.mu.RLock()
	conn, ok := h.conns[connID]
	h.mu.RUnlock()
	if !ok {
		return
	}
	conn.Send(event, payload)
}

// Multicast sends an event to an explicit list of connections
func (h *Hub) Multicast(connIDs []model.ConnectionID, event model.EventName, payload any) {
	for _, connID := range connIDs {
		h.Unicast(connID, event, payload)
	}
}

// Disconnect force-closes a connection, if it is still registered
func (h *Hub) Disconnect(connID model.ConnectionID) {
	h.mu.RLock()
	conn, ok := h.conns[connID]
	h.mu.RUnlock()
	if !ok {
		return
	}
	conn.Close()
}

// Len returns the number of registered connections
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns)
}

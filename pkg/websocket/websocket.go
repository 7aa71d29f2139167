package websocket

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"Lifeline/pkg/metrics"
)

// Event is the wire format for every live message, both directions.
type Event struct {
	Event     string      `json:"event"`
	Data      interface{} `json:"data,omitempty"`
	Timestamp int64       `json:"timestamp,omitempty"`
}

// LocationHandler receives client volunteerLocationUpdate payloads.
type LocationHandler func(userID string, payload []byte)

// Hub owns every live connection and the presence directory. One
// connection per identity: a fresh authenticate supersedes and closes the
// previous socket.
type Hub struct {
	config     *Config
	dir        *Directory
	register   chan *Connection
	unregister chan *Connection

	// connection handle -> connection
	connections map[string]*Connection
	mu          sync.RWMutex

	connectionCount int64
	onLocation      LocationHandler

	ctx    context.Context
	cancel context.CancelFunc
}

func NewHub(config *Config) *Hub {
	if config == nil {
		config = DefaultConfig()
	}
	ctx, cancel := context.WithCancel(context.Background())
	hub := &Hub{
		config:      config,
		dir:         NewDirectory(),
		register:    make(chan *Connection, 256),
		unregister:  make(chan *Connection, 256),
		connections: make(map[string]*Connection),
		ctx:         ctx,
		cancel:      cancel,
	}
	go hub.run()
	return hub
}

// Directory exposes the presence index to the fan-out engine.
func (h *Hub) Directory() *Directory { return h.dir }

// SetLocationHandler wires the alert controller's location relay. Must be
// called before connections are accepted.
func (h *Hub) SetLocationHandler(fn LocationHandler) { h.onLocation = fn }

func (h *Hub) run() {
	ticker := time.NewTicker(h.config.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-h.ctx.Done():
			return
		case conn := <-h.register:
			h.registerConnection(conn)
		case conn := <-h.unregister:
			h.unregisterConnection(conn)
		case <-ticker.C:
			h.checkHeartbeats()
		}
	}
}

func (h *Hub) registerConnection(conn *Connection) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if atomic.LoadInt64(&h.connectionCount) >= h.config.MaxConnections {
		conn.closeSocket()
		logrus.Warnf("connection limit reached: %d", h.config.MaxConnections)
		return
	}

	h.connections[conn.ID] = conn
	atomic.AddInt64(&h.connectionCount, 1)
	metrics.LiveConnections.Inc()

	if prev := h.dir.Register(conn.UserID, conn.ID); prev != "" {
		if old, ok := h.connections[prev]; ok {
			logrus.Infof("superseding live connection for user %s", conn.UserID)
			old.IsAlive = false
			old.closeSocket()
		}
	}

	logrus.Infof("live connection registered: %s, user: %s, connections: %d",
		conn.ID, conn.UserID, atomic.LoadInt64(&h.connectionCount))
}

func (h *Hub) unregisterConnection(conn *Connection) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, exists := h.connections[conn.ID]; !exists {
		return
	}
	delete(h.connections, conn.ID)
	atomic.AddInt64(&h.connectionCount, -1)
	metrics.LiveConnections.Dec()

	// Clears presence only if this handle still owns the entry; a
	// superseded connection unregistering late must not evict its successor.
	h.dir.RemoveHandle(conn.ID)

	close(conn.Send)
	logrus.Infof("live connection unregistered: %s, connections: %d",
		conn.ID, atomic.LoadInt64(&h.connectionCount))
}

// SendToUser pushes one event to the identity's live connection, if any.
// Best-effort: reports whether the event was queued, and nothing retries.
func (h *Hub) SendToUser(userID, event string, data interface{}) bool {
	handle, ok := h.dir.Lookup(userID)
	if !ok {
		return false
	}

	h.mu.RLock()
	conn, ok := h.connections[handle]
	h.mu.RUnlock()
	if !ok || !conn.IsAlive {
		return false
	}

	payload, err := json.Marshal(&Event{Event: event, Data: data, Timestamp: time.Now().Unix()})
	if err != nil {
		logrus.Errorf("event marshal failed: %v", err)
		return false
	}
	return h.trySend(conn, payload)
}

// Broadcast pushes one event to every live connection.
func (h *Hub) Broadcast(event string, data interface{}) {
	payload, err := json.Marshal(&Event{Event: event, Data: data, Timestamp: time.Now().Unix()})
	if err != nil {
		logrus.Errorf("event marshal failed: %v", err)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, conn := range h.connections {
		if conn.IsAlive {
			h.trySend(conn, payload)
		}
	}
}

func (h *Hub) trySend(conn *Connection, data []byte) bool {
	if h.config.DropOnFull {
		select {
		case conn.Send <- data:
			return true
		default:
			logrus.Warnf("send buffer full for connection %s, event dropped", conn.ID)
			return false
		}
	}
	select {
	case conn.Send <- data:
		return true
	case <-time.After(50 * time.Millisecond):
		logrus.Warnf("send timed out for connection %s, event dropped", conn.ID)
		return false
	}
}

func (h *Hub) checkHeartbeats() {
	h.mu.RLock()
	defer h.mu.RUnlock()

	now := time.Now()
	for _, conn := range h.connections {
		conn.mu.RLock()
		last := conn.LastPing
		conn.mu.RUnlock()
		if now.Sub(last) > h.config.ConnectionTimeout {
			logrus.Warnf("connection %s heartbeat timed out", conn.ID)
			conn.IsAlive = false
			conn.closeSocket()
		}
	}
}

func (h *Hub) GetConnectionCount() int64 {
	return atomic.LoadInt64(&h.connectionCount)
}

func (h *Hub) Close() {
	h.cancel()

	h.mu.Lock()
	for _, conn := range h.connections {
		conn.closeSocket()
	}
	h.mu.Unlock()

	logrus.Info("websocket hub closed")
}

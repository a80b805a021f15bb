// Package ws keeps the registry of live websocket sessions and pushes
// outward events to them. One user may hold several connections
// (multi-device); sends are best effort per connection.
package ws

import (
	"context"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"notification-engine/internal/domain"
	"notification-engine/pkg/notifier"
)

const (
	// writeWait bounds one socket write inside the writer goroutine.
	writeWait = 10 * time.Second
	// sendBuffer is the per-connection queue depth; a peer that falls
	// this far behind is evicted as a slow consumer.
	sendBuffer = 16
)

// Connection wraps websocket.Conn with metadata. All data writes go
// through the send queue and its writer goroutine, never through the
// caller's goroutine.
type Connection struct {
	Conn   *websocket.Conn
	UserID string

	lastSeen atomic.Int64

	mu     sync.Mutex
	send   chan any
	closed bool
}

// Touch records peer liveness. Called from the read loop on pong.
func (c *Connection) Touch() {
	c.lastSeen.Store(time.Now().UnixNano())
}

// LastSeen reports the most recent liveness signal.
func (c *Connection) LastSeen() time.Time {
	return time.Unix(0, c.lastSeen.Load())
}

// enqueue hands a payload to the writer without blocking. False means
// the connection is closed or its queue is full.
func (c *Connection) enqueue(v any) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.send <- v:
		return true
	default:
		return false
	}
}

func (c *Connection) close() {
	c.mu.Lock()
	if !c.closed {
		c.closed = true
		close(c.send)
	}
	c.mu.Unlock()
	_ = c.Conn.Close()
}

// writePump drains the queue onto the socket. A write that cannot
// complete within writeWait errors out and the connection is dropped.
func (c *Connection) writePump(m *Manager) {
	for msg := range c.send {
		_ = c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := c.Conn.WriteJSON(msg); err != nil {
			log.Printf("[ws] write failed for user=%s: %v", c.UserID, err)
			m.Remove(c)
			return
		}
	}
}

// Manager is the connection registry for the realtime channel.
type Manager struct {
	mu          sync.RWMutex
	connections map[string]map[*Connection]struct{} // userID -> set of connections
}

func NewManager() *Manager {
	return &Manager{
		connections: make(map[string]map[*Connection]struct{}),
	}
}

// Add registers a connection for a user and starts its writer.
func (m *Manager) Add(userID string, conn *websocket.Conn) *Connection {
	c := &Connection{Conn: conn, UserID: userID, send: make(chan any, sendBuffer)}
	c.Touch()

	m.mu.Lock()
	if _, ok := m.connections[userID]; !ok {
		m.connections[userID] = make(map[*Connection]struct{})
	}
	m.connections[userID][c] = struct{}{}
	total := len(m.connections[userID])
	m.mu.Unlock()

	go c.writePump(m)

	log.Printf("[ws] connected: user=%s (devices=%d)", userID, total)
	return c
}

// Remove disconnects and removes a connection. Safe to call more than
// once for the same connection.
func (m *Manager) Remove(c *Connection) {
	m.mu.Lock()
	if conns, ok := m.connections[c.UserID]; ok {
		delete(conns, c)
		if len(conns) == 0 {
			delete(m.connections, c.UserID)
		}
	}
	m.mu.Unlock()

	c.close()
	log.Printf("[ws] disconnected: user=%s", c.UserID)
}

// ActiveCount reports how many connections a user currently holds.
func (m *Manager) ActiveCount(userID string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.connections[userID])
}

// Send queues an event for every connection of a user and reports how
// many connections accepted it. Queueing never blocks; a connection
// whose queue is full is evicted instead of stalling the caller.
func (m *Manager) Send(userID string, event *domain.Event) int {
	m.mu.RLock()
	conns := make([]*Connection, 0, len(m.connections[userID]))
	for c := range m.connections[userID] {
		conns = append(conns, c)
	}
	m.mu.RUnlock()

	sent := 0
	for _, c := range conns {
		if !c.enqueue(event) {
			log.Printf("[ws] dropping stalled connection for user=%s", userID)
			m.Remove(c)
			continue
		}
		sent++
	}
	return sent
}

// Broadcast queues a message for all users. Used for system announcements.
func (m *Manager) Broadcast(message any) {
	m.mu.RLock()
	var conns []*Connection
	for _, set := range m.connections {
		for c := range set {
			conns = append(conns, c)
		}
	}
	m.mu.RUnlock()

	for _, c := range conns {
		if !c.enqueue(message) {
			m.Remove(c)
		}
	}
}

// Heartbeat pings all connections periodically and evicts stale ones.
func (m *Manager) Heartbeat(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for range ticker.C {
		m.mu.RLock()
		var stale, live []*Connection
		for _, set := range m.connections {
			for c := range set {
				if time.Since(c.LastSeen()) > 2*interval {
					stale = append(stale, c)
				} else {
					live = append(live, c)
				}
			}
		}
		m.mu.RUnlock()

		for _, c := range stale {
			m.Remove(c)
		}
		for _, c := range live {
			// control frames may bypass the queue; gorilla allows
			// WriteControl concurrently with the writer
			_ = c.Conn.WriteControl(websocket.PingMessage, []byte{}, time.Now().Add(time.Second))
		}
	}
}

// RealtimeChannel adapts the Manager to the notifier.Channel contract.
// Delivery is an in-memory lookup plus queue handoffs; the caller's
// path never touches the network.
type RealtimeChannel struct {
	manager *Manager
}

func NewRealtimeChannel(m *Manager) *RealtimeChannel {
	return &RealtimeChannel{manager: m}
}

func (r *RealtimeChannel) Name() domain.Channel { return domain.ChannelRealtime }

// Deliver implements notifier.Channel. An offline user is a normal
// outcome (attempted, not delivered), not an error.
func (r *RealtimeChannel) Deliver(_ context.Context, recipientID string, event *domain.Event) notifier.Outcome {
	sent := r.manager.Send(recipientID, event)
	return notifier.Outcome{Attempted: true, Delivered: sent > 0}
}

package ws

import (
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/cursor-telemetry/backend/internal/session"
)

// SessionSource supplies recently stored sessions for the snapshot sent
// to newly connected clients.
type SessionSource interface {
	RecentSessions(limit int) ([]*session.Session, error)
}

type client struct {
	conn *websocket.Conn
	send chan []byte
}

func newClient(conn *websocket.Conn) *client {
	c := &client{
		conn: conn,
		send: make(chan []byte, 64),
	}
	go c.writePump()
	return c
}

func (c *client) writePump() {
	defer c.conn.Close()
	for msg := range c.send {
		if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			return
		}
	}
}

func (c *client) close() {
	close(c.send)
}

// Broadcaster pushes completed sessions to connected WebSocket clients.
// QueueSession is registered as a pipeline session handler; sessions are
// coalesced for up to the throttle interval and delivered in emission
// order.
type Broadcaster struct {
	mu            sync.RWMutex
	clients       map[*client]bool
	source        SessionSource
	snapshotLimit int
	throttle      time.Duration

	flushMu    sync.Mutex
	pending    []*session.Session
	flushTimer *time.Timer
}

func NewBroadcaster(source SessionSource, throttle time.Duration, snapshotLimit int) *Broadcaster {
	return &Broadcaster{
		clients:       make(map[*client]bool),
		source:        source,
		snapshotLimit: snapshotLimit,
		throttle:      throttle,
	}
}

func (b *Broadcaster) AddClient(conn *websocket.Conn) *client {
	c := newClient(conn)

	b.mu.Lock()
	b.clients[c] = true
	b.mu.Unlock()

	sessions, err := b.source.RecentSessions(b.snapshotLimit)
	if err != nil {
		log.Printf("snapshot load error: %v", err)
		sessions = nil
	}
	snapshot := WSMessage{
		Type:    MsgSnapshot,
		Payload: SnapshotPayload{Sessions: sessions},
	}
	data, _ := json.Marshal(snapshot)

	select {
	case c.send <- data:
	default:
		// Client too slow, drop the snapshot
	}

	return c
}

func (b *Broadcaster) RemoveClient(c *client) {
	b.mu.Lock()
	if _, ok := b.clients[c]; ok {
		delete(b.clients, c)
		c.close()
	}
	b.mu.Unlock()
}

// QueueSession buffers a completed session for broadcast. Safe to call
// from the pipeline's emitter goroutine; never blocks on clients.
func (b *Broadcaster) QueueSession(s session.Session) {
	b.flushMu.Lock()
	defer b.flushMu.Unlock()

	b.pending = append(b.pending, s.Clone())

	if b.flushTimer == nil {
		b.flushTimer = time.AfterFunc(b.throttle, b.flush)
	}
}

func (b *Broadcaster) flush() {
	b.flushMu.Lock()
	pending := b.pending
	b.pending = nil
	b.flushTimer = nil
	b.flushMu.Unlock()

	if len(pending) == 0 {
		return
	}

	b.broadcast(WSMessage{
		Type:    MsgSessions,
		Payload: SessionsPayload{Sessions: pending},
	})
}

func (b *Broadcaster) broadcast(msg WSMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		log.Printf("broadcast marshal error: %v", err)
		return
	}

	b.mu.RLock()
	clients := make([]*client, 0, len(b.clients))
	for c := range b.clients {
		clients = append(clients, c)
	}
	b.mu.RUnlock()

	for _, c := range clients {
		select {
		case c.send <- data:
		default:
			// Client can't keep up, disconnect it
			log.Printf("ws client too slow, disconnecting")
			b.RemoveClient(c)
		}
	}
}

func (b *Broadcaster) ClientCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.clients)
}

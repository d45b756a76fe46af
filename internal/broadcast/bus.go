package broadcast

import (
	"sync"

	"go.uber.org/zap"
)

// Publisher is the emission side of the bus. Roster, the poll service
// and the chat relay publish through it; the bus delivers.
type Publisher interface {
	Broadcast(event string, payload interface{})
	SendTo(socketID, event string, payload interface{})
}

// Conn is the write half of a client connection.
// *websocket.Conn satisfies it.
type Conn interface {
	WriteJSON(v interface{}) error
	Close() error
}

type Frame struct {
	Event string      `json:"event"`
	Data  interface{} `json:"data"`
}

// sendBuffer bounds how far a slow reader may fall behind before the
// bus drops the connection.
const sendBuffer = 64

type client struct {
	id     string
	conn   Conn
	send   chan Frame
	closed bool
}

// Bus fans domain events out to connected clients. Each client gets a
// buffered queue drained by a single writer goroutine, so a connection
// observes events in emission order. Delivery is best-effort: a client
// whose queue is full is dropped, not retried.
type Bus struct {
	mu      sync.Mutex
	clients map[string]*client
	l       *zap.Logger
}

func New(l *zap.Logger) *Bus {
	return &Bus{
		clients: make(map[string]*client),
		l:       l,
	}
}

// Register adds a connection to the bus and starts its writer.
// A second Register with the same id replaces the first.
func (b *Bus) Register(socketID string, conn Conn) {
	b.mu.Lock()
	if old, ok := b.clients[socketID]; ok {
		b.drop(old)
	}
	c := &client{
		id:   socketID,
		conn: conn,
		send: make(chan Frame, sendBuffer),
	}
	b.clients[socketID] = c
	b.mu.Unlock()

	go b.writeLoop(c)
	b.l.Debug("client registered", zap.String("socket_id", socketID))
}

// Unregister removes the connection and stops its writer. Frames
// already queued are still flushed. No-op for unknown ids.
func (b *Bus) Unregister(socketID string) {
	b.mu.Lock()
	c, ok := b.clients[socketID]
	if ok {
		b.drop(c)
	}
	b.mu.Unlock()
	if ok {
		b.l.Debug("client unregistered", zap.String("socket_id", socketID))
	}
}

// Broadcast queues the event for every connected client.
func (b *Bus) Broadcast(event string, payload interface{}) {
	frame := Frame{Event: event, Data: payload}
	b.mu.Lock()
	for _, c := range b.clients {
		b.enqueue(c, frame)
	}
	b.mu.Unlock()
}

// SendTo queues the event for one client only. Unknown ids are ignored:
// the target may have disconnected between emission and delivery.
func (b *Bus) SendTo(socketID, event string, payload interface{}) {
	b.mu.Lock()
	if c, ok := b.clients[socketID]; ok {
		b.enqueue(c, Frame{Event: event, Data: payload})
	}
	b.mu.Unlock()
}

// Connected reports whether the socket is currently registered.
func (b *Bus) Connected(socketID string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.clients[socketID]
	return ok
}

// enqueue must run with b.mu held.
func (b *Bus) enqueue(c *client, frame Frame) {
	if c.closed {
		return
	}
	select {
	case c.send <- frame:
	default:
		b.l.Warn("send queue full, dropping client", zap.String("socket_id", c.id))
		b.drop(c)
	}
}

// drop must run with b.mu held.
func (b *Bus) drop(c *client) {
	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
	delete(b.clients, c.id)
}

func (b *Bus) writeLoop(c *client) {
	for frame := range c.send {
		if err := c.conn.WriteJSON(frame); err != nil {
			b.l.Debug("write failed",
				zap.String("socket_id", c.id),
				zap.Error(err))
			// Drop this client only; the id may already belong to a
			// replacement connection.
			b.mu.Lock()
			if b.clients[c.id] == c {
				b.drop(c)
			} else if !c.closed {
				c.closed = true
				close(c.send)
			}
			b.mu.Unlock()
			break
		}
	}
	_ = c.conn.Close()
}

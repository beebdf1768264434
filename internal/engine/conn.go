package engine

import (
	"sync"

	"github.com/roomcast/roomcast/internal/gateway"
)

// Connection is the engine-side record of one live client socket. The
// identity is resolved once at connect time and never changes. The transport
// layer drains Outgoing into the socket; the engine never writes to the
// socket directly.
type Connection struct {
	id       string
	identity gateway.Identity

	mu       sync.Mutex
	rooms    map[string]struct{}
	closed   bool
	outgoing chan []byte

	torn bool // teardown ran; guarded by mu
}

func newConnection(id string, identity gateway.Identity, buffer int) *Connection {
	return &Connection{
		id:       id,
		identity: identity,
		rooms:    make(map[string]struct{}),
		outgoing: make(chan []byte, buffer),
	}
}

// ID returns the unique connection id.
func (c *Connection) ID() string { return c.id }

// Identity returns the server-resolved identity bound to this connection.
func (c *Connection) Identity() gateway.Identity { return c.identity }

// Outgoing is the frame queue the transport write pump drains. It is closed
// exactly once, during teardown; the transport should close the socket when
// the channel is exhausted.
func (c *Connection) Outgoing() <-chan []byte { return c.outgoing }

// send queues an outbound frame without blocking. It reports false if the
// connection is closed or its queue is full; a full queue drops the frame
// for this connection only.
func (c *Connection) send(data []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.outgoing <- data:
		return true
	default:
		return false
	}
}

func (c *Connection) addRoom(roomID string) {
	c.mu.Lock()
	c.rooms[roomID] = struct{}{}
	c.mu.Unlock()
}

func (c *Connection) removeRoom(roomID string) {
	c.mu.Lock()
	delete(c.rooms, roomID)
	c.mu.Unlock()
}

// inRoom reports whether this connection has joined the room in the current
// session. Durable membership does not count.
func (c *Connection) inRoom(roomID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.rooms[roomID]
	return ok
}

// roomSnapshot returns the joined rooms at this instant.
func (c *Connection) roomSnapshot() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	rooms := make([]string, 0, len(c.rooms))
	for id := range c.rooms {
		rooms = append(rooms, id)
	}
	return rooms
}

// beginTeardown marks the connection as being torn down. Only the first
// caller proceeds; later calls (moderation racing socket close) are no-ops.
func (c *Connection) beginTeardown() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.torn {
		return false
	}
	c.torn = true
	return true
}

// isTorn reports whether teardown has begun for this connection.
func (c *Connection) isTorn() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.torn
}

// closeOutgoing stops the write pump. Safe to call once teardown began.
func (c *Connection) closeOutgoing() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.outgoing)
}

package engine

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/roomcast/roomcast/internal/gateway"
	"github.com/roomcast/roomcast/pkg/protocol"
)

// roomDeps are the facilities a room worker needs from the engine.
type roomDeps struct {
	log            *slog.Logger
	persist        func(ev gateway.Event)
	typingTimeout  time.Duration
	receiptFloor   time.Duration
	announceRejoin bool
	now            func() time.Time
}

// room is one serialized unit of broadcast: a single worker goroutine owns
// the subscriber set, typing timers, and read receipts, and processes
// commands strictly in arrival order. Different rooms run in parallel;
// operations on the same room never interleave.
type room struct {
	id    string
	table *roomTable
	deps  roomDeps

	commands chan func()

	mu      sync.Mutex
	queued  int
	stopped bool

	// Worker-owned state. Never touched outside the worker goroutine.
	subs     map[*Connection]struct{}
	typing   *typingSet
	receipts *receiptSet
}

func newRoom(id string, table *roomTable, deps roomDeps) *room {
	r := &room{
		id:       id,
		table:    table,
		deps:     deps,
		commands: make(chan func(), 16),
		subs:     make(map[*Connection]struct{}),
		receipts: newReceiptSet(deps.receiptFloor),
	}
	r.typing = newTypingSet(deps.typingTimeout, r.post, r.typingExpired)
	go r.run()
	return r
}

func (r *room) run() {
	for fn := range r.commands {
		fn()
		r.mu.Lock()
		r.queued--
		r.mu.Unlock()
		if len(r.subs) == 0 {
			r.table.reap(r)
		}
	}
}

// post schedules fn on the worker. It reports false once the room has been
// reaped; callers going through the room table retry against a fresh entry.
func (r *room) post(fn func()) bool {
	r.mu.Lock()
	if r.stopped {
		r.mu.Unlock()
		return false
	}
	r.queued++
	r.mu.Unlock()
	r.commands <- fn
	return true
}

// tryStop marks the room stopped if it is empty and has no queued commands.
// Called by the table with the table lock held.
func (r *room) tryStop() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.stopped {
		return true
	}
	if r.queued > 0 || len(r.subs) > 0 {
		return false
	}
	r.stopped = true
	close(r.commands)
	return true
}

// join subscribes a connection. Worker context.
func (r *room) join(c *Connection, force bool) {
	// Teardown may have won the race after the access check; a torn
	// connection's leave pass has already run (or will find nothing),
	// so subscribing it here would leak a zombie subscriber.
	if c.isTorn() {
		return
	}
	_, already := r.subs[c]
	if already && !force {
		// Idempotent rejoin: acknowledge, change nothing, announce nothing.
		r.sendAck(c, fmt.Sprintf("Joined room %s", r.id))
		return
	}
	r.subs[c] = struct{}{}
	c.addRoom(r.id)
	r.sendAck(c, fmt.Sprintf("Joined room %s", r.id))
	if already && !r.deps.announceRejoin {
		return
	}
	r.systemNotice(c.identity, fmt.Sprintf("%s joined %s", c.identity.Username, r.id))
}

// leave removes a connection as part of its teardown. Worker context.
func (r *room) leave(c *Connection) {
	if _, ok := r.subs[c]; !ok {
		return
	}
	delete(r.subs, c)
	c.removeRoom(r.id)
	identity := c.identity
	if r.userGone(identity.UserID) && r.typing.cancel(identity.UserID) {
		r.broadcastTyping(identity.UserID, identity.Username, false)
	}
	r.systemNotice(identity, fmt.Sprintf("%s left %s", identity.Username, r.id))
}

// kickUser removes every connection of a user by moderator action.
// Worker context.
func (r *room) kickUser(userID string) {
	var removed []*Connection
	for c := range r.subs {
		if c.identity.UserID == userID {
			removed = append(removed, c)
		}
	}
	if len(removed) == 0 {
		return
	}
	for _, c := range removed {
		delete(r.subs, c)
		c.removeRoom(r.id)
	}
	identity := removed[0].identity
	if r.typing.cancel(userID) {
		r.broadcastTyping(userID, identity.Username, false)
	}
	r.systemNotice(identity, fmt.Sprintf("%s was removed from %s", identity.Username, r.id))
}

// message broadcasts a chat message from a subscribed connection.
// Worker context; the durable write has already been kicked off.
func (r *room) message(c *Connection, text string, at time.Time) {
	if _, ok := r.subs[c]; !ok {
		return
	}
	data, err := protocol.NewRoomMessage(r.id, text, c.identity.Username, c.identity.Color, at)
	if err != nil {
		r.deps.log.Error("encode room message", "room", r.id, "error", err)
		return
	}
	r.broadcast(data)
}

// typingSignal processes an explicit typing frame. Worker context.
func (r *room) typingSignal(c *Connection, isTyping bool) {
	if _, ok := r.subs[c]; !ok {
		return
	}
	identity := c.identity
	if isTyping {
		r.typing.arm(identity.UserID, identity.Username)
	} else {
		r.typing.cancel(identity.UserID)
	}
	r.broadcastTyping(identity.UserID, identity.Username, isTyping)
}

// typingExpired fires when an armed timer lapses without client input.
// Worker context (via typingSet).
func (r *room) typingExpired(userID, username string) {
	r.broadcastTyping(userID, username, false)
}

// receipt processes a read receipt. Worker context.
func (r *room) receipt(c *Connection, at time.Time) {
	if _, ok := r.subs[c]; !ok {
		return
	}
	identity := c.identity
	if !r.receipts.update(identity.UserID, at) {
		return
	}
	data, err := protocol.NewReceiptEvent(r.id, identity.Username, at)
	if err != nil {
		r.deps.log.Error("encode receipt event", "room", r.id, "error", err)
		return
	}
	r.broadcast(data)
}

// broadcast sends a frame to the current subscriber snapshot. Connections
// with a closed or full queue are skipped; delivery is never blocking.
func (r *room) broadcast(data []byte) {
	for c := range r.subs {
		if !c.send(data) {
			r.deps.log.Warn("dropped frame for slow or closed connection",
				"room", r.id, "conn", c.id, "user", c.identity.UserID)
		}
	}
}

func (r *room) broadcastTyping(userID, username string, isTyping bool) {
	data, err := protocol.NewTypingEvent(r.id, username, isTyping)
	if err != nil {
		r.deps.log.Error("encode typing event", "room", r.id, "error", err)
		return
	}
	r.broadcast(data)
}

// systemNotice persists and broadcasts a SYSTEM event attributed to actor.
func (r *room) systemNotice(actor gateway.Identity, text string) {
	at := r.deps.now()
	r.deps.persist(gateway.Event{
		RoomID:    r.id,
		UserID:    actor.UserID,
		Username:  actor.Username,
		Kind:      gateway.EventSystem,
		Text:      text,
		CreatedAt: at,
	})
	data, err := protocol.NewSystem(r.id, text, at)
	if err != nil {
		r.deps.log.Error("encode system notice", "room", r.id, "error", err)
		return
	}
	r.broadcast(data)
}

func (r *room) sendAck(c *Connection, text string) {
	data, err := protocol.NewAck(text)
	if err != nil {
		r.deps.log.Error("encode ack", "room", r.id, "error", err)
		return
	}
	c.send(data)
}

// userGone reports whether no remaining subscriber belongs to the user.
func (r *room) userGone(userID string) bool {
	for c := range r.subs {
		if c.identity.UserID == userID {
			return false
		}
	}
	return true
}

// Package engine implements the real-time session and room-broadcast core:
// connection registry, per-room serialized workers, presence tracking,
// typing timers, read receipts, and the protocol state machine that ties
// them together.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/roomcast/roomcast/internal/gateway"
	"github.com/roomcast/roomcast/pkg/protocol"
)

// ErrAuthFailed means the connect-time token could not be resolved. The
// transport must close the socket with a policy-violation code and create
// no state.
var ErrAuthFailed = errors.New("authentication failed")

const persistTimeout = 5 * time.Second

// Options tune engine behavior. Zero values fall back to defaults.
type Options struct {
	TypingTimeout      time.Duration
	ReceiptMinInterval time.Duration
	OutgoingBuffer     int
	AnnounceRejoin     bool

	// Now overrides the clock, for tests.
	Now func() time.Time
}

// Engine dispatches decoded frames against the shared session state.
type Engine struct {
	log      *slog.Logger
	resolver gateway.IdentityResolver
	access   gateway.AccessGateway
	store    gateway.PersistenceGateway

	opts     Options
	registry *connRegistry
	presence *presenceTracker
	rooms    *roomTable
}

// New creates an Engine backed by the given collaborators.
func New(log *slog.Logger, resolver gateway.IdentityResolver, access gateway.AccessGateway, store gateway.PersistenceGateway, opts Options) *Engine {
	if log == nil {
		log = slog.Default()
	}
	if opts.TypingTimeout <= 0 {
		opts.TypingTimeout = 5 * time.Second
	}
	if opts.ReceiptMinInterval < 0 {
		opts.ReceiptMinInterval = 0
	}
	if opts.OutgoingBuffer <= 0 {
		opts.OutgoingBuffer = 32
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	e := &Engine{
		log:      log,
		resolver: resolver,
		access:   access,
		store:    store,
		opts:     opts,
		registry: newConnRegistry(),
		presence: newPresenceTracker(),
	}
	e.rooms = newRoomTable(roomDeps{
		log:            log,
		persist:        e.persistAsync,
		typingTimeout:  opts.TypingTimeout,
		receiptFloor:   opts.ReceiptMinInterval,
		announceRejoin: opts.AnnounceRejoin,
		now:            opts.Now,
	})
	return e
}

// Connect resolves the opaque token and registers a new connection. This is
// the only path into the Authenticated state; it runs synchronously before
// any frame is processed.
func (e *Engine) Connect(ctx context.Context, token string) (*Connection, error) {
	identity, err := e.resolver.ResolveIdentity(ctx, token)
	if err != nil || identity == nil {
		if err == nil {
			err = fmt.Errorf("no identity for token")
		}
		return nil, fmt.Errorf("%w: %v", ErrAuthFailed, err)
	}
	c := newConnection(uuid.NewString(), *identity, e.opts.OutgoingBuffer)
	e.registry.add(c)
	if e.presence.addConnection(identity.UserID, c.id) {
		e.setPresenceAsync(identity.UserID, true)
		e.log.Info("user online", "user", identity.UserID, "username", identity.Username)
	}
	e.log.Info("connection established", "conn", c.id, "user", identity.UserID)
	return c, nil
}

// HandleFrame dispatches one inbound byte frame for a live connection.
// Protocol and authorization failures answer with ERR_ACK; session-state
// failures are dropped silently. No error here is fatal to the connection.
func (e *Engine) HandleFrame(ctx context.Context, c *Connection, data []byte) {
	// A read loop can still deliver frames while moderation or a write
	// failure tears the connection down; they must not recreate state.
	if c.isTorn() {
		return
	}
	frame, err := protocol.DecodeFrame(data)
	if err != nil {
		e.errAck(c, "Malformed frame")
		return
	}
	switch frame.Type {
	case protocol.TypeJoinRoom:
		p, err := frame.JoinRoom()
		if err != nil {
			e.errAck(c, "Malformed frame")
			return
		}
		e.handleJoin(ctx, c, p)
	case protocol.TypeSendMessage:
		p, err := frame.SendMessage()
		if err != nil {
			e.errAck(c, "Malformed frame")
			return
		}
		e.handleMessage(c, p)
	case protocol.TypeTyping:
		p, err := frame.Typing()
		if err != nil {
			e.errAck(c, "Malformed frame")
			return
		}
		e.handleTyping(c, p)
	case protocol.TypeReadReceipt:
		p, err := frame.ReadReceipt()
		if err != nil {
			e.errAck(c, "Malformed frame")
			return
		}
		e.handleReceipt(c, p)
	default:
		e.errAck(c, fmt.Sprintf("Unknown frame type %s", frame.Type))
	}
}

func (e *Engine) handleJoin(ctx context.Context, c *Connection, p protocol.JoinRoom) {
	rec, err := e.access.LookupRoom(ctx, p.RoomID)
	if errors.Is(err, gateway.ErrRoomNotFound) {
		e.errAck(c, "Room not found")
		return
	}
	if err != nil {
		e.log.Error("room lookup failed", "room", p.RoomID, "error", err)
		e.errAck(c, "Room not found")
		return
	}
	ok, err := e.access.CanAccess(ctx, rec, c.identity.UserID)
	if err != nil {
		e.log.Error("access check failed", "room", p.RoomID, "user", c.identity.UserID, "error", err)
		e.errAck(c, "Access denied")
		return
	}
	if !ok {
		e.errAck(c, "Access denied")
		return
	}
	e.rooms.do(p.RoomID, true, func(r *room) { r.join(c, p.Force) })
}

func (e *Engine) handleMessage(c *Connection, p protocol.SendMessage) {
	// Only rooms joined in this session may be posted to; durable
	// membership alone is not enough. Silent drop, as a client bug.
	if !c.inRoom(p.RoomID) {
		return
	}
	at := e.opts.Now()
	e.persistAsync(gateway.Event{
		RoomID:    p.RoomID,
		UserID:    c.identity.UserID,
		Username:  c.identity.Username,
		Kind:      gateway.EventMessage,
		Text:      p.Text,
		CreatedAt: at,
	})
	e.rooms.do(p.RoomID, false, func(r *room) { r.message(c, p.Text, at) })
}

func (e *Engine) handleTyping(c *Connection, p protocol.Typing) {
	if !c.inRoom(p.RoomID) {
		return
	}
	e.rooms.do(p.RoomID, false, func(r *room) { r.typingSignal(c, p.IsTyping) })
}

func (e *Engine) handleReceipt(c *Connection, p protocol.ReadReceipt) {
	if !c.inRoom(p.RoomID) {
		return
	}
	at := e.opts.Now()
	e.rooms.do(p.RoomID, false, func(r *room) { r.receipt(c, at) })
}

// Disconnect unwinds every piece of state owned by the connection: room
// subscriptions (with leave notices and typing cleanup, serialized per
// room), presence, and the registry entry. Idempotent; moderation and the
// transport may race to call it.
func (e *Engine) Disconnect(c *Connection) {
	if c == nil || !c.beginTeardown() {
		return
	}
	for _, roomID := range c.roomSnapshot() {
		e.rooms.do(roomID, false, func(r *room) { r.leave(c) })
	}
	e.registry.remove(c.id)
	identity := c.identity
	if e.presence.removeConnection(identity.UserID, c.id) {
		e.setPresenceAsync(identity.UserID, false)
		e.log.Info("user offline", "user", identity.UserID, "username", identity.Username)
	}
	c.closeOutgoing()
	e.log.Info("connection closed", "conn", c.id, "user", identity.UserID)
}

// KickUser removes every connection of a user from a room with a SYSTEM
// notice. Moderation entry point; routed through the room worker like any
// organic leave.
func (e *Engine) KickUser(roomID, userID string) {
	e.rooms.do(roomID, false, func(r *room) { r.kickUser(userID) })
}

// CloseUser force-closes every live connection of a user (session
// revocation). Each connection gets the full disconnect treatment.
func (e *Engine) CloseUser(userID string) {
	for _, c := range e.registry.byUser(userID) {
		e.Disconnect(c)
	}
}

// SubscriberCount reports the live subscriber count of a room.
func (e *Engine) SubscriberCount(roomID string) int {
	return e.rooms.subscriberCount(roomID)
}

// RoomCount reports the number of live room entries. Rooms are reclaimed
// as soon as their subscriber set empties.
func (e *Engine) RoomCount() int {
	return e.rooms.count()
}

// ConnectionCount reports the number of live connections.
func (e *Engine) ConnectionCount() int {
	return e.registry.count()
}

// Online reports whether the user has at least one live connection.
func (e *Engine) Online(userID string) bool {
	return e.presence.online(userID)
}

func (e *Engine) errAck(c *Connection, text string) {
	data, err := protocol.NewErrAck(text)
	if err != nil {
		e.log.Error("encode err ack", "error", err)
		return
	}
	c.send(data)
}

// persistAsync hands an event to the persistence gateway without blocking
// the broadcast path. Failures are logged and otherwise swallowed: the live
// chat path wins over durability.
func (e *Engine) persistAsync(ev gateway.Event) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
		defer cancel()
		if err := e.store.Persist(ctx, ev); err != nil {
			e.log.Error("persist event failed",
				"room", ev.RoomID, "user", ev.UserID, "kind", ev.Kind, "error", err)
		}
	}()
}

func (e *Engine) setPresenceAsync(userID string, online bool) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
		defer cancel()
		if err := e.access.SetPresence(ctx, userID, online); err != nil {
			e.log.Error("set presence failed", "user", userID, "online", online, "error", err)
		}
	}()
}

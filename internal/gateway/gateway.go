// Package gateway defines the engine's external collaborator interfaces:
// identity resolution, room access decisions, and durable event storage.
package gateway

import (
	"context"
	"errors"
	"time"
)

// RoomKind classifies a room for access-control purposes.
type RoomKind string

const (
	RoomPublic  RoomKind = "public"
	RoomDirect  RoomKind = "direct"
	RoomPrivate RoomKind = "private"
)

// EventKind classifies a persisted room event.
type EventKind string

const (
	EventMessage EventKind = "message"
	EventSystem  EventKind = "system"
)

// ErrRoomNotFound is returned by LookupRoom for unknown room ids.
var ErrRoomNotFound = errors.New("room not found")

// Identity is a server-resolved user identity. Clients never supply it.
type Identity struct {
	UserID   string
	Username string
	Color    string
}

// Room is the durable room record used for access decisions.
type Room struct {
	ID   string
	Kind RoomKind
}

// Event is a chat or system event handed to the persistence gateway.
type Event struct {
	RoomID    string
	UserID    string
	Username  string
	Kind      EventKind
	Text      string
	CreatedAt time.Time
}

// IdentityResolver maps an opaque connect-time token to an identity.
// A nil identity or an error means the connection must be refused.
type IdentityResolver interface {
	ResolveIdentity(ctx context.Context, token string) (*Identity, error)
}

// AccessGateway answers room-access questions and owns the durable
// presence flag.
type AccessGateway interface {
	// LookupRoom returns the room record, or ErrRoomNotFound.
	LookupRoom(ctx context.Context, roomID string) (*Room, error)

	// CanAccess reports whether the user may join and post to the room.
	// Public rooms are always allowed; direct and private rooms require
	// membership and absence from the room's ban list.
	CanAccess(ctx context.Context, room *Room, userID string) (bool, error)

	// SetPresence flips the durable online flag for a user. The engine
	// calls this only on the first connection up and the last one down.
	SetPresence(ctx context.Context, userID string, online bool) error
}

// PersistenceGateway durably stores room events. Calls are fire-and-forget
// from the broadcast path: a failure is logged, never propagated back.
type PersistenceGateway interface {
	Persist(ctx context.Context, ev Event) error
}

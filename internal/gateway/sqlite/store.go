// Package sqlite provides a SQLite-backed implementation of the room access
// and event persistence gateways.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/roomcast/roomcast/internal/gateway"
)

const schema = `
CREATE TABLE IF NOT EXISTS rooms (
  id   TEXT PRIMARY KEY,
  kind TEXT NOT NULL DEFAULT 'public'
);
CREATE TABLE IF NOT EXISTS room_members (
  room_id TEXT NOT NULL,
  user_id TEXT NOT NULL,
  PRIMARY KEY (room_id, user_id)
);
CREATE TABLE IF NOT EXISTS room_bans (
  room_id TEXT NOT NULL,
  user_id TEXT NOT NULL,
  PRIMARY KEY (room_id, user_id)
);
CREATE TABLE IF NOT EXISTS messages (
  id         INTEGER PRIMARY KEY AUTOINCREMENT,
  room_id    TEXT NOT NULL,
  user_id    TEXT NOT NULL,
  username   TEXT NOT NULL,
  kind       TEXT NOT NULL,
  text       TEXT NOT NULL,
  created_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_messages_room ON messages (room_id, created_at);
CREATE TABLE IF NOT EXISTS user_presence (
  user_id    TEXT PRIMARY KEY,
  online     INTEGER NOT NULL,
  updated_at INTEGER NOT NULL
);
`

// Store persists rooms, membership, bans, events, and the durable presence
// flag in SQLite.
type Store struct {
	sqlDB *sql.DB
	now   func() time.Time
}

func toMillis(value time.Time) int64 {
	return value.UTC().UnixMilli()
}

func fromMillis(value int64) time.Time {
	return time.UnixMilli(value).UTC()
}

// Open opens a SQLite store and applies the schema.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	cleanPath := filepath.Clean(path)
	// modernc.org/sqlite takes pragmas in _pragma=name(value) form; the
	// underscore-prefixed keys other drivers use are silently ignored.
	dsn := cleanPath + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(ON)&_pragma=synchronous(NORMAL)"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if _, err := sqlDB.Exec(schema); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Store{sqlDB: sqlDB, now: time.Now}, nil
}

// Close closes the SQLite handle.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

// CreateRoom inserts a room record. Used by provisioning and tests; the
// engine itself never creates rooms.
func (s *Store) CreateRoom(ctx context.Context, room gateway.Room) error {
	if room.ID == "" {
		return fmt.Errorf("room id is required")
	}
	kind := room.Kind
	if kind == "" {
		kind = gateway.RoomPublic
	}
	_, err := s.sqlDB.ExecContext(ctx,
		`INSERT INTO rooms (id, kind) VALUES (?, ?)`, room.ID, string(kind))
	if err != nil {
		return fmt.Errorf("insert room: %w", err)
	}
	return nil
}

// AddMember records durable room membership.
func (s *Store) AddMember(ctx context.Context, roomID, userID string) error {
	_, err := s.sqlDB.ExecContext(ctx,
		`INSERT OR IGNORE INTO room_members (room_id, user_id) VALUES (?, ?)`,
		roomID, userID)
	if err != nil {
		return fmt.Errorf("insert room member: %w", err)
	}
	return nil
}

// BanUser adds a user to a room's ban list.
func (s *Store) BanUser(ctx context.Context, roomID, userID string) error {
	_, err := s.sqlDB.ExecContext(ctx,
		`INSERT OR IGNORE INTO room_bans (room_id, user_id) VALUES (?, ?)`,
		roomID, userID)
	if err != nil {
		return fmt.Errorf("insert room ban: %w", err)
	}
	return nil
}

// LookupRoom implements gateway.AccessGateway.
func (s *Store) LookupRoom(ctx context.Context, roomID string) (*gateway.Room, error) {
	if roomID == "" {
		return nil, gateway.ErrRoomNotFound
	}
	var kind string
	err := s.sqlDB.QueryRowContext(ctx,
		`SELECT kind FROM rooms WHERE id = ?`, roomID).Scan(&kind)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, gateway.ErrRoomNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("lookup room %q: %w", roomID, err)
	}
	return &gateway.Room{ID: roomID, Kind: gateway.RoomKind(kind)}, nil
}

// CanAccess implements gateway.AccessGateway. Public rooms are open to
// everyone; direct and private rooms require membership and no ban.
func (s *Store) CanAccess(ctx context.Context, room *gateway.Room, userID string) (bool, error) {
	if room == nil {
		return false, gateway.ErrRoomNotFound
	}
	var banned int
	err := s.sqlDB.QueryRowContext(ctx,
		`SELECT COUNT(1) FROM room_bans WHERE room_id = ? AND user_id = ?`,
		room.ID, userID).Scan(&banned)
	if err != nil {
		return false, fmt.Errorf("check ban for room %q: %w", room.ID, err)
	}
	if banned > 0 {
		return false, nil
	}
	if room.Kind == gateway.RoomPublic {
		return true, nil
	}
	var member int
	err = s.sqlDB.QueryRowContext(ctx,
		`SELECT COUNT(1) FROM room_members WHERE room_id = ? AND user_id = ?`,
		room.ID, userID).Scan(&member)
	if err != nil {
		return false, fmt.Errorf("check membership for room %q: %w", room.ID, err)
	}
	return member > 0, nil
}

// SetPresence implements gateway.AccessGateway.
func (s *Store) SetPresence(ctx context.Context, userID string, online bool) error {
	flag := 0
	if online {
		flag = 1
	}
	_, err := s.sqlDB.ExecContext(ctx,
		`INSERT INTO user_presence (user_id, online, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT (user_id) DO UPDATE SET online = excluded.online, updated_at = excluded.updated_at`,
		userID, flag, toMillis(s.now()))
	if err != nil {
		return fmt.Errorf("set presence for user %q: %w", userID, err)
	}
	return nil
}

// Persist implements gateway.PersistenceGateway.
func (s *Store) Persist(ctx context.Context, ev gateway.Event) error {
	if ev.RoomID == "" {
		return fmt.Errorf("event room id is required")
	}
	createdAt := ev.CreatedAt
	if createdAt.IsZero() {
		createdAt = s.now()
	}
	_, err := s.sqlDB.ExecContext(ctx,
		`INSERT INTO messages (room_id, user_id, username, kind, text, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		ev.RoomID, ev.UserID, ev.Username, string(ev.Kind), ev.Text, toMillis(createdAt))
	if err != nil {
		return fmt.Errorf("insert event for room %q: %w", ev.RoomID, err)
	}
	return nil
}

// StoredEvent is a persisted room event as read back from storage.
type StoredEvent struct {
	RoomID    string
	UserID    string
	Username  string
	Kind      gateway.EventKind
	Text      string
	CreatedAt time.Time
}

// RecentEvents returns up to limit events for a room, oldest first. Used by
// tooling and tests to inspect the durable log.
func (s *Store) RecentEvents(ctx context.Context, roomID string, limit int) ([]StoredEvent, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.sqlDB.QueryContext(ctx,
		`SELECT room_id, user_id, username, kind, text, created_at
		 FROM messages WHERE room_id = ?
		 ORDER BY created_at DESC, id DESC LIMIT ?`, roomID, limit)
	if err != nil {
		return nil, fmt.Errorf("query events for room %q: %w", roomID, err)
	}
	defer rows.Close()

	var events []StoredEvent
	for rows.Next() {
		var ev StoredEvent
		var kind string
		var createdAt int64
		if err := rows.Scan(&ev.RoomID, &ev.UserID, &ev.Username, &kind, &ev.Text, &createdAt); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		ev.Kind = gateway.EventKind(kind)
		ev.CreatedAt = fromMillis(createdAt)
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}
	for i, j := 0, len(events)-1; i < j; i, j = i+1, j-1 {
		events[i], events[j] = events[j], events[i]
	}
	return events, nil
}

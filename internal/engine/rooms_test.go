package engine

import (
	"log/slog"
	"testing"
	"time"

	"github.com/roomcast/roomcast/internal/gateway"
)

func newTestTable() *roomTable {
	return newRoomTable(roomDeps{
		log:           slog.Default(),
		persist:       func(gateway.Event) {},
		typingTimeout: time.Second,
		now:           time.Now,
	})
}

func testConn(id, userID, username string) *Connection {
	return newConnection(id, gateway.Identity{UserID: userID, Username: username}, 16)
}

func TestRoomTable_UnknownRoom(t *testing.T) {
	table := newTestTable()

	table.broadcast("nowhere", []byte(`{}`)) // must not panic or create a room
	if got := table.subscriberCount("nowhere"); got != 0 {
		t.Errorf("subscriberCount(nowhere) = %d, want 0", got)
	}
	if table.do("nowhere", false, func(*room) {}) {
		t.Error("do(create=false) on unknown room should report false")
	}
	if got := table.count(); got != 0 {
		t.Errorf("count() = %d, want 0", got)
	}
}

func TestRoomTable_DoubleSubscribeIsNoop(t *testing.T) {
	table := newTestTable()
	c := testConn("c1", "u1", "alice")

	table.do("general", true, func(r *room) { r.join(c, false) })
	table.do("general", true, func(r *room) { r.join(c, false) })

	if got := table.subscriberCount("general"); got != 1 {
		t.Errorf("subscriberCount(general) = %d, want 1 after double subscribe", got)
	}
	if !c.inRoom("general") {
		t.Error("connection's joined set must mirror the subscriber set")
	}
}

func TestRoomTable_ReapAfterLastLeave(t *testing.T) {
	table := newTestTable()
	c := testConn("c1", "u1", "alice")

	table.do("general", true, func(r *room) { r.join(c, false) })
	if got := table.subscriberCount("general"); got != 1 {
		t.Fatalf("subscriberCount(general) = %d, want 1", got)
	}

	table.do("general", false, func(r *room) { r.leave(c) })

	deadline := time.Now().Add(2 * time.Second)
	for table.count() != 0 {
		if time.Now().After(deadline) {
			t.Fatalf("count() = %d, want 0 after last leave", table.count())
		}
		time.Sleep(5 * time.Millisecond)
	}
	if c.inRoom("general") {
		t.Error("joined set still contains the room after leave")
	}

	// A fresh subscribe after the reap gets a new worker.
	c2 := testConn("c2", "u2", "bob")
	table.do("general", true, func(r *room) { r.join(c2, false) })
	if got := table.subscriberCount("general"); got != 1 {
		t.Errorf("subscriberCount(general) = %d, want 1 on fresh worker", got)
	}
}

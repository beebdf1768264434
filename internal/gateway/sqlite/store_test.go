package sqlite_test

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/roomcast/roomcast/internal/gateway"
	"github.com/roomcast/roomcast/internal/gateway/sqlite"
)

func openStore(t *testing.T) *sqlite.Store {
	t.Helper()
	store, err := sqlite.Open(filepath.Join(t.TempDir(), "chat.db"))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestStore_OpenRequiresPath(t *testing.T) {
	if _, err := sqlite.Open("  "); err == nil {
		t.Error("expected error for blank storage path")
	}
}

func TestStore_LookupRoom(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()

	if _, err := store.LookupRoom(ctx, "general"); !errors.Is(err, gateway.ErrRoomNotFound) {
		t.Errorf("LookupRoom(unknown) error = %v, want ErrRoomNotFound", err)
	}

	if err := store.CreateRoom(ctx, gateway.Room{ID: "general", Kind: gateway.RoomPublic}); err != nil {
		t.Fatalf("CreateRoom failed: %v", err)
	}
	room, err := store.LookupRoom(ctx, "general")
	if err != nil {
		t.Fatalf("LookupRoom failed: %v", err)
	}
	if room.ID != "general" || room.Kind != gateway.RoomPublic {
		t.Errorf("room = %+v, want public general", room)
	}
}

func TestStore_CanAccess(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()

	mustCreate := func(room gateway.Room) {
		t.Helper()
		if err := store.CreateRoom(ctx, room); err != nil {
			t.Fatalf("CreateRoom(%s) failed: %v", room.ID, err)
		}
	}
	mustCreate(gateway.Room{ID: "general", Kind: gateway.RoomPublic})
	mustCreate(gateway.Room{ID: "vip", Kind: gateway.RoomPrivate})
	mustCreate(gateway.Room{ID: "dm", Kind: gateway.RoomDirect})

	if err := store.AddMember(ctx, "vip", "u1"); err != nil {
		t.Fatalf("AddMember failed: %v", err)
	}
	if err := store.AddMember(ctx, "dm", "u1"); err != nil {
		t.Fatalf("AddMember failed: %v", err)
	}
	if err := store.BanUser(ctx, "general", "u3"); err != nil {
		t.Fatalf("BanUser failed: %v", err)
	}

	cases := []struct {
		name   string
		roomID string
		userID string
		want   bool
	}{
		{"public open to anyone", "general", "u2", true},
		{"public denies banned", "general", "u3", false},
		{"private requires membership", "vip", "u2", false},
		{"private allows member", "vip", "u1", true},
		{"direct allows member", "dm", "u1", true},
		{"direct denies stranger", "dm", "u2", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			room, err := store.LookupRoom(ctx, tc.roomID)
			if err != nil {
				t.Fatalf("LookupRoom failed: %v", err)
			}
			got, err := store.CanAccess(ctx, room, tc.userID)
			if err != nil {
				t.Fatalf("CanAccess failed: %v", err)
			}
			if got != tc.want {
				t.Errorf("CanAccess(%s, %s) = %v, want %v", tc.roomID, tc.userID, got, tc.want)
			}
		})
	}
}

func TestStore_PersistAndReadBack(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()

	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	events := []gateway.Event{
		{RoomID: "general", UserID: "u1", Username: "alice", Kind: gateway.EventSystem, Text: "alice joined general", CreatedAt: base},
		{RoomID: "general", UserID: "u2", Username: "bob", Kind: gateway.EventMessage, Text: "hi", CreatedAt: base.Add(time.Second)},
		{RoomID: "other", UserID: "u1", Username: "alice", Kind: gateway.EventMessage, Text: "elsewhere", CreatedAt: base},
	}
	for _, ev := range events {
		if err := store.Persist(ctx, ev); err != nil {
			t.Fatalf("Persist failed: %v", err)
		}
	}

	got, err := store.RecentEvents(ctx, "general", 10)
	if err != nil {
		t.Fatalf("RecentEvents failed: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("len(events) = %d, want 2", len(got))
	}
	if got[0].Text != "alice joined general" || got[1].Text != "hi" {
		t.Errorf("events out of order: %+v", got)
	}
	if got[1].Kind != gateway.EventMessage || !got[1].CreatedAt.Equal(base.Add(time.Second)) {
		t.Errorf("event = %+v, want message at base+1s", got[1])
	}
}

func TestStore_PersistRequiresRoom(t *testing.T) {
	store := openStore(t)
	if err := store.Persist(context.Background(), gateway.Event{}); err == nil {
		t.Error("expected error for event without room id")
	}
}

func TestStore_ConcurrentPersistAndLookup(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()

	if err := store.CreateRoom(ctx, gateway.Room{ID: "general", Kind: gateway.RoomPublic}); err != nil {
		t.Fatalf("CreateRoom failed: %v", err)
	}

	// Writers and readers race on the same handle; the busy timeout must
	// absorb lock contention instead of surfacing SQLITE_BUSY.
	var wg sync.WaitGroup
	errs := make(chan error, 80)
	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 10; i++ {
				ev := gateway.Event{
					RoomID:    "general",
					UserID:    "u1",
					Username:  "alice",
					Kind:      gateway.EventMessage,
					Text:      fmt.Sprintf("msg %d-%d", w, i),
					CreatedAt: time.Now(),
				}
				if err := store.Persist(ctx, ev); err != nil {
					errs <- err
				}
			}
		}(w)
	}
	for r := 0; r < 4; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 10; i++ {
				if _, err := store.LookupRoom(ctx, "general"); err != nil {
					errs <- err
				}
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Errorf("concurrent access failed: %v", err)
	}

	got, err := store.RecentEvents(ctx, "general", 100)
	if err != nil {
		t.Fatalf("RecentEvents failed: %v", err)
	}
	if len(got) != 40 {
		t.Errorf("len(events) = %d, want 40", len(got))
	}
}

func TestStore_SetPresence(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()

	if err := store.SetPresence(ctx, "u1", true); err != nil {
		t.Fatalf("SetPresence(online) failed: %v", err)
	}
	// Flipping repeatedly upserts the same row.
	if err := store.SetPresence(ctx, "u1", false); err != nil {
		t.Fatalf("SetPresence(offline) failed: %v", err)
	}
	if err := store.SetPresence(ctx, "u1", true); err != nil {
		t.Fatalf("SetPresence(online again) failed: %v", err)
	}
}

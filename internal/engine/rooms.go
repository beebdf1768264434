package engine

import "sync"

// roomTable maps room ids to their workers. Entries are created on first
// subscribe and reclaimed as soon as a room has no subscribers and no
// queued commands, so empty rooms never accumulate.
type roomTable struct {
	deps roomDeps

	mu    sync.Mutex
	rooms map[string]*room
}

func newRoomTable(deps roomDeps) *roomTable {
	return &roomTable{
		deps:  deps,
		rooms: make(map[string]*room),
	}
}

func (t *roomTable) getOrCreate(roomID string) *room {
	t.mu.Lock()
	defer t.mu.Unlock()
	if r, ok := t.rooms[roomID]; ok {
		return r
	}
	r := newRoom(roomID, t, t.deps)
	t.rooms[roomID] = r
	return r
}

func (t *roomTable) get(roomID string) *room {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.rooms[roomID]
}

// reap removes a room that has gone idle. The stopped flag is set under
// both locks, so a post that already passed its stopped check has either
// queued a command (blocking the reap) or will retry against a new entry.
func (t *roomTable) reap(r *room) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.rooms[r.id] != r {
		return
	}
	if r.tryStop() {
		delete(t.rooms, r.id)
	}
}

// do runs fn on the room's worker. With create=false it reports false when
// the room has no live entry. A post lost to a concurrent reap is retried
// against a fresh worker.
func (t *roomTable) do(roomID string, create bool, fn func(r *room)) bool {
	for {
		var r *room
		if create {
			r = t.getOrCreate(roomID)
		} else {
			r = t.get(roomID)
			if r == nil {
				return false
			}
		}
		if r.post(func() { fn(r) }) {
			return true
		}
	}
}

// subscriberCount returns the live subscriber count, serialized with the
// room's own operations. Zero for unknown rooms.
func (t *roomTable) subscriberCount(roomID string) int {
	result := make(chan int, 1)
	if !t.do(roomID, false, func(r *room) { result <- len(r.subs) }) {
		return 0
	}
	return <-result
}

// broadcast sends a pre-encoded frame to every current subscriber of the
// room. No-op for unknown rooms.
func (t *roomTable) broadcast(roomID string, data []byte) {
	t.do(roomID, false, func(r *room) { r.broadcast(data) })
}

// count returns the number of live room entries.
func (t *roomTable) count() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.rooms)
}

package engine

import "time"

// typingEntry is one armed auto-clear timer for a (room, user) pair.
type typingEntry struct {
	username string
	gen      uint64
	timer    *time.Timer
}

// typingSet holds the typing timers of a single room. It is owned by the
// room worker and must only be touched from inside it; timer callbacks
// re-enter through post, so expiry is serialized with every other room
// operation.
type typingSet struct {
	timeout time.Duration
	gen     uint64
	entries map[string]*typingEntry

	// post schedules fn on the owning room worker. Returns false once the
	// worker has stopped.
	post func(fn func()) bool

	// onExpire is invoked from the worker when an armed timer fires
	// without an intervening cancel or re-arm.
	onExpire func(userID, username string)
}

func newTypingSet(timeout time.Duration, post func(func()) bool, onExpire func(userID, username string)) *typingSet {
	return &typingSet{
		timeout:  timeout,
		entries:  make(map[string]*typingEntry),
		post:     post,
		onExpire: onExpire,
	}
}

// arm schedules the auto-clear timer for a user, replacing any pending one.
// The previous timer never fires after arm returns: even if it already
// popped, its generation no longer matches.
func (s *typingSet) arm(userID, username string) {
	if prev, ok := s.entries[userID]; ok {
		prev.timer.Stop()
	}
	s.gen++
	gen := s.gen
	entry := &typingEntry{username: username, gen: gen}
	entry.timer = time.AfterFunc(s.timeout, func() {
		s.post(func() { s.expired(userID, gen) })
	})
	s.entries[userID] = entry
}

// cancel drops the pending timer for a user without firing onExpire.
// It reports whether a timer was armed.
func (s *typingSet) cancel(userID string) bool {
	entry, ok := s.entries[userID]
	if !ok {
		return false
	}
	entry.timer.Stop()
	delete(s.entries, userID)
	return true
}

// active reports whether a timer is armed for the user.
func (s *typingSet) active(userID string) bool {
	_, ok := s.entries[userID]
	return ok
}

func (s *typingSet) expired(userID string, gen uint64) {
	entry, ok := s.entries[userID]
	if !ok || entry.gen != gen {
		return
	}
	delete(s.entries, userID)
	s.onExpire(userID, entry.username)
}

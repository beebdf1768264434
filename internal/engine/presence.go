package engine

import "sync"

// presenceTracker maps each user to the set of that user's live connections.
// A user is online iff the set is non-empty; only the empty<->non-empty
// transitions are observable.
type presenceTracker struct {
	mu    sync.Mutex
	users map[string]map[string]struct{} // userID -> set of connection ids
}

func newPresenceTracker() *presenceTracker {
	return &presenceTracker{
		users: make(map[string]map[string]struct{}),
	}
}

// addConnection registers a connection for a user and reports whether the
// user just came online (first connection).
func (p *presenceTracker) addConnection(userID, connID string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	conns, ok := p.users[userID]
	if !ok {
		conns = make(map[string]struct{})
		p.users[userID] = conns
	}
	conns[connID] = struct{}{}
	return len(conns) == 1
}

// removeConnection deregisters a connection and reports whether the user
// just went offline (last connection). Removing an unknown connection is a
// no-op and never reports a transition.
func (p *presenceTracker) removeConnection(userID, connID string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	conns, ok := p.users[userID]
	if !ok {
		return false
	}
	if _, ok := conns[connID]; !ok {
		return false
	}
	delete(conns, connID)
	if len(conns) == 0 {
		delete(p.users, userID)
		return true
	}
	return false
}

// online reports whether the user currently has any live connection.
func (p *presenceTracker) online(userID string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.users[userID]) > 0
}

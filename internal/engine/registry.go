package engine

import "sync"

// connRegistry is the authoritative map of live connections.
type connRegistry struct {
	mu    sync.RWMutex
	conns map[string]*Connection // keyed by connection id
}

func newConnRegistry() *connRegistry {
	return &connRegistry{
		conns: make(map[string]*Connection),
	}
}

func (r *connRegistry) add(c *Connection) {
	r.mu.Lock()
	r.conns[c.id] = c
	r.mu.Unlock()
}

func (r *connRegistry) remove(id string) {
	r.mu.Lock()
	delete(r.conns, id)
	r.mu.Unlock()
}

func (r *connRegistry) count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}

// byUser returns every live connection bound to the user.
func (r *connRegistry) byUser(userID string) []*Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var matched []*Connection
	for _, c := range r.conns {
		if c.identity.UserID == userID {
			matched = append(matched, c)
		}
	}
	return matched
}

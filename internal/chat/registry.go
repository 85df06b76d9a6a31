package chat

import (
	"sort"
	"sync"
)

type presence struct {
	conn     Conn
	identity Identity
	seq      uint64
}

// Registry maps live connections to the identity they authenticated with.
// It is the source of truth for who is online.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]presence
	seq     uint64
}

// NewRegistry returns an empty presence registry.
func NewRegistry() *Registry {
	return &Registry{
		entries: make(map[string]presence),
	}
}

// Register records identity for conn, replacing any previous entry for the
// same connection.
func (r *Registry) Register(conn Conn, identity Identity) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.seq++
	r.entries[conn.ID()] = presence{conn: conn, identity: identity, seq: r.seq}
}

// Unregister removes conn and returns the identity it held. The boolean is
// false when conn was not registered.
func (r *Registry) Unregister(conn Conn) (Identity, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.entries[conn.ID()]
	if !ok {
		return Identity{}, false
	}
	delete(r.entries, conn.ID())
	return entry.identity, true
}

// Lookup returns the identity registered for conn.
func (r *Registry) Lookup(conn Conn) (Identity, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entry, ok := r.entries[conn.ID()]
	return entry.identity, ok
}

// HasIdentityID reports whether any live connection holds the identity id.
func (r *Registry) HasIdentityID(id string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, entry := range r.entries {
		if entry.identity.ID == id {
			return true
		}
	}
	return false
}

// Snapshot returns the online identities keyed by identity id. When several
// connections claim the same id, the most recently registered one wins.
func (r *Registry) Snapshot() map[string]Identity {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[string]Identity, len(r.entries))
	newest := make(map[string]uint64, len(r.entries))
	for _, entry := range r.entries {
		if seq, seen := newest[entry.identity.ID]; seen && seq > entry.seq {
			continue
		}
		newest[entry.identity.ID] = entry.seq
		out[entry.identity.ID] = entry.identity
	}
	return out
}

// Connections returns every registered connection in registration order.
func (r *Registry) Connections() []Conn {
	r.mu.RLock()
	entries := make([]presence, 0, len(r.entries))
	for _, entry := range r.entries {
		entries = append(entries, entry)
	}
	r.mu.RUnlock()

	sort.Slice(entries, func(i, j int) bool { return entries[i].seq < entries[j].seq })

	conns := make([]Conn, len(entries))
	for i, entry := range entries {
		conns[i] = entry.conn
	}
	return conns
}

// Len returns the number of registered connections.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

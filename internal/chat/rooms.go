package chat

import (
	"sort"
	"sync"
)

// RoomIndex maps room ids to the connections subscribed to them. Rooms are
// created on first join and dropped once their last member is gone.
type RoomIndex struct {
	mu     sync.RWMutex
	rooms  map[string]map[string]Conn
	byConn map[string]map[string]struct{}
}

// NewRoomIndex returns an empty room membership index.
func NewRoomIndex() *RoomIndex {
	return &RoomIndex{
		rooms:  make(map[string]map[string]Conn),
		byConn: make(map[string]map[string]struct{}),
	}
}

// Join adds conn to room. Joining twice is a no-op.
func (ri *RoomIndex) Join(room string, conn Conn) {
	ri.mu.Lock()
	defer ri.mu.Unlock()

	members := ri.rooms[room]
	if members == nil {
		members = make(map[string]Conn)
		ri.rooms[room] = members
	}
	members[conn.ID()] = conn

	joined := ri.byConn[conn.ID()]
	if joined == nil {
		joined = make(map[string]struct{})
		ri.byConn[conn.ID()] = joined
	}
	joined[room] = struct{}{}
}

// Leave removes conn from a single room and reports whether it was a member.
func (ri *RoomIndex) Leave(room string, conn Conn) bool {
	ri.mu.Lock()
	defer ri.mu.Unlock()

	joined, ok := ri.byConn[conn.ID()]
	if !ok {
		return false
	}
	if _, member := joined[room]; !member {
		return false
	}

	delete(joined, room)
	if len(joined) == 0 {
		delete(ri.byConn, conn.ID())
	}
	ri.removeLocked(room, conn.ID())
	return true
}

// MembersOf returns the current members of room, ordered by connection id.
// An unknown room has no members.
func (ri *RoomIndex) MembersOf(room string) []Conn {
	ri.mu.RLock()
	members := ri.rooms[room]
	conns := make([]Conn, 0, len(members))
	for _, conn := range members {
		conns = append(conns, conn)
	}
	ri.mu.RUnlock()

	sort.Slice(conns, func(i, j int) bool { return conns[i].ID() < conns[j].ID() })
	return conns
}

// RoomsOf returns the rooms conn belongs to, sorted.
func (ri *RoomIndex) RoomsOf(conn Conn) []string {
	ri.mu.RLock()
	joined := ri.byConn[conn.ID()]
	rooms := make([]string, 0, len(joined))
	for room := range joined {
		rooms = append(rooms, room)
	}
	ri.mu.RUnlock()

	sort.Strings(rooms)
	return rooms
}

// RemoveEverywhere drops conn from every room it joined and returns those
// rooms.
func (ri *RoomIndex) RemoveEverywhere(conn Conn) []string {
	ri.mu.Lock()
	defer ri.mu.Unlock()

	joined := ri.byConn[conn.ID()]
	delete(ri.byConn, conn.ID())

	rooms := make([]string, 0, len(joined))
	for room := range joined {
		ri.removeLocked(room, conn.ID())
		rooms = append(rooms, room)
	}
	sort.Strings(rooms)
	return rooms
}

// Stats returns the number of non-empty rooms and the total number of
// memberships across them.
func (ri *RoomIndex) Stats() (rooms, memberships int) {
	ri.mu.RLock()
	defer ri.mu.RUnlock()

	for _, members := range ri.rooms {
		memberships += len(members)
	}
	return len(ri.rooms), memberships
}

func (ri *RoomIndex) removeLocked(room, connID string) {
	members := ri.rooms[room]
	if members == nil {
		return
	}
	delete(members, connID)
	if len(members) == 0 {
		delete(ri.rooms, room)
	}
}

package chat

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func memberIDs(conns []Conn) []string {
	ids := make([]string, len(conns))
	for i, c := range conns {
		ids[i] = c.ID()
	}
	return ids
}

func TestRoomIndex_JoinIsIdempotent(t *testing.T) {
	ri := NewRoomIndex()
	c1 := newFakeConn("c1")

	ri.Join("room1", c1)
	ri.Join("room1", c1)

	assert.Equal(t, []string{"c1"}, memberIDs(ri.MembersOf("room1")))
	rooms, memberships := ri.Stats()
	assert.Equal(t, 1, rooms)
	assert.Equal(t, 1, memberships)
}

func TestRoomIndex_UnknownRoomIsEmpty(t *testing.T) {
	ri := NewRoomIndex()
	assert.Empty(t, ri.MembersOf("nowhere"))
}

func TestRoomIndex_RemoveEverywhere(t *testing.T) {
	ri := NewRoomIndex()
	c1 := newFakeConn("c1")
	c2 := newFakeConn("c2")

	for _, room := range []string{"room1", "room2", "room3"} {
		ri.Join(room, c1)
	}
	ri.Join("room2", c2)

	left := ri.RemoveEverywhere(c1)
	assert.Equal(t, []string{"room1", "room2", "room3"}, left)

	for _, room := range []string{"room1", "room2", "room3"} {
		assert.NotContains(t, memberIDs(ri.MembersOf(room)), "c1", room)
	}
	assert.Equal(t, []string{"c2"}, memberIDs(ri.MembersOf("room2")))
	assert.Empty(t, ri.RoomsOf(c1))

	rooms, memberships := ri.Stats()
	assert.Equal(t, 1, rooms, "rooms emptied by removal are dropped")
	assert.Equal(t, 1, memberships)

	assert.Empty(t, ri.RemoveEverywhere(c1))
}

func TestRoomIndex_Leave(t *testing.T) {
	tests := []struct {
		name      string
		joined    []string
		leave     string
		wantLeft  bool
		wantRooms []string
	}{
		{name: "member leaves", joined: []string{"a", "b"}, leave: "a", wantLeft: true, wantRooms: []string{"b"}},
		{name: "not a member", joined: []string{"a"}, leave: "b", wantLeft: false, wantRooms: []string{"a"}},
		{name: "never joined anything", joined: nil, leave: "a", wantLeft: false, wantRooms: []string{}},
		{name: "last room", joined: []string{"a"}, leave: "a", wantLeft: true, wantRooms: []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ri := NewRoomIndex()
			c := newFakeConn("c1")
			for _, room := range tt.joined {
				ri.Join(room, c)
			}

			assert.Equal(t, tt.wantLeft, ri.Leave(tt.leave, c))
			assert.Equal(t, tt.wantRooms, ri.RoomsOf(c))
			assert.Empty(t, ri.MembersOf(tt.leave))
		})
	}
}

func TestRoomIndex_MembersSortedByID(t *testing.T) {
	ri := NewRoomIndex()
	for _, id := range []string{"c3", "c1", "c2"} {
		ri.Join("room", newFakeConn(id))
	}
	assert.Equal(t, []string{"c1", "c2", "c3"}, memberIDs(ri.MembersOf("room")))
}

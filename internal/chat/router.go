package chat

import (
	"github.com/rs/zerolog"
)

// Delivery summarizes one routed event.
type Delivery struct {
	Targets int
	Dropped int
}

// Router computes the target set of an outbound event and hands every target
// the same serialized payload. Delivery is fire-and-forget: send failures are
// counted and logged, never retried.
type Router struct {
	registry *Registry
	rooms    *RoomIndex
	logger   zerolog.Logger
}

// NewRouter returns a router fanning out over registry and rooms.
func NewRouter(registry *Registry, rooms *RoomIndex, logger zerolog.Logger) *Router {
	return &Router{
		registry: registry,
		rooms:    rooms,
		logger:   logger.With().Str("module", "chat.router").Logger(),
	}
}

// UserJoined announces identity to every registered connection except from.
func (r *Router) UserJoined(from Conn, identity Identity) Delivery {
	return r.deliver(EventUserJoined, identity, r.registry.Connections(), from)
}

// ActiveUsers replies to conn alone with the online snapshot.
func (r *Router) ActiveUsers(conn Conn) Delivery {
	return r.deliver(EventActiveUsers, r.registry.Snapshot(), []Conn{conn}, nil)
}

// NewMessage relays msg to the members of room, excluding from.
func (r *Router) NewMessage(from Conn, room string, msg Message) Delivery {
	return r.deliver(EventNewMessage, msg, r.rooms.MembersOf(room), from)
}

// Typing relays a typing notice to the members of room, excluding from.
func (r *Router) Typing(from Conn, room string, notice TypingNotice) Delivery {
	return r.deliver(EventTyping, notice, r.rooms.MembersOf(room), from)
}

// UserLeft announces a departed identity id to every registered connection.
// The departing connection must already be unregistered.
func (r *Router) UserLeft(identityID string) Delivery {
	return r.deliver(EventUserLeft, identityID, r.registry.Connections(), nil)
}

func (r *Router) deliver(event string, data any, targets []Conn, exclude Conn) Delivery {
	payload, err := EncodeEvent(event, data)
	if err != nil {
		r.logger.Error().Err(err).Str("event", event).Msg("dropping unencodable event")
		return Delivery{}
	}

	var result Delivery
	for _, conn := range targets {
		if exclude != nil && conn.ID() == exclude.ID() {
			continue
		}
		result.Targets++
		if err := conn.Send(payload); err != nil {
			result.Dropped++
			r.logger.Debug().Err(err).Str("event", event).Str("conn", conn.ID()).Msg("event dropped")
		}
	}

	r.logger.Debug().
		Str("event", event).
		Int("targets", result.Targets).
		Int("dropped", result.Dropped).
		Msg("event routed")
	return result
}

package chat

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Outbound event names, as seen by clients.
const (
	EventUserJoined  = "user joined"
	EventActiveUsers = "active users"
	EventNewMessage  = "newMessage"
	EventTyping      = "typing"
	EventUserLeft    = "user left"
)

// Inbound event names sent by clients.
const (
	EventJoinRoom    = "joinRoom"
	EventLeaveRoom   = "leaveRoom"
	EventSendMessage = "sendMessage"
	// EventTyping is shared by both directions.
)

var (
	// ErrMalformedEvent marks an inbound frame that could not be decoded or
	// lacks a required field.
	ErrMalformedEvent = errors.New("malformed event")
	// ErrNotActive marks an event from a connection that is not registered.
	ErrNotActive = errors.New("connection is not active")
	// ErrUnknownEvent marks an inbound frame with an unsupported event name.
	ErrUnknownEvent = errors.New("unknown event")
)

// Envelope is the wire frame used in both directions.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// SendMessageRequest is the payload of an inbound sendMessage event. Either
// chatId or roomId names the target room.
type SendMessageRequest struct {
	ChatID  string   `json:"chatId,omitempty"`
	RoomID  string   `json:"roomId,omitempty"`
	Message *Message `json:"message"`
}

// Room returns the addressed room, preferring chatId.
func (r SendMessageRequest) Room() string {
	if room := strings.TrimSpace(r.ChatID); room != "" {
		return room
	}
	return strings.TrimSpace(r.RoomID)
}

// TypingRequest is the payload of an inbound typing event.
type TypingRequest struct {
	ChatID   string `json:"chatId,omitempty"`
	RoomID   string `json:"roomId,omitempty"`
	IsTyping bool   `json:"isTyping"`
}

// Room returns the addressed room, or "" for the global room.
func (r TypingRequest) Room() string {
	if room := strings.TrimSpace(r.ChatID); room != "" {
		return room
	}
	return strings.TrimSpace(r.RoomID)
}

// TypingNotice is the payload of an outbound typing event.
type TypingNotice struct {
	User     Identity `json:"user"`
	IsTyping bool     `json:"isTyping"`
}

// EncodeEvent serializes an outbound event envelope.
func EncodeEvent(event string, data any) ([]byte, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("encode %q payload: %w", event, err)
	}
	return json.Marshal(Envelope{Event: event, Data: raw})
}

// DecodeEnvelope parses an inbound frame.
func DecodeEnvelope(raw []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return Envelope{}, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}
	if env.Event == "" {
		return Envelope{}, fmt.Errorf("%w: missing event name", ErrMalformedEvent)
	}
	return env, nil
}

func decodePayload(env Envelope, v any) error {
	if len(env.Data) == 0 {
		return fmt.Errorf("%w: %s without payload", ErrMalformedEvent, env.Event)
	}
	if err := json.Unmarshal(env.Data, v); err != nil {
		return fmt.Errorf("%w: %s payload: %v", ErrMalformedEvent, env.Event, err)
	}
	return nil
}

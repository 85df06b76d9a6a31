package chat

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// DefaultGlobalRoom is the room used for untargeted signals.
const DefaultGlobalRoom = "global_chatroom"

// LogScope selects how the message log is partitioned.
type LogScope string

const (
	// LogScopeGlobal stores every message under the global room key.
	LogScopeGlobal LogScope = "global"
	// LogScopeRoom stores every message under its own room id.
	LogScopeRoom LogScope = "room"
)

// DuplicatePolicy decides what happens when a second live connection claims
// an identity id that is already online.
type DuplicatePolicy string

const (
	// DuplicateAllow registers the new connection alongside the old one.
	DuplicateAllow DuplicatePolicy = "allow"
	// DuplicateReject refuses the new connection with ErrDuplicateIdentity.
	DuplicateReject DuplicatePolicy = "reject"
)

// ParseLogScope maps a config value onto a LogScope.
func ParseLogScope(value string) (LogScope, bool) {
	switch LogScope(strings.ToLower(strings.TrimSpace(value))) {
	case LogScopeGlobal:
		return LogScopeGlobal, true
	case LogScopeRoom:
		return LogScopeRoom, true
	}
	return "", false
}

// ParseDuplicatePolicy maps a config value onto a DuplicatePolicy.
func ParseDuplicatePolicy(value string) (DuplicatePolicy, bool) {
	switch DuplicatePolicy(strings.ToLower(strings.TrimSpace(value))) {
	case DuplicateAllow:
		return DuplicateAllow, true
	case DuplicateReject:
		return DuplicateReject, true
	}
	return "", false
}

// Settings tunes the lifecycle controller.
type Settings struct {
	GlobalRoom      string
	LogScope        LogScope
	DuplicatePolicy DuplicatePolicy
}

// DefaultSettings logs every message under the global room and allows
// several connections to share an identity id.
func DefaultSettings() Settings {
	return Settings{
		GlobalRoom:      DefaultGlobalRoom,
		LogScope:        LogScopeGlobal,
		DuplicatePolicy: DuplicateAllow,
	}
}

func (s Settings) sanitized() Settings {
	defaults := DefaultSettings()
	if strings.TrimSpace(s.GlobalRoom) == "" {
		s.GlobalRoom = defaults.GlobalRoom
	}
	if _, ok := ParseLogScope(string(s.LogScope)); !ok {
		s.LogScope = defaults.LogScope
	}
	if _, ok := ParseDuplicatePolicy(string(s.DuplicatePolicy)); !ok {
		s.DuplicatePolicy = defaults.DuplicatePolicy
	}
	return s
}

// Option customizes a Controller.
type Option func(*Controller)

// WithClock overrides the time source used to stamp messages.
func WithClock(now func() time.Time) Option {
	return func(c *Controller) { c.now = now }
}

// WithIDGenerator overrides how missing message ids are generated.
func WithIDGenerator(newID func() string) Option {
	return func(c *Controller) { c.newID = newID }
}

// Controller drives the lifecycle of every connection and owns the presence
// registry, room index, message log and router.
//
// Its mutating methods assume a single dispatching goroutine: events for all
// connections are handled one at a time. The stores it owns are safe for
// concurrent readers, which is how the REST views observe them.
type Controller struct {
	settings Settings
	registry *Registry
	rooms    *RoomIndex
	messages *MessageLog
	router   *Router
	logger   zerolog.Logger
	now      func() time.Time
	newID    func() string
}

// NewController builds a controller with fresh, empty state.
func NewController(settings Settings, logger zerolog.Logger, opts ...Option) *Controller {
	registry := NewRegistry()
	rooms := NewRoomIndex()

	c := &Controller{
		settings: settings.sanitized(),
		registry: registry,
		rooms:    rooms,
		messages: NewMessageLog(),
		router:   NewRouter(registry, rooms, logger),
		logger:   logger.With().Str("module", "chat.lifecycle").Logger(),
		now:      time.Now,
		newID:    func() string { return uuid.New().String() },
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Settings returns the sanitized settings in effect.
func (c *Controller) Settings() Settings { return c.settings }

// Registry exposes the presence registry for read-only views.
func (c *Controller) Registry() *Registry { return c.registry }

// Rooms exposes the room membership index for read-only views.
func (c *Controller) Rooms() *RoomIndex { return c.rooms }

// Messages exposes the message log for read-only views.
func (c *Controller) Messages() *MessageLog { return c.messages }

// IsActive reports whether conn has authenticated and not yet disconnected.
func (c *Controller) IsActive(conn Conn) bool {
	_, ok := c.registry.Lookup(conn)
	return ok
}

// Connect authenticates conn with the claimed identity. On success conn is
// Active, its arrival is announced to everyone else and it receives the
// active users snapshot. On failure nothing is registered.
func (c *Controller) Connect(conn Conn, candidate Identity) error {
	identity, err := ValidateIdentity(candidate)
	if err != nil {
		c.logger.Warn().Str("conn", conn.ID()).Err(err).Msg("connection rejected")
		return err
	}

	if c.settings.DuplicatePolicy == DuplicateReject && c.registry.HasIdentityID(identity.ID) {
		c.logger.Warn().Str("conn", conn.ID()).Str("user", identity.ID).Msg("duplicate identity rejected")
		return fmt.Errorf("%w: %s", ErrDuplicateIdentity, identity.ID)
	}

	c.registry.Register(conn, identity)
	c.logger.Info().
		Str("conn", conn.ID()).
		Str("user", identity.ID).
		Str("name", identity.Name).
		Int("online", c.registry.Len()).
		Msg("user connected")

	c.router.UserJoined(conn, identity)
	c.router.ActiveUsers(conn)
	return nil
}

// JoinRoom subscribes conn to room.
func (c *Controller) JoinRoom(conn Conn, room string) error {
	identity, err := c.active(conn)
	if err != nil {
		return err
	}
	room = strings.TrimSpace(room)
	if room == "" {
		return fmt.Errorf("%w: empty room id", ErrMalformedEvent)
	}

	c.rooms.Join(room, conn)
	c.logger.Info().Str("conn", conn.ID()).Str("user", identity.ID).Str("room", room).Msg("joined room")
	return nil
}

// LeaveRoom unsubscribes conn from room. Leaving a room that was never joined
// is a no-op.
func (c *Controller) LeaveRoom(conn Conn, room string) error {
	identity, err := c.active(conn)
	if err != nil {
		return err
	}
	room = strings.TrimSpace(room)
	if room == "" {
		return fmt.Errorf("%w: empty room id", ErrMalformedEvent)
	}

	if c.rooms.Leave(room, conn) {
		c.logger.Info().Str("conn", conn.ID()).Str("user", identity.ID).Str("room", room).Msg("left room")
	}
	return nil
}

// SendMessage appends the message to the log and relays it to the other
// members of the addressed room.
func (c *Controller) SendMessage(conn Conn, req SendMessageRequest) error {
	identity, err := c.active(conn)
	if err != nil {
		return err
	}
	room := req.Room()
	if room == "" {
		return fmt.Errorf("%w: sendMessage without room", ErrMalformedEvent)
	}
	if req.Message == nil {
		return fmt.Errorf("%w: sendMessage without message", ErrMalformedEvent)
	}

	msg := c.complete(*req.Message, identity)
	c.messages.Append(c.scopeFor(room), msg)
	delivery := c.router.NewMessage(conn, room, msg)

	c.logger.Debug().
		Str("conn", conn.ID()).
		Str("room", room).
		Str("message", msg.ID).
		Int("targets", delivery.Targets).
		Msg("message sent")
	return nil
}

// Typing relays a typing indicator to the addressed room, or to the global
// room when none is given.
func (c *Controller) Typing(conn Conn, req TypingRequest) error {
	identity, err := c.active(conn)
	if err != nil {
		return err
	}
	room := req.Room()
	if room == "" {
		room = c.settings.GlobalRoom
	}

	c.router.Typing(conn, room, TypingNotice{User: identity, IsTyping: req.IsTyping})
	return nil
}

// Disconnect closes conn: presence and memberships are removed first, then the
// departure is announced to everyone still connected. It reports whether this
// call performed the transition; repeated calls are no-ops.
func (c *Controller) Disconnect(conn Conn) bool {
	identity, registered := c.registry.Unregister(conn)
	rooms := c.rooms.RemoveEverywhere(conn)
	if !registered {
		return false
	}

	c.logger.Info().
		Str("conn", conn.ID()).
		Str("user", identity.ID).
		Strs("rooms", rooms).
		Int("online", c.registry.Len()).
		Msg("user disconnected")

	c.router.UserLeft(identity.ID)
	return true
}

// HandleEvent decodes one inbound frame from conn and dispatches it. Errors
// describe why the frame was dropped; they never affect other connections.
func (c *Controller) HandleEvent(conn Conn, raw []byte) error {
	env, err := DecodeEnvelope(raw)
	if err != nil {
		return err
	}

	switch env.Event {
	case EventJoinRoom:
		room, err := decodeRoomRef(env)
		if err != nil {
			return err
		}
		return c.JoinRoom(conn, room)

	case EventLeaveRoom:
		room, err := decodeRoomRef(env)
		if err != nil {
			return err
		}
		return c.LeaveRoom(conn, room)

	case EventSendMessage:
		var req SendMessageRequest
		if err := decodePayload(env, &req); err != nil {
			return err
		}
		return c.SendMessage(conn, req)

	case EventTyping:
		var req TypingRequest
		if err := decodePayload(env, &req); err != nil {
			return err
		}
		return c.Typing(conn, req)

	default:
		return fmt.Errorf("%w: %q", ErrUnknownEvent, env.Event)
	}
}

func (c *Controller) active(conn Conn) (Identity, error) {
	identity, ok := c.registry.Lookup(conn)
	if !ok {
		return Identity{}, ErrNotActive
	}
	return identity, nil
}

func (c *Controller) scopeFor(room string) string {
	if c.settings.LogScope == LogScopeRoom {
		return room
	}
	return c.settings.GlobalRoom
}

// complete fills the fields a client left out. The sender fields always come
// from the identity registered for the connection.
func (c *Controller) complete(msg Message, sender Identity) Message {
	if msg.ID == "" {
		msg.ID = c.newID()
	}
	msg.SenderID = sender.ID
	msg.Sender = &sender
	if msg.Timestamp == "" {
		msg.Timestamp = c.now().UTC().Format(time.RFC3339)
	}
	if msg.Status == "" {
		msg.Status = StatusSent
	}
	return msg
}

// decodeRoomRef accepts either a bare room id string or an object carrying
// chatId or roomId.
func decodeRoomRef(env Envelope) (string, error) {
	if len(env.Data) == 0 {
		return "", fmt.Errorf("%w: %s without room", ErrMalformedEvent, env.Event)
	}

	var room string
	if err := json.Unmarshal(env.Data, &room); err == nil {
		return room, nil
	}

	var ref struct {
		ChatID string `json:"chatId"`
		RoomID string `json:"roomId"`
	}
	if err := json.Unmarshal(env.Data, &ref); err != nil {
		return "", fmt.Errorf("%w: %s payload: %v", ErrMalformedEvent, env.Event, err)
	}
	if ref.ChatID != "" {
		return ref.ChatID, nil
	}
	return ref.RoomID, nil
}

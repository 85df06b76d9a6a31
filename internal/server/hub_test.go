package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Tyrowin/roomchat/internal/chat"
)

const eventTimeout = 2 * time.Second

func newTestHub(t *testing.T, settings chat.Settings) *Hub {
	t.Helper()

	hub := NewHub(chat.NewController(settings, zerolog.Nop()), zerolog.Nop())
	go hub.Run()
	t.Cleanup(func() { _ = hub.Shutdown(time.Second) })
	return hub
}

// connectClient registers a pump-less client and waits until it is active.
func connectClient(t *testing.T, hub *Hub, identity chat.Identity) *Client {
	t.Helper()

	client := NewClient(nil, hub, "test-"+identity.ID, *NewConfig())
	require.True(t, hub.Connect(client, identity))
	require.Eventually(t, func() bool {
		return client.State() == chat.StateActive
	}, eventTimeout, 5*time.Millisecond)
	return client
}

// nextEvent pops the next queued envelope, skipping events not named event.
func nextEvent(t *testing.T, client *Client, event string) chat.Envelope {
	t.Helper()

	timeout := time.After(eventTimeout)
	for {
		select {
		case raw, ok := <-client.GetSendChan():
			require.True(t, ok, "send channel closed while waiting for %q", event)
			env, err := chat.DecodeEnvelope(raw)
			require.NoError(t, err)
			if env.Event == event {
				return env
			}
		case <-timeout:
			t.Fatalf("timed out waiting for %q", event)
		}
	}
}

func frame(t *testing.T, event string, data any) []byte {
	t.Helper()
	raw, err := chat.EncodeEvent(event, data)
	require.NoError(t, err)
	return raw
}

func TestNewHub(t *testing.T) {
	hub := NewHub(chat.NewController(chat.DefaultSettings(), zerolog.Nop()), zerolog.Nop())

	require.NotNil(t, hub)
	assert.Equal(t, 0, hub.ClientCount())
}

func TestHubConnectAnnounces(t *testing.T) {
	hub := newTestHub(t, chat.DefaultSettings())

	alice := connectClient(t, hub, chat.Identity{ID: "u1", Name: "Alice"})
	env := nextEvent(t, alice, chat.EventActiveUsers)

	var users map[string]chat.Identity
	require.NoError(t, json.Unmarshal(env.Data, &users))
	assert.Equal(t, map[string]chat.Identity{"u1": {ID: "u1", Name: "Alice"}}, users)

	bob := connectClient(t, hub, chat.Identity{ID: "u2", Name: "Bob"})
	joined := nextEvent(t, alice, chat.EventUserJoined)

	var identity chat.Identity
	require.NoError(t, json.Unmarshal(joined.Data, &identity))
	assert.Equal(t, "u2", identity.ID)

	nextEvent(t, bob, chat.EventActiveUsers)
	assert.Equal(t, 2, hub.ClientCount())
}

func TestHubRejectsInvalidIdentity(t *testing.T) {
	hub := newTestHub(t, chat.DefaultSettings())

	client := NewClient(nil, hub, "test", *NewConfig())
	require.True(t, hub.Connect(client, chat.Identity{Name: "NoId"}))

	require.Eventually(t, func() bool {
		return client.State() == chat.StateRejected
	}, eventTimeout, 5*time.Millisecond)
	assert.Equal(t, 0, hub.ClientCount())
	assert.Equal(t, 0, hub.controller.Registry().Len())
}

func TestHubRoutesRoomMessages(t *testing.T) {
	hub := newTestHub(t, chat.DefaultSettings())

	alice := connectClient(t, hub, chat.Identity{ID: "u1", Name: "Alice"})
	bob := connectClient(t, hub, chat.Identity{ID: "u2", Name: "Bob"})

	hub.frame(bob, frame(t, chat.EventJoinRoom, "room1"))
	hub.frame(alice, frame(t, chat.EventJoinRoom, "room1"))
	hub.frame(alice, frame(t, chat.EventSendMessage, chat.SendMessageRequest{
		ChatID:  "room1",
		Message: &chat.Message{Content: "hi"},
	}))

	env := nextEvent(t, bob, chat.EventNewMessage)
	var msg chat.Message
	require.NoError(t, json.Unmarshal(env.Data, &msg))
	assert.Equal(t, "hi", msg.Content)
	assert.Equal(t, "u1", msg.SenderID)

	require.Eventually(t, func() bool {
		return hub.controller.Messages().Len(chat.DefaultGlobalRoom) == 1
	}, eventTimeout, 5*time.Millisecond)

	for len(alice.GetSendChan()) > 0 {
		raw := <-alice.GetSendChan()
		env, err := chat.DecodeEnvelope(raw)
		require.NoError(t, err)
		assert.NotEqual(t, chat.EventNewMessage, env.Event, "sender must not receive its own message")
	}
}

func TestHubDisconnect(t *testing.T) {
	hub := newTestHub(t, chat.DefaultSettings())

	alice := connectClient(t, hub, chat.Identity{ID: "u1", Name: "Alice"})
	bob := connectClient(t, hub, chat.Identity{ID: "u2", Name: "Bob"})

	hub.disconnect(alice)
	hub.disconnect(alice)

	left := nextEvent(t, bob, chat.EventUserLeft)
	var id string
	require.NoError(t, json.Unmarshal(left.Data, &id))
	assert.Equal(t, "u1", id)

	require.Eventually(t, func() bool {
		return alice.State() == chat.StateClosed
	}, eventTimeout, 5*time.Millisecond)
	assert.Equal(t, 1, hub.ClientCount())
	assert.Equal(t, ErrClientClosed, alice.Send([]byte("late")))

	// The second disconnect must not announce again: the next queued event
	// for bob is Carol's arrival.
	connectClient(t, hub, chat.Identity{ID: "u3", Name: "Carol"})
	require.Len(t, bob.GetSendChan(), 1)
	env, err := chat.DecodeEnvelope(<-bob.GetSendChan())
	require.NoError(t, err)
	assert.Equal(t, chat.EventUserJoined, env.Event)
}

func TestHubShutdown(t *testing.T) {
	hub := NewHub(chat.NewController(chat.DefaultSettings(), zerolog.Nop()), zerolog.Nop())
	go hub.Run()

	client := connectClient(t, hub, chat.Identity{ID: "u1", Name: "Alice"})

	require.NoError(t, hub.Shutdown(time.Second))
	assert.Equal(t, chat.StateClosed, client.State())
	assert.Equal(t, 0, hub.ClientCount())
	assert.Equal(t, 0, hub.controller.Registry().Len())
	assert.False(t, hub.Connect(NewClient(nil, hub, "late", *NewConfig()), chat.Identity{ID: "u2", Name: "Bob"}),
		"connect after shutdown must be refused")
}

func TestClientSendBufferFull(t *testing.T) {
	cfg := *NewConfig()
	cfg.SendBufferSize = 1
	client := NewClient(nil, nil, "test", cfg)

	require.NoError(t, client.Send([]byte("first")))
	assert.ErrorIs(t, client.Send([]byte("second")), ErrSendBufferFull)

	client.closeSend()
	client.closeSend()
	assert.ErrorIs(t, client.Send([]byte("third")), ErrClientClosed)
}

func TestNewClientDefaults(t *testing.T) {
	client := NewClient(nil, nil, "127.0.0.1:1234", Config{})

	assert.NotEmpty(t, client.ID())
	assert.Equal(t, chat.StateConnecting, client.State())
	assert.Equal(t, defaultSendBufferSize, cap(client.send))
	assert.Equal(t, int64(defaultMaxMessageSize), client.maxMessageSize)
	assert.NotEqual(t, client.ID(), NewClient(nil, nil, "127.0.0.1:1234", Config{}).ID())
}

func TestClientRateLimit(t *testing.T) {
	cfg := *NewConfig()
	cfg.RateLimit = RateLimitConfig{Burst: 2, RefillInterval: time.Hour}
	client := NewClient(nil, nil, "test", cfg)

	assert.True(t, client.checkRateLimit())
	assert.True(t, client.checkRateLimit())
	assert.False(t, client.checkRateLimit())
}

func TestHubShutdownRefusesQueuedConnects(t *testing.T) {
	hub := NewHub(chat.NewController(chat.DefaultSettings(), zerolog.Nop()), zerolog.Nop())

	pending := NewClient(nil, hub, "pending", *NewConfig())
	require.True(t, hub.Connect(pending, chat.Identity{ID: "u1", Name: "Alice"}))
	require.True(t, hub.frame(pending, frame(t, chat.EventJoinRoom, "room1")))

	hub.cancel()
	hub.drainPending()
	hub.wg.Wait()

	assert.Equal(t, chat.StateRejected, pending.State())
	assert.Empty(t, hub.events)
	assert.Equal(t, 0, hub.controller.Registry().Len())
	assert.False(t, hub.Connect(NewClient(nil, hub, "late", *NewConfig()), chat.Identity{ID: "u2", Name: "Bob"}))
}

func TestHubShutdownClosesQueuedSocket(t *testing.T) {
	hub := NewHub(chat.NewController(chat.DefaultSettings(), zerolog.Nop()), zerolog.Nop())
	queued := make(chan struct{})

	upgrader := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		hub.Connect(NewClient(conn, hub, r.RemoteAddr, *NewConfig()), chat.Identity{ID: "u1", Name: "Alice"})
		close(queued)
	}))
	t.Cleanup(ts.Close)

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(ts.URL, "http"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	select {
	case <-queued:
	case <-time.After(eventTimeout):
		t.Fatal("connect was never queued")
	}

	hub.cancel()
	hub.drainPending()
	hub.wg.Wait()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(eventTimeout)))
	_, _, err = conn.ReadMessage()
	var closeErr *websocket.CloseError
	require.ErrorAs(t, err, &closeErr)
	assert.Equal(t, websocket.ClosePolicyViolation, closeErr.Code)
}

// Package testhelpers provides common utilities shared by the chat server tests.
//
// It provides functions for building WebSocket URLs, dialing clients with a
// claimed identity, exchanging protocol envelopes and asserting HTTP responses,
// so that test files stay focused on behaviour.
package testhelpers

import (
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/Tyrowin/roomchat/internal/chat"
)

// TestOrigin is the Origin header sent by every helper-dialed client.
const TestOrigin = "http://localhost:8080"

// WebSocketURL turns an httptest server URL into the ws:// URL of the chat
// endpoint carrying the given identity as query parameters.
func WebSocketURL(t *testing.T, serverURL string, identity chat.Identity) string {
	t.Helper()

	u, err := url.Parse(serverURL)
	require.NoError(t, err)
	u.Scheme = strings.Replace(u.Scheme, "http", "ws", 1)
	u.Path = "/ws"

	q := url.Values{}
	if identity.ID != "" {
		q.Set("id", identity.ID)
	}
	if identity.Name != "" {
		q.Set("name", identity.Name)
	}
	if identity.Avatar != "" {
		q.Set("avatar", identity.Avatar)
	}
	u.RawQuery = q.Encode()
	return u.String()
}

// Dial opens a WebSocket connection to rawURL with the test origin. The HTTP
// response is returned as well so refused handshakes can be inspected; its
// body is already closed.
func Dial(rawURL string) (*websocket.Conn, *http.Response, error) {
	dialer := websocket.Dialer{
		HandshakeTimeout: 5 * time.Second,
	}

	headers := http.Header{}
	headers.Set("Origin", TestOrigin)

	conn, resp, err := dialer.Dial(rawURL, headers)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	return conn, resp, err
}

// Connect dials the chat endpoint as identity, fails the test on error and
// registers cleanup.
func Connect(t *testing.T, serverURL string, identity chat.Identity) *websocket.Conn {
	t.Helper()

	conn, _, err := Dial(WebSocketURL(t, serverURL, identity))
	require.NoError(t, err, "dial as %s", identity.ID)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

// SendEvent writes one protocol envelope.
func SendEvent(conn *websocket.Conn, event string, data any) error {
	raw, err := chat.EncodeEvent(event, data)
	if err != nil {
		return err
	}
	return conn.WriteMessage(websocket.TextMessage, raw)
}

// ReadEvent reads the next envelope, waiting at most timeout.
func ReadEvent(conn *websocket.Conn, timeout time.Duration) (chat.Envelope, error) {
	if err := conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
		return chat.Envelope{}, err
	}
	var env chat.Envelope
	_, raw, err := conn.ReadMessage()
	if err != nil {
		return chat.Envelope{}, err
	}
	err = json.Unmarshal(raw, &env)
	return env, err
}

// ReadEventNamed reads envelopes until one named event arrives, discarding
// others. It fails the test when none arrives within timeout.
func ReadEventNamed(t *testing.T, conn *websocket.Conn, event string, timeout time.Duration) chat.Envelope {
	t.Helper()

	deadline := time.Now().Add(timeout)
	for {
		remaining := time.Until(deadline)
		require.Positive(t, remaining, "timed out waiting for %q", event)

		env, err := ReadEvent(conn, remaining)
		require.NoError(t, err, "waiting for %q", event)
		if env.Event == event {
			return env
		}
	}
}

// ExpectNoEvent asserts that no envelope named event arrives within timeout.
// Other events are discarded. A read timeout leaves the connection unusable
// for further reads, so call it last on a connection.
func ExpectNoEvent(t *testing.T, conn *websocket.Conn, event string, timeout time.Duration) {
	t.Helper()

	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		env, err := ReadEvent(conn, time.Until(deadline))
		if err != nil {
			if IsTimeout(err) {
				return
			}
			t.Fatalf("unexpected read error while expecting no %q: %v", event, err)
		}
		if env.Event == event {
			t.Fatalf("unexpected %q event: %s", event, string(env.Data))
		}
	}
}

// DecodeData unmarshals an envelope payload.
func DecodeData[T any](t *testing.T, env chat.Envelope) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(env.Data, &v), "decode %q payload", env.Event)
	return v
}

// IsTimeout reports whether err is a network timeout.
func IsTimeout(err error) bool {
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// CloseWebSocket gracefully closes a WebSocket connection.
func CloseWebSocket(conn *websocket.Conn) error {
	err := conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	if err != nil {
		return err
	}
	return conn.Close()
}

// MakeRequest creates and executes an HTTP request, returning the response.
// It includes a 5-second timeout and fails the test if the request cannot be
// created or executed successfully.
func MakeRequest(t *testing.T, method, rawURL string) *http.Response {
	t.Helper()

	client := &http.Client{
		Timeout: 5 * time.Second,
	}

	req, err := http.NewRequest(method, rawURL, http.NoBody)
	require.NoError(t, err)

	resp, err := client.Do(req)
	require.NoError(t, err)
	return resp
}

// GetJSON performs a GET request and decodes the JSON body into T.
func GetJSON[T any](t *testing.T, rawURL string) T {
	t.Helper()

	resp := MakeRequest(t, http.MethodGet, rawURL)
	defer func() { _ = resp.Body.Close() }()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "application/json", resp.Header.Get("Content-Type"))

	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

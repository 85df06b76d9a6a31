// Package server exposes HTTP handlers, including WebSocket upgrades, health
// checks, the read-only REST views and the built-in test page.
package server

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/Tyrowin/roomchat/internal/chat"
)

const healthMessage = "Chat server is running!"

type errorResponse struct {
	Error string `json:"error"`
}

// StatsResponse is the body of GET /api/stats.
type StatsResponse struct {
	Connections int `json:"connections"`
	OnlineUsers int `json:"onlineUsers"`
	Rooms       int `json:"rooms"`
	Memberships int `json:"memberships"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func methodNotAllowed(w http.ResponseWriter, _ *http.Request) {
	http.Error(w, "Method not allowed.", http.StatusMethodNotAllowed)
}

// identityFromRequest reads the identity claimed at handshake, either as a
// JSON "user" query parameter or as separate id, name and avatar parameters.
func identityFromRequest(r *http.Request) (chat.Identity, error) {
	q := r.URL.Query()
	if raw := q.Get("user"); raw != "" {
		return chat.ParseIdentity([]byte(raw))
	}
	return chat.ValidateIdentity(chat.Identity{
		ID:     q.Get("id"),
		Name:   q.Get("name"),
		Avatar: q.Get("avatar"),
	})
}

// WebSocketHandler validates the claimed identity, upgrades the connection and
// hands the new client to the hub. Invalid identities are refused with 401
// before any upgrade happens.
func (s *Server) WebSocketHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed. WebSocket endpoint only accepts GET requests.", http.StatusMethodNotAllowed)
		return
	}

	identity, err := identityFromRequest(r)
	if err != nil {
		s.logger.Warn().Str("addr", r.RemoteAddr).Err(err).Msg("refusing connection with invalid identity")
		writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "Invalid user details"})
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn().Str("addr", r.RemoteAddr).Err(err).Msg("WebSocket upgrade failed")
		return
	}

	client := NewClient(conn, s.hub, r.RemoteAddr, s.cfg)
	if !s.hub.Connect(client, identity) {
		client.reject(errHubShuttingDown)
	}
}

// MessagesHandler serves the message history stored under the chatId scope.
func (s *Server) MessagesHandler(w http.ResponseWriter, r *http.Request) {
	chatID := chi.URLParam(r, "chatId")
	writeJSON(w, http.StatusOK, s.controller.Messages().Read(chatID))
}

// UsersHandler serves the online identities keyed by identity id.
func (s *Server) UsersHandler(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.controller.Registry().Snapshot())
}

// StatsHandler serves connection and room counters.
func (s *Server) StatsHandler(w http.ResponseWriter, _ *http.Request) {
	rooms, memberships := s.controller.Rooms().Stats()
	writeJSON(w, http.StatusOK, StatsResponse{
		Connections: s.controller.Registry().Len(),
		OnlineUsers: len(s.controller.Registry().Snapshot()),
		Rooms:       rooms,
		Memberships: memberships,
	})
}

// HealthHandler provides a simple health check endpoint that returns server status.
// It responds with a plain text message indicating the server is running.
func HealthHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	_, _ = fmt.Fprint(w, healthMessage)
}

// TestPageHandler serves an HTML page for trying the chat protocol by hand.
func TestPageHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/html")
	_, _ = fmt.Fprint(w, testPageHTML)
}

const testPageHTML = `<!DOCTYPE html>
<html>
<head>
    <title>Chat WebSocket Test</title>
    <style>
        body { font-family: Arial, sans-serif; margin: 20px; }
        #log {
            border: 1px solid #ccc;
            height: 300px;
            padding: 10px;
            overflow-y: scroll;
            margin: 10px 0;
            background-color: #f9f9f9;
        }
        input[type="text"] { width: 160px; padding: 5px; margin-right: 6px; }
        button { padding: 5px 15px; background-color: #007cba; color: white; border: none; cursor: pointer; }
        button:hover { background-color: #005a87; }
        .status { margin: 10px 0; padding: 5px; border-radius: 3px; }
        .connected { background-color: #d4edda; color: #155724; }
        .disconnected { background-color: #f8d7da; color: #721c24; }
    </style>
</head>
<body>
    <h1>Chat WebSocket Test</h1>
    <div id="status" class="status disconnected">Disconnected</div>
    <div>
        <input type="text" id="userId" placeholder="user id">
        <input type="text" id="userName" placeholder="name">
        <button onclick="toggleConnection()" id="connectButton">Connect</button>
    </div>
    <div>
        <input type="text" id="room" placeholder="room" value="global_chatroom">
        <button onclick="joinRoom()">Join</button>
        <input type="text" id="content" placeholder="Type a message...">
        <button onclick="sendMessage()">Send</button>
    </div>
    <div id="log"></div>
    <script>
        let ws = null;
        const logDiv = document.getElementById('log');
        const statusDiv = document.getElementById('status');

        function addLine(text, color) {
            const line = document.createElement('div');
            line.style.color = color || 'gray';
            line.textContent = text;
            logDiv.appendChild(line);
            logDiv.scrollTop = logDiv.scrollHeight;
        }

        function emit(event, data) {
            if (ws && ws.readyState === WebSocket.OPEN) {
                ws.send(JSON.stringify({ event: event, data: data }));
            }
        }

        function toggleConnection() {
            if (ws && ws.readyState === WebSocket.OPEN) {
                ws.close();
                return;
            }
            const id = encodeURIComponent(document.getElementById('userId').value);
            const name = encodeURIComponent(document.getElementById('userName').value);
            ws = new WebSocket('ws://' + location.host + '/ws?id=' + id + '&name=' + name);
            ws.onopen = function() {
                statusDiv.textContent = 'Connected';
                statusDiv.className = 'status connected';
                document.getElementById('connectButton').textContent = 'Disconnect';
            };
            ws.onmessage = function(e) { addLine(e.data, 'green'); };
            ws.onclose = function(e) {
                addLine('Connection closed ' + (e.reason || ''));
                statusDiv.textContent = 'Disconnected';
                statusDiv.className = 'status disconnected';
                document.getElementById('connectButton').textContent = 'Connect';
                ws = null;
            };
        }

        function joinRoom() {
            emit('joinRoom', document.getElementById('room').value);
        }

        function sendMessage() {
            const input = document.getElementById('content');
            const room = document.getElementById('room').value;
            emit('sendMessage', { chatId: room, message: { content: input.value } });
            addLine('You: ' + input.value, 'blue');
            input.value = '';
        }

        document.getElementById('content').addEventListener('input', function() {
            emit('typing', { chatId: document.getElementById('room').value, isTyping: this.value !== '' });
        });
    </script>
</body>
</html>`

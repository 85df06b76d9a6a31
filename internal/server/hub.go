// Package server coordinates connection lifecycle events for the chat core
// through a single dispatch loop owned by the Hub type.
package server

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/Tyrowin/roomchat/internal/chat"
)

const hubQueueSize = 256

// Hub feeds connect, frame and disconnect events from every client into the
// chat controller one at a time. All controller mutations happen on the
// goroutine running Run.
type Hub struct {
	controller *chat.Controller
	events     chan hubEvent
	clients    map[*Client]struct{}
	mutex      sync.RWMutex
	submitMu   sync.RWMutex
	stopped    bool
	wg         sync.WaitGroup
	ctx        context.Context
	cancel     context.CancelFunc
	done       chan struct{}
	logger     zerolog.Logger
}

// NewHub creates a hub dispatching into controller. Run must be started
// before any client connects.
func NewHub(controller *chat.Controller, logger zerolog.Logger) *Hub {
	ctx, cancel := context.WithCancel(context.Background())
	return &Hub{
		controller: controller,
		events:     make(chan hubEvent, hubQueueSize),
		clients:    make(map[*Client]struct{}),
		ctx:        ctx,
		cancel:     cancel,
		done:       make(chan struct{}),
		logger:     logger.With().Str("module", "server.hub").Logger(),
	}
}

// Connect queues the authentication of client with the claimed identity. It
// returns false when the hub is shutting down.
func (h *Hub) Connect(client *Client, identity chat.Identity) bool {
	return h.submit(hubEvent{kind: connectEvent, client: client, identity: identity})
}

func (h *Hub) frame(client *Client, payload []byte) bool {
	return h.submit(hubEvent{kind: frameEvent, client: client, payload: payload})
}

func (h *Hub) disconnect(client *Client) bool {
	return h.submit(hubEvent{kind: disconnectEvent, client: client})
}

func (h *Hub) submit(ev hubEvent) bool {
	h.submitMu.RLock()
	defer h.submitMu.RUnlock()

	if h.stopped {
		return false
	}

	select {
	case h.events <- ev:
		return true
	case <-h.ctx.Done():
		return false
	}
}

// ClientCount returns the number of clients whose pumps are running.
func (h *Hub) ClientCount() int {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return len(h.clients)
}

// Run starts the hub's dispatch loop. It returns once Shutdown is called.
func (h *Hub) Run() {
	defer close(h.done)

	for {
		select {
		case <-h.ctx.Done():
			h.drainPending()
			h.shutdownClients()
			return

		case ev := <-h.events:
			h.dispatch(ev)
		}
	}
}

func (h *Hub) dispatch(ev hubEvent) {
	if ev.client == nil {
		h.logger.Warn().Stringer("kind", ev.kind).Msg("received event without client; skipping")
		return
	}

	switch ev.kind {
	case connectEvent:
		h.handleConnect(ev.client, ev.identity)
	case frameEvent:
		h.handleFrame(ev.client, ev.payload)
	case disconnectEvent:
		h.handleDisconnect(ev.client)
	}
}

func (h *Hub) handleConnect(client *Client, identity chat.Identity) {
	if err := h.controller.Connect(client, identity); err != nil {
		client.setState(chat.StateRejected)
		go client.reject(err)
		return
	}

	h.mutex.Lock()
	h.clients[client] = struct{}{}
	clientCount := len(h.clients)
	h.mutex.Unlock()

	client.setState(chat.StateActive)
	h.logger.Info().Str("conn", client.id).Str("addr", client.addr).Int("clients", clientCount).Msg("client registered")

	if client.conn == nil {
		return
	}
	h.wg.Add(2)
	go func() {
		defer h.wg.Done()
		client.writePump()
	}()
	go func() {
		defer h.wg.Done()
		client.readPump()
	}()
}

func (h *Hub) handleFrame(client *Client, payload []byte) {
	err := h.controller.HandleEvent(client, payload)
	switch {
	case err == nil:
	case errors.Is(err, chat.ErrNotActive):
		h.logger.Debug().Str("conn", client.id).Msg("dropping frame from inactive connection")
	default:
		h.logger.Warn().Str("conn", client.id).Err(err).Msg("dropping frame")
	}
}

func (h *Hub) handleDisconnect(client *Client) {
	h.mutex.Lock()
	_, ok := h.clients[client]
	delete(h.clients, client)
	clientCount := len(h.clients)
	h.mutex.Unlock()

	// Cleanup and the departure broadcast complete before the client's queue is closed.
	h.controller.Disconnect(client)
	if !ok {
		return
	}

	client.setState(chat.StateClosed)
	client.closeSend()
	h.logger.Info().Str("conn", client.id).Str("addr", client.addr).Int("clients", clientCount).Msg("client unregistered")
}

// drainPending empties the event queue after shutdown began. Queued connects
// hold upgraded sockets that never reached the controller; they are refused.
func (h *Hub) drainPending() {
	// Blocked submitters see the cancelled context and release the lock.
	h.submitMu.Lock()
	h.stopped = true
	h.submitMu.Unlock()

	for {
		select {
		case ev := <-h.events:
			if ev.kind != connectEvent || ev.client == nil {
				continue
			}
			client := ev.client
			client.setState(chat.StateRejected)
			h.wg.Add(1)
			go func() {
				defer h.wg.Done()
				client.reject(errHubShuttingDown)
			}()
		default:
			return
		}
	}
}

// shutdownClients closes every client connection and clears their state.
func (h *Hub) shutdownClients() {
	h.logger.Info().Msg("shutting down all client connections")

	h.mutex.Lock()
	clients := make([]*Client, 0, len(h.clients))
	for client := range h.clients {
		clients = append(clients, client)
	}
	h.clients = make(map[*Client]struct{})
	h.mutex.Unlock()

	for _, client := range clients {
		h.controller.Disconnect(client)
		client.setState(chat.StateClosed)
		client.closeSend()
		client.closeConn()
	}

	h.logger.Info().Int("closed", len(clients)).Msg("closed client connections")
}

// Shutdown initiates graceful shutdown of the hub and waits for all goroutines to complete.
// It returns after all client connections are closed and goroutines have finished,
// or when the timeout is reached.
func (h *Hub) Shutdown(timeout time.Duration) error {
	h.logger.Info().Msg("initiating hub shutdown")

	h.cancel()
	<-h.done

	done := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		h.logger.Info().Msg("hub shutdown completed")
		return nil
	case <-time.After(timeout):
		h.logger.Warn().Msg("hub shutdown timeout reached, some goroutines may still be running")
		return context.DeadlineExceeded
	}
}

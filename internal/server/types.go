// Package server defines the events that flow from clients into the hub's
// dispatch loop and shared transport helpers.
package server

import (
	"errors"
	"strings"

	"github.com/Tyrowin/roomchat/internal/chat"
)

var (
	// ErrSendBufferFull is returned by Client.Send when the outbound queue is full.
	ErrSendBufferFull = errors.New("client send buffer full")
	// ErrClientClosed is returned by Client.Send after the client was closed.
	ErrClientClosed = errors.New("client closed")

	errHubShuttingDown = errors.New("server shutting down")
)

type hubEventKind int

const (
	connectEvent hubEventKind = iota
	frameEvent
	disconnectEvent
)

func (k hubEventKind) String() string {
	switch k {
	case connectEvent:
		return "connect"
	case frameEvent:
		return "frame"
	case disconnectEvent:
		return "disconnect"
	default:
		return "unknown"
	}
}

// hubEvent is one unit of work for the dispatch loop.
type hubEvent struct {
	kind     hubEventKind
	client   *Client
	identity chat.Identity
	payload  []byte
}

// isExpectedCloseError checks if an error is expected during connection closure.
func isExpectedCloseError(err error) bool {
	if err == nil {
		return true
	}
	errStr := err.Error()
	return strings.Contains(errStr, "use of closed network connection") ||
		strings.Contains(errStr, "websocket: close sent") ||
		strings.Contains(errStr, "broken pipe")
}

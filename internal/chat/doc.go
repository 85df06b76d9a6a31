// Package chat implements the presence-and-broadcast core of the chat server.
//
// It tracks which identities are online (Registry), which connections are
// subscribed to which rooms (RoomIndex), keeps the in-memory message history
// (MessageLog), computes fan-out targets for outbound events (Router) and drives
// the per-connection lifecycle (Controller). The package knows nothing about
// WebSockets; transports plug in through the Conn interface.
package chat

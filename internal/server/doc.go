// Package server implements the HTTP and WebSocket transport around the chat core.
//
// The implementation is organized into specialized files for configuration,
// logging, the dispatch hub, clients, origin checks, routing, and HTTP
// handlers. A Server value owns all state; nothing lives in package globals,
// so tests can run any number of independent servers side by side.
package server

// Package server assembles the chat core, the dispatch hub and the HTTP
// surface into one runnable Server.
package server

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/Tyrowin/roomchat/internal/chat"
)

// Server owns every piece of process state: the chat controller and its
// stores, the hub dispatching into it, and the HTTP routes reading from it.
type Server struct {
	cfg        Config
	logger     zerolog.Logger
	controller *chat.Controller
	hub        *Hub
	origins    *originPolicy
	upgrader   websocket.Upgrader
	router     chi.Router
	httpServer *http.Server
}

// New builds a server from cfg. Call Start to launch the hub before serving.
func New(cfg *Config, logger zerolog.Logger, opts ...chat.Option) *Server {
	if cfg == nil {
		cfg = NewConfig()
	}
	sanitized := cfg.sanitized()

	controller := chat.NewController(sanitized.Chat, logger, opts...)
	origins := newOriginPolicy(sanitized.AllowedOrigins, logger.With().Str("module", "server.origin").Logger())

	s := &Server{
		cfg:        sanitized,
		logger:     logger.With().Str("module", "server").Logger(),
		controller: controller,
		hub:        NewHub(controller, logger),
		origins:    origins,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     origins.checkOrigin,
		},
	}
	s.router = s.routes()
	s.httpServer = CreateServer(sanitized.Port, s.router)
	return s
}

// Config returns the sanitized configuration in effect.
func (s *Server) Config() Config { return s.cfg }

// Controller returns the chat lifecycle controller.
func (s *Server) Controller() *chat.Controller { return s.controller }

// Hub returns the dispatch hub.
func (s *Server) Hub() *Hub { return s.hub }

// Handler returns the HTTP handler serving the REST views and the WebSocket endpoint.
func (s *Server) Handler() http.Handler { return s.router }

// HTTPServer returns the underlying http.Server.
func (s *Server) HTTPServer() *http.Server { return s.httpServer }

// Start launches the hub's dispatch loop.
func (s *Server) Start() {
	go s.hub.Run()
	s.logger.Info().
		Str("globalRoom", s.cfg.Chat.GlobalRoom).
		Str("logScope", string(s.cfg.Chat.LogScope)).
		Str("duplicatePolicy", string(s.cfg.Chat.DuplicatePolicy)).
		Msg("hub started and ready to manage WebSocket connections")
}

// ListenAndServe starts the hub and serves HTTP until the server is shut down.
func (s *Server) ListenAndServe() error {
	s.Start()
	err := StartServer(s.httpServer, s.logger)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown stops accepting HTTP requests, then closes every client and stops the hub.
func (s *Server) Shutdown(ctx context.Context) error {
	timeout := s.cfg.ShutdownTimeout
	if deadline, ok := ctx.Deadline(); ok {
		timeout = timeUntil(deadline)
	}

	httpErr := ShutdownServer(ctx, s.httpServer, s.logger)
	hubErr := s.hub.Shutdown(timeout)
	return errors.Join(httpErr, hubErr)
}

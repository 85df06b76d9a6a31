// Package server wires HTTP handlers into a chi router.
package server

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// routes configures the application routes: health check, REST views over
// the chat state, the WebSocket endpoint and the test page.
func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(s.origins.corsMiddleware())
	r.MethodNotAllowed(methodNotAllowed)

	r.HandleFunc("/", HealthHandler)
	r.Get("/ws", s.WebSocketHandler)
	r.Get("/test", TestPageHandler)

	r.Route("/api", func(r chi.Router) {
		r.Get("/messages/{chatId}", s.MessagesHandler)
		r.Get("/users", s.UsersHandler)
		r.Get("/stats", s.StatsHandler)
	})

	return r
}

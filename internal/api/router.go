package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.corsMiddleware)
	r.Use(s.bodySizeLimitMiddleware)

	// API v1 routes
	r.Route("/api/v1", func(r chi.Router) {
		// Health check (no auth required)
		r.Get("/health", s.handleHealth)

		// Protected routes
		r.Group(func(r chi.Router) {
			r.Use(s.authMiddleware)

			// Discovery and pairing
			r.Post("/discovery", s.handleDiscover)
			r.Post("/pairing", s.handlePair)

			// Persisted pairings
			r.Route("/bridges", func(r chi.Router) {
				r.Get("/", s.handleListBridges)
				r.Get("/{id}", s.handleGetBridge)
			})

			// Session lifecycle
			r.Route("/session", func(r chi.Router) {
				r.Get("/", s.handleGetSession)
				r.Delete("/", s.handleDeleteSession)
			})

			// Device reachability
			r.Route("/devices", func(r chi.Router) {
				r.Get("/status", s.handleAllStatuses)
				r.Get("/{id}/status", s.handleDeviceStatus)
			})

			// Bridge resources
			r.Route("/resources", func(r chi.Router) {
				r.Route("/{type}", func(r chi.Router) {
					r.Get("/", s.handleListResources)
					r.Route("/{id}", func(r chi.Router) {
						r.Get("/", s.handleGetResource)
						r.Put("/", s.handleWriteResource)
						r.Delete("/", s.handleDeleteResource)
					})
				})
			})

			// Group writes
			r.Put("/groups/{id}", s.handleWriteGroup)

			// WebSocket feed (auth via bearer header or token query param)
			r.Get("/ws", s.handleWebSocket)
		})
	})

	return r
}

// handleHealth returns the server health status.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	paired := s.gateway.CurrentSession() != nil
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"version": s.version,
		"paired":  paired,
	})
}

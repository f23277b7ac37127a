package api

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/lumen-core/internal/bridge"
)

// handleListBridges returns every persisted pairing, most recently seen
// first. Credentials marshal without their keys, so the response is safe
// to expose.
func (s *Server) handleListBridges(w http.ResponseWriter, r *http.Request) {
	if s.bridges == nil {
		writeError(w, http.StatusServiceUnavailable, ErrCodeInternal, "pairing store is not configured")
		return
	}

	all, err := s.bridges.List(r.Context())
	if err != nil {
		s.logger.Error("listing paired bridges", "error", err)
		writeInternalError(w, "could not list paired bridges")
		return
	}
	if all == nil {
		all = []bridge.Credentials{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"bridges": all})
}

// handleGetBridge returns one persisted pairing by bridge id.
func (s *Server) handleGetBridge(w http.ResponseWriter, r *http.Request) {
	if s.bridges == nil {
		writeError(w, http.StatusServiceUnavailable, ErrCodeInternal, "pairing store is not configured")
		return
	}

	id := chi.URLParam(r, "id")
	creds, err := s.bridges.Get(r.Context(), id)
	if errors.Is(err, bridge.ErrNoCredentials) {
		writeNotFound(w, "no pairing for bridge "+id)
		return
	}
	if err != nil {
		s.logger.Error("reading paired bridge", "bridge", id, "error", err)
		writeInternalError(w, "could not read paired bridge")
		return
	}
	writeJSON(w, http.StatusOK, creds)
}

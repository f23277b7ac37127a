package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/nerrad567/lumen-core/internal/bridge"
	"github.com/nerrad567/lumen-core/internal/discovery"
)

// discoveryResponse is the result of one discovery session.
type discoveryResponse struct {
	Bridges  []discovery.Bridge `json:"bridges"`
	Duration string             `json:"duration"`
}

// pairRequest names the confirmed bridge to pair with. Address and ID
// normally come straight from a discovery response.
type pairRequest struct {
	ID      string `json:"id"`
	Address string `json:"address"`
	Port    int    `json:"port,omitempty"`
	Name    string `json:"name,omitempty"`
	Model   string `json:"model,omitempty"`
}

// pairResponse confirms a successful pairing. Keys are never included.
type pairResponse struct {
	BridgeID string `json:"bridge_id"`
	Address  string `json:"address"`
	Name     string `json:"name,omitempty"`
	PairedAt string `json:"paired_at"`
}

// handleDiscover runs one discovery session and returns the confirmed
// bridges. The session honours its configured ceiling; the request
// blocks until the session completes.
func (s *Server) handleDiscover(w http.ResponseWriter, r *http.Request) {
	if s.disco == nil {
		writeError(w, http.StatusServiceUnavailable, ErrCodeInternal, "discovery is not configured")
		return
	}

	start := time.Now()
	bridges, err := s.disco.Discover(r.Context())
	if err != nil {
		s.logger.Error("discovery session failed", "error", err)
		writeInternalError(w, "discovery session failed")
		return
	}

	if bridges == nil {
		bridges = []discovery.Bridge{}
	}
	writeJSON(w, http.StatusOK, discoveryResponse{
		Bridges:  bridges,
		Duration: time.Since(start).Round(time.Millisecond).String(),
	})
}

// handlePair exchanges a pairing request with the named bridge. The
// bridge requires its physical link button pressed within the pairing
// window; until then the response is 409 with the link button code.
func (s *Server) handlePair(w http.ResponseWriter, r *http.Request) {
	if s.pairing == nil {
		writeError(w, http.StatusServiceUnavailable, ErrCodeInternal, "pairing is not configured")
		return
	}

	var req pairRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid request body")
		return
	}
	if req.ID == "" || req.Address == "" {
		writeBadRequest(w, "id and address are required")
		return
	}

	creds, err := s.pairing.Pair(r.Context(), discovery.Bridge{
		ID:      req.ID,
		Address: req.Address,
		Port:    req.Port,
		Name:    req.Name,
		Model:   req.Model,
	})
	if err != nil {
		if errors.Is(err, bridge.ErrLinkButtonNotPressed) {
			s.logger.Info("pairing waiting on link button", "bridge", req.ID)
		} else {
			s.logger.Error("pairing failed", "bridge", req.ID, "error", err)
		}
		writeBridgeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, pairResponse{
		BridgeID: creds.BridgeID,
		Address:  creds.Address,
		Name:     creds.Name,
		PairedAt: creds.PairedAt.UTC().Format(time.RFC3339),
	})
}

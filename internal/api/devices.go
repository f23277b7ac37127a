package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/lumen-core/internal/bridge"
)

// handleAllStatuses returns the reachability snapshot for every observed
// device.
func (s *Server) handleAllStatuses(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.status.All())
}

// handleDeviceStatus returns the reachability state of one device.
// Unobserved devices report "unknown" rather than 404; absence of signal
// is itself a state.
func (s *Server) handleDeviceStatus(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	writeJSON(w, http.StatusOK, map[string]any{
		"device_id": id,
		"state":     s.status.Get(id),
	})
}

// handleListResources proxies a resource collection read to the bridge.
func (s *Server) handleListResources(w http.ResponseWriter, r *http.Request) {
	resourceType := chi.URLParam(r, "type")
	resp, err := s.gateway.Get(r.Context(), "/"+resourceType)
	if err != nil {
		writeBridgeError(w, err)
		return
	}
	writeResourceResponse(w, resp)
}

// handleGetResource proxies a single-resource read to the bridge.
func (s *Server) handleGetResource(w http.ResponseWriter, r *http.Request) {
	resourceType := chi.URLParam(r, "type")
	id := chi.URLParam(r, "id")
	resp, err := s.gateway.Get(r.Context(), "/"+resourceType+"/"+id)
	if err != nil {
		writeBridgeError(w, err)
		return
	}
	writeResourceResponse(w, resp)
}

// handleWriteResource dispatches a state change to one device. The body
// is forwarded to the bridge unmodified.
func (s *Server) handleWriteResource(w http.ResponseWriter, r *http.Request) {
	resourceType := chi.URLParam(r, "type")
	id := chi.URLParam(r, "id")

	var body json.RawMessage
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeBadRequest(w, "invalid request body")
		return
	}

	resp, err := s.gateway.WriteDevice(r.Context(), resourceType, id, body)
	if err != nil {
		writeBridgeError(w, err)
		return
	}
	s.status.RecordWriteResult(id, resourceErrorDescriptions(resp))
	writeResourceResponse(w, resp)
}

// handleWriteGroup dispatches a state change to a device group. Group
// responses carry no per-device identity, so the tracker is not fed here.
func (s *Server) handleWriteGroup(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var body json.RawMessage
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeBadRequest(w, "invalid request body")
		return
	}

	resp, err := s.gateway.WriteGroup(r.Context(), id, body)
	if err != nil {
		writeBridgeError(w, err)
		return
	}
	writeResourceResponse(w, resp)
}

// handleDeleteResource proxies a resource deletion to the bridge.
func (s *Server) handleDeleteResource(w http.ResponseWriter, r *http.Request) {
	resourceType := chi.URLParam(r, "type")
	id := chi.URLParam(r, "id")
	resp, err := s.gateway.Delete(r.Context(), "/"+resourceType+"/"+id)
	if err != nil {
		writeBridgeError(w, err)
		return
	}
	writeResourceResponse(w, resp)
}

// resourceErrorDescriptions flattens resource-level bridge errors into
// the description strings the status tracker interprets.
func resourceErrorDescriptions(resp *bridge.APIResponse) []string {
	if resp == nil || len(resp.Errors) == 0 {
		return nil
	}
	descriptions := make([]string, 0, len(resp.Errors))
	for _, e := range resp.Errors {
		descriptions = append(descriptions, e.Description)
	}
	return descriptions
}

// writeResourceResponse forwards a bridge response body. Resource-level
// errors ride alongside data in the same document, mirroring the
// bridge's own envelope.
func writeResourceResponse(w http.ResponseWriter, resp *bridge.APIResponse) {
	if resp == nil {
		writeJSON(w, http.StatusOK, map[string]any{})
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

package api

import "net/http"

// handleGetSession returns the active bridge session. Application and
// client keys never appear in the response.
func (s *Server) handleGetSession(w http.ResponseWriter, _ *http.Request) {
	session := s.gateway.CurrentSession()
	if session == nil {
		writeNotFound(w, "no active session")
		return
	}
	writeJSON(w, http.StatusOK, session)
}

// handleDeleteSession discards the active session. Stored credentials
// are left intact; the session can be resumed on restart.
func (s *Server) handleDeleteSession(w http.ResponseWriter, _ *http.Request) {
	s.gateway.SignOut()
	writeJSON(w, http.StatusOK, map[string]string{"status": "signed_out"})
}

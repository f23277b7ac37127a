package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/nerrad567/lumen-core/internal/bridge"
)

// Error represents a structured error response.
type Error struct {
	Status  int    `json:"status"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Common error codes.
const (
	ErrCodeBadRequest      = "bad_request"
	ErrCodeNotFound        = "not_found"
	ErrCodeUnauthorized    = "unauthorised"
	ErrCodeInternal        = "internal_error"
	ErrCodeNotPaired       = "not_paired"
	ErrCodeLinkButton      = "link_button_not_pressed"
	ErrCodeRateLimited     = "rate_limited"
	ErrCodeCapacity        = "capacity_exceeded"
	ErrCodeBridgeRejected  = "bridge_rejected"
	ErrCodeBridgeUntrusted = "bridge_untrusted"
)

// writeJSON writes a JSON response with the given status code and payload.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		//nolint:errcheck // Best-effort write to response; connection may be closed
		json.NewEncoder(w).Encode(v)
	}
}

// writeError writes a structured error response.
func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, Error{
		Status:  status,
		Code:    code,
		Message: message,
	})
}

// writeBadRequest writes a 400 error response.
func writeBadRequest(w http.ResponseWriter, message string) {
	writeError(w, http.StatusBadRequest, ErrCodeBadRequest, message)
}

// writeNotFound writes a 404 error response.
func writeNotFound(w http.ResponseWriter, message string) {
	writeError(w, http.StatusNotFound, ErrCodeNotFound, message)
}

// writeUnauthorized writes a 401 error response.
func writeUnauthorized(w http.ResponseWriter, message string) {
	writeError(w, http.StatusUnauthorized, ErrCodeUnauthorized, message)
}

// writeInternalError writes a 500 error response.
func writeInternalError(w http.ResponseWriter, message string) {
	writeError(w, http.StatusInternalServerError, ErrCodeInternal, message)
}

// writeBridgeError maps a gateway failure onto the API's error taxonomy.
func writeBridgeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, bridge.ErrNotAuthenticated):
		writeError(w, http.StatusConflict, ErrCodeNotPaired, "no bridge is paired")
	case errors.Is(err, bridge.ErrLinkButtonNotPressed):
		writeError(w, http.StatusConflict, ErrCodeLinkButton, "press the bridge link button and retry")
	case errors.Is(err, bridge.ErrRateLimited):
		writeError(w, http.StatusTooManyRequests, ErrCodeRateLimited, "bridge rate limit reached")
	case errors.Is(err, bridge.ErrCapacityExceeded):
		writeError(w, http.StatusTooManyRequests, ErrCodeCapacity, "too many writes in flight")
	case errors.Is(err, bridge.ErrBufferFull):
		writeError(w, http.StatusServiceUnavailable, ErrCodeBridgeRejected, "bridge event buffer full")
	case errors.Is(err, bridge.ErrNotTrusted):
		writeError(w, http.StatusBadGateway, ErrCodeBridgeUntrusted, "bridge certificate rejected")
	default:
		var httpErr *bridge.HTTPError
		if errors.As(err, &httpErr) && httpErr.Status == http.StatusNotFound {
			writeNotFound(w, "resource not found on bridge")
			return
		}
		writeError(w, http.StatusBadGateway, ErrCodeBridgeRejected, err.Error())
	}
}

package events

import (
	"encoding/json"
	"time"
)

// Envelope is one decoded push notification: a single resource change
// lifted out of an event frame. Envelopes are consumed immediately by
// subscribers and never persisted.
type Envelope struct {
	// Type is the event kind reported by the bridge: "update", "add",
	// "delete" or "error".
	Type string `json:"type"`

	// ResourceID identifies the affected resource.
	ResourceID string `json:"resource_id"`

	// ResourceType is the affected resource's type, e.g. "light".
	ResourceType string `json:"resource_type"`

	// Data is the raw changed-fields payload, left opaque for the
	// domain-mapping layer.
	Data json.RawMessage `json:"data"`

	// ArrivedAt is when the frame carrying this change was decoded.
	ArrivedAt time.Time `json:"arrived_at"`
}

// eventRecord is one element of a frame's JSON payload array.
type eventRecord struct {
	Type string            `json:"type"`
	Data []json.RawMessage `json:"data"`
}

// resourceRef is the identity subset of a changed-resource entry.
type resourceRef struct {
	ID   string `json:"id"`
	Type string `json:"type"`
}

// Logger is the minimal logging interface used by this package.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger discards all log output. Used when no logger is configured.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

package bridge

import (
	"encoding/xml"
	"time"
)

// ResourceClass groups bridge API resources with distinct rate limits.
type ResourceClass string

// Resource classes recognised by the rate limiter.
const (
	// ClassDevice covers writes to a single device resource.
	ClassDevice ResourceClass = "device"

	// ClassGroup covers writes to a grouped-resource endpoint. Group writes
	// fan out inside the bridge and need far wider spacing.
	ClassGroup ResourceClass = "group"
)

// Credentials is the persistent identity of a paired bridge: everything
// needed to resume an authenticated session without rediscovery.
type Credentials struct {
	BridgeID       string    `json:"bridge_id"`
	Address        string    `json:"address"`
	Port           int       `json:"port"`
	Name           string    `json:"name,omitempty"`
	Model          string    `json:"model,omitempty"`
	ApplicationKey string    `json:"-"`
	ClientKey      string    `json:"-"`
	PairedAt       time.Time `json:"paired_at"`
}

// configDocument is the unauthenticated configuration subset every bridge
// serves. Only identity fields are read here.
type configDocument struct {
	Name       string `json:"name"`
	BridgeID   string `json:"bridgeid"`
	ModelID    string `json:"modelid"`
	APIVersion string `json:"apiversion"`
	SWVersion  string `json:"swversion"`
}

// deviceDescription is the UPnP device description document, used as the
// validation fallback when the JSON config endpoint is unavailable.
type deviceDescription struct {
	XMLName xml.Name `xml:"root"`
	Device  struct {
		FriendlyName     string `xml:"friendlyName"`
		ModelName        string `xml:"modelName"`
		ModelDescription string `xml:"modelDescription"`
		SerialNumber     string `xml:"serialNumber"`
	} `xml:"device"`
}

// apiError is the structured error envelope used by the bridge's
// key-issuing API: {"error": {"type": N, "address": ..., "description": ...}}.
type apiError struct {
	Type        int    `json:"type"`
	Address     string `json:"address"`
	Description string `json:"description"`
}

// errTypeLinkButtonNotPressed is the structured error code the bridge
// returns while its link button has not been pressed.
const errTypeLinkButtonNotPressed = 101

// pairingResult is one element of the array the bridge returns from a
// key-issuing request. Exactly one of Success or Error is set.
type pairingResult struct {
	Success *struct {
		Username  string `json:"username"`
		ClientKey string `json:"clientkey"`
	} `json:"success"`
	Error *apiError `json:"error"`
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

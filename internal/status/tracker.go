package status

import (
	"strings"
	"sync"
	"time"
)

// State classifies a device's reachability.
type State string

// Reachability states. A device never observed stays unknown; it is not
// degraded to offline automatically, which would manufacture false
// negatives for devices simply not yet seen.
const (
	StateUnknown State = "unknown"
	StateOnline  State = "online"
	StateOffline State = "offline"
	StateIssues  State = "issues"
)

// unreachabilityPhrases are the resource-error wordings the bridge uses
// when a device's radio did not acknowledge a command.
var unreachabilityPhrases = []string{
	"communication issues",
	"device unreachable",
	"command may not have effect",
}

// Connectivity values carried by connectivity events.
const (
	connectivityConnected    = "connected"
	connectivityDisconnected = "disconnected"
	connectivityIssue        = "connectivity_issue"
)

// Transition records one observed state change.
type Transition struct {
	DeviceID string    `json:"device_id"`
	From     State     `json:"from"`
	To       State     `json:"to"`
	Reason   string    `json:"reason"`
	At       time.Time `json:"at"`
}

// Logger is the minimal logging interface used by this package.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Tracker maintains per-device communication status. It never polls: it
// is purely a sink for signals produced by write responses and the event
// stream, and a source read by the UI-facing layer.
//
// Thread Safety: safe for concurrent use.
type Tracker struct {
	mu        sync.Mutex
	devices   map[string]State
	callbacks []func(Transition)
	logger    Logger
}

// NewTracker creates an empty tracker.
func NewTracker() *Tracker {
	return &Tracker{
		devices: make(map[string]State),
		logger:  noopLogger{},
	}
}

// SetLogger sets the logger for the tracker.
func (t *Tracker) SetLogger(logger Logger) {
	t.logger = logger
}

// OnTransition registers a callback invoked for every state change.
// Callbacks run synchronously on the signalling goroutine and must not
// block; register before feeding signals.
func (t *Tracker) OnTransition(fn func(Transition)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.callbacks = append(t.callbacks, fn)
}

// Get returns the device's current state; never-observed devices are
// unknown.
func (t *Tracker) Get(deviceID string) State {
	t.mu.Lock()
	defer t.mu.Unlock()
	if s, ok := t.devices[deviceID]; ok {
		return s
	}
	return StateUnknown
}

// All returns a snapshot of every observed device.
func (t *Tracker) All() map[string]State {
	t.mu.Lock()
	defer t.mu.Unlock()
	snapshot := make(map[string]State, len(t.devices))
	for id, s := range t.devices {
		snapshot[id] = s
	}
	return snapshot
}

// RecordWriteResult classifies a write response for a device.
//
// A response with no resource-level errors marks the device online. An
// error matching known unreachability phrasing marks it issues. Errors
// with unrecognised wording carry no reachability verdict and leave the
// state unchanged.
//
// Parameters:
//   - deviceID: Device the write addressed
//   - resourceErrors: Error descriptions from the response envelope
func (t *Tracker) RecordWriteResult(deviceID string, resourceErrors []string) {
	if deviceID == "" {
		return
	}

	if len(resourceErrors) == 0 {
		t.set(deviceID, StateOnline, "write acknowledged")
		return
	}

	for _, desc := range resourceErrors {
		if matchesUnreachability(desc) {
			t.set(deviceID, StateIssues, desc)
			return
		}
	}
	t.logger.Debug("write error carries no reachability verdict",
		"device", deviceID, "error", resourceErrors[0])
}

// RecordConnectivity classifies a connectivity event for a device.
//
// Parameters:
//   - deviceID: Device the event concerns
//   - connectivity: Event status value ("connected", "disconnected",
//     "connectivity_issue")
func (t *Tracker) RecordConnectivity(deviceID, connectivity string) {
	if deviceID == "" {
		return
	}

	switch connectivity {
	case connectivityConnected:
		t.set(deviceID, StateOnline, "connectivity event")
	case connectivityDisconnected:
		t.set(deviceID, StateOffline, "connectivity event")
	case connectivityIssue:
		t.set(deviceID, StateIssues, "connectivity event")
	default:
		t.logger.Debug("unrecognised connectivity value",
			"device", deviceID, "connectivity", connectivity)
	}
}

// set applies a state, firing callbacks only on an actual change.
func (t *Tracker) set(deviceID string, to State, reason string) {
	t.mu.Lock()
	from, ok := t.devices[deviceID]
	if !ok {
		from = StateUnknown
	}
	if from == to {
		t.mu.Unlock()
		return
	}
	t.devices[deviceID] = to
	callbacks := make([]func(Transition), len(t.callbacks))
	copy(callbacks, t.callbacks)
	t.mu.Unlock()

	transition := Transition{
		DeviceID: deviceID,
		From:     from,
		To:       to,
		Reason:   reason,
		At:       time.Now().UTC(),
	}
	t.logger.Info("device status changed",
		"device", deviceID, "from", from, "to", to, "reason", reason)
	for _, fn := range callbacks {
		fn(transition)
	}
}

// matchesUnreachability reports whether an error description carries one
// of the known unreachability phrasings.
func matchesUnreachability(desc string) bool {
	lower := strings.ToLower(desc)
	for _, phrase := range unreachabilityPhrases {
		if strings.Contains(lower, phrase) {
			return true
		}
	}
	return false
}

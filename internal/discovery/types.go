package discovery

import (
	"context"
	"time"
)

// Strategy identifies the discovery mechanism that produced a candidate.
type Strategy string

// Discovery strategies. Each runs independently; any subset may fail
// without affecting the others.
const (
	// StrategySSDP is the multicast announcement probe.
	StrategySSDP Strategy = "ssdp"

	// StrategySubnet is local-subnet address enumeration.
	StrategySubnet Strategy = "subnet"

	// StrategyCloud is the vendor's public discovery endpoint.
	StrategyCloud Strategy = "cloud"
)

// Candidate is an address suspected of hosting a bridge.
//
// Candidates are produced by discovery strategies and are worthless until
// confirmed: a strategy sighting alone never promotes an address to a
// Bridge. Only an identity-confirming probe does.
type Candidate struct {
	// Address is the bare IP or hostname.
	Address string

	// Port is the HTTPS port, 0 for the default.
	Port int

	// Source is the strategy that produced this candidate.
	Source Strategy

	// DiscoveredAt is when the strategy first saw this address.
	DiscoveredAt time.Time
}

// Bridge is a validated, addressable bridge.
//
// Exactly one entry exists per bridge id in a discovery result, no matter
// how many strategies saw it.
type Bridge struct {
	// ID is the bridge-reported identifier (stable across IP changes).
	ID string `json:"id"`

	// Address is the confirmed IP or hostname.
	Address string `json:"address"`

	// Port is the HTTPS port the bridge answered on.
	Port int `json:"port"`

	// Name is the bridge's advertised friendly name, if any.
	Name string `json:"name,omitempty"`

	// Model is the bridge's advertised model identifier, if any.
	Model string `json:"model,omitempty"`
}

// Validator confirms whether a candidate address hosts a genuine bridge.
//
// Implementations return (nil, nil) for a definitive "not a bridge" - a
// valid negative outcome, not an error. A non-nil error means the probe
// could not reach a verdict (timeout, refused connection) and the
// orchestrator may retry.
type Validator interface {
	Validate(ctx context.Context, address string) (*Bridge, error)
}

// Logger defines the logging interface used by discovery components.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

package bridge

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"encoding/xml"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/nerrad567/lumen-core/internal/discovery"
)

// Validation probe constants.
const (
	// validateTimeout bounds one confirmation probe. Candidates are plentiful
	// and mostly dead, so probes must fail fast.
	validateTimeout = 5 * time.Second

	// configPath is the unauthenticated configuration document every bridge
	// serves over its API.
	configPath = "/api/0/config"

	// descriptionPath is the UPnP device description served over plain HTTP,
	// used as the fallback confirmation method.
	descriptionPath = "/description.xml"

	// maxProbeBody caps how much of a probe response is read. Identity
	// documents are small; anything larger is not a bridge.
	maxProbeBody = 64 * 1024
)

// descriptionMarkers identify a bridge device description. The embedded
// server advertises itself as an IP bridge in its model fields.
var descriptionMarkers = []string{"philips hue", "ipbridge", "hue bridge"}

// Validator confirms that a bare address hosts a genuine bridge and
// extracts its identity. It tries the JSON configuration document first
// and falls back to the XML device description.
//
// The probe is identity-only and carries no credentials, so certificate
// verification is skipped here; trust policy applies to authenticated
// sessions, not to reconnaissance of untrusted candidates.
//
// Thread Safety: safe for concurrent use; the discovery orchestrator's
// worker pool calls Validate from many goroutines.
type Validator struct {
	client *http.Client
	logger Logger
}

// NewValidator creates a bridge validator.
func NewValidator() *Validator {
	return &Validator{
		client: &http.Client{
			Timeout: validateTimeout,
			Transport: &http.Transport{
				TLSClientConfig: &tls.Config{InsecureSkipVerify: true}, //nolint:gosec // identity probe, no credentials
				DialContext: (&net.Dialer{
					Timeout: validateTimeout,
				}).DialContext,
				MaxIdleConnsPerHost: 1,
				DisableKeepAlives:   true,
			},
		},
		logger: noopLogger{},
	}
}

// SetLogger sets the logger for the validator.
func (v *Validator) SetLogger(logger Logger) {
	v.logger = logger
}

// Validate implements discovery.Validator.
//
// A confirmed bridge returns its identity. A reachable address that is
// demonstrably not a bridge returns (nil, nil): absence is a valid
// negative outcome meaning "keep scanning", not an error. Transport
// failures on both methods return an error so the caller may retry.
//
// Parameters:
//   - ctx: Probe context
//   - address: Bare host or host:port candidate address
//
// Returns:
//   - *discovery.Bridge: Confirmed identity, or nil when not a bridge
//   - error: Transport failure on every confirmation method
func (v *Validator) Validate(ctx context.Context, address string) (*discovery.Bridge, error) {
	if strings.TrimSpace(address) == "" {
		return nil, ErrInvalidAddress
	}

	bridge, configErr := v.probeConfig(ctx, address)
	if bridge != nil {
		return bridge, nil
	}

	// Both methods must miss before the address is declared invalid.
	bridge, descErr := v.probeDescription(ctx, address)
	if bridge != nil {
		return bridge, nil
	}

	if configErr != nil && descErr != nil {
		return nil, fmt.Errorf("bridge: validating %s: config: %w; description: %v", address, configErr, descErr)
	}

	// At least one method got an answer and it was not a bridge.
	return nil, nil
}

// probeConfig fetches the unauthenticated JSON configuration document.
// (nil, nil) means the address answered but is not a bridge.
func (v *Validator) probeConfig(ctx context.Context, address string) (*discovery.Bridge, error) {
	body, err := v.fetch(ctx, "https://"+address+configPath)
	if err != nil {
		return nil, err
	}

	var doc configDocument
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, nil // answered, but not with a bridge config document
	}
	if doc.BridgeID == "" {
		return nil, nil
	}

	return &discovery.Bridge{
		ID:      strings.ToUpper(doc.BridgeID),
		Address: address,
		Name:    doc.Name,
		Model:   doc.ModelID,
	}, nil
}

// probeDescription fetches the XML device description over plain HTTP and
// checks it for bridge markers.
func (v *Validator) probeDescription(ctx context.Context, address string) (*discovery.Bridge, error) {
	body, err := v.fetch(ctx, "http://"+address+descriptionPath)
	if err != nil {
		return nil, err
	}

	var desc deviceDescription
	if err := xml.Unmarshal(body, &desc); err != nil {
		return nil, nil
	}

	haystack := strings.ToLower(desc.Device.ModelName + " " + desc.Device.ModelDescription)
	marked := false
	for _, marker := range descriptionMarkers {
		if strings.Contains(haystack, marker) {
			marked = true
			break
		}
	}
	if !marked || desc.Device.SerialNumber == "" {
		return nil, nil
	}

	return &discovery.Bridge{
		ID:      strings.ToUpper(desc.Device.SerialNumber),
		Address: address,
		Name:    desc.Device.FriendlyName,
		Model:   desc.Device.ModelName,
	}, nil
}

// fetch performs one bounded GET and returns the body. Non-200 statuses
// and transport failures are errors; the caller decides whether a failed
// method disqualifies the candidate.
func (v *Validator) fetch(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidAddress, url)
	}

	resp, err := v.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &HTTPError{Status: resp.StatusCode}
	}

	return io.ReadAll(io.LimitReader(resp.Body, maxProbeBody))
}

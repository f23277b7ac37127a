package bridge

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/nerrad567/lumen-core/internal/discovery"
)

// pairingRequest is the body of a key-issuing request. The device type is
// "<app>#<device>"; the client key unlocks extended streaming auth.
type pairingRequest struct {
	DeviceType        string `json:"devicetype"`
	GenerateClientKey bool   `json:"generateclientkey"`
}

// Pair requests an application key from a confirmed bridge and, on
// success, establishes the session with it.
//
// The bridge only issues a key within a short window after its physical
// link button is pressed. One request is made; the bridge's explicit
// "not pressed" signal is surfaced as ErrLinkButtonNotPressed, a distinct
// retryable outcome. Polling on a fixed interval is the caller's job,
// not the client's.
//
// Parameters:
//   - ctx: Request context
//   - target: Confirmed bridge to pair with
//   - appLabel: Application name, e.g. "lumen"
//   - deviceLabel: Host/instance name
//
// Returns:
//   - Credentials: Issued application key (and client key when granted)
//   - error: ErrLinkButtonNotPressed, or a typed dispatch outcome
func (c *Client) Pair(ctx context.Context, target discovery.Bridge, appLabel, deviceLabel string) (Credentials, error) {
	policy, err := c.newTrust(target.ID)
	if err != nil {
		return Credentials{}, err
	}

	hostPort := target.Address
	if target.Port != 0 && target.Port != defaultBridgePort {
		hostPort = net.JoinHostPort(target.Address, strconv.Itoa(target.Port))
	}

	client := &http.Client{
		Timeout: c.cfg.RequestTimeoutDuration(),
		Transport: &http.Transport{
			TLSClientConfig: trustTLSConfig(policy, hostPort),
		},
	}
	defer client.CloseIdleConnections()

	payload, err := json.Marshal(pairingRequest{
		DeviceType:        appLabel + "#" + deviceLabel,
		GenerateClientKey: true,
	})
	if err != nil {
		return Credentials{}, fmt.Errorf("bridge: encoding pairing request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, "https://"+hostPort+"/api", bytes.NewReader(payload))
	if err != nil {
		return Credentials{}, fmt.Errorf("%w: %s", ErrInvalidAddress, target.Address)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return Credentials{}, fmt.Errorf("bridge: transport: %w", err)
	}
	defer resp.Body.Close()

	if err := classifyStatus(resp.StatusCode); err != nil {
		return Credentials{}, err
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	if err != nil {
		return Credentials{}, fmt.Errorf("bridge: reading pairing response: %w", err)
	}

	var results []pairingResult
	if err := json.Unmarshal(raw, &results); err != nil || len(results) == 0 {
		c.logger.Error("pairing response decode failure", "body", string(truncate(raw, maxErrorBody)))
		return Credentials{}, fmt.Errorf("%w: pairing response", ErrDecodeFailure)
	}

	result := results[0]
	if result.Error != nil {
		if result.Error.Type == errTypeLinkButtonNotPressed {
			return Credentials{}, ErrLinkButtonNotPressed
		}
		return Credentials{}, fmt.Errorf("bridge: pairing rejected: %s (type %d)",
			result.Error.Description, result.Error.Type)
	}
	if result.Success == nil || result.Success.Username == "" {
		return Credentials{}, fmt.Errorf("%w: pairing response carries no key", ErrDecodeFailure)
	}

	session := &Session{
		BridgeID:       target.ID,
		Address:        target.Address,
		Port:           target.Port,
		ApplicationKey: result.Success.Username,
		ClientKey:      result.Success.ClientKey,
		EstablishedAt:  time.Now().UTC(),
	}
	if err := c.establish(session); err != nil {
		return Credentials{}, err
	}

	c.logger.Info("bridge paired", "bridge", target.ID, "address", target.Address)
	return session.credentials(target.Name, target.Model), nil
}

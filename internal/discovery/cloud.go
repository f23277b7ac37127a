package discovery

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// cloudRequestTimeout bounds the single discovery endpoint request.
const cloudRequestTimeout = 8 * time.Second

// cloudRecord is one known-bridge record returned by the vendor's public
// discovery endpoint for the caller's public IP.
type cloudRecord struct {
	ID         string `json:"id"`
	InternalIP string `json:"internalipaddress"`
	Port       int    `json:"port"`
}

// cloudLookup queries the vendor's public discovery service once per
// session. The service maps the account's public IP to bridges that have
// recently phoned home from behind the same NAT.
type cloudLookup struct {
	url    string
	client *http.Client
	logger func() Logger
}

func newCloudLookup(url string, logger func() Logger) *cloudLookup {
	return &cloudLookup{
		url:    url,
		client: &http.Client{Timeout: cloudRequestTimeout},
		logger: logger,
	}
}

// Name implements strategy.
func (c *cloudLookup) Name() Strategy { return StrategyCloud }

// Run implements strategy. A single request; any failure is logged and
// swallowed (the service is unreachable for fully offline installations,
// which is a supported deployment).
func (c *cloudLookup) Run(ctx context.Context, report func(Candidate)) {
	log := c.logger()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		log.Warn("cloud: building request failed", "error", err)
		return
	}

	resp, err := c.client.Do(req)
	if err != nil {
		log.Debug("cloud: discovery request failed", "error", err)
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		log.Debug("cloud: unexpected status", "status", resp.StatusCode)
		return
	}

	var records []cloudRecord
	if err := json.NewDecoder(resp.Body).Decode(&records); err != nil {
		log.Warn("cloud: decoding response failed", "error", err)
		return
	}

	log.Debug("cloud: records received", "count", len(records))

	for _, rec := range records {
		if ctx.Err() != nil {
			return
		}
		if rec.InternalIP == "" {
			continue
		}
		report(Candidate{
			Address:      rec.InternalIP,
			Port:         rec.Port,
			Source:       StrategyCloud,
			DiscoveredAt: time.Now().UTC(),
		})
	}
}

// String returns a printable description, useful in logs.
func (c *cloudLookup) String() string {
	return fmt.Sprintf("cloud lookup (%s)", c.url)
}

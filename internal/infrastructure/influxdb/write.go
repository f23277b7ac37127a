package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// WriteStatusTransition records a device reachability change.
//
// Non-blocking; the point is batched and sent asynchronously.
//
// Parameters:
//   - deviceID: Device whose status changed
//   - from: Previous state
//   - to: New state
//   - reason: What triggered the change
func (c *Client) WriteStatusTransition(deviceID, from, to, reason string) {
	if !c.IsConnected() {
		return
	}

	c.writeAPI.WritePoint(write.NewPoint(
		"device_status",
		map[string]string{
			"device_id": deviceID,
			"to":        to,
		},
		map[string]interface{}{
			"from":   from,
			"reason": reason,
		},
		time.Now(),
	))
}

// WriteRequestMetric records the outcome of one authenticated dispatch.
//
// Parameters:
//   - method: HTTP method
//   - resourceType: Resource type addressed, e.g. "light"
//   - outcome: "success" or the error classification
//   - duration: Wall-clock dispatch time
func (c *Client) WriteRequestMetric(method, resourceType, outcome string, duration time.Duration) {
	if !c.IsConnected() {
		return
	}

	c.writeAPI.WritePoint(write.NewPoint(
		"bridge_requests",
		map[string]string{
			"method":        method,
			"resource_type": resourceType,
			"outcome":       outcome,
		},
		map[string]interface{}{
			"duration_ms": float64(duration.Milliseconds()),
		},
		time.Now(),
	))
}

// WriteDiscoveryMetric records the result of one discovery session.
//
// Parameters:
//   - bridgesFound: Confirmed bridge count
//   - duration: Session wall-clock time
func (c *Client) WriteDiscoveryMetric(bridgesFound int, duration time.Duration) {
	if !c.IsConnected() {
		return
	}

	c.writeAPI.WritePoint(write.NewPoint(
		"discovery_sessions",
		map[string]string{},
		map[string]interface{}{
			"bridges_found": bridgesFound,
			"duration_ms":   float64(duration.Milliseconds()),
		},
		time.Now(),
	))
}

package influxdb

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/nerrad567/lumen-core/internal/infrastructure/config"
)

func TestConnect_DisabledConfig(t *testing.T) {
	_, err := Connect(config.InfluxDBConfig{Enabled: false})
	if !errors.Is(err, ErrDisabled) {
		t.Errorf("Connect() error = %v, want ErrDisabled", err)
	}
}

func TestConnect_UnreachableServer(t *testing.T) {
	_, err := Connect(config.InfluxDBConfig{
		Enabled: true,
		URL:     "http://127.0.0.1:1",
		Token:   "irrelevant",
		Org:     "lumen",
		Bucket:  "telemetry",
	})
	if !errors.Is(err, ErrConnectionFailed) {
		t.Errorf("Connect() error = %v, want ErrConnectionFailed", err)
	}
}

func TestDisconnectedClientWritesAreNoOps(t *testing.T) {
	c := &Client{} // never connected

	// None of these may panic or block.
	c.WriteStatusTransition("dev", "unknown", "online", "write acknowledged")
	c.WriteRequestMetric("PUT", "light", "success", 42*time.Millisecond)
	c.WriteDiscoveryMetric(1, 9*time.Second)
	c.Flush()

	if err := c.HealthCheck(context.Background()); !errors.Is(err, ErrNotConnected) {
		t.Errorf("HealthCheck() error = %v, want ErrNotConnected", err)
	}
}

func TestCloseNilClient(t *testing.T) {
	c := &Client{}
	if err := c.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
}

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	return path
}

func TestLoad_ValidConfig(t *testing.T) {
	path := writeConfig(t, `
app:
  name: "lumen-test"
database:
  path: "/tmp/lumen-test.db"
discovery:
  session_timeout: 20
  cloud:
    enabled: true
    url: "https://discovery.example.com/"
bridge:
  request_timeout: 10
  rate:
    device_interval_ms: 100
    group_interval_ms: 1000
    max_in_flight: 4
events:
  stream_timeout: 120
api:
  host: "127.0.0.1"
  port: 9090
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.App.Name != "lumen-test" {
		t.Errorf("App.Name = %q, want %q", cfg.App.Name, "lumen-test")
	}
	if cfg.Discovery.SessionTimeout != 20 {
		t.Errorf("Discovery.SessionTimeout = %d, want 20", cfg.Discovery.SessionTimeout)
	}
	if cfg.Bridge.Rate.MaxInFlight != 4 {
		t.Errorf("Bridge.Rate.MaxInFlight = %d, want 4", cfg.Bridge.Rate.MaxInFlight)
	}
	if cfg.API.Port != 9090 {
		t.Errorf("API.Port = %d, want 9090", cfg.API.Port)
	}
}

func TestLoad_DefaultsApplied(t *testing.T) {
	path := writeConfig(t, `
app:
  name: "lumen-test"
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if !cfg.Discovery.SSDP.Enabled {
		t.Error("Discovery.SSDP.Enabled = false, want true by default")
	}
	if got := cfg.Bridge.Rate.DeviceInterval(); got != 100*time.Millisecond {
		t.Errorf("DeviceInterval() = %v, want 100ms", got)
	}
	if got := cfg.Bridge.Rate.GroupInterval(); got != time.Second {
		t.Errorf("GroupInterval() = %v, want 1s", got)
	}
	if !cfg.Bridge.Trust.AllowPrivateSelfSigned {
		t.Error("Trust.AllowPrivateSelfSigned = false, want true by default")
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load("/nonexistent/path/config.yaml")
	if err == nil {
		t.Error("Load() expected error for missing file, got nil")
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	path := writeConfig(t, "invalid: [yaml: content")

	_, err := Load(path)
	if err == nil {
		t.Error("Load() expected error for invalid YAML, got nil")
	}
}

func TestLoad_ValidationFailure(t *testing.T) {
	path := writeConfig(t, `
app:
  name: ""
`)

	_, err := Load(path)
	if err == nil {
		t.Fatal("Load() expected validation error, got nil")
	}
	if !strings.Contains(err.Error(), "app.name") {
		t.Errorf("Load() error = %v, want mention of app.name", err)
	}
}

func TestLoad_StreamTimeoutMustExceedRequestTimeout(t *testing.T) {
	path := writeConfig(t, `
app:
  name: "lumen-test"
bridge:
  request_timeout: 30
events:
  stream_timeout: 30
`)

	_, err := Load(path)
	if err == nil {
		t.Fatal("Load() expected validation error, got nil")
	}
	if !strings.Contains(err.Error(), "stream_timeout") {
		t.Errorf("Load() error = %v, want mention of stream_timeout", err)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	path := writeConfig(t, `
app:
  name: "lumen-test"
database:
  path: "/tmp/from-file.db"
`)

	t.Setenv("LUMEN_DATABASE_PATH", "/tmp/from-env.db")
	t.Setenv("LUMEN_API_PORT", "9999")
	t.Setenv("LUMEN_DISCOVERY_CLOUD_URL", "https://override.example.com/")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Database.Path != "/tmp/from-env.db" {
		t.Errorf("Database.Path = %q, want env override", cfg.Database.Path)
	}
	if cfg.API.Port != 9999 {
		t.Errorf("API.Port = %d, want 9999", cfg.API.Port)
	}
	if cfg.Discovery.Cloud.URL != "https://override.example.com/" {
		t.Errorf("Discovery.Cloud.URL = %q, want env override", cfg.Discovery.Cloud.URL)
	}
}

func TestValidate_RateLimits(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{
			name:    "valid defaults",
			mutate:  func(_ *Config) {},
			wantErr: false,
		},
		{
			name:    "negative device interval",
			mutate:  func(c *Config) { c.Bridge.Rate.DeviceIntervalMS = -1 },
			wantErr: true,
		},
		{
			name:    "zero max in flight",
			mutate:  func(c *Config) { c.Bridge.Rate.MaxInFlight = 0 },
			wantErr: true,
		},
		{
			name:    "invalid qos",
			mutate:  func(c *Config) { c.MQTT.QoS = 3 },
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := defaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

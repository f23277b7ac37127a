package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for Lumen Core.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	App       AppConfig       `yaml:"app"`
	Database  DatabaseConfig  `yaml:"database"`
	Discovery DiscoveryConfig `yaml:"discovery"`
	Bridge    BridgeConfig    `yaml:"bridge"`
	Events    EventsConfig    `yaml:"events"`
	MQTT      MQTTConfig      `yaml:"mqtt"`
	InfluxDB  InfluxDBConfig  `yaml:"influxdb"`
	API       APIConfig       `yaml:"api"`
	WebSocket WebSocketConfig `yaml:"websocket"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// AppConfig contains application-level identity settings.
type AppConfig struct {
	// Name is the application label sent to the bridge during pairing.
	Name string `yaml:"name"`

	// Instance is the device label sent to the bridge during pairing.
	// If empty, a label is derived from the hostname.
	Instance string `yaml:"instance"`
}

// DatabaseConfig contains SQLite database settings.
type DatabaseConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// DiscoveryConfig contains bridge discovery settings.
type DiscoveryConfig struct {
	// SessionTimeout is the overall discovery ceiling in seconds.
	// All strategies are abandoned once it elapses.
	SessionTimeout int `yaml:"session_timeout"`

	SSDP   SSDPConfig        `yaml:"ssdp"`
	Subnet SubnetScanConfig  `yaml:"subnet"`
	Cloud  CloudLookupConfig `yaml:"cloud"`
}

// SSDPConfig contains multicast discovery settings.
type SSDPConfig struct {
	Enabled bool `yaml:"enabled"`

	// ListenWindow is how long to collect multicast replies, in seconds.
	ListenWindow int `yaml:"listen_window"`
}

// SubnetScanConfig contains local-subnet enumeration settings.
type SubnetScanConfig struct {
	Enabled bool `yaml:"enabled"`

	// Concurrency caps simultaneous candidate probes to avoid socket exhaustion.
	Concurrency int `yaml:"concurrency"`

	// Attempts is the number of probe attempts per candidate address.
	Attempts int `yaml:"attempts"`

	// Timeout is the per-scan ceiling in seconds.
	Timeout int `yaml:"timeout"`
}

// CloudLookupConfig contains vendor cloud discovery settings.
type CloudLookupConfig struct {
	Enabled bool `yaml:"enabled"`

	// URL is the public discovery endpoint queried once per session.
	URL string `yaml:"url"`
}

// BridgeConfig contains gateway client settings.
type BridgeConfig struct {
	// RequestTimeout is the per-request timeout in seconds.
	RequestTimeout int `yaml:"request_timeout"`

	Trust TrustConfig     `yaml:"trust"`
	Rate  RateLimitConfig `yaml:"rate"`
}

// TrustConfig contains TLS trust policy settings for bridge connections.
type TrustConfig struct {
	// RootCAFiles are PEM files holding the accepted root authorities.
	RootCAFiles []string `yaml:"root_ca_files"`

	// AllowPrivateSelfSigned accepts any certificate presented by an address
	// inside a private network range. Local bridges commonly present
	// self-signed certificates; this never applies to public addresses.
	AllowPrivateSelfSigned bool `yaml:"allow_private_self_signed"`

	// StrictCommonName requires the certificate common name to match the
	// bridge's advertised id when chain validation is used.
	StrictCommonName bool `yaml:"strict_common_name"`
}

// RateLimitConfig contains per-resource-class write spacing settings.
type RateLimitConfig struct {
	// DeviceIntervalMS is the minimum spacing between single-device writes.
	DeviceIntervalMS int `yaml:"device_interval_ms"`

	// GroupIntervalMS is the minimum spacing between group writes.
	GroupIntervalMS int `yaml:"group_interval_ms"`

	// MaxInFlight caps concurrently in-flight device writes.
	// Writes beyond the cap fail immediately rather than queue.
	MaxInFlight int `yaml:"max_in_flight"`
}

// EventsConfig contains push event stream settings.
type EventsConfig struct {
	// StreamTimeout is the idle timeout for the long-lived stream, in seconds.
	// It must exceed the request timeout; the stream is expected to be quiet
	// for long periods.
	StreamTimeout int `yaml:"stream_timeout"`

	// SubscriberBuffer is the per-subscriber delivery buffer size.
	SubscriberBuffer int `yaml:"subscriber_buffer"`

	Reconnect ReconnectConfig `yaml:"reconnect"`
}

// ReconnectConfig contains event stream reconnection settings.
type ReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
}

// MQTTConfig contains MQTT broker connection settings for the mirror.
type MQTTConfig struct {
	Enabled   bool                `yaml:"enabled"`
	Broker    MQTTBrokerConfig    `yaml:"broker"`
	Auth      MQTTAuthConfig      `yaml:"auth"`
	QoS       int                 `yaml:"qos"`
	Reconnect MQTTReconnectConfig `yaml:"reconnect"`
}

// MQTTBrokerConfig contains MQTT broker connection details.
type MQTTBrokerConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	TLS      bool   `yaml:"tls"`
	ClientID string `yaml:"client_id"`
}

// MQTTAuthConfig contains MQTT authentication credentials.
type MQTTAuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// MQTTReconnectConfig contains MQTT reconnection settings.
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
	MaxAttempts  int `yaml:"max_attempts"`
}

// InfluxDBConfig contains InfluxDB connection settings.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
}

// APIConfig contains HTTP API server settings.
type APIConfig struct {
	Host     string           `yaml:"host"`
	Port     int              `yaml:"port"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`
	CORS     CORSConfig       `yaml:"cors"`

	// AuthToken protects mutating endpoints and the WebSocket feed.
	// Empty disables authentication (local development only).
	AuthToken string `yaml:"auth_token"`
}

// APITimeoutConfig contains HTTP timeout settings.
type APITimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// CORSConfig contains Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
	AllowedMethods []string `yaml:"allowed_methods"`
	AllowedHeaders []string `yaml:"allowed_headers"`
}

// WebSocketConfig contains WebSocket server settings.
type WebSocketConfig struct {
	Path           string `yaml:"path"`
	MaxMessageSize int    `yaml:"max_message_size"`
	PingInterval   int    `yaml:"ping_interval"`
	PongTimeout    int    `yaml:"pong_timeout"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: LUMEN_SECTION_KEY
// For example: LUMEN_DATABASE_PATH, LUMEN_API_PORT
//
// Parameters:
//   - path: Path to the YAML configuration file
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: If file cannot be read, parsed, or validation fails
func Load(path string) (*Config, error) {
	// Start with defaults
	cfg := defaultConfig()

	// Read and parse YAML file
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	// Apply environment variable overrides
	applyEnvOverrides(cfg)

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		App: AppConfig{
			Name: "lumen",
		},
		Database: DatabaseConfig{
			Path:        "./data/lumen.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		Discovery: DiscoveryConfig{
			SessionTimeout: 18,
			SSDP: SSDPConfig{
				Enabled:      true,
				ListenWindow: 6,
			},
			Subnet: SubnetScanConfig{
				Enabled:     true,
				Concurrency: 32,
				Attempts:    2,
				Timeout:     15,
			},
			Cloud: CloudLookupConfig{
				Enabled: true,
				URL:     "https://discovery.meethue.com/",
			},
		},
		Bridge: BridgeConfig{
			RequestTimeout: 30,
			Trust: TrustConfig{
				AllowPrivateSelfSigned: true,
				StrictCommonName:       true,
			},
			Rate: RateLimitConfig{
				DeviceIntervalMS: 100,
				GroupIntervalMS:  1000,
				MaxInFlight:      10,
			},
		},
		Events: EventsConfig{
			StreamTimeout:    300,
			SubscriberBuffer: 256,
			Reconnect: ReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
			},
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "lumen-core",
			},
			QoS: 1,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
				MaxAttempts:  0,
			},
		},
		API: APIConfig{
			Host: "127.0.0.1",
			Port: 8086,
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 30,
				Idle:  60,
			},
		},
		WebSocket: WebSocketConfig{
			Path:           "/ws",
			MaxMessageSize: 8192,
			PingInterval:   30,
			PongTimeout:    10,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: LUMEN_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	// Database
	if v := os.Getenv("LUMEN_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}

	// Discovery
	if v := os.Getenv("LUMEN_DISCOVERY_CLOUD_URL"); v != "" {
		cfg.Discovery.Cloud.URL = v
	}

	// MQTT
	if v := os.Getenv("LUMEN_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("LUMEN_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("LUMEN_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	// API
	if v := os.Getenv("LUMEN_API_HOST"); v != "" {
		cfg.API.Host = v
	}
	if v := os.Getenv("LUMEN_API_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.API.Port = port
		}
	}
	if v := os.Getenv("LUMEN_API_AUTH_TOKEN"); v != "" {
		cfg.API.AuthToken = v
	}

	// InfluxDB
	if v := os.Getenv("LUMEN_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}
}

// Validate checks the configuration for errors.
//
// Returns:
//   - error: Description of validation failure, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	// App validation - the bridge rejects pairing requests without a label
	if c.App.Name == "" {
		errs = append(errs, "app.name is required")
	}

	// Database validation
	if c.Database.Path == "" {
		errs = append(errs, "database.path is required")
	}

	// Discovery validation
	if c.Discovery.SessionTimeout < 1 {
		errs = append(errs, "discovery.session_timeout must be at least 1 second")
	}
	if c.Discovery.Cloud.Enabled && c.Discovery.Cloud.URL == "" {
		errs = append(errs, "discovery.cloud.url is required when cloud discovery is enabled")
	}
	if c.Discovery.Subnet.Concurrency < 1 {
		errs = append(errs, "discovery.subnet.concurrency must be at least 1")
	}

	// Bridge validation
	if c.Bridge.RequestTimeout < 1 {
		errs = append(errs, "bridge.request_timeout must be at least 1 second")
	}
	if c.Bridge.Rate.DeviceIntervalMS < 0 || c.Bridge.Rate.GroupIntervalMS < 0 {
		errs = append(errs, "bridge.rate intervals must not be negative")
	}
	if c.Bridge.Rate.MaxInFlight < 1 {
		errs = append(errs, "bridge.rate.max_in_flight must be at least 1")
	}

	// Events validation - the stream outlives individual requests
	if c.Events.StreamTimeout <= c.Bridge.RequestTimeout {
		errs = append(errs, "events.stream_timeout must exceed bridge.request_timeout")
	}

	// MQTT validation
	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}

	// API validation
	if c.API.Port < 1 || c.API.Port > 65535 {
		errs = append(errs, "api.port must be between 1 and 65535")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// SessionTimeoutDuration returns the discovery session ceiling as a Duration.
func (c *DiscoveryConfig) SessionTimeoutDuration() time.Duration {
	return time.Duration(c.SessionTimeout) * time.Second
}

// ListenWindowDuration returns the multicast reply window as a Duration.
func (c *SSDPConfig) ListenWindowDuration() time.Duration {
	return time.Duration(c.ListenWindow) * time.Second
}

// TimeoutDuration returns the subnet scan ceiling as a Duration.
func (c *SubnetScanConfig) TimeoutDuration() time.Duration {
	return time.Duration(c.Timeout) * time.Second
}

// RequestTimeoutDuration returns the bridge request timeout as a Duration.
func (c *BridgeConfig) RequestTimeoutDuration() time.Duration {
	return time.Duration(c.RequestTimeout) * time.Second
}

// DeviceInterval returns the single-device write spacing as a Duration.
func (c *RateLimitConfig) DeviceInterval() time.Duration {
	return time.Duration(c.DeviceIntervalMS) * time.Millisecond
}

// GroupInterval returns the group write spacing as a Duration.
func (c *RateLimitConfig) GroupInterval() time.Duration {
	return time.Duration(c.GroupIntervalMS) * time.Millisecond
}

// StreamTimeoutDuration returns the event stream idle timeout as a Duration.
func (c *EventsConfig) StreamTimeoutDuration() time.Duration {
	return time.Duration(c.StreamTimeout) * time.Second
}

// GetReadTimeout returns the API read timeout as a Duration.
func (c *Config) GetReadTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Read) * time.Second
}

// GetWriteTimeout returns the API write timeout as a Duration.
func (c *Config) GetWriteTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Write) * time.Second
}

// GetIdleTimeout returns the API idle timeout as a Duration.
func (c *Config) GetIdleTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Idle) * time.Second
}

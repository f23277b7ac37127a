// Lumen Core - Local Lighting Bridge Controller
//
// This is the main entry point for the Lumen Core application. Lumen
// discovers lighting bridges on the local network, pairs with them,
// maintains a trusted authenticated session, consumes the bridge's push
// event stream, and tracks per-device reachability. State is exposed
// over a REST API with a WebSocket feed and optionally mirrored onto
// MQTT, with telemetry in InfluxDB.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/nerrad567/lumen-core/migrations"

	"github.com/nerrad567/lumen-core/internal/api"
	"github.com/nerrad567/lumen-core/internal/bridge"
	"github.com/nerrad567/lumen-core/internal/discovery"
	"github.com/nerrad567/lumen-core/internal/events"
	"github.com/nerrad567/lumen-core/internal/infrastructure/config"
	"github.com/nerrad567/lumen-core/internal/infrastructure/database"
	"github.com/nerrad567/lumen-core/internal/infrastructure/influxdb"
	"github.com/nerrad567/lumen-core/internal/infrastructure/logging"
	"github.com/nerrad567/lumen-core/internal/infrastructure/mqtt"
	"github.com/nerrad567/lumen-core/internal/mirror"
	"github.com/nerrad567/lumen-core/internal/status"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"     // Semantic version (e.g., "1.0.0")
	commit  = "unknown" // Git commit hash
	date    = "unknown" // Build date
)

// Default configuration file path
const defaultConfigPath = "configs/config.yaml"

func main() {
	// Create a context that cancels on interrupt signals (Ctrl+C, SIGTERM)
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the actual application logic, separated from main for testability.
// Returning an error allows main to handle exit codes consistently.
//
// Parameters:
//   - ctx: Context for cancellation and shutdown signals
//
// Returns:
//   - error: nil on clean shutdown, or error describing failure
func run(ctx context.Context) error { //nolint:gocognit,gocyclo // Wiring: each component follows the same connect/defer pattern
	// Use default logger until config is loaded
	log := logging.Default()
	log.Info("starting Lumen Core",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	// Load configuration
	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log.Info("configuration loaded", "path", configPath)

	// Reinitialise logger with config settings
	log = logging.New(cfg.Logging, version)

	// Open database
	db, err := database.Open(database.Config{
		Path:        cfg.Database.Path,
		WALMode:     cfg.Database.WALMode,
		BusyTimeout: cfg.Database.BusyTimeout,
	})
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer func() {
		log.Info("closing database")
		if closeErr := db.Close(); closeErr != nil {
			log.Error("error closing database", "error", closeErr)
		}
	}()
	log.Info("database connected", "path", cfg.Database.Path)

	// Run migrations
	if migrateErr := db.Migrate(ctx); migrateErr != nil {
		return fmt.Errorf("running migrations: %w", migrateErr)
	}

	// Credential store and bridge client
	store := bridge.NewStore(db)
	store.SetLogger(log.With("component", "store"))

	client := bridge.NewClient(cfg.Bridge, cfg.Events)
	client.SetLogger(log.With("component", "bridge"))

	// Resume the most recently seen pairing, if any
	if creds, loadErr := store.Load(ctx); loadErr == nil {
		if resumeErr := client.Resume(creds); resumeErr != nil {
			log.Warn("could not resume stored session", "bridge", creds.BridgeID, "error", resumeErr)
		} else {
			log.Info("session resumed", "bridge", creds.BridgeID, "address", creds.Address)
			if touchErr := store.TouchLastSeen(ctx, creds.BridgeID); touchErr != nil {
				log.Warn("updating last seen", "error", touchErr)
			}
		}
	} else if !errors.Is(loadErr, bridge.ErrNoCredentials) {
		return fmt.Errorf("loading stored credentials: %w", loadErr)
	} else {
		log.Info("no stored pairing; discovery and pairing required")
	}

	// Device reachability tracker
	tracker := status.NewTracker()
	tracker.SetLogger(log.With("component", "status"))
	tracker.OnTransition(func(t status.Transition) {
		log.Info("device status changed",
			"device", t.DeviceID, "from", t.From, "to", t.To, "reason", t.Reason)
	})

	// Event hub and stream consumer
	hub := events.NewHub(cfg.Events.SubscriberBuffer)
	hub.SetLogger(log.With("component", "events"))
	defer hub.Close()

	stream := events.NewStream(hub)
	stream.SetLogger(log.With("component", "events"))

	// The stream goroutine runs for the process lifetime. It idles until
	// a session exists and reconnects with backoff on stream loss.
	go runEventLoop(ctx, client, stream, log)

	// Feed connectivity events into the tracker
	connSub, connUnsub := hub.Subscribe()
	go trackConnectivity(ctx, connSub, connUnsub, tracker)

	// Discovery orchestrator
	validator := bridge.NewValidator()
	validator.SetLogger(log.With("component", "discovery"))
	orchestrator := discovery.New(cfg.Discovery, validator)
	orchestrator.SetLogger(log.With("component", "discovery"))

	// Connect to MQTT broker (optional)
	var mqttClient *mqtt.Client
	if cfg.MQTT.Enabled {
		mqttClient, err = mqtt.Connect(cfg.MQTT)
		if err != nil {
			return fmt.Errorf("connecting to MQTT: %w", err)
		}
		defer func() {
			log.Info("disconnecting from MQTT")
			if closeErr := mqttClient.Close(); closeErr != nil {
				log.Error("error closing MQTT", "error", closeErr)
			}
		}()
		mqttClient.SetLogger(log.With("component", "mqtt"))
		mqttClient.SetOnConnect(func() { log.Info("MQTT connected") })
		mqttClient.SetOnDisconnect(func(err error) { log.Warn("MQTT disconnected", "error", err) })
		log.Info("MQTT connected",
			"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
			"client_id", cfg.MQTT.Broker.ClientID,
		)
	} else {
		log.Info("MQTT disabled")
	}

	// Connect to InfluxDB (optional)
	var influxClient *influxdb.Client
	if cfg.InfluxDB.Enabled {
		influxClient, err = influxdb.Connect(cfg.InfluxDB)
		if err != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", err)
		}
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
		tracker.OnTransition(func(t status.Transition) {
			influxClient.WriteStatusTransition(t.DeviceID, string(t.From), string(t.To), t.Reason)
		})
		client.SetOnDispatch(influxClient.WriteRequestMetric)
		log.Info("InfluxDB connected", "url", cfg.InfluxDB.URL, "bucket", cfg.InfluxDB.Bucket)
	} else {
		log.Info("InfluxDB disabled")
	}

	// MQTT mirror: republish events and status, accept inbound commands
	var mqttMirror *mirror.Mirror
	if mqttClient != nil {
		//nolint:gosec // QoS range is validated in config
		mqttMirror = mirror.New(mqttClient, client, tracker, byte(cfg.MQTT.QoS))
		mqttMirror.SetLogger(log.With("component", "mirror"))
		if startErr := mqttMirror.Start(ctx); startErr != nil {
			return fmt.Errorf("starting MQTT mirror: %w", startErr)
		}
		tracker.OnTransition(mqttMirror.PublishTransition)

		mirrorSub, mirrorUnsub := hub.Subscribe()
		go func() {
			defer mirrorUnsub()
			mqttMirror.Run(ctx, mirrorSub)
		}()
	}

	// Pairing service persists credentials on success
	pairing := &pairingService{
		client:      client,
		store:       store,
		appLabel:    cfg.App.Name,
		deviceLabel: deviceLabel(cfg.App.Instance),
	}

	// Discovery adapter announces sessions to telemetry and MQTT
	disco := &discoveryService{
		orchestrator: orchestrator,
		influx:       influxClient,
		mirror:       mqttMirror,
	}

	// API server
	server, err := api.New(api.Deps{
		Config:  cfg.API,
		WS:      cfg.WebSocket,
		Logger:  log,
		Gateway: client,
		Disco:   disco,
		Pairing: pairing,
		Bridges: store,
		Status:  tracker,
		Events:  hub,
		Version: version,
	})
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}
	if startErr := server.Start(ctx); startErr != nil {
		return fmt.Errorf("starting API server: %w", startErr)
	}
	defer func() {
		if closeErr := server.Close(); closeErr != nil {
			log.Error("error closing API server", "error", closeErr)
		}
	}()
	tracker.OnTransition(server.BroadcastTransition)

	// Verify all connections are healthy
	if err := healthCheck(ctx, db, mqttClient, influxClient); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}

	log.Info("initialisation complete, waiting for shutdown signal")

	// Wait for shutdown signal
	<-ctx.Done()

	log.Info("shutdown signal received, cleaning up")

	// Deferred Close() calls run in reverse order:
	// API server, InfluxDB, MQTT, event hub, database.

	log.Info("Lumen Core stopped")
	return nil
}

// healthCheck verifies infrastructure connections before declaring
// startup complete.
//
// Parameters:
//   - ctx: Context for timeout/cancellation
//   - db: Database connection to check
//   - mqttClient: MQTT client to check (nil when disabled)
//   - influxClient: InfluxDB client to check (nil when disabled)
//
// Returns:
//   - error: First health check failure, or nil if all healthy
func healthCheck(ctx context.Context, db *database.DB, mqttClient *mqtt.Client, influxClient *influxdb.Client) error {
	if err := db.HealthCheck(ctx); err != nil {
		return fmt.Errorf("database: %w", err)
	}
	if mqttClient != nil {
		if err := mqttClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("mqtt: %w", err)
		}
	}
	if influxClient != nil {
		if err := influxClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("influxdb: %w", err)
		}
	}
	return nil
}

// runEventLoop keeps the push event stream alive for as long as a
// session exists. Without a session it polls until pairing completes.
func runEventLoop(ctx context.Context, client *bridge.Client, stream *events.Stream, log *logging.Logger) {
	const idlePoll = 2 * time.Second

	for {
		if ctx.Err() != nil {
			return
		}
		if client.CurrentSession() == nil {
			select {
			case <-ctx.Done():
				return
			case <-time.After(idlePoll):
			}
			continue
		}

		err := client.RunEventStream(ctx, stream.Consume)
		if err != nil && !errors.Is(err, context.Canceled) {
			log.Warn("event stream stopped", "error", err)
		}
		// RunEventStream returns when the session is gone or the context
		// is cancelled; loop back to idle polling.
	}
}

// connectivityUpdate is the slice of a connectivity event the tracker
// cares about.
type connectivityUpdate struct {
	Status string `json:"status"`
	Owner  struct {
		RID string `json:"rid"`
	} `json:"owner"`
}

// trackConnectivity feeds connectivity events from the bridge's push
// stream into the status tracker.
func trackConnectivity(ctx context.Context, sub <-chan events.Envelope, unsubscribe func(), tracker *status.Tracker) {
	defer unsubscribe()
	for {
		select {
		case <-ctx.Done():
			return
		case env, ok := <-sub:
			if !ok {
				return
			}
			if env.ResourceType != "zigbee_connectivity" {
				continue
			}
			var update connectivityUpdate
			if err := json.Unmarshal(env.Data, &update); err != nil {
				continue
			}
			deviceID := update.Owner.RID
			if deviceID == "" {
				deviceID = env.ResourceID
			}
			tracker.RecordConnectivity(deviceID, update.Status)
		}
	}
}

// pairingService pairs with a bridge through the client and persists the
// resulting credentials. Satisfies api.Pairer.
type pairingService struct {
	client      *bridge.Client
	store       *bridge.Store
	appLabel    string
	deviceLabel string
}

func (p *pairingService) Pair(ctx context.Context, target discovery.Bridge) (bridge.Credentials, error) {
	creds, err := p.client.Pair(ctx, target, p.appLabel, p.deviceLabel)
	if err != nil {
		return bridge.Credentials{}, err
	}
	if saveErr := p.store.Save(ctx, creds); saveErr != nil {
		return bridge.Credentials{}, fmt.Errorf("persisting credentials: %w", saveErr)
	}
	return creds, nil
}

// discoveryService runs discovery sessions and reports telemetry.
// Satisfies api.Discoverer.
type discoveryService struct {
	orchestrator *discovery.Orchestrator
	influx       *influxdb.Client
	mirror       *mirror.Mirror
}

func (d *discoveryService) Discover(ctx context.Context) ([]discovery.Bridge, error) {
	start := time.Now()
	bridges := d.orchestrator.Discover(ctx)
	elapsed := time.Since(start)
	if d.influx != nil {
		d.influx.WriteDiscoveryMetric(len(bridges), elapsed)
	}
	if d.mirror != nil {
		d.mirror.PublishDiscovery(bridges, elapsed)
	}
	return bridges, nil
}

// deviceLabel returns the configured instance label, falling back to the
// hostname.
func deviceLabel(configured string) string {
	if configured != "" {
		return configured
	}
	hostname, err := os.Hostname()
	if err != nil || hostname == "" {
		return "lumen"
	}
	return hostname
}

// getConfigPath returns the configuration file path.
// Uses LUMEN_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("LUMEN_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/nerrad567/lumen-core/internal/bridge"
	"github.com/nerrad567/lumen-core/internal/discovery"
	"github.com/nerrad567/lumen-core/internal/events"
	"github.com/nerrad567/lumen-core/internal/infrastructure/config"
	"github.com/nerrad567/lumen-core/internal/infrastructure/logging"
	"github.com/nerrad567/lumen-core/internal/status"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight
// requests to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// Gateway is the bridge client surface the API server drives.
// *bridge.Client satisfies it; tests substitute a fake.
type Gateway interface {
	CurrentSession() *bridge.Session
	Get(ctx context.Context, resourcePath string) (*bridge.APIResponse, error)
	WriteDevice(ctx context.Context, resourceType, id string, body any) (*bridge.APIResponse, error)
	WriteGroup(ctx context.Context, id string, body any) (*bridge.APIResponse, error)
	Delete(ctx context.Context, resourcePath string) (*bridge.APIResponse, error)
	SignOut()
}

// Discoverer runs one discovery session and returns confirmed bridges.
type Discoverer interface {
	Discover(ctx context.Context) ([]discovery.Bridge, error)
}

// Pairer exchanges a pairing request with a confirmed bridge. The
// implementation persists the resulting credentials before returning.
type Pairer interface {
	Pair(ctx context.Context, target discovery.Bridge) (bridge.Credentials, error)
}

// StatusSource exposes device reachability snapshots and accepts write
// outcomes so REST-driven commands feed the same tracker as mirrored
// ones. *status.Tracker satisfies it.
type StatusSource interface {
	Get(deviceID string) status.State
	All() map[string]status.State
	RecordWriteResult(deviceID string, resourceErrors []string)
}

// PairingStore exposes read access to persisted pairings. *bridge.Store
// satisfies it.
type PairingStore interface {
	Get(ctx context.Context, bridgeID string) (bridge.Credentials, error)
	List(ctx context.Context) ([]bridge.Credentials, error)
}

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config  config.APIConfig
	WS      config.WebSocketConfig
	Logger  *logging.Logger
	Gateway Gateway
	Disco   Discoverer
	Pairing Pairer
	Bridges PairingStore // optional; paired-bridge listing answers 503 when nil
	Status  StatusSource
	Events  *events.Hub // optional; WebSocket event feed disabled when nil
	Version string
}

// Server is the HTTP API server for Lumen Core.
//
// It manages the HTTP listener, routes, middleware, and the WebSocket
// hub. The server is created with New() and started with Start().
type Server struct {
	cfg     config.APIConfig
	wsCfg   config.WebSocketConfig
	logger  *logging.Logger
	gateway Gateway
	disco   Discoverer
	pairing Pairer
	bridges PairingStore
	status  StatusSource
	events  *events.Hub
	version string
	server  *http.Server
	hub     *Hub
	cancel  context.CancelFunc // cancels background goroutines on Close()
}

// New creates a new API server with the given dependencies.
//
// The server is not started until Start() is called.
//
// Parameters:
//   - deps: Required dependencies (config, logger, gateway, status)
//
// Returns:
//   - *Server: Configured server ready to start
//   - error: If required dependencies are missing
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Gateway == nil {
		return nil, fmt.Errorf("bridge gateway is required")
	}
	if deps.Status == nil {
		return nil, fmt.Errorf("status source is required")
	}
	// Discovery and pairing are optional; their endpoints answer 503
	// when absent so a read-only deployment still serves state.

	return &Server{
		cfg:     deps.Config,
		wsCfg:   deps.WS,
		logger:  deps.Logger,
		gateway: deps.Gateway,
		disco:   deps.Disco,
		pairing: deps.Pairing,
		bridges: deps.Bridges,
		status:  deps.Status,
		events:  deps.Events,
		version: deps.Version,
	}, nil
}

// Start begins listening for HTTP connections.
//
// It sets up the router, starts the WebSocket hub, bridges the internal
// event hub onto the WebSocket feed, and launches the HTTP listener in a
// background goroutine. The server is stopped with Close().
//
// Parameters:
//   - ctx: Context for cancellation (not used for listener lifetime)
//
// Returns:
//   - error: If the server fails to start
func (s *Server) Start(ctx context.Context) error {
	var srvCtx context.Context
	srvCtx, s.cancel = context.WithCancel(ctx)

	s.hub = NewHub(s.wsCfg, s.logger)
	go s.hub.Run(srvCtx)

	if s.events != nil {
		sub, unsubscribe := s.events.Subscribe()
		go s.relayEvents(srvCtx, sub, unsubscribe)
	}

	s.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port),
		Handler:           s.buildRouter(),
		ReadTimeout:       time.Duration(s.cfg.Timeouts.Read) * time.Second,
		ReadHeaderTimeout: time.Duration(s.cfg.Timeouts.Read) * time.Second,
		WriteTimeout:      time.Duration(s.cfg.Timeouts.Write) * time.Second,
		IdleTimeout:       time.Duration(s.cfg.Timeouts.Idle) * time.Second,
	}

	go func() {
		s.logger.Info("API server starting", "address", s.server.Addr)
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()

	return nil
}

// relayEvents forwards bridge event envelopes to WebSocket subscribers
// on the "events" channel.
func (s *Server) relayEvents(ctx context.Context, sub <-chan events.Envelope, unsubscribe func()) {
	defer unsubscribe()
	for {
		select {
		case <-ctx.Done():
			return
		case env, ok := <-sub:
			if !ok {
				return
			}
			s.hub.Broadcast(ChannelEvents, env)
		}
	}
}

// BroadcastTransition pushes a device reachability change to WebSocket
// subscribers on the "status" channel. Suitable as a status.Tracker
// OnTransition callback.
func (s *Server) BroadcastTransition(t status.Transition) {
	if s.hub == nil {
		return
	}
	s.hub.Broadcast(ChannelStatus, t)
}

// Close gracefully shuts down the API server.
//
// It waits up to 10 seconds for in-flight requests to complete, then
// forcefully closes remaining connections.
func (s *Server) Close() error {
	if s.server == nil {
		return nil
	}

	if s.cancel != nil {
		s.cancel()
	}

	ctx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer cancel()

	s.logger.Info("API server shutting down")
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down API server: %w", err)
	}
	return nil
}

// HealthCheck verifies the API server is running.
func (s *Server) HealthCheck(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("api health check: %w", ctx.Err())
	default:
	}

	if s.server == nil {
		return fmt.Errorf("api server not started")
	}
	return nil
}

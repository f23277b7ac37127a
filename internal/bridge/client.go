package bridge

import (
	"bytes"
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/lumen-core/internal/infrastructure/config"
)

// Gateway client constants.
const (
	// defaultBridgePort is the HTTPS port bridges listen on.
	defaultBridgePort = 443

	// appKeyHeader carries the application key on every authenticated call.
	appKeyHeader = "hue-application-key"

	// requestIDHeader correlates requests in logs.
	requestIDHeader = "X-Request-Id"

	// resourceBasePath is the versioned resource API root.
	resourceBasePath = "/clip/v2/resource"

	// eventStreamPath is the server-push event endpoint.
	eventStreamPath = "/eventstream/clip/v2"

	// maxErrorBody caps how much of an error response is read for logging.
	maxErrorBody = 8 * 1024

	// defaultStreamIdleTimeout guards the event stream when no idle
	// timeout is configured.
	defaultStreamIdleTimeout = 5 * time.Minute
)

// APIResponse is the envelope the resource API wraps every reply in.
// Errors carries resource-level failures (a device not answering its
// radio, for example) that arrive alongside a 2xx transport status.
type APIResponse struct {
	Errors []ResourceError `json:"errors"`
	Data   json.RawMessage `json:"data"`
}

// ResourceError is one resource-level failure inside an APIResponse.
type ResourceError struct {
	Description string `json:"description"`
}

// Client is the single point through which all authenticated requests to
// a confirmed bridge flow: pairing, resource dispatch, and the event
// stream connection. It owns the process's one Session and the rate
// limiter, and applies the trust policy on every TLS handshake.
//
// Thread Safety: all methods are safe for concurrent use. Session
// mutation is serialized internally; dispatch paths share only the rate
// limiter and the in-flight semaphore.
type Client struct {
	cfg       config.BridgeConfig
	eventsCfg config.EventsConfig
	logger    Logger

	limiter  *RateLimiter
	inflight chan struct{}

	// newTrust builds the trust policy for a bridge id. Tests substitute
	// permissive policies without touching real certificate files.
	newTrust func(bridgeID string) (TrustPolicy, error)

	mu           sync.Mutex
	session      *Session
	httpClient   *http.Client
	streamClient *http.Client
	streamCancel context.CancelFunc
	onDispatch   func(method, resourceType, outcome string, duration time.Duration)
}

// NewClient creates a gateway client. No session is active until Pair or
// Resume succeeds.
//
// Parameters:
//   - cfg: Bridge settings (timeouts, trust, rate limits)
//   - eventsCfg: Event stream settings (stream timeout, reconnect backoff)
//
// Returns:
//   - *Client: Ready for pairing or credential resume
func NewClient(cfg config.BridgeConfig, eventsCfg config.EventsConfig) *Client {
	maxInFlight := cfg.Rate.MaxInFlight
	if maxInFlight < 1 {
		maxInFlight = 1
	}

	c := &Client{
		cfg:       cfg,
		eventsCfg: eventsCfg,
		logger:    noopLogger{},
		limiter:   NewRateLimiter(cfg.Rate.DeviceInterval(), cfg.Rate.GroupInterval()),
		inflight:  make(chan struct{}, maxInFlight),
	}
	c.newTrust = func(bridgeID string) (TrustPolicy, error) {
		return NewTrustPolicy(cfg.Trust, bridgeID)
	}
	return c
}

// SetLogger sets the logger for the client.
func (c *Client) SetLogger(logger Logger) {
	c.logger = logger
}

// SetOnDispatch registers an observer called after every resource
// dispatch with the method, resource type, outcome label, and elapsed
// time. Telemetry sinks hang off this without the client knowing them.
func (c *Client) SetOnDispatch(fn func(method, resourceType, outcome string, duration time.Duration)) {
	c.mu.Lock()
	c.onDispatch = fn
	c.mu.Unlock()
}

// SetTrustPolicy overrides the trust policy used for all subsequent
// sessions. Intended for tests.
func (c *Client) SetTrustPolicy(policy TrustPolicy) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.newTrust = func(string) (TrustPolicy, error) { return policy, nil }
}

// CurrentSession returns a copy of the active session, or nil when no
// session is established. This is the synchronous boundary the credential
// persistence collaborator reads from.
func (c *Client) CurrentSession() *Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session == nil {
		return nil
	}
	s := *c.session
	return &s
}

// Resume establishes a session from stored credentials without pairing.
//
// Parameters:
//   - creds: Previously persisted bridge identity and keys
//
// Returns:
//   - error: ErrNoCredentials when the application key is empty, or a
//     trust policy construction failure
func (c *Client) Resume(creds Credentials) error {
	if creds.ApplicationKey == "" {
		return ErrNoCredentials
	}
	session := &Session{
		BridgeID:       creds.BridgeID,
		Address:        creds.Address,
		Port:           creds.Port,
		ApplicationKey: creds.ApplicationKey,
		ClientKey:      creds.ClientKey,
		EstablishedAt:  time.Now().UTC(),
	}
	if err := c.establish(session); err != nil {
		return err
	}
	c.logger.Info("session resumed", "bridge", creds.BridgeID, "address", creds.Address)
	return nil
}

// SignOut tears down the active session: the event stream connection is
// cancelled and the session cleared. In-flight requests finish or time
// out on their own.
func (c *Client) SignOut() {
	c.mu.Lock()
	cancel := c.streamCancel
	c.streamCancel = nil
	c.session = nil
	httpClient := c.httpClient
	c.httpClient = nil
	c.streamClient = nil
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if httpClient != nil {
		httpClient.CloseIdleConnections()
	}
	c.logger.Info("session closed")
}

// establish installs the session and builds its TLS-pinned HTTP clients.
func (c *Client) establish(session *Session) error {
	policy, err := c.newTrust(session.BridgeID)
	if err != nil {
		return err
	}

	tlsConfig := trustTLSConfig(policy, session.hostPort())

	c.mu.Lock()
	defer c.mu.Unlock()
	c.session = session
	c.httpClient = &http.Client{
		Timeout:   c.cfg.RequestTimeoutDuration(),
		Transport: &http.Transport{TLSClientConfig: tlsConfig},
	}
	// The stream client has no overall timeout; the response body outlives
	// any per-request deadline.
	c.streamClient = &http.Client{
		Transport: &http.Transport{
			TLSClientConfig:       tlsConfig,
			ResponseHeaderTimeout: c.cfg.RequestTimeoutDuration(),
		},
	}
	return nil
}

// trustTLSConfig builds a TLS configuration that delegates the chain
// decision to the trust policy. Standard verification is disabled because
// bridge certificates rarely carry SANs the stdlib would accept; the
// policy is the sole authority.
func trustTLSConfig(policy TrustPolicy, hostPort string) *tls.Config {
	return &tls.Config{
		InsecureSkipVerify: true, //nolint:gosec // VerifyPeerCertificate enforces the trust policy
		VerifyPeerCertificate: func(rawCerts [][]byte, _ [][]*x509.Certificate) error {
			chain := make([]*x509.Certificate, 0, len(rawCerts))
			for _, raw := range rawCerts {
				cert, err := x509.ParseCertificate(raw)
				if err != nil {
					return fmt.Errorf("%w: parsing presented certificate: %v", ErrNotTrusted, err)
				}
				chain = append(chain, cert)
			}
			if !policy.ShouldTrust(chain, hostPort) {
				return ErrNotTrusted
			}
			return nil
		},
	}
}

// Get performs an authenticated read of a resource path.
//
// Parameters:
//   - ctx: Request context
//   - resourcePath: Path under the resource API root, e.g. "light" or "light/<id>"
//
// Returns:
//   - *APIResponse: Decoded envelope
//   - error: Typed dispatch outcome (see errors.go)
func (c *Client) Get(ctx context.Context, resourcePath string) (*APIResponse, error) {
	return c.dispatch(ctx, http.MethodGet, resourceBasePath+"/"+strings.TrimPrefix(resourcePath, "/"), nil)
}

// WriteDevice updates a single device resource, subject to device-class
// rate spacing and the in-flight cap.
//
// Writes beyond the in-flight cap fail immediately with
// ErrCapacityExceeded rather than queuing indefinitely.
//
// Parameters:
//   - ctx: Request context
//   - resourceType: Resource type, e.g. "light"
//   - id: Resource id
//   - body: JSON-encodable state delta
//
// Returns:
//   - *APIResponse: Decoded envelope, including resource-level errors
//   - error: Typed dispatch outcome
func (c *Client) WriteDevice(ctx context.Context, resourceType, id string, body any) (*APIResponse, error) {
	select {
	case c.inflight <- struct{}{}:
		defer func() { <-c.inflight }()
	default:
		return nil, ErrCapacityExceeded
	}

	if err := c.limiter.Wait(ctx, ClassDevice); err != nil {
		return nil, err
	}
	return c.dispatch(ctx, http.MethodPut, fmt.Sprintf("%s/%s/%s", resourceBasePath, resourceType, id), body)
}

// WriteGroup updates a grouped-light resource, subject to group-class
// rate spacing. Group writes bypass the device in-flight cap; their much
// wider spacing already bounds them.
func (c *Client) WriteGroup(ctx context.Context, id string, body any) (*APIResponse, error) {
	if err := c.limiter.Wait(ctx, ClassGroup); err != nil {
		return nil, err
	}
	return c.dispatch(ctx, http.MethodPut, resourceBasePath+"/grouped_light/"+id, body)
}

// Delete removes a resource.
func (c *Client) Delete(ctx context.Context, resourcePath string) (*APIResponse, error) {
	return c.dispatch(ctx, http.MethodDelete, resourceBasePath+"/"+strings.TrimPrefix(resourcePath, "/"), nil)
}

// dispatch performs one authenticated request, maps the outcome to the
// package's error taxonomy, and reports it to the dispatch observer.
func (c *Client) dispatch(ctx context.Context, method, path string, body any) (*APIResponse, error) {
	start := time.Now()
	resp, err := c.doDispatch(ctx, method, path, body)

	c.mu.Lock()
	observe := c.onDispatch
	c.mu.Unlock()
	if observe != nil {
		observe(method, resourceTypeFromPath(path), dispatchOutcome(err), time.Since(start))
	}
	return resp, err
}

func (c *Client) doDispatch(ctx context.Context, method, path string, body any) (*APIResponse, error) {
	c.mu.Lock()
	session := c.session
	httpClient := c.httpClient
	c.mu.Unlock()

	if session == nil {
		return nil, ErrNotAuthenticated
	}

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("bridge: encoding request body: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	requestID := uuid.NewString()
	req, err := http.NewRequestWithContext(ctx, method, session.BaseURL()+path, reader)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidAddress, path)
	}
	req.Header.Set(appKeyHeader, session.ApplicationKey)
	req.Header.Set(requestIDHeader, requestID)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := httpClient.Do(req)
	if err != nil {
		c.logger.Warn("request transport failure",
			"method", method, "path", path, "request_id", requestID, "error", err)
		return nil, fmt.Errorf("bridge: transport: %w", err)
	}
	defer resp.Body.Close()

	c.logger.Debug("request dispatched",
		"method", method,
		"path", path,
		"status", resp.StatusCode,
		"duration", time.Since(start).Round(time.Millisecond),
		"request_id", requestID,
	)

	if err := classifyStatus(resp.StatusCode); err != nil {
		io.Copy(io.Discard, io.LimitReader(resp.Body, maxErrorBody)) //nolint:errcheck // drain for connection reuse
		return nil, err
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("bridge: reading response: %w", err)
	}

	var decoded APIResponse
	if err := json.Unmarshal(raw, &decoded); err != nil {
		c.logger.Error("response decode failure",
			"path", path, "request_id", requestID, "body", string(truncate(raw, maxErrorBody)))
		return nil, fmt.Errorf("%w: %v", ErrDecodeFailure, err)
	}
	return &decoded, nil
}

// classifyStatus maps a transport status to the error taxonomy. 2xx is nil.
func classifyStatus(status int) error {
	switch {
	case status >= 200 && status < 300:
		return nil
	case status == http.StatusUnauthorized:
		return ErrNotAuthenticated
	case status == http.StatusForbidden:
		return ErrLinkButtonNotPressed
	case status == http.StatusTooManyRequests:
		return ErrRateLimited
	case status == http.StatusServiceUnavailable:
		return ErrBufferFull
	default:
		return &HTTPError{Status: status}
	}
}

// dispatchOutcome labels a dispatch result for the observer. Labels are
// stable strings suitable for metric tags.
func dispatchOutcome(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, ErrNotAuthenticated):
		return "not_authenticated"
	case errors.Is(err, ErrLinkButtonNotPressed):
		return "link_button"
	case errors.Is(err, ErrRateLimited):
		return "rate_limited"
	case errors.Is(err, ErrBufferFull):
		return "buffer_full"
	case errors.Is(err, ErrDecodeFailure):
		return "decode_failure"
	}

	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return fmt.Sprintf("http_%d", httpErr.Status)
	}
	return "transport_error"
}

// resourceTypeFromPath extracts the resource type from a dispatch path,
// e.g. "/clip/v2/resource/light/abc" yields "light".
func resourceTypeFromPath(path string) string {
	rest := strings.TrimPrefix(path, resourceBasePath)
	rest = strings.TrimPrefix(rest, "/")
	if i := strings.IndexByte(rest, '/'); i >= 0 {
		rest = rest[:i]
	}
	if rest == "" {
		return "unknown"
	}
	return rest
}

// OpenEvents opens the long-lived server-push connection and returns its
// body. The caller owns the reader; closing it tears the stream down. A
// stream that stays silent past the configured idle timeout is cut so the
// reconnect loop can notice a half-dead connection.
//
// Returns:
//   - io.ReadCloser: Unbounded stream of line-delimited event frames
//   - error: ErrNotAuthenticated without a session, or a typed outcome
func (c *Client) OpenEvents(ctx context.Context) (io.ReadCloser, error) {
	c.mu.Lock()
	session := c.session
	streamClient := c.streamClient
	c.mu.Unlock()

	if session == nil {
		return nil, ErrNotAuthenticated
	}

	streamCtx, cancel := context.WithCancel(ctx)

	req, err := http.NewRequestWithContext(streamCtx, http.MethodGet, session.BaseURL()+eventStreamPath, nil)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("%w: %s", ErrInvalidAddress, eventStreamPath)
	}
	req.Header.Set(appKeyHeader, session.ApplicationKey)
	req.Header.Set("Accept", "text/event-stream")

	resp, err := streamClient.Do(req)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("bridge: transport: %w", err)
	}
	if err := classifyStatus(resp.StatusCode); err != nil {
		resp.Body.Close()
		cancel()
		return nil, err
	}

	idle := c.eventsCfg.StreamTimeoutDuration()
	if idle <= 0 {
		idle = defaultStreamIdleTimeout
	}
	return newIdleTimeoutBody(resp.Body, idle, cancel), nil
}

// idleTimeoutBody wraps the event stream body with a watchdog: every
// successful Read rearms it, and a stream that produces nothing for the
// idle window gets its request context cancelled, failing the next Read.
type idleTimeoutBody struct {
	io.ReadCloser
	timer  *time.Timer
	idle   time.Duration
	cancel context.CancelFunc
}

func newIdleTimeoutBody(body io.ReadCloser, idle time.Duration, cancel context.CancelFunc) *idleTimeoutBody {
	return &idleTimeoutBody{
		ReadCloser: body,
		timer:      time.AfterFunc(idle, cancel),
		idle:       idle,
		cancel:     cancel,
	}
}

func (b *idleTimeoutBody) Read(p []byte) (int, error) {
	n, err := b.ReadCloser.Read(p)
	if err == nil {
		b.timer.Reset(b.idle)
	}
	return n, err
}

func (b *idleTimeoutBody) Close() error {
	b.timer.Stop()
	err := b.ReadCloser.Close()
	b.cancel()
	return err
}

// RunEventStream keeps the event stream connected until ctx is cancelled
// or the session ends, reconnecting with bounded exponential backoff.
// Each established connection's body is handed to consume, which returns
// when the transport is lost; the reconnect decision lives here, not in
// the consumer.
//
// Parameters:
//   - ctx: Supervision context; cancellation stops the loop
//   - consume: Reads the stream until transport loss, returning the cause
//
// Returns:
//   - error: ctx.Err() on cancellation, ErrNotAuthenticated on sign-out
func (c *Client) RunEventStream(ctx context.Context, consume func(context.Context, io.Reader) error) error {
	ctx, cancel := context.WithCancel(ctx)
	c.mu.Lock()
	c.streamCancel = cancel
	c.mu.Unlock()
	defer cancel()

	initial := time.Duration(c.eventsCfg.Reconnect.InitialDelay) * time.Second
	max := time.Duration(c.eventsCfg.Reconnect.MaxDelay) * time.Second
	if initial <= 0 {
		initial = time.Second
	}
	if max < initial {
		max = initial
	}
	delay := initial

	for {
		stream, err := c.OpenEvents(ctx)
		if err == nil {
			delay = initial
			err = consume(ctx, stream)
			stream.Close()
		}

		if ctx.Err() != nil {
			return ctx.Err()
		}
		if errors.Is(err, ErrNotAuthenticated) {
			return err
		}

		c.logger.Warn("event stream lost, reconnecting", "delay", delay, "error", err)
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
		delay *= 2
		if delay > max {
			delay = max
		}
	}
}

// truncate bounds a byte slice for logging.
func truncate(b []byte, n int) []byte {
	if len(b) <= n {
		return b
	}
	return b[:n]
}

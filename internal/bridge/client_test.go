package bridge

import (
	"context"
	"crypto/x509"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"github.com/nerrad567/lumen-core/internal/discovery"
	"github.com/nerrad567/lumen-core/internal/infrastructure/config"
)

// permissiveTrust accepts every certificate. Tests exercise trust policy
// separately; here the handshake just needs to succeed.
type permissiveTrust struct{}

func (permissiveTrust) ShouldTrust([]*x509.Certificate, string) bool { return true }

func testBridgeConfig() config.BridgeConfig {
	return config.BridgeConfig{
		RequestTimeout: 5,
		Rate: config.RateLimitConfig{
			DeviceIntervalMS: 5,
			GroupIntervalMS:  10,
			MaxInFlight:      2,
		},
	}
}

func testEventsConfig() config.EventsConfig {
	return config.EventsConfig{
		StreamTimeout:    60,
		SubscriberBuffer: 8,
		Reconnect:        config.ReconnectConfig{InitialDelay: 1, MaxDelay: 4},
	}
}

// newTestClient builds a client with a resumed session against the server.
func newTestClient(t *testing.T, server *httptest.Server) *Client {
	t.Helper()

	c := NewClient(testBridgeConfig(), testEventsConfig())
	c.SetTrustPolicy(permissiveTrust{})

	address, port := splitServerAddress(t, server)
	err := c.Resume(Credentials{
		BridgeID:       "ECB5FA000001",
		Address:        address,
		Port:           port,
		ApplicationKey: "abc123",
	})
	if err != nil {
		t.Fatalf("Resume() error = %v", err)
	}
	return c
}

func splitServerAddress(t *testing.T, server *httptest.Server) (string, int) {
	t.Helper()

	host, portStr, err := net.SplitHostPort(server.Listener.Addr().String())
	if err != nil {
		t.Fatalf("splitting server address: %v", err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		t.Fatalf("parsing server port: %v", err)
	}
	return host, port
}

func TestClient_NoSessionIsNotAuthenticated(t *testing.T) {
	c := NewClient(testBridgeConfig(), testEventsConfig())

	if _, err := c.Get(context.Background(), "light"); !errors.Is(err, ErrNotAuthenticated) {
		t.Errorf("Get() error = %v, want ErrNotAuthenticated", err)
	}
	if _, err := c.OpenEvents(context.Background()); !errors.Is(err, ErrNotAuthenticated) {
		t.Errorf("OpenEvents() error = %v, want ErrNotAuthenticated", err)
	}
	if c.CurrentSession() != nil {
		t.Error("CurrentSession() != nil before resume")
	}
}

func TestClient_AttachesApplicationKey(t *testing.T) {
	var gotKey, gotRequestID string
	server := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotKey = r.Header.Get("hue-application-key")
		gotRequestID = r.Header.Get("X-Request-Id")
		_, _ = w.Write([]byte(`{"errors":[],"data":[]}`))
	}))
	defer server.Close()

	c := newTestClient(t, server)

	if _, err := c.Get(context.Background(), "light"); err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if gotKey != "abc123" {
		t.Errorf("application key header = %q, want abc123", gotKey)
	}
	if gotRequestID == "" {
		t.Error("request id header missing")
	}
}

func TestClient_StatusTaxonomy(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		want     error
		wantHTTP int
	}{
		{"unauthorized", http.StatusUnauthorized, ErrNotAuthenticated, 0},
		{"link button", http.StatusForbidden, ErrLinkButtonNotPressed, 0},
		{"rate limited", http.StatusTooManyRequests, ErrRateLimited, 0},
		{"buffer full", http.StatusServiceUnavailable, ErrBufferFull, 0},
		{"unclassified", http.StatusBadGateway, nil, http.StatusBadGateway},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
			}))
			defer server.Close()

			c := newTestClient(t, server)
			_, err := c.Get(context.Background(), "light")

			if tt.want != nil {
				if !errors.Is(err, tt.want) {
					t.Errorf("Get() error = %v, want %v", err, tt.want)
				}
				return
			}
			var httpErr *HTTPError
			if !errors.As(err, &httpErr) || httpErr.Status != tt.wantHTTP {
				t.Errorf("Get() error = %v, want HTTPError(%d)", err, tt.wantHTTP)
			}
		})
	}
}

func TestClient_DecodeFailureSurfaced(t *testing.T) {
	server := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`this is not json`))
	}))
	defer server.Close()

	c := newTestClient(t, server)

	if _, err := c.Get(context.Background(), "light"); !errors.Is(err, ErrDecodeFailure) {
		t.Errorf("Get() error = %v, want ErrDecodeFailure", err)
	}
}

func TestClient_WriteDeviceSurfacesResourceErrors(t *testing.T) {
	server := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPut {
			t.Errorf("method = %s, want PUT", r.Method)
		}
		_, _ = w.Write([]byte(`{"errors":[{"description":"device (light) is unreachable"}],"data":[]}`))
	}))
	defer server.Close()

	c := newTestClient(t, server)

	resp, err := c.WriteDevice(context.Background(), "light", "abcd-1234", map[string]any{"on": map[string]bool{"on": true}})
	if err != nil {
		t.Fatalf("WriteDevice() error = %v", err)
	}
	if len(resp.Errors) != 1 || resp.Errors[0].Description != "device (light) is unreachable" {
		t.Errorf("resource errors = %+v", resp.Errors)
	}
}

func TestClient_CapacityExceeded(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPut {
			<-release
		}
		_, _ = w.Write([]byte(`{"errors":[],"data":[]}`))
	}))
	defer server.Close()

	cfg := testBridgeConfig()
	cfg.Rate.MaxInFlight = 1

	c := NewClient(cfg, testEventsConfig())
	c.SetTrustPolicy(permissiveTrust{})
	address, port := splitServerAddress(t, server)
	if err := c.Resume(Credentials{BridgeID: "ECB5FA000001", Address: address, Port: port, ApplicationKey: "abc123"}); err != nil {
		t.Fatalf("Resume() error = %v", err)
	}

	firstDone := make(chan error, 1)
	go func() {
		_, err := c.WriteDevice(context.Background(), "light", "one", map[string]bool{"on": true})
		firstDone <- err
	}()

	// Wait until the first write holds the in-flight slot.
	deadline := time.Now().Add(2 * time.Second)
	for {
		if len(c.inflight) == 1 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("first write never became in-flight")
		}
		time.Sleep(time.Millisecond)
	}

	if _, err := c.WriteDevice(context.Background(), "light", "two", map[string]bool{"on": true}); !errors.Is(err, ErrCapacityExceeded) {
		t.Errorf("second WriteDevice() error = %v, want ErrCapacityExceeded", err)
	}

	close(release)
	if err := <-firstDone; err != nil {
		t.Errorf("first WriteDevice() error = %v", err)
	}
}

func TestClient_PairingScenario(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api":
			if calls.Add(1) <= 3 {
				_, _ = w.Write([]byte(`[{"error":{"type":101,"address":"","description":"link button not pressed"}}]`))
				return
			}
			_, _ = w.Write([]byte(`[{"success":{"username":"abc123","clientkey":"feedface"}}]`))
		default:
			gotKey := r.Header.Get("hue-application-key")
			if gotKey != "abc123" {
				t.Errorf("post-pairing request key = %q, want abc123", gotKey)
			}
			_, _ = w.Write([]byte(`{"errors":[],"data":[]}`))
		}
	}))
	defer server.Close()

	c := NewClient(testBridgeConfig(), testEventsConfig())
	c.SetTrustPolicy(permissiveTrust{})

	address, port := splitServerAddress(t, server)
	target := discovery.Bridge{ID: "ECB5FA000001", Address: address, Port: port, Name: "Loft", Model: "BSB002"}

	// The caller polls: three refusals, then success.
	var creds Credentials
	var err error
	for attempt := 0; attempt < 5; attempt++ {
		creds, err = c.Pair(context.Background(), target, "lumen", "testhost")
		if !errors.Is(err, ErrLinkButtonNotPressed) {
			break
		}
	}
	if err != nil {
		t.Fatalf("Pair() error = %v", err)
	}
	if got := calls.Load(); got != 4 {
		t.Errorf("pairing attempts = %d, want 4", got)
	}
	if creds.ApplicationKey != "abc123" || creds.ClientKey != "feedface" {
		t.Errorf("credentials = %+v, want abc123/feedface", creds)
	}

	session := c.CurrentSession()
	if session == nil {
		t.Fatal("CurrentSession() = nil after pairing")
	}
	if session.ApplicationKey != "abc123" {
		t.Errorf("session key = %q, want abc123", session.ApplicationKey)
	}

	// Subsequent authenticated traffic attaches the issued key.
	if _, err := c.Get(context.Background(), "light"); err != nil {
		t.Fatalf("Get() after pairing error = %v", err)
	}
}

func TestClient_SignOutClearsSession(t *testing.T) {
	server := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"errors":[],"data":[]}`))
	}))
	defer server.Close()

	c := newTestClient(t, server)
	c.SignOut()

	if c.CurrentSession() != nil {
		t.Error("CurrentSession() != nil after sign-out")
	}
	if _, err := c.Get(context.Background(), "light"); !errors.Is(err, ErrNotAuthenticated) {
		t.Errorf("Get() after sign-out error = %v, want ErrNotAuthenticated", err)
	}
}

func TestClient_DispatchObserverSeesOutcomes(t *testing.T) {
	var status atomic.Int32
	status.Store(http.StatusOK)
	server := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(int(status.Load()))
		_, _ = w.Write([]byte(`{"errors":[],"data":[]}`))
	}))
	defer server.Close()

	c := newTestClient(t, server)

	type observation struct {
		method, resourceType, outcome string
		duration                      time.Duration
	}
	var got []observation
	c.SetOnDispatch(func(method, resourceType, outcome string, duration time.Duration) {
		got = append(got, observation{method, resourceType, outcome, duration})
	})

	if _, err := c.WriteDevice(context.Background(), "light", "abc-1", map[string]any{"on": true}); err != nil {
		t.Fatalf("WriteDevice() error = %v", err)
	}
	status.Store(http.StatusTooManyRequests)
	if _, err := c.Get(context.Background(), "light"); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("Get() error = %v, want ErrRateLimited", err)
	}

	if len(got) != 2 {
		t.Fatalf("observed %d dispatches, want 2", len(got))
	}
	first, second := got[0], got[1]
	if first.method != http.MethodPut || first.resourceType != "light" || first.outcome != "success" {
		t.Errorf("first observation = %+v", first)
	}
	if first.duration <= 0 {
		t.Errorf("first duration = %v, want > 0", first.duration)
	}
	if second.method != http.MethodGet || second.outcome != "rate_limited" {
		t.Errorf("second observation = %+v", second)
	}
}

func TestDispatchOutcomeLabels(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{nil, "success"},
		{ErrNotAuthenticated, "not_authenticated"},
		{ErrLinkButtonNotPressed, "link_button"},
		{ErrRateLimited, "rate_limited"},
		{ErrBufferFull, "buffer_full"},
		{ErrDecodeFailure, "decode_failure"},
		{&HTTPError{Status: http.StatusNotFound}, "http_404"},
		{errors.New("dial tcp: connection refused"), "transport_error"},
	}

	for _, tt := range tests {
		if got := dispatchOutcome(tt.err); got != tt.want {
			t.Errorf("dispatchOutcome(%v) = %q, want %q", tt.err, got, tt.want)
		}
	}
}

func TestClient_StreamIdleTimeoutCutsSilentStream(t *testing.T) {
	server := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("data: []\n\n"))
		if f, ok := w.(http.Flusher); ok {
			f.Flush()
		}
		// Go silent until the client cuts the connection.
		<-r.Context().Done()
	}))
	defer server.Close()

	eventsCfg := testEventsConfig()
	eventsCfg.StreamTimeout = 1
	c := NewClient(testBridgeConfig(), eventsCfg)
	c.SetTrustPolicy(permissiveTrust{})

	address, port := splitServerAddress(t, server)
	err := c.Resume(Credentials{
		BridgeID:       "ECB5FA000001",
		Address:        address,
		Port:           port,
		ApplicationKey: "abc123",
	})
	if err != nil {
		t.Fatalf("Resume() error = %v", err)
	}

	stream, err := c.OpenEvents(context.Background())
	if err != nil {
		t.Fatalf("OpenEvents() error = %v", err)
	}
	defer stream.Close()

	if _, err := stream.Read(make([]byte, 64)); err != nil {
		t.Fatalf("reading first frame: %v", err)
	}

	readErr := make(chan error, 1)
	go func() {
		buf := make([]byte, 64)
		for {
			if _, err := stream.Read(buf); err != nil {
				readErr <- err
				return
			}
		}
	}()

	select {
	case err := <-readErr:
		if err == nil {
			t.Fatal("silent stream read error = nil, want idle timeout")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("silent stream was never cut by the idle timeout")
	}
}

func TestSession_DoesNotLeakKeys(t *testing.T) {
	s := &Session{BridgeID: "ECB5FA000001", Address: "192.168.1.50", ApplicationKey: "secret"}

	if got := s.String(); got != "session bridge=ECB5FA000001 address=192.168.1.50" {
		t.Errorf("String() = %q leaks credentials", got)
	}
}

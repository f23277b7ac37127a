package mirror

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/lumen-core/internal/bridge"
	"github.com/nerrad567/lumen-core/internal/discovery"
	"github.com/nerrad567/lumen-core/internal/events"
	"github.com/nerrad567/lumen-core/internal/infrastructure/mqtt"
	"github.com/nerrad567/lumen-core/internal/status"
)

// fakeBroker records publishes and captures the command handler.
type fakeBroker struct {
	mu        sync.Mutex
	published []publishedMessage
	handler   mqtt.MessageHandler
	subTopic  string
}

type publishedMessage struct {
	topic    string
	payload  []byte
	retained bool
}

func (b *fakeBroker) Publish(topic string, payload []byte, qos byte, retained bool) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.published = append(b.published, publishedMessage{topic: topic, payload: payload, retained: retained})
	return nil
}

func (b *fakeBroker) PublishRetained(topic string, payload []byte) error {
	return b.Publish(topic, payload, 1, true)
}

func (b *fakeBroker) Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subTopic = topic
	b.handler = handler
	return nil
}

func (b *fakeBroker) messages() []publishedMessage {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]publishedMessage, len(b.published))
	copy(out, b.published)
	return out
}

// fakeWriter records dispatched commands.
type fakeWriter struct {
	mu           sync.Mutex
	deviceWrites []dispatchedCommand
	groupWrites  []dispatchedCommand
	response     *bridge.APIResponse
	err          error
}

type dispatchedCommand struct {
	resourceType string
	resourceID   string
	body         any
}

func (w *fakeWriter) WriteDevice(_ context.Context, resourceType, id string, body any) (*bridge.APIResponse, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.deviceWrites = append(w.deviceWrites, dispatchedCommand{resourceType: resourceType, resourceID: id, body: body})
	return w.response, w.err
}

func (w *fakeWriter) WriteGroup(_ context.Context, id string, body any) (*bridge.APIResponse, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.groupWrites = append(w.groupWrites, dispatchedCommand{resourceID: id, body: body})
	return w.response, w.err
}

func TestMirror_RepublishesEnvelopes(t *testing.T) {
	broker := &fakeBroker{}
	m := New(broker, &fakeWriter{}, nil, 1)

	sub := make(chan events.Envelope, 2)
	sub <- events.Envelope{Type: "update", ResourceID: "abc-1", ResourceType: "light"}
	sub <- events.Envelope{Type: "update", ResourceID: "def-2", ResourceType: "grouped_light"}
	close(sub)

	m.Run(context.Background(), sub)

	msgs := broker.messages()
	if len(msgs) != 2 {
		t.Fatalf("published %d messages, want 2", len(msgs))
	}
	if msgs[0].topic != "lumen/events/light/abc-1" {
		t.Errorf("topic = %q, want lumen/events/light/abc-1", msgs[0].topic)
	}
	if msgs[0].retained {
		t.Error("event messages must not be retained")
	}

	var env events.Envelope
	if err := json.Unmarshal(msgs[0].payload, &env); err != nil {
		t.Fatalf("payload is not a valid envelope: %v", err)
	}
	if env.ResourceID != "abc-1" || env.Type != "update" {
		t.Errorf("envelope = %+v", env)
	}
}

func TestMirror_RunStopsOnCancellation(t *testing.T) {
	broker := &fakeBroker{}
	m := New(broker, &fakeWriter{}, nil, 1)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	sub := make(chan events.Envelope) // never closed, never written
	done := make(chan struct{})
	go func() {
		m.Run(ctx, sub)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancellation")
	}
}

func TestMirror_PublishesTransitionsRetained(t *testing.T) {
	broker := &fakeBroker{}
	m := New(broker, &fakeWriter{}, nil, 1)

	m.PublishTransition(status.Transition{
		DeviceID: "dev-9",
		From:     status.StateOnline,
		To:       status.StateIssues,
		Reason:   "device unreachable",
		At:       time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	})

	msgs := broker.messages()
	if len(msgs) != 1 {
		t.Fatalf("published %d messages, want 1", len(msgs))
	}
	if msgs[0].topic != "lumen/status/dev-9" {
		t.Errorf("topic = %q, want lumen/status/dev-9", msgs[0].topic)
	}
	if !msgs[0].retained {
		t.Error("status messages must be retained")
	}

	var payload statusPayload
	if err := json.Unmarshal(msgs[0].payload, &payload); err != nil {
		t.Fatalf("payload is not valid JSON: %v", err)
	}
	if payload.State != string(status.StateIssues) || payload.Reason != "device unreachable" {
		t.Errorf("payload = %+v", payload)
	}
}

func TestMirror_PublishesDiscoveryResults(t *testing.T) {
	broker := &fakeBroker{}
	m := New(broker, &fakeWriter{}, nil, 1)

	m.PublishDiscovery([]discovery.Bridge{
		{ID: "ECB5FA000001", Address: "10.0.0.5", Port: 443},
	}, 9*time.Second)

	msgs := broker.messages()
	if len(msgs) != 1 {
		t.Fatalf("published %d messages, want 1", len(msgs))
	}
	if msgs[0].topic != "lumen/discovery" {
		t.Errorf("topic = %q, want lumen/discovery", msgs[0].topic)
	}

	var payload discoveryPayload
	if err := json.Unmarshal(msgs[0].payload, &payload); err != nil {
		t.Fatalf("payload is not valid JSON: %v", err)
	}
	if len(payload.Bridges) != 1 || payload.Bridges[0].ID != "ECB5FA000001" {
		t.Errorf("payload = %+v", payload)
	}
}

func TestMirror_RoutesDeviceCommands(t *testing.T) {
	broker := &fakeBroker{}
	writer := &fakeWriter{response: &bridge.APIResponse{}}
	tracker := status.NewTracker()
	m := New(broker, writer, tracker, 1)

	if err := m.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if broker.subTopic != "lumen/command/+/+" {
		t.Fatalf("subscribed to %q, want lumen/command/+/+", broker.subTopic)
	}

	body := []byte(`{"on":{"on":true}}`)
	if err := broker.handler("lumen/command/light/abc-1", body); err != nil {
		t.Fatalf("handler error = %v", err)
	}

	if len(writer.deviceWrites) != 1 {
		t.Fatalf("dispatched %d device writes, want 1", len(writer.deviceWrites))
	}
	got := writer.deviceWrites[0]
	if got.resourceType != "light" || got.resourceID != "abc-1" {
		t.Errorf("dispatched %+v", got)
	}

	// A clean write marks the device online.
	if state := tracker.Get("abc-1"); state != status.StateOnline {
		t.Errorf("tracker state = %q, want online", state)
	}
}

func TestMirror_RoutesGroupCommands(t *testing.T) {
	broker := &fakeBroker{}
	writer := &fakeWriter{response: &bridge.APIResponse{}}
	m := New(broker, writer, nil, 1)

	if err := m.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if err := broker.handler("lumen/command/group/room-1", []byte(`{"on":{"on":false}}`)); err != nil {
		t.Fatalf("handler error = %v", err)
	}

	if len(writer.groupWrites) != 1 {
		t.Fatalf("dispatched %d group writes, want 1", len(writer.groupWrites))
	}
	if len(writer.deviceWrites) != 0 {
		t.Errorf("group command must not reach WriteDevice")
	}
	if writer.groupWrites[0].resourceID != "room-1" {
		t.Errorf("group id = %q, want room-1", writer.groupWrites[0].resourceID)
	}
}

func TestMirror_CommandWithResourceErrorsFeedsTracker(t *testing.T) {
	broker := &fakeBroker{}
	writer := &fakeWriter{response: &bridge.APIResponse{
		Errors: []bridge.ResourceError{{Description: "device (light) is unreachable"}},
	}}
	tracker := status.NewTracker()
	m := New(broker, writer, tracker, 1)

	if err := m.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if err := broker.handler("lumen/command/light/abc-1", []byte(`{}`)); err != nil {
		t.Fatalf("handler error = %v", err)
	}

	if state := tracker.Get("abc-1"); state != status.StateIssues {
		t.Errorf("tracker state = %q, want issues", state)
	}
}

func TestMirror_RejectsMalformedCommands(t *testing.T) {
	broker := &fakeBroker{}
	writer := &fakeWriter{}
	m := New(broker, writer, nil, 1)

	if err := m.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	tests := []struct {
		name    string
		topic   string
		payload []byte
		wantErr error
	}{
		{"missing id segment", "lumen/command/light", []byte(`{}`), ErrMalformedTopic},
		{"wrong prefix", "other/command/light/abc", []byte(`{}`), ErrMalformedTopic},
		{"empty payload", "lumen/command/light/abc", nil, ErrEmptyCommand},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := broker.handler(tt.topic, tt.payload)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("handler error = %v, want %v", err, tt.wantErr)
			}
		})
	}

	if len(writer.deviceWrites)+len(writer.groupWrites) != 0 {
		t.Error("malformed commands must not be dispatched")
	}
}

func TestMirror_DispatchFailureIsSurfaced(t *testing.T) {
	broker := &fakeBroker{}
	writer := &fakeWriter{err: bridge.ErrCapacityExceeded}
	tracker := status.NewTracker()
	m := New(broker, writer, tracker, 1)

	if err := m.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	err := broker.handler("lumen/command/light/abc-1", []byte(`{}`))
	if !errors.Is(err, bridge.ErrCapacityExceeded) {
		t.Errorf("handler error = %v, want ErrCapacityExceeded", err)
	}

	// A failed dispatch carries no reachability signal.
	if state := tracker.Get("abc-1"); state != status.StateUnknown {
		t.Errorf("tracker state = %q, want unknown", state)
	}
}

package mirror

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/nerrad567/lumen-core/internal/bridge"
	"github.com/nerrad567/lumen-core/internal/discovery"
	"github.com/nerrad567/lumen-core/internal/events"
	"github.com/nerrad567/lumen-core/internal/infrastructure/mqtt"
	"github.com/nerrad567/lumen-core/internal/status"
)

// groupResourceType is the command topic segment routed as a group write.
const groupResourceType = "group"

// Broker is the MQTT surface the mirror needs. *mqtt.Client satisfies it;
// tests substitute a recording fake.
type Broker interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
	PublishRetained(topic string, payload []byte) error
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
}

// CommandWriter dispatches inbound MQTT commands to the bridge.
// *bridge.Client satisfies it.
type CommandWriter interface {
	WriteDevice(ctx context.Context, resourceType, id string, body any) (*bridge.APIResponse, error)
	WriteGroup(ctx context.Context, id string, body any) (*bridge.APIResponse, error)
}

// Logger is the minimal logging interface accepted by the mirror.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Mirror republishes internal flows onto MQTT and routes inbound command
// topics to the bridge client.
//
// Thread Safety: all methods are safe for concurrent use. The mirror
// holds no mutable state; concurrency control lives in the broker and
// the command writer.
type Mirror struct {
	broker  Broker
	writer  CommandWriter
	tracker *status.Tracker
	topics  mqtt.Topics
	qos     byte
	logger  Logger
}

// statusPayload is the retained per-device reachability document.
type statusPayload struct {
	DeviceID string `json:"device_id"`
	State    string `json:"state"`
	Reason   string `json:"reason,omitempty"`
	At       string `json:"at"`
}

// discoveryPayload announces the outcome of one discovery session.
type discoveryPayload struct {
	Bridges  []discovery.Bridge `json:"bridges"`
	Duration string             `json:"duration"`
	At       string             `json:"at"`
}

// New creates a mirror publishing through broker and dispatching commands
// through writer. The tracker receives write results from inbound
// commands so MQTT-originated writes feed reachability like any other.
//
// Parameters:
//   - broker: MQTT client (or fake)
//   - writer: Bridge command dispatcher
//   - tracker: Device status tracker, may be nil
//   - qos: QoS level for published messages
//
// Returns:
//   - *Mirror: Ready mirror; call Start to begin consuming commands
func New(broker Broker, writer CommandWriter, tracker *status.Tracker, qos byte) *Mirror {
	return &Mirror{
		broker:  broker,
		writer:  writer,
		tracker: tracker,
		qos:     qos,
		logger:  noopLogger{},
	}
}

// SetLogger replaces the mirror's logger.
func (m *Mirror) SetLogger(logger Logger) {
	if logger != nil {
		m.logger = logger
	}
}

// Start subscribes to the inbound command pattern. Call once after the
// broker is connected.
func (m *Mirror) Start(ctx context.Context) error {
	handler := func(topic string, payload []byte) error {
		return m.handleCommand(ctx, topic, payload)
	}
	if err := m.broker.Subscribe(m.topics.AllCommands(), m.qos, handler); err != nil {
		return fmt.Errorf("subscribing to command topics: %w", err)
	}
	m.logger.Info("mirror consuming commands", "pattern", m.topics.AllCommands())
	return nil
}

// Run consumes event envelopes from sub and republishes each on its
// event topic until ctx is cancelled or the channel closes.
//
// Parameters:
//   - ctx: Cancellation context
//   - sub: Envelope channel from an events.Hub subscription
func (m *Mirror) Run(ctx context.Context, sub <-chan events.Envelope) {
	for {
		select {
		case <-ctx.Done():
			return
		case env, ok := <-sub:
			if !ok {
				return
			}
			m.publishEvent(env)
		}
	}
}

// PublishTransition publishes a device reachability change on the
// retained status topic. Suitable as a status.Tracker OnTransition
// callback.
func (m *Mirror) PublishTransition(t status.Transition) {
	payload, err := json.Marshal(statusPayload{
		DeviceID: t.DeviceID,
		State:    string(t.To),
		Reason:   t.Reason,
		At:       t.At.UTC().Format(time.RFC3339),
	})
	if err != nil {
		m.logger.Error("marshalling status transition", "device", t.DeviceID, "error", err)
		return
	}
	if err := m.broker.PublishRetained(m.topics.DeviceStatus(t.DeviceID), payload); err != nil {
		m.logger.Warn("publishing status transition", "device", t.DeviceID, "error", err)
	}
}

// PublishDiscovery announces a completed discovery session's confirmed
// bridges.
func (m *Mirror) PublishDiscovery(bridges []discovery.Bridge, duration time.Duration) {
	payload, err := json.Marshal(discoveryPayload{
		Bridges:  bridges,
		Duration: duration.Round(time.Millisecond).String(),
		At:       time.Now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		m.logger.Error("marshalling discovery announcement", "error", err)
		return
	}
	if err := m.broker.Publish(m.topics.Discovery(), payload, m.qos, false); err != nil {
		m.logger.Warn("publishing discovery announcement", "error", err)
	}
}

// publishEvent mirrors one envelope onto its event topic.
func (m *Mirror) publishEvent(env events.Envelope) {
	payload, err := json.Marshal(env)
	if err != nil {
		m.logger.Error("marshalling event envelope", "resource", env.ResourceID, "error", err)
		return
	}
	topic := m.topics.Event(env.ResourceType, env.ResourceID)
	if err := m.broker.Publish(topic, payload, m.qos, false); err != nil {
		m.logger.Warn("mirroring event", "topic", topic, "error", err)
	}
}

// handleCommand routes one inbound command message to the bridge.
func (m *Mirror) handleCommand(ctx context.Context, topic string, payload []byte) error {
	resourceType, resourceID, err := parseCommandTopic(topic)
	if err != nil {
		m.logger.Warn("dropping command", "topic", topic, "error", err)
		return err
	}
	if len(payload) == 0 {
		m.logger.Warn("dropping command", "topic", topic, "error", ErrEmptyCommand)
		return ErrEmptyCommand
	}

	body := json.RawMessage(payload)

	var resp *bridge.APIResponse
	if resourceType == groupResourceType {
		resp, err = m.writer.WriteGroup(ctx, resourceID, body)
	} else {
		resp, err = m.writer.WriteDevice(ctx, resourceType, resourceID, body)
	}
	if err != nil {
		m.logger.Warn("command dispatch failed",
			"resource_type", resourceType, "resource_id", resourceID, "error", err)
		return err
	}

	if m.tracker != nil && resourceType != groupResourceType {
		m.tracker.RecordWriteResult(resourceID, errorDescriptions(resp))
	}
	m.logger.Debug("command dispatched",
		"resource_type", resourceType, "resource_id", resourceID)
	return nil
}

// parseCommandTopic extracts the resource type and id from a
// lumen/command/{type}/{id} topic.
func parseCommandTopic(topic string) (resourceType, resourceID string, err error) {
	parts := strings.Split(topic, "/")
	if len(parts) != 4 || parts[0] != mqtt.TopicPrefix || parts[1] != "command" {
		return "", "", fmt.Errorf("%w: %q", ErrMalformedTopic, topic)
	}
	if parts[2] == "" || parts[3] == "" {
		return "", "", fmt.Errorf("%w: %q", ErrMalformedTopic, topic)
	}
	return parts[2], parts[3], nil
}

// errorDescriptions flattens resource-level errors for the status tracker.
func errorDescriptions(resp *bridge.APIResponse) []string {
	if resp == nil || len(resp.Errors) == 0 {
		return nil
	}
	descs := make([]string, 0, len(resp.Errors))
	for _, e := range resp.Errors {
		descs = append(descs, e.Description)
	}
	return descs
}

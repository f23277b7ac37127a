package mqtt

import "fmt"

// maxPayloadSize caps publish payloads (1MB), matching typical broker
// limits.
const maxPayloadSize = 1 << 20

// Publish sends a message and waits for broker acknowledgment.
//
// Parameters:
//   - topic: Destination topic
//   - payload: Message payload (typically JSON, max 1MB)
//   - qos: Quality of service level (0, 1, or 2)
//   - retained: Whether the broker keeps the message for new subscribers.
//     Use for state topics, never for commands or events.
//
// Returns:
//   - error: Validation failure, ErrNotConnected, or publish failure
func (c *Client) Publish(topic string, payload []byte, qos byte, retained bool) error {
	if topic == "" {
		return ErrInvalidTopic
	}
	if qos > maxQoS {
		return ErrInvalidQoS
	}
	if len(payload) > maxPayloadSize {
		return fmt.Errorf("%w: payload size %d exceeds maximum %d bytes",
			ErrPublishFailed, len(payload), maxPayloadSize)
	}
	if !c.IsConnected() {
		return ErrNotConnected
	}

	token := c.client.Publish(topic, qos, retained, payload)
	if !token.WaitTimeout(defaultPublishTimeout) {
		return fmt.Errorf("%w: timeout after %v", ErrPublishFailed, defaultPublishTimeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("%w: %w", ErrPublishFailed, err)
	}
	return nil
}

// PublishRetained publishes a retained message at the configured QoS.
func (c *Client) PublishRetained(topic string, payload []byte) error {
	return c.Publish(topic, payload, byte(c.cfg.QoS), true)
}

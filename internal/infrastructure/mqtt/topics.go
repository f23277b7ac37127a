package mqtt

import "fmt"

// Topic scheme: lumen/{category}/... — event mirror, retained device
// status, inbound commands and the system status (LWT) topic.
const (
	// TopicPrefix is the base for all Lumen topics.
	TopicPrefix = "lumen"

	// TopicPrefixSystem is the base for system topics.
	TopicPrefixSystem = "lumen/system"
)

// Topics provides builders for Lumen MQTT topics. Using the helpers keeps
// topic naming consistent between the mirror, subscribers, and tests.
type Topics struct{}

// Event returns the topic an event envelope is mirrored on.
//
// Example: lumen/events/light/abcd-1234
func (Topics) Event(resourceType, resourceID string) string {
	return fmt.Sprintf("%s/events/%s/%s", TopicPrefix, resourceType, resourceID)
}

// DeviceStatus returns the retained reachability topic for a device.
//
// Example: lumen/status/abcd-1234
func (Topics) DeviceStatus(deviceID string) string {
	return fmt.Sprintf("%s/status/%s", TopicPrefix, deviceID)
}

// Command returns the topic external producers publish device commands on.
//
// Example: lumen/command/light/abcd-1234
func (Topics) Command(resourceType, resourceID string) string {
	return fmt.Sprintf("%s/command/%s/%s", TopicPrefix, resourceType, resourceID)
}

// Discovery returns the topic discovery session results are announced on.
//
// Example: lumen/discovery
func (Topics) Discovery() string {
	return fmt.Sprintf("%s/discovery", TopicPrefix)
}

// SystemStatus returns the system status topic carrying the online
// payload and the Last Will.
//
// Example: lumen/system/status
func (Topics) SystemStatus() string {
	return fmt.Sprintf("%s/status", TopicPrefixSystem)
}

// AllCommands returns a pattern matching every inbound command topic.
//
// Pattern: lumen/command/+/+
func (Topics) AllCommands() string {
	return fmt.Sprintf("%s/command/+/+", TopicPrefix)
}

// AllEvents returns a pattern matching every mirrored event.
//
// Pattern: lumen/events/+/+
func (Topics) AllEvents() string {
	return fmt.Sprintf("%s/events/+/+", TopicPrefix)
}

// AllStatus returns a pattern matching every device status topic.
//
// Pattern: lumen/status/+
func (Topics) AllStatus() string {
	return fmt.Sprintf("%s/status/+", TopicPrefix)
}

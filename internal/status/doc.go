// Package status tracks per-device communication reachability.
//
// The tracker classifies two signal sources: resource-level errors on
// write responses and connectivity events from the push stream. It holds
// one of four states per device and fires transition callbacks consumed
// by the MQTT mirror, telemetry, and the local API.
package status

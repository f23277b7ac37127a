// Package influxdb records Lumen telemetry: device status transitions,
// bridge request outcomes, and discovery session results.
//
// Telemetry is optional and disabled by default. Writes are batched and
// non-blocking so a slow or absent InfluxDB never affects dispatch or
// event handling; when the client is disconnected every write helper is
// a no-op.
package influxdb

// Package mirror bridges Lumen's internal event and status flows onto
// MQTT. It republishes bridge event envelopes as they arrive, keeps a
// retained reachability topic per device, announces discovery results,
// and accepts inbound device commands published by external producers.
//
// The mirror is a thin adapter: it owns no state of its own beyond its
// subscriptions, and the core keeps working when MQTT is disabled or the
// broker is down.
package mirror

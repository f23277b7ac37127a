// Package mqtt wraps paho.mqtt.golang for Lumen's broker connection.
//
// It provides connection management with automatic reconnection, Last
// Will setup on lumen/system/status, subscription restoration after a
// reconnect, and topic builders for Lumen's scheme:
//
//	lumen/events/{resource_type}/{resource_id}  mirrored event envelopes
//	lumen/status/{device_id}                    retained reachability
//	lumen/command/{resource_type}/{resource_id} inbound device commands
//	lumen/discovery                             discovery session results
//	lumen/system/status                         online/offline + LWT
//
// The mirror package owns what flows over these topics; this package
// only moves bytes.
package mqtt

// Package events consumes the bridge's server-push event stream and fans
// decoded notifications out to subscribers.
//
// The stream arrives as line-delimited, data:-prefixed frames in
// arbitrarily-sized chunks. Parser assembles complete frames across chunk
// boundaries; Stream runs the read loop for one connection and surfaces
// transport loss to its caller, which owns the reconnect decision; Hub
// delivers envelopes to each subscriber in arrival order without ever
// blocking the read loop.
package events

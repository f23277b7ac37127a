// Package api provides the HTTP REST API and WebSocket server for Lumen
// Core.
//
// It exposes discovery and pairing operations, session management,
// persisted pairings, resource reads and writes through the bridge
// gateway, device reachability, and a WebSocket feed carrying bridge
// events and status transitions in real time.
//
// The server follows the same lifecycle pattern as the other
// infrastructure components:
//
//	server, err := api.New(deps)
//	server.Start(ctx)
//	defer server.Close()
//
// Thread Safety: all methods are safe for concurrent use from multiple
// goroutines.
package api

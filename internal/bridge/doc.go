// Package bridge implements the authenticated gateway to a confirmed
// lighting bridge: candidate validation, pairing, TLS trust policy,
// rate-limited resource dispatch, the event stream connection, and
// credential persistence.
//
// All authenticated traffic flows through one Client, which owns the
// process's single Session and its rate limiter. Dispatch outcomes are
// mapped to a precise error taxonomy (see errors.go) so callers can
// distinguish the retryable (link button, buffer full, rate limited)
// from the fatal (not authenticated, decode failure).
//
// Trust decisions are delegated to a TrustPolicy. The production policy
// accepts chains to the configured root authorities, optionally checking
// the certificate common name against the bridge id, with a named
// fallback accepting self-signed certificates from private-range
// addresses only.
//
// The application and client keys are credentials. They are never
// logged; Session's Stringer and JSON forms omit them.
package bridge

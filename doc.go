// Package phoneauth is the identity and access core of an event-ticketing
// backend: phone OTP verification with brute-force lockout, signed access
// tokens with one refresh session per user, request-rate throttling, and
// per-resource role-based access control.
//
// Engine methods are safe to call from multiple goroutines after
// initialization through [Builder.Build]. All shared state lives in Redis,
// so several processes can share one Engine configuration.
//
// # Failure policy
//
// The rate limiter fails open: when Redis is unreachable the request is
// allowed and the decision is marked Degraded. Everything else fails
// closed: OTP verification, lockout checks, refresh exchange and permission
// resolution return [ErrStoreUnavailable].
//
// # Architecture boundaries
//
// phoneauth is the public surface. It exposes [Engine], [Builder], [Config],
// typed errors and value types. Flow orchestration, OTP storage, lockouts and
// rate windows live under internal/ and are never exported.
//
// # What this package must NOT do
//
//   - Expose Redis clients, internal stores, or encoding details in its public API.
//   - Start goroutines other than the audit dispatcher.
//   - Import any sub-package that re-imports phoneauth (no import cycles).
package phoneauth

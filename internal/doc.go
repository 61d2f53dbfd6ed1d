// Package internal contains helper utilities that are intentionally private to
// phoneauth, chiefly secure random generation for OTP codes and CSRF tokens.
//
// # Sub-packages
//
//   - audit: async event dispatch (Dispatcher + Sink implementations)
//   - config: environment loading for the service binary
//   - flows: flow orchestrators for every Engine operation
//   - limiters: failure counters and lockout records (login guard)
//   - rate: Redis fixed-window rate limiter
//   - security: security posture report
//   - stores: OTP record storage
//
// # What this package must NOT do
//
//   - Export types that appear in the public phoneauth API.
//   - Be imported by any package outside the phoneauth module.
package internal

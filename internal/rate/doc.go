// Package rate provides the Redis-backed fixed-window request limiter shared by
// every throttled path (HTTP routes, OTP sends, registrations).
//
// # Window semantics
//
// One Lua round trip per check: INCR, then PEXPIRE only when the counter was
// just created (or carries no TTL). Later requests never extend the window.
// Keys have the form rl:<policy>:<identifier>.
//
// # Failure policy
//
// Store errors are retried once; if the retry fails too the check fails open
// and the decision is marked Degraded.
//
// # What this package must NOT do
//
//   - Implement lockout or OTP policy (those live in internal/limiters and internal/stores).
//   - Be imported outside the phoneauth module.
package rate

// Package stores provides Redis-backed, short-lived record stores for
// security-sensitive authentication flows. Today that is the phone OTP
// challenge store.
//
// # Design
//
// Each OTP record is a Redis hash with a TTL holding a keyed hash of the code,
// the attempt counter and the creation time. Verification runs as one Lua
// script so the attempt increment and the lockout decision are atomic per
// attempt. Records are single-use: deleted on success and on the final failed
// attempt. Secret comparisons use constant-time compare.
//
// # Architecture boundaries
//
// This package owns persistence and concurrency control for transient
// challenge records. It does NOT generate codes, enforce send rate limits,
// write lockout records, or make authentication decisions. Those
// responsibilities belong to internal/flows.
//
// # What this package must NOT do
//
//   - Import phoneauth or any sibling internal package.
//   - Log or expose plaintext codes.
//   - Use non-constant-time comparisons for secret matching.
package stores

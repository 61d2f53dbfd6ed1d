// Package session provides Redis-backed persistence of the single live refresh
// session each user may hold.
//
// # Binary encoding
//
// A session is stored under sess:<userId> as a compact versioned binary blob
// holding the SHA-256 of the refresh token, never the token itself. The
// encoder is append-only: new versions add fields but never reinterpret old
// ones.
//
// # Architecture boundaries
//
// This package owns the [Store] (Redis operations) and the [Session] model.
// Saving is one SET, so a new login atomically replaces the previous session
// and any refresh exchange racing against it sees either the old or the new
// hash, never a mix. It does NOT interpret JWT tokens or enforce
// authentication policy.
//
// # What this package must NOT do
//
//   - Import phoneauth, jwt, or permission (no upward imports).
//   - Perform application-level authorization decisions.
//   - Store plaintext secrets in [Session] fields.
package session

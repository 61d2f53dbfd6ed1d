// Package limiters provides the login guard: failure counters and the lockout
// records derived from them, built on the internal/rate window primitive.
//
// # Keys
//
//   - flc:<identifier> and flc:ip:<ip>: failure counters, TTL = lockout duration.
//   - lock:<namespace>:<identifier>: JSON LockoutRecord, namespaces "login" and "otp".
//
// # Architecture boundaries
//
// The guard counts and records; it does not decide what a lock means for a
// flow. Policy thresholds come from LockoutConfig supplied at construction time.
//
// # What this package must NOT do
//
//   - Import phoneauth or any sibling internal package except internal/rate.
//   - Lift a lock as a side effect of clearing failure counters.
package limiters

// Package flows contains the orchestration behind every Engine operation.
//
// Each flow function (RunSendOTP, RunVerifyOTP, RunLogin, RunRefresh, ...)
// accepts a typed dependency struct and returns a result carrying a failure
// kind. The Engine maps failure kinds to public errors, metrics and audit
// events, so flows never import the root package.
//
// # Architecture boundaries
//
// Flow functions coordinate the rate limiter, login guard, OTP store, session
// store and token manager. They do NOT own any of these resources; ownership
// stays with the Engine.
//
// # What this package must NOT do
//
//   - Hold mutable state between calls.
//   - Import phoneauth (to avoid import cycles).
//   - Perform I/O directly. All I/O is mediated through dependency interfaces.
package flows

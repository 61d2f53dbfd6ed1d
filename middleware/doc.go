// Package middleware adapts phoneauth.Engine checks to net/http.
//
// # Guards
//
//   - [RequireAuth] verifies the bearer access token. No store call.
//   - [RequirePermission] resolves the caller's permissions on a route
//     resource and answers 403 with required/actual details on denial.
//   - [RateLimit] counts requests per caller against a policy chosen by path
//     prefix and answers 429 with Retry-After when the budget is spent.
//   - [RequireCSRF] checks X-CSRF-Token against the token issued for
//     X-Session-ID on state-changing requests.
//
// [SecurityHeaders], [ClientInfo] and [RequestID] decorate requests and
// responses without rejecting anything.
//
// # Architecture boundaries
//
// This package translates HTTP semantics into Engine calls. Decisions are
// made by the Engine's pipeline checks; failures are written with the
// response package so every rejection uses the same envelope.
//
// # What this package must NOT do
//
//   - Parse or create JWTs directly (delegates to Engine).
//   - Access Redis (Engine handles I/O).
package middleware

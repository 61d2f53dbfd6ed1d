// Package security builds the read-only security posture report exposed by
// Engine.SecurityReport and logged by the service binary at startup.
//
// # What this package must NOT do
//
//   - Read or mutate engine state directly; callers pass a ReportInput.
package security

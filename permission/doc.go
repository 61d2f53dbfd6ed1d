// Package permission defines the closed set of resource permissions, the
// 64-bit [Set] they are packed into, and the static role table that maps an
// organizer role to its permission set.
//
// # Permissions
//
// Permissions form a closed enum. Bit positions are fixed at compile time and
// are part of the stored format: never reorder the constants, only append.
//
// # Architecture boundaries
//
// This package is a pure in-memory data structure with no I/O. It provides
// the codecs (binary and JSON) used by the rbac store and the HTTP layer.
//
// # What this package must NOT do
//
//   - Access Redis, databases, or the network.
//   - Import phoneauth, rbac, or session.
//   - Allow roles or permissions to be registered at runtime.
package permission

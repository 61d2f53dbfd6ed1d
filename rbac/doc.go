// Package rbac resolves a caller's effective permissions on a resource.
//
// # Resolution order
//
//  1. The resource owner always holds the full owner set.
//  2. Otherwise a stored [Assignment] yields its role set united with its
//     custom permissions.
//  3. Otherwise the caller holds nothing.
//
// # Storage
//
// Ownership and assignments are read through [Store]. [PostgresStore] reads
// events.organizer_id and the event_organizers table; [MemoryStore] backs
// tests and the development binary.
//
// # What this package must NOT do
//
//   - Cache resolutions; every check reads the store.
//   - Upsert assignments. A second assignment for the same pair is a conflict.
package rbac

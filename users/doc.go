// Package users stores phone-number accounts for the phoneauthd binary.
//
// Both stores satisfy phoneauth.UserProvider and phoneauth.UserRegistrar.
// [MemoryStore] is for development and tests; [PostgresStore] keeps users
// in a users table keyed by a unique phone number.
package users

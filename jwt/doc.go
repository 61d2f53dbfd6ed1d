// Package jwt issues and verifies the two signed token kinds: short-lived
// access tokens carrying {uid, role, state} and long-lived refresh tokens
// carrying {uid, jti}. The kinds use separate signing keys and a typ claim so
// neither can stand in for the other.
package jwt

package session

import "crypto/sha256"

// Session is the stored state of a user's live refresh session.
type Session struct {
	SchemaVersion uint8

	UserID string
	Role   string
	State  string
	// TokenID is the jti of the refresh token the session was issued with.
	TokenID string

	RefreshHash [32]byte

	CreatedAt int64
	ExpiresAt int64
}

// HashRefreshToken returns the digest stored in place of a refresh token.
func HashRefreshToken(token string) [32]byte {
	return sha256.Sum256([]byte(token))
}

package flows

import (
	"context"
	"errors"
	"time"

	"github.com/MrEthical07/phoneauth/jwt"
	"github.com/MrEthical07/phoneauth/session"
)

// UserRecord is the flow-local view of an account.
type UserRecord struct {
	UserID       string
	Phone        string
	PasswordHash string
	Role         string
	State        string
}

// TokenPair is an issued access token plus the refresh token of the new session.
type TokenPair struct {
	AccessToken      string
	AccessExpiresAt  time.Time
	RefreshToken     string
	RefreshExpiresAt time.Time
}

type SessionWriter interface {
	Save(ctx context.Context, sess *session.Session, ttl time.Duration) error
}

type SessionMatcher interface {
	Match(ctx context.Context, userID string, refreshHash [32]byte) (*session.Session, error)
}

type SessionDeleter interface {
	Delete(ctx context.Context, userID string) error
}

// IssueDeps captures session issuance dependencies.
type IssueDeps struct {
	CreateAccess  func(uid, role, state string) (string, time.Time, error)
	CreateRefresh func(uid string) (string, *jwt.RefreshClaims, error)
	Sessions      SessionWriter
	Now           func() time.Time
}

// IssueFailureKind classifies issuance failures.
type IssueFailureKind int

const (
	IssueFailureNone IssueFailureKind = iota
	IssueFailureAccess
	IssueFailureRefresh
	IssueFailureStore
)

type IssueResult struct {
	Failure IssueFailureKind
	Err     error
	Tokens  TokenPair
}

// RunIssueSession signs a token pair for user and stores the refresh session
// with one write, replacing any session the user already had.
func RunIssueSession(ctx context.Context, user UserRecord, deps IssueDeps) IssueResult {
	access, accessExp, err := deps.CreateAccess(user.UserID, user.Role, user.State)
	if err != nil {
		return IssueResult{Failure: IssueFailureAccess, Err: err}
	}

	refresh, claims, err := deps.CreateRefresh(user.UserID)
	if err != nil {
		return IssueResult{Failure: IssueFailureRefresh, Err: err}
	}

	now := deps.Now()
	sess := &session.Session{
		SchemaVersion: session.CurrentSchemaVersion,
		UserID:        user.UserID,
		Role:          user.Role,
		State:         user.State,
		TokenID:       claims.ID,
		RefreshHash:   session.HashRefreshToken(refresh),
		CreatedAt:     now.Unix(),
		ExpiresAt:     claims.ExpiresAt.Unix(),
	}
	if err := deps.Sessions.Save(ctx, sess, claims.ExpiresAt.Sub(now)); err != nil {
		return IssueResult{Failure: IssueFailureStore, Err: err}
	}

	return IssueResult{
		Tokens: TokenPair{
			AccessToken:      access,
			AccessExpiresAt:  accessExp,
			RefreshToken:     refresh,
			RefreshExpiresAt: claims.ExpiresAt.Time,
		},
	}
}

// RefreshFailureKind classifies refresh flow failures for root-level mapping.
type RefreshFailureKind int

const (
	RefreshFailureNone RefreshFailureKind = iota
	RefreshFailureDecode
	RefreshFailureSessionNotFound
	RefreshFailureStore
	RefreshFailureIssueAccess
)

// RefreshDeps captures refresh flow dependencies.
type RefreshDeps struct {
	ParseRefresh func(string) (*jwt.RefreshClaims, error)
	Sessions     SessionMatcher
	// LookupUser is optional. When it fails the role and state stored in the
	// session are used.
	LookupUser   func(ctx context.Context, userID string) (UserRecord, error)
	CreateAccess func(uid, role, state string) (string, time.Time, error)
	Warn         func(msg string, err error)

	SessionNotFound     error
	RefreshHashMismatch error
}

// RefreshResult carries either a new access token or failure metadata.
type RefreshResult struct {
	Failure         RefreshFailureKind
	Err             error
	UserID          string
	AccessToken     string
	AccessExpiresAt time.Time
}

// RunRefresh exchanges a refresh token for a new access token. The refresh
// token must be the one currently stored for its user; it is not rotated.
func RunRefresh(ctx context.Context, refreshToken string, deps RefreshDeps) RefreshResult {
	claims, err := deps.ParseRefresh(refreshToken)
	if err != nil {
		return RefreshResult{Failure: RefreshFailureDecode, Err: err}
	}

	sess, err := deps.Sessions.Match(ctx, claims.UID, session.HashRefreshToken(refreshToken))
	if err != nil {
		failure := RefreshFailureStore
		if errors.Is(err, deps.SessionNotFound) || errors.Is(err, deps.RefreshHashMismatch) {
			failure = RefreshFailureSessionNotFound
		}
		return RefreshResult{Failure: failure, Err: err, UserID: claims.UID}
	}

	role, state := sess.Role, sess.State
	if deps.LookupUser != nil {
		user, err := deps.LookupUser(ctx, sess.UserID)
		if err == nil {
			role, state = user.Role, user.State
		} else if deps.Warn != nil {
			deps.Warn("refresh user lookup failed, using session claims", err)
		}
	}

	access, exp, err := deps.CreateAccess(sess.UserID, role, state)
	if err != nil {
		return RefreshResult{Failure: RefreshFailureIssueAccess, Err: err, UserID: sess.UserID}
	}

	return RefreshResult{
		UserID:          sess.UserID,
		AccessToken:     access,
		AccessExpiresAt: exp,
	}
}

// LogoutDeps captures logout flow dependencies.
type LogoutDeps struct {
	ParseAccess func(string) (*jwt.AccessClaims, error)
	Sessions    SessionDeleter
}

type LogoutByAccessResult struct {
	UserID string
	Err    error
}

// RunLogout deletes the user's session. Deleting a missing session succeeds.
func RunLogout(ctx context.Context, userID string, deps LogoutDeps) error {
	return deps.Sessions.Delete(ctx, userID)
}

func RunLogoutByAccessToken(ctx context.Context, tokenStr string, deps LogoutDeps) LogoutByAccessResult {
	claims, err := deps.ParseAccess(tokenStr)
	if err != nil {
		return LogoutByAccessResult{Err: err}
	}
	return LogoutByAccessResult{
		UserID: claims.UID,
		Err:    deps.Sessions.Delete(ctx, claims.UID),
	}
}

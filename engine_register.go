package phoneauth

import (
	"context"
	"errors"
	"fmt"
	"unicode/utf8"

	"github.com/MrEthical07/phoneauth/password"
	"go.uber.org/zap"
)

// Roles a user can register with.
const (
	UserRoleAttendee  = "attendee"
	UserRoleOrganizer = "organizer"
)

const minPasswordLength = 8

// UserRegistrar persists new users. CreateUser must return an error matching
// [ErrUserExists] when the phone number is taken and should fill in UserID
// when the caller left it empty.
type UserRegistrar interface {
	CreateUser(ctx context.Context, user UserRecord) (UserRecord, error)
}

// Registration is the input to [Engine.Register].
type Registration struct {
	Phone    string
	Password string
	Role     string
	// State is the initial account state. Empty means "active".
	State string
}

// Register normalizes the phone, hashes the password, stores the user through
// reg and starts a session for it.
func (e *Engine) Register(ctx context.Context, reg UserRegistrar, in Registration) (LoginResult, error) {
	if reg == nil || e.passwordHash == nil {
		return LoginResult{}, ErrEngineNotReady
	}

	phone, err := e.NormalizePhone(in.Phone)
	if err != nil {
		return LoginResult{}, err
	}
	if utf8.RuneCountInString(in.Password) < minPasswordLength {
		return LoginResult{}, fmt.Errorf("%w: password must be at least %d characters", ErrValidation, minPasswordLength)
	}
	switch in.Role {
	case UserRoleAttendee, UserRoleOrganizer:
	default:
		return LoginResult{}, fmt.Errorf("%w: role must be one of: %s, %s", ErrValidation, UserRoleAttendee, UserRoleOrganizer)
	}
	state := in.State
	if state == "" {
		state = "active"
	}

	hash, err := e.passwordHash.Hash(in.Password)
	switch {
	case errors.Is(err, password.ErrPasswordTooShort), errors.Is(err, password.ErrPasswordTooLong):
		return LoginResult{}, fmt.Errorf("%w: %v", ErrValidation, err)
	case err != nil:
		e.logger.Error("password hashing failed", zap.Error(err))
		return LoginResult{}, err
	}

	user, err := reg.CreateUser(ctx, UserRecord{
		Phone:        phone,
		PasswordHash: hash,
		Role:         in.Role,
		State:        state,
	})
	switch {
	case errors.Is(err, ErrUserExists):
		return LoginResult{}, ErrUserExists
	case err != nil:
		e.warn("user create failed", err, e.phoneField(phone))
		return LoginResult{}, storeUnavailable(err)
	}

	tokens, err := e.IssueTokens(ctx, user)
	if err != nil {
		return LoginResult{}, err
	}
	e.emitAudit(ctx, auditEventUserRegistered, true, user.UserID, phone, nil, func() map[string]string {
		return map[string]string{"role": user.Role}
	})
	return LoginResult{User: user, Tokens: tokens}, nil
}

package phoneauth

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"errors"
	"fmt"

	"github.com/MrEthical07/phoneauth/internal"
	"github.com/redis/go-redis/v9"
)

const csrfKeyPrefix = "csrf:"

// IssueCSRFToken creates a token bound to sessionKey, replacing any earlier
// one. It expires after Security.CSRFTokenTTL.
func (e *Engine) IssueCSRFToken(ctx context.Context, sessionKey string) (string, error) {
	if sessionKey == "" {
		return "", fmt.Errorf("%w: session key required", ErrValidation)
	}
	token, err := internal.NewToken(32)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256([]byte(token))

	ctx, cancel := context.WithTimeout(ctx, e.config.Store.OperationTimeout)
	defer cancel()

	if err := e.redis.Set(ctx, csrfKeyPrefix+sessionKey, sum[:], e.config.Security.CSRFTokenTTL).Err(); err != nil {
		e.warn("csrf token write failed", err)
		return "", storeUnavailable(err)
	}
	return token, nil
}

// ValidateCSRFToken checks token against the one issued for sessionKey.
// Tokens stay valid until they expire.
func (e *Engine) ValidateCSRFToken(ctx context.Context, sessionKey, token string) error {
	if sessionKey == "" || token == "" {
		return ErrCSRFInvalid
	}

	ctx, cancel := context.WithTimeout(ctx, e.config.Store.OperationTimeout)
	defer cancel()

	stored, err := e.redis.Get(ctx, csrfKeyPrefix+sessionKey).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return ErrCSRFInvalid
		}
		e.warn("csrf token read failed", err)
		return storeUnavailable(err)
	}

	sum := sha256.Sum256([]byte(token))
	if subtle.ConstantTimeCompare(stored, sum[:]) != 1 {
		return ErrCSRFInvalid
	}
	return nil
}

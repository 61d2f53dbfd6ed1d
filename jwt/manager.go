package jwt

import (
	"bytes"
	"crypto/ed25519"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// SigningMethod selects the JWS algorithm for both token kinds.
type SigningMethod string

const (
	MethodEd25519 SigningMethod = "ed25519"
	MethodHS256   SigningMethod = "hs256"
)

// Token kinds carried in the typ claim.
const (
	TypeAccess  = "access"
	TypeRefresh = "refresh"
)

var (
	// ErrWrongTokenType is returned when a token of one kind is presented as the other.
	ErrWrongTokenType = errors.New("wrong token type")
	// ErrMissingSubject is returned when a token carries no uid.
	ErrMissingSubject = errors.New("token has no subject")
)

// Config holds signing keys and validation settings.
//
// For HS256, PrivateKey and RefreshPrivateKey are the shared secrets. For
// Ed25519 they are private keys and the public halves verify; a missing
// RefreshPublicKey is derived from RefreshPrivateKey.
type Config struct {
	AccessTTL         time.Duration
	RefreshTTL        time.Duration
	SigningMethod     SigningMethod
	PrivateKey        []byte
	PublicKey         []byte
	RefreshPrivateKey []byte
	RefreshPublicKey  []byte
	Issuer            string
	Audience          string
	Leeway            time.Duration
	RequireIAT        bool
	MaxFutureIAT      time.Duration
	KeyID             string
	VerifyKeys        map[string][]byte
	Now               func() time.Time
}

// Manager signs and parses access and refresh tokens.
type Manager struct {
	config Config
}

// AccessClaims is the payload of an access token.
type AccessClaims struct {
	UID   string `json:"uid"`
	Role  string `json:"role,omitempty"`
	State string `json:"state,omitempty"`
	Type  string `json:"typ"`
	jwt.RegisteredClaims
}

// RefreshClaims is the payload of a refresh token. The jti (RegisteredClaims.ID)
// makes every issued token unique even within the same second.
type RefreshClaims struct {
	UID  string `json:"uid"`
	Type string `json:"typ"`
	jwt.RegisteredClaims
}

// NewManager validates cfg and returns a Manager.
func NewManager(cfg Config) (*Manager, error) {
	if cfg.AccessTTL <= 0 || cfg.RefreshTTL <= 0 {
		return nil, errors.New("invalid TTL configuration")
	}
	if cfg.Leeway < 0 || cfg.Leeway > 2*time.Minute {
		return nil, errors.New("invalid leeway configuration")
	}
	if cfg.MaxFutureIAT == 0 {
		cfg.MaxFutureIAT = 10 * time.Minute
	}
	if cfg.MaxFutureIAT < 0 || cfg.MaxFutureIAT > 24*time.Hour {
		return nil, errors.New("invalid MaxFutureIAT configuration")
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	cfg.KeyID = strings.TrimSpace(cfg.KeyID)

	switch cfg.SigningMethod {
	case MethodHS256:
		if len(cfg.PrivateKey) == 0 {
			return nil, errors.New("hs256 requires private key")
		}
		if len(cfg.RefreshPrivateKey) == 0 {
			return nil, errors.New("hs256 requires refresh key")
		}
		if bytes.Equal(cfg.PrivateKey, cfg.RefreshPrivateKey) {
			return nil, errors.New("refresh key must differ from access key")
		}
	case MethodEd25519:
		if len(cfg.PrivateKey) > 0 {
			if _, err := parseEdPrivateKey(cfg.PrivateKey); err != nil {
				return nil, err
			}
		}
		if len(cfg.PublicKey) > 0 {
			if _, err := parseEdPublicKey(cfg.PublicKey); err != nil {
				return nil, err
			}
		}
		if len(cfg.VerifyKeys) == 0 && len(cfg.PublicKey) == 0 {
			return nil, errors.New("ed25519 requires public key or verify key set")
		}
		for kid, key := range cfg.VerifyKeys {
			if strings.TrimSpace(kid) == "" {
				return nil, errors.New("verify key map contains empty kid")
			}
			if _, err := parseEdPublicKey(key); err != nil {
				return nil, fmt.Errorf("invalid ed25519 verify key for kid %q: %w", kid, err)
			}
		}
		if len(cfg.RefreshPublicKey) == 0 && len(cfg.RefreshPrivateKey) > 0 {
			priv, err := parseEdPrivateKey(cfg.RefreshPrivateKey)
			if err != nil {
				return nil, fmt.Errorf("refresh: %w", err)
			}
			cfg.RefreshPublicKey = priv.Public().(ed25519.PublicKey)
		}
		if len(cfg.RefreshPublicKey) == 0 {
			return nil, errors.New("ed25519 requires refresh key")
		}
		if _, err := parseEdPublicKey(cfg.RefreshPublicKey); err != nil {
			return nil, fmt.Errorf("refresh: %w", err)
		}
		if len(cfg.PublicKey) > 0 && bytes.Equal(cfg.PublicKey, cfg.RefreshPublicKey) {
			return nil, errors.New("refresh key must differ from access key")
		}
	default:
		return nil, errors.New("unsupported signing method")
	}
	if cfg.KeyID != "" && len(cfg.VerifyKeys) > 0 {
		if _, ok := cfg.VerifyKeys[cfg.KeyID]; !ok {
			return nil, errors.New("KeyID is not present in VerifyKeys")
		}
	}

	return &Manager{config: cfg}, nil
}

// AccessTTL returns the configured access token lifetime.
func (j *Manager) AccessTTL() time.Duration { return j.config.AccessTTL }

// RefreshTTL returns the configured refresh token lifetime.
func (j *Manager) RefreshTTL() time.Duration { return j.config.RefreshTTL }

// CreateAccess signs an access token for uid with the given role and state.
// It returns the token and its expiry.
func (j *Manager) CreateAccess(uid, role, state string) (string, time.Time, error) {
	if uid == "" {
		return "", time.Time{}, ErrMissingSubject
	}

	now := j.config.Now()
	exp := now.Add(j.config.AccessTTL)
	claims := AccessClaims{
		UID:   uid,
		Role:  role,
		State: state,
		Type:  TypeAccess,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   uid,
			ExpiresAt: jwt.NewNumericDate(exp),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    j.config.Issuer,
		},
	}
	if j.config.Audience != "" {
		claims.Audience = jwt.ClaimStrings{j.config.Audience}
	}

	token := jwt.NewWithClaims(j.getMethod(), claims)
	if j.config.KeyID != "" {
		token.Header["kid"] = j.config.KeyID
	}

	signKey, err := j.getSignKey(j.config.PrivateKey)
	if err != nil {
		return "", time.Time{}, err
	}

	signed, err := token.SignedString(signKey)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, exp, nil
}

// CreateRefresh signs a refresh token for uid with a fresh jti.
func (j *Manager) CreateRefresh(uid string) (string, *RefreshClaims, error) {
	if uid == "" {
		return "", nil, ErrMissingSubject
	}

	now := j.config.Now()
	claims := &RefreshClaims{
		UID:  uid,
		Type: TypeRefresh,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   uid,
			ExpiresAt: jwt.NewNumericDate(now.Add(j.config.RefreshTTL)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    j.config.Issuer,
		},
	}

	signKey, err := j.getSignKey(j.config.RefreshPrivateKey)
	if err != nil {
		return "", nil, err
	}

	signed, err := jwt.NewWithClaims(j.getMethod(), claims).SignedString(signKey)
	if err != nil {
		return "", nil, err
	}
	return signed, claims, nil
}

// ParseAccess verifies signature, expiry and typ of an access token.
func (j *Manager) ParseAccess(tokenStr string) (*AccessClaims, error) {
	claims := &AccessClaims{}
	token, err := j.parser(true).ParseWithClaims(tokenStr, claims, j.accessKeyFunc)
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, jwt.ErrTokenInvalidClaims
	}
	if claims.Type != TypeAccess {
		return nil, ErrWrongTokenType
	}
	if claims.UID == "" {
		return nil, ErrMissingSubject
	}
	if err := j.checkFutureIAT(claims.IssuedAt); err != nil {
		return nil, err
	}
	return claims, nil
}

// ParseRefresh verifies signature, expiry and typ of a refresh token.
func (j *Manager) ParseRefresh(tokenStr string) (*RefreshClaims, error) {
	claims := &RefreshClaims{}
	token, err := j.parser(false).ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (interface{}, error) {
		if t.Method.Alg() != j.getMethod().Alg() {
			return nil, fmt.Errorf("unexpected signing algorithm: %s", t.Method.Alg())
		}
		return j.keyBytesToVerifyKey(j.refreshVerifyBytes())
	})
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, jwt.ErrTokenInvalidClaims
	}
	if claims.Type != TypeRefresh {
		return nil, ErrWrongTokenType
	}
	if claims.UID == "" {
		return nil, ErrMissingSubject
	}
	if err := j.checkFutureIAT(claims.IssuedAt); err != nil {
		return nil, err
	}
	return claims, nil
}

func (j *Manager) parser(withAudience bool) *jwt.Parser {
	options := []jwt.ParserOption{
		jwt.WithValidMethods([]string{j.getMethod().Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(j.config.Now),
	}
	if j.config.Leeway > 0 {
		options = append(options, jwt.WithLeeway(j.config.Leeway))
	}
	if j.config.RequireIAT {
		options = append(options, jwt.WithIssuedAt())
	}
	if j.config.Issuer != "" {
		options = append(options, jwt.WithIssuer(j.config.Issuer))
	}
	if withAudience && j.config.Audience != "" {
		options = append(options, jwt.WithAudience(j.config.Audience))
	}
	return jwt.NewParser(options...)
}

func (j *Manager) accessKeyFunc(t *jwt.Token) (interface{}, error) {
	if t.Method.Alg() != j.getMethod().Alg() {
		return nil, fmt.Errorf("unexpected signing algorithm: %s", t.Method.Alg())
	}

	if len(j.config.VerifyKeys) > 0 {
		kid, _ := t.Header["kid"].(string)
		if kid == "" {
			return nil, errors.New("missing kid")
		}
		key, ok := j.config.VerifyKeys[kid]
		if !ok {
			return nil, errors.New("unknown kid")
		}
		return j.keyBytesToVerifyKey(key)
	}

	if j.config.KeyID != "" {
		kid, _ := t.Header["kid"].(string)
		if kid == "" {
			return nil, errors.New("missing kid")
		}
		if kid != j.config.KeyID {
			return nil, errors.New("unknown kid")
		}
	}

	return j.keyBytesToVerifyKey(j.accessVerifyBytes())
}

func (j *Manager) checkFutureIAT(iat *jwt.NumericDate) error {
	if iat == nil || j.config.MaxFutureIAT <= 0 {
		return nil
	}
	if iat.Time.After(j.config.Now().Add(j.config.MaxFutureIAT)) {
		return errors.New("token iat too far in the future")
	}
	return nil
}

func (j *Manager) getMethod() jwt.SigningMethod {
	switch j.config.SigningMethod {
	case MethodHS256:
		return jwt.SigningMethodHS256
	default:
		return jwt.SigningMethodEdDSA
	}
}

func (j *Manager) getSignKey(key []byte) (interface{}, error) {
	if len(key) == 0 {
		return nil, errors.New("signing key not configured")
	}
	switch j.config.SigningMethod {
	case MethodHS256:
		return key, nil
	default:
		return parseEdPrivateKey(key)
	}
}

func (j *Manager) accessVerifyBytes() []byte {
	if j.config.SigningMethod == MethodHS256 {
		return j.config.PrivateKey
	}
	return j.config.PublicKey
}

func (j *Manager) refreshVerifyBytes() []byte {
	if j.config.SigningMethod == MethodHS256 {
		return j.config.RefreshPrivateKey
	}
	return j.config.RefreshPublicKey
}

func (j *Manager) keyBytesToVerifyKey(key []byte) (interface{}, error) {
	switch j.config.SigningMethod {
	case MethodHS256:
		return key, nil
	default:
		return parseEdPublicKey(key)
	}
}

func parseEdPrivateKey(key []byte) (ed25519.PrivateKey, error) {
	if len(key) == ed25519.PrivateKeySize {
		return ed25519.PrivateKey(key), nil
	}
	parsed, err := jwt.ParseEdPrivateKeyFromPEM(key)
	if err != nil {
		return nil, errors.New("invalid ed25519 private key")
	}
	edKey, ok := parsed.(ed25519.PrivateKey)
	if !ok {
		return nil, errors.New("invalid ed25519 private key type")
	}
	return edKey, nil
}

func parseEdPublicKey(key []byte) (ed25519.PublicKey, error) {
	if len(key) == ed25519.PublicKeySize {
		return ed25519.PublicKey(key), nil
	}
	parsed, err := jwt.ParseEdPublicKeyFromPEM(key)
	if err != nil {
		return nil, errors.New("invalid ed25519 public key")
	}
	edKey, ok := parsed.(ed25519.PublicKey)
	if !ok {
		return nil, errors.New("invalid ed25519 public key type")
	}
	return edKey, nil
}

package password

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"
)

// Input bounds in bytes. DefaultMaxPasswordBytes applies when
// Config.MaxPasswordBytes is zero.
const (
	MinPasswordBytes        = 8
	DefaultMaxPasswordBytes = 1024
)

const (
	phcPrefix           = "$argon2id$"
	minMemoryKB  uint32 = 8 * 1024
	minSaltBytes        = 16
	minKeyBytes         = 16
	dummyInput          = "phoneauth-unknown-phone-number"
)

var (
	ErrPasswordTooShort = fmt.Errorf("password must be at least %d bytes", MinPasswordBytes)
	ErrPasswordTooLong  = errors.New("password exceeds maximum length")
	ErrMalformedHash    = errors.New("malformed argon2id hash")
	ErrInvalidConfig    = errors.New("invalid argon2 config")
)

// Config holds argon2id cost parameters.
type Config struct {
	Memory      uint32 // KB
	Time        uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
	// MaxPasswordBytes bounds hashing work per call.
	MaxPasswordBytes int
}

// cost is the part of the configuration embedded in every hash.
type cost struct {
	memory  uint32
	time    uint32
	threads uint8
}

func (c cost) derive(password string, salt []byte, keyLen uint32) []byte {
	return argon2.IDKey([]byte(password), salt, c.time, c.memory, c.threads, keyLen)
}

// Argon2 hashes and verifies passwords. It is safe for concurrent use.
type Argon2 struct {
	cost     cost
	saltLen  uint32
	keyLen   uint32
	maxBytes int
	dummy    string
}

// NewArgon2 validates cfg and precomputes the hash returned by
// [Argon2.DummyHash].
func NewArgon2(cfg Config) (*Argon2, error) {
	switch {
	case cfg.Memory < minMemoryKB:
		return nil, fmt.Errorf("%w: memory must be >= %d KB", ErrInvalidConfig, minMemoryKB)
	case cfg.Time == 0:
		return nil, fmt.Errorf("%w: time must be >= 1", ErrInvalidConfig)
	case cfg.Parallelism == 0:
		return nil, fmt.Errorf("%w: parallelism must be >= 1", ErrInvalidConfig)
	case cfg.SaltLength < minSaltBytes:
		return nil, fmt.Errorf("%w: salt length must be >= %d", ErrInvalidConfig, minSaltBytes)
	case cfg.KeyLength < minKeyBytes:
		return nil, fmt.Errorf("%w: key length must be >= %d", ErrInvalidConfig, minKeyBytes)
	}

	a := &Argon2{
		cost:     cost{memory: cfg.Memory, time: cfg.Time, threads: cfg.Parallelism},
		saltLen:  cfg.SaltLength,
		keyLen:   cfg.KeyLength,
		maxBytes: cfg.MaxPasswordBytes,
	}
	if a.maxBytes <= 0 {
		a.maxBytes = DefaultMaxPasswordBytes
	}

	dummy, err := a.Hash(dummyInput)
	if err != nil {
		return nil, err
	}
	a.dummy = dummy
	return a, nil
}

// DummyHash returns a valid hash at the configured cost. Login verifies
// against it for unknown phone numbers.
func (a *Argon2) DummyHash() string {
	return a.dummy
}

// Hash returns the PHC encoding of password under a fresh salt. The password
// bytes are used as given, without Unicode normalization.
func (a *Argon2) Hash(password string) (string, error) {
	switch {
	case len(password) < MinPasswordBytes:
		return "", ErrPasswordTooShort
	case len(password) > a.maxBytes:
		return "", ErrPasswordTooLong
	}

	salt := make([]byte, a.saltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("password: reading salt: %w", err)
	}
	return encode(a.cost, salt, a.cost.derive(password, salt, a.keyLen)), nil
}

// Verify reports whether password matches encoded in constant time.
// Oversized input is rejected before any hashing work.
func (a *Argon2) Verify(password, encoded string) (bool, error) {
	if len(password) > a.maxBytes {
		return false, nil
	}
	c, salt, key, err := decode(encoded)
	if err != nil {
		return false, err
	}
	got := c.derive(password, salt, uint32(len(key)))
	return subtle.ConstantTimeCompare(got, key) == 1, nil
}

func encode(c cost, salt, key []byte) string {
	b64 := base64.RawStdEncoding
	return fmt.Sprintf("%sv=%d$m=%d,t=%d,p=%d$%s$%s",
		phcPrefix, argon2.Version, c.memory, c.time, c.threads,
		b64.EncodeToString(salt), b64.EncodeToString(key))
}

// decode parses $argon2id$v=19$m=<kb>,t=<n>,p=<n>$<salt>$<key>.
func decode(encoded string) (cost, []byte, []byte, error) {
	rest, ok := strings.CutPrefix(encoded, phcPrefix)
	if !ok {
		return cost{}, nil, nil, fmt.Errorf("%w: not argon2id", ErrMalformedHash)
	}
	fields := strings.Split(rest, "$")
	if len(fields) != 4 {
		return cost{}, nil, nil, fmt.Errorf("%w: want 4 fields, got %d", ErrMalformedHash, len(fields))
	}

	var version int
	if _, err := fmt.Sscanf(fields[0], "v=%d", &version); err != nil || version != argon2.Version {
		return cost{}, nil, nil, fmt.Errorf("%w: unsupported version %q", ErrMalformedHash, fields[0])
	}

	var c cost
	if _, err := fmt.Sscanf(fields[1], "m=%d,t=%d,p=%d", &c.memory, &c.time, &c.threads); err != nil {
		return cost{}, nil, nil, fmt.Errorf("%w: parameters %q", ErrMalformedHash, fields[1])
	}
	if c.memory < minMemoryKB || c.time == 0 || c.threads == 0 {
		return cost{}, nil, nil, fmt.Errorf("%w: parameters below minimum", ErrMalformedHash)
	}

	salt, err := base64.RawStdEncoding.DecodeString(fields[2])
	if err != nil || len(salt) < minSaltBytes {
		return cost{}, nil, nil, fmt.Errorf("%w: salt", ErrMalformedHash)
	}
	key, err := base64.RawStdEncoding.DecodeString(fields[3])
	if err != nil || len(key) < minKeyBytes {
		return cost{}, nil, nil, fmt.Errorf("%w: key", ErrMalformedHash)
	}
	return c, salt, key, nil
}

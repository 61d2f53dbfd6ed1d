package permission

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
)

var (
	ErrInvalidMaskSize = errors.New("permission: invalid mask size")
	ErrUnknownBits     = errors.New("permission: mask has unknown bits")
)

// EncodeSet returns the 8-byte big-endian form of s.
func EncodeSet(s Set) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, uint64(s))
	return b
}

// DecodeSet parses the 8-byte form produced by [EncodeSet]. Bits outside the
// declared permissions are rejected.
func DecodeSet(data []byte) (Set, error) {
	if len(data) != 8 {
		return 0, ErrInvalidMaskSize
	}
	s := Set(binary.BigEndian.Uint64(data))
	if s&^validBits != 0 {
		return 0, ErrUnknownBits
	}
	return s, nil
}

// ParseNames builds a set from wire names. Any unknown name is an error.
func ParseNames(names []string) (Set, error) {
	var s Set
	for _, n := range names {
		p, ok := Parse(n)
		if !ok {
			return 0, fmt.Errorf("permission: unknown permission %q", n)
		}
		s = s.Add(p)
	}
	return s, nil
}

// MarshalJSON encodes s as an array of wire names.
func (s Set) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Names())
}

// UnmarshalJSON decodes an array of wire names.
func (s *Set) UnmarshalJSON(data []byte) error {
	var names []string
	if err := json.Unmarshal(data, &names); err != nil {
		return err
	}
	parsed, err := ParseNames(names)
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// MarshalText encodes p as its wire name.
func (p Permission) MarshalText() ([]byte, error) {
	if !p.Valid() {
		return nil, fmt.Errorf("permission: invalid permission %d", p)
	}
	return []byte(p.String()), nil
}

// UnmarshalText decodes a wire name.
func (p *Permission) UnmarshalText(data []byte) error {
	parsed, ok := Parse(string(data))
	if !ok {
		return fmt.Errorf("permission: unknown permission %q", data)
	}
	*p = parsed
	return nil
}

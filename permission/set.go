package permission

import "math/bits"

// Set is a permission bitmask. Bit i is set when Permission(i) is held.
// The zero value is the empty set.
type Set uint64

const validBits = Set(1)<<numPermissions - 1

// NewSet builds a set from the given permissions. Invalid values are ignored.
func NewSet(perms ...Permission) Set {
	var s Set
	for _, p := range perms {
		s = s.Add(p)
	}
	return s
}

// FullSet returns the set holding every declared permission.
func FullSet() Set {
	return validBits
}

// Has reports whether p is in s.
func (s Set) Has(p Permission) bool {
	if !p.Valid() {
		return false
	}
	return s&(1<<p) != 0
}

// HasAny reports whether s holds at least one of perms. An empty perms list
// is never satisfied.
func (s Set) HasAny(perms ...Permission) bool {
	for _, p := range perms {
		if s.Has(p) {
			return true
		}
	}
	return false
}

func (s Set) Add(p Permission) Set {
	if !p.Valid() {
		return s
	}
	return s | 1<<p
}

func (s Set) Remove(p Permission) Set {
	if !p.Valid() {
		return s
	}
	return s &^ (1 << p)
}

func (s Set) Union(other Set) Set {
	return (s | other) & validBits
}

func (s Set) IsEmpty() bool {
	return s&validBits == 0
}

func (s Set) Len() int {
	return bits.OnesCount64(uint64(s & validBits))
}

// Permissions lists the members of s in bit order.
func (s Set) Permissions() []Permission {
	out := make([]Permission, 0, s.Len())
	for p := Permission(0); p < numPermissions; p++ {
		if s.Has(p) {
			out = append(out, p)
		}
	}
	return out
}

// Names lists the wire names of the members of s in bit order.
func (s Set) Names() []string {
	return Names(s.Permissions())
}

func (s Set) Raw() uint64 {
	return uint64(s)
}

package models

import (
	"fmt"
	"strconv"
	"strings"
)

// Role identifies which side of the marketplace an account belongs to.
type Role string

const (
	RoleCustomer  Role = "customer"
	RoleLaunderer Role = "launderer"
	RoleAdmin     Role = "admin"
)

// Roles lists every recognized role in allocation order.
var Roles = []Role{RoleCustomer, RoleLaunderer, RoleAdmin}

// Prefix returns the identifier prefix for the role (CUST, LAUN, ADMIN).
// Calling Prefix on an unrecognized role is a programming error and panics.
func (r Role) Prefix() string {
	switch r {
	case RoleCustomer:
		return "CUST"
	case RoleLaunderer:
		return "LAUN"
	case RoleAdmin:
		return "ADMIN"
	}
	panic(fmt.Sprintf("models: unknown role %q", string(r)))
}

// Valid reports whether r is one of the recognized roles.
func (r Role) Valid() bool {
	switch r {
	case RoleCustomer, RoleLaunderer, RoleAdmin:
		return true
	}
	return false
}

// ParseRole converts a stored role string into a Role.
func ParseRole(s string) (Role, error) {
	r := Role(strings.ToLower(strings.TrimSpace(s)))
	if !r.Valid() {
		return "", fmt.Errorf("models: invalid role %q", s)
	}
	return r, nil
}

// HumanID is a human-readable sequential identifier such as CUST-0001.
//
// The numeric part is zero-padded to at least four digits; sequences beyond
// 9999 simply widen the identifier, they never overflow.
type HumanID string

// humanIDDigits is the minimum zero-padded width of the sequence part.
const humanIDDigits = 4

// legacyKeyMinLen is the bootstrap threshold for classifying profile keys:
// anything longer than the widest plausible human ID is treated as an opaque
// provider UID. Profiles written under the current scheme carry an explicit
// external_id marker, so this heuristic only matters for records that predate
// the scheme.
const legacyKeyMinLen = 12

// FormatHumanID builds the identifier for the given role and sequence number.
func FormatHumanID(role Role, seq int64) HumanID {
	return HumanID(fmt.Sprintf("%s-%0*d", role.Prefix(), humanIDDigits, seq))
}

// ParseHumanID validates s and returns it as a HumanID.
func ParseHumanID(s string) (HumanID, error) {
	if !IsHumanID(s) {
		return "", fmt.Errorf("models: %q is not a human-readable identifier", s)
	}
	return HumanID(s), nil
}

// String returns the identifier as a plain string.
func (id HumanID) String() string { return string(id) }

// IsZero reports whether the identifier is unset.
func (id HumanID) IsZero() bool { return id == "" }

// Role returns the role encoded in the identifier prefix.
func (id HumanID) Role() (Role, bool) {
	prefix, _, ok := strings.Cut(string(id), "-")
	if !ok {
		return "", false
	}
	for _, r := range Roles {
		if r.Prefix() == prefix {
			return r, true
		}
	}
	return "", false
}

// Seq returns the numeric sequence encoded in the identifier.
func (id HumanID) Seq() (int64, bool) {
	_, digits, ok := strings.Cut(string(id), "-")
	if !ok {
		return 0, false
	}
	n, err := strconv.ParseInt(digits, 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}

// IsHumanID reports whether s has the role-prefixed sequential form
// (known prefix, dash, at least four digits).
func IsHumanID(s string) bool {
	prefix, digits, ok := strings.Cut(s, "-")
	if !ok || len(digits) < humanIDDigits {
		return false
	}
	known := false
	for _, r := range Roles {
		if r.Prefix() == prefix {
			known = true
			break
		}
	}
	if !known {
		return false
	}
	for _, c := range digits {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}

// IsLegacyKey reports whether a profile key looks like an opaque provider UID
// rather than a human-readable identifier. This is the one-time bootstrap
// detector for records created before identifiers were allocated; records
// written since then are recognized by their external_id field instead.
func IsLegacyKey(key string) bool {
	return len(key) > legacyKeyMinLen && !IsHumanID(key)
}

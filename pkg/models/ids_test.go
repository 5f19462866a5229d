package models

import (
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatHumanID(t *testing.T) {
	assert.Equal(t, HumanID("CUST-0001"), FormatHumanID(RoleCustomer, 1))
	assert.Equal(t, HumanID("LAUN-0042"), FormatHumanID(RoleLaunderer, 42))
	assert.Equal(t, HumanID("ADMIN-0007"), FormatHumanID(RoleAdmin, 7))

	// Sequences past 9999 widen instead of overflowing.
	assert.Equal(t, HumanID("CUST-10000"), FormatHumanID(RoleCustomer, 10000))
	assert.Equal(t, HumanID("CUST-123456"), FormatHumanID(RoleCustomer, 123456))
}

func TestFormatHumanIDMatchesPattern(t *testing.T) {
	pattern := regexp.MustCompile(`^(CUST|LAUN|ADMIN)-\d{4,}$`)
	for _, role := range Roles {
		for _, seq := range []int64{1, 99, 9999, 10000, 1000000} {
			id := FormatHumanID(role, seq)
			assert.Regexp(t, pattern, id.String())
		}
	}
}

func TestParseHumanID(t *testing.T) {
	id, err := ParseHumanID("CUST-0031")
	require.NoError(t, err)
	assert.Equal(t, HumanID("CUST-0031"), id)

	for _, bad := range []string{"", "CUST", "CUST-31", "cust-0031", "USER-0001", "CUST-00a1"} {
		_, err := ParseHumanID(bad)
		assert.Error(t, err, "expected %q to be rejected", bad)
	}
}

func TestHumanIDRoleAndSeq(t *testing.T) {
	id := FormatHumanID(RoleLaunderer, 12)

	role, ok := id.Role()
	require.True(t, ok)
	assert.Equal(t, RoleLaunderer, role)

	seq, ok := id.Seq()
	require.True(t, ok)
	assert.Equal(t, int64(12), seq)

	_, ok = HumanID("garbage").Role()
	assert.False(t, ok)
}

func TestIsHumanID(t *testing.T) {
	assert.True(t, IsHumanID("CUST-0001"))
	assert.True(t, IsHumanID("ADMIN-10000"))
	assert.False(t, IsHumanID("CUST-001"))
	assert.False(t, IsHumanID("FOO-0001"))
	assert.False(t, IsHumanID("x7Kd93jfA8sLq0Zr"))
}

func TestIsLegacyKey(t *testing.T) {
	// Opaque provider UIDs are long and not in the identifier format.
	assert.True(t, IsLegacyKey("x7Kd93jfA8sLq0ZrT2mN"))
	assert.True(t, IsLegacyKey("abcdefghijklm"))

	// Allocated identifiers are never legacy, even when long.
	assert.False(t, IsLegacyKey("CUST-0001"))
	assert.False(t, IsLegacyKey("ADMIN-100000000"))

	// Short keys are ambiguous and stay untouched.
	assert.False(t, IsLegacyKey("short"))
	assert.False(t, IsLegacyKey(""))
}

func TestParseRole(t *testing.T) {
	role, err := ParseRole(" Customer ")
	require.NoError(t, err)
	assert.Equal(t, RoleCustomer, role)

	_, err = ParseRole("driver")
	assert.Error(t, err)
}

func TestCountersGetSet(t *testing.T) {
	var c Counters
	c.Set(RoleLaunderer, 5)
	assert.Equal(t, int64(5), c.Get(RoleLaunderer))
	assert.Equal(t, int64(0), c.Get(RoleCustomer))
	assert.Equal(t, int64(0), c.Get(RoleAdmin))
}

func TestDocRoundTrip(t *testing.T) {
	profile := &UserProfile{
		ID:    "CUST-0001",
		Role:  RoleCustomer,
		Name:  "Asha",
		Email: "asha@example.com",
	}
	doc, err := ToDoc(profile)
	require.NoError(t, err)

	// The identifier lives on the document key, never inside the body.
	_, hasID := doc["ID"]
	assert.False(t, hasID)
	assert.Equal(t, "customer", doc["role"])

	var decoded UserProfile
	require.NoError(t, FromDoc(doc, &decoded))
	assert.Equal(t, profile.Name, decoded.Name)
	assert.Equal(t, profile.Role, decoded.Role)
	assert.True(t, decoded.ID.IsZero())
}

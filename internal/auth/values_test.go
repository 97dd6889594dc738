// Copyright (c) 2026 Cathedra. All rights reserved.

package auth

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

/*
TestNewEmail checks parsing and lowercase normalization.
*/
func TestNewEmail(t *testing.T) {
	tests := []struct {
		name       string
		input      string
		expected   string
		shouldFail bool
	}{
		{"valid", "cletus@stclare.cathedra.app", "cletus@stclare.cathedra.app", false},
		{"uppercase_normalized", "Cletus@StClare.Cathedra.App", "cletus@stclare.cathedra.app", false},
		{"surrounding_whitespace", "  cletus@stclare.cathedra.app  ", "cletus@stclare.cathedra.app", false},
		{"missing_domain", "cletus@", "", true},
		{"not_an_address", "not-an-email", "", true},
		{"empty", "", "", true},
		{"display_name_rejected", "Cletus <cletus@stclare.cathedra.app>", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			email, err := NewEmail(tt.input)
			if tt.shouldFail {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, email.String())
		})
	}
}

/*
TestNewPassword enforces the strength floor.
*/
func TestNewPassword(t *testing.T) {
	_, err := NewPassword("short")
	assert.Error(t, err)

	password, err := NewPassword("sanctum-viaticum")
	require.NoError(t, err)
	assert.Equal(t, "sanctum-viaticum", password.String())
}

/*
TestVerificationCode covers generation format and client-input parsing.
*/
func TestVerificationCode(t *testing.T) {
	code, err := NewVerificationCode()
	require.NoError(t, err)
	assert.Regexp(t, `^\d{6}$`, code.String())

	_, err = ParseVerificationCode("123456")
	assert.NoError(t, err)

	for _, invalid := range []string{"12345", "1234567", "12a456", ""} {
		_, err := ParseVerificationCode(invalid)
		assert.Error(t, err, invalid)
	}
}

/*
TestParsePermissionName splits resource and action and rejects bad formats.
*/
func TestParsePermissionName(t *testing.T) {
	permission, err := ParsePermissionName("mass-schedule:update")
	require.NoError(t, err)
	assert.Equal(t, "mass-schedule", permission.Resource)
	assert.Equal(t, "update", permission.Action)
	assert.Equal(t, "mass-schedule:update", permission.String())

	for _, invalid := range []string{"Parish:Read", "parish", ":read", "parish:", "parish:read:all", ""} {
		_, err := ParsePermissionName(invalid)
		assert.Error(t, err, invalid)
	}
}

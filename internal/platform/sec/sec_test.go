// Copyright (c) 2026 Cathedra. All rights reserved.

package sec

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

/*
TestGenerateSecureToken checks entropy sizing and URL safety.
*/
func TestGenerateSecureToken(t *testing.T) {
	first, err := GenerateSecureToken(32)
	require.NoError(t, err)

	second, err := GenerateSecureToken(32)
	require.NoError(t, err)

	assert.NotEqual(t, first, second)
	assert.NotContains(t, first, "+")
	assert.NotContains(t, first, "/")
	assert.NotContains(t, first, "=")
}

/*
TestHashToken verifies the digest is deterministic and hex-shaped.
*/
func TestHashToken(t *testing.T) {
	digest := HashToken("some-opaque-secret")
	assert.Len(t, digest, 64)
	assert.Equal(t, digest, HashToken("some-opaque-secret"))
	assert.NotEqual(t, digest, HashToken("another-secret"))
}

/*
TestSecureCompare checks equality semantics including length mismatches.
*/
func TestSecureCompare(t *testing.T) {
	assert.True(t, SecureCompare("123456", "123456"))
	assert.False(t, SecureCompare("123456", "123457"))
	assert.False(t, SecureCompare("123456", "12345"))
	assert.True(t, SecureCompare("", ""))
}

/*
TestPasswordHashing round-trips bcrypt hashing and verification.
*/
func TestPasswordHashing(t *testing.T) {
	hash, err := HashPassword("sanctum-viaticum")
	require.NoError(t, err)
	assert.NotEqual(t, "sanctum-viaticum", hash)

	assert.True(t, CheckPasswordHash("sanctum-viaticum", hash))
	assert.False(t, CheckPasswordHash("wrong-password", hash))
}

/*
TestTotp covers enrollment material, code verification, skew tolerance, and
fail-closed behavior on malformed secrets.
*/
func TestTotp(t *testing.T) {
	secret, err := NewTotpSecret()
	require.NoError(t, err)
	assert.NotEmpty(t, secret)

	at := time.Date(2026, time.March, 1, 9, 0, 0, 0, time.UTC)

	code, err := TotpCode(secret, at)
	require.NoError(t, err)
	assert.Regexp(t, `^\d{6}$`, code)

	assert.True(t, VerifyTotp(secret, code, at))

	// One period of clock drift on either side is tolerated.
	assert.True(t, VerifyTotp(secret, code, at.Add(30*time.Second)))
	assert.True(t, VerifyTotp(secret, code, at.Add(-30*time.Second)))

	// Beyond the skew window the code is rejected.
	assert.False(t, VerifyTotp(secret, code, at.Add(5*time.Minute)))

	assert.False(t, VerifyTotp(secret, "000000x", at))
	assert.False(t, VerifyTotp("not base32!!", "123456", at))
}

/*
TestTotpURL checks the otpauth provisioning URI shape.
*/
func TestTotpURL(t *testing.T) {
	url := TotpURL("JBSWY3DPEHPK3PXP", "cathedra.app", "cletus@stclare.cathedra.app")

	assert.Contains(t, url, "otpauth://totp/cathedra.app:")
	assert.Contains(t, url, "secret=JBSWY3DPEHPK3PXP")
	assert.Contains(t, url, "issuer=cathedra.app")
	assert.Contains(t, url, "digits=6")
	assert.Contains(t, url, "period=30")
}

/*
TestTokenService covers signing, verification, claim contents, and rejection
of foreign or tampered tokens.
*/
func TestTokenService(t *testing.T) {
	service, err := NewTokenService("0123456789abcdef0123456789abcdef", "cathedra.app")
	require.NoError(t, err)

	// Weak secrets are refused at construction.
	_, err = NewTokenService("short", "cathedra.app")
	assert.Error(t, err)

	input := AccessTokenInput{
		UserID:        "user-1",
		Email:         "cletus@stclare.cathedra.app",
		EmailVerified: true,
		Roles:         []string{"secretary"},
		Permissions:   []string{"parish:read", "parish:update"},
	}

	token, err := service.GenerateAccessToken(input, 15*time.Minute)
	require.NoError(t, err)

	claims, err := service.VerifyToken(token)
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.UserID())
	assert.Equal(t, "cletus@stclare.cathedra.app", claims.Email)
	assert.True(t, claims.EmailVerified)
	assert.Equal(t, []string{"secretary"}, claims.Roles)
	assert.True(t, claims.HasPermission("parish:read"))
	assert.False(t, claims.HasPermission("parish:delete"))

	// A token signed with a different key must not verify.
	foreign, err := NewTokenService("ffffffffffffffffffffffffffffffff", "cathedra.app")
	require.NoError(t, err)
	foreignToken, err := foreign.GenerateAccessToken(input, 15*time.Minute)
	require.NoError(t, err)

	_, err = service.VerifyToken(foreignToken)
	assert.Error(t, err)

	// Expired tokens are rejected.
	expired, err := service.GenerateAccessToken(input, -time.Minute)
	require.NoError(t, err)
	_, err = service.VerifyToken(expired)
	assert.Error(t, err)
}

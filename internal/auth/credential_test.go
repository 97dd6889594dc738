// Copyright (c) 2026 Cathedra. All rights reserved.

package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

var credentialNow = time.Date(2026, time.March, 1, 9, 0, 0, 0, time.UTC)

/*
TestRefreshToken_Liveness covers the derived-expiry and revocation predicates.
*/
func TestRefreshToken_Liveness(t *testing.T) {
	revokedAt := credentialNow.Add(-time.Hour)

	tests := []struct {
		name  string
		token RefreshToken
		dead  bool
	}{
		{
			name:  "live",
			token: RefreshToken{ExpiresAt: credentialNow.Add(time.Hour)},
			dead:  false,
		},
		{
			name:  "expired",
			token: RefreshToken{ExpiresAt: credentialNow.Add(-time.Second)},
			dead:  true,
		},
		{
			name:  "revoked",
			token: RefreshToken{ExpiresAt: credentialNow.Add(time.Hour), RevokedAt: &revokedAt},
			dead:  true,
		},
		{
			name:  "revoked_and_expired",
			token: RefreshToken{ExpiresAt: credentialNow.Add(-time.Hour), RevokedAt: &revokedAt},
			dead:  true,
		},
		{
			name:  "expires_exactly_now_still_live",
			token: RefreshToken{ExpiresAt: credentialNow},
			dead:  false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.dead, tt.token.IsDead(credentialNow))
		})
	}
}

/*
TestSingleUseCredentials checks the verified/used predicates on the one-shot
credential types.
*/
func TestSingleUseCredentials(t *testing.T) {
	stamp := credentialNow

	verification := EmailVerification{ExpiresAt: credentialNow.Add(5 * time.Minute)}
	assert.False(t, verification.IsVerified())
	assert.False(t, verification.IsExpired(credentialNow))
	verification.VerifiedAt = &stamp
	assert.True(t, verification.IsVerified())

	reset := PasswordReset{ExpiresAt: credentialNow.Add(time.Hour)}
	assert.False(t, reset.IsUsed())
	reset.UsedAt = &stamp
	assert.True(t, reset.IsUsed())
	assert.True(t, reset.IsExpired(credentialNow.Add(2*time.Hour)))

	otp := Otp{ExpiresAt: credentialNow.Add(5 * time.Minute)}
	assert.False(t, otp.IsVerified())
	assert.True(t, otp.IsExpired(credentialNow.Add(6*time.Minute)))
}

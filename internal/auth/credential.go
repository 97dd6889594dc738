// Copyright (c) 2026 Cathedra. All rights reserved.

package auth

import "time"

// Credential entities share one lifecycle discipline: "expired" is always a
// derived predicate (now > ExpiresAt) computed on read. It is never written
// back as a status field, so there is no window where a stale status column
// disagrees with the clock.

// RefreshToken is a server-side record of an opaque long-lived secret.
//
// # Security Concept
//
// Access tokens (JWT) are stateless and cannot be revoked before expiry. To
// mitigate this, Cathedra pairs short-lived JWTs with refresh tokens stored in
// the database. Only the SHA-256 hash of the secret is persisted; the
// plaintext exists solely in the client's hands.
type RefreshToken struct {
	ID        string     `json:"id"`
	UserID    string     `json:"user_id"`
	TokenHash string     `json:"-"` // Hashed secret. Omitted for security.
	ExpiresAt time.Time  `json:"expires_at"`
	RevokedAt *time.Time `json:"revoked_at,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
}

// IsRevoked reports whether the token has been explicitly invalidated.
func (t *RefreshToken) IsRevoked() bool { return t.RevokedAt != nil }

// IsExpired reports whether the token's lifetime has passed at the given instant.
func (t *RefreshToken) IsExpired(now time.Time) bool { return now.After(t.ExpiresAt) }

// IsDead reports whether the token is unusable: revoked or expired both count.
func (t *RefreshToken) IsDead(now time.Time) bool { return t.IsRevoked() || t.IsExpired(now) }

// Otp is a one-shot login challenge issued when a 2FA-enabled account signs in.
//
// # Rules
//   - One active challenge per user at a time; issuing a new one supersedes
//     any pending challenge (latest wins).
//   - Distinct from the enrolled TOTP seed on [User]: this secret is a single
//     six-digit code for one specific login attempt.
type Otp struct {
	ID         string     `json:"id"`
	UserID     string     `json:"user_id"`
	Secret     string     `json:"-"` // Challenge code. Omitted for security.
	ExpiresAt  time.Time  `json:"expires_at"`
	VerifiedAt *time.Time `json:"verified_at,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
}

// IsVerified reports whether the challenge has already been consumed.
func (o *Otp) IsVerified() bool { return o.VerifiedAt != nil }

// IsExpired reports whether the challenge window has closed.
func (o *Otp) IsExpired(now time.Time) bool { return now.After(o.ExpiresAt) }

// EmailVerification binds a six-digit code to an email address.
//
// The latest record per email is authoritative; older pending codes become
// irrelevant the moment a new one is issued.
type EmailVerification struct {
	ID         string     `json:"id"`
	Email      string     `json:"email"`
	Code       string     `json:"-"` // Six-digit code. Omitted for security.
	ExpiresAt  time.Time  `json:"expires_at"`
	VerifiedAt *time.Time `json:"verified_at,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
}

// IsVerified reports whether the code was successfully consumed. There is no
// transition out of verified.
func (v *EmailVerification) IsVerified() bool { return v.VerifiedAt != nil }

// IsExpired reports whether the code's short TTL has passed.
func (v *EmailVerification) IsExpired(now time.Time) bool { return now.After(v.ExpiresAt) }

// PasswordReset is a single-use, time-boxed reset credential.
//
// Like refresh tokens, only the SHA-256 hash of the opaque secret is stored;
// the plaintext is delivered once by email and never persisted.
type PasswordReset struct {
	ID        string     `json:"id"`
	UserID    string     `json:"user_id"`
	Email     string     `json:"email"`
	TokenHash string     `json:"-"` // Hashed secret. Omitted for security.
	ExpiresAt time.Time  `json:"expires_at"`
	UsedAt    *time.Time `json:"used_at,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
}

// IsUsed reports whether the token has already completed a reset.
func (r *PasswordReset) IsUsed() bool { return r.UsedAt != nil }

// IsExpired reports whether the reset window has closed.
func (r *PasswordReset) IsExpired(now time.Time) bool { return now.After(r.ExpiresAt) }

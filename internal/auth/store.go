// Copyright (c) 2026 Cathedra. All rights reserved.

package auth

import (
	"context"
	"time"
)

// Repository ports consumed by the auth core. Interfaces live in a separate
// file from the entities so storage-contract changes and entity changes can be
// reviewed independently by the team.
//
// # Implementations
//
// Durable identity state (accounts, roles, refresh tokens, email
// verifications, password resets) is PostgreSQL (store_postgres.go). Volatile
// OTP login challenges are Redis (store_redis.go).

// UserRepository defines the data access contract for user accounts.
type UserRepository interface {
	// FindByID returns the account with the given ID, roles and permissions
	// populated.
	//
	// Returns [apperr.NotFound] if the account does not exist.
	FindByID(ctx context.Context, id string) (*User, error)

	// FindByEmail returns the account with the given email, roles and
	// permissions populated.
	//
	// Returns [apperr.NotFound] if no user is registered with this email.
	FindByEmail(ctx context.Context, email string) (*User, error)

	// UpdateLastLogin stamps the account's last successful login time.
	UpdateLastLogin(ctx context.Context, userID string, at time.Time) error

	// UpdatePassword replaces only the user's password hash.
	// Separate from profile updates to prevent accidental overwrites.
	UpdatePassword(ctx context.Context, userID, newHash string) error

	// SetTwoFactor writes the 2FA enrollment pair atomically. Enabling stores
	// the TOTP seed; disabling clears both fields in the same statement so
	// OtpSecret is present iff OtpEnabled.
	SetTwoFactor(ctx context.Context, userID string, enabled bool, secret string) error
}

// RoleRepository defines read access to role definitions.
//
// Roles are created and edited by role management, an external collaborator.
// The auth core only reads them when aggregating permissions.
type RoleRepository interface {
	// FindByID returns the role with its permission list populated.
	//
	// Returns [apperr.NotFound] if the role does not exist.
	FindByID(ctx context.Context, id string) (*Role, error)

	// FindDefault returns the single role flagged as the system default.
	//
	// Returns [apperr.NotFound] if no default role is configured.
	FindDefault(ctx context.Context) (*Role, error)
}

// RefreshTokenRepository defines the data access contract for refresh tokens.
type RefreshTokenRepository interface {
	// Create persists a new token record for an authenticated login.
	Create(ctx context.Context, token *RefreshToken) error

	// FindByTokenHash returns the token matching the given secret hash,
	// whatever its state. Liveness (revoked/expired) is the service's call.
	//
	// Returns [apperr.NotFound] if no record matches.
	FindByTokenHash(ctx context.Context, tokenHash string) (*RefreshToken, error)

	// Revoke stamps RevokedAt on the token IF it is still live, and reports
	// whether this call was the one that revoked it.
	//
	// # Rotation Race
	//
	// The conditional write is the rotation tie-breaker: when two refresh
	// attempts race on the same secret, exactly one caller observes true and
	// may issue replacement tokens. Requires the store to apply the
	// "revokedat IS NULL" guard atomically (read-committed or better).
	Revoke(ctx context.Context, tokenID string, at time.Time) (bool, error)

	// RevokeAllForUser revokes every live token belonging to the user and
	// returns how many were affected. Zero is a silent no-op, not an error.
	RevokeAllForUser(ctx context.Context, userID string, at time.Time) (int64, error)

	// DeleteExpired physically removes tokens whose ExpiresAt has passed.
	// Intended for a periodic maintenance sweep to reclaim storage.
	DeleteExpired(ctx context.Context, before time.Time) (int64, error)
}

// OtpRepository defines the contract for volatile OTP login challenges.
type OtpRepository interface {
	// FindByUserID returns the user's pending challenge.
	//
	// Returns [apperr.NotFound] if none exists or it has been evicted.
	FindByUserID(ctx context.Context, userID string) (*Otp, error)

	// Create stores a new challenge, superseding any pending one for the
	// same user (latest wins).
	Create(ctx context.Context, otp *Otp) error

	// MarkVerified stamps VerifiedAt on the user's pending challenge IF it
	// is still unverified, and reports whether this call consumed it.
	MarkVerified(ctx context.Context, userID string, at time.Time) (bool, error)
}

// TwoFactorEnrollmentRepository holds TOTP seeds that are generated but not
// yet confirmed by the user's authenticator app.
//
// The pending seed lives outside the account row so the "OtpSecret present
// iff OtpEnabled" invariant on [User] holds at all times; it is promoted via
// [UserRepository.SetTwoFactor] only after a successful confirmation code.
type TwoFactorEnrollmentRepository interface {
	// Set stores the pending seed for a limited window, replacing any prior
	// unconfirmed enrollment.
	Set(ctx context.Context, userID, secret string, ttl time.Duration) error

	// Get returns the pending seed.
	//
	// Returns [apperr.NotFound] if no enrollment is pending or it expired.
	Get(ctx context.Context, userID string) (string, error)

	// Delete removes the pending seed after promotion or cancellation.
	Delete(ctx context.Context, userID string) error
}

// EmailVerificationRepository defines the contract for email verification codes.
type EmailVerificationRepository interface {
	// Create persists a fresh code record.
	Create(ctx context.Context, verification *EmailVerification) error

	// FindLatestByEmail returns the most recently created record for the
	// email, verified or not.
	//
	// Returns [apperr.NotFound] if the email has no records.
	FindLatestByEmail(ctx context.Context, email string) (*EmailVerification, error)

	// HasVerified reports whether ANY verified record exists for the email.
	// Verification is a one-way fact about the address; a newer pending code
	// must not shadow it.
	HasVerified(ctx context.Context, email string) (bool, error)

	// MarkVerified stamps VerifiedAt IF the record is still pending, and
	// reports whether this call consumed it. The check-and-set must be
	// atomic so two concurrent confirmations cannot both succeed.
	MarkVerified(ctx context.Context, verificationID string, at time.Time) (bool, error)

	// SupersedePending expires all pending codes for the email immediately.
	// Called before issuing a new code so older codes cannot race the fresh
	// one.
	SupersedePending(ctx context.Context, email string, at time.Time) error
}

// PasswordResetRepository defines the contract for password reset tokens.
type PasswordResetRepository interface {
	// Create persists a new reset record.
	Create(ctx context.Context, reset *PasswordReset) error

	// FindByTokenHash returns the reset record matching the secret hash.
	//
	// Returns [apperr.NotFound] if no record matches.
	FindByTokenHash(ctx context.Context, tokenHash string) (*PasswordReset, error)

	// MarkUsed stamps UsedAt IF the record is still unused, and reports
	// whether this call consumed it. Atomic check-and-set: two concurrent
	// resets on the same token must produce exactly one winner.
	MarkUsed(ctx context.Context, resetID string, at time.Time) (bool, error)
}

// EmailProvider is the outbound notification port.
//
// The core only invokes it; formatting and transport are the adapter's
// concern. Delivery failures are propagated to the caller, never swallowed —
// a verification flow whose email did not go out has not succeeded.
type EmailProvider interface {
	SendVerificationCode(ctx context.Context, email, code string) error
	SendPasswordResetEmail(ctx context.Context, email, token string) error
}

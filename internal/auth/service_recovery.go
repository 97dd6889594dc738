// Copyright (c) 2026 Cathedra. All rights reserved.

package auth

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/cathedra-app/cathedra/internal/platform/apperr"
	"github.com/cathedra-app/cathedra/internal/platform/constants"
	"github.com/cathedra-app/cathedra/internal/platform/sec"
	"github.com/cathedra-app/cathedra/pkg/uuidv7"
)

// enrollmentTTL is the window a generated-but-unconfirmed TOTP seed stays
// valid before the user must restart 2FA enrollment.
const enrollmentTTL = 10 * time.Minute

// ── Email Verification ───────────────────────────────────────────────────────

// GenerateEmailVerificationCode creates a fresh six-digit code bound to the
// email and delivers it through the notification port.
//
// Issuing a new code supersedes prior pending codes for the same email, so
// exactly one code can succeed at any moment. A delivery failure is
// propagated — a code nobody received must not count as "sent".
func (service *Service) GenerateEmailVerificationCode(ctx context.Context, rawEmail string) (VerificationCode, error) {
	// ── 1. Input Normalization ────────────────────────────────────────────

	email, err := NewEmail(rawEmail)
	if err != nil {
		return "", err
	}

	code, err := NewVerificationCode()
	if err != nil {
		return "", err
	}

	// ── 2. Supersede & Persist ────────────────────────────────────────────

	now := service.now()
	if err := service.deps.EmailVerifications.SupersedePending(ctx, email.String(), now); err != nil {
		return "", fmt.Errorf("auth_service_supersede_codes_failed: %w", err)
	}

	verification := &EmailVerification{
		ID:        uuidv7.New(),
		Email:     email.String(),
		Code:      code.String(),
		ExpiresAt: now.Add(service.config.EmailCodeTTL),
		CreatedAt: now,
	}

	if err := service.deps.EmailVerifications.Create(ctx, verification); err != nil {
		return "", fmt.Errorf("auth_service_verification_create_failed: %w", err)
	}

	// ── 3. Delivery ───────────────────────────────────────────────────────

	if err := service.deps.Email.SendVerificationCode(ctx, email.String(), code.String()); err != nil {
		return "", fmt.Errorf("auth_service_verification_delivery_failed: %w", err)
	}

	return code, nil
}

// VerifyEmailCode checks a client-supplied code against the latest record for
// the email and marks it verified on success.
//
// # Fail-Closed Contract
//
// "Wrong code" is an expected, frequent outcome, so every failure path —
// unknown email, expired code, already verified, mismatch, lost check-and-set
// race — returns false rather than an error. The code comparison is
// constant-time.
func (service *Service) VerifyEmailCode(ctx context.Context, rawEmail, rawCode string) (bool, error) {
	email, err := NewEmail(rawEmail)
	if err != nil {
		return false, nil
	}

	code, err := ParseVerificationCode(rawCode)
	if err != nil {
		return false, nil
	}

	verification, err := service.deps.EmailVerifications.FindLatestByEmail(ctx, email.String())
	if err != nil {
		if isNotFound(err) {
			return false, nil
		}
		return false, fmt.Errorf("auth_service_verification_lookup_failed: %w", err)
	}

	now := service.now()
	if verification.IsExpired(now) || verification.IsVerified() {
		return false, nil
	}

	if !sec.SecureCompare(verification.Code, code.String()) {
		return false, nil
	}

	// Atomic check-and-set: a concurrent confirmation may win this race, in
	// which case this caller observes false like any other stale attempt.
	consumed, err := service.deps.EmailVerifications.MarkVerified(ctx, verification.ID, now)
	if err != nil {
		return false, fmt.Errorf("auth_service_verification_consume_failed: %w", err)
	}

	return consumed, nil
}

// IsEmailVerified reports whether the email has ever been verified.
//
// Verification is permanent: requesting a fresh code afterwards creates a
// newer pending record, and that record must not make the address read as
// unverified again. Hence an existence check over all records, not a look at
// the latest one.
func (service *Service) IsEmailVerified(ctx context.Context, rawEmail string) (bool, error) {
	email, err := NewEmail(rawEmail)
	if err != nil {
		return false, nil
	}

	verified, err := service.deps.EmailVerifications.HasVerified(ctx, email.String())
	if err != nil {
		return false, fmt.Errorf("auth_service_verified_lookup_failed: %w", err)
	}

	return verified, nil
}

// ── Password Reset ───────────────────────────────────────────────────────────

// CreatePasswordResetToken issues a single-use reset secret for the account
// owning the email and delivers it through the notification port.
//
// # Enumeration Masking
//
// Returns [apperr.NotFound] when no account owns the email. The HTTP layer
// deliberately translates that into the same generic success response a real
// account receives; the distinct failure kind exists for logging and metrics,
// never for the client.
func (service *Service) CreatePasswordResetToken(ctx context.Context, rawEmail string) (string, error) {
	// ── 1. Account Lookup ─────────────────────────────────────────────────

	email, err := NewEmail(rawEmail)
	if err != nil {
		return "", err
	}

	user, err := service.deps.Users.FindByEmail(ctx, email.String())
	if err != nil {
		return "", err // apperr.NotFound for unknown emails.
	}

	// ── 2. Secret Issuance ────────────────────────────────────────────────

	secret, err := sec.GenerateSecureToken(refreshSecretBytes)
	if err != nil {
		return "", fmt.Errorf("auth_service_reset_token_failed: %w", err)
	}

	now := service.now()
	reset := &PasswordReset{
		ID:        uuidv7.New(),
		UserID:    user.ID,
		Email:     user.Email,
		TokenHash: sec.HashToken(secret),
		ExpiresAt: now.Add(service.config.ResetTokenTTL),
		CreatedAt: now,
	}

	if err := service.deps.PasswordResets.Create(ctx, reset); err != nil {
		return "", fmt.Errorf("auth_service_reset_create_failed: %w", err)
	}

	// ── 3. Delivery ───────────────────────────────────────────────────────

	if err := service.deps.Email.SendPasswordResetEmail(ctx, user.Email, secret); err != nil {
		return "", fmt.Errorf("auth_service_reset_delivery_failed: %w", err)
	}

	return secret, nil
}

// ResetPassword consumes a reset token and writes the new password hash.
//
// # Returns
//   - [apperr.NotFound] if the token is unknown.
//   - [apperr.Unauthorized] if the token is expired or already used — the two
//     are indistinguishable to the client.
//
// On success every live refresh token of the account is revoked, so a stolen
// session does not survive a password reset.
func (service *Service) ResetPassword(ctx context.Context, token string, newPassword Password) error {
	// ── 1. Token Lookup ───────────────────────────────────────────────────

	reset, err := service.deps.PasswordResets.FindByTokenHash(ctx, sec.HashToken(token))
	if err != nil {
		return err // apperr.NotFound for unknown tokens.
	}

	now := service.now()
	if reset.IsExpired(now) {
		return apperr.Unauthorized("Invalid or expired reset token")
	}

	// ── 2. Single-Use Enforcement ─────────────────────────────────────────

	// Atomic check-and-set: of two concurrent resets on the same token,
	// exactly one consumes it.
	consumed, err := service.deps.PasswordResets.MarkUsed(ctx, reset.ID, now)
	if err != nil {
		return fmt.Errorf("auth_service_reset_consume_failed: %w", err)
	}
	if !consumed {
		return apperr.Unauthorized("Invalid or expired reset token")
	}

	// ── 3. Password Rewrite ───────────────────────────────────────────────

	newHash, err := sec.HashPassword(newPassword.String())
	if err != nil {
		return fmt.Errorf("auth_service_hash_failed: %w", err)
	}

	if err := service.deps.Users.UpdatePassword(ctx, reset.UserID, newHash); err != nil {
		return fmt.Errorf("auth_service_password_update_failed: %w", err)
	}

	// ── 4. Session Hygiene ────────────────────────────────────────────────

	if _, err := service.RevokeAllRefreshTokens(ctx, reset.UserID); err != nil {
		return err
	}

	return nil
}

// ── OTP Login Challenge ──────────────────────────────────────────────────────

// startOtpChallenge issues a one-shot login code for a 2FA-enabled account
// and delivers it by email. Any pending challenge is superseded (latest wins).
func (service *Service) startOtpChallenge(ctx context.Context, user *User) error {
	code, err := NewVerificationCode()
	if err != nil {
		return err
	}

	now := service.now()
	otp := &Otp{
		ID:        uuidv7.New(),
		UserID:    user.ID,
		Secret:    code.String(),
		ExpiresAt: now.Add(service.config.OtpTTL),
		CreatedAt: now,
	}

	if err := service.deps.Otps.Create(ctx, otp); err != nil {
		return fmt.Errorf("auth_service_otp_create_failed: %w", err)
	}

	if err := service.deps.Email.SendVerificationCode(ctx, user.Email, code.String()); err != nil {
		return fmt.Errorf("auth_service_otp_delivery_failed: %w", err)
	}

	return nil
}

// CompleteOtpLogin finishes a pending 2FA login by validating either the
// emailed challenge code or a code from the enrolled authenticator app, then
// issues the session the password step withheld.
func (service *Service) CompleteOtpLogin(ctx context.Context, rawEmail, rawCode string) (*Session, error) {
	email, err := NewEmail(rawEmail)
	if err != nil {
		return nil, apperr.Unauthorized("Invalid login credentials")
	}

	user, err := service.deps.Users.FindByEmail(ctx, email.String())
	if err != nil || !user.IsActive || !user.OtpEnabled {
		return nil, apperr.Unauthorized("Invalid login credentials")
	}

	// Emailed challenge codes and TOTP values share the six-digit format, so
	// one parse covers both branches.
	code, err := ParseVerificationCode(rawCode)
	if err != nil {
		return nil, apperr.Unauthorized("Invalid or expired verification code")
	}

	verified, err := service.VerifyOtp(ctx, user.ID, code.String())
	if err != nil {
		return nil, err
	}

	if !verified {
		// Fall back to the standing TOTP seed for users with an app.
		verified, err = service.VerifyTwoFactorToken(ctx, user.ID, code.String())
		if err != nil {
			return nil, err
		}
	}

	if !verified {
		return nil, apperr.Unauthorized("Invalid or expired verification code")
	}

	return service.issueSession(ctx, user)
}

// VerifyOtp validates the user's pending login challenge and consumes it.
//
// Fails closed: missing, expired, already-verified, or mismatched challenges
// all return false. The code comparison is constant-time.
func (service *Service) VerifyOtp(ctx context.Context, userID, code string) (bool, error) {
	otp, err := service.deps.Otps.FindByUserID(ctx, userID)
	if err != nil {
		if isNotFound(err) {
			return false, nil
		}
		return false, fmt.Errorf("auth_service_otp_lookup_failed: %w", err)
	}

	now := service.now()
	if otp.IsExpired(now) || otp.IsVerified() {
		return false, nil
	}

	if !sec.SecureCompare(otp.Secret, code) {
		return false, nil
	}

	consumed, err := service.deps.Otps.MarkVerified(ctx, userID, now)
	if err != nil {
		return false, fmt.Errorf("auth_service_otp_consume_failed: %w", err)
	}

	return consumed, nil
}

// ── Two-Factor Enrollment ────────────────────────────────────────────────────

// TwoFactorEnrollment carries the material the client needs to register the
// seed with an authenticator app.
type TwoFactorEnrollment struct {
	Secret     string `json:"secret"`
	OtpauthURL string `json:"otpauth_url"`
}

// EnableTwoFactorAuth starts 2FA enrollment: it generates a TOTP seed and the
// otpauth:// provisioning URL for the QR code.
//
// The seed is held as a pending enrollment until [Service.ConfirmTwoFactorAuth]
// proves the authenticator app produces matching codes; only then is the
// account flag flipped.
func (service *Service) EnableTwoFactorAuth(ctx context.Context, userID string) (*TwoFactorEnrollment, error) {
	user, err := service.deps.Users.FindByID(ctx, userID)
	if err != nil {
		return nil, err
	}

	if user.OtpEnabled {
		return nil, apperr.Conflict("Two-factor authentication is already enabled")
	}

	secret, err := sec.NewTotpSecret()
	if err != nil {
		return nil, fmt.Errorf("auth_service_totp_secret_failed: %w", err)
	}

	if err := service.deps.Enrollments.Set(ctx, userID, secret, enrollmentTTL); err != nil {
		return nil, fmt.Errorf("auth_service_enrollment_store_failed: %w", err)
	}

	return &TwoFactorEnrollment{
		Secret:     secret,
		OtpauthURL: sec.TotpURL(secret, constants.AuthIssuer, user.Email),
	}, nil
}

// ConfirmTwoFactorAuth completes enrollment by checking a code from the
// authenticator app against the pending seed, then promotes the seed onto the
// account.
func (service *Service) ConfirmTwoFactorAuth(ctx context.Context, userID, token string) error {
	secret, err := service.deps.Enrollments.Get(ctx, userID)
	if err != nil {
		if isNotFound(err) {
			return apperr.Unauthorized("No pending two-factor enrollment")
		}
		return fmt.Errorf("auth_service_enrollment_lookup_failed: %w", err)
	}

	if !sec.VerifyTotp(secret, token, service.now()) {
		return apperr.Unauthorized("Invalid two-factor code")
	}

	if err := service.deps.Users.SetTwoFactor(ctx, userID, true, secret); err != nil {
		return fmt.Errorf("auth_service_two_factor_enable_failed: %w", err)
	}

	if err := service.deps.Enrollments.Delete(ctx, userID); err != nil {
		return fmt.Errorf("auth_service_enrollment_cleanup_failed: %w", err)
	}

	return nil
}

// VerifyTwoFactorToken validates a code against the account's enrolled TOTP
// seed — the recurring per-login check, distinct from the one-shot challenge.
//
// Fails closed: accounts without 2FA enabled always return false.
func (service *Service) VerifyTwoFactorToken(ctx context.Context, userID, token string) (bool, error) {
	user, err := service.deps.Users.FindByID(ctx, userID)
	if err != nil {
		if isNotFound(err) {
			return false, nil
		}
		return false, fmt.Errorf("auth_service_two_factor_lookup_failed: %w", err)
	}

	if !user.OtpEnabled || user.OtpSecret == "" {
		return false, nil
	}

	return sec.VerifyTotp(user.OtpSecret, token, service.now()), nil
}

// DisableTwoFactorAuth clears the account's TOTP enrollment.
//
// # Returns
//   - The updated [*User] with OtpEnabled=false and no seed.
//   - [apperr.NotFound] if the account does not exist.
func (service *Service) DisableTwoFactorAuth(ctx context.Context, userID string) (*User, error) {
	user, err := service.deps.Users.FindByID(ctx, userID)
	if err != nil {
		return nil, err
	}

	// Clearing both fields in one statement preserves the
	// "secret present iff enabled" invariant.
	if err := service.deps.Users.SetTwoFactor(ctx, userID, false, ""); err != nil {
		return nil, fmt.Errorf("auth_service_two_factor_disable_failed: %w", err)
	}

	user.OtpEnabled = false
	user.OtpSecret = ""

	return user, nil
}

// isNotFound reports whether err carries the NOT_FOUND failure kind.
func isNotFound(err error) bool {
	appError := apperr.As(err)
	return appError != nil && appError.HTTPStatus == http.StatusNotFound
}

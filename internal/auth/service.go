// Copyright (c) 2026 Cathedra. All rights reserved.

package auth

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/cathedra-app/cathedra/internal/platform/apperr"
	"github.com/cathedra-app/cathedra/internal/platform/sec"
	"github.com/cathedra-app/cathedra/pkg/uuidv7"
)

// refreshSecretBytes is the entropy of a refresh or reset secret (256 bits).
const refreshSecretBytes = 32

// TokenProvider defines the contract for signing access tokens.
type TokenProvider interface {
	// GenerateAccessToken creates a signed JWT string carrying the identity
	// facts in input, valid for timeToLive.
	GenerateAccessToken(input sec.AccessTokenInput, timeToLive time.Duration) (string, error)
}

// Config carries the credential lifetimes the service treats as required,
// process-wide, read-only inputs.
type Config struct {
	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration
	EmailCodeTTL    time.Duration
	OtpTTL          time.Duration
	ResetTokenTTL   time.Duration
}

// Dependencies groups the ports injected into the [Service].
type Dependencies struct {
	Users              UserRepository
	Roles              RoleRepository
	RefreshTokens      RefreshTokenRepository
	Otps               OtpRepository
	Enrollments        TwoFactorEnrollmentRepository
	EmailVerifications EmailVerificationRepository
	PasswordResets     PasswordResetRepository
	Email              EmailProvider
	Tokens             TokenProvider
}

// Service is the single place where session and credential-recovery state
// transitions happen.
//
// # Review Process
//
// This service is critical for security. Any changes to rotation, revocation,
// or code-verification logic must be reviewed by the security team.
type Service struct {
	deps   Dependencies
	config Config
	logger *slog.Logger

	// now is the clock seam; tests pin it to exercise expiry predicates.
	now func() time.Time
}

// Option customizes a [Service] at construction time.
type Option func(*Service)

// WithClock replaces the wall clock. Intended for tests.
func WithClock(clock func() time.Time) Option {
	return func(service *Service) { service.now = clock }
}

// NewService constructs the auth [Service] with its ports and lifetimes.
func NewService(deps Dependencies, config Config, logger *slog.Logger, options ...Option) *Service {
	service := &Service{
		deps:   deps,
		config: config,
		logger: logger,
		now:    time.Now,
	}

	for _, option := range options {
		option(service)
	}

	return service
}

// Session represents a successfully established user session.
type Session struct {
	AccessToken           string
	RefreshToken          string
	RefreshTokenExpiresAt time.Time
	User                  *User
}

// LoginInput defines credentials for an authentication attempt.
type LoginInput struct {
	Email    string
	Password string
}

// LoginResult is either a full session or a pending OTP challenge.
//
// When the account has 2FA enabled, password verification alone does not
// establish a session; the caller must complete the challenge via
// [Service.CompleteOtpLogin].
type LoginResult struct {
	OtpRequired bool
	Session     *Session
}

// Login validates user credentials and issues security tokens, or starts an
// OTP challenge for 2FA-enabled accounts.
//
// # Returns
//   - [apperr.Unauthorized] if credentials do not match or the account is
//     deactivated. The message never distinguishes "wrong password" from
//     "unknown email" to prevent account enumeration.
func (service *Service) Login(ctx context.Context, input LoginInput) (*LoginResult, error) {
	// ── 1. Fetch Account ──────────────────────────────────────────────────

	// Accounts are stored with canonical (trimmed, lowercased) addresses, so
	// the login input gets the same treatment before lookup. A malformed
	// address maps to the generic credential failure, not a validation error.
	email, err := NewEmail(input.Email)
	if err != nil {
		return nil, apperr.Unauthorized("Invalid login credentials")
	}

	user, err := service.deps.Users.FindByEmail(ctx, email.String())
	if err != nil {
		return nil, apperr.Unauthorized("Invalid login credentials")
	}

	// ── 2. Credential Verification ────────────────────────────────────────

	// bcrypt comparison is constant-time by construction.
	if !sec.CheckPasswordHash(input.Password, user.PasswordHash) {
		return nil, apperr.Unauthorized("Invalid login credentials")
	}

	if !user.IsActive {
		return nil, apperr.Unauthorized("Invalid login credentials")
	}

	// ── 3. Second Factor Gate ─────────────────────────────────────────────

	if user.OtpEnabled {
		if err := service.startOtpChallenge(ctx, user); err != nil {
			return nil, err
		}
		return &LoginResult{OtpRequired: true}, nil
	}

	// ── 4. Session Issuance ───────────────────────────────────────────────

	session, err := service.issueSession(ctx, user)
	if err != nil {
		return nil, err
	}

	return &LoginResult{Session: session}, nil
}

// RefreshSession implements refresh token rotation. It validates the
// presented secret, revokes its record to prevent reuse, and issues a fresh
// pair of access and refresh tokens.
//
// # Race Safety
//
// Two concurrent refresh attempts with the same valid secret produce exactly
// one winner: the conditional revoke (revokedat still NULL) decides who it
// is, and the loser receives [apperr.Unauthorized].
func (service *Service) RefreshSession(ctx context.Context, refreshToken string) (*Session, error) {
	// ── 1. Validate Presented Secret ──────────────────────────────────────

	token, err := service.ValidateRefreshToken(ctx, refreshToken)
	if err != nil {
		return nil, err
	}

	// ── 2. Rotation Tie-Breaker ───────────────────────────────────────────

	revoked, err := service.deps.RefreshTokens.Revoke(ctx, token.ID, service.now())
	if err != nil {
		return nil, fmt.Errorf("auth_service_refresh_revoke_failed: %w", err)
	}
	if !revoked {
		// A concurrent rotation already consumed this secret.
		return nil, apperr.Unauthorized("Invalid or expired refresh token")
	}

	// ── 3. Fetch Account ──────────────────────────────────────────────────

	user, err := service.deps.Users.FindByID(ctx, token.UserID)
	if err != nil || !user.IsActive {
		return nil, apperr.Unauthorized("Account not found or suspended")
	}

	// ── 4. Issue Replacement Pair ─────────────────────────────────────────

	return service.issueSession(ctx, user)
}

// Logout revokes the session bound to the presented refresh token.
//
// Idempotent: an unknown or already-revoked secret is a successful logout,
// not an error.
func (service *Service) Logout(ctx context.Context, refreshToken string) error {
	return service.RevokeRefreshToken(ctx, refreshToken)
}

// LogoutAll revokes every live refresh token belonging to the user and
// returns the number of sessions terminated.
func (service *Service) LogoutAll(ctx context.Context, userID string) (int64, error) {
	return service.RevokeAllRefreshTokens(ctx, userID)
}

// ── Refresh Token Primitives ─────────────────────────────────────────────────

// IssuedRefreshToken pairs the plaintext secret handed to the client with the
// persisted record. The plaintext never touches storage.
type IssuedRefreshToken struct {
	Secret string
	Record *RefreshToken
}

// ValidateRefreshToken looks up the presented secret and checks liveness.
//
// # Returns
//   - The live [*RefreshToken] bound to its user.
//   - [apperr.Unauthorized] if the secret is unknown, revoked, or expired —
//     the three cases are indistinguishable to the caller.
func (service *Service) ValidateRefreshToken(ctx context.Context, secret string) (*RefreshToken, error) {
	// Lookup is by SHA-256 digest, so a timing side channel on the index
	// reveals nothing about the plaintext secret.
	tokenHash := sec.HashToken(secret)

	token, err := service.deps.RefreshTokens.FindByTokenHash(ctx, tokenHash)
	if err != nil {
		return nil, apperr.Unauthorized("Invalid or expired refresh token")
	}

	// Revoked and expired are both dead; expiry is derived from the clock,
	// never read from a stored status.
	if token.IsDead(service.now()) {
		return nil, apperr.Unauthorized("Invalid or expired refresh token")
	}

	return token, nil
}

// CreateRefreshToken generates a fresh unguessable secret for the user and
// persists its record with the configured TTL.
func (service *Service) CreateRefreshToken(ctx context.Context, userID string) (*IssuedRefreshToken, error) {
	secret, err := sec.GenerateSecureToken(refreshSecretBytes)
	if err != nil {
		return nil, fmt.Errorf("auth_service_refresh_token_failed: %w", err)
	}

	now := service.now()
	record := &RefreshToken{
		ID:        uuidv7.New(), // Time-sortable ID to prevent PG index fragmentation.
		UserID:    userID,
		TokenHash: sec.HashToken(secret),
		ExpiresAt: now.Add(service.config.RefreshTokenTTL),
		CreatedAt: now,
	}

	if err := service.deps.RefreshTokens.Create(ctx, record); err != nil {
		return nil, fmt.Errorf("auth_service_refresh_token_create_failed: %w", err)
	}

	return &IssuedRefreshToken{Secret: secret, Record: record}, nil
}

// RevokeRefreshToken revokes the record matching the presented secret.
//
// Idempotent: revoking an unknown or already-revoked secret is a no-op.
func (service *Service) RevokeRefreshToken(ctx context.Context, secret string) error {
	tokenHash := sec.HashToken(secret)
	token, err := service.deps.RefreshTokens.FindByTokenHash(ctx, tokenHash)
	if err != nil {
		return nil
	}

	if _, err := service.deps.RefreshTokens.Revoke(ctx, token.ID, service.now()); err != nil {
		return fmt.Errorf("auth_service_revoke_failed: %w", err)
	}

	return nil
}

// RevokeAllRefreshTokens revokes every live token for the user. Returns the
// affected count; zero live tokens is a silent no-op.
func (service *Service) RevokeAllRefreshTokens(ctx context.Context, userID string) (int64, error) {
	count, err := service.deps.RefreshTokens.RevokeAllForUser(ctx, userID, service.now())
	if err != nil {
		return 0, fmt.Errorf("auth_service_revoke_all_failed: %w", err)
	}
	return count, nil
}

// PurgeExpiredRefreshTokens physically removes token records whose lifetime
// has passed. Revocation never deletes rows, so without this sweep the table
// grows without bound; main runs it on a timer.
func (service *Service) PurgeExpiredRefreshTokens(ctx context.Context) (int64, error) {
	count, err := service.deps.RefreshTokens.DeleteExpired(ctx, service.now())
	if err != nil {
		return 0, fmt.Errorf("auth_service_purge_failed: %w", err)
	}

	if count > 0 {
		service.logger.InfoContext(ctx, "auth_expired_tokens_purged", slog.Int64("count", count))
	}

	return count, nil
}

// ── Session Assembly ─────────────────────────────────────────────────────────

// UpdateLastLogin stamps the account's last successful login time.
//
// Best-effort side effect: a failure is logged, never fatal, because a login
// that already verified credentials must not be rejected over bookkeeping.
func (service *Service) UpdateLastLogin(ctx context.Context, userID string) {
	if err := service.deps.Users.UpdateLastLogin(ctx, userID, service.now()); err != nil {
		service.logger.WarnContext(ctx, "auth_last_login_update_failed",
			slog.String("user_id", userID),
			slog.Any("error", err),
		)
	}
}

// issueSession signs an access token with aggregated permission claims and
// pairs it with a fresh refresh token.
func (service *Service) issueSession(ctx context.Context, user *User) (*Session, error) {
	// ── 1. Claim Assembly ─────────────────────────────────────────────────

	// An account with no explicit assignments holds the system default role,
	// so a freshly registered user is never entirely without grants.
	if len(user.Roles) == 0 {
		defaultRole, err := service.deps.Roles.FindDefault(ctx)
		switch {
		case err == nil:
			user.Roles = []Role{*defaultRole}
		case isNotFound(err):
			// No default configured; the claims stay empty.
		default:
			return nil, fmt.Errorf("auth_service_default_role_failed: %w", err)
		}
	}

	permissions, err := service.aggregateUserPermissions(ctx, user)
	if err != nil {
		return nil, err
	}

	emailVerified, err := service.IsEmailVerified(ctx, user.Email)
	if err != nil {
		return nil, err
	}

	// ── 2. Access Token ───────────────────────────────────────────────────

	accessToken, err := service.deps.Tokens.GenerateAccessToken(sec.AccessTokenInput{
		UserID:        user.ID,
		Email:         user.Email,
		EmailVerified: emailVerified,
		Roles:         user.RoleNames(),
		Permissions:   permissions,
	}, service.config.AccessTokenTTL)
	if err != nil {
		return nil, fmt.Errorf("auth_service_token_generation_failed: %w", err)
	}

	// ── 3. Refresh Token ──────────────────────────────────────────────────

	issued, err := service.CreateRefreshToken(ctx, user.ID)
	if err != nil {
		return nil, err
	}

	// ── 4. Bookkeeping ────────────────────────────────────────────────────

	service.UpdateLastLogin(ctx, user.ID)

	return &Session{
		AccessToken:           accessToken,
		RefreshToken:          issued.Secret,
		RefreshTokenExpiresAt: issued.Record.ExpiresAt,
		User:                  user,
	}, nil
}

// aggregateUserPermissions unions permission names across the user's roles.
// Roles loaded without their permission list are hydrated through the role
// repository first, so a lazily loaded role never silently drops grants.
func (service *Service) aggregateUserPermissions(ctx context.Context, user *User) ([]string, error) {
	roles := make([]Role, 0, len(user.Roles))
	for _, role := range user.Roles {
		if role.Permissions == nil {
			hydrated, err := service.deps.Roles.FindByID(ctx, role.ID)
			if err != nil {
				return nil, fmt.Errorf("auth_service_role_hydration_failed: %w", err)
			}
			roles = append(roles, *hydrated)
			continue
		}
		roles = append(roles, role)
	}

	return AggregatePermissions(roles), nil
}

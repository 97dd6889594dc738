// Copyright (c) 2026 Cathedra. All rights reserved.

package auth

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cathedra-app/cathedra/internal/platform/apperr"
	"github.com/cathedra-app/cathedra/internal/platform/sec"
	"github.com/cathedra-app/cathedra/pkg/uuidv7"
)

// ── In-Memory Fakes ──────────────────────────────────────────────────────────

type fakeUserRepo struct {
	users map[string]*User // keyed by ID
}

func newFakeUserRepo() *fakeUserRepo {
	return &fakeUserRepo{users: map[string]*User{}}
}

func (r *fakeUserRepo) FindByID(_ context.Context, id string) (*User, error) {
	if user, ok := r.users[id]; ok {
		copied := *user
		return &copied, nil
	}
	return nil, apperr.NotFound("Account")
}

func (r *fakeUserRepo) FindByEmail(_ context.Context, email string) (*User, error) {
	for _, user := range r.users {
		if user.Email == email {
			copied := *user
			return &copied, nil
		}
	}
	return nil, apperr.NotFound("Account")
}

func (r *fakeUserRepo) UpdateLastLogin(_ context.Context, userID string, at time.Time) error {
	if user, ok := r.users[userID]; ok {
		user.LastLoginAt = &at
	}
	return nil
}

func (r *fakeUserRepo) UpdatePassword(_ context.Context, userID, newHash string) error {
	if user, ok := r.users[userID]; ok {
		user.PasswordHash = newHash
	}
	return nil
}

func (r *fakeUserRepo) SetTwoFactor(_ context.Context, userID string, enabled bool, secret string) error {
	if user, ok := r.users[userID]; ok {
		user.OtpEnabled = enabled
		user.OtpSecret = secret
	}
	return nil
}

type fakeRoleRepo struct {
	roles map[string]*Role
}

func (r *fakeRoleRepo) FindByID(_ context.Context, id string) (*Role, error) {
	if role, ok := r.roles[id]; ok {
		return role, nil
	}
	return nil, apperr.NotFound("Role")
}

func (r *fakeRoleRepo) FindDefault(_ context.Context) (*Role, error) {
	for _, role := range r.roles {
		if role.IsDefault {
			return role, nil
		}
	}
	return nil, apperr.NotFound("Role")
}

type fakeRefreshRepo struct {
	tokens map[string]*RefreshToken // keyed by token hash
}

func newFakeRefreshRepo() *fakeRefreshRepo {
	return &fakeRefreshRepo{tokens: map[string]*RefreshToken{}}
}

func (r *fakeRefreshRepo) Create(_ context.Context, token *RefreshToken) error {
	copied := *token
	r.tokens[token.TokenHash] = &copied
	return nil
}

func (r *fakeRefreshRepo) FindByTokenHash(_ context.Context, tokenHash string) (*RefreshToken, error) {
	if token, ok := r.tokens[tokenHash]; ok {
		copied := *token
		return &copied, nil
	}
	return nil, apperr.NotFound("Refresh token")
}

func (r *fakeRefreshRepo) Revoke(_ context.Context, tokenID string, at time.Time) (bool, error) {
	for _, token := range r.tokens {
		if token.ID == tokenID && token.RevokedAt == nil {
			stamped := at
			token.RevokedAt = &stamped
			return true, nil
		}
	}
	return false, nil
}

func (r *fakeRefreshRepo) RevokeAllForUser(_ context.Context, userID string, at time.Time) (int64, error) {
	var count int64
	for _, token := range r.tokens {
		if token.UserID == userID && token.RevokedAt == nil {
			stamped := at
			token.RevokedAt = &stamped
			count++
		}
	}
	return count, nil
}

func (r *fakeRefreshRepo) DeleteExpired(_ context.Context, before time.Time) (int64, error) {
	var count int64
	for hash, token := range r.tokens {
		if !token.ExpiresAt.After(before) {
			delete(r.tokens, hash)
			count++
		}
	}
	return count, nil
}

type fakeOtpRepo struct {
	challenges map[string]*Otp // keyed by user ID, latest wins
}

func newFakeOtpRepo() *fakeOtpRepo {
	return &fakeOtpRepo{challenges: map[string]*Otp{}}
}

func (r *fakeOtpRepo) FindByUserID(_ context.Context, userID string) (*Otp, error) {
	if otp, ok := r.challenges[userID]; ok {
		copied := *otp
		return &copied, nil
	}
	return nil, apperr.NotFound("Otp challenge")
}

func (r *fakeOtpRepo) Create(_ context.Context, otp *Otp) error {
	copied := *otp
	r.challenges[otp.UserID] = &copied
	return nil
}

func (r *fakeOtpRepo) MarkVerified(_ context.Context, userID string, at time.Time) (bool, error) {
	otp, ok := r.challenges[userID]
	if !ok || otp.VerifiedAt != nil {
		return false, nil
	}
	stamped := at
	otp.VerifiedAt = &stamped
	return true, nil
}

type fakeEnrollmentRepo struct {
	secrets map[string]string
}

func newFakeEnrollmentRepo() *fakeEnrollmentRepo {
	return &fakeEnrollmentRepo{secrets: map[string]string{}}
}

func (r *fakeEnrollmentRepo) Set(_ context.Context, userID, secret string, _ time.Duration) error {
	r.secrets[userID] = secret
	return nil
}

func (r *fakeEnrollmentRepo) Get(_ context.Context, userID string) (string, error) {
	if secret, ok := r.secrets[userID]; ok {
		return secret, nil
	}
	return "", apperr.NotFound("Pending enrollment")
}

func (r *fakeEnrollmentRepo) Delete(_ context.Context, userID string) error {
	delete(r.secrets, userID)
	return nil
}

type fakeVerificationRepo struct {
	records []*EmailVerification // append order is creation order
}

func (r *fakeVerificationRepo) Create(_ context.Context, verification *EmailVerification) error {
	copied := *verification
	r.records = append(r.records, &copied)
	return nil
}

func (r *fakeVerificationRepo) FindLatestByEmail(_ context.Context, email string) (*EmailVerification, error) {
	for i := len(r.records) - 1; i >= 0; i-- {
		if r.records[i].Email == email {
			copied := *r.records[i]
			return &copied, nil
		}
	}
	return nil, apperr.NotFound("Verification code")
}

func (r *fakeVerificationRepo) HasVerified(_ context.Context, email string) (bool, error) {
	for _, record := range r.records {
		if record.Email == email && record.VerifiedAt != nil {
			return true, nil
		}
	}
	return false, nil
}

func (r *fakeVerificationRepo) MarkVerified(_ context.Context, verificationID string, at time.Time) (bool, error) {
	for _, record := range r.records {
		if record.ID == verificationID {
			if record.VerifiedAt != nil {
				return false, nil
			}
			stamped := at
			record.VerifiedAt = &stamped
			return true, nil
		}
	}
	return false, nil
}

func (r *fakeVerificationRepo) SupersedePending(_ context.Context, email string, at time.Time) error {
	for _, record := range r.records {
		if record.Email == email && record.VerifiedAt == nil && record.ExpiresAt.After(at) {
			record.ExpiresAt = at
		}
	}
	return nil
}

type fakeResetRepo struct {
	resets map[string]*PasswordReset // keyed by token hash
}

func newFakeResetRepo() *fakeResetRepo {
	return &fakeResetRepo{resets: map[string]*PasswordReset{}}
}

func (r *fakeResetRepo) Create(_ context.Context, reset *PasswordReset) error {
	copied := *reset
	r.resets[reset.TokenHash] = &copied
	return nil
}

func (r *fakeResetRepo) FindByTokenHash(_ context.Context, tokenHash string) (*PasswordReset, error) {
	if reset, ok := r.resets[tokenHash]; ok {
		copied := *reset
		return &copied, nil
	}
	return nil, apperr.NotFound("Reset token")
}

func (r *fakeResetRepo) MarkUsed(_ context.Context, resetID string, at time.Time) (bool, error) {
	for _, reset := range r.resets {
		if reset.ID == resetID {
			if reset.UsedAt != nil {
				return false, nil
			}
			stamped := at
			reset.UsedAt = &stamped
			return true, nil
		}
	}
	return false, nil
}

type fakeEmailProvider struct {
	verificationCodes []string
	resetTokens       []string
	failNext          error
}

func (p *fakeEmailProvider) SendVerificationCode(_ context.Context, _, code string) error {
	if p.failNext != nil {
		return p.failNext
	}
	p.verificationCodes = append(p.verificationCodes, code)
	return nil
}

func (p *fakeEmailProvider) SendPasswordResetEmail(_ context.Context, _, token string) error {
	if p.failNext != nil {
		return p.failNext
	}
	p.resetTokens = append(p.resetTokens, token)
	return nil
}

// ── Test Harness ─────────────────────────────────────────────────────────────

type serviceFixture struct {
	service       *Service
	users         *fakeUserRepo
	roles         *fakeRoleRepo
	refreshTokens *fakeRefreshRepo
	otps          *fakeOtpRepo
	enrollments   *fakeEnrollmentRepo
	verifications *fakeVerificationRepo
	resets        *fakeResetRepo
	email         *fakeEmailProvider
	clock         *time.Time
}

// advance moves the fixture clock forward.
func (f *serviceFixture) advance(d time.Duration) {
	*f.clock = f.clock.Add(d)
}

func newServiceFixture(t *testing.T) *serviceFixture {
	t.Helper()

	tokenService, err := sec.NewTokenService("0123456789abcdef0123456789abcdef", "cathedra.app")
	require.NoError(t, err)

	fixture := &serviceFixture{
		users:         newFakeUserRepo(),
		roles:         &fakeRoleRepo{roles: map[string]*Role{}},
		refreshTokens: newFakeRefreshRepo(),
		otps:          newFakeOtpRepo(),
		enrollments:   newFakeEnrollmentRepo(),
		verifications: &fakeVerificationRepo{},
		resets:        newFakeResetRepo(),
		email:         &fakeEmailProvider{},
	}

	now := time.Date(2026, time.March, 1, 9, 0, 0, 0, time.UTC)
	fixture.clock = &now

	fixture.service = NewService(
		Dependencies{
			Users:              fixture.users,
			Roles:              fixture.roles,
			RefreshTokens:      fixture.refreshTokens,
			Otps:               fixture.otps,
			Enrollments:        fixture.enrollments,
			EmailVerifications: fixture.verifications,
			PasswordResets:     fixture.resets,
			Email:              fixture.email,
			Tokens:             tokenService,
		},
		Config{
			AccessTokenTTL:  15 * time.Minute,
			RefreshTokenTTL: 7 * 24 * time.Hour,
			EmailCodeTTL:    5 * time.Minute,
			OtpTTL:          5 * time.Minute,
			ResetTokenTTL:   60 * time.Minute,
		},
		slog.Default(),
		WithClock(func() time.Time { return *fixture.clock }),
	)

	return fixture
}

// seedUser registers an account directly in the fake store.
func (f *serviceFixture) seedUser(t *testing.T, email, password string) *User {
	t.Helper()

	hash, err := sec.HashPassword(password)
	require.NoError(t, err)

	user := &User{
		ID:           uuidv7.New(),
		Email:        email,
		PasswordHash: hash,
		FirstName:    "Cletus",
		LastName:     "Okafor",
		IsActive:     true,
		CreatedAt:    *f.clock,
		UpdatedAt:    *f.clock,
	}
	f.users.users[user.ID] = user

	return user
}

func assertUnauthorized(t *testing.T, err error) {
	t.Helper()
	require.Error(t, err)
	ae := apperr.As(err)
	require.NotNil(t, ae)
	assert.Equal(t, "UNAUTHORIZED", ae.Code)
}

// ── Refresh Token Lifecycle ──────────────────────────────────────────────────

/*
TestService_RefreshTokenLifecycle walks a secret through create, validate,
revoke, and re-validate.
*/
func TestService_RefreshTokenLifecycle(t *testing.T) {
	fixture := newServiceFixture(t)
	user := fixture.seedUser(t, "cletus@stclare.cathedra.app", "sanctum-viaticum")
	ctx := context.Background()

	issued, err := fixture.service.CreateRefreshToken(ctx, user.ID)
	require.NoError(t, err)
	assert.NotEmpty(t, issued.Secret)
	assert.Equal(t, user.ID, issued.Record.UserID)

	token, err := fixture.service.ValidateRefreshToken(ctx, issued.Secret)
	require.NoError(t, err)
	assert.Equal(t, user.ID, token.UserID)

	require.NoError(t, fixture.service.RevokeRefreshToken(ctx, issued.Secret))

	_, err = fixture.service.ValidateRefreshToken(ctx, issued.Secret)
	assertUnauthorized(t, err)
}

/*
TestService_RevokeIsIdempotent revokes the same secret twice; the second call
must not error.
*/
func TestService_RevokeIsIdempotent(t *testing.T) {
	fixture := newServiceFixture(t)
	user := fixture.seedUser(t, "cletus@stclare.cathedra.app", "sanctum-viaticum")
	ctx := context.Background()

	issued, err := fixture.service.CreateRefreshToken(ctx, user.ID)
	require.NoError(t, err)

	require.NoError(t, fixture.service.RevokeRefreshToken(ctx, issued.Secret))
	require.NoError(t, fixture.service.RevokeRefreshToken(ctx, issued.Secret))

	// Unknown secrets are also a silent no-op.
	require.NoError(t, fixture.service.RevokeRefreshToken(ctx, "never-issued"))
}

/*
TestService_ExpiryIsDerived validates that a token past its TTL fails even
though nothing ever marked it expired.
*/
func TestService_ExpiryIsDerived(t *testing.T) {
	fixture := newServiceFixture(t)
	user := fixture.seedUser(t, "cletus@stclare.cathedra.app", "sanctum-viaticum")
	ctx := context.Background()

	issued, err := fixture.service.CreateRefreshToken(ctx, user.ID)
	require.NoError(t, err)

	fixture.advance(7*24*time.Hour + time.Minute)

	_, err = fixture.service.ValidateRefreshToken(ctx, issued.Secret)
	assertUnauthorized(t, err)
}

/*
TestService_RotationInvalidatesOldToken performs a refresh and asserts the
original secret is dead forever after, while the replacement works.
*/
func TestService_RotationInvalidatesOldToken(t *testing.T) {
	fixture := newServiceFixture(t)
	user := fixture.seedUser(t, "cletus@stclare.cathedra.app", "sanctum-viaticum")
	ctx := context.Background()

	issued, err := fixture.service.CreateRefreshToken(ctx, user.ID)
	require.NoError(t, err)

	session, err := fixture.service.RefreshSession(ctx, issued.Secret)
	require.NoError(t, err)
	assert.NotEmpty(t, session.AccessToken)
	assert.NotEqual(t, issued.Secret, session.RefreshToken)

	_, err = fixture.service.ValidateRefreshToken(ctx, issued.Secret)
	assertUnauthorized(t, err)

	_, err = fixture.service.ValidateRefreshToken(ctx, session.RefreshToken)
	require.NoError(t, err)
}

/*
TestService_RotationRaceHasOneWinner simulates the second of two concurrent
refresh attempts: the conditional revoke already lost, so the caller must see
an unauthorized failure, not a second token pair.
*/
func TestService_RotationRaceHasOneWinner(t *testing.T) {
	fixture := newServiceFixture(t)
	user := fixture.seedUser(t, "cletus@stclare.cathedra.app", "sanctum-viaticum")
	ctx := context.Background()

	issued, err := fixture.service.CreateRefreshToken(ctx, user.ID)
	require.NoError(t, err)

	_, err = fixture.service.RefreshSession(ctx, issued.Secret)
	require.NoError(t, err)

	// The loser re-presents the same secret after the winner rotated it.
	_, err = fixture.service.RefreshSession(ctx, issued.Secret)
	assertUnauthorized(t, err)
}

/*
TestService_RevokeAllRefreshTokens terminates every live session and reports
the count; a second sweep finds nothing.
*/
func TestService_RevokeAllRefreshTokens(t *testing.T) {
	fixture := newServiceFixture(t)
	user := fixture.seedUser(t, "cletus@stclare.cathedra.app", "sanctum-viaticum")
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := fixture.service.CreateRefreshToken(ctx, user.ID)
		require.NoError(t, err)
	}

	count, err := fixture.service.RevokeAllRefreshTokens(ctx, user.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 3, count)

	count, err = fixture.service.RevokeAllRefreshTokens(ctx, user.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 0, count)
}

// ── Login ────────────────────────────────────────────────────────────────────

/*
TestService_Login covers the password step: success, wrong password, unknown
email, and deactivated accounts all behave per contract.
*/
func TestService_Login(t *testing.T) {
	fixture := newServiceFixture(t)
	user := fixture.seedUser(t, "cletus@stclare.cathedra.app", "sanctum-viaticum")
	ctx := context.Background()

	result, err := fixture.service.Login(ctx, LoginInput{
		Email:    "cletus@stclare.cathedra.app",
		Password: "sanctum-viaticum",
	})
	require.NoError(t, err)
	require.False(t, result.OtpRequired)
	require.NotNil(t, result.Session)
	assert.Equal(t, user.ID, result.Session.User.ID)
	assert.NotEmpty(t, result.Session.AccessToken)
	assert.NotEmpty(t, result.Session.RefreshToken)

	// Login stamps the last-login time as a side effect.
	assert.NotNil(t, fixture.users.users[user.ID].LastLoginAt)

	_, err = fixture.service.Login(ctx, LoginInput{
		Email:    "cletus@stclare.cathedra.app",
		Password: "wrong-password",
	})
	assertUnauthorized(t, err)

	_, err = fixture.service.Login(ctx, LoginInput{
		Email:    "nobody@stclare.cathedra.app",
		Password: "sanctum-viaticum",
	})
	assertUnauthorized(t, err)

	fixture.users.users[user.ID].IsActive = false
	_, err = fixture.service.Login(ctx, LoginInput{
		Email:    "cletus@stclare.cathedra.app",
		Password: "sanctum-viaticum",
	})
	assertUnauthorized(t, err)
}

/*
TestService_LoginPermissionClaims asserts the issued access token embeds the
set union of permissions across the user's roles.
*/
func TestService_LoginPermissionClaims(t *testing.T) {
	fixture := newServiceFixture(t)
	user := fixture.seedUser(t, "cletus@stclare.cathedra.app", "sanctum-viaticum")
	user.Roles = []Role{
		{ID: "r1", Name: "secretary", Permissions: []Permission{
			{ID: "p1", Name: "parish:read", Resource: "parish", Action: "read"},
		}},
		{ID: "r2", Name: "registrar", Permissions: []Permission{
			{ID: "p1", Name: "parish:read", Resource: "parish", Action: "read"},
			{ID: "p2", Name: "parish:update", Resource: "parish", Action: "update"},
		}},
	}
	ctx := context.Background()

	result, err := fixture.service.Login(ctx, LoginInput{
		Email:    "cletus@stclare.cathedra.app",
		Password: "sanctum-viaticum",
	})
	require.NoError(t, err)

	tokenService, err := sec.NewTokenService("0123456789abcdef0123456789abcdef", "cathedra.app")
	require.NoError(t, err)

	claims, err := tokenService.VerifyToken(result.Session.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, user.ID, claims.UserID())
	assert.Equal(t, []string{"secretary", "registrar"}, claims.Roles)
	assert.Equal(t, []string{"parish:read", "parish:update"}, claims.Permissions)
}

/*
TestService_LoginDefaultRoleFallback verifies an account with no explicit role
assignments is issued the system default role's claims.
*/
func TestService_LoginDefaultRoleFallback(t *testing.T) {
	fixture := newServiceFixture(t)
	fixture.seedUser(t, "cletus@stclare.cathedra.app", "sanctum-viaticum")
	fixture.roles.roles["r-default"] = &Role{
		ID:        "r-default",
		Name:      "member",
		IsDefault: true,
		Permissions: []Permission{
			{ID: "p1", Name: "parish:read", Resource: "parish", Action: "read"},
		},
	}
	ctx := context.Background()

	result, err := fixture.service.Login(ctx, LoginInput{
		Email:    "cletus@stclare.cathedra.app",
		Password: "sanctum-viaticum",
	})
	require.NoError(t, err)

	tokenService, err := sec.NewTokenService("0123456789abcdef0123456789abcdef", "cathedra.app")
	require.NoError(t, err)

	claims, err := tokenService.VerifyToken(result.Session.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, []string{"member"}, claims.Roles)
	assert.Equal(t, []string{"parish:read"}, claims.Permissions)
}

/*
TestService_PurgeExpiredRefreshTokens checks the maintenance sweep deletes only
tokens past their lifetime.
*/
func TestService_PurgeExpiredRefreshTokens(t *testing.T) {
	fixture := newServiceFixture(t)
	user := fixture.seedUser(t, "cletus@stclare.cathedra.app", "sanctum-viaticum")
	ctx := context.Background()

	stale, err := fixture.service.CreateRefreshToken(ctx, user.ID)
	require.NoError(t, err)

	fixture.advance(7*24*time.Hour + time.Minute)

	fresh, err := fixture.service.CreateRefreshToken(ctx, user.ID)
	require.NoError(t, err)

	purged, err := fixture.service.PurgeExpiredRefreshTokens(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), purged)

	_, err = fixture.service.ValidateRefreshToken(ctx, stale.Secret)
	assertUnauthorized(t, err)

	_, err = fixture.service.ValidateRefreshToken(ctx, fresh.Secret)
	require.NoError(t, err)
}

// ── Email Verification ───────────────────────────────────────────────────────

/*
TestService_EmailVerificationFlow exercises the request-confirm cycle: wrong
code fails, right code succeeds once, and replays fail.
*/
func TestService_EmailVerificationFlow(t *testing.T) {
	fixture := newServiceFixture(t)
	ctx := context.Background()
	email := "cletus@stclare.cathedra.app"

	code, err := fixture.service.GenerateEmailVerificationCode(ctx, email)
	require.NoError(t, err)
	assert.Regexp(t, `^\d{6}$`, code.String())
	assert.Equal(t, []string{code.String()}, fixture.email.verificationCodes)

	verified, err := fixture.service.VerifyEmailCode(ctx, email, "000000")
	require.NoError(t, err)
	assert.False(t, verified)

	verified, err = fixture.service.VerifyEmailCode(ctx, email, code.String())
	require.NoError(t, err)
	assert.True(t, verified)

	// Same code again: the record is consumed.
	verified, err = fixture.service.VerifyEmailCode(ctx, email, code.String())
	require.NoError(t, err)
	assert.False(t, verified)

	ok, err := fixture.service.IsEmailVerified(ctx, email)
	require.NoError(t, err)
	assert.True(t, ok)
}

/*
TestService_EmailVerifiedSurvivesNewCode requests a fresh code after a
successful verification and asserts the address still reads as verified:
a newer pending record must not shadow the earlier verified one.
*/
func TestService_EmailVerifiedSurvivesNewCode(t *testing.T) {
	fixture := newServiceFixture(t)
	ctx := context.Background()
	email := "cletus@stclare.cathedra.app"

	code, err := fixture.service.GenerateEmailVerificationCode(ctx, email)
	require.NoError(t, err)

	verified, err := fixture.service.VerifyEmailCode(ctx, email, code.String())
	require.NoError(t, err)
	require.True(t, verified)

	_, err = fixture.service.GenerateEmailVerificationCode(ctx, email)
	require.NoError(t, err)

	ok, err := fixture.service.IsEmailVerified(ctx, email)
	require.NoError(t, err)
	assert.True(t, ok)
}

/*
TestService_EmailCodeSupersession issues a second code and asserts the first
can no longer succeed — latest wins.
*/
func TestService_EmailCodeSupersession(t *testing.T) {
	fixture := newServiceFixture(t)
	ctx := context.Background()
	email := "cletus@stclare.cathedra.app"

	first, err := fixture.service.GenerateEmailVerificationCode(ctx, email)
	require.NoError(t, err)

	second, err := fixture.service.GenerateEmailVerificationCode(ctx, email)
	require.NoError(t, err)

	verified, err := fixture.service.VerifyEmailCode(ctx, email, first.String())
	require.NoError(t, err)
	if first.String() != second.String() {
		assert.False(t, verified)
	}

	verified, err = fixture.service.VerifyEmailCode(ctx, email, second.String())
	require.NoError(t, err)
	assert.True(t, verified)
}

/*
TestService_EmailCodeExpiry advances the clock past the code TTL and asserts
verification fails closed.
*/
func TestService_EmailCodeExpiry(t *testing.T) {
	fixture := newServiceFixture(t)
	ctx := context.Background()
	email := "cletus@stclare.cathedra.app"

	code, err := fixture.service.GenerateEmailVerificationCode(ctx, email)
	require.NoError(t, err)

	fixture.advance(6 * time.Minute)

	verified, err := fixture.service.VerifyEmailCode(ctx, email, code.String())
	require.NoError(t, err)
	assert.False(t, verified)
}

/*
TestService_EmailDeliveryFailurePropagates asserts a notification-port error
surfaces to the caller instead of being swallowed.
*/
func TestService_EmailDeliveryFailurePropagates(t *testing.T) {
	fixture := newServiceFixture(t)
	fixture.email.failNext = assert.AnError
	ctx := context.Background()

	_, err := fixture.service.GenerateEmailVerificationCode(ctx, "cletus@stclare.cathedra.app")
	require.Error(t, err)
	assert.ErrorIs(t, err, assert.AnError)
}

// ── Password Reset ───────────────────────────────────────────────────────────

/*
TestService_PasswordResetFlow covers the happy path: token issued, consumed
once, password rewritten, and every live session revoked.
*/
func TestService_PasswordResetFlow(t *testing.T) {
	fixture := newServiceFixture(t)
	user := fixture.seedUser(t, "cletus@stclare.cathedra.app", "sanctum-viaticum")
	ctx := context.Background()

	_, err := fixture.service.CreateRefreshToken(ctx, user.ID)
	require.NoError(t, err)

	token, err := fixture.service.CreatePasswordResetToken(ctx, user.Email)
	require.NoError(t, err)
	assert.Equal(t, []string{token}, fixture.email.resetTokens)

	newPassword, err := NewPassword("lumen-gentium-22")
	require.NoError(t, err)

	require.NoError(t, fixture.service.ResetPassword(ctx, token, newPassword))

	// The hash changed and the old sessions are gone.
	assert.True(t, sec.CheckPasswordHash("lumen-gentium-22", fixture.users.users[user.ID].PasswordHash))
	count, err := fixture.service.RevokeAllRefreshTokens(ctx, user.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 0, count)

	// Single use: the token cannot be replayed.
	err = fixture.service.ResetPassword(ctx, token, newPassword)
	assertUnauthorized(t, err)
}

/*
TestService_PasswordResetUnknownEmail asserts the core raises NotFound — the
HTTP layer, not the core, is responsible for masking it.
*/
func TestService_PasswordResetUnknownEmail(t *testing.T) {
	fixture := newServiceFixture(t)
	ctx := context.Background()

	_, err := fixture.service.CreatePasswordResetToken(ctx, "unknown@nowhere.cathedra.app")
	require.Error(t, err)
	ae := apperr.As(err)
	require.NotNil(t, ae)
	assert.Equal(t, "NOT_FOUND", ae.Code)
}

/*
TestService_PasswordResetExpiry advances past the reset TTL and asserts the
token fails with an unauthorized error.
*/
func TestService_PasswordResetExpiry(t *testing.T) {
	fixture := newServiceFixture(t)
	user := fixture.seedUser(t, "cletus@stclare.cathedra.app", "sanctum-viaticum")
	ctx := context.Background()

	token, err := fixture.service.CreatePasswordResetToken(ctx, user.Email)
	require.NoError(t, err)

	fixture.advance(61 * time.Minute)

	newPassword, err := NewPassword("lumen-gentium-22")
	require.NoError(t, err)

	err = fixture.service.ResetPassword(ctx, token, newPassword)
	assertUnauthorized(t, err)
}

// ── OTP & Two-Factor ─────────────────────────────────────────────────────────

/*
TestService_OtpLoginFlow enables 2FA on an account, logs in, and completes the
emailed challenge. The challenge is single use.
*/
func TestService_OtpLoginFlow(t *testing.T) {
	fixture := newServiceFixture(t)
	user := fixture.seedUser(t, "cletus@stclare.cathedra.app", "sanctum-viaticum")
	fixture.users.users[user.ID].OtpEnabled = true
	ctx := context.Background()

	result, err := fixture.service.Login(ctx, LoginInput{
		Email:    "cletus@stclare.cathedra.app",
		Password: "sanctum-viaticum",
	})
	require.NoError(t, err)
	assert.True(t, result.OtpRequired)
	assert.Nil(t, result.Session)
	require.Len(t, fixture.email.verificationCodes, 1)

	code := fixture.email.verificationCodes[0]

	// Wrong challenge code fails closed.
	verified, err := fixture.service.VerifyOtp(ctx, user.ID, "000000")
	require.NoError(t, err)
	assert.False(t, verified)

	session, err := fixture.service.CompleteOtpLogin(ctx, user.Email, code)
	require.NoError(t, err)
	assert.NotEmpty(t, session.AccessToken)

	// The challenge was consumed; a replay cannot mint another session.
	_, err = fixture.service.CompleteOtpLogin(ctx, user.Email, code)
	assertUnauthorized(t, err)
}

/*
TestService_LoginAcceptsUncanonicalEmail logs in with surrounding whitespace
and mixed case; both login steps canonicalize the address before lookup, the
same way registration-side flows do.
*/
func TestService_LoginAcceptsUncanonicalEmail(t *testing.T) {
	fixture := newServiceFixture(t)
	user := fixture.seedUser(t, "cletus@stclare.cathedra.app", "sanctum-viaticum")
	fixture.users.users[user.ID].OtpEnabled = true
	ctx := context.Background()

	result, err := fixture.service.Login(ctx, LoginInput{
		Email:    "  CLETUS@STCLARE.cathedra.app ",
		Password: "sanctum-viaticum",
	})
	require.NoError(t, err)
	assert.True(t, result.OtpRequired)
	require.Len(t, fixture.email.verificationCodes, 1)

	session, err := fixture.service.CompleteOtpLogin(ctx, "Cletus@StClare.cathedra.app", fixture.email.verificationCodes[0])
	require.NoError(t, err)
	assert.NotEmpty(t, session.AccessToken)
}

/*
TestService_OtpChallengeExpiry lets the challenge window close and asserts
verification fails closed.
*/
func TestService_OtpChallengeExpiry(t *testing.T) {
	fixture := newServiceFixture(t)
	user := fixture.seedUser(t, "cletus@stclare.cathedra.app", "sanctum-viaticum")
	fixture.users.users[user.ID].OtpEnabled = true
	ctx := context.Background()

	_, err := fixture.service.Login(ctx, LoginInput{
		Email:    "cletus@stclare.cathedra.app",
		Password: "sanctum-viaticum",
	})
	require.NoError(t, err)
	code := fixture.email.verificationCodes[0]

	fixture.advance(6 * time.Minute)

	verified, err := fixture.service.VerifyOtp(ctx, user.ID, code)
	require.NoError(t, err)
	assert.False(t, verified)
}

/*
TestService_TwoFactorEnrollment walks enable → confirm → verify → disable.
*/
func TestService_TwoFactorEnrollment(t *testing.T) {
	fixture := newServiceFixture(t)
	user := fixture.seedUser(t, "cletus@stclare.cathedra.app", "sanctum-viaticum")
	ctx := context.Background()

	enrollment, err := fixture.service.EnableTwoFactorAuth(ctx, user.ID)
	require.NoError(t, err)
	assert.NotEmpty(t, enrollment.Secret)
	assert.Contains(t, enrollment.OtpauthURL, "otpauth://totp/")
	assert.Contains(t, enrollment.OtpauthURL, "cathedra.app")

	// The flag is not set until the app proves it holds the seed.
	assert.False(t, fixture.users.users[user.ID].OtpEnabled)

	// A wrong confirmation code leaves enrollment pending.
	err = fixture.service.ConfirmTwoFactorAuth(ctx, user.ID, "000000")
	assertUnauthorized(t, err)
	assert.False(t, fixture.users.users[user.ID].OtpEnabled)

	// Confirm with a code computed from the seed like an authenticator would.
	code := totpCodeForTest(t, enrollment.Secret, *fixture.clock)
	require.NoError(t, fixture.service.ConfirmTwoFactorAuth(ctx, user.ID, code))
	assert.True(t, fixture.users.users[user.ID].OtpEnabled)
	assert.Equal(t, enrollment.Secret, fixture.users.users[user.ID].OtpSecret)

	verified, err := fixture.service.VerifyTwoFactorToken(ctx, user.ID, code)
	require.NoError(t, err)
	assert.True(t, verified)

	updated, err := fixture.service.DisableTwoFactorAuth(ctx, user.ID)
	require.NoError(t, err)
	assert.False(t, updated.OtpEnabled)
	assert.Empty(t, updated.OtpSecret)

	verified, err = fixture.service.VerifyTwoFactorToken(ctx, user.ID, code)
	require.NoError(t, err)
	assert.False(t, verified)
}

/*
TestService_DisableTwoFactorUnknownUser asserts the not-found contract.
*/
func TestService_DisableTwoFactorUnknownUser(t *testing.T) {
	fixture := newServiceFixture(t)

	_, err := fixture.service.DisableTwoFactorAuth(context.Background(), "missing-id")
	require.Error(t, err)
	ae := apperr.As(err)
	require.NotNil(t, ae)
	assert.Equal(t, "NOT_FOUND", ae.Code)
}

// totpCodeForTest derives the current TOTP value the way an authenticator app
// would, via the shared sec helper.
func totpCodeForTest(t *testing.T, secret string, at time.Time) string {
	t.Helper()
	code, err := sec.TotpCode(secret, at)
	require.NoError(t, err)
	return code
}

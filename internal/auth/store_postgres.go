// Copyright (c) 2026 Cathedra. All rights reserved.

// PostgreSQL implementations of the auth repository ports.
//
// # Error Mapping
//
// Storage-specific errors (like pgx.ErrNoRows) are mapped to domain-friendly
// [apperr.AppError] types to avoid leaking storage implementation details.
//
// # Conditional Writes
//
// The single-use and rotation contracts (Revoke, MarkVerified, MarkUsed) are
// implemented as guarded UPDATEs whose affected-row count reports whether this
// caller won the transition. PostgreSQL's read-committed row locking makes the
// check-and-set atomic without explicit transactions.

package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cathedra-app/cathedra/internal/platform/apperr"
)

// ── User Repository ──────────────────────────────────────────────────────────

// PostgresUserRepository implements the UserRepository interface using pgx.
type PostgresUserRepository struct {
	pool *pgxpool.Pool
}

// NewUserRepository creates a new PostgreSQL implementation of the UserRepository.
func NewUserRepository(pool *pgxpool.Pool) *PostgresUserRepository {
	return &PostgresUserRepository{pool: pool}
}

const userColumns = `
	id, email, passwordhash, firstname, lastname, isactive,
	otpenabled, otpsecret, lastloginat, createdat, updatedat`

// scanUser maps one identity.account row into a [User].
func scanUser(row pgx.Row) (*User, error) {
	user := &User{}
	var otpSecret *string

	err := row.Scan(
		&user.ID,
		&user.Email,
		&user.PasswordHash,
		&user.FirstName,
		&user.LastName,
		&user.IsActive,
		&user.OtpEnabled,
		&otpSecret,
		&user.LastLoginAt,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if otpSecret != nil {
		user.OtpSecret = *otpSecret
	}

	return user, nil
}

// FindByID retrieves an account by ID with roles and permissions populated.
//
// # Returns
//
// Returns [*User] if found, or [apperr.NotFound] if no account exists.
func (repository *PostgresUserRepository) FindByID(ctx context.Context, id string) (*User, error) {
	query := fmt.Sprintf(`SELECT %s FROM identity.account WHERE id = $1`, userColumns)

	user, err := scanUser(repository.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.NotFound("Account")
		}
		return nil, fmt.Errorf("postgres_user_repo_find_by_id_failed: %w", err)
	}

	if user.Roles, err = repository.loadRoles(ctx, user.ID); err != nil {
		return nil, err
	}

	return user, nil
}

// FindByEmail retrieves an account by its unique email address with roles and
// permissions populated.
//
// # Returns
//
// Returns [*User] if found, or [apperr.NotFound] if no account exists.
func (repository *PostgresUserRepository) FindByEmail(ctx context.Context, email string) (*User, error) {
	query := fmt.Sprintf(`SELECT %s FROM identity.account WHERE email = $1`, userColumns)

	user, err := scanUser(repository.pool.QueryRow(ctx, query, email))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.NotFound("Account")
		}
		return nil, fmt.Errorf("postgres_user_repo_find_by_email_failed: %w", err)
	}

	if user.Roles, err = repository.loadRoles(ctx, user.ID); err != nil {
		return nil, err
	}

	return user, nil
}

// loadRoles fetches the account's roles together with their permission lists.
func (repository *PostgresUserRepository) loadRoles(ctx context.Context, userID string) ([]Role, error) {
	const roleQuery = `
		SELECT r.id, r.name, r.description, r.isdefault
		FROM identity.role r
		JOIN identity.account_role ar ON ar.roleid = r.id
		WHERE ar.accountid = $1
		ORDER BY r.name`

	rows, err := repository.pool.Query(ctx, roleQuery, userID)
	if err != nil {
		return nil, fmt.Errorf("postgres_user_repo_load_roles_failed: %w", err)
	}
	defer rows.Close()

	roles := []Role{}
	roleIndex := map[string]int{}
	roleIDs := []string{}

	for rows.Next() {
		role := Role{Permissions: []Permission{}}
		if err := rows.Scan(&role.ID, &role.Name, &role.Description, &role.IsDefault); err != nil {
			return nil, fmt.Errorf("postgres_user_repo_scan_role_failed: %w", err)
		}
		roleIndex[role.ID] = len(roles)
		roleIDs = append(roleIDs, role.ID)
		roles = append(roles, role)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres_user_repo_load_roles_failed: %w", err)
	}

	if len(roles) == 0 {
		return roles, nil
	}

	const permissionQuery = `
		SELECT rp.roleid, p.id, p.name, p.resource, p.action
		FROM identity.permission p
		JOIN identity.role_permission rp ON rp.permissionid = p.id
		WHERE rp.roleid = ANY($1)
		ORDER BY p.name`

	permissionRows, err := repository.pool.Query(ctx, permissionQuery, roleIDs)
	if err != nil {
		return nil, fmt.Errorf("postgres_user_repo_load_permissions_failed: %w", err)
	}
	defer permissionRows.Close()

	for permissionRows.Next() {
		var roleID string
		permission := Permission{}
		if err := permissionRows.Scan(&roleID, &permission.ID, &permission.Name, &permission.Resource, &permission.Action); err != nil {
			return nil, fmt.Errorf("postgres_user_repo_scan_permission_failed: %w", err)
		}
		if index, ok := roleIndex[roleID]; ok {
			roles[index].Permissions = append(roles[index].Permissions, permission)
		}
	}
	if err := permissionRows.Err(); err != nil {
		return nil, fmt.Errorf("postgres_user_repo_load_permissions_failed: %w", err)
	}

	return roles, nil
}

// UpdateLastLogin stamps the account's last successful login time.
func (repository *PostgresUserRepository) UpdateLastLogin(ctx context.Context, userID string, at time.Time) error {
	const query = `UPDATE identity.account SET lastloginat = $2, updatedat = $2 WHERE id = $1`

	_, err := repository.pool.Exec(ctx, query, userID, at)
	if err != nil {
		return fmt.Errorf("postgres_user_repo_last_login_failed: %w", err)
	}
	return nil
}

// UpdatePassword updates only the password hash for a specific account.
func (repository *PostgresUserRepository) UpdatePassword(ctx context.Context, userID, newHash string) error {
	const query = `UPDATE identity.account SET passwordhash = $2, updatedat = $3 WHERE id = $1`

	_, err := repository.pool.Exec(ctx, query, userID, newHash, time.Now())
	if err != nil {
		return fmt.Errorf("postgres_user_repo_update_password_failed: %w", err)
	}
	return nil
}

// SetTwoFactor writes the 2FA enrollment pair in a single statement so the
// seed and flag can never disagree.
func (repository *PostgresUserRepository) SetTwoFactor(ctx context.Context, userID string, enabled bool, secret string) error {
	const query = `UPDATE identity.account SET otpenabled = $2, otpsecret = NULLIF($3, ''), updatedat = $4 WHERE id = $1`

	_, err := repository.pool.Exec(ctx, query, userID, enabled, secret, time.Now())
	if err != nil {
		return fmt.Errorf("postgres_user_repo_set_two_factor_failed: %w", err)
	}
	return nil
}

// ── Role Repository ──────────────────────────────────────────────────────────

// PostgresRoleRepository implements the RoleRepository interface.
type PostgresRoleRepository struct {
	pool *pgxpool.Pool
}

// NewRoleRepository creates a new PostgreSQL implementation of RoleRepository.
func NewRoleRepository(pool *pgxpool.Pool) *PostgresRoleRepository {
	return &PostgresRoleRepository{pool: pool}
}

// FindByID retrieves a role with its permission list populated.
func (repository *PostgresRoleRepository) FindByID(ctx context.Context, id string) (*Role, error) {
	const query = `SELECT id, name, description, isdefault FROM identity.role WHERE id = $1`
	return repository.findOne(ctx, query, id)
}

// FindDefault retrieves the single role flagged as the system default.
func (repository *PostgresRoleRepository) FindDefault(ctx context.Context) (*Role, error) {
	const query = `SELECT id, name, description, isdefault FROM identity.role WHERE isdefault = TRUE`
	return repository.findOne(ctx, query)
}

func (repository *PostgresRoleRepository) findOne(ctx context.Context, query string, args ...any) (*Role, error) {
	role := &Role{Permissions: []Permission{}}
	err := repository.pool.QueryRow(ctx, query, args...).Scan(&role.ID, &role.Name, &role.Description, &role.IsDefault)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.NotFound("Role")
		}
		return nil, fmt.Errorf("postgres_role_repo_find_failed: %w", err)
	}

	const permissionQuery = `
		SELECT p.id, p.name, p.resource, p.action
		FROM identity.permission p
		JOIN identity.role_permission rp ON rp.permissionid = p.id
		WHERE rp.roleid = $1
		ORDER BY p.name`

	rows, err := repository.pool.Query(ctx, permissionQuery, role.ID)
	if err != nil {
		return nil, fmt.Errorf("postgres_role_repo_load_permissions_failed: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		permission := Permission{}
		if err := rows.Scan(&permission.ID, &permission.Name, &permission.Resource, &permission.Action); err != nil {
			return nil, fmt.Errorf("postgres_role_repo_scan_permission_failed: %w", err)
		}
		role.Permissions = append(role.Permissions, permission)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres_role_repo_load_permissions_failed: %w", err)
	}

	return role, nil
}

// ── Refresh Token Repository ─────────────────────────────────────────────────

// PostgresRefreshTokenRepository implements the RefreshTokenRepository interface.
type PostgresRefreshTokenRepository struct {
	pool *pgxpool.Pool
}

// NewRefreshTokenRepository creates a new PostgreSQL implementation of RefreshTokenRepository.
func NewRefreshTokenRepository(pool *pgxpool.Pool) *PostgresRefreshTokenRepository {
	return &PostgresRefreshTokenRepository{pool: pool}
}

// Create persists a new token record into identity.refresh_token.
func (repository *PostgresRefreshTokenRepository) Create(ctx context.Context, token *RefreshToken) error {
	const query = `
		INSERT INTO identity.refresh_token (id, accountid, tokenhash, expiresat, revokedat, createdat)
		VALUES ($1, $2, $3, $4, $5, $6)`

	_, err := repository.pool.Exec(ctx, query,
		token.ID,
		token.UserID,
		token.TokenHash,
		token.ExpiresAt,
		token.RevokedAt,
		token.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres_refresh_repo_create_failed: %w", err)
	}
	return nil
}

// FindByTokenHash retrieves a token record by its unique secret hash,
// whatever its state. The service decides liveness from the clock.
func (repository *PostgresRefreshTokenRepository) FindByTokenHash(ctx context.Context, tokenHash string) (*RefreshToken, error) {
	const query = `
		SELECT id, accountid, tokenhash, expiresat, revokedat, createdat
		FROM identity.refresh_token
		WHERE tokenhash = $1`

	token := &RefreshToken{}
	err := repository.pool.QueryRow(ctx, query, tokenHash).Scan(
		&token.ID,
		&token.UserID,
		&token.TokenHash,
		&token.ExpiresAt,
		&token.RevokedAt,
		&token.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.NotFound("Refresh token")
		}
		return nil, fmt.Errorf("postgres_refresh_repo_find_failed: %w", err)
	}

	return token, nil
}

// Revoke stamps revokedat on a still-live token. The affected-row count tells
// the caller whether it won the rotation race.
func (repository *PostgresRefreshTokenRepository) Revoke(ctx context.Context, tokenID string, at time.Time) (bool, error) {
	const query = `UPDATE identity.refresh_token SET revokedat = $2 WHERE id = $1 AND revokedat IS NULL`

	tag, err := repository.pool.Exec(ctx, query, tokenID, at)
	if err != nil {
		return false, fmt.Errorf("postgres_refresh_repo_revoke_failed: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// RevokeAllForUser revokes every live token belonging to the account.
func (repository *PostgresRefreshTokenRepository) RevokeAllForUser(ctx context.Context, userID string, at time.Time) (int64, error) {
	const query = `UPDATE identity.refresh_token SET revokedat = $2 WHERE accountid = $1 AND revokedat IS NULL`

	tag, err := repository.pool.Exec(ctx, query, userID, at)
	if err != nil {
		return 0, fmt.Errorf("postgres_refresh_repo_revoke_all_failed: %w", err)
	}
	return tag.RowsAffected(), nil
}

// DeleteExpired permanently removes tokens past their expiration date.
func (repository *PostgresRefreshTokenRepository) DeleteExpired(ctx context.Context, before time.Time) (int64, error) {
	const query = `DELETE FROM identity.refresh_token WHERE expiresat <= $1`

	tag, err := repository.pool.Exec(ctx, query, before)
	if err != nil {
		return 0, fmt.Errorf("postgres_refresh_repo_delete_expired_failed: %w", err)
	}
	return tag.RowsAffected(), nil
}

// ── Email Verification Repository ────────────────────────────────────────────

// PostgresEmailVerificationRepository implements the EmailVerificationRepository interface.
type PostgresEmailVerificationRepository struct {
	pool *pgxpool.Pool
}

// NewEmailVerificationRepository creates a new PostgreSQL implementation of EmailVerificationRepository.
func NewEmailVerificationRepository(pool *pgxpool.Pool) *PostgresEmailVerificationRepository {
	return &PostgresEmailVerificationRepository{pool: pool}
}

// Create persists a fresh code record into identity.email_verification.
func (repository *PostgresEmailVerificationRepository) Create(ctx context.Context, verification *EmailVerification) error {
	const query = `
		INSERT INTO identity.email_verification (id, email, code, expiresat, verifiedat, createdat)
		VALUES ($1, $2, $3, $4, $5, $6)`

	_, err := repository.pool.Exec(ctx, query,
		verification.ID,
		verification.Email,
		verification.Code,
		verification.ExpiresAt,
		verification.VerifiedAt,
		verification.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres_verification_repo_create_failed: %w", err)
	}
	return nil
}

// FindLatestByEmail retrieves the most recently created record for the email.
// Latest-by-creation-time is the authoritative record.
func (repository *PostgresEmailVerificationRepository) FindLatestByEmail(ctx context.Context, email string) (*EmailVerification, error) {
	const query = `
		SELECT id, email, code, expiresat, verifiedat, createdat
		FROM identity.email_verification
		WHERE email = $1
		ORDER BY createdat DESC
		LIMIT 1`

	verification := &EmailVerification{}
	err := repository.pool.QueryRow(ctx, query, email).Scan(
		&verification.ID,
		&verification.Email,
		&verification.Code,
		&verification.ExpiresAt,
		&verification.VerifiedAt,
		&verification.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.NotFound("Verification code")
		}
		return nil, fmt.Errorf("postgres_verification_repo_find_failed: %w", err)
	}

	return verification, nil
}

// HasVerified reports whether any verified record exists for the email.
// Deliberately not latest-only: issuing a fresh code must not make an
// already-verified address read as unverified.
func (repository *PostgresEmailVerificationRepository) HasVerified(ctx context.Context, email string) (bool, error) {
	const query = `
		SELECT EXISTS (
			SELECT 1 FROM identity.email_verification
			WHERE email = $1 AND verifiedat IS NOT NULL
		)`

	var verified bool
	if err := repository.pool.QueryRow(ctx, query, email).Scan(&verified); err != nil {
		return false, fmt.Errorf("postgres_verification_repo_has_verified_failed: %w", err)
	}
	return verified, nil
}

// MarkVerified stamps verifiedat on a still-pending record. Guarded so two
// concurrent confirmations produce exactly one winner.
func (repository *PostgresEmailVerificationRepository) MarkVerified(ctx context.Context, verificationID string, at time.Time) (bool, error) {
	const query = `UPDATE identity.email_verification SET verifiedat = $2 WHERE id = $1 AND verifiedat IS NULL`

	tag, err := repository.pool.Exec(ctx, query, verificationID, at)
	if err != nil {
		return false, fmt.Errorf("postgres_verification_repo_mark_failed: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// SupersedePending expires all pending codes for the email immediately, so a
// freshly issued code is the only one that can succeed.
func (repository *PostgresEmailVerificationRepository) SupersedePending(ctx context.Context, email string, at time.Time) error {
	const query = `
		UPDATE identity.email_verification
		SET expiresat = $2
		WHERE email = $1 AND verifiedat IS NULL AND expiresat > $2`

	_, err := repository.pool.Exec(ctx, query, email, at)
	if err != nil {
		return fmt.Errorf("postgres_verification_repo_supersede_failed: %w", err)
	}
	return nil
}

// ── Password Reset Repository ────────────────────────────────────────────────

// PostgresPasswordResetRepository implements the PasswordResetRepository interface.
type PostgresPasswordResetRepository struct {
	pool *pgxpool.Pool
}

// NewPasswordResetRepository creates a new PostgreSQL implementation of PasswordResetRepository.
func NewPasswordResetRepository(pool *pgxpool.Pool) *PostgresPasswordResetRepository {
	return &PostgresPasswordResetRepository{pool: pool}
}

// Create persists a new reset record into identity.password_reset.
func (repository *PostgresPasswordResetRepository) Create(ctx context.Context, reset *PasswordReset) error {
	const query = `
		INSERT INTO identity.password_reset (id, accountid, email, tokenhash, expiresat, usedat, createdat)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`

	_, err := repository.pool.Exec(ctx, query,
		reset.ID,
		reset.UserID,
		reset.Email,
		reset.TokenHash,
		reset.ExpiresAt,
		reset.UsedAt,
		reset.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres_reset_repo_create_failed: %w", err)
	}
	return nil
}

// FindByTokenHash retrieves a reset record by its unique secret hash.
func (repository *PostgresPasswordResetRepository) FindByTokenHash(ctx context.Context, tokenHash string) (*PasswordReset, error) {
	const query = `
		SELECT id, accountid, email, tokenhash, expiresat, usedat, createdat
		FROM identity.password_reset
		WHERE tokenhash = $1`

	reset := &PasswordReset{}
	err := repository.pool.QueryRow(ctx, query, tokenHash).Scan(
		&reset.ID,
		&reset.UserID,
		&reset.Email,
		&reset.TokenHash,
		&reset.ExpiresAt,
		&reset.UsedAt,
		&reset.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.NotFound("Reset token")
		}
		return nil, fmt.Errorf("postgres_reset_repo_find_failed: %w", err)
	}

	return reset, nil
}

// MarkUsed stamps usedat on a still-unused record. Guarded so two concurrent
// resets on the same token produce exactly one winner.
func (repository *PostgresPasswordResetRepository) MarkUsed(ctx context.Context, resetID string, at time.Time) (bool, error) {
	const query = `UPDATE identity.password_reset SET usedat = $2 WHERE id = $1 AND usedat IS NULL`

	tag, err := repository.pool.Exec(ctx, query, resetID, at)
	if err != nil {
		return false, fmt.Errorf("postgres_reset_repo_mark_failed: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

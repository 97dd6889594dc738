// Copyright (c) 2026 Cathedra. All rights reserved.

// Redis implementations of the volatile auth ports.
//
// OTP login challenges and pending 2FA enrollments are short-lived by nature,
// so they live in Redis with a TTL instead of the relational store: expiry is
// eviction, and "latest wins" is a plain key overwrite.

package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/cathedra-app/cathedra/internal/platform/apperr"
	"github.com/cathedra-app/cathedra/internal/platform/constants"
)

// otpRecord is the JSON shape stored under auth:otp:{accountID}.
//
// VerifiedAt must stay omitempty: the consume script treats the presence of
// the field as "already verified".
type otpRecord struct {
	ID         string     `json:"id"`
	UserID     string     `json:"user_id"`
	Secret     string     `json:"secret"`
	ExpiresAt  time.Time  `json:"expires_at"`
	VerifiedAt *time.Time `json:"verified_at,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
}

// markVerifiedScript consumes a pending challenge atomically. The read,
// pending check, and write happen inside one Redis call, so two concurrent
// verifications produce exactly one winner.
var markVerifiedScript = redis.NewScript(`
	local raw = redis.call('GET', KEYS[1])
	if not raw then
		return 0
	end
	local record = cjson.decode(raw)
	if record['verified_at'] then
		return 0
	end
	record['verified_at'] = ARGV[1]
	local ttl = redis.call('PTTL', KEYS[1])
	if ttl > 0 then
		redis.call('SET', KEYS[1], cjson.encode(record), 'PX', ttl)
	end
	return 1
`)

// RedisOtpRepository implements OtpRepository using Redis.
type RedisOtpRepository struct {
	client *redis.Client
}

// NewOtpRepository creates a new Redis-backed OtpRepository.
func NewOtpRepository(client *redis.Client) *RedisOtpRepository {
	return &RedisOtpRepository{client: client}
}

func otpKey(userID string) string {
	return constants.RedisPrefixOtpChallenge + userID
}

// Create stores a new challenge under the user's key. A pending challenge for
// the same user is overwritten, which is exactly the latest-wins contract.
func (repository *RedisOtpRepository) Create(ctx context.Context, otp *Otp) error {
	payload, err := json.Marshal(otpRecord{
		ID:         otp.ID,
		UserID:     otp.UserID,
		Secret:     otp.Secret,
		ExpiresAt:  otp.ExpiresAt,
		VerifiedAt: otp.VerifiedAt,
		CreatedAt:  otp.CreatedAt,
	})
	if err != nil {
		return fmt.Errorf("redis_otp_marshal_failed: %w", err)
	}

	// The key's TTL is the challenge window; Redis eviction is the expiry.
	ttl := time.Until(otp.ExpiresAt)
	if ttl <= 0 {
		return fmt.Errorf("redis_otp_create_failed: challenge already expired")
	}

	if err := repository.client.Set(ctx, otpKey(otp.UserID), payload, ttl).Err(); err != nil {
		return fmt.Errorf("redis_otp_set_failed: %w", err)
	}

	return nil
}

// FindByUserID returns the user's pending challenge.
//
// Returns [apperr.NotFound] if none exists or Redis already evicted it.
func (repository *RedisOtpRepository) FindByUserID(ctx context.Context, userID string) (*Otp, error) {
	raw, err := repository.client.Get(ctx, otpKey(userID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, apperr.NotFound("Otp challenge")
		}
		return nil, fmt.Errorf("redis_otp_get_failed: %w", err)
	}

	record := otpRecord{}
	if err := json.Unmarshal(raw, &record); err != nil {
		return nil, fmt.Errorf("redis_otp_unmarshal_failed: %w", err)
	}

	return &Otp{
		ID:         record.ID,
		UserID:     record.UserID,
		Secret:     record.Secret,
		ExpiresAt:  record.ExpiresAt,
		VerifiedAt: record.VerifiedAt,
		CreatedAt:  record.CreatedAt,
	}, nil
}

// MarkVerified consumes the user's pending challenge via the atomic script.
func (repository *RedisOtpRepository) MarkVerified(ctx context.Context, userID string, at time.Time) (bool, error) {
	consumed, err := markVerifiedScript.Run(
		ctx,
		repository.client,
		[]string{otpKey(userID)},
		at.UTC().Format(time.RFC3339Nano),
	).Int()
	if err != nil {
		return false, fmt.Errorf("redis_otp_mark_verified_failed: %w", err)
	}

	return consumed == 1, nil
}

// # Two-Factor Enrollment Repository

// RedisEnrollmentRepository implements TwoFactorEnrollmentRepository using Redis.
type RedisEnrollmentRepository struct {
	client *redis.Client
}

// NewEnrollmentRepository creates a new Redis-backed TwoFactorEnrollmentRepository.
func NewEnrollmentRepository(client *redis.Client) *RedisEnrollmentRepository {
	return &RedisEnrollmentRepository{client: client}
}

func enrollmentKey(userID string) string {
	return constants.RedisPrefixTwoFactorEnroll + userID
}

// Set stores the pending seed, replacing any prior unconfirmed enrollment.
func (repository *RedisEnrollmentRepository) Set(ctx context.Context, userID, secret string, ttl time.Duration) error {
	if err := repository.client.Set(ctx, enrollmentKey(userID), secret, ttl).Err(); err != nil {
		return fmt.Errorf("redis_enrollment_set_failed: %w", err)
	}
	return nil
}

// Get returns the pending seed.
//
// Returns [apperr.NotFound] if no enrollment is pending or it expired.
func (repository *RedisEnrollmentRepository) Get(ctx context.Context, userID string) (string, error) {
	secret, err := repository.client.Get(ctx, enrollmentKey(userID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", apperr.NotFound("Pending enrollment")
		}
		return "", fmt.Errorf("redis_enrollment_get_failed: %w", err)
	}
	return secret, nil
}

// Delete removes the pending seed after promotion or cancellation.
func (repository *RedisEnrollmentRepository) Delete(ctx context.Context, userID string) error {
	if err := repository.client.Del(ctx, enrollmentKey(userID)).Err(); err != nil {
		return fmt.Errorf("redis_enrollment_delete_failed: %w", err)
	}
	return nil
}

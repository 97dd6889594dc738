// Copyright (c) 2026 Cathedra. All rights reserved.

package auth

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"net/mail"
	"regexp"
	"strings"

	"github.com/cathedra-app/cathedra/internal/platform/apperr"
)

// Format rules for auth value types. Codes are exactly six digits; permission
// names are "resource:action" in lowercase kebab case.
var (
	codePattern       = regexp.MustCompile(`^\d{6}$`)
	permissionPattern = regexp.MustCompile(`^[a-z0-9-]+:[a-z0-9-]+$`)
)

// minPasswordLength is the strength floor enforced before hashing.
const minPasswordLength = 8

// # Email

// Email is a normalized, validated email address.
//
// Construction via [NewEmail] is the only path, so any Email value held by an
// entity is guaranteed parseable and lowercased. Equality is by value.
type Email string

// NewEmail parses and normalizes a raw address.
//
// Returns [apperr.ValidationError] if the address is not RFC-5322 parseable.
func NewEmail(raw string) (Email, error) {
	trimmed := strings.TrimSpace(raw)

	address, err := mail.ParseAddress(trimmed)
	if err != nil || address.Address != trimmed {
		return "", apperr.ValidationError("Invalid email address", apperr.FieldError{
			Field:   "email",
			Message: "must be a valid email address",
		})
	}

	return Email(strings.ToLower(address.Address)), nil
}

// String returns the normalized address.
func (e Email) String() string { return string(e) }

// # Password

// Password carries a plaintext password between the boundary and the hasher.
//
// It exists only transiently; entities store the bcrypt hash, never this type.
type Password string

// NewPassword validates strength rules before the value may be hashed.
func NewPassword(raw string) (Password, error) {
	if len(raw) < minPasswordLength {
		return "", apperr.ValidationError("Password too weak", apperr.FieldError{
			Field:   "password",
			Message: fmt.Sprintf("must be at least %d characters", minPasswordLength),
		})
	}
	return Password(raw), nil
}

// String returns the plaintext. Callers must pass it to the hasher only.
func (p Password) String() string { return string(p) }

// # Verification Code

// VerificationCode is a six-digit numeric code delivered out of band.
type VerificationCode string

// NewVerificationCode generates a uniformly random six-digit code.
//
// crypto/rand is mandatory here: verification codes gate account takeover, so
// a predictable source would defeat the whole flow.
func NewVerificationCode() (VerificationCode, error) {
	upperBound := big.NewInt(1000000)
	value, err := rand.Int(rand.Reader, upperBound)
	if err != nil {
		return "", fmt.Errorf("auth_code_generation_failed: %w", err)
	}
	return VerificationCode(fmt.Sprintf("%06d", value.Int64())), nil
}

// ParseVerificationCode validates a client-supplied code string.
func ParseVerificationCode(raw string) (VerificationCode, error) {
	if !codePattern.MatchString(raw) {
		return "", apperr.ValidationError("Invalid verification code", apperr.FieldError{
			Field:   "code",
			Message: "must be exactly 6 digits",
		})
	}
	return VerificationCode(raw), nil
}

// String returns the code digits.
func (c VerificationCode) String() string { return string(c) }

// # Permission Name

// PermissionName is a "resource:action" identifier, e.g. "parish:read".
type PermissionName struct {
	Resource string
	Action   string
}

// ParsePermissionName validates and splits a permission identifier.
func ParsePermissionName(raw string) (PermissionName, error) {
	if !permissionPattern.MatchString(raw) {
		return PermissionName{}, apperr.ValidationError("Invalid permission name", apperr.FieldError{
			Field:   "permission",
			Message: "must match resource:action in lowercase",
		})
	}

	parts := strings.SplitN(raw, ":", 2)
	return PermissionName{Resource: parts[0], Action: parts[1]}, nil
}

// String reassembles the canonical "resource:action" form.
func (p PermissionName) String() string {
	return p.Resource + ":" + p.Action
}

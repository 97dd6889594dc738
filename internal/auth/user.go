// Copyright (c) 2026 Cathedra. All rights reserved.

// Package auth is the identity and session-lifecycle core of Cathedra.
//
// # Architecture
//
// Entities in this file represent the "Truth" of the identity system. They
// have no dependencies on outer layers (databases, HTTP, third-party SDKs),
// which keeps the core logic testable and resilient to technology changes.
package auth

import (
	"sort"
	"time"
)

// User represents a registered member of the Cathedra platform.
//
// # Rules
//   - Email is unique and validated.
//   - PasswordHash is generated via Bcrypt exclusively by the auth service;
//     it is never empty on a persisted account.
//   - OtpSecret is present if and only if OtpEnabled is true.
//   - The account is owned by member management; the auth-relevant fields
//     (OtpEnabled, OtpSecret, LastLoginAt, PasswordHash) are mutated only
//     through [Service] methods.
type User struct {
	ID           string     `json:"id"`
	Email        string     `json:"email"`
	PasswordHash string     `json:"-"` // Explicitly omitted from JSON for security.
	FirstName    string     `json:"first_name"`
	LastName     string     `json:"last_name"`
	IsActive     bool       `json:"is_active"`
	OtpEnabled   bool       `json:"otp_enabled"`
	OtpSecret    string     `json:"-"` // Enrolled TOTP seed. Omitted for security.
	LastLoginAt  *time.Time `json:"last_login_at,omitempty"`
	Roles        []Role     `json:"roles,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// RoleNames returns the names of all roles attached to the user, in load order.
func (user *User) RoleNames() []string {
	names := make([]string, 0, len(user.Roles))
	for _, role := range user.Roles {
		names = append(names, role.Name)
	}
	return names
}

// Role groups permissions under a named authorization level.
//
// # Rules
//   - At most one role system-wide has IsDefault=true; it is attached to
//     newly registered accounts.
//   - Permissions may be nil when the role was loaded without its permission
//     list; nil means "not loaded", not "no permissions".
type Role struct {
	ID          string       `json:"id"`
	Name        string       `json:"name"`
	Description string       `json:"description,omitempty"`
	IsDefault   bool         `json:"is_default"`
	Permissions []Permission `json:"permissions,omitempty"`
}

// Permission is an immutable "resource:action" capability.
type Permission struct {
	ID       string `json:"id"`
	Name     string `json:"name"` // Canonical "resource:action" form.
	Resource string `json:"resource"`
	Action   string `json:"action"`
}

// AggregatePermissions flattens roles into a deduplicated permission-name set
// for embedding in access-token claims.
//
// # Algorithm
//
// Union of permission names across all roles. Two roles sharing "parish:read"
// contribute it once. Roles whose permission list was not loaded contribute
// nothing. The result is sorted only so token payloads are stable across
// issuances; order carries no meaning.
func AggregatePermissions(roles []Role) []string {
	permissionSet := make(map[string]struct{})
	for _, role := range roles {
		for _, permission := range role.Permissions {
			permissionSet[permission.Name] = struct{}{}
		}
	}

	names := make([]string, 0, len(permissionSet))
	for name := range permissionSet {
		names = append(names, name)
	}
	sort.Strings(names)

	return names
}

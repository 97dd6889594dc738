// Copyright (c) 2026 Cathedra. All rights reserved.

package auth

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

/*
TestAggregatePermissions verifies set-union semantics across roles.
*/
func TestAggregatePermissions(t *testing.T) {
	tests := []struct {
		name     string
		roles    []Role
		expected []string
	}{
		{
			name:     "no_roles",
			roles:    nil,
			expected: []string{},
		},
		{
			name: "single_role",
			roles: []Role{
				{Name: "secretary", Permissions: []Permission{
					{Name: "parish:read"},
				}},
			},
			expected: []string{"parish:read"},
		},
		{
			name: "shared_permission_contributes_once",
			roles: []Role{
				{Name: "secretary", Permissions: []Permission{
					{Name: "member:read"},
				}},
				{Name: "registrar", Permissions: []Permission{
					{Name: "member:read"},
					{Name: "member:write"},
				}},
			},
			expected: []string{"member:read", "member:write"},
		},
		{
			name: "unloaded_role_contributes_nothing",
			roles: []Role{
				{Name: "secretary", Permissions: nil},
				{Name: "registrar", Permissions: []Permission{
					{Name: "parish:read"},
				}},
			},
			expected: []string{"parish:read"},
		},
		{
			name: "output_is_sorted",
			roles: []Role{
				{Name: "admin", Permissions: []Permission{
					{Name: "parish:update"},
					{Name: "diocese:read"},
					{Name: "parish:read"},
				}},
			},
			expected: []string{"diocese:read", "parish:read", "parish:update"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, AggregatePermissions(tt.roles))
		})
	}
}

/*
TestUser_RoleNames verifies role names are extracted in load order.
*/
func TestUser_RoleNames(t *testing.T) {
	user := &User{Roles: []Role{
		{Name: "secretary"},
		{Name: "registrar"},
	}}

	assert.Equal(t, []string{"secretary", "registrar"}, user.RoleNames())
	assert.Empty(t, (&User{}).RoleNames())
}

package access_test

import (
	"testing"

	"leadership-portal/internal/access"
	"leadership-portal/internal/domain"
	"leadership-portal/internal/testutil"

	"github.com/stretchr/testify/assert"
)

func TestOwnershipGuard_Check(t *testing.T) {
	guard := access.NewOwnershipGuard(access.DefaultResolver())

	owner := testutil.NewTestUser(testutil.WithUserID("u-owner"), testutil.WithRole(domain.RoleMentor))
	stranger := testutil.NewTestUser(testutil.WithUserID("u-stranger"))
	admin := testutil.NewTestUser(testutil.WithUserID("u-admin"), testutil.WithRole(domain.RoleAdmin))

	tests := []struct {
		name     string
		user     *domain.User
		override access.Permission
		owners   []string
		want     bool
	}{
		{"owner", owner, "", []string{"u-owner"}, true},
		{"one of several owners", owner, "", []string{"u-x", "u-owner"}, true},
		{"stranger", stranger, access.PermUserManagement, []string{"u-owner"}, false},
		{"admin override", admin, access.PermUserManagement, []string{"u-owner"}, true},
		{"admin without override", admin, "", []string{"u-owner"}, false},
		{"no owners", stranger, "", nil, false},
		{"nil user", nil, access.PermUserManagement, []string{"u-owner"}, false},
		{"empty id never matches", testutil.NewTestUser(testutil.WithUserID("")), "", []string{""}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, guard.Check(tt.user, tt.override, tt.owners...))
		})
	}
}

func TestOwnership_OwnerIDs(t *testing.T) {
	o := access.Ownership{Owners: map[access.Relation][]string{
		access.RelationOwner:    {"a"},
		access.RelationAssignee: {"b"},
	}}

	assert.Equal(t, []string{"a"}, o.OwnerIDs(access.RelationOwner))
	assert.Equal(t, []string{"b"}, o.OwnerIDs(access.RelationAssignee))
	assert.ElementsMatch(t, []string{"a", "b"}, o.OwnerIDs())
	assert.Empty(t, access.Ownership{}.OwnerIDs(access.RelationOwner))
}

package access

import "leadership-portal/internal/domain"

// Permission is a named capability. The set is closed: anything not declared
// below is unknown and never granted.
type Permission string

const (
	PermUserManagement         Permission = "user_management"
	PermAssignmentManagement   Permission = "assignment_management"
	PermAssignmentView         Permission = "assignment_view"
	PermAssignmentSubmit       Permission = "assignment_submit"
	PermProjectManagement      Permission = "project_management"
	PermProjectView            Permission = "project_view"
	PermMessaging              Permission = "messaging"
	PermAnnouncementManagement Permission = "announcement_management"
	PermNotificationView       Permission = "notification_view"
	PermReportView             Permission = "report_view"
)

var allPermissions = []Permission{
	PermUserManagement,
	PermAssignmentManagement,
	PermAssignmentView,
	PermAssignmentSubmit,
	PermProjectManagement,
	PermProjectView,
	PermMessaging,
	PermAnnouncementManagement,
	PermNotificationView,
	PermReportView,
}

// Permissions returns every declared permission.
func Permissions() []Permission {
	out := make([]Permission, len(allPermissions))
	copy(out, allPermissions)
	return out
}

// Valid reports whether p is a declared permission.
func (p Permission) Valid() bool {
	for _, known := range allPermissions {
		if p == known {
			return true
		}
	}
	return false
}

// ParsePermission maps a name onto the closed set.
func ParsePermission(name string) (Permission, bool) {
	p := Permission(name)
	if !p.Valid() {
		return "", false
	}
	return p, true
}

// RolePermissions is the static role matrix.
var RolePermissions = map[domain.Role][]Permission{
	domain.RoleAdmin: Permissions(),
	domain.RoleMentor: {
		PermAssignmentManagement,
		PermAssignmentView,
		PermProjectManagement,
		PermProjectView,
		PermMessaging,
		PermAnnouncementManagement,
		PermNotificationView,
		PermReportView,
	},
	domain.RoleParticipant: {
		PermAssignmentView,
		PermAssignmentSubmit,
		PermProjectView,
		PermMessaging,
		PermNotificationView,
	},
	domain.RoleVolunteer: {
		PermProjectView,
		PermMessaging,
		PermNotificationView,
	},
}

// Resolver answers role/permission questions from a fixed table.
type Resolver struct {
	table map[domain.Role]map[Permission]struct{}
}

// NewResolver copies table into a lookup set. Undeclared permissions in the
// table are dropped.
func NewResolver(table map[domain.Role][]Permission) *Resolver {
	r := &Resolver{table: make(map[domain.Role]map[Permission]struct{}, len(table))}
	for role, perms := range table {
		set := make(map[Permission]struct{}, len(perms))
		for _, p := range perms {
			if p.Valid() {
				set[p] = struct{}{}
			}
		}
		r.table[role] = set
	}
	return r
}

// DefaultResolver returns a resolver over RolePermissions.
func DefaultResolver() *Resolver {
	return NewResolver(RolePermissions)
}

// Allows reports whether role holds perm. Unknown roles and permissions
// resolve to false.
func (r *Resolver) Allows(role domain.Role, perm Permission) bool {
	if r == nil {
		return false
	}
	set, ok := r.table[role]
	if !ok {
		return false
	}
	_, ok = set[perm]
	return ok
}

// PermissionsFor lists the permissions held by role in declaration order.
func (r *Resolver) PermissionsFor(role domain.Role) []Permission {
	var out []Permission
	for _, p := range allPermissions {
		if r.Allows(role, p) {
			out = append(out, p)
		}
	}
	return out
}

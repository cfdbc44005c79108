package auth

import "context"

const (
	RoleHR       = "hr"
	RoleManager  = "manager"
	RoleEmployee = "employee"
)

const (
	PermCyclesRead     = "cycles.read"
	PermCyclesWrite    = "cycles.write"
	PermCyclesReview   = "cycles.review"
	PermCyclesFinalize = "cycles.finalize"
	PermAuditRead      = "audit.read"
)

var DefaultPermissions = []string{
	PermCyclesRead,
	PermCyclesWrite,
	PermCyclesReview,
	PermCyclesFinalize,
	PermAuditRead,
}

var RolePermissions = map[string][]string{
	RoleEmployee: {
		PermCyclesRead,
		PermCyclesReview,
	},
	RoleManager: {
		PermCyclesRead,
		PermCyclesReview,
	},
	RoleHR: {
		PermCyclesRead,
		PermCyclesWrite,
		PermCyclesReview,
		PermCyclesFinalize,
		PermAuditRead,
	},
}

// StaticPermissions resolves permissions from RolePermissions. Roles are
// issued by the identity provider, so the role name doubles as its id.
type StaticPermissions struct{}

func (StaticPermissions) HasPermission(_ context.Context, role, permission string) (bool, error) {
	for _, perm := range RolePermissions[role] {
		if perm == permission {
			return true, nil
		}
	}
	return false, nil
}

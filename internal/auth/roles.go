package auth

import "strings"

// Role represents a user role.
type Role string

const (
	RoleViewer       Role = "viewer"
	RoleOperator     Role = "operator"
	RoleFactoryOwner Role = "factory_owner"
	RoleAdmin        Role = "admin"
)

// NormalizeRole validates and normalizes a role string.
func NormalizeRole(value string) (Role, bool) {
	role := Role(strings.ToLower(strings.TrimSpace(value)))
	switch role {
	case RoleViewer, RoleOperator, RoleFactoryOwner, RoleAdmin:
		return role, true
	default:
		return "", false
	}
}

// RoleAtLeast returns true when role satisfies required role.
func RoleAtLeast(role Role, required Role) bool {
	return roleRank(role) >= roleRank(required)
}

// Privileged reports whether the role may act across all factories.
func (r Role) Privileged() bool {
	return r == RoleAdmin
}

func roleRank(role Role) int {
	switch role {
	case RoleViewer:
		return 1
	case RoleOperator:
		return 2
	case RoleFactoryOwner:
		return 3
	case RoleAdmin:
		return 4
	default:
		return 0
	}
}

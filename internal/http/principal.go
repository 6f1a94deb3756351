package http

import (
	"strings"

	"shopfloor/internal/db"
)

// Roles of the employee master.
const (
	RoleOperator   = "operator"
	RoleSupervisor = "supervisor"
	RoleQC         = "qc"
	RoleVerifier   = "verifier"
	RoleAdmin      = "admin"
)

// Principal is the acting employee of a request, identified by the
// X-Employee header and resolved against the employee master. It is an
// identification, not an authentication.
type Principal struct {
	Employee string
	Name     string
	Role     string
	Active   bool
}

func principalFromEmployee(e db.Employee) Principal {
	return Principal{
		Employee: e.Code,
		Name:     e.Name,
		Role:     strings.ToLower(e.Role),
		Active:   e.Active,
	}
}

// SeesAll reports whether the principal may list every employee's rows.
// Operators only see their own and unassigned work.
func (p Principal) SeesAll() bool {
	switch p.Role {
	case RoleSupervisor, RoleAdmin, RoleQC, RoleVerifier:
		return true
	}
	return false
}

// HasRole reports whether the principal holds one of roles. Admins hold
// every role.
func (p Principal) HasRole(roles ...string) bool {
	if p.Role == RoleAdmin {
		return true
	}
	for _, r := range roles {
		if p.Role == r {
			return true
		}
	}
	return false
}

// SelfService reports whether the principal may only book work for
// themselves.
func (p Principal) SelfService() bool {
	return p.Role == RoleOperator
}

// ValidRole reports whether role is a role of the employee master.
func ValidRole(role string) bool {
	switch role {
	case RoleOperator, RoleSupervisor, RoleQC, RoleVerifier, RoleAdmin:
		return true
	}
	return false
}

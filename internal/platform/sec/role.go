// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package sec

import "fmt"

// # Principal Roles

// Role tags the kind of principal a credential belongs to. It doubles as the
// value carried in the `roles` claim of a session token.
type Role string

const (
	// Learner account, usually provisioned by a guardian or an operator
	RoleStudent Role = "student"

	// Parent or tutor responsible for one or more students
	RoleGuardian Role = "guardian"

	// Teaching staff
	RoleInstructor Role = "instructor"

	// Platform operator; the only role that carries MFA state
	RoleAdministrator Role = "administrator"
)

// SearchOrder is the fixed order used when an id has to be resolved without
// knowing which table owns it. First match wins.
var SearchOrder = []Role{RoleStudent, RoleGuardian, RoleInstructor, RoleAdministrator}

// Valid reports whether r is one of the four known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleStudent, RoleGuardian, RoleInstructor, RoleAdministrator:
		return true
	default:
		return false
	}
}

// ParseRole converts a claim string into a [Role].
func ParseRole(value string) (Role, error) {
	role := Role(value)
	if !role.Valid() {
		return "", fmt.Errorf("sec: unknown role %q", value)
	}
	return role, nil
}

// # Role Sets

// HasRole reports whether target is present in roles.
func HasRole(roles []string, target Role) bool {
	for _, role := range roles {
		if Role(role) == target {
			return true
		}
	}
	return false
}

// RoleStrings converts a role set to the string slice used in token claims.
func RoleStrings(roles []Role) []string {
	out := make([]string, 0, len(roles))
	for _, role := range roles {
		out = append(out, string(role))
	}
	return out
}

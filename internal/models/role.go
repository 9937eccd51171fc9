// Package models contains data models for the account service.
package models

import "strings"

// Role is a closed set of permission tiers.
type Role string

// Known roles.
const (
	RoleAdmin    Role = "admin"
	RoleReviewer Role = "reviewer"
	RoleMember   Role = "member"
)

// DefaultRole is assigned to new accounts that do not specify one.
const DefaultRole = RoleMember

// AvailableRoles lists every valid role.
var AvailableRoles = []Role{RoleAdmin, RoleReviewer, RoleMember}

// ParseRole normalizes s and reports whether it names a known role.
func ParseRole(s string) (Role, bool) {
	r := Role(strings.ToLower(strings.TrimSpace(s)))
	return r, r.Valid()
}

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	for _, known := range AvailableRoles {
		if r == known {
			return true
		}
	}
	return false
}

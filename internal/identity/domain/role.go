package domain

import (
	"encoding/json"
	"strings"
)

// Role is a capability a user holds within an organization.
type Role string

const (
	RoleSuperadmin   Role = "SUPERADMIN"
	RoleOwner        Role = "OWNER"
	RoleAdmin        Role = "ADMIN"
	RoleAssistant    Role = "ASSISTANT"
	RolePsychologist Role = "PSYCHOLOGIST"
	RolePatient      Role = "PATIENT"
)

// AllRoles lists roles in canonical (most to least privileged) order.
var AllRoles = []Role{
	RoleSuperadmin,
	RoleOwner,
	RoleAdmin,
	RoleAssistant,
	RolePsychologist,
	RolePatient,
}

// ParseRole accepts any casing and surrounding whitespace.
func ParseRole(value string) (Role, bool) {
	role := Role(strings.ToUpper(strings.TrimSpace(value)))
	if role.bit() == 0 {
		return "", false
	}
	return role, true
}

func (r Role) Valid() bool { return r.bit() != 0 }

func (r Role) String() string { return string(r) }

func (r Role) bit() RoleSet {
	for i, candidate := range AllRoles {
		if candidate == r {
			return 1 << uint(i)
		}
	}
	return 0
}

// RoleSet is an immutable set of roles stored as a bit mask.
type RoleSet uint8

func NewRoleSet(roles ...Role) RoleSet {
	var set RoleSet
	for _, role := range roles {
		set |= role.bit()
	}
	return set
}

func (s RoleSet) Has(role Role) bool {
	bit := role.bit()
	return bit != 0 && s&bit != 0
}

// HasAny reports whether the set intersects permitted.
func (s RoleSet) HasAny(permitted ...Role) bool {
	return s&NewRoleSet(permitted...) != 0
}

func (s RoleSet) With(role Role) RoleSet { return s | role.bit() }

func (s RoleSet) Without(role Role) RoleSet { return s &^ role.bit() }

func (s RoleSet) IsEmpty() bool { return s == 0 }

// Roles returns the members in canonical order.
func (s RoleSet) Roles() []Role {
	roles := make([]Role, 0, len(AllRoles))
	for _, role := range AllRoles {
		if s.Has(role) {
			roles = append(roles, role)
		}
	}
	return roles
}

func (s RoleSet) Strings() []string {
	roles := s.Roles()
	out := make([]string, 0, len(roles))
	for _, role := range roles {
		out = append(out, string(role))
	}
	return out
}

func (s RoleSet) String() string {
	return strings.Join(s.Strings(), ",")
}

func (s RoleSet) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Strings())
}

package domain

import "strings"

// Role is the closed set of user roles.
type Role string

const (
	RoleAttendee  Role = "attendee"
	RoleOrganizer Role = "organizer"
	RoleSponsor   Role = "sponsor"
	RoleAdmin     Role = "admin"
)

// Roles lists every known role, least privileged first.
var Roles = []Role{RoleAttendee, RoleOrganizer, RoleSponsor, RoleAdmin}

// ParseRole normalises a stored or requested role. Anything outside the
// enum becomes RoleAttendee, the least privileged role.
func ParseRole(s string) Role {
	r := Role(strings.ToLower(strings.TrimSpace(s)))
	if r.Known() {
		return r
	}
	return RoleAttendee
}

// Known reports whether r is one of the enum values.
func (r Role) Known() bool {
	switch r {
	case RoleAttendee, RoleOrganizer, RoleSponsor, RoleAdmin:
		return true
	}
	return false
}

func (r Role) String() string { return string(r) }

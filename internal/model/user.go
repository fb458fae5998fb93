package model

import "fmt"

// Role is the capacity a participant acts under. Conversations are partitioned by it.
type Role string

const (
	RoleStudent Role = "student"
	RoleTutor   Role = "tutor"
)

func ParseRole(s string) (Role, error) {
	switch r := Role(s); r {
	case RoleStudent, RoleTutor:
		return r, nil
	case "":
		return "", fmt.Errorf("%w: role is required", ErrorValidation)
	default:
		return "", fmt.Errorf("%w: unknown role %q", ErrorValidation, s)
	}
}

func (r Role) Valid() bool {
	return r == RoleStudent || r == RoleTutor
}

func (r Role) Opposite() Role {
	if r == RoleStudent {
		return RoleTutor
	}
	return RoleStudent
}

var Roles = []Role{RoleStudent, RoleTutor}

package domain

import "fmt"

// Role selects the capability set a participant is granted.
type Role int

const (
	RoleListener Role = iota
	RoleHost
)

// RoleFromHostFlag maps the lobby "party host" checkbox to a role.
func RoleFromHostFlag(host bool) Role {
	if host {
		return RoleHost
	}
	return RoleListener
}

func (r Role) IsHost() bool { return r == RoleHost }

func (r Role) String() string {
	switch r {
	case RoleHost:
		return "host"
	case RoleListener:
		return "listener"
	default:
		return fmt.Sprintf("role(%d)", int(r))
	}
}

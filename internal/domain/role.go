package domain

import "strings"

// Role is the closed set of user roles. Values outside the set parse to
// RoleUnknown, which carries no permissions.
type Role string

const (
	RoleCustomer       Role = "customer"
	RoleEmployee       Role = "employee"
	RoleFinanceManager Role = "finance_manager"
	RoleAdmin          Role = "admin"
	RoleUnknown        Role = ""
)

// Roles lists every known role in ascending privilege order.
var Roles = []Role{RoleCustomer, RoleEmployee, RoleFinanceManager, RoleAdmin}

func ParseRole(raw string) Role {
	switch Role(strings.ToLower(strings.TrimSpace(raw))) {
	case RoleCustomer:
		return RoleCustomer
	case RoleEmployee:
		return RoleEmployee
	case RoleFinanceManager:
		return RoleFinanceManager
	case RoleAdmin:
		return RoleAdmin
	default:
		return RoleUnknown
	}
}

func (r Role) Valid() bool {
	return ParseRole(string(r)) != RoleUnknown
}

func (r Role) String() string {
	if r == RoleUnknown {
		return "unknown"
	}
	return string(r)
}

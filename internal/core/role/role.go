// Package role holds the closed set of staff roles. A role stored anywhere in
// the system must parse back into one of these values; anything else is bad
// data and every check involving it fails closed.
package role

import (
	"errors"
	"fmt"
)

// SetVersion identifies the current enumeration. Bump it whenever a role is
// added or removed so stored data can be checked against the code.
const SetVersion = 3

type Role string

const (
	SuperAdmin         Role = "super_admin"
	Developer          Role = "developer"
	Admin              Role = "admin"
	Manager            Role = "manager"
	Accountant         Role = "accountant"
	Cashier            Role = "cashier"
	Waiter             Role = "waiter"
	Bartender          Role = "bartender"
	InventoryManager   Role = "inventory_manager"
	Rider              Role = "rider"
	FrontDesk          Role = "frontdesk"
	HousekeepingLead   Role = "housekeeping_manager"
	HousekeepingStaff  Role = "housekeeping_staff"
	MaintenanceManager Role = "maintenance_manager"
	MaintenanceStaff   Role = "maintenance_staff"
	Technician         Role = "technician"
	Engineer           Role = "engineer"
	SecurityStaff      Role = "security_staff"
)

var ErrUnknownRole = errors.New("unknown role")

var all = []Role{
	SuperAdmin,
	Developer,
	Admin,
	Manager,
	Accountant,
	Cashier,
	Waiter,
	Bartender,
	InventoryManager,
	Rider,
	FrontDesk,
	HousekeepingLead,
	HousekeepingStaff,
	MaintenanceManager,
	MaintenanceStaff,
	Technician,
	Engineer,
	SecurityStaff,
}

var known = func() map[Role]struct{} {
	m := make(map[Role]struct{}, len(all))
	for _, r := range all {
		m[r] = struct{}{}
	}
	return m
}()

// privileged roles pass every role gate. Capability checks still go through
// the permission table.
var privileged = map[Role]struct{}{
	SuperAdmin: {},
	Developer:  {},
}

// Parse matches exactly. "Admin" and " admin" are not roles.
func Parse(s string) (Role, error) {
	r := Role(s)
	if !r.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownRole, s)
	}
	return r, nil
}

func MustParse(s string) Role {
	r, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return r
}

func (r Role) Valid() bool {
	_, ok := known[r]
	return ok
}

func (r Role) IsPrivileged() bool {
	_, ok := privileged[r]
	return ok
}

func (r Role) String() string {
	return string(r)
}

// All returns every role in a stable order.
func All() []Role {
	out := make([]Role, len(all))
	copy(out, all)
	return out
}

// Privileged returns the roles that bypass role gates.
func Privileged() []Role {
	out := make([]Role, 0, len(privileged))
	for _, r := range all {
		if r.IsPrivileged() {
			out = append(out, r)
		}
	}
	return out
}

// In reports whether r is one of allowed. Matching is exact.
func (r Role) In(allowed ...Role) bool {
	for _, a := range allowed {
		if r == a {
			return true
		}
	}
	return false
}

// Strings is used for log attributes and query parameters.
func Strings(roles []Role) []string {
	out := make([]string, len(roles))
	for i, r := range roles {
		out[i] = string(r)
	}
	return out
}

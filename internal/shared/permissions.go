package shared

import "fmt"

// Permission identifies a single capability. The set of valid permissions is
// closed: every permission referenced by a role, delegation, or override must
// be registered here so typos fail at load time instead of silently denying.
type Permission string

// PermissionWildcard grants every registered permission.
const PermissionWildcard Permission = "*"

// Core booking back-office permissions.
const (
	PermBookingsViewOwn     Permission = "bookings.view_own"
	PermBookingsViewAll     Permission = "bookings.view_all"
	PermBookingsEdit        Permission = "bookings.edit"
	PermBookingsApproveTeam Permission = "bookings.approve_team"

	PermClientsView Permission = "clients.view"
	PermClientsEdit Permission = "clients.edit"

	PermToursView Permission = "tours.view"
	PermToursEdit Permission = "tours.edit"

	PermRatesView Permission = "rates.view"
	PermRatesEdit Permission = "rates.edit"

	PermQuotesView Permission = "quotes.view"
	PermQuotesEdit Permission = "quotes.edit"

	PermFleetManage Permission = "fleet.manage"

	PermUsersView Permission = "users.view"
	PermUsersEdit Permission = "users.edit"

	PermRolesView Permission = "roles.view"
	PermRolesEdit Permission = "roles.edit"

	PermDelegationsManage Permission = "delegations.manage"
	PermOverridesManage   Permission = "overrides.manage"
	PermContextsSwitch    Permission = "contexts.switch"

	PermAuditView   Permission = "audit.view"
	PermAuditExport Permission = "audit.export"
)

// AllPermissions lists every registered permission.
func AllPermissions() []Permission {
	return []Permission{
		PermBookingsViewOwn,
		PermBookingsViewAll,
		PermBookingsEdit,
		PermBookingsApproveTeam,
		PermClientsView,
		PermClientsEdit,
		PermToursView,
		PermToursEdit,
		PermRatesView,
		PermRatesEdit,
		PermQuotesView,
		PermQuotesEdit,
		PermFleetManage,
		PermUsersView,
		PermUsersEdit,
		PermRolesView,
		PermRolesEdit,
		PermDelegationsManage,
		PermOverridesManage,
		PermContextsSwitch,
		PermAuditView,
		PermAuditExport,
	}
}

var registered = func() map[Permission]struct{} {
	set := make(map[Permission]struct{})
	for _, p := range AllPermissions() {
		set[p] = struct{}{}
	}
	return set
}()

// ValidPermission reports whether p is registered or the wildcard.
func ValidPermission(p Permission) bool {
	if p == PermissionWildcard {
		return true
	}
	_, ok := registered[p]
	return ok
}

// ValidatePermissions returns an error naming the first unregistered permission.
func ValidatePermissions(perms []Permission) error {
	for _, p := range perms {
		if !ValidPermission(p) {
			return fmt.Errorf("unknown permission %q: %w", p, ErrInvalidArgument)
		}
	}
	return nil
}

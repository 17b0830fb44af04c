// Package rbac is the single authority for what each role may do. The
// service layer, the HTTP route guards and the capability endpoint used by
// the web client all read from the table below.
package rbac

import (
	"errors"
	"slices"

	"freshmart/backend/internal/domain"
)

// ErrInsufficientPermissions is returned by gated write and read operations.
// The message is part of the client contract.
var ErrInsufficientPermissions = errors.New("Insufficient permissions")

type Permission string

const (
	PermProductsRead     Permission = "products:read"
	PermProductsWrite    Permission = "products:write"
	PermInventoryWrite   Permission = "inventory:write"
	PermOrdersCreate     Permission = "orders:create"
	PermOrdersReadAll    Permission = "orders:read_all"
	PermOrdersUpdate     Permission = "orders:update"
	PermOrdersDelete     Permission = "orders:delete"
	PermDeliveryUpdate   Permission = "delivery:update"
	PermPaymentsVerify   Permission = "payments:verify"
	PermWalletUse        Permission = "wallet:use"
	PermRecurringRun     Permission = "recurring:run"
	PermFinanceRead      Permission = "finance:read"
	PermExpensesRead     Permission = "expenses:read"
	PermExpensesWrite    Permission = "expenses:write"
	PermVendorBillsWrite Permission = "vendor_bills:write"
	PermDashboardRead    Permission = "dashboard:read"
	PermUsersManage      Permission = "users:manage"
	PermAuditRead        Permission = "audit:read"
)

var allPermissions = []Permission{
	PermProductsRead, PermProductsWrite, PermInventoryWrite,
	PermOrdersCreate, PermOrdersReadAll, PermOrdersUpdate, PermOrdersDelete,
	PermDeliveryUpdate, PermPaymentsVerify, PermWalletUse, PermRecurringRun,
	PermFinanceRead, PermExpensesRead, PermExpensesWrite, PermVendorBillsWrite,
	PermDashboardRead, PermUsersManage, PermAuditRead,
}

var rolePermissions = map[domain.Role][]Permission{
	domain.RoleCustomer: {
		PermProductsRead, PermOrdersCreate, PermWalletUse,
	},
	domain.RoleEmployee: {
		PermProductsRead, PermProductsWrite, PermInventoryWrite,
		PermOrdersCreate, PermOrdersReadAll, PermOrdersUpdate,
		PermDeliveryUpdate, PermDashboardRead,
	},
	domain.RoleFinanceManager: {
		PermProductsRead, PermOrdersReadAll, PermPaymentsVerify,
		PermFinanceRead, PermExpensesRead, PermExpensesWrite,
		PermVendorBillsWrite, PermDashboardRead, PermWalletUse,
	},
	domain.RoleAdmin: allPermissions,
}

// HasPermission reports whether role holds perm. Unknown roles hold nothing.
func HasPermission(role domain.Role, perm Permission) bool {
	return slices.Contains(rolePermissions[role], perm)
}

// CanAccessFinancialData decides whether role may see unredacted revenue,
// cost, profit, margin and ROI figures.
func CanAccessFinancialData(role domain.Role) bool {
	return HasPermission(role, PermFinanceRead)
}

// Require returns ErrInsufficientPermissions unless role holds perm.
func Require(role domain.Role, perm Permission) error {
	if !HasPermission(role, perm) {
		return ErrInsufficientPermissions
	}
	return nil
}

// PermissionsFor lists the permissions of role in a stable order.
func PermissionsFor(role domain.Role) []string {
	granted := rolePermissions[role]
	out := make([]string, 0, len(granted))
	for _, perm := range granted {
		out = append(out, string(perm))
	}
	slices.Sort(out)
	return out
}

// CapabilitiesFor builds the capability document served to the web client.
func CapabilitiesFor(actor domain.Actor) domain.Capabilities {
	return domain.Capabilities{
		Username:               actor.Username,
		Role:                   actor.Role,
		CanAccessFinancialData: CanAccessFinancialData(actor.Role),
		Permissions:            PermissionsFor(actor.Role),
	}
}

package model

// Role is the closed set of roles a user can hold within a tenant.
// Role strings from the identity token are parsed once at the edge; nothing
// downstream re-derives admin-ness from raw strings.
type Role string

const (
	RoleSuperAdmin  Role = "super_admin"
	RoleTenantAdmin Role = "tenant_admin"
	RoleManager     Role = "manager"
	RoleTechnician  Role = "technician"
	RoleStaff       Role = "staff"
)

// ParseRole maps a raw role string to a known Role
func ParseRole(s string) (Role, bool) {
	switch Role(s) {
	case RoleSuperAdmin, RoleTenantAdmin, RoleManager, RoleTechnician, RoleStaff:
		return Role(s), true
	}
	return "", false
}

// Actor is the authenticated caller of an operation. It is built by the
// auth middleware from token claims and passed explicitly into every scoped
// call; services never read caller identity from ambient state.
type Actor struct {
	UserID   uint
	TenantID uint
	Role     Role
}

// IsSuperAdmin reports whether the actor bypasses all branch scoping
func (a Actor) IsSuperAdmin() bool {
	return a.Role == RoleSuperAdmin
}

// Unrestricted reports whether the actor sees every branch in their tenant
func (a Actor) Unrestricted() bool {
	return a.Role == RoleSuperAdmin || a.Role == RoleTenantAdmin
}

// AccessScope is the computed set of branches an actor may operate on.
// An empty, restricted scope means zero visibility (strict deny).
type AccessScope struct {
	Unrestricted bool
	BranchIDs    []uint
}

// Covers reports whether the scope permits access to the given branch
func (s AccessScope) Covers(branchID uint) bool {
	if s.Unrestricted {
		return true
	}
	for _, id := range s.BranchIDs {
		if id == branchID {
			return true
		}
	}
	return false
}

package models

// Role names a granted role.
type Role string

const (
	RoleSuperAdmin  Role = "super_admin"
	RoleTenantAdmin Role = "tenant_admin"
	RoleBranchAdmin Role = "branch_admin"
	RoleStaff       Role = "staff"
	RoleClient      Role = "cliente"
)

// Scope is the reach of a role grant.
type Scope string

const (
	ScopeGlobal Scope = "global"
	ScopeTenant Scope = "tenant"
	ScopeBranch Scope = "branch"
)

// RoleGrant binds a role to a scope.
type RoleGrant struct {
	Role     Role  `json:"role"`
	Scope    Scope `json:"scope"`
	TenantID int64 `json:"tenant_id,omitempty"`
	BranchID int64 `json:"branch_id,omitempty"`
}

// Actor is a resolved caller identity.
type Actor struct {
	UserID string
	Email  string
	Grants []RoleGrant
}

// Has reports whether the actor holds role anywhere.
func (a *Actor) Has(role Role) bool {
	if a == nil {
		return false
	}
	for _, g := range a.Grants {
		if g.Role == role {
			return true
		}
	}
	return false
}

// Authenticated reports whether a is a known user.
func (a *Actor) Authenticated() bool {
	return a != nil && a.UserID != ""
}

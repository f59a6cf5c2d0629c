package access

import (
	"context"
	"io"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"

	"courtbook/internal/models"
)

func TestCanActOnBranch(t *testing.T) {
	svc := NewService(zerolog.New(io.Discard))
	ctx := context.Background()

	actor := func(grants ...models.RoleGrant) *models.Actor {
		return &models.Actor{UserID: "u-1", Grants: grants}
	}

	tests := []struct {
		name   string
		actor  *models.Actor
		tenant int64
		branch int64
		want   bool
	}{
		{"anonymous", nil, 1, 10, false},
		{"no user id", &models.Actor{Grants: []models.RoleGrant{{Role: models.RoleSuperAdmin}}}, 1, 10, false},
		{"super admin", actor(models.RoleGrant{Role: models.RoleSuperAdmin, Scope: models.ScopeGlobal}), 7, 70, true},
		{"tenant admin own tenant", actor(models.RoleGrant{Role: models.RoleTenantAdmin, Scope: models.ScopeTenant, TenantID: 1}), 1, 10, true},
		{"tenant admin other tenant", actor(models.RoleGrant{Role: models.RoleTenantAdmin, Scope: models.ScopeTenant, TenantID: 2}), 1, 10, false},
		{"branch admin own branch", actor(models.RoleGrant{Role: models.RoleBranchAdmin, Scope: models.ScopeBranch, TenantID: 1, BranchID: 10}), 1, 10, true},
		{"branch admin other branch", actor(models.RoleGrant{Role: models.RoleBranchAdmin, Scope: models.ScopeBranch, TenantID: 1, BranchID: 11}), 1, 10, false},
		{"staff own branch", actor(models.RoleGrant{Role: models.RoleStaff, Scope: models.ScopeBranch, TenantID: 1, BranchID: 10}), 1, 10, true},
		{"client with branch grant", actor(models.RoleGrant{Role: models.RoleClient, Scope: models.ScopeBranch, TenantID: 1, BranchID: 10}), 1, 10, false},
		{"client only", actor(models.RoleGrant{Role: models.RoleClient}), 1, 10, false},
		{"second grant matches", actor(
			models.RoleGrant{Role: models.RoleStaff, Scope: models.ScopeBranch, TenantID: 1, BranchID: 11},
			models.RoleGrant{Role: models.RoleBranchAdmin, Scope: models.ScopeBranch, TenantID: 1, BranchID: 10},
		), 1, 10, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, svc.CanActOnBranch(ctx, tt.actor, tt.tenant, tt.branch))
		})
	}
}

func TestCanActOnTenant(t *testing.T) {
	svc := NewService(zerolog.New(io.Discard))
	ctx := context.Background()

	tests := []struct {
		name   string
		actor  *models.Actor
		tenant int64
		want   bool
	}{
		{"anonymous", nil, 1, false},
		{"super admin", &models.Actor{UserID: "r", Grants: []models.RoleGrant{{Role: models.RoleSuperAdmin, Scope: models.ScopeGlobal}}}, 99, true},
		{"tenant admin own tenant", &models.Actor{UserID: "t", Grants: []models.RoleGrant{{Role: models.RoleTenantAdmin, Scope: models.ScopeTenant, TenantID: 1}}}, 1, true},
		{"tenant admin other tenant", &models.Actor{UserID: "t", Grants: []models.RoleGrant{{Role: models.RoleTenantAdmin, Scope: models.ScopeTenant, TenantID: 2}}}, 1, false},
		{"branch admin", &models.Actor{UserID: "b", Grants: []models.RoleGrant{{Role: models.RoleBranchAdmin, Scope: models.ScopeBranch, TenantID: 1, BranchID: 10}}}, 1, false},
		{"staff", &models.Actor{UserID: "s", Grants: []models.RoleGrant{{Role: models.RoleStaff, Scope: models.ScopeBranch, TenantID: 1, BranchID: 10}}}, 1, false},
		{"zero tenant", &models.Actor{UserID: "t", Grants: []models.RoleGrant{{Role: models.RoleTenantAdmin, Scope: models.ScopeTenant}}}, 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, svc.CanActOnTenant(ctx, tt.actor, tt.tenant))
		})
	}
}

// Package access decides which staff grants may act on a branch or a whole tenant.
package access

import (
	"context"

	"github.com/rs/zerolog"

	"courtbook/internal/models"
)

// Service answers branch and tenant authorization questions from an actor's role grants.
type Service struct {
	logger zerolog.Logger
}

// NewService creates a new access control service.
func NewService(logger zerolog.Logger) *Service {
	return &Service{
		logger: logger.With().Str("component", "access").Logger(),
	}
}

// CanActOnBranch reports whether actor may administer bookings of branchID in tenantID.
// Super admins act everywhere, tenant admins on every branch of their tenant,
// branch admins and staff only on the branch of their grant.
func (s *Service) CanActOnBranch(ctx context.Context, actor *models.Actor, tenantID, branchID int64) bool {
	if !actor.Authenticated() {
		return false
	}
	for _, g := range actor.Grants {
		switch {
		case g.Role == models.RoleSuperAdmin:
			return true
		case g.Role == models.RoleTenantAdmin && tenantID != 0 && g.TenantID == tenantID:
			return true
		case g.Role != models.RoleClient && g.Scope == models.ScopeBranch && g.BranchID == branchID:
			return true
		}
	}

	s.logger.Debug().
		Str("user_id", actor.UserID).
		Int64("tenant_id", tenantID).
		Int64("branch_id", branchID).
		Msg("branch access denied")
	return false
}

// CanActOnTenant reports whether actor may administer every branch of tenantID,
// which takes a super admin or a tenant admin of that tenant.
func (s *Service) CanActOnTenant(ctx context.Context, actor *models.Actor, tenantID int64) bool {
	if !actor.Authenticated() {
		return false
	}
	for _, g := range actor.Grants {
		switch {
		case g.Role == models.RoleSuperAdmin:
			return true
		case g.Role == models.RoleTenantAdmin && tenantID != 0 && g.TenantID == tenantID:
			return true
		}
	}

	s.logger.Debug().
		Str("user_id", actor.UserID).
		Int64("tenant_id", tenantID).
		Msg("tenant access denied")
	return false
}

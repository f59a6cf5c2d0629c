package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// DefaultCurrency is used when a resource does not name one.
const DefaultCurrency = "CLP"

// Tenant is an independent business operating one or more branches.
type Tenant struct {
	ID       int64
	Name     string
	Slug     string
	IsActive bool
}

// Branch is a venue of a tenant.
type Branch struct {
	ID               int64
	TenantID         int64
	Name             string
	Timezone         string
	RequiresApproval bool
	IsActive         bool
}

// Location returns the branch timezone, falling back to UTC.
func (b *Branch) Location() *time.Location {
	if b.Timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(b.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// Resource is a bookable court or field.
type Resource struct {
	ID         int64
	BranchID   int64
	Name       string
	Type       string
	HourlyRate decimal.Decimal
	Currency   string
	IsActive   bool
}

// DiscountType selects how a discount value is applied.
type DiscountType string

const (
	DiscountPercentage  DiscountType = "percentage"
	DiscountFixedAmount DiscountType = "fixed_amount"
)

// ConditionType selects when a discount applies.
type ConditionType string

const (
	ConditionPromoCode ConditionType = "promo_code"
	ConditionTimeBased ConditionType = "time_based"
)

// Discount is a tenant or branch scoped pricing rule.
// BranchID 0 means every branch of the tenant, empty ResourceIDs means every resource in scope.
// DaysOfWeek uses 0 for Sunday; StartTime and EndTime are "HH:MM" in branch local time.
type Discount struct {
	ID            int64
	TenantID      int64
	BranchID      int64
	Name          string
	Code          string
	Type          DiscountType
	Value         decimal.Decimal
	ConditionType ConditionType
	DaysOfWeek    []int
	StartTime     string
	EndTime       string
	IsActive      bool
	ResourceIDs   []int64
}

// AppliesToResource reports whether the discount covers the resource.
func (d *Discount) AppliesToResource(resourceID int64) bool {
	if len(d.ResourceIDs) == 0 {
		return true
	}
	for _, id := range d.ResourceIDs {
		if id == resourceID {
			return true
		}
	}
	return false
}

// InScope reports whether the discount covers the tenant, branch and resource.
func (d *Discount) InScope(tenantID, branchID, resourceID int64) bool {
	if d.TenantID != tenantID {
		return false
	}
	if d.BranchID != 0 && d.BranchID != branchID {
		return false
	}
	return d.AppliesToResource(resourceID)
}

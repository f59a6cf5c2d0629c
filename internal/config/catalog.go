package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"courtbook/internal/models"
)

// ResourceConfig is a bookable court or field.
type ResourceConfig struct {
	ID           int64  `yaml:"id"`
	Name         string `yaml:"name"`
	Type         string `yaml:"type"`
	PricePerHour string `yaml:"price_per_hour"`
	Currency     string `yaml:"currency"`
	IsActive     bool   `yaml:"is_active"`
}

// BranchConfig is a venue and its resources.
type BranchConfig struct {
	ID               int64            `yaml:"id"`
	Name             string           `yaml:"name"`
	Timezone         string           `yaml:"timezone"`
	RequiresApproval bool             `yaml:"requires_approval"`
	IsActive         bool             `yaml:"is_active"`
	Resources        []ResourceConfig `yaml:"resources"`
}

// TenantConfig is a business and its branches.
type TenantConfig struct {
	ID       int64          `yaml:"id"`
	Name     string         `yaml:"name"`
	Slug     string         `yaml:"slug"`
	IsActive bool           `yaml:"is_active"`
	Branches []BranchConfig `yaml:"branches"`
}

// DiscountConfig is a promo code or time-based pricing rule.
type DiscountConfig struct {
	ID            int64   `yaml:"id"`
	TenantID      int64   `yaml:"tenant_id"`
	BranchID      int64   `yaml:"branch_id"`
	Name          string  `yaml:"name"`
	Code          string  `yaml:"code"`
	Type          string  `yaml:"type"`           // percentage | fixed_amount
	Value         string  `yaml:"value"`          // "10" or "5000"
	ConditionType string  `yaml:"condition_type"` // promo_code | time_based
	DaysOfWeek    []int   `yaml:"days_of_week"`   // 0=Sun .. 6=Sat
	StartTime     string  `yaml:"start_time"`     // "18:00"
	EndTime       string  `yaml:"end_time"`       // "22:00"
	IsActive      bool    `yaml:"is_active"`
	ResourceIDs   []int64 `yaml:"resource_ids"`
}

// AdminConfig is a notification recipient for a tenant or one of its branches.
// BranchID 0 makes the admin tenant-wide.
type AdminConfig struct {
	Name           string `yaml:"name"`
	Email          string `yaml:"email"`
	TelegramChatID int64  `yaml:"telegram_chat_id"`
	TenantID       int64  `yaml:"tenant_id"`
	BranchID       int64  `yaml:"branch_id"`
}

// Catalog is the root of catalog.yaml.
type Catalog struct {
	Tenants   []TenantConfig   `yaml:"tenants"`
	Discounts []DiscountConfig `yaml:"discounts"`
	Admins    []AdminConfig    `yaml:"admins"`
}

// LoadCatalog loads and validates the catalog from a YAML file.
func LoadCatalog(path string) (*Catalog, error) {
	if path == "" {
		path = "configs/catalog.yaml"
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}

	var cat Catalog
	if err := yaml.Unmarshal(data, &cat); err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}

	if err := cat.Validate(); err != nil {
		return nil, fmt.Errorf("validate catalog: %w", err)
	}

	cat.applyDefaults()
	return &cat, nil
}

// Validate checks the catalog for errors.
func (c *Catalog) Validate() error {
	if len(c.Tenants) == 0 {
		return fmt.Errorf("no tenants defined")
	}

	tenants := make(map[int64]bool)
	slugs := make(map[string]bool)
	branches := make(map[int64]int64)
	resources := make(map[int64]int64)

	for i, t := range c.Tenants {
		if t.ID <= 0 {
			return fmt.Errorf("tenant[%d]: id must be positive, got %d", i, t.ID)
		}
		if tenants[t.ID] {
			return fmt.Errorf("tenant[%d]: duplicate id %d", i, t.ID)
		}
		tenants[t.ID] = true
		if t.Name == "" {
			return fmt.Errorf("tenant[%d]: name is required", i)
		}
		if t.Slug != "" {
			if slugs[t.Slug] {
				return fmt.Errorf("tenant[%d]: duplicate slug '%s'", i, t.Slug)
			}
			slugs[t.Slug] = true
		}

		for j, b := range t.Branches {
			prefix := fmt.Sprintf("tenant[%d].branch[%d]", i, j)
			if b.ID <= 0 {
				return fmt.Errorf("%s: id must be positive, got %d", prefix, b.ID)
			}
			if _, dup := branches[b.ID]; dup {
				return fmt.Errorf("%s: duplicate id %d", prefix, b.ID)
			}
			branches[b.ID] = t.ID
			if b.Name == "" {
				return fmt.Errorf("%s: name is required", prefix)
			}
			if b.Timezone != "" {
				if _, err := time.LoadLocation(b.Timezone); err != nil {
					return fmt.Errorf("%s: invalid timezone '%s'", prefix, b.Timezone)
				}
			}

			for k, r := range b.Resources {
				rp := fmt.Sprintf("%s.resource[%d]", prefix, k)
				if r.ID <= 0 {
					return fmt.Errorf("%s: id must be positive, got %d", rp, r.ID)
				}
				if _, dup := resources[r.ID]; dup {
					return fmt.Errorf("%s: duplicate id %d", rp, r.ID)
				}
				resources[r.ID] = b.ID
				if r.Name == "" {
					return fmt.Errorf("%s: name is required", rp)
				}
				rate, err := decimal.NewFromString(r.PricePerHour)
				if err != nil {
					return fmt.Errorf("%s: invalid price_per_hour '%s'", rp, r.PricePerHour)
				}
				if rate.IsNegative() {
					return fmt.Errorf("%s: price_per_hour cannot be negative", rp)
				}
			}
		}
	}

	ids := make(map[int64]bool)
	codes := make(map[string]bool)
	for i, d := range c.Discounts {
		prefix := fmt.Sprintf("discount[%d]", i)
		if d.ID <= 0 {
			return fmt.Errorf("%s: id must be positive, got %d", prefix, d.ID)
		}
		if ids[d.ID] {
			return fmt.Errorf("%s: duplicate id %d", prefix, d.ID)
		}
		ids[d.ID] = true
		if !tenants[d.TenantID] {
			return fmt.Errorf("%s: unknown tenant %d", prefix, d.TenantID)
		}
		if d.BranchID != 0 && branches[d.BranchID] != d.TenantID {
			return fmt.Errorf("%s: branch %d does not belong to tenant %d", prefix, d.BranchID, d.TenantID)
		}
		if d.Name == "" {
			return fmt.Errorf("%s: name is required", prefix)
		}
		switch models.DiscountType(d.Type) {
		case models.DiscountPercentage, models.DiscountFixedAmount:
		default:
			return fmt.Errorf("%s: invalid type '%s'", prefix, d.Type)
		}
		value, err := decimal.NewFromString(d.Value)
		if err != nil || value.IsNegative() {
			return fmt.Errorf("%s: invalid value '%s'", prefix, d.Value)
		}
		if models.DiscountType(d.Type) == models.DiscountPercentage && value.GreaterThan(decimal.NewFromInt(100)) {
			return fmt.Errorf("%s: percentage cannot exceed 100", prefix)
		}

		switch models.ConditionType(d.ConditionType) {
		case models.ConditionPromoCode:
			if strings.TrimSpace(d.Code) == "" {
				return fmt.Errorf("%s: code is required for promo_code discounts", prefix)
			}
			key := fmt.Sprintf("%d/%s", d.TenantID, strings.ToLower(d.Code))
			if codes[key] {
				return fmt.Errorf("%s: duplicate code '%s'", prefix, d.Code)
			}
			codes[key] = true
		case models.ConditionTimeBased:
			for _, day := range d.DaysOfWeek {
				if day < 0 || day > 6 {
					return fmt.Errorf("%s: invalid day %d, must be 0-6 (0=Sun)", prefix, day)
				}
			}
			for _, hm := range []string{d.StartTime, d.EndTime} {
				if hm == "" {
					continue
				}
				if _, err := time.Parse("15:04", hm); err != nil {
					return fmt.Errorf("%s: invalid time '%s', expected HH:MM", prefix, hm)
				}
			}
		default:
			return fmt.Errorf("%s: invalid condition_type '%s'", prefix, d.ConditionType)
		}

		for _, rid := range d.ResourceIDs {
			bid, ok := resources[rid]
			if !ok {
				return fmt.Errorf("%s: unknown resource %d", prefix, rid)
			}
			if branches[bid] != d.TenantID {
				return fmt.Errorf("%s: resource %d belongs to another tenant", prefix, rid)
			}
		}
	}

	for i, a := range c.Admins {
		if !tenants[a.TenantID] {
			return fmt.Errorf("admin[%d]: unknown tenant %d", i, a.TenantID)
		}
		if a.BranchID != 0 && branches[a.BranchID] != a.TenantID {
			return fmt.Errorf("admin[%d]: branch %d does not belong to tenant %d", i, a.BranchID, a.TenantID)
		}
		if a.Email == "" && a.TelegramChatID == 0 {
			return fmt.Errorf("admin[%d]: email or telegram_chat_id is required", i)
		}
	}

	return nil
}

func (c *Catalog) applyDefaults() {
	for i := range c.Tenants {
		t := &c.Tenants[i]
		if t.Slug == "" {
			t.Slug = fmt.Sprintf("tenant-%d", t.ID)
		}
		for j := range t.Branches {
			b := &t.Branches[j]
			if b.Timezone == "" {
				b.Timezone = "UTC"
			}
			for k := range b.Resources {
				if b.Resources[k].Currency == "" {
					b.Resources[k].Currency = models.DefaultCurrency
				}
			}
		}
	}
}

// AdminsFor returns the admins of the tenant plus those of the branch, deduplicated by email and chat.
func (c *Catalog) AdminsFor(tenantID, branchID int64) []AdminConfig {
	seen := make(map[string]bool)
	var out []AdminConfig
	for _, a := range c.Admins {
		if a.TenantID != tenantID {
			continue
		}
		if a.BranchID != 0 && a.BranchID != branchID {
			continue
		}
		key := fmt.Sprintf("%s/%d", strings.ToLower(a.Email), a.TelegramChatID)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, a)
	}
	return out
}

// String returns a summary of the catalog.
func (c *Catalog) String() string {
	branches, resources := 0, 0
	for _, t := range c.Tenants {
		branches += len(t.Branches)
		for _, b := range t.Branches {
			resources += len(b.Resources)
		}
	}
	return fmt.Sprintf("Catalog: %d tenants, %d branches, %d resources, %d discounts",
		len(c.Tenants), branches, resources, len(c.Discounts))
}

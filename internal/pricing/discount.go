// Package pricing computes booking prices and picks the applicable discount.
package pricing

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"courtbook/internal/models"
)

// ErrInvalidPromoCode is returned when a supplied code does not apply to the booking.
var ErrInvalidPromoCode = errors.New("invalid promo code")

// Scope identifies where a booking takes place and when it starts.
type Scope struct {
	TenantID   int64
	BranchID   int64
	ResourceID int64
	Start      time.Time
	Location   *time.Location
}

// ResolveDiscount selects at most one discount for the booking.
// A non-empty promo code must match an active in-scope promo discount, otherwise ErrInvalidPromoCode.
// Without a code the first matching time-based rule by ascending ID is used.
func ResolveDiscount(scope Scope, promoCode string, discounts []models.Discount) (*models.Discount, error) {
	code := strings.TrimSpace(promoCode)
	if code != "" {
		return resolveCode(scope, code, discounts)
	}

	ordered := make([]models.Discount, len(discounts))
	copy(ordered, discounts)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].ID < ordered[j].ID })

	for i := range ordered {
		d := &ordered[i]
		if !d.IsActive || d.ConditionType != models.ConditionTimeBased {
			continue
		}
		if !d.InScope(scope.TenantID, scope.BranchID, scope.ResourceID) {
			continue
		}
		ok, err := MatchesWindow(d, scope.Start, scope.Location)
		if err != nil {
			return nil, fmt.Errorf("discount %d: %w", d.ID, err)
		}
		if ok {
			return d, nil
		}
	}
	return nil, nil
}

func resolveCode(scope Scope, code string, discounts []models.Discount) (*models.Discount, error) {
	for i := range discounts {
		d := &discounts[i]
		if d.ConditionType != models.ConditionPromoCode || !strings.EqualFold(d.Code, code) {
			continue
		}
		if d.TenantID != scope.TenantID {
			continue
		}
		if !d.IsActive || !d.InScope(scope.TenantID, scope.BranchID, scope.ResourceID) {
			return nil, ErrInvalidPromoCode
		}
		return d, nil
	}
	return nil, ErrInvalidPromoCode
}

// MatchesWindow reports whether start, seen in loc, falls on one of the
// discount's weekdays and inside its [StartTime, EndTime) window.
// A window whose end is not after its start wraps past midnight.
func MatchesWindow(d *models.Discount, start time.Time, loc *time.Location) (bool, error) {
	if loc == nil {
		loc = time.UTC
	}
	local := start.In(loc)

	if len(d.DaysOfWeek) > 0 {
		day := int(local.Weekday())
		found := false
		for _, dd := range d.DaysOfWeek {
			if dd == day {
				found = true
				break
			}
		}
		if !found {
			return false, nil
		}
	}

	if d.StartTime == "" && d.EndTime == "" {
		return true, nil
	}
	from, err := clockMinutes(d.StartTime, 0)
	if err != nil {
		return false, err
	}
	to, err := clockMinutes(d.EndTime, 24*60)
	if err != nil {
		return false, err
	}
	at := local.Hour()*60 + local.Minute()

	if from < to {
		return at >= from && at < to, nil
	}
	return at >= from || at < to, nil
}

func clockMinutes(s string, fallback int) (int, error) {
	if s == "" {
		return fallback, nil
	}
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, fmt.Errorf("invalid time %q, expected HH:MM", s)
	}
	return t.Hour()*60 + t.Minute(), nil
}

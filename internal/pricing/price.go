package pricing

import (
	"time"

	"github.com/shopspring/decimal"

	"courtbook/internal/models"
)

var (
	hundred     = decimal.NewFromInt(100)
	secsPerHour = decimal.NewFromInt(3600)
)

// Quote is the price of a booking before and after discount.
type Quote struct {
	Original decimal.Decimal
	Final    decimal.Decimal
	Discount *models.Discount
}

// OriginalPrice is rate × hours rounded half away from zero to 2 decimals.
func OriginalPrice(hourlyRate decimal.Decimal, start, end time.Time) decimal.Decimal {
	secs := decimal.NewFromInt(int64(end.Sub(start) / time.Second))
	return hourlyRate.Mul(secs).Div(secsPerHour).Round(2)
}

// ApplyDiscount subtracts the discount from price and floors the result at zero.
func ApplyDiscount(price decimal.Decimal, d *models.Discount) decimal.Decimal {
	if d == nil {
		return price
	}
	var out decimal.Decimal
	switch d.Type {
	case models.DiscountPercentage:
		out = price.Sub(price.Mul(d.Value).Div(hundred))
	case models.DiscountFixedAmount:
		out = price.Sub(d.Value)
	default:
		return price
	}
	if out.IsNegative() {
		return decimal.Zero
	}
	return out.Round(2)
}

// Calculate prices a booking of resource in scope, resolving the discount from candidates.
func Calculate(resource *models.Resource, scope Scope, end time.Time, promoCode string, candidates []models.Discount) (Quote, error) {
	original := OriginalPrice(resource.HourlyRate, scope.Start, end)

	d, err := ResolveDiscount(scope, promoCode, candidates)
	if err != nil {
		return Quote{}, err
	}

	return Quote{
		Original: original,
		Final:    ApplyDiscount(original, d),
		Discount: d,
	}, nil
}

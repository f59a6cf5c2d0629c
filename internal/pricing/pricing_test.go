package pricing

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"courtbook/internal/models"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

// Tuesday 2026-03-10 14:00 UTC.
var tuesday = time.Date(2026, 3, 10, 14, 0, 0, 0, time.UTC)

func TestOriginalPrice(t *testing.T) {
	tests := []struct {
		name string
		rate string
		dur  time.Duration
		want string
	}{
		{"two hours", "25000", 2 * time.Hour, "50000"},
		{"one hour", "20000", time.Hour, "20000"},
		{"ninety minutes", "15000", 90 * time.Minute, "22500"},
		{"rounds to cents", "10", 20 * time.Minute, "3.33"},
		{"rounds half up", "0.05", 30 * time.Minute, "0.03"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := OriginalPrice(dec(tt.rate), tuesday, tuesday.Add(tt.dur))
			assert.True(t, dec(tt.want).Equal(got), "got %s", got)
		})
	}
}

func TestApplyDiscount(t *testing.T) {
	price := dec("50000")

	assert.True(t, price.Equal(ApplyDiscount(price, nil)))

	pct := &models.Discount{Type: models.DiscountPercentage, Value: dec("10")}
	assert.True(t, dec("45000").Equal(ApplyDiscount(price, pct)))

	fixed := &models.Discount{Type: models.DiscountFixedAmount, Value: dec("7500")}
	assert.True(t, dec("42500").Equal(ApplyDiscount(price, fixed)))

	tooMuch := &models.Discount{Type: models.DiscountFixedAmount, Value: dec("90000")}
	assert.True(t, decimal.Zero.Equal(ApplyDiscount(price, tooMuch)))
}

func testDiscounts() []models.Discount {
	return []models.Discount{
		{
			ID: 3, TenantID: 1, Name: "happy hour", Type: models.DiscountPercentage, Value: dec("20"),
			ConditionType: models.ConditionTimeBased, DaysOfWeek: []int{1, 2, 3, 4, 5},
			StartTime: "12:00", EndTime: "16:00", IsActive: true,
		},
		{
			ID: 2, TenantID: 1, Name: "early bird", Type: models.DiscountFixedAmount, Value: dec("1000"),
			ConditionType: models.ConditionTimeBased, DaysOfWeek: []int{2},
			StartTime: "06:00", EndTime: "15:00", IsActive: true,
		},
		{
			ID: 5, TenantID: 1, Code: "WELCOME10", Type: models.DiscountPercentage, Value: dec("10"),
			ConditionType: models.ConditionPromoCode, IsActive: true,
		},
		{
			ID: 6, TenantID: 1, Code: "OLD", Type: models.DiscountPercentage, Value: dec("50"),
			ConditionType: models.ConditionPromoCode, IsActive: false,
		},
		{
			ID: 7, TenantID: 1, BranchID: 9, Code: "BRANCH9", Type: models.DiscountPercentage, Value: dec("5"),
			ConditionType: models.ConditionPromoCode, IsActive: true,
		},
		{
			ID: 8, TenantID: 1, Code: "COURT4", Type: models.DiscountPercentage, Value: dec("5"),
			ConditionType: models.ConditionPromoCode, IsActive: true, ResourceIDs: []int64{4},
		},
		{
			ID: 9, TenantID: 2, Code: "OTHER", Type: models.DiscountPercentage, Value: dec("5"),
			ConditionType: models.ConditionPromoCode, IsActive: true,
		},
	}
}

func TestResolveDiscount(t *testing.T) {
	scope := Scope{TenantID: 1, BranchID: 1, ResourceID: 3, Start: tuesday, Location: time.UTC}

	t.Run("promo code wins over time rule", func(t *testing.T) {
		d, err := ResolveDiscount(scope, "welcome10", testDiscounts())
		require.NoError(t, err)
		require.NotNil(t, d)
		assert.Equal(t, int64(5), d.ID)
	})

	t.Run("lowest id time rule when no code", func(t *testing.T) {
		d, err := ResolveDiscount(scope, "", testDiscounts())
		require.NoError(t, err)
		require.NotNil(t, d)
		assert.Equal(t, int64(2), d.ID)
	})

	t.Run("no rule outside window", func(t *testing.T) {
		s := scope
		s.Start = time.Date(2026, 3, 10, 20, 0, 0, 0, time.UTC)
		d, err := ResolveDiscount(s, "", testDiscounts())
		require.NoError(t, err)
		assert.Nil(t, d)
	})

	t.Run("no rule on sunday", func(t *testing.T) {
		s := scope
		s.Start = time.Date(2026, 3, 8, 13, 0, 0, 0, time.UTC)
		d, err := ResolveDiscount(s, "", testDiscounts())
		require.NoError(t, err)
		assert.Nil(t, d)
	})

	invalid := []struct {
		name string
		code string
	}{
		{"unknown", "NOPE"},
		{"inactive", "OLD"},
		{"other branch", "BRANCH9"},
		{"other resource", "COURT4"},
		{"other tenant", "OTHER"},
	}
	for _, tt := range invalid {
		t.Run("invalid code "+tt.name, func(t *testing.T) {
			_, err := ResolveDiscount(scope, tt.code, testDiscounts())
			assert.ErrorIs(t, err, ErrInvalidPromoCode)
		})
	}
}

func TestMatchesWindow_Timezone(t *testing.T) {
	loc, err := time.LoadLocation("America/Santiago")
	require.NoError(t, err)

	d := &models.Discount{DaysOfWeek: []int{2}, StartTime: "09:00", EndTime: "12:00"}

	// 13:00 UTC is 10:00 in Santiago during March (UTC-3).
	ok, err := MatchesWindow(d, tuesday.Add(-time.Hour), loc)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = MatchesWindow(d, tuesday.Add(-time.Hour), time.UTC)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMatchesWindow_Overnight(t *testing.T) {
	d := &models.Discount{StartTime: "22:00", EndTime: "02:00"}

	late := time.Date(2026, 3, 10, 23, 0, 0, 0, time.UTC)
	early := time.Date(2026, 3, 11, 1, 30, 0, 0, time.UTC)
	noon := time.Date(2026, 3, 11, 12, 0, 0, 0, time.UTC)

	for _, at := range []time.Time{late, early} {
		ok, err := MatchesWindow(d, at, nil)
		require.NoError(t, err)
		assert.True(t, ok, at)
	}
	ok, err := MatchesWindow(d, noon, nil)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMatchesWindow_BadClock(t *testing.T) {
	_, err := MatchesWindow(&models.Discount{StartTime: "9am"}, tuesday, nil)
	assert.Error(t, err)
}

func TestCalculate(t *testing.T) {
	resource := &models.Resource{ID: 3, HourlyRate: dec("25000")}
	scope := Scope{TenantID: 1, BranchID: 1, ResourceID: 3, Start: tuesday.Add(4 * time.Hour), Location: time.UTC}

	q, err := Calculate(resource, scope, scope.Start.Add(2*time.Hour), "", nil)
	require.NoError(t, err)
	assert.True(t, dec("50000").Equal(q.Original))
	assert.True(t, q.Original.Equal(q.Final))
	assert.Nil(t, q.Discount)

	q, err = Calculate(resource, scope, scope.Start.Add(2*time.Hour), "WELCOME10", testDiscounts())
	require.NoError(t, err)
	assert.True(t, dec("50000").Equal(q.Original))
	assert.True(t, dec("45000").Equal(q.Final))
	require.NotNil(t, q.Discount)
	assert.Equal(t, int64(5), q.Discount.ID)
}

package database

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"courtbook/internal/config"
	"courtbook/internal/models"
)

const cascadeReason = "another booking was confirmed for this slot"

func testCatalog() *config.Catalog {
	return &config.Catalog{
		Tenants: []config.TenantConfig{
			{
				ID: 1, Name: "Club Uno", Slug: "uno", IsActive: true,
				Branches: []config.BranchConfig{
					{
						ID: 10, Name: "Centro", Timezone: "UTC", RequiresApproval: true, IsActive: true,
						Resources: []config.ResourceConfig{
							{ID: 100, Name: "Cancha 1", Type: "padel", PricePerHour: "20000", Currency: "CLP", IsActive: true},
							{ID: 101, Name: "Cancha 2", Type: "padel", PricePerHour: "20000", Currency: "CLP", IsActive: true},
						},
					},
					{
						ID: 11, Name: "Norte", Timezone: "UTC", IsActive: true,
						Resources: []config.ResourceConfig{
							{ID: 110, Name: "Futbolito", Type: "football", PricePerHour: "25000", Currency: "CLP", IsActive: true},
						},
					},
				},
			},
			{
				ID: 2, Name: "Club Dos", Slug: "dos", IsActive: true,
				Branches: []config.BranchConfig{
					{
						ID: 20, Name: "Sur", Timezone: "UTC", IsActive: true,
						Resources: []config.ResourceConfig{
							{ID: 200, Name: "Tenis", Type: "tennis", PricePerHour: "15000", Currency: "CLP", IsActive: true},
						},
					},
				},
			},
		},
		Discounts: []config.DiscountConfig{
			{
				ID: 1, TenantID: 1, Name: "Welcome", Code: "WELCOME10", Type: "percentage", Value: "10",
				ConditionType: "promo_code", IsActive: true,
			},
			{
				ID: 2, TenantID: 1, BranchID: 10, Name: "Tarde", Type: "fixed_amount", Value: "5000",
				ConditionType: "time_based", DaysOfWeek: []int{1, 2, 3}, StartTime: "14:00", EndTime: "17:00",
				IsActive: true, ResourceIDs: []int64{100},
			},
		},
	}
}

func newTestDB(t *testing.T, policy OverlapPolicy) *DB {
	t.Helper()
	logger := zerolog.Nop()
	db, err := NewDB(filepath.Join(t.TempDir(), "test.db"), policy, &logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	require.NoError(t, db.SyncCatalog(context.Background(), testCatalog()))
	return db
}

var slotBase = time.Date(2030, 6, 3, 14, 0, 0, 0, time.UTC)

func newBooking(resourceID int64, userID string, start time.Time, dur time.Duration, status models.BookingStatus) *models.Booking {
	branchID := int64(10)
	if resourceID == 110 {
		branchID = 11
	}
	return &models.Booking{
		TenantID:      1,
		BranchID:      branchID,
		ResourceID:    resourceID,
		UserID:        userID,
		StartAt:       start,
		EndAt:         start.Add(dur),
		Status:        status,
		Source:        models.SourceWeb,
		OriginalPrice: decimal.NewFromInt(20000),
		TotalPrice:    decimal.NewFromInt(20000),
		Currency:      "CLP",
	}
}

func TestParseOverlapPolicy(t *testing.T) {
	p, err := ParseOverlapPolicy("")
	require.NoError(t, err)
	assert.Equal(t, OverlapStrict, p)

	p, err = ParseOverlapPolicy(" Queue ")
	require.NoError(t, err)
	assert.Equal(t, OverlapQueue, p)

	_, err = ParseOverlapPolicy("lenient")
	assert.Error(t, err)
}

func TestNewDB_ReinstallsTriggersForPolicy(t *testing.T) {
	logger := zerolog.Nop()
	path := filepath.Join(t.TempDir(), "policy.db")

	db, err := NewDB(path, OverlapQueue, &logger)
	require.NoError(t, err)
	require.NoError(t, db.SyncCatalog(context.Background(), testCatalog()))
	ctx := context.Background()
	_, err = db.CreateBooking(ctx, newBooking(100, "a", slotBase, time.Hour, models.StatusPending), cascadeReason)
	require.NoError(t, err)
	_, err = db.CreateBooking(ctx, newBooking(100, "b", slotBase, time.Hour, models.StatusPending), cascadeReason)
	require.NoError(t, err, "queue policy lets pending requests overlap")
	require.NoError(t, db.Close())

	db, err = NewDB(path, OverlapStrict, &logger)
	require.NoError(t, err)
	defer db.Close()
	assert.Equal(t, OverlapStrict, db.Policy())
	_, err = db.CreateBooking(ctx, newBooking(100, "c", slotBase.Add(30*time.Minute), time.Hour, models.StatusPending), cascadeReason)
	assert.ErrorIs(t, err, ErrSlotTaken)
}

func TestNewDB_InMemorySharesOneDatabase(t *testing.T) {
	logger := zerolog.Nop()
	db, err := NewDB(":memory:", OverlapStrict, &logger)
	require.NoError(t, err)
	defer db.Close()
	ctx := context.Background()

	require.NoError(t, db.SyncCatalog(ctx, testCatalog()))

	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _, err := db.GetResource(ctx, 100)
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		assert.NoError(t, err)
	}

	_, err = db.CreateBooking(ctx, newBooking(100, "a", slotBase, time.Hour, models.StatusConfirmed), cascadeReason)
	require.NoError(t, err)
	list, err := db.ListBookings(ctx, models.BookingFilter{})
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestSyncCatalog(t *testing.T) {
	db := newTestDB(t, OverlapStrict)
	ctx := context.Background()

	r, b, err := db.GetResource(ctx, 100)
	require.NoError(t, err)
	assert.Equal(t, "Cancha 1", r.Name)
	assert.True(t, decimal.NewFromInt(20000).Equal(r.HourlyRate))
	assert.True(t, r.IsActive)
	assert.Equal(t, int64(10), b.ID)
	assert.Equal(t, int64(1), b.TenantID)
	assert.True(t, b.RequiresApproval)

	_, _, err = db.GetResource(ctx, 999)
	assert.ErrorIs(t, err, ErrNotFound)

	discounts, err := db.ListDiscounts(ctx, 1)
	require.NoError(t, err)
	require.Len(t, discounts, 2)
	assert.Equal(t, "WELCOME10", discounts[0].Code)
	assert.Empty(t, discounts[0].ResourceIDs)
	assert.Equal(t, []int64{100}, discounts[1].ResourceIDs)
	assert.Equal(t, []int{1, 2, 3}, discounts[1].DaysOfWeek)
	assert.Equal(t, models.ConditionTimeBased, discounts[1].ConditionType)

	// Removing a resource and a discount from the catalog deactivates them.
	cat := testCatalog()
	cat.Tenants[0].Branches[0].Resources = cat.Tenants[0].Branches[0].Resources[:1]
	cat.Discounts = cat.Discounts[:1]
	cat.Tenants[0].Branches[1].RequiresApproval = true
	require.NoError(t, db.SyncCatalog(ctx, cat))

	r, _, err = db.GetResource(ctx, 101)
	require.NoError(t, err)
	assert.False(t, r.IsActive)

	_, b, err = db.GetResource(ctx, 110)
	require.NoError(t, err)
	assert.True(t, b.RequiresApproval)

	discounts, err = db.ListDiscounts(ctx, 1)
	require.NoError(t, err)
	require.Len(t, discounts, 2)
	assert.True(t, discounts[0].IsActive)
	assert.False(t, discounts[1].IsActive)

	assert.Error(t, db.SyncCatalog(ctx, nil))
}

func TestCreateBooking_StrictOverlap(t *testing.T) {
	db := newTestDB(t, OverlapStrict)
	ctx := context.Background()

	first := newBooking(100, "u1", slotBase, time.Hour, models.StatusPending)
	rejected, err := db.CreateBooking(ctx, first, cascadeReason)
	require.NoError(t, err)
	assert.Empty(t, rejected)
	assert.NotZero(t, first.ID)
	assert.False(t, first.CreatedAt.IsZero())

	stored, err := db.GetBooking(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, stored.Status)
	assert.Equal(t, "u1", stored.UserID)
	assert.Zero(t, stored.GuestID)
	assert.True(t, slotBase.Equal(stored.StartAt))
	assert.True(t, decimal.NewFromInt(20000).Equal(stored.TotalPrice))

	tests := []struct {
		name     string
		resource int64
		start    time.Time
		dur      time.Duration
		status   models.BookingStatus
		wantErr  error
	}{
		{"pending overlapping pending", 100, slotBase.Add(30 * time.Minute), time.Hour, models.StatusPending, ErrSlotTaken},
		{"confirmed overlapping pending", 100, slotBase.Add(-30 * time.Minute), time.Hour, models.StatusConfirmed, ErrSlotTaken},
		{"contained window", 100, slotBase.Add(10 * time.Minute), 10 * time.Minute, models.StatusPending, ErrSlotTaken},
		{"back to back after", 100, slotBase.Add(time.Hour), time.Hour, models.StatusPending, nil},
		{"back to back before", 100, slotBase.Add(-time.Hour), time.Hour, models.StatusConfirmed, nil},
		{"other resource", 101, slotBase, time.Hour, models.StatusPending, nil},
	}
	for i, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := newBooking(tt.resource, "u"+string(rune('a'+i)), tt.start, tt.dur, tt.status)
			_, err := db.CreateBooking(ctx, b, cascadeReason)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestCreateBooking_InactiveRowsDoNotBlock(t *testing.T) {
	db := newTestDB(t, OverlapStrict)
	ctx := context.Background()

	b := newBooking(100, "u1", slotBase, time.Hour, models.StatusPending)
	_, err := db.CreateBooking(ctx, b, cascadeReason)
	require.NoError(t, err)

	_, err = db.TransitionBooking(ctx, b.ID,
		[]models.BookingStatus{models.StatusPending, models.StatusConfirmed}, models.StatusCancelled,
		models.BookingCancellation{CancelledBy: "u1", Reason: "plans changed"})
	require.NoError(t, err)

	_, err = db.CreateBooking(ctx, newBooking(100, "u2", slotBase, time.Hour, models.StatusPending), cascadeReason)
	assert.NoError(t, err)
}

func TestCreateBooking_ClaimantCheck(t *testing.T) {
	db := newTestDB(t, OverlapStrict)
	ctx := context.Background()

	neither := newBooking(100, "", slotBase, time.Hour, models.StatusPending)
	_, err := db.CreateBooking(ctx, neither, cascadeReason)
	assert.Error(t, err)

	g, err := findOrCreateGuest(ctx, db.DB, models.Guest{TenantID: 1, Email: "g@example.com"}, time.Now())
	require.NoError(t, err)
	both := newBooking(100, "u1", slotBase, time.Hour, models.StatusPending)
	both.GuestID = g.ID
	_, err = db.CreateBooking(ctx, both, cascadeReason)
	assert.Error(t, err)
}

func TestCreateBooking_ConcurrentOverlapOnlyOneWins(t *testing.T) {
	for _, policy := range []OverlapPolicy{OverlapStrict, OverlapQueue} {
		t.Run(string(policy), func(t *testing.T) {
			db := newTestDB(t, policy)
			ctx := context.Background()

			const workers = 8
			errs := make(chan error, workers)
			start := make(chan struct{})
			for i := 0; i < workers; i++ {
				go func(i int) {
					<-start
					// Confirmed rows block each other under both policies.
					b := newBooking(110, "user-"+string(rune('a'+i)),
						slotBase.Add(time.Duration(i)*5*time.Minute), time.Hour, models.StatusConfirmed)
					_, err := db.CreateBooking(ctx, b, cascadeReason)
					errs <- err
				}(i)
			}
			close(start)

			var ok, taken int
			for i := 0; i < workers; i++ {
				err := <-errs
				switch {
				case err == nil:
					ok++
				case assert.ErrorIs(t, err, ErrSlotTaken):
					taken++
				}
			}
			assert.Equal(t, 1, ok)
			assert.Equal(t, workers-1, taken)

			active, err := db.ListBookings(ctx, models.BookingFilter{ResourceID: 110, Status: models.StatusConfirmed})
			require.NoError(t, err)
			assert.Len(t, active, 1)
		})
	}
}

func TestConfirmBooking_CascadeRejectsOverlappingPending(t *testing.T) {
	db := newTestDB(t, OverlapQueue)
	ctx := context.Background()

	target := newBooking(100, "owner", slotBase, time.Hour, models.StatusPending)
	_, err := db.CreateBooking(ctx, target, cascadeReason)
	require.NoError(t, err)

	var siblings []int64
	for i, offset := range []time.Duration{-30 * time.Minute, 15 * time.Minute, 45 * time.Minute} {
		b := newBooking(100, "sib-"+string(rune('a'+i)), slotBase.Add(offset), time.Hour, models.StatusPending)
		_, err := db.CreateBooking(ctx, b, cascadeReason)
		require.NoError(t, err)
		siblings = append(siblings, b.ID)
	}
	adjacent := newBooking(100, "adjacent", slotBase.Add(time.Hour), time.Hour, models.StatusPending)
	_, err = db.CreateBooking(ctx, adjacent, cascadeReason)
	require.NoError(t, err)
	otherCourt := newBooking(101, "other", slotBase, time.Hour, models.StatusPending)
	_, err = db.CreateBooking(ctx, otherCourt, cascadeReason)
	require.NoError(t, err)

	confirmed, rejected, err := db.ConfirmBooking(ctx, target.ID, "admin-1", cascadeReason)
	require.NoError(t, err)
	assert.Equal(t, models.StatusConfirmed, confirmed.Status)
	assert.ElementsMatch(t, siblings, rejected)

	for _, id := range siblings {
		b, err := db.GetBooking(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, models.StatusRejected, b.Status)
		assert.Equal(t, cascadeReason, b.RejectionReason)

		c, err := db.GetCancellation(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, "admin-1", c.CancelledBy)
		assert.Equal(t, cascadeReason, c.Reason)
	}

	for _, id := range []int64{adjacent.ID, otherCourt.ID} {
		b, err := db.GetBooking(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, models.StatusPending, b.Status)
	}

	// A pending request can no longer overlap the confirmed booking.
	_, err = db.CreateBooking(ctx, newBooking(100, "late", slotBase, time.Hour, models.StatusPending), cascadeReason)
	assert.ErrorIs(t, err, ErrSlotTaken)

	_, _, err = db.ConfirmBooking(ctx, target.ID, "admin-1", cascadeReason)
	assert.ErrorIs(t, err, ErrStaleStatus)
	_, _, err = db.ConfirmBooking(ctx, 9999, "admin-1", cascadeReason)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestConfirmBooking_CascadeFailureRollsBack(t *testing.T) {
	db := newTestDB(t, OverlapQueue)
	ctx := context.Background()

	target := newBooking(100, "owner", slotBase, time.Hour, models.StatusPending)
	_, err := db.CreateBooking(ctx, target, cascadeReason)
	require.NoError(t, err)
	sibling := newBooking(100, "sibling", slotBase.Add(30*time.Minute), time.Hour, models.StatusPending)
	_, err = db.CreateBooking(ctx, sibling, cascadeReason)
	require.NoError(t, err)

	_, err = db.Exec(`CREATE TRIGGER fail_cascade BEFORE UPDATE OF status ON bookings
		WHEN NEW.status = 'rejected'
		BEGIN SELECT RAISE(ABORT, 'cascade failure injected'); END`)
	require.NoError(t, err)

	_, _, err = db.ConfirmBooking(ctx, target.ID, "admin-1", cascadeReason)
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrSlotTaken)

	for _, id := range []int64{target.ID, sibling.ID} {
		b, err := db.GetBooking(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, models.StatusPending, b.Status)
		_, err = db.GetCancellation(ctx, id)
		assert.ErrorIs(t, err, ErrNotFound)
	}
}

func TestCreateBooking_QueueAutoConfirmCascades(t *testing.T) {
	db := newTestDB(t, OverlapQueue)
	ctx := context.Background()

	pending := newBooking(110, "p1", slotBase, time.Hour, models.StatusPending)
	_, err := db.CreateBooking(ctx, pending, cascadeReason)
	require.NoError(t, err)

	confirmed := newBooking(110, "c1", slotBase.Add(30*time.Minute), time.Hour, models.StatusConfirmed)
	rejected, err := db.CreateBooking(ctx, confirmed, cascadeReason)
	require.NoError(t, err)
	assert.Equal(t, []int64{pending.ID}, rejected)

	b, err := db.GetBooking(ctx, pending.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusRejected, b.Status)

	c, err := db.GetCancellation(ctx, pending.ID)
	require.NoError(t, err)
	assert.Empty(t, c.CancelledBy)
}

func TestTransitionBooking(t *testing.T) {
	db := newTestDB(t, OverlapStrict)
	ctx := context.Background()

	b := newBooking(100, "u1", slotBase, time.Hour, models.StatusPending)
	_, err := db.CreateBooking(ctx, b, cascadeReason)
	require.NoError(t, err)

	out, err := db.TransitionBooking(ctx, b.ID, []models.BookingStatus{models.StatusPending}, models.StatusRejected,
		models.BookingCancellation{CancelledBy: "admin", Reason: "court maintenance"})
	require.NoError(t, err)
	assert.Equal(t, models.StatusRejected, out.Status)
	assert.Equal(t, "court maintenance", out.RejectionReason)

	c, err := db.GetCancellation(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, "admin", c.CancelledBy)
	assert.Equal(t, "court maintenance", c.Reason)

	_, err = db.TransitionBooking(ctx, b.ID, []models.BookingStatus{models.StatusPending, models.StatusConfirmed},
		models.StatusCancelled, models.BookingCancellation{CancelledBy: "u1"})
	assert.ErrorIs(t, err, ErrStaleStatus)

	_, err = db.TransitionBooking(ctx, 4242, []models.BookingStatus{models.StatusPending}, models.StatusCancelled,
		models.BookingCancellation{})
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = db.TransitionBooking(ctx, b.ID, nil, models.StatusCancelled, models.BookingCancellation{})
	assert.Error(t, err)
}

func TestHasPendingOverlap(t *testing.T) {
	db := newTestDB(t, OverlapQueue)
	ctx := context.Background()

	_, err := db.CreateBooking(ctx, newBooking(100, "u1", slotBase, time.Hour, models.StatusPending), cascadeReason)
	require.NoError(t, err)

	has, err := db.HasPendingOverlap(ctx, "u1", 100, slotBase.Add(30*time.Minute), slotBase.Add(90*time.Minute))
	require.NoError(t, err)
	assert.True(t, has)

	has, err = db.HasPendingOverlap(ctx, "u1", 100, slotBase.Add(time.Hour), slotBase.Add(2*time.Hour))
	require.NoError(t, err)
	assert.False(t, has)

	has, err = db.HasPendingOverlap(ctx, "u2", 100, slotBase, slotBase.Add(time.Hour))
	require.NoError(t, err)
	assert.False(t, has)

	has, err = db.HasPendingOverlap(ctx, "u1", 101, slotBase, slotBase.Add(time.Hour))
	require.NoError(t, err)
	assert.False(t, has)
}

func TestFindOrCreateGuest(t *testing.T) {
	db := newTestDB(t, OverlapStrict)
	ctx := context.Background()

	first, err := findOrCreateGuest(ctx, db.DB, models.Guest{
		TenantID: 1, Email: " Ana@Example.com ", FirstName: "Ana", LastName: "Rojas", Phone: "+56911111111",
	}, time.Now())
	require.NoError(t, err)
	assert.Equal(t, "ana@example.com", first.Email)

	again, err := findOrCreateGuest(ctx, db.DB, models.Guest{
		TenantID: 1, Email: "ana@example.com", FirstName: "Anita", Phone: "+56922222222",
	}, time.Now())
	require.NoError(t, err)
	assert.Equal(t, first.ID, again.ID)
	assert.Equal(t, "Ana", again.FirstName, "reuse must not update the guest")
	assert.Equal(t, "+56911111111", again.Phone)

	other, err := findOrCreateGuest(ctx, db.DB, models.Guest{TenantID: 2, Email: "ana@example.com", FirstName: "Ana"}, time.Now())
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, other.ID)
	assert.Equal(t, int64(2), other.TenantID)

	got, err := db.GetGuest(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, "Rojas", got.LastName)

	_, err = findOrCreateGuest(ctx, db.DB, models.Guest{TenantID: 1, Email: "  "}, time.Now())
	assert.Error(t, err)
	_, err = db.GetGuest(ctx, 999)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCreateGuestBooking(t *testing.T) {
	db := newTestDB(t, OverlapStrict)
	ctx := context.Background()

	countGuests := func() int {
		var n int
		require.NoError(t, db.QueryRowContext(ctx, `SELECT COUNT(1) FROM guests`).Scan(&n))
		return n
	}

	b := newBooking(100, "", slotBase, time.Hour, models.StatusPending)
	_, err := db.CreateGuestBooking(ctx, b, models.Guest{Email: " Ana@Example.com ", FirstName: "Ana"}, cascadeReason)
	require.NoError(t, err)
	assert.NotZero(t, b.GuestID)
	assert.Equal(t, "ana@example.com", b.ContactEmail)
	assert.Equal(t, 1, countGuests())

	stored, err := db.GetBooking(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, b.GuestID, stored.GuestID)

	again := newBooking(101, "", slotBase, time.Hour, models.StatusPending)
	_, err = db.CreateGuestBooking(ctx, again, models.Guest{Email: "ana@example.com"}, cascadeReason)
	require.NoError(t, err)
	assert.Equal(t, b.GuestID, again.GuestID)
	assert.Equal(t, 1, countGuests())

	t.Run("slot taken leaves no guest", func(t *testing.T) {
		clash := newBooking(100, "", slotBase.Add(30*time.Minute), time.Hour, models.StatusPending)
		_, err := db.CreateGuestBooking(ctx, clash, models.Guest{Email: "nuevo@example.com"}, cascadeReason)
		assert.ErrorIs(t, err, ErrSlotTaken)
		assert.Equal(t, 1, countGuests())
	})

	t.Run("store error leaves no guest", func(t *testing.T) {
		unknown := newBooking(999, "", slotBase.AddDate(0, 0, 1), time.Hour, models.StatusPending)
		_, err := db.CreateGuestBooking(ctx, unknown, models.Guest{Email: "otro@example.com"}, cascadeReason)
		assert.Error(t, err)
		assert.Equal(t, 1, countGuests())
	})
}

func TestListBookings(t *testing.T) {
	db := newTestDB(t, OverlapStrict)
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		b := newBooking(100, "u1", slotBase.Add(time.Duration(i)*2*time.Hour), time.Hour, models.StatusPending)
		_, err := db.CreateBooking(ctx, b, cascadeReason)
		require.NoError(t, err)
	}
	_, err := db.CreateBooking(ctx, newBooking(110, "u2", slotBase, time.Hour, models.StatusConfirmed), cascadeReason)
	require.NoError(t, err)

	mine, err := db.ListBookings(ctx, models.BookingFilter{UserID: "u1", Limit: 3})
	require.NoError(t, err)
	require.Len(t, mine, 3)
	assert.True(t, mine[0].StartAt.After(mine[1].StartAt))

	page2, err := db.ListBookings(ctx, models.BookingFilter{UserID: "u1", Limit: 3, Offset: 3})
	require.NoError(t, err)
	assert.Len(t, page2, 1)

	branch, err := db.ListBookings(ctx, models.BookingFilter{
		BranchID: 10, From: slotBase.Add(time.Hour), To: slotBase.Add(5 * time.Hour),
	})
	require.NoError(t, err)
	assert.Len(t, branch, 2)

	confirmed, err := db.ListBookings(ctx, models.BookingFilter{TenantID: 1, Status: models.StatusConfirmed})
	require.NoError(t, err)
	require.Len(t, confirmed, 1)
	assert.Equal(t, int64(110), confirmed[0].ResourceID)
}

func TestSurveyCandidates(t *testing.T) {
	db := newTestDB(t, OverlapStrict)
	ctx := context.Background()

	now := time.Now().UTC().Truncate(time.Second)
	mk := func(resource int64, endedAgo time.Duration, status models.BookingStatus) int64 {
		end := now.Add(-endedAgo)
		b := newBooking(resource, "u-"+endedAgo.String(), end.Add(-time.Hour), time.Hour, status)
		_, err := db.CreateBooking(ctx, b, cascadeReason)
		require.NoError(t, err)
		return b.ID
	}

	inWindow := mk(100, 2*time.Hour, models.StatusConfirmed)
	tooRecent := mk(101, 30*time.Minute, models.StatusConfirmed)
	tooOld := mk(110, 30*time.Hour, models.StatusConfirmed)
	pending := mk(100, 5*time.Hour, models.StatusPending)

	list, err := db.ListSurveyCandidates(ctx, now.Add(-24*time.Hour), now.Add(-time.Hour), 0)
	require.NoError(t, err)
	var ids []int64
	for _, b := range list {
		ids = append(ids, b.ID)
	}
	assert.Equal(t, []int64{inWindow}, ids)
	assert.NotContains(t, ids, tooRecent)
	assert.NotContains(t, ids, tooOld)
	assert.NotContains(t, ids, pending)

	ok, err := db.TryClaimSurvey(ctx, inWindow)
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = db.TryClaimSurvey(ctx, inWindow)
	require.NoError(t, err)
	assert.False(t, ok)

	list, err = db.ListSurveyCandidates(ctx, now.Add(-24*time.Hour), now.Add(-time.Hour), 0)
	require.NoError(t, err)
	assert.Empty(t, list)

	require.NoError(t, db.ReleaseSurvey(ctx, inWindow))
	list, err = db.ListSurveyCandidates(ctx, now.Add(-24*time.Hour), now.Add(-time.Hour), 0)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestGetTableData(t *testing.T) {
	db := newTestDB(t, OverlapStrict)
	ctx := context.Background()

	b := newBooking(100, "u1", slotBase, time.Hour, models.StatusPending)
	_, err := db.CreateBooking(ctx, b, cascadeReason)
	require.NoError(t, err)
	_, err = db.CreateBooking(ctx, newBooking(100, "u1", slotBase.AddDate(0, 1, 0), time.Hour, models.StatusPending), cascadeReason)
	require.NoError(t, err)

	from := time.Date(2030, 6, 1, 0, 0, 0, 0, time.UTC)
	cols, rows, err := db.GetTableData(ctx, "bookings", from, from.AddDate(0, 1, 0))
	require.NoError(t, err)
	assert.Equal(t, "id", cols[0])
	require.Len(t, rows, 1)
	assert.Equal(t, b.ID, rows[0][0])

	_, _, err = db.GetTableData(ctx, "guests; DROP TABLE bookings", from, from)
	assert.Error(t, err)

	names, err := db.GetTableNames(ctx)
	require.NoError(t, err)
	assert.Equal(t, AuditTableNames, names)
}

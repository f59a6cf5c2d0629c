package database

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"courtbook/internal/models"
)

const bookingColumns = `id, tenant_id, branch_id, resource_id, COALESCE(user_id, ''), COALESCE(guest_id, 0),
	contact_email, start_at, end_at, status, source, original_price, total_price, currency, notes,
	rejection_reason, COALESCE(discount_id, 0), survey_sent, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanBooking(row rowScanner) (*models.Booking, error) {
	var (
		b                        models.Booking
		start, end, created, upd string
		status, source           string
		surveySent               int
	)
	err := row.Scan(&b.ID, &b.TenantID, &b.BranchID, &b.ResourceID, &b.UserID, &b.GuestID,
		&b.ContactEmail, &start, &end, &status, &source, &b.OriginalPrice, &b.TotalPrice, &b.Currency,
		&b.Notes, &b.RejectionReason, &b.DiscountID, &surveySent, &created, &upd)
	if err != nil {
		return nil, err
	}
	b.Status = models.BookingStatus(status)
	b.Source = models.Source(source)
	b.SurveySent = surveySent == 1
	for _, p := range []struct {
		dst *time.Time
		src string
	}{{&b.StartAt, start}, {&b.EndAt, end}, {&b.CreatedAt, created}, {&b.UpdatedAt, upd}} {
		if *p.dst, err = parseTime(p.src); err != nil {
			return nil, err
		}
	}
	return &b, nil
}

// CreateBooking inserts b and sets its ID and timestamps.
// Under the queue policy a confirmed insert first rejects the pending bookings it overlaps,
// attributing them to nobody with cascadeReason; their ids are returned.
// An overlap with a blocking booking yields ErrSlotTaken.
func (db *DB) CreateBooking(ctx context.Context, b *models.Booking, cascadeReason string) ([]int64, error) {
	return db.createBooking(ctx, b, nil, cascadeReason)
}

// CreateGuestBooking finds or creates guest in b's tenant and inserts b for it in one transaction,
// so a failed insert leaves no new guest behind. b.GuestID and b.ContactEmail are set from the stored guest.
func (db *DB) CreateGuestBooking(ctx context.Context, b *models.Booking, guest models.Guest, cascadeReason string) ([]int64, error) {
	guest.TenantID = b.TenantID
	return db.createBooking(ctx, b, &guest, cascadeReason)
}

func (db *DB) createBooking(ctx context.Context, b *models.Booking, guest *models.Guest, cascadeReason string) ([]int64, error) {
	now := time.Now().UTC().Truncate(time.Second)
	var rejected []int64

	err := db.inTx(ctx, func(tx *sql.Tx) error {
		if guest != nil {
			g, err := findOrCreateGuest(ctx, tx, *guest, now)
			if err != nil {
				return err
			}
			b.GuestID = g.ID
			b.ContactEmail = g.Email
		}

		if b.Status == models.StatusConfirmed && db.policy == OverlapQueue {
			ids, err := rejectOverlappingPending(ctx, tx, b.ResourceID, b.StartAt, b.EndAt, 0, "", cascadeReason, now)
			if err != nil {
				return err
			}
			rejected = ids
		}

		res, err := tx.ExecContext(ctx, `
			INSERT INTO bookings (tenant_id, branch_id, resource_id, user_id, guest_id, contact_email,
				start_at, end_at, status, source, original_price, total_price, currency, notes,
				discount_id, survey_sent, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 0, ?, ?)`,
			b.TenantID, b.BranchID, b.ResourceID, nullString(b.UserID), nullInt64(b.GuestID), b.ContactEmail,
			formatTime(b.StartAt), formatTime(b.EndAt), string(b.Status), string(b.Source),
			b.OriginalPrice.StringFixed(2), b.TotalPrice.StringFixed(2), b.Currency, b.Notes,
			nullInt64(b.DiscountID), formatTime(now), formatTime(now),
		)
		if err != nil {
			if isOverlapErr(err) {
				return ErrSlotTaken
			}
			return fmt.Errorf("insert booking: %w", err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return fmt.Errorf("booking id: %w", err)
		}
		b.ID = id
		return nil
	})
	if err != nil {
		return nil, err
	}

	b.CreatedAt, b.UpdatedAt = now, now
	return rejected, nil
}

// GetBooking returns a booking by id.
func (db *DB) GetBooking(ctx context.Context, id int64) (*models.Booking, error) {
	return getBooking(ctx, db.DB, id)
}

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

func getBooking(ctx context.Context, q queryer, id int64) (*models.Booking, error) {
	b, err := scanBooking(q.QueryRowContext(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE id = ?`, id))
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get booking %d: %w", id, err)
	}
	return b, nil
}

// HasPendingOverlap reports whether userID already holds a pending booking on the resource overlapping [start, end).
func (db *DB) HasPendingOverlap(ctx context.Context, userID string, resourceID int64, start, end time.Time) (bool, error) {
	var n int
	err := db.QueryRowContext(ctx, `
		SELECT COUNT(1) FROM bookings
		WHERE user_id = ? AND resource_id = ? AND status = 'pending'
			AND start_at < ? AND end_at > ?`,
		userID, resourceID, formatTime(end), formatTime(start),
	).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("check pending overlap: %w", err)
	}
	return n > 0, nil
}

// TransitionBooking moves a booking whose status is one of from to status to, atomically
// with the cancellation record that cancelled and rejected bookings carry.
// It returns ErrNotFound for an unknown id and ErrStaleStatus when the current status is not in from.
func (db *DB) TransitionBooking(
	ctx context.Context,
	id int64,
	from []models.BookingStatus,
	to models.BookingStatus,
	c models.BookingCancellation,
) (*models.Booking, error) {
	if len(from) == 0 {
		return nil, fmt.Errorf("no source status given")
	}
	now := time.Now().UTC().Truncate(time.Second)
	if c.CancelledAt.IsZero() {
		c.CancelledAt = now
	}

	var out *models.Booking
	err := db.inTx(ctx, func(tx *sql.Tx) error {
		args := []interface{}{string(to), string(to), c.Reason, formatTime(now), id}
		for _, s := range from {
			args = append(args, string(s))
		}
		res, err := tx.ExecContext(ctx, `
			UPDATE bookings
			SET status = ?,
				rejection_reason = CASE WHEN ? = 'rejected' THEN ? ELSE rejection_reason END,
				updated_at = ?
			WHERE id = ? AND status IN (`+placeholders(len(from))+`)`, args...)
		if err != nil {
			if isOverlapErr(err) {
				return ErrSlotTaken
			}
			return fmt.Errorf("update booking %d: %w", id, err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			if _, err := getBooking(ctx, tx, id); err != nil {
				return err
			}
			return ErrStaleStatus
		}

		if to == models.StatusCancelled || to == models.StatusRejected {
			if err := insertCancellation(ctx, tx, id, c.CancelledBy, c.Reason, c.CancelledAt); err != nil {
				return err
			}
		}

		out, err = getBooking(ctx, tx, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// ConfirmBooking moves a pending booking to confirmed and, in the same transaction,
// rejects every other pending booking on the resource overlapping it.
// The rejections carry cascadeReason and are attributed to confirmedBy. Nothing is
// committed unless every step succeeds.
func (db *DB) ConfirmBooking(ctx context.Context, id int64, confirmedBy, cascadeReason string) (*models.Booking, []int64, error) {
	now := time.Now().UTC().Truncate(time.Second)

	var (
		out      *models.Booking
		rejected []int64
	)
	err := db.inTx(ctx, func(tx *sql.Tx) error {
		target, err := getBooking(ctx, tx, id)
		if err != nil {
			return err
		}
		if target.Status != models.StatusPending {
			return ErrStaleStatus
		}

		res, err := tx.ExecContext(ctx, `
			UPDATE bookings SET status = 'confirmed', updated_at = ?
			WHERE id = ? AND status = 'pending'`, formatTime(now), id)
		if err != nil {
			if isOverlapErr(err) {
				return ErrSlotTaken
			}
			return fmt.Errorf("confirm booking %d: %w", id, err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return ErrStaleStatus
		}

		rejected, err = rejectOverlappingPending(ctx, tx, target.ResourceID, target.StartAt, target.EndAt,
			id, confirmedBy, cascadeReason, now)
		if err != nil {
			return err
		}

		out, err = getBooking(ctx, tx, id)
		return err
	})
	if err != nil {
		return nil, nil, err
	}
	return out, rejected, nil
}

func rejectOverlappingPending(
	ctx context.Context,
	tx *sql.Tx,
	resourceID int64,
	start, end time.Time,
	excludeID int64,
	by, reason string,
	now time.Time,
) ([]int64, error) {
	rows, err := tx.QueryContext(ctx, `
		SELECT id FROM bookings
		WHERE resource_id = ? AND status = 'pending' AND id <> ?
			AND start_at < ? AND end_at > ?
		ORDER BY id`,
		resourceID, excludeID, formatTime(end), formatTime(start))
	if err != nil {
		return nil, fmt.Errorf("find overlapping pending: %w", err)
	}
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, err
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()

	for _, id := range ids {
		res, err := tx.ExecContext(ctx, `
			UPDATE bookings SET status = 'rejected', rejection_reason = ?, updated_at = ?
			WHERE id = ? AND status = 'pending'`, reason, formatTime(now), id)
		if err != nil {
			return nil, fmt.Errorf("reject overlapping booking %d: %w", id, err)
		}
		if n, _ := res.RowsAffected(); n != 1 {
			return nil, fmt.Errorf("reject overlapping booking %d: %w", id, ErrStaleStatus)
		}
		if err := insertCancellation(ctx, tx, id, by, reason, now); err != nil {
			return nil, err
		}
	}
	return ids, nil
}

func insertCancellation(ctx context.Context, tx *sql.Tx, bookingID int64, by, reason string, at time.Time) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO booking_cancellations (booking_id, cancelled_by, reason, cancelled_at)
		VALUES (?, ?, ?, ?)`,
		bookingID, nullString(by), reason, formatTime(at))
	if err != nil {
		return fmt.Errorf("record cancellation of %d: %w", bookingID, err)
	}
	return nil
}

// GetCancellation returns the cancellation record of a booking.
func (db *DB) GetCancellation(ctx context.Context, bookingID int64) (*models.BookingCancellation, error) {
	var (
		c  models.BookingCancellation
		by sql.NullString
		at string
	)
	err := db.QueryRowContext(ctx, `
		SELECT id, booking_id, cancelled_by, reason, cancelled_at
		FROM booking_cancellations WHERE booking_id = ?`, bookingID,
	).Scan(&c.ID, &c.BookingID, &by, &c.Reason, &at)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get cancellation: %w", err)
	}
	c.CancelledBy = by.String
	if c.CancelledAt, err = parseTime(at); err != nil {
		return nil, err
	}
	return &c, nil
}

// ListBookings returns bookings matching filter, latest start first.
// To is an exclusive upper bound on start_at.
func (db *DB) ListBookings(ctx context.Context, f models.BookingFilter) ([]models.Booking, error) {
	var (
		where []string
		args  []interface{}
	)
	if f.TenantID != 0 {
		where = append(where, "tenant_id = ?")
		args = append(args, f.TenantID)
	}
	if f.BranchID != 0 {
		where = append(where, "branch_id = ?")
		args = append(args, f.BranchID)
	}
	if f.ResourceID != 0 {
		where = append(where, "resource_id = ?")
		args = append(args, f.ResourceID)
	}
	if f.UserID != "" {
		where = append(where, "user_id = ?")
		args = append(args, f.UserID)
	}
	if f.Status != "" {
		where = append(where, "status = ?")
		args = append(args, string(f.Status))
	}
	if !f.From.IsZero() {
		where = append(where, "start_at >= ?")
		args = append(args, formatTime(f.From))
	}
	if !f.To.IsZero() {
		where = append(where, "start_at < ?")
		args = append(args, formatTime(f.To))
	}

	q := `SELECT ` + bookingColumns + ` FROM bookings`
	if len(where) > 0 {
		q += ` WHERE ` + strings.Join(where, " AND ")
	}
	q += ` ORDER BY start_at DESC, id DESC`
	if f.Limit > 0 {
		q += ` LIMIT ? OFFSET ?`
		args = append(args, f.Limit, f.Offset)
	}

	rows, err := db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list bookings: %w", err)
	}
	defer rows.Close()

	var out []models.Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, fmt.Errorf("scan booking: %w", err)
		}
		out = append(out, *b)
	}
	return out, rows.Err()
}

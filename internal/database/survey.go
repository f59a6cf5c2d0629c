package database

import (
	"context"
	"fmt"
	"time"

	"courtbook/internal/models"
)

// ListSurveyCandidates returns confirmed bookings without a survey whose end lies strictly
// between endedAfter and endedBefore, oldest first.
func (db *DB) ListSurveyCandidates(ctx context.Context, endedAfter, endedBefore time.Time, limit int) ([]models.Booking, error) {
	if limit <= 0 {
		limit = 500
	}
	rows, err := db.QueryContext(ctx, `
		SELECT `+bookingColumns+`
		FROM bookings
		WHERE status = 'confirmed' AND survey_sent = 0
			AND end_at > ? AND end_at < ?
		ORDER BY end_at, id
		LIMIT ?`,
		formatTime(endedAfter), formatTime(endedBefore), limit)
	if err != nil {
		return nil, fmt.Errorf("list survey candidates: %w", err)
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

// TryClaimSurvey atomically sets the survey flag. It returns false when another sweep already holds it.
func (db *DB) TryClaimSurvey(ctx context.Context, bookingID int64) (bool, error) {
	res, err := db.ExecContext(ctx, `
		UPDATE bookings SET survey_sent = 1, updated_at = ?
		WHERE id = ? AND survey_sent = 0`, formatTime(time.Now()), bookingID)
	if err != nil {
		return false, fmt.Errorf("claim survey %d: %w", bookingID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// ReleaseSurvey clears the survey flag after a failed send so a later sweep can retry.
func (db *DB) ReleaseSurvey(ctx context.Context, bookingID int64) error {
	_, err := db.ExecContext(ctx, `
		UPDATE bookings SET survey_sent = 0, updated_at = ?
		WHERE id = ?`, formatTime(time.Now()), bookingID)
	if err != nil {
		return fmt.Errorf("release survey %d: %w", bookingID, err)
	}
	return nil
}

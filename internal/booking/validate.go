package booking

import (
	"fmt"
	"time"
)

// ValidateSlot fails with ErrInvalidRange unless start < end and start is strictly after now.
func ValidateSlot(start, end, now time.Time) error {
	if start.IsZero() || end.IsZero() {
		return fmt.Errorf("%w: start and end are required", ErrInvalidRange)
	}
	if !start.Before(end) {
		return fmt.Errorf("%w: start %s is not before end %s", ErrInvalidRange,
			start.UTC().Format(time.RFC3339), end.UTC().Format(time.RFC3339))
	}
	if !start.After(now) {
		return fmt.Errorf("%w: start %s is not in the future", ErrInvalidRange, start.UTC().Format(time.RFC3339))
	}
	return nil
}

// normalizeWindow returns the window in UTC at whole-second precision, the resolution bookings are stored at.
func normalizeWindow(start, end time.Time) (time.Time, time.Time) {
	return start.UTC().Truncate(time.Second), end.UTC().Truncate(time.Second)
}

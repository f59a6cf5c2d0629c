package booking

import "courtbook/internal/models"

// transitions lists every status change of the booking lifecycle.
// completed and no_show are set by attendance tracking outside this package.
var transitions = map[models.BookingStatus][]models.BookingStatus{
	models.StatusPending:   {models.StatusConfirmed, models.StatusRejected, models.StatusCancelled},
	models.StatusConfirmed: {models.StatusCancelled, models.StatusCompleted, models.StatusNoShow},
}

// CanTransition checks if transition is allowed.
func CanTransition(from, to models.BookingStatus) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// sourcesOf returns the statuses that may move to to.
func sourcesOf(to models.BookingStatus) []models.BookingStatus {
	var out []models.BookingStatus
	for _, from := range models.AllStatuses {
		if CanTransition(from, to) {
			out = append(out, from)
		}
	}
	return out
}

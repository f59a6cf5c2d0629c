package booking

import (
	"errors"

	"courtbook/internal/pricing"
)

// Domain error kinds returned by the lifecycle operations.
var (
	ErrInvalidRange      = errors.New("start must be in the future and before end")
	ErrInvalidInput      = errors.New("invalid input")
	ErrMissingClaimant   = errors.New("exactly one of an authenticated user or guest contact is required")
	ErrResourceNotFound  = errors.New("resource not found")
	ErrResourceInactive  = errors.New("resource is not active")
	ErrBranchInactive    = errors.New("branch is not active")
	ErrInvalidPromoCode  = pricing.ErrInvalidPromoCode
	ErrConflict          = errors.New("you already have a pending booking for this time")
	ErrSlotTaken         = errors.New("this time slot is already booked")
	ErrNotFound          = errors.New("booking not found")
	ErrAlreadyTerminal   = errors.New("booking can no longer be cancelled")
	ErrForbidden         = errors.New("access denied to this booking")
	ErrUnauthenticated   = errors.New("authentication required")
	ErrInvalidTransition = errors.New("only pending bookings can be confirmed or rejected")
	ErrMissingReason     = errors.New("a rejection reason is required")
)

var kinds = []struct {
	err  error
	kind string
}{
	{ErrInvalidRange, "invalid_range"},
	{ErrInvalidInput, "invalid_input"},
	{ErrMissingClaimant, "missing_claimant"},
	{ErrResourceNotFound, "resource_not_found"},
	{ErrResourceInactive, "resource_inactive"},
	{ErrBranchInactive, "branch_inactive"},
	{ErrInvalidPromoCode, "invalid_promo_code"},
	{ErrConflict, "conflict"},
	{ErrSlotTaken, "slot_taken"},
	{ErrNotFound, "not_found"},
	{ErrAlreadyTerminal, "already_terminal"},
	{ErrForbidden, "forbidden"},
	{ErrUnauthenticated, "unauthenticated"},
	{ErrInvalidTransition, "invalid_transition"},
	{ErrMissingReason, "missing_reason"},
}

// Kind returns the stable name of err's domain kind, or "internal" for infrastructure failures.
func Kind(err error) string {
	if err == nil {
		return ""
	}
	for _, k := range kinds {
		if errors.Is(err, k.err) {
			return k.kind
		}
	}
	return "internal"
}

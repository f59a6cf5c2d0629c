package booking

import (
	"fmt"
	"strings"

	"courtbook/internal/database"
	"courtbook/internal/models"
)

// GuestContact is the inline contact data of an unauthenticated claimant.
type GuestContact struct {
	Email     string `json:"email"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Phone     string `json:"phone"`
}

func (g *GuestContact) present() bool {
	return g != nil && strings.TrimSpace(g.Email) != ""
}

// Claimant is the single party a booking is held for. Guest is set for unauthenticated
// claimants and is found or created by the store together with the booking.
type Claimant struct {
	UserID string
	Email  string
	Guest  *models.Guest
}

// checkClaimant enforces that exactly one of actor and guest identifies the claimant.
func checkClaimant(actor *models.Actor, guest *GuestContact) error {
	hasUser := actor.Authenticated()
	hasGuest := guest.present()
	if hasUser == hasGuest {
		return ErrMissingClaimant
	}
	if hasGuest && !strings.Contains(guest.Email, "@") {
		return fmt.Errorf("%w: malformed guest email", ErrInvalidInput)
	}
	return nil
}

// ResolveClaimant returns the authenticated user, or the guest contact keyed by tenant and email.
// Supplying both or neither fails with ErrMissingClaimant.
func ResolveClaimant(actor *models.Actor, guest *GuestContact, tenantID int64) (Claimant, error) {
	if err := checkClaimant(actor, guest); err != nil {
		return Claimant{}, err
	}
	if actor.Authenticated() {
		return Claimant{UserID: actor.UserID, Email: actor.Email}, nil
	}

	email := database.NormalizeEmail(guest.Email)
	return Claimant{
		Email: email,
		Guest: &models.Guest{
			TenantID:  tenantID,
			Email:     email,
			FirstName: guest.FirstName,
			LastName:  guest.LastName,
			Phone:     guest.Phone,
		},
	}, nil
}

package notify

import (
	"context"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"courtbook/internal/config"
	"courtbook/internal/models"
)

// CatalogStore resolves the names shown in notifications.
type CatalogStore interface {
	GetResource(ctx context.Context, id int64) (*models.Resource, *models.Branch, error)
	GetGuest(ctx context.Context, id int64) (*models.Guest, error)
}

// AdminSource lists the administrators to notify for a branch.
type AdminSource interface {
	AdminsFor(tenantID, branchID int64) []config.AdminConfig
}

// BookingView is a booking with the human-readable details channels render.
type BookingView struct {
	Booking      models.Booking
	ClientName   string
	ClientEmail  string
	BranchName   string
	ResourceName string
	Location     *time.Location
}

// LocalStart returns the start time in the branch timezone.
func (v BookingView) LocalStart() time.Time {
	return v.Booking.StartAt.In(v.Location)
}

// LocalEnd returns the end time in the branch timezone.
func (v BookingView) LocalEnd() time.Time {
	return v.Booking.EndAt.In(v.Location)
}

// Directory enriches bookings for rendering. Lookups are best effort.
type Directory struct {
	store  CatalogStore
	admins AdminSource
	logger zerolog.Logger
}

func NewDirectory(store CatalogStore, admins AdminSource, logger zerolog.Logger) *Directory {
	return &Directory{
		store:  store,
		admins: admins,
		logger: logger.With().Str("component", "notify-directory").Logger(),
	}
}

// View builds the rendering view of b. Missing catalog rows fall back to IDs.
func (d *Directory) View(ctx context.Context, b models.Booking) BookingView {
	v := BookingView{
		Booking:     b,
		ClientEmail: b.ContactEmail,
		Location:    time.UTC,
	}

	res, branch, err := d.store.GetResource(ctx, b.ResourceID)
	if err != nil {
		d.logger.Warn().Err(err).Int64("booking_id", b.ID).Int64("resource_id", b.ResourceID).Msg("resource lookup failed")
	} else {
		v.ResourceName = res.Name
		v.BranchName = branch.Name
		v.Location = branch.Location()
	}

	if b.IsGuest() {
		g, err := d.store.GetGuest(ctx, b.GuestID)
		if err != nil {
			d.logger.Warn().Err(err).Int64("booking_id", b.ID).Msg("guest lookup failed")
		} else {
			v.ClientName = strings.TrimSpace(g.FirstName + " " + g.LastName)
			if v.ClientEmail == "" {
				v.ClientEmail = g.Email
			}
		}
	}
	if v.ClientName == "" {
		v.ClientName = "cliente"
	}
	return v
}

// Admins returns the tenant and branch admins for b.
func (d *Directory) Admins(b models.Booking) []config.AdminConfig {
	if d.admins == nil {
		return nil
	}
	return d.admins.AdminsFor(b.TenantID, b.BranchID)
}

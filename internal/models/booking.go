package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// BookingStatus is the lifecycle state of a booking.
type BookingStatus string

const (
	StatusPending   BookingStatus = "pending"
	StatusConfirmed BookingStatus = "confirmed"
	StatusCancelled BookingStatus = "cancelled"
	StatusCompleted BookingStatus = "completed"
	StatusNoShow    BookingStatus = "no_show"
	StatusRejected  BookingStatus = "rejected"
)

// AllStatuses lists every known booking status.
var AllStatuses = []BookingStatus{
	StatusPending, StatusConfirmed, StatusCancelled, StatusCompleted, StatusNoShow, StatusRejected,
}

// Valid reports whether s is a known status.
func (s BookingStatus) Valid() bool {
	for _, st := range AllStatuses {
		if st == s {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no further transition is possible.
func (s BookingStatus) IsTerminal() bool {
	switch s {
	case StatusCancelled, StatusRejected, StatusCompleted, StatusNoShow:
		return true
	}
	return false
}

// Source is the channel a booking was made through.
type Source string

const (
	SourceWeb    Source = "web"
	SourceApp    Source = "app"
	SourcePhone  Source = "phone"
	SourceWalkIn Source = "walk_in"
)

// Valid reports whether s is a known source channel.
func (s Source) Valid() bool {
	switch s {
	case SourceWeb, SourceApp, SourcePhone, SourceWalkIn:
		return true
	}
	return false
}

// Booking is a reservation of a resource for a half-open interval [StartAt, EndAt).
// Exactly one of UserID and GuestID is set.
type Booking struct {
	ID              int64           `json:"id"`
	TenantID        int64           `json:"tenant_id"`
	BranchID        int64           `json:"branch_id"`
	ResourceID      int64           `json:"resource_id"`
	UserID          string          `json:"user_id,omitempty"`
	GuestID         int64           `json:"guest_id,omitempty"`
	ContactEmail    string          `json:"-"`
	StartAt         time.Time       `json:"start_at"`
	EndAt           time.Time       `json:"end_at"`
	Status          BookingStatus   `json:"status"`
	Source          Source          `json:"source"`
	OriginalPrice   decimal.Decimal `json:"original_price"`
	TotalPrice      decimal.Decimal `json:"total_price"`
	Currency        string          `json:"currency"`
	Notes           string          `json:"notes,omitempty"`
	RejectionReason string          `json:"rejection_reason,omitempty"`
	DiscountID      int64           `json:"discount_id,omitempty"`
	SurveySent      bool            `json:"survey_sent"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

// IsGuest reports whether the booking is held for a guest.
func (b *Booking) IsGuest() bool {
	return b.GuestID != 0
}

// OwnedBy reports whether the registered user userID holds the booking.
func (b *Booking) OwnedBy(userID string) bool {
	return userID != "" && b.UserID == userID
}

// Duration returns the booked length.
func (b *Booking) Duration() time.Duration {
	return b.EndAt.Sub(b.StartAt)
}

// BookingCancellation records who cancelled or rejected a booking and why.
// CancelledBy is empty when the system acted on its own.
type BookingCancellation struct {
	ID          int64     `json:"id"`
	BookingID   int64     `json:"booking_id"`
	CancelledBy string    `json:"cancelled_by,omitempty"`
	Reason      string    `json:"reason,omitempty"`
	CancelledAt time.Time `json:"cancelled_at"`
}

// Guest is a tenant-scoped claimant without an account.
type Guest struct {
	ID        int64     `json:"id"`
	TenantID  int64     `json:"tenant_id"`
	Email     string    `json:"email"`
	FirstName string    `json:"first_name"`
	LastName  string    `json:"last_name"`
	Phone     string    `json:"phone,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// BookingFilter narrows booking listings.
type BookingFilter struct {
	TenantID   int64
	BranchID   int64
	ResourceID int64
	UserID     string
	Status     BookingStatus
	From       time.Time
	To         time.Time
	Limit      int
	Offset     int
}

// EventKind names a lifecycle event delivered to notification sinks.
type EventKind string

const (
	EventCreatedPending   EventKind = "created_pending"
	EventCreatedConfirmed EventKind = "created_auto_confirmed"
	EventConfirmed        EventKind = "confirmed"
	EventRejected         EventKind = "rejected"
	EventCancelled        EventKind = "cancelled"
)

// ForAdmins reports whether branch administrators are told about the event.
func (k EventKind) ForAdmins() bool {
	return k == EventCreatedPending || k == EventCreatedConfirmed
}

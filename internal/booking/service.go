// Package booking drives bookings through creation, approval, rejection and cancellation.
package booking

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"courtbook/internal/database"
	"courtbook/internal/metrics"
	"courtbook/internal/models"
	"courtbook/internal/pricing"
)

// CascadeReason is recorded on pending bookings rejected because an overlapping one was confirmed.
const CascadeReason = "another booking was confirmed for this slot"

// Store is the booking system of record.
type Store interface {
	GetResource(ctx context.Context, id int64) (*models.Resource, *models.Branch, error)
	ListDiscounts(ctx context.Context, tenantID int64) ([]models.Discount, error)
	HasPendingOverlap(ctx context.Context, userID string, resourceID int64, start, end time.Time) (bool, error)
	CreateBooking(ctx context.Context, b *models.Booking, cascadeReason string) ([]int64, error)
	CreateGuestBooking(ctx context.Context, b *models.Booking, guest models.Guest, cascadeReason string) ([]int64, error)
	GetBooking(ctx context.Context, id int64) (*models.Booking, error)
	TransitionBooking(ctx context.Context, id int64, from []models.BookingStatus, to models.BookingStatus, c models.BookingCancellation) (*models.Booking, error)
	ConfirmBooking(ctx context.Context, id int64, confirmedBy, cascadeReason string) (*models.Booking, []int64, error)
	ListBookings(ctx context.Context, f models.BookingFilter) ([]models.Booking, error)
}

// Oracle decides whether an actor may administer a branch or a whole tenant.
type Oracle interface {
	CanActOnBranch(ctx context.Context, actor *models.Actor, tenantID, branchID int64) bool
	CanActOnTenant(ctx context.Context, actor *models.Actor, tenantID int64) bool
}

// Notifier receives lifecycle events after commit. Implementations must not block.
type Notifier interface {
	NotifyBookingEvent(ctx context.Context, b models.Booking, kind models.EventKind)
}

// Clock supplies the current time.
type Clock interface {
	Now() time.Time
}

// ClockFunc adapts a function to Clock.
type ClockFunc func() time.Time

func (f ClockFunc) Now() time.Time { return f() }

// Config tunes the lifecycle controller.
type Config struct {
	MaxReasonLength int
	Clock           Clock
}

// Service is the booking lifecycle controller.
type Service struct {
	store     Store
	oracle    Oracle
	notifier  Notifier
	clock     Clock
	maxReason int
	tracer    trace.Tracer
	logger    zerolog.Logger
}

// NewService wires the controller. A nil notifier discards events.
func NewService(cfg Config, store Store, oracle Oracle, notifier Notifier, logger *zerolog.Logger) *Service {
	if cfg.Clock == nil {
		cfg.Clock = ClockFunc(time.Now)
	}
	if cfg.MaxReasonLength <= 0 {
		cfg.MaxReasonLength = 500
	}
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &Service{
		store:     store,
		oracle:    oracle,
		notifier:  notifier,
		clock:     cfg.Clock,
		maxReason: cfg.MaxReasonLength,
		tracer:    otel.Tracer("courtbook/booking"),
		logger:    logger.With().Str("component", "booking").Logger(),
	}
}

// CreateRequest is the input of CreateBooking.
type CreateRequest struct {
	ResourceID int64
	Start      time.Time
	End        time.Time
	Source     models.Source
	Notes      string
	Guest      *GuestContact
	PromoCode  string
	Actor      *models.Actor
}

// CreateBooking validates the window, resolves claimant and price and reserves the slot.
// The booking starts pending when the branch requires approval and confirmed otherwise.
func (s *Service) CreateBooking(ctx context.Context, req CreateRequest) (b *models.Booking, err error) {
	ctx, span, done := s.begin(ctx, "create", attribute.Int64("resource_id", req.ResourceID))
	defer func() { done(err) }()

	req.Start, req.End = normalizeWindow(req.Start, req.End)
	if err := ValidateSlot(req.Start, req.End, s.clock.Now()); err != nil {
		return nil, err
	}
	source := req.Source
	if source == "" {
		source = models.SourceWeb
	}
	if !source.Valid() {
		return nil, fmt.Errorf("%w: unknown source %q", ErrInvalidInput, req.Source)
	}

	resource, branch, err := s.store.GetResource(ctx, req.ResourceID)
	if errors.Is(err, database.ErrNotFound) {
		return nil, ErrResourceNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load resource %d: %w", req.ResourceID, err)
	}
	if !resource.IsActive {
		return nil, ErrResourceInactive
	}
	if !branch.IsActive {
		return nil, ErrBranchInactive
	}
	span.SetAttributes(attribute.Int64("branch_id", branch.ID), attribute.Int64("tenant_id", branch.TenantID))

	if err := checkClaimant(req.Actor, req.Guest); err != nil {
		return nil, err
	}
	if req.Actor.Authenticated() {
		dup, err := s.store.HasPendingOverlap(ctx, req.Actor.UserID, resource.ID, req.Start, req.End)
		if err != nil {
			return nil, err
		}
		if dup {
			return nil, ErrConflict
		}
	}

	quote, err := s.quote(ctx, resource, branch, req.Start, req.End, req.PromoCode)
	if err != nil {
		return nil, err
	}

	claimant, err := ResolveClaimant(req.Actor, req.Guest, branch.TenantID)
	if err != nil {
		return nil, err
	}

	status := models.StatusConfirmed
	if branch.RequiresApproval {
		status = models.StatusPending
	}
	currency := resource.Currency
	if currency == "" {
		currency = models.DefaultCurrency
	}

	b = &models.Booking{
		TenantID:      branch.TenantID,
		BranchID:      branch.ID,
		ResourceID:    resource.ID,
		UserID:        claimant.UserID,
		ContactEmail:  claimant.Email,
		StartAt:       req.Start,
		EndAt:         req.End,
		Status:        status,
		Source:        source,
		OriginalPrice: quote.Original,
		TotalPrice:    quote.Final,
		Currency:      currency,
		Notes:         strings.TrimSpace(req.Notes),
	}
	if quote.Discount != nil {
		b.DiscountID = quote.Discount.ID
	}

	var rejected []int64
	if claimant.Guest != nil {
		rejected, err = s.store.CreateGuestBooking(ctx, b, *claimant.Guest, CascadeReason)
	} else {
		rejected, err = s.store.CreateBooking(ctx, b, CascadeReason)
	}
	if errors.Is(err, database.ErrSlotTaken) {
		return nil, ErrSlotTaken
	}
	if err != nil {
		return nil, fmt.Errorf("store booking: %w", err)
	}

	metrics.IncBookingCreated(string(status))
	metrics.AddCascadeRejected(len(rejected))
	s.logger.Info().
		Int64("booking_id", b.ID).
		Int64("resource_id", b.ResourceID).
		Int64("branch_id", b.BranchID).
		Str("status", string(b.Status)).
		Int("cascade_rejected", len(rejected)).
		Msg("Booking created")

	kind := models.EventCreatedConfirmed
	if status == models.StatusPending {
		kind = models.EventCreatedPending
	}
	s.notify(ctx, b, kind)
	return b, nil
}

// CancelBooking cancels a pending or confirmed booking on behalf of its claimant or a branch admin.
func (s *Service) CancelBooking(ctx context.Context, id int64, actor *models.Actor, reason string) (b *models.Booking, err error) {
	ctx, _, done := s.begin(ctx, "cancel", attribute.Int64("booking_id", id))
	defer func() { done(err) }()

	reason = strings.TrimSpace(reason)
	if len(reason) > s.maxReason {
		return nil, fmt.Errorf("%w: reason longer than %d characters", ErrInvalidInput, s.maxReason)
	}
	if !actor.Authenticated() {
		return nil, ErrUnauthenticated
	}

	current, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if !current.OwnedBy(actor.UserID) && !s.oracle.CanActOnBranch(ctx, actor, current.TenantID, current.BranchID) {
		return nil, ErrForbidden
	}
	if current.Status.IsTerminal() {
		return nil, ErrAlreadyTerminal
	}

	b, err = s.store.TransitionBooking(ctx, id, sourcesOf(models.StatusCancelled), models.StatusCancelled,
		models.BookingCancellation{CancelledBy: actor.UserID, Reason: reason})
	switch {
	case errors.Is(err, database.ErrStaleStatus):
		return nil, ErrAlreadyTerminal
	case errors.Is(err, database.ErrNotFound):
		return nil, ErrNotFound
	case err != nil:
		return nil, fmt.Errorf("cancel booking %d: %w", id, err)
	}

	metrics.IncBookingCancelled()
	s.logger.Info().
		Int64("booking_id", id).
		Str("from", string(current.Status)).
		Bool("by_owner", current.OwnedBy(actor.UserID)).
		Msg("Booking cancelled")

	s.notify(ctx, b, models.EventCancelled)
	return b, nil
}

// ConfirmBooking confirms a pending booking and rejects every pending booking overlapping it,
// all in one transaction. It returns the confirmed booking and the number of rejected ones.
func (s *Service) ConfirmBooking(ctx context.Context, id int64, actor *models.Actor) (b *models.Booking, cascaded int, err error) {
	ctx, span, done := s.begin(ctx, "confirm", attribute.Int64("booking_id", id))
	defer func() { done(err) }()

	current, err := s.authorizeAdmin(ctx, id, actor)
	if err != nil {
		return nil, 0, err
	}
	if !CanTransition(current.Status, models.StatusConfirmed) {
		return nil, 0, ErrInvalidTransition
	}

	b, rejected, err := s.store.ConfirmBooking(ctx, id, actor.UserID, CascadeReason)
	switch {
	case errors.Is(err, database.ErrStaleStatus):
		return nil, 0, ErrInvalidTransition
	case errors.Is(err, database.ErrNotFound):
		return nil, 0, ErrNotFound
	case errors.Is(err, database.ErrSlotTaken):
		return nil, 0, ErrSlotTaken
	case err != nil:
		return nil, 0, fmt.Errorf("confirm booking %d: %w", id, err)
	}
	span.SetAttributes(attribute.Int("cascade_rejected", len(rejected)))

	metrics.IncAdminDecision("confirmed")
	metrics.AddCascadeRejected(len(rejected))
	s.logger.Info().
		Int64("booking_id", id).
		Int64("resource_id", b.ResourceID).
		Ints64("cascade_rejected", rejected).
		Msg("Booking confirmed")

	s.notify(ctx, b, models.EventConfirmed)
	return b, len(rejected), nil
}

// RejectBooking rejects a pending booking with a mandatory reason.
func (s *Service) RejectBooking(ctx context.Context, id int64, actor *models.Actor, reason string) (b *models.Booking, err error) {
	ctx, _, done := s.begin(ctx, "reject", attribute.Int64("booking_id", id))
	defer func() { done(err) }()

	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, ErrMissingReason
	}
	if len(reason) > s.maxReason {
		return nil, fmt.Errorf("%w: reason longer than %d characters", ErrInvalidInput, s.maxReason)
	}

	current, err := s.authorizeAdmin(ctx, id, actor)
	if err != nil {
		return nil, err
	}
	if !CanTransition(current.Status, models.StatusRejected) {
		return nil, ErrInvalidTransition
	}

	b, err = s.store.TransitionBooking(ctx, id, sourcesOf(models.StatusRejected), models.StatusRejected,
		models.BookingCancellation{CancelledBy: actor.UserID, Reason: reason})
	switch {
	case errors.Is(err, database.ErrStaleStatus):
		return nil, ErrInvalidTransition
	case errors.Is(err, database.ErrNotFound):
		return nil, ErrNotFound
	case err != nil:
		return nil, fmt.Errorf("reject booking %d: %w", id, err)
	}

	metrics.IncAdminDecision("rejected")
	s.logger.Info().Int64("booking_id", id).Msg("Booking rejected")

	s.notify(ctx, b, models.EventRejected)
	return b, nil
}

// GetBooking returns a booking visible to its claimant or a branch admin.
func (s *Service) GetBooking(ctx context.Context, id int64, actor *models.Actor) (*models.Booking, error) {
	if !actor.Authenticated() {
		return nil, ErrUnauthenticated
	}
	b, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if !b.OwnedBy(actor.UserID) && !s.oracle.CanActOnBranch(ctx, actor, b.TenantID, b.BranchID) {
		return nil, ErrForbidden
	}
	return b, nil
}

// Page selects a slice of a listing. Page numbers start at 1.
type Page struct {
	Page  int
	Limit int
}

func (p Page) normalize(defaultLimit int) (limit, offset int) {
	limit = p.Limit
	if limit <= 0 {
		limit = defaultLimit
	}
	if limit > 100 {
		limit = 100
	}
	page := p.Page
	if page < 1 {
		page = 1
	}
	return limit, (page - 1) * limit
}

// ListMyBookings returns the actor's own bookings, latest first.
func (s *Service) ListMyBookings(ctx context.Context, actor *models.Actor, status models.BookingStatus, page Page) ([]models.Booking, error) {
	if !actor.Authenticated() {
		return nil, ErrUnauthenticated
	}
	if status != "" && !status.Valid() {
		return nil, fmt.Errorf("%w: unknown status %q", ErrInvalidInput, status)
	}
	limit, offset := page.normalize(10)
	return s.store.ListBookings(ctx, models.BookingFilter{
		UserID: actor.UserID,
		Status: status,
		Limit:  limit,
		Offset: offset,
	})
}

// BranchQuery filters a branch's bookings. To is an inclusive calendar day in UTC.
type BranchQuery struct {
	TenantID   int64
	BranchID   int64
	ResourceID int64
	Status     models.BookingStatus
	From       time.Time
	To         time.Time
	Page       Page
}

// ListBranchBookings returns a branch's bookings for its admins, latest first.
// Without a branch it lists the whole tenant, which only tenant-wide admins may do.
func (s *Service) ListBranchBookings(ctx context.Context, actor *models.Actor, q BranchQuery) ([]models.Booking, error) {
	if !actor.Authenticated() {
		return nil, ErrUnauthenticated
	}
	var allowed bool
	if q.BranchID == 0 {
		allowed = s.oracle.CanActOnTenant(ctx, actor, q.TenantID)
	} else {
		allowed = s.oracle.CanActOnBranch(ctx, actor, q.TenantID, q.BranchID)
	}
	if !allowed {
		return nil, ErrForbidden
	}
	if q.Status != "" && !q.Status.Valid() {
		return nil, fmt.Errorf("%w: unknown status %q", ErrInvalidInput, q.Status)
	}
	limit, offset := q.Page.normalize(20)
	f := models.BookingFilter{
		TenantID:   q.TenantID,
		BranchID:   q.BranchID,
		ResourceID: q.ResourceID,
		Status:     q.Status,
		From:       q.From,
		Limit:      limit,
		Offset:     offset,
	}
	if !q.To.IsZero() {
		day := q.To.UTC()
		f.To = time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, time.UTC).AddDate(0, 0, 1)
	}
	return s.store.ListBookings(ctx, f)
}

// PreviewPrice quotes a booking without reserving anything. The window and the resource
// are checked the same way CreateBooking checks them.
func (s *Service) PreviewPrice(ctx context.Context, resourceID int64, start, end time.Time, promoCode string) (pricing.Quote, error) {
	start, end = normalizeWindow(start, end)
	if err := ValidateSlot(start, end, s.clock.Now()); err != nil {
		return pricing.Quote{}, err
	}
	resource, branch, err := s.store.GetResource(ctx, resourceID)
	if errors.Is(err, database.ErrNotFound) {
		return pricing.Quote{}, ErrResourceNotFound
	}
	if err != nil {
		return pricing.Quote{}, fmt.Errorf("load resource %d: %w", resourceID, err)
	}
	if !resource.IsActive {
		return pricing.Quote{}, ErrResourceInactive
	}
	if !branch.IsActive {
		return pricing.Quote{}, ErrBranchInactive
	}
	return s.quote(ctx, resource, branch, start, end, promoCode)
}

func (s *Service) quote(ctx context.Context, resource *models.Resource, branch *models.Branch, start, end time.Time, code string) (pricing.Quote, error) {
	discounts, err := s.store.ListDiscounts(ctx, branch.TenantID)
	if err != nil {
		return pricing.Quote{}, fmt.Errorf("load discounts: %w", err)
	}
	return pricing.Calculate(resource, pricing.Scope{
		TenantID:   branch.TenantID,
		BranchID:   branch.ID,
		ResourceID: resource.ID,
		Start:      start,
		Location:   branch.Location(),
	}, end, code, discounts)
}

func (s *Service) load(ctx context.Context, id int64) (*models.Booking, error) {
	b, err := s.store.GetBooking(ctx, id)
	if errors.Is(err, database.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load booking %d: %w", id, err)
	}
	return b, nil
}

func (s *Service) authorizeAdmin(ctx context.Context, id int64, actor *models.Actor) (*models.Booking, error) {
	if !actor.Authenticated() {
		return nil, ErrUnauthenticated
	}
	b, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if !s.oracle.CanActOnBranch(ctx, actor, b.TenantID, b.BranchID) {
		return nil, ErrForbidden
	}
	return b, nil
}

func (s *Service) notify(ctx context.Context, b *models.Booking, kind models.EventKind) {
	if s.notifier == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error().Interface("panic", r).Int64("booking_id", b.ID).Str("event", string(kind)).
				Msg("Notifier panicked")
		}
	}()
	s.notifier.NotifyBookingEvent(context.WithoutCancel(ctx), *b, kind)
}

// begin starts a span and returns a completion func recording duration, failures and span status.
func (s *Service) begin(ctx context.Context, op string, attrs ...attribute.KeyValue) (context.Context, trace.Span, func(error)) {
	start := time.Now()
	ctx, span := s.tracer.Start(ctx, "booking."+op, trace.WithAttributes(attrs...))
	return ctx, span, func(err error) {
		metrics.ObserveOperation(op, start)
		if err != nil {
			kind := Kind(err)
			metrics.IncOperationFailed(op, kind)
			span.SetAttributes(attribute.String("error.kind", kind))
			if kind == "internal" {
				span.RecordError(err)
				span.SetStatus(codes.Error, err.Error())
				s.logger.Error().Err(err).Str("operation", op).Msg("Booking operation failed")
			}
		}
		span.End()
	}
}

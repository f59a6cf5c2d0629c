package api

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"courtbook/internal/booking"
	"courtbook/internal/models"
	"courtbook/internal/pricing"
)

// BookingService is the lifecycle controller exposed over HTTP.
type BookingService interface {
	CreateBooking(ctx context.Context, req booking.CreateRequest) (*models.Booking, error)
	CancelBooking(ctx context.Context, id int64, actor *models.Actor, reason string) (*models.Booking, error)
	ConfirmBooking(ctx context.Context, id int64, actor *models.Actor) (*models.Booking, int, error)
	RejectBooking(ctx context.Context, id int64, actor *models.Actor, reason string) (*models.Booking, error)
	GetBooking(ctx context.Context, id int64, actor *models.Actor) (*models.Booking, error)
	ListMyBookings(ctx context.Context, actor *models.Actor, status models.BookingStatus, page booking.Page) ([]models.Booking, error)
	ListBranchBookings(ctx context.Context, actor *models.Actor, q booking.BranchQuery) ([]models.Booking, error)
	PreviewPrice(ctx context.Context, resourceID int64, start, end time.Time, promoCode string) (pricing.Quote, error)
}

// Exporter produces the monthly spreadsheet for the month containing the given time.
type Exporter interface {
	Export(ctx context.Context, month time.Time) (string, error)
}

// BookingHandler serves the booking endpoints.
type BookingHandler struct {
	svc      BookingService
	exporter Exporter
	logger   zerolog.Logger
}

func NewBookingHandler(svc BookingService, exporter Exporter, logger zerolog.Logger) *BookingHandler {
	return &BookingHandler{
		svc:      svc,
		exporter: exporter,
		logger:   logger.With().Str("component", "api").Logger(),
	}
}

type dataResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data"`
}

func ok(c *gin.Context, code int, data interface{}) {
	c.JSON(code, dataResponse{Success: true, Data: data})
}

type createBookingRequest struct {
	ResourceID int64                 `json:"resource_id" binding:"required"`
	StartAt    time.Time             `json:"start_at" binding:"required"`
	EndAt      time.Time             `json:"end_at" binding:"required"`
	Source     models.Source         `json:"source"`
	Notes      string                `json:"notes"`
	PromoCode  string                `json:"promo_code"`
	Guest      *booking.GuestContact `json:"guest"`
}

// Create handles POST /v1/bookings for registered users and guests.
func (h *BookingHandler) Create(c *gin.Context) {
	var in createBookingRequest
	if err := c.ShouldBindJSON(&in); err != nil {
		abortError(c, http.StatusBadRequest, "invalid_input", err.Error())
		return
	}

	b, err := h.svc.CreateBooking(c.Request.Context(), booking.CreateRequest{
		ResourceID: in.ResourceID,
		Start:      in.StartAt,
		End:        in.EndAt,
		Source:     in.Source,
		Notes:      in.Notes,
		Guest:      in.Guest,
		PromoCode:  in.PromoCode,
		Actor:      actorFrom(c),
	})
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	ok(c, http.StatusCreated, b)
}

// Get handles GET /v1/bookings/:id.
func (h *BookingHandler) Get(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		abortError(c, http.StatusBadRequest, "invalid_input", err.Error())
		return
	}
	b, err := h.svc.GetBooking(c.Request.Context(), id, actorFrom(c))
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	ok(c, http.StatusOK, b)
}

type reasonRequest struct {
	Reason string `json:"reason"`
}

// Cancel handles POST /v1/bookings/:id/cancel.
func (h *BookingHandler) Cancel(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		abortError(c, http.StatusBadRequest, "invalid_input", err.Error())
		return
	}
	var in reasonRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&in); err != nil {
			abortError(c, http.StatusBadRequest, "invalid_input", err.Error())
			return
		}
	}
	b, err := h.svc.CancelBooking(c.Request.Context(), id, actorFrom(c), in.Reason)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	ok(c, http.StatusOK, b)
}

type confirmResponse struct {
	Booking         *models.Booking `json:"booking"`
	CascadeRejected int             `json:"cascade_rejected"`
}

// Confirm handles PUT /v1/bookings/:id/confirm.
func (h *BookingHandler) Confirm(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		abortError(c, http.StatusBadRequest, "invalid_input", err.Error())
		return
	}
	b, cascaded, err := h.svc.ConfirmBooking(c.Request.Context(), id, actorFrom(c))
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	ok(c, http.StatusOK, confirmResponse{Booking: b, CascadeRejected: cascaded})
}

// Reject handles PUT /v1/bookings/:id/reject.
func (h *BookingHandler) Reject(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		abortError(c, http.StatusBadRequest, "invalid_input", err.Error())
		return
	}
	var in reasonRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&in); err != nil {
			abortError(c, http.StatusBadRequest, "invalid_input", err.Error())
			return
		}
	}
	b, err := h.svc.RejectBooking(c.Request.Context(), id, actorFrom(c), in.Reason)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	ok(c, http.StatusOK, b)
}

// ListMine handles GET /v1/me/bookings?status=&page=&limit=.
func (h *BookingHandler) ListMine(c *gin.Context) {
	page, err := pageQuery(c)
	if err != nil {
		abortError(c, http.StatusBadRequest, "invalid_input", err.Error())
		return
	}
	list, err := h.svc.ListMyBookings(c.Request.Context(), actorFrom(c), models.BookingStatus(c.Query("status")), page)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	if list == nil {
		list = []models.Booking{}
	}
	ok(c, http.StatusOK, list)
}

// ListBranch handles GET /v1/tenants/:tenant_id/bookings?branch_id=&resource_id=&status=&from=&to=.
// from and to are YYYY-MM-DD; to is inclusive.
func (h *BookingHandler) ListBranch(c *gin.Context) {
	var q booking.BranchQuery
	var err error
	if q.TenantID, err = pathID(c, "tenant_id"); err != nil {
		abortError(c, http.StatusBadRequest, "invalid_input", err.Error())
		return
	}
	if q.BranchID, err = queryInt(c, "branch_id"); err != nil {
		abortError(c, http.StatusBadRequest, "invalid_input", err.Error())
		return
	}
	if q.ResourceID, err = queryInt(c, "resource_id"); err != nil {
		abortError(c, http.StatusBadRequest, "invalid_input", err.Error())
		return
	}
	if q.From, err = queryDate(c, "from"); err != nil {
		abortError(c, http.StatusBadRequest, "invalid_input", err.Error())
		return
	}
	if q.To, err = queryDate(c, "to"); err != nil {
		abortError(c, http.StatusBadRequest, "invalid_input", err.Error())
		return
	}
	if q.Page, err = pageQuery(c); err != nil {
		abortError(c, http.StatusBadRequest, "invalid_input", err.Error())
		return
	}
	q.Status = models.BookingStatus(c.Query("status"))

	list, err := h.svc.ListBranchBookings(c.Request.Context(), actorFrom(c), q)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	if list == nil {
		list = []models.Booking{}
	}
	ok(c, http.StatusOK, list)
}

type discountView struct {
	ID    int64               `json:"id"`
	Name  string              `json:"name"`
	Type  models.DiscountType `json:"type"`
	Value string              `json:"value"`
}

type quoteResponse struct {
	OriginalPrice string        `json:"original_price"`
	FinalPrice    string        `json:"final_price"`
	Discount      *discountView `json:"discount,omitempty"`
}

// Price handles GET /v1/resources/:id/price?start=&end=&code= with RFC3339 times.
func (h *BookingHandler) Price(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		abortError(c, http.StatusBadRequest, "invalid_input", err.Error())
		return
	}
	start, err := time.Parse(time.RFC3339, c.Query("start"))
	if err != nil {
		abortError(c, http.StatusBadRequest, "invalid_input", "start must be RFC3339")
		return
	}
	end, err := time.Parse(time.RFC3339, c.Query("end"))
	if err != nil {
		abortError(c, http.StatusBadRequest, "invalid_input", "end must be RFC3339")
		return
	}

	q, err := h.svc.PreviewPrice(c.Request.Context(), id, start, end, c.Query("code"))
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	resp := quoteResponse{
		OriginalPrice: q.Original.StringFixed(2),
		FinalPrice:    q.Final.StringFixed(2),
	}
	if q.Discount != nil {
		resp.Discount = &discountView{
			ID:    q.Discount.ID,
			Name:  q.Discount.Name,
			Type:  q.Discount.Type,
			Value: q.Discount.Value.String(),
		}
	}
	ok(c, http.StatusOK, resp)
}

// Export handles POST /v1/admin/exports?month=YYYY-MM. Super admins only.
func (h *BookingHandler) Export(c *gin.Context) {
	actor := actorFrom(c)
	if !actor.Has(models.RoleSuperAdmin) {
		abortError(c, http.StatusForbidden, "forbidden", publicMessages["forbidden"])
		return
	}
	if h.exporter == nil {
		abortError(c, http.StatusServiceUnavailable, "unavailable", "Export is not configured")
		return
	}

	month := time.Now().UTC().AddDate(0, -1, 0)
	if v := c.Query("month"); v != "" {
		m, err := time.Parse("2006-01", v)
		if err != nil {
			abortError(c, http.StatusBadRequest, "invalid_input", "month must be YYYY-MM")
			return
		}
		month = m
	}

	file, err := h.exporter.Export(c.Request.Context(), month)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	ok(c, http.StatusAccepted, gin.H{"file": file})
}

func pathID(c *gin.Context, name string) (int64, error) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: %s", errBadID, name)
	}
	return id, nil
}

func queryInt(c *gin.Context, name string) (int64, error) {
	v := c.Query(name)
	if v == "" {
		return 0, nil
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%s must be a positive integer", name)
	}
	return n, nil
}

func queryDate(c *gin.Context, name string) (time.Time, error) {
	v := c.Query(name)
	if v == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.DateOnly, v)
	if err != nil {
		return time.Time{}, fmt.Errorf("%s must be YYYY-MM-DD", name)
	}
	return t, nil
}

func pageQuery(c *gin.Context) (booking.Page, error) {
	page, err := queryInt(c, "page")
	if err != nil {
		return booking.Page{}, err
	}
	limit, err := queryInt(c, "limit")
	if err != nil {
		return booking.Page{}, err
	}
	return booking.Page{Page: int(page), Limit: int(limit)}, nil
}

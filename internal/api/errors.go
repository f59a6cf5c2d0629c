package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"courtbook/internal/booking"
)

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Success bool   `json:"success"`
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

var kindStatus = map[string]int{
	"invalid_range":      http.StatusBadRequest,
	"invalid_input":      http.StatusBadRequest,
	"missing_claimant":   http.StatusBadRequest,
	"missing_reason":     http.StatusBadRequest,
	"invalid_promo_code": http.StatusBadRequest,
	"unauthenticated":    http.StatusUnauthorized,
	"forbidden":          http.StatusForbidden,
	"resource_not_found": http.StatusNotFound,
	"not_found":          http.StatusNotFound,
	"conflict":           http.StatusConflict,
	"slot_taken":         http.StatusConflict,
	"already_terminal":   http.StatusConflict,
	"invalid_transition": http.StatusConflict,
	"resource_inactive":  http.StatusUnprocessableEntity,
	"branch_inactive":    http.StatusUnprocessableEntity,
}

// statusFor maps a domain error kind to its HTTP status.
func statusFor(kind string) int {
	if code, ok := kindStatus[kind]; ok {
		return code
	}
	return http.StatusInternalServerError
}

var publicMessages = map[string]string{
	"slot_taken":         "The selected time slot is no longer available",
	"conflict":           "You already have a pending request for this time slot",
	"already_terminal":   "Booking can no longer be changed",
	"invalid_transition": "Booking status does not allow this action",
	"forbidden":          "You are not allowed to perform this action",
	"not_found":          "Booking not found",
	"resource_not_found": "Resource not found",
	"invalid_promo_code": "Invalid promo code",
}

func writeError(c *gin.Context, logger zerolog.Logger, err error) {
	kind := booking.Kind(err)
	code := statusFor(kind)

	msg := err.Error()
	if m, ok := publicMessages[kind]; ok {
		msg = m
	}
	if code == http.StatusInternalServerError {
		logger.Error().Err(err).
			Str("request_id", c.GetString(requestIDKey)).
			Str("path", c.FullPath()).
			Msg("request failed")
		msg = "Internal server error"
	}
	abortError(c, code, kind, msg)
}

func abortError(c *gin.Context, code int, kind, message string) {
	c.AbortWithStatusJSON(code, ErrorResponse{Kind: kind, Message: message})
}

var errBadID = errors.New("invalid id")

package http

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/example/gym-scheduler/internal/application"
)

type bookingService interface {
	BookClass(ctx context.Context, token, patternID string) (application.Booking, error)
	CancelBooking(ctx context.Context, token, bookingID string) (application.Booking, error)
	ListMyBookings(ctx context.Context, token string) ([]application.Booking, error)
}

// BookingHandler serves reservations for the token holder.
type BookingHandler struct {
	service   bookingService
	responder responder
	logger    *slog.Logger
}

// NewBookingHandler constructs a BookingHandler.
func NewBookingHandler(service bookingService, logger *slog.Logger) *BookingHandler {
	base := defaultLogger(logger)
	return &BookingHandler{service: service, responder: newResponder(base), logger: base}
}

func (h *BookingHandler) log(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return handlerLogger(ctx, h.logger, "BookingHandler", operation, attrs...)
}

func (h *BookingHandler) requireToken(w http.ResponseWriter, r *http.Request) (string, bool) {
	token := extractTokenFromRequest(r)
	if token == "" {
		h.responder.writeError(r.Context(), w, http.StatusUnauthorized, codeAuthInvalid, errMissingToken)
		return "", false
	}
	return token, true
}

// Create handles POST /bookings.
func (h *BookingHandler) Create(w http.ResponseWriter, r *http.Request) {
	token, ok := h.requireToken(w, r)
	if !ok {
		return
	}

	var req bookingRequest
	if err := decodeJSON(r, &req); err != nil {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, codeBadRequest, err)
		return
	}

	patternID := strings.TrimSpace(req.PatternID)
	logger := h.log(r.Context(), "Create", "pattern_id", patternID)
	booking, err := h.service.BookClass(r.Context(), token, patternID)
	if err != nil {
		logger.WarnContext(r.Context(), "reservation failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	logger.InfoContext(r.Context(), "seat reserved", "booking_id", booking.ID, "member_id", booking.MemberID)
	h.responder.writeJSON(r.Context(), w, http.StatusCreated, bookingResponse{Booking: toBookingDTO(booking)})
}

// Cancel handles POST /bookings/:id/cancel.
func (h *BookingHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	token, ok := h.requireToken(w, r)
	if !ok {
		return
	}

	id := pathParam(r, "id")
	if id == "" {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, codeBadRequest, errMissingResource)
		return
	}

	logger := h.log(r.Context(), "Cancel", "booking_id", id)
	booking, err := h.service.CancelBooking(r.Context(), token, id)
	if err != nil {
		logger.WarnContext(r.Context(), "cancellation failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	logger.InfoContext(r.Context(), "booking cancelled")
	h.responder.writeJSON(r.Context(), w, http.StatusOK, bookingResponse{Booking: toBookingDTO(booking)})
}

// List handles GET /bookings.
func (h *BookingHandler) List(w http.ResponseWriter, r *http.Request) {
	token, ok := h.requireToken(w, r)
	if !ok {
		return
	}

	bookings, err := h.service.ListMyBookings(r.Context(), token)
	if err != nil {
		h.log(r.Context(), "List").WarnContext(r.Context(), "booking listing failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	dtos := make([]bookingDTO, 0, len(bookings))
	for _, booking := range bookings {
		dtos = append(dtos, toBookingDTO(booking))
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, bookingListResponse{Bookings: dtos})
}

type bookingRequest struct {
	PatternID string `json:"pattern_id"`
}

type bookingDTO struct {
	ID              string  `json:"id"`
	MemberID        string  `json:"member_id"`
	PatternID       string  `json:"pattern_id"`
	ClassID         string  `json:"class_id"`
	ClassName       string  `json:"class_name"`
	Weekday         string  `json:"weekday"`
	StartTime       string  `json:"start_time"`
	OccurrenceStart string  `json:"occurrence_start"`
	Status          string  `json:"status"`
	CreatedAt       string  `json:"created_at"`
	CancelledAt     *string `json:"cancelled_at,omitempty"`
}

type bookingResponse struct {
	Booking bookingDTO `json:"booking"`
}

type bookingListResponse struct {
	Bookings []bookingDTO `json:"bookings"`
}

func toBookingDTO(booking application.Booking) bookingDTO {
	dto := bookingDTO{
		ID:              booking.ID,
		MemberID:        booking.MemberID,
		PatternID:       booking.PatternID,
		ClassID:         booking.ClassID,
		ClassName:       booking.ClassName,
		Weekday:         strings.ToLower(booking.Weekday.String()),
		StartTime:       booking.StartTime,
		OccurrenceStart: booking.OccurrenceStart.Format(time.RFC3339),
		Status:          string(booking.Status),
		CreatedAt:       booking.CreatedAt.UTC().Format(time.RFC3339),
	}
	if booking.CancelledAt != nil {
		formatted := booking.CancelledAt.UTC().Format(time.RFC3339)
		dto.CancelledAt = &formatted
	}
	return dto
}

package http

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/example/gym-scheduler/internal/application"
	"github.com/example/gym-scheduler/internal/logging"
)

// Error codes carried in the error_code field of error responses.
const (
	codeBadRequest       = "BAD_REQUEST"
	codeValidation       = "VALIDATION_FAILED"
	codeNotFound         = "NOT_FOUND"
	codeConflict         = "CONFLICT"
	codeCapacityExceeded = "CAPACITY_EXCEEDED"
	codeDuplicateBooking = "DUPLICATE_BOOKING"
	codeAlreadyCancelled = "ALREADY_CANCELLED"
	codeForbidden        = "AUTH_FORBIDDEN"
	codeAuthExpired      = "AUTH_EXPIRED"
	codeAuthInvalid      = "AUTH_INVALID"
	codeMethodNotAllowed = "METHOD_NOT_ALLOWED"
	codeInternal         = "INTERNAL"
)

var (
	errBadRequestBody  = errors.New("request body is not valid JSON")
	errMissingToken    = errors.New("a bearer access token is required")
	errMissingResource = errors.New("resource identifier is required")
)

type errorResponse struct {
	ErrorCode string            `json:"error_code"`
	Message   string            `json:"message"`
	Errors    map[string]string `json:"errors,omitempty"`
}

type responder struct {
	logger *slog.Logger
}

func newResponder(logger *slog.Logger) responder {
	if logger == nil {
		logger = slog.Default()
	}
	return responder{logger: logger}
}

func (r responder) writeJSON(ctx context.Context, w http.ResponseWriter, status int, payload any) {
	if w == nil {
		return
	}

	if status == http.StatusNoContent || payload == nil {
		w.WriteHeader(status)
		return
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		r.loggerFor(ctx).ErrorContext(ctx, "failed to encode response", "error", err)
	}
}

func (r responder) writeError(ctx context.Context, w http.ResponseWriter, status int, code string, err error) {
	message := http.StatusText(status)
	if err != nil {
		if msg := strings.TrimSpace(err.Error()); msg != "" {
			message = msg
		}
	}
	r.writeJSON(ctx, w, status, errorResponse{ErrorCode: code, Message: message})
}

func (r responder) writeValidation(ctx context.Context, w http.ResponseWriter, vErr *application.ValidationError) {
	r.writeJSON(ctx, w, http.StatusUnprocessableEntity, errorResponse{
		ErrorCode: codeValidation,
		Message:   "the request contains invalid fields",
		Errors:    vErr.FieldErrors,
	})
}

// handleServiceError maps application errors onto status codes and error codes.
func (r responder) handleServiceError(ctx context.Context, w http.ResponseWriter, err error) {
	if err == nil {
		r.writeError(ctx, w, http.StatusInternalServerError, codeInternal, errors.New("unknown error"))
		return
	}

	var vErr *application.ValidationError
	switch {
	case errors.As(err, &vErr):
		r.writeValidation(ctx, w, vErr)
	case errors.Is(err, application.ErrNotFound):
		r.writeError(ctx, w, http.StatusNotFound, codeNotFound, errors.New("the requested resource was not found"))
	case errors.Is(err, application.ErrCapacityExceeded):
		r.writeError(ctx, w, http.StatusConflict, codeCapacityExceeded, errors.New("the class is fully booked"))
	case errors.Is(err, application.ErrDuplicateBooking):
		r.writeError(ctx, w, http.StatusConflict, codeDuplicateBooking, errors.New("you already hold a booking for this class"))
	case errors.Is(err, application.ErrAlreadyCancelled):
		r.writeError(ctx, w, http.StatusConflict, codeAlreadyCancelled, errors.New("the booking is already cancelled"))
	case errors.Is(err, application.ErrConflict), errors.Is(err, application.ErrAlreadyExists):
		r.writeError(ctx, w, http.StatusConflict, codeConflict, errors.New("the request conflicts with the current state of the resource"))
	case errors.Is(err, application.ErrForbidden):
		r.writeError(ctx, w, http.StatusForbidden, codeForbidden, errors.New("you are not allowed to perform this operation"))
	case errors.Is(err, application.ErrAuthExpired):
		r.writeError(ctx, w, http.StatusUnauthorized, codeAuthExpired, errors.New("the access token has expired"))
	case errors.Is(err, application.ErrAuthInvalid):
		r.writeError(ctx, w, http.StatusUnauthorized, codeAuthInvalid, errors.New("the credentials are no longer valid, log in again"))
	case errors.Is(err, application.ErrInvalidCredentials):
		r.writeError(ctx, w, http.StatusUnauthorized, codeAuthInvalid, errors.New("invalid username or password"))
	default:
		r.loggerFor(ctx).ErrorContext(ctx, "unexpected service error", "error", err)
		r.writeError(ctx, w, http.StatusInternalServerError, codeInternal, errors.New("an internal error occurred"))
	}
}

func (r responder) loggerFor(ctx context.Context) *slog.Logger {
	if logger := logging.FromContext(ctx); logger != nil {
		return logger
	}
	return r.logger
}

func decodeJSON(r *http.Request, dest any) error {
	if r.Body == nil {
		return errBadRequestBody
	}
	decoder := json.NewDecoder(http.MaxBytesReader(nil, r.Body, 1<<20))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dest); err != nil {
		return errBadRequestBody
	}
	return nil
}

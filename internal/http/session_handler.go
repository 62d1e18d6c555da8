package http

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/example/gym-scheduler/internal/application"
)

type authService interface {
	Login(ctx context.Context, username, password string) (application.AuthResult, error)
	LoginWithIdentity(ctx context.Context, credential string) (application.AuthResult, error)
	Refresh(ctx context.Context, refreshToken string) (application.AuthResult, error)
	Logout(ctx context.Context, refreshToken string) error
}

// SessionHandler serves login, refresh and logout.
type SessionHandler struct {
	service   authService
	responder responder
	logger    *slog.Logger
}

// NewSessionHandler constructs a SessionHandler.
func NewSessionHandler(service authService, logger *slog.Logger) *SessionHandler {
	base := defaultLogger(logger)
	return &SessionHandler{service: service, responder: newResponder(base), logger: base}
}

func (h *SessionHandler) log(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return handlerLogger(ctx, h.logger, "SessionHandler", operation, attrs...)
}

// Create handles POST /sessions.
func (h *SessionHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, codeBadRequest, err)
		return
	}

	username := strings.ToLower(strings.TrimSpace(req.Username))
	logger := h.log(r.Context(), "Create", "username", username)

	result, err := h.service.Login(r.Context(), username, req.Password)
	if err != nil {
		logger.WarnContext(r.Context(), "login rejected", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	logger.InfoContext(r.Context(), "member logged in", "member_id", result.Member.ID)
	h.responder.writeJSON(r.Context(), w, http.StatusCreated, toSessionResponse(result))
}

// CreateWithGoogle handles POST /sessions/google.
func (h *SessionHandler) CreateWithGoogle(w http.ResponseWriter, r *http.Request) {
	var req googleLoginRequest
	if err := decodeJSON(r, &req); err != nil {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, codeBadRequest, err)
		return
	}
	if strings.TrimSpace(req.Credential) == "" {
		h.responder.writeValidation(r.Context(), w, &application.ValidationError{
			FieldErrors: map[string]string{"credential": "is required"},
		})
		return
	}

	logger := h.log(r.Context(), "CreateWithGoogle")
	result, err := h.service.LoginWithIdentity(r.Context(), req.Credential)
	if err != nil {
		logger.WarnContext(r.Context(), "delegated login rejected", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	logger.InfoContext(r.Context(), "member logged in with google", "member_id", result.Member.ID)
	h.responder.writeJSON(r.Context(), w, http.StatusCreated, toSessionResponse(result))
}

// Refresh handles POST /sessions/refresh.
func (h *SessionHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := decodeJSON(r, &req); err != nil {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, codeBadRequest, err)
		return
	}

	logger := h.log(r.Context(), "Refresh")
	result, err := h.service.Refresh(r.Context(), strings.TrimSpace(req.RefreshToken))
	if err != nil {
		logger.WarnContext(r.Context(), "refresh rejected", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	logger.InfoContext(r.Context(), "session refreshed", "member_id", result.Member.ID)
	h.responder.writeJSON(r.Context(), w, http.StatusOK, toSessionResponse(result))
}

// Delete handles DELETE /sessions/current.
func (h *SessionHandler) Delete(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := decodeJSON(r, &req); err != nil {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, codeBadRequest, err)
		return
	}

	logger := h.log(r.Context(), "Delete")
	if err := h.service.Logout(r.Context(), strings.TrimSpace(req.RefreshToken)); err != nil {
		logger.WarnContext(r.Context(), "logout failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	logger.InfoContext(r.Context(), "session revoked")
	h.responder.writeJSON(r.Context(), w, http.StatusNoContent, nil)
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type googleLoginRequest struct {
	Credential string `json:"credential"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type sessionResponse struct {
	AccessToken      string    `json:"access_token"`
	ExpiresAt        string    `json:"expires_at"`
	RefreshToken     string    `json:"refresh_token"`
	RefreshExpiresAt string    `json:"refresh_expires_at"`
	Member           memberDTO `json:"member"`
}

func toSessionResponse(result application.AuthResult) sessionResponse {
	return sessionResponse{
		AccessToken:      result.AccessToken,
		ExpiresAt:        result.AccessTokenExpiresAt.UTC().Format(time.RFC3339),
		RefreshToken:     result.RefreshToken,
		RefreshExpiresAt: result.RefreshTokenExpiresAt.UTC().Format(time.RFC3339),
		Member:           toMemberDTO(result.Member),
	}
}

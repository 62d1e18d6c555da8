package http

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/example/gym-scheduler/internal/application"
)

// dateLayout is the day-first calendar format used for member dates.
const dateLayout = "02/01/2006"

type memberService interface {
	List(ctx context.Context, principal application.Principal) ([]application.Member, error)
	Get(ctx context.Context, principal application.Principal, id string) (application.Member, error)
	Me(ctx context.Context, principal application.Principal) (application.Member, error)
	Create(ctx context.Context, params application.CreateMemberParams) (application.Member, error)
	Update(ctx context.Context, params application.UpdateMemberParams) (application.Member, error)
	Delete(ctx context.Context, principal application.Principal, id string) error
}

// MemberHandler serves roster administration. Routes are expected behind
// RequireSession.
type MemberHandler struct {
	service   memberService
	responder responder
	logger    *slog.Logger
}

// NewMemberHandler constructs a MemberHandler.
func NewMemberHandler(service memberService, logger *slog.Logger) *MemberHandler {
	base := defaultLogger(logger)
	return &MemberHandler{service: service, responder: newResponder(base), logger: base}
}

func (h *MemberHandler) log(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return handlerLogger(ctx, h.logger, "MemberHandler", operation, attrs...)
}

// List handles GET /members.
func (h *MemberHandler) List(w http.ResponseWriter, r *http.Request) {
	principal, _ := PrincipalFromContext(r.Context())

	members, err := h.service.List(r.Context(), principal)
	if err != nil {
		h.log(r.Context(), "List", "principal_id", principal.MemberID).WarnContext(r.Context(), "member listing failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	dtos := make([]memberDTO, 0, len(members))
	for _, member := range members {
		dtos = append(dtos, toMemberDTO(member))
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, memberListResponse{Members: dtos})
}

// Get handles GET /members/:id. The id "me" resolves to the caller.
func (h *MemberHandler) Get(w http.ResponseWriter, r *http.Request) {
	principal, _ := PrincipalFromContext(r.Context())
	id := pathParam(r, "id")

	var (
		member application.Member
		err    error
	)
	if id == "me" {
		member, err = h.service.Me(r.Context(), principal)
	} else {
		member, err = h.service.Get(r.Context(), principal, id)
	}
	if err != nil {
		h.log(r.Context(), "Get", "principal_id", principal.MemberID, "member_id", id).WarnContext(r.Context(), "member lookup failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, memberResponse{Member: toMemberDTO(member)})
}

// Create handles POST /members.
func (h *MemberHandler) Create(w http.ResponseWriter, r *http.Request) {
	principal, _ := PrincipalFromContext(r.Context())

	input, ok := h.decodeMember(w, r)
	if !ok {
		return
	}

	logger := h.log(r.Context(), "Create", "principal_id", principal.MemberID)
	member, err := h.service.Create(r.Context(), application.CreateMemberParams{Principal: principal, Input: input})
	if err != nil {
		logger.WarnContext(r.Context(), "member creation failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	logger.InfoContext(r.Context(), "member created", "member_id", member.ID)
	h.responder.writeJSON(r.Context(), w, http.StatusCreated, memberResponse{Member: toMemberDTO(member)})
}

// Update handles PUT /members/:id.
func (h *MemberHandler) Update(w http.ResponseWriter, r *http.Request) {
	principal, _ := PrincipalFromContext(r.Context())
	id := pathParam(r, "id")

	input, ok := h.decodeMember(w, r)
	if !ok {
		return
	}

	logger := h.log(r.Context(), "Update", "principal_id", principal.MemberID, "member_id", id)
	member, err := h.service.Update(r.Context(), application.UpdateMemberParams{Principal: principal, MemberID: id, Input: input})
	if err != nil {
		logger.WarnContext(r.Context(), "member update failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	logger.InfoContext(r.Context(), "member updated")
	h.responder.writeJSON(r.Context(), w, http.StatusOK, memberResponse{Member: toMemberDTO(member)})
}

// Delete handles DELETE /members/:id.
func (h *MemberHandler) Delete(w http.ResponseWriter, r *http.Request) {
	principal, _ := PrincipalFromContext(r.Context())
	id := pathParam(r, "id")

	logger := h.log(r.Context(), "Delete", "principal_id", principal.MemberID, "member_id", id)
	if err := h.service.Delete(r.Context(), principal, id); err != nil {
		logger.WarnContext(r.Context(), "member deletion failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	logger.InfoContext(r.Context(), "member deleted")
	h.responder.writeJSON(r.Context(), w, http.StatusNoContent, nil)
}

func (h *MemberHandler) decodeMember(w http.ResponseWriter, r *http.Request) (application.MemberInput, bool) {
	var req memberRequest
	if err := decodeJSON(r, &req); err != nil {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, codeBadRequest, err)
		return application.MemberInput{}, false
	}
	input, vErr := req.toInput()
	if vErr != nil {
		h.responder.writeValidation(r.Context(), w, vErr)
		return application.MemberInput{}, false
	}
	return input, true
}

type memberRequest struct {
	Username         string  `json:"username"`
	Email            *string `json:"email"`
	Name             string  `json:"name"`
	MembershipNumber string  `json:"membership_number"`
	DateOfBirth      *string `json:"date_of_birth"`
	MemberSince      *string `json:"member_since"`
	IsAdmin          bool    `json:"is_admin"`
	Password         *string `json:"password"`
}

func (req memberRequest) toInput() (application.MemberInput, *application.ValidationError) {
	fieldErrors := make(map[string]string)
	dateOfBirth := parseDate(req.DateOfBirth, "date_of_birth", fieldErrors)
	memberSince := parseDate(req.MemberSince, "member_since", fieldErrors)
	if len(fieldErrors) > 0 {
		return application.MemberInput{}, &application.ValidationError{FieldErrors: fieldErrors}
	}

	email := req.Email
	if email != nil && strings.TrimSpace(*email) == "" {
		email = nil
	}
	return application.MemberInput{
		Username:         req.Username,
		Email:            email,
		Name:             req.Name,
		MembershipNumber: req.MembershipNumber,
		DateOfBirth:      dateOfBirth,
		MemberSince:      memberSince,
		IsAdmin:          req.IsAdmin,
		Password:         req.Password,
	}, nil
}

func parseDate(value *string, field string, fieldErrors map[string]string) *time.Time {
	if value == nil || strings.TrimSpace(*value) == "" {
		return nil
	}
	parsed, err := time.Parse(dateLayout, strings.TrimSpace(*value))
	if err != nil {
		fieldErrors[field] = "must be a date in DD/MM/YYYY format"
		return nil
	}
	return &parsed
}

func formatDate(value *time.Time) *string {
	if value == nil {
		return nil
	}
	formatted := value.Format(dateLayout)
	return &formatted
}

type memberDTO struct {
	ID               string  `json:"id"`
	Username         string  `json:"username"`
	Email            *string `json:"email,omitempty"`
	Name             string  `json:"name"`
	MembershipNumber string  `json:"membership_number"`
	DateOfBirth      *string `json:"date_of_birth,omitempty"`
	MemberSince      *string `json:"member_since,omitempty"`
	IsAdmin          bool    `json:"is_admin"`
	CreatedAt        string  `json:"created_at"`
	UpdatedAt        string  `json:"updated_at"`
}

type memberResponse struct {
	Member memberDTO `json:"member"`
}

type memberListResponse struct {
	Members []memberDTO `json:"members"`
}

func toMemberDTO(member application.Member) memberDTO {
	return memberDTO{
		ID:               member.ID,
		Username:         member.Username,
		Email:            member.Email,
		Name:             member.Name,
		MembershipNumber: member.MembershipNumber,
		DateOfBirth:      formatDate(member.DateOfBirth),
		MemberSince:      formatDate(member.MemberSince),
		IsAdmin:          member.IsAdmin,
		CreatedAt:        member.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt:        member.UpdatedAt.UTC().Format(time.RFC3339),
	}
}

package http

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/julienschmidt/httprouter"

	"github.com/example/gym-scheduler/internal/application"
	"github.com/example/gym-scheduler/internal/recurrence"
)

type catalogReader interface {
	List(ctx context.Context) ([]application.ClassDefinition, error)
	Get(ctx context.Context, id string) (application.ClassDefinition, error)
}

type catalogAdmin interface {
	CreateClass(ctx context.Context, token string, input application.ClassInput) (application.ClassDefinition, error)
	UpdateClass(ctx context.Context, token, classID string, input application.ClassInput) (application.ClassDefinition, error)
	DeleteClass(ctx context.Context, token, classID string) error
}

// ClassHandler serves the class catalog. Reads are public, mutations go
// through the token authenticated scheduling facade.
type ClassHandler struct {
	catalog   catalogReader
	admin     catalogAdmin
	responder responder
	logger    *slog.Logger
}

// NewClassHandler constructs a ClassHandler.
func NewClassHandler(catalog catalogReader, admin catalogAdmin, logger *slog.Logger) *ClassHandler {
	base := defaultLogger(logger)
	return &ClassHandler{catalog: catalog, admin: admin, responder: newResponder(base), logger: base}
}

func (h *ClassHandler) log(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return handlerLogger(ctx, h.logger, "ClassHandler", operation, attrs...)
}

// List handles GET /classes.
func (h *ClassHandler) List(w http.ResponseWriter, r *http.Request) {
	classes, err := h.catalog.List(r.Context())
	if err != nil {
		h.log(r.Context(), "List").ErrorContext(r.Context(), "class listing failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	dtos := make([]classDTO, 0, len(classes))
	for _, class := range classes {
		dtos = append(dtos, toClassDTO(class))
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, classListResponse{Classes: dtos})
}

// Get handles GET /classes/:id.
func (h *ClassHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")
	class, err := h.catalog.Get(r.Context(), id)
	if err != nil {
		h.log(r.Context(), "Get", "class_id", id).WarnContext(r.Context(), "class lookup failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, classResponse{Class: toClassDTO(class)})
}

// Create handles POST /classes.
func (h *ClassHandler) Create(w http.ResponseWriter, r *http.Request) {
	token, ok := h.requireToken(w, r)
	if !ok {
		return
	}

	input, ok := h.decodeClass(w, r)
	if !ok {
		return
	}

	logger := h.log(r.Context(), "Create", "class_name", input.Name)
	class, err := h.admin.CreateClass(r.Context(), token, input)
	if err != nil {
		logger.WarnContext(r.Context(), "class creation failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	logger.InfoContext(r.Context(), "class created", "class_id", class.ID)
	h.responder.writeJSON(r.Context(), w, http.StatusCreated, classResponse{Class: toClassDTO(class)})
}

// Update handles PUT /classes/:id.
func (h *ClassHandler) Update(w http.ResponseWriter, r *http.Request) {
	token, ok := h.requireToken(w, r)
	if !ok {
		return
	}

	id := pathParam(r, "id")
	input, ok := h.decodeClass(w, r)
	if !ok {
		return
	}

	logger := h.log(r.Context(), "Update", "class_id", id)
	class, err := h.admin.UpdateClass(r.Context(), token, id, input)
	if err != nil {
		logger.WarnContext(r.Context(), "class update failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	logger.InfoContext(r.Context(), "class updated")
	h.responder.writeJSON(r.Context(), w, http.StatusOK, classResponse{Class: toClassDTO(class)})
}

// Delete handles DELETE /classes/:id.
func (h *ClassHandler) Delete(w http.ResponseWriter, r *http.Request) {
	token, ok := h.requireToken(w, r)
	if !ok {
		return
	}

	id := pathParam(r, "id")
	logger := h.log(r.Context(), "Delete", "class_id", id)
	if err := h.admin.DeleteClass(r.Context(), token, id); err != nil {
		logger.WarnContext(r.Context(), "class deletion failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	logger.InfoContext(r.Context(), "class deleted")
	h.responder.writeJSON(r.Context(), w, http.StatusNoContent, nil)
}

func (h *ClassHandler) requireToken(w http.ResponseWriter, r *http.Request) (string, bool) {
	token := extractTokenFromRequest(r)
	if token == "" {
		h.responder.writeError(r.Context(), w, http.StatusUnauthorized, codeAuthInvalid, errMissingToken)
		return "", false
	}
	return token, true
}

func (h *ClassHandler) decodeClass(w http.ResponseWriter, r *http.Request) (application.ClassInput, bool) {
	var req classRequest
	if err := decodeJSON(r, &req); err != nil {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, codeBadRequest, err)
		return application.ClassInput{}, false
	}
	input, vErr := req.toInput()
	if vErr != nil {
		h.responder.writeValidation(r.Context(), w, vErr)
		return application.ClassInput{}, false
	}
	return input, true
}

func pathParam(r *http.Request, name string) string {
	return strings.TrimSpace(httprouter.ParamsFromContext(r.Context()).ByName(name))
}

// weekdayValue accepts a day either as a name ("wednesday", "wed") or as a
// number 0-6 with Sunday as 0.
type weekdayValue struct {
	raw string
	set bool
}

func (d *weekdayValue) UnmarshalJSON(data []byte) error {
	d.set = true
	var name string
	if err := json.Unmarshal(data, &name); err == nil {
		d.raw = name
		return nil
	}
	var n int
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("weekday must be a name or a number: %w", err)
	}
	d.raw = strconv.Itoa(n)
	return nil
}

type patternRequest struct {
	ID          string       `json:"id"`
	Weekday     weekdayValue `json:"weekday"`
	StartTime   string       `json:"start_time"`
	MaxCapacity int          `json:"max_capacity"`
}

type classRequest struct {
	Name       string           `json:"name"`
	Instructor string           `json:"instructor"`
	Patterns   []patternRequest `json:"patterns"`
}

func (req classRequest) toInput() (application.ClassInput, *application.ValidationError) {
	input := application.ClassInput{
		Name:       req.Name,
		Instructor: req.Instructor,
		Patterns:   make([]application.PatternInput, 0, len(req.Patterns)),
	}
	fieldErrors := make(map[string]string)
	for i, p := range req.Patterns {
		field := fmt.Sprintf("patterns[%d].weekday", i)
		day := time.Weekday(-1)
		if !p.Weekday.set {
			fieldErrors[field] = "is required"
		} else if parsed, err := recurrence.ParseWeekday(p.Weekday.raw); err != nil {
			fieldErrors[field] = "must be a day name or a number from 0 (Sunday) to 6"
		} else {
			day = parsed
		}
		input.Patterns = append(input.Patterns, application.PatternInput{
			ID:          strings.TrimSpace(p.ID),
			Weekday:     int(day),
			StartTime:   p.StartTime,
			MaxCapacity: p.MaxCapacity,
		})
	}
	if len(fieldErrors) > 0 {
		return application.ClassInput{}, &application.ValidationError{FieldErrors: fieldErrors}
	}
	return input, nil
}

type patternDTO struct {
	ID              string `json:"id"`
	Weekday         string `json:"weekday"`
	WeekdayIndex    int    `json:"weekday_index"`
	StartTime       string `json:"start_time"`
	MaxCapacity     int    `json:"max_capacity"`
	CurrentCapacity int    `json:"current_capacity"`
}

type classDTO struct {
	ID         string       `json:"id"`
	Name       string       `json:"name"`
	Instructor string       `json:"instructor,omitempty"`
	Color      string       `json:"color"`
	Patterns   []patternDTO `json:"patterns"`
	CreatedAt  string       `json:"created_at"`
	UpdatedAt  string       `json:"updated_at"`
}

type classResponse struct {
	Class classDTO `json:"class"`
}

type classListResponse struct {
	Classes []classDTO `json:"classes"`
}

func toClassDTO(class application.ClassDefinition) classDTO {
	patterns := make([]patternDTO, 0, len(class.Patterns))
	for _, p := range class.Patterns {
		patterns = append(patterns, patternDTO{
			ID:              p.ID,
			Weekday:         strings.ToLower(p.Weekday.String()),
			WeekdayIndex:    int(p.Weekday),
			StartTime:       p.StartTime,
			MaxCapacity:     p.MaxCapacity,
			CurrentCapacity: p.CurrentCapacity,
		})
	}
	return classDTO{
		ID:         class.ID,
		Name:       class.Name,
		Instructor: class.Instructor,
		Color:      recurrence.Color(class.ID),
		Patterns:   patterns,
		CreatedAt:  class.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt:  class.UpdatedAt.UTC().Format(time.RFC3339),
	}
}

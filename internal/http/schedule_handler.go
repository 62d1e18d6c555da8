package http

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/example/gym-scheduler/internal/application"
	"github.com/example/gym-scheduler/internal/recurrence"
)

type scheduleService interface {
	GetWeeklySchedule(ctx context.Context, weekStart time.Time, classFilter string) (application.WeeklySchedule, error)
}

// ScheduleHandler serves the projected weekly schedule.
type ScheduleHandler struct {
	service   scheduleService
	location  *time.Location
	responder responder
	logger    *slog.Logger
}

// NewScheduleHandler constructs a ScheduleHandler. Dates in the week query
// parameter are interpreted in loc, which defaults to UTC.
func NewScheduleHandler(service scheduleService, loc *time.Location, logger *slog.Logger) *ScheduleHandler {
	if loc == nil {
		loc = time.UTC
	}
	base := defaultLogger(logger)
	return &ScheduleHandler{service: service, location: loc, responder: newResponder(base), logger: base}
}

// Get handles GET /schedule?week=YYYY-MM-DD&class=Name. Any date inside the
// wanted week selects it; without one the current week is returned.
func (h *ScheduleHandler) Get(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	var week time.Time
	if raw := strings.TrimSpace(query.Get("week")); raw != "" {
		parsed, err := time.ParseInLocation("2006-01-02", raw, h.location)
		if err != nil {
			h.responder.writeValidation(r.Context(), w, &application.ValidationError{
				FieldErrors: map[string]string{"week": "must be a date in YYYY-MM-DD format"},
			})
			return
		}
		week = parsed
	}
	filter := strings.TrimSpace(query.Get("class"))

	schedule, err := h.service.GetWeeklySchedule(r.Context(), week, filter)
	if err != nil {
		handlerLogger(r.Context(), h.logger, "ScheduleHandler", "Get").ErrorContext(r.Context(), "schedule projection failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	h.responder.writeJSON(r.Context(), w, http.StatusOK, toScheduleResponse(schedule))
}

type occurrenceDTO struct {
	PatternID       string `json:"pattern_id"`
	ClassID         string `json:"class_id"`
	ClassName       string `json:"class_name"`
	Instructor      string `json:"instructor,omitempty"`
	Start           string `json:"start"`
	End             string `json:"end"`
	MaxCapacity     int    `json:"max_capacity"`
	CurrentCapacity int    `json:"current_capacity"`
	Available       int    `json:"available"`
	Color           string `json:"color"`
}

type scheduleResponse struct {
	WeekStart    string          `json:"week_start"`
	WeekEnd      string          `json:"week_end"`
	PreviousWeek string          `json:"previous_week"`
	NextWeek     string          `json:"next_week"`
	Occurrences  []occurrenceDTO `json:"occurrences"`
}

func toScheduleResponse(schedule application.WeeklySchedule) scheduleResponse {
	occurrences := make([]occurrenceDTO, 0, len(schedule.Occurrences))
	for _, o := range schedule.Occurrences {
		occurrences = append(occurrences, toOccurrenceDTO(o))
	}
	return scheduleResponse{
		WeekStart:    schedule.WeekStart.Format(time.RFC3339),
		WeekEnd:      schedule.WeekEnd.Format(time.RFC3339),
		PreviousWeek: schedule.WeekStart.AddDate(0, 0, -7).Format("2006-01-02"),
		NextWeek:     schedule.WeekEnd.Format("2006-01-02"),
		Occurrences:  occurrences,
	}
}

func toOccurrenceDTO(o recurrence.Occurrence) occurrenceDTO {
	available := o.MaxCapacity - o.CurrentCapacity
	if available < 0 {
		available = 0
	}
	return occurrenceDTO{
		PatternID:       o.PatternID,
		ClassID:         o.ClassID,
		ClassName:       o.ClassName,
		Instructor:      o.Instructor,
		Start:           o.Start.Format(time.RFC3339),
		End:             o.End.Format(time.RFC3339),
		MaxCapacity:     o.MaxCapacity,
		CurrentCapacity: o.CurrentCapacity,
		Available:       available,
		Color:           o.Color,
	}
}

package application

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/example/gym-scheduler/internal/recurrence"
)

// TokenValidator resolves an access token into the calling principal.
type TokenValidator interface {
	ValidateAccessToken(ctx context.Context, token string) (Principal, error)
}

// SchedulingService is the token authenticated entry point for viewing the
// weekly schedule, booking seats and administering the catalog.
type SchedulingService struct {
	tokens    TokenValidator
	catalog   *CatalogService
	bookings  *BookingService
	projector *recurrence.Projector
	cache     *ProjectionCache
	now       func() time.Time
	logger    *slog.Logger
}

// NewSchedulingService constructs the facade. A nil cache disables caching.
func NewSchedulingService(tokens TokenValidator, catalog *CatalogService, bookings *BookingService, projector *recurrence.Projector, cache *ProjectionCache, now func() time.Time) *SchedulingService {
	return NewSchedulingServiceWithLogger(tokens, catalog, bookings, projector, cache, now, nil)
}

// NewSchedulingServiceWithLogger constructs the facade with a specified logger.
func NewSchedulingServiceWithLogger(tokens TokenValidator, catalog *CatalogService, bookings *BookingService, projector *recurrence.Projector, cache *ProjectionCache, now func() time.Time, logger *slog.Logger) *SchedulingService {
	if projector == nil {
		projector = recurrence.NewProjector()
	}
	if now == nil {
		now = time.Now
	}
	return &SchedulingService{
		tokens:    tokens,
		catalog:   catalog,
		bookings:  bookings,
		projector: projector,
		cache:     cache,
		now:       now,
		logger:    defaultLogger(logger),
	}
}

func (s *SchedulingService) loggerWith(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return serviceLogger(ctx, s.logger, "SchedulingService", operation, attrs...)
}

func (s *SchedulingService) authenticate(ctx context.Context, token string) (Principal, error) {
	if s == nil {
		return Principal{}, fmt.Errorf("SchedulingService is nil")
	}
	if s.tokens == nil {
		return Principal{}, fmt.Errorf("token validator not configured")
	}
	return s.tokens.ValidateAccessToken(ctx, token)
}

// GetWeeklySchedule projects the catalog onto the week containing weekStart.
// A zero weekStart selects the current week. classFilter, when set, keeps only
// classes whose name matches it case-insensitively.
func (s *SchedulingService) GetWeeklySchedule(ctx context.Context, weekStart time.Time, classFilter string) (WeeklySchedule, error) {
	if s == nil {
		return WeeklySchedule{}, fmt.Errorf("SchedulingService is nil")
	}
	if s.catalog == nil {
		return WeeklySchedule{}, fmt.Errorf("catalog service not configured")
	}

	if weekStart.IsZero() {
		weekStart = s.now()
	}
	start, end := s.projector.WeekOf(weekStart)
	classFilter = strings.TrimSpace(classFilter)

	cached, generation, ok := s.cache.Get(start, classFilter)
	if ok {
		return cached, nil
	}

	classes, err := s.catalog.List(ctx)
	if err != nil {
		return WeeklySchedule{}, err
	}

	var slots []recurrence.Slot
	for _, class := range classes {
		if classFilter != "" && !strings.EqualFold(class.Name, classFilter) {
			continue
		}
		for _, pattern := range class.Patterns {
			slots = append(slots, recurrence.Slot{
				PatternID:       pattern.ID,
				ClassID:         class.ID,
				ClassName:       class.Name,
				Instructor:      class.Instructor,
				Weekday:         pattern.Weekday,
				StartTime:       pattern.StartTime,
				MaxCapacity:     pattern.MaxCapacity,
				CurrentCapacity: pattern.CurrentCapacity,
			})
		}
	}

	schedule := WeeklySchedule{
		WeekStart:   start,
		WeekEnd:     end,
		Occurrences: s.projector.Project(slots, start),
	}
	s.cache.Put(start, classFilter, schedule, generation)

	s.loggerWith(ctx, "GetWeeklySchedule",
		"week_start", start.Format(time.DateOnly),
		"class_filter", classFilter,
	).DebugContext(ctx, "schedule projected", "occurrence_count", len(schedule.Occurrences))
	return schedule, nil
}

// BookClass reserves a seat in the pattern for the token holder.
func (s *SchedulingService) BookClass(ctx context.Context, token, patternID string) (Booking, error) {
	principal, err := s.authenticate(ctx, token)
	if err != nil {
		return Booking{}, err
	}
	if s.bookings == nil {
		return Booking{}, fmt.Errorf("booking service not configured")
	}
	return s.bookings.Reserve(ctx, principal.MemberID, patternID)
}

// CancelBooking cancels a booking owned by the token holder, or any booking
// when the holder is an administrator.
func (s *SchedulingService) CancelBooking(ctx context.Context, token, bookingID string) (Booking, error) {
	principal, err := s.authenticate(ctx, token)
	if err != nil {
		return Booking{}, err
	}
	if s.bookings == nil {
		return Booking{}, fmt.Errorf("booking service not configured")
	}
	return s.bookings.Cancel(ctx, principal, bookingID)
}

// ListMyBookings returns the token holder's bookings, oldest first.
func (s *SchedulingService) ListMyBookings(ctx context.Context, token string) ([]Booking, error) {
	principal, err := s.authenticate(ctx, token)
	if err != nil {
		return nil, err
	}
	if s.bookings == nil {
		return nil, fmt.Errorf("booking service not configured")
	}
	return s.bookings.ListForMember(ctx, principal.MemberID)
}

// CreateClass adds a class on behalf of an administrator.
func (s *SchedulingService) CreateClass(ctx context.Context, token string, input ClassInput) (ClassDefinition, error) {
	principal, err := s.authenticate(ctx, token)
	if err != nil {
		return ClassDefinition{}, err
	}
	if s.catalog == nil {
		return ClassDefinition{}, fmt.Errorf("catalog service not configured")
	}
	return s.catalog.Create(ctx, CreateClassParams{Principal: principal, Input: input})
}

// UpdateClass edits a class on behalf of an administrator.
func (s *SchedulingService) UpdateClass(ctx context.Context, token, classID string, input ClassInput) (ClassDefinition, error) {
	principal, err := s.authenticate(ctx, token)
	if err != nil {
		return ClassDefinition{}, err
	}
	if s.catalog == nil {
		return ClassDefinition{}, fmt.Errorf("catalog service not configured")
	}
	return s.catalog.Update(ctx, UpdateClassParams{Principal: principal, ClassID: classID, Input: input})
}

// DeleteClass removes a class on behalf of an administrator.
func (s *SchedulingService) DeleteClass(ctx context.Context, token, classID string) error {
	principal, err := s.authenticate(ctx, token)
	if err != nil {
		return err
	}
	if s.catalog == nil {
		return fmt.Errorf("catalog service not configured")
	}
	return s.catalog.Delete(ctx, principal, classID)
}

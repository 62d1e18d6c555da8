package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/example/gym-scheduler/internal/events"
	"github.com/example/gym-scheduler/internal/persistence"
	"github.com/example/gym-scheduler/internal/recurrence"
)

// BookingRepository captures the ledger operations needed by the booking service.
// Reserve and Cancel must adjust the pattern seat counter atomically with the
// booking row.
type BookingRepository interface {
	Reserve(ctx context.Context, booking Booking) (Booking, error)
	Cancel(ctx context.Context, bookingID string, cancelledAt time.Time) (Booking, error)
	GetBooking(ctx context.Context, id string) (Booking, error)
	ListBookingsForMember(ctx context.Context, memberID string) ([]Booking, error)
}

// PatternLookup resolves a weekly slot by ID.
type PatternLookup interface {
	GetPattern(ctx context.Context, id string) (OccurrencePattern, error)
}

// EventPublisher delivers booking lifecycle events.
type EventPublisher interface {
	Publish(ctx context.Context, event events.BookingEvent) error
}

// BookingService reserves and cancels seats in class slots.
type BookingService struct {
	bookings    BookingRepository
	patterns    PatternLookup
	projector   *recurrence.Projector
	publisher   EventPublisher
	invalidator ScheduleInvalidator
	idGenerator func() string
	now         func() time.Time
	locks       *keyedLock
	logger      *slog.Logger
}

// NewBookingService constructs a booking service with the provided dependencies.
func NewBookingService(bookings BookingRepository, patterns PatternLookup, projector *recurrence.Projector, publisher EventPublisher, invalidator ScheduleInvalidator, idGenerator func() string, now func() time.Time) *BookingService {
	return NewBookingServiceWithLogger(bookings, patterns, projector, publisher, invalidator, idGenerator, now, nil)
}

// NewBookingServiceWithLogger constructs a booking service with a specified logger.
func NewBookingServiceWithLogger(bookings BookingRepository, patterns PatternLookup, projector *recurrence.Projector, publisher EventPublisher, invalidator ScheduleInvalidator, idGenerator func() string, now func() time.Time, logger *slog.Logger) *BookingService {
	if projector == nil {
		projector = recurrence.NewProjector()
	}
	if idGenerator == nil {
		idGenerator = func() string { return "" }
	}
	if now == nil {
		now = time.Now
	}
	return &BookingService{
		bookings:    bookings,
		patterns:    patterns,
		projector:   projector,
		publisher:   publisher,
		invalidator: invalidator,
		idGenerator: idGenerator,
		now:         now,
		locks:       newKeyedLock(),
		logger:      defaultLogger(logger),
	}
}

func (s *BookingService) loggerWith(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return serviceLogger(ctx, s.logger, "BookingService", operation, attrs...)
}

// Reserve takes a seat in the pattern for the member. The booking is stamped
// with the next occurrence of the slot at or after the current time.
func (s *BookingService) Reserve(ctx context.Context, memberID, patternID string) (booking Booking, err error) {
	if s == nil {
		err = fmt.Errorf("BookingService is nil")
		return
	}

	memberID = strings.TrimSpace(memberID)
	patternID = strings.TrimSpace(patternID)
	logger := s.loggerWith(ctx, "Reserve",
		"member_id", memberID,
		"pattern_id", patternID,
	)
	defer func() {
		if err != nil {
			logFailure(ctx, logger, "failed to reserve seat", err)
			return
		}
		logger.With(
			"booking_id", booking.ID,
			"occurrence_start", booking.OccurrenceStart,
		).InfoContext(ctx, "seat reserved")
	}()

	if s.bookings == nil || s.patterns == nil {
		err = fmt.Errorf("booking repositories not configured")
		return
	}

	vErr := &ValidationError{}
	if memberID == "" {
		vErr.add("member_id", "is required")
	}
	if patternID == "" {
		vErr.add("pattern_id", "is required")
	}
	if vErr.HasErrors() {
		err = vErr
		return
	}

	unlock := s.locks.Lock(patternID)
	defer unlock()

	var pattern OccurrencePattern
	pattern, err = s.patterns.GetPattern(ctx, patternID)
	if err != nil {
		err = mapBookingRepoError(err)
		return
	}

	now := s.now()
	var start time.Time
	start, err = s.projector.NextOccurrence(recurrence.Slot{
		PatternID: pattern.ID,
		ClassID:   pattern.ClassID,
		Weekday:   pattern.Weekday,
		StartTime: pattern.StartTime,
	}, now)
	if err != nil {
		err = fmt.Errorf("project next occurrence: %w", err)
		return
	}

	booking, err = s.bookings.Reserve(ctx, Booking{
		ID:              s.idGenerator(),
		MemberID:        memberID,
		PatternID:       pattern.ID,
		ClassID:         pattern.ClassID,
		OccurrenceStart: start,
		Status:          BookingStatusActive,
		CreatedAt:       now,
	})
	if err != nil {
		err = mapBookingRepoError(err)
		return
	}

	s.afterCommit(ctx, logger, events.TypeBookingReserved, booking, now)
	return
}

// Cancel releases the seat held by a booking. Only the owner or an
// administrator may cancel.
func (s *BookingService) Cancel(ctx context.Context, principal Principal, bookingID string) (booking Booking, err error) {
	if s == nil {
		err = fmt.Errorf("BookingService is nil")
		return
	}

	bookingID = strings.TrimSpace(bookingID)
	logger := s.loggerWith(ctx, "Cancel",
		"principal_id", principal.MemberID,
		"booking_id", bookingID,
	)
	defer func() {
		if err != nil {
			logFailure(ctx, logger, "failed to cancel booking", err)
			return
		}
		logger.With("pattern_id", booking.PatternID).InfoContext(ctx, "booking cancelled")
	}()

	if s.bookings == nil {
		err = fmt.Errorf("booking repository not configured")
		return
	}
	if bookingID == "" {
		err = ErrNotFound
		return
	}

	var existing Booking
	existing, err = s.bookings.GetBooking(ctx, bookingID)
	if err != nil {
		err = mapBookingRepoError(err)
		return
	}
	if existing.MemberID != principal.MemberID && !principal.IsAdmin {
		err = ErrForbidden
		return
	}
	if existing.Status != BookingStatusActive {
		err = ErrAlreadyCancelled
		return
	}

	unlock := s.locks.Lock(existing.PatternID)
	defer unlock()

	now := s.now()
	booking, err = s.bookings.Cancel(ctx, bookingID, now)
	if err != nil {
		err = mapBookingRepoError(err)
		return
	}

	s.afterCommit(ctx, logger, events.TypeBookingCancelled, booking, now)
	return
}

// ListForMember returns the member's bookings, oldest first.
func (s *BookingService) ListForMember(ctx context.Context, memberID string) ([]Booking, error) {
	if s == nil {
		return nil, fmt.Errorf("BookingService is nil")
	}
	if s.bookings == nil {
		return nil, fmt.Errorf("booking repository not configured")
	}

	memberID = strings.TrimSpace(memberID)
	if memberID == "" {
		return nil, nil
	}

	bookings, err := s.bookings.ListBookingsForMember(ctx, memberID)
	if err != nil {
		err = mapBookingRepoError(err)
		logFailure(ctx, s.loggerWith(ctx, "ListForMember", "member_id", memberID), "failed to list bookings", err)
		return nil, err
	}

	sort.Slice(bookings, func(i, j int) bool {
		if bookings[i].CreatedAt.Equal(bookings[j].CreatedAt) {
			return bookings[i].ID < bookings[j].ID
		}
		return bookings[i].CreatedAt.Before(bookings[j].CreatedAt)
	})
	return bookings, nil
}

// afterCommit refreshes cached schedules and emits the lifecycle event. The
// ledger change is already durable, so publish failures are only logged.
func (s *BookingService) afterCommit(ctx context.Context, logger *slog.Logger, eventType events.Type, booking Booking, at time.Time) {
	if s.invalidator != nil {
		s.invalidator.Invalidate()
	}
	if s.publisher == nil {
		return
	}

	event := events.BookingEvent{
		EventID:    s.idGenerator(),
		Type:       eventType,
		BookingID:  booking.ID,
		MemberID:   booking.MemberID,
		PatternID:  booking.PatternID,
		ClassID:    booking.ClassID,
		OccurredAt: at.UTC(),
	}
	if err := s.publisher.Publish(context.WithoutCancel(ctx), event); err != nil {
		logger.WarnContext(ctx, "failed to publish booking event",
			"event_type", string(eventType),
			"error", err,
		)
	}
}

func mapBookingRepoError(err error) error {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, ErrNotFound), errors.Is(err, persistence.ErrNotFound):
		return ErrNotFound
	case errors.Is(err, ErrCapacityExceeded), errors.Is(err, persistence.ErrCapacityExceeded):
		return ErrCapacityExceeded
	case errors.Is(err, ErrDuplicateBooking), errors.Is(err, persistence.ErrDuplicateBooking):
		return ErrDuplicateBooking
	case errors.Is(err, ErrAlreadyCancelled), errors.Is(err, persistence.ErrAlreadyCancelled):
		return ErrAlreadyCancelled
	case errors.Is(err, persistence.ErrForeignKeyViolation):
		return ErrNotFound
	}
	return err
}

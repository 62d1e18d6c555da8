package http

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/example/gym-scheduler/internal/application"
	"github.com/example/gym-scheduler/internal/recurrence"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

var fixedNow = time.Date(2024, time.March, 6, 12, 0, 0, 0, time.UTC)

// validatorStub accepts "member-token" and "admin-token", reports
// "expired-token" as expired and rejects everything else.
type validatorStub struct{}

func (validatorStub) ValidateAccessToken(_ context.Context, token string) (application.Principal, error) {
	switch token {
	case "member-token":
		return application.Principal{MemberID: "member-1", SessionID: "session-1"}, nil
	case "admin-token":
		return application.Principal{MemberID: "admin-1", SessionID: "session-2", IsAdmin: true}, nil
	case "expired-token":
		return application.Principal{}, application.ErrAuthExpired
	default:
		return application.Principal{}, application.ErrAuthInvalid
	}
}

type authServiceStub struct {
	mu        sync.Mutex
	loggedOut []string
}

func (s *authServiceStub) result(memberID string) application.AuthResult {
	return application.AuthResult{
		Member:                application.Member{ID: memberID, Username: memberID, Name: "Member", MembershipNumber: "MEM100", CreatedAt: fixedNow, UpdatedAt: fixedNow},
		SessionID:             "session-1",
		AccessToken:           "access-" + memberID,
		AccessTokenExpiresAt:  fixedNow.Add(15 * time.Minute),
		RefreshToken:          "refresh-" + memberID,
		RefreshTokenExpiresAt: fixedNow.Add(7 * 24 * time.Hour),
	}
}

func (s *authServiceStub) Login(_ context.Context, username, password string) (application.AuthResult, error) {
	if username != "alice" || password != "correct horse" {
		return application.AuthResult{}, application.ErrInvalidCredentials
	}
	return s.result("alice"), nil
}

func (s *authServiceStub) LoginWithIdentity(_ context.Context, credential string) (application.AuthResult, error) {
	if credential != "google-jwt" {
		return application.AuthResult{}, application.ErrInvalidCredentials
	}
	return s.result("bob"), nil
}

func (s *authServiceStub) Refresh(_ context.Context, refreshToken string) (application.AuthResult, error) {
	if refreshToken != "refresh-alice" {
		return application.AuthResult{}, application.ErrAuthInvalid
	}
	return s.result("alice"), nil
}

func (s *authServiceStub) Logout(_ context.Context, refreshToken string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loggedOut = append(s.loggedOut, refreshToken)
	return nil
}

// schedulingStub records the arguments it receives and answers with canned data.
type schedulingStub struct {
	mu          sync.Mutex
	weekStart   time.Time
	filter      string
	classInput  application.ClassInput
	token       string
	patternID   string
	bookingID   string
	bookErr     error
	deleteCalls int
}

func (s *schedulingStub) GetWeeklySchedule(_ context.Context, weekStart time.Time, classFilter string) (application.WeeklySchedule, error) {
	s.mu.Lock()
	s.weekStart, s.filter = weekStart, classFilter
	s.mu.Unlock()

	start := time.Date(2024, time.March, 3, 0, 0, 0, 0, time.UTC)
	return application.WeeklySchedule{
		WeekStart: start,
		WeekEnd:   start.AddDate(0, 0, 7),
		Occurrences: []recurrence.Occurrence{{
			PatternID:       "pattern-1",
			ClassID:         "class-1",
			ClassName:       "Yoga",
			Start:           time.Date(2024, time.March, 6, 18, 0, 0, 0, time.UTC),
			End:             time.Date(2024, time.March, 6, 19, 0, 0, 0, time.UTC),
			MaxCapacity:     12,
			CurrentCapacity: 5,
			Color:           recurrence.Color("class-1"),
		}},
	}, nil
}

func (s *schedulingStub) authenticate(token string) error {
	_, err := validatorStub{}.ValidateAccessToken(context.Background(), token)
	s.mu.Lock()
	s.token = token
	s.mu.Unlock()
	return err
}

func (s *schedulingStub) CreateClass(_ context.Context, token string, input application.ClassInput) (application.ClassDefinition, error) {
	if err := s.authenticate(token); err != nil {
		return application.ClassDefinition{}, err
	}
	if token != "admin-token" {
		return application.ClassDefinition{}, application.ErrForbidden
	}
	s.mu.Lock()
	s.classInput = input
	s.mu.Unlock()
	return sampleClass(), nil
}

func (s *schedulingStub) UpdateClass(_ context.Context, token, classID string, input application.ClassInput) (application.ClassDefinition, error) {
	if err := s.authenticate(token); err != nil {
		return application.ClassDefinition{}, err
	}
	if classID != "class-1" {
		return application.ClassDefinition{}, application.ErrNotFound
	}
	s.mu.Lock()
	s.classInput = input
	s.mu.Unlock()
	return sampleClass(), nil
}

func (s *schedulingStub) DeleteClass(_ context.Context, token, classID string) error {
	if err := s.authenticate(token); err != nil {
		return err
	}
	s.mu.Lock()
	s.deleteCalls++
	s.mu.Unlock()
	if classID == "booked-class" {
		return application.ErrConflict
	}
	return nil
}

func (s *schedulingStub) BookClass(_ context.Context, token, patternID string) (application.Booking, error) {
	if err := s.authenticate(token); err != nil {
		return application.Booking{}, err
	}
	s.mu.Lock()
	s.patternID = patternID
	err := s.bookErr
	s.mu.Unlock()
	if err != nil {
		return application.Booking{}, err
	}
	return sampleBooking(), nil
}

func (s *schedulingStub) CancelBooking(_ context.Context, token, bookingID string) (application.Booking, error) {
	if err := s.authenticate(token); err != nil {
		return application.Booking{}, err
	}
	s.mu.Lock()
	s.bookingID = bookingID
	s.mu.Unlock()
	if bookingID == "cancelled-booking" {
		return application.Booking{}, application.ErrAlreadyCancelled
	}
	booking := sampleBooking()
	cancelledAt := fixedNow.Add(time.Hour)
	booking.Status = application.BookingStatusCancelled
	booking.CancelledAt = &cancelledAt
	return booking, nil
}

func (s *schedulingStub) ListMyBookings(_ context.Context, token string) ([]application.Booking, error) {
	if err := s.authenticate(token); err != nil {
		return nil, err
	}
	return []application.Booking{sampleBooking()}, nil
}

type catalogStub struct{}

func (catalogStub) List(context.Context) ([]application.ClassDefinition, error) {
	return []application.ClassDefinition{sampleClass()}, nil
}

func (catalogStub) Get(_ context.Context, id string) (application.ClassDefinition, error) {
	if id != "class-1" {
		return application.ClassDefinition{}, application.ErrNotFound
	}
	return sampleClass(), nil
}

func sampleClass() application.ClassDefinition {
	return application.ClassDefinition{
		ID:         "class-1",
		Name:       "Yoga",
		Instructor: "Ana",
		Patterns: []application.OccurrencePattern{{
			ID: "pattern-1", ClassID: "class-1", Weekday: time.Wednesday, StartTime: "18:00", MaxCapacity: 12, CurrentCapacity: 5,
		}},
		CreatedAt: fixedNow,
		UpdatedAt: fixedNow,
	}
}

func sampleBooking() application.Booking {
	return application.Booking{
		ID:              "booking-1",
		MemberID:        "member-1",
		PatternID:       "pattern-1",
		ClassID:         "class-1",
		ClassName:       "Yoga",
		Weekday:         time.Wednesday,
		StartTime:       "18:00",
		OccurrenceStart: time.Date(2024, time.March, 6, 18, 0, 0, 0, time.UTC),
		Status:          application.BookingStatusActive,
		CreatedAt:       fixedNow,
	}
}

type memberServiceStub struct {
	mu    sync.Mutex
	input application.MemberInput
}

func (s *memberServiceStub) List(_ context.Context, principal application.Principal) ([]application.Member, error) {
	if !principal.IsAdmin {
		return nil, application.ErrForbidden
	}
	return []application.Member{sampleMember(principal.MemberID)}, nil
}

func (s *memberServiceStub) Get(_ context.Context, principal application.Principal, id string) (application.Member, error) {
	if !principal.IsAdmin && principal.MemberID != id {
		return application.Member{}, application.ErrForbidden
	}
	return sampleMember(id), nil
}

func (s *memberServiceStub) Me(_ context.Context, principal application.Principal) (application.Member, error) {
	return sampleMember(principal.MemberID), nil
}

func (s *memberServiceStub) Create(_ context.Context, params application.CreateMemberParams) (application.Member, error) {
	if !params.Principal.IsAdmin {
		return application.Member{}, application.ErrForbidden
	}
	s.mu.Lock()
	s.input = params.Input
	s.mu.Unlock()
	member := sampleMember("member-new")
	member.DateOfBirth = params.Input.DateOfBirth
	return member, nil
}

func (s *memberServiceStub) Update(_ context.Context, params application.UpdateMemberParams) (application.Member, error) {
	s.mu.Lock()
	s.input = params.Input
	s.mu.Unlock()
	return sampleMember(params.MemberID), nil
}

func (s *memberServiceStub) Delete(_ context.Context, principal application.Principal, id string) error {
	if principal.MemberID == id {
		return application.ErrConflict
	}
	return nil
}

func sampleMember(id string) application.Member {
	return application.Member{
		ID:               id,
		Username:         strings.ReplaceAll(id, "-", ""),
		Name:             "Member " + id,
		MembershipNumber: "MEM-" + id,
		CreatedAt:        fixedNow,
		UpdatedAt:        fixedNow,
	}
}

type pingerStub struct{ err error }

func (p pingerStub) Ping(context.Context) error { return p.err }

var errStoreDown = errors.New("database is locked")

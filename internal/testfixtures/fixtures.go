package testfixtures

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/example/gym-scheduler/internal/application"
	"github.com/example/gym-scheduler/internal/persistence"
	"github.com/example/gym-scheduler/internal/recurrence"
)

var (
	memberCounter  uint64
	classCounter   uint64
	patternCounter uint64
	bookingCounter uint64
	sessionCounter uint64

	bookingIDs = NewUUIDGenerator("booking")
	sessionIDs = NewUUIDGenerator("session")
)

// referenceTime is a Wednesday, mid-week, so "next occurrence" cases can be
// written for slots both before and after it.
var referenceTime = time.Date(2024, time.March, 6, 12, 0, 0, 0, time.UTC)

// ReferenceTime returns the canonical baseline timestamp used by fixtures.
func ReferenceTime() time.Time {
	return referenceTime
}

// ----------------------------- Member fixtures -----------------------------

// MemberFixture is a deterministic roster entry.
type MemberFixture struct {
	ID               string
	Username         string
	Email            *string
	Name             string
	MembershipNumber string
	DateOfBirth      *time.Time
	MemberSince      *time.Time
	IsAdmin          bool
	PasswordHash     string
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// MemberOption configures a MemberFixture.
type MemberOption func(*MemberFixture)

// NewMemberFixture returns a member with unique username and membership number.
func NewMemberFixture(opts ...MemberOption) MemberFixture {
	idx := atomic.AddUint64(&memberCounter, 1)
	id := fmt.Sprintf("member-%03d", idx)
	created := referenceTime.Add(time.Duration(idx) * time.Minute)
	fixture := MemberFixture{
		ID:               id,
		Username:         id,
		Name:             fmt.Sprintf("Member %03d", idx),
		MembershipNumber: fmt.Sprintf("MEM%04d", idx),
		PasswordHash:     fmt.Sprintf("hash-%03d", idx),
		CreatedAt:        created,
		UpdatedAt:        created,
	}
	for _, opt := range opts {
		opt(&fixture)
	}
	return fixture
}

// WithMemberID overrides the generated member ID.
func WithMemberID(id string) MemberOption {
	return func(f *MemberFixture) { f.ID = id }
}

// WithMemberUsername overrides the generated username.
func WithMemberUsername(username string) MemberOption {
	return func(f *MemberFixture) { f.Username = username }
}

// WithMemberEmail sets the optional email address.
func WithMemberEmail(email string) MemberOption {
	return func(f *MemberFixture) { f.Email = &email }
}

// WithMemberName overrides the display name.
func WithMemberName(name string) MemberOption {
	return func(f *MemberFixture) { f.Name = name }
}

// WithMembershipNumber overrides the membership number.
func WithMembershipNumber(number string) MemberOption {
	return func(f *MemberFixture) { f.MembershipNumber = number }
}

// WithMemberDates sets date of birth and membership start.
func WithMemberDates(dateOfBirth, memberSince time.Time) MemberOption {
	return func(f *MemberFixture) {
		f.DateOfBirth = &dateOfBirth
		f.MemberSince = &memberSince
	}
}

// WithMemberAdmin sets the admin flag.
func WithMemberAdmin(isAdmin bool) MemberOption {
	return func(f *MemberFixture) { f.IsAdmin = isAdmin }
}

// WithMemberPasswordHash overrides the stored hash.
func WithMemberPasswordHash(hash string) MemberOption {
	return func(f *MemberFixture) { f.PasswordHash = hash }
}

// Persistence returns the fixture as a persistence.Member.
func (f MemberFixture) Persistence() persistence.Member {
	return persistence.Member{
		ID:               f.ID,
		Username:         f.Username,
		Email:            copyStringPtr(f.Email),
		Name:             f.Name,
		MembershipNumber: f.MembershipNumber,
		DateOfBirth:      copyTimePtr(f.DateOfBirth),
		MemberSince:      copyTimePtr(f.MemberSince),
		IsAdmin:          f.IsAdmin,
		PasswordHash:     f.PasswordHash,
		CreatedAt:        f.CreatedAt,
		UpdatedAt:        f.UpdatedAt,
	}
}

// Application returns the fixture as an application.Member.
func (f MemberFixture) Application() application.Member {
	return application.Member{
		ID:               f.ID,
		Username:         f.Username,
		Email:            copyStringPtr(f.Email),
		Name:             f.Name,
		MembershipNumber: f.MembershipNumber,
		DateOfBirth:      copyTimePtr(f.DateOfBirth),
		MemberSince:      copyTimePtr(f.MemberSince),
		IsAdmin:          f.IsAdmin,
		CreatedAt:        f.CreatedAt,
		UpdatedAt:        f.UpdatedAt,
	}
}

// Credentials returns the member together with its password hash.
func (f MemberFixture) Credentials() application.MemberCredentials {
	return application.MemberCredentials{Member: f.Application(), PasswordHash: f.PasswordHash}
}

// Principal returns the caller identity for the member.
func (f MemberFixture) Principal() application.Principal {
	return application.Principal{MemberID: f.ID, IsAdmin: f.IsAdmin}
}

// ----------------------------- Class fixtures -----------------------------

// PatternFixture is one weekly slot of a class.
type PatternFixture struct {
	ID              string
	Weekday         time.Weekday
	StartTime       string
	MaxCapacity     int
	CurrentCapacity int
}

// NewPatternFixture returns a slot with a unique ID on the given day and time.
func NewPatternFixture(day time.Weekday, startTime string, maxCapacity int) PatternFixture {
	idx := atomic.AddUint64(&patternCounter, 1)
	return PatternFixture{
		ID:          fmt.Sprintf("pattern-%03d", idx),
		Weekday:     day,
		StartTime:   startTime,
		MaxCapacity: maxCapacity,
	}
}

// ClassFixture is a deterministic class definition.
type ClassFixture struct {
	ID         string
	Name       string
	Instructor string
	Patterns   []PatternFixture
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// ClassOption configures a ClassFixture.
type ClassOption func(*ClassFixture)

// NewClassFixture returns a class with a single Monday 09:00 slot of ten seats
// unless patterns are supplied.
func NewClassFixture(opts ...ClassOption) ClassFixture {
	idx := atomic.AddUint64(&classCounter, 1)
	created := referenceTime.Add(time.Duration(idx) * time.Minute)
	fixture := ClassFixture{
		ID:         fmt.Sprintf("class-%03d", idx),
		Name:       fmt.Sprintf("Class %03d", idx),
		Instructor: fmt.Sprintf("Coach %03d", idx),
		CreatedAt:  created,
		UpdatedAt:  created,
	}
	for _, opt := range opts {
		opt(&fixture)
	}
	if fixture.Patterns == nil {
		fixture.Patterns = []PatternFixture{NewPatternFixture(time.Monday, "09:00", 10)}
	}
	return fixture
}

// WithClassID overrides the generated class ID.
func WithClassID(id string) ClassOption {
	return func(f *ClassFixture) { f.ID = id }
}

// WithClassName overrides the class name.
func WithClassName(name string) ClassOption {
	return func(f *ClassFixture) { f.Name = name }
}

// WithClassInstructor overrides the instructor.
func WithClassInstructor(instructor string) ClassOption {
	return func(f *ClassFixture) { f.Instructor = instructor }
}

// WithClassPatterns replaces the default slot.
func WithClassPatterns(patterns ...PatternFixture) ClassOption {
	return func(f *ClassFixture) { f.Patterns = append([]PatternFixture{}, patterns...) }
}

// Persistence returns the fixture as a persistence.Class.
func (f ClassFixture) Persistence() persistence.Class {
	patterns := make([]persistence.Pattern, len(f.Patterns))
	for i, p := range f.Patterns {
		patterns[i] = persistence.Pattern{
			ID:              p.ID,
			ClassID:         f.ID,
			Weekday:         p.Weekday,
			StartTime:       p.StartTime,
			MaxCapacity:     p.MaxCapacity,
			CurrentCapacity: p.CurrentCapacity,
			Position:        i,
		}
	}
	return persistence.Class{
		ID:         f.ID,
		Name:       f.Name,
		Instructor: f.Instructor,
		Patterns:   patterns,
		CreatedAt:  f.CreatedAt,
		UpdatedAt:  f.UpdatedAt,
	}
}

// Input returns the fields an administrator would submit to create the class.
func (f ClassFixture) Input() application.ClassInput {
	patterns := make([]application.PatternInput, len(f.Patterns))
	for i, p := range f.Patterns {
		patterns[i] = application.PatternInput{
			ID:          p.ID,
			Weekday:     int(p.Weekday),
			StartTime:   p.StartTime,
			MaxCapacity: p.MaxCapacity,
		}
	}
	return application.ClassInput{Name: f.Name, Instructor: f.Instructor, Patterns: patterns}
}

// ----------------------------- Booking fixtures -----------------------------

// BookingFixture is a deterministic reservation.
type BookingFixture struct {
	ID              string
	MemberID        string
	PatternID       string
	ClassID         string
	OccurrenceStart time.Time
	CreatedAt       time.Time
}

// NewBookingFixture returns an active booking for member on the class's first slot.
func NewBookingFixture(member MemberFixture, class ClassFixture) BookingFixture {
	idx := atomic.AddUint64(&bookingCounter, 1)
	fixture := BookingFixture{
		ID:        bookingIDs.Next(),
		MemberID:  member.ID,
		ClassID:   class.ID,
		CreatedAt: referenceTime.Add(time.Duration(idx) * time.Second),
	}
	if len(class.Patterns) > 0 {
		slot := class.Patterns[0]
		fixture.PatternID = slot.ID
		hour, minute, err := recurrence.ParseClock(slot.StartTime)
		if err == nil {
			fixture.OccurrenceStart = NewClock(referenceTime).AdvanceTo(slot.Weekday, hour, minute)
		}
	}
	return fixture
}

// Persistence returns the fixture as a persistence.Booking.
func (f BookingFixture) Persistence() persistence.Booking {
	return persistence.Booking{
		ID:              f.ID,
		MemberID:        f.MemberID,
		PatternID:       f.PatternID,
		ClassID:         f.ClassID,
		OccurrenceStart: f.OccurrenceStart,
		Status:          persistence.BookingStatusActive,
		CreatedAt:       f.CreatedAt,
	}
}

// ----------------------------- Session fixtures -----------------------------

// SessionFixture is a deterministic refresh-token session.
type SessionFixture struct {
	ID           string
	MemberID     string
	RefreshToken string
	ExpiresAt    time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
	RevokedAt    *time.Time
}

// SessionOption configures a SessionFixture.
type SessionOption func(*SessionFixture)

// NewSessionFixture returns a session that expires a week after ReferenceTime.
func NewSessionFixture(opts ...SessionOption) SessionFixture {
	idx := atomic.AddUint64(&sessionCounter, 1)
	fixture := SessionFixture{
		ID:           sessionIDs.Next(),
		MemberID:     fmt.Sprintf("member-%03d", idx),
		RefreshToken: fmt.Sprintf("refresh-%03d", idx),
		ExpiresAt:    referenceTime.Add(7 * 24 * time.Hour),
		CreatedAt:    referenceTime,
		UpdatedAt:    referenceTime,
	}
	for _, opt := range opts {
		opt(&fixture)
	}
	return fixture
}

// WithSessionMemberID overrides the owning member.
func WithSessionMemberID(id string) SessionOption {
	return func(f *SessionFixture) { f.MemberID = id }
}

// WithSessionRefreshToken overrides the refresh token.
func WithSessionRefreshToken(token string) SessionOption {
	return func(f *SessionFixture) { f.RefreshToken = token }
}

// WithSessionExpiresAt overrides the expiry.
func WithSessionExpiresAt(t time.Time) SessionOption {
	return func(f *SessionFixture) { f.ExpiresAt = t }
}

// WithSessionRevokedAt marks the session as revoked.
func WithSessionRevokedAt(t time.Time) SessionOption {
	return func(f *SessionFixture) { f.RevokedAt = &t }
}

// Persistence returns the fixture as a persistence.Session.
func (f SessionFixture) Persistence() persistence.Session {
	return persistence.Session{
		ID:           f.ID,
		MemberID:     f.MemberID,
		RefreshToken: f.RefreshToken,
		ExpiresAt:    f.ExpiresAt,
		CreatedAt:    f.CreatedAt,
		UpdatedAt:    f.UpdatedAt,
		RevokedAt:    copyTimePtr(f.RevokedAt),
	}
}

func copyStringPtr(src *string) *string {
	if src == nil {
		return nil
	}
	v := *src
	return &v
}

func copyTimePtr(src *time.Time) *time.Time {
	if src == nil {
		return nil
	}
	v := *src
	return &v
}

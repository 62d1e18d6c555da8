package application

import (
	"time"

	"github.com/example/gym-scheduler/internal/recurrence"
)

// Principal represents the authenticated member invoking a service method.
type Principal struct {
	MemberID  string
	SessionID string
	IsAdmin   bool
}

// OccurrencePattern is a recurring weekly slot of a class. It carries the
// seat counter for that slot.
type OccurrencePattern struct {
	ID              string
	ClassID         string
	Weekday         time.Weekday
	StartTime       string
	MaxCapacity     int
	CurrentCapacity int
}

// ClassDefinition represents a class offering with its weekly patterns.
type ClassDefinition struct {
	ID         string
	Name       string
	Instructor string
	Patterns   []OccurrencePattern
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// PatternInput captures caller provided pattern fields. A known ID edits the
// existing pattern in place; an empty ID adds a new one.
type PatternInput struct {
	ID          string `json:"id"`
	Weekday     int    `json:"weekday" validate:"min=0,max=6"`
	StartTime   string `json:"start_time" validate:"required,hhmm"`
	MaxCapacity int    `json:"max_capacity" validate:"gt=0"`
}

// ClassInput captures caller provided class fields.
type ClassInput struct {
	Name       string         `json:"name" validate:"required,max=120"`
	Instructor string         `json:"instructor" validate:"max=120"`
	Patterns   []PatternInput `json:"patterns" validate:"dive"`
}

// CreateClassParams wraps the data required to create a class.
type CreateClassParams struct {
	Principal Principal
	Input     ClassInput
}

// UpdateClassParams wraps the data required to update a class.
type UpdateClassParams struct {
	Principal Principal
	ClassID   string
	Input     ClassInput
}

// BookingStatus enumerates the lifecycle states of a booking.
type BookingStatus string

const (
	BookingStatusActive    BookingStatus = "active"
	BookingStatusCancelled BookingStatus = "cancelled"
)

// Booking is a member reservation against a pattern, together with the slot
// details recorded when it was made.
type Booking struct {
	ID              string
	MemberID        string
	PatternID       string
	ClassID         string
	ClassName       string
	Weekday         time.Weekday
	StartTime       string
	OccurrenceStart time.Time
	Status          BookingStatus
	CreatedAt       time.Time
	CancelledAt     *time.Time
}

// Member represents a roster entry exposed by the application services.
type Member struct {
	ID               string
	Username         string
	Email            *string
	Name             string
	MembershipNumber string
	DateOfBirth      *time.Time
	MemberSince      *time.Time
	IsAdmin          bool
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// MemberCredentials pairs a member with the stored password hash.
type MemberCredentials struct {
	Member       Member
	PasswordHash string
}

// MemberInput captures caller provided member attributes. Password is
// required on create and optional on update.
type MemberInput struct {
	Username         string     `json:"username" validate:"required,max=64"`
	Email            *string    `json:"email" validate:"omitempty,email"`
	Name             string     `json:"name" validate:"required,max=120"`
	MembershipNumber string     `json:"membership_number" validate:"required,max=32"`
	DateOfBirth      *time.Time `json:"date_of_birth"`
	MemberSince      *time.Time `json:"member_since"`
	IsAdmin          bool       `json:"is_admin"`
	Password         *string    `json:"password" validate:"omitempty,min=8"`
}

// CreateMemberParams wraps the data required to create a member.
type CreateMemberParams struct {
	Principal Principal
	Input     MemberInput
}

// UpdateMemberParams wraps the data required to update a member.
type UpdateMemberParams struct {
	Principal Principal
	MemberID  string
	Input     MemberInput
}

// Session represents the refresh token state issued to a member.
type Session struct {
	ID           string
	MemberID     string
	RefreshToken string
	ExpiresAt    time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
	RevokedAt    *time.Time
}

// AuthResult is returned by every successful login or refresh.
type AuthResult struct {
	Member                Member
	SessionID             string
	AccessToken           string
	AccessTokenExpiresAt  time.Time
	RefreshToken          string
	RefreshTokenExpiresAt time.Time
}

// WeeklySchedule is the projected calendar of one week.
type WeeklySchedule struct {
	WeekStart   time.Time
	WeekEnd     time.Time
	Occurrences []recurrence.Occurrence
}

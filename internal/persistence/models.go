package persistence

import "time"

// Member represents a gym member account together with its roster attributes.
type Member struct {
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

// Class represents a class definition with its weekly patterns.
type Class struct {
	ID         string
	Name       string
	Instructor string
	Patterns   []Pattern
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Pattern represents a recurring weekly slot that carries the seat counter.
type Pattern struct {
	ID              string
	ClassID         string
	Weekday         time.Weekday
	StartTime       string
	MaxCapacity     int
	CurrentCapacity int
	Position        int
}

// BookingStatus enumerates the lifecycle states of a booking.
type BookingStatus string

const (
	BookingStatusActive    BookingStatus = "active"
	BookingStatusCancelled BookingStatus = "cancelled"
)

// Booking represents a member reservation against a pattern.
type Booking struct {
	ID              string
	MemberID        string
	PatternID       string
	ClassID         string
	OccurrenceStart time.Time
	Status          BookingStatus
	CreatedAt       time.Time
	CancelledAt     *time.Time
}

// BookingDetail carries a booking with the class and slot recorded when it was made.
type BookingDetail struct {
	Booking
	ClassName string
	Weekday   time.Weekday
	StartTime string
}

// Session represents a refresh token issued to a member.
type Session struct {
	ID           string
	MemberID     string
	RefreshToken string
	ExpiresAt    time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
	RevokedAt    *time.Time
}

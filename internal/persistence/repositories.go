package persistence

import (
	"context"
	"time"
)

// MemberRepository exposes CRUD operations for members.
type MemberRepository interface {
	CreateMember(ctx context.Context, member Member) error
	UpdateMember(ctx context.Context, member Member) error
	GetMember(ctx context.Context, id string) (Member, error)
	GetMemberByUsername(ctx context.Context, username string) (Member, error)
	GetMemberByEmail(ctx context.Context, email string) (Member, error)
	ListMembers(ctx context.Context) ([]Member, error)
	DeleteMember(ctx context.Context, id string) error
}

// ClassRepository stores class definitions and their weekly patterns.
//
// UpdateClass merges patterns by ID: patterns missing from the update are
// removed, and ErrInUse is returned when a removed pattern still holds active
// bookings or when a new seat limit falls below the seats already taken.
type ClassRepository interface {
	CreateClass(ctx context.Context, class Class) error
	UpdateClass(ctx context.Context, class Class) error
	GetClass(ctx context.Context, id string) (Class, error)
	GetPattern(ctx context.Context, id string) (Pattern, error)
	ListClasses(ctx context.Context) ([]Class, error)
	DeleteClass(ctx context.Context, id string) error
}

// BookingRepository is the ledger of reservations. Reserve and Cancel update
// the pattern seat counter and the booking row in a single transaction.
type BookingRepository interface {
	Reserve(ctx context.Context, booking Booking) (BookingDetail, error)
	Cancel(ctx context.Context, bookingID string, cancelledAt time.Time) (BookingDetail, error)
	GetBooking(ctx context.Context, id string) (BookingDetail, error)
	ListBookingsForMember(ctx context.Context, memberID string) ([]BookingDetail, error)
}

// SessionRepository stores refresh token state.
type SessionRepository interface {
	CreateSession(ctx context.Context, session Session) (Session, error)
	GetSession(ctx context.Context, id string) (Session, error)
	GetSessionByRefreshToken(ctx context.Context, token string) (Session, error)
	RotateRefreshToken(ctx context.Context, id, previous, next string, expiresAt, updatedAt time.Time) (Session, error)
	RevokeSession(ctx context.Context, token string, revokedAt time.Time) (Session, error)
	DeleteExpiredSessions(ctx context.Context, reference time.Time) error
}

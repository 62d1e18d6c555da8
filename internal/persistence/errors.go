package persistence

import "errors"

var (
	// ErrNotFound is returned when the requested record does not exist.
	ErrNotFound = errors.New("persistence: not found")
	// ErrDuplicate is returned when a unique key is already taken.
	ErrDuplicate = errors.New("persistence: duplicate")
	// ErrConstraintViolation is returned when a record breaks a column or check constraint.
	ErrConstraintViolation = errors.New("persistence: constraint violation")
	// ErrForeignKeyViolation is returned when a referenced record is missing.
	ErrForeignKeyViolation = errors.New("persistence: foreign key violation")
	// ErrCapacityExceeded is returned when a pattern has no free seat left.
	ErrCapacityExceeded = errors.New("persistence: capacity exceeded")
	// ErrDuplicateBooking is returned when the member already holds an active booking for the pattern.
	ErrDuplicateBooking = errors.New("persistence: duplicate active booking")
	// ErrAlreadyCancelled is returned when cancelling a booking that is no longer active.
	ErrAlreadyCancelled = errors.New("persistence: booking already cancelled")
	// ErrInUse is returned when a record cannot be removed while active bookings reference it.
	ErrInUse = errors.New("persistence: referenced by active bookings")
)

package application

import "errors"

var (
	// ErrNotFound is returned when the requested resource does not exist.
	ErrNotFound = errors.New("application: not found")
	// ErrConflict is returned when a change would orphan active bookings or collide with existing data.
	ErrConflict = errors.New("application: conflict")
	// ErrAlreadyExists is returned when a unique attribute such as a username is taken.
	ErrAlreadyExists = errors.New("application: already exists")
	// ErrCapacityExceeded is returned when the requested slot has no free seat.
	ErrCapacityExceeded = errors.New("application: capacity exceeded")
	// ErrDuplicateBooking is returned when the member already holds an active booking for the slot.
	ErrDuplicateBooking = errors.New("application: duplicate booking")
	// ErrForbidden is returned when the acting principal lacks permission for an operation.
	ErrForbidden = errors.New("application: forbidden")
	// ErrAlreadyCancelled is returned when cancelling a booking that is no longer active.
	ErrAlreadyCancelled = errors.New("application: booking already cancelled")
	// ErrAuthExpired is returned for an access token whose lifetime has passed. Refreshing recovers from it.
	ErrAuthExpired = errors.New("application: access token expired")
	// ErrAuthInvalid is returned for tokens that can never be accepted again.
	ErrAuthInvalid = errors.New("application: authentication invalid")
	// ErrInvalidCredentials is returned when a login attempt fails.
	ErrInvalidCredentials = errors.New("application: invalid credentials")
)

// ValidationError captures field level validation issues that callers can surface to users.
type ValidationError struct {
	FieldErrors map[string]string
}

// Error implements the error interface.
func (v *ValidationError) Error() string {
	if v == nil {
		return ""
	}
	return "validation failed"
}

// HasErrors reports whether any field level issues were recorded.
func (v *ValidationError) HasErrors() bool {
	return v != nil && len(v.FieldErrors) > 0
}

// add records a field level validation error. The first message for a field wins.
func (v *ValidationError) add(field, message string) {
	if v.FieldErrors == nil {
		v.FieldErrors = make(map[string]string)
	}
	if _, exists := v.FieldErrors[field]; exists {
		return
	}
	v.FieldErrors[field] = message
}

// merge copies entries from another validation error into the receiver.
func (v *ValidationError) merge(other *ValidationError) {
	if other == nil || len(other.FieldErrors) == 0 {
		return
	}
	for field, msg := range other.FieldErrors {
		v.add(field, msg)
	}
}

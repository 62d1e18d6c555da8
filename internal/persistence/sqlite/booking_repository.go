package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/example/gym-scheduler/internal/persistence"
)

// BookingRepository implements persistence.BookingRepository using SQLite.
// Reservations take the write lock when the transaction begins, so the seat
// check and the counter update cannot interleave between writers.
type BookingRepository struct {
	pool   *ConnectionPool
	mapper *ErrorMapper
}

// NewBookingRepository creates a new SQLite booking repository
func NewBookingRepository(pool *ConnectionPool) *BookingRepository {
	return &BookingRepository{
		pool:   pool,
		mapper: NewErrorMapper(),
	}
}

const bookingColumns = `id, member_id, pattern_id, class_id, class_name, weekday, start_time, occurrence_start, status, created_at, cancelled_at`

// Reserve takes one seat on the booking's pattern and records the booking.
func (r *BookingRepository) Reserve(ctx context.Context, booking persistence.Booking) (persistence.BookingDetail, error) {
	if booking.ID == "" || booking.MemberID == "" {
		return persistence.BookingDetail{}, persistence.ErrConstraintViolation
	}
	if booking.PatternID == "" {
		return persistence.BookingDetail{}, persistence.ErrNotFound
	}

	var detail persistence.BookingDetail
	err := r.pool.WithTransaction(ctx, func(tx *sql.Tx) error {
		var (
			weekday   int
			className string
		)
		detail = persistence.BookingDetail{Booking: booking}

		// DeleteMember refuses members with active bookings, so the owner
		// must still exist when the seat is taken.
		var member int
		err := tx.QueryRowContext(ctx, `SELECT 1 FROM members WHERE id = ?`, booking.MemberID).Scan(&member)
		if err != nil {
			return r.mapper.MapError(err)
		}

		err = tx.QueryRowContext(ctx, `
			SELECT p.class_id, p.weekday, p.start_time, c.name
			FROM occurrence_patterns p
			JOIN classes c ON c.id = p.class_id
			WHERE p.id = ?
		`, booking.PatternID).Scan(&detail.ClassID, &weekday, &detail.StartTime, &className)
		if err != nil {
			return r.mapper.MapError(err)
		}
		detail.Weekday = time.Weekday(weekday)
		detail.ClassName = className

		var held int
		err = tx.QueryRowContext(ctx, `
			SELECT COUNT(*) FROM bookings WHERE member_id = ? AND pattern_id = ? AND status = 'active'
		`, booking.MemberID, booking.PatternID).Scan(&held)
		if err != nil {
			return r.mapper.MapError(err)
		}
		if held > 0 {
			return persistence.ErrDuplicateBooking
		}

		result, err := tx.ExecContext(ctx, `
			UPDATE occurrence_patterns
			SET current_capacity = current_capacity + 1
			WHERE id = ? AND current_capacity < max_capacity
		`, booking.PatternID)
		if err != nil {
			return r.mapper.MapError(err)
		}
		if err := requireAffected(result); err != nil {
			if errors.Is(err, persistence.ErrNotFound) {
				return persistence.ErrCapacityExceeded
			}
			return err
		}

		detail.Status = persistence.BookingStatusActive
		detail.CancelledAt = nil
		_, err = tx.ExecContext(ctx, `INSERT INTO bookings (`+bookingColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			detail.ID,
			detail.MemberID,
			detail.PatternID,
			detail.ClassID,
			detail.ClassName,
			int(detail.Weekday),
			detail.StartTime,
			formatTime(detail.OccurrenceStart),
			string(detail.Status),
			formatTime(detail.CreatedAt),
			sql.NullString{},
		)
		if err != nil {
			err = r.mapper.MapError(err)
			if errors.Is(err, persistence.ErrDuplicate) {
				return persistence.ErrDuplicateBooking
			}
			return err
		}
		return nil
	})
	if err != nil {
		return persistence.BookingDetail{}, err
	}
	return detail, nil
}

// Cancel marks an active booking cancelled and returns its seat.
func (r *BookingRepository) Cancel(ctx context.Context, bookingID string, cancelledAt time.Time) (persistence.BookingDetail, error) {
	if bookingID == "" {
		return persistence.BookingDetail{}, persistence.ErrNotFound
	}

	var detail persistence.BookingDetail
	err := r.pool.WithTransaction(ctx, func(tx *sql.Tx) error {
		var err error
		detail, err = scanBooking(tx.QueryRowContext(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE id = ?`, bookingID))
		if err != nil {
			return r.mapper.MapError(err)
		}
		if detail.Status != persistence.BookingStatusActive {
			return persistence.ErrAlreadyCancelled
		}

		result, err := tx.ExecContext(ctx, `
			UPDATE bookings SET status = 'cancelled', cancelled_at = ? WHERE id = ? AND status = 'active'
		`, formatTime(cancelledAt), bookingID)
		if err != nil {
			return r.mapper.MapError(err)
		}
		if err := requireAffected(result); err != nil {
			return persistence.ErrAlreadyCancelled
		}

		if _, err := tx.ExecContext(ctx, `
			UPDATE occurrence_patterns
			SET current_capacity = current_capacity - 1
			WHERE id = ? AND current_capacity > 0
		`, detail.PatternID); err != nil {
			return r.mapper.MapError(err)
		}

		at := cancelledAt.UTC()
		detail.Status = persistence.BookingStatusCancelled
		detail.CancelledAt = &at
		return nil
	})
	if err != nil {
		return persistence.BookingDetail{}, err
	}
	return detail, nil
}

// GetBooking retrieves a booking by ID.
func (r *BookingRepository) GetBooking(ctx context.Context, id string) (persistence.BookingDetail, error) {
	if id == "" {
		return persistence.BookingDetail{}, persistence.ErrNotFound
	}
	detail, err := scanBooking(r.pool.DB().QueryRowContext(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE id = ?`, id))
	if err != nil {
		return persistence.BookingDetail{}, r.mapper.MapError(err)
	}
	return detail, nil
}

// ListBookingsForMember returns the member's bookings, active and cancelled,
// ordered by creation time then ID.
func (r *BookingRepository) ListBookingsForMember(ctx context.Context, memberID string) ([]persistence.BookingDetail, error) {
	rows, err := r.pool.DB().QueryContext(ctx, `
		SELECT `+bookingColumns+` FROM bookings
		WHERE member_id = ?
		ORDER BY created_at ASC, id ASC
	`, memberID)
	if err != nil {
		return nil, r.mapper.MapError(err)
	}
	defer rows.Close()

	var bookings []persistence.BookingDetail
	for rows.Next() {
		detail, err := scanBooking(rows)
		if err != nil {
			return nil, err
		}
		bookings = append(bookings, detail)
	}
	if err := rows.Err(); err != nil {
		return nil, r.mapper.MapError(err)
	}
	return bookings, nil
}

func scanBooking(row rowScanner) (persistence.BookingDetail, error) {
	var (
		detail                     persistence.BookingDetail
		weekday                    int
		status                     string
		occurrenceStart, createdAt string
		cancelledAt                sql.NullString
	)
	if err := row.Scan(
		&detail.ID,
		&detail.MemberID,
		&detail.PatternID,
		&detail.ClassID,
		&detail.ClassName,
		&weekday,
		&detail.StartTime,
		&occurrenceStart,
		&status,
		&createdAt,
		&cancelledAt,
	); err != nil {
		return persistence.BookingDetail{}, err
	}

	detail.Weekday = time.Weekday(weekday)
	detail.Status = persistence.BookingStatus(status)

	var err error
	if detail.OccurrenceStart, err = parseTime(occurrenceStart); err != nil {
		return persistence.BookingDetail{}, fmt.Errorf("failed to parse occurrence_start: %w", err)
	}
	if detail.CreatedAt, err = parseTime(createdAt); err != nil {
		return persistence.BookingDetail{}, fmt.Errorf("failed to parse created_at: %w", err)
	}
	if detail.CancelledAt, err = parseTimePtr(cancelledAt); err != nil {
		return persistence.BookingDetail{}, fmt.Errorf("failed to parse cancelled_at: %w", err)
	}
	return detail, nil
}

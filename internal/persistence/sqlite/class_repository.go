package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/example/gym-scheduler/internal/persistence"
)

// ClassRepository implements persistence.ClassRepository using SQLite
type ClassRepository struct {
	pool   *ConnectionPool
	mapper *ErrorMapper
}

// NewClassRepository creates a new SQLite class repository
func NewClassRepository(pool *ConnectionPool) *ClassRepository {
	return &ClassRepository{
		pool:   pool,
		mapper: NewErrorMapper(),
	}
}

// CreateClass inserts a class and its patterns in one transaction.
func (r *ClassRepository) CreateClass(ctx context.Context, class persistence.Class) error {
	if class.ID == "" || strings.TrimSpace(class.Name) == "" {
		return persistence.ErrConstraintViolation
	}

	return r.pool.WithTransaction(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO classes (id, name, instructor, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?)
		`, class.ID, class.Name, class.Instructor, formatTime(class.CreatedAt), formatTime(class.UpdatedAt))
		if err != nil {
			return r.mapper.MapError(err)
		}

		for i, pattern := range class.Patterns {
			pattern.Position = i
			pattern.CurrentCapacity = 0
			if err := r.insertPattern(ctx, tx, class.ID, pattern); err != nil {
				return err
			}
		}
		return nil
	})
}

// UpdateClass replaces the class attributes and merges its patterns by ID.
// Seat counters are never taken from the caller.
func (r *ClassRepository) UpdateClass(ctx context.Context, class persistence.Class) error {
	if class.ID == "" {
		return persistence.ErrNotFound
	}
	if strings.TrimSpace(class.Name) == "" {
		return persistence.ErrConstraintViolation
	}

	return r.pool.WithTransaction(ctx, func(tx *sql.Tx) error {
		result, err := tx.ExecContext(ctx, `
			UPDATE classes SET name = ?, instructor = ?, updated_at = ? WHERE id = ?
		`, class.Name, class.Instructor, formatTime(class.UpdatedAt), class.ID)
		if err != nil {
			return r.mapper.MapError(err)
		}
		if err := requireAffected(result); err != nil {
			return err
		}

		existing, err := loadPatterns(ctx, tx, `WHERE class_id = ?`, class.ID)
		if err != nil {
			return r.mapper.MapError(err)
		}
		stored := make(map[string]persistence.Pattern, len(existing))
		for _, pattern := range existing {
			stored[pattern.ID] = pattern
		}

		kept := make(map[string]bool, len(class.Patterns))
		for i, pattern := range class.Patterns {
			pattern.Position = i
			previous, ok := stored[pattern.ID]
			if !ok {
				pattern.CurrentCapacity = 0
				if err := r.insertPattern(ctx, tx, class.ID, pattern); err != nil {
					return err
				}
				continue
			}

			kept[pattern.ID] = true
			current := previous.CurrentCapacity
			if pattern.MaxCapacity < current {
				return fmt.Errorf("%w: pattern %s has %d seats taken", persistence.ErrInUse, pattern.ID, current)
			}
			// Active bookings record the slot they were made for.
			if current > 0 && (pattern.Weekday != previous.Weekday || pattern.StartTime != previous.StartTime) {
				return fmt.Errorf("%w: pattern %s cannot move while %d seats are taken", persistence.ErrInUse, pattern.ID, current)
			}
			_, err := tx.ExecContext(ctx, `
				UPDATE occurrence_patterns
				SET weekday = ?, start_time = ?, max_capacity = ?, position = ?
				WHERE id = ?
			`, int(pattern.Weekday), pattern.StartTime, pattern.MaxCapacity, pattern.Position, pattern.ID)
			if err != nil {
				return r.mapper.MapError(err)
			}
		}

		for _, pattern := range existing {
			if kept[pattern.ID] {
				continue
			}
			if pattern.CurrentCapacity > 0 {
				return fmt.Errorf("%w: pattern %s still has active bookings", persistence.ErrInUse, pattern.ID)
			}
			if _, err := tx.ExecContext(ctx, `DELETE FROM occurrence_patterns WHERE id = ?`, pattern.ID); err != nil {
				return r.mapper.MapError(err)
			}
		}
		return nil
	})
}

// GetClass retrieves a class with its patterns ordered by position.
func (r *ClassRepository) GetClass(ctx context.Context, id string) (persistence.Class, error) {
	if id == "" {
		return persistence.Class{}, persistence.ErrNotFound
	}

	db := r.pool.DB()
	class, err := scanClass(db.QueryRowContext(ctx, `
		SELECT id, name, instructor, created_at, updated_at FROM classes WHERE id = ?
	`, id))
	if err != nil {
		return persistence.Class{}, r.mapper.MapError(err)
	}

	class.Patterns, err = loadPatterns(ctx, db, `WHERE class_id = ?`, id)
	if err != nil {
		return persistence.Class{}, r.mapper.MapError(err)
	}
	return class, nil
}

// GetPattern returns a single weekly slot with its current seat count.
func (r *ClassRepository) GetPattern(ctx context.Context, id string) (persistence.Pattern, error) {
	if id == "" {
		return persistence.Pattern{}, persistence.ErrNotFound
	}

	patterns, err := loadPatterns(ctx, r.pool.DB(), `WHERE id = ?`, id)
	if err != nil {
		return persistence.Pattern{}, r.mapper.MapError(err)
	}
	if len(patterns) == 0 {
		return persistence.Pattern{}, persistence.ErrNotFound
	}
	return patterns[0], nil
}

// ListClasses returns every class ordered by name then ID.
func (r *ClassRepository) ListClasses(ctx context.Context) ([]persistence.Class, error) {
	db := r.pool.DB()
	rows, err := db.QueryContext(ctx, `
		SELECT id, name, instructor, created_at, updated_at FROM classes ORDER BY name ASC, id ASC
	`)
	if err != nil {
		return nil, r.mapper.MapError(err)
	}
	defer rows.Close()

	var classes []persistence.Class
	index := make(map[string]int)
	for rows.Next() {
		class, err := scanClass(rows)
		if err != nil {
			return nil, err
		}
		index[class.ID] = len(classes)
		classes = append(classes, class)
	}
	if err := rows.Err(); err != nil {
		return nil, r.mapper.MapError(err)
	}
	if len(classes) == 0 {
		return nil, nil
	}

	patterns, err := loadPatterns(ctx, db, ``)
	if err != nil {
		return nil, r.mapper.MapError(err)
	}
	for _, pattern := range patterns {
		if i, ok := index[pattern.ClassID]; ok {
			classes[i].Patterns = append(classes[i].Patterns, pattern)
		}
	}
	return classes, nil
}

// DeleteClass removes a class and its patterns. Classes with active bookings
// are kept and ErrInUse is returned.
func (r *ClassRepository) DeleteClass(ctx context.Context, id string) error {
	if id == "" {
		return persistence.ErrNotFound
	}

	return r.pool.WithTransaction(ctx, func(tx *sql.Tx) error {
		var active int
		err := tx.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM bookings WHERE class_id = ? AND status = 'active'`, id,
		).Scan(&active)
		if err != nil {
			return r.mapper.MapError(err)
		}
		if active > 0 {
			return persistence.ErrInUse
		}

		result, err := tx.ExecContext(ctx, `DELETE FROM classes WHERE id = ?`, id)
		if err != nil {
			return r.mapper.MapError(err)
		}
		return requireAffected(result)
	})
}

func (r *ClassRepository) insertPattern(ctx context.Context, tx *sql.Tx, classID string, pattern persistence.Pattern) error {
	if pattern.ID == "" {
		return persistence.ErrConstraintViolation
	}
	_, err := tx.ExecContext(ctx, `
		INSERT INTO occurrence_patterns (id, class_id, weekday, start_time, max_capacity, current_capacity, position)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, pattern.ID, classID, int(pattern.Weekday), pattern.StartTime, pattern.MaxCapacity, pattern.CurrentCapacity, pattern.Position)
	return r.mapper.MapError(err)
}

func scanClass(row rowScanner) (persistence.Class, error) {
	var (
		class                   persistence.Class
		createdAtStr, updatedAt string
	)
	if err := row.Scan(&class.ID, &class.Name, &class.Instructor, &createdAtStr, &updatedAt); err != nil {
		return persistence.Class{}, err
	}

	var err error
	if class.CreatedAt, err = parseTime(createdAtStr); err != nil {
		return persistence.Class{}, fmt.Errorf("failed to parse created_at: %w", err)
	}
	if class.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return persistence.Class{}, fmt.Errorf("failed to parse updated_at: %w", err)
	}
	return class, nil
}

// loadPatterns reads patterns matching the given WHERE clause, ordered by
// class then position.
func loadPatterns(ctx context.Context, q querier, where string, args ...any) ([]persistence.Pattern, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT id, class_id, weekday, start_time, max_capacity, current_capacity, position
		FROM occurrence_patterns `+where+`
		ORDER BY class_id ASC, position ASC, id ASC
	`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var patterns []persistence.Pattern
	for rows.Next() {
		var (
			pattern persistence.Pattern
			weekday int
		)
		if err := rows.Scan(
			&pattern.ID,
			&pattern.ClassID,
			&weekday,
			&pattern.StartTime,
			&pattern.MaxCapacity,
			&pattern.CurrentCapacity,
			&pattern.Position,
		); err != nil {
			return nil, err
		}
		pattern.Weekday = time.Weekday(weekday)
		patterns = append(patterns, pattern)
	}
	return patterns, rows.Err()
}

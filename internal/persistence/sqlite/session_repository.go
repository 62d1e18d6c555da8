package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/example/gym-scheduler/internal/persistence"
)

// SessionRepository implements persistence.SessionRepository using SQLite
type SessionRepository struct {
	pool   *ConnectionPool
	mapper *ErrorMapper
}

// NewSessionRepository creates a new SQLite session repository
func NewSessionRepository(pool *ConnectionPool) *SessionRepository {
	return &SessionRepository{
		pool:   pool,
		mapper: NewErrorMapper(),
	}
}

const sessionColumns = `id, member_id, refresh_token, expires_at, revoked_at, created_at, updated_at`

// CreateSession stores a new refresh token for a member
func (r *SessionRepository) CreateSession(ctx context.Context, session persistence.Session) (persistence.Session, error) {
	session = normalizeSession(session)
	if session.ID == "" || session.MemberID == "" || session.RefreshToken == "" {
		return persistence.Session{}, persistence.ErrConstraintViolation
	}

	_, err := r.pool.DB().ExecContext(ctx, `INSERT INTO sessions (`+sessionColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		session.ID,
		session.MemberID,
		session.RefreshToken,
		formatTime(session.ExpiresAt),
		formatTimePtr(session.RevokedAt),
		formatTime(session.CreatedAt),
		formatTime(session.UpdatedAt),
	)
	if err != nil {
		return persistence.Session{}, r.mapper.MapError(err)
	}
	return session, nil
}

// GetSession retrieves a session by ID
func (r *SessionRepository) GetSession(ctx context.Context, id string) (persistence.Session, error) {
	if id == "" {
		return persistence.Session{}, persistence.ErrNotFound
	}
	return r.getOne(ctx, r.pool.DB(), `WHERE id = ?`, id)
}

// GetSessionByRefreshToken retrieves a session by its refresh token value
func (r *SessionRepository) GetSessionByRefreshToken(ctx context.Context, token string) (persistence.Session, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return persistence.Session{}, persistence.ErrNotFound
	}
	return r.getOne(ctx, r.pool.DB(), `WHERE refresh_token = ?`, token)
}

// RotateRefreshToken swaps the refresh token of a live session. The swap only
// happens while the stored token still equals previous, so a token can be
// exchanged at most once; losing callers get ErrNotFound.
func (r *SessionRepository) RotateRefreshToken(ctx context.Context, id, previous, next string, expiresAt, updatedAt time.Time) (persistence.Session, error) {
	next = strings.TrimSpace(next)
	if id == "" || previous == "" {
		return persistence.Session{}, persistence.ErrNotFound
	}
	if next == "" {
		return persistence.Session{}, persistence.ErrConstraintViolation
	}

	var session persistence.Session
	err := r.pool.WithTransaction(ctx, func(tx *sql.Tx) error {
		result, err := tx.ExecContext(ctx, `
			UPDATE sessions
			SET refresh_token = ?, expires_at = ?, updated_at = ?
			WHERE id = ? AND refresh_token = ? AND revoked_at IS NULL
		`, next, formatTime(expiresAt), formatTime(updatedAt), id, previous)
		if err != nil {
			return r.mapper.MapError(err)
		}
		if err := requireAffected(result); err != nil {
			return err
		}

		session, err = r.getOne(ctx, tx, `WHERE id = ?`, id)
		return err
	})
	if err != nil {
		return persistence.Session{}, err
	}
	return session, nil
}

// RevokeSession marks the session holding token as revoked. Revoking twice
// keeps the first revocation time.
func (r *SessionRepository) RevokeSession(ctx context.Context, token string, revokedAt time.Time) (persistence.Session, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return persistence.Session{}, persistence.ErrNotFound
	}

	var session persistence.Session
	err := r.pool.WithTransaction(ctx, func(tx *sql.Tx) error {
		result, err := tx.ExecContext(ctx, `
			UPDATE sessions
			SET revoked_at = COALESCE(revoked_at, ?), updated_at = ?
			WHERE refresh_token = ?
		`, formatTime(revokedAt), formatTime(revokedAt), token)
		if err != nil {
			return r.mapper.MapError(err)
		}
		if err := requireAffected(result); err != nil {
			return err
		}

		session, err = r.getOne(ctx, tx, `WHERE refresh_token = ?`, token)
		return err
	})
	if err != nil {
		return persistence.Session{}, err
	}
	return session, nil
}

// DeleteExpiredSessions removes sessions that expired on or before the provided timestamp
func (r *SessionRepository) DeleteExpiredSessions(ctx context.Context, reference time.Time) error {
	_, err := r.pool.DB().ExecContext(ctx, `DELETE FROM sessions WHERE expires_at <= ?`, formatTime(reference))
	return r.mapper.MapError(err)
}

func (r *SessionRepository) getOne(ctx context.Context, q querier, where string, arg string) (persistence.Session, error) {
	var (
		session                         persistence.Session
		expiresAt, createdAt, updatedAt string
		revokedAt                       sql.NullString
	)
	err := q.QueryRowContext(ctx, `SELECT `+sessionColumns+` FROM sessions `+where, arg).Scan(
		&session.ID,
		&session.MemberID,
		&session.RefreshToken,
		&expiresAt,
		&revokedAt,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return persistence.Session{}, r.mapper.MapError(err)
	}

	if session.ExpiresAt, err = parseTime(expiresAt); err != nil {
		return persistence.Session{}, fmt.Errorf("failed to parse expires_at: %w", err)
	}
	if session.RevokedAt, err = parseTimePtr(revokedAt); err != nil {
		return persistence.Session{}, fmt.Errorf("failed to parse revoked_at: %w", err)
	}
	if session.CreatedAt, err = parseTime(createdAt); err != nil {
		return persistence.Session{}, fmt.Errorf("failed to parse created_at: %w", err)
	}
	if session.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return persistence.Session{}, fmt.Errorf("failed to parse updated_at: %w", err)
	}
	return session, nil
}

// normalizeSession normalizes session data for consistent storage
func normalizeSession(session persistence.Session) persistence.Session {
	session.RefreshToken = strings.TrimSpace(session.RefreshToken)
	session.CreatedAt = session.CreatedAt.UTC()
	session.UpdatedAt = session.UpdatedAt.UTC()
	session.ExpiresAt = session.ExpiresAt.UTC()
	if session.RevokedAt != nil {
		revoked := session.RevokedAt.UTC()
		session.RevokedAt = &revoked
	}
	return session
}

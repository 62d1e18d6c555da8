package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/example/gym-scheduler/internal/persistence"
)

// MemberRepository implements persistence.MemberRepository using SQLite
type MemberRepository struct {
	pool   *ConnectionPool
	mapper *ErrorMapper
}

// NewMemberRepository creates a new SQLite member repository
func NewMemberRepository(pool *ConnectionPool) *MemberRepository {
	return &MemberRepository{
		pool:   pool,
		mapper: NewErrorMapper(),
	}
}

const memberColumns = `id, username, email, name, membership_number, date_of_birth, member_since, is_admin, password_hash, created_at, updated_at`

// CreateMember inserts a new member into the database
func (r *MemberRepository) CreateMember(ctx context.Context, member persistence.Member) error {
	if member.ID == "" || strings.TrimSpace(member.Username) == "" {
		return persistence.ErrConstraintViolation
	}
	if member.PasswordHash == "" || member.MembershipNumber == "" {
		return persistence.ErrConstraintViolation
	}

	query := `INSERT INTO members (` + memberColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := r.pool.DB().ExecContext(ctx, query,
		member.ID,
		normalizeUsername(member.Username),
		nullString(normalizeEmailPtr(member.Email)),
		member.Name,
		member.MembershipNumber,
		formatDatePtr(member.DateOfBirth),
		formatDatePtr(member.MemberSince),
		member.IsAdmin,
		member.PasswordHash,
		formatTime(member.CreatedAt),
		formatTime(member.UpdatedAt),
	)
	return r.mapper.MapError(err)
}

// UpdateMember updates an existing member in the database
func (r *MemberRepository) UpdateMember(ctx context.Context, member persistence.Member) error {
	if member.ID == "" {
		return persistence.ErrNotFound
	}
	if member.PasswordHash == "" || member.MembershipNumber == "" {
		return persistence.ErrConstraintViolation
	}

	query := `
		UPDATE members
		SET username = ?, email = ?, name = ?, membership_number = ?, date_of_birth = ?,
		    member_since = ?, is_admin = ?, password_hash = ?, updated_at = ?
		WHERE id = ?
	`
	result, err := r.pool.DB().ExecContext(ctx, query,
		normalizeUsername(member.Username),
		nullString(normalizeEmailPtr(member.Email)),
		member.Name,
		member.MembershipNumber,
		formatDatePtr(member.DateOfBirth),
		formatDatePtr(member.MemberSince),
		member.IsAdmin,
		member.PasswordHash,
		formatTime(member.UpdatedAt),
		member.ID,
	)
	if err != nil {
		return r.mapper.MapError(err)
	}
	return requireAffected(result)
}

// GetMember retrieves a member by ID
func (r *MemberRepository) GetMember(ctx context.Context, id string) (persistence.Member, error) {
	if id == "" {
		return persistence.Member{}, persistence.ErrNotFound
	}
	return r.getOne(ctx, `SELECT `+memberColumns+` FROM members WHERE id = ?`, id)
}

// GetMemberByUsername retrieves a member by login name
func (r *MemberRepository) GetMemberByUsername(ctx context.Context, username string) (persistence.Member, error) {
	username = normalizeUsername(username)
	if username == "" {
		return persistence.Member{}, persistence.ErrNotFound
	}
	return r.getOne(ctx, `SELECT `+memberColumns+` FROM members WHERE username = ?`, username)
}

// GetMemberByEmail retrieves a member by email address
func (r *MemberRepository) GetMemberByEmail(ctx context.Context, email string) (persistence.Member, error) {
	email = normalizeEmail(email)
	if email == "" {
		return persistence.Member{}, persistence.ErrNotFound
	}
	return r.getOne(ctx, `SELECT `+memberColumns+` FROM members WHERE email = ?`, email)
}

// ListMembers returns all members ordered by name then ID
func (r *MemberRepository) ListMembers(ctx context.Context) ([]persistence.Member, error) {
	rows, err := r.pool.DB().QueryContext(ctx, `SELECT `+memberColumns+` FROM members ORDER BY name ASC, id ASC`)
	if err != nil {
		return nil, r.mapper.MapError(err)
	}
	defer rows.Close()

	var members []persistence.Member
	for rows.Next() {
		member, err := scanMember(rows)
		if err != nil {
			return nil, err
		}
		members = append(members, member)
	}
	if err := rows.Err(); err != nil {
		return nil, r.mapper.MapError(err)
	}
	return members, nil
}

// DeleteMember removes a member. Members holding active bookings cannot be
// removed; their sessions are dropped by the cascading foreign key.
func (r *MemberRepository) DeleteMember(ctx context.Context, id string) error {
	if id == "" {
		return persistence.ErrNotFound
	}

	return r.pool.WithTransaction(ctx, func(tx *sql.Tx) error {
		var active int
		err := tx.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM bookings WHERE member_id = ? AND status = 'active'`, id,
		).Scan(&active)
		if err != nil {
			return r.mapper.MapError(err)
		}
		if active > 0 {
			return persistence.ErrInUse
		}

		result, err := tx.ExecContext(ctx, `DELETE FROM members WHERE id = ?`, id)
		if err != nil {
			return r.mapper.MapError(err)
		}
		return requireAffected(result)
	})
}

func (r *MemberRepository) getOne(ctx context.Context, query string, arg string) (persistence.Member, error) {
	member, err := scanMember(r.pool.DB().QueryRowContext(ctx, query, arg))
	if err != nil {
		return persistence.Member{}, r.mapper.MapError(err)
	}
	return member, nil
}

func scanMember(row rowScanner) (persistence.Member, error) {
	var (
		member                   persistence.Member
		email, dob, memberSince  sql.NullString
		createdAtStr, updatedStr string
	)
	if err := row.Scan(
		&member.ID,
		&member.Username,
		&email,
		&member.Name,
		&member.MembershipNumber,
		&dob,
		&memberSince,
		&member.IsAdmin,
		&member.PasswordHash,
		&createdAtStr,
		&updatedStr,
	); err != nil {
		return persistence.Member{}, err
	}

	member.Email = stringPtr(email)

	var err error
	if member.DateOfBirth, err = parseDatePtr(dob); err != nil {
		return persistence.Member{}, fmt.Errorf("failed to parse date_of_birth: %w", err)
	}
	if member.MemberSince, err = parseDatePtr(memberSince); err != nil {
		return persistence.Member{}, fmt.Errorf("failed to parse member_since: %w", err)
	}
	if member.CreatedAt, err = parseTime(createdAtStr); err != nil {
		return persistence.Member{}, fmt.Errorf("failed to parse created_at: %w", err)
	}
	if member.UpdatedAt, err = parseTime(updatedStr); err != nil {
		return persistence.Member{}, fmt.Errorf("failed to parse updated_at: %w", err)
	}
	return member, nil
}

// requireAffected turns an update that touched no rows into ErrNotFound.
func requireAffected(result sql.Result) error {
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return persistence.ErrNotFound
	}
	return nil
}

// normalizeEmail normalizes email addresses for consistent storage and lookup
func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func normalizeEmailPtr(email *string) *string {
	if email == nil {
		return nil
	}
	normalized := normalizeEmail(*email)
	if normalized == "" {
		return nil
	}
	return &normalized
}

func normalizeUsername(username string) string {
	return strings.ToLower(strings.TrimSpace(username))
}

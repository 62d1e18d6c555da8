package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/example/gym-scheduler/internal/persistence"
)

// MemberRepository captures the roster persistence operations needed by the service.
// UpdateMember keeps the stored password hash when PasswordHash is empty.
type MemberRepository interface {
	CreateMember(ctx context.Context, member MemberCredentials) (Member, error)
	UpdateMember(ctx context.Context, member MemberCredentials) (Member, error)
	GetMember(ctx context.Context, id string) (Member, error)
	ListMembers(ctx context.Context) ([]Member, error)
	DeleteMember(ctx context.Context, id string) error
}

// PasswordHasher derives the stored representation of a password.
type PasswordHasher func(password string) (string, error)

// MemberService manages the membership roster.
type MemberService struct {
	members      MemberRepository
	hashPassword PasswordHasher
	idGenerator  func() string
	now          func() time.Time
	logger       *slog.Logger
}

// NewMemberService constructs a member service with the provided dependencies.
func NewMemberService(members MemberRepository, hasher PasswordHasher, idGenerator func() string, now func() time.Time) *MemberService {
	return NewMemberServiceWithLogger(members, hasher, idGenerator, now, nil)
}

// NewMemberServiceWithLogger constructs a member service with a specified logger.
func NewMemberServiceWithLogger(members MemberRepository, hasher PasswordHasher, idGenerator func() string, now func() time.Time, logger *slog.Logger) *MemberService {
	if hasher == nil {
		hasher = HashPassword
	}
	if idGenerator == nil {
		idGenerator = func() string { return "" }
	}
	if now == nil {
		now = time.Now
	}
	return &MemberService{
		members:      members,
		hashPassword: hasher,
		idGenerator:  idGenerator,
		now:          now,
		logger:       defaultLogger(logger),
	}
}

func (s *MemberService) loggerWith(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return serviceLogger(ctx, s.logger, "MemberService", operation, attrs...)
}

// List returns the roster ordered by name for administrators.
func (s *MemberService) List(ctx context.Context, principal Principal) ([]Member, error) {
	if s == nil {
		return nil, fmt.Errorf("MemberService is nil")
	}
	if !principal.IsAdmin {
		return nil, ErrForbidden
	}
	if s.members == nil {
		return nil, fmt.Errorf("member repository not configured")
	}

	members, err := s.members.ListMembers(ctx)
	if err != nil {
		err = mapMemberRepoError(err)
		logFailure(ctx, s.loggerWith(ctx, "List", "principal_id", principal.MemberID), "failed to list members", err)
		return nil, err
	}

	sort.Slice(members, func(i, j int) bool {
		if members[i].Name == members[j].Name {
			return members[i].ID < members[j].ID
		}
		return members[i].Name < members[j].Name
	})
	return members, nil
}

// Get returns a member. Members may read their own record; administrators any record.
func (s *MemberService) Get(ctx context.Context, principal Principal, id string) (Member, error) {
	if s == nil {
		return Member{}, fmt.Errorf("MemberService is nil")
	}
	if s.members == nil {
		return Member{}, fmt.Errorf("member repository not configured")
	}

	id = strings.TrimSpace(id)
	if id == "" {
		return Member{}, ErrNotFound
	}
	if id != principal.MemberID && !principal.IsAdmin {
		return Member{}, ErrForbidden
	}

	member, err := s.members.GetMember(ctx, id)
	if err != nil {
		return Member{}, mapMemberRepoError(err)
	}
	return member, nil
}

// Me returns the record of the calling member.
func (s *MemberService) Me(ctx context.Context, principal Principal) (Member, error) {
	return s.Get(ctx, principal, principal.MemberID)
}

// Create validates input and adds a member to the roster.
func (s *MemberService) Create(ctx context.Context, params CreateMemberParams) (member Member, err error) {
	if s == nil {
		err = fmt.Errorf("MemberService is nil")
		return
	}

	logger := s.loggerWith(ctx, "Create", "principal_id", params.Principal.MemberID)
	defer func() {
		if err != nil {
			logFailure(ctx, logger, "failed to create member", err)
			return
		}
		logger.With("member_id", member.ID, "is_admin", member.IsAdmin).InfoContext(ctx, "member created")
	}()

	if !params.Principal.IsAdmin {
		err = ErrForbidden
		return
	}
	if s.members == nil {
		err = fmt.Errorf("member repository not configured")
		return
	}

	input := normalizeMemberInput(params.Input)
	vErr := s.validateMemberInput(input)
	if input.Password == nil {
		vErr.add("password", "is required")
	}
	if vErr.HasErrors() {
		err = vErr
		return
	}

	var hash string
	hash, err = s.hashPassword(*input.Password)
	if err != nil {
		err = fmt.Errorf("hash password: %w", err)
		return
	}

	now := s.now()
	member, err = s.members.CreateMember(ctx, MemberCredentials{
		Member:       memberFromInput(s.idGenerator(), input, now, now),
		PasswordHash: hash,
	})
	if err != nil {
		err = mapMemberRepoError(err)
		return
	}
	return
}

// Update replaces a member's attributes. The password changes only when supplied.
func (s *MemberService) Update(ctx context.Context, params UpdateMemberParams) (member Member, err error) {
	if s == nil {
		err = fmt.Errorf("MemberService is nil")
		return
	}

	logger := s.loggerWith(ctx, "Update",
		"principal_id", params.Principal.MemberID,
		"member_id", params.MemberID,
	)
	defer func() {
		if err != nil {
			logFailure(ctx, logger, "failed to update member", err)
			return
		}
		logger.With("password_changed", params.Input.Password != nil).InfoContext(ctx, "member updated")
	}()

	if !params.Principal.IsAdmin {
		err = ErrForbidden
		return
	}

	var existing Member
	existing, err = s.Get(ctx, params.Principal, params.MemberID)
	if err != nil {
		return
	}

	input := normalizeMemberInput(params.Input)
	if vErr := s.validateMemberInput(input); vErr.HasErrors() {
		err = vErr
		return
	}

	creds := MemberCredentials{Member: memberFromInput(existing.ID, input, existing.CreatedAt, s.now())}
	if input.Password != nil {
		creds.PasswordHash, err = s.hashPassword(*input.Password)
		if err != nil {
			err = fmt.Errorf("hash password: %w", err)
			return
		}
	}

	member, err = s.members.UpdateMember(ctx, creds)
	if err != nil {
		err = mapMemberRepoError(err)
		return
	}
	return
}

// Delete removes a member. Members holding active bookings, and the calling
// administrator, cannot be removed.
func (s *MemberService) Delete(ctx context.Context, principal Principal, id string) (err error) {
	if s == nil {
		return fmt.Errorf("MemberService is nil")
	}

	id = strings.TrimSpace(id)
	logger := s.loggerWith(ctx, "Delete",
		"principal_id", principal.MemberID,
		"member_id", id,
	)
	defer func() {
		if err != nil {
			logFailure(ctx, logger, "failed to delete member", err)
			return
		}
		logger.InfoContext(ctx, "member deleted")
	}()

	if !principal.IsAdmin {
		return ErrForbidden
	}
	if s.members == nil {
		return fmt.Errorf("member repository not configured")
	}
	if id == "" {
		return ErrNotFound
	}
	if id == principal.MemberID {
		return fmt.Errorf("%w: administrators cannot delete themselves", ErrConflict)
	}

	if err = s.members.DeleteMember(ctx, id); err != nil {
		return mapMemberRepoError(err)
	}
	return nil
}

func (s *MemberService) validateMemberInput(input MemberInput) *ValidationError {
	vErr := &ValidationError{}
	vErr.merge(validateStruct(input))

	today := s.now()
	if input.DateOfBirth != nil && input.DateOfBirth.After(today) {
		vErr.add("date_of_birth", "must not be in the future")
	}
	if input.DateOfBirth != nil && input.MemberSince != nil && input.MemberSince.Before(*input.DateOfBirth) {
		vErr.add("member_since", "must not precede date_of_birth")
	}
	return vErr
}

func normalizeMemberInput(input MemberInput) MemberInput {
	input.Username = strings.ToLower(strings.TrimSpace(input.Username))
	input.Name = strings.TrimSpace(input.Name)
	input.MembershipNumber = strings.TrimSpace(input.MembershipNumber)
	if input.Email != nil {
		email := strings.ToLower(strings.TrimSpace(*input.Email))
		if email == "" {
			input.Email = nil
		} else {
			input.Email = &email
		}
	}
	if input.Password != nil && *input.Password == "" {
		input.Password = nil
	}
	return input
}

func memberFromInput(id string, input MemberInput, createdAt, updatedAt time.Time) Member {
	return Member{
		ID:               id,
		Username:         input.Username,
		Email:            input.Email,
		Name:             input.Name,
		MembershipNumber: input.MembershipNumber,
		DateOfBirth:      input.DateOfBirth,
		MemberSince:      input.MemberSince,
		IsAdmin:          input.IsAdmin,
		CreatedAt:        createdAt,
		UpdatedAt:        updatedAt,
	}
}

func mapMemberRepoError(err error) error {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, ErrNotFound), errors.Is(err, persistence.ErrNotFound):
		return ErrNotFound
	case errors.Is(err, persistence.ErrInUse):
		return fmt.Errorf("%w: member has active bookings", ErrConflict)
	case errors.Is(err, persistence.ErrDuplicate):
		return fmt.Errorf("%w: username, email or membership number already registered", ErrAlreadyExists)
	case errors.Is(err, persistence.ErrConstraintViolation):
		vErr := &ValidationError{}
		vErr.add("member", "violates a roster constraint")
		return vErr
	}
	return err
}

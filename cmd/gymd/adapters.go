package main

import (
	"context"
	"time"

	"github.com/example/gym-scheduler/internal/application"
	"github.com/example/gym-scheduler/internal/persistence"
)

type classRepositoryAdapter struct {
	repo persistence.ClassRepository
}

func newClassRepositoryAdapter(repo persistence.ClassRepository) *classRepositoryAdapter {
	return &classRepositoryAdapter{repo: repo}
}

func (a *classRepositoryAdapter) CreateClass(ctx context.Context, class application.ClassDefinition) (application.ClassDefinition, error) {
	if err := a.repo.CreateClass(ctx, toPersistenceClass(class)); err != nil {
		return application.ClassDefinition{}, err
	}
	return a.GetClass(ctx, class.ID)
}

func (a *classRepositoryAdapter) UpdateClass(ctx context.Context, class application.ClassDefinition) (application.ClassDefinition, error) {
	if err := a.repo.UpdateClass(ctx, toPersistenceClass(class)); err != nil {
		return application.ClassDefinition{}, err
	}
	return a.GetClass(ctx, class.ID)
}

func (a *classRepositoryAdapter) GetClass(ctx context.Context, id string) (application.ClassDefinition, error) {
	stored, err := a.repo.GetClass(ctx, id)
	if err != nil {
		return application.ClassDefinition{}, err
	}
	return toApplicationClass(stored), nil
}

func (a *classRepositoryAdapter) ListClasses(ctx context.Context) ([]application.ClassDefinition, error) {
	models, err := a.repo.ListClasses(ctx)
	if err != nil {
		return nil, err
	}
	if len(models) == 0 {
		return nil, nil
	}
	classes := make([]application.ClassDefinition, 0, len(models))
	for _, model := range models {
		classes = append(classes, toApplicationClass(model))
	}
	return classes, nil
}

func (a *classRepositoryAdapter) DeleteClass(ctx context.Context, id string) error {
	return a.repo.DeleteClass(ctx, id)
}

func (a *classRepositoryAdapter) GetPattern(ctx context.Context, id string) (application.OccurrencePattern, error) {
	stored, err := a.repo.GetPattern(ctx, id)
	if err != nil {
		return application.OccurrencePattern{}, err
	}
	return toApplicationPattern(stored), nil
}

type bookingRepositoryAdapter struct {
	repo persistence.BookingRepository
}

func newBookingRepositoryAdapter(repo persistence.BookingRepository) *bookingRepositoryAdapter {
	return &bookingRepositoryAdapter{repo: repo}
}

func (a *bookingRepositoryAdapter) Reserve(ctx context.Context, booking application.Booking) (application.Booking, error) {
	stored, err := a.repo.Reserve(ctx, persistence.Booking{
		ID:              booking.ID,
		MemberID:        booking.MemberID,
		PatternID:       booking.PatternID,
		ClassID:         booking.ClassID,
		OccurrenceStart: booking.OccurrenceStart,
		Status:          persistence.BookingStatus(booking.Status),
		CreatedAt:       booking.CreatedAt,
		CancelledAt:     cloneTime(booking.CancelledAt),
	})
	if err != nil {
		return application.Booking{}, err
	}
	return toApplicationBooking(stored), nil
}

func (a *bookingRepositoryAdapter) Cancel(ctx context.Context, bookingID string, cancelledAt time.Time) (application.Booking, error) {
	stored, err := a.repo.Cancel(ctx, bookingID, cancelledAt)
	if err != nil {
		return application.Booking{}, err
	}
	return toApplicationBooking(stored), nil
}

func (a *bookingRepositoryAdapter) GetBooking(ctx context.Context, id string) (application.Booking, error) {
	stored, err := a.repo.GetBooking(ctx, id)
	if err != nil {
		return application.Booking{}, err
	}
	return toApplicationBooking(stored), nil
}

func (a *bookingRepositoryAdapter) ListBookingsForMember(ctx context.Context, memberID string) ([]application.Booking, error) {
	models, err := a.repo.ListBookingsForMember(ctx, memberID)
	if err != nil {
		return nil, err
	}
	if len(models) == 0 {
		return nil, nil
	}
	bookings := make([]application.Booking, 0, len(models))
	for _, model := range models {
		bookings = append(bookings, toApplicationBooking(model))
	}
	return bookings, nil
}

type memberRepositoryAdapter struct {
	repo persistence.MemberRepository
}

func newMemberRepositoryAdapter(repo persistence.MemberRepository) *memberRepositoryAdapter {
	return &memberRepositoryAdapter{repo: repo}
}

func (a *memberRepositoryAdapter) CreateMember(ctx context.Context, member application.MemberCredentials) (application.Member, error) {
	if err := a.repo.CreateMember(ctx, toPersistenceMember(member.Member, member.PasswordHash)); err != nil {
		return application.Member{}, err
	}
	return a.GetMember(ctx, member.Member.ID)
}

// UpdateMember keeps the stored password hash when member carries none.
func (a *memberRepositoryAdapter) UpdateMember(ctx context.Context, member application.MemberCredentials) (application.Member, error) {
	hash := member.PasswordHash
	if hash == "" {
		current, err := a.repo.GetMember(ctx, member.Member.ID)
		if err != nil {
			return application.Member{}, err
		}
		hash = current.PasswordHash
	}
	if err := a.repo.UpdateMember(ctx, toPersistenceMember(member.Member, hash)); err != nil {
		return application.Member{}, err
	}
	return a.GetMember(ctx, member.Member.ID)
}

func (a *memberRepositoryAdapter) GetMember(ctx context.Context, id string) (application.Member, error) {
	stored, err := a.repo.GetMember(ctx, id)
	if err != nil {
		return application.Member{}, err
	}
	return toApplicationMember(stored), nil
}

func (a *memberRepositoryAdapter) ListMembers(ctx context.Context) ([]application.Member, error) {
	models, err := a.repo.ListMembers(ctx)
	if err != nil {
		return nil, err
	}
	if len(models) == 0 {
		return nil, nil
	}
	members := make([]application.Member, 0, len(models))
	for _, model := range models {
		members = append(members, toApplicationMember(model))
	}
	return members, nil
}

func (a *memberRepositoryAdapter) DeleteMember(ctx context.Context, id string) error {
	return a.repo.DeleteMember(ctx, id)
}

type credentialStoreAdapter struct {
	repo persistence.MemberRepository
}

func newCredentialStoreAdapter(repo persistence.MemberRepository) *credentialStoreAdapter {
	return &credentialStoreAdapter{repo: repo}
}

func (a *credentialStoreAdapter) GetMemberCredentials(ctx context.Context, username string) (application.MemberCredentials, error) {
	stored, err := a.repo.GetMemberByUsername(ctx, username)
	if err != nil {
		return application.MemberCredentials{}, err
	}
	return application.MemberCredentials{
		Member:       toApplicationMember(stored),
		PasswordHash: stored.PasswordHash,
	}, nil
}

func (a *credentialStoreAdapter) GetMemberByEmail(ctx context.Context, email string) (application.Member, error) {
	stored, err := a.repo.GetMemberByEmail(ctx, email)
	if err != nil {
		return application.Member{}, err
	}
	return toApplicationMember(stored), nil
}

func (a *credentialStoreAdapter) GetMember(ctx context.Context, id string) (application.Member, error) {
	stored, err := a.repo.GetMember(ctx, id)
	if err != nil {
		return application.Member{}, err
	}
	return toApplicationMember(stored), nil
}

type sessionRepositoryAdapter struct {
	repo persistence.SessionRepository
}

func newSessionRepositoryAdapter(repo persistence.SessionRepository) *sessionRepositoryAdapter {
	return &sessionRepositoryAdapter{repo: repo}
}

func (a *sessionRepositoryAdapter) CreateSession(ctx context.Context, session application.Session) (application.Session, error) {
	stored, err := a.repo.CreateSession(ctx, toPersistenceSession(session))
	if err != nil {
		return application.Session{}, err
	}
	return toApplicationSession(stored), nil
}

func (a *sessionRepositoryAdapter) GetSession(ctx context.Context, id string) (application.Session, error) {
	stored, err := a.repo.GetSession(ctx, id)
	if err != nil {
		return application.Session{}, err
	}
	return toApplicationSession(stored), nil
}

func (a *sessionRepositoryAdapter) GetSessionByRefreshToken(ctx context.Context, token string) (application.Session, error) {
	stored, err := a.repo.GetSessionByRefreshToken(ctx, token)
	if err != nil {
		return application.Session{}, err
	}
	return toApplicationSession(stored), nil
}

func (a *sessionRepositoryAdapter) RotateRefreshToken(ctx context.Context, id, previous, next string, expiresAt, updatedAt time.Time) (application.Session, error) {
	stored, err := a.repo.RotateRefreshToken(ctx, id, previous, next, expiresAt, updatedAt)
	if err != nil {
		return application.Session{}, err
	}
	return toApplicationSession(stored), nil
}

func (a *sessionRepositoryAdapter) RevokeSession(ctx context.Context, token string, revokedAt time.Time) (application.Session, error) {
	stored, err := a.repo.RevokeSession(ctx, token, revokedAt)
	if err != nil {
		return application.Session{}, err
	}
	return toApplicationSession(stored), nil
}

func (a *sessionRepositoryAdapter) DeleteExpiredSessions(ctx context.Context, reference time.Time) error {
	return a.repo.DeleteExpiredSessions(ctx, reference)
}

func toApplicationClass(model persistence.Class) application.ClassDefinition {
	patterns := make([]application.OccurrencePattern, 0, len(model.Patterns))
	for _, pattern := range model.Patterns {
		patterns = append(patterns, toApplicationPattern(pattern))
	}
	return application.ClassDefinition{
		ID:         model.ID,
		Name:       model.Name,
		Instructor: model.Instructor,
		Patterns:   patterns,
		CreatedAt:  model.CreatedAt,
		UpdatedAt:  model.UpdatedAt,
	}
}

func toPersistenceClass(class application.ClassDefinition) persistence.Class {
	patterns := make([]persistence.Pattern, 0, len(class.Patterns))
	for i, pattern := range class.Patterns {
		patterns = append(patterns, persistence.Pattern{
			ID:              pattern.ID,
			ClassID:         class.ID,
			Weekday:         pattern.Weekday,
			StartTime:       pattern.StartTime,
			MaxCapacity:     pattern.MaxCapacity,
			CurrentCapacity: pattern.CurrentCapacity,
			Position:        i,
		})
	}
	return persistence.Class{
		ID:         class.ID,
		Name:       class.Name,
		Instructor: class.Instructor,
		Patterns:   patterns,
		CreatedAt:  class.CreatedAt,
		UpdatedAt:  class.UpdatedAt,
	}
}

func toApplicationPattern(model persistence.Pattern) application.OccurrencePattern {
	return application.OccurrencePattern{
		ID:              model.ID,
		ClassID:         model.ClassID,
		Weekday:         model.Weekday,
		StartTime:       model.StartTime,
		MaxCapacity:     model.MaxCapacity,
		CurrentCapacity: model.CurrentCapacity,
	}
}

func toApplicationBooking(model persistence.BookingDetail) application.Booking {
	return application.Booking{
		ID:              model.ID,
		MemberID:        model.MemberID,
		PatternID:       model.PatternID,
		ClassID:         model.ClassID,
		ClassName:       model.ClassName,
		Weekday:         model.Weekday,
		StartTime:       model.StartTime,
		OccurrenceStart: model.OccurrenceStart,
		Status:          application.BookingStatus(model.Status),
		CreatedAt:       model.CreatedAt,
		CancelledAt:     cloneTime(model.CancelledAt),
	}
}

func toApplicationMember(model persistence.Member) application.Member {
	return application.Member{
		ID:               model.ID,
		Username:         model.Username,
		Email:            cloneString(model.Email),
		Name:             model.Name,
		MembershipNumber: model.MembershipNumber,
		DateOfBirth:      cloneTime(model.DateOfBirth),
		MemberSince:      cloneTime(model.MemberSince),
		IsAdmin:          model.IsAdmin,
		CreatedAt:        model.CreatedAt,
		UpdatedAt:        model.UpdatedAt,
	}
}

func toPersistenceMember(member application.Member, passwordHash string) persistence.Member {
	return persistence.Member{
		ID:               member.ID,
		Username:         member.Username,
		Email:            cloneString(member.Email),
		Name:             member.Name,
		MembershipNumber: member.MembershipNumber,
		DateOfBirth:      cloneTime(member.DateOfBirth),
		MemberSince:      cloneTime(member.MemberSince),
		IsAdmin:          member.IsAdmin,
		PasswordHash:     passwordHash,
		CreatedAt:        member.CreatedAt,
		UpdatedAt:        member.UpdatedAt,
	}
}

func toApplicationSession(model persistence.Session) application.Session {
	return application.Session{
		ID:           model.ID,
		MemberID:     model.MemberID,
		RefreshToken: model.RefreshToken,
		ExpiresAt:    model.ExpiresAt,
		CreatedAt:    model.CreatedAt,
		UpdatedAt:    model.UpdatedAt,
		RevokedAt:    cloneTime(model.RevokedAt),
	}
}

func toPersistenceSession(session application.Session) persistence.Session {
	return persistence.Session{
		ID:           session.ID,
		MemberID:     session.MemberID,
		RefreshToken: session.RefreshToken,
		ExpiresAt:    session.ExpiresAt,
		CreatedAt:    session.CreatedAt,
		UpdatedAt:    session.UpdatedAt,
		RevokedAt:    cloneTime(session.RevokedAt),
	}
}

func cloneString(value *string) *string {
	if value == nil {
		return nil
	}
	clone := *value
	return &clone
}

func cloneTime(value *time.Time) *time.Time {
	if value == nil {
		return nil
	}
	clone := *value
	return &clone
}

package application

import (
	"context"
	"fmt"
	"runtime"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/example/gym-scheduler/internal/events"
	"github.com/example/gym-scheduler/internal/identity"
	"github.com/example/gym-scheduler/internal/persistence"
	"github.com/example/gym-scheduler/internal/tokens"
)

var fixedNow = time.Date(2024, time.March, 6, 12, 0, 0, 0, time.UTC) // Wednesday

func fixedClock() time.Time { return fixedNow }

func sequenceIDs(prefix string) func() string {
	var (
		mu sync.Mutex
		n  int
	)
	return func() string {
		mu.Lock()
		defer mu.Unlock()
		n++
		return prefix + "-" + strconv.Itoa(n)
	}
}

type invalidatorStub struct {
	mu    sync.Mutex
	calls int
}

func (s *invalidatorStub) Invalidate() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
}

func (s *invalidatorStub) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

// classRepositoryStub keeps classes in memory and enforces the same
// booked-seat rules as the SQLite store.
type classRepositoryStub struct {
	mu        sync.Mutex
	classes   map[string]ClassDefinition
	listErr   error
	deleteErr error
	updates   int
}

func newClassRepositoryStub(classes ...ClassDefinition) *classRepositoryStub {
	stub := &classRepositoryStub{classes: make(map[string]ClassDefinition)}
	for _, class := range classes {
		stub.classes[class.ID] = class
	}
	return stub
}

func (s *classRepositoryStub) CreateClass(_ context.Context, class ClassDefinition) (ClassDefinition, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.classes[class.ID]; exists {
		return ClassDefinition{}, ErrAlreadyExists
	}
	s.classes[class.ID] = class
	return class, nil
}

func (s *classRepositoryStub) UpdateClass(_ context.Context, class ClassDefinition) (ClassDefinition, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.classes[class.ID]; !exists {
		return ClassDefinition{}, ErrNotFound
	}
	s.updates++
	s.classes[class.ID] = class
	return class, nil
}

func (s *classRepositoryStub) GetClass(_ context.Context, id string) (ClassDefinition, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	class, ok := s.classes[id]
	if !ok {
		return ClassDefinition{}, ErrNotFound
	}
	return class, nil
}

func (s *classRepositoryStub) ListClasses(context.Context) ([]ClassDefinition, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listErr != nil {
		return nil, s.listErr
	}
	classes := make([]ClassDefinition, 0, len(s.classes))
	for _, class := range s.classes {
		classes = append(classes, class)
	}
	sort.Slice(classes, func(i, j int) bool { return classes[i].ID < classes[j].ID })
	return classes, nil
}

func (s *classRepositoryStub) DeleteClass(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.deleteErr != nil {
		return s.deleteErr
	}
	if _, ok := s.classes[id]; !ok {
		return ErrNotFound
	}
	delete(s.classes, id)
	return nil
}

// ledgerStub is an in-memory booking ledger. With racy set, Reserve reads and
// writes the seat counter in separate critical sections and yields between
// them, so only callers that serialize per pattern observe a consistent count.
type ledgerStub struct {
	mu       sync.Mutex
	patterns map[string]OccurrencePattern
	bookings map[string]Booking
	racy     bool
}

func newLedgerStub(patterns ...OccurrencePattern) *ledgerStub {
	stub := &ledgerStub{
		patterns: make(map[string]OccurrencePattern),
		bookings: make(map[string]Booking),
	}
	for _, pattern := range patterns {
		stub.patterns[pattern.ID] = pattern
	}
	return stub
}

func (s *ledgerStub) GetPattern(_ context.Context, id string) (OccurrencePattern, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	pattern, ok := s.patterns[id]
	if !ok {
		return OccurrencePattern{}, ErrNotFound
	}
	return pattern, nil
}

func (s *ledgerStub) Reserve(_ context.Context, booking Booking) (Booking, error) {
	s.mu.Lock()
	pattern, ok := s.patterns[booking.PatternID]
	if !ok {
		s.mu.Unlock()
		return Booking{}, ErrNotFound
	}
	for _, existing := range s.bookings {
		if existing.MemberID == booking.MemberID && existing.PatternID == booking.PatternID && existing.Status == BookingStatusActive {
			s.mu.Unlock()
			return Booking{}, ErrDuplicateBooking
		}
	}
	if pattern.CurrentCapacity >= pattern.MaxCapacity {
		s.mu.Unlock()
		return Booking{}, ErrCapacityExceeded
	}
	seats := pattern.CurrentCapacity
	if s.racy {
		s.mu.Unlock()
		runtime.Gosched()
		time.Sleep(time.Millisecond)
		s.mu.Lock()
	}
	pattern.CurrentCapacity = seats + 1
	s.patterns[pattern.ID] = pattern
	booking.ClassName = "Class " + pattern.ClassID
	booking.Weekday = pattern.Weekday
	booking.StartTime = pattern.StartTime
	s.bookings[booking.ID] = booking
	s.mu.Unlock()
	return booking, nil
}

func (s *ledgerStub) Cancel(_ context.Context, bookingID string, cancelledAt time.Time) (Booking, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	booking, ok := s.bookings[bookingID]
	if !ok {
		return Booking{}, ErrNotFound
	}
	if booking.Status != BookingStatusActive {
		return Booking{}, ErrAlreadyCancelled
	}
	booking.Status = BookingStatusCancelled
	booking.CancelledAt = &cancelledAt
	s.bookings[bookingID] = booking
	pattern := s.patterns[booking.PatternID]
	if pattern.CurrentCapacity > 0 {
		pattern.CurrentCapacity--
	}
	s.patterns[booking.PatternID] = pattern
	return booking, nil
}

func (s *ledgerStub) GetBooking(_ context.Context, id string) (Booking, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	booking, ok := s.bookings[id]
	if !ok {
		return Booking{}, ErrNotFound
	}
	return booking, nil
}

func (s *ledgerStub) ListBookingsForMember(_ context.Context, memberID string) ([]Booking, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var bookings []Booking
	for _, booking := range s.bookings {
		if booking.MemberID == memberID {
			bookings = append(bookings, booking)
		}
	}
	return bookings, nil
}

func (s *ledgerStub) seats(patternID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.patterns[patternID].CurrentCapacity
}

func (s *ledgerStub) activeCount(patternID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	count := 0
	for _, booking := range s.bookings {
		if booking.PatternID == patternID && booking.Status == BookingStatusActive {
			count++
		}
	}
	return count
}

type publisherStub struct {
	mu     sync.Mutex
	events []events.BookingEvent
	err    error
}

func (p *publisherStub) Publish(_ context.Context, event events.BookingEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.events = append(p.events, event)
	return nil
}

func (p *publisherStub) published() []events.BookingEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]events.BookingEvent(nil), p.events...)
}

// memberStoreStub serves both the roster and the credential lookups.
type memberStoreStub struct {
	mu      sync.Mutex
	members map[string]MemberCredentials
	inUse   map[string]bool
	getErr  error
}

func newMemberStoreStub(members ...MemberCredentials) *memberStoreStub {
	stub := &memberStoreStub{members: make(map[string]MemberCredentials), inUse: make(map[string]bool)}
	for _, member := range members {
		stub.members[member.Member.ID] = member
	}
	return stub
}

func (s *memberStoreStub) CreateMember(_ context.Context, creds MemberCredentials) (Member, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.members {
		if existing.Member.Username == creds.Member.Username {
			return Member{}, ErrAlreadyExists
		}
	}
	s.members[creds.Member.ID] = creds
	return creds.Member, nil
}

func (s *memberStoreStub) UpdateMember(_ context.Context, creds MemberCredentials) (Member, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.members[creds.Member.ID]
	if !ok {
		return Member{}, ErrNotFound
	}
	if creds.PasswordHash == "" {
		creds.PasswordHash = current.PasswordHash
	}
	s.members[creds.Member.ID] = creds
	return creds.Member, nil
}

func (s *memberStoreStub) GetMember(_ context.Context, id string) (Member, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.getErr != nil {
		return Member{}, s.getErr
	}
	creds, ok := s.members[id]
	if !ok {
		return Member{}, ErrNotFound
	}
	return creds.Member, nil
}

func (s *memberStoreStub) ListMembers(context.Context) ([]Member, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	members := make([]Member, 0, len(s.members))
	for _, creds := range s.members {
		members = append(members, creds.Member)
	}
	return members, nil
}

func (s *memberStoreStub) DeleteMember(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.members[id]; !ok {
		return ErrNotFound
	}
	if s.inUse[id] {
		return ErrConflict
	}
	delete(s.members, id)
	return nil
}

func (s *memberStoreStub) GetMemberCredentials(_ context.Context, username string) (MemberCredentials, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, creds := range s.members {
		if creds.Member.Username == username {
			return creds, nil
		}
	}
	return MemberCredentials{}, ErrNotFound
}

func (s *memberStoreStub) GetMemberByEmail(_ context.Context, email string) (Member, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, creds := range s.members {
		if creds.Member.Email != nil && *creds.Member.Email == email {
			return creds.Member, nil
		}
	}
	return Member{}, ErrNotFound
}

func (s *memberStoreStub) passwordHash(id string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.members[id].PasswordHash
}

// sessionRepositoryStub rotates refresh tokens with a compare-and-swap so that
// a replayed token loses.
type sessionRepositoryStub struct {
	mu          sync.Mutex
	sessions    map[string]Session
	createErr   error
	deleteCalls []time.Time
	rotations   int
}

func newSessionRepositoryStub(sessions ...Session) *sessionRepositoryStub {
	stub := &sessionRepositoryStub{sessions: make(map[string]Session)}
	for _, session := range sessions {
		stub.sessions[session.ID] = session
	}
	return stub
}

func (s *sessionRepositoryStub) CreateSession(_ context.Context, session Session) (Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.createErr != nil {
		return Session{}, s.createErr
	}
	s.sessions[session.ID] = session
	return session, nil
}

func (s *sessionRepositoryStub) GetSession(_ context.Context, id string) (Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[id]
	if !ok {
		return Session{}, ErrNotFound
	}
	return session, nil
}

func (s *sessionRepositoryStub) GetSessionByRefreshToken(_ context.Context, token string) (Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, session := range s.sessions {
		if session.RefreshToken == token {
			return session, nil
		}
	}
	return Session{}, ErrNotFound
}

func (s *sessionRepositoryStub) RotateRefreshToken(_ context.Context, id, previous, next string, expiresAt, updatedAt time.Time) (Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[id]
	if !ok || session.RefreshToken != previous || session.RevokedAt != nil {
		return Session{}, ErrNotFound
	}
	session.RefreshToken = next
	session.ExpiresAt = expiresAt
	session.UpdatedAt = updatedAt
	s.sessions[id] = session
	s.rotations++
	return session, nil
}

func (s *sessionRepositoryStub) RevokeSession(_ context.Context, token string, revokedAt time.Time) (Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, session := range s.sessions {
		if session.RefreshToken == token {
			if session.RevokedAt == nil {
				session.RevokedAt = &revokedAt
			}
			s.sessions[id] = session
			return session, nil
		}
	}
	return Session{}, ErrNotFound
}

func (s *sessionRepositoryStub) DeleteExpiredSessions(_ context.Context, reference time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deleteCalls = append(s.deleteCalls, reference)
	for id, session := range s.sessions {
		if !session.ExpiresAt.After(reference) {
			delete(s.sessions, id)
		}
	}
	return nil
}

// issuerStub encodes claims into "access:<member>:<session>:<admin>" tokens.
type issuerStub struct {
	expired map[string]bool
}

func (i *issuerStub) Issue(memberID, sessionID string, admin bool) (string, time.Time, error) {
	flag := "member"
	if admin {
		flag = "admin"
	}
	return "access:" + memberID + ":" + sessionID + ":" + flag, fixedNow.Add(15 * time.Minute), nil
}

func (i *issuerStub) Parse(raw string) (tokens.Claims, error) {
	if i.expired[raw] {
		return tokens.Claims{}, tokens.ErrExpired
	}
	parts := strings.Split(raw, ":")
	if len(parts) != 4 || parts[0] != "access" {
		return tokens.Claims{}, tokens.ErrInvalid
	}
	claims := tokens.Claims{SessionID: parts[2], Admin: parts[3] == "admin"}
	claims.Subject = parts[1]
	return claims, nil
}

type identityVerifierStub struct {
	identity identity.Identity
	err      error
}

func (v identityVerifierStub) Verify(context.Context, string) (identity.Identity, error) {
	return v.identity, v.err
}

var errInUseForTest = fmt.Errorf("store: %w", persistence.ErrInUse)

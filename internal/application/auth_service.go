package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/example/gym-scheduler/internal/identity"
	"github.com/example/gym-scheduler/internal/persistence"
	"github.com/example/gym-scheduler/internal/tokens"
)

// CredentialStore exposes member lookups required by the auth service.
type CredentialStore interface {
	GetMemberCredentials(ctx context.Context, username string) (MemberCredentials, error)
	GetMemberByEmail(ctx context.Context, email string) (Member, error)
	GetMember(ctx context.Context, id string) (Member, error)
}

// SessionRepository captures the persistence interactions for refresh sessions.
// RotateRefreshToken must only succeed while previous is still the current token.
type SessionRepository interface {
	CreateSession(ctx context.Context, session Session) (Session, error)
	GetSession(ctx context.Context, id string) (Session, error)
	GetSessionByRefreshToken(ctx context.Context, token string) (Session, error)
	RotateRefreshToken(ctx context.Context, id, previous, next string, expiresAt, updatedAt time.Time) (Session, error)
	RevokeSession(ctx context.Context, token string, revokedAt time.Time) (Session, error)
	DeleteExpiredSessions(ctx context.Context, reference time.Time) error
}

// AccessTokenIssuer mints and parses signed access tokens.
type AccessTokenIssuer interface {
	Issue(memberID, sessionID string, admin bool) (string, time.Time, error)
	Parse(raw string) (tokens.Claims, error)
}

// IdentityVerifier validates an assertion from a delegated identity provider.
type IdentityVerifier interface {
	Verify(ctx context.Context, credential string) (identity.Identity, error)
}

// PasswordVerifier compares a stored hash with a candidate password.
type PasswordVerifier func(hashedPassword, password string) error

// AuthService coordinates login, access token validation, refresh and logout.
type AuthService struct {
	credentials    CredentialStore
	sessions       SessionRepository
	issuer         AccessTokenIssuer
	identities     IdentityVerifier
	verifyPassword PasswordVerifier
	tokenGenerator func() string
	now            func() time.Time
	refreshTTL     time.Duration
	logger         *slog.Logger
}

// NewAuthService constructs an AuthService with the provided dependencies.
func NewAuthService(credentials CredentialStore, sessions SessionRepository, issuer AccessTokenIssuer, identities IdentityVerifier, verify PasswordVerifier, tokenGenerator func() string, now func() time.Time, refreshTTL time.Duration) *AuthService {
	return NewAuthServiceWithLogger(credentials, sessions, issuer, identities, verify, tokenGenerator, now, refreshTTL, nil)
}

// NewAuthServiceWithLogger constructs an AuthService with a specified logger.
func NewAuthServiceWithLogger(credentials CredentialStore, sessions SessionRepository, issuer AccessTokenIssuer, identities IdentityVerifier, verify PasswordVerifier, tokenGenerator func() string, now func() time.Time, refreshTTL time.Duration, logger *slog.Logger) *AuthService {
	if verify == nil {
		verify = VerifyPassword
	}
	if tokenGenerator == nil {
		tokenGenerator = func() string { return "" }
	}
	if now == nil {
		now = time.Now
	}
	if refreshTTL <= 0 {
		refreshTTL = 7 * 24 * time.Hour
	}
	return &AuthService{
		credentials:    credentials,
		sessions:       sessions,
		issuer:         issuer,
		identities:     identities,
		verifyPassword: verify,
		tokenGenerator: tokenGenerator,
		now:            now,
		refreshTTL:     refreshTTL,
		logger:         defaultLogger(logger),
	}
}

func (s *AuthService) loggerWith(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return serviceLogger(ctx, s.logger, "AuthService", operation, attrs...)
}

func (s *AuthService) configured() error {
	if s.credentials == nil {
		return fmt.Errorf("credential store not configured")
	}
	if s.sessions == nil {
		return fmt.Errorf("session repository not configured")
	}
	if s.issuer == nil {
		return fmt.Errorf("token issuer not configured")
	}
	return nil
}

// Login verifies a username and password and opens a new session.
func (s *AuthService) Login(ctx context.Context, username, password string) (result AuthResult, err error) {
	if s == nil {
		err = fmt.Errorf("AuthService is nil")
		return
	}

	username = strings.ToLower(strings.TrimSpace(username))
	logger := s.loggerWith(ctx, "Login", "username", username)
	defer func() {
		if err != nil {
			logFailure(ctx, logger, "login failed", err)
			return
		}
		logger.With(
			"member_id", result.Member.ID,
			"session_id", result.SessionID,
		).InfoContext(ctx, "login succeeded")
	}()

	if err = s.configured(); err != nil {
		return
	}
	if username == "" || password == "" {
		err = ErrInvalidCredentials
		return
	}

	var creds MemberCredentials
	creds, err = s.credentials.GetMemberCredentials(ctx, username)
	if err != nil {
		if isNotFound(err) {
			err = ErrInvalidCredentials
		}
		return
	}

	if err = s.verifyPassword(creds.PasswordHash, password); err != nil {
		err = ErrInvalidCredentials
		return
	}

	result, err = s.startSession(ctx, creds.Member)
	return
}

// LoginWithIdentity verifies a delegated identity assertion and opens a
// session for the member registered under the asserted email.
func (s *AuthService) LoginWithIdentity(ctx context.Context, credential string) (result AuthResult, err error) {
	if s == nil {
		err = fmt.Errorf("AuthService is nil")
		return
	}

	logger := s.loggerWith(ctx, "LoginWithIdentity")
	defer func() {
		if err != nil {
			logFailure(ctx, logger, "identity login failed", err)
			return
		}
		logger.With(
			"member_id", result.Member.ID,
			"session_id", result.SessionID,
		).InfoContext(ctx, "identity login succeeded")
	}()

	if err = s.configured(); err != nil {
		return
	}
	if s.identities == nil {
		err = fmt.Errorf("identity verifier not configured")
		return
	}

	credential = strings.TrimSpace(credential)
	if credential == "" {
		err = ErrInvalidCredentials
		return
	}

	var id identity.Identity
	id, err = s.identities.Verify(ctx, credential)
	if err != nil {
		if errors.Is(err, identity.ErrInvalidAssertion) || errors.Is(err, identity.ErrUnverifiedEmail) {
			err = fmt.Errorf("%w: %v", ErrInvalidCredentials, err)
		}
		return
	}

	var member Member
	member, err = s.credentials.GetMemberByEmail(ctx, strings.ToLower(id.Email))
	if err != nil {
		if isNotFound(err) {
			err = ErrInvalidCredentials
		}
		return
	}

	result, err = s.startSession(ctx, member)
	return
}

// ValidateAccessToken checks the signature and lifetime of an access token and
// that its session is still open. Expired tokens yield ErrAuthExpired; every
// other rejection yields ErrAuthInvalid.
func (s *AuthService) ValidateAccessToken(ctx context.Context, token string) (principal Principal, err error) {
	if s == nil {
		err = fmt.Errorf("AuthService is nil")
		return
	}

	logger := s.loggerWith(ctx, "ValidateAccessToken")
	defer func() {
		if err != nil {
			logFailure(ctx, logger, "access token rejected", err)
			return
		}
		logger.With(
			"principal_id", principal.MemberID,
			"session_id", principal.SessionID,
		).DebugContext(ctx, "access token validated")
	}()

	if err = s.configured(); err != nil {
		return
	}

	token = strings.TrimSpace(token)
	if token == "" {
		err = ErrAuthInvalid
		return
	}

	var claims tokens.Claims
	claims, err = s.issuer.Parse(token)
	if err != nil {
		if errors.Is(err, tokens.ErrExpired) {
			err = ErrAuthExpired
			return
		}
		err = fmt.Errorf("%w: %v", ErrAuthInvalid, err)
		return
	}

	var session Session
	session, err = s.sessions.GetSession(ctx, claims.SessionID)
	if err != nil {
		if isNotFound(err) {
			err = ErrAuthInvalid
		}
		return
	}
	if session.RevokedAt != nil || session.MemberID != claims.Subject {
		err = ErrAuthInvalid
		return
	}

	var member Member
	member, err = s.credentials.GetMember(ctx, claims.Subject)
	if err != nil {
		if isNotFound(err) {
			err = ErrAuthInvalid
		}
		return
	}

	principal = Principal{MemberID: member.ID, SessionID: session.ID, IsAdmin: member.IsAdmin}
	return
}

// Refresh exchanges a refresh token for a new token pair. Each refresh token
// is accepted once; replaying it yields ErrAuthInvalid.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (result AuthResult, err error) {
	if s == nil {
		err = fmt.Errorf("AuthService is nil")
		return
	}

	refreshToken = strings.TrimSpace(refreshToken)
	logger := s.loggerWith(ctx, "Refresh", "token_provided", refreshToken != "")
	defer func() {
		if err != nil {
			logFailure(ctx, logger, "session refresh failed", err)
			return
		}
		logger.With(
			"member_id", result.Member.ID,
			"session_id", result.SessionID,
		).InfoContext(ctx, "session refreshed")
	}()

	if err = s.configured(); err != nil {
		return
	}
	if refreshToken == "" {
		err = ErrAuthInvalid
		return
	}

	var session Session
	session, err = s.sessions.GetSessionByRefreshToken(ctx, refreshToken)
	if err != nil {
		if isNotFound(err) {
			err = ErrAuthInvalid
		}
		return
	}

	now := s.now()
	if session.RevokedAt != nil || !session.ExpiresAt.After(now) {
		err = ErrAuthInvalid
		return
	}

	var member Member
	member, err = s.credentials.GetMember(ctx, session.MemberID)
	if err != nil {
		if isNotFound(err) {
			err = ErrAuthInvalid
		}
		return
	}

	next := s.tokenGenerator()
	if next == "" {
		err = fmt.Errorf("token generator returned an empty token")
		return
	}

	session, err = s.sessions.RotateRefreshToken(ctx, session.ID, refreshToken, next, now.Add(s.refreshTTL), now)
	if err != nil {
		if isNotFound(err) {
			err = ErrAuthInvalid
		}
		return
	}

	result, err = s.issueTokens(member, session)
	return
}

// Logout revokes the session that owns refreshToken and prunes expired sessions.
func (s *AuthService) Logout(ctx context.Context, refreshToken string) (err error) {
	if s == nil {
		return fmt.Errorf("AuthService is nil")
	}
	if s.sessions == nil {
		return fmt.Errorf("session repository not configured")
	}

	refreshToken = strings.TrimSpace(refreshToken)
	logger := s.loggerWith(ctx, "Logout", "token_provided", refreshToken != "")
	defer func() {
		if err != nil {
			logFailure(ctx, logger, "logout failed", err)
			return
		}
		logger.InfoContext(ctx, "session revoked")
	}()

	if refreshToken == "" {
		return ErrAuthInvalid
	}

	now := s.now()
	if _, err = s.sessions.RevokeSession(ctx, refreshToken, now); err != nil {
		if isNotFound(err) {
			return ErrAuthInvalid
		}
		return err
	}

	return s.sessions.DeleteExpiredSessions(ctx, now)
}

func (s *AuthService) startSession(ctx context.Context, member Member) (AuthResult, error) {
	now := s.now()
	if err := s.sessions.DeleteExpiredSessions(ctx, now); err != nil {
		return AuthResult{}, err
	}

	session := Session{
		ID:           s.tokenGenerator(),
		MemberID:     member.ID,
		RefreshToken: s.tokenGenerator(),
		ExpiresAt:    now.Add(s.refreshTTL),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if session.ID == "" || session.RefreshToken == "" {
		return AuthResult{}, fmt.Errorf("token generator returned an empty token")
	}

	persisted, err := s.sessions.CreateSession(ctx, session)
	if err != nil {
		return AuthResult{}, err
	}
	return s.issueTokens(member, persisted)
}

func (s *AuthService) issueTokens(member Member, session Session) (AuthResult, error) {
	access, expiresAt, err := s.issuer.Issue(member.ID, session.ID, member.IsAdmin)
	if err != nil {
		return AuthResult{}, fmt.Errorf("issue access token: %w", err)
	}
	return AuthResult{
		Member:                member,
		SessionID:             session.ID,
		AccessToken:           access,
		AccessTokenExpiresAt:  expiresAt,
		RefreshToken:          session.RefreshToken,
		RefreshTokenExpiresAt: session.ExpiresAt,
	}, nil
}

func isNotFound(err error) bool {
	return errors.Is(err, ErrNotFound) || errors.Is(err, persistence.ErrNotFound)
}

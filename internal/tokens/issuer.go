// Package tokens mints and verifies the signed access tokens handed to members.
package tokens

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v4"
)

const issuerName = "gym-scheduler"

var (
	// ErrExpired is returned for a well-formed token whose lifetime has passed.
	ErrExpired = errors.New("tokens: access token expired")
	// ErrInvalid is returned for malformed, tampered or foreign tokens.
	ErrInvalid = errors.New("tokens: access token invalid")
)

// Claims carried by an access token.
type Claims struct {
	SessionID string `json:"sid"`
	Admin     bool   `json:"adm,omitempty"`
	jwt.RegisteredClaims
}

// Issuer signs access tokens with HMAC-SHA256.
type Issuer struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
	parser *jwt.Parser
}

// NewIssuer constructs an Issuer. The secret must be at least 32 bytes.
func NewIssuer(secret []byte, ttl time.Duration, now func() time.Time) (*Issuer, error) {
	if len(secret) < 32 {
		return nil, fmt.Errorf("tokens: secret must be at least 32 bytes")
	}
	if ttl <= 0 {
		return nil, fmt.Errorf("tokens: ttl must be positive")
	}
	if now == nil {
		now = time.Now
	}
	return &Issuer{
		secret: append([]byte(nil), secret...),
		ttl:    ttl,
		now:    now,
		// Expiry is checked against the injected clock below.
		parser: jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithoutClaimsValidation()),
	}, nil
}

// TTL returns the access token lifetime.
func (i *Issuer) TTL() time.Duration {
	return i.ttl
}

// Issue returns a signed token for the member and session.
func (i *Issuer) Issue(memberID, sessionID string, admin bool) (string, time.Time, error) {
	if strings.TrimSpace(memberID) == "" || strings.TrimSpace(sessionID) == "" {
		return "", time.Time{}, fmt.Errorf("tokens: member and session are required")
	}

	issuedAt := i.now().UTC().Truncate(time.Second)
	expiresAt := issuedAt.Add(i.ttl)
	claims := Claims{
		SessionID: sessionID,
		Admin:     admin,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuerName,
			Subject:   memberID,
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("tokens: sign: %w", err)
	}
	return signed, expiresAt, nil
}

// Parse verifies the signature and expiry of raw and returns its claims.
func (i *Issuer) Parse(raw string) (Claims, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Claims{}, ErrInvalid
	}

	var claims Claims
	_, err := i.parser.ParseWithClaims(raw, &claims, func(*jwt.Token) (interface{}, error) {
		return i.secret, nil
	})
	if err != nil {
		return Claims{}, fmt.Errorf("%w: %v", ErrInvalid, err)
	}

	if claims.Subject == "" || claims.SessionID == "" || !claims.VerifyIssuer(issuerName, true) {
		return Claims{}, ErrInvalid
	}
	if !claims.VerifyExpiresAt(i.now(), true) {
		return Claims{}, ErrExpired
	}
	return claims, nil
}

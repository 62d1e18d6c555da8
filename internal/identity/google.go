// Package identity verifies delegated login assertions issued by Google.
package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"google.golang.org/api/idtoken"
)

var (
	// ErrInvalidAssertion is returned when the ID token fails verification.
	ErrInvalidAssertion = errors.New("identity: invalid assertion")
	// ErrUnverifiedEmail is returned when the token carries no verified email address.
	ErrUnverifiedEmail = errors.New("identity: email not verified")
)

// Identity is the verified subject of an assertion.
type Identity struct {
	Subject string
	Email   string
	Name    string
}

type payloadValidator interface {
	Validate(ctx context.Context, idToken string, audience string) (*idtoken.Payload, error)
}

// GoogleVerifier checks Google ID tokens against the OAuth client ID of this service.
type GoogleVerifier struct {
	validator payloadValidator
	audience  string
}

// NewGoogleVerifier builds a verifier that fetches Google's signing keys on demand.
func NewGoogleVerifier(ctx context.Context, audience string) (*GoogleVerifier, error) {
	if strings.TrimSpace(audience) == "" {
		return nil, fmt.Errorf("identity: audience is required")
	}
	validator, err := idtoken.NewValidator(ctx)
	if err != nil {
		return nil, fmt.Errorf("identity: create validator: %w", err)
	}
	return &GoogleVerifier{validator: validator, audience: audience}, nil
}

// Verify validates credential and returns the identity it asserts.
func (v *GoogleVerifier) Verify(ctx context.Context, credential string) (Identity, error) {
	credential = strings.TrimSpace(credential)
	if credential == "" {
		return Identity{}, ErrInvalidAssertion
	}

	payload, err := v.validator.Validate(ctx, credential, v.audience)
	if err != nil {
		return Identity{}, fmt.Errorf("%w: %v", ErrInvalidAssertion, err)
	}

	email, _ := payload.Claims["email"].(string)
	verified, _ := payload.Claims["email_verified"].(bool)
	if strings.TrimSpace(email) == "" || !verified {
		return Identity{}, ErrUnverifiedEmail
	}

	name, _ := payload.Claims["name"].(string)
	return Identity{
		Subject: payload.Subject,
		Email:   strings.ToLower(strings.TrimSpace(email)),
		Name:    name,
	}, nil
}

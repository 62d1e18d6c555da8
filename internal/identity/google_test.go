package identity

import (
	"context"
	"errors"
	"testing"

	"google.golang.org/api/idtoken"
)

type stubValidator struct {
	payload  *idtoken.Payload
	err      error
	audience string
}

func (s *stubValidator) Validate(_ context.Context, _ string, audience string) (*idtoken.Payload, error) {
	s.audience = audience
	return s.payload, s.err
}

func TestGoogleVerifier_Verify(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		credential string
		payload    *idtoken.Payload
		err        error
		want       Identity
		wantErr    error
	}{
		{
			name:       "verified email",
			credential: "token",
			payload: &idtoken.Payload{Subject: "sub-1", Claims: map[string]interface{}{
				"email": "Alice@Example.com", "email_verified": true, "name": "Alice",
			}},
			want: Identity{Subject: "sub-1", Email: "alice@example.com", Name: "Alice"},
		},
		{
			name:       "unverified email",
			credential: "token",
			payload: &idtoken.Payload{Subject: "sub-1", Claims: map[string]interface{}{
				"email": "alice@example.com", "email_verified": false,
			}},
			wantErr: ErrUnverifiedEmail,
		},
		{
			name:       "validator rejects",
			credential: "token",
			err:        errors.New("audience mismatch"),
			wantErr:    ErrInvalidAssertion,
		},
		{
			name:    "empty credential",
			wantErr: ErrInvalidAssertion,
		},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			stub := &stubValidator{payload: tc.payload, err: tc.err}
			verifier := &GoogleVerifier{validator: stub, audience: "client-id"}

			got, err := verifier.Verify(context.Background(), tc.credential)
			if tc.wantErr != nil {
				if !errors.Is(err, tc.wantErr) {
					t.Fatalf("expected %v, got %v", tc.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tc.want {
				t.Fatalf("expected %#v, got %#v", tc.want, got)
			}
			if stub.audience != "client-id" {
				t.Fatalf("expected audience to be forwarded, got %q", stub.audience)
			}
		})
	}
}

func TestNewGoogleVerifier_RequiresAudience(t *testing.T) {
	t.Parallel()

	if _, err := NewGoogleVerifier(context.Background(), " "); err == nil {
		t.Fatalf("expected missing audience to be rejected")
	}
}

package sessionclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/example/gym-scheduler/internal/application"
)

// maxErrorBody bounds how much of an error response is buffered for inspection.
const maxErrorBody = 64 << 10

// Error codes returned by the API for authentication failures.
const (
	CodeAuthExpired = "AUTH_EXPIRED"
	CodeAuthInvalid = "AUTH_INVALID"
)

// APIError is a non-2xx response decoded from the API error body.
type APIError struct {
	StatusCode int               `json:"-"`
	Code       string            `json:"error_code"`
	Message    string            `json:"message"`
	Errors     map[string]string `json:"errors,omitempty"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error %d %s: %s", e.StatusCode, e.Code, e.Message)
}

// Unwrap maps authentication codes onto the application sentinels.
func (e *APIError) Unwrap() error {
	switch e.Code {
	case CodeAuthExpired:
		return application.ErrAuthExpired
	case CodeAuthInvalid:
		return application.ErrAuthInvalid
	}
	return nil
}

// Transport is an http.RoundTripper that authenticates requests with the
// client's access token. A 401 carrying AUTH_EXPIRED triggers a coordinated
// refresh and a single replay of the request.
type Transport struct {
	Client *Client
	Base   http.RoundTripper
}

// NewTransport wraps base, or http.DefaultTransport when base is nil.
func NewTransport(client *Client, base http.RoundTripper) *Transport {
	return &Transport{Client: client, Base: base}
}

func (t *Transport) base() http.RoundTripper {
	if t.Base != nil {
		return t.Base
	}
	return http.DefaultTransport
}

// RoundTrip implements http.RoundTripper.
func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	token, err := t.Client.AccessToken()
	if err != nil {
		closeBody(req)
		return nil, err
	}

	resp, err := t.base().RoundTrip(authorize(req, token))
	if err != nil || resp.StatusCode != http.StatusUnauthorized {
		return resp, err
	}

	apiErr, err := peekError(resp)
	if err != nil {
		return nil, err
	}
	if apiErr.Code != CodeAuthExpired {
		return resp, nil
	}
	if req.Body != nil && req.Body != http.NoBody && req.GetBody == nil {
		// The body was consumed and cannot be replayed.
		return resp, nil
	}

	fresh, err := t.Client.Refresh(req.Context(), token)
	if err != nil {
		return nil, err
	}

	replay := authorize(req, fresh)
	if req.GetBody != nil {
		body, err := req.GetBody()
		if err != nil {
			return nil, fmt.Errorf("sessionclient: rewind request body: %w", err)
		}
		replay.Body = body
	}
	_ = resp.Body.Close()
	return t.base().RoundTrip(replay)
}

func authorize(req *http.Request, token string) *http.Request {
	clone := req.Clone(req.Context())
	clone.Header.Set("Authorization", "Bearer "+token)
	return clone
}

func closeBody(req *http.Request) {
	if req.Body != nil {
		_ = req.Body.Close()
	}
}

// peekError decodes the error body of resp and restores it so the caller can
// still read the response.
func peekError(resp *http.Response) (*APIError, error) {
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	_ = resp.Body.Close()
	if err != nil {
		return nil, fmt.Errorf("sessionclient: read error body: %w", err)
	}
	resp.Body = io.NopCloser(bytes.NewReader(data))

	apiErr := &APIError{StatusCode: resp.StatusCode}
	_ = json.Unmarshal(data, apiErr)
	return apiErr, nil
}

// DecodeResponse decodes a 2xx JSON body into dest, or returns an *APIError.
func DecodeResponse(resp *http.Response, dest any) error {
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr, err := peekError(resp)
		if err != nil {
			return err
		}
		return apiErr
	}
	if dest == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(dest); err != nil {
		return fmt.Errorf("sessionclient: decode response: %w", err)
	}
	return nil
}

// HTTPRefresher refreshes sessions through POST /sessions/refresh.
type HTTPRefresher struct {
	BaseURL    string
	HTTPClient *http.Client
}

// Refresh implements Refresher.
func (r *HTTPRefresher) Refresh(ctx context.Context, refreshToken string) (Tokens, error) {
	payload, err := json.Marshal(map[string]string{"refresh_token": refreshToken})
	if err != nil {
		return Tokens{}, err
	}
	endpoint := strings.TrimRight(r.BaseURL, "/") + "/sessions/refresh"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return Tokens{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	client := r.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return Tokens{}, fmt.Errorf("sessionclient: refresh request: %w", err)
	}

	var tokens Tokens
	if err := DecodeResponse(resp, &tokens); err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusUnauthorized {
			return Tokens{}, fmt.Errorf("%w: %s", application.ErrAuthInvalid, apiErr.Message)
		}
		return Tokens{}, err
	}
	return tokens, nil
}

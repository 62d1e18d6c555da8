// Package sessionclient keeps a member's access token fresh on the client side.
// Concurrent calls that hit an expired access token share a single refresh
// round trip, and a failed refresh logs the client out for every waiter.
package sessionclient

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/example/gym-scheduler/internal/application"
)

// ErrLoggedOut is returned when no session is held. It wraps application.ErrAuthInvalid.
var ErrLoggedOut = fmt.Errorf("%w: not logged in", application.ErrAuthInvalid)

const refreshKey = "refresh"

// Tokens is the token pair held by a logged in client.
type Tokens struct {
	AccessToken           string    `json:"access_token"`
	AccessTokenExpiresAt  time.Time `json:"expires_at"`
	RefreshToken          string    `json:"refresh_token"`
	RefreshTokenExpiresAt time.Time `json:"refresh_expires_at"`
}

// Refresher exchanges a refresh token for a new token pair.
type Refresher interface {
	Refresh(ctx context.Context, refreshToken string) (Tokens, error)
}

// RefresherFunc adapts a function to the Refresher interface.
type RefresherFunc func(ctx context.Context, refreshToken string) (Tokens, error)

// Refresh calls f.
func (f RefresherFunc) Refresh(ctx context.Context, refreshToken string) (Tokens, error) {
	return f(ctx, refreshToken)
}

// Client holds the current session and coordinates refreshes.
type Client struct {
	refresher Refresher
	logger    *slog.Logger

	mu       sync.RWMutex
	tokens   Tokens
	loggedIn bool

	group    singleflight.Group
	refreshN int
}

// New returns a client holding initial. A zero access token starts logged out.
func New(refresher Refresher, initial Tokens) *Client {
	return NewWithLogger(refresher, initial, nil)
}

// NewWithLogger is New with an explicit logger.
func NewWithLogger(refresher Refresher, initial Tokens, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		refresher: refresher,
		logger:    logger.With("component", "sessionclient"),
		tokens:    initial,
		loggedIn:  initial.AccessToken != "",
	}
}

// SetTokens installs a token pair, typically after a login.
func (c *Client) SetTokens(tokens Tokens) {
	c.mu.Lock()
	c.tokens = tokens
	c.loggedIn = tokens.AccessToken != ""
	c.mu.Unlock()
}

// Tokens returns the held token pair and whether the client is logged in.
func (c *Client) Tokens() (Tokens, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.tokens, c.loggedIn
}

// Logout drops the held tokens.
func (c *Client) Logout() {
	c.mu.Lock()
	c.tokens = Tokens{}
	c.loggedIn = false
	c.mu.Unlock()
}

// RefreshCount reports how many refresh round trips the client has started.
func (c *Client) RefreshCount() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.refreshN
}

// AccessToken returns the current access token.
func (c *Client) AccessToken() (string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if !c.loggedIn {
		return "", ErrLoggedOut
	}
	return c.tokens.AccessToken, nil
}

// Do runs fn with the current access token. When fn reports
// application.ErrAuthExpired the token is refreshed and fn runs once more with
// the new token.
func (c *Client) Do(ctx context.Context, fn func(ctx context.Context, accessToken string) error) error {
	token, err := c.AccessToken()
	if err != nil {
		return err
	}

	err = fn(ctx, token)
	if !errors.Is(err, application.ErrAuthExpired) {
		return err
	}

	fresh, err := c.Refresh(ctx, token)
	if err != nil {
		return err
	}
	return fn(ctx, fresh)
}

// Refresh obtains an access token newer than stale. Callers that arrive while
// a refresh is in flight wait for it instead of starting another. When the
// held token already differs from stale, it is returned without a round trip.
func (c *Client) Refresh(ctx context.Context, stale string) (string, error) {
	c.mu.RLock()
	current, loggedIn := c.tokens.AccessToken, c.loggedIn
	c.mu.RUnlock()
	if !loggedIn {
		return "", ErrLoggedOut
	}
	if current != stale {
		return current, nil
	}

	ch := c.group.DoChan(refreshKey, func() (any, error) {
		return c.refreshOnce(context.WithoutCancel(ctx), stale)
	})

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case result := <-ch:
		if result.Err != nil {
			return "", result.Err
		}
		return result.Val.(string), nil
	}
}

func (c *Client) refreshOnce(ctx context.Context, stale string) (string, error) {
	c.mu.Lock()
	if !c.loggedIn {
		c.mu.Unlock()
		return "", ErrLoggedOut
	}
	if c.tokens.AccessToken != stale {
		current := c.tokens.AccessToken
		c.mu.Unlock()
		return current, nil
	}
	refreshToken := c.tokens.RefreshToken
	c.refreshN++
	c.mu.Unlock()

	if c.refresher == nil {
		c.Logout()
		return "", fmt.Errorf("%w: no refresher configured", application.ErrAuthInvalid)
	}

	tokens, err := c.refresher.Refresh(ctx, refreshToken)
	if err != nil {
		c.Logout()
		c.logger.WarnContext(ctx, "session refresh failed, logged out", "error", err)
		if errors.Is(err, application.ErrAuthInvalid) {
			return "", err
		}
		return "", fmt.Errorf("%w: refresh failed: %v", application.ErrAuthInvalid, err)
	}

	c.SetTokens(tokens)
	c.logger.DebugContext(ctx, "session refreshed", "access_token_expires_at", tokens.AccessTokenExpiresAt)
	return tokens.AccessToken, nil
}

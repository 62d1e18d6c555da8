package sessionclient

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/example/gym-scheduler/internal/application"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func initialTokens() Tokens {
	return Tokens{
		AccessToken:           "access-old",
		AccessTokenExpiresAt:  time.Date(2024, time.March, 6, 12, 15, 0, 0, time.UTC),
		RefreshToken:          "refresh-old",
		RefreshTokenExpiresAt: time.Date(2024, time.March, 13, 12, 0, 0, 0, time.UTC),
	}
}

// expiringCall fails with ErrAuthExpired unless it is handed the fresh token.
func expiringCall(calls *atomic.Int32) func(context.Context, string) error {
	return func(_ context.Context, token string) error {
		calls.Add(1)
		if token != "access-new" {
			return application.ErrAuthExpired
		}
		return nil
	}
}

func TestClient_DoRefreshesOnceForConcurrentExpiries(t *testing.T) {
	t.Parallel()

	var refreshes atomic.Int32
	release := make(chan struct{})
	refresher := RefresherFunc(func(ctx context.Context, refreshToken string) (Tokens, error) {
		refreshes.Add(1)
		if refreshToken != "refresh-old" {
			t.Errorf("unexpected refresh token %q", refreshToken)
		}
		<-release
		return Tokens{AccessToken: "access-new", RefreshToken: "refresh-new"}, nil
	})
	client := NewWithLogger(refresher, initialTokens(), quietLogger())

	const workers = 16
	var (
		calls atomic.Int32
		wg    sync.WaitGroup
		errs  = make(chan error, workers)
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- client.Do(context.Background(), expiringCall(&calls))
		}()
	}

	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()
	close(errs)

	for err := range errs {
		if err != nil {
			t.Fatalf("expected every call to succeed after refresh, got %v", err)
		}
	}
	if got := refreshes.Load(); got != 1 {
		t.Fatalf("expected exactly one refresh, got %d", got)
	}
	if got := client.RefreshCount(); got != 1 {
		t.Fatalf("expected RefreshCount 1, got %d", got)
	}
	tokens, ok := client.Tokens()
	if !ok || tokens.RefreshToken != "refresh-new" {
		t.Fatalf("expected rotated tokens to be held, got %#v (logged in %v)", tokens, ok)
	}
}

func TestClient_DoFailedRefreshLogsOutEveryWaiter(t *testing.T) {
	t.Parallel()

	var refreshes atomic.Int32
	release := make(chan struct{})
	refresher := RefresherFunc(func(context.Context, string) (Tokens, error) {
		refreshes.Add(1)
		<-release
		return Tokens{}, application.ErrAuthInvalid
	})
	client := NewWithLogger(refresher, initialTokens(), quietLogger())

	const workers = 8
	var (
		calls atomic.Int32
		wg    sync.WaitGroup
		errs  = make(chan error, workers)
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- client.Do(context.Background(), expiringCall(&calls))
		}()
	}

	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()
	close(errs)

	for err := range errs {
		if !errors.Is(err, application.ErrAuthInvalid) {
			t.Fatalf("expected ErrAuthInvalid for every waiter, got %v", err)
		}
	}
	if got := refreshes.Load(); got != 1 {
		t.Fatalf("expected exactly one refresh attempt, got %d", got)
	}
	if _, ok := client.Tokens(); ok {
		t.Fatalf("expected client to be logged out")
	}
	if _, err := client.AccessToken(); !errors.Is(err, ErrLoggedOut) {
		t.Fatalf("expected ErrLoggedOut, got %v", err)
	}
}

func TestClient_Do(t *testing.T) {
	t.Parallel()

	boom := errors.New("boom")

	tests := []struct {
		name          string
		initial       Tokens
		refresher     Refresher
		fn            func(context.Context, string) error
		wantErr       error
		wantRefreshes int
	}{
		{
			name:    "passes through success",
			initial: initialTokens(),
			fn:      func(context.Context, string) error { return nil },
		},
		{
			name:    "passes through unrelated errors",
			initial: initialTokens(),
			fn:      func(context.Context, string) error { return boom },
			wantErr: boom,
		},
		{
			name:    "logged out client never calls fn",
			initial: Tokens{},
			fn: func(context.Context, string) error {
				return errors.New("should not run")
			},
			wantErr: application.ErrAuthInvalid,
		},
		{
			name:    "retries only once",
			initial: initialTokens(),
			refresher: RefresherFunc(func(context.Context, string) (Tokens, error) {
				return Tokens{AccessToken: "access-still-bad", RefreshToken: "r2"}, nil
			}),
			fn:            func(context.Context, string) error { return application.ErrAuthExpired },
			wantErr:       application.ErrAuthExpired,
			wantRefreshes: 1,
		},
		{
			name:    "transport failure during refresh becomes auth invalid",
			initial: initialTokens(),
			refresher: RefresherFunc(func(context.Context, string) (Tokens, error) {
				return Tokens{}, errors.New("connection refused")
			}),
			fn:            func(context.Context, string) error { return application.ErrAuthExpired },
			wantErr:       application.ErrAuthInvalid,
			wantRefreshes: 1,
		},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			client := NewWithLogger(tc.refresher, tc.initial, quietLogger())
			err := client.Do(context.Background(), tc.fn)
			if tc.wantErr == nil && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if tc.wantErr != nil && !errors.Is(err, tc.wantErr) {
				t.Fatalf("expected %v, got %v", tc.wantErr, err)
			}
			if got := client.RefreshCount(); got != tc.wantRefreshes {
				t.Fatalf("expected %d refreshes, got %d", tc.wantRefreshes, got)
			}
		})
	}
}

func TestClient_RefreshSkipsRoundTripWhenTokenAlreadyRotated(t *testing.T) {
	t.Parallel()

	client := NewWithLogger(RefresherFunc(func(context.Context, string) (Tokens, error) {
		t.Errorf("refresher should not be called")
		return Tokens{}, nil
	}), initialTokens(), quietLogger())
	client.SetTokens(Tokens{AccessToken: "access-new", RefreshToken: "refresh-new"})

	token, err := client.Refresh(context.Background(), "access-old")
	if err != nil {
		t.Fatalf("Refresh failed: %v", err)
	}
	if token != "access-new" {
		t.Fatalf("expected current token, got %q", token)
	}
}

func TestClient_RefreshHonoursCallerCancellation(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	client := NewWithLogger(RefresherFunc(func(context.Context, string) (Tokens, error) {
		<-release
		return Tokens{AccessToken: "access-new", RefreshToken: "refresh-new"}, nil
	}), initialTokens(), quietLogger())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := client.Refresh(ctx, "access-old"); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	close(release)

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if tokens, _ := client.Tokens(); tokens.AccessToken == "access-new" {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("expected the in-flight refresh to complete for other callers")
}

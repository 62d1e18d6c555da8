package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/example/gym-scheduler/internal/application"
)

type testAPI struct {
	handler    http.Handler
	auth       *authServiceStub
	scheduling *schedulingStub
	members    *memberServiceStub
}

func newTestAPI(google bool, store Pinger) *testAPI {
	logger := quietLogger()
	api := &testAPI{
		auth:       &authServiceStub{},
		scheduling: &schedulingStub{},
		members:    &memberServiceStub{},
	}
	api.handler = NewRouter(RouterConfig{
		Sessions:  NewSessionHandler(api.auth, logger),
		Schedule:  NewScheduleHandler(api.scheduling, time.UTC, logger),
		Classes:   NewClassHandler(catalogStub{}, api.scheduling, logger),
		Bookings:  NewBookingHandler(api.scheduling, logger),
		Members:   NewMemberHandler(api.members, logger),
		Health:    NewHealthHandler(store, logger),
		Validator: validatorStub{},
		Logger:    logger,
		Google:    google,
	})
	return api
}

func (api *testAPI) do(t *testing.T, method, path, token, body string) *httptest.ResponseRecorder {
	t.Helper()

	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	api.handler.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("failed to decode response %q: %v", rec.Body.String(), err)
	}
	return out
}

func assertError(t *testing.T, rec *httptest.ResponseRecorder, status int, code string) errorResponse {
	t.Helper()
	if rec.Code != status {
		t.Fatalf("expected status %d, got %d: %s", status, rec.Code, rec.Body.String())
	}
	body := decodeBody[errorResponse](t, rec)
	if body.ErrorCode != code {
		t.Fatalf("expected error code %s, got %s (%s)", code, body.ErrorCode, body.Message)
	}
	return body
}

func TestResponder_HandleServiceError(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{name: "validation", err: &application.ValidationError{FieldErrors: map[string]string{"name": "is required"}}, status: http.StatusUnprocessableEntity, code: codeValidation},
		{name: "not found", err: fmt.Errorf("class: %w", application.ErrNotFound), status: http.StatusNotFound, code: codeNotFound},
		{name: "conflict", err: application.ErrConflict, status: http.StatusConflict, code: codeConflict},
		{name: "already exists", err: application.ErrAlreadyExists, status: http.StatusConflict, code: codeConflict},
		{name: "capacity", err: application.ErrCapacityExceeded, status: http.StatusConflict, code: codeCapacityExceeded},
		{name: "duplicate booking", err: application.ErrDuplicateBooking, status: http.StatusConflict, code: codeDuplicateBooking},
		{name: "already cancelled", err: application.ErrAlreadyCancelled, status: http.StatusConflict, code: codeAlreadyCancelled},
		{name: "forbidden", err: application.ErrForbidden, status: http.StatusForbidden, code: codeForbidden},
		{name: "expired", err: application.ErrAuthExpired, status: http.StatusUnauthorized, code: codeAuthExpired},
		{name: "invalid", err: application.ErrAuthInvalid, status: http.StatusUnauthorized, code: codeAuthInvalid},
		{name: "bad credentials", err: application.ErrInvalidCredentials, status: http.StatusUnauthorized, code: codeAuthInvalid},
		{name: "unexpected", err: errors.New("disk on fire"), status: http.StatusInternalServerError, code: codeInternal},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			rec := httptest.NewRecorder()
			newResponder(quietLogger()).handleServiceError(httptest.NewRequest(http.MethodGet, "/", nil).Context(), rec, tc.err)
			body := assertError(t, rec, tc.status, tc.code)
			if strings.Contains(body.Message, "disk on fire") {
				t.Fatalf("internal error details leaked: %q", body.Message)
			}
		})
	}
}

func TestSessionHandler(t *testing.T) {
	t.Parallel()

	t.Run("login returns the token pair and member", func(t *testing.T) {
		t.Parallel()

		api := newTestAPI(false, nil)
		rec := api.do(t, http.MethodPost, "/sessions", "", `{"username":"  Alice ","password":"correct horse"}`)
		if rec.Code != http.StatusCreated {
			t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
		}
		body := decodeBody[sessionResponse](t, rec)
		if body.AccessToken != "access-alice" || body.RefreshToken != "refresh-alice" {
			t.Fatalf("unexpected tokens: %#v", body)
		}
		if body.ExpiresAt != "2024-03-06T12:15:00Z" {
			t.Fatalf("unexpected expiry %q", body.ExpiresAt)
		}
		if body.Member.ID != "alice" {
			t.Fatalf("expected member alice, got %#v", body.Member)
		}
	})

	t.Run("wrong password is auth invalid", func(t *testing.T) {
		t.Parallel()

		api := newTestAPI(false, nil)
		rec := api.do(t, http.MethodPost, "/sessions", "", `{"username":"alice","password":"nope"}`)
		assertError(t, rec, http.StatusUnauthorized, codeAuthInvalid)
	})

	t.Run("malformed body is a bad request", func(t *testing.T) {
		t.Parallel()

		api := newTestAPI(false, nil)
		rec := api.do(t, http.MethodPost, "/sessions", "", `{"username":`)
		assertError(t, rec, http.StatusBadRequest, codeBadRequest)
	})

	t.Run("refresh rotates and logout revokes", func(t *testing.T) {
		t.Parallel()

		api := newTestAPI(false, nil)
		rec := api.do(t, http.MethodPost, "/sessions/refresh", "", `{"refresh_token":"refresh-alice"}`)
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
		}

		rec = api.do(t, http.MethodPost, "/sessions/refresh", "", `{"refresh_token":"stale"}`)
		assertError(t, rec, http.StatusUnauthorized, codeAuthInvalid)

		rec = api.do(t, http.MethodDelete, "/sessions/current", "", `{"refresh_token":"refresh-alice"}`)
		if rec.Code != http.StatusNoContent {
			t.Fatalf("expected 204, got %d", rec.Code)
		}
		if len(api.auth.loggedOut) != 1 || api.auth.loggedOut[0] != "refresh-alice" {
			t.Fatalf("expected logout to be forwarded, got %v", api.auth.loggedOut)
		}
	})

	t.Run("google login is only routed when enabled", func(t *testing.T) {
		t.Parallel()

		disabled := newTestAPI(false, nil)
		rec := disabled.do(t, http.MethodPost, "/sessions/google", "", `{"credential":"google-jwt"}`)
		if rec.Code != http.StatusNotFound && rec.Code != http.StatusMethodNotAllowed {
			t.Fatalf("expected google login to be unavailable, got %d", rec.Code)
		}

		enabled := newTestAPI(true, nil)
		rec = enabled.do(t, http.MethodPost, "/sessions/google", "", `{"credential":"google-jwt"}`)
		if rec.Code != http.StatusCreated {
			t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
		}
		if body := decodeBody[sessionResponse](t, rec); body.Member.ID != "bob" {
			t.Fatalf("expected member bob, got %#v", body.Member)
		}

		rec = enabled.do(t, http.MethodPost, "/sessions/google", "", `{"credential":""}`)
		assertError(t, rec, http.StatusUnprocessableEntity, codeValidation)
	})
}

func TestScheduleHandler(t *testing.T) {
	t.Parallel()

	t.Run("passes week and class filter through", func(t *testing.T) {
		t.Parallel()

		api := newTestAPI(false, nil)
		rec := api.do(t, http.MethodGet, "/schedule?week=2024-03-06&class=yoga", "", "")
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
		}
		if want := time.Date(2024, time.March, 6, 0, 0, 0, 0, time.UTC); !api.scheduling.weekStart.Equal(want) {
			t.Fatalf("expected week %v, got %v", want, api.scheduling.weekStart)
		}
		if api.scheduling.filter != "yoga" {
			t.Fatalf("expected filter yoga, got %q", api.scheduling.filter)
		}

		body := decodeBody[scheduleResponse](t, rec)
		if len(body.Occurrences) != 1 {
			t.Fatalf("expected one occurrence, got %d", len(body.Occurrences))
		}
		if got := body.Occurrences[0]; got.Available != 7 || got.Color == "" {
			t.Fatalf("unexpected occurrence: %#v", got)
		}
		if body.PreviousWeek != "2024-02-25" || body.NextWeek != "2024-03-10" {
			t.Fatalf("unexpected navigation: %s / %s", body.PreviousWeek, body.NextWeek)
		}
	})

	t.Run("missing week means current week", func(t *testing.T) {
		t.Parallel()

		api := newTestAPI(false, nil)
		if rec := api.do(t, http.MethodGet, "/schedule", "", ""); rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}
		if !api.scheduling.weekStart.IsZero() {
			t.Fatalf("expected zero week, got %v", api.scheduling.weekStart)
		}
	})

	t.Run("rejects malformed week", func(t *testing.T) {
		t.Parallel()

		api := newTestAPI(false, nil)
		rec := api.do(t, http.MethodGet, "/schedule?week=06/03/2024", "", "")
		body := assertError(t, rec, http.StatusUnprocessableEntity, codeValidation)
		if body.Errors["week"] == "" {
			t.Fatalf("expected a week field error, got %#v", body.Errors)
		}
	})
}

func TestClassHandler(t *testing.T) {
	t.Parallel()

	t.Run("reads are public", func(t *testing.T) {
		t.Parallel()

		api := newTestAPI(false, nil)
		rec := api.do(t, http.MethodGet, "/classes", "", "")
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}
		list := decodeBody[classListResponse](t, rec)
		if len(list.Classes) != 1 || list.Classes[0].Patterns[0].Weekday != "wednesday" {
			t.Fatalf("unexpected classes: %#v", list.Classes)
		}

		assertError(t, api.do(t, http.MethodGet, "/classes/missing", "", ""), http.StatusNotFound, codeNotFound)
	})

	t.Run("create accepts weekday names and numbers", func(t *testing.T) {
		t.Parallel()

		api := newTestAPI(false, nil)
		rec := api.do(t, http.MethodPost, "/classes", "admin-token",
			`{"name":"Yoga","instructor":"Ana","patterns":[{"weekday":"Wednesday","start_time":"18:00","max_capacity":12},{"weekday":5,"start_time":"07:30","max_capacity":8}]}`)
		if rec.Code != http.StatusCreated {
			t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
		}
		patterns := api.scheduling.classInput.Patterns
		if len(patterns) != 2 || patterns[0].Weekday != int(time.Wednesday) || patterns[1].Weekday != int(time.Friday) {
			t.Fatalf("unexpected patterns: %#v", patterns)
		}
	})

	t.Run("rejects unknown weekday", func(t *testing.T) {
		t.Parallel()

		api := newTestAPI(false, nil)
		rec := api.do(t, http.MethodPost, "/classes", "admin-token",
			`{"name":"Yoga","patterns":[{"weekday":"funday","start_time":"18:00","max_capacity":12}]}`)
		body := assertError(t, rec, http.StatusUnprocessableEntity, codeValidation)
		if body.Errors["patterns[0].weekday"] == "" {
			t.Fatalf("expected weekday field error, got %#v", body.Errors)
		}
	})

	t.Run("mutations need a token", func(t *testing.T) {
		t.Parallel()

		api := newTestAPI(false, nil)
		assertError(t, api.do(t, http.MethodDelete, "/classes/class-1", "", ""), http.StatusUnauthorized, codeAuthInvalid)
		assertError(t, api.do(t, http.MethodDelete, "/classes/class-1", "expired-token", ""), http.StatusUnauthorized, codeAuthExpired)
		assertError(t, api.do(t, http.MethodPost, "/classes", "member-token", `{"name":"Yoga","patterns":[]}`), http.StatusForbidden, codeForbidden)
	})

	t.Run("delete of a booked class conflicts", func(t *testing.T) {
		t.Parallel()

		api := newTestAPI(false, nil)
		assertError(t, api.do(t, http.MethodDelete, "/classes/booked-class", "admin-token", ""), http.StatusConflict, codeConflict)
		if rec := api.do(t, http.MethodDelete, "/classes/class-1", "admin-token", ""); rec.Code != http.StatusNoContent {
			t.Fatalf("expected 204, got %d", rec.Code)
		}
	})
}

func TestBookingHandler(t *testing.T) {
	t.Parallel()

	t.Run("reserve forwards token and pattern", func(t *testing.T) {
		t.Parallel()

		api := newTestAPI(false, nil)
		rec := api.do(t, http.MethodPost, "/bookings", "member-token", `{"pattern_id":" pattern-1 "}`)
		if rec.Code != http.StatusCreated {
			t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
		}
		if api.scheduling.token != "member-token" || api.scheduling.patternID != "pattern-1" {
			t.Fatalf("unexpected forwarding: token=%q pattern=%q", api.scheduling.token, api.scheduling.patternID)
		}
		body := decodeBody[bookingResponse](t, rec)
		if body.Booking.Status != "active" || body.Booking.Weekday != "wednesday" || body.Booking.CancelledAt != nil {
			t.Fatalf("unexpected booking: %#v", body.Booking)
		}
	})

	t.Run("reserve maps ledger errors", func(t *testing.T) {
		t.Parallel()

		tests := []struct {
			err  error
			code string
		}{
			{err: application.ErrCapacityExceeded, code: codeCapacityExceeded},
			{err: application.ErrDuplicateBooking, code: codeDuplicateBooking},
			{err: application.ErrNotFound, code: codeNotFound},
		}
		for _, tc := range tests {
			api := newTestAPI(false, nil)
			api.scheduling.bookErr = tc.err
			rec := api.do(t, http.MethodPost, "/bookings", "member-token", `{"pattern_id":"pattern-1"}`)
			if tc.code == codeNotFound {
				assertError(t, rec, http.StatusNotFound, tc.code)
				continue
			}
			assertError(t, rec, http.StatusConflict, tc.code)
		}
	})

	t.Run("cancel and list", func(t *testing.T) {
		t.Parallel()

		api := newTestAPI(false, nil)
		rec := api.do(t, http.MethodPost, "/bookings/booking-1/cancel", "member-token", "")
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
		}
		if api.scheduling.bookingID != "booking-1" {
			t.Fatalf("expected booking-1, got %q", api.scheduling.bookingID)
		}
		if body := decodeBody[bookingResponse](t, rec); body.Booking.Status != "cancelled" || body.Booking.CancelledAt == nil {
			t.Fatalf("unexpected booking: %#v", body.Booking)
		}

		assertError(t, api.do(t, http.MethodPost, "/bookings/cancelled-booking/cancel", "member-token", ""), http.StatusConflict, codeAlreadyCancelled)

		rec = api.do(t, http.MethodGet, "/bookings", "member-token", "")
		if list := decodeBody[bookingListResponse](t, rec); len(list.Bookings) != 1 {
			t.Fatalf("expected one booking, got %#v", list)
		}

		assertError(t, api.do(t, http.MethodGet, "/bookings", "", ""), http.StatusUnauthorized, codeAuthInvalid)
	})
}

func TestMemberHandler(t *testing.T) {
	t.Parallel()

	t.Run("me resolves the caller", func(t *testing.T) {
		t.Parallel()

		api := newTestAPI(false, nil)
		rec := api.do(t, http.MethodGet, "/members/me", "member-token", "")
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
		}
		if body := decodeBody[memberResponse](t, rec); body.Member.ID != "member-1" {
			t.Fatalf("expected member-1, got %#v", body.Member)
		}
	})

	t.Run("listing requires admin", func(t *testing.T) {
		t.Parallel()

		api := newTestAPI(false, nil)
		assertError(t, api.do(t, http.MethodGet, "/members", "member-token", ""), http.StatusForbidden, codeForbidden)
		assertError(t, api.do(t, http.MethodGet, "/members", "", ""), http.StatusUnauthorized, codeAuthInvalid)
		assertError(t, api.do(t, http.MethodGet, "/members", "expired-token", ""), http.StatusUnauthorized, codeAuthExpired)
		if rec := api.do(t, http.MethodGet, "/members", "admin-token", ""); rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}
	})

	t.Run("create parses day-first dates", func(t *testing.T) {
		t.Parallel()

		api := newTestAPI(false, nil)
		rec := api.do(t, http.MethodPost, "/members", "admin-token",
			`{"username":"dana","name":"Dana","membership_number":"MEM200","date_of_birth":"31/12/1990","password":"long enough"}`)
		if rec.Code != http.StatusCreated {
			t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
		}
		dob := api.members.input.DateOfBirth
		if dob == nil || !dob.Equal(time.Date(1990, time.December, 31, 0, 0, 0, 0, time.UTC)) {
			t.Fatalf("unexpected date of birth: %v", dob)
		}
		body := decodeBody[memberResponse](t, rec)
		if body.Member.DateOfBirth == nil || *body.Member.DateOfBirth != "31/12/1990" {
			t.Fatalf("expected date of birth echoed as DD/MM/YYYY, got %v", body.Member.DateOfBirth)
		}
	})

	t.Run("rejects month-first dates", func(t *testing.T) {
		t.Parallel()

		api := newTestAPI(false, nil)
		rec := api.do(t, http.MethodPut, "/members/member-2", "admin-token",
			`{"username":"dana","name":"Dana","membership_number":"MEM200","member_since":"12/31/2020"}`)
		body := assertError(t, rec, http.StatusUnprocessableEntity, codeValidation)
		if body.Errors["member_since"] == "" {
			t.Fatalf("expected member_since error, got %#v", body.Errors)
		}
	})

	t.Run("self delete conflicts", func(t *testing.T) {
		t.Parallel()

		api := newTestAPI(false, nil)
		assertError(t, api.do(t, http.MethodDelete, "/members/admin-1", "admin-token", ""), http.StatusConflict, codeConflict)
	})
}

func TestHealthAndFallbacks(t *testing.T) {
	t.Parallel()

	healthy := newTestAPI(false, pingerStub{})
	if rec := healthy.do(t, http.MethodGet, "/healthz", "", ""); rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	down := newTestAPI(false, pingerStub{err: errStoreDown})
	if rec := down.do(t, http.MethodGet, "/healthz", "", ""); rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rec.Code)
	}

	assertError(t, healthy.do(t, http.MethodGet, "/nowhere", "", ""), http.StatusNotFound, codeNotFound)
	assertError(t, healthy.do(t, http.MethodPatch, "/classes", "", ""), http.StatusMethodNotAllowed, codeMethodNotAllowed)
}

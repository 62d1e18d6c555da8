package http

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/julienschmidt/httprouter"
)

// RouterConfig wires handlers into the API router. Nil handlers leave their
// routes unregistered.
type RouterConfig struct {
	Sessions   *SessionHandler
	Schedule   *ScheduleHandler
	Classes    *ClassHandler
	Bookings   *BookingHandler
	Members    *MemberHandler
	Health     *HealthHandler
	Validator  TokenValidator
	Logger     *slog.Logger
	Google     bool
	Middleware []func(http.Handler) http.Handler
}

// NewRouter builds the API handler.
func NewRouter(cfg RouterConfig) http.Handler {
	logger := defaultLogger(cfg.Logger)
	responder := newResponder(logger)

	router := httprouter.New()
	router.NotFound = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		responder.writeError(r.Context(), w, http.StatusNotFound, codeNotFound, errors.New("no such endpoint"))
	})
	router.MethodNotAllowed = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		responder.writeError(r.Context(), w, http.StatusMethodNotAllowed, codeMethodNotAllowed, nil)
	})
	router.PanicHandler = func(w http.ResponseWriter, r *http.Request, recovered any) {
		responder.loggerFor(r.Context()).ErrorContext(r.Context(), "handler panicked", "panic", recovered)
		responder.writeError(r.Context(), w, http.StatusInternalServerError, codeInternal, errors.New("an internal error occurred"))
	}

	if cfg.Health != nil {
		router.HandlerFunc(http.MethodGet, "/healthz", cfg.Health.Get)
	}

	if cfg.Sessions != nil {
		router.HandlerFunc(http.MethodPost, "/sessions", cfg.Sessions.Create)
		router.HandlerFunc(http.MethodPost, "/sessions/refresh", cfg.Sessions.Refresh)
		router.HandlerFunc(http.MethodDelete, "/sessions/current", cfg.Sessions.Delete)
		if cfg.Google {
			router.HandlerFunc(http.MethodPost, "/sessions/google", cfg.Sessions.CreateWithGoogle)
		}
	}

	if cfg.Schedule != nil {
		router.HandlerFunc(http.MethodGet, "/schedule", cfg.Schedule.Get)
	}

	if cfg.Classes != nil {
		router.HandlerFunc(http.MethodGet, "/classes", cfg.Classes.List)
		router.HandlerFunc(http.MethodGet, "/classes/:id", cfg.Classes.Get)
		router.HandlerFunc(http.MethodPost, "/classes", cfg.Classes.Create)
		router.HandlerFunc(http.MethodPut, "/classes/:id", cfg.Classes.Update)
		router.HandlerFunc(http.MethodDelete, "/classes/:id", cfg.Classes.Delete)
	}

	if cfg.Bookings != nil {
		router.HandlerFunc(http.MethodGet, "/bookings", cfg.Bookings.List)
		router.HandlerFunc(http.MethodPost, "/bookings", cfg.Bookings.Create)
		router.HandlerFunc(http.MethodPost, "/bookings/:id/cancel", cfg.Bookings.Cancel)
	}

	if cfg.Members != nil && cfg.Validator != nil {
		protect := RequireSession(cfg.Validator, logger)
		router.Handler(http.MethodGet, "/members", protect(http.HandlerFunc(cfg.Members.List)))
		router.Handler(http.MethodPost, "/members", protect(http.HandlerFunc(cfg.Members.Create)))
		router.Handler(http.MethodGet, "/members/:id", protect(http.HandlerFunc(cfg.Members.Get)))
		router.Handler(http.MethodPut, "/members/:id", protect(http.HandlerFunc(cfg.Members.Update)))
		router.Handler(http.MethodDelete, "/members/:id", protect(http.HandlerFunc(cfg.Members.Delete)))
	}

	var handler http.Handler = router
	for i := len(cfg.Middleware) - 1; i >= 0; i-- {
		if cfg.Middleware[i] != nil {
			handler = cfg.Middleware[i](handler)
		}
	}
	return handler
}

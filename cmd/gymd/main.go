package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/example/gym-scheduler/internal/application"
	"github.com/example/gym-scheduler/internal/config"
	"github.com/example/gym-scheduler/internal/events"
	httptransport "github.com/example/gym-scheduler/internal/http"
	"github.com/example/gym-scheduler/internal/identity"
	"github.com/example/gym-scheduler/internal/logging"
	"github.com/example/gym-scheduler/internal/persistence/sqlite"
	"github.com/example/gym-scheduler/internal/recurrence"
	"github.com/example/gym-scheduler/internal/tokens"
)

const sessionSweepInterval = time.Hour

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	logger, err := logging.New(os.Stdout, cfg.LogFormat, cfg.LogLevel)
	if err != nil {
		slog.Error("failed to build logger", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("gymd stopped with error", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config, logger *slog.Logger) error {
	gym, err := newApp(ctx, cfg, time.Now, logger)
	if err != nil {
		return err
	}
	defer gym.Close()

	server := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           gym.handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		logger.Info("gym scheduler API listening", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	})
	group.Go(func() error {
		<-groupCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("shutdown: %w", err)
		}
		return nil
	})
	group.Go(func() error {
		gym.sweepSessions(groupCtx, sessionSweepInterval)
		return nil
	})
	return group.Wait()
}

// app holds the wired services behind the HTTP handler.
type app struct {
	handler   http.Handler
	storage   *sqlite.Storage
	publisher events.Publisher
	now       func() time.Time
	logger    *slog.Logger
}

func newApp(ctx context.Context, cfg config.Config, now func() time.Time, logger *slog.Logger) (_ *app, err error) {
	if now == nil {
		now = time.Now
	}

	storage, err := sqlite.Open(cfg.SQLitePath, logger)
	if err != nil {
		return nil, fmt.Errorf("open storage: %w", err)
	}
	defer func() {
		if err != nil {
			_ = storage.Close()
		}
	}()
	if err = storage.Migrate(ctx); err != nil {
		return nil, fmt.Errorf("apply migrations: %w", err)
	}

	issuer, err := tokens.NewIssuer([]byte(cfg.TokenSecret), cfg.AccessTokenTTL, now)
	if err != nil {
		return nil, fmt.Errorf("build token issuer: %w", err)
	}

	var identities application.IdentityVerifier
	if cfg.GoogleClientID != "" {
		verifier, verr := identity.NewGoogleVerifier(ctx, cfg.GoogleClientID)
		if verr != nil {
			err = fmt.Errorf("build google verifier: %w", verr)
			return nil, err
		}
		identities = verifier
	}

	var publisher events.Publisher = events.NopPublisher{}
	if len(cfg.KafkaBrokers) > 0 {
		kafkaPublisher, kerr := events.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopic, logger)
		if kerr != nil {
			err = fmt.Errorf("build kafka publisher: %w", kerr)
			return nil, err
		}
		publisher = kafkaPublisher
	}
	defer func() {
		if err != nil {
			_ = publisher.Close()
		}
	}()

	cache, err := application.NewProjectionCache(cfg.ProjectionCacheSize)
	if err != nil {
		return nil, fmt.Errorf("build projection cache: %w", err)
	}

	projector := recurrence.NewProjector(
		recurrence.WithLocation(cfg.Location),
		recurrence.WithWeekStart(cfg.WeekStart),
		recurrence.WithDuration(cfg.ClassDuration),
	)

	classes := newClassRepositoryAdapter(storage)
	members := newMemberRepositoryAdapter(storage)

	catalogService := application.NewCatalogServiceWithLogger(classes, cache, uuid.NewString, now, logger)
	bookingService := application.NewBookingServiceWithLogger(newBookingRepositoryAdapter(storage), classes, projector, publisher, cache, uuid.NewString, now, logger)
	memberService := application.NewMemberServiceWithLogger(members, application.HashPassword, uuid.NewString, now, logger)
	authService := application.NewAuthServiceWithLogger(newCredentialStoreAdapter(storage), newSessionRepositoryAdapter(storage), issuer, identities, application.VerifyPassword, randomToken, now, cfg.RefreshTokenTTL, logger)
	schedulingService := application.NewSchedulingServiceWithLogger(authService, catalogService, bookingService, projector, cache, now, logger)

	if cfg.TimetablePath != "" {
		if err = seedTimetable(ctx, catalogService, cfg.TimetablePath, logger); err != nil {
			return nil, err
		}
	}
	if cfg.AdminPassword != "" {
		member, created, aerr := memberService.EnsureAdmin(ctx, cfg.AdminUsername, cfg.AdminPassword)
		if aerr != nil {
			err = fmt.Errorf("ensure admin: %w", aerr)
			return nil, err
		}
		if created {
			logger.Info("initial administrator created", "member_id", member.ID, "username", member.Username)
		}
	}

	router := httptransport.NewRouter(httptransport.RouterConfig{
		Sessions:   httptransport.NewSessionHandler(authService, logger),
		Schedule:   httptransport.NewScheduleHandler(schedulingService, cfg.Location, logger),
		Classes:    httptransport.NewClassHandler(catalogService, schedulingService, logger),
		Bookings:   httptransport.NewBookingHandler(schedulingService, logger),
		Members:    httptransport.NewMemberHandler(memberService, logger),
		Health:     httptransport.NewHealthHandler(storage, logger),
		Validator:  authService,
		Logger:     logger,
		Google:     identities != nil,
		Middleware: []func(http.Handler) http.Handler{httptransport.RequestLogger(logger)},
	})

	return &app{
		handler:   router,
		storage:   storage,
		publisher: publisher,
		now:       now,
		logger:    logger,
	}, nil
}

func seedTimetable(ctx context.Context, catalog *application.CatalogService, path string, logger *slog.Logger) error {
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open timetable: %w", err)
	}
	defer file.Close()

	result, err := catalog.SeedTimetable(ctx, file)
	if err != nil {
		return fmt.Errorf("seed timetable %s: %w", path, err)
	}
	logger.Info("timetable seeded",
		"path", path,
		"classes_created", result.ClassesCreated,
		"patterns_created", result.PatternsCreated,
	)
	return nil
}

// sweepSessions deletes expired refresh sessions every interval until ctx ends.
func (a *app) sweepSessions(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := a.storage.DeleteExpiredSessions(ctx, a.now()); err != nil && ctx.Err() == nil {
				a.logger.Warn("failed to delete expired sessions", "error", err)
			}
		}
	}
}

// Close flushes the event publisher and closes storage.
func (a *app) Close() error {
	var errs []error
	if a.publisher != nil {
		if err := a.publisher.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close publisher: %w", err))
		}
	}
	if a.storage != nil {
		if err := a.storage.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close storage: %w", err))
		}
	}
	if len(errs) > 0 {
		a.logger.Error("shutdown incomplete", "error", errors.Join(errs...))
		return errors.Join(errs...)
	}
	return nil
}

func randomToken() string {
	buf := make([]byte, 32)
	if _, err := io.ReadFull(rand.Reader, buf); err != nil {
		return fmt.Sprintf("fallback-%s", uuid.NewString())
	}
	return hex.EncodeToString(buf)
}

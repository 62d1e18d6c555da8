package testfixtures

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/example/gym-scheduler/internal/persistence"
	"github.com/example/gym-scheduler/internal/persistence/sqlite"
	"github.com/example/gym-scheduler/internal/persistence/sqlite/migration"
)

// SQLiteHarness exposes the repositories of a migrated, file-backed SQLite
// store that is removed when the test ends.
type SQLiteHarness struct {
	Storage  *sqlite.Storage
	Members  persistence.MemberRepository
	Classes  persistence.ClassRepository
	Bookings persistence.BookingRepository
	Sessions persistence.SessionRepository
}

// NewSQLiteHarness opens and migrates a store under tb.TempDir.
func NewSQLiteHarness(tb testing.TB) *SQLiteHarness {
	tb.Helper()

	path := filepath.Join(tb.TempDir(), "gym.db")
	storage, err := sqlite.OpenWithConfig(migration.TempFileTestSQLiteConfig(path), nil)
	if err != nil {
		tb.Fatalf("failed to open storage: %v", err)
	}
	tb.Cleanup(func() { _ = storage.Close() })

	if err := storage.Migrate(context.Background()); err != nil {
		tb.Fatalf("failed to migrate storage: %v", err)
	}

	return &SQLiteHarness{
		Storage:  storage,
		Members:  storage,
		Classes:  storage,
		Bookings: storage,
		Sessions: storage,
	}
}

// SeedMember stores the fixture and fails the test on error.
func (h *SQLiteHarness) SeedMember(tb testing.TB, fixture MemberFixture) persistence.Member {
	tb.Helper()
	member := fixture.Persistence()
	if err := h.Members.CreateMember(context.Background(), member); err != nil {
		tb.Fatalf("CreateMember(%s) failed: %v", member.ID, err)
	}
	return member
}

// SeedClass stores the fixture and fails the test on error.
func (h *SQLiteHarness) SeedClass(tb testing.TB, fixture ClassFixture) persistence.Class {
	tb.Helper()
	class := fixture.Persistence()
	if err := h.Classes.CreateClass(context.Background(), class); err != nil {
		tb.Fatalf("CreateClass(%s) failed: %v", class.ID, err)
	}
	return class
}

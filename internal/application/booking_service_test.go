package application

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/example/gym-scheduler/internal/events"
	"github.com/example/gym-scheduler/internal/recurrence"
)

func newBookingServiceForTest(ledger *ledgerStub, publisher EventPublisher, invalidator ScheduleInvalidator) *BookingService {
	return NewBookingService(ledger, ledger, recurrence.NewProjector(), publisher, invalidator, sequenceIDs("bk"), fixedClock)
}

func TestBookingService_Reserve(t *testing.T) {
	t.Parallel()

	t.Run("stamps the next occurrence and publishes", func(t *testing.T) {
		t.Parallel()

		ledger := newLedgerStub(OccurrencePattern{ID: "yoga-sat", ClassID: "yoga", Weekday: time.Saturday, StartTime: "09:30", MaxCapacity: 2})
		publisher := &publisherStub{}
		invalidator := &invalidatorStub{}
		svc := newBookingServiceForTest(ledger, publisher, invalidator)

		booking, err := svc.Reserve(context.Background(), "member-1", " yoga-sat ")
		if err != nil {
			t.Fatalf("Reserve failed: %v", err)
		}

		want := time.Date(2024, time.March, 9, 9, 30, 0, 0, time.UTC)
		if !booking.OccurrenceStart.Equal(want) {
			t.Fatalf("expected occurrence %v, got %v", want, booking.OccurrenceStart)
		}
		if booking.Status != BookingStatusActive || booking.ClassID != "yoga" || booking.ID != "bk-1" {
			t.Fatalf("unexpected booking: %#v", booking)
		}
		if ledger.seats("yoga-sat") != 1 {
			t.Fatalf("expected one seat taken")
		}
		if invalidator.count() != 1 {
			t.Fatalf("expected cache invalidation")
		}

		published := publisher.published()
		if len(published) != 1 {
			t.Fatalf("expected one event, got %d", len(published))
		}
		if published[0].Type != events.TypeBookingReserved || published[0].BookingID != booking.ID || published[0].PatternID != "yoga-sat" {
			t.Fatalf("unexpected event: %#v", published[0])
		}
	})

	tests := []struct {
		name    string
		setup   func(*ledgerStub)
		pattern string
		wantErr error
	}{
		{
			name:    "unknown pattern",
			pattern: "missing",
			wantErr: ErrNotFound,
		},
		{
			name:    "full pattern",
			pattern: "yoga-sat",
			setup: func(l *ledgerStub) {
				p := l.patterns["yoga-sat"]
				p.CurrentCapacity = p.MaxCapacity
				l.patterns["yoga-sat"] = p
			},
			wantErr: ErrCapacityExceeded,
		},
		{
			name:    "second active booking",
			pattern: "yoga-sat",
			setup: func(l *ledgerStub) {
				l.bookings["existing"] = Booking{ID: "existing", MemberID: "member-1", PatternID: "yoga-sat", Status: BookingStatusActive}
			},
			wantErr: ErrDuplicateBooking,
		},
	}
	for _, tc := range tests {
		tc := tc
		t.Run("rejects "+tc.name, func(t *testing.T) {
			t.Parallel()

			ledger := newLedgerStub(OccurrencePattern{ID: "yoga-sat", ClassID: "yoga", Weekday: time.Saturday, StartTime: "09:30", MaxCapacity: 2})
			if tc.setup != nil {
				tc.setup(ledger)
			}
			publisher := &publisherStub{}
			svc := newBookingServiceForTest(ledger, publisher, nil)

			_, err := svc.Reserve(context.Background(), "member-1", tc.pattern)
			if !errors.Is(err, tc.wantErr) {
				t.Fatalf("expected %v, got %v", tc.wantErr, err)
			}
			if len(publisher.published()) != 0 {
				t.Fatalf("expected no events for failed reservations")
			}
		})
	}

	t.Run("requires member and pattern", func(t *testing.T) {
		t.Parallel()

		svc := newBookingServiceForTest(newLedgerStub(), nil, nil)
		_, err := svc.Reserve(context.Background(), "", "")
		var vErr *ValidationError
		if !errors.As(err, &vErr) || len(vErr.FieldErrors) != 2 {
			t.Fatalf("expected two field errors, got %v", err)
		}
	})

	t.Run("keeps the booking when publishing fails", func(t *testing.T) {
		t.Parallel()

		ledger := newLedgerStub(OccurrencePattern{ID: "p", ClassID: "c", Weekday: time.Monday, StartTime: "10:00", MaxCapacity: 1})
		svc := newBookingServiceForTest(ledger, &publisherStub{err: errors.New("broker down")}, nil)

		if _, err := svc.Reserve(context.Background(), "member-1", "p"); err != nil {
			t.Fatalf("expected publish failure to be ignored, got %v", err)
		}
		if ledger.activeCount("p") != 1 {
			t.Fatalf("expected booking to remain")
		}
	})
}

func TestBookingService_ConcurrentReserveHonoursCapacity(t *testing.T) {
	t.Parallel()

	const (
		capacity  = 5
		reservers = 40
	)
	ledger := newLedgerStub(OccurrencePattern{ID: "hiit", ClassID: "c", Weekday: time.Friday, StartTime: "17:00", MaxCapacity: capacity})
	ledger.racy = true
	svc := newBookingServiceForTest(ledger, nil, nil)

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
		full      int
	)
	for i := 0; i < reservers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := svc.Reserve(context.Background(), "member-"+string(rune('A'+i)), "hiit")
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				succeeded++
			case errors.Is(err, ErrCapacityExceeded):
				full++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(i)
	}
	wg.Wait()

	if succeeded != capacity || full != reservers-capacity {
		t.Fatalf("expected %d successes and %d capacity errors, got %d and %d", capacity, reservers-capacity, succeeded, full)
	}
	if ledger.seats("hiit") != capacity || ledger.activeCount("hiit") != capacity {
		t.Fatalf("seat counter %d and active bookings %d must both equal %d", ledger.seats("hiit"), ledger.activeCount("hiit"), capacity)
	}
	if svc.locks.size() != 0 {
		t.Fatalf("expected pattern locks to be released")
	}
}

func TestBookingService_Cancel(t *testing.T) {
	t.Parallel()

	setup := func() (*ledgerStub, *publisherStub, *BookingService, Booking) {
		ledger := newLedgerStub(OccurrencePattern{ID: "p", ClassID: "c", Weekday: time.Monday, StartTime: "10:00", MaxCapacity: 3})
		publisher := &publisherStub{}
		svc := newBookingServiceForTest(ledger, publisher, nil)
		booking, err := svc.Reserve(context.Background(), memberPrincipal.MemberID, "p")
		if err != nil {
			t.Fatalf("Reserve failed: %v", err)
		}
		return ledger, publisher, svc, booking
	}

	t.Run("owner cancels and frees the seat", func(t *testing.T) {
		t.Parallel()

		ledger, publisher, svc, booking := setup()
		cancelled, err := svc.Cancel(context.Background(), memberPrincipal, booking.ID)
		if err != nil {
			t.Fatalf("Cancel failed: %v", err)
		}
		if cancelled.Status != BookingStatusCancelled || cancelled.CancelledAt == nil || !cancelled.CancelledAt.Equal(fixedNow) {
			t.Fatalf("unexpected booking: %#v", cancelled)
		}
		if ledger.seats("p") != 0 {
			t.Fatalf("expected seat to be released")
		}
		published := publisher.published()
		if len(published) != 2 || published[1].Type != events.TypeBookingCancelled {
			t.Fatalf("expected cancellation event, got %#v", published)
		}
	})

	t.Run("administrators may cancel any booking", func(t *testing.T) {
		t.Parallel()

		_, _, svc, booking := setup()
		if _, err := svc.Cancel(context.Background(), adminPrincipal, booking.ID); err != nil {
			t.Fatalf("Cancel failed: %v", err)
		}
	})

	t.Run("other members are forbidden", func(t *testing.T) {
		t.Parallel()

		ledger, _, svc, booking := setup()
		_, err := svc.Cancel(context.Background(), Principal{MemberID: "member-2"}, booking.ID)
		if !errors.Is(err, ErrForbidden) {
			t.Fatalf("expected ErrForbidden, got %v", err)
		}
		if ledger.seats("p") != 1 {
			t.Fatalf("expected seat to stay taken")
		}
	})

	t.Run("second cancel reports already cancelled", func(t *testing.T) {
		t.Parallel()

		ledger, _, svc, booking := setup()
		if _, err := svc.Cancel(context.Background(), memberPrincipal, booking.ID); err != nil {
			t.Fatalf("first Cancel failed: %v", err)
		}
		_, err := svc.Cancel(context.Background(), memberPrincipal, booking.ID)
		if !errors.Is(err, ErrAlreadyCancelled) {
			t.Fatalf("expected ErrAlreadyCancelled, got %v", err)
		}
		if ledger.seats("p") != 0 {
			t.Fatalf("expected counter to stay at zero, got %d", ledger.seats("p"))
		}
	})

	t.Run("unknown bookings are not found", func(t *testing.T) {
		t.Parallel()

		_, _, svc, _ := setup()
		if _, err := svc.Cancel(context.Background(), adminPrincipal, "missing"); !errors.Is(err, ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
	})
}

func TestBookingService_ListForMember(t *testing.T) {
	t.Parallel()

	ledger := newLedgerStub()
	ledger.bookings["b"] = Booking{ID: "b", MemberID: "m", CreatedAt: fixedNow}
	ledger.bookings["a"] = Booking{ID: "a", MemberID: "m", CreatedAt: fixedNow}
	ledger.bookings["c"] = Booking{ID: "c", MemberID: "m", CreatedAt: fixedNow.Add(-time.Hour)}
	ledger.bookings["x"] = Booking{ID: "x", MemberID: "other", CreatedAt: fixedNow}
	svc := newBookingServiceForTest(ledger, nil, nil)

	bookings, err := svc.ListForMember(context.Background(), "m")
	if err != nil {
		t.Fatalf("ListForMember failed: %v", err)
	}
	if len(bookings) != 3 || bookings[0].ID != "c" || bookings[1].ID != "a" || bookings[2].ID != "b" {
		t.Fatalf("expected created_at then id ordering, got %#v", bookings)
	}
}

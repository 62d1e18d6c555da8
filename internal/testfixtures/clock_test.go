package testfixtures

import (
	"testing"
	"time"
)

func TestClockDefaultsToReferenceTime(t *testing.T) {
	t.Parallel()

	clock := NewClock(time.Time{})
	if !clock.Now().Equal(ReferenceTime()) {
		t.Fatalf("expected ReferenceTime, got %v", clock.Current())
	}
	if ReferenceTime().Weekday() != time.Wednesday {
		t.Fatalf("expected reference time to fall on a Wednesday, got %v", ReferenceTime().Weekday())
	}
}

func TestClockAdvanceAndSet(t *testing.T) {
	t.Parallel()

	start := time.Date(2024, time.March, 14, 9, 26, 0, 0, time.UTC)
	clock := NewClock(start)

	if updated := clock.Advance(90 * time.Minute); !updated.Equal(start.Add(90 * time.Minute)) {
		t.Fatalf("advance returned %v", updated)
	}

	clock.Set(start.Add(2 * time.Hour))
	if got := clock.Current(); !got.Equal(start.Add(2 * time.Hour)) {
		t.Fatalf("expected %v, got %v", start.Add(2*time.Hour), got)
	}
}

func TestClockTick(t *testing.T) {
	t.Parallel()

	clock := NewClock(time.Time{}).Tick(time.Second)
	now := clock.NowFunc()

	first := now()
	second := now()
	if !second.Equal(first.Add(time.Second)) {
		t.Fatalf("expected ticking clock to advance one second, got %v then %v", first, second)
	}
	if got := clock.Current(); !got.Equal(second.Add(time.Second)) {
		t.Fatalf("Current should not tick, got %v", got)
	}
}

func TestClockAdvanceTo(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		day    time.Weekday
		hour   int
		minute int
		want   time.Time
	}{
		{name: "later the same day", day: time.Wednesday, hour: 18, minute: 30, want: time.Date(2024, time.March, 6, 18, 30, 0, 0, time.UTC)},
		{name: "earlier the same day wraps a week", day: time.Wednesday, hour: 7, minute: 0, want: time.Date(2024, time.March, 13, 7, 0, 0, 0, time.UTC)},
		{name: "next monday", day: time.Monday, hour: 9, minute: 0, want: time.Date(2024, time.March, 11, 9, 0, 0, 0, time.UTC)},
		{name: "exact instant wraps a week", day: time.Wednesday, hour: 12, minute: 0, want: time.Date(2024, time.March, 13, 12, 0, 0, 0, time.UTC)},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			clock := NewClock(time.Time{})
			if got := clock.AdvanceTo(tc.day, tc.hour, tc.minute); !got.Equal(tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, got)
			}
		})
	}
}

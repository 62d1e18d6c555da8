package recurrence

import (
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"
)

// DefaultDuration is the length of every projected occurrence unless overridden.
const DefaultDuration = time.Hour

// ErrInvalidClock indicates a time of day that is not "HH:MM" on a 24 hour clock.
var ErrInvalidClock = errors.New("recurrence: time of day must be HH:MM")

// ErrInvalidWeekday indicates an unknown day name or a value outside 0-6.
var ErrInvalidWeekday = errors.New("recurrence: invalid weekday")

var clockPattern = regexp.MustCompile(`^([01]?\d|2[0-3]):([0-5]\d)$`)

// Slot is a recurring weekly class slot as seen by the projector.
type Slot struct {
	PatternID       string
	ClassID         string
	ClassName       string
	Instructor      string
	Weekday         time.Weekday
	StartTime       string
	MaxCapacity     int
	CurrentCapacity int
}

// Occurrence is one dated instance of a slot within a week.
type Occurrence struct {
	PatternID       string
	ClassID         string
	ClassName       string
	Instructor      string
	Start           time.Time
	End             time.Time
	MaxCapacity     int
	CurrentCapacity int
	Color           string
}

// Projector turns weekly slots into dated occurrences. It holds only
// immutable configuration and is safe for concurrent use.
type Projector struct {
	location  *time.Location
	weekStart time.Weekday
	duration  time.Duration
}

// Option configures a Projector.
type Option func(*Projector)

// WithLocation sets the facility timezone. A nil location keeps UTC.
func WithLocation(loc *time.Location) Option {
	return func(p *Projector) {
		if loc != nil {
			p.location = loc
		}
	}
}

// WithWeekStart sets the first day of the calendar week.
func WithWeekStart(day time.Weekday) Option {
	return func(p *Projector) {
		if day >= time.Sunday && day <= time.Saturday {
			p.weekStart = day
		}
	}
}

// WithDuration overrides the fixed occurrence length.
func WithDuration(d time.Duration) Option {
	return func(p *Projector) {
		if d > 0 {
			p.duration = d
		}
	}
}

// NewProjector constructs a Projector. Weeks start on Sunday in UTC and
// occurrences last one hour unless options say otherwise.
func NewProjector(opts ...Option) *Projector {
	p := &Projector{
		location:  time.UTC,
		weekStart: time.Sunday,
		duration:  DefaultDuration,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Location returns the facility timezone.
func (p *Projector) Location() *time.Location {
	return p.location
}

// WeekStartDay returns the configured first day of the week.
func (p *Projector) WeekStartDay() time.Weekday {
	return p.weekStart
}

// NormalizeWeekStart floors t to midnight of the most recent week-start day
// in the facility timezone.
func (p *Projector) NormalizeWeekStart(t time.Time) time.Time {
	local := t.In(p.location)
	back := (int(local.Weekday()) - int(p.weekStart) + 7) % 7
	y, m, d := local.Date()
	return time.Date(y, m, d-back, 0, 0, 0, 0, p.location)
}

// WeekOf returns the bounds of the week containing reference. The end is
// exclusive and equals the start of the following week.
func (p *Projector) WeekOf(reference time.Time) (start, end time.Time) {
	start = p.NormalizeWeekStart(reference)
	y, m, d := start.Date()
	return start, time.Date(y, m, d+7, 0, 0, 0, 0, p.location)
}

// Project returns the occurrences of slots within the week containing
// weekStart, ordered by start time, class ID and pattern ID. Slots with an
// unparseable start time are skipped.
func (p *Projector) Project(slots []Slot, weekStart time.Time) []Occurrence {
	start := p.NormalizeWeekStart(weekStart)
	y, m, d := start.Date()

	occurrences := make([]Occurrence, 0, len(slots))
	for _, slot := range slots {
		hour, minute, err := ParseClock(slot.StartTime)
		if err != nil {
			continue
		}
		offset := (int(slot.Weekday) - int(p.weekStart) + 7) % 7
		begin := time.Date(y, m, d+offset, hour, minute, 0, 0, p.location)

		occurrences = append(occurrences, Occurrence{
			PatternID:       slot.PatternID,
			ClassID:         slot.ClassID,
			ClassName:       slot.ClassName,
			Instructor:      slot.Instructor,
			Start:           begin,
			End:             begin.Add(p.duration),
			MaxCapacity:     slot.MaxCapacity,
			CurrentCapacity: slot.CurrentCapacity,
			Color:           Color(slot.ClassID),
		})
	}

	sort.SliceStable(occurrences, func(i, j int) bool {
		a, b := occurrences[i], occurrences[j]
		if !a.Start.Equal(b.Start) {
			return a.Start.Before(b.Start)
		}
		if a.ClassID != b.ClassID {
			return a.ClassID < b.ClassID
		}
		return a.PatternID < b.PatternID
	})
	return occurrences
}

// NextOccurrence returns the first start of slot at or after now.
func (p *Projector) NextOccurrence(slot Slot, now time.Time) (time.Time, error) {
	hour, minute, err := ParseClock(slot.StartTime)
	if err != nil {
		return time.Time{}, err
	}
	local := now.In(p.location)
	y, m, d := local.Date()
	ahead := (int(slot.Weekday) - int(local.Weekday()) + 7) % 7
	candidate := time.Date(y, m, d+ahead, hour, minute, 0, 0, p.location)
	if candidate.Before(local) {
		candidate = time.Date(y, m, d+ahead+7, hour, minute, 0, 0, p.location)
	}
	return candidate, nil
}

// ParseClock parses "HH:MM" on a 24 hour clock.
func ParseClock(value string) (hour, minute int, err error) {
	matches := clockPattern.FindStringSubmatch(strings.TrimSpace(value))
	if matches == nil {
		return 0, 0, fmt.Errorf("%w: %q", ErrInvalidClock, value)
	}
	hour, _ = strconv.Atoi(matches[1])
	minute, _ = strconv.Atoi(matches[2])
	return hour, minute, nil
}

// FormatClock renders hour and minute as "HH:MM".
func FormatClock(hour, minute int) string {
	return fmt.Sprintf("%02d:%02d", hour, minute)
}

var weekdayNames = map[string]time.Weekday{
	"sunday": time.Sunday, "sun": time.Sunday,
	"monday": time.Monday, "mon": time.Monday,
	"tuesday": time.Tuesday, "tue": time.Tuesday,
	"wednesday": time.Wednesday, "wed": time.Wednesday,
	"thursday": time.Thursday, "thu": time.Thursday,
	"friday": time.Friday, "fri": time.Friday,
	"saturday": time.Saturday, "sat": time.Saturday,
}

// ParseWeekday accepts an English day name, its three letter abbreviation or
// a number from 0 (Sunday) to 6.
func ParseWeekday(value string) (time.Weekday, error) {
	trimmed := strings.ToLower(strings.TrimSpace(value))
	if day, ok := weekdayNames[trimmed]; ok {
		return day, nil
	}
	if n, err := strconv.Atoi(trimmed); err == nil && n >= 0 && n <= 6 {
		return time.Weekday(n), nil
	}
	return 0, fmt.Errorf("%w: %q", ErrInvalidWeekday, value)
}

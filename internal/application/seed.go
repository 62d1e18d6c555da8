package application

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/example/gym-scheduler/internal/recurrence"
)

type timetableClass struct {
	Name        string                `json:"name"`
	Instructor  string                `json:"instructor"`
	Occurrences []timetableOccurrence `json:"occurrences"`
}

type timetableOccurrence struct {
	Day         string `json:"day"`
	Time        string `json:"time"`
	MaxCapacity int    `json:"max_capacity"`
}

// SeedResult reports what SeedTimetable added.
type SeedResult struct {
	ClassesCreated  int
	PatternsCreated int
}

// SeedTimetable loads a JSON timetable of the form
// [{"name","instructor","occurrences":[{"day","time","max_capacity"}]}].
// Classes are matched by name and instructor, patterns by weekday and start
// time, so loading the same file twice adds nothing.
func (s *CatalogService) SeedTimetable(ctx context.Context, r io.Reader) (result SeedResult, err error) {
	if s == nil {
		err = fmt.Errorf("CatalogService is nil")
		return
	}
	if s.classes == nil {
		err = fmt.Errorf("class repository not configured")
		return
	}

	logger := s.loggerWith(ctx, "SeedTimetable")
	defer func() {
		if err != nil {
			logFailure(ctx, logger, "failed to seed timetable", err)
			return
		}
		logger.With(
			"classes_created", result.ClassesCreated,
			"patterns_created", result.PatternsCreated,
		).InfoContext(ctx, "timetable seeded")
	}()

	var timetable []timetableClass
	if err = json.NewDecoder(r).Decode(&timetable); err != nil {
		err = fmt.Errorf("decode timetable: %w", err)
		return
	}

	var existing []ClassDefinition
	existing, err = s.classes.ListClasses(ctx)
	if err != nil {
		err = mapClassRepoError(err)
		return
	}

	system := Principal{MemberID: "system", IsAdmin: true}
	for i, entry := range timetable {
		var patterns []PatternInput
		patterns, err = entry.patternInputs()
		if err != nil {
			err = fmt.Errorf("timetable entry %d: %w", i, err)
			return
		}

		class, found := findClass(existing, entry.Name, entry.Instructor)
		if !found {
			class, err = s.Create(ctx, CreateClassParams{
				Principal: system,
				Input:     ClassInput{Name: entry.Name, Instructor: entry.Instructor, Patterns: patterns},
			})
			if err != nil {
				err = fmt.Errorf("timetable entry %d: %w", i, err)
				return
			}
			existing = append(existing, class)
			result.ClassesCreated++
			result.PatternsCreated += len(class.Patterns)
			continue
		}

		input := ClassInput{Name: class.Name, Instructor: class.Instructor}
		for _, pattern := range class.Patterns {
			input.Patterns = append(input.Patterns, PatternInput{
				ID:          pattern.ID,
				Weekday:     int(pattern.Weekday),
				StartTime:   pattern.StartTime,
				MaxCapacity: pattern.MaxCapacity,
			})
		}
		added := 0
		for _, candidate := range patterns {
			if hasPattern(class.Patterns, candidate) {
				continue
			}
			input.Patterns = append(input.Patterns, candidate)
			added++
		}
		if added == 0 {
			continue
		}

		if _, err = s.Update(ctx, UpdateClassParams{Principal: system, ClassID: class.ID, Input: input}); err != nil {
			err = fmt.Errorf("timetable entry %d: %w", i, err)
			return
		}
		result.PatternsCreated += added
	}
	return
}

func (c timetableClass) patternInputs() ([]PatternInput, error) {
	patterns := make([]PatternInput, 0, len(c.Occurrences))
	for _, occurrence := range c.Occurrences {
		weekday, err := recurrence.ParseWeekday(occurrence.Day)
		if err != nil {
			return nil, err
		}
		hour, minute, err := recurrence.ParseClock(occurrence.Time)
		if err != nil {
			return nil, err
		}
		patterns = append(patterns, PatternInput{
			Weekday:     int(weekday),
			StartTime:   recurrence.FormatClock(hour, minute),
			MaxCapacity: occurrence.MaxCapacity,
		})
	}
	return patterns, nil
}

func findClass(classes []ClassDefinition, name, instructor string) (ClassDefinition, bool) {
	name = strings.TrimSpace(name)
	instructor = strings.TrimSpace(instructor)
	for _, class := range classes {
		if class.Name == name && class.Instructor == instructor {
			return class, true
		}
	}
	return ClassDefinition{}, false
}

func hasPattern(patterns []OccurrencePattern, candidate PatternInput) bool {
	for _, pattern := range patterns {
		if int(pattern.Weekday) == candidate.Weekday && pattern.StartTime == candidate.StartTime {
			return true
		}
	}
	return false
}

// EnsureAdmin creates the initial administrator when the roster is empty. It
// reports whether a member was created.
func (s *MemberService) EnsureAdmin(ctx context.Context, username, password string) (member Member, created bool, err error) {
	if s == nil {
		err = fmt.Errorf("MemberService is nil")
		return
	}
	if s.members == nil {
		err = fmt.Errorf("member repository not configured")
		return
	}

	var members []Member
	members, err = s.members.ListMembers(ctx)
	if err != nil {
		err = mapMemberRepoError(err)
		return
	}
	if len(members) > 0 {
		return
	}

	system := Principal{MemberID: "system", IsAdmin: true}
	member, err = s.Create(ctx, CreateMemberParams{
		Principal: system,
		Input: MemberInput{
			Username:         username,
			Name:             "Administrator",
			MembershipNumber: "MEM001",
			IsAdmin:          true,
			Password:         &password,
		},
	})
	if err != nil {
		return
	}
	created = true
	return
}

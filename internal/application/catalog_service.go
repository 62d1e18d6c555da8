package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/example/gym-scheduler/internal/persistence"
	"github.com/example/gym-scheduler/internal/recurrence"
)

// ClassRepository captures the persistence operations needed by the catalog.
type ClassRepository interface {
	CreateClass(ctx context.Context, class ClassDefinition) (ClassDefinition, error)
	UpdateClass(ctx context.Context, class ClassDefinition) (ClassDefinition, error)
	GetClass(ctx context.Context, id string) (ClassDefinition, error)
	ListClasses(ctx context.Context) ([]ClassDefinition, error)
	DeleteClass(ctx context.Context, id string) error
}

// ScheduleInvalidator drops cached schedule projections after a change that
// affects them.
type ScheduleInvalidator interface {
	Invalidate()
}

// CatalogService orchestrates validation, authorization, and persistence for class definitions.
type CatalogService struct {
	classes     ClassRepository
	invalidator ScheduleInvalidator
	idGenerator func() string
	now         func() time.Time
	logger      *slog.Logger
}

// NewCatalogService constructs a catalog service with the provided dependencies.
func NewCatalogService(classes ClassRepository, invalidator ScheduleInvalidator, idGenerator func() string, now func() time.Time) *CatalogService {
	return NewCatalogServiceWithLogger(classes, invalidator, idGenerator, now, nil)
}

// NewCatalogServiceWithLogger constructs a catalog service with a specified logger.
func NewCatalogServiceWithLogger(classes ClassRepository, invalidator ScheduleInvalidator, idGenerator func() string, now func() time.Time, logger *slog.Logger) *CatalogService {
	if idGenerator == nil {
		idGenerator = func() string { return "" }
	}
	if now == nil {
		now = time.Now
	}
	return &CatalogService{
		classes:     classes,
		invalidator: invalidator,
		idGenerator: idGenerator,
		now:         now,
		logger:      defaultLogger(logger),
	}
}

func (s *CatalogService) loggerWith(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return serviceLogger(ctx, s.logger, "CatalogService", operation, attrs...)
}

func (s *CatalogService) invalidate() {
	if s.invalidator != nil {
		s.invalidator.Invalidate()
	}
}

// List returns every class ordered by name.
func (s *CatalogService) List(ctx context.Context) ([]ClassDefinition, error) {
	if s == nil {
		return nil, fmt.Errorf("CatalogService is nil")
	}
	if s.classes == nil {
		return nil, fmt.Errorf("class repository not configured")
	}

	classes, err := s.classes.ListClasses(ctx)
	if err != nil {
		err = mapClassRepoError(err)
		logFailure(ctx, s.loggerWith(ctx, "List"), "failed to list classes", err)
		return nil, err
	}

	sort.Slice(classes, func(i, j int) bool {
		if classes[i].Name == classes[j].Name {
			return classes[i].ID < classes[j].ID
		}
		return classes[i].Name < classes[j].Name
	})
	return classes, nil
}

// Get returns a single class with its patterns.
func (s *CatalogService) Get(ctx context.Context, id string) (ClassDefinition, error) {
	if s == nil {
		return ClassDefinition{}, fmt.Errorf("CatalogService is nil")
	}
	if s.classes == nil {
		return ClassDefinition{}, fmt.Errorf("class repository not configured")
	}

	trimmed := strings.TrimSpace(id)
	if trimmed == "" {
		return ClassDefinition{}, ErrNotFound
	}

	class, err := s.classes.GetClass(ctx, trimmed)
	if err != nil {
		return ClassDefinition{}, mapClassRepoError(err)
	}
	return class, nil
}

// Create validates input and persists a new class for administrators.
func (s *CatalogService) Create(ctx context.Context, params CreateClassParams) (class ClassDefinition, err error) {
	if s == nil {
		err = fmt.Errorf("CatalogService is nil")
		return
	}

	logger := s.loggerWith(ctx, "Create", "principal_id", params.Principal.MemberID)
	defer func() {
		if err != nil {
			logFailure(ctx, logger, "failed to create class", err)
			return
		}
		logger.With("class_id", class.ID, "pattern_count", len(class.Patterns)).InfoContext(ctx, "class created")
	}()

	if !params.Principal.IsAdmin {
		err = ErrForbidden
		return
	}
	if s.classes == nil {
		err = fmt.Errorf("class repository not configured")
		return
	}

	input := normalizeClassInput(params.Input)
	if vErr := validateClassInput(input, nil); vErr.HasErrors() {
		err = vErr
		return
	}

	now := s.now()
	class = ClassDefinition{
		ID:         s.idGenerator(),
		Name:       input.Name,
		Instructor: input.Instructor,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	class.Patterns = s.buildPatterns(class.ID, input.Patterns, nil)

	class, err = s.classes.CreateClass(ctx, class)
	if err != nil {
		err = mapClassRepoError(err)
		return
	}

	s.invalidate()
	return
}

// Update replaces the class attributes and merges its patterns by ID.
// Existing patterns keep their seat count; patterns absent from the input are removed.
func (s *CatalogService) Update(ctx context.Context, params UpdateClassParams) (class ClassDefinition, err error) {
	if s == nil {
		err = fmt.Errorf("CatalogService is nil")
		return
	}

	logger := s.loggerWith(ctx, "Update",
		"principal_id", params.Principal.MemberID,
		"class_id", params.ClassID,
	)
	defer func() {
		if err != nil {
			logFailure(ctx, logger, "failed to update class", err)
			return
		}
		logger.With("pattern_count", len(class.Patterns)).InfoContext(ctx, "class updated")
	}()

	if !params.Principal.IsAdmin {
		err = ErrForbidden
		return
	}
	if s.classes == nil {
		err = fmt.Errorf("class repository not configured")
		return
	}

	var existing ClassDefinition
	existing, err = s.Get(ctx, params.ClassID)
	if err != nil {
		return
	}

	known := make(map[string]OccurrencePattern, len(existing.Patterns))
	for _, pattern := range existing.Patterns {
		known[pattern.ID] = pattern
	}

	input := normalizeClassInput(params.Input)
	if vErr := validateClassInput(input, known); vErr.HasErrors() {
		err = vErr
		return
	}
	if err = checkBookedPatterns(input, known); err != nil {
		return
	}

	class = ClassDefinition{
		ID:         existing.ID,
		Name:       input.Name,
		Instructor: input.Instructor,
		CreatedAt:  existing.CreatedAt,
		UpdatedAt:  s.now(),
	}
	class.Patterns = s.buildPatterns(class.ID, input.Patterns, known)

	class, err = s.classes.UpdateClass(ctx, class)
	if err != nil {
		err = mapClassRepoError(err)
		return
	}

	s.invalidate()
	return
}

// Delete removes a class and its patterns. Classes with active bookings are kept.
func (s *CatalogService) Delete(ctx context.Context, principal Principal, id string) (err error) {
	if s == nil {
		return fmt.Errorf("CatalogService is nil")
	}

	trimmed := strings.TrimSpace(id)
	logger := s.loggerWith(ctx, "Delete",
		"principal_id", principal.MemberID,
		"class_id", trimmed,
	)
	defer func() {
		if err != nil {
			logFailure(ctx, logger, "failed to delete class", err)
			return
		}
		logger.InfoContext(ctx, "class deleted")
	}()

	if !principal.IsAdmin {
		return ErrForbidden
	}
	if s.classes == nil {
		return fmt.Errorf("class repository not configured")
	}
	if trimmed == "" {
		return ErrNotFound
	}

	if err = s.classes.DeleteClass(ctx, trimmed); err != nil {
		return mapClassRepoError(err)
	}

	s.invalidate()
	return nil
}

func (s *CatalogService) buildPatterns(classID string, inputs []PatternInput, known map[string]OccurrencePattern) []OccurrencePattern {
	patterns := make([]OccurrencePattern, 0, len(inputs))
	for _, input := range inputs {
		pattern := OccurrencePattern{
			ID:          input.ID,
			ClassID:     classID,
			Weekday:     time.Weekday(input.Weekday),
			StartTime:   input.StartTime,
			MaxCapacity: input.MaxCapacity,
		}
		if current, ok := known[input.ID]; ok {
			pattern.CurrentCapacity = current.CurrentCapacity
		}
		if pattern.ID == "" {
			pattern.ID = s.idGenerator()
		}
		patterns = append(patterns, pattern)
	}
	return patterns
}

func normalizeClassInput(input ClassInput) ClassInput {
	normalized := ClassInput{
		Name:       strings.TrimSpace(input.Name),
		Instructor: strings.TrimSpace(input.Instructor),
	}
	if len(input.Patterns) == 0 {
		return normalized
	}
	normalized.Patterns = make([]PatternInput, len(input.Patterns))
	for i, pattern := range input.Patterns {
		pattern.ID = strings.TrimSpace(pattern.ID)
		pattern.StartTime = strings.TrimSpace(pattern.StartTime)
		if hour, minute, err := recurrence.ParseClock(pattern.StartTime); err == nil {
			pattern.StartTime = recurrence.FormatClock(hour, minute)
		}
		normalized.Patterns[i] = pattern
	}
	return normalized
}

// validateClassInput applies the tag rules and checks pattern IDs. When known
// is nil every supplied ID is new; otherwise IDs must belong to the class.
func validateClassInput(input ClassInput, known map[string]OccurrencePattern) *ValidationError {
	vErr := &ValidationError{}
	vErr.merge(validateStruct(input))

	seen := make(map[string]int, len(input.Patterns))
	for i, pattern := range input.Patterns {
		if pattern.ID == "" {
			continue
		}
		field := fmt.Sprintf("patterns[%d].id", i)
		if first, dup := seen[pattern.ID]; dup {
			vErr.add(field, fmt.Sprintf("duplicates patterns[%d].id", first))
			continue
		}
		seen[pattern.ID] = i
		if known != nil {
			if _, ok := known[pattern.ID]; !ok {
				vErr.add(field, "does not belong to this class")
			}
		}
	}
	return vErr
}

// checkBookedPatterns rejects edits that would drop seats already taken,
// either by removing a booked pattern or by lowering its limit below the
// current count.
func checkBookedPatterns(input ClassInput, known map[string]OccurrencePattern) error {
	kept := make(map[string]bool, len(input.Patterns))
	for _, pattern := range input.Patterns {
		current, ok := known[pattern.ID]
		if !ok {
			continue
		}
		kept[pattern.ID] = true
		if pattern.MaxCapacity < current.CurrentCapacity {
			return fmt.Errorf("%w: pattern %s has %d booked seats", ErrConflict, pattern.ID, current.CurrentCapacity)
		}
	}
	for id, pattern := range known {
		if !kept[id] && pattern.CurrentCapacity > 0 {
			return fmt.Errorf("%w: pattern %s has active bookings", ErrConflict, id)
		}
	}
	return nil
}

func mapClassRepoError(err error) error {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, ErrNotFound), errors.Is(err, persistence.ErrNotFound):
		return ErrNotFound
	case errors.Is(err, persistence.ErrInUse):
		return fmt.Errorf("%w: class has active bookings", ErrConflict)
	case errors.Is(err, persistence.ErrDuplicate):
		return ErrAlreadyExists
	case errors.Is(err, persistence.ErrConstraintViolation):
		vErr := &ValidationError{}
		vErr.add("patterns", "violates a capacity or schedule constraint")
		return vErr
	}
	return err
}

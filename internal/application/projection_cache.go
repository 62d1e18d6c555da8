package application

import (
	"slices"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultProjectionCacheSize bounds the number of cached weekly views.
const DefaultProjectionCacheSize = 64

// ProjectionCache keeps recently projected weekly schedules keyed by the
// normalized week start and class filter.
type ProjectionCache struct {
	mu         sync.Mutex
	entries    *lru.Cache[string, WeeklySchedule]
	generation uint64
}

// NewProjectionCache creates a cache holding up to size schedules.
func NewProjectionCache(size int) (*ProjectionCache, error) {
	if size <= 0 {
		size = DefaultProjectionCacheSize
	}
	entries, err := lru.New[string, WeeklySchedule](size)
	if err != nil {
		return nil, err
	}
	return &ProjectionCache{entries: entries}, nil
}

func projectionKey(weekStart time.Time, classFilter string) string {
	return weekStart.UTC().Format(time.RFC3339) + "|" + strings.ToLower(strings.TrimSpace(classFilter))
}

// Get returns the cached schedule and the generation it was read at. The
// generation must be passed back to Put so that a view computed before an
// invalidation is never stored after it.
func (c *ProjectionCache) Get(weekStart time.Time, classFilter string) (WeeklySchedule, uint64, bool) {
	if c == nil {
		return WeeklySchedule{}, 0, false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	schedule, ok := c.entries.Get(projectionKey(weekStart, classFilter))
	if ok {
		schedule.Occurrences = slices.Clone(schedule.Occurrences)
	}
	return schedule, c.generation, ok
}

// Put stores schedule unless the cache was invalidated after generation.
func (c *ProjectionCache) Put(weekStart time.Time, classFilter string, schedule WeeklySchedule, generation uint64) {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if generation != c.generation {
		return
	}
	c.entries.Add(projectionKey(weekStart, classFilter), schedule)
}

// Invalidate drops every cached schedule.
func (c *ProjectionCache) Invalidate() {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.generation++
	c.entries.Purge()
}

// Len reports the number of cached schedules.
func (c *ProjectionCache) Len() int {
	if c == nil {
		return 0
	}
	return c.entries.Len()
}

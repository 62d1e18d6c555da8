package testfixtures

import (
	"strconv"
	"sync"

	"github.com/google/uuid"
)

// fixtureNamespace seeds the deterministic UUIDs produced by UUIDGenerator.
var fixtureNamespace = uuid.MustParse("6f1c3e0a-8d4b-4c7e-9a52-3b1f0d2e7c61")

// IDGenerator produces readable sequential identifiers such as "class-1".
type IDGenerator struct {
	mu      sync.Mutex
	prefix  string
	counter uint64
}

// NewIDGenerator returns a generator for prefix, defaulting to "id".
func NewIDGenerator(prefix string) *IDGenerator {
	if prefix == "" {
		prefix = "id"
	}
	return &IDGenerator{prefix: prefix}
}

// Next returns the next identifier in the sequence.
func (g *IDGenerator) Next() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.counter++
	return g.prefix + "-" + strconv.FormatUint(g.counter, 10)
}

// NextFunc exposes Next for injection into constructors.
func (g *IDGenerator) NextFunc() func() string {
	if g == nil {
		return func() string { return "" }
	}
	return g.Next
}

// Reset restarts the sequence at 1.
func (g *IDGenerator) Reset() {
	g.mu.Lock()
	g.counter = 0
	g.mu.Unlock()
}

// UUIDGenerator yields name-based UUIDs that are stable across runs, for
// tests that exercise the same identifier shape as production.
type UUIDGenerator struct {
	ids *IDGenerator
}

// NewUUIDGenerator returns a UUID generator whose sequence is keyed by label.
func NewUUIDGenerator(label string) *UUIDGenerator {
	return &UUIDGenerator{ids: NewIDGenerator(label)}
}

// Next returns the next UUID in the sequence.
func (g *UUIDGenerator) Next() string {
	return uuid.NewSHA1(fixtureNamespace, []byte(g.ids.Next())).String()
}

// NextFunc exposes Next for injection into constructors.
func (g *UUIDGenerator) NextFunc() func() string {
	return g.Next
}

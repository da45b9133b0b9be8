package id

import (
	"crypto/rand"
	"fmt"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// Generator produces sortable globally-unique identifiers.
type Generator interface {
	Next() (string, error)
}

// GeneratorFunc adapts a function to the Generator interface.
type GeneratorFunc func() (string, error)

func (f GeneratorFunc) Next() (string, error) { return f() }

// SortableGenerator generates ULIDs: lexicographically sortable by creation
// time and safe for concurrent use.
type SortableGenerator struct {
	mu      sync.Mutex
	entropy *ulid.MonotonicEntropy
}

func NewSortableGenerator() *SortableGenerator {
	return &SortableGenerator{
		entropy: ulid.Monotonic(rand.Reader, 0),
	}
}

func (g *SortableGenerator) Next() (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	id, err := ulid.New(ulid.Timestamp(time.Now()), g.entropy)
	if err != nil {
		return "", fmt.Errorf("failed to generate id: %w", err)
	}
	return id.String(), nil
}

// Must returns the next ID or panics. Intended for wiring code and tests.
func Must(g Generator) string {
	id, err := g.Next()
	if err != nil {
		panic(err)
	}
	return id
}

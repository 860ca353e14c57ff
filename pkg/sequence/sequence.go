// Package sequence produces human readable complaint codes such as CMP-2024-1001.
//
// Numbering restarts every calendar year from Start; the counter is incremented before use, so
// the first code of a year carries Start+1.
package sequence

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"
)

// Start is the value a yearly counter holds before its first increment.
const Start int64 = 1000

// Counter hands out the next value for a year. Implementations must be safe for concurrent use.
type Counter interface {
	NextValue(ctx context.Context, year int) (int64, error)
}

// Generator formats counter values into complaint codes.
type Generator struct {
	prefix  string
	counter Counter
	now     func() time.Time
}

// Option customises a Generator.
type Option func(*Generator)

// WithClock overrides the time source used to pick the year.
func WithClock(now func() time.Time) Option {
	return func(g *Generator) {
		if now != nil {
			g.now = now
		}
	}
}

// NewGenerator builds a generator for prefix backed by counter.
func NewGenerator(prefix string, counter Counter, opts ...Option) *Generator {
	prefix = strings.ToUpper(strings.TrimSpace(prefix))
	if prefix == "" {
		prefix = "CMP"
	}
	g := &Generator{prefix: prefix, counter: counter, now: time.Now}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Next returns the next complaint code.
func (g *Generator) Next(ctx context.Context) (string, error) {
	year := g.now().UTC().Year()
	value, err := g.counter.NextValue(ctx, year)
	if err != nil {
		return "", fmt.Errorf("next complaint sequence: %w", err)
	}
	return Format(g.prefix, year, value), nil
}

// Format renders prefix, year and value as PREFIX-YYYY-N.
func Format(prefix string, year int, value int64) string {
	return fmt.Sprintf("%s-%d-%d", prefix, year, value)
}

// MemoryCounter keeps per-year counters in process memory.
type MemoryCounter struct {
	mu     sync.Mutex
	values map[int]int64
}

// NewMemoryCounter returns an empty in-memory counter.
func NewMemoryCounter() *MemoryCounter {
	return &MemoryCounter{values: make(map[int]int64)}
}

// NextValue implements Counter.
func (c *MemoryCounter) NextValue(_ context.Context, year int) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	current, ok := c.values[year]
	if !ok {
		current = Start
	}
	current++
	c.values[year] = current
	return current, nil
}

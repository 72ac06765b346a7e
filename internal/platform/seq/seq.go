// Package seq assigns human-readable, period-scoped identifiers such as
// P2024010001, APT2024010001 and INV2024030002.
//
// An identifier is the entity tag, the four-digit year and two-digit month of
// the creation instant, and a running number zero-padded to four digits. The
// running number restarts at 1 every month.
package seq

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Tag identifies the entity kind an identifier is issued for.
type Tag string

const (
	Patient     Tag = "P"
	Appointment Tag = "APT"
	Invoice     Tag = "INV"
)

// Width is the minimum number of digits in the running number.
const Width = 4

// Period returns the YYYYMM key for t.
func Period(t time.Time) string {
	return t.Format("200601")
}

// Prefix returns the identifier prefix for tag in the month containing t.
func Prefix(tag Tag, t time.Time) string {
	return string(tag) + Period(t)
}

// Format renders the n-th identifier of tag's period containing t.
func Format(tag Tag, t time.Time, n int) string {
	return fmt.Sprintf("%s%0*d", Prefix(tag, t), Width, n)
}

// Generator issues the next identifier for a tag. Implementations must never
// hand out the same identifier twice.
type Generator interface {
	Next(ctx context.Context, tag Tag, at time.Time) (string, error)
}

// MemoryGenerator is an in-process Generator for unit tests.
type MemoryGenerator struct {
	mu       sync.Mutex
	loc      *time.Location
	counters map[string]int
}

func NewMemoryGenerator(loc *time.Location) *MemoryGenerator {
	if loc == nil {
		loc = time.Local
	}
	return &MemoryGenerator{loc: loc, counters: make(map[string]int)}
}

func (g *MemoryGenerator) Next(_ context.Context, tag Tag, at time.Time) (string, error) {
	at = at.In(g.loc)
	key := Prefix(tag, at)

	g.mu.Lock()
	g.counters[key]++
	n := g.counters[key]
	g.mu.Unlock()

	return Format(tag, at, n), nil
}

// Seed sets the last issued number for tag in the month containing at.
func (g *MemoryGenerator) Seed(tag Tag, at time.Time, last int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.counters[Prefix(tag, at.In(g.loc))] = last
}

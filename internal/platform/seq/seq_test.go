package seq

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormat(t *testing.T) {
	march := time.Date(2024, time.March, 14, 10, 0, 0, 0, time.UTC)

	assert.Equal(t, "INV2024030001", Format(Invoice, march, 1))
	assert.Equal(t, "INV2024030002", Format(Invoice, march, 2))
	assert.Equal(t, "P2024010001", Format(Patient, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), 1))
	assert.Equal(t, "APT2024120123", Format(Appointment, time.Date(2024, 12, 31, 0, 0, 0, 0, time.UTC), 123))
	// Numbers past 9999 widen instead of truncating.
	assert.Equal(t, "P20240312345", Format(Patient, march, 12345))
}

func TestPrefix(t *testing.T) {
	at := time.Date(2023, time.November, 5, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, "APT202311", Prefix(Appointment, at))
	assert.Equal(t, "202311", Period(at))
}

func TestMemoryGenerator_Increments(t *testing.T) {
	g := NewMemoryGenerator(time.UTC)
	ctx := context.Background()
	at := time.Date(2024, time.March, 1, 9, 0, 0, 0, time.UTC)

	first, err := g.Next(ctx, Invoice, at)
	require.NoError(t, err)
	second, err := g.Next(ctx, Invoice, at.Add(time.Hour))
	require.NoError(t, err)

	assert.Equal(t, "INV2024030001", first)
	assert.Equal(t, "INV2024030002", second)
	assert.Less(t, first, second)
}

func TestMemoryGenerator_TagsAreIndependent(t *testing.T) {
	g := NewMemoryGenerator(time.UTC)
	ctx := context.Background()
	at := time.Date(2024, time.January, 10, 0, 0, 0, 0, time.UTC)

	p, _ := g.Next(ctx, Patient, at)
	a, _ := g.Next(ctx, Appointment, at)
	b, _ := g.Next(ctx, Invoice, at)

	assert.Equal(t, "P2024010001", p)
	assert.Equal(t, "APT2024010001", a)
	assert.Equal(t, "INV2024010001", b)
}

func TestMemoryGenerator_ResetsEachMonth(t *testing.T) {
	g := NewMemoryGenerator(time.UTC)
	ctx := context.Background()

	jan := time.Date(2024, time.January, 31, 23, 0, 0, 0, time.UTC)
	feb := time.Date(2024, time.February, 1, 0, 30, 0, 0, time.UTC)

	g.Next(ctx, Patient, jan)
	g.Next(ctx, Patient, jan)
	id, _ := g.Next(ctx, Patient, feb)

	assert.Equal(t, "P2024020001", id)
}

func TestMemoryGenerator_UsesLocation(t *testing.T) {
	loc := time.FixedZone("IST", 5*3600+1800)
	g := NewMemoryGenerator(loc)

	// 2024-01-31 20:00 UTC is already February 1st in IST.
	id, _ := g.Next(context.Background(), Patient, time.Date(2024, 1, 31, 20, 0, 0, 0, time.UTC))
	assert.Equal(t, "P2024020001", id)
}

func TestMemoryGenerator_Seed(t *testing.T) {
	g := NewMemoryGenerator(time.UTC)
	at := time.Date(2024, time.May, 2, 0, 0, 0, 0, time.UTC)
	g.Seed(Invoice, at, 41)

	id, _ := g.Next(context.Background(), Invoice, at)
	assert.Equal(t, "INV2024050042", id)
}

func TestMemoryGenerator_ConcurrentUnique(t *testing.T) {
	g := NewMemoryGenerator(time.UTC)
	at := time.Date(2024, time.March, 1, 0, 0, 0, 0, time.UTC)

	const workers = 50
	ids := make([]string, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ids[i], _ = g.Next(context.Background(), Invoice, at)
		}(i)
	}
	wg.Wait()

	seen := make(map[string]bool, workers)
	for _, id := range ids {
		require.False(t, seen[id], "duplicate identifier %s", id)
		seen[id] = true
	}
	assert.True(t, seen["INV2024030050"])
}

func TestNextSQL(t *testing.T) {
	sql := nextSQL(DefaultSources[Invoice])
	assert.True(t, strings.Contains(sql, "FROM bill WHERE bill_number LIKE $3"))
	assert.True(t, strings.Contains(sql, "ON CONFLICT (tag, period) DO UPDATE"))
}

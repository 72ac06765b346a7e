package reporting

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func periodsOf(points []Point) []string {
	out := make([]string, len(points))
	for i, p := range points {
		out[i] = p.Period
	}
	return out
}

func TestDailyPeriods_LeapDay(t *testing.T) {
	now := time.Date(2024, time.March, 2, 15, 0, 0, 0, time.UTC)
	got := DailyPeriods(now, 3)
	require.Len(t, got, 3)
	assert.Equal(t, time.Date(2024, time.February, 29, 0, 0, 0, 0, time.UTC), got[0])
	assert.Equal(t, time.Date(2024, time.March, 2, 0, 0, 0, 0, time.UTC), got[2])
}

func TestMonthlyPeriods_YearRollover(t *testing.T) {
	now := time.Date(2024, time.February, 15, 8, 0, 0, 0, time.UTC)
	points := MonthlySeries(now, Months, nil)
	require.Len(t, points, 12)
	assert.Equal(t, "2023-03", points[0].Period)
	assert.Equal(t, "2023-12", points[9].Period)
	assert.Equal(t, "2024-01", points[10].Period)
	assert.Equal(t, "2024-02", points[11].Period)
}

func TestMonthlyPeriods_EndOfMonth(t *testing.T) {
	now := time.Date(2024, time.March, 31, 23, 0, 0, 0, time.UTC)
	assert.Equal(t, []string{"2023-12", "2024-01", "2024-02", "2024-03"}, periodsOf(MonthlySeries(now, 4, nil)))
}

func TestDailySeries_ZeroFilled(t *testing.T) {
	now := time.Date(2024, time.March, 10, 12, 0, 0, 0, time.UTC)
	points := DailySeries(now, DefaultDays, map[string]decimal.Decimal{})
	require.Len(t, points, DefaultDays)
	assert.Equal(t, "2024-02-10", points[0].Period)
	assert.Equal(t, "2024-03-10", points[DefaultDays-1].Period)
	for i, p := range points {
		assert.True(t, p.Revenue.IsZero(), "period %s", p.Period)
		if i > 0 {
			assert.Less(t, points[i-1].Period, p.Period)
		}
	}
	assert.True(t, Total(points).IsZero())
}

func TestDensify_PlacesBucketsAndDropsStrays(t *testing.T) {
	now := time.Date(2024, time.March, 10, 12, 0, 0, 0, time.UTC)
	buckets := map[string]decimal.Decimal{
		"2024-03-09": decimal.NewFromInt(300),
		"2024-03-10": decimal.NewFromInt(700),
		"2024-01-01": decimal.NewFromInt(999),
	}
	points := DailySeries(now, 3, buckets)
	assert.Equal(t, []string{"2024-03-08", "2024-03-09", "2024-03-10"}, periodsOf(points))
	assert.True(t, points[0].Revenue.IsZero())
	assert.True(t, points[1].Revenue.Equal(decimal.NewFromInt(300)))
	assert.True(t, points[2].Revenue.Equal(decimal.NewFromInt(700)))
	assert.True(t, Total(points).Equal(decimal.NewFromInt(1000)))
}

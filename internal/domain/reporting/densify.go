package reporting

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	dayLayout   = "2006-01-02"
	monthLayout = "2006-01"
)

// DailyPeriods returns the start of each of the n calendar days ending with
// the day of now, oldest first, in now's location.
func DailyPeriods(now time.Time, n int) []time.Time {
	y, m, d := now.Date()
	today := time.Date(y, m, d, 0, 0, 0, 0, now.Location())
	out := make([]time.Time, n)
	for i := 0; i < n; i++ {
		out[i] = today.AddDate(0, 0, i-(n-1))
	}
	return out
}

// MonthlyPeriods returns the first instant of each of the n calendar months
// ending with the month of now, oldest first. Months are stepped back by
// arithmetic on the month number so day-of-month overflow cannot skip one.
func MonthlyPeriods(now time.Time, n int) []time.Time {
	y, m, _ := now.Date()
	out := make([]time.Time, n)
	for i := 0; i < n; i++ {
		back := n - 1 - i
		year, month := y, int(m)-back
		for month <= 0 {
			month += 12
			year--
		}
		out[i] = time.Date(year, time.Month(month), 1, 0, 0, 0, 0, now.Location())
	}
	return out
}

// Densify lays sparse buckets over periods, formatted with layout. Periods
// with no bucket get zero revenue; buckets outside periods are dropped.
func Densify(periods []time.Time, layout string, buckets map[string]decimal.Decimal) []Point {
	out := make([]Point, len(periods))
	for i, p := range periods {
		key := p.Format(layout)
		rev, ok := buckets[key]
		if !ok {
			rev = decimal.Zero
		}
		out[i] = Point{Period: key, Revenue: rev}
	}
	return out
}

// DailySeries is Densify over DailyPeriods.
func DailySeries(now time.Time, n int, buckets map[string]decimal.Decimal) []Point {
	return Densify(DailyPeriods(now, n), dayLayout, buckets)
}

// MonthlySeries is Densify over MonthlyPeriods.
func MonthlySeries(now time.Time, n int, buckets map[string]decimal.Decimal) []Point {
	return Densify(MonthlyPeriods(now, n), monthLayout, buckets)
}

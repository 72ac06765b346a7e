package reporting

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// Store runs the reporting aggregates. Bucket maps only contain periods with
// at least one paid bill.
type Store interface {
	// RevenueBuckets sums paid_amount of paid bills with from <= bill_date < to,
	// grouped by bill_date formatted in zone with the Postgres pattern pattern.
	RevenueBuckets(ctx context.Context, from, to time.Time, zone, pattern string) (map[string]decimal.Decimal, error)
	PaidRevenue(ctx context.Context, from, to time.Time) (decimal.Decimal, error)
	Counts(ctx context.Context, today time.Time) (Counts, error)
}

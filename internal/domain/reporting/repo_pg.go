package reporting

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

const (
	pgDayPattern   = "YYYY-MM-DD"
	pgMonthPattern = "YYYY-MM"
)

type storePG struct {
	pool *pgxpool.Pool
}

func NewStorePG(pool *pgxpool.Pool) Store {
	return &storePG{pool: pool}
}

func (s *storePG) RevenueBuckets(ctx context.Context, from, to time.Time, zone, pattern string) (map[string]decimal.Decimal, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT to_char(bill_date AT TIME ZONE $3, $4) AS period, SUM(paid_amount)
		FROM bill
		WHERE payment_status = 'paid' AND bill_date >= $1 AND bill_date < $2
		GROUP BY period`, from, to, zone, pattern)
	if err != nil {
		return nil, fmt.Errorf("revenue buckets: %w", err)
	}
	defer rows.Close()

	out := make(map[string]decimal.Decimal)
	for rows.Next() {
		var (
			period string
			sum    decimal.Decimal
		)
		if err := rows.Scan(&period, &sum); err != nil {
			return nil, err
		}
		out[period] = sum
	}
	return out, rows.Err()
}

func (s *storePG) PaidRevenue(ctx context.Context, from, to time.Time) (decimal.Decimal, error) {
	var sum decimal.Decimal
	err := s.pool.QueryRow(ctx, `
		SELECT COALESCE(SUM(paid_amount), 0) FROM bill
		WHERE payment_status = 'paid' AND bill_date >= $1 AND bill_date < $2`, from, to).Scan(&sum)
	if err != nil {
		return decimal.Zero, fmt.Errorf("paid revenue: %w", err)
	}
	return sum, nil
}

func (s *storePG) Counts(ctx context.Context, today time.Time) (Counts, error) {
	var c Counts
	err := s.pool.QueryRow(ctx, `
		SELECT
			(SELECT COUNT(*) FROM patient),
			(SELECT COUNT(*) FROM patient WHERE is_admitted),
			(SELECT COUNT(*) FROM appointment WHERE appointment_date = $1::date),
			(SELECT COUNT(*) FROM bill WHERE payment_status = 'pending')`,
		today.Format(dayLayout),
	).Scan(&c.TotalPatients, &c.AdmittedPatients, &c.TodayAppointments, &c.PendingBills)
	if err != nil {
		return Counts{}, fmt.Errorf("dashboard counts: %w", err)
	}
	return c, nil
}

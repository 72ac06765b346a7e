package reporting

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/hms/hms/internal/platform/apperr"
)

type Service struct {
	store  Store
	loc    *time.Location
	logger zerolog.Logger
	now    func() time.Time
}

// NewService buckets revenue by calendar day and month in loc.
func NewService(store Store, loc *time.Location, logger zerolog.Logger) *Service {
	if loc == nil {
		loc = time.UTC
	}
	return &Service{store: store, loc: loc, logger: logger, now: time.Now}
}

// zoneName is the Postgres time zone for loc. The process-local zone has no
// IANA name, so its current offset is written as a POSIX zone, where the sign
// is inverted.
func zoneName(loc *time.Location, at time.Time) string {
	if name := loc.String(); name != "Local" && name != "" {
		return name
	}
	_, offset := at.In(loc).Zone()
	offset = -offset
	sign := '+'
	if offset < 0 {
		sign = '-'
		offset = -offset
	}
	return fmt.Sprintf("UTC%c%02d:%02d", sign, offset/3600, offset%3600/60)
}

// DailyRevenue returns paid revenue for each of the last days calendar days,
// today included.
func (s *Service) DailyRevenue(ctx context.Context, days int) ([]Point, error) {
	if days < 1 || days > MaxDays {
		return nil, apperr.Invalid("days", fmt.Sprintf("must be between 1 and %d", MaxDays))
	}
	now := s.now().In(s.loc)
	periods := DailyPeriods(now, days)
	from, to := periods[0], periods[len(periods)-1].AddDate(0, 0, 1)

	buckets, err := s.store.RevenueBuckets(ctx, from, to, zoneName(s.loc, now), pgDayPattern)
	if err != nil {
		return nil, err
	}
	return Densify(periods, dayLayout, buckets), nil
}

// MonthlyRevenue returns paid revenue for the last twelve calendar months,
// the current one included.
func (s *Service) MonthlyRevenue(ctx context.Context) ([]Point, error) {
	now := s.now().In(s.loc)
	periods := MonthlyPeriods(now, Months)
	from, to := periods[0], periods[len(periods)-1].AddDate(0, 1, 0)

	buckets, err := s.store.RevenueBuckets(ctx, from, to, zoneName(s.loc, now), pgMonthPattern)
	if err != nil {
		return nil, err
	}
	return Densify(periods, monthLayout, buckets), nil
}

func (s *Service) Dashboard(ctx context.Context) (*Dashboard, error) {
	now := s.now().In(s.loc)
	y, m, d := now.Date()
	today := time.Date(y, m, d, 0, 0, 0, 0, s.loc)
	month := time.Date(y, m, 1, 0, 0, 0, 0, s.loc)

	counts, err := s.store.Counts(ctx, today)
	if err != nil {
		return nil, err
	}
	todayRev, err := s.store.PaidRevenue(ctx, today, today.AddDate(0, 0, 1))
	if err != nil {
		return nil, err
	}
	monthRev, err := s.store.PaidRevenue(ctx, month, month.AddDate(0, 1, 0))
	if err != nil {
		return nil, err
	}
	return &Dashboard{
		TotalPatients:     counts.TotalPatients,
		AdmittedPatients:  counts.AdmittedPatients,
		TodayAppointments: counts.TodayAppointments,
		PendingBills:      counts.PendingBills,
		TodayRevenue:      todayRev,
		MonthRevenue:      monthRev,
	}, nil
}

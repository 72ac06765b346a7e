package reporting

import (
	"github.com/shopspring/decimal"
)

const (
	DefaultDays = 30
	MaxDays     = 366
	Months      = 12
)

const (
	Daily   = "daily"
	Monthly = "monthly"
)

// Point is one bucket of a revenue series. Period is YYYY-MM-DD for daily
// series and YYYY-MM for monthly ones.
type Point struct {
	Period  string          `json:"period"`
	Revenue decimal.Decimal `json:"revenue"`
}

// Dashboard is the landing-page summary.
type Dashboard struct {
	TotalPatients     int             `json:"total_patients"`
	AdmittedPatients  int             `json:"admitted_patients"`
	TodayAppointments int             `json:"today_appointments"`
	PendingBills      int             `json:"pending_bills"`
	TodayRevenue      decimal.Decimal `json:"today_revenue"`
	MonthRevenue      decimal.Decimal `json:"month_revenue"`
}

// Counts are the non-monetary dashboard figures.
type Counts struct {
	TotalPatients     int
	AdmittedPatients  int
	TodayAppointments int
	PendingBills      int
}

// Total sums the revenue of points.
func Total(points []Point) decimal.Decimal {
	sum := decimal.Zero
	for _, p := range points {
		sum = sum.Add(p.Revenue)
	}
	return sum
}

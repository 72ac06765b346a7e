package doctor

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Days lists the schedule weekdays in calendar order.
var Days = []string{"Mon", "Tue", "Wed", "Thu", "Fri", "Sat", "Sun"}

// ParseDay accepts "mon", "Monday" or "MON" and returns the canonical
// three-letter form.
func ParseDay(s string) (string, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	for i, d := range Days {
		if s == strings.ToLower(d) || s == strings.ToLower(time.Weekday((i+1)%7).String()) {
			return d, true
		}
	}
	return "", false
}

// DayOf returns the canonical schedule day of t.
func DayOf(t time.Time) string {
	return Days[(int(t.Weekday())+6)%7]
}

var validSalaryMethods = map[string]bool{"cash": true, "bank_transfer": true, "cheque": true}

const (
	SalaryPending = "pending"
	SalaryPaid    = "paid"
)

type Specialization struct {
	ID          uuid.UUID `db:"id" json:"id"`
	Name        string    `db:"name" json:"name"`
	Description string    `db:"description" json:"description"`
}

// Doctor maps to the doctor table. SpecializationName is joined on read.
type Doctor struct {
	ID                 uuid.UUID       `db:"id" json:"id"`
	FirstName          string          `db:"first_name" json:"first_name"`
	LastName           string          `db:"last_name" json:"last_name"`
	SpecializationID   *uuid.UUID      `db:"specialization_id" json:"specialization_id"`
	SpecializationName string          `db:"-" json:"specialization_name"`
	Qualification      string          `db:"qualification" json:"qualification"`
	ExperienceYears    int             `db:"experience_years" json:"experience_years"`
	Phone              string          `db:"phone" json:"phone"`
	Email              string          `db:"email" json:"email"`
	ConsultationFee    decimal.Decimal `db:"consultation_fee" json:"consultation_fee"`
	MonthlySalary      decimal.Decimal `db:"monthly_salary" json:"monthly_salary"`
	JoiningDate        *time.Time      `db:"joining_date" json:"joining_date"`
	UserID             *uuid.UUID      `db:"user_id" json:"user_id"`
	IsActive           bool            `db:"is_active" json:"is_active"`
	CreatedAt          time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt          time.Time       `db:"updated_at" json:"updated_at"`
}

// DisplayName is "Dr. First Last".
func (d *Doctor) DisplayName() string {
	return strings.TrimSpace("Dr. " + d.FirstName + " " + d.LastName)
}

type DoctorRequest struct {
	FirstName        string          `json:"first_name"`
	LastName         string          `json:"last_name"`
	SpecializationID *uuid.UUID      `json:"specialization_id"`
	Qualification    string          `json:"qualification"`
	ExperienceYears  int             `json:"experience_years"`
	Phone            string          `json:"phone"`
	Email            string          `json:"email"`
	ConsultationFee  decimal.Decimal `json:"consultation_fee"`
	MonthlySalary    decimal.Decimal `json:"monthly_salary"`
	// JoiningDate is "YYYY-MM-DD".
	JoiningDate string     `json:"joining_date"`
	UserID      *uuid.UUID `json:"user_id"`
	IsActive    *bool      `json:"is_active"`
}

type ListFilter struct {
	Query            string
	SpecializationID *uuid.UUID
	Active           *bool
}

// Schedule is one weekday of a doctor's roster. Times are "HH:MM".
type Schedule struct {
	ID              uuid.UUID `db:"id" json:"id"`
	DoctorID        uuid.UUID `db:"doctor_id" json:"doctor_id"`
	DayOfWeek       string    `db:"day_of_week" json:"day_of_week"`
	StartTime       string    `db:"start_time" json:"start_time"`
	EndTime         string    `db:"end_time" json:"end_time"`
	MaxAppointments int       `db:"max_appointments" json:"max_appointments"`
	IsAvailable     bool      `db:"is_available" json:"is_available"`
}

type ScheduleRequest struct {
	DayOfWeek       string `json:"day_of_week"`
	StartTime       string `json:"start_time"`
	EndTime         string `json:"end_time"`
	MaxAppointments *int   `json:"max_appointments"`
	IsAvailable     *bool  `json:"is_available"`
}

// SalaryPayment is one month's salary record for a doctor.
type SalaryPayment struct {
	ID            uuid.UUID       `db:"id" json:"id"`
	DoctorID      uuid.UUID       `db:"doctor_id" json:"doctor_id"`
	Month         time.Time       `db:"month" json:"month"`
	BaseSalary    decimal.Decimal `db:"base_salary" json:"base_salary"`
	Bonus         decimal.Decimal `db:"bonus" json:"bonus"`
	Deductions    decimal.Decimal `db:"deductions" json:"deductions"`
	NetSalary     decimal.Decimal `db:"net_salary" json:"net_salary"`
	PaymentMethod string          `db:"payment_method" json:"payment_method"`
	Status        string          `db:"status" json:"status"`
	PaymentDate   *time.Time      `db:"payment_date" json:"payment_date"`
	PaidBy        *uuid.UUID      `db:"paid_by" json:"paid_by"`
	Notes         string          `db:"notes" json:"notes"`
	CreatedAt     time.Time       `db:"created_at" json:"created_at"`
}

// ComputeNet sets NetSalary = BaseSalary + Bonus - Deductions.
func (s *SalaryPayment) ComputeNet() {
	s.NetSalary = s.BaseSalary.Add(s.Bonus).Sub(s.Deductions)
}

type SalaryRequest struct {
	// Month is "YYYY-MM".
	Month         string           `json:"month"`
	BaseSalary    *decimal.Decimal `json:"base_salary"`
	Bonus         decimal.Decimal  `json:"bonus"`
	Deductions    decimal.Decimal  `json:"deductions"`
	PaymentMethod string           `json:"payment_method"`
	Notes         string           `json:"notes"`
}

type PayRequest struct {
	PaymentMethod string `json:"payment_method"`
}

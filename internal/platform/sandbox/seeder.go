// Package sandbox loads a small, reproducible hospital dataset for demos and
// developer on-boarding. Everything goes through the domain services, so IDs,
// validation and billing totals are the same as for real traffic.
package sandbox

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/hms/hms/internal/domain/appointment"
	"github.com/hms/hms/internal/domain/billing"
	"github.com/hms/hms/internal/domain/doctor"
	"github.com/hms/hms/internal/domain/identity"
	"github.com/hms/hms/internal/domain/patient"
)

// ErrAlreadySeeded is returned when the database already has users.
var ErrAlreadySeeded = errors.New("database already contains users; refusing to seed")

// ---------------------------------------------------------------------------
// Dependencies
// ---------------------------------------------------------------------------

type Users interface {
	ListUsers(ctx context.Context, role string, limit, offset int) ([]*identity.User, int, error)
	CreateUser(ctx context.Context, req identity.CreateUserRequest) (*identity.User, error)
}

type Doctors interface {
	CreateSpecialization(ctx context.Context, sp *doctor.Specialization) (*doctor.Specialization, error)
	CreateDoctor(ctx context.Context, req doctor.DoctorRequest) (*doctor.Doctor, error)
	SetSchedule(ctx context.Context, doctorID uuid.UUID, req doctor.ScheduleRequest) (*doctor.Schedule, error)
	CreateSalary(ctx context.Context, doctorID uuid.UUID, req doctor.SalaryRequest) (*doctor.SalaryPayment, error)
	PaySalary(ctx context.Context, id uuid.UUID, req doctor.PayRequest, paidBy *uuid.UUID) (*doctor.SalaryPayment, error)
}

type Patients interface {
	Register(ctx context.Context, req patient.PatientRequest, createdBy *uuid.UUID) (*patient.Patient, error)
}

type Appointments interface {
	Book(ctx context.Context, req appointment.AppointmentRequest, bookedBy *uuid.UUID) (*appointment.Appointment, error)
	SetStatus(ctx context.Context, id uuid.UUID, status string) (*appointment.Appointment, error)
}

type Bills interface {
	CreateBill(ctx context.Context, req billing.BillRequest, createdBy *uuid.UUID) (*billing.Detail, error)
	RecordPayment(ctx context.Context, billID uuid.UUID, req billing.PaymentRequest, receivedBy *uuid.UUID) (*billing.Detail, error)
}

// ---------------------------------------------------------------------------
// Sample data
// ---------------------------------------------------------------------------

type userSeed struct {
	username, password, first, last, email, role, phone string
}

var sampleUsers = []userSeed{
	{"admin", "admin123", "Super", "Admin", "admin@hospital.com", "admin", ""},
	{"reception1", "recept123", "Priya", "Sharma", "reception@hospital.com", "receptionist", "9876543210"},
	{"dr_smith", "doctor123", "Rajesh", "Smith", "dr.smith@hospital.com", "doctor", "9123456789"},
}

var sampleSpecializations = []string{
	"General Medicine", "Cardiology", "Orthopedics", "Gynecology",
	"Pediatrics", "ENT", "Neurology", "Dermatology",
}

type doctorSeed struct {
	first, last, specialty, qualification string
	experience                        int
	phone                             string
	fee, salary                       int64
	linkUser                          string
}

var sampleDoctors = []doctorSeed{
	{"Rajesh", "Smith", "General Medicine", "MBBS", 10, "9123456789", 500, 80000, "dr_smith"},
	{"Priya", "Kumar", "Cardiology", "MD", 15, "9234567890", 800, 120000, ""},
	{"Anil", "Verma", "Orthopedics", "MS", 12, "9345678901", 700, 110000, ""},
	{"Sunita", "Patel", "Gynecology", "MD", 8, "9456789012", 600, 95000, ""},
	{"Vikram", "Mehta", "Pediatrics", "MBBS", 6, "9567890123", 400, 70000, ""},
}

var workDays = []string{"Mon", "Tue", "Wed", "Thu", "Fri"}

type patientSeed struct {
	first, last string
	age         int
	gender      string
	phone       string
	city, state string
	schemeCard  string
}

var samplePatients = []patientSeed{
	{"Ramesh", "Gupta", 45, "M", "9811111111", "Agra", "UP", ""},
	{"Sunita", "Devi", 32, "F", "9822222222", "Mathura", "UP", "AY001234567"},
	{"Mohan", "Lal", 67, "M", "9833333333", "Firozabad", "UP", "AY007654321"},
	{"Pooja", "Singh", 28, "F", "9844444444", "Gwalior", "MP", ""},
	{"Arun", "Sharma", 55, "M", "9855555555", "Kanpur", "UP", ""},
	{"Deepika", "Yadav", 38, "F", "9866666666", "Aligarh", "UP", "AY009876543"},
	{"Suresh", "Mishra", 42, "M", "9877777777", "Bareilly", "UP", ""},
	{"Anjali", "Kumari", 25, "F", "9888888888", "Lucknow", "UP", ""},
}

var (
	bloodGroups    = []string{"A+", "B+", "O+", "AB+"}
	billOutcomes   = []string{billing.StatusPaid, billing.StatusPaid, billing.StatusPending, billing.StatusPartial}
	apptOutcomes   = []string{appointment.StatusPending, appointment.StatusConfirmed, appointment.StatusCompleted, appointment.StatusCompleted, appointment.StatusCancelled}
	apptTypes      = []string{"consultation", "follow_up"}
	roomCharges    = []int64{0, 1500, 3000}
	medicineCharge = []int64{0, 500, 1200}
	labCharges     = []int64{0, 800, 1500}
	salaryBonus    = []int64{0, 5000, 10000}
	salaryDeduct   = []int64{0, 2000}
	schemeCeiling  = decimal.NewFromInt(5000)
)

// ---------------------------------------------------------------------------
// Seeder
// ---------------------------------------------------------------------------

// SeedResult summarizes what Run created.
type SeedResult struct {
	Users           int           `json:"users"`
	Specializations int           `json:"specializations"`
	Doctors         int           `json:"doctors"`
	Schedules       int           `json:"schedules"`
	Patients        int           `json:"patients"`
	Bills           int           `json:"bills"`
	Payments        int           `json:"payments"`
	Appointments    int           `json:"appointments"`
	Salaries        int           `json:"salaries"`
	Duration        time.Duration `json:"duration"`
}

type Seeder struct {
	users        Users
	doctors      Doctors
	patients     Patients
	appointments Appointments
	bills        Bills
	rng          *rand.Rand
	logger       zerolog.Logger
	now          func() time.Time
}

// NewSeeder returns a seeder whose random choices are fixed by seed. A zero
// seed uses the clock.
func NewSeeder(users Users, doctors Doctors, patients Patients, appointments Appointments, bills Bills,
	seed int64, logger zerolog.Logger) *Seeder {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &Seeder{
		users: users, doctors: doctors, patients: patients, appointments: appointments, bills: bills,
		rng: rand.New(rand.NewSource(seed)), logger: logger, now: time.Now,
	}
}

func (s *Seeder) pick(pool []string) string { return pool[s.rng.Intn(len(pool))] }

func (s *Seeder) pickAmount(pool []int64) decimal.Decimal {
	return decimal.NewFromInt(pool[s.rng.Intn(len(pool))])
}

// Run loads the sample dataset. It refuses to run against a database that
// already has users.
func (s *Seeder) Run(ctx context.Context) (*SeedResult, error) {
	start := time.Now()
	_, existing, err := s.users.ListUsers(ctx, "", 1, 0)
	if err != nil {
		return nil, err
	}
	if existing > 0 {
		return nil, ErrAlreadySeeded
	}

	result := &SeedResult{}
	users, err := s.seedUsers(ctx, result)
	if err != nil {
		return nil, err
	}
	admin, desk := &users["admin"].ID, &users["reception1"].ID

	doctors, err := s.seedDoctors(ctx, users, result)
	if err != nil {
		return nil, err
	}
	patients, err := s.seedPatients(ctx, desk, result)
	if err != nil {
		return nil, err
	}
	if err := s.seedBills(ctx, patients, doctors, desk, result); err != nil {
		return nil, err
	}
	if err := s.seedAppointments(ctx, patients, doctors, desk, result); err != nil {
		return nil, err
	}
	if err := s.seedSalaries(ctx, doctors, admin, result); err != nil {
		return nil, err
	}

	result.Duration = time.Since(start)
	s.logger.Info().
		Int("users", result.Users).
		Int("doctors", result.Doctors).
		Int("patients", result.Patients).
		Int("bills", result.Bills).
		Int("appointments", result.Appointments).
		Dur("duration", result.Duration).
		Msg("sample data loaded")
	return result, nil
}

func (s *Seeder) seedUsers(ctx context.Context, result *SeedResult) (map[string]*identity.User, error) {
	out := make(map[string]*identity.User, len(sampleUsers))
	for _, u := range sampleUsers {
		created, err := s.users.CreateUser(ctx, identity.CreateUserRequest{
			Username: u.username, Password: u.password, FirstName: u.first, LastName: u.last,
			Email: u.email, Role: u.role, Phone: u.phone,
		})
		if err != nil {
			return nil, fmt.Errorf("seed user %s: %w", u.username, err)
		}
		out[u.username] = created
		result.Users++
	}
	return out, nil
}

func (s *Seeder) seedDoctors(ctx context.Context, users map[string]*identity.User, result *SeedResult) ([]*doctor.Doctor, error) {
	specs := make(map[string]uuid.UUID, len(sampleSpecializations))
	for _, name := range sampleSpecializations {
		sp, err := s.doctors.CreateSpecialization(ctx, &doctor.Specialization{Name: name})
		if err != nil {
			return nil, fmt.Errorf("seed specialization %s: %w", name, err)
		}
		specs[name] = sp.ID
		result.Specializations++
	}

	today := s.now()
	maxAppts := 20
	out := make([]*doctor.Doctor, 0, len(sampleDoctors))
	for _, d := range sampleDoctors {
		specID := specs[d.specialty]
		req := doctor.DoctorRequest{
			FirstName:        d.first,
			LastName:         d.last,
			SpecializationID: &specID,
			Qualification:    d.qualification,
			ExperienceYears:  d.experience,
			Phone:            d.phone,
			ConsultationFee:  decimal.NewFromInt(d.fee),
			MonthlySalary:    decimal.NewFromInt(d.salary),
			JoiningDate:      today.AddDate(-d.experience, 0, 0).Format("2006-01-02"),
		}
		if u, ok := users[d.linkUser]; ok {
			req.UserID = &u.ID
		}
		doc, err := s.doctors.CreateDoctor(ctx, req)
		if err != nil {
			return nil, fmt.Errorf("seed doctor %s %s: %w", d.first, d.last, err)
		}
		out = append(out, doc)
		result.Doctors++

		for _, day := range workDays {
			_, err := s.doctors.SetSchedule(ctx, doc.ID, doctor.ScheduleRequest{
				DayOfWeek: day, StartTime: "09:00", EndTime: "17:00", MaxAppointments: &maxAppts,
			})
			if err != nil {
				return nil, fmt.Errorf("seed schedule %s for %s: %w", day, doc.DisplayName(), err)
			}
			result.Schedules++
		}
	}
	return out, nil
}

func (s *Seeder) seedPatients(ctx context.Context, createdBy *uuid.UUID, result *SeedResult) ([]*patient.Patient, error) {
	now := s.now()
	out := make([]*patient.Patient, 0, len(samplePatients))
	for i, p := range samplePatients {
		age := p.age
		admitted := s.rng.Intn(3) > 0
		entry := now.AddDate(0, 0, -s.rng.Intn(31))
		// The tail of the list is discharged on registration.
		if i >= 5 && s.rng.Intn(2) == 0 {
			admitted = false
		}
		created, err := s.patients.Register(ctx, patient.PatientRequest{
			FirstName:        p.first,
			LastName:         p.last,
			Age:              &age,
			Gender:           p.gender,
			BloodGroup:       s.pick(bloodGroups),
			Phone:            p.phone,
			Address:          p.city + ", " + p.state,
			City:             p.city,
			State:            p.state,
			IsAdmitted:       &admitted,
			EntryDatetime:    &entry,
			HasSchemeCard:    p.schemeCard != "",
			SchemeCardNumber: p.schemeCard,
		}, createdBy)
		if err != nil {
			return nil, fmt.Errorf("seed patient %s %s: %w", p.first, p.last, err)
		}
		out = append(out, created)
		result.Patients++
	}
	return out, nil
}

func (s *Seeder) seedBills(ctx context.Context, patients []*patient.Patient, doctors []*doctor.Doctor,
	desk *uuid.UUID, result *SeedResult) error {
	for i, p := range patients[:6] {
		doc := doctors[i%len(doctors)]
		req := billing.BillRequest{
			PatientID:       p.ID,
			DoctorID:        &doc.ID,
			ConsultationFee: doc.ConsultationFee,
			EntryFee:        decimal.NewFromInt(200),
			RoomCharges:     s.pickAmount(roomCharges),
			MedicineCharges: s.pickAmount(medicineCharge),
			LabCharges:      s.pickAmount(labCharges),
			IsScheme:        p.HasSchemeCard,
		}
		if req.IsScheme {
			subtotal := decimal.Sum(req.ConsultationFee, req.EntryFee, req.RoomCharges, req.MedicineCharges, req.LabCharges)
			req.ClaimAmount = decimal.Min(schemeCeiling, subtotal)
		}
		bill, err := s.bills.CreateBill(ctx, req, desk)
		if err != nil {
			return fmt.Errorf("seed bill for %s: %w", p.PatientID, err)
		}
		result.Bills++

		var amount decimal.Decimal
		switch s.pick(billOutcomes) {
		case billing.StatusPaid:
			amount = bill.DueAmount
		case billing.StatusPartial:
			amount = bill.DueAmount.Div(decimal.NewFromInt(2)).Round(2)
		}
		if !amount.IsPositive() {
			continue
		}
		method := billing.MethodCash
		if s.rng.Intn(2) == 0 {
			method = billing.MethodUPI
		}
		if _, err := s.bills.RecordPayment(ctx, bill.ID, billing.PaymentRequest{Amount: amount, PaymentMethod: method}, desk); err != nil {
			return fmt.Errorf("seed payment for %s: %w", bill.BillNumber, err)
		}
		result.Payments++
	}
	return nil
}

// apptPath lists the transitions that lead from pending to target.
var apptPath = map[string][]string{
	appointment.StatusPending:   nil,
	appointment.StatusConfirmed: {appointment.StatusConfirmed},
	appointment.StatusCompleted: {appointment.StatusConfirmed, appointment.StatusCompleted},
	appointment.StatusCancelled: {appointment.StatusCancelled},
}

func (s *Seeder) seedAppointments(ctx context.Context, patients []*patient.Patient, doctors []*doctor.Doctor,
	desk *uuid.UUID, result *SeedResult) error {
	today := s.now()
	for i := 0; i < 10; i++ {
		p := patients[i%len(patients)]
		doc := doctors[i%len(doctors)]
		day := today.AddDate(0, 0, s.rng.Intn(11)-5)
		a, err := s.appointments.Book(ctx, appointment.AppointmentRequest{
			PatientID:       p.ID,
			DoctorID:        doc.ID,
			AppointmentDate: day.Format("2006-01-02"),
			AppointmentTime: fmt.Sprintf("%02d:00", 9+i%8),
			AppointmentType: s.pick(apptTypes),
			Reason:          "General checkup",
		}, desk)
		if err != nil {
			return fmt.Errorf("seed appointment %d: %w", i+1, err)
		}
		for _, status := range apptPath[s.pick(apptOutcomes)] {
			if _, err := s.appointments.SetStatus(ctx, a.ID, status); err != nil {
				return fmt.Errorf("seed appointment %s -> %s: %w", a.AppointmentID, status, err)
			}
		}
		result.Appointments++
	}
	return nil
}

func (s *Seeder) seedSalaries(ctx context.Context, doctors []*doctor.Doctor, admin *uuid.UUID, result *SeedResult) error {
	month := s.now().Format("2006-01")
	for _, doc := range doctors[:3] {
		sal, err := s.doctors.CreateSalary(ctx, doc.ID, doctor.SalaryRequest{
			Month:         month,
			Bonus:         s.pickAmount(salaryBonus),
			Deductions:    s.pickAmount(salaryDeduct),
			PaymentMethod: "bank_transfer",
		})
		if err != nil {
			return fmt.Errorf("seed salary for %s: %w", doc.DisplayName(), err)
		}
		if _, err := s.doctors.PaySalary(ctx, sal.ID, doctor.PayRequest{PaymentMethod: "bank_transfer"}, admin); err != nil {
			return fmt.Errorf("pay salary for %s: %w", doc.DisplayName(), err)
		}
		result.Salaries++
	}
	return nil
}

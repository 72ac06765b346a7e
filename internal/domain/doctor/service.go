package doctor

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/hms/hms/internal/domain/identity"
	"github.com/hms/hms/internal/platform/apperr"
	"github.com/hms/hms/internal/platform/auth"
	"github.com/hms/hms/internal/platform/db"
)

const defaultMaxAppointments = 20

// UserLookup resolves linked login accounts.
type UserLookup interface {
	GetUser(ctx context.Context, id uuid.UUID) (*identity.User, error)
}

type Service struct {
	specs     SpecializationRepository
	doctors   DoctorRepository
	schedules ScheduleRepository
	salaries  SalaryRepository
	users     UserLookup
	logger    zerolog.Logger
	now       func() time.Time
}

func NewService(specs SpecializationRepository, doctors DoctorRepository, schedules ScheduleRepository,
	salaries SalaryRepository, users UserLookup, logger zerolog.Logger) *Service {
	return &Service{
		specs:     specs,
		doctors:   doctors,
		schedules: schedules,
		salaries:  salaries,
		users:     users,
		logger:    logger,
		now:       time.Now,
	}
}

func notFound(err error, entity string) error {
	if errors.Is(err, db.ErrNotFound) {
		return apperr.NotFound(entity)
	}
	return err
}

// -- Specializations --

func (s *Service) CreateSpecialization(ctx context.Context, sp *Specialization) (*Specialization, error) {
	sp.Name = strings.TrimSpace(sp.Name)
	sp.Description = strings.TrimSpace(sp.Description)
	var fe apperr.FieldErrors
	fe.Check(sp.Name != "", "name", "This field is required.")
	fe.Check(len(sp.Name) <= 100, "name", "must be at most 100 characters")
	if err := fe.Err(); err != nil {
		return nil, err
	}
	if _, err := s.specs.GetByName(ctx, sp.Name); err == nil {
		return nil, apperr.Invalid("name", "specialization with this name already exists.")
	} else if !errors.Is(err, db.ErrNotFound) {
		return nil, err
	}
	if err := s.specs.Create(ctx, sp); err != nil {
		return nil, err
	}
	return sp, nil
}

func (s *Service) ListSpecializations(ctx context.Context) ([]*Specialization, error) {
	items, err := s.specs.List(ctx)
	if err != nil {
		return nil, err
	}
	if items == nil {
		items = []*Specialization{}
	}
	return items, nil
}

// -- Doctors --

func (s *Service) validateDoctor(ctx context.Context, req *DoctorRequest, self uuid.UUID) (*time.Time, error) {
	req.FirstName = strings.TrimSpace(req.FirstName)
	req.LastName = strings.TrimSpace(req.LastName)
	req.Qualification = strings.TrimSpace(req.Qualification)
	req.Phone = strings.TrimSpace(req.Phone)
	req.Email = strings.TrimSpace(req.Email)

	var fe apperr.FieldErrors
	fe.Check(req.FirstName != "", "first_name", "This field is required.")
	fe.Check(req.LastName != "", "last_name", "This field is required.")
	fe.Check(req.Phone != "", "phone", "This field is required.")
	fe.Check(len(req.Phone) <= 15, "phone", "must be at most 15 characters")
	fe.Check(req.ExperienceYears >= 0, "experience_years", "must not be negative")
	fe.Check(!req.ConsultationFee.IsNegative(), "consultation_fee", "must not be negative")
	fe.Check(!req.MonthlySalary.IsNegative(), "monthly_salary", "must not be negative")
	if req.Email != "" {
		if _, err := mail.ParseAddress(req.Email); err != nil {
			fe.Add("email", "enter a valid email address")
		}
	}
	var joined *time.Time
	if j := strings.TrimSpace(req.JoiningDate); j != "" {
		t, err := time.Parse("2006-01-02", j)
		if err != nil {
			fe.Add("joining_date", "must be YYYY-MM-DD")
		} else {
			joined = &t
		}
	}
	if req.SpecializationID != nil {
		if _, err := s.specs.GetByID(ctx, *req.SpecializationID); err != nil {
			if !errors.Is(err, db.ErrNotFound) {
				return nil, err
			}
			fe.Add("specialization_id", "unknown specialization")
		}
	}
	if req.UserID != nil {
		if err := s.checkLinkedUser(ctx, *req.UserID, self); err != nil {
			var ae *apperr.Error
			if !errors.As(err, &ae) {
				return nil, err
			}
			fe.Add("user_id", ae.Message)
		}
	}
	return joined, fe.Err()
}

// checkLinkedUser requires a doctor-role account not linked to another doctor.
func (s *Service) checkLinkedUser(ctx context.Context, userID, self uuid.UUID) error {
	if s.users != nil {
		u, err := s.users.GetUser(ctx, userID)
		if err != nil {
			var ae *apperr.Error
			if errors.As(err, &ae) || errors.Is(err, db.ErrNotFound) {
				return apperr.BadRequest("unknown user")
			}
			return err
		}
		if u.Role != auth.RoleDoctor {
			return apperr.BadRequest("linked user must have the doctor role")
		}
	}
	other, err := s.doctors.GetByUserID(ctx, userID)
	if err == nil && other.ID != self {
		return apperr.BadRequest("user is already linked to another doctor")
	}
	if err != nil && !errors.Is(err, db.ErrNotFound) {
		return err
	}
	return nil
}

func applyDoctor(d *Doctor, req *DoctorRequest, joined *time.Time) {
	d.FirstName = req.FirstName
	d.LastName = req.LastName
	d.SpecializationID = req.SpecializationID
	d.Qualification = req.Qualification
	d.ExperienceYears = req.ExperienceYears
	d.Phone = req.Phone
	d.Email = req.Email
	d.ConsultationFee = req.ConsultationFee.Round(2)
	d.MonthlySalary = req.MonthlySalary.Round(2)
	d.JoiningDate = joined
	d.UserID = req.UserID
	if req.IsActive != nil {
		d.IsActive = *req.IsActive
	}
}

func (s *Service) CreateDoctor(ctx context.Context, req DoctorRequest) (*Doctor, error) {
	joined, err := s.validateDoctor(ctx, &req, uuid.Nil)
	if err != nil {
		return nil, err
	}
	d := &Doctor{IsActive: true}
	applyDoctor(d, &req, joined)
	if err := s.doctors.Create(ctx, d); err != nil {
		return nil, err
	}
	s.logger.Info().Str("doctor", d.DisplayName()).Msg("doctor created")
	return s.GetDoctor(ctx, d.ID)
}

func (s *Service) GetDoctor(ctx context.Context, id uuid.UUID) (*Doctor, error) {
	d, err := s.doctors.GetByID(ctx, id)
	if err != nil {
		return nil, notFound(err, "doctor")
	}
	return d, nil
}

// GetByUserID returns the doctor linked to a login account.
func (s *Service) GetByUserID(ctx context.Context, userID uuid.UUID) (*Doctor, error) {
	d, err := s.doctors.GetByUserID(ctx, userID)
	if err != nil {
		return nil, notFound(err, "doctor profile")
	}
	return d, nil
}

func (s *Service) UpdateDoctor(ctx context.Context, id uuid.UUID, req DoctorRequest) (*Doctor, error) {
	d, err := s.GetDoctor(ctx, id)
	if err != nil {
		return nil, err
	}
	joined, err := s.validateDoctor(ctx, &req, id)
	if err != nil {
		return nil, err
	}
	applyDoctor(d, &req, joined)
	if err := s.doctors.Update(ctx, d); err != nil {
		return nil, notFound(err, "doctor")
	}
	return s.GetDoctor(ctx, id)
}

func (s *Service) DeleteDoctor(ctx context.Context, id uuid.UUID) error {
	if err := s.doctors.Delete(ctx, id); err != nil {
		return notFound(err, "doctor")
	}
	s.logger.Warn().Str("doctor_id", id.String()).Msg("doctor deleted")
	return nil
}

func (s *Service) ListDoctors(ctx context.Context, f ListFilter, limit, offset int) ([]*Doctor, int, error) {
	return s.doctors.List(ctx, f, limit, offset)
}

// -- Schedules --

func parseClock(v string) (time.Time, bool) {
	t, err := time.Parse("15:04", strings.TrimSpace(v))
	if err != nil {
		t, err = time.Parse("15:04:05", strings.TrimSpace(v))
	}
	return t, err == nil
}

func (s *Service) ListSchedules(ctx context.Context, doctorID uuid.UUID) ([]*Schedule, error) {
	if _, err := s.GetDoctor(ctx, doctorID); err != nil {
		return nil, err
	}
	items, err := s.schedules.ListByDoctor(ctx, doctorID)
	if err != nil {
		return nil, err
	}
	if items == nil {
		items = []*Schedule{}
	}
	return items, nil
}

// SetSchedule creates or replaces the doctor's roster for one weekday.
func (s *Service) SetSchedule(ctx context.Context, doctorID uuid.UUID, req ScheduleRequest) (*Schedule, error) {
	if _, err := s.GetDoctor(ctx, doctorID); err != nil {
		return nil, err
	}

	var fe apperr.FieldErrors
	day, ok := ParseDay(req.DayOfWeek)
	fe.Check(ok, "day_of_week", "must be one of Mon, Tue, Wed, Thu, Fri, Sat, Sun")
	start, okStart := parseClock(req.StartTime)
	fe.Check(okStart, "start_time", "must be HH:MM")
	end, okEnd := parseClock(req.EndTime)
	fe.Check(okEnd, "end_time", "must be HH:MM")
	if okStart && okEnd {
		fe.Check(end.After(start), "end_time", "must be after start_time")
	}
	maxAppts := defaultMaxAppointments
	if req.MaxAppointments != nil {
		maxAppts = *req.MaxAppointments
	}
	fe.Check(maxAppts >= 1, "max_appointments", "must be at least 1")
	if err := fe.Err(); err != nil {
		return nil, err
	}

	sc := &Schedule{
		DoctorID:        doctorID,
		DayOfWeek:       day,
		StartTime:       start.Format("15:04"),
		EndTime:         end.Format("15:04"),
		MaxAppointments: maxAppts,
		IsAvailable:     req.IsAvailable == nil || *req.IsAvailable,
	}
	if err := s.schedules.Upsert(ctx, sc); err != nil {
		return nil, err
	}
	return sc, nil
}

func (s *Service) DeleteSchedule(ctx context.Context, doctorID uuid.UUID, day string) error {
	d, ok := ParseDay(day)
	if !ok {
		return apperr.Invalid("day_of_week", "must be one of Mon, Tue, Wed, Thu, Fri, Sat, Sun")
	}
	if err := s.schedules.DeleteDay(ctx, doctorID, d); err != nil {
		return notFound(err, "schedule")
	}
	return nil
}

// -- Salaries --

func (s *Service) ListSalaries(ctx context.Context, doctorID uuid.UUID) ([]*SalaryPayment, error) {
	if _, err := s.GetDoctor(ctx, doctorID); err != nil {
		return nil, err
	}
	items, err := s.salaries.ListByDoctor(ctx, doctorID)
	if err != nil {
		return nil, err
	}
	if items == nil {
		items = []*SalaryPayment{}
	}
	return items, nil
}

// CreateSalary records a month's salary. The base defaults to the doctor's
// monthly salary; net is always recomputed.
func (s *Service) CreateSalary(ctx context.Context, doctorID uuid.UUID, req SalaryRequest) (*SalaryPayment, error) {
	d, err := s.GetDoctor(ctx, doctorID)
	if err != nil {
		return nil, err
	}

	var fe apperr.FieldErrors
	month, err := time.Parse("2006-01", strings.TrimSpace(req.Month))
	fe.Check(err == nil, "month", "must be YYYY-MM")
	base := d.MonthlySalary
	if req.BaseSalary != nil {
		base = *req.BaseSalary
	}
	fe.Check(!base.IsNegative(), "base_salary", "must not be negative")
	fe.Check(!req.Bonus.IsNegative(), "bonus", "must not be negative")
	fe.Check(!req.Deductions.IsNegative(), "deductions", "must not be negative")
	if req.PaymentMethod == "" {
		req.PaymentMethod = "bank_transfer"
	}
	fe.Check(validSalaryMethods[req.PaymentMethod], "payment_method", "must be one of cash, bank_transfer, cheque")
	if err := fe.Err(); err != nil {
		return nil, err
	}

	if _, err := s.salaries.GetByDoctorMonth(ctx, doctorID, month); err == nil {
		return nil, apperr.Conflict(fmt.Sprintf("salary for %s already recorded", month.Format("January 2006")))
	} else if !errors.Is(err, db.ErrNotFound) {
		return nil, err
	}

	sp := &SalaryPayment{
		DoctorID:      doctorID,
		Month:         month,
		BaseSalary:    base.Round(2),
		Bonus:         req.Bonus.Round(2),
		Deductions:    req.Deductions.Round(2),
		PaymentMethod: req.PaymentMethod,
		Status:        SalaryPending,
		Notes:         strings.TrimSpace(req.Notes),
	}
	sp.ComputeNet()
	if err := s.salaries.Create(ctx, sp); err != nil {
		return nil, err
	}
	return sp, nil
}

// PaySalary marks a pending salary paid.
func (s *Service) PaySalary(ctx context.Context, id uuid.UUID, req PayRequest, paidBy *uuid.UUID) (*SalaryPayment, error) {
	sp, err := s.salaries.GetByID(ctx, id)
	if err != nil {
		return nil, notFound(err, "salary payment")
	}
	if sp.Status == SalaryPaid {
		return nil, apperr.Conflict("salary payment is already paid")
	}
	method := sp.PaymentMethod
	if req.PaymentMethod != "" {
		if !validSalaryMethods[req.PaymentMethod] {
			return nil, apperr.Invalid("payment_method", "must be one of cash, bank_transfer, cheque")
		}
		method = req.PaymentMethod
	}
	at := s.now()
	if err := s.salaries.MarkPaid(ctx, id, method, at, paidBy); err != nil {
		return nil, notFound(err, "salary payment")
	}
	sp.Status = SalaryPaid
	sp.PaymentMethod = method
	sp.PaymentDate = &at
	sp.PaidBy = paidBy
	s.logger.Info().Str("salary_id", id.String()).Str("net", sp.NetSalary.StringFixed(2)).Msg("salary paid")
	return sp, nil
}

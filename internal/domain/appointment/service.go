package appointment

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/hms/hms/internal/domain/doctor"
	"github.com/hms/hms/internal/domain/patient"
	"github.com/hms/hms/internal/platform/apperr"
	"github.com/hms/hms/internal/platform/auth"
	"github.com/hms/hms/internal/platform/db"
	"github.com/hms/hms/internal/platform/seq"
)

// Patients is the subset of the patient registry used for booking.
type Patients interface {
	Get(ctx context.Context, id uuid.UUID) (*patient.Patient, error)
}

// Doctors is the subset of the doctor roster used for booking.
type Doctors interface {
	GetDoctor(ctx context.Context, id uuid.UUID) (*doctor.Doctor, error)
	GetByUserID(ctx context.Context, userID uuid.UUID) (*doctor.Doctor, error)
}

type Service struct {
	repo     Repository
	tx       db.TxManager
	ids      seq.Generator
	patients Patients
	doctors  Doctors
	logger   zerolog.Logger
	now      func() time.Time
}

func NewService(repo Repository, tx db.TxManager, ids seq.Generator, patients Patients, doctors Doctors, logger zerolog.Logger) *Service {
	return &Service{repo: repo, tx: tx, ids: ids, patients: patients, doctors: doctors, logger: logger, now: time.Now}
}

func notFound(err error) error {
	if errors.Is(err, db.ErrNotFound) {
		return apperr.NotFound("appointment")
	}
	return err
}

func isNotFound(err error) bool {
	if errors.Is(err, db.ErrNotFound) {
		return true
	}
	ae, ok := apperr.As(err)
	return ok && ae.Code == apperr.CodeNotFound
}

type booking struct {
	date    time.Time
	clock   string
	patient *patient.Patient
	doctor  *doctor.Doctor
}

func (s *Service) validate(ctx context.Context, req *AppointmentRequest) (*booking, error) {
	var fe apperr.FieldErrors
	b := &booking{}

	req.Reason = strings.TrimSpace(req.Reason)
	req.Notes = strings.TrimSpace(req.Notes)
	if req.AppointmentType == "" {
		req.AppointmentType = "consultation"
	}
	fe.Check(validTypes[req.AppointmentType], "appointment_type", "must be one of consultation, follow_up, emergency, checkup")

	date, err := time.Parse("2006-01-02", strings.TrimSpace(req.AppointmentDate))
	fe.Check(err == nil, "appointment_date", "must be YYYY-MM-DD")
	b.date = date
	clock, err := time.Parse("15:04", strings.TrimSpace(req.AppointmentTime))
	fe.Check(err == nil, "appointment_time", "must be HH:MM")
	b.clock = clock.Format("15:04")

	if req.PatientID == uuid.Nil {
		fe.Add("patient_id", "This field is required.")
	} else if p, err := s.patients.Get(ctx, req.PatientID); err != nil {
		if !isNotFound(err) {
			return nil, err
		}
		fe.Add("patient_id", "unknown patient")
	} else {
		b.patient = p
	}

	if req.DoctorID == uuid.Nil {
		fe.Add("doctor_id", "This field is required.")
	} else if d, err := s.doctors.GetDoctor(ctx, req.DoctorID); err != nil {
		if !isNotFound(err) {
			return nil, err
		}
		fe.Add("doctor_id", "unknown doctor")
	} else {
		fe.Check(d.IsActive, "doctor_id", "doctor is not active")
		b.doctor = d
	}

	if err := fe.Err(); err != nil {
		return nil, err
	}
	return b, nil
}

func (b *booking) fill(a *Appointment, req *AppointmentRequest) {
	a.PatientID = &b.patient.ID
	a.PatientCode = b.patient.PatientID
	a.PatientName = b.patient.FullName()
	a.DoctorID = &b.doctor.ID
	a.DoctorName = b.doctor.DisplayName()
	a.AppointmentDate = b.date
	a.AppointmentTime = b.clock
	a.AppointmentType = req.AppointmentType
	a.Reason = req.Reason
	a.Notes = req.Notes
}

// Book creates a pending appointment and assigns its appointment_id in the
// same transaction as the insert.
func (s *Service) Book(ctx context.Context, req AppointmentRequest, bookedBy *uuid.UUID) (*Appointment, error) {
	b, err := s.validate(ctx, &req)
	if err != nil {
		return nil, err
	}
	a := &Appointment{Status: StatusPending, BookedBy: bookedBy}
	b.fill(a, &req)

	err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
		id, err := s.ids.Next(ctx, seq.Appointment, s.now())
		if err != nil {
			return fmt.Errorf("next appointment id: %w", err)
		}
		a.AppointmentID = id
		return s.repo.Create(ctx, a)
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info().Str("appointment_id", a.AppointmentID).Str("patient_id", a.PatientCode).Msg("appointment booked")
	return a, nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	a, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, notFound(err)
	}
	return a, nil
}

// Reschedule rewrites the booking details. Status and clinical notes are
// changed through their own operations. Completed, cancelled and no_show
// appointments cannot be rescheduled.
func (s *Service) Reschedule(ctx context.Context, id uuid.UUID, req AppointmentRequest) (*Appointment, error) {
	a, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if IsFinal(a.Status) {
		return nil, apperr.Conflict(fmt.Sprintf("appointment is %s and cannot be rescheduled", a.Status))
	}
	b, err := s.validate(ctx, &req)
	if err != nil {
		return nil, err
	}
	b.fill(a, &req)
	if err := s.repo.Update(ctx, a); err != nil {
		return nil, notFound(err)
	}
	return a, nil
}

func (s *Service) SetStatus(ctx context.Context, id uuid.UUID, status string) (*Appointment, error) {
	a, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	status = strings.TrimSpace(status)
	if _, ok := transitions[status]; !ok {
		return nil, apperr.Invalid("status", "must be one of pending, confirmed, completed, cancelled, no_show")
	}
	if status == a.Status {
		return a, nil
	}
	if !CanTransition(a.Status, status) {
		return nil, apperr.Invalid("status", fmt.Sprintf("cannot change status from %s to %s", a.Status, status))
	}
	a.Status = status
	if err := s.repo.Update(ctx, a); err != nil {
		return nil, notFound(err)
	}
	s.logger.Info().Str("appointment_id", a.AppointmentID).Str("status", status).Msg("appointment status changed")
	return a, nil
}

// UpdateClinical records diagnosis, prescription and notes. Doctors may only
// write to their own appointments.
func (s *Service) UpdateClinical(ctx context.Context, id uuid.UUID, req ClinicalRequest) (*Appointment, error) {
	a, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if p, ok := auth.PrincipalFromContext(ctx); ok && p.Role == auth.RoleDoctor {
		d, err := s.doctors.GetByUserID(ctx, p.UserID)
		if err != nil {
			if isNotFound(err) {
				return nil, apperr.Forbidden("no doctor profile is linked to this account")
			}
			return nil, err
		}
		if a.DoctorID == nil || *a.DoctorID != d.ID {
			return nil, apperr.Forbidden("you can only update your own appointments")
		}
	}
	if req.Diagnosis != nil {
		a.Diagnosis = strings.TrimSpace(*req.Diagnosis)
	}
	if req.Prescription != nil {
		a.Prescription = strings.TrimSpace(*req.Prescription)
	}
	if req.Notes != nil {
		a.Notes = strings.TrimSpace(*req.Notes)
	}
	if err := s.repo.Update(ctx, a); err != nil {
		return nil, notFound(err)
	}
	return a, nil
}

func (s *Service) Delete(ctx context.Context, id uuid.UUID) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		return notFound(err)
	}
	return nil
}

func (s *Service) List(ctx context.Context, f ListFilter, limit, offset int) ([]*Appointment, int, error) {
	if f.Status != "" {
		if _, ok := transitions[f.Status]; !ok {
			return nil, 0, apperr.Invalid("status", "must be one of pending, confirmed, completed, cancelled, no_show")
		}
	}
	return s.repo.List(ctx, f, limit, offset)
}

// ListMine lists the appointments of the doctor linked to userID.
func (s *Service) ListMine(ctx context.Context, userID uuid.UUID, f ListFilter, limit, offset int) ([]*Appointment, int, error) {
	d, err := s.doctors.GetByUserID(ctx, userID)
	if err != nil {
		if isNotFound(err) {
			return nil, 0, apperr.NotFound("doctor profile")
		}
		return nil, 0, err
	}
	f.DoctorID = &d.ID
	return s.List(ctx, f, limit, offset)
}

// Today lists the appointments scheduled on the current date.
func (s *Service) Today(ctx context.Context, limit int) ([]*Appointment, error) {
	now := s.now()
	day := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	items, _, err := s.repo.List(ctx, ListFilter{Date: &day}, limit, 0)
	return items, err
}

package doctor

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type SpecializationRepository interface {
	Create(ctx context.Context, s *Specialization) error
	GetByID(ctx context.Context, id uuid.UUID) (*Specialization, error)
	GetByName(ctx context.Context, name string) (*Specialization, error)
	List(ctx context.Context) ([]*Specialization, error)
}

type DoctorRepository interface {
	Create(ctx context.Context, d *Doctor) error
	GetByID(ctx context.Context, id uuid.UUID) (*Doctor, error)
	GetByUserID(ctx context.Context, userID uuid.UUID) (*Doctor, error)
	Update(ctx context.Context, d *Doctor) error
	Delete(ctx context.Context, id uuid.UUID) error
	List(ctx context.Context, f ListFilter, limit, offset int) ([]*Doctor, int, error)
}

type ScheduleRepository interface {
	// Upsert inserts the day or replaces the existing row for (doctor, day).
	Upsert(ctx context.Context, s *Schedule) error
	ListByDoctor(ctx context.Context, doctorID uuid.UUID) ([]*Schedule, error)
	DeleteDay(ctx context.Context, doctorID uuid.UUID, day string) error
}

type SalaryRepository interface {
	Create(ctx context.Context, s *SalaryPayment) error
	GetByID(ctx context.Context, id uuid.UUID) (*SalaryPayment, error)
	GetByDoctorMonth(ctx context.Context, doctorID uuid.UUID, month time.Time) (*SalaryPayment, error)
	MarkPaid(ctx context.Context, id uuid.UUID, method string, at time.Time, paidBy *uuid.UUID) error
	ListByDoctor(ctx context.Context, doctorID uuid.UUID) ([]*SalaryPayment, error)
}

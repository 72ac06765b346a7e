package patient

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type PatientRepository interface {
	Create(ctx context.Context, p *Patient) error
	GetByID(ctx context.Context, id uuid.UUID) (*Patient, error)
	GetByPatientID(ctx context.Context, patientID string) (*Patient, error)
	// Update writes every mutable column. patient_id is never written.
	Update(ctx context.Context, p *Patient) error
	// Discharge flips an admitted patient to discharged. It reports false
	// when the patient was already discharged.
	Discharge(ctx context.Context, id uuid.UUID, at time.Time) (bool, error)
	Delete(ctx context.Context, id uuid.UUID) error
	List(ctx context.Context, f ListFilter, limit, offset int) ([]*Patient, int, error)
	// Search matches name, phone or patient_id case-insensitively.
	Search(ctx context.Context, q string, limit int) ([]*Patient, error)
}

type DocumentRepository interface {
	Create(ctx context.Context, d *Document) error
	GetByID(ctx context.Context, id uuid.UUID) (*Document, error)
	ListByPatient(ctx context.Context, patientID uuid.UUID) ([]*Document, error)
	MarkRemoved(ctx context.Context, id uuid.UUID) error
}

type VitalsRepository interface {
	Create(ctx context.Context, v *Vitals) error
	ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*Vitals, int, error)
}

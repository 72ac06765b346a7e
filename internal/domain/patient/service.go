package patient

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/hms/hms/internal/platform/apperr"
	"github.com/hms/hms/internal/platform/blobstore"
	"github.com/hms/hms/internal/platform/db"
	"github.com/hms/hms/internal/platform/seq"
)

// SearchLimit caps quick-search results.
const SearchLimit = 10

// Events receives business counters. A nil Events is ignored.
type Events interface {
	PatientRegistered()
	PatientDischarged()
}

type Service struct {
	patients  PatientRepository
	documents DocumentRepository
	vitals    VitalsRepository
	tx        db.TxManager
	ids       seq.Generator
	blobs     blobstore.Store
	events    Events
	logger    zerolog.Logger
	now       func() time.Time
}

func NewService(patients PatientRepository, documents DocumentRepository, vitals VitalsRepository,
	tx db.TxManager, ids seq.Generator, blobs blobstore.Store, events Events, logger zerolog.Logger) *Service {
	return &Service{
		patients:  patients,
		documents: documents,
		vitals:    vitals,
		tx:        tx,
		ids:       ids,
		blobs:     blobs,
		events:    events,
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

func (r *PatientRequest) normalize() {
	for _, s := range []*string{&r.FirstName, &r.LastName, &r.Phone, &r.Email, &r.Address,
		&r.City, &r.State, &r.EmergencyContactName, &r.EmergencyContactPhone, &r.SchemeCardNumber} {
		*s = strings.TrimSpace(*s)
	}
	r.Gender = strings.ToUpper(strings.TrimSpace(r.Gender))
	r.BloodGroup = strings.ToUpper(strings.TrimSpace(r.BloodGroup))
}

func validatePatient(req *PatientRequest) error {
	var fe apperr.FieldErrors
	fe.Check(req.FirstName != "", "first_name", "This field is required.")
	fe.Check(len(req.FirstName) <= 100, "first_name", "must be at most 100 characters")
	fe.Check(req.LastName != "", "last_name", "This field is required.")
	fe.Check(len(req.LastName) <= 100, "last_name", "must be at most 100 characters")
	if req.Age == nil {
		fe.Add("age", "This field is required.")
	} else {
		fe.Check(*req.Age >= 0 && *req.Age <= 150, "age", "must be between 0 and 150")
	}
	fe.Check(validGenders[req.Gender], "gender", "must be one of M, F, O")
	fe.Check(req.BloodGroup == "" || validBloodGroups[req.BloodGroup], "blood_group", "must be a valid blood group")
	fe.Check(req.Phone != "", "phone", "This field is required.")
	fe.Check(len(req.Phone) <= 15, "phone", "must be at most 15 characters")
	fe.Check(len(req.EmergencyContactPhone) <= 15, "emergency_contact_phone", "must be at most 15 characters")
	if req.Email != "" {
		if _, err := mail.ParseAddress(req.Email); err != nil {
			fe.Add("email", "enter a valid email address")
		}
	}
	fe.Check(req.Address != "", "address", "This field is required.")
	if req.HasSchemeCard {
		fe.Check(req.SchemeCardNumber != "", "scheme_card_number", "required when the patient has a scheme card")
	}
	return fe.Err()
}

func (s *Service) apply(p *Patient, req *PatientRequest) {
	p.FirstName = req.FirstName
	p.LastName = req.LastName
	p.Age = *req.Age
	p.Gender = req.Gender
	p.BloodGroup = req.BloodGroup
	p.Phone = req.Phone
	p.Email = req.Email
	p.Address = req.Address
	p.City = req.City
	p.State = req.State
	p.EmergencyContactName = req.EmergencyContactName
	p.EmergencyContactPhone = req.EmergencyContactPhone
	p.HasSchemeCard = req.HasSchemeCard
	if req.HasSchemeCard {
		p.SchemeCardNumber = req.SchemeCardNumber
	} else {
		p.SchemeCardNumber = ""
	}
	if req.EntryDatetime != nil {
		p.EntryDatetime = *req.EntryDatetime
	}
}

// Register creates a patient and assigns its patient_id in the same
// transaction as the insert.
func (s *Service) Register(ctx context.Context, req PatientRequest, createdBy *uuid.UUID) (*Patient, error) {
	req.normalize()
	if err := validatePatient(&req); err != nil {
		return nil, err
	}

	now := s.now()
	p := &Patient{IsAdmitted: true, EntryDatetime: now, CreatedBy: createdBy}
	s.apply(p, &req)
	if req.IsAdmitted != nil {
		p.IsAdmitted = *req.IsAdmitted
	}
	if !p.IsAdmitted {
		p.DischargeDatetime = &now
	}

	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		id, err := s.ids.Next(ctx, seq.Patient, now)
		if err != nil {
			return fmt.Errorf("next patient id: %w", err)
		}
		p.PatientID = id
		return s.patients.Create(ctx, p)
	})
	if err != nil {
		return nil, err
	}

	if s.events != nil {
		s.events.PatientRegistered()
	}
	s.logger.Info().Str("patient_id", p.PatientID).Msg("patient registered")
	return p, nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Patient, error) {
	p, err := s.patients.GetByID(ctx, id)
	if err != nil {
		return nil, notFound(err, "patient")
	}
	return p, nil
}

func (s *Service) GetByPatientID(ctx context.Context, patientID string) (*Patient, error) {
	p, err := s.patients.GetByPatientID(ctx, strings.TrimSpace(patientID))
	if err != nil {
		return nil, notFound(err, "patient")
	}
	return p, nil
}

func (s *Service) List(ctx context.Context, f ListFilter, limit, offset int) ([]*Patient, int, error) {
	f.Query = strings.TrimSpace(f.Query)
	f.Gender = strings.ToUpper(strings.TrimSpace(f.Gender))
	if f.Gender != "" && !validGenders[f.Gender] {
		return nil, 0, apperr.Invalid("gender", "must be one of M, F, O")
	}
	return s.patients.List(ctx, f, limit, offset)
}

// Search returns at most SearchLimit patients. An empty query matches nothing.
func (s *Service) Search(ctx context.Context, q string) ([]*Patient, error) {
	q = strings.TrimSpace(q)
	if q == "" {
		return []*Patient{}, nil
	}
	items, err := s.patients.Search(ctx, q, SearchLimit)
	if err != nil {
		return nil, err
	}
	if items == nil {
		items = []*Patient{}
	}
	return items, nil
}

// Update rewrites the patient's demographics. patient_id and the admission
// state are left as they are; discharge goes through Discharge.
func (s *Service) Update(ctx context.Context, id uuid.UUID, req PatientRequest) (*Patient, error) {
	p, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	req.normalize()
	if err := validatePatient(&req); err != nil {
		return nil, err
	}
	if req.IsAdmitted != nil && *req.IsAdmitted != p.IsAdmitted {
		if p.IsAdmitted {
			return nil, apperr.Invalid("is_admitted", "use the discharge operation to discharge a patient")
		}
		return nil, apperr.Invalid("is_admitted", "a discharged patient cannot be readmitted")
	}
	s.apply(p, &req)
	if err := s.patients.Update(ctx, p); err != nil {
		return nil, notFound(err, "patient")
	}
	return p, nil
}

// Discharge marks an admitted patient discharged. Discharging an already
// discharged patient returns it unchanged.
func (s *Service) Discharge(ctx context.Context, id uuid.UUID) (*Patient, error) {
	changed, err := s.patients.Discharge(ctx, id, s.now())
	if err != nil {
		return nil, err
	}
	p, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if changed {
		if s.events != nil {
			s.events.PatientDischarged()
		}
		s.logger.Info().Str("patient_id", p.PatientID).Msg("patient discharged")
	}
	return p, nil
}

// Delete removes the patient row and every stored document under its prefix.
func (s *Service) Delete(ctx context.Context, id uuid.UUID) error {
	p, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := s.patients.Delete(ctx, id); err != nil {
		return notFound(err, "patient")
	}
	if err := s.blobs.DeletePrefix(ctx, blobstore.PatientPrefix(p.PatientID)); err != nil {
		s.logger.Error().Err(err).Str("patient_id", p.PatientID).Msg("failed to remove patient documents")
	}
	s.logger.Warn().Str("patient_id", p.PatientID).Msg("patient deleted")
	return nil
}

// -- Vitals --

func nonNegative(fe *apperr.FieldErrors, field string, v *int, max int) {
	if v != nil {
		fe.Check(*v >= 0 && *v <= max, field, fmt.Sprintf("must be between 0 and %d", max))
	}
}

func positiveDecimal(fe *apperr.FieldErrors, field string, d decimal.NullDecimal) {
	if d.Valid {
		fe.Check(d.Decimal.IsPositive(), field, "must be greater than zero")
	}
}

func (s *Service) RecordVitals(ctx context.Context, patientID uuid.UUID, v *Vitals, recordedBy *uuid.UUID) (*Vitals, error) {
	if _, err := s.Get(ctx, patientID); err != nil {
		return nil, err
	}
	var fe apperr.FieldErrors
	positiveDecimal(&fe, "temperature", v.Temperature)
	positiveDecimal(&fe, "weight", v.Weight)
	positiveDecimal(&fe, "height", v.Height)
	nonNegative(&fe, "pulse", v.Pulse, 300)
	nonNegative(&fe, "blood_pressure_systolic", v.BloodPressureSystolic, 300)
	nonNegative(&fe, "blood_pressure_diastolic", v.BloodPressureDiastolic, 300)
	nonNegative(&fe, "respiratory_rate", v.RespiratoryRate, 100)
	nonNegative(&fe, "spo2", v.SpO2, 100)
	if err := fe.Err(); err != nil {
		return nil, err
	}

	v.PatientID = patientID
	v.RecordedBy = recordedBy
	v.Notes = strings.TrimSpace(v.Notes)
	if v.Temperature.Valid {
		v.Temperature.Decimal = v.Temperature.Decimal.Round(1)
	}
	if err := s.vitals.Create(ctx, v); err != nil {
		return nil, err
	}
	return v, nil
}

func (s *Service) ListVitals(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*Vitals, int, error) {
	if _, err := s.Get(ctx, patientID); err != nil {
		return nil, 0, err
	}
	return s.vitals.ListByPatient(ctx, patientID, limit, offset)
}

// -- Documents --

// UploadDocument stores the bytes first and the row second; a failed insert
// removes the stored blob.
func (s *Service) UploadDocument(ctx context.Context, patientID uuid.UUID, up DocumentUpload, uploadedBy *uuid.UUID) (*Document, error) {
	p, err := s.Get(ctx, patientID)
	if err != nil {
		return nil, err
	}

	var fe apperr.FieldErrors
	up.Title = strings.TrimSpace(up.Title)
	fe.Check(up.Title != "", "title", "This field is required.")
	fe.Check(len(up.Title) <= 200, "title", "must be at most 200 characters")
	if up.DocumentType == "" {
		up.DocumentType = "other"
	}
	fe.Check(validDocumentTypes[up.DocumentType], "document_type", "is not a valid document type")
	if err := blobstore.ValidateUpload(up.FileName, up.ContentType); err != nil {
		fe.Add("file", err.Error())
	}
	if up.Body == nil {
		fe.Add("file", "This field is required.")
	}
	if err := fe.Err(); err != nil {
		return nil, err
	}

	key := blobstore.PatientKey(p.PatientID, up.FileName)
	size, err := s.blobs.Put(ctx, key, up.Body)
	if err != nil {
		if errors.Is(err, blobstore.ErrFileTooLarge) {
			return nil, apperr.Invalid("file", fmt.Sprintf("must be at most %d MB", blobstore.MaxFileSize/(1024*1024)))
		}
		return nil, fmt.Errorf("store document: %w", err)
	}

	d := &Document{
		PatientID:    patientID,
		Title:        up.Title,
		DocumentType: up.DocumentType,
		StorageKey:   key,
		ContentType:  up.ContentType,
		Size:         size,
		UploadedBy:   uploadedBy,
	}
	if err := s.documents.Create(ctx, d); err != nil {
		if derr := s.blobs.Delete(ctx, key); derr != nil {
			s.logger.Error().Err(derr).Str("key", key).Msg("failed to remove orphaned document")
		}
		return nil, err
	}
	s.logger.Info().Str("patient_id", p.PatientID).Str("document_type", d.DocumentType).Int64("size", size).Msg("document uploaded")
	return d, nil
}

func (s *Service) ListDocuments(ctx context.Context, patientID uuid.UUID) ([]*Document, error) {
	if _, err := s.Get(ctx, patientID); err != nil {
		return nil, err
	}
	docs, err := s.documents.ListByPatient(ctx, patientID)
	if err != nil {
		return nil, err
	}
	if docs == nil {
		docs = []*Document{}
	}
	return docs, nil
}

func (s *Service) document(ctx context.Context, patientID, docID uuid.UUID) (*Document, error) {
	d, err := s.documents.GetByID(ctx, docID)
	if err != nil {
		return nil, notFound(err, "document")
	}
	if d.PatientID != patientID || d.IsRemoved {
		return nil, apperr.NotFound("document")
	}
	return d, nil
}

// OpenDocument returns the document row and a reader over its bytes. The
// caller closes the reader.
func (s *Service) OpenDocument(ctx context.Context, patientID, docID uuid.UUID) (*Document, io.ReadCloser, error) {
	d, err := s.document(ctx, patientID, docID)
	if err != nil {
		return nil, nil, err
	}
	rc, err := s.blobs.Open(ctx, d.StorageKey)
	if err != nil {
		if errors.Is(err, blobstore.ErrBlobNotFound) {
			return nil, nil, apperr.NotFound("document file")
		}
		return nil, nil, err
	}
	return d, rc, nil
}

// RemoveDocument hides the document from listings. The stored bytes stay
// until the patient is deleted.
func (s *Service) RemoveDocument(ctx context.Context, patientID, docID uuid.UUID) error {
	d, err := s.document(ctx, patientID, docID)
	if err != nil {
		return err
	}
	if err := s.documents.MarkRemoved(ctx, d.ID); err != nil {
		return notFound(err, "document")
	}
	return nil
}

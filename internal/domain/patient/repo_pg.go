package patient

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hms/hms/internal/platform/db"
)

type queryable interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

func connFor(ctx context.Context, pool *pgxpool.Pool) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	if c := db.ConnFromContext(ctx); c != nil {
		return c
	}
	return pool
}

// =========== Patient Repository ===========

type patientRepoPG struct{ pool *pgxpool.Pool }

func NewPatientRepoPG(pool *pgxpool.Pool) PatientRepository {
	return &patientRepoPG{pool: pool}
}

func (r *patientRepoPG) conn(ctx context.Context) queryable { return connFor(ctx, r.pool) }

const patientCols = `id, patient_id, first_name, last_name, age, gender, blood_group,
	phone, email, address, city, state, emergency_contact_name, emergency_contact_phone,
	is_admitted, entry_datetime, discharge_datetime, has_scheme_card, scheme_card_number,
	created_by, created_at, updated_at`

func (r *patientRepoPG) scanPatient(row pgx.Row) (*Patient, error) {
	var p Patient
	err := row.Scan(&p.ID, &p.PatientID, &p.FirstName, &p.LastName, &p.Age, &p.Gender, &p.BloodGroup,
		&p.Phone, &p.Email, &p.Address, &p.City, &p.State, &p.EmergencyContactName, &p.EmergencyContactPhone,
		&p.IsAdmitted, &p.EntryDatetime, &p.DischargeDatetime, &p.HasSchemeCard, &p.SchemeCardNumber,
		&p.CreatedBy, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, db.Translate(err)
	}
	return &p, nil
}

func (r *patientRepoPG) Create(ctx context.Context, p *Patient) error {
	p.ID = uuid.New()
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO patient (id, patient_id, first_name, last_name, age, gender, blood_group,
			phone, email, address, city, state, emergency_contact_name, emergency_contact_phone,
			is_admitted, entry_datetime, discharge_datetime, has_scheme_card, scheme_card_number, created_by)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20)
		RETURNING created_at, updated_at`,
		p.ID, p.PatientID, p.FirstName, p.LastName, p.Age, p.Gender, p.BloodGroup,
		p.Phone, p.Email, p.Address, p.City, p.State, p.EmergencyContactName, p.EmergencyContactPhone,
		p.IsAdmitted, p.EntryDatetime, p.DischargeDatetime, p.HasSchemeCard, p.SchemeCardNumber, p.CreatedBy,
	).Scan(&p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert patient: %w", err)
	}
	return nil
}

func (r *patientRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Patient, error) {
	return r.scanPatient(r.conn(ctx).QueryRow(ctx, `SELECT `+patientCols+` FROM patient WHERE id = $1`, id))
}

func (r *patientRepoPG) GetByPatientID(ctx context.Context, patientID string) (*Patient, error) {
	return r.scanPatient(r.conn(ctx).QueryRow(ctx, `SELECT `+patientCols+` FROM patient WHERE patient_id = $1`, patientID))
}

func (r *patientRepoPG) Update(ctx context.Context, p *Patient) error {
	err := r.conn(ctx).QueryRow(ctx, `
		UPDATE patient SET first_name=$2, last_name=$3, age=$4, gender=$5, blood_group=$6,
			phone=$7, email=$8, address=$9, city=$10, state=$11,
			emergency_contact_name=$12, emergency_contact_phone=$13,
			is_admitted=$14, entry_datetime=$15, discharge_datetime=$16,
			has_scheme_card=$17, scheme_card_number=$18, updated_at=NOW()
		WHERE id = $1
		RETURNING updated_at`,
		p.ID, p.FirstName, p.LastName, p.Age, p.Gender, p.BloodGroup,
		p.Phone, p.Email, p.Address, p.City, p.State,
		p.EmergencyContactName, p.EmergencyContactPhone,
		p.IsAdmitted, p.EntryDatetime, p.DischargeDatetime,
		p.HasSchemeCard, p.SchemeCardNumber,
	).Scan(&p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update patient: %w", db.Translate(err))
	}
	return nil
}

func (r *patientRepoPG) Discharge(ctx context.Context, id uuid.UUID, at time.Time) (bool, error) {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE patient SET is_admitted = FALSE, discharge_datetime = $2, updated_at = NOW()
		WHERE id = $1 AND is_admitted`, id, at)
	if err != nil {
		return false, fmt.Errorf("discharge patient: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *patientRepoPG) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.conn(ctx).Exec(ctx, `DELETE FROM patient WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete patient: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return db.ErrNotFound
	}
	return nil
}

const patientMatch = `(first_name ILIKE $%[1]d OR last_name ILIKE $%[1]d
	OR (first_name || ' ' || last_name) ILIKE $%[1]d
	OR phone ILIKE $%[1]d OR patient_id ILIKE $%[1]d)`

func (r *patientRepoPG) List(ctx context.Context, f ListFilter, limit, offset int) ([]*Patient, int, error) {
	var (
		conds []string
		args  []interface{}
	)
	if strings.TrimSpace(f.Query) != "" {
		args = append(args, db.ContainsPattern(f.Query))
		conds = append(conds, fmt.Sprintf(patientMatch, len(args)))
	}
	if f.Admitted != nil {
		args = append(args, *f.Admitted)
		conds = append(conds, fmt.Sprintf("is_admitted = $%d", len(args)))
	}
	if f.Gender != "" {
		args = append(args, f.Gender)
		conds = append(conds, fmt.Sprintf("gender = $%d", len(args)))
	}
	where := ""
	if len(conds) > 0 {
		where = " WHERE " + strings.Join(conds, " AND ")
	}

	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM patient`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count patients: %w", err)
	}

	n := len(args)
	args = append(args, limit, offset)
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+patientCols+` FROM patient`+where+
		fmt.Sprintf(` ORDER BY created_at DESC LIMIT $%d OFFSET $%d`, n+1, n+2), args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list patients: %w", err)
	}
	defer rows.Close()

	var items []*Patient
	for rows.Next() {
		p, err := r.scanPatient(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, p)
	}
	return items, total, rows.Err()
}

func (r *patientRepoPG) Search(ctx context.Context, q string, limit int) ([]*Patient, error) {
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+patientCols+` FROM patient WHERE `+
		fmt.Sprintf(patientMatch, 1)+` ORDER BY created_at DESC LIMIT $2`, db.ContainsPattern(q), limit)
	if err != nil {
		return nil, fmt.Errorf("search patients: %w", err)
	}
	defer rows.Close()

	var items []*Patient
	for rows.Next() {
		p, err := r.scanPatient(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, p)
	}
	return items, rows.Err()
}

// =========== Document Repository ===========

type documentRepoPG struct{ pool *pgxpool.Pool }

func NewDocumentRepoPG(pool *pgxpool.Pool) DocumentRepository {
	return &documentRepoPG{pool: pool}
}

func (r *documentRepoPG) conn(ctx context.Context) queryable { return connFor(ctx, r.pool) }

const docCols = `id, patient_id, title, document_type, storage_key, content_type, size,
	uploaded_by, uploaded_at, is_removed`

func (r *documentRepoPG) scanDocument(row pgx.Row) (*Document, error) {
	var d Document
	err := row.Scan(&d.ID, &d.PatientID, &d.Title, &d.DocumentType, &d.StorageKey, &d.ContentType, &d.Size,
		&d.UploadedBy, &d.UploadedAt, &d.IsRemoved)
	if err != nil {
		return nil, db.Translate(err)
	}
	return &d, nil
}

func (r *documentRepoPG) Create(ctx context.Context, d *Document) error {
	d.ID = uuid.New()
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO patient_document (id, patient_id, title, document_type, storage_key, content_type, size, uploaded_by)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		RETURNING uploaded_at`,
		d.ID, d.PatientID, d.Title, d.DocumentType, d.StorageKey, d.ContentType, d.Size, d.UploadedBy,
	).Scan(&d.UploadedAt)
	if err != nil {
		return fmt.Errorf("insert document: %w", err)
	}
	return nil
}

func (r *documentRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Document, error) {
	return r.scanDocument(r.conn(ctx).QueryRow(ctx, `SELECT `+docCols+` FROM patient_document WHERE id = $1`, id))
}

func (r *documentRepoPG) ListByPatient(ctx context.Context, patientID uuid.UUID) ([]*Document, error) {
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+docCols+` FROM patient_document
		WHERE patient_id = $1 AND NOT is_removed ORDER BY uploaded_at DESC`, patientID)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	defer rows.Close()
	var items []*Document
	for rows.Next() {
		d, err := r.scanDocument(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, d)
	}
	return items, rows.Err()
}

func (r *documentRepoPG) MarkRemoved(ctx context.Context, id uuid.UUID) error {
	tag, err := r.conn(ctx).Exec(ctx, `UPDATE patient_document SET is_removed = TRUE WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("remove document: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return db.ErrNotFound
	}
	return nil
}

// =========== Vitals Repository ===========

type vitalsRepoPG struct{ pool *pgxpool.Pool }

func NewVitalsRepoPG(pool *pgxpool.Pool) VitalsRepository {
	return &vitalsRepoPG{pool: pool}
}

func (r *vitalsRepoPG) conn(ctx context.Context) queryable { return connFor(ctx, r.pool) }

const vitalsCols = `id, patient_id, temperature, pulse, blood_pressure_systolic, blood_pressure_diastolic,
	respiratory_rate, spo2, weight, height, notes, recorded_by, recorded_at`

func (r *vitalsRepoPG) Create(ctx context.Context, v *Vitals) error {
	v.ID = uuid.New()
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO patient_vitals (id, patient_id, temperature, pulse, blood_pressure_systolic,
			blood_pressure_diastolic, respiratory_rate, spo2, weight, height, notes, recorded_by)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
		RETURNING recorded_at`,
		v.ID, v.PatientID, v.Temperature, v.Pulse, v.BloodPressureSystolic,
		v.BloodPressureDiastolic, v.RespiratoryRate, v.SpO2, v.Weight, v.Height, v.Notes, v.RecordedBy,
	).Scan(&v.RecordedAt)
	if err != nil {
		return fmt.Errorf("insert vitals: %w", err)
	}
	return nil
}

func (r *vitalsRepoPG) ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*Vitals, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM patient_vitals WHERE patient_id = $1`, patientID).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count vitals: %w", err)
	}
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+vitalsCols+` FROM patient_vitals
		WHERE patient_id = $1 ORDER BY recorded_at DESC LIMIT $2 OFFSET $3`, patientID, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list vitals: %w", err)
	}
	defer rows.Close()

	var items []*Vitals
	for rows.Next() {
		var v Vitals
		if err := rows.Scan(&v.ID, &v.PatientID, &v.Temperature, &v.Pulse, &v.BloodPressureSystolic,
			&v.BloodPressureDiastolic, &v.RespiratoryRate, &v.SpO2, &v.Weight, &v.Height, &v.Notes,
			&v.RecordedBy, &v.RecordedAt); err != nil {
			return nil, 0, err
		}
		items = append(items, &v)
	}
	return items, total, rows.Err()
}

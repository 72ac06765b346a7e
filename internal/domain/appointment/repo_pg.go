package appointment

import (
	"context"
	"fmt"
	"strings"

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

type repoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository {
	return &repoPG{pool: pool}
}

func (r *repoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	if c := db.ConnFromContext(ctx); c != nil {
		return c
	}
	return r.pool
}

const cols = `a.id, a.appointment_id, a.patient_id, COALESCE(p.patient_id, ''),
	COALESCE(p.first_name || ' ' || p.last_name, ''), a.doctor_id,
	COALESCE('Dr. ' || d.first_name || ' ' || d.last_name, ''),
	a.appointment_date, to_char(a.appointment_time, 'HH24:MI'), a.appointment_type, a.status,
	a.reason, a.notes, a.diagnosis, a.prescription, a.booked_by, a.created_at, a.updated_at`

const from = ` FROM appointment a
	LEFT JOIN patient p ON p.id = a.patient_id
	LEFT JOIN doctor d ON d.id = a.doctor_id`

func (r *repoPG) scanRow(row pgx.Row) (*Appointment, error) {
	var a Appointment
	err := row.Scan(&a.ID, &a.AppointmentID, &a.PatientID, &a.PatientCode, &a.PatientName, &a.DoctorID,
		&a.DoctorName, &a.AppointmentDate, &a.AppointmentTime, &a.AppointmentType, &a.Status,
		&a.Reason, &a.Notes, &a.Diagnosis, &a.Prescription, &a.BookedBy, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return nil, db.Translate(err)
	}
	return &a, nil
}

func (r *repoPG) Create(ctx context.Context, a *Appointment) error {
	a.ID = uuid.New()
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO appointment (id, appointment_id, patient_id, doctor_id, appointment_date, appointment_time,
			appointment_type, status, reason, notes, diagnosis, prescription, booked_by)
		VALUES ($1,$2,$3,$4,$5,$6::time,$7,$8,$9,$10,$11,$12,$13)
		RETURNING created_at, updated_at`,
		a.ID, a.AppointmentID, a.PatientID, a.DoctorID, a.AppointmentDate, a.AppointmentTime,
		a.AppointmentType, a.Status, a.Reason, a.Notes, a.Diagnosis, a.Prescription, a.BookedBy,
	).Scan(&a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert appointment: %w", err)
	}
	return nil
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return r.scanRow(r.conn(ctx).QueryRow(ctx, `SELECT `+cols+from+` WHERE a.id = $1`, id))
}

func (r *repoPG) Update(ctx context.Context, a *Appointment) error {
	err := r.conn(ctx).QueryRow(ctx, `
		UPDATE appointment SET patient_id=$2, doctor_id=$3, appointment_date=$4, appointment_time=$5::time,
			appointment_type=$6, status=$7, reason=$8, notes=$9, diagnosis=$10, prescription=$11,
			updated_at=NOW()
		WHERE id = $1
		RETURNING updated_at`,
		a.ID, a.PatientID, a.DoctorID, a.AppointmentDate, a.AppointmentTime,
		a.AppointmentType, a.Status, a.Reason, a.Notes, a.Diagnosis, a.Prescription,
	).Scan(&a.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update appointment: %w", db.Translate(err))
	}
	return nil
}

func (r *repoPG) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.conn(ctx).Exec(ctx, `DELETE FROM appointment WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete appointment: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return db.ErrNotFound
	}
	return nil
}

func (r *repoPG) List(ctx context.Context, f ListFilter, limit, offset int) ([]*Appointment, int, error) {
	var (
		conds []string
		args  []interface{}
	)
	if f.Date != nil {
		args = append(args, f.Date.Format("2006-01-02"))
		conds = append(conds, fmt.Sprintf("a.appointment_date = $%d::date", len(args)))
	}
	if f.DoctorID != nil {
		args = append(args, *f.DoctorID)
		conds = append(conds, fmt.Sprintf("a.doctor_id = $%d", len(args)))
	}
	if f.PatientID != nil {
		args = append(args, *f.PatientID)
		conds = append(conds, fmt.Sprintf("a.patient_id = $%d", len(args)))
	}
	if f.Status != "" {
		args = append(args, f.Status)
		conds = append(conds, fmt.Sprintf("a.status = $%d", len(args)))
	}
	where := ""
	if len(conds) > 0 {
		where = " WHERE " + strings.Join(conds, " AND ")
	}

	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM appointment a`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count appointments: %w", err)
	}

	n := len(args)
	args = append(args, limit, offset)
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+cols+from+where+
		fmt.Sprintf(` ORDER BY a.appointment_date DESC, a.appointment_time DESC LIMIT $%d OFFSET $%d`, n+1, n+2), args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list appointments: %w", err)
	}
	defer rows.Close()

	var items []*Appointment
	for rows.Next() {
		a, err := r.scanRow(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, a)
	}
	return items, total, rows.Err()
}

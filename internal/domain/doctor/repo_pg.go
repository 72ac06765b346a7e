package doctor

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

// =========== Specialization Repository ===========

type specializationRepoPG struct{ pool *pgxpool.Pool }

func NewSpecializationRepoPG(pool *pgxpool.Pool) SpecializationRepository {
	return &specializationRepoPG{pool: pool}
}

func (r *specializationRepoPG) conn(ctx context.Context) queryable { return connFor(ctx, r.pool) }

func (r *specializationRepoPG) Create(ctx context.Context, s *Specialization) error {
	s.ID = uuid.New()
	_, err := r.conn(ctx).Exec(ctx, `INSERT INTO specialization (id, name, description) VALUES ($1, $2, $3)`,
		s.ID, s.Name, s.Description)
	if err != nil {
		return fmt.Errorf("insert specialization: %w", err)
	}
	return nil
}

func (r *specializationRepoPG) get(ctx context.Context, where string, arg interface{}) (*Specialization, error) {
	var s Specialization
	err := r.conn(ctx).QueryRow(ctx, `SELECT id, name, description FROM specialization WHERE `+where, arg).
		Scan(&s.ID, &s.Name, &s.Description)
	if err != nil {
		return nil, db.Translate(err)
	}
	return &s, nil
}

func (r *specializationRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Specialization, error) {
	return r.get(ctx, "id = $1", id)
}

func (r *specializationRepoPG) GetByName(ctx context.Context, name string) (*Specialization, error) {
	return r.get(ctx, "LOWER(name) = LOWER($1)", name)
}

func (r *specializationRepoPG) List(ctx context.Context) ([]*Specialization, error) {
	rows, err := r.conn(ctx).Query(ctx, `SELECT id, name, description FROM specialization ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list specializations: %w", err)
	}
	defer rows.Close()
	var items []*Specialization
	for rows.Next() {
		var s Specialization
		if err := rows.Scan(&s.ID, &s.Name, &s.Description); err != nil {
			return nil, err
		}
		items = append(items, &s)
	}
	return items, rows.Err()
}

// =========== Doctor Repository ===========

type doctorRepoPG struct{ pool *pgxpool.Pool }

func NewDoctorRepoPG(pool *pgxpool.Pool) DoctorRepository {
	return &doctorRepoPG{pool: pool}
}

func (r *doctorRepoPG) conn(ctx context.Context) queryable { return connFor(ctx, r.pool) }

const doctorCols = `d.id, d.first_name, d.last_name, d.specialization_id, COALESCE(s.name, ''),
	d.qualification, d.experience_years, d.phone, d.email, d.consultation_fee, d.monthly_salary,
	d.joining_date, d.user_id, d.is_active, d.created_at, d.updated_at`

const doctorFrom = ` FROM doctor d LEFT JOIN specialization s ON s.id = d.specialization_id`

func (r *doctorRepoPG) scanDoctor(row pgx.Row) (*Doctor, error) {
	var d Doctor
	err := row.Scan(&d.ID, &d.FirstName, &d.LastName, &d.SpecializationID, &d.SpecializationName,
		&d.Qualification, &d.ExperienceYears, &d.Phone, &d.Email, &d.ConsultationFee, &d.MonthlySalary,
		&d.JoiningDate, &d.UserID, &d.IsActive, &d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		return nil, db.Translate(err)
	}
	return &d, nil
}

func (r *doctorRepoPG) Create(ctx context.Context, d *Doctor) error {
	d.ID = uuid.New()
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO doctor (id, first_name, last_name, specialization_id, qualification, experience_years,
			phone, email, consultation_fee, monthly_salary, joining_date, user_id, is_active)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
		RETURNING created_at, updated_at`,
		d.ID, d.FirstName, d.LastName, d.SpecializationID, d.Qualification, d.ExperienceYears,
		d.Phone, d.Email, d.ConsultationFee, d.MonthlySalary, d.JoiningDate, d.UserID, d.IsActive,
	).Scan(&d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert doctor: %w", err)
	}
	return nil
}

func (r *doctorRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Doctor, error) {
	return r.scanDoctor(r.conn(ctx).QueryRow(ctx, `SELECT `+doctorCols+doctorFrom+` WHERE d.id = $1`, id))
}

func (r *doctorRepoPG) GetByUserID(ctx context.Context, userID uuid.UUID) (*Doctor, error) {
	return r.scanDoctor(r.conn(ctx).QueryRow(ctx, `SELECT `+doctorCols+doctorFrom+` WHERE d.user_id = $1`, userID))
}

func (r *doctorRepoPG) Update(ctx context.Context, d *Doctor) error {
	err := r.conn(ctx).QueryRow(ctx, `
		UPDATE doctor SET first_name=$2, last_name=$3, specialization_id=$4, qualification=$5,
			experience_years=$6, phone=$7, email=$8, consultation_fee=$9, monthly_salary=$10,
			joining_date=$11, user_id=$12, is_active=$13, updated_at=NOW()
		WHERE id = $1
		RETURNING updated_at`,
		d.ID, d.FirstName, d.LastName, d.SpecializationID, d.Qualification,
		d.ExperienceYears, d.Phone, d.Email, d.ConsultationFee, d.MonthlySalary,
		d.JoiningDate, d.UserID, d.IsActive,
	).Scan(&d.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update doctor: %w", db.Translate(err))
	}
	return nil
}

func (r *doctorRepoPG) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.conn(ctx).Exec(ctx, `DELETE FROM doctor WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete doctor: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return db.ErrNotFound
	}
	return nil
}

func (r *doctorRepoPG) List(ctx context.Context, f ListFilter, limit, offset int) ([]*Doctor, int, error) {
	var (
		conds []string
		args  []interface{}
	)
	if q := strings.TrimSpace(f.Query); q != "" {
		args = append(args, db.ContainsPattern(q))
		n := len(args)
		conds = append(conds, fmt.Sprintf(`(d.first_name ILIKE $%[1]d OR d.last_name ILIKE $%[1]d
			OR (d.first_name || ' ' || d.last_name) ILIKE $%[1]d OR s.name ILIKE $%[1]d)`, n))
	}
	if f.SpecializationID != nil {
		args = append(args, *f.SpecializationID)
		conds = append(conds, fmt.Sprintf("d.specialization_id = $%d", len(args)))
	}
	if f.Active != nil {
		args = append(args, *f.Active)
		conds = append(conds, fmt.Sprintf("d.is_active = $%d", len(args)))
	}
	where := ""
	if len(conds) > 0 {
		where = " WHERE " + strings.Join(conds, " AND ")
	}

	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*)`+doctorFrom+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count doctors: %w", err)
	}

	n := len(args)
	args = append(args, limit, offset)
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+doctorCols+doctorFrom+where+
		fmt.Sprintf(` ORDER BY d.first_name, d.last_name LIMIT $%d OFFSET $%d`, n+1, n+2), args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list doctors: %w", err)
	}
	defer rows.Close()

	var items []*Doctor
	for rows.Next() {
		d, err := r.scanDoctor(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, d)
	}
	return items, total, rows.Err()
}

// =========== Schedule Repository ===========

type scheduleRepoPG struct{ pool *pgxpool.Pool }

func NewScheduleRepoPG(pool *pgxpool.Pool) ScheduleRepository {
	return &scheduleRepoPG{pool: pool}
}

func (r *scheduleRepoPG) conn(ctx context.Context) queryable { return connFor(ctx, r.pool) }

func (r *scheduleRepoPG) Upsert(ctx context.Context, s *Schedule) error {
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO doctor_schedule (id, doctor_id, day_of_week, start_time, end_time, max_appointments, is_available)
		VALUES ($1, $2, $3, $4::time, $5::time, $6, $7)
		ON CONFLICT (doctor_id, day_of_week) DO UPDATE SET
			start_time = EXCLUDED.start_time,
			end_time = EXCLUDED.end_time,
			max_appointments = EXCLUDED.max_appointments,
			is_available = EXCLUDED.is_available
		RETURNING id`,
		uuid.New(), s.DoctorID, s.DayOfWeek, s.StartTime, s.EndTime, s.MaxAppointments, s.IsAvailable,
	).Scan(&s.ID)
	if err != nil {
		return fmt.Errorf("upsert schedule: %w", err)
	}
	return nil
}

func (r *scheduleRepoPG) ListByDoctor(ctx context.Context, doctorID uuid.UUID) ([]*Schedule, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT id, doctor_id, day_of_week, to_char(start_time, 'HH24:MI'), to_char(end_time, 'HH24:MI'),
			max_appointments, is_available
		FROM doctor_schedule WHERE doctor_id = $1
		ORDER BY array_position(ARRAY['Mon','Tue','Wed','Thu','Fri','Sat','Sun']::varchar[], day_of_week)`, doctorID)
	if err != nil {
		return nil, fmt.Errorf("list schedules: %w", err)
	}
	defer rows.Close()
	var items []*Schedule
	for rows.Next() {
		var s Schedule
		if err := rows.Scan(&s.ID, &s.DoctorID, &s.DayOfWeek, &s.StartTime, &s.EndTime,
			&s.MaxAppointments, &s.IsAvailable); err != nil {
			return nil, err
		}
		items = append(items, &s)
	}
	return items, rows.Err()
}

func (r *scheduleRepoPG) DeleteDay(ctx context.Context, doctorID uuid.UUID, day string) error {
	tag, err := r.conn(ctx).Exec(ctx, `DELETE FROM doctor_schedule WHERE doctor_id = $1 AND day_of_week = $2`, doctorID, day)
	if err != nil {
		return fmt.Errorf("delete schedule: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return db.ErrNotFound
	}
	return nil
}

// =========== Salary Repository ===========

type salaryRepoPG struct{ pool *pgxpool.Pool }

func NewSalaryRepoPG(pool *pgxpool.Pool) SalaryRepository {
	return &salaryRepoPG{pool: pool}
}

func (r *salaryRepoPG) conn(ctx context.Context) queryable { return connFor(ctx, r.pool) }

const salaryCols = `id, doctor_id, month, base_salary, bonus, deductions, net_salary,
	payment_method, status, payment_date, paid_by, notes, created_at`

func (r *salaryRepoPG) scanSalary(row pgx.Row) (*SalaryPayment, error) {
	var s SalaryPayment
	err := row.Scan(&s.ID, &s.DoctorID, &s.Month, &s.BaseSalary, &s.Bonus, &s.Deductions, &s.NetSalary,
		&s.PaymentMethod, &s.Status, &s.PaymentDate, &s.PaidBy, &s.Notes, &s.CreatedAt)
	if err != nil {
		return nil, db.Translate(err)
	}
	return &s, nil
}

func (r *salaryRepoPG) Create(ctx context.Context, s *SalaryPayment) error {
	s.ID = uuid.New()
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO salary_payment (id, doctor_id, month, base_salary, bonus, deductions, net_salary,
			payment_method, status, payment_date, paid_by, notes)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
		RETURNING created_at`,
		s.ID, s.DoctorID, s.Month, s.BaseSalary, s.Bonus, s.Deductions, s.NetSalary,
		s.PaymentMethod, s.Status, s.PaymentDate, s.PaidBy, s.Notes,
	).Scan(&s.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert salary payment: %w", err)
	}
	return nil
}

func (r *salaryRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*SalaryPayment, error) {
	return r.scanSalary(r.conn(ctx).QueryRow(ctx, `SELECT `+salaryCols+` FROM salary_payment WHERE id = $1`, id))
}

func (r *salaryRepoPG) GetByDoctorMonth(ctx context.Context, doctorID uuid.UUID, month time.Time) (*SalaryPayment, error) {
	return r.scanSalary(r.conn(ctx).QueryRow(ctx,
		`SELECT `+salaryCols+` FROM salary_payment WHERE doctor_id = $1 AND month = $2`, doctorID, month))
}

func (r *salaryRepoPG) MarkPaid(ctx context.Context, id uuid.UUID, method string, at time.Time, paidBy *uuid.UUID) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE salary_payment SET status = 'paid', payment_method = $2, payment_date = $3, paid_by = $4
		WHERE id = $1`, id, method, at, paidBy)
	if err != nil {
		return fmt.Errorf("mark salary paid: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return db.ErrNotFound
	}
	return nil
}

func (r *salaryRepoPG) ListByDoctor(ctx context.Context, doctorID uuid.UUID) ([]*SalaryPayment, error) {
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+salaryCols+` FROM salary_payment
		WHERE doctor_id = $1 ORDER BY month DESC`, doctorID)
	if err != nil {
		return nil, fmt.Errorf("list salary payments: %w", err)
	}
	defer rows.Close()
	var items []*SalaryPayment
	for rows.Next() {
		s, err := r.scanSalary(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, s)
	}
	return items, rows.Err()
}

package billing

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

func connFor(ctx context.Context, pool *pgxpool.Pool) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	if c := db.ConnFromContext(ctx); c != nil {
		return c
	}
	return pool
}

// =========== Bill Repository ===========

type billRepoPG struct{ pool *pgxpool.Pool }

func NewBillRepoPG(pool *pgxpool.Pool) BillRepository {
	return &billRepoPG{pool: pool}
}

func (r *billRepoPG) conn(ctx context.Context) queryable { return connFor(ctx, r.pool) }

const billCols = `b.id, b.bill_number, b.patient_id, COALESCE(p.patient_id, ''),
	COALESCE(p.first_name || ' ' || p.last_name, ''), b.doctor_id,
	COALESCE('Dr. ' || d.first_name || ' ' || d.last_name, ''),
	b.consultation_fee, b.entry_fee, b.room_charges, b.medicine_charges, b.lab_charges, b.other_charges,
	b.discount, b.tax, b.subtotal, b.total_amount, b.paid_amount, b.due_amount,
	b.is_scheme, b.claim_amount, b.payment_status, b.payment_method, b.bill_date, b.payment_date,
	b.notes, b.created_by, b.created_at, b.updated_at`

const billFrom = ` FROM bill b
	LEFT JOIN patient p ON p.id = b.patient_id
	LEFT JOIN doctor d ON d.id = b.doctor_id`

func (r *billRepoPG) scanBill(row pgx.Row) (*Bill, error) {
	var b Bill
	err := row.Scan(&b.ID, &b.BillNumber, &b.PatientID, &b.PatientCode, &b.PatientName, &b.DoctorID, &b.DoctorName,
		&b.ConsultationFee, &b.EntryFee, &b.RoomCharges, &b.MedicineCharges, &b.LabCharges, &b.OtherCharges,
		&b.Discount, &b.Tax, &b.Subtotal, &b.TotalAmount, &b.PaidAmount, &b.DueAmount,
		&b.IsScheme, &b.ClaimAmount, &b.PaymentStatus, &b.PaymentMethod, &b.BillDate, &b.PaymentDate,
		&b.Notes, &b.CreatedBy, &b.CreatedAt, &b.UpdatedAt)
	if err != nil {
		return nil, db.Translate(err)
	}
	return &b, nil
}

func (r *billRepoPG) Create(ctx context.Context, b *Bill) error {
	b.ID = uuid.New()
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO bill (id, bill_number, patient_id, doctor_id,
			consultation_fee, entry_fee, room_charges, medicine_charges, lab_charges, other_charges,
			discount, tax, subtotal, total_amount, paid_amount, due_amount,
			is_scheme, claim_amount, payment_status, payment_method, bill_date, payment_date, notes, created_by)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22,$23,$24)
		RETURNING created_at, updated_at`,
		b.ID, b.BillNumber, b.PatientID, b.DoctorID,
		b.ConsultationFee, b.EntryFee, b.RoomCharges, b.MedicineCharges, b.LabCharges, b.OtherCharges,
		b.Discount, b.Tax, b.Subtotal, b.TotalAmount, b.PaidAmount, b.DueAmount,
		b.IsScheme, b.ClaimAmount, b.PaymentStatus, b.PaymentMethod, b.BillDate, b.PaymentDate, b.Notes, b.CreatedBy,
	).Scan(&b.CreatedAt, &b.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert bill: %w", err)
	}
	return nil
}

func (r *billRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Bill, error) {
	return r.scanBill(r.conn(ctx).QueryRow(ctx, `SELECT `+billCols+billFrom+` WHERE b.id = $1`, id))
}

func (r *billRepoPG) GetForUpdate(ctx context.Context, id uuid.UUID) (*Bill, error) {
	return r.scanBill(r.conn(ctx).QueryRow(ctx, `SELECT `+billCols+billFrom+` WHERE b.id = $1 FOR UPDATE OF b`, id))
}

func (r *billRepoPG) Update(ctx context.Context, b *Bill) error {
	err := r.conn(ctx).QueryRow(ctx, `
		UPDATE bill SET patient_id=$2, doctor_id=$3,
			consultation_fee=$4, entry_fee=$5, room_charges=$6, medicine_charges=$7, lab_charges=$8, other_charges=$9,
			discount=$10, tax=$11, subtotal=$12, total_amount=$13, paid_amount=$14, due_amount=$15,
			is_scheme=$16, claim_amount=$17, payment_status=$18, payment_method=$19, payment_date=$20,
			notes=$21, updated_at=NOW()
		WHERE id = $1
		RETURNING updated_at`,
		b.ID, b.PatientID, b.DoctorID,
		b.ConsultationFee, b.EntryFee, b.RoomCharges, b.MedicineCharges, b.LabCharges, b.OtherCharges,
		b.Discount, b.Tax, b.Subtotal, b.TotalAmount, b.PaidAmount, b.DueAmount,
		b.IsScheme, b.ClaimAmount, b.PaymentStatus, b.PaymentMethod, b.PaymentDate,
		b.Notes,
	).Scan(&b.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update bill: %w", db.Translate(err))
	}
	return nil
}

func (r *billRepoPG) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.conn(ctx).Exec(ctx, `DELETE FROM bill WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete bill: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return db.ErrNotFound
	}
	return nil
}

func (r *billRepoPG) List(ctx context.Context, f ListFilter, limit, offset int) ([]*Bill, int, error) {
	var (
		conds []string
		args  []interface{}
	)
	if f.Status != "" {
		args = append(args, f.Status)
		conds = append(conds, fmt.Sprintf("b.payment_status = $%d", len(args)))
	}
	if f.PatientID != nil {
		args = append(args, *f.PatientID)
		conds = append(conds, fmt.Sprintf("b.patient_id = $%d", len(args)))
	}
	if f.From != nil {
		args = append(args, *f.From)
		conds = append(conds, fmt.Sprintf("b.bill_date >= $%d", len(args)))
	}
	if f.To != nil {
		args = append(args, *f.To)
		conds = append(conds, fmt.Sprintf("b.bill_date < $%d", len(args)))
	}
	if q := strings.TrimSpace(f.Query); q != "" {
		args = append(args, db.ContainsPattern(q))
		conds = append(conds, fmt.Sprintf(`(b.bill_number ILIKE $%[1]d OR p.patient_id ILIKE $%[1]d
			OR (p.first_name || ' ' || p.last_name) ILIKE $%[1]d)`, len(args)))
	}
	where := ""
	if len(conds) > 0 {
		where = " WHERE " + strings.Join(conds, " AND ")
	}

	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*)`+billFrom+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count bills: %w", err)
	}

	n := len(args)
	args = append(args, limit, offset)
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+billCols+billFrom+where+
		fmt.Sprintf(` ORDER BY b.bill_date DESC LIMIT $%d OFFSET $%d`, n+1, n+2), args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list bills: %w", err)
	}
	defer rows.Close()

	var items []*Bill
	for rows.Next() {
		b, err := r.scanBill(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, b)
	}
	return items, total, rows.Err()
}

// =========== Item Repository ===========

type itemRepoPG struct{ pool *pgxpool.Pool }

func NewItemRepoPG(pool *pgxpool.Pool) ItemRepository {
	return &itemRepoPG{pool: pool}
}

func (r *itemRepoPG) conn(ctx context.Context) queryable { return connFor(ctx, r.pool) }

func (r *itemRepoPG) Create(ctx context.Context, it *Item) error {
	it.ID = uuid.New()
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO bill_item (id, bill_id, description, quantity, unit_price, total)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		it.ID, it.BillID, it.Description, it.Quantity, it.UnitPrice, it.Total)
	if err != nil {
		return fmt.Errorf("insert bill item: %w", err)
	}
	return nil
}

func (r *itemRepoPG) ListByBill(ctx context.Context, billID uuid.UUID) ([]*Item, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT id, bill_id, description, quantity, unit_price, total
		FROM bill_item WHERE bill_id = $1 ORDER BY description`, billID)
	if err != nil {
		return nil, fmt.Errorf("list bill items: %w", err)
	}
	defer rows.Close()
	var items []*Item
	for rows.Next() {
		var it Item
		if err := rows.Scan(&it.ID, &it.BillID, &it.Description, &it.Quantity, &it.UnitPrice, &it.Total); err != nil {
			return nil, err
		}
		items = append(items, &it)
	}
	return items, rows.Err()
}

func (r *itemRepoPG) Delete(ctx context.Context, billID, itemID uuid.UUID) error {
	tag, err := r.conn(ctx).Exec(ctx, `DELETE FROM bill_item WHERE id = $1 AND bill_id = $2`, itemID, billID)
	if err != nil {
		return fmt.Errorf("delete bill item: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return db.ErrNotFound
	}
	return nil
}

// =========== Payment Repository ===========

type paymentRepoPG struct{ pool *pgxpool.Pool }

func NewPaymentRepoPG(pool *pgxpool.Pool) PaymentRepository {
	return &paymentRepoPG{pool: pool}
}

func (r *paymentRepoPG) conn(ctx context.Context) queryable { return connFor(ctx, r.pool) }

func (r *paymentRepoPG) Create(ctx context.Context, p *Payment) error {
	p.ID = uuid.New()
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO payment (id, bill_id, amount, payment_method, reference, paid_at, received_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING paid_at`,
		p.ID, p.BillID, p.Amount, p.PaymentMethod, p.Reference, p.PaidAt, p.ReceivedBy,
	).Scan(&p.PaidAt)
	if err != nil {
		return fmt.Errorf("insert payment: %w", err)
	}
	return nil
}

func (r *paymentRepoPG) ListByBill(ctx context.Context, billID uuid.UUID) ([]*Payment, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT id, bill_id, amount, payment_method, reference, paid_at, received_by
		FROM payment WHERE bill_id = $1 ORDER BY paid_at`, billID)
	if err != nil {
		return nil, fmt.Errorf("list payments: %w", err)
	}
	defer rows.Close()
	var items []*Payment
	for rows.Next() {
		var p Payment
		if err := rows.Scan(&p.ID, &p.BillID, &p.Amount, &p.PaymentMethod, &p.Reference, &p.PaidAt, &p.ReceivedBy); err != nil {
			return nil, err
		}
		items = append(items, &p)
	}
	return items, rows.Err()
}

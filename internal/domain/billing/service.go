package billing

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/hms/hms/internal/domain/doctor"
	"github.com/hms/hms/internal/domain/patient"
	"github.com/hms/hms/internal/platform/apperr"
	"github.com/hms/hms/internal/platform/db"
	"github.com/hms/hms/internal/platform/seq"
)

// Events receives billing counters. A nil Events is allowed.
type Events interface {
	BillCreated()
	PaymentRecorded(method string, amount decimal.Decimal)
}

type Patients interface {
	Get(ctx context.Context, id uuid.UUID) (*patient.Patient, error)
}

type Doctors interface {
	GetDoctor(ctx context.Context, id uuid.UUID) (*doctor.Doctor, error)
}

type Service struct {
	bills    BillRepository
	items    ItemRepository
	payments PaymentRepository
	tx       db.TxManager
	ids      seq.Generator
	patients Patients
	doctors  Doctors
	events   Events
	logger   zerolog.Logger
	now      func() time.Time
}

func NewService(bills BillRepository, items ItemRepository, payments PaymentRepository, tx db.TxManager,
	ids seq.Generator, patients Patients, doctors Doctors, events Events, logger zerolog.Logger) *Service {
	return &Service{
		bills: bills, items: items, payments: payments, tx: tx, ids: ids,
		patients: patients, doctors: doctors, events: events, logger: logger, now: time.Now,
	}
}

func notFound(err error, entity string) error {
	if errors.Is(err, db.ErrNotFound) {
		return apperr.NotFound(entity)
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

func nonNegative(fe *apperr.FieldErrors, field string, d decimal.Decimal) {
	fe.Check(!d.IsNegative(), field, "must not be negative")
}

func (r *ItemRequest) validate(fe *apperr.FieldErrors, prefix string) {
	r.Description = strings.TrimSpace(r.Description)
	r.UnitPrice = money(r.UnitPrice)
	fe.Check(r.Description != "", prefix+"description", "is required")
	fe.Check(r.Quantity >= 1, prefix+"quantity", "must be at least 1")
	nonNegative(fe, prefix+"unit_price", r.UnitPrice)
}

// validate checks a bill request and resolves its patient. Money inputs are
// rounded to two places here and nowhere else.
func (s *Service) validate(ctx context.Context, req *BillRequest, withItems bool) error {
	var fe apperr.FieldErrors

	for _, f := range []struct {
		name string
		v    *decimal.Decimal
	}{
		{"consultation_fee", &req.ConsultationFee},
		{"entry_fee", &req.EntryFee},
		{"room_charges", &req.RoomCharges},
		{"medicine_charges", &req.MedicineCharges},
		{"lab_charges", &req.LabCharges},
		{"other_charges", &req.OtherCharges},
		{"discount", &req.Discount},
		{"tax", &req.Tax},
		{"claim_amount", &req.ClaimAmount},
	} {
		*f.v = money(*f.v)
		nonNegative(&fe, f.name, *f.v)
	}
	req.Notes = strings.TrimSpace(req.Notes)
	req.PaymentMethod = strings.ToLower(strings.TrimSpace(req.PaymentMethod))
	req.PaymentStatus = strings.ToLower(strings.TrimSpace(req.PaymentStatus))

	var p *patient.Patient
	if req.PatientID == uuid.Nil {
		fe.Add("patient_id", "is required")
	} else {
		var err error
		p, err = s.patients.Get(ctx, req.PatientID)
		switch {
		case isNotFound(err):
			fe.Add("patient_id", "patient not found")
		case err != nil:
			return err
		}
	}
	if req.DoctorID != nil {
		_, err := s.doctors.GetDoctor(ctx, *req.DoctorID)
		switch {
		case isNotFound(err):
			fe.Add("doctor_id", "doctor not found")
		case err != nil:
			return err
		}
	}

	if req.IsScheme && p != nil {
		fe.Check(p.HasSchemeCard, "is_scheme", "patient has no scheme card")
	}
	fe.Check(req.IsScheme || !req.ClaimAmount.IsPositive(), "claim_amount", "only allowed on scheme bills")

	if req.PaymentMethod == "" {
		req.PaymentMethod = MethodCash
		if req.IsScheme && p != nil && p.HasSchemeCard {
			req.PaymentMethod = MethodScheme
		}
	}
	fe.Check(validMethods[req.PaymentMethod], "payment_method", "must be one of cash, card, upi, insurance, scheme")
	fe.Check(req.PaymentStatus == "" || req.PaymentStatus == StatusPending || req.PaymentStatus == StatusWaived,
		"payment_status", "may only be set to pending or waived")

	if withItems {
		for i := range req.Items {
			req.Items[i].validate(&fe, fmt.Sprintf("items[%d].", i))
		}
	}
	return fe.Err()
}

func (b *Bill) apply(req *BillRequest) {
	pid := req.PatientID
	b.PatientID = &pid
	b.DoctorID = req.DoctorID
	b.ConsultationFee = req.ConsultationFee
	b.EntryFee = req.EntryFee
	b.RoomCharges = req.RoomCharges
	b.MedicineCharges = req.MedicineCharges
	b.LabCharges = req.LabCharges
	b.OtherCharges = req.OtherCharges
	b.Discount = req.Discount
	b.Tax = req.Tax
	b.IsScheme = req.IsScheme
	b.ClaimAmount = req.ClaimAmount
	b.PaymentMethod = req.PaymentMethod
	b.Notes = req.Notes
}

// settle derives paid amount, totals and status from the stored payments
// after an edit. Waived bills keep their status, and a bill that stays paid
// keeps its payment date.
func settle(b *Bill, payments []*Payment, now time.Time) {
	if b.PaymentStatus == StatusWaived {
		b.PaidAmount = SumPayments(payments)
		b.Recompute()
		return
	}
	paidAt := b.PaymentDate
	wasPaid := b.PaymentStatus == StatusPaid
	ApplyPayments(b, payments, now)
	if wasPaid && b.PaymentStatus == StatusPaid && paidAt != nil {
		b.PaymentDate = paidAt
	}
}

// CreateBill inserts a bill and its items and assigns the bill number, all in
// one transaction.
func (s *Service) CreateBill(ctx context.Context, req BillRequest, createdBy *uuid.UUID) (*Detail, error) {
	if err := s.validate(ctx, &req, true); err != nil {
		return nil, err
	}

	now := s.now()
	b := &Bill{PaymentStatus: StatusPending, BillDate: now, CreatedBy: createdBy}
	b.apply(&req)
	if req.PaymentStatus == StatusWaived {
		b.PaymentStatus = StatusWaived
	}
	b.Recompute()

	items := make([]*Item, 0, len(req.Items))
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		number, err := s.ids.Next(ctx, seq.Invoice, now)
		if err != nil {
			return fmt.Errorf("next bill number: %w", err)
		}
		b.BillNumber = number
		if err := s.bills.Create(ctx, b); err != nil {
			return err
		}
		for _, ir := range req.Items {
			it := &Item{
				BillID:      b.ID,
				Description: ir.Description,
				Quantity:    ir.Quantity,
				UnitPrice:   ir.UnitPrice,
				Total:       ItemTotal(ir.Quantity, ir.UnitPrice),
			}
			if err := s.items.Create(ctx, it); err != nil {
				return err
			}
			items = append(items, it)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if s.events != nil {
		s.events.BillCreated()
	}
	s.logger.Info().Str("bill_number", b.BillNumber).Str("total", b.TotalAmount.StringFixed(2)).Msg("bill created")
	return &Detail{Bill: b, Items: items, Payments: []*Payment{}}, nil
}

func (s *Service) detail(ctx context.Context, b *Bill) (*Detail, error) {
	items, err := s.items.ListByBill(ctx, b.ID)
	if err != nil {
		return nil, err
	}
	payments, err := s.payments.ListByBill(ctx, b.ID)
	if err != nil {
		return nil, err
	}
	if items == nil {
		items = []*Item{}
	}
	if payments == nil {
		payments = []*Payment{}
	}
	return &Detail{Bill: b, Items: items, Payments: payments}, nil
}

func (s *Service) GetBill(ctx context.Context, id uuid.UUID) (*Detail, error) {
	b, err := s.bills.GetByID(ctx, id)
	if err != nil {
		return nil, notFound(err, "bill")
	}
	return s.detail(ctx, b)
}

func (s *Service) ListBills(ctx context.Context, f ListFilter, limit, offset int) ([]*Bill, int, error) {
	f.Status = strings.ToLower(strings.TrimSpace(f.Status))
	if f.Status != "" && !validStatuses[f.Status] {
		return nil, 0, apperr.Invalid("payment_status", "must be one of pending, partial, paid, waived")
	}
	return s.bills.List(ctx, f, limit, offset)
}

// UpdateBill edits charges and metadata. Paid amount and status are
// re-derived from the stored payments; the bill number never changes.
func (s *Service) UpdateBill(ctx context.Context, id uuid.UUID, req BillRequest) (*Detail, error) {
	if err := s.validate(ctx, &req, false); err != nil {
		return nil, err
	}

	var b *Bill
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		var err error
		b, err = s.bills.GetForUpdate(ctx, id)
		if err != nil {
			return notFound(err, "bill")
		}
		payments, err := s.payments.ListByBill(ctx, id)
		if err != nil {
			return err
		}

		b.apply(&req)
		switch req.PaymentStatus {
		case StatusWaived:
			b.PaymentStatus = StatusWaived
		case StatusPending:
			if len(payments) > 0 {
				return apperr.Invalid("payment_status", "bill already has payments")
			}
			b.PaymentStatus = StatusPending
			b.PaymentDate = nil
		}
		settle(b, payments, s.now())
		return s.bills.Update(ctx, b)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info().Str("bill_number", b.BillNumber).Str("status", b.PaymentStatus).Msg("bill updated")
	return s.detail(ctx, b)
}

func (s *Service) DeleteBill(ctx context.Context, id uuid.UUID) error {
	if err := s.bills.Delete(ctx, id); err != nil {
		return notFound(err, "bill")
	}
	s.logger.Info().Str("bill_id", id.String()).Msg("bill deleted")
	return nil
}

// AddItem appends an invoice line. Item totals do not change the bill totals.
func (s *Service) AddItem(ctx context.Context, billID uuid.UUID, req ItemRequest) (*Item, error) {
	var fe apperr.FieldErrors
	req.validate(&fe, "")
	if err := fe.Err(); err != nil {
		return nil, err
	}
	if _, err := s.bills.GetByID(ctx, billID); err != nil {
		return nil, notFound(err, "bill")
	}
	it := &Item{
		BillID:      billID,
		Description: req.Description,
		Quantity:    req.Quantity,
		UnitPrice:   req.UnitPrice,
		Total:       ItemTotal(req.Quantity, req.UnitPrice),
	}
	if err := s.items.Create(ctx, it); err != nil {
		return nil, err
	}
	return it, nil
}

func (s *Service) DeleteItem(ctx context.Context, billID, itemID uuid.UUID) error {
	if err := s.items.Delete(ctx, billID, itemID); err != nil {
		return notFound(err, "bill item")
	}
	return nil
}

// RecordPayment inserts a payment, re-sums every payment on the bill and
// updates the bill's paid amount and status. The bill row is locked for the
// duration so concurrent payments serialize.
func (s *Service) RecordPayment(ctx context.Context, billID uuid.UUID, req PaymentRequest, receivedBy *uuid.UUID) (*Detail, error) {
	var fe apperr.FieldErrors
	req.Amount = money(req.Amount)
	req.Reference = strings.TrimSpace(req.Reference)
	req.PaymentMethod = strings.ToLower(strings.TrimSpace(req.PaymentMethod))
	fe.Check(req.Amount.IsPositive(), "amount", "must be greater than zero")
	if req.PaymentMethod == "" {
		req.PaymentMethod = MethodCash
	}
	fe.Check(validMethods[req.PaymentMethod], "payment_method", "must be one of cash, card, upi, insurance, scheme")
	if err := fe.Err(); err != nil {
		return nil, err
	}

	now := s.now()
	var b *Bill
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		var err error
		b, err = s.bills.GetForUpdate(ctx, billID)
		if err != nil {
			return notFound(err, "bill")
		}
		if b.PaymentStatus == StatusWaived {
			return apperr.Conflict("bill has been waived")
		}

		p := &Payment{
			BillID:        billID,
			Amount:        req.Amount,
			PaymentMethod: req.PaymentMethod,
			Reference:     req.Reference,
			PaidAt:        now,
			ReceivedBy:    receivedBy,
		}
		if err := s.payments.Create(ctx, p); err != nil {
			return err
		}
		all, err := s.payments.ListByBill(ctx, billID)
		if err != nil {
			return err
		}
		ApplyPayments(b, all, now)
		return s.bills.Update(ctx, b)
	})
	if err != nil {
		return nil, err
	}

	if s.events != nil {
		s.events.PaymentRecorded(req.PaymentMethod, req.Amount)
	}
	s.logger.Info().
		Str("bill_number", b.BillNumber).
		Str("amount", req.Amount.StringFixed(2)).
		Str("method", req.PaymentMethod).
		Str("status", b.PaymentStatus).
		Msg("payment recorded")
	return s.detail(ctx, b)
}

func (s *Service) ListPayments(ctx context.Context, billID uuid.UUID) ([]*Payment, error) {
	if _, err := s.bills.GetByID(ctx, billID); err != nil {
		return nil, notFound(err, "bill")
	}
	payments, err := s.payments.ListByBill(ctx, billID)
	if err != nil {
		return nil, err
	}
	if payments == nil {
		payments = []*Payment{}
	}
	return payments, nil
}

package billing

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const (
	StatusPending = "pending"
	StatusPartial = "partial"
	StatusPaid    = "paid"
	StatusWaived  = "waived"
)

const (
	MethodCash      = "cash"
	MethodCard      = "card"
	MethodUPI       = "upi"
	MethodInsurance = "insurance"
	MethodScheme    = "scheme"
)

var validMethods = map[string]bool{
	MethodCash: true, MethodCard: true, MethodUPI: true, MethodInsurance: true, MethodScheme: true,
}

var validStatuses = map[string]bool{
	StatusPending: true, StatusPartial: true, StatusPaid: true, StatusWaived: true,
}

// Bill maps to the bill table. Subtotal, TotalAmount and DueAmount are
// derived; call Recompute after changing any charge. Patient and doctor
// display fields are joined on read.
type Bill struct {
	ID              uuid.UUID       `db:"id" json:"id"`
	BillNumber      string          `db:"bill_number" json:"bill_number"`
	PatientID       *uuid.UUID      `db:"patient_id" json:"patient_id"`
	PatientCode     string          `db:"-" json:"patient_code"`
	PatientName     string          `db:"-" json:"patient_name"`
	DoctorID        *uuid.UUID      `db:"doctor_id" json:"doctor_id"`
	DoctorName      string          `db:"-" json:"doctor_name"`
	ConsultationFee decimal.Decimal `db:"consultation_fee" json:"consultation_fee"`
	EntryFee        decimal.Decimal `db:"entry_fee" json:"entry_fee"`
	RoomCharges     decimal.Decimal `db:"room_charges" json:"room_charges"`
	MedicineCharges decimal.Decimal `db:"medicine_charges" json:"medicine_charges"`
	LabCharges      decimal.Decimal `db:"lab_charges" json:"lab_charges"`
	OtherCharges    decimal.Decimal `db:"other_charges" json:"other_charges"`
	Discount        decimal.Decimal `db:"discount" json:"discount"`
	Tax             decimal.Decimal `db:"tax" json:"tax"`
	Subtotal        decimal.Decimal `db:"subtotal" json:"subtotal"`
	TotalAmount     decimal.Decimal `db:"total_amount" json:"total_amount"`
	PaidAmount      decimal.Decimal `db:"paid_amount" json:"paid_amount"`
	DueAmount       decimal.Decimal `db:"due_amount" json:"due_amount"`
	IsScheme        bool            `db:"is_scheme" json:"is_scheme"`
	ClaimAmount     decimal.Decimal `db:"claim_amount" json:"claim_amount"`
	PaymentStatus   string          `db:"payment_status" json:"payment_status"`
	PaymentMethod   string          `db:"payment_method" json:"payment_method"`
	BillDate        time.Time       `db:"bill_date" json:"bill_date"`
	PaymentDate     *time.Time      `db:"payment_date" json:"payment_date"`
	Notes           string          `db:"notes" json:"notes"`
	CreatedBy       *uuid.UUID      `db:"created_by" json:"created_by,omitempty"`
	CreatedAt       time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time       `db:"updated_at" json:"updated_at"`
}

// Item is an informational invoice line. Its total is not part of the bill
// subtotal.
type Item struct {
	ID          uuid.UUID       `db:"id" json:"id"`
	BillID      uuid.UUID       `db:"bill_id" json:"bill_id"`
	Description string          `db:"description" json:"description"`
	Quantity    int             `db:"quantity" json:"quantity"`
	UnitPrice   decimal.Decimal `db:"unit_price" json:"unit_price"`
	Total       decimal.Decimal `db:"total" json:"total"`
}

type Payment struct {
	ID            uuid.UUID       `db:"id" json:"id"`
	BillID        uuid.UUID       `db:"bill_id" json:"bill_id"`
	Amount        decimal.Decimal `db:"amount" json:"amount"`
	PaymentMethod string          `db:"payment_method" json:"payment_method"`
	Reference     string          `db:"reference" json:"reference"`
	PaidAt        time.Time       `db:"paid_at" json:"paid_at"`
	ReceivedBy    *uuid.UUID      `db:"received_by" json:"received_by,omitempty"`
}

// Detail is a bill with its items and payments.
type Detail struct {
	*Bill
	Items    []*Item    `json:"items"`
	Payments []*Payment `json:"payments"`
}

type ItemRequest struct {
	Description string          `json:"description"`
	Quantity    int             `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
}

// BillRequest creates or edits a bill. Items are only read on create.
type BillRequest struct {
	PatientID       uuid.UUID       `json:"patient_id"`
	DoctorID        *uuid.UUID      `json:"doctor_id"`
	ConsultationFee decimal.Decimal `json:"consultation_fee"`
	EntryFee        decimal.Decimal `json:"entry_fee"`
	RoomCharges     decimal.Decimal `json:"room_charges"`
	MedicineCharges decimal.Decimal `json:"medicine_charges"`
	LabCharges      decimal.Decimal `json:"lab_charges"`
	OtherCharges    decimal.Decimal `json:"other_charges"`
	Discount        decimal.Decimal `json:"discount"`
	Tax             decimal.Decimal `json:"tax"`
	IsScheme        bool            `json:"is_scheme"`
	ClaimAmount     decimal.Decimal `json:"claim_amount"`
	PaymentMethod   string          `json:"payment_method"`
	// PaymentStatus may only be "waived", or "pending" on a bill without payments.
	PaymentStatus string        `json:"payment_status"`
	Notes         string        `json:"notes"`
	Items         []ItemRequest `json:"items"`
}

type PaymentRequest struct {
	Amount        decimal.Decimal `json:"amount"`
	PaymentMethod string          `json:"payment_method"`
	Reference     string          `json:"reference"`
}

type ListFilter struct {
	Status    string
	PatientID *uuid.UUID
	From, To  *time.Time
	Query     string
}

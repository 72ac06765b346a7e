package patient

import (
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var validGenders = map[string]bool{"M": true, "F": true, "O": true}

var validBloodGroups = map[string]bool{
	"A+": true, "A-": true, "B+": true, "B-": true,
	"AB+": true, "AB-": true, "O+": true, "O-": true,
}

var validDocumentTypes = map[string]bool{
	"lab_report":        true,
	"prescription":      true,
	"scan":              true,
	"discharge_summary": true,
	"id_proof":          true,
	"scheme_card":       true,
	"other":             true,
}

// Patient maps to the patient table. PatientID is the human identifier
// (P2024010001); it is assigned once at registration and never rewritten.
type Patient struct {
	ID                    uuid.UUID  `db:"id" json:"id"`
	PatientID             string     `db:"patient_id" json:"patient_id"`
	FirstName             string     `db:"first_name" json:"first_name"`
	LastName              string     `db:"last_name" json:"last_name"`
	Age                   int        `db:"age" json:"age"`
	Gender                string     `db:"gender" json:"gender"`
	BloodGroup            string     `db:"blood_group" json:"blood_group"`
	Phone                 string     `db:"phone" json:"phone"`
	Email                 string     `db:"email" json:"email"`
	Address               string     `db:"address" json:"address"`
	City                  string     `db:"city" json:"city"`
	State                 string     `db:"state" json:"state"`
	EmergencyContactName  string     `db:"emergency_contact_name" json:"emergency_contact_name"`
	EmergencyContactPhone string     `db:"emergency_contact_phone" json:"emergency_contact_phone"`
	IsAdmitted            bool       `db:"is_admitted" json:"is_admitted"`
	EntryDatetime         time.Time  `db:"entry_datetime" json:"entry_datetime"`
	DischargeDatetime     *time.Time `db:"discharge_datetime" json:"discharge_datetime"`
	HasSchemeCard         bool       `db:"has_scheme_card" json:"has_scheme_card"`
	SchemeCardNumber      string     `db:"scheme_card_number" json:"scheme_card_number"`
	CreatedBy             *uuid.UUID `db:"created_by" json:"created_by,omitempty"`
	CreatedAt             time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt             time.Time  `db:"updated_at" json:"updated_at"`
}

func (p *Patient) FullName() string {
	return strings.TrimSpace(p.FirstName + " " + p.LastName)
}

// PatientRequest is the writable subset of Patient for create and update.
type PatientRequest struct {
	FirstName             string     `json:"first_name" form:"first_name"`
	LastName              string     `json:"last_name" form:"last_name"`
	Age                   *int       `json:"age" form:"age"`
	Gender                string     `json:"gender" form:"gender"`
	BloodGroup            string     `json:"blood_group" form:"blood_group"`
	Phone                 string     `json:"phone" form:"phone"`
	Email                 string     `json:"email" form:"email"`
	Address               string     `json:"address" form:"address"`
	City                  string     `json:"city" form:"city"`
	State                 string     `json:"state" form:"state"`
	EmergencyContactName  string     `json:"emergency_contact_name" form:"emergency_contact_name"`
	EmergencyContactPhone string     `json:"emergency_contact_phone" form:"emergency_contact_phone"`
	IsAdmitted            *bool      `json:"is_admitted" form:"is_admitted"`
	EntryDatetime         *time.Time `json:"entry_datetime"`
	HasSchemeCard         bool       `json:"has_scheme_card" form:"has_scheme_card"`
	SchemeCardNumber      string     `json:"scheme_card_number" form:"scheme_card_number"`
}

// ListFilter narrows GET /patients.
type ListFilter struct {
	Query    string
	Admitted *bool
	Gender   string
}

// Document maps to the patient_document table.
type Document struct {
	ID           uuid.UUID  `db:"id" json:"id"`
	PatientID    uuid.UUID  `db:"patient_id" json:"patient_id"`
	Title        string     `db:"title" json:"title"`
	DocumentType string     `db:"document_type" json:"document_type"`
	StorageKey   string     `db:"storage_key" json:"-"`
	ContentType  string     `db:"content_type" json:"content_type"`
	Size         int64      `db:"size" json:"size"`
	UploadedBy   *uuid.UUID `db:"uploaded_by" json:"uploaded_by,omitempty"`
	UploadedAt   time.Time  `db:"uploaded_at" json:"uploaded_at"`
	IsRemoved    bool       `db:"is_removed" json:"is_removed"`
}

// DocumentUpload carries a new document's metadata and bytes.
type DocumentUpload struct {
	Title        string
	DocumentType string
	FileName     string
	ContentType  string
	Body         io.Reader
}

// Vitals maps to the patient_vitals table. Rows are append-only.
type Vitals struct {
	ID                     uuid.UUID           `db:"id" json:"id"`
	PatientID              uuid.UUID           `db:"patient_id" json:"patient_id"`
	Temperature            decimal.NullDecimal `db:"temperature" json:"temperature"`
	Pulse                  *int                `db:"pulse" json:"pulse"`
	BloodPressureSystolic  *int                `db:"blood_pressure_systolic" json:"blood_pressure_systolic"`
	BloodPressureDiastolic *int                `db:"blood_pressure_diastolic" json:"blood_pressure_diastolic"`
	RespiratoryRate        *int                `db:"respiratory_rate" json:"respiratory_rate"`
	SpO2                   *int                `db:"spo2" json:"spo2"`
	Weight                 decimal.NullDecimal `db:"weight" json:"weight"`
	Height                 decimal.NullDecimal `db:"height" json:"height"`
	Notes                  string              `db:"notes" json:"notes"`
	RecordedBy             *uuid.UUID          `db:"recorded_by" json:"recorded_by,omitempty"`
	RecordedAt             time.Time           `db:"recorded_at" json:"recorded_at"`
}

// BloodPressure renders "120/80", or "" when either side is missing.
func (v *Vitals) BloodPressure() string {
	if v.BloodPressureSystolic == nil || v.BloodPressureDiastolic == nil {
		return ""
	}
	return strconv.Itoa(*v.BloodPressureSystolic) + "/" + strconv.Itoa(*v.BloodPressureDiastolic)
}

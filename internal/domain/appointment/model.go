package appointment

import (
	"time"

	"github.com/google/uuid"
)

const (
	StatusPending   = "pending"
	StatusConfirmed = "confirmed"
	StatusCompleted = "completed"
	StatusCancelled = "cancelled"
	StatusNoShow    = "no_show"
)

var validTypes = map[string]bool{
	"consultation": true,
	"follow_up":    true,
	"emergency":    true,
	"checkup":      true,
}

// transitions lists the statuses reachable from each status. Completed,
// cancelled and no_show are terminal.
var transitions = map[string][]string{
	StatusPending:   {StatusConfirmed, StatusCancelled, StatusNoShow},
	StatusConfirmed: {StatusCompleted, StatusCancelled, StatusNoShow},
	StatusCompleted: nil,
	StatusCancelled: nil,
	StatusNoShow:    nil,
}

// CanTransition reports whether from -> to is a legal status change.
func CanTransition(from, to string) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// IsFinal reports whether status admits no further changes.
func IsFinal(status string) bool {
	next, ok := transitions[status]
	return ok && len(next) == 0
}

// Appointment maps to the appointment table. Patient and doctor display
// fields are joined on read.
type Appointment struct {
	ID              uuid.UUID  `db:"id" json:"id"`
	AppointmentID   string     `db:"appointment_id" json:"appointment_id"`
	PatientID       *uuid.UUID `db:"patient_id" json:"patient_id"`
	PatientCode     string     `db:"-" json:"patient_code"`
	PatientName     string     `db:"-" json:"patient_name"`
	DoctorID        *uuid.UUID `db:"doctor_id" json:"doctor_id"`
	DoctorName      string     `db:"-" json:"doctor_name"`
	AppointmentDate time.Time  `db:"appointment_date" json:"appointment_date"`
	AppointmentTime string     `db:"appointment_time" json:"appointment_time"`
	AppointmentType string     `db:"appointment_type" json:"appointment_type"`
	Status          string     `db:"status" json:"status"`
	Reason          string     `db:"reason" json:"reason"`
	Notes           string     `db:"notes" json:"notes"`
	Diagnosis       string     `db:"diagnosis" json:"diagnosis"`
	Prescription    string     `db:"prescription" json:"prescription"`
	BookedBy        *uuid.UUID `db:"booked_by" json:"booked_by,omitempty"`
	CreatedAt       time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time  `db:"updated_at" json:"updated_at"`
}

// AppointmentRequest books or reschedules an appointment. Date is
// "YYYY-MM-DD" and time "HH:MM".
type AppointmentRequest struct {
	PatientID       uuid.UUID `json:"patient_id"`
	DoctorID        uuid.UUID `json:"doctor_id"`
	AppointmentDate string    `json:"appointment_date"`
	AppointmentTime string    `json:"appointment_time"`
	AppointmentType string    `json:"appointment_type"`
	Reason          string    `json:"reason"`
	Notes           string    `json:"notes"`
}

type StatusRequest struct {
	Status string `json:"status"`
}

// ClinicalRequest carries the doctor's notes. Nil fields are left as-is.
type ClinicalRequest struct {
	Diagnosis    *string `json:"diagnosis"`
	Prescription *string `json:"prescription"`
	Notes        *string `json:"notes"`
}

type ListFilter struct {
	Date      *time.Time
	DoctorID  *uuid.UUID
	PatientID *uuid.UUID
	Status    string
}

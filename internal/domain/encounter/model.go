package encounter

import (
	"time"

	"github.com/google/uuid"
)

// Encounter statuses. Finished is terminal: no field of a finished
// encounter may change, including the status itself.
const (
	StatusPlanned    = "planned"
	StatusInProgress = "in-progress"
	StatusOnHold     = "onhold"
	StatusFinished   = "finished"
	StatusCancelled  = "cancelled"
)

var validStatuses = map[string]bool{
	StatusPlanned:    true,
	StatusInProgress: true,
	StatusOnHold:     true,
	StatusFinished:   true,
	StatusCancelled:  true,
}

// Encounter maps to the encounters table.
type Encounter struct {
	ID             uuid.UUID  `db:"id" json:"id"`
	PatientID      uuid.UUID  `db:"patient_id" json:"patient_id"`
	PractitionerID uuid.UUID  `db:"practitioner_id" json:"practitioner_id"`
	OrganizationID *uuid.UUID `db:"organization_id" json:"organization_id,omitempty"`
	EncounterDate  time.Time  `db:"encounter_date" json:"encounter_date"`
	EncounterType  string     `db:"encounter_type" json:"encounter_type"`
	Status         string     `db:"status" json:"status"`
	Reason         *string    `db:"reason" json:"reason,omitempty"`
	CreatedAt      time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time  `db:"updated_at" json:"updated_at"`

	// Eager-loaded relations, populated for list and get responses.
	Patient           *PatientRef       `db:"-" json:"patient,omitempty"`
	Practitioner      *PractitionerRef  `db:"-" json:"practitioner,omitempty"`
	Observations      []*ObservationRef `db:"-" json:"observations,omitempty"`
	DiagnosticReports []*ReportRef      `db:"-" json:"diagnostic_reports,omitempty"`
}

// PatientRef is the minimal patient shape embedded in encounter responses.
type PatientRef struct {
	ID         uuid.UUID `json:"id"`
	Identifier string    `json:"identifier"`
	FullName   string    `json:"full_name"`
}

// PractitionerRef is the minimal practitioner shape embedded in responses.
type PractitionerRef struct {
	ID        uuid.UUID `json:"id"`
	FullName  string    `json:"full_name"`
	Specialty string    `json:"specialty"`
	Active    bool      `json:"active"`
}

// ObservationRef summarizes an observation attached to the encounter.
type ObservationRef struct {
	ID         uuid.UUID `json:"id"`
	Code       string    `json:"code"`
	Value      string    `json:"value"`
	Unit       string    `json:"unit"`
	ObservedAt time.Time `json:"observed_at"`
}

// ReportRef summarizes a diagnostic report attached to the encounter.
type ReportRef struct {
	ID   uuid.UUID `json:"id"`
	Type string    `json:"type"`
}

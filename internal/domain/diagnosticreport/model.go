package diagnosticreport

import (
	"time"

	"github.com/google/uuid"
)

// Document is the structured payload attached to a report. Its status and
// category are filterable independently of the report's own columns.
type Document struct {
	Status     string `json:"status,omitempty"`
	Category   string `json:"category,omitempty"`
	Conclusion string `json:"conclusion,omitempty"`
}

type DiagnosticReport struct {
	ID          uuid.UUID `json:"id" db:"id"`
	PatientID   uuid.UUID `json:"patient_id" db:"patient_id"`
	EncounterID uuid.UUID `json:"encounter_id" db:"encounter_id"`
	Type        string    `json:"type" db:"type"`
	Result      *string   `json:"result" db:"result"`
	Document    *Document `json:"document" db:"document"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time `json:"updated_at" db:"updated_at"`
}

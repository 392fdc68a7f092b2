package condition

import (
	"time"

	"github.com/google/uuid"
)

// Condition is a diagnosis recorded during an encounter. Code carries the
// ICD-10 or SNOMED CT code as free text; no terminology validation is done.
type Condition struct {
	ID           uuid.UUID  `json:"id" db:"id"`
	EncounterID  uuid.UUID  `json:"encounter_id" db:"encounter_id"`
	PatientID    uuid.UUID  `json:"patient_id" db:"patient_id"`
	Code         string     `json:"code" db:"code"`
	Description  *string    `json:"description" db:"description"`
	RecordedDate *time.Time `json:"recorded_date" db:"recorded_date"`
	CreatedAt    time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at" db:"updated_at"`
}

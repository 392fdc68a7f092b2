package observation

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Observation is a single measured value (LOINC-coded) taken during an
// encounter. Value is stored as text; when it parses as a number and a
// reference range is present, an abnormal flag is derived on serialization.
type Observation struct {
	ID          uuid.UUID  `json:"id" db:"id"`
	EncounterID uuid.UUID  `json:"encounter_id" db:"encounter_id"`
	PatientID   uuid.UUID  `json:"patient_id" db:"patient_id"`
	Code        string     `json:"code" db:"code"`
	Value       string     `json:"value" db:"value"`
	Unit        *string    `json:"unit" db:"unit"`
	RefLow      *float64   `json:"ref_low" db:"ref_low"`
	RefHigh     *float64   `json:"ref_high" db:"ref_high"`
	ObservedAt  *time.Time `json:"observed_at" db:"observed_at"`
	CreatedAt   time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at" db:"updated_at"`
}

// NumericValue parses Value as a number. The second return is false for
// qualitative results ("positive", "trace") which never flag as abnormal.
func (o *Observation) NumericValue() (float64, bool) {
	v, err := strconv.ParseFloat(strings.TrimSpace(o.Value), 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// Abnormal reports whether the numeric value falls outside the reference
// range. With no range on record nothing is flagged.
func (o *Observation) Abnormal() bool {
	v, ok := o.NumericValue()
	if !ok {
		return false
	}
	if o.RefLow != nil && v < *o.RefLow {
		return true
	}
	if o.RefHigh != nil && v > *o.RefHigh {
		return true
	}
	return false
}

func (o *Observation) MarshalJSON() ([]byte, error) {
	type alias Observation
	return json.Marshal(struct {
		*alias
		Abnormal bool `json:"abnormal"`
	}{
		alias:    (*alias)(o),
		Abnormal: o.Abnormal(),
	})
}

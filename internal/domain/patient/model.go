package patient

import (
	"regexp"
	"time"

	"github.com/google/uuid"
)

// Recognized gender values.
var validGenders = map[string]bool{
	"male":    true,
	"female":  true,
	"other":   true,
	"unknown": true,
}

// identifierPattern checks the external MRN shape, e.g. "1234-LP".
var identifierPattern = regexp.MustCompile(`^[0-9]{4,10}-[A-Z]{1,3}$`)

// Patient maps to the patients table. Deleted and merged patients stay as
// tombstones (deleted_at set, merged_into pointing at the survivor) so the
// audit trail keeps resolving.
type Patient struct {
	ID          uuid.UUID  `db:"id" json:"id"`
	Identifier  string     `db:"identifier" json:"identifier"`
	FirstName   string     `db:"first_name" json:"first_name"`
	LastName    string     `db:"last_name" json:"last_name"`
	DateOfBirth time.Time  `db:"date_of_birth" json:"date_of_birth"`
	Gender      string     `db:"gender" json:"gender"`
	Phone       *string    `db:"phone" json:"phone,omitempty"`
	Email       *string    `db:"email" json:"email,omitempty"`
	Address     *string    `db:"address" json:"address,omitempty"`
	MergedInto  *uuid.UUID `db:"merged_into" json:"merged_into,omitempty"`
	DeletedAt   *time.Time `db:"deleted_at" json:"deleted_at,omitempty"`
	CreatedAt   time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time  `db:"updated_at" json:"updated_at"`
}

// Match strengths reported by the duplicate detector, strongest first.
const (
	MatchExactIdentifier = "exact-identifier"
	MatchExactNameAndDOB = "exact-name-and-dob"
)

// Candidate pairs a possible duplicate with how it matched.
type Candidate struct {
	Patient       *Patient `json:"patient"`
	MatchStrength string   `json:"match_strength"`
}

// MetricsReport aggregates patient counts for the dashboard.
type MetricsReport struct {
	Total            int `json:"total"`
	WithEncounters   int `json:"with_encounters"`
	WithConditions   int `json:"with_conditions"`
	WithObservations int `json:"with_observations"`
}

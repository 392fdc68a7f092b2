package consent

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Consent scopes.
const (
	ScopeFull    = "completo"
	ScopePartial = "parcial"
)

// Derived consent states. REVOKED is terminal; the others follow from the
// validity window at evaluation time.
const (
	StatePending = "PENDING"
	StateActive  = "ACTIVE"
	StateExpired = "EXPIRED"
	StateRevoked = "REVOKED"
)

// Consent maps to the consents table.
type Consent struct {
	ID         uuid.UUID `db:"id" json:"id"`
	PatientID  uuid.UUID `db:"patient_id" json:"patient_id"`
	GrantedTo  uuid.UUID `db:"granted_to" json:"granted_to"`
	Scope      string    `db:"scope" json:"scope"`
	ValidFrom  time.Time `db:"valid_from" json:"valid_from"`
	ValidUntil time.Time `db:"valid_until" json:"valid_until"`
	Revoked    bool      `db:"revoked" json:"revoked"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
	UpdatedAt  time.Time `db:"updated_at" json:"updated_at"`
}

// StateAt derives the consent state at the given instant. Boundary instants
// count as active: valid_from <= now <= valid_until.
func (cs *Consent) StateAt(now time.Time) string {
	switch {
	case cs.Revoked:
		return StateRevoked
	case now.Before(cs.ValidFrom):
		return StatePending
	case now.After(cs.ValidUntil):
		return StateExpired
	default:
		return StateActive
	}
}

// Satisfies reports whether this consent's scope covers the requested one.
// Full consent covers everything; partial covers only partial requests.
func (cs *Consent) Satisfies(requestedScope string) bool {
	return cs.Scope == ScopeFull || cs.Scope == requestedScope
}

// MarshalJSON includes the derived state alongside the stored fields.
func (cs *Consent) MarshalJSON() ([]byte, error) {
	type alias Consent
	return json.Marshal(struct {
		*alias
		State string `json:"state"`
	}{(*alias)(cs), cs.StateAt(time.Now().UTC())})
}

package practitioner

import (
	"time"

	"github.com/google/uuid"
)

// Practitioner maps to the practitioners table. Identifier is the
// professional license number and is unique.
type Practitioner struct {
	ID             uuid.UUID  `db:"id" json:"id"`
	Identifier     string     `db:"identifier" json:"identifier"`
	FirstName      string     `db:"first_name" json:"first_name"`
	LastName       string     `db:"last_name" json:"last_name"`
	Specialty      *string    `db:"specialty" json:"specialty,omitempty"`
	Phone          *string    `db:"phone" json:"phone,omitempty"`
	Email          *string    `db:"email" json:"email,omitempty"`
	OrganizationID *uuid.UUID `db:"organization_id" json:"organization_id,omitempty"`
	Active         bool       `db:"active" json:"active"`
	CreatedAt      time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time  `db:"updated_at" json:"updated_at"`
}

// LookupEntry is the minimal shape served to relational pickers.
type LookupEntry struct {
	ID        uuid.UUID `json:"id"`
	FullName  string    `json:"full_name"`
	Specialty string    `json:"specialty"`
}

func (p *Practitioner) FullName() string {
	return p.FirstName + " " + p.LastName
}

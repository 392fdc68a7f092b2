package account

import (
	"time"

	"github.com/google/uuid"
)

// User is an API account. OrganizationID binds the account to the
// organization it acts for; accounts without one are internal operators.
type User struct {
	ID             uuid.UUID  `json:"id" db:"id"`
	Name           string     `json:"name" db:"name"`
	Email          string     `json:"email" db:"email"`
	PasswordHash   string     `json:"-" db:"password_hash"`
	Role           string     `json:"role" db:"role"`
	OrganizationID *uuid.UUID `json:"organization_id" db:"organization_id"`
	CreatedAt      time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at" db:"updated_at"`
}

const (
	RoleAdmin = "admin"
	RoleStaff = "staff"
)

var validRoles = map[string]bool{
	RoleAdmin: true,
	RoleStaff: true,
}

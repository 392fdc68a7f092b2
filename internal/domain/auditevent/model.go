package auditevent

import (
	"time"

	"github.com/google/uuid"
)

// Recognized audit actions.
const (
	ActionLogin  = "LOGIN"
	ActionLogout = "LOGOUT"
	ActionView   = "VIEW"
	ActionCreate = "CREATE"
	ActionUpdate = "UPDATE"
	ActionDelete = "DELETE"
	ActionMerge  = "MERGE"
)

// AuditEvent maps to the audit_events table. Rows are append-only; the
// user reference is weak so events survive user deletion.
type AuditEvent struct {
	ID           uuid.UUID              `db:"id" json:"id"`
	UserID       *uuid.UUID             `db:"user_id" json:"user_id,omitempty"`
	UserName     string                 `db:"user_name" json:"user_name"`
	Action       string                 `db:"action" json:"action"`
	ResourceType string                 `db:"resource_type" json:"resource_type"`
	ResourceID   string                 `db:"resource_id" json:"resource_id"`
	Details      map[string]interface{} `db:"details" json:"details,omitempty"`
	CreatedAt    time.Time              `db:"created_at" json:"created_at"`
}

var validActions = map[string]bool{
	ActionLogin:  true,
	ActionLogout: true,
	ActionView:   true,
	ActionCreate: true,
	ActionUpdate: true,
	ActionDelete: true,
	ActionMerge:  true,
}

package condition

import (
	"context"

	"github.com/google/uuid"

	"github.com/clinrec/clinrec/internal/platform/query"
	"github.com/clinrec/clinrec/pkg/pagination"
)

type Repository interface {
	Create(ctx context.Context, c *Condition) error
	GetByID(ctx context.Context, id uuid.UUID) (*Condition, error)
	Update(ctx context.Context, c *Condition) error
	Delete(ctx context.Context, id uuid.UUID) error
	List(ctx context.Context, params map[string]string, sortKey, direction string, pg pagination.Params) ([]*Condition, int, *query.Plan, error)
}

// EncounterResolver reports the patient an encounter belongs to, so a new
// condition is always filed under the encounter's own patient.
type EncounterResolver interface {
	PatientOf(ctx context.Context, encounterID uuid.UUID) (uuid.UUID, error)
}

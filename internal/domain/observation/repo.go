package observation

import (
	"context"

	"github.com/google/uuid"

	"github.com/clinrec/clinrec/internal/platform/query"
	"github.com/clinrec/clinrec/pkg/pagination"
)

type Repository interface {
	Create(ctx context.Context, o *Observation) error
	GetByID(ctx context.Context, id uuid.UUID) (*Observation, error)
	Update(ctx context.Context, o *Observation) error
	Delete(ctx context.Context, id uuid.UUID) error
	List(ctx context.Context, params map[string]string, sortKey, direction string, pg pagination.Params) ([]*Observation, int, *query.Plan, error)
}

// EncounterResolver reports the patient an encounter belongs to.
type EncounterResolver interface {
	PatientOf(ctx context.Context, encounterID uuid.UUID) (uuid.UUID, error)
}

package diagnosticreport

import (
	"context"

	"github.com/google/uuid"

	"github.com/clinrec/clinrec/internal/platform/query"
	"github.com/clinrec/clinrec/pkg/pagination"
)

type Repository interface {
	Create(ctx context.Context, r *DiagnosticReport) error
	GetByID(ctx context.Context, id uuid.UUID) (*DiagnosticReport, error)
	Update(ctx context.Context, r *DiagnosticReport) error
	Delete(ctx context.Context, id uuid.UUID) error
	List(ctx context.Context, params map[string]string, sortKey, direction string, pg pagination.Params) ([]*DiagnosticReport, int, *query.Plan, error)
}

// EncounterResolver reports the patient an encounter belongs to.
type EncounterResolver interface {
	PatientOf(ctx context.Context, encounterID uuid.UUID) (uuid.UUID, error)
}

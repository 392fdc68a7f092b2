package consent

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/clinrec/clinrec/internal/platform/query"
	"github.com/clinrec/clinrec/pkg/pagination"
)

// ErrRevoked is returned by guarded writes when the stored row is already
// revoked. Revocation is one-way, so the guard lives in the write itself:
// a snapshot read before a concurrent revoke must not win the write.
var ErrRevoked = errors.New("consent is revoked")

type Repository interface {
	Create(ctx context.Context, cs *Consent) error
	GetByID(ctx context.Context, id uuid.UUID) (*Consent, error)
	// Update refuses rows that are already revoked and reports ErrRevoked.
	Update(ctx context.Context, cs *Consent) error
	// Revoke flips the one-way flag; a second revoke reports ErrRevoked.
	Revoke(ctx context.Context, id uuid.UUID) error
	Delete(ctx context.Context, id uuid.UUID) error
	List(ctx context.Context, params map[string]string, sortKey, direction string, pg pagination.Params) ([]*Consent, int, *query.Plan, error)
	ListForPatientAndOrg(ctx context.Context, patientID, orgID uuid.UUID) ([]*Consent, error)
}

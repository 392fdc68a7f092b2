package practitioner

import (
	"context"

	"github.com/google/uuid"

	"github.com/clinrec/clinrec/internal/platform/query"
	"github.com/clinrec/clinrec/pkg/pagination"
)

// LookupLimit caps the picker endpoint regardless of requested size.
const LookupLimit = 20

type Repository interface {
	Create(ctx context.Context, p *Practitioner) error
	GetByID(ctx context.Context, id uuid.UUID) (*Practitioner, error)
	Update(ctx context.Context, p *Practitioner) error
	Delete(ctx context.Context, id uuid.UUID) error
	List(ctx context.Context, params map[string]string, sortKey, direction string, pg pagination.Params) ([]*Practitioner, int, *query.Plan, error)
	Lookup(ctx context.Context, search string) ([]*LookupEntry, error)
}

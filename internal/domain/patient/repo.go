package patient

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/clinrec/clinrec/internal/platform/query"
	"github.com/clinrec/clinrec/pkg/pagination"
)

// Repository is the storage contract. Lookups exclude tombstoned rows;
// the merge primitives operate inside a caller-supplied transaction.
type Repository interface {
	Create(ctx context.Context, p *Patient) error
	GetByID(ctx context.Context, id uuid.UUID) (*Patient, error)
	GetByIdentifier(ctx context.Context, identifier string) (*Patient, error)
	FindByNameAndDOB(ctx context.Context, firstName, lastName string, dob time.Time, exclude uuid.UUID) ([]*Patient, error)
	Update(ctx context.Context, p *Patient) error
	Tombstone(ctx context.Context, id uuid.UUID, mergedInto *uuid.UUID) error
	List(ctx context.Context, params map[string]string, sortKey, direction string, pg pagination.Params) ([]*Patient, int, *query.Plan, error)

	// LockPair locks both patient rows in deterministic order so that
	// concurrent merges of the same pair serialize instead of deadlocking.
	LockPair(ctx context.Context, a, b uuid.UUID) (*Patient, *Patient, error)
	// ReassignReferences moves every child row (encounters, conditions,
	// observations, diagnostic reports, consents) from one patient to another
	// and returns the number of rows moved.
	ReassignReferences(ctx context.Context, from, to uuid.UUID) (int64, error)

	Metrics(ctx context.Context) (*MetricsReport, error)
}

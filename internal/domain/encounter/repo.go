package encounter

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/clinrec/clinrec/internal/platform/query"
	"github.com/clinrec/clinrec/pkg/pagination"
)

// ErrFinished is returned by guarded writes when the stored row has already
// reached the terminal finished status. The guard belongs to the write so a
// finish committed after our read still wins.
var ErrFinished = errors.New("encounter is finished")

type Repository interface {
	Create(ctx context.Context, e *Encounter) error
	GetByID(ctx context.Context, id uuid.UUID) (*Encounter, error)
	// Update and Delete refuse rows whose stored status is finished and
	// report ErrFinished.
	Update(ctx context.Context, e *Encounter) error
	Delete(ctx context.Context, id uuid.UUID) error
	List(ctx context.Context, params map[string]string, sortKey, direction string, pg pagination.Params) ([]*Encounter, int, *query.Plan, error)
	// LoadRelations populates the embedded refs for one page of encounters
	// with a fixed number of queries, batched over the page's ids.
	LoadRelations(ctx context.Context, encounters []*Encounter) error
}

// PractitionerDirectory answers activeness checks without coupling this
// package to the practitioner storage layer.
type PractitionerDirectory interface {
	IsActive(ctx context.Context, id uuid.UUID) (bool, error)
}

package auditevent

import (
	"context"

	"github.com/clinrec/clinrec/internal/platform/query"
	"github.com/clinrec/clinrec/pkg/pagination"
)

// Repository provides append and query access to the audit log.
// There is deliberately no update or delete.
type Repository interface {
	Create(ctx context.Context, ev *AuditEvent) error
	List(ctx context.Context, params map[string]string, sortKey, direction string, pg pagination.Params) ([]*AuditEvent, int, *query.Plan, error)
}

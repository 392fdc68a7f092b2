package auditevent

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/clinrec/clinrec/internal/platform/db"
	"github.com/clinrec/clinrec/internal/platform/query"
	"github.com/clinrec/clinrec/pkg/pagination"
)

type repoPG struct {
	pool *pgxpool.Pool
}

func NewRepo(pool *pgxpool.Pool) Repository {
	return &repoPG{pool: pool}
}

type querier interface {
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
}

func (r *repoPG) conn(ctx context.Context) querier {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

const cols = `id, user_id, user_name, action, resource_type, resource_id, details, created_at`

func (r *repoPG) Create(ctx context.Context, ev *AuditEvent) error {
	ev.ID = uuid.New()
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO audit_events (id, user_id, user_name, action, resource_type, resource_id, details)
		VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		ev.ID, ev.UserID, ev.UserName, ev.Action, ev.ResourceType, ev.ResourceID, ev.Details,
	)
	return err
}

var spec = query.Spec{
	Table:   "audit_events",
	Columns: cols,
	Filters: map[string]query.Filter{
		"user_id":       {Kind: query.KindExact, Column: "user_id"},
		"action":        {Kind: query.KindInSet, Column: "action", Allowed: []string{ActionLogin, ActionLogout, ActionView, ActionCreate, ActionUpdate, ActionDelete, ActionMerge}},
		"resource_type": {Kind: query.KindExact, Column: "resource_type"},
		"resource_id":   {Kind: query.KindExact, Column: "resource_id"},
		"from":          {Kind: query.KindDateFrom, Column: "created_at"},
		"to":            {Kind: query.KindDateTo, Column: "created_at"},
	},
	Sortable: map[string]string{
		"created_at": "created_at",
		"action":     "action",
	},
	DefaultSort: "created_at DESC",
	TieBreak:    "id DESC",
}

func (r *repoPG) List(ctx context.Context, params map[string]string, sortKey, direction string, pg pagination.Params) ([]*AuditEvent, int, *query.Plan, error) {
	plan := spec.Build(params, sortKey, direction)

	var total int
	if err := r.conn(ctx).QueryRow(ctx, plan.CountSQL(), plan.CountArgs()...).Scan(&total); err != nil {
		return nil, 0, plan, err
	}

	rows, err := r.conn(ctx).Query(ctx, plan.DataSQL(pg.PerPage, pg.Offset()), plan.DataArgs(pg.PerPage, pg.Offset())...)
	if err != nil {
		return nil, 0, plan, err
	}
	defer rows.Close()

	var events []*AuditEvent
	for rows.Next() {
		var ev AuditEvent
		if err := rows.Scan(&ev.ID, &ev.UserID, &ev.UserName, &ev.Action, &ev.ResourceType, &ev.ResourceID, &ev.Details, &ev.CreatedAt); err != nil {
			return nil, 0, plan, err
		}
		events = append(events, &ev)
	}
	return events, total, plan, rows.Err()
}

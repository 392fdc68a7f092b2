package organization

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

const cols = `id, name, type, address, phone, email, created_at, updated_at`

func (r *repoPG) Create(ctx context.Context, org *Organization) error {
	org.ID = uuid.New()
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO organizations (id, name, type, address, phone, email)
		VALUES ($1,$2,$3,$4,$5,$6)`,
		org.ID, org.Name, org.Type, org.Address, org.Phone, org.Email,
	)
	return err
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*Organization, error) {
	return scanOrg(r.conn(ctx).QueryRow(ctx, `SELECT `+cols+` FROM organizations WHERE id = $1`, id))
}

func (r *repoPG) Update(ctx context.Context, org *Organization) error {
	_, err := r.conn(ctx).Exec(ctx, `
		UPDATE organizations SET name=$2, type=$3, address=$4, phone=$5, email=$6, updated_at=NOW()
		WHERE id = $1`,
		org.ID, org.Name, org.Type, org.Address, org.Phone, org.Email,
	)
	return err
}

func (r *repoPG) Delete(ctx context.Context, id uuid.UUID) error {
	_, err := r.conn(ctx).Exec(ctx, `DELETE FROM organizations WHERE id = $1`, id)
	return err
}

var spec = query.Spec{
	Table:   "organizations",
	Columns: cols,
	Filters: map[string]query.Filter{
		"name":  {Kind: query.KindLike, Column: "name"},
		"type":  {Kind: query.KindExact, Column: "type"},
		"email": {Kind: query.KindExact, Column: "email"},
	},
	Sortable: map[string]string{
		"name":       "name",
		"created_at": "created_at",
	},
	DefaultSort: "created_at DESC",
	TieBreak:    "id DESC",
}

func (r *repoPG) List(ctx context.Context, params map[string]string, sortKey, direction string, pg pagination.Params) ([]*Organization, int, *query.Plan, error) {
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

	var orgs []*Organization
	for rows.Next() {
		var org Organization
		if err := rows.Scan(&org.ID, &org.Name, &org.Type, &org.Address, &org.Phone, &org.Email, &org.CreatedAt, &org.UpdatedAt); err != nil {
			return nil, 0, plan, err
		}
		orgs = append(orgs, &org)
	}
	return orgs, total, plan, rows.Err()
}

func scanOrg(row pgx.Row) (*Organization, error) {
	var org Organization
	err := row.Scan(&org.ID, &org.Name, &org.Type, &org.Address, &org.Phone, &org.Email, &org.CreatedAt, &org.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &org, nil
}

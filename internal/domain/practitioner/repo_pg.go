package practitioner

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

const cols = `id, identifier, first_name, last_name, specialty, phone, email, organization_id, active, created_at, updated_at`

func (r *repoPG) Create(ctx context.Context, p *Practitioner) error {
	p.ID = uuid.New()
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO practitioners (id, identifier, first_name, last_name, specialty, phone, email, organization_id, active)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
		p.ID, p.Identifier, p.FirstName, p.LastName, p.Specialty, p.Phone, p.Email, p.OrganizationID, p.Active,
	)
	return err
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*Practitioner, error) {
	return scanPractitioner(r.conn(ctx).QueryRow(ctx, `SELECT `+cols+` FROM practitioners WHERE id = $1`, id))
}

func (r *repoPG) Update(ctx context.Context, p *Practitioner) error {
	_, err := r.conn(ctx).Exec(ctx, `
		UPDATE practitioners SET
			identifier=$2, first_name=$3, last_name=$4, specialty=$5,
			phone=$6, email=$7, organization_id=$8, active=$9, updated_at=NOW()
		WHERE id = $1`,
		p.ID, p.Identifier, p.FirstName, p.LastName, p.Specialty, p.Phone, p.Email, p.OrganizationID, p.Active,
	)
	return err
}

func (r *repoPG) Delete(ctx context.Context, id uuid.UUID) error {
	_, err := r.conn(ctx).Exec(ctx, `DELETE FROM practitioners WHERE id = $1`, id)
	return err
}

var spec = query.Spec{
	Table:   "practitioners",
	Columns: cols,
	Filters: map[string]query.Filter{
		"identifier":      {Kind: query.KindExact, Column: "identifier"},
		"first_name":      {Kind: query.KindLike, Column: "first_name"},
		"last_name":       {Kind: query.KindLike, Column: "last_name"},
		"specialty":       {Kind: query.KindLike, Column: "specialty"},
		"organization_id": {Kind: query.KindExact, Column: "organization_id"},
		"active":          {Kind: query.KindBool, Column: "active"},
	},
	Sortable: map[string]string{
		"first_name": "first_name",
		"last_name":  "last_name",
		"specialty":  "specialty",
		"created_at": "created_at",
	},
	DefaultSort: "created_at DESC, first_name ASC",
	TieBreak:    "id DESC",
}

func (r *repoPG) List(ctx context.Context, params map[string]string, sortKey, direction string, pg pagination.Params) ([]*Practitioner, int, *query.Plan, error) {
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

	var out []*Practitioner
	for rows.Next() {
		p, err := collectPractitioner(rows)
		if err != nil {
			return nil, 0, plan, err
		}
		out = append(out, p)
	}
	return out, total, plan, rows.Err()
}

// Lookup serves the relational picker: active practitioners only, matched
// by name or specialty, capped at LookupLimit.
func (r *repoPG) Lookup(ctx context.Context, search string) ([]*LookupEntry, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT id, first_name || ' ' || last_name, COALESCE(specialty, '')
		FROM practitioners
		WHERE active = TRUE
		  AND (first_name ILIKE $1 OR last_name ILIKE $1 OR specialty ILIKE $1)
		ORDER BY first_name ASC, last_name ASC, id ASC
		LIMIT $2`,
		"%"+search+"%", LookupLimit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []*LookupEntry
	for rows.Next() {
		var e LookupEntry
		if err := rows.Scan(&e.ID, &e.FullName, &e.Specialty); err != nil {
			return nil, err
		}
		entries = append(entries, &e)
	}
	return entries, rows.Err()
}

func scanPractitioner(row pgx.Row) (*Practitioner, error) {
	var p Practitioner
	err := row.Scan(&p.ID, &p.Identifier, &p.FirstName, &p.LastName, &p.Specialty, &p.Phone, &p.Email, &p.OrganizationID, &p.Active, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func collectPractitioner(rows pgx.Rows) (*Practitioner, error) {
	var p Practitioner
	err := rows.Scan(&p.ID, &p.Identifier, &p.FirstName, &p.LastName, &p.Specialty, &p.Phone, &p.Email, &p.OrganizationID, &p.Active, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

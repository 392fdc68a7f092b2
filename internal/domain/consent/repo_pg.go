package consent

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

const cols = `id, patient_id, granted_to, scope, valid_from, valid_until, revoked, created_at, updated_at`

func (r *repoPG) Create(ctx context.Context, cs *Consent) error {
	cs.ID = uuid.New()
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO consents (id, patient_id, granted_to, scope, valid_from, valid_until, revoked)
		VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		cs.ID, cs.PatientID, cs.GrantedTo, cs.Scope, cs.ValidFrom, cs.ValidUntil, cs.Revoked,
	)
	return err
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*Consent, error) {
	return scanConsent(r.conn(ctx).QueryRow(ctx, `SELECT `+cols+` FROM consents WHERE id = $1`, id))
}

func (r *repoPG) Update(ctx context.Context, cs *Consent) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE consents SET
			granted_to=$2, scope=$3, valid_from=$4, valid_until=$5, updated_at=NOW()
		WHERE id = $1 AND NOT revoked`,
		cs.ID, cs.GrantedTo, cs.Scope, cs.ValidFrom, cs.ValidUntil,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrRevoked
	}
	return nil
}

func (r *repoPG) Revoke(ctx context.Context, id uuid.UUID) error {
	tag, err := r.conn(ctx).Exec(ctx,
		`UPDATE consents SET revoked=TRUE, updated_at=NOW() WHERE id = $1 AND NOT revoked`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrRevoked
	}
	return nil
}

func (r *repoPG) Delete(ctx context.Context, id uuid.UUID) error {
	_, err := r.conn(ctx).Exec(ctx, `DELETE FROM consents WHERE id = $1`, id)
	return err
}

var spec = query.Spec{
	Table:   "consents",
	Columns: cols,
	Filters: map[string]query.Filter{
		"patient_id":  {Kind: query.KindExact, Column: "patient_id"},
		"granted_to":  {Kind: query.KindExact, Column: "granted_to"},
		"scope":       {Kind: query.KindInSet, Column: "scope", Allowed: []string{ScopeFull, ScopePartial}},
		"revoked":     {Kind: query.KindBool, Column: "revoked"},
		"valid_from":  {Kind: query.KindDateFrom, Column: "valid_from"},
		"valid_until": {Kind: query.KindDateTo, Column: "valid_until"},
	},
	Sortable: map[string]string{
		"valid_from":  "valid_from",
		"valid_until": "valid_until",
		"created_at":  "created_at",
	},
	DefaultSort: "valid_from DESC",
	TieBreak:    "id DESC",
}

func (r *repoPG) List(ctx context.Context, params map[string]string, sortKey, direction string, pg pagination.Params) ([]*Consent, int, *query.Plan, error) {
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
	consents, err := collectConsents(rows)
	return consents, total, plan, err
}

func (r *repoPG) ListForPatientAndOrg(ctx context.Context, patientID, orgID uuid.UUID) ([]*Consent, error) {
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+cols+` FROM consents WHERE patient_id = $1 AND granted_to = $2 ORDER BY valid_from DESC, id DESC`,
		patientID, orgID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectConsents(rows)
}

func scanConsent(row pgx.Row) (*Consent, error) {
	var cs Consent
	err := row.Scan(&cs.ID, &cs.PatientID, &cs.GrantedTo, &cs.Scope, &cs.ValidFrom, &cs.ValidUntil, &cs.Revoked, &cs.CreatedAt, &cs.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &cs, nil
}

func collectConsents(rows pgx.Rows) ([]*Consent, error) {
	var consents []*Consent
	for rows.Next() {
		var cs Consent
		if err := rows.Scan(&cs.ID, &cs.PatientID, &cs.GrantedTo, &cs.Scope, &cs.ValidFrom, &cs.ValidUntil, &cs.Revoked, &cs.CreatedAt, &cs.UpdatedAt); err != nil {
			return nil, err
		}
		consents = append(consents, &cs)
	}
	return consents, rows.Err()
}

package observation

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

const cols = `id, encounter_id, patient_id, code, value, unit, ref_low, ref_high, observed_at, created_at, updated_at`

func (r *repoPG) Create(ctx context.Context, o *Observation) error {
	o.ID = uuid.New()
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO observations (id, encounter_id, patient_id, code, value, unit, ref_low, ref_high, observed_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
		o.ID, o.EncounterID, o.PatientID, o.Code, o.Value, o.Unit, o.RefLow, o.RefHigh, o.ObservedAt,
	)
	return err
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*Observation, error) {
	return scanObservation(r.conn(ctx).QueryRow(ctx, `SELECT `+cols+` FROM observations WHERE id = $1`, id))
}

func (r *repoPG) Update(ctx context.Context, o *Observation) error {
	_, err := r.conn(ctx).Exec(ctx, `
		UPDATE observations SET code=$2, value=$3, unit=$4, ref_low=$5, ref_high=$6, observed_at=$7, updated_at=NOW()
		WHERE id = $1`,
		o.ID, o.Code, o.Value, o.Unit, o.RefLow, o.RefHigh, o.ObservedAt,
	)
	return err
}

func (r *repoPG) Delete(ctx context.Context, id uuid.UUID) error {
	_, err := r.conn(ctx).Exec(ctx, `DELETE FROM observations WHERE id = $1`, id)
	return err
}

var spec = query.Spec{
	Table:   "observations",
	Columns: cols,
	Filters: map[string]query.Filter{
		"patient_id":   {Kind: query.KindExact, Column: "patient_id"},
		"encounter_id": {Kind: query.KindExact, Column: "encounter_id"},
		"code":         {Kind: query.KindExact, Column: "code"},
		"unit":         {Kind: query.KindExact, Column: "unit"},
		"date":         {Kind: query.KindDate, Column: "observed_at"},
		"from":         {Kind: query.KindDateFrom, Column: "observed_at"},
		"to":           {Kind: query.KindDateTo, Column: "observed_at"},
	},
	Sortable: map[string]string{
		"observed_at": "observed_at",
		"code":        "code",
		"created_at":  "created_at",
	},
	DefaultSort: "observed_at DESC",
	TieBreak:    "id DESC",
}

func (r *repoPG) List(ctx context.Context, params map[string]string, sortKey, direction string, pg pagination.Params) ([]*Observation, int, *query.Plan, error) {
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

	var observations []*Observation
	for rows.Next() {
		var o Observation
		if err := rows.Scan(&o.ID, &o.EncounterID, &o.PatientID, &o.Code, &o.Value, &o.Unit,
			&o.RefLow, &o.RefHigh, &o.ObservedAt, &o.CreatedAt, &o.UpdatedAt); err != nil {
			return nil, 0, plan, err
		}
		observations = append(observations, &o)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, plan, err
	}
	return observations, total, plan, nil
}

func scanObservation(row pgx.Row) (*Observation, error) {
	var o Observation
	err := row.Scan(&o.ID, &o.EncounterID, &o.PatientID, &o.Code, &o.Value, &o.Unit,
		&o.RefLow, &o.RefHigh, &o.ObservedAt, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &o, nil
}

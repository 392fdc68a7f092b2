package condition

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

const cols = `id, encounter_id, patient_id, code, description, recorded_date, created_at, updated_at`

func (r *repoPG) Create(ctx context.Context, c *Condition) error {
	c.ID = uuid.New()
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO conditions (id, encounter_id, patient_id, code, description, recorded_date)
		VALUES ($1,$2,$3,$4,$5,$6)`,
		c.ID, c.EncounterID, c.PatientID, c.Code, c.Description, c.RecordedDate,
	)
	return err
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*Condition, error) {
	return scanCondition(r.conn(ctx).QueryRow(ctx, `SELECT `+cols+` FROM conditions WHERE id = $1`, id))
}

func (r *repoPG) Update(ctx context.Context, c *Condition) error {
	_, err := r.conn(ctx).Exec(ctx, `
		UPDATE conditions SET code=$2, description=$3, recorded_date=$4, updated_at=NOW()
		WHERE id = $1`,
		c.ID, c.Code, c.Description, c.RecordedDate,
	)
	return err
}

func (r *repoPG) Delete(ctx context.Context, id uuid.UUID) error {
	_, err := r.conn(ctx).Exec(ctx, `DELETE FROM conditions WHERE id = $1`, id)
	return err
}

var spec = query.Spec{
	Table:   "conditions",
	Columns: cols,
	Filters: map[string]query.Filter{
		"patient_id":   {Kind: query.KindExact, Column: "patient_id"},
		"encounter_id": {Kind: query.KindExact, Column: "encounter_id"},
		"code":         {Kind: query.KindExact, Column: "code"},
		"description":  {Kind: query.KindLike, Column: "description"},
		"date":         {Kind: query.KindDate, Column: "recorded_date"},
		"from":         {Kind: query.KindDateFrom, Column: "recorded_date"},
		"to":           {Kind: query.KindDateTo, Column: "recorded_date"},
	},
	Sortable: map[string]string{
		"recorded_date": "recorded_date",
		"code":          "code",
		"created_at":    "created_at",
	},
	DefaultSort: "recorded_date DESC",
	TieBreak:    "id DESC",
}

func (r *repoPG) List(ctx context.Context, params map[string]string, sortKey, direction string, pg pagination.Params) ([]*Condition, int, *query.Plan, error) {
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

	var conditions []*Condition
	for rows.Next() {
		var c Condition
		if err := rows.Scan(&c.ID, &c.EncounterID, &c.PatientID, &c.Code, &c.Description,
			&c.RecordedDate, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, 0, plan, err
		}
		conditions = append(conditions, &c)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, plan, err
	}
	return conditions, total, plan, nil
}

func scanCondition(row pgx.Row) (*Condition, error) {
	var c Condition
	err := row.Scan(&c.ID, &c.EncounterID, &c.PatientID, &c.Code, &c.Description,
		&c.RecordedDate, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

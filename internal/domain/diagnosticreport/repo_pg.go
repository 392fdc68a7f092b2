package diagnosticreport

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

const cols = `id, patient_id, encounter_id, type, result, document, created_at, updated_at`

func (r *repoPG) Create(ctx context.Context, rep *DiagnosticReport) error {
	rep.ID = uuid.New()
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO diagnostic_reports (id, patient_id, encounter_id, type, result, document)
		VALUES ($1,$2,$3,$4,$5,$6)`,
		rep.ID, rep.PatientID, rep.EncounterID, rep.Type, rep.Result, rep.Document,
	)
	return err
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*DiagnosticReport, error) {
	return scanReport(r.conn(ctx).QueryRow(ctx, `SELECT `+cols+` FROM diagnostic_reports WHERE id = $1`, id))
}

func (r *repoPG) Update(ctx context.Context, rep *DiagnosticReport) error {
	_, err := r.conn(ctx).Exec(ctx, `
		UPDATE diagnostic_reports SET type=$2, result=$3, document=$4, updated_at=NOW()
		WHERE id = $1`,
		rep.ID, rep.Type, rep.Result, rep.Document,
	)
	return err
}

func (r *repoPG) Delete(ctx context.Context, id uuid.UUID) error {
	_, err := r.conn(ctx).Exec(ctx, `DELETE FROM diagnostic_reports WHERE id = $1`, id)
	return err
}

var spec = query.Spec{
	Table:   "diagnostic_reports",
	Columns: cols,
	Filters: map[string]query.Filter{
		"patient_id":   {Kind: query.KindExact, Column: "patient_id"},
		"encounter_id": {Kind: query.KindExact, Column: "encounter_id"},
		"type":         {Kind: query.KindExact, Column: "type"},
		"status":       {Kind: query.KindJSON, Column: "document", Path: "status"},
		"category":     {Kind: query.KindJSON, Column: "document", Path: "category"},
	},
	Sortable: map[string]string{
		"type":       "type",
		"created_at": "created_at",
	},
	DefaultSort: "created_at DESC",
	TieBreak:    "id DESC",
}

func (r *repoPG) List(ctx context.Context, params map[string]string, sortKey, direction string, pg pagination.Params) ([]*DiagnosticReport, int, *query.Plan, error) {
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

	var reports []*DiagnosticReport
	for rows.Next() {
		var rep DiagnosticReport
		if err := rows.Scan(&rep.ID, &rep.PatientID, &rep.EncounterID, &rep.Type, &rep.Result,
			&rep.Document, &rep.CreatedAt, &rep.UpdatedAt); err != nil {
			return nil, 0, plan, err
		}
		reports = append(reports, &rep)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, plan, err
	}
	return reports, total, plan, nil
}

func scanReport(row pgx.Row) (*DiagnosticReport, error) {
	var rep DiagnosticReport
	err := row.Scan(&rep.ID, &rep.PatientID, &rep.EncounterID, &rep.Type, &rep.Result,
		&rep.Document, &rep.CreatedAt, &rep.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &rep, nil
}

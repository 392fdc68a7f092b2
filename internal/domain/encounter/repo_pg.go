package encounter

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

const cols = `id, patient_id, practitioner_id, organization_id, encounter_date, encounter_type, status, reason, created_at, updated_at`

func (r *repoPG) Create(ctx context.Context, e *Encounter) error {
	e.ID = uuid.New()
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO encounters (id, patient_id, practitioner_id, organization_id, encounter_date, encounter_type, status, reason)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
		e.ID, e.PatientID, e.PractitionerID, e.OrganizationID, e.EncounterDate, e.EncounterType, e.Status, e.Reason,
	)
	return err
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*Encounter, error) {
	return scanEncounter(r.conn(ctx).QueryRow(ctx, `SELECT `+cols+` FROM encounters WHERE id = $1`, id))
}

func (r *repoPG) Update(ctx context.Context, e *Encounter) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE encounters SET
			practitioner_id=$2, organization_id=$3, encounter_date=$4,
			encounter_type=$5, status=$6, reason=$7, updated_at=NOW()
		WHERE id = $1 AND status <> $8`,
		e.ID, e.PractitionerID, e.OrganizationID, e.EncounterDate, e.EncounterType, e.Status, e.Reason,
		StatusFinished,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrFinished
	}
	return nil
}

func (r *repoPG) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.conn(ctx).Exec(ctx,
		`DELETE FROM encounters WHERE id = $1 AND status <> $2`, id, StatusFinished)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrFinished
	}
	return nil
}

var spec = query.Spec{
	Table:   "encounters",
	Columns: cols,
	Filters: map[string]query.Filter{
		"patient_id":      {Kind: query.KindExact, Column: "patient_id"},
		"practitioner_id": {Kind: query.KindExact, Column: "practitioner_id"},
		"organization_id": {Kind: query.KindExact, Column: "organization_id"},
		"encounter_type":  {Kind: query.KindExact, Column: "encounter_type"},
		"status": {Kind: query.KindInSet, Column: "status",
			Allowed: []string{StatusPlanned, StatusInProgress, StatusOnHold, StatusFinished, StatusCancelled}},
		"date": {Kind: query.KindDate, Column: "encounter_date"},
		"from": {Kind: query.KindDateFrom, Column: "encounter_date"},
		"to":   {Kind: query.KindDateTo, Column: "encounter_date"},
	},
	Sortable: map[string]string{
		"encounter_date": "encounter_date",
		"status":         "status",
		"created_at":     "created_at",
	},
	DefaultSort: "encounter_date DESC",
	TieBreak:    "id DESC",
}

func (r *repoPG) List(ctx context.Context, params map[string]string, sortKey, direction string, pg pagination.Params) ([]*Encounter, int, *query.Plan, error) {
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

	var encounters []*Encounter
	for rows.Next() {
		var e Encounter
		if err := rows.Scan(&e.ID, &e.PatientID, &e.PractitionerID, &e.OrganizationID, &e.EncounterDate,
			&e.EncounterType, &e.Status, &e.Reason, &e.CreatedAt, &e.UpdatedAt); err != nil {
			return nil, 0, plan, err
		}
		encounters = append(encounters, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, plan, err
	}
	return encounters, total, plan, nil
}

// LoadRelations fills the embedded refs with one query per relation,
// batched over the page's encounter and actor ids.
func (r *repoPG) LoadRelations(ctx context.Context, encounters []*Encounter) error {
	if len(encounters) == 0 {
		return nil
	}

	byID := make(map[uuid.UUID]*Encounter, len(encounters))
	encounterIDs := make([]uuid.UUID, 0, len(encounters))
	patientIDs := make([]uuid.UUID, 0, len(encounters))
	practitionerIDs := make([]uuid.UUID, 0, len(encounters))
	for _, e := range encounters {
		byID[e.ID] = e
		encounterIDs = append(encounterIDs, e.ID)
		patientIDs = append(patientIDs, e.PatientID)
		practitionerIDs = append(practitionerIDs, e.PractitionerID)
	}

	patients := make(map[uuid.UUID]*PatientRef)
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT id, identifier, first_name || ' ' || last_name FROM patients WHERE id = ANY($1)`, patientIDs)
	if err != nil {
		return err
	}
	for rows.Next() {
		var ref PatientRef
		if err := rows.Scan(&ref.ID, &ref.Identifier, &ref.FullName); err != nil {
			rows.Close()
			return err
		}
		patients[ref.ID] = &ref
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	practitioners := make(map[uuid.UUID]*PractitionerRef)
	rows, err = r.conn(ctx).Query(ctx,
		`SELECT id, first_name || ' ' || last_name, COALESCE(specialty, ''), active FROM practitioners WHERE id = ANY($1)`, practitionerIDs)
	if err != nil {
		return err
	}
	for rows.Next() {
		var ref PractitionerRef
		if err := rows.Scan(&ref.ID, &ref.FullName, &ref.Specialty, &ref.Active); err != nil {
			rows.Close()
			return err
		}
		practitioners[ref.ID] = &ref
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	rows, err = r.conn(ctx).Query(ctx,
		`SELECT id, encounter_id, code, value, unit, observed_at FROM observations WHERE encounter_id = ANY($1) ORDER BY observed_at DESC, id DESC`, encounterIDs)
	if err != nil {
		return err
	}
	for rows.Next() {
		var encID uuid.UUID
		var ref ObservationRef
		if err := rows.Scan(&ref.ID, &encID, &ref.Code, &ref.Value, &ref.Unit, &ref.ObservedAt); err != nil {
			rows.Close()
			return err
		}
		if e := byID[encID]; e != nil {
			e.Observations = append(e.Observations, &ref)
		}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	rows, err = r.conn(ctx).Query(ctx,
		`SELECT id, encounter_id, type FROM diagnostic_reports WHERE encounter_id = ANY($1) ORDER BY created_at DESC, id DESC`, encounterIDs)
	if err != nil {
		return err
	}
	for rows.Next() {
		var encID uuid.UUID
		var ref ReportRef
		if err := rows.Scan(&ref.ID, &encID, &ref.Type); err != nil {
			rows.Close()
			return err
		}
		if e := byID[encID]; e != nil {
			e.DiagnosticReports = append(e.DiagnosticReports, &ref)
		}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	for _, e := range encounters {
		e.Patient = patients[e.PatientID]
		e.Practitioner = practitioners[e.PractitionerID]
	}
	return nil
}

func scanEncounter(row pgx.Row) (*Encounter, error) {
	var e Encounter
	err := row.Scan(&e.ID, &e.PatientID, &e.PractitionerID, &e.OrganizationID, &e.EncounterDate,
		&e.EncounterType, &e.Status, &e.Reason, &e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &e, nil
}

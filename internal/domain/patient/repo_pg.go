package patient

import (
	"bytes"
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

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

const cols = `id, identifier, first_name, last_name, date_of_birth, gender, phone, email, address, merged_into, deleted_at, created_at, updated_at`

func (r *repoPG) Create(ctx context.Context, p *Patient) error {
	p.ID = uuid.New()
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO patients (id, identifier, first_name, last_name, date_of_birth, gender, phone, email, address)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
		p.ID, p.Identifier, p.FirstName, p.LastName, p.DateOfBirth, p.Gender, p.Phone, p.Email, p.Address,
	)
	return err
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*Patient, error) {
	return scanPatient(r.conn(ctx).QueryRow(ctx,
		`SELECT `+cols+` FROM patients WHERE id = $1 AND deleted_at IS NULL`, id))
}

func (r *repoPG) GetByIdentifier(ctx context.Context, identifier string) (*Patient, error) {
	return scanPatient(r.conn(ctx).QueryRow(ctx,
		`SELECT `+cols+` FROM patients WHERE identifier = $1 AND deleted_at IS NULL`, identifier))
}

func (r *repoPG) FindByNameAndDOB(ctx context.Context, firstName, lastName string, dob time.Time, exclude uuid.UUID) ([]*Patient, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT `+cols+` FROM patients
		WHERE LOWER(first_name) = LOWER($1) AND LOWER(last_name) = LOWER($2)
		  AND date_of_birth = $3 AND id != $4 AND deleted_at IS NULL
		ORDER BY created_at ASC, id ASC`,
		firstName, lastName, dob, exclude)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectPatients(rows)
}

func (r *repoPG) Update(ctx context.Context, p *Patient) error {
	_, err := r.conn(ctx).Exec(ctx, `
		UPDATE patients SET
			identifier=$2, first_name=$3, last_name=$4, date_of_birth=$5, gender=$6,
			phone=$7, email=$8, address=$9, updated_at=NOW()
		WHERE id = $1 AND deleted_at IS NULL`,
		p.ID, p.Identifier, p.FirstName, p.LastName, p.DateOfBirth, p.Gender, p.Phone, p.Email, p.Address,
	)
	return err
}

// Tombstone soft-deletes the row; mergedInto records the surviving patient
// when the tombstone comes from a merge.
func (r *repoPG) Tombstone(ctx context.Context, id uuid.UUID, mergedInto *uuid.UUID) error {
	_, err := r.conn(ctx).Exec(ctx,
		`UPDATE patients SET merged_into=$2, deleted_at=NOW(), updated_at=NOW() WHERE id = $1 AND deleted_at IS NULL`,
		id, mergedInto)
	return err
}

var spec = query.Spec{
	Table:   "patients",
	Columns: cols,
	Filters: map[string]query.Filter{
		"identifier":  {Kind: query.KindExact, Column: "identifier"},
		"first_name":  {Kind: query.KindLike, Column: "first_name"},
		"last_name":   {Kind: query.KindLike, Column: "last_name"},
		"gender":      {Kind: query.KindInSet, Column: "gender", Allowed: []string{"male", "female", "other", "unknown"}},
		"phone":       {Kind: query.KindLike, Column: "phone"},
		"address":     {Kind: query.KindLike, Column: "address"},
		"email":       {Kind: query.KindExact, Column: "email"},
		"born_after":  {Kind: query.KindDateFrom, Column: "date_of_birth"},
		"born_before": {Kind: query.KindDateTo, Column: "date_of_birth"},
	},
	Sortable: map[string]string{
		"identifier":    "identifier",
		"first_name":    "first_name",
		"last_name":     "last_name",
		"date_of_birth": "date_of_birth",
		"created_at":    "created_at",
	},
	DefaultSort: "created_at DESC",
	TieBreak:    "id DESC",
}

func (r *repoPG) List(ctx context.Context, params map[string]string, sortKey, direction string, pg pagination.Params) ([]*Patient, int, *query.Plan, error) {
	// name searches both name columns; ageRange becomes a birth-date window.
	// Both are handled here because they span columns the generic filter
	// table cannot express.
	name := strings.TrimSpace(params["name"])
	ageRange := strings.TrimSpace(params["ageRange"])
	delete(params, "name")
	delete(params, "ageRange")

	plan := spec.Build(params, sortKey, direction)
	plan.Add("deleted_at IS NULL")
	if name != "" {
		like := "%" + name + "%"
		plan.Add(fmt.Sprintf("(first_name ILIKE $%d OR last_name ILIKE $%d)", plan.Idx(), plan.Idx()+1), like, like)
	}
	if from, to, ok := parseAgeRange(ageRange, time.Now().UTC()); ok {
		plan.Add(fmt.Sprintf("date_of_birth > $%d", plan.Idx()), from)
		plan.Add(fmt.Sprintf("date_of_birth <= $%d", plan.Idx()), to)
	}

	var total int
	if err := r.conn(ctx).QueryRow(ctx, plan.CountSQL(), plan.CountArgs()...).Scan(&total); err != nil {
		return nil, 0, plan, err
	}

	rows, err := r.conn(ctx).Query(ctx, plan.DataSQL(pg.PerPage, pg.Offset()), plan.DataArgs(pg.PerPage, pg.Offset())...)
	if err != nil {
		return nil, 0, plan, err
	}
	defer rows.Close()
	patients, err := collectPatients(rows)
	return patients, total, plan, err
}

// parseAgeRange translates "30-40" into the matching birth-date window:
// strictly after the 41st birthday cutoff, at or before the 30th.
func parseAgeRange(s string, now time.Time) (from, to time.Time, ok bool) {
	parts := strings.SplitN(s, "-", 2)
	if len(parts) != 2 {
		return from, to, false
	}
	minAge, err1 := strconv.Atoi(strings.TrimSpace(parts[0]))
	maxAge, err2 := strconv.Atoi(strings.TrimSpace(parts[1]))
	if err1 != nil || err2 != nil || minAge < 0 || maxAge < minAge {
		return from, to, false
	}
	from = now.AddDate(-maxAge-1, 0, 0)
	to = now.AddDate(-minAge, 0, 0)
	return from, to, true
}

func (r *repoPG) LockPair(ctx context.Context, a, b uuid.UUID) (*Patient, *Patient, error) {
	first, second := a, b
	if bytes.Compare(b[:], a[:]) < 0 {
		first, second = b, a
	}

	locked := make(map[uuid.UUID]*Patient, 2)
	for _, id := range []uuid.UUID{first, second} {
		p, err := scanPatient(r.conn(ctx).QueryRow(ctx,
			`SELECT `+cols+` FROM patients WHERE id = $1 FOR UPDATE`, id))
		if err != nil {
			return nil, nil, err
		}
		locked[id] = p
	}
	return locked[a], locked[b], nil
}

func (r *repoPG) ReassignReferences(ctx context.Context, from, to uuid.UUID) (int64, error) {
	tables := []string{"encounters", "conditions", "observations", "diagnostic_reports", "consents"}
	var moved int64
	for _, table := range tables {
		tag, err := r.conn(ctx).Exec(ctx,
			fmt.Sprintf(`UPDATE %s SET patient_id = $1 WHERE patient_id = $2`, table), to, from)
		if err != nil {
			return moved, err
		}
		moved += tag.RowsAffected()
	}
	return moved, nil
}

func (r *repoPG) Metrics(ctx context.Context) (*MetricsReport, error) {
	var m MetricsReport
	err := r.conn(ctx).QueryRow(ctx, `
		SELECT
			COUNT(*),
			COUNT(*) FILTER (WHERE EXISTS (SELECT 1 FROM encounters e WHERE e.patient_id = p.id)),
			COUNT(*) FILTER (WHERE EXISTS (SELECT 1 FROM conditions c WHERE c.patient_id = p.id)),
			COUNT(*) FILTER (WHERE EXISTS (SELECT 1 FROM observations o WHERE o.patient_id = p.id))
		FROM patients p
		WHERE p.deleted_at IS NULL`).
		Scan(&m.Total, &m.WithEncounters, &m.WithConditions, &m.WithObservations)
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func scanPatient(row pgx.Row) (*Patient, error) {
	var p Patient
	err := row.Scan(&p.ID, &p.Identifier, &p.FirstName, &p.LastName, &p.DateOfBirth, &p.Gender,
		&p.Phone, &p.Email, &p.Address, &p.MergedInto, &p.DeletedAt, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func collectPatients(rows pgx.Rows) ([]*Patient, error) {
	var patients []*Patient
	for rows.Next() {
		var p Patient
		if err := rows.Scan(&p.ID, &p.Identifier, &p.FirstName, &p.LastName, &p.DateOfBirth, &p.Gender,
			&p.Phone, &p.Email, &p.Address, &p.MergedInto, &p.DeletedAt, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, err
		}
		patients = append(patients, &p)
	}
	return patients, rows.Err()
}

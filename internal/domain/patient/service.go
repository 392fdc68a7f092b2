package patient

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/clinrec/clinrec/internal/domain/auditevent"
	"github.com/clinrec/clinrec/internal/domain/consent"
	"github.com/clinrec/clinrec/internal/platform/apperr"
	"github.com/clinrec/clinrec/internal/platform/auth"
	"github.com/clinrec/clinrec/internal/platform/db"
	"github.com/clinrec/clinrec/internal/platform/query"
	"github.com/clinrec/clinrec/pkg/pagination"
)

const resourceType = "patients"

// TxRunner executes fn inside a storage transaction. Production code wires
// db.WithTx; tests substitute a pass-through.
type TxRunner func(ctx context.Context, fn func(ctx context.Context) error) error

// ConsentGate checks an actor's authority to touch a patient's records.
// Satisfied by *consent.Gate.
type ConsentGate interface {
	Authorize(ctx context.Context, actor auth.Actor, patientID uuid.UUID, scope string) error
}

type Service struct {
	repo   Repository
	audit  *auditevent.Service
	tx     TxRunner
	gate   ConsentGate
	merges prometheus.Counter
}

func NewService(repo Repository, audit *auditevent.Service, tx TxRunner, gate ConsentGate, merges prometheus.Counter) *Service {
	return &Service{repo: repo, audit: audit, tx: tx, gate: gate, merges: merges}
}

type CreateInput struct {
	Identifier  string  `json:"identifier"`
	FirstName   string  `json:"first_name"`
	LastName    string  `json:"last_name"`
	DateOfBirth string  `json:"date_of_birth"`
	Gender      string  `json:"gender"`
	Phone       *string `json:"phone"`
	Email       *string `json:"email"`
	Address     *string `json:"address"`
}

type UpdateInput struct {
	Identifier  *string `json:"identifier"`
	FirstName   *string `json:"first_name"`
	LastName    *string `json:"last_name"`
	DateOfBirth *string `json:"date_of_birth"`
	Gender      *string `json:"gender"`
	Phone       *string `json:"phone"`
	Email       *string `json:"email"`
	Address     *string `json:"address"`
}

func parseDOB(s string) (time.Time, error) {
	return time.Parse("2006-01-02", s)
}

func (in CreateInput) validate() (*Patient, error) {
	fields := map[string]string{}

	identifier := strings.TrimSpace(in.Identifier)
	if identifier == "" {
		fields["identifier"] = "required"
	} else if !identifierPattern.MatchString(identifier) {
		fields["identifier"] = "must match pattern NNNN-XX (digits, dash, uppercase letters)"
	}
	if strings.TrimSpace(in.FirstName) == "" {
		fields["first_name"] = "required"
	}
	if strings.TrimSpace(in.LastName) == "" {
		fields["last_name"] = "required"
	}
	if !validGenders[in.Gender] {
		fields["gender"] = "must be male, female, other or unknown"
	}

	var dob time.Time
	if in.DateOfBirth == "" {
		fields["date_of_birth"] = "required"
	} else {
		var err error
		dob, err = parseDOB(in.DateOfBirth)
		switch {
		case err != nil:
			fields["date_of_birth"] = "must be a date in YYYY-MM-DD form"
		case dob.After(time.Now().UTC()):
			fields["date_of_birth"] = "must not be in the future"
		}
	}

	if len(fields) > 0 {
		return nil, apperr.Validation("invalid patient", fields)
	}

	return &Patient{
		Identifier:  identifier,
		FirstName:   strings.TrimSpace(in.FirstName),
		LastName:    strings.TrimSpace(in.LastName),
		DateOfBirth: dob,
		Gender:      in.Gender,
		Phone:       in.Phone,
		Email:       in.Email,
		Address:     in.Address,
	}, nil
}

// Create validates the draft, then runs the duplicate check and the insert
// inside one transaction so concurrent submissions cannot both pass the
// check. The unique index on identifier backstops the race regardless.
func (s *Service) Create(ctx context.Context, actor auth.Actor, in CreateInput) (*Patient, error) {
	p, err := in.validate()
	if err != nil {
		return nil, err
	}

	err = s.tx(ctx, func(ctx context.Context) error {
		if existing, err := s.repo.GetByIdentifier(ctx, p.Identifier); err == nil && existing != nil {
			return apperr.Conflict("patient with identifier %s already exists", p.Identifier)
		}
		twins, err := s.repo.FindByNameAndDOB(ctx, p.FirstName, p.LastName, p.DateOfBirth, uuid.Nil)
		if err != nil {
			return apperr.Storage("duplicate check", err)
		}
		if len(twins) > 0 {
			return apperr.Conflict("patient %s %s born %s already exists; merge or adjust the record",
				p.FirstName, p.LastName, p.DateOfBirth.Format("2006-01-02"))
		}
		if err := s.repo.Create(ctx, p); err != nil {
			if db.UniqueViolation(err, "patients_identifier_key") {
				return apperr.Conflict("patient with identifier %s already exists", p.Identifier)
			}
			return apperr.Storage("create patient", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.audit.Record(ctx, actor, auditevent.ActionCreate, resourceType, p.ID.String(), map[string]interface{}{
		"identifier": p.Identifier,
	})
	return p, nil
}

func (s *Service) Get(ctx context.Context, actor auth.Actor, id uuid.UUID) (*Patient, error) {
	p, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, apperr.NotFound("patient")
	}
	s.audit.Record(ctx, actor, auditevent.ActionView, resourceType, id.String(), nil)
	return p, nil
}

func (s *Service) Update(ctx context.Context, actor auth.Actor, id uuid.UUID, in UpdateInput) (*Patient, error) {
	p, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, apperr.NotFound("patient")
	}
	if err := s.gate.Authorize(ctx, actor, id, consent.ScopeFull); err != nil {
		return nil, err
	}

	changed := map[string]interface{}{}
	if in.Identifier != nil {
		identifier := strings.TrimSpace(*in.Identifier)
		if !identifierPattern.MatchString(identifier) {
			return nil, apperr.Validationf("identifier", "must match pattern NNNN-XX (digits, dash, uppercase letters)")
		}
		p.Identifier = identifier
		changed["identifier"] = identifier
	}
	if in.FirstName != nil {
		if strings.TrimSpace(*in.FirstName) == "" {
			return nil, apperr.Validationf("first_name", "must not be empty")
		}
		p.FirstName = strings.TrimSpace(*in.FirstName)
		changed["first_name"] = p.FirstName
	}
	if in.LastName != nil {
		if strings.TrimSpace(*in.LastName) == "" {
			return nil, apperr.Validationf("last_name", "must not be empty")
		}
		p.LastName = strings.TrimSpace(*in.LastName)
		changed["last_name"] = p.LastName
	}
	if in.DateOfBirth != nil {
		dob, err := parseDOB(*in.DateOfBirth)
		if err != nil {
			return nil, apperr.Validationf("date_of_birth", "must be a date in YYYY-MM-DD form")
		}
		p.DateOfBirth = dob
		changed["date_of_birth"] = *in.DateOfBirth
	}
	if in.Gender != nil {
		if !validGenders[*in.Gender] {
			return nil, apperr.Validationf("gender", "must be male, female, other or unknown")
		}
		p.Gender = *in.Gender
		changed["gender"] = *in.Gender
	}
	if in.Phone != nil {
		p.Phone = in.Phone
		changed["phone"] = *in.Phone
	}
	if in.Email != nil {
		p.Email = in.Email
		changed["email"] = *in.Email
	}
	if in.Address != nil {
		p.Address = in.Address
		changed["address"] = *in.Address
	}

	if err := s.repo.Update(ctx, p); err != nil {
		if db.UniqueViolation(err, "patients_identifier_key") {
			return nil, apperr.Conflict("patient with identifier %s already exists", p.Identifier)
		}
		return nil, apperr.Storage("update patient", err)
	}
	s.audit.Record(ctx, actor, auditevent.ActionUpdate, resourceType, p.ID.String(), changed)
	return p, nil
}

// Delete tombstones the patient; history and audit references stay intact.
func (s *Service) Delete(ctx context.Context, actor auth.Actor, id uuid.UUID) error {
	if _, err := s.repo.GetByID(ctx, id); err != nil {
		return apperr.NotFound("patient")
	}
	if err := s.gate.Authorize(ctx, actor, id, consent.ScopeFull); err != nil {
		return err
	}
	if err := s.repo.Tombstone(ctx, id, nil); err != nil {
		return apperr.Storage("delete patient", err)
	}
	s.audit.Record(ctx, actor, auditevent.ActionDelete, resourceType, id.String(), nil)
	return nil
}

func (s *Service) List(ctx context.Context, params map[string]string, sortKey, direction string, pg pagination.Params) ([]*Patient, int, *query.Plan, error) {
	patients, total, plan, err := s.repo.List(ctx, params, sortKey, direction, pg)
	if err != nil {
		return nil, 0, plan, apperr.Storage("list patients", err)
	}
	return patients, total, plan, nil
}

func (s *Service) Metrics(ctx context.Context) (*MetricsReport, error) {
	m, err := s.repo.Metrics(ctx)
	if err != nil {
		return nil, apperr.Storage("patient metrics", err)
	}
	return m, nil
}

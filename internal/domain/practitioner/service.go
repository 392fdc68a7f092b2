package practitioner

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"github.com/clinrec/clinrec/internal/domain/auditevent"
	"github.com/clinrec/clinrec/internal/platform/apperr"
	"github.com/clinrec/clinrec/internal/platform/auth"
	"github.com/clinrec/clinrec/internal/platform/db"
	"github.com/clinrec/clinrec/internal/platform/query"
	"github.com/clinrec/clinrec/pkg/pagination"
)

const resourceType = "practitioners"

type Service struct {
	repo  Repository
	audit *auditevent.Service
}

func NewService(repo Repository, audit *auditevent.Service) *Service {
	return &Service{repo: repo, audit: audit}
}

type CreateInput struct {
	Identifier     string     `json:"identifier"`
	FirstName      string     `json:"first_name"`
	LastName       string     `json:"last_name"`
	Specialty      *string    `json:"specialty"`
	Phone          *string    `json:"phone"`
	Email          *string    `json:"email"`
	OrganizationID *uuid.UUID `json:"organization_id"`
	Active         *bool      `json:"active"`
}

type UpdateInput struct {
	Identifier     *string    `json:"identifier"`
	FirstName      *string    `json:"first_name"`
	LastName       *string    `json:"last_name"`
	Specialty      *string    `json:"specialty"`
	Phone          *string    `json:"phone"`
	Email          *string    `json:"email"`
	OrganizationID *uuid.UUID `json:"organization_id"`
	Active         *bool      `json:"active"`
}

func (s *Service) Create(ctx context.Context, actor auth.Actor, in CreateInput) (*Practitioner, error) {
	fields := map[string]string{}
	if strings.TrimSpace(in.Identifier) == "" {
		fields["identifier"] = "required"
	}
	if strings.TrimSpace(in.FirstName) == "" {
		fields["first_name"] = "required"
	}
	if strings.TrimSpace(in.LastName) == "" {
		fields["last_name"] = "required"
	}
	if len(fields) > 0 {
		return nil, apperr.Validation("invalid practitioner", fields)
	}

	p := &Practitioner{
		Identifier:     strings.TrimSpace(in.Identifier),
		FirstName:      strings.TrimSpace(in.FirstName),
		LastName:       strings.TrimSpace(in.LastName),
		Specialty:      in.Specialty,
		Phone:          in.Phone,
		Email:          in.Email,
		OrganizationID: in.OrganizationID,
		Active:         true,
	}
	if in.Active != nil {
		p.Active = *in.Active
	}

	if err := s.repo.Create(ctx, p); err != nil {
		if db.UniqueViolation(err, "practitioners_identifier_key") {
			return nil, apperr.Conflict("practitioner with identifier %s already exists", p.Identifier)
		}
		return nil, apperr.Storage("create practitioner", err)
	}
	s.audit.Record(ctx, actor, auditevent.ActionCreate, resourceType, p.ID.String(), map[string]interface{}{
		"identifier": p.Identifier,
	})
	return p, nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Practitioner, error) {
	p, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, apperr.NotFound("practitioner")
	}
	return p, nil
}

func (s *Service) Update(ctx context.Context, actor auth.Actor, id uuid.UUID, in UpdateInput) (*Practitioner, error) {
	p, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, apperr.NotFound("practitioner")
	}

	changed := map[string]interface{}{}
	if in.Identifier != nil {
		if strings.TrimSpace(*in.Identifier) == "" {
			return nil, apperr.Validationf("identifier", "must not be empty")
		}
		p.Identifier = strings.TrimSpace(*in.Identifier)
		changed["identifier"] = p.Identifier
	}
	if in.FirstName != nil {
		p.FirstName = strings.TrimSpace(*in.FirstName)
		changed["first_name"] = p.FirstName
	}
	if in.LastName != nil {
		p.LastName = strings.TrimSpace(*in.LastName)
		changed["last_name"] = p.LastName
	}
	if in.Specialty != nil {
		p.Specialty = in.Specialty
		changed["specialty"] = *in.Specialty
	}
	if in.Phone != nil {
		p.Phone = in.Phone
		changed["phone"] = *in.Phone
	}
	if in.Email != nil {
		p.Email = in.Email
		changed["email"] = *in.Email
	}
	if in.OrganizationID != nil {
		p.OrganizationID = in.OrganizationID
		changed["organization_id"] = in.OrganizationID.String()
	}
	if in.Active != nil {
		p.Active = *in.Active
		changed["active"] = *in.Active
	}

	if err := s.repo.Update(ctx, p); err != nil {
		if db.UniqueViolation(err, "practitioners_identifier_key") {
			return nil, apperr.Conflict("practitioner with identifier %s already exists", p.Identifier)
		}
		return nil, apperr.Storage("update practitioner", err)
	}
	s.audit.Record(ctx, actor, auditevent.ActionUpdate, resourceType, p.ID.String(), changed)
	return p, nil
}

func (s *Service) Delete(ctx context.Context, actor auth.Actor, id uuid.UUID) error {
	if _, err := s.repo.GetByID(ctx, id); err != nil {
		return apperr.NotFound("practitioner")
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return apperr.Storage("delete practitioner", err)
	}
	s.audit.Record(ctx, actor, auditevent.ActionDelete, resourceType, id.String(), nil)
	return nil
}

func (s *Service) List(ctx context.Context, params map[string]string, sortKey, direction string, pg pagination.Params) ([]*Practitioner, int, *query.Plan, error) {
	out, total, plan, err := s.repo.List(ctx, params, sortKey, direction, pg)
	if err != nil {
		return nil, 0, plan, apperr.Storage("list practitioners", err)
	}
	return out, total, plan, nil
}

// IsActive reports whether the practitioner exists and is active.
func (s *Service) IsActive(ctx context.Context, id uuid.UUID) (bool, error) {
	p, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return false, apperr.NotFound("practitioner")
	}
	return p.Active, nil
}

func (s *Service) Lookup(ctx context.Context, search string) ([]*LookupEntry, error) {
	entries, err := s.repo.Lookup(ctx, strings.TrimSpace(search))
	if err != nil {
		return nil, apperr.Storage("lookup practitioners", err)
	}
	return entries, nil
}

package organization

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"github.com/clinrec/clinrec/internal/domain/auditevent"
	"github.com/clinrec/clinrec/internal/platform/apperr"
	"github.com/clinrec/clinrec/internal/platform/auth"
	"github.com/clinrec/clinrec/internal/platform/query"
	"github.com/clinrec/clinrec/pkg/pagination"
)

const resourceType = "organizations"

type Service struct {
	repo  Repository
	audit *auditevent.Service
}

func NewService(repo Repository, audit *auditevent.Service) *Service {
	return &Service{repo: repo, audit: audit}
}

type CreateInput struct {
	Name    string  `json:"name"`
	Type    *string `json:"type"`
	Address *string `json:"address"`
	Phone   *string `json:"phone"`
	Email   *string `json:"email"`
}

type UpdateInput struct {
	Name    *string `json:"name"`
	Type    *string `json:"type"`
	Address *string `json:"address"`
	Phone   *string `json:"phone"`
	Email   *string `json:"email"`
}

func (s *Service) Create(ctx context.Context, actor auth.Actor, in CreateInput) (*Organization, error) {
	if strings.TrimSpace(in.Name) == "" {
		return nil, apperr.Validationf("name", "required")
	}

	org := &Organization{
		Name:    strings.TrimSpace(in.Name),
		Type:    in.Type,
		Address: in.Address,
		Phone:   in.Phone,
		Email:   in.Email,
	}
	if err := s.repo.Create(ctx, org); err != nil {
		return nil, apperr.Storage("create organization", err)
	}
	s.audit.Record(ctx, actor, auditevent.ActionCreate, resourceType, org.ID.String(), map[string]interface{}{
		"name": org.Name,
	})
	return org, nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Organization, error) {
	org, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, apperr.NotFound("organization")
	}
	return org, nil
}

func (s *Service) Update(ctx context.Context, actor auth.Actor, id uuid.UUID, in UpdateInput) (*Organization, error) {
	org, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, apperr.NotFound("organization")
	}

	changed := map[string]interface{}{}
	if in.Name != nil {
		if strings.TrimSpace(*in.Name) == "" {
			return nil, apperr.Validationf("name", "must not be empty")
		}
		org.Name = strings.TrimSpace(*in.Name)
		changed["name"] = org.Name
	}
	if in.Type != nil {
		org.Type = in.Type
		changed["type"] = *in.Type
	}
	if in.Address != nil {
		org.Address = in.Address
		changed["address"] = *in.Address
	}
	if in.Phone != nil {
		org.Phone = in.Phone
		changed["phone"] = *in.Phone
	}
	if in.Email != nil {
		org.Email = in.Email
		changed["email"] = *in.Email
	}

	if err := s.repo.Update(ctx, org); err != nil {
		return nil, apperr.Storage("update organization", err)
	}
	s.audit.Record(ctx, actor, auditevent.ActionUpdate, resourceType, org.ID.String(), changed)
	return org, nil
}

func (s *Service) Delete(ctx context.Context, actor auth.Actor, id uuid.UUID) error {
	if _, err := s.repo.GetByID(ctx, id); err != nil {
		return apperr.NotFound("organization")
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return apperr.Storage("delete organization", err)
	}
	s.audit.Record(ctx, actor, auditevent.ActionDelete, resourceType, id.String(), nil)
	return nil
}

func (s *Service) List(ctx context.Context, params map[string]string, sortKey, direction string, pg pagination.Params) ([]*Organization, int, *query.Plan, error) {
	orgs, total, plan, err := s.repo.List(ctx, params, sortKey, direction, pg)
	if err != nil {
		return nil, 0, plan, apperr.Storage("list organizations", err)
	}
	return orgs, total, plan, nil
}

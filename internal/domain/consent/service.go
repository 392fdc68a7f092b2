package consent

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/clinrec/clinrec/internal/domain/auditevent"
	"github.com/clinrec/clinrec/internal/platform/apperr"
	"github.com/clinrec/clinrec/internal/platform/auth"
	"github.com/clinrec/clinrec/internal/platform/query"
	"github.com/clinrec/clinrec/pkg/pagination"
)

const resourceType = "consents"

type Service struct {
	repo  Repository
	audit *auditevent.Service
}

func NewService(repo Repository, audit *auditevent.Service) *Service {
	return &Service{repo: repo, audit: audit}
}

// CreateInput carries the validated fields for a new consent.
type CreateInput struct {
	PatientID  uuid.UUID `json:"patient_id"`
	GrantedTo  uuid.UUID `json:"granted_to"`
	Scope      string    `json:"scope"`
	ValidFrom  time.Time `json:"valid_from"`
	ValidUntil time.Time `json:"valid_until"`
}

// UpdateInput carries a partial update: only non-nil fields are applied.
type UpdateInput struct {
	GrantedTo  *uuid.UUID `json:"granted_to"`
	Scope      *string    `json:"scope"`
	ValidFrom  *time.Time `json:"valid_from"`
	ValidUntil *time.Time `json:"valid_until"`
}

func validScope(s string) bool { return s == ScopeFull || s == ScopePartial }

func (s *Service) Create(ctx context.Context, actor auth.Actor, in CreateInput) (*Consent, error) {
	fields := map[string]string{}
	if in.PatientID == uuid.Nil {
		fields["patient_id"] = "required"
	}
	if in.GrantedTo == uuid.Nil {
		fields["granted_to"] = "required"
	}
	if !validScope(in.Scope) {
		fields["scope"] = "must be completo or parcial"
	}
	if in.ValidFrom.IsZero() || in.ValidUntil.IsZero() {
		fields["valid_from"] = "valid_from and valid_until are required"
	} else if in.ValidUntil.Before(in.ValidFrom) {
		fields["valid_until"] = "must not precede valid_from"
	}
	if len(fields) > 0 {
		return nil, apperr.Validation("invalid consent", fields)
	}

	cs := &Consent{
		PatientID:  in.PatientID,
		GrantedTo:  in.GrantedTo,
		Scope:      in.Scope,
		ValidFrom:  in.ValidFrom,
		ValidUntil: in.ValidUntil,
	}
	if err := s.repo.Create(ctx, cs); err != nil {
		return nil, apperr.Storage("create consent", err)
	}
	s.audit.Record(ctx, actor, auditevent.ActionCreate, resourceType, cs.ID.String(), map[string]interface{}{
		"patient_id": cs.PatientID.String(),
		"granted_to": cs.GrantedTo.String(),
		"scope":      cs.Scope,
	})
	return cs, nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Consent, error) {
	cs, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, apperr.NotFound("consent")
	}
	return cs, nil
}

func (s *Service) Update(ctx context.Context, actor auth.Actor, id uuid.UUID, in UpdateInput) (*Consent, error) {
	cs, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, apperr.NotFound("consent")
	}
	if cs.Revoked {
		return nil, apperr.Conflict("consent is revoked and cannot be modified")
	}

	// Validate the merged shape before touching the fetched entity: a
	// rejected update must leave it exactly as read.
	if in.Scope != nil && !validScope(*in.Scope) {
		return nil, apperr.Validationf("scope", "must be completo or parcial")
	}
	from, until := cs.ValidFrom, cs.ValidUntil
	if in.ValidFrom != nil {
		from = *in.ValidFrom
	}
	if in.ValidUntil != nil {
		until = *in.ValidUntil
	}
	if until.Before(from) {
		return nil, apperr.Validationf("valid_until", "must not precede valid_from")
	}

	changed := map[string]interface{}{}
	if in.GrantedTo != nil {
		cs.GrantedTo = *in.GrantedTo
		changed["granted_to"] = in.GrantedTo.String()
	}
	if in.Scope != nil {
		cs.Scope = *in.Scope
		changed["scope"] = *in.Scope
	}
	if in.ValidFrom != nil {
		cs.ValidFrom = *in.ValidFrom
		changed["valid_from"] = in.ValidFrom
	}
	if in.ValidUntil != nil {
		cs.ValidUntil = *in.ValidUntil
		changed["valid_until"] = in.ValidUntil
	}

	if err := s.repo.Update(ctx, cs); err != nil {
		if errors.Is(err, ErrRevoked) {
			return nil, apperr.Conflict("consent is revoked and cannot be modified")
		}
		return nil, apperr.Storage("update consent", err)
	}
	s.audit.Record(ctx, actor, auditevent.ActionUpdate, resourceType, cs.ID.String(), changed)
	return cs, nil
}

// Revoke is one-way: once revoked, a consent can never return to any
// other state, and repeat attempts are conflicts. The flip happens as a
// guarded write so a revoke that lands between our read and write still
// sticks.
func (s *Service) Revoke(ctx context.Context, actor auth.Actor, id uuid.UUID) (*Consent, error) {
	cs, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, apperr.NotFound("consent")
	}
	if cs.Revoked {
		return nil, apperr.Conflict("consent already revoked")
	}

	if err := s.repo.Revoke(ctx, id); err != nil {
		if errors.Is(err, ErrRevoked) {
			return nil, apperr.Conflict("consent already revoked")
		}
		return nil, apperr.Storage("revoke consent", err)
	}
	cs.Revoked = true
	s.audit.Record(ctx, actor, auditevent.ActionUpdate, resourceType, cs.ID.String(), map[string]interface{}{
		"revoked": true,
	})
	return cs, nil
}

func (s *Service) Delete(ctx context.Context, actor auth.Actor, id uuid.UUID) error {
	if _, err := s.repo.GetByID(ctx, id); err != nil {
		return apperr.NotFound("consent")
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return apperr.Storage("delete consent", err)
	}
	s.audit.Record(ctx, actor, auditevent.ActionDelete, resourceType, id.String(), nil)
	return nil
}

func (s *Service) List(ctx context.Context, params map[string]string, sortKey, direction string, pg pagination.Params) ([]*Consent, int, *query.Plan, error) {
	consents, total, plan, err := s.repo.List(ctx, params, sortKey, direction, pg)
	if err != nil {
		return nil, 0, plan, apperr.Storage("list consents", err)
	}
	return consents, total, plan, nil
}

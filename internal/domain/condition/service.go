package condition

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/clinrec/clinrec/internal/domain/auditevent"
	"github.com/clinrec/clinrec/internal/domain/consent"
	"github.com/clinrec/clinrec/internal/platform/apperr"
	"github.com/clinrec/clinrec/internal/platform/auth"
	"github.com/clinrec/clinrec/internal/platform/query"
	"github.com/clinrec/clinrec/pkg/pagination"
)

const resourceType = "conditions"

// ConsentGate checks an actor's authority to touch a patient's records.
// Satisfied by *consent.Gate.
type ConsentGate interface {
	Authorize(ctx context.Context, actor auth.Actor, patientID uuid.UUID, scope string) error
}

type Service struct {
	repo       Repository
	encounters EncounterResolver
	gate       ConsentGate
	audit      *auditevent.Service
}

func NewService(repo Repository, encounters EncounterResolver, gate ConsentGate, audit *auditevent.Service) *Service {
	return &Service{repo: repo, encounters: encounters, gate: gate, audit: audit}
}

type CreateInput struct {
	EncounterID  *uuid.UUID `json:"encounter_id"`
	PatientID    *uuid.UUID `json:"patient_id"`
	Code         string     `json:"code"`
	Description  *string    `json:"description"`
	RecordedDate *string    `json:"recorded_date"`
}

type UpdateInput struct {
	Code         *string `json:"code"`
	Description  *string `json:"description"`
	RecordedDate *string `json:"recorded_date"`
}

func (s *Service) Create(ctx context.Context, actor auth.Actor, in CreateInput) (*Condition, error) {
	fields := map[string]string{}
	if in.EncounterID == nil {
		fields["encounter_id"] = "required"
	}
	if strings.TrimSpace(in.Code) == "" {
		fields["code"] = "required"
	}
	var recorded *time.Time
	if in.RecordedDate != nil {
		t, err := time.Parse("2006-01-02", *in.RecordedDate)
		if err != nil {
			fields["recorded_date"] = "must be a valid date (YYYY-MM-DD)"
		} else {
			recorded = &t
		}
	}
	if len(fields) > 0 {
		return nil, apperr.Validation("validation failed", fields)
	}

	owner, err := s.encounters.PatientOf(ctx, *in.EncounterID)
	if err != nil {
		return nil, err
	}
	if in.PatientID != nil && *in.PatientID != owner {
		return nil, apperr.Validationf("patient_id", "does not match the encounter's patient")
	}
	if err := s.gate.Authorize(ctx, actor, owner, consent.ScopeFull); err != nil {
		return nil, err
	}

	c := &Condition{
		EncounterID:  *in.EncounterID,
		PatientID:    owner,
		Code:         strings.TrimSpace(in.Code),
		Description:  in.Description,
		RecordedDate: recorded,
	}
	if err := s.repo.Create(ctx, c); err != nil {
		return nil, apperr.Storage("create condition", err)
	}
	s.audit.Record(ctx, actor, auditevent.ActionCreate, resourceType, c.ID.String(), map[string]interface{}{
		"patient_id": c.PatientID.String(),
		"code":       c.Code,
	})
	return c, nil
}

func (s *Service) Get(ctx context.Context, actor auth.Actor, id uuid.UUID) (*Condition, error) {
	c, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, apperr.NotFound("condition")
	}
	s.audit.Record(ctx, actor, auditevent.ActionView, resourceType, id.String(), nil)
	return c, nil
}

func (s *Service) Update(ctx context.Context, actor auth.Actor, id uuid.UUID, in UpdateInput) (*Condition, error) {
	c, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, apperr.NotFound("condition")
	}
	if err := s.gate.Authorize(ctx, actor, c.PatientID, consent.ScopeFull); err != nil {
		return nil, err
	}

	changed := map[string]interface{}{}
	if in.Code != nil {
		if strings.TrimSpace(*in.Code) == "" {
			return nil, apperr.Validationf("code", "must not be empty")
		}
		c.Code = strings.TrimSpace(*in.Code)
		changed["code"] = c.Code
	}
	if in.Description != nil {
		c.Description = in.Description
		changed["description"] = *in.Description
	}
	if in.RecordedDate != nil {
		t, err := time.Parse("2006-01-02", *in.RecordedDate)
		if err != nil {
			return nil, apperr.Validationf("recorded_date", "must be a valid date (YYYY-MM-DD)")
		}
		c.RecordedDate = &t
		changed["recorded_date"] = *in.RecordedDate
	}

	if err := s.repo.Update(ctx, c); err != nil {
		return nil, apperr.Storage("update condition", err)
	}
	s.audit.Record(ctx, actor, auditevent.ActionUpdate, resourceType, c.ID.String(), changed)
	return c, nil
}

func (s *Service) Delete(ctx context.Context, actor auth.Actor, id uuid.UUID) error {
	c, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return apperr.NotFound("condition")
	}
	if err := s.gate.Authorize(ctx, actor, c.PatientID, consent.ScopeFull); err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return apperr.Storage("delete condition", err)
	}
	s.audit.Record(ctx, actor, auditevent.ActionDelete, resourceType, id.String(), nil)
	return nil
}

func (s *Service) List(ctx context.Context, params map[string]string, sortKey, direction string, pg pagination.Params) ([]*Condition, int, *query.Plan, error) {
	conditions, total, plan, err := s.repo.List(ctx, params, sortKey, direction, pg)
	if err != nil {
		return nil, 0, plan, apperr.Storage("list conditions", err)
	}
	return conditions, total, plan, nil
}

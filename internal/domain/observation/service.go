package observation

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

const resourceType = "observations"

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
	EncounterID *uuid.UUID `json:"encounter_id"`
	PatientID   *uuid.UUID `json:"patient_id"`
	Code        string     `json:"code"`
	Value       string     `json:"value"`
	Unit        *string    `json:"unit"`
	RefLow      *float64   `json:"ref_low"`
	RefHigh     *float64   `json:"ref_high"`
	ObservedAt  *string    `json:"observed_at"`
}

type UpdateInput struct {
	Code       *string  `json:"code"`
	Value      *string  `json:"value"`
	Unit       *string  `json:"unit"`
	RefLow     *float64 `json:"ref_low"`
	RefHigh    *float64 `json:"ref_high"`
	ObservedAt *string  `json:"observed_at"`
}

func (s *Service) Create(ctx context.Context, actor auth.Actor, in CreateInput) (*Observation, error) {
	fields := map[string]string{}
	if in.EncounterID == nil {
		fields["encounter_id"] = "required"
	}
	if strings.TrimSpace(in.Code) == "" {
		fields["code"] = "required"
	}
	if strings.TrimSpace(in.Value) == "" {
		fields["value"] = "required"
	}
	if in.RefLow != nil && in.RefHigh != nil && *in.RefLow > *in.RefHigh {
		fields["ref_low"] = "must not exceed ref_high"
	}
	var observed *time.Time
	if in.ObservedAt != nil {
		t, err := parseWhen(*in.ObservedAt)
		if err != nil {
			fields["observed_at"] = "must be a valid timestamp"
		} else {
			observed = &t
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

	o := &Observation{
		EncounterID: *in.EncounterID,
		PatientID:   owner,
		Code:        strings.TrimSpace(in.Code),
		Value:       strings.TrimSpace(in.Value),
		Unit:        in.Unit,
		RefLow:      in.RefLow,
		RefHigh:     in.RefHigh,
		ObservedAt:  observed,
	}
	if err := s.repo.Create(ctx, o); err != nil {
		return nil, apperr.Storage("create observation", err)
	}
	s.audit.Record(ctx, actor, auditevent.ActionCreate, resourceType, o.ID.String(), map[string]interface{}{
		"patient_id": o.PatientID.String(),
		"code":       o.Code,
	})
	return o, nil
}

func (s *Service) Get(ctx context.Context, actor auth.Actor, id uuid.UUID) (*Observation, error) {
	o, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, apperr.NotFound("observation")
	}
	s.audit.Record(ctx, actor, auditevent.ActionView, resourceType, id.String(), nil)
	return o, nil
}

func (s *Service) Update(ctx context.Context, actor auth.Actor, id uuid.UUID, in UpdateInput) (*Observation, error) {
	o, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, apperr.NotFound("observation")
	}
	if err := s.gate.Authorize(ctx, actor, o.PatientID, consent.ScopeFull); err != nil {
		return nil, err
	}

	// Validate the merged shape before touching the fetched entity: a
	// rejected update must leave it exactly as read.
	if in.Code != nil && strings.TrimSpace(*in.Code) == "" {
		return nil, apperr.Validationf("code", "must not be empty")
	}
	if in.Value != nil && strings.TrimSpace(*in.Value) == "" {
		return nil, apperr.Validationf("value", "must not be empty")
	}
	low, high := o.RefLow, o.RefHigh
	if in.RefLow != nil {
		low = in.RefLow
	}
	if in.RefHigh != nil {
		high = in.RefHigh
	}
	if low != nil && high != nil && *low > *high {
		return nil, apperr.Validationf("ref_low", "must not exceed ref_high")
	}
	var observed *time.Time
	if in.ObservedAt != nil {
		t, err := parseWhen(*in.ObservedAt)
		if err != nil {
			return nil, apperr.Validationf("observed_at", "must be a valid timestamp")
		}
		observed = &t
	}

	changed := map[string]interface{}{}
	if in.Code != nil {
		o.Code = strings.TrimSpace(*in.Code)
		changed["code"] = o.Code
	}
	if in.Value != nil {
		o.Value = strings.TrimSpace(*in.Value)
		changed["value"] = o.Value
	}
	if in.Unit != nil {
		o.Unit = in.Unit
		changed["unit"] = *in.Unit
	}
	if in.RefLow != nil {
		o.RefLow = in.RefLow
		changed["ref_low"] = *in.RefLow
	}
	if in.RefHigh != nil {
		o.RefHigh = in.RefHigh
		changed["ref_high"] = *in.RefHigh
	}
	if observed != nil {
		o.ObservedAt = observed
		changed["observed_at"] = *in.ObservedAt
	}

	if err := s.repo.Update(ctx, o); err != nil {
		return nil, apperr.Storage("update observation", err)
	}
	s.audit.Record(ctx, actor, auditevent.ActionUpdate, resourceType, o.ID.String(), changed)
	return o, nil
}

func (s *Service) Delete(ctx context.Context, actor auth.Actor, id uuid.UUID) error {
	o, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return apperr.NotFound("observation")
	}
	if err := s.gate.Authorize(ctx, actor, o.PatientID, consent.ScopeFull); err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return apperr.Storage("delete observation", err)
	}
	s.audit.Record(ctx, actor, auditevent.ActionDelete, resourceType, id.String(), nil)
	return nil
}

func (s *Service) List(ctx context.Context, params map[string]string, sortKey, direction string, pg pagination.Params) ([]*Observation, int, *query.Plan, error) {
	observations, total, plan, err := s.repo.List(ctx, params, sortKey, direction, pg)
	if err != nil {
		return nil, 0, plan, apperr.Storage("list observations", err)
	}
	return observations, total, plan, nil
}

func parseWhen(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02", s)
}

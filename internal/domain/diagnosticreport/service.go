package diagnosticreport

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"github.com/clinrec/clinrec/internal/domain/auditevent"
	"github.com/clinrec/clinrec/internal/domain/consent"
	"github.com/clinrec/clinrec/internal/platform/apperr"
	"github.com/clinrec/clinrec/internal/platform/auth"
	"github.com/clinrec/clinrec/internal/platform/query"
	"github.com/clinrec/clinrec/pkg/pagination"
)

const resourceType = "diagnostic_reports"

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
	Type        string     `json:"type"`
	Result      *string    `json:"result"`
	Document    *Document  `json:"document"`
}

type UpdateInput struct {
	Type     *string   `json:"type"`
	Result   *string   `json:"result"`
	Document *Document `json:"document"`
}

func (s *Service) Create(ctx context.Context, actor auth.Actor, in CreateInput) (*DiagnosticReport, error) {
	fields := map[string]string{}
	if in.EncounterID == nil {
		fields["encounter_id"] = "required"
	}
	if strings.TrimSpace(in.Type) == "" {
		fields["type"] = "required"
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

	rep := &DiagnosticReport{
		EncounterID: *in.EncounterID,
		PatientID:   owner,
		Type:        strings.TrimSpace(in.Type),
		Result:      in.Result,
		Document:    in.Document,
	}
	if err := s.repo.Create(ctx, rep); err != nil {
		return nil, apperr.Storage("create diagnostic report", err)
	}
	s.audit.Record(ctx, actor, auditevent.ActionCreate, resourceType, rep.ID.String(), map[string]interface{}{
		"patient_id": rep.PatientID.String(),
		"type":       rep.Type,
	})
	return rep, nil
}

func (s *Service) Get(ctx context.Context, actor auth.Actor, id uuid.UUID) (*DiagnosticReport, error) {
	rep, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, apperr.NotFound("diagnostic report")
	}
	s.audit.Record(ctx, actor, auditevent.ActionView, resourceType, id.String(), nil)
	return rep, nil
}

func (s *Service) Update(ctx context.Context, actor auth.Actor, id uuid.UUID, in UpdateInput) (*DiagnosticReport, error) {
	rep, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, apperr.NotFound("diagnostic report")
	}
	if err := s.gate.Authorize(ctx, actor, rep.PatientID, consent.ScopeFull); err != nil {
		return nil, err
	}

	changed := map[string]interface{}{}
	if in.Type != nil {
		if strings.TrimSpace(*in.Type) == "" {
			return nil, apperr.Validationf("type", "must not be empty")
		}
		rep.Type = strings.TrimSpace(*in.Type)
		changed["type"] = rep.Type
	}
	if in.Result != nil {
		rep.Result = in.Result
		changed["result"] = *in.Result
	}
	if in.Document != nil {
		rep.Document = in.Document
		changed["document"] = *in.Document
	}

	if err := s.repo.Update(ctx, rep); err != nil {
		return nil, apperr.Storage("update diagnostic report", err)
	}
	s.audit.Record(ctx, actor, auditevent.ActionUpdate, resourceType, rep.ID.String(), changed)
	return rep, nil
}

func (s *Service) Delete(ctx context.Context, actor auth.Actor, id uuid.UUID) error {
	rep, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return apperr.NotFound("diagnostic report")
	}
	if err := s.gate.Authorize(ctx, actor, rep.PatientID, consent.ScopeFull); err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return apperr.Storage("delete diagnostic report", err)
	}
	s.audit.Record(ctx, actor, auditevent.ActionDelete, resourceType, id.String(), nil)
	return nil
}

func (s *Service) List(ctx context.Context, params map[string]string, sortKey, direction string, pg pagination.Params) ([]*DiagnosticReport, int, *query.Plan, error) {
	reports, total, plan, err := s.repo.List(ctx, params, sortKey, direction, pg)
	if err != nil {
		return nil, 0, plan, apperr.Storage("list diagnostic reports", err)
	}
	return reports, total, plan, nil
}

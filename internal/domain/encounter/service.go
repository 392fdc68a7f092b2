package encounter

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/clinrec/clinrec/internal/domain/auditevent"
	"github.com/clinrec/clinrec/internal/domain/consent"
	"github.com/clinrec/clinrec/internal/platform/apperr"
	"github.com/clinrec/clinrec/internal/platform/auth"
	"github.com/clinrec/clinrec/internal/platform/query"
	"github.com/clinrec/clinrec/pkg/pagination"
)

const resourceType = "encounters"

// ConsentGate checks an actor's authority to touch a patient's records.
// Satisfied by *consent.Gate.
type ConsentGate interface {
	Authorize(ctx context.Context, actor auth.Actor, patientID uuid.UUID, scope string) error
}

type Service struct {
	repo          Repository
	practitioners PractitionerDirectory
	gate          ConsentGate
	audit         *auditevent.Service
}

func NewService(repo Repository, practitioners PractitionerDirectory, gate ConsentGate, audit *auditevent.Service) *Service {
	return &Service{repo: repo, practitioners: practitioners, gate: gate, audit: audit}
}

type CreateInput struct {
	PatientID      *uuid.UUID `json:"patient_id"`
	PractitionerID *uuid.UUID `json:"practitioner_id"`
	OrganizationID *uuid.UUID `json:"organization_id"`
	EncounterDate  string     `json:"encounter_date"`
	EncounterType  string     `json:"encounter_type"`
	Status         string     `json:"status"`
	Reason         *string    `json:"reason"`
}

type UpdateInput struct {
	PractitionerID *uuid.UUID `json:"practitioner_id"`
	OrganizationID *uuid.UUID `json:"organization_id"`
	EncounterDate  *string    `json:"encounter_date"`
	EncounterType  *string    `json:"encounter_type"`
	Status         *string    `json:"status"`
	Reason         *string    `json:"reason"`
}

func (s *Service) Create(ctx context.Context, actor auth.Actor, in CreateInput) (*Encounter, error) {
	fields := map[string]string{}
	if in.PatientID == nil {
		fields["patient_id"] = "required"
	}
	if in.PractitionerID == nil {
		fields["practitioner_id"] = "required"
	}
	if in.EncounterType == "" {
		fields["encounter_type"] = "required"
	}
	date, err := parseWhen(in.EncounterDate)
	if err != nil {
		fields["encounter_date"] = "must be a valid date"
	}
	status := in.Status
	if status == "" {
		status = StatusPlanned
	} else if !validStatuses[status] {
		fields["status"] = "must be one of planned, in-progress, onhold, finished, cancelled"
	}
	if len(fields) > 0 {
		return nil, apperr.Validation("validation failed", fields)
	}

	if err := s.gate.Authorize(ctx, actor, *in.PatientID, consent.ScopeFull); err != nil {
		return nil, err
	}
	if err := s.requireActive(ctx, *in.PractitionerID); err != nil {
		return nil, err
	}

	e := &Encounter{
		PatientID:      *in.PatientID,
		PractitionerID: *in.PractitionerID,
		OrganizationID: in.OrganizationID,
		EncounterDate:  date,
		EncounterType:  in.EncounterType,
		Status:         status,
		Reason:         in.Reason,
	}
	if err := s.repo.Create(ctx, e); err != nil {
		return nil, apperr.Storage("create encounter", err)
	}
	s.audit.Record(ctx, actor, auditevent.ActionCreate, resourceType, e.ID.String(), map[string]interface{}{
		"patient_id": e.PatientID.String(),
		"status":     e.Status,
	})
	return e, nil
}

func (s *Service) Get(ctx context.Context, actor auth.Actor, id uuid.UUID) (*Encounter, error) {
	e, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, apperr.NotFound("encounter")
	}
	if err := s.repo.LoadRelations(ctx, []*Encounter{e}); err != nil {
		return nil, apperr.Storage("load encounter relations", err)
	}
	s.audit.Record(ctx, actor, auditevent.ActionView, resourceType, id.String(), nil)
	return e, nil
}

func (s *Service) Update(ctx context.Context, actor auth.Actor, id uuid.UUID, in UpdateInput) (*Encounter, error) {
	e, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, apperr.NotFound("encounter")
	}
	if err := s.gate.Authorize(ctx, actor, e.PatientID, consent.ScopeFull); err != nil {
		return nil, err
	}
	if e.Status == StatusFinished {
		return nil, apperr.Conflict("encounter is finished and can no longer be modified")
	}

	changed := map[string]interface{}{}
	if in.PractitionerID != nil {
		if err := s.requireActive(ctx, *in.PractitionerID); err != nil {
			return nil, err
		}
		e.PractitionerID = *in.PractitionerID
		changed["practitioner_id"] = in.PractitionerID.String()
	}
	if in.OrganizationID != nil {
		e.OrganizationID = in.OrganizationID
		changed["organization_id"] = in.OrganizationID.String()
	}
	if in.EncounterDate != nil {
		date, err := parseWhen(*in.EncounterDate)
		if err != nil {
			return nil, apperr.Validationf("encounter_date", "must be a valid date")
		}
		e.EncounterDate = date
		changed["encounter_date"] = *in.EncounterDate
	}
	if in.EncounterType != nil {
		if *in.EncounterType == "" {
			return nil, apperr.Validationf("encounter_type", "must not be empty")
		}
		e.EncounterType = *in.EncounterType
		changed["encounter_type"] = *in.EncounterType
	}
	if in.Status != nil {
		if !validStatuses[*in.Status] {
			return nil, apperr.Validationf("status", "must be one of planned, in-progress, onhold, finished, cancelled")
		}
		e.Status = *in.Status
		changed["status"] = *in.Status
	}
	if in.Reason != nil {
		e.Reason = in.Reason
		changed["reason"] = *in.Reason
	}

	if err := s.repo.Update(ctx, e); err != nil {
		if errors.Is(err, ErrFinished) {
			return nil, apperr.Conflict("encounter is finished and can no longer be modified")
		}
		return nil, apperr.Storage("update encounter", err)
	}
	s.audit.Record(ctx, actor, auditevent.ActionUpdate, resourceType, e.ID.String(), changed)
	return e, nil
}

func (s *Service) Delete(ctx context.Context, actor auth.Actor, id uuid.UUID) error {
	e, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return apperr.NotFound("encounter")
	}
	if err := s.gate.Authorize(ctx, actor, e.PatientID, consent.ScopeFull); err != nil {
		return err
	}
	if e.Status == StatusFinished {
		return apperr.Conflict("encounter is finished and can no longer be modified")
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		if errors.Is(err, ErrFinished) {
			return apperr.Conflict("encounter is finished and can no longer be modified")
		}
		return apperr.Storage("delete encounter", err)
	}
	s.audit.Record(ctx, actor, auditevent.ActionDelete, resourceType, id.String(), nil)
	return nil
}

func (s *Service) List(ctx context.Context, params map[string]string, sortKey, direction string, pg pagination.Params) ([]*Encounter, int, *query.Plan, error) {
	encounters, total, plan, err := s.repo.List(ctx, params, sortKey, direction, pg)
	if err != nil {
		return nil, 0, plan, apperr.Storage("list encounters", err)
	}
	if err := s.repo.LoadRelations(ctx, encounters); err != nil {
		return nil, 0, plan, apperr.Storage("load encounter relations", err)
	}
	return encounters, total, plan, nil
}

// PatientOf resolves the patient an encounter belongs to. Clinical records
// attached to an encounter are always filed under that patient.
func (s *Service) PatientOf(ctx context.Context, encounterID uuid.UUID) (uuid.UUID, error) {
	e, err := s.repo.GetByID(ctx, encounterID)
	if err != nil {
		return uuid.Nil, apperr.NotFound("encounter")
	}
	return e.PatientID, nil
}

func (s *Service) requireActive(ctx context.Context, practitionerID uuid.UUID) error {
	active, err := s.practitioners.IsActive(ctx, practitionerID)
	if err != nil {
		return err
	}
	if !active {
		return apperr.Conflict("practitioner is not active")
	}
	return nil
}

func parseWhen(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02", s)
}

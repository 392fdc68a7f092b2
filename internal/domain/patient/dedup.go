package patient

import (
	"context"

	"github.com/google/uuid"

	"github.com/clinrec/clinrec/internal/domain/auditevent"
	"github.com/clinrec/clinrec/internal/domain/consent"
	"github.com/clinrec/clinrec/internal/platform/apperr"
	"github.com/clinrec/clinrec/internal/platform/auth"
)

// FindCandidates lists possible duplicates of an existing patient, ordered
// strongest match first. Identifier collisions cannot normally exist under
// the unique index, but are still reported if present (legacy imports).
func (s *Service) FindCandidates(ctx context.Context, id uuid.UUID) ([]*Candidate, error) {
	p, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, apperr.NotFound("patient")
	}

	var candidates []*Candidate
	if other, err := s.repo.GetByIdentifier(ctx, p.Identifier); err == nil && other != nil && other.ID != p.ID {
		candidates = append(candidates, &Candidate{Patient: other, MatchStrength: MatchExactIdentifier})
	}

	twins, err := s.repo.FindByNameAndDOB(ctx, p.FirstName, p.LastName, p.DateOfBirth, p.ID)
	if err != nil {
		return nil, apperr.Storage("find duplicate candidates", err)
	}
	for _, twin := range twins {
		if len(candidates) > 0 && candidates[0].Patient.ID == twin.ID {
			continue
		}
		candidates = append(candidates, &Candidate{Patient: twin, MatchStrength: MatchExactNameAndDOB})
	}
	return candidates, nil
}

// Merge reassigns every record of the duplicate to the primary and
// tombstones the duplicate, all in one transaction. Both rows are locked in
// deterministic order first, so concurrent merges of the same pair
// serialize: the loser sees the tombstone and reports a conflict instead of
// double-applying.
func (s *Service) Merge(ctx context.Context, actor auth.Actor, primaryID, duplicateID uuid.UUID) (*Patient, error) {
	if primaryID == duplicateID {
		return nil, apperr.Validationf("duplicate_id", "cannot merge a patient into itself")
	}
	if err := s.gate.Authorize(ctx, actor, primaryID, consent.ScopeFull); err != nil {
		return nil, err
	}
	if err := s.gate.Authorize(ctx, actor, duplicateID, consent.ScopeFull); err != nil {
		return nil, err
	}

	var primary *Patient
	var moved int64
	err := s.tx(ctx, func(ctx context.Context) error {
		var duplicate *Patient
		var err error
		primary, duplicate, err = s.repo.LockPair(ctx, primaryID, duplicateID)
		if err != nil {
			return apperr.NotFound("patient")
		}
		if primary.DeletedAt != nil {
			return apperr.Conflict("primary patient is deleted")
		}
		if duplicate.DeletedAt != nil {
			return apperr.Conflict("duplicate patient is already merged or deleted")
		}

		moved, err = s.repo.ReassignReferences(ctx, duplicateID, primaryID)
		if err != nil {
			return apperr.Storage("reassign records", err)
		}
		if err := s.repo.Tombstone(ctx, duplicateID, &primaryID); err != nil {
			return apperr.Storage("tombstone duplicate", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if s.merges != nil {
		s.merges.Inc()
	}
	s.audit.Record(ctx, actor, auditevent.ActionMerge, resourceType, primaryID.String(), map[string]interface{}{
		"merged_from":   duplicateID.String(),
		"records_moved": moved,
	})
	return primary, nil
}

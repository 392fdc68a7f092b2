package auditevent

import (
	"context"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/clinrec/clinrec/internal/platform/apperr"
	"github.com/clinrec/clinrec/internal/platform/auth"
	"github.com/clinrec/clinrec/internal/platform/query"
	"github.com/clinrec/clinrec/pkg/pagination"
)

// Service appends audit events and serves the admin query surface.
type Service struct {
	repo        Repository
	log         zerolog.Logger
	writeErrors prometheus.Counter
}

func NewService(repo Repository, log zerolog.Logger, writeErrors prometheus.Counter) *Service {
	return &Service{repo: repo, log: log, writeErrors: writeErrors}
}

// Record appends one audit event. Failures never propagate to the caller:
// the state change the event documents has already committed, so the error
// is surfaced through the log and the write-error counter instead.
func (s *Service) Record(ctx context.Context, actor auth.Actor, action, resourceType, resourceID string, details map[string]interface{}) {
	if !validActions[action] {
		s.log.Error().Str("action", action).Msg("audit: unrecognized action, event dropped")
		s.writeErrors.Inc()
		return
	}

	ev := &AuditEvent{
		UserName:     actor.Name,
		Action:       action,
		ResourceType: resourceType,
		ResourceID:   resourceID,
		Details:      details,
	}
	if actor.ID != uuid.Nil {
		id := actor.ID
		ev.UserID = &id
	}

	if err := s.repo.Create(ctx, ev); err != nil {
		s.writeErrors.Inc()
		s.log.Error().Err(err).
			Str("action", action).
			Str("resource_type", resourceType).
			Str("resource_id", resourceID).
			Msg("audit: event write failed")
	}
}

func (s *Service) List(ctx context.Context, params map[string]string, sortKey, direction string, pg pagination.Params) ([]*AuditEvent, int, *query.Plan, error) {
	events, total, plan, err := s.repo.List(ctx, params, sortKey, direction, pg)
	if err != nil {
		return nil, 0, plan, apperr.Storage("list audit events", err)
	}
	return events, total, plan, nil
}

package consent

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/clinrec/clinrec/internal/platform/apperr"
	"github.com/clinrec/clinrec/internal/platform/auth"
)

// Deny reasons returned by the gate.
const (
	DenyNoConsent         = "no-consent-record"
	DenyConsentExpired    = "consent-expired"
	DenyConsentRevoked    = "consent-revoked"
	DenyScopeInsufficient = "scope-insufficient"
)

// Gate decides whether an actor may touch a patient's records. Actors not
// bound to an organization (internal staff) bypass the check; for everyone
// else an active consent granted to their organization must cover the
// requested scope.
type Gate struct {
	repo    Repository
	denials *prometheus.CounterVec
	now     func() time.Time
}

func NewGate(repo Repository, denials *prometheus.CounterVec) *Gate {
	return &Gate{repo: repo, denials: denials, now: func() time.Time { return time.Now().UTC() }}
}

// Authorize returns nil when access is allowed, or a Forbidden error
// carrying the most specific deny reason otherwise.
func (g *Gate) Authorize(ctx context.Context, actor auth.Actor, patientID uuid.UUID, requestedScope string) error {
	if actor.Internal() {
		return nil
	}

	consents, err := g.repo.ListForPatientAndOrg(ctx, patientID, *actor.OrganizationID)
	if err != nil {
		return apperr.Storage("evaluate consent", err)
	}
	if len(consents) == 0 {
		return g.deny(DenyNoConsent)
	}

	now := g.now()
	var sawActive, sawRevoked, sawExpired bool
	for _, cs := range consents {
		switch cs.StateAt(now) {
		case StateActive:
			if cs.Satisfies(requestedScope) {
				return nil
			}
			sawActive = true
		case StateRevoked:
			sawRevoked = true
		case StateExpired:
			sawExpired = true
		}
	}

	// Pick the reason closest to an actual grant: an active consent with
	// too narrow a scope beats a revoked one, which beats an expired one.
	switch {
	case sawActive:
		return g.deny(DenyScopeInsufficient)
	case sawRevoked:
		return g.deny(DenyConsentRevoked)
	case sawExpired:
		return g.deny(DenyConsentExpired)
	default:
		// Only pending consents exist: nothing grants access yet.
		return g.deny(DenyNoConsent)
	}
}

func (g *Gate) deny(reason string) error {
	if g.denials != nil {
		g.denials.WithLabelValues(reason).Inc()
	}
	return apperr.Forbidden("access denied: %s", reason)
}

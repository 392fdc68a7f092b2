package consent

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/clinrec/clinrec/internal/platform/apperr"
	"github.com/clinrec/clinrec/internal/platform/auth"
	"github.com/clinrec/clinrec/internal/platform/query"
	"github.com/clinrec/clinrec/pkg/pagination"
)

// -- Mock Repository --

// mockRepo hands out snapshot copies the way a row scan does, and guards
// its writes on the stored row like the SQL layer.
type mockRepo struct {
	consents    map[uuid.UUID]*Consent
	beforeWrite func()
}

func newMockRepo() *mockRepo {
	return &mockRepo{consents: make(map[uuid.UUID]*Consent)}
}

func (m *mockRepo) Create(_ context.Context, cs *Consent) error {
	cs.ID = uuid.New()
	cs.CreatedAt = time.Now()
	cs.UpdatedAt = time.Now()
	stored := *cs
	m.consents[cs.ID] = &stored
	return nil
}

func (m *mockRepo) GetByID(_ context.Context, id uuid.UUID) (*Consent, error) {
	cs, ok := m.consents[id]
	if !ok {
		return nil, fmt.Errorf("not found")
	}
	snapshot := *cs
	return &snapshot, nil
}

func (m *mockRepo) Update(_ context.Context, cs *Consent) error {
	if m.beforeWrite != nil {
		m.beforeWrite()
	}
	cur, ok := m.consents[cs.ID]
	if !ok || cur.Revoked {
		return ErrRevoked
	}
	stored := *cs
	stored.Revoked = cur.Revoked
	m.consents[cs.ID] = &stored
	return nil
}

func (m *mockRepo) Revoke(_ context.Context, id uuid.UUID) error {
	if m.beforeWrite != nil {
		m.beforeWrite()
	}
	cur, ok := m.consents[id]
	if !ok || cur.Revoked {
		return ErrRevoked
	}
	cur.Revoked = true
	return nil
}

func (m *mockRepo) Delete(_ context.Context, id uuid.UUID) error {
	delete(m.consents, id)
	return nil
}

func (m *mockRepo) List(_ context.Context, _ map[string]string, _, _ string, _ pagination.Params) ([]*Consent, int, *query.Plan, error) {
	var out []*Consent
	for _, cs := range m.consents {
		out = append(out, cs)
	}
	return out, len(out), nil, nil
}

func (m *mockRepo) ListForPatientAndOrg(_ context.Context, patientID, orgID uuid.UUID) ([]*Consent, error) {
	var out []*Consent
	for _, cs := range m.consents {
		if cs.PatientID == patientID && cs.GrantedTo == orgID {
			out = append(out, cs)
		}
	}
	return out, nil
}

// -- Gate tests --

var gateNow = time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)

func newGate(repo Repository) *Gate {
	g := NewGate(repo, nil)
	g.now = func() time.Time { return gateNow }
	return g
}

func orgActor(orgID uuid.UUID) auth.Actor {
	return auth.Actor{ID: uuid.New(), Name: "External Org User", Role: "staff", OrganizationID: &orgID}
}

func denyReason(t *testing.T, err error) string {
	t.Helper()
	if err == nil {
		t.Fatal("expected a deny")
	}
	if apperr.KindOf(err) != apperr.KindForbidden {
		t.Fatalf("expected forbidden, got %v", err)
	}
	parts := strings.Split(err.Error(), ": ")
	return parts[len(parts)-1]
}

func TestGate_InternalActorBypasses(t *testing.T) {
	g := newGate(newMockRepo())
	internal := auth.Actor{ID: uuid.New(), Name: "Staff", Role: "staff"}
	if err := g.Authorize(context.Background(), internal, uuid.New(), ScopeFull); err != nil {
		t.Errorf("internal actor must bypass the gate: %v", err)
	}
}

func TestGate_NoConsentRecord(t *testing.T) {
	orgID := uuid.New()
	g := newGate(newMockRepo())
	err := g.Authorize(context.Background(), orgActor(orgID), uuid.New(), ScopePartial)
	if got := denyReason(t, err); got != DenyNoConsent {
		t.Errorf("expected %s, got %s", DenyNoConsent, got)
	}
}

func TestGate_Grid(t *testing.T) {
	cases := []struct {
		name       string
		revoked    bool
		validFrom  time.Time
		validUntil time.Time
		scope      string
		requested  string
		wantReason string // "" means allow
	}{
		{"active full covers full", false, gateNow.AddDate(0, -1, 0), gateNow.AddDate(0, 1, 0), ScopeFull, ScopeFull, ""},
		{"active full covers partial", false, gateNow.AddDate(0, -1, 0), gateNow.AddDate(0, 1, 0), ScopeFull, ScopePartial, ""},
		{"active partial covers partial", false, gateNow.AddDate(0, -1, 0), gateNow.AddDate(0, 1, 0), ScopePartial, ScopePartial, ""},
		{"active partial cannot cover full", false, gateNow.AddDate(0, -1, 0), gateNow.AddDate(0, 1, 0), ScopePartial, ScopeFull, DenyScopeInsufficient},
		{"revoked", true, gateNow.AddDate(0, -1, 0), gateNow.AddDate(0, 1, 0), ScopeFull, ScopeFull, DenyConsentRevoked},
		{"expired", false, gateNow.AddDate(-1, 0, 0), gateNow.AddDate(0, -1, 0), ScopeFull, ScopeFull, DenyConsentExpired},
		{"revoked and expired report revoked", true, gateNow.AddDate(-1, 0, 0), gateNow.AddDate(0, -1, 0), ScopeFull, ScopeFull, DenyConsentRevoked},
		{"pending only", false, gateNow.AddDate(0, 1, 0), gateNow.AddDate(0, 2, 0), ScopeFull, ScopeFull, DenyNoConsent},
		{"boundary start is active", false, gateNow, gateNow.AddDate(0, 1, 0), ScopeFull, ScopeFull, ""},
		{"boundary end is active", false, gateNow.AddDate(0, -1, 0), gateNow, ScopeFull, ScopeFull, ""},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			repo := newMockRepo()
			patientID, orgID := uuid.New(), uuid.New()
			_ = repo.Create(context.Background(), &Consent{
				PatientID:  patientID,
				GrantedTo:  orgID,
				Scope:      tc.scope,
				ValidFrom:  tc.validFrom,
				ValidUntil: tc.validUntil,
				Revoked:    tc.revoked,
			})

			err := newGate(repo).Authorize(context.Background(), orgActor(orgID), patientID, tc.requested)
			if tc.wantReason == "" {
				if err != nil {
					t.Errorf("expected allow, got %v", err)
				}
				return
			}
			if got := denyReason(t, err); got != tc.wantReason {
				t.Errorf("expected %s, got %s", tc.wantReason, got)
			}
		})
	}
}

func TestGate_ActiveConsentWinsOverStaleOnes(t *testing.T) {
	repo := newMockRepo()
	patientID, orgID := uuid.New(), uuid.New()
	ctx := context.Background()

	_ = repo.Create(ctx, &Consent{PatientID: patientID, GrantedTo: orgID, Scope: ScopeFull,
		ValidFrom: gateNow.AddDate(-2, 0, 0), ValidUntil: gateNow.AddDate(-1, 0, 0)})
	_ = repo.Create(ctx, &Consent{PatientID: patientID, GrantedTo: orgID, Scope: ScopeFull,
		ValidFrom: gateNow.AddDate(0, -1, 0), ValidUntil: gateNow.AddDate(0, 1, 0)})

	if err := newGate(repo).Authorize(ctx, orgActor(orgID), patientID, ScopeFull); err != nil {
		t.Errorf("expected allow via the active consent, got %v", err)
	}
}

func TestGate_OtherOrgConsentDoesNotGrant(t *testing.T) {
	repo := newMockRepo()
	patientID := uuid.New()
	ctx := context.Background()

	_ = repo.Create(ctx, &Consent{PatientID: patientID, GrantedTo: uuid.New(), Scope: ScopeFull,
		ValidFrom: gateNow.AddDate(0, -1, 0), ValidUntil: gateNow.AddDate(0, 1, 0)})

	err := newGate(repo).Authorize(ctx, orgActor(uuid.New()), patientID, ScopePartial)
	if got := denyReason(t, err); got != DenyNoConsent {
		t.Errorf("expected %s, got %s", DenyNoConsent, got)
	}
}

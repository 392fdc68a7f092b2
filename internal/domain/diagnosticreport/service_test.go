package diagnosticreport

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/clinrec/clinrec/internal/domain/auditevent"
	"github.com/clinrec/clinrec/internal/platform/apperr"
	"github.com/clinrec/clinrec/internal/platform/auth"
	"github.com/clinrec/clinrec/internal/platform/query"
	"github.com/clinrec/clinrec/pkg/pagination"
)

type mockRepo struct {
	reports map[uuid.UUID]*DiagnosticReport
}

func newMockRepo() *mockRepo {
	return &mockRepo{reports: make(map[uuid.UUID]*DiagnosticReport)}
}

func (m *mockRepo) Create(_ context.Context, r *DiagnosticReport) error {
	r.ID = uuid.New()
	r.CreatedAt = time.Now()
	r.UpdatedAt = time.Now()
	m.reports[r.ID] = r
	return nil
}

func (m *mockRepo) GetByID(_ context.Context, id uuid.UUID) (*DiagnosticReport, error) {
	r, ok := m.reports[id]
	if !ok {
		return nil, fmt.Errorf("not found")
	}
	return r, nil
}

func (m *mockRepo) Update(_ context.Context, r *DiagnosticReport) error {
	m.reports[r.ID] = r
	return nil
}

func (m *mockRepo) Delete(_ context.Context, id uuid.UUID) error {
	delete(m.reports, id)
	return nil
}

func (m *mockRepo) List(_ context.Context, _ map[string]string, _, _ string, _ pagination.Params) ([]*DiagnosticReport, int, *query.Plan, error) {
	var out []*DiagnosticReport
	for _, r := range m.reports {
		out = append(out, r)
	}
	return out, len(out), nil, nil
}

type mockResolver struct {
	owners map[uuid.UUID]uuid.UUID
}

func (m *mockResolver) PatientOf(_ context.Context, encounterID uuid.UUID) (uuid.UUID, error) {
	owner, ok := m.owners[encounterID]
	if !ok {
		return uuid.Nil, apperr.NotFound("encounter")
	}
	return owner, nil
}

type auditSink struct {
	events []*auditevent.AuditEvent
}

func (a *auditSink) Create(_ context.Context, ev *auditevent.AuditEvent) error {
	a.events = append(a.events, ev)
	return nil
}

func (a *auditSink) List(_ context.Context, _ map[string]string, _, _ string, _ pagination.Params) ([]*auditevent.AuditEvent, int, *query.Plan, error) {
	return a.events, len(a.events), nil, nil
}

// stubGate answers every consent check with the configured error.
type stubGate struct{ err error }

func (g stubGate) Authorize(context.Context, auth.Actor, uuid.UUID, string) error { return g.err }

func newService(repo Repository, resolver *mockResolver) *Service {
	audit := auditevent.NewService(&auditSink{}, zerolog.Nop(),
		prometheus.NewCounter(prometheus.CounterOpts{Name: "report_test_audit_errors_total"}))
	return NewService(repo, resolver, stubGate{}, audit)
}

// Organization actors need full-scope consent before filing or modifying a
// patient's diagnostic reports.
func TestWrites_RequireConsent(t *testing.T) {
	encounterID := uuid.New()
	resolver := &mockResolver{owners: map[uuid.UUID]uuid.UUID{encounterID: uuid.New()}}
	repo := newMockRepo()
	svc := newService(repo, resolver)
	ctx := context.Background()

	rep, err := svc.Create(ctx, testActor(), CreateInput{EncounterID: &encounterID, Type: "laboratory"})
	if err != nil {
		t.Fatal(err)
	}

	audit := auditevent.NewService(&auditSink{}, zerolog.Nop(),
		prometheus.NewCounter(prometheus.CounterOpts{Name: "report_test_denied_audit_errors_total"}))
	denied := NewService(repo, resolver, stubGate{err: apperr.Forbidden("access denied: %s", "no-consent-record")}, audit)

	orgID := uuid.New()
	org := auth.Actor{ID: uuid.New(), Name: "External Org User", Role: "staff", OrganizationID: &orgID}

	if _, err := denied.Create(ctx, org, CreateInput{EncounterID: &encounterID, Type: "radiology"}); apperr.KindOf(err) != apperr.KindForbidden {
		t.Fatalf("expected forbidden create, got %v", err)
	}
	typ := "radiology"
	if _, err := denied.Update(ctx, org, rep.ID, UpdateInput{Type: &typ}); apperr.KindOf(err) != apperr.KindForbidden {
		t.Fatalf("expected forbidden update, got %v", err)
	}
	if err := denied.Delete(ctx, org, rep.ID); apperr.KindOf(err) != apperr.KindForbidden {
		t.Fatalf("expected forbidden delete, got %v", err)
	}
	if repo.reports[rep.ID] == nil || repo.reports[rep.ID].Type != "laboratory" {
		t.Error("denied writes must leave the record untouched")
	}
}

func testActor() auth.Actor {
	return auth.Actor{ID: uuid.New(), Name: "Staff", Role: "staff"}
}

func TestCreate_RequiresEncounterAndType(t *testing.T) {
	resolver := &mockResolver{owners: map[uuid.UUID]uuid.UUID{}}
	svc := newService(newMockRepo(), resolver)
	encounterID := uuid.New()

	tests := []struct {
		name string
		in   CreateInput
	}{
		{"missing encounter", CreateInput{Type: "laboratorio"}},
		{"missing type", CreateInput{EncounterID: &encounterID}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Create(context.Background(), testActor(), tt.in)
			if apperr.KindOf(err) != apperr.KindValidation {
				t.Fatalf("expected validation error, got %v", err)
			}
		})
	}
}

func TestCreate_CarriesDocument(t *testing.T) {
	encounterID := uuid.New()
	patientID := uuid.New()
	resolver := &mockResolver{owners: map[uuid.UUID]uuid.UUID{encounterID: patientID}}
	svc := newService(newMockRepo(), resolver)

	rep, err := svc.Create(context.Background(), testActor(), CreateInput{
		EncounterID: &encounterID,
		Type:        "laboratorio",
		Document:    &Document{Status: "final", Category: "hematology", Conclusion: "within normal limits"},
	})
	if err != nil {
		t.Fatal(err)
	}
	if rep.PatientID != patientID {
		t.Errorf("expected patient %s inherited from encounter, got %s", patientID, rep.PatientID)
	}
	if rep.Document == nil || rep.Document.Status != "final" {
		t.Errorf("document not carried: %+v", rep.Document)
	}
}

func TestUpdate_ReplacesDocumentWholesale(t *testing.T) {
	encounterID := uuid.New()
	resolver := &mockResolver{owners: map[uuid.UUID]uuid.UUID{encounterID: uuid.New()}}
	svc := newService(newMockRepo(), resolver)
	ctx := context.Background()
	actor := testActor()

	rep, err := svc.Create(ctx, actor, CreateInput{
		EncounterID: &encounterID,
		Type:        "laboratorio",
		Document:    &Document{Status: "preliminary", Category: "hematology"},
	})
	if err != nil {
		t.Fatal(err)
	}

	updated, err := svc.Update(ctx, actor, rep.ID, UpdateInput{
		Document: &Document{Status: "final"},
	})
	if err != nil {
		t.Fatal(err)
	}
	if updated.Document.Status != "final" {
		t.Errorf("document status not applied: %s", updated.Document.Status)
	}
	if updated.Document.Category != "" {
		t.Error("document is replaced as a unit, category should be gone")
	}
}

func TestDocumentFilters(t *testing.T) {
	plan := spec.Build(map[string]string{"status": "final", "category": "hematology"}, "", "")
	want := "SELECT COUNT(*) FROM diagnostic_reports WHERE 1=1 AND document->>'category' = $1 AND document->>'status' = $2"
	if got := plan.CountSQL(); got != want {
		t.Errorf("count sql:\n got %s\nwant %s", got, want)
	}
	if plan.OrderBy() != "created_at DESC, id DESC" {
		t.Errorf("unexpected default order: %s", plan.OrderBy())
	}
}

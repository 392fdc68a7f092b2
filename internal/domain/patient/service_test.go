package patient

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

// -- Mock Repository --

type mockRepo struct {
	patients map[uuid.UUID]*Patient
	refs     map[uuid.UUID]int64 // child rows per patient
}

func newMockRepo() *mockRepo {
	return &mockRepo{
		patients: make(map[uuid.UUID]*Patient),
		refs:     make(map[uuid.UUID]int64),
	}
}

func (m *mockRepo) Create(_ context.Context, p *Patient) error {
	p.ID = uuid.New()
	p.CreatedAt = time.Now()
	p.UpdatedAt = time.Now()
	m.patients[p.ID] = p
	return nil
}

func (m *mockRepo) GetByID(_ context.Context, id uuid.UUID) (*Patient, error) {
	p, ok := m.patients[id]
	if !ok || p.DeletedAt != nil {
		return nil, fmt.Errorf("not found")
	}
	return p, nil
}

func (m *mockRepo) GetByIdentifier(_ context.Context, identifier string) (*Patient, error) {
	for _, p := range m.patients {
		if p.Identifier == identifier && p.DeletedAt == nil {
			return p, nil
		}
	}
	return nil, fmt.Errorf("not found")
}

func (m *mockRepo) FindByNameAndDOB(_ context.Context, first, last string, dob time.Time, exclude uuid.UUID) ([]*Patient, error) {
	var out []*Patient
	for _, p := range m.patients {
		if p.ID == exclude || p.DeletedAt != nil {
			continue
		}
		if p.FirstName == first && p.LastName == last && p.DateOfBirth.Equal(dob) {
			out = append(out, p)
		}
	}
	return out, nil
}

func (m *mockRepo) Update(_ context.Context, p *Patient) error {
	m.patients[p.ID] = p
	return nil
}

func (m *mockRepo) Tombstone(_ context.Context, id uuid.UUID, mergedInto *uuid.UUID) error {
	p, ok := m.patients[id]
	if !ok {
		return fmt.Errorf("not found")
	}
	now := time.Now()
	p.DeletedAt = &now
	p.MergedInto = mergedInto
	return nil
}

func (m *mockRepo) List(_ context.Context, _ map[string]string, _, _ string, _ pagination.Params) ([]*Patient, int, *query.Plan, error) {
	var out []*Patient
	for _, p := range m.patients {
		if p.DeletedAt == nil {
			out = append(out, p)
		}
	}
	return out, len(out), nil, nil
}

func (m *mockRepo) LockPair(_ context.Context, a, b uuid.UUID) (*Patient, *Patient, error) {
	pa, okA := m.patients[a]
	pb, okB := m.patients[b]
	if !okA || !okB {
		return nil, nil, fmt.Errorf("not found")
	}
	return pa, pb, nil
}

func (m *mockRepo) ReassignReferences(_ context.Context, from, to uuid.UUID) (int64, error) {
	moved := m.refs[from]
	m.refs[to] += moved
	m.refs[from] = 0
	return moved, nil
}

func (m *mockRepo) Metrics(_ context.Context) (*MetricsReport, error) {
	total := 0
	for _, p := range m.patients {
		if p.DeletedAt == nil {
			total++
		}
	}
	return &MetricsReport{Total: total}, nil
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

func passthroughTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

// stubGate answers every consent check with the configured error.
type stubGate struct{ err error }

func (g stubGate) Authorize(context.Context, auth.Actor, uuid.UUID, string) error { return g.err }

func newService(repo Repository) (*Service, *auditSink) {
	sink := &auditSink{}
	audit := auditevent.NewService(sink, zerolog.Nop(),
		prometheus.NewCounter(prometheus.CounterOpts{Name: "patient_test_audit_errors_total"}))
	merges := prometheus.NewCounter(prometheus.CounterOpts{Name: "patient_test_merges_total"})
	return NewService(repo, audit, passthroughTx, stubGate{}, merges), sink
}

func testActor() auth.Actor {
	return auth.Actor{ID: uuid.New(), Name: "Staff", Role: "staff"}
}

func anaPaz() CreateInput {
	return CreateInput{
		Identifier:  "1234-LP",
		FirstName:   "Ana",
		LastName:    "Paz",
		DateOfBirth: "1990-01-01",
		Gender:      "female",
	}
}

func TestCreate(t *testing.T) {
	svc, sink := newService(newMockRepo())

	p, err := svc.Create(context.Background(), testActor(), anaPaz())
	if err != nil {
		t.Fatal(err)
	}
	if p.ID == uuid.Nil {
		t.Error("expected assigned id")
	}
	if p.DateOfBirth.Format("2006-01-02") != "1990-01-01" {
		t.Errorf("dob mishandled: %v", p.DateOfBirth)
	}
	if len(sink.events) != 1 || sink.events[0].Action != auditevent.ActionCreate {
		t.Error("create must be audited")
	}
}

func TestCreate_RepeatIsConflict(t *testing.T) {
	svc, _ := newService(newMockRepo())
	ctx := context.Background()

	if _, err := svc.Create(ctx, testActor(), anaPaz()); err != nil {
		t.Fatal(err)
	}
	_, err := svc.Create(ctx, testActor(), anaPaz())
	if !apperr.IsConflict(err) {
		t.Fatalf("repeat create must conflict, got %v", err)
	}
}

func TestCreate_NameAndDOBCollision(t *testing.T) {
	svc, _ := newService(newMockRepo())
	ctx := context.Background()

	if _, err := svc.Create(ctx, testActor(), anaPaz()); err != nil {
		t.Fatal(err)
	}
	in := anaPaz()
	in.Identifier = "9999-XX"
	_, err := svc.Create(ctx, testActor(), in)
	if !apperr.IsConflict(err) {
		t.Fatalf("same name and birth date must conflict, got %v", err)
	}
}

func TestCreate_Validation(t *testing.T) {
	svc, _ := newService(newMockRepo())

	cases := []struct {
		name  string
		mut   func(*CreateInput)
		field string
	}{
		{"bad identifier shape", func(in *CreateInput) { in.Identifier = "ABC-123" }, "identifier"},
		{"missing identifier", func(in *CreateInput) { in.Identifier = "" }, "identifier"},
		{"bad gender", func(in *CreateInput) { in.Gender = "f" }, "gender"},
		{"bad dob", func(in *CreateInput) { in.DateOfBirth = "01/01/1990" }, "date_of_birth"},
		{"future dob", func(in *CreateInput) { in.DateOfBirth = "2190-01-01" }, "date_of_birth"},
		{"missing name", func(in *CreateInput) { in.FirstName = " " }, "first_name"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			in := anaPaz()
			tc.mut(&in)
			_, err := svc.Create(context.Background(), testActor(), in)
			if apperr.KindOf(err) != apperr.KindValidation {
				t.Fatalf("expected validation error, got %v", err)
			}
			if _, ok := apperr.FieldsOf(err)[tc.field]; !ok {
				t.Errorf("expected error on field %s, got %v", tc.field, apperr.FieldsOf(err))
			}
		})
	}
}

func TestDelete_Tombstones(t *testing.T) {
	repo := newMockRepo()
	svc, _ := newService(repo)
	ctx := context.Background()

	p, err := svc.Create(ctx, testActor(), anaPaz())
	if err != nil {
		t.Fatal(err)
	}
	if err := svc.Delete(ctx, testActor(), p.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.Get(ctx, testActor(), p.ID); !apperr.IsNotFound(err) {
		t.Errorf("tombstoned patient must be unreachable, got %v", err)
	}
	// Row still exists for audit resolution.
	if repo.patients[p.ID] == nil || repo.patients[p.ID].DeletedAt == nil {
		t.Error("expected tombstone, not hard delete")
	}
}

// Organization actors need full-scope consent to modify a patient; without
// it the write is refused and nothing changes.
func TestWrites_RequireConsent(t *testing.T) {
	repo := newMockRepo()
	svc, _ := newService(repo)
	ctx := context.Background()

	p, err := svc.Create(ctx, testActor(), anaPaz())
	if err != nil {
		t.Fatal(err)
	}

	sink := &auditSink{}
	audit := auditevent.NewService(sink, zerolog.Nop(),
		prometheus.NewCounter(prometheus.CounterOpts{Name: "patient_test_denied_audit_errors_total"}))
	denied := NewService(repo, audit, passthroughTx,
		stubGate{err: apperr.Forbidden("access denied: %s", "no-consent-record")},
		prometheus.NewCounter(prometheus.CounterOpts{Name: "patient_test_denied_merges_total"}))

	orgID := uuid.New()
	org := auth.Actor{ID: uuid.New(), Name: "External Org User", Role: "staff", OrganizationID: &orgID}

	name := "Anna"
	if _, err := denied.Update(ctx, org, p.ID, UpdateInput{FirstName: &name}); apperr.KindOf(err) != apperr.KindForbidden {
		t.Fatalf("expected forbidden, got %v", err)
	}
	if repo.patients[p.ID].FirstName != "Ana" {
		t.Error("denied update must not be applied")
	}
	if err := denied.Delete(ctx, org, p.ID); apperr.KindOf(err) != apperr.KindForbidden {
		t.Fatalf("expected forbidden, got %v", err)
	}
	if repo.patients[p.ID].DeletedAt != nil {
		t.Error("denied delete must not tombstone")
	}
	if _, err := denied.Merge(ctx, org, p.ID, uuid.New()); apperr.KindOf(err) != apperr.KindForbidden {
		t.Fatalf("expected forbidden merge, got %v", err)
	}
}

func TestFindCandidates(t *testing.T) {
	svc, _ := newService(newMockRepo())
	ctx := context.Background()

	p1, err := svc.Create(ctx, testActor(), anaPaz())
	if err != nil {
		t.Fatal(err)
	}
	// A twin with a different identifier slips past create only via direct
	// storage (legacy import); simulate that.
	repo := svc.repo.(*mockRepo)
	twin := &Patient{Identifier: "5678-AB", FirstName: "Ana", LastName: "Paz",
		DateOfBirth: p1.DateOfBirth, Gender: "female"}
	_ = repo.Create(ctx, twin)

	candidates, err := svc.FindCandidates(ctx, p1.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(candidates) != 1 {
		t.Fatalf("expected 1 candidate, got %d", len(candidates))
	}
	if candidates[0].MatchStrength != MatchExactNameAndDOB {
		t.Errorf("unexpected strength: %s", candidates[0].MatchStrength)
	}
	if candidates[0].Patient.ID != twin.ID {
		t.Error("wrong candidate")
	}
}

func TestMerge(t *testing.T) {
	repo := newMockRepo()
	svc, sink := newService(repo)
	ctx := context.Background()

	primary, err := svc.Create(ctx, testActor(), anaPaz())
	if err != nil {
		t.Fatal(err)
	}
	dup := &Patient{Identifier: "5678-AB", FirstName: "Ana", LastName: "Paz",
		DateOfBirth: primary.DateOfBirth, Gender: "female"}
	_ = repo.Create(ctx, dup)
	repo.refs[dup.ID] = 7

	merged, err := svc.Merge(ctx, testActor(), primary.ID, dup.ID)
	if err != nil {
		t.Fatal(err)
	}
	if merged.ID != primary.ID {
		t.Error("merge must return the primary")
	}
	if repo.refs[primary.ID] != 7 || repo.refs[dup.ID] != 0 {
		t.Error("references not fully reassigned")
	}
	tombstone := repo.patients[dup.ID]
	if tombstone.DeletedAt == nil || tombstone.MergedInto == nil || *tombstone.MergedInto != primary.ID {
		t.Error("duplicate must be tombstoned pointing at the primary")
	}
	if _, err := svc.Get(ctx, testActor(), dup.ID); !apperr.IsNotFound(err) {
		t.Error("merged duplicate must be unreachable via normal lookup")
	}

	// Re-merging the same pair must conflict, not double-apply.
	if _, err := svc.Merge(ctx, testActor(), primary.ID, dup.ID); !apperr.IsConflict(err) {
		t.Errorf("second merge must conflict, got %v", err)
	}
	if repo.refs[primary.ID] != 7 {
		t.Error("second merge must not move anything")
	}

	var sawMergeAudit bool
	for _, ev := range sink.events {
		if ev.Action == auditevent.ActionMerge && ev.Details["merged_from"] == dup.ID.String() {
			sawMergeAudit = true
		}
	}
	if !sawMergeAudit {
		t.Error("merge must be audited")
	}
}

func TestMerge_SelfRejected(t *testing.T) {
	svc, _ := newService(newMockRepo())
	id := uuid.New()
	_, err := svc.Merge(context.Background(), testActor(), id, id)
	if apperr.KindOf(err) != apperr.KindValidation {
		t.Errorf("self-merge must be a validation error, got %v", err)
	}
}

func TestParseAgeRange(t *testing.T) {
	now := time.Date(2025, 6, 15, 0, 0, 0, 0, time.UTC)

	from, to, ok := parseAgeRange("30-40", now)
	if !ok {
		t.Fatal("expected parse")
	}
	if !from.Equal(now.AddDate(-41, 0, 0)) || !to.Equal(now.AddDate(-30, 0, 0)) {
		t.Errorf("unexpected window: %v .. %v", from, to)
	}

	for _, bad := range []string{"", "abc", "40-30", "-5-10", "30"} {
		if _, _, ok := parseAgeRange(bad, now); ok {
			t.Errorf("expected rejection of %q", bad)
		}
	}
}

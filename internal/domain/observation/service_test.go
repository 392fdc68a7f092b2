package observation

import (
	"context"
	"encoding/json"
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
	observations map[uuid.UUID]*Observation
}

func newMockRepo() *mockRepo {
	return &mockRepo{observations: make(map[uuid.UUID]*Observation)}
}

func (m *mockRepo) Create(_ context.Context, o *Observation) error {
	o.ID = uuid.New()
	o.CreatedAt = time.Now()
	o.UpdatedAt = time.Now()
	m.observations[o.ID] = o
	return nil
}

func (m *mockRepo) GetByID(_ context.Context, id uuid.UUID) (*Observation, error) {
	o, ok := m.observations[id]
	if !ok {
		return nil, fmt.Errorf("not found")
	}
	return o, nil
}

func (m *mockRepo) Update(_ context.Context, o *Observation) error {
	m.observations[o.ID] = o
	return nil
}

func (m *mockRepo) Delete(_ context.Context, id uuid.UUID) error {
	delete(m.observations, id)
	return nil
}

func (m *mockRepo) List(_ context.Context, _ map[string]string, _, _ string, _ pagination.Params) ([]*Observation, int, *query.Plan, error) {
	var out []*Observation
	for _, o := range m.observations {
		out = append(out, o)
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
		prometheus.NewCounter(prometheus.CounterOpts{Name: "obs_test_audit_errors_total"}))
	return NewService(repo, resolver, stubGate{}, audit)
}

// Organization actors need full-scope consent before filing or modifying a
// patient's observations.
func TestWrites_RequireConsent(t *testing.T) {
	encounterID := uuid.New()
	resolver := &mockResolver{owners: map[uuid.UUID]uuid.UUID{encounterID: uuid.New()}}
	repo := newMockRepo()
	svc := newService(repo, resolver)
	ctx := context.Background()

	o, err := svc.Create(ctx, testActor(), CreateInput{EncounterID: &encounterID, Code: "718-7", Value: "13.9"})
	if err != nil {
		t.Fatal(err)
	}

	audit := auditevent.NewService(&auditSink{}, zerolog.Nop(),
		prometheus.NewCounter(prometheus.CounterOpts{Name: "obs_test_denied_audit_errors_total"}))
	denied := NewService(repo, resolver, stubGate{err: apperr.Forbidden("access denied: %s", "no-consent-record")}, audit)

	orgID := uuid.New()
	org := auth.Actor{ID: uuid.New(), Name: "External Org User", Role: "staff", OrganizationID: &orgID}

	if _, err := denied.Create(ctx, org, CreateInput{EncounterID: &encounterID, Code: "2345-7", Value: "88"}); apperr.KindOf(err) != apperr.KindForbidden {
		t.Fatalf("expected forbidden create, got %v", err)
	}
	value := "15.1"
	if _, err := denied.Update(ctx, org, o.ID, UpdateInput{Value: &value}); apperr.KindOf(err) != apperr.KindForbidden {
		t.Fatalf("expected forbidden update, got %v", err)
	}
	if err := denied.Delete(ctx, org, o.ID); apperr.KindOf(err) != apperr.KindForbidden {
		t.Fatalf("expected forbidden delete, got %v", err)
	}
	if repo.observations[o.ID] == nil || repo.observations[o.ID].Value != "13.9" {
		t.Error("denied writes must leave the record untouched")
	}
}

func testActor() auth.Actor {
	return auth.Actor{ID: uuid.New(), Name: "Staff", Role: "staff"}
}

func f(v float64) *float64 { return &v }

func TestAbnormal(t *testing.T) {
	tests := []struct {
		name    string
		value   string
		low     *float64
		high    *float64
		want    bool
		numeric bool
	}{
		{"within range", "5.4", f(4.0), f(11.0), false, true},
		{"below low", "3.1", f(4.0), f(11.0), true, true},
		{"above high", "14.2", f(4.0), f(11.0), true, true},
		{"at low boundary", "4.0", f(4.0), f(11.0), false, true},
		{"at high boundary", "11.0", f(4.0), f(11.0), false, true},
		{"no range", "999", nil, nil, false, true},
		{"only high", "140", nil, f(120.0), true, true},
		{"qualitative", "positive", f(0.0), f(1.0), false, false},
		{"padded numeric", " 7.2 ", f(4.0), f(11.0), false, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := &Observation{Value: tt.value, RefLow: tt.low, RefHigh: tt.high}
			if _, ok := o.NumericValue(); ok != tt.numeric {
				t.Errorf("NumericValue ok = %v, want %v", ok, tt.numeric)
			}
			if got := o.Abnormal(); got != tt.want {
				t.Errorf("Abnormal() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestMarshalIncludesAbnormalFlag(t *testing.T) {
	o := &Observation{Code: "718-7", Value: "3.1", RefLow: f(4.0), RefHigh: f(11.0)}
	raw, err := json.Marshal(o)
	if err != nil {
		t.Fatal(err)
	}
	var out map[string]interface{}
	if err := json.Unmarshal(raw, &out); err != nil {
		t.Fatal(err)
	}
	if out["abnormal"] != true {
		t.Errorf("expected abnormal=true in payload, got %v", out["abnormal"])
	}
}

func TestCreate_FilesUnderEncounterPatient(t *testing.T) {
	encounterID := uuid.New()
	patientID := uuid.New()
	resolver := &mockResolver{owners: map[uuid.UUID]uuid.UUID{encounterID: patientID}}
	svc := newService(newMockRepo(), resolver)

	o, err := svc.Create(context.Background(), testActor(), CreateInput{
		EncounterID: &encounterID,
		Code:        "718-7",
		Value:       "13.9",
	})
	if err != nil {
		t.Fatal(err)
	}
	if o.PatientID != patientID {
		t.Errorf("expected patient %s inherited from encounter, got %s", patientID, o.PatientID)
	}
}

func TestCreate_Validation(t *testing.T) {
	encounterID := uuid.New()
	resolver := &mockResolver{owners: map[uuid.UUID]uuid.UUID{encounterID: uuid.New()}}
	svc := newService(newMockRepo(), resolver)
	bad := "yesterday"

	tests := []struct {
		name string
		in   CreateInput
	}{
		{"missing encounter", CreateInput{Code: "718-7", Value: "13.9"}},
		{"missing code", CreateInput{EncounterID: &encounterID, Value: "13.9"}},
		{"missing value", CreateInput{EncounterID: &encounterID, Code: "718-7"}},
		{"inverted range", CreateInput{EncounterID: &encounterID, Code: "718-7", Value: "13.9", RefLow: f(11.0), RefHigh: f(4.0)}},
		{"bad observed_at", CreateInput{EncounterID: &encounterID, Code: "718-7", Value: "13.9", ObservedAt: &bad}},
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

func TestUpdate_RangeStaysConsistent(t *testing.T) {
	encounterID := uuid.New()
	resolver := &mockResolver{owners: map[uuid.UUID]uuid.UUID{encounterID: uuid.New()}}
	repo := newMockRepo()
	svc := newService(repo, resolver)
	ctx := context.Background()
	actor := testActor()

	o, err := svc.Create(ctx, actor, CreateInput{
		EncounterID: &encounterID,
		Code:        "718-7",
		Value:       "13.9",
		RefLow:      f(12.0),
		RefHigh:     f(17.5),
	})
	if err != nil {
		t.Fatal(err)
	}

	// Raising only ref_low above the stored ref_high is rejected, and the
	// rejection must not leak into the stored entity even when the
	// repository hands back a live reference.
	if _, err := svc.Update(ctx, actor, o.ID, UpdateInput{RefLow: f(20.0)}); apperr.KindOf(err) != apperr.KindValidation {
		t.Errorf("expected validation error for inverted range, got %v", err)
	}
	if stored := repo.observations[o.ID]; stored.RefLow == nil || *stored.RefLow != 12.0 {
		t.Fatal("rejected update mutated the stored observation")
	}

	value := "14.4"
	updated, err := svc.Update(ctx, actor, o.ID, UpdateInput{Value: &value})
	if err != nil {
		t.Fatal(err)
	}
	if updated.Value != value {
		t.Errorf("value not applied: %s", updated.Value)
	}
	if updated.RefLow == nil || *updated.RefLow != 12.0 {
		t.Error("untouched range changed")
	}
}

package practitioner

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/clinrec/clinrec/internal/domain/auditevent"
	"github.com/clinrec/clinrec/internal/platform/apperr"
	"github.com/clinrec/clinrec/internal/platform/auth"
	"github.com/clinrec/clinrec/internal/platform/query"
	"github.com/clinrec/clinrec/pkg/pagination"
)

func uniqueViolation(constraint string) error {
	return &pgconn.PgError{Code: "23505", ConstraintName: constraint}
}

type mockRepo struct {
	practitioners map[uuid.UUID]*Practitioner
}

func newMockRepo() *mockRepo {
	return &mockRepo{practitioners: make(map[uuid.UUID]*Practitioner)}
}

func (m *mockRepo) Create(_ context.Context, p *Practitioner) error {
	for _, other := range m.practitioners {
		if other.Identifier == p.Identifier {
			return uniqueViolation("practitioners_identifier_key")
		}
	}
	p.ID = uuid.New()
	p.CreatedAt = time.Now()
	p.UpdatedAt = time.Now()
	m.practitioners[p.ID] = p
	return nil
}

func (m *mockRepo) GetByID(_ context.Context, id uuid.UUID) (*Practitioner, error) {
	p, ok := m.practitioners[id]
	if !ok {
		return nil, fmt.Errorf("not found")
	}
	return p, nil
}

func (m *mockRepo) Update(_ context.Context, p *Practitioner) error {
	m.practitioners[p.ID] = p
	return nil
}

func (m *mockRepo) Delete(_ context.Context, id uuid.UUID) error {
	delete(m.practitioners, id)
	return nil
}

func (m *mockRepo) List(_ context.Context, _ map[string]string, _, _ string, _ pagination.Params) ([]*Practitioner, int, *query.Plan, error) {
	var out []*Practitioner
	for _, p := range m.practitioners {
		out = append(out, p)
	}
	return out, len(out), nil, nil
}

func (m *mockRepo) Lookup(_ context.Context, search string) ([]*LookupEntry, error) {
	var out []*LookupEntry
	for _, p := range m.practitioners {
		if !p.Active {
			continue
		}
		if search != "" && !strings.Contains(strings.ToLower(p.FullName()), strings.ToLower(search)) {
			continue
		}
		spec := ""
		if p.Specialty != nil {
			spec = *p.Specialty
		}
		out = append(out, &LookupEntry{ID: p.ID, FullName: p.FullName(), Specialty: spec})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].FullName < out[j].FullName })
	if len(out) > LookupLimit {
		out = out[:LookupLimit]
	}
	return out, nil
}

func newService(repo Repository) *Service {
	audit := auditevent.NewService(&auditNull{}, zerolog.Nop(),
		prometheus.NewCounter(prometheus.CounterOpts{Name: "pract_test_audit_errors_total"}))
	return NewService(repo, audit)
}

type auditNull struct{}

func (a *auditNull) Create(_ context.Context, _ *auditevent.AuditEvent) error { return nil }
func (a *auditNull) List(_ context.Context, _ map[string]string, _, _ string, _ pagination.Params) ([]*auditevent.AuditEvent, int, *query.Plan, error) {
	return nil, 0, nil, nil
}

func testActor() auth.Actor {
	return auth.Actor{ID: uuid.New(), Name: "Staff", Role: "staff"}
}

func validInput() CreateInput {
	return CreateInput{Identifier: "LIC-9001", FirstName: "Maria", LastName: "Soto"}
}

func TestCreate_DefaultsActive(t *testing.T) {
	svc := newService(newMockRepo())
	p, err := svc.Create(context.Background(), testActor(), validInput())
	if err != nil {
		t.Fatal(err)
	}
	if !p.Active {
		t.Error("new practitioners default to active")
	}
}

func TestCreate_DuplicateIdentifierConflicts(t *testing.T) {
	svc := newService(newMockRepo())
	ctx := context.Background()

	if _, err := svc.Create(ctx, testActor(), validInput()); err != nil {
		t.Fatal(err)
	}
	_, err := svc.Create(ctx, testActor(), validInput())
	if !apperr.IsConflict(err) {
		t.Fatalf("expected conflict, got %v", err)
	}
}

func TestCreate_Validation(t *testing.T) {
	svc := newService(newMockRepo())
	_, err := svc.Create(context.Background(), testActor(), CreateInput{Identifier: " "})
	if apperr.KindOf(err) != apperr.KindValidation {
		t.Fatalf("expected validation error, got %v", err)
	}
	fields := apperr.FieldsOf(err)
	for _, f := range []string{"identifier", "first_name", "last_name"} {
		if _, ok := fields[f]; !ok {
			t.Errorf("expected %s field error", f)
		}
	}
}

func TestUpdate_Deactivate(t *testing.T) {
	repo := newMockRepo()
	svc := newService(repo)
	ctx := context.Background()

	p, err := svc.Create(ctx, testActor(), validInput())
	if err != nil {
		t.Fatal(err)
	}

	inactive := false
	updated, err := svc.Update(ctx, testActor(), p.ID, UpdateInput{Active: &inactive})
	if err != nil {
		t.Fatal(err)
	}
	if updated.Active {
		t.Error("deactivation not applied")
	}
}

func TestLookup_ActiveOnlyAndCapped(t *testing.T) {
	repo := newMockRepo()
	svc := newService(repo)
	ctx := context.Background()

	for i := 0; i < LookupLimit+5; i++ {
		in := CreateInput{
			Identifier: fmt.Sprintf("LIC-%04d", i),
			FirstName:  fmt.Sprintf("Doc%02d", i),
			LastName:   "Activo",
		}
		if _, err := svc.Create(ctx, testActor(), in); err != nil {
			t.Fatal(err)
		}
	}
	inactive := false
	p, _ := svc.Create(ctx, testActor(), CreateInput{Identifier: "LIC-OFF", FirstName: "Fuera", LastName: "Servicio", Active: &inactive})
	_ = p

	entries, err := svc.Lookup(ctx, "")
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != LookupLimit {
		t.Errorf("expected cap at %d, got %d", LookupLimit, len(entries))
	}
	for _, e := range entries {
		if strings.Contains(e.FullName, "Fuera") {
			t.Error("inactive practitioner leaked into lookup")
		}
	}
}

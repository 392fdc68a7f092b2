package query

import (
	"strings"
	"testing"
	"time"
)

func patientSpec() Spec {
	return Spec{
		Table:   "patients",
		Columns: "id, identifier, first_name",
		Filters: map[string]Filter{
			"identifier": {Kind: KindExact, Column: "identifier"},
			"first_name": {Kind: KindLike, Column: "first_name"},
			"birthdate":  {Kind: KindDate, Column: "date_of_birth"},
			"from":       {Kind: KindDateFrom, Column: "created_at"},
			"to":         {Kind: KindDateTo, Column: "created_at"},
			"gender":     {Kind: KindInSet, Column: "gender", Allowed: []string{"male", "female", "other", "unknown"}},
			"status":     {Kind: KindJSON, Column: "document", Path: "status"},
			"active":     {Kind: KindBool, Column: "active"},
		},
		Sortable: map[string]string{
			"created_at": "created_at",
			"last_name":  "last_name",
		},
		DefaultSort: "created_at DESC",
		TieBreak:    "id DESC",
	}
}

func TestBuild_ExactAndLike(t *testing.T) {
	plan := patientSpec().Build(map[string]string{
		"identifier": "1234-LP",
		"first_name": "Ana",
	}, "", "")

	sql := plan.DataSQL(10, 0)
	if !strings.Contains(sql, "identifier = $") {
		t.Errorf("expected exact clause, got %q", sql)
	}
	if !strings.Contains(sql, "first_name ILIKE $") {
		t.Errorf("expected ILIKE clause, got %q", sql)
	}

	args := plan.CountArgs()
	if len(args) != 2 {
		t.Fatalf("expected 2 args, got %d", len(args))
	}
	// Sorted key order: first_name before identifier.
	if args[0] != "%Ana%" {
		t.Errorf("expected substring arg, got %v", args[0])
	}
	if args[1] != "1234-LP" {
		t.Errorf("expected exact arg, got %v", args[1])
	}
}

func TestBuild_UnknownKeysIgnored(t *testing.T) {
	plan := patientSpec().Build(map[string]string{
		"identifier":     "1234-LP",
		"drop_table":     "x",
		"nonsense_field": "y",
	}, "", "")

	sql := plan.CountSQL()
	if strings.Contains(sql, "drop_table") || strings.Contains(sql, "nonsense_field") {
		t.Fatalf("unknown key leaked into SQL: %q", sql)
	}
	unknown := plan.Unknown()
	if len(unknown) != 2 {
		t.Fatalf("expected 2 unknown keys, got %v", unknown)
	}
}

func TestBuild_SortAllowList(t *testing.T) {
	spec := patientSpec()

	plan := spec.Build(nil, "last_name", "desc")
	if got := plan.OrderBy(); got != "last_name DESC, id DESC" {
		t.Errorf("expected allow-listed sort with tie-break, got %q", got)
	}

	// Column not in allow-list falls back to the default sort.
	plan = spec.Build(nil, "password; DROP TABLE patients", "asc")
	if got := plan.OrderBy(); got != "created_at DESC, id DESC" {
		t.Errorf("expected default sort fallback, got %q", got)
	}
}

func TestBuild_TieBreakNotDuplicated(t *testing.T) {
	spec := patientSpec()
	spec.DefaultSort = "id DESC"
	plan := spec.Build(nil, "", "")
	if got := plan.OrderBy(); got != "id DESC" {
		t.Errorf("tie-break duplicated: %q", got)
	}
}

func TestBuild_DateWholeDay(t *testing.T) {
	plan := patientSpec().Build(map[string]string{"birthdate": "1990-01-01"}, "", "")
	args := plan.CountArgs()
	if len(args) != 2 {
		t.Fatalf("expected day-range bounds, got %d args", len(args))
	}
	start := args[0].(time.Time)
	end := args[1].(time.Time)
	if !start.Equal(time.Date(1990, 1, 1, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("unexpected start bound %v", start)
	}
	if !end.After(start) || end.Sub(start) >= 24*time.Hour {
		t.Errorf("unexpected end bound %v", end)
	}
}

func TestBuild_DateRange(t *testing.T) {
	plan := patientSpec().Build(map[string]string{
		"from": "2024-01-01",
		"to":   "2024-12-31",
	}, "", "")
	sql := plan.CountSQL()
	if !strings.Contains(sql, "created_at >= $") || !strings.Contains(sql, "created_at <= $") {
		t.Errorf("expected range clauses, got %q", sql)
	}
}

func TestBuild_InSetRejectsUnlisted(t *testing.T) {
	plan := patientSpec().Build(map[string]string{"gender": "martian"}, "", "")
	if len(plan.CountArgs()) != 0 {
		t.Errorf("unlisted in-set value must not bind: %v", plan.CountArgs())
	}

	plan = patientSpec().Build(map[string]string{"gender": "female"}, "", "")
	if len(plan.CountArgs()) != 1 {
		t.Errorf("listed in-set value must bind, got %v", plan.CountArgs())
	}
}

func TestBuild_JSONPath(t *testing.T) {
	plan := patientSpec().Build(map[string]string{"status": "final"}, "", "")
	if !strings.Contains(plan.CountSQL(), "document->>'status' = $") {
		t.Errorf("expected json path clause, got %q", plan.CountSQL())
	}
}

func TestBuild_BadBoolIgnored(t *testing.T) {
	plan := patientSpec().Build(map[string]string{"active": "maybe"}, "", "")
	if len(plan.CountArgs()) != 0 {
		t.Errorf("invalid bool must not bind, got %v", plan.CountArgs())
	}
}

func TestBuild_Idempotent(t *testing.T) {
	params := map[string]string{"identifier": "X", "first_name": "Ana", "gender": "female"}
	a := patientSpec().Build(params, "last_name", "asc")
	b := patientSpec().Build(params, "last_name", "asc")
	if a.DataSQL(10, 20) != b.DataSQL(10, 20) {
		t.Errorf("identical inputs produced different SQL:\n%s\n%s", a.DataSQL(10, 20), b.DataSQL(10, 20))
	}
	for i := range a.CountArgs() {
		if a.CountArgs()[i] != b.CountArgs()[i] {
			t.Errorf("arg %d differs: %v vs %v", i, a.CountArgs()[i], b.CountArgs()[i])
		}
	}
}

func TestDataSQL_LimitPlaceholders(t *testing.T) {
	plan := patientSpec().Build(map[string]string{"identifier": "X"}, "", "")
	sql := plan.DataSQL(25, 50)
	if !strings.Contains(sql, "LIMIT $2 OFFSET $3") {
		t.Errorf("expected limit/offset placeholders after filter args, got %q", sql)
	}
	args := plan.DataArgs(25, 50)
	if args[len(args)-2] != 25 || args[len(args)-1] != 50 {
		t.Errorf("expected trailing limit/offset args, got %v", args)
	}
}

// Package query translates declarative filter/sort/paginate specifications
// into parameterized SQL plans. Column names only ever come from the Spec
// tables, never from request input, so a plan is safe by construction.
package query

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Kind defines how a filter key is compared against its column.
type Kind int

const (
	KindExact    Kind = iota // column = value
	KindLike                 // column ILIKE %value%
	KindBool                 // column = true/false
	KindDate                 // whole-day match on a date/timestamp column
	KindDateFrom             // column >= value
	KindDateTo               // column <= value
	KindJSON                 // jsonb column ->> path = value
	KindInSet                // column = value, value restricted to Allowed
)

// Filter maps one recognized filter key to a column and comparison kind.
type Filter struct {
	Kind    Kind
	Column  string
	Path    string   // JSON key for KindJSON
	Allowed []string // permitted values for KindInSet
}

// Spec is the per-resource declaration consulted by the engine.
type Spec struct {
	Table       string
	Columns     string
	Filters     map[string]Filter
	Sortable    map[string]string // sort key -> column
	DefaultSort string            // e.g. "created_at DESC"
	TieBreak    string            // always appended, e.g. "id DESC"
}

// Plan is a bound, ordered query ready for execution.
type Plan struct {
	spec    Spec
	where   string
	args    []interface{}
	idx     int
	orderBy string
	unknown []string
}

// Build applies the recognized filters from params and resolves the sort.
// Unrecognized filter keys are collected (see Unknown) and otherwise ignored.
// A sort key outside the allow-list falls back to the default sort; the
// tie-break column is appended unconditionally so pagination stays stable.
func (s Spec) Build(params map[string]string, sortKey, direction string) *Plan {
	p := &Plan{spec: s, idx: 1}

	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, key := range keys {
		value := strings.TrimSpace(params[key])
		if value == "" {
			continue
		}
		f, ok := s.Filters[key]
		if !ok {
			p.unknown = append(p.unknown, key)
			continue
		}
		p.apply(f, value)
	}

	p.orderBy = s.resolveSort(sortKey, direction)
	return p
}

func (p *Plan) apply(f Filter, value string) {
	switch f.Kind {
	case KindExact:
		p.add(fmt.Sprintf("%s = $%d", f.Column, p.idx), value)
	case KindLike:
		p.add(fmt.Sprintf("%s ILIKE $%d", f.Column, p.idx), "%"+value+"%")
	case KindBool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return
		}
		p.add(fmt.Sprintf("%s = $%d", f.Column, p.idx), b)
	case KindDate:
		t, err := parseDate(value)
		if err != nil {
			return
		}
		end := t.Add(24*time.Hour - time.Nanosecond)
		p.where += fmt.Sprintf(" AND (%s >= $%d AND %s <= $%d)", f.Column, p.idx, f.Column, p.idx+1)
		p.args = append(p.args, t, end)
		p.idx += 2
	case KindDateFrom:
		t, err := parseDate(value)
		if err != nil {
			return
		}
		p.add(fmt.Sprintf("%s >= $%d", f.Column, p.idx), t)
	case KindDateTo:
		t, err := parseDate(value)
		if err != nil {
			return
		}
		p.add(fmt.Sprintf("%s <= $%d", f.Column, p.idx), t)
	case KindJSON:
		p.add(fmt.Sprintf("%s->>'%s' = $%d", f.Column, f.Path, p.idx), value)
	case KindInSet:
		for _, allowed := range f.Allowed {
			if value == allowed {
				p.add(fmt.Sprintf("%s = $%d", f.Column, p.idx), value)
				return
			}
		}
	}
}

func (p *Plan) add(clause string, arg interface{}) {
	p.where += " AND " + clause
	p.args = append(p.args, arg)
	p.idx++
}

// Add appends a raw WHERE fragment with bound args. The fragment must use
// placeholders starting at Idx().
func (p *Plan) Add(clause string, args ...interface{}) {
	p.where += " AND " + clause
	p.args = append(p.args, args...)
	p.idx += len(args)
}

// Idx returns the next available placeholder index.
func (p *Plan) Idx() int { return p.idx }

func (s Spec) resolveSort(sortKey, direction string) string {
	order := s.DefaultSort
	if col, ok := s.Sortable[sortKey]; ok {
		dir := "ASC"
		if strings.EqualFold(direction, "desc") {
			dir = "DESC"
		}
		order = col + " " + dir
	}
	if s.TieBreak != "" && !strings.HasPrefix(order, strings.Fields(s.TieBreak)[0]+" ") {
		order += ", " + s.TieBreak
	}
	return order
}

// Unknown returns the filter keys that were present but unrecognized.
func (p *Plan) Unknown() []string { return p.unknown }

// CountSQL returns the total-count query.
func (p *Plan) CountSQL() string {
	return fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE 1=1%s", p.spec.Table, p.where)
}

// CountArgs returns the arguments for the count query.
func (p *Plan) CountArgs() []interface{} { return p.args }

// DataSQL returns the page query with ORDER BY and LIMIT/OFFSET.
func (p *Plan) DataSQL(limit, offset int) string {
	return fmt.Sprintf("SELECT %s FROM %s WHERE 1=1%s ORDER BY %s LIMIT $%d OFFSET $%d",
		p.spec.Columns, p.spec.Table, p.where, p.orderBy, p.idx, p.idx+1)
}

// DataArgs returns the arguments for the page query.
func (p *Plan) DataArgs(limit, offset int) []interface{} {
	out := make([]interface{}, len(p.args)+2)
	copy(out, p.args)
	out[len(p.args)] = limit
	out[len(p.args)+1] = offset
	return out
}

// OrderBy returns the resolved ORDER BY clause, tie-break included.
func (p *Plan) OrderBy() string { return p.orderBy }

func parseDate(s string) (time.Time, error) {
	formats := []string{
		time.RFC3339,
		"2006-01-02T15:04:05",
		"2006-01-02",
	}
	for _, f := range formats {
		if t, err := time.Parse(f, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unable to parse date: %s", s)
}

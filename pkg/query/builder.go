package query

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"time"
)

// SortField is one ORDER BY term. Field is a projected view name.
type SortField struct {
	Field      string
	Descending bool
}

// ParseSortFields parses a comma-separated sort string such as
// "CaseID,-PublishedAt". A leading "-" sorts descending; blank entries are
// skipped. Returns nil for empty input.
func ParseSortFields(s string) []SortField {
	var fields []SortField
	for part := range strings.SplitSeq(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		name, desc := strings.CutPrefix(part, "-")
		fields = append(fields, SortField{Field: name, Descending: desc})
	}
	return fields
}

// condition is one AND term. Each ? in clause is bound to the next arg.
type condition struct {
	clause string
	args   []any
}

// Builder assembles SELECT, COUNT, and page queries over a projection.
// Conditions are joined with AND and numbered $1..$n in the order added.
// Optional filters are no-ops when their value is nil or empty.
type Builder struct {
	projection  *ProjectionMap
	conditions  []condition
	sort        []SortField
	defaultSort []SortField
}

// NewBuilder creates a Builder for projection with optional default sort
// fields.
func NewBuilder(projection *ProjectionMap, defaultSort ...SortField) *Builder {
	return &Builder{
		projection:  projection,
		defaultSort: defaultSort,
	}
}

// OrderByFields replaces the default sort order.
func (b *Builder) OrderByFields(fields []SortField) *Builder {
	b.sort = fields
	return b
}

// WhereEquals adds an equality condition.
func (b *Builder) WhereEquals(field string, value any) *Builder {
	if isNil(value) {
		return b
	}
	return b.where(field, "= ?", value)
}

// WhereContains adds a case-insensitive substring match.
func (b *Builder) WhereContains(field string, value *string) *Builder {
	if value == nil || *value == "" {
		return b
	}
	return b.where(field, "ILIKE ?", "%"+*value+"%")
}

// WhereIn adds an IN condition over values.
func (b *Builder) WhereIn(field string, values []any) *Builder {
	if len(values) == 0 {
		return b
	}
	marks := strings.TrimSuffix(strings.Repeat("?, ", len(values)), ", ")
	return b.where(field, "IN ("+marks+")", values...)
}

// WhereSince keeps rows whose field is at or after t.
func (b *Builder) WhereSince(field string, t *time.Time) *Builder {
	if t == nil || t.IsZero() {
		return b
	}
	return b.where(field, ">= ?", *t)
}

// WhereSearch matches search case-insensitively against any of fields.
func (b *Builder) WhereSearch(search *string, fields ...string) *Builder {
	if search == nil || *search == "" || len(fields) == 0 {
		return b
	}

	clauses := make([]string, len(fields))
	args := make([]any, len(fields))
	for i, field := range fields {
		clauses[i] = b.projection.Column(field) + " ILIKE ?"
		args[i] = "%" + *search + "%"
	}

	b.conditions = append(b.conditions, condition{
		clause: "(" + strings.Join(clauses, " OR ") + ")",
		args:   args,
	})
	return b
}

// Values converts a typed slice into the []any form WhereIn takes.
func Values[T any](vs []T) []any {
	out := make([]any, len(vs))
	for i, v := range vs {
		out[i] = v
	}
	return out
}

// Build returns a SELECT with the current conditions and ordering.
func (b *Builder) Build() (string, []any) {
	from, args := b.from()
	return "SELECT " + b.projection.Columns() + from + b.orderBy(), args
}

// BuildCount returns a COUNT(*) with the current conditions.
func (b *Builder) BuildCount() (string, []any) {
	from, args := b.from()
	return "SELECT COUNT(*)" + from, args
}

// BuildPage returns Build limited to limit rows starting at offset.
func (b *Builder) BuildPage(limit, offset int) (string, []any) {
	sql, args := b.Build()
	return fmt.Sprintf("%s LIMIT %d OFFSET %d", sql, limit, offset), args
}

func (b *Builder) where(field, op string, args ...any) *Builder {
	b.conditions = append(b.conditions, condition{
		clause: b.projection.Column(field) + " " + op,
		args:   args,
	})
	return b
}

func (b *Builder) from() (string, []any) {
	from := " FROM " + b.projection.Table()
	if len(b.conditions) == 0 {
		return from, nil
	}

	var (
		sb   strings.Builder
		args []any
	)
	sb.WriteString(from + " WHERE ")
	for i, c := range b.conditions {
		if i > 0 {
			sb.WriteString(" AND ")
		}
		next := 0
		for _, r := range c.clause {
			if r != '?' {
				sb.WriteRune(r)
				continue
			}
			args = append(args, c.args[next])
			next++
			sb.WriteString("$" + strconv.Itoa(len(args)))
		}
	}
	return sb.String(), args
}

// orderBy renders the sort order. Sort fields arrive from query strings, so
// only projected fields reach SQL.
func (b *Builder) orderBy() string {
	fields := b.sort
	if len(fields) == 0 {
		fields = b.defaultSort
	}

	parts := make([]string, 0, len(fields))
	for _, f := range fields {
		if !b.projection.Has(f.Field) {
			continue
		}
		dir := " ASC"
		if f.Descending {
			dir = " DESC"
		}
		parts = append(parts, b.projection.Column(f.Field)+dir)
	}

	if len(parts) == 0 {
		return ""
	}
	return " ORDER BY " + strings.Join(parts, ", ")
}

func isNil(value any) bool {
	if value == nil {
		return true
	}

	v := reflect.ValueOf(value)
	switch v.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Slice, reflect.Chan, reflect.Func, reflect.Interface:
		return v.IsNil()
	}
	return false
}

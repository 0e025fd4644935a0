// Package query builds parameterized Postgres queries over a projected table.
package query

import "strings"

// ProjectionMap maps view names to alias-qualified columns of one table.
// Columns keep their projection order in SELECT lists.
type ProjectionMap struct {
	table   string
	columns map[string]string
	order   []string
}

// NewProjectionMap creates a ProjectionMap for schema.table aliased as alias.
func NewProjectionMap(schema, table, alias string) *ProjectionMap {
	return &ProjectionMap{
		table:   schema + "." + table + " " + alias,
		columns: make(map[string]string),
	}
}

// Project maps column to viewName.
func (p *ProjectionMap) Project(column, viewName string) *ProjectionMap {
	alias := p.table[strings.LastIndexByte(p.table, ' ')+1:]
	qualified := alias + "." + column
	p.columns[viewName] = qualified
	p.order = append(p.order, qualified)
	return p
}

// Table returns the aliased table reference.
func (p *ProjectionMap) Table() string {
	return p.table
}

// Column returns the qualified column for viewName, or viewName itself when
// it is not projected.
func (p *ProjectionMap) Column(viewName string) string {
	if col, ok := p.columns[viewName]; ok {
		return col
	}
	return viewName
}

// Has reports whether viewName is projected.
func (p *ProjectionMap) Has(viewName string) bool {
	_, ok := p.columns[viewName]
	return ok
}

// Columns returns the projected columns as a SELECT list.
func (p *ProjectionMap) Columns() string {
	return strings.Join(p.order, ", ")
}

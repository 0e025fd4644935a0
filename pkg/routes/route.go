// Package routes describes handler trees that register onto a ServeMux with
// Go 1.22 method patterns.
package routes

import "net/http"

// Route is one method and path under its group.
type Route struct {
	Method  string
	Pattern string
	Handler http.HandlerFunc
}

func (r Route) under(prefix string) string {
	return r.Method + " " + prefix + r.Pattern
}

// Package module mounts prefix-scoped handlers, such as the GIS API, behind a
// single top-level router.
package module

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/JaimeStill/canopy/pkg/middleware"
)

// Module serves every request under one path segment. The segment is removed
// before the request reaches the module's router.
type Module struct {
	prefix string
	router http.Handler
	chain  middleware.Chain
}

// New returns a Module for a single-segment prefix such as "/api".
func New(prefix string, router http.Handler) (*Module, error) {
	if prefix == "" || prefix[0] != '/' {
		return nil, fmt.Errorf("module prefix must start with /: %q", prefix)
	}
	if strings.Count(prefix, "/") != 1 || len(prefix) == 1 {
		return nil, fmt.Errorf("module prefix must be one path segment: %q", prefix)
	}
	return &Module{prefix: prefix, router: router}, nil
}

// Prefix is the segment the module is mounted on.
func (m *Module) Prefix() string {
	return m.prefix
}

// Use appends middleware that runs before the module's router.
func (m *Module) Use(mw ...middleware.Middleware) {
	m.chain.Use(mw...)
}

// Serve dispatches r to the router with the prefix trimmed from its path.
func (m *Module) Serve(w http.ResponseWriter, r *http.Request) {
	m.chain.Then(m.router).ServeHTTP(w, withPath(r, m.innerPath(r.URL.Path)))
}

func (m *Module) innerPath(path string) string {
	inner := strings.TrimPrefix(path, m.prefix)
	if inner == "" {
		return "/"
	}
	return inner
}

// withPath returns a shallow copy of r routed to path. r itself is left as
// received so outer middleware logs the original URI.
func withPath(r *http.Request, path string) *http.Request {
	if r.URL.Path == path {
		return r
	}
	u := *r.URL
	u.Path = path
	u.RawPath = ""

	out := r.Clone(r.Context())
	out.URL = &u
	return out
}

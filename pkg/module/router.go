package module

import (
	"fmt"
	"net/http"
	"strings"
)

// Router sends requests to the module mounted on their first path segment
// and everything else to a plain ServeMux for health and readiness routes.
type Router struct {
	modules map[string]*Module
	native  *http.ServeMux
}

// NewRouter returns a Router with no modules mounted.
func NewRouter() *Router {
	return &Router{
		modules: make(map[string]*Module),
		native:  http.NewServeMux(),
	}
}

// HandleNative registers handler on the fallback mux.
func (rt *Router) HandleNative(pattern string, handler http.HandlerFunc) {
	rt.native.HandleFunc(pattern, handler)
}

// Mount adds m. Mounting two modules on one prefix is an error.
func (rt *Router) Mount(m *Module) error {
	if _, ok := rt.modules[m.prefix]; ok {
		return fmt.Errorf("module already mounted on %s", m.prefix)
	}
	rt.modules[m.prefix] = m
	return nil
}

func (rt *Router) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Path
	if trimmed := strings.TrimSuffix(path, "/"); trimmed != "" && trimmed != path {
		r = withPath(r, trimmed)
		path = trimmed
	}

	if m, ok := rt.modules[firstSegment(path)]; ok {
		m.Serve(w, r)
		return
	}
	rt.native.ServeHTTP(w, r)
}

func firstSegment(path string) string {
	rest := strings.TrimPrefix(path, "/")
	seg, _, _ := strings.Cut(rest, "/")
	return "/" + seg
}

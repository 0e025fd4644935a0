package routes

import "net/http"

// Group shares a path prefix across its routes and child groups.
type Group struct {
	Prefix   string
	Routes   []Route
	Children []Group
}

// WithPrefix returns g mounted at prefix instead of its own. An empty prefix
// keeps the group's default.
func (g Group) WithPrefix(prefix string) Group {
	if prefix != "" {
		g.Prefix = prefix
	}
	return g
}

// Register adds every route in groups to mux.
func Register(mux *http.ServeMux, groups ...Group) {
	for _, g := range groups {
		g.walk("", func(pattern string, h http.HandlerFunc) {
			mux.HandleFunc(pattern, h)
		})
	}
}

// Patterns lists the mux patterns Register would add for groups, in
// registration order.
func Patterns(groups ...Group) []string {
	var out []string
	for _, g := range groups {
		g.walk("", func(pattern string, _ http.HandlerFunc) {
			out = append(out, pattern)
		})
	}
	return out
}

func (g Group) walk(parent string, visit func(string, http.HandlerFunc)) {
	prefix := parent + g.Prefix
	for _, r := range g.Routes {
		visit(r.under(prefix), r.Handler)
	}
	for _, child := range g.Children {
		child.walk(prefix, visit)
	}
}

package module_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/JaimeStill/canopy/pkg/module"
	"github.com/JaimeStill/canopy/pkg/routes"
)

func TestNewRejectsInvalidPrefix(t *testing.T) {
	for _, prefix := range []string{"", "/", "api", "/api/v1"} {
		t.Run(prefix, func(t *testing.T) {
			if _, err := module.New(prefix, http.NewServeMux()); err == nil {
				t.Errorf("New(%q) accepted an invalid prefix", prefix)
			}
		})
	}
}

func mustModule(t *testing.T, prefix string, h http.Handler) *module.Module {
	t.Helper()
	m, err := module.New(prefix, h)
	if err != nil {
		t.Fatal(err)
	}
	return m
}

func TestMountRejectsDuplicatePrefix(t *testing.T) {
	router := module.NewRouter()
	if err := router.Mount(mustModule(t, "/api", http.NewServeMux())); err != nil {
		t.Fatal(err)
	}
	if err := router.Mount(mustModule(t, "/api", http.NewServeMux())); err == nil {
		t.Error("second mount on /api succeeded")
	}
}

func newAPI(t *testing.T) (*module.Router, *[]string) {
	t.Helper()

	var seen []string
	record := func(w http.ResponseWriter, r *http.Request) {
		seen = append(seen, r.URL.Path)
		w.Write([]byte(r.PathValue("caseId")))
	}

	mux := http.NewServeMux()
	routes.Register(mux, routes.Group{
		Prefix: "/register",
		Routes: []routes.Route{
			{Method: "GET", Pattern: "", Handler: record},
		},
		Children: []routes.Group{{
			Prefix: "/cases",
			Routes: []routes.Route{
				{Method: "POST", Pattern: "/{caseId}", Handler: record},
			},
		}},
	})

	router := module.NewRouter()
	if err := router.Mount(mustModule(t, "/api", mux)); err != nil {
		t.Fatal(err)
	}
	router.HandleNative("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})
	return router, &seen
}

func TestRouterDispatch(t *testing.T) {
	tests := []struct {
		name     string
		method   string
		path     string
		status   int
		body     string
		wantSeen string
	}{
		{"module route", "GET", "/api/register", http.StatusOK, "", "/register"},
		{"trailing slash", "GET", "/api/register/", http.StatusOK, "", "/register"},
		{"child group", "POST", "/api/register/cases/FLA-001", http.StatusOK, "FLA-001", "/register/cases/FLA-001"},
		{"native fallback", "GET", "/healthz", http.StatusOK, "ok", ""},
		{"wrong method", "DELETE", "/api/register", http.StatusMethodNotAllowed, "", ""},
		{"unknown module", "GET", "/docs", http.StatusNotFound, "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router, seen := newAPI(t)

			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, httptest.NewRequest(tt.method, tt.path, nil))

			if rec.Code != tt.status {
				t.Fatalf("status = %d, want %d", rec.Code, tt.status)
			}
			if tt.body != "" && rec.Body.String() != tt.body {
				t.Errorf("body = %q, want %q", rec.Body.String(), tt.body)
			}
			if tt.wantSeen != "" && (len(*seen) != 1 || (*seen)[0] != tt.wantSeen) {
				t.Errorf("inner paths = %v, want [%s]", *seen, tt.wantSeen)
			}
		})
	}
}

func TestModuleMiddlewareSeesOriginalPath(t *testing.T) {
	var inner string
	mux := http.NewServeMux()
	mux.HandleFunc("GET /zones", func(w http.ResponseWriter, r *http.Request) {
		inner = r.URL.Path
	})

	m := mustModule(t, "/api", mux)

	var outer []string
	m.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			outer = append(outer, "first")
			next.ServeHTTP(w, r)
		})
	}, func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			outer = append(outer, "second")
			next.ServeHTTP(w, r)
		})
	})

	req := httptest.NewRequest("GET", "/api/zones", nil)
	m.Serve(httptest.NewRecorder(), req)

	if len(outer) != 2 || outer[0] != "first" {
		t.Errorf("middleware order = %v", outer)
	}
	if inner != "/zones" {
		t.Errorf("inner path = %q, want /zones", inner)
	}
	if req.URL.Path != "/api/zones" {
		t.Errorf("caller request mutated to %q", req.URL.Path)
	}
	if m.Prefix() != "/api" {
		t.Errorf("prefix = %s", m.Prefix())
	}
}

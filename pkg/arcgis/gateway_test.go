package arcgis_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync/atomic"
	"testing"

	"github.com/paulmach/orb"

	"github.com/JaimeStill/canopy/pkg/arcgis"
	"github.com/JaimeStill/canopy/pkg/spatial"
)

// stubProvider serves a token endpoint that issues tok-1, tok-2, ... and
// delegates everything else to handler.
type stubProvider struct {
	srv        *httptest.Server
	tokenCalls atomic.Int32
	calls      atomic.Int32
}

func newStubProvider(t *testing.T, handler http.HandlerFunc) *stubProvider {
	t.Helper()
	s := &stubProvider{}
	mux := http.NewServeMux()
	mux.HandleFunc("/sharing/rest/oauth2/token", func(w http.ResponseWriter, r *http.Request) {
		n := s.tokenCalls.Add(1)
		writeJSON(w, map[string]any{"access_token": fmt.Sprintf("tok-%d", n), "expires_in": 3600})
	})
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		s.calls.Add(1)
		handler(w, r)
	})
	s.srv = httptest.NewServer(mux)
	t.Cleanup(s.srv.Close)
	return s
}

func (s *stubProvider) registry(t *testing.T, mutate func(p *arcgis.ProviderConfig)) *arcgis.Registry {
	t.Helper()
	p := &arcgis.ProviderConfig{
		BaseURL:      s.srv.URL,
		Grant:        arcgis.GrantClientCredentials,
		ClientID:     "id",
		ClientSecret: "secret",
		NeedsToken:   boolPtr(true),
		Endpoints: arcgis.Endpoints{
			Geometry: arcgis.Endpoint{URL: "geometry"},
			Export:   arcgis.Endpoint{URL: "export"},
			Features: arcgis.Endpoint{URL: "features"},
		},
	}
	if mutate != nil {
		mutate(p)
	}
	cfg := &arcgis.Config{
		Retry:     arcgis.RetryConfig{MaxAttempts: 3, BaseDelay: "1ms", MaxDelay: "5ms", JitterPercent: 1},
		Providers: map[string]*arcgis.ProviderConfig{"agol": p},
	}
	if err := cfg.Finalize(nil); err != nil {
		t.Fatalf("finalize: %v", err)
	}
	return arcgis.NewRegistry(cfg, s.srv.Client(), nil, discardLogger())
}

func gatewayFor(t *testing.T, s *stubProvider, mutate func(p *arcgis.ProviderConfig)) arcgis.Gateway {
	t.Helper()
	g, err := s.registry(t, mutate).Get("agol")
	if err != nil {
		t.Fatal(err)
	}
	return g
}

// projectHandler reprojects between WGS84 and Web Mercator with local math.
func projectHandler(t *testing.T) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			t.Fatal(err)
		}
		var batch struct {
			GeometryType string            `json:"geometryType"`
			Geometries   []json.RawMessage `json:"geometries"`
		}
		if err := json.Unmarshal([]byte(r.PostForm.Get("geometries")), &batch); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		in, _ := strconv.Atoi(r.PostForm.Get("inSR"))
		out, _ := strconv.Atoi(r.PostForm.Get("outSR"))

		resp := struct {
			Geometries []json.RawMessage `json:"geometries"`
		}{}
		for _, raw := range batch.Geometries {
			g, err := spatial.ParseEsriTyped(raw, batch.GeometryType, spatial.NewSpatialReference(in))
			if err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			pg, err := spatial.Transform(g, spatial.NewSpatialReference(out))
			if err != nil {
				writeJSON(w, map[string]any{"error": map[string]any{"code": 400, "message": err.Error()}})
				return
			}
			b, _ := pg.MarshalEsri(false)
			resp.Geometries = append(resp.Geometries, b)
		}
		writeJSON(w, resp)
	}
}

func TestProjectRoundTrip(t *testing.T) {
	s := newStubProvider(t, projectHandler(t))
	g := gatewayFor(t, s, nil)
	ctx := context.Background()

	wgs := spatial.NewSpatialReference(spatial.WGS84)
	merc := spatial.NewSpatialReference(spatial.WebMercator)

	input := []spatial.Geometry{
		{Type: spatial.TypePolygon, Rings: []orb.Ring{{{-2.1, 52.4}, {-2.0, 52.4}, {-2.0, 52.5}, {-2.1, 52.4}}}, SpatialReference: wgs},
		{Type: spatial.TypePoint, Points: []orb.Point{{-1.5491, 53.8008}}, SpatialReference: wgs},
		{Type: spatial.TypePolyline, Paths: []orb.LineString{{{0, 50}, {1, 51}, {2, 50.5}}}, SpatialReference: wgs},
	}

	there, err := g.Project(ctx, arcgis.ProjectRequest{Geometries: input, InSR: wgs, OutSR: merc})
	if err != nil {
		t.Fatalf("project A->B: %v", err)
	}
	back, err := g.Project(ctx, arcgis.ProjectRequest{Geometries: there, InSR: merc, OutSR: wgs})
	if err != nil {
		t.Fatalf("project B->A: %v", err)
	}

	if len(back) != len(input) {
		t.Fatalf("got %d geometries, want %d", len(back), len(input))
	}

	const epsilon = 1e-9
	for i := range input {
		if back[i].Type != input[i].Type {
			t.Errorf("geometry %d type %s, want %s", i, back[i].Type, input[i].Type)
		}
		if back[i].SpatialReference.Code() != spatial.WGS84 {
			t.Errorf("geometry %d sr %v", i, back[i].SpatialReference)
		}
		want, got := flatten(input[i]), flatten(back[i])
		for j := range want {
			if math.Abs(want[j][0]-got[j][0]) > epsilon || math.Abs(want[j][1]-got[j][1]) > epsilon {
				t.Errorf("geometry %d point %d: %v != %v", i, j, got[j], want[j])
			}
		}
	}

	if got := s.tokenCalls.Load(); got != 1 {
		t.Errorf("token requests: got %d, want 1", got)
	}
}

func flatten(g spatial.Geometry) []orb.Point {
	var out []orb.Point
	out = append(out, g.Points...)
	for _, p := range g.Paths {
		out = append(out, p...)
	}
	for _, r := range g.Rings {
		out = append(out, r...)
	}
	return out
}

func pointGeometry() spatial.Geometry {
	return spatial.Geometry{
		Type:             spatial.TypePoint,
		Points:           []orb.Point{{-1, 52}},
		SpatialReference: spatial.NewSpatialReference(spatial.WGS84),
	}
}

func TestAuthFailureRetriesOnceWithFreshToken(t *testing.T) {
	var project http.HandlerFunc = func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") == "Bearer tok-1" {
			writeJSON(w, map[string]any{"error": map[string]any{"code": 498, "message": "Invalid token."}})
			return
		}
		projectHandler(t)(w, r)
	}

	s := newStubProvider(t, project)
	g := gatewayFor(t, s, nil)

	wgs := spatial.NewSpatialReference(spatial.WGS84)
	_, err := g.Project(context.Background(), arcgis.ProjectRequest{
		Geometries: []spatial.Geometry{pointGeometry()},
		InSR:       wgs,
		OutSR:      spatial.NewSpatialReference(spatial.WebMercator),
	})
	if err != nil {
		t.Fatalf("expected success after refresh, got %v", err)
	}
	if got := s.tokenCalls.Load(); got != 2 {
		t.Errorf("token requests: got %d, want 2", got)
	}
	if got := s.calls.Load(); got != 2 {
		t.Errorf("project requests: got %d, want 2", got)
	}
}

func TestSecondAuthFailureIsAuthError(t *testing.T) {
	s := newStubProvider(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})
	g := gatewayFor(t, s, nil)

	_, err := g.Union(context.Background(), arcgis.UnionRequest{
		Geometries: []spatial.Geometry{pointGeometry(), pointGeometry()},
		SR:         spatial.NewSpatialReference(spatial.WGS84),
	})
	if !errors.Is(err, arcgis.ErrAuth) {
		t.Fatalf("expected ErrAuth, got %v", err)
	}
	if got := s.calls.Load(); got != 2 {
		t.Errorf("union requests: got %d, want exactly 2", got)
	}
}

func TestTransientFailuresAreRetried(t *testing.T) {
	tests := []struct {
		name      string
		failures  int32
		wantErr   error
		wantCalls int32
	}{
		{"recovers on third attempt", 2, nil, 3},
		{"exhausts attempts", 10, arcgis.ErrTransient, 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var n atomic.Int32
			s := newStubProvider(t, func(w http.ResponseWriter, r *http.Request) {
				if n.Add(1) <= tt.failures {
					w.WriteHeader(http.StatusServiceUnavailable)
					return
				}
				writeJSON(w, map[string]any{"jobId": "j1", "jobStatus": "esriJobSucceeded"})
			})
			g := gatewayFor(t, s, nil)

			_, err := g.PollJobStatus(context.Background(), "j1")
			if tt.wantErr == nil && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Fatalf("expected %v, got %v", tt.wantErr, err)
			}
			if got := s.calls.Load(); got != tt.wantCalls {
				t.Errorf("requests: got %d, want %d", got, tt.wantCalls)
			}
		})
	}
}

func TestProviderErrorsAreNotRetried(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{"bad request", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadRequest)
		}},
		{"error envelope", func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, map[string]any{"error": map[string]any{"code": 400, "message": "Unable to complete operation.", "details": []string{"bad where"}}})
		}},
		{"malformed body", func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte("<html>not json</html>"))
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newStubProvider(t, tt.handler)
			g := gatewayFor(t, s, nil)

			_, err := g.QueryFeatures(context.Background(), arcgis.FeatureQuery{Where: "CASE_ID='x'"})
			if !errors.Is(err, arcgis.ErrProvider) {
				t.Fatalf("expected ErrProvider, got %v", err)
			}
			if got := s.calls.Load(); got != 1 {
				t.Errorf("requests: got %d, want 1", got)
			}
		})
	}
}

func TestErrorEnvelopeServerCodeIsTransient(t *testing.T) {
	s := newStubProvider(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]any{"error": map[string]any{"code": 500, "message": "Internal error"}})
	})
	g := gatewayFor(t, s, nil)

	_, err := g.SubmitExport(context.Background(), arcgis.ExportRequest{WebMap: []byte(`{}`), Format: "PDF"})
	if !errors.Is(err, arcgis.ErrTransient) {
		t.Fatalf("expected ErrTransient, got %v", err)
	}
	if got := s.calls.Load(); got != 3 {
		t.Errorf("requests: got %d, want 3", got)
	}
}

func TestPublicEndpointSkipsToken(t *testing.T) {
	s := newStubProvider(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "" {
			t.Error("public endpoint received bearer token")
		}
		r.ParseForm()
		if r.PostForm.Get("token") != "" {
			t.Error("public endpoint received api key")
		}
		writeJSON(w, map[string]any{"jobId": "j1", "jobStatus": "esriJobSubmitted"})
	})
	g := gatewayFor(t, s, func(p *arcgis.ProviderConfig) {
		p.APIKey = "key"
		p.Endpoints.Export.Public = boolPtr(true)
	})

	job, err := g.SubmitExport(context.Background(), arcgis.ExportRequest{WebMap: []byte(`{}`), Format: "PDF"})
	if err != nil {
		t.Fatal(err)
	}
	if job.JobID != "j1" {
		t.Errorf("job id = %q", job.JobID)
	}
	if got := s.tokenCalls.Load(); got != 0 {
		t.Errorf("token requests: got %d, want 0", got)
	}
}

func TestAPIKeyProvider(t *testing.T) {
	s := newStubProvider(t, func(w http.ResponseWriter, r *http.Request) {
		r.ParseForm()
		if got := r.PostForm.Get("token"); got != "key" {
			t.Errorf("token param = %q, want key", got)
		}
		if r.PostForm.Get("f") != "json" {
			t.Error("missing f=json")
		}
		writeJSON(w, map[string]any{"features": []any{}})
	})
	g := gatewayFor(t, s, func(p *arcgis.ProviderConfig) {
		p.Grant = arcgis.GrantNone
		p.ClientID, p.ClientSecret = "", ""
		p.APIKey = "key"
	})

	if _, err := g.QueryFeatures(context.Background(), arcgis.FeatureQuery{}); err != nil {
		t.Fatal(err)
	}
}

func TestGenerateFeatures(t *testing.T) {
	s := newStubProvider(t, func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Fatalf("parse multipart: %v", err)
		}
		if got := r.FormValue("filetype"); got != "shapefile" {
			t.Errorf("filetype = %q", got)
		}
		var pp map[string]any
		if err := json.Unmarshal([]byte(r.FormValue("publishParameters")), &pp); err != nil {
			t.Fatalf("publishParameters: %v", err)
		}
		if pp["sourceCountry"] != "GB" || pp["enforceInputFileSizeLimit"] != true {
			t.Errorf("publishParameters = %v", pp)
		}
		f, _, err := r.FormFile("file")
		if err != nil {
			t.Fatalf("file part: %v", err)
		}
		data, _ := io.ReadAll(f)
		if string(data) != "zipbytes" {
			t.Errorf("file = %q", data)
		}

		writeJSON(w, map[string]any{
			"featureCollection": map[string]any{
				"layers": []any{map[string]any{
					"layerDefinition": map[string]any{"name": "boundary", "geometryType": "esriGeometryPolygon"},
					"featureSet": map[string]any{
						"geometryType":     "esriGeometryPolygon",
						"spatialReference": map[string]any{"wkid": 102100, "latestWkid": 3857},
						"features": []any{map[string]any{
							"attributes": map[string]any{"FID": 0},
							"geometry":   map[string]any{"rings": [][][]float64{{{0, 0}, {10, 0}, {10, 10}, {0, 0}}}},
						}},
					},
				}},
			},
		})
	})
	g := gatewayFor(t, s, func(p *arcgis.ProviderConfig) { p.CountryCode = "GB" })

	fc, err := g.GenerateFeatures(context.Background(), arcgis.GenerateRequest{
		Filename:                  "boundary.zip",
		FileType:                  "shapefile",
		Data:                      []byte("zipbytes"),
		EnforceInputFileSizeLimit: true,
	})
	if err != nil {
		t.Fatal(err)
	}

	geoms, err := fc.Geometries()
	if err != nil {
		t.Fatal(err)
	}
	if len(geoms) != 1 {
		t.Fatalf("got %d geometries", len(geoms))
	}
	if geoms[0].SpatialReference.Code() != spatial.WebMercator {
		t.Errorf("sr = %v", geoms[0].SpatialReference)
	}
}

func TestIntersect(t *testing.T) {
	s := newStubProvider(t, func(w http.ResponseWriter, r *http.Request) {
		r.ParseForm()
		if r.URL.Path != "/zones/0/query" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if r.PostForm.Get("spatialRel") != "esriSpatialRelIntersects" {
			t.Error("wrong spatialRel")
		}
		if r.PostForm.Get("outFields") != "NAME" {
			t.Errorf("outFields = %q", r.PostForm.Get("outFields"))
		}
		if r.PostForm.Get("inSR") != "4326" {
			t.Errorf("inSR = %q", r.PostForm.Get("inSR"))
		}
		writeJSON(w, map[string]any{"features": []any{map[string]any{"attributes": map[string]any{"NAME": "Zone A"}}}})
	})
	g := gatewayFor(t, s, nil)

	features, err := g.Intersect(context.Background(), arcgis.IntersectRequest{
		Layer:    arcgis.LayerDescriptor{Name: "zones", ServiceURI: s.srv.URL + "/zones/0", Fields: []string{"NAME"}},
		Geometry: pointGeometry(),
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(features) != 1 || features[0].Attributes["NAME"] != "Zone A" {
		t.Errorf("features = %+v", features)
	}
	if got := s.tokenCalls.Load(); got != 0 {
		t.Errorf("public layer requested a token")
	}
}

func TestPushFeatures(t *testing.T) {
	s := newStubProvider(t, func(w http.ResponseWriter, r *http.Request) {
		r.ParseForm()
		if r.URL.Path != "/features/applyEdits" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if got := r.PostForm.Get("rollbackOnFailure"); got != "false" {
			t.Errorf("rollbackOnFailure = %q, want per-feature outcomes", got)
		}
		var adds, updates []map[string]any
		json.Unmarshal([]byte(r.PostForm.Get("adds")), &adds)
		json.Unmarshal([]byte(r.PostForm.Get("updates")), &updates)
		if len(adds) != 1 || len(updates) != 1 {
			t.Errorf("adds=%d updates=%d", len(adds), len(updates))
		}
		writeJSON(w, map[string]any{
			"addResults":    []any{map[string]any{"objectId": 10, "success": true}},
			"updateResults": []any{map[string]any{"objectId": 3, "success": false, "error": map[string]any{"code": 1019, "message": "bad"}}},
		})
	})
	g := gatewayFor(t, s, nil)

	add, _ := arcgis.NewFeature(pointGeometry(), map[string]any{"KEY": "a"})
	upd, _ := arcgis.NewFeature(pointGeometry(), map[string]any{"KEY": "b", "OBJECTID": 3})

	res, err := g.PushFeatures(context.Background(), arcgis.PushRequest{Adds: []arcgis.Feature{add}, Updates: []arcgis.Feature{upd}})
	if err != nil {
		t.Fatal(err)
	}
	if res.AddResults[0].Err() != nil || res.AddResults[0].ObjectID != 10 {
		t.Errorf("add result = %+v", res.AddResults[0])
	}
	if err := res.UpdateResults[0].Err(); !errors.Is(err, arcgis.ErrProvider) {
		t.Errorf("update result error = %v", err)
	}
}

func TestJobResultAndDownload(t *testing.T) {
	var srvURL string
	s := newStubProvider(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/export/jobs/j1/results/Output_File":
			writeJSON(w, map[string]any{"paramName": "Output_File", "value": map[string]any{"url": srvURL + "/out/map.pdf"}})
		case "/out/map.pdf":
			w.Header().Set("Content-Type", "application/pdf")
			w.Write([]byte("%PDF-1.4"))
		default:
			http.NotFound(w, r)
		}
	})
	srvURL = s.srv.URL
	g := gatewayFor(t, s, nil)
	ctx := context.Background()

	u, err := g.JobResult(ctx, "j1", "Output_File")
	if err != nil {
		t.Fatal(err)
	}
	data, ct, err := g.Download(ctx, u)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "%PDF-1.4" || ct != "application/pdf" {
		t.Errorf("download = %q (%s)", data, ct)
	}
}

func TestCancelledContextStopsRetries(t *testing.T) {
	s := newStubProvider(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})
	g := gatewayFor(t, s, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := g.PollJobStatus(ctx, "j1")
	if err == nil {
		t.Fatal("expected error")
	}
	if errors.Is(err, arcgis.ErrProvider) {
		t.Errorf("cancellation reported as provider error: %v", err)
	}
}

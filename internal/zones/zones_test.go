package zones_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/paulmach/orb"

	"github.com/JaimeStill/canopy/internal/zones"
	"github.com/JaimeStill/canopy/pkg/arcgis"
	"github.com/JaimeStill/canopy/pkg/routes"
	"github.com/JaimeStill/canopy/pkg/spatial"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeGateway implements the union and intersect calls; every other
// Gateway method panics through the nil embedded interface.
type fakeGateway struct {
	arcgis.Gateway

	mu         sync.Mutex
	unions     int
	intersects int
	results    map[string]error
	hits       map[string]bool
	delay      time.Duration
	active     atomic.Int32
	peak       atomic.Int32
}

func (f *fakeGateway) Union(ctx context.Context, req arcgis.UnionRequest) (*spatial.Geometry, error) {
	f.mu.Lock()
	f.unions++
	f.mu.Unlock()
	g := req.Geometries[0].Clone()
	for _, other := range req.Geometries[1:] {
		g.Rings = append(g.Rings, other.Rings...)
	}
	return &g, nil
}

func (f *fakeGateway) Intersect(ctx context.Context, req arcgis.IntersectRequest) ([]arcgis.Feature, error) {
	n := f.active.Add(1)
	defer f.active.Add(-1)
	for {
		p := f.peak.Load()
		if n <= p || f.peak.CompareAndSwap(p, n) {
			break
		}
	}
	if f.delay > 0 {
		time.Sleep(f.delay)
	}

	f.mu.Lock()
	f.intersects++
	f.mu.Unlock()

	if err := f.results[req.Layer.Name]; err != nil {
		return nil, err
	}
	if f.hits[req.Layer.Name] {
		return []arcgis.Feature{{Attributes: map[string]any{"OBJECTID": 1}}}, nil
	}
	return nil, nil
}

type gateways map[string]arcgis.Gateway

func (g gateways) Get(key string) (arcgis.Gateway, error) {
	gw, ok := g[key]
	if !ok {
		return nil, arcgis.Validation("registry", arcgis.ErrUnknownProvider, "%s", key)
	}
	return gw, nil
}

func square(x, y float64, wkid int) spatial.Geometry {
	return spatial.Geometry{
		Type:             spatial.TypePolygon,
		Rings:            []orb.Ring{{{x, y}, {x + 10, y}, {x + 10, y + 10}, {x, y + 10}, {x, y}}},
		SpatialReference: spatial.NewSpatialReference(wkid),
	}
}

func layers(names ...string) []arcgis.LayerDescriptor {
	out := make([]arcgis.LayerDescriptor, len(names))
	for i, n := range names {
		out[i] = arcgis.LayerDescriptor{Name: n, ServiceURI: "https://zones.test/" + n + "/FeatureServer/0"}
	}
	return out
}

func newSystem(t *testing.T, gw *fakeGateway, cfg *zones.Config) zones.System {
	t.Helper()
	if err := cfg.Finalize(nil); err != nil {
		t.Fatal(err)
	}
	return zones.New(cfg, gateways{"agol": gw}, discardLogger())
}

func TestIntersectingZonesReportsFailedLayers(t *testing.T) {
	gw := &fakeGateway{
		hits:    map[string]bool{"ancient-woodland": true, "phytophthora": true},
		results: map[string]error{"sssi": arcgis.Transient("intersect", nil)},
	}
	sys := newSystem(t, gw, &zones.Config{Layers: layers("ancient-woodland", "sssi", "phytophthora", "larch")})

	m, err := sys.IntersectingZones(context.Background(), []spatial.Geometry{square(0, 0, 27700)})
	if err != nil {
		t.Fatal(err)
	}

	want := []string{"ancient-woodland", "phytophthora"}
	if strings.Join(m.Zones, ",") != strings.Join(want, ",") {
		t.Errorf("zones = %v, want %v", m.Zones, want)
	}
	if !m.Partial() {
		t.Fatal("expected partial result")
	}
	if len(m.Failed) != 1 || m.Failed[0].Layer != "sssi" {
		t.Fatalf("failed = %+v", m.Failed)
	}
	if !errors.Is(m.Failed[0].Err, arcgis.ErrTransient) {
		t.Errorf("failure kind lost: %v", m.Failed[0].Err)
	}
	if gw.intersects != 4 {
		t.Errorf("intersects = %d, want 4", gw.intersects)
	}
}

func TestIntersectingZonesAllLayersFailed(t *testing.T) {
	gw := &fakeGateway{results: map[string]error{
		"a": arcgis.Provider("intersect", "invalid layer", nil),
		"b": arcgis.Provider("intersect", "invalid layer", nil),
	}}
	sys := newSystem(t, gw, &zones.Config{Layers: layers("a", "b")})

	_, err := sys.IntersectingZones(context.Background(), []spatial.Geometry{square(0, 0, 27700)})
	if !errors.Is(err, zones.ErrAllLayersFailed) {
		t.Errorf("expected ErrAllLayersFailed, got %v", err)
	}
	if !errors.Is(err, arcgis.ErrProvider) {
		t.Errorf("expected ErrProvider, got %v", err)
	}
}

func TestIntersectingZonesUnionsMultipleGeometries(t *testing.T) {
	tests := []struct {
		name   string
		geoms  []spatial.Geometry
		unions int
	}{
		{"single geometry passes through", []spatial.Geometry{square(0, 0, 27700)}, 0},
		{"several geometries are unioned once", []spatial.Geometry{square(0, 0, 27700), square(20, 0, 27700), square(40, 0, 27700)}, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gw := &fakeGateway{}
			sys := newSystem(t, gw, &zones.Config{Layers: layers("a", "b")})

			if _, err := sys.IntersectingZones(context.Background(), tt.geoms); err != nil {
				t.Fatal(err)
			}
			if gw.unions != tt.unions {
				t.Errorf("unions = %d, want %d", gw.unions, tt.unions)
			}
		})
	}
}

func TestIntersectingZonesBoundsParallelism(t *testing.T) {
	gw := &fakeGateway{delay: 20 * time.Millisecond}
	sys := newSystem(t, gw, &zones.Config{
		Layers:            layers("a", "b", "c", "d", "e", "f"),
		MaxParallelLayers: 2,
	})

	if _, err := sys.IntersectingZones(context.Background(), []spatial.Geometry{square(0, 0, 27700)}); err != nil {
		t.Fatal(err)
	}
	if p := gw.peak.Load(); p > 2 {
		t.Errorf("peak concurrent intersects = %d, want at most 2", p)
	}
	if gw.intersects != 6 {
		t.Errorf("intersects = %d, want 6", gw.intersects)
	}
}

func TestInvalidInputNeverCallsProvider(t *testing.T) {
	missing := square(0, 0, 27700)
	missing.SpatialReference = spatial.SpatialReference{}

	tests := []struct {
		name  string
		geoms []spatial.Geometry
		want  error
	}{
		{"no geometry", nil, zones.ErrNoGeometry},
		{"missing reference", []spatial.Geometry{missing}, arcgis.ErrMissingSpatialReference},
		{"mixed references", []spatial.Geometry{square(0, 0, 27700), square(0, 0, 4326)}, zones.ErrMixedReferences},
		{"empty geometry", []spatial.Geometry{{Type: spatial.TypePolygon, SpatialReference: spatial.NewSpatialReference(27700)}}, spatial.ErrEmptyGeometry},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gw := &fakeGateway{}
			sys := newSystem(t, gw, &zones.Config{Layers: layers("a")})

			_, err := sys.IntersectingZones(context.Background(), tt.geoms)
			if !errors.Is(err, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, err)
			}
			if !errors.Is(err, arcgis.ErrValidation) {
				t.Errorf("expected a validation error, got %v", err)
			}
			if gw.unions+gw.intersects != 0 {
				t.Errorf("provider called %d times", gw.unions+gw.intersects)
			}
		})
	}
}

func TestIsWithinEngland(t *testing.T) {
	england := arcgis.LayerDescriptor{Name: "england", ServiceURI: "https://zones.test/england/FeatureServer/0"}

	tests := []struct {
		name string
		hit  bool
	}{
		{"inside", true},
		{"outside", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gw := &fakeGateway{hits: map[string]bool{"england": tt.hit}}
			sys := newSystem(t, gw, &zones.Config{EnglandLayer: england})

			got, err := sys.IsWithinEngland(context.Background(), []spatial.Geometry{square(400000, 300000, 27700)})
			if err != nil {
				t.Fatal(err)
			}
			if got != tt.hit {
				t.Errorf("IsWithinEngland = %v, want %v", got, tt.hit)
			}
		})
	}
}

func TestIsWithinEnglandUnconfigured(t *testing.T) {
	sys := newSystem(t, &fakeGateway{}, &zones.Config{})

	_, err := sys.IsWithinEngland(context.Background(), []spatial.Geometry{square(0, 0, 27700)})
	if !errors.Is(err, zones.ErrNoLayersDeclared) {
		t.Errorf("expected ErrNoLayersDeclared, got %v", err)
	}
}

func TestConfigRejectsDuplicateLayers(t *testing.T) {
	cfg := &zones.Config{Layers: layers("a", "a")}
	if err := cfg.Finalize(nil); err == nil {
		t.Error("expected duplicate layer error")
	}
}

func TestConfigEnvProviderReachesLayers(t *testing.T) {
	t.Setenv("TEST_ZONES_PROVIDER", "enterprise")

	ls := layers("tb", "avian")
	ls[1].Provider = "public-register"
	cfg := &zones.Config{
		EnglandLayer: arcgis.LayerDescriptor{ServiceURI: "https://zones.test/england/FeatureServer/0"},
		Layers:       ls,
	}
	if err := cfg.Finalize(&zones.Env{Provider: "TEST_ZONES_PROVIDER"}); err != nil {
		t.Fatal(err)
	}

	if cfg.Provider != "enterprise" {
		t.Errorf("provider = %q", cfg.Provider)
	}
	if cfg.EnglandLayer.Provider != "enterprise" {
		t.Errorf("england layer provider = %q", cfg.EnglandLayer.Provider)
	}
	if cfg.Layers[0].Provider != "enterprise" {
		t.Errorf("layer provider = %q", cfg.Layers[0].Provider)
	}
	if cfg.Layers[1].Provider != "public-register" {
		t.Errorf("explicit layer provider overwritten: %q", cfg.Layers[1].Provider)
	}
}

func TestHandlerIntersect(t *testing.T) {
	gw := &fakeGateway{
		hits:    map[string]bool{"a": true},
		results: map[string]error{"b": arcgis.Transient("intersect", nil)},
	}
	sys := newSystem(t, gw, &zones.Config{Layers: layers("a", "b")})

	mux := http.NewServeMux()
	routes.Register(mux, sys.Handler().Routes())

	body := `{"geometries":[{"type":"polygon","rings":[[[0,0],[10,0],[10,10],[0,10],[0,0]]],"spatialReference":{"wkid":27700}}]}`
	req := httptest.NewRequest(http.MethodPost, "/zones/intersect", strings.NewReader(body))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), `"zones":["a"]`) || !strings.Contains(rec.Body.String(), `"layer":"b"`) {
		t.Errorf("body = %s", rec.Body.String())
	}
}

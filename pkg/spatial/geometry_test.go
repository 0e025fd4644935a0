package spatial_test

import (
	"errors"
	"math"
	"testing"

	"github.com/paulmach/orb"

	"github.com/JaimeStill/canopy/pkg/spatial"
)

func TestSpatialReferenceEqual(t *testing.T) {
	tests := []struct {
		name string
		a, b spatial.SpatialReference
		want bool
	}{
		{"same wkid", spatial.NewSpatialReference(27700), spatial.NewSpatialReference(27700), true},
		{"legacy web mercator", spatial.NewSpatialReference(102100), spatial.NewSpatialReference(3857), true},
		{"legacy without latest", spatial.SpatialReference{WKID: 102100}, spatial.NewSpatialReference(3857), true},
		{"different", spatial.NewSpatialReference(4326), spatial.NewSpatialReference(27700), false},
		{"unresolved", spatial.SpatialReference{}, spatial.SpatialReference{}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.a.Equal(tt.b); got != tt.want {
				t.Errorf("%v.Equal(%v) = %v, want %v", tt.a, tt.b, got, tt.want)
			}
		})
	}
}

func TestParseEsri(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		fallback spatial.SpatialReference
		wantType spatial.GeometryType
		wantSR   int
		points   int
	}{
		{
			"point with sr",
			`{"x": 530050, "y": 180007, "spatialReference": {"wkid": 27700}}`,
			spatial.SpatialReference{},
			spatial.TypePoint, 27700, 1,
		},
		{
			"polygon closes ring",
			`{"rings": [[[0,0],[10,0],[10,10],[0,10]]], "spatialReference": {"wkid": 102100, "latestWkid": 3857}}`,
			spatial.SpatialReference{},
			spatial.TypePolygon, 3857, 5,
		},
		{
			"polyline uses fallback",
			`{"paths": [[[0,0],[1,1],[2,0]]]}`,
			spatial.NewSpatialReference(4326),
			spatial.TypePolyline, 4326, 3,
		},
		{
			"multipoint",
			`{"points": [[1,2],[3,4]], "spatialReference": {"wkid": 4326}}`,
			spatial.SpatialReference{},
			spatial.TypePoint, 4326, 2,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g, err := spatial.ParseEsri([]byte(tt.input), tt.fallback)
			if err != nil {
				t.Fatalf("ParseEsri error: %v", err)
			}
			if g.Type != tt.wantType {
				t.Errorf("type = %s, want %s", g.Type, tt.wantType)
			}
			if g.SpatialReference.Code() != tt.wantSR {
				t.Errorf("sr = %d, want %d", g.SpatialReference.Code(), tt.wantSR)
			}
			if g.PointCount() != tt.points {
				t.Errorf("points = %d, want %d", g.PointCount(), tt.points)
			}
		})
	}
}

func TestParseEsriErrors(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  error
	}{
		{"no shape", `{"spatialReference": {"wkid": 4326}}`, spatial.ErrUnknownGeometry},
		{"empty rings", `{"rings": [[]]}`, spatial.ErrUnknownGeometry},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := spatial.ParseEsri([]byte(tt.input), spatial.SpatialReference{})
			if err == nil {
				t.Fatal("expected error")
			}
			if !errors.Is(err, tt.want) && !errors.Is(err, spatial.ErrEmptyGeometry) {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}

	if _, err := spatial.ParseEsri([]byte(`{not json`), spatial.SpatialReference{}); err == nil {
		t.Error("expected decode error")
	}
}

func TestMarshalEsriOmitsSpatialReference(t *testing.T) {
	g := spatial.Geometry{
		Type:             spatial.TypePoint,
		Points:           []orb.Point{{1, 2}},
		SpatialReference: spatial.NewSpatialReference(4326),
	}

	with, err := g.MarshalEsri(true)
	if err != nil {
		t.Fatal(err)
	}
	without, err := g.MarshalEsri(false)
	if err != nil {
		t.Fatal(err)
	}

	if string(with) != `{"x":1,"y":2,"spatialReference":{"wkid":4326}}` {
		t.Errorf("with sr = %s", with)
	}
	if string(without) != `{"x":1,"y":2}` {
		t.Errorf("without sr = %s", without)
	}
}

func TestParseGeoJSON(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		count    int
		wantType spatial.GeometryType
	}{
		{"bare polygon", `{"type":"Polygon","coordinates":[[[0,51],[1,51],[1,52],[0,51]]]}`, 1, spatial.TypePolygon},
		{"feature", `{"type":"Feature","properties":{"name":"a"},"geometry":{"type":"LineString","coordinates":[[0,51],[1,52]]}}`, 1, spatial.TypePolyline},
		{
			"collection",
			`{"type":"FeatureCollection","features":[` +
				`{"type":"Feature","properties":{},"geometry":{"type":"Point","coordinates":[-1.5,52.1]}},` +
				`{"type":"Feature","properties":{},"geometry":{"type":"MultiPolygon","coordinates":[[[[0,51],[1,51],[1,52],[0,51]]],[[[2,51],[3,51],[3,52],[2,51]]]]}}]}`,
			2, spatial.TypePoint,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := spatial.ParseGeoJSON([]byte(tt.input))
			if err != nil {
				t.Fatalf("ParseGeoJSON error: %v", err)
			}
			if len(got) != tt.count {
				t.Fatalf("got %d geometries, want %d", len(got), tt.count)
			}
			if got[0].Type != tt.wantType {
				t.Errorf("type = %s, want %s", got[0].Type, tt.wantType)
			}
			for i, g := range got {
				if g.SpatialReference.Code() != spatial.WGS84 {
					t.Errorf("geometry %d sr = %v, want EPSG:4326", i, g.SpatialReference)
				}
			}
		})
	}
}

func TestExtent(t *testing.T) {
	g := polygon(orb.Ring{{10, 20}, {30, 20}, {30, 50}, {10, 50}, {10, 20}})
	env := g.Extent()

	if env.XMin != 10 || env.YMin != 20 || env.XMax != 30 || env.YMax != 50 {
		t.Errorf("extent = %+v", env)
	}
	if c := env.Center(); c != (orb.Point{20, 35}) {
		t.Errorf("center = %v", c)
	}

	grown := env.Expand(0.5, 0)
	if grown.XMin != -5 || grown.YMax != 65 {
		t.Errorf("expanded = %+v", grown)
	}

	pt := spatial.Geometry{Type: spatial.TypePoint, Points: []orb.Point{{5, 5}}}
	if e := pt.Extent().Expand(0.1, 100); e.Width() != 200 {
		t.Errorf("degenerate expand width = %f, want 200", e.Width())
	}
}

func TestTransformRoundTrip(t *testing.T) {
	tests := []struct {
		name string
		geom spatial.Geometry
	}{
		{"point", spatial.Geometry{Type: spatial.TypePoint, Points: []orb.Point{{-1.5491, 53.8008}}}},
		{"polygon", polygon(orb.Ring{{-2, 52}, {-1, 52}, {-1, 53}, {-2, 53}, {-2, 52}})},
		{"polyline", spatial.Geometry{Type: spatial.TypePolyline, Paths: []orb.LineString{{{0, 0}, {10, 60}, {-120, -45}}}}},
	}

	const epsilon = 1e-9
	wgs := spatial.NewSpatialReference(spatial.WGS84)
	merc := spatial.NewSpatialReference(spatial.WebMercator)

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.geom.SpatialReference = wgs

			there, err := spatial.Transform(tt.geom, merc)
			if err != nil {
				t.Fatal(err)
			}
			back, err := spatial.Transform(there, wgs)
			if err != nil {
				t.Fatal(err)
			}

			orig := flatten(tt.geom)
			got := flatten(back)
			for i := range orig {
				if math.Abs(orig[i][0]-got[i][0]) > epsilon || math.Abs(orig[i][1]-got[i][1]) > epsilon {
					t.Errorf("point %d: %v != %v", i, got[i], orig[i])
				}
			}
		})
	}
}

func TestTransformUnsupported(t *testing.T) {
	g := polygon(orb.Ring{{0, 0}, {1, 0}, {1, 1}, {0, 0}})
	_, err := spatial.Transform(g, spatial.NewSpatialReference(spatial.WGS84))
	if !errors.Is(err, spatial.ErrUnsupportedTransform) {
		t.Errorf("expected ErrUnsupportedTransform, got %v", err)
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

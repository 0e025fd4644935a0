package spatial

import (
	"encoding/json"
	"fmt"

	"github.com/paulmach/orb"
)

// esriGeometry is the Esri JSON wire shape for point, multipoint, polyline
// and polygon geometries.
type esriGeometry struct {
	X                *float64          `json:"x,omitempty"`
	Y                *float64          `json:"y,omitempty"`
	Points           [][]float64       `json:"points,omitempty"`
	Paths            [][][]float64     `json:"paths,omitempty"`
	Rings            [][][]float64     `json:"rings,omitempty"`
	SpatialReference *SpatialReference `json:"spatialReference,omitempty"`
}

// EsriGeometryType returns the esriGeometry* name used by REST parameters.
func (g Geometry) EsriGeometryType() string {
	switch g.Type {
	case TypePoint:
		if len(g.Points) > 1 {
			return "esriGeometryMultipoint"
		}
		return "esriGeometryPoint"
	case TypePolyline:
		return "esriGeometryPolyline"
	default:
		return "esriGeometryPolygon"
	}
}

// MarshalEsri encodes the geometry as an Esri JSON geometry object.
// The spatial reference is omitted when includeSR is false, which is the
// shape expected inside a geometries array that carries a shared SR.
func (g Geometry) MarshalEsri(includeSR bool) ([]byte, error) {
	var e esriGeometry
	switch g.Type {
	case TypePoint:
		if len(g.Points) == 1 {
			x, y := g.Points[0][0], g.Points[0][1]
			e.X, e.Y = &x, &y
		} else {
			e.Points = toCoords(g.Points)
		}
	case TypePolyline:
		for _, p := range g.Paths {
			e.Paths = append(e.Paths, toCoords(p))
		}
	case TypePolygon:
		for _, r := range g.Rings {
			e.Rings = append(e.Rings, toCoords(r))
		}
	default:
		return nil, ErrUnknownGeometry
	}
	if includeSR && !g.SpatialReference.IsZero() {
		sr := g.SpatialReference
		e.SpatialReference = &sr
	}
	return json.Marshal(e)
}

// ParseEsri decodes an Esri JSON geometry object. Geometry type is inferred
// from the populated keys. When the object carries no spatialReference the
// fallback is used; a zero fallback leaves the reference unresolved.
func ParseEsri(data []byte, fallback SpatialReference) (Geometry, error) {
	var e esriGeometry
	if err := json.Unmarshal(data, &e); err != nil {
		return Geometry{}, fmt.Errorf("decode esri geometry: %w", err)
	}
	return e.toGeometry(fallback)
}

// ParseEsriTyped decodes an Esri geometry whose type is supplied separately,
// as in a featureSet or geometries array.
func ParseEsriTyped(data []byte, esriType string, sr SpatialReference) (Geometry, error) {
	g, err := ParseEsri(data, sr)
	if err != nil {
		return g, err
	}
	if esriType != "" && g.EsriGeometryType() != esriType {
		if !(esriType == "esriGeometryMultipoint" && g.Type == TypePoint) {
			return Geometry{}, fmt.Errorf("%w: expected %s, got %s", ErrUnknownGeometry, esriType, g.EsriGeometryType())
		}
	}
	return g, nil
}

func (e esriGeometry) toGeometry(fallback SpatialReference) (Geometry, error) {
	g := Geometry{SpatialReference: fallback}
	if e.SpatialReference != nil && !e.SpatialReference.IsZero() {
		g.SpatialReference = *e.SpatialReference
	}

	switch {
	case e.X != nil && e.Y != nil:
		g.Type = TypePoint
		g.Points = []orb.Point{{*e.X, *e.Y}}
	case len(e.Points) > 0:
		g.Type = TypePoint
		g.Points = fromCoords(e.Points)
	case len(e.Paths) > 0:
		g.Type = TypePolyline
		for _, p := range e.Paths {
			g.Paths = append(g.Paths, orb.LineString(fromCoords(p)))
		}
	case len(e.Rings) > 0:
		g.Type = TypePolygon
		for _, r := range e.Rings {
			g.Rings = append(g.Rings, orb.Ring(fromCoords(r)))
		}
		g.closeRings()
	default:
		return Geometry{}, ErrUnknownGeometry
	}

	if err := g.Validate(); err != nil {
		return Geometry{}, err
	}
	return g, nil
}

func toCoords(pts []orb.Point) [][]float64 {
	out := make([][]float64, len(pts))
	for i, p := range pts {
		out[i] = []float64{p[0], p[1]}
	}
	return out
}

func fromCoords(coords [][]float64) []orb.Point {
	out := make([]orb.Point, 0, len(coords))
	for _, c := range coords {
		if len(c) < 2 {
			continue
		}
		out = append(out, orb.Point{c[0], c[1]})
	}
	return out
}

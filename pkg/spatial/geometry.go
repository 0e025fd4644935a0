package spatial

import (
	"errors"
	"slices"

	"github.com/paulmach/orb"
)

// GeometryType names the three geometry shapes the engine handles.
type GeometryType string

const (
	TypePoint    GeometryType = "point"
	TypePolyline GeometryType = "polyline"
	TypePolygon  GeometryType = "polygon"
)

var (
	// ErrEmptyGeometry indicates a geometry with no coordinates.
	ErrEmptyGeometry = errors.New("geometry has no coordinates")
	// ErrUnknownGeometry indicates an Esri JSON object with no recognised shape.
	ErrUnknownGeometry = errors.New("unrecognised geometry shape")
)

// Geometry is a validated geometry with its spatial reference and attributes.
// Exactly one of Points, Paths, or Rings is populated according to Type.
type Geometry struct {
	Type             GeometryType     `json:"type"`
	Points           []orb.Point      `json:"points,omitempty"`
	Paths            []orb.LineString `json:"paths,omitempty"`
	Rings            []orb.Ring       `json:"rings,omitempty"`
	SpatialReference SpatialReference `json:"spatialReference"`
	Attributes       map[string]any   `json:"attributes,omitempty"`
}

// Clone returns a deep copy so callers can mutate coordinates without
// affecting the original.
func (g Geometry) Clone() Geometry {
	c := g
	c.Points = slices.Clone(g.Points)
	if g.Paths != nil {
		c.Paths = make([]orb.LineString, len(g.Paths))
		for i, p := range g.Paths {
			c.Paths[i] = slices.Clone(p)
		}
	}
	if g.Rings != nil {
		c.Rings = make([]orb.Ring, len(g.Rings))
		for i, r := range g.Rings {
			c.Rings[i] = slices.Clone(r)
		}
	}
	if g.Attributes != nil {
		c.Attributes = make(map[string]any, len(g.Attributes))
		for k, v := range g.Attributes {
			c.Attributes[k] = v
		}
	}
	return c
}

// PointCount returns the total number of vertices.
func (g Geometry) PointCount() int {
	n := len(g.Points)
	for _, p := range g.Paths {
		n += len(p)
	}
	for _, r := range g.Rings {
		n += len(r)
	}
	return n
}

// Validate checks that the geometry has coordinates matching its type.
func (g Geometry) Validate() error {
	switch g.Type {
	case TypePoint:
		if len(g.Points) == 0 {
			return ErrEmptyGeometry
		}
	case TypePolyline:
		if len(g.Paths) == 0 || g.PointCount() == 0 {
			return ErrEmptyGeometry
		}
	case TypePolygon:
		if len(g.Rings) == 0 || g.PointCount() == 0 {
			return ErrEmptyGeometry
		}
	default:
		return ErrUnknownGeometry
	}
	return nil
}

// each visits every vertex slice of the geometry in order.
func (g *Geometry) each(fn func(pts []orb.Point)) {
	if len(g.Points) > 0 {
		fn(g.Points)
	}
	for _, p := range g.Paths {
		fn(p)
	}
	for _, r := range g.Rings {
		fn(r)
	}
}

// closeRings appends the first vertex to any ring that is not closed.
func (g *Geometry) closeRings() {
	for i, r := range g.Rings {
		if len(r) > 0 && r[0] != r[len(r)-1] {
			g.Rings[i] = append(r, r[0])
		}
	}
}

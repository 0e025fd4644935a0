package spatial

import (
	"math"

	"github.com/paulmach/orb"
)

// Envelope is an axis-aligned bounding box in a spatial reference.
type Envelope struct {
	XMin             float64          `json:"xmin"`
	YMin             float64          `json:"ymin"`
	XMax             float64          `json:"xmax"`
	YMax             float64          `json:"ymax"`
	SpatialReference SpatialReference `json:"spatialReference"`
}

// Extent computes the envelope of g. An empty geometry yields a zero envelope.
func (g Geometry) Extent() Envelope {
	env := Envelope{
		XMin:             math.Inf(1),
		YMin:             math.Inf(1),
		XMax:             math.Inf(-1),
		YMax:             math.Inf(-1),
		SpatialReference: g.SpatialReference,
	}
	g.each(func(pts []orb.Point) {
		for _, p := range pts {
			env.extend(p)
		}
	})
	if math.IsInf(env.XMin, 1) {
		return Envelope{SpatialReference: g.SpatialReference}
	}
	return env
}

// ExtentOf returns the combined envelope of all geometries, which are assumed
// to share the first geometry's spatial reference.
func ExtentOf(geoms []Geometry) Envelope {
	if len(geoms) == 0 {
		return Envelope{}
	}
	env := geoms[0].Extent()
	for _, g := range geoms[1:] {
		env = env.Union(g.Extent())
	}
	return env
}

// Union returns the envelope covering both e and other.
func (e Envelope) Union(other Envelope) Envelope {
	if e.IsEmpty() {
		return other
	}
	if other.IsEmpty() {
		return e
	}
	return Envelope{
		XMin:             math.Min(e.XMin, other.XMin),
		YMin:             math.Min(e.YMin, other.YMin),
		XMax:             math.Max(e.XMax, other.XMax),
		YMax:             math.Max(e.YMax, other.YMax),
		SpatialReference: e.SpatialReference,
	}
}

// IsEmpty reports whether the envelope covers no area and no point.
func (e Envelope) IsEmpty() bool {
	return e.XMin == 0 && e.YMin == 0 && e.XMax == 0 && e.YMax == 0
}

// Width returns the x span.
func (e Envelope) Width() float64 { return e.XMax - e.XMin }

// Height returns the y span.
func (e Envelope) Height() float64 { return e.YMax - e.YMin }

// Center returns the midpoint of the envelope.
func (e Envelope) Center() orb.Point {
	return orb.Point{(e.XMin + e.XMax) / 2, (e.YMin + e.YMax) / 2}
}

// Expand grows the envelope on every side by fraction of its larger span.
// A degenerate envelope (a single point) grows by minimum instead.
func (e Envelope) Expand(fraction, minimum float64) Envelope {
	pad := math.Max(e.Width(), e.Height()) * fraction
	if pad < minimum {
		pad = minimum
	}
	e.XMin -= pad
	e.YMin -= pad
	e.XMax += pad
	e.YMax += pad
	return e
}

func (e *Envelope) extend(p orb.Point) {
	e.XMin = math.Min(e.XMin, p[0])
	e.YMin = math.Min(e.YMin, p[1])
	e.XMax = math.Max(e.XMax, p[0])
	e.YMax = math.Max(e.YMax, p[1])
}

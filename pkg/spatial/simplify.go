package spatial

import (
	"math"
	"slices"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
	"github.com/paulmach/orb/simplify"
)

// MinRingPoints is the smallest valid closed ring.
const MinRingPoints = 4

// MinReduceLimit is the smallest effective Reduce limit: the first and last
// vertices plus the four bounding extrema.
const MinReduceLimit = 6

const areaEpsilon = 1e-12

// Simplification selects the simplification steps applied to a geometry.
// Steps always run in the order generalize, reduce, round.
type Simplification struct {
	Generalize         bool    `json:"generalize"`
	Offset             float64 `json:"offset"`
	Reduce             bool    `json:"reduce"`
	RoundDecimalPlaces int     `json:"roundDecimalPlaces"`
}

// Simplify applies the selected steps to a copy of g. maxPoints caps the
// vertex count of each ring or path when Reduce is set.
func Simplify(g Geometry, s Simplification, maxPoints int) Geometry {
	out := g.Clone()
	if s.Generalize && s.Offset > 0 {
		out = Generalize(out, s.Offset)
	}
	if s.Reduce && maxPoints > 0 {
		out = Reduce(out, maxPoints)
	}
	if s.RoundDecimalPlaces > 0 {
		out = Round(out, s.RoundDecimalPlaces)
	}
	return out
}

// Generalize removes vertices within tolerance using Douglas-Peucker.
// A ring keeps its original vertices when the simplified version would
// collapse, self-intersect, or cross another ring of the same polygon.
func Generalize(g Geometry, tolerance float64) Geometry {
	out := g.Clone()
	dp := simplify.DouglasPeucker(tolerance)

	for i, p := range out.Paths {
		if len(p) > 2 {
			out.Paths[i] = dp.LineString(p.Clone())
		}
	}

	for i, r := range out.Rings {
		s := dp.Ring(r.Clone())
		if len(s) < MinRingPoints || math.Abs(planar.Area(s)) < areaEpsilon || selfIntersects(s) {
			continue
		}
		out.Rings[i] = s
	}

	for i := range out.Rings {
		for j := i + 1; j < len(out.Rings); j++ {
			if ringsCross(out.Rings[i], out.Rings[j]) {
				out.Rings[i] = slices.Clone(g.Rings[i])
				out.Rings[j] = slices.Clone(g.Rings[j])
			}
		}
	}
	return out
}

// Reduce caps each ring and path at max(limit, MinReduceLimit) vertices.
// The first and last vertices and the four bounding extrema are always kept;
// remaining slots are filled with evenly spaced vertices in original order.
// Point counts never increase.
func Reduce(g Geometry, limit int) Geometry {
	limit = max(limit, MinReduceLimit)
	out := g.Clone()
	for i, p := range out.Paths {
		out.Paths[i] = orb.LineString(decimate(p, limit))
	}
	for i, r := range out.Rings {
		out.Rings[i] = orb.Ring(decimate(r, limit))
	}
	return out
}

// Round quantizes every coordinate to places decimal digits and drops
// consecutive duplicate vertices unless that would invalidate the shape.
func Round(g Geometry, places int) Geometry {
	out := g.Clone()
	f := math.Pow10(places)
	out.each(func(pts []orb.Point) {
		for i, p := range pts {
			pts[i] = orb.Point{math.Round(p[0]*f) / f, math.Round(p[1]*f) / f}
		}
	})
	for i, p := range out.Paths {
		if d := dedupe(p); len(d) >= 2 {
			out.Paths[i] = orb.LineString(d)
		}
	}
	for i, r := range out.Rings {
		if d := dedupe(r); len(d) >= MinRingPoints {
			out.Rings[i] = orb.Ring(d)
		}
	}
	return out
}

func decimate(pts []orb.Point, limit int) []orb.Point {
	n := len(pts)
	if n <= limit {
		return pts
	}

	keep := map[int]bool{0: true, n - 1: true}
	minX, maxX, minY, maxY := 0, 0, 0, 0
	for i, p := range pts {
		if p[0] < pts[minX][0] {
			minX = i
		}
		if p[0] > pts[maxX][0] {
			maxX = i
		}
		if p[1] < pts[minY][1] {
			minY = i
		}
		if p[1] > pts[maxY][1] {
			maxY = i
		}
	}
	keep[minX], keep[maxX], keep[minY], keep[maxY] = true, true, true, true

	if remaining := limit - len(keep); remaining > 0 {
		candidates := make([]int, 0, n-len(keep))
		for i := range n {
			if !keep[i] {
				candidates = append(candidates, i)
			}
		}
		for k := range remaining {
			keep[candidates[k*len(candidates)/remaining]] = true
		}
	}

	idx := make([]int, 0, len(keep))
	for i := range keep {
		idx = append(idx, i)
	}
	slices.Sort(idx)

	out := make([]orb.Point, len(idx))
	for i, j := range idx {
		out[i] = pts[j]
	}
	return out
}

func dedupe(pts []orb.Point) []orb.Point {
	out := make([]orb.Point, 0, len(pts))
	for i, p := range pts {
		if i > 0 && p == pts[i-1] {
			continue
		}
		out = append(out, p)
	}
	return out
}

// selfIntersects reports whether any two non-adjacent segments of a closed
// ring intersect.
func selfIntersects(r orb.Ring) bool {
	n := len(r) - 1
	for i := range n {
		for j := i + 1; j < n; j++ {
			if j == i+1 || (i == 0 && j == n-1) {
				continue
			}
			if segmentsIntersect(r[i], r[i+1], r[j], r[j+1]) {
				return true
			}
		}
	}
	return false
}

func ringsCross(a, b orb.Ring) bool {
	for i := 0; i < len(a)-1; i++ {
		for j := 0; j < len(b)-1; j++ {
			if segmentsIntersect(a[i], a[i+1], b[j], b[j+1]) {
				return true
			}
		}
	}
	return false
}

func segmentsIntersect(p1, p2, p3, p4 orb.Point) bool {
	d1 := orient(p3, p4, p1)
	d2 := orient(p3, p4, p2)
	d3 := orient(p1, p2, p3)
	d4 := orient(p1, p2, p4)

	if ((d1 > 0 && d2 < 0) || (d1 < 0 && d2 > 0)) && ((d3 > 0 && d4 < 0) || (d3 < 0 && d4 > 0)) {
		return true
	}
	return (d1 == 0 && onSegment(p3, p4, p1)) ||
		(d2 == 0 && onSegment(p3, p4, p2)) ||
		(d3 == 0 && onSegment(p1, p2, p3)) ||
		(d4 == 0 && onSegment(p1, p2, p4))
}

func orient(a, b, c orb.Point) float64 {
	return (b[0]-a[0])*(c[1]-a[1]) - (b[1]-a[1])*(c[0]-a[0])
}

func onSegment(a, b, p orb.Point) bool {
	return math.Min(a[0], b[0]) <= p[0] && p[0] <= math.Max(a[0], b[0]) &&
		math.Min(a[1], b[1]) <= p[1] && p[1] <= math.Max(a[1], b[1])
}

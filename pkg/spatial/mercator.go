package spatial

import (
	"errors"
	"fmt"
	"math"

	"github.com/paulmach/orb"
)

const earthRadius = 6378137.0

// maxLatitude is the Web Mercator clipping latitude.
const maxLatitude = 85.05112877980659

// ErrUnsupportedTransform indicates a transform that needs the provider's
// geometry service rather than local math.
var ErrUnsupportedTransform = errors.New("transform not supported locally")

// ToWebMercator converts a WGS84 longitude/latitude to Web Mercator metres.
func ToWebMercator(p orb.Point) orb.Point {
	lat := math.Max(-maxLatitude, math.Min(maxLatitude, p[1]))
	x := earthRadius * p[0] * math.Pi / 180
	y := earthRadius * math.Log(math.Tan(math.Pi/4+lat*math.Pi/360))
	return orb.Point{x, y}
}

// FromWebMercator converts Web Mercator metres to WGS84 longitude/latitude.
func FromWebMercator(p orb.Point) orb.Point {
	lon := p[0] / earthRadius * 180 / math.Pi
	lat := (2*math.Atan(math.Exp(p[1]/earthRadius)) - math.Pi/2) * 180 / math.Pi
	return orb.Point{lon, lat}
}

// CanTransform reports whether Transform handles from → to without the
// geometry service.
func CanTransform(from, to SpatialReference) bool {
	if from.Equal(to) {
		return true
	}
	a, b := from.Code(), to.Code()
	return (a == WGS84 && b == WebMercator) || (a == WebMercator && b == WGS84)
}

// Transform reprojects g between WGS84 and Web Mercator. Any other pair
// returns ErrUnsupportedTransform.
func Transform(g Geometry, to SpatialReference) (Geometry, error) {
	if g.SpatialReference.Equal(to) {
		return g, nil
	}
	if !CanTransform(g.SpatialReference, to) {
		return Geometry{}, fmt.Errorf("%w: %s to %s", ErrUnsupportedTransform, g.SpatialReference, to)
	}

	fn := ToWebMercator
	if to.Code() == WGS84 {
		fn = FromWebMercator
	}

	out := g.Clone()
	out.each(func(pts []orb.Point) {
		for i, p := range pts {
			pts[i] = fn(p)
		}
	})
	out.SpatialReference = to
	return out, nil
}

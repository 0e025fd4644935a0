package spatial_test

import (
	"math"
	"testing"

	"github.com/paulmach/orb"

	"github.com/JaimeStill/canopy/pkg/spatial"
)

func circle(n int, radius float64) orb.Ring {
	r := make(orb.Ring, 0, n+1)
	for i := range n {
		a := 2 * math.Pi * float64(i) / float64(n)
		r = append(r, orb.Point{500000 + radius*math.Cos(a), 200000 + radius*math.Sin(a)})
	}
	return append(r, r[0])
}

func polygon(rings ...orb.Ring) spatial.Geometry {
	return spatial.Geometry{
		Type:             spatial.TypePolygon,
		Rings:            rings,
		SpatialReference: spatial.NewSpatialReference(spatial.BritishNationalGrid),
	}
}

func TestReduceNeverIncreasesPoints(t *testing.T) {
	tests := []struct {
		name  string
		n     int
		limit int
	}{
		{"under limit", 50, 100},
		{"at limit", 100, 101},
		{"over limit", 5000, 1000},
		{"tight limit", 200, 10},
		{"below extrema count", 200, 4},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ring := circle(tt.n, 1000)
			got := spatial.Reduce(polygon(ring), tt.limit)
			out := got.Rings[0]

			if len(out) > len(ring) {
				t.Fatalf("point count increased: %d -> %d", len(ring), len(out))
			}
			if len(ring) > tt.limit && len(out) > max(tt.limit, spatial.MinReduceLimit) {
				t.Errorf("point count %d exceeds limit %d", len(out), tt.limit)
			}
			if out[0] != ring[0] {
				t.Errorf("first point not retained: %v", out[0])
			}
			if out[len(out)-1] != ring[len(ring)-1] {
				t.Errorf("last point not retained: %v", out[len(out)-1])
			}
		})
	}
}

func TestReduceLimitBelowKeptSetIsClamped(t *testing.T) {
	ring := circle(200, 1000)

	for _, limit := range []int{1, 4, spatial.MinReduceLimit} {
		got := spatial.Reduce(polygon(ring), limit).Rings[0]
		if len(got) != spatial.MinReduceLimit {
			t.Errorf("limit %d: got %d points, want %d", limit, len(got), spatial.MinReduceLimit)
		}
	}
}

func TestReduceKeepsExtrema(t *testing.T) {
	ring := circle(400, 1000)
	before := polygon(ring).Extent()

	got := spatial.Reduce(polygon(ring), 20)
	after := got.Extent()

	if before != after {
		t.Errorf("extent changed: before %+v, after %+v", before, after)
	}
}

func TestReducePreservesOrder(t *testing.T) {
	ring := circle(300, 1000)
	got := spatial.Reduce(polygon(ring), 30).Rings[0]

	idx := make(map[orb.Point]int, len(ring))
	for i, p := range ring[:len(ring)-1] {
		idx[p] = i
	}

	prev := -1
	for _, p := range got[:len(got)-1] {
		i, ok := idx[p]
		if !ok {
			t.Fatalf("reduced ring contains unknown point %v", p)
		}
		if i <= prev {
			t.Fatalf("point order not preserved at %v", p)
		}
		prev = i
	}
}

func TestGeneralizeRemovesNearlyCollinearVertices(t *testing.T) {
	ring := orb.Ring{{0, 0}, {50, 0.01}, {100, 0}, {100, 100}, {50, 100.01}, {0, 100}, {0, 0}}

	got := spatial.Generalize(polygon(ring), 1)

	if len(got.Rings[0]) != 5 {
		t.Errorf("generalized ring has %d points, want 5", len(got.Rings[0]))
	}
}

func TestGeneralizeKeepsRingThatWouldCollapse(t *testing.T) {
	ring := orb.Ring{{0, 0}, {10, 0}, {10, 0.5}, {0, 0.5}, {0, 0}}

	got := spatial.Generalize(polygon(ring), 5)

	if len(got.Rings[0]) != len(ring) {
		t.Errorf("collapsed ring should keep original vertices: got %d points", len(got.Rings[0]))
	}
}

func TestGeneralizeKeepsRingsApart(t *testing.T) {
	outer := orb.Ring{{0, 0}, {100, 0}, {100, 40}, {101, 50}, {100, 60}, {100, 100}, {0, 100}, {0, 0}}
	// the hole reaches into the bump that generalization would flatten
	hole := orb.Ring{{10, 10}, {100.5, 50}, {10, 90}, {10, 10}}

	got := spatial.Generalize(polygon(outer, hole), 2)

	if len(got.Rings) != 2 {
		t.Fatalf("got %d rings, want 2", len(got.Rings))
	}
	if len(got.Rings[0]) != len(outer) {
		t.Errorf("outer ring should keep original vertices: got %d, want %d", len(got.Rings[0]), len(outer))
	}
	if len(got.Rings[1]) != len(hole) {
		t.Errorf("hole should keep original vertices: got %d, want %d", len(got.Rings[1]), len(hole))
	}
}

func TestRound(t *testing.T) {
	ring := orb.Ring{{0.123456, 0.987654}, {10.000001, 0}, {10, 10.556}, {0.123456, 0.987654}}

	got := spatial.Round(polygon(ring), 2).Rings[0]

	want := orb.Ring{{0.12, 0.99}, {10, 0}, {10, 10.56}, {0.12, 0.99}}
	if len(got) != len(want) {
		t.Fatalf("got %d points, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("point %d: got %v, want %v", i, got[i], want[i])
		}
	}
}

func TestRoundDropsConsecutiveDuplicates(t *testing.T) {
	ring := orb.Ring{{0, 0}, {10, 0}, {10.001, 0.001}, {10, 10}, {0, 10}, {0, 0}}

	got := spatial.Round(polygon(ring), 1).Rings[0]

	if len(got) != 5 {
		t.Errorf("got %d points, want 5", len(got))
	}
	if got[0] != got[len(got)-1] {
		t.Error("ring closure lost")
	}
}

func TestSimplifyOrder(t *testing.T) {
	ring := circle(3000, 1000)
	g := polygon(ring)

	got := spatial.Simplify(g, spatial.Simplification{
		Generalize:         true,
		Offset:             0.01,
		Reduce:             true,
		RoundDecimalPlaces: 1,
	}, 500)

	if n := len(got.Rings[0]); n > 500 {
		t.Errorf("simplified ring has %d points, want <= 500", n)
	}
	for _, p := range got.Rings[0] {
		if math.Round(p[0]*10)/10 != p[0] || math.Round(p[1]*10)/10 != p[1] {
			t.Fatalf("point %v not rounded to 1 place", p)
		}
	}
	if len(g.Rings[0]) != len(ring) {
		t.Error("input geometry was mutated")
	}
}

func TestSimplifyNoop(t *testing.T) {
	ring := circle(100, 1000)
	got := spatial.Simplify(polygon(ring), spatial.Simplification{}, 10)

	if len(got.Rings[0]) != len(ring) {
		t.Errorf("no steps selected but point count changed: %d", len(got.Rings[0]))
	}
}

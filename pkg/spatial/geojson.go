package spatial

import (
	"encoding/json"
	"fmt"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

// ParseGeoJSON decodes a GeoJSON geometry, Feature, or FeatureCollection.
// GeoJSON coordinates are always WGS84, so every result carries EPSG:4326.
// Multi-part inputs are returned as a single geometry per feature.
func ParseGeoJSON(data []byte) ([]Geometry, error) {
	var head struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return nil, fmt.Errorf("decode geojson: %w", err)
	}

	switch head.Type {
	case "FeatureCollection":
		fc, err := geojson.UnmarshalFeatureCollection(data)
		if err != nil {
			return nil, fmt.Errorf("decode feature collection: %w", err)
		}
		out := make([]Geometry, 0, len(fc.Features))
		for i, f := range fc.Features {
			g, err := fromOrb(f.Geometry, f.Properties)
			if err != nil {
				return nil, fmt.Errorf("feature %d: %w", i, err)
			}
			out = append(out, g)
		}
		return out, nil
	case "Feature":
		f, err := geojson.UnmarshalFeature(data)
		if err != nil {
			return nil, fmt.Errorf("decode feature: %w", err)
		}
		g, err := fromOrb(f.Geometry, f.Properties)
		if err != nil {
			return nil, err
		}
		return []Geometry{g}, nil
	default:
		gj, err := geojson.UnmarshalGeometry(data)
		if err != nil {
			return nil, fmt.Errorf("decode geometry: %w", err)
		}
		g, err := fromOrb(gj.Geometry(), nil)
		if err != nil {
			return nil, err
		}
		return []Geometry{g}, nil
	}
}

func fromOrb(geom orb.Geometry, props map[string]any) (Geometry, error) {
	g := Geometry{
		SpatialReference: NewSpatialReference(WGS84),
		Attributes:       props,
	}

	switch v := geom.(type) {
	case orb.Point:
		g.Type = TypePoint
		g.Points = []orb.Point{v}
	case orb.MultiPoint:
		g.Type = TypePoint
		g.Points = []orb.Point(v)
	case orb.LineString:
		g.Type = TypePolyline
		g.Paths = []orb.LineString{v}
	case orb.MultiLineString:
		g.Type = TypePolyline
		g.Paths = []orb.LineString(v)
	case orb.Polygon:
		g.Type = TypePolygon
		g.Rings = []orb.Ring(v)
	case orb.MultiPolygon:
		g.Type = TypePolygon
		for _, poly := range v {
			g.Rings = append(g.Rings, poly...)
		}
	case nil:
		return Geometry{}, ErrEmptyGeometry
	default:
		return Geometry{}, fmt.Errorf("%w: %s", ErrUnknownGeometry, geom.GeoJSONType())
	}

	g.closeRings()
	if err := g.Validate(); err != nil {
		return Geometry{}, err
	}
	return g, nil
}

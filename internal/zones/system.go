package zones

import (
	"context"

	"github.com/JaimeStill/canopy/pkg/arcgis"
	"github.com/JaimeStill/canopy/pkg/spatial"
)

// System defines the public contract for spatial membership questions.
type System interface {
	Handler() *Handler

	IsWithinEngland(ctx context.Context, geoms []spatial.Geometry) (bool, error)
	IsWithin(ctx context.Context, geoms []spatial.Geometry, layer arcgis.LayerDescriptor) (bool, error)
	IntersectingZones(ctx context.Context, geoms []spatial.Geometry) (*Membership, error)
}

// Gateways resolves a provider key to its gateway.
type Gateways interface {
	Get(key string) (arcgis.Gateway, error)
}

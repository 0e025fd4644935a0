package zones

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/JaimeStill/canopy/pkg/arcgis"
	"github.com/JaimeStill/canopy/pkg/spatial"
)

type service struct {
	cfg      *Config
	gateways Gateways
	logger   *slog.Logger
}

// New creates the zone System. gateways resolves the union provider and
// each layer's provider.
func New(cfg *Config, gateways Gateways, logger *slog.Logger) System {
	return &service{
		cfg:      cfg,
		gateways: gateways,
		logger:   logger.With("system", "zones"),
	}
}

func (s *service) Handler() *Handler {
	return NewHandler(s, s.logger)
}

func (s *service) IsWithinEngland(ctx context.Context, geoms []spatial.Geometry) (bool, error) {
	if s.cfg.EnglandLayer.ServiceURI == "" {
		return false, fmt.Errorf("england layer: %w", ErrNoLayersDeclared)
	}
	return s.IsWithin(ctx, geoms, s.cfg.EnglandLayer)
}

func (s *service) IsWithin(ctx context.Context, geoms []spatial.Geometry, layer arcgis.LayerDescriptor) (bool, error) {
	combined, err := s.combine(ctx, "within", geoms)
	if err != nil {
		return false, err
	}
	return s.intersects(ctx, layer, combined)
}

func (s *service) IntersectingZones(ctx context.Context, geoms []spatial.Geometry) (*Membership, error) {
	layers := s.cfg.Layers
	if len(layers) == 0 {
		return nil, ErrNoLayersDeclared
	}

	combined, err := s.combine(ctx, "zones", geoms)
	if err != nil {
		return nil, err
	}

	hits := make([]bool, len(layers))
	errs := make([]error, len(layers))

	// a failing layer must not cancel the others
	var g errgroup.Group
	g.SetLimit(s.cfg.MaxParallelLayers)
	for i, layer := range layers {
		g.Go(func() error {
			hits[i], errs[i] = s.intersects(ctx, layer, combined)
			return nil
		})
	}
	g.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m := &Membership{Zones: []string{}}
	for i, layer := range layers {
		if errs[i] != nil {
			s.logger.Warn("zone layer failed", "layer", layer.Name, "error", errs[i])
			m.Failed = append(m.Failed, LayerFailure{Layer: layer.Name, Message: errs[i].Error(), Err: errs[i]})
			continue
		}
		if hits[i] {
			m.Zones = append(m.Zones, layer.Name)
		}
	}

	if len(m.Failed) == len(layers) {
		return nil, fmt.Errorf("%w: %w", ErrAllLayersFailed, errors.Join(errs...))
	}

	s.logger.Info("zones resolved", "zones", len(m.Zones), "failed", len(m.Failed))
	return m, nil
}

// combine validates the inputs and dissolves several geometries into one.
func (s *service) combine(ctx context.Context, op string, geoms []spatial.Geometry) (spatial.Geometry, error) {
	if len(geoms) == 0 {
		return spatial.Geometry{}, arcgis.Validation(op, ErrNoGeometry, "")
	}

	sr := geoms[0].SpatialReference
	for i, g := range geoms {
		if g.SpatialReference.IsZero() {
			return spatial.Geometry{}, arcgis.Validation(op, arcgis.ErrMissingSpatialReference, "geometry %d", i)
		}
		if !g.SpatialReference.Equal(sr) {
			return spatial.Geometry{}, arcgis.Validation(op, ErrMixedReferences, "geometry %d is in %s, expected %s", i, g.SpatialReference, sr)
		}
		if err := g.Validate(); err != nil {
			return spatial.Geometry{}, arcgis.Validation(op, err, "geometry %d", i)
		}
	}

	if len(geoms) == 1 {
		return geoms[0], nil
	}

	gw, err := s.gateways.Get(s.cfg.Provider)
	if err != nil {
		return spatial.Geometry{}, err
	}
	u, err := gw.Union(ctx, arcgis.UnionRequest{Geometries: geoms, SR: sr})
	if err != nil {
		return spatial.Geometry{}, err
	}
	return *u, nil
}

func (s *service) intersects(ctx context.Context, layer arcgis.LayerDescriptor, g spatial.Geometry) (bool, error) {
	gw, err := s.gateways.Get(layer.Provider)
	if err != nil {
		return false, err
	}
	features, err := gw.Intersect(ctx, arcgis.IntersectRequest{Layer: layer, Geometry: g})
	if err != nil {
		return false, err
	}
	return len(features) > 0, nil
}

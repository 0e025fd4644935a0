package ingestion

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"slices"

	"github.com/JaimeStill/canopy/pkg/arcgis"
	"github.com/JaimeStill/canopy/pkg/formatting"
	"github.com/JaimeStill/canopy/pkg/spatial"
)

// maxRoundDecimalPlaces bounds coordinate quantization to what float64 holds.
const maxRoundDecimalPlaces = 12

var generateFileTypes = map[string]string{
	"zip":     "shapefile",
	"json":    "geojson",
	"geojson": "geojson",
	"kml":     "kml",
	"csv":     "csv",
	"gpx":     "gpx",
}

type pipeline struct {
	cfg     *Config
	gateway arcgis.Gateway
	logger  *slog.Logger
}

// New creates the ingestion System. gateway performs file conversion and
// projection against the configured provider.
func New(cfg *Config, gateway arcgis.Gateway, logger *slog.Logger) System {
	return &pipeline{
		cfg:     cfg,
		gateway: gateway,
		logger:  logger.With("system", "ingestion"),
	}
}

func (p *pipeline) Handler(maxUploadSize int64) *Handler {
	return NewHandler(p, p.logger, maxUploadSize)
}

func (p *pipeline) IngestFile(ctx context.Context, in ShapeInput) (*Result, error) {
	const op = "ingest file"

	ext := normalizeExtension(in.Extension)
	if !p.cfg.Supports(ext) {
		return nil, arcgis.Validation(op, arcgis.ErrUnsupportedType, "extension %q", ext)
	}
	if err := p.checkPayload(op, in); err != nil {
		return nil, err
	}

	filename := in.Filename
	if filename == "" {
		filename = "upload." + ext
	}
	fileType, ok := generateFileTypes[ext]
	if !ok {
		fileType = ext
	}

	fc, err := p.gateway.GenerateFeatures(ctx, arcgis.GenerateRequest{
		Filename:                  filename,
		FileType:                  fileType,
		Data:                      in.Data,
		EnforceInputFileSizeLimit: p.cfg.SizeLimitEnforced(),
	})
	if err != nil {
		return nil, err
	}

	geoms, err := fc.Geometries()
	if err != nil {
		return nil, arcgis.Provider(op, "malformed feature collection", err)
	}
	if len(geoms) == 0 {
		return nil, arcgis.Validation(op, arcgis.ErrEmptyPayload, "file %s contains no features", filename)
	}

	p.logger.Info("file converted", "extension", ext, "bytes", len(in.Data), "geometries", len(geoms))
	return p.normalize(ctx, op, geoms, in.Simplification)
}

func (p *pipeline) IngestString(ctx context.Context, in ShapeInput) (*Result, error) {
	const op = "ingest string"

	ext := normalizeExtension(in.Extension)
	if !slices.Contains(StringExtensions, ext) {
		return nil, arcgis.Validation(op, arcgis.ErrUnsupportedType, "extension %q", ext)
	}
	in.Data = nil
	if err := p.checkPayload(op, in); err != nil {
		return nil, err
	}

	geoms, err := parseText(ext, []byte(in.Text))
	if err != nil {
		return nil, arcgis.Validation(op, err, "malformed %s geometry", ext)
	}
	if len(geoms) == 0 {
		return nil, arcgis.Validation(op, arcgis.ErrEmptyPayload, "no geometries")
	}

	return p.normalize(ctx, op, geoms, in.Simplification)
}

func (p *pipeline) checkPayload(op string, in ShapeInput) error {
	size := in.size()
	if size == 0 {
		return arcgis.Validation(op, arcgis.ErrEmptyPayload, "no content")
	}
	if limit := p.cfg.MaxUploadSizeBytes(); p.cfg.SizeLimitEnforced() && int64(size) > limit {
		return arcgis.Validation(op, arcgis.ErrTooLarge, "%s exceeds limit of %s",
			formatting.FormatBytes(int64(size), 1), formatting.FormatBytes(limit, 1))
	}
	s := in.Simplification
	if s.Offset < 0 || s.RoundDecimalPlaces < 0 || s.RoundDecimalPlaces > maxRoundDecimalPlaces {
		return arcgis.Validation(op, ErrInvalidSimplification, "offset %v, decimal places %d", s.Offset, s.RoundDecimalPlaces)
	}
	return nil
}

// normalize projects the set into the canonical reference and then
// simplifies each geometry there, so offsets and rounding apply in canonical
// units. It fails closed on any unresolved reference.
func (p *pipeline) normalize(ctx context.Context, op string, geoms []spatial.Geometry, s spatial.Simplification) (*Result, error) {
	for i, g := range geoms {
		if g.SpatialReference.IsZero() {
			return nil, arcgis.Validation(op, arcgis.ErrMissingSpatialReference, "geometry %d", i)
		}
	}

	projected, err := p.project(ctx, geoms)
	if err != nil {
		return nil, err
	}

	canonical := p.cfg.CanonicalReference()
	for i, g := range projected {
		if !g.SpatialReference.Equal(canonical) {
			return nil, arcgis.Provider(op, fmt.Sprintf("geometry %d returned in %s", i, g.SpatialReference), nil)
		}
		projected[i] = spatial.Simplify(g, s, p.cfg.MaxPointsPerRing)
	}

	result := &Result{
		Geometries: projected,
		Extent:     spatial.ExtentOf(projected),
	}

	if canonical.Code() == spatial.BritishNationalGrid && !result.Extent.IsEmpty() {
		c := result.Extent.Center()
		ref, err := spatial.GridReference(c[0], c[1], p.cfg.GridOptions())
		if err != nil {
			p.logger.Warn("grid reference unavailable", "error", err)
		} else {
			result.GridReference = ref
		}
	}

	return result, nil
}

// project converts geometries not already in the canonical reference and
// keeps the input order. WGS84 and Web Mercator pairs are converted locally;
// anything else goes to the geometry service, one request per source
// reference.
func (p *pipeline) project(ctx context.Context, geoms []spatial.Geometry) ([]spatial.Geometry, error) {
	canonical := p.cfg.CanonicalReference()
	out := slices.Clone(geoms)

	groups := make(map[int][]int)
	var order []int
	for i, g := range geoms {
		if g.SpatialReference.Equal(canonical) {
			continue
		}
		if spatial.CanTransform(g.SpatialReference, canonical) {
			t, err := spatial.Transform(g, canonical)
			if err != nil {
				return nil, arcgis.Validation("project", err, "geometry %d", i)
			}
			out[i] = t
			continue
		}
		code := g.SpatialReference.Code()
		if _, ok := groups[code]; !ok {
			order = append(order, code)
		}
		groups[code] = append(groups[code], i)
	}

	for _, code := range order {
		idx := groups[code]
		batch := make([]spatial.Geometry, len(idx))
		for j, i := range idx {
			batch[j] = geoms[i]
		}

		projected, err := p.gateway.Project(ctx, arcgis.ProjectRequest{
			Geometries: batch,
			InSR:       geoms[idx[0]].SpatialReference,
			OutSR:      canonical,
		})
		if err != nil {
			return nil, err
		}
		if len(projected) != len(idx) {
			return nil, arcgis.Provider("project", fmt.Sprintf("expected %d geometries, got %d", len(idx), len(projected)), nil)
		}
		for j, i := range idx {
			out[i] = projected[j]
		}

		p.logger.Info("geometries projected", "from", code, "to", canonical.Code(), "count", len(idx))
	}
	return out, nil
}

func parseText(ext string, data []byte) ([]spatial.Geometry, error) {
	switch ext {
	case "geojson":
		return spatial.ParseGeoJSON(data)
	case "esrijson":
		return parseEsri(data)
	}
	if isGeoJSON(data) {
		return spatial.ParseGeoJSON(data)
	}
	return parseEsri(data)
}

func isGeoJSON(data []byte) bool {
	var head struct {
		Type string `json:"type"`
	}
	return json.Unmarshal(data, &head) == nil && head.Type != ""
}

// parseEsri accepts a single Esri geometry or a featureSet. A missing
// reference stays zero so normalize can reject it.
func parseEsri(data []byte) ([]spatial.Geometry, error) {
	var head struct {
		Features json.RawMessage `json:"features"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return nil, err
	}

	if head.Features != nil {
		var fs arcgis.FeatureSet
		if err := json.Unmarshal(data, &fs); err != nil {
			return nil, err
		}
		return fs.Geometries(spatial.SpatialReference{})
	}

	g, err := spatial.ParseEsri(data, spatial.SpatialReference{})
	if err != nil {
		return nil, err
	}
	return []spatial.Geometry{g}, nil
}

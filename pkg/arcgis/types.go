package arcgis

import (
	"encoding/json"
	"fmt"

	"github.com/JaimeStill/canopy/pkg/spatial"
)

// LayerDescriptor is a static reference layer queried by intersect.
type LayerDescriptor struct {
	Name          string   `toml:"name" json:"name"`
	Provider      string   `toml:"provider" json:"provider"`
	ServiceURI    string   `toml:"service_uri" json:"serviceUri"`
	Fields        []string `toml:"fields" json:"fields"`
	RequiresToken bool     `toml:"requires_token" json:"requiresToken"`
}

// Feature is an Esri JSON feature. Geometry is kept raw until the owning
// feature set's geometry type and spatial reference are known.
type Feature struct {
	Attributes map[string]any  `json:"attributes"`
	Geometry   json.RawMessage `json:"geometry,omitempty"`
}

// NewFeature encodes g and attrs as an Esri JSON feature.
func NewFeature(g spatial.Geometry, attrs map[string]any) (Feature, error) {
	raw, err := g.MarshalEsri(true)
	if err != nil {
		return Feature{}, err
	}
	return Feature{Attributes: attrs, Geometry: raw}, nil
}

// ObjectID returns the feature's OBJECTID attribute when present.
func (f Feature) ObjectID() (int64, bool) {
	for _, k := range []string{"OBJECTID", "ObjectId", "objectid", "FID"} {
		if v, ok := f.Attributes[k]; ok {
			switch n := v.(type) {
			case float64:
				return int64(n), true
			case int64:
				return n, true
			case int:
				return int64(n), true
			case json.Number:
				i, err := n.Int64()
				return i, err == nil
			}
		}
	}
	return 0, false
}

// FeatureSet is a set of features sharing a geometry type and reference.
type FeatureSet struct {
	GeometryType     string                    `json:"geometryType"`
	SpatialReference *spatial.SpatialReference `json:"spatialReference,omitempty"`
	Features         []Feature                 `json:"features"`
}

// Geometries decodes every feature geometry. The set's spatial reference is
// used when a geometry carries none; fallback applies when neither does.
func (fs FeatureSet) Geometries(fallback spatial.SpatialReference) ([]spatial.Geometry, error) {
	sr := fallback
	if fs.SpatialReference != nil && !fs.SpatialReference.IsZero() {
		sr = *fs.SpatialReference
	}

	out := make([]spatial.Geometry, 0, len(fs.Features))
	for i, f := range fs.Features {
		if len(f.Geometry) == 0 {
			continue
		}
		g, err := spatial.ParseEsriTyped(f.Geometry, fs.GeometryType, sr)
		if err != nil {
			return nil, fmt.Errorf("feature %d: %w", i, err)
		}
		g.Attributes = f.Attributes
		out = append(out, g)
	}
	return out, nil
}

// LayerDefinition carries the subset of a generated layer's definition used
// to resolve its spatial reference.
type LayerDefinition struct {
	Name         string            `json:"name"`
	GeometryType string            `json:"geometryType"`
	Extent       *spatial.Envelope `json:"extent,omitempty"`
}

// FeatureLayer is one layer of a generated feature collection.
type FeatureLayer struct {
	LayerDefinition LayerDefinition `json:"layerDefinition"`
	FeatureSet      FeatureSet      `json:"featureSet"`
}

// FeatureCollection is the generate endpoint's converted output.
type FeatureCollection struct {
	Layers []FeatureLayer `json:"layers"`
}

// Geometries flattens every layer's geometries. A layer without a feature
// set reference falls back to its extent's reference; geometries with
// neither keep a zero reference.
func (fc *FeatureCollection) Geometries() ([]spatial.Geometry, error) {
	var out []spatial.Geometry
	for _, l := range fc.Layers {
		var fallback spatial.SpatialReference
		if l.LayerDefinition.Extent != nil {
			fallback = l.LayerDefinition.Extent.SpatialReference
		}
		if l.FeatureSet.GeometryType == "" {
			l.FeatureSet.GeometryType = l.LayerDefinition.GeometryType
		}
		geoms, err := l.FeatureSet.Geometries(fallback)
		if err != nil {
			return nil, fmt.Errorf("layer %s: %w", l.LayerDefinition.Name, err)
		}
		out = append(out, geoms...)
	}
	return out, nil
}

// GenerateRequest converts an uploaded file into features.
type GenerateRequest struct {
	Filename                   string
	FileType                   string
	Data                       []byte
	Generalize                 bool
	MaxAllowableOffset         float64
	ReducePrecision            bool
	NumberOfDigitsAfterDecimal int
	EnforceInputFileSizeLimit  bool
	TargetSR                   spatial.SpatialReference
}

// publishParameters is the JSON document the generate endpoint expects.
type publishParameters struct {
	Name                       string                    `json:"name"`
	Generalize                 bool                      `json:"generalize"`
	MaxAllowableOffset         float64                   `json:"maxAllowableOffset,omitempty"`
	ReducePrecision            bool                      `json:"reducePrecision"`
	NumberOfDigitsAfterDecimal int                       `json:"numberOfDigitsAfterDecimal,omitempty"`
	EnforceInputFileSizeLimit  bool                      `json:"enforceInputFileSizeLimit"`
	EnforceOutputJSONSizeLimit bool                      `json:"enforceOutputJsonSizeLimit"`
	TargetSR                   *spatial.SpatialReference `json:"targetSR,omitempty"`
	SourceCountry              string                    `json:"sourceCountry,omitempty"`
}

type generateResponse struct {
	FeatureCollection FeatureCollection `json:"featureCollection"`
}

// ProjectRequest reprojects geometries between spatial references.
type ProjectRequest struct {
	Geometries []spatial.Geometry
	InSR       spatial.SpatialReference
	OutSR      spatial.SpatialReference
}

// UnionRequest dissolves geometries sharing one spatial reference.
type UnionRequest struct {
	Geometries []spatial.Geometry
	SR         spatial.SpatialReference
}

// IntersectRequest queries a reference layer for features intersecting
// Geometry.
type IntersectRequest struct {
	Layer    LayerDescriptor
	Geometry spatial.Geometry
}

// geometryBatch is the geometry service's geometries parameter.
type geometryBatch struct {
	GeometryType string            `json:"geometryType"`
	Geometries   []json.RawMessage `json:"geometries"`
}

type geometriesResponse struct {
	Geometries []json.RawMessage `json:"geometries"`
}

type unionResponse struct {
	GeometryType string          `json:"geometryType"`
	Geometry     json.RawMessage `json:"geometry"`
}

// ExportRequest submits a print job.
type ExportRequest struct {
	WebMap         []byte
	Format         string
	LayoutTemplate string
}

// JobMessage is a diagnostic attached to an async job.
type JobMessage struct {
	Type        string `json:"type"`
	Description string `json:"description"`
}

// JobInfo is an async job's id and raw status.
type JobInfo struct {
	JobID     string       `json:"jobId"`
	JobStatus string       `json:"jobStatus"`
	Messages  []JobMessage `json:"messages,omitempty"`
}

type jobResultResponse struct {
	ParamName string `json:"paramName"`
	Value     struct {
		URL string `json:"url"`
	} `json:"value"`
}

// FeatureQuery selects features from the features endpoint.
type FeatureQuery struct {
	Where          string
	OutFields      []string
	ReturnGeometry bool
}

// PushRequest adds and updates features in one applyEdits call.
type PushRequest struct {
	Adds    []Feature
	Updates []Feature
}

// EditOutcome is the result of one add or update.
type EditOutcome struct {
	ObjectID int64      `json:"objectId"`
	Success  bool       `json:"success"`
	Error    *restError `json:"error,omitempty"`
}

// Err returns the outcome's failure, if any.
func (o EditOutcome) Err() error {
	if o.Success {
		return nil
	}
	if o.Error == nil {
		return Provider("apply edits", "edit rejected", nil)
	}
	return o.Error.classify("apply edits", 0)
}

// EditResult reports per-feature outcomes of applyEdits.
type EditResult struct {
	AddResults    []EditOutcome `json:"addResults"`
	UpdateResults []EditOutcome `json:"updateResults"`
}

type queryResponse struct {
	FeatureSet
	ExceededTransferLimit bool `json:"exceededTransferLimit"`
}

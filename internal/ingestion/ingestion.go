package ingestion

import "github.com/JaimeStill/canopy/pkg/spatial"

// ShapeInput is a single submission. Data carries file content for the file
// path; Text carries a geometry string for the string path.
type ShapeInput struct {
	Data           []byte                 `json:"-"`
	Text           string                 `json:"text"`
	Extension      string                 `json:"extension"`
	Filename       string                 `json:"filename,omitempty"`
	Simplification spatial.Simplification `json:"simplification"`
}

func (in ShapeInput) size() int {
	if in.Data != nil {
		return len(in.Data)
	}
	return len(in.Text)
}

// Result is the normalized output of an ingestion. Every geometry carries
// the canonical spatial reference.
type Result struct {
	Geometries    []spatial.Geometry `json:"geometries"`
	Extent        spatial.Envelope   `json:"extent"`
	GridReference string             `json:"gridReference,omitempty"`
}

package exports

import (
	"time"

	"github.com/google/uuid"

	"github.com/JaimeStill/canopy/pkg/arcgis"
	"github.com/JaimeStill/canopy/pkg/spatial"
)

// Status is the engine's view of an export job.
type Status string

const (
	StatusPending Status = "pending"
	StatusSuccess Status = "success"
	StatusFailed  Status = "failed"
)

// Job tracks one asynchronous export. Status only ever moves from pending
// to a terminal state.
type Job struct {
	ID           string              `json:"id"`
	Ref          uuid.UUID           `json:"ref"`
	Format       string              `json:"format"`
	SubmittedAt  time.Time           `json:"submittedAt"`
	Status       Status              `json:"status"`
	RawStatus    string              `json:"rawStatus"`
	ResultURL    string              `json:"resultUrl,omitempty"`
	ArchiveKey   string              `json:"archiveKey,omitempty"`
	TimedOut     bool                `json:"timedOut"`
	Unrecognized bool                `json:"unrecognized"`
	Polls        int                 `json:"polls"`
	Messages     []arcgis.JobMessage `json:"messages,omitempty"`
}

// Terminal reports whether the job has reached success or failure.
func (j *Job) Terminal() bool {
	return j.Status == StatusSuccess || j.Status == StatusFailed
}

// Request describes a map to export.
type Request struct {
	Layers     []arcgis.LayerDescriptor `json:"layers"`
	Geometries []spatial.Geometry       `json:"geometries"`
	Layout     Layout                   `json:"layout"`
	Format     string                   `json:"format,omitempty"`
}

// Layout carries the printed page furniture.
type Layout struct {
	Title         string `json:"title"`
	Template      string `json:"template,omitempty"`
	GeometryLabel string `json:"geometryLabel,omitempty"`
	Legend        bool   `json:"legend"`
}

// GeometryTitle returns the legend label for the submitted geometry.
func (l Layout) GeometryTitle() string {
	if l.GeometryLabel != "" {
		return l.GeometryLabel
	}
	return "Proposal boundary"
}

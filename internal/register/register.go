package register

import (
	"time"

	"github.com/google/uuid"

	"github.com/JaimeStill/canopy/pkg/spatial"
)

// Register statuses understood by the public register.
const (
	StatusInitialProposal = "InitialProposal"
	StatusConsultation    = "Consultation"
	StatusFinalProposal   = "FinalProposal"
	StatusApproved        = "Approved"
	StatusUploadedByGMS   = "UploadedByGMS"
)

// Feature is one case geometry to publish. Key identifies it within the
// case and on the register.
type Feature struct {
	Key        string           `json:"key"`
	Geometry   spatial.Geometry `json:"geometry"`
	Attributes map[string]any   `json:"attributes,omitempty"`
}

// PublishCommand publishes a case's features under a register status.
type PublishCommand struct {
	CaseID   string    `json:"case_id"`
	Features []Feature `json:"features"`
	Status   string    `json:"status"`
}

// PublishResult reports what a publish changed on the register.
type PublishResult struct {
	BatchID   uuid.UUID        `json:"batch_id"`
	CaseID    string           `json:"case_id"`
	Added     int              `json:"added"`
	Updated   int              `json:"updated"`
	Unchanged int              `json:"unchanged"`
	Failed    []FeatureFailure `json:"failed,omitempty"`
}

// FeatureFailure records a feature the register rejected.
type FeatureFailure struct {
	Key     string `json:"key"`
	Message string `json:"error"`
	Err     error  `json:"-"`
}

// Entry is the ledger record of the last successful publish of a feature.
type Entry struct {
	Provider    string    `json:"provider"`
	CaseID      string    `json:"case_id"`
	FeatureKey  string    `json:"feature_key"`
	ObjectID    int64     `json:"object_id"`
	StatusCode  int       `json:"status_code"`
	ContentHash string    `json:"content_hash"`
	BatchID     uuid.UUID `json:"batch_id"`
	PublishedAt time.Time `json:"published_at"`
}

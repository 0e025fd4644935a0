package ingestion

import "context"

// System defines the public contract for turning submitted spatial data
// into normalized geometry.
type System interface {
	Handler(maxUploadSize int64) *Handler

	IngestFile(ctx context.Context, in ShapeInput) (*Result, error)
	IngestString(ctx context.Context, in ShapeInput) (*Result, error)
}

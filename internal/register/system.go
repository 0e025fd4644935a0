package register

import (
	"context"

	"github.com/JaimeStill/canopy/pkg/arcgis"
	"github.com/JaimeStill/canopy/pkg/pagination"
)

// System publishes case features to the public register and reports what
// has been published.
type System interface {
	Handler() *Handler

	// Publish adds or updates every feature of cmd on the register under
	// cmd.Status. Features whose content is unchanged since their last
	// successful publish are skipped.
	Publish(ctx context.Context, cmd PublishCommand) (*PublishResult, error)

	List(ctx context.Context, page pagination.PageRequest, filters Filters) (*pagination.PageResult[Entry], error)
}

// Ledger records the last successful publish of each feature.
type Ledger interface {
	Find(ctx context.Context, provider, caseID string, keys []string) (map[string]Entry, error)
	Upsert(ctx context.Context, entries []Entry) error
	List(ctx context.Context, page pagination.PageRequest, filters Filters) (*pagination.PageResult[Entry], error)
}

// Gateways resolves provider gateways by key.
type Gateways interface {
	Get(key string) (arcgis.Gateway, error)
}

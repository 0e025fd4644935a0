package exports

import (
	"context"
	"io"
	"time"

	"github.com/JaimeStill/canopy/pkg/arcgis"
)

// System defines the public contract for map export orchestration.
type System interface {
	Handler() *Handler

	ExportMap(ctx context.Context, req Request) (*Job, error)
	Await(ctx context.Context, job *Job, maxWait, pollInterval time.Duration) (*Job, error)
	Archive(ctx context.Context, job *Job) (string, error)
	Export(ctx context.Context, req Request, archive bool) (*Job, error)
}

// Gateways resolves a provider key to its gateway.
type Gateways interface {
	Get(key string) (arcgis.Gateway, error)
}

// Tokens issues bearer tokens for layers that require one.
type Tokens interface {
	Token(ctx context.Context, providerKey string) (string, error)
}

// Store persists archived export outputs.
type Store interface {
	Upload(ctx context.Context, key string, reader io.Reader, contentType string) error
}

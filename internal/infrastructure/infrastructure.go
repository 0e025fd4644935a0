// Package infrastructure provides core service initialization for application startup.
// It assembles common dependencies (logging, database, storage, upstream GIS
// providers) that domain systems require.
package infrastructure

import (
	"fmt"
	"log/slog"
	"net/http"
	"os"

	"github.com/jonboulle/clockwork"

	"github.com/JaimeStill/canopy/internal/config"
	"github.com/JaimeStill/canopy/pkg/arcgis"
	"github.com/JaimeStill/canopy/pkg/database"
	"github.com/JaimeStill/canopy/pkg/lifecycle"
	"github.com/JaimeStill/canopy/pkg/storage"
)

// Infrastructure holds the core systems required by all domain modules.
// It provides a single point of initialization for lifecycle coordination,
// logging, database access, file storage, and the provider gateways.
type Infrastructure struct {
	Lifecycle *lifecycle.Coordinator
	Logger    *slog.Logger
	Clock     clockwork.Clock
	Database  database.System
	Storage   storage.System
	Providers *arcgis.Registry
}

// New creates an Infrastructure from the application configuration.
// It initializes all systems but does not start them; call Start separately.
func New(cfg *config.Config) (*Infrastructure, error) {
	lc := lifecycle.New()
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	clock := clockwork.NewRealClock()

	db, err := database.New(&cfg.Database, logger)
	if err != nil {
		return nil, fmt.Errorf("database init failed: %w", err)
	}

	store, err := storage.New(&cfg.Storage, logger)
	if err != nil {
		return nil, fmt.Errorf("storage init failed: %w", err)
	}

	// Per-call timeouts come from each provider's config.
	client := &http.Client{Transport: http.DefaultTransport}
	providers := arcgis.NewRegistry(&cfg.GIS.Config, client, clock, logger)

	logger.Info("gis providers configured", "providers", providers.Keys())

	return &Infrastructure{
		Lifecycle: lc,
		Logger:    logger,
		Clock:     clock,
		Database:  db,
		Storage:   store,
		Providers: providers,
	}, nil
}

// Start registers all infrastructure systems with the lifecycle coordinator.
// Database and storage hooks are registered for startup and shutdown coordination.
func (i *Infrastructure) Start() error {
	if err := i.Database.Start(i.Lifecycle); err != nil {
		return fmt.Errorf("database start failed: %w", err)
	}
	if err := i.Storage.Start(i.Lifecycle); err != nil {
		return fmt.Errorf("storage start failed: %w", err)
	}
	return nil
}

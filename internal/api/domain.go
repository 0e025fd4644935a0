package api

import (
	"fmt"

	"github.com/JaimeStill/canopy/internal/config"
	"github.com/JaimeStill/canopy/internal/exports"
	"github.com/JaimeStill/canopy/internal/ingestion"
	"github.com/JaimeStill/canopy/internal/register"
	"github.com/JaimeStill/canopy/internal/zones"
)

// Domain holds all domain systems that comprise the API.
type Domain struct {
	Ingestion ingestion.System
	Zones     zones.System
	Exports   exports.System
	Register  register.System
}

// NewDomain creates all domain systems from the API runtime.
func NewDomain(cfg *config.Config, runtime *Runtime) (*Domain, error) {
	gis := &cfg.GIS

	ingestGateway, err := runtime.Providers.Get(gis.Ingestion.Provider)
	if err != nil {
		return nil, fmt.Errorf("ingestion: %w", err)
	}

	ingestionSystem := ingestion.New(
		&gis.Ingestion,
		ingestGateway,
		runtime.Logger,
	)

	zonesSystem := zones.New(
		&gis.Zones,
		runtime.Providers,
		runtime.Logger,
	)

	exportsSystem := exports.New(
		&gis.Exports,
		runtime.Providers,
		runtime.Providers.Tokens(),
		runtime.Storage,
		runtime.Clock,
		runtime.Logger,
	)

	registerSystem := register.New(
		&gis.Register,
		runtime.Providers,
		register.NewLedger(runtime.Database.Connection(), runtime.Logger),
		runtime.Clock,
		runtime.Logger,
		runtime.Pagination,
	)

	return &Domain{
		Ingestion: ingestionSystem,
		Zones:     zonesSystem,
		Exports:   exportsSystem,
		Register:  registerSystem,
	}, nil
}

package config

import (
	"fmt"

	"github.com/JaimeStill/canopy/internal/exports"
	"github.com/JaimeStill/canopy/internal/ingestion"
	"github.com/JaimeStill/canopy/internal/register"
	"github.com/JaimeStill/canopy/internal/zones"
	"github.com/JaimeStill/canopy/pkg/arcgis"
)

var arcgisEnv = &arcgis.Env{
	TokenSafetyMargin: "CANOPY_GIS_TOKEN_SAFETY_MARGIN",
	Prefix:            "CANOPY_GIS",
}

var ingestionEnv = &ingestion.Env{
	Provider:         "CANOPY_INGESTION_PROVIDER",
	MaxUploadSize:    "CANOPY_INGESTION_MAX_UPLOAD_SIZE",
	EnforceSizeLimit: "CANOPY_INGESTION_ENFORCE_SIZE_LIMIT",
	CanonicalWKID:    "CANOPY_INGESTION_CANONICAL_WKID",
}

var zonesEnv = &zones.Env{
	Provider:          "CANOPY_ZONES_PROVIDER",
	MaxParallelLayers: "CANOPY_ZONES_MAX_PARALLEL_LAYERS",
}

var exportsEnv = &exports.Env{
	Provider:     "CANOPY_EXPORTS_PROVIDER",
	MaxWait:      "CANOPY_EXPORTS_MAX_WAIT",
	PollInterval: "CANOPY_EXPORTS_POLL_INTERVAL",
}

var registerEnv = &register.Env{
	Provider:        "CANOPY_REGISTER_PROVIDER",
	FeatureKeyField: "CANOPY_REGISTER_FEATURE_KEY_FIELD",
}

// GISConfig holds the upstream providers and the settings of every system
// that calls them.
type GISConfig struct {
	arcgis.Config
	Ingestion ingestion.Config `toml:"ingestion"`
	Zones     zones.Config     `toml:"zones"`
	Exports   exports.Config   `toml:"exports"`
	Register  register.Config  `toml:"register"`
}

// Finalize finalizes the provider set and each system config, then checks
// that every system names a configured provider.
func (c *GISConfig) Finalize() error {
	if err := c.Config.Finalize(arcgisEnv); err != nil {
		return err
	}
	if err := c.Ingestion.Finalize(ingestionEnv); err != nil {
		return fmt.Errorf("ingestion: %w", err)
	}
	if err := c.Zones.Finalize(zonesEnv); err != nil {
		return fmt.Errorf("zones: %w", err)
	}
	if err := c.Exports.Finalize(exportsEnv); err != nil {
		return fmt.Errorf("exports: %w", err)
	}
	if err := c.Register.Finalize(registerEnv); err != nil {
		return fmt.Errorf("register: %w", err)
	}
	return c.validate()
}

// Merge overwrites non-zero fields from overlay across nested configs.
func (c *GISConfig) Merge(overlay *GISConfig) {
	c.Config.Merge(&overlay.Config)
	c.Ingestion.Merge(&overlay.Ingestion)
	c.Zones.Merge(&overlay.Zones)
	c.Exports.Merge(&overlay.Exports)
	c.Register.Merge(&overlay.Register)
}

func (c *GISConfig) validate() error {
	refs := map[string]string{
		"ingestion": c.Ingestion.Provider,
		"zones":     c.Zones.Provider,
		"exports":   c.Exports.Provider,
		"register":  c.Register.Provider,
	}
	for _, l := range c.Zones.AllLayers() {
		refs["zones layer "+l.Name] = l.Provider
	}

	for owner, key := range refs {
		if _, err := c.Provider(key); err != nil {
			return fmt.Errorf("%s: %w", owner, err)
		}
	}
	return nil
}

package ingestion

import (
	"fmt"
	"os"
	"slices"
	"strconv"
	"strings"

	"github.com/JaimeStill/canopy/pkg/formatting"
	"github.com/JaimeStill/canopy/pkg/spatial"
)

// StringExtensions are the formats accepted by the string ingestion path.
var StringExtensions = []string{"json", "geojson", "esrijson"}

// Config controls the ingestion gates, simplification limits, and the
// canonical output reference.
type Config struct {
	Provider            string   `toml:"provider"`
	SupportedExtensions []string `toml:"supported_extensions"`
	MaxUploadSize       string   `toml:"max_upload_size"`
	EnforceSizeLimit    *bool    `toml:"enforce_size_limit"`
	CanonicalWKID       int      `toml:"canonical_wkid"`
	MaxPointsPerRing    int      `toml:"max_points_per_ring"`
	OSGridLength        int      `toml:"osgrid_length"`
	OSGridSpacing       *bool    `toml:"osgrid_spacing"`
}

// Env names the environment variables that override Config.
type Env struct {
	Provider         string
	MaxUploadSize    string
	EnforceSizeLimit string
	CanonicalWKID    string
}

// MaxUploadSizeBytes returns MaxUploadSize as a byte count.
func (c *Config) MaxUploadSizeBytes() int64 {
	size, err := formatting.ParseBytes(c.MaxUploadSize)
	if err != nil {
		return 32 * 1024 * 1024
	}
	return size
}

// CanonicalReference returns the reference every ingested geometry is
// projected into.
func (c *Config) CanonicalReference() spatial.SpatialReference {
	return spatial.NewSpatialReference(c.CanonicalWKID)
}

// SizeLimitEnforced reports whether payloads over MaxUploadSize are rejected.
func (c *Config) SizeLimitEnforced() bool {
	return c.EnforceSizeLimit == nil || *c.EnforceSizeLimit
}

// GridOptions returns the OS grid reference format.
func (c *Config) GridOptions() spatial.GridOptions {
	return spatial.GridOptions{
		Digits:  c.OSGridLength,
		Spacing: c.OSGridSpacing == nil || *c.OSGridSpacing,
	}
}

// Supports reports whether ext is on the file allow-list.
func (c *Config) Supports(ext string) bool {
	return slices.Contains(c.SupportedExtensions, normalizeExtension(ext))
}

// Finalize applies defaults, environment variable overrides, and validation.
func (c *Config) Finalize(env *Env) error {
	c.loadDefaults()
	if env != nil {
		c.loadEnv(env)
	}
	return c.validate()
}

// Merge overwrites non-zero fields from overlay.
func (c *Config) Merge(overlay *Config) {
	if overlay.Provider != "" {
		c.Provider = overlay.Provider
	}
	if len(overlay.SupportedExtensions) > 0 {
		c.SupportedExtensions = overlay.SupportedExtensions
	}
	if overlay.MaxUploadSize != "" {
		c.MaxUploadSize = overlay.MaxUploadSize
	}
	if overlay.EnforceSizeLimit != nil {
		c.EnforceSizeLimit = overlay.EnforceSizeLimit
	}
	if overlay.CanonicalWKID != 0 {
		c.CanonicalWKID = overlay.CanonicalWKID
	}
	if overlay.MaxPointsPerRing != 0 {
		c.MaxPointsPerRing = overlay.MaxPointsPerRing
	}
	if overlay.OSGridLength != 0 {
		c.OSGridLength = overlay.OSGridLength
	}
	if overlay.OSGridSpacing != nil {
		c.OSGridSpacing = overlay.OSGridSpacing
	}
}

func (c *Config) loadDefaults() {
	if c.Provider == "" {
		c.Provider = "agol"
	}
	if len(c.SupportedExtensions) == 0 {
		c.SupportedExtensions = []string{"zip", "json", "geojson", "kml", "csv"}
	}
	for i, ext := range c.SupportedExtensions {
		c.SupportedExtensions[i] = normalizeExtension(ext)
	}
	if c.MaxUploadSize == "" {
		c.MaxUploadSize = "32MB"
	}
	if c.CanonicalWKID == 0 {
		c.CanonicalWKID = spatial.BritishNationalGrid
	}
	if c.MaxPointsPerRing == 0 {
		c.MaxPointsPerRing = 1000
	}
	if c.OSGridLength == 0 {
		c.OSGridLength = 10
	}
}

func (c *Config) loadEnv(env *Env) {
	if env.Provider != "" {
		if v := os.Getenv(env.Provider); v != "" {
			c.Provider = v
		}
	}
	if env.MaxUploadSize != "" {
		if v := os.Getenv(env.MaxUploadSize); v != "" {
			c.MaxUploadSize = v
		}
	}
	if env.EnforceSizeLimit != "" {
		if v := os.Getenv(env.EnforceSizeLimit); v != "" {
			if b, err := strconv.ParseBool(v); err == nil {
				c.EnforceSizeLimit = &b
			}
		}
	}
	if env.CanonicalWKID != "" {
		if v := os.Getenv(env.CanonicalWKID); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				c.CanonicalWKID = n
			}
		}
	}
}

func (c *Config) validate() error {
	if _, err := formatting.ParseBytes(c.MaxUploadSize); err != nil {
		return fmt.Errorf("invalid max_upload_size: %w", err)
	}
	if c.MaxPointsPerRing < spatial.MinReduceLimit {
		return fmt.Errorf("max_points_per_ring must be at least %d", spatial.MinReduceLimit)
	}
	if c.OSGridLength < 2 || c.OSGridLength > 10 || c.OSGridLength%2 != 0 {
		return fmt.Errorf("osgrid_length must be even and between 2 and 10")
	}
	return nil
}

func normalizeExtension(ext string) string {
	return strings.ToLower(strings.TrimPrefix(strings.TrimSpace(ext), "."))
}

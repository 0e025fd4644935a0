package zones

import (
	"fmt"
	"os"
	"strconv"

	"github.com/JaimeStill/canopy/pkg/arcgis"
)

// Config names the reference layers queried by the zone service.
type Config struct {
	Provider          string                   `toml:"provider"`
	EnglandLayer      arcgis.LayerDescriptor   `toml:"england_layer"`
	Layers            []arcgis.LayerDescriptor `toml:"layers"`
	MaxParallelLayers int                      `toml:"max_parallel_layers"`
}

// Env names the environment variables that override Config.
type Env struct {
	Provider          string
	MaxParallelLayers string
}

// AllLayers returns every configured layer, the England boundary first when
// it is set.
func (c *Config) AllLayers() []arcgis.LayerDescriptor {
	out := make([]arcgis.LayerDescriptor, 0, len(c.Layers)+1)
	if c.EnglandLayer.ServiceURI != "" {
		out = append(out, c.EnglandLayer)
	}
	return append(out, c.Layers...)
}

// Finalize applies defaults, environment variable overrides, and validation.
func (c *Config) Finalize(env *Env) error {
	c.loadDefaults()
	if env != nil {
		c.loadEnv(env)
	}
	c.resolveLayerProviders()
	return c.validate()
}

// Merge overwrites non-zero fields from overlay. Overlay layers replace the
// configured set.
func (c *Config) Merge(overlay *Config) {
	if overlay.Provider != "" {
		c.Provider = overlay.Provider
	}
	if overlay.EnglandLayer.ServiceURI != "" {
		c.EnglandLayer = overlay.EnglandLayer
	}
	if len(overlay.Layers) > 0 {
		c.Layers = overlay.Layers
	}
	if overlay.MaxParallelLayers != 0 {
		c.MaxParallelLayers = overlay.MaxParallelLayers
	}
}

func (c *Config) loadDefaults() {
	if c.Provider == "" {
		c.Provider = "agol"
	}
	if c.MaxParallelLayers == 0 {
		c.MaxParallelLayers = 4
	}
	if c.EnglandLayer.Name == "" {
		c.EnglandLayer.Name = "england"
	}
}

// resolveLayerProviders fills unset layer providers from the final Provider,
// after environment overrides.
func (c *Config) resolveLayerProviders() {
	if c.EnglandLayer.Provider == "" {
		c.EnglandLayer.Provider = c.Provider
	}
	for i := range c.Layers {
		if c.Layers[i].Provider == "" {
			c.Layers[i].Provider = c.Provider
		}
	}
}

func (c *Config) loadEnv(env *Env) {
	if env.Provider != "" {
		if v := os.Getenv(env.Provider); v != "" {
			c.Provider = v
		}
	}
	if env.MaxParallelLayers != "" {
		if v := os.Getenv(env.MaxParallelLayers); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				c.MaxParallelLayers = n
			}
		}
	}
}

func (c *Config) validate() error {
	if c.MaxParallelLayers < 1 {
		return fmt.Errorf("max_parallel_layers must be at least 1")
	}
	seen := make(map[string]bool, len(c.Layers))
	for i, l := range c.Layers {
		if l.Name == "" || l.ServiceURI == "" {
			return fmt.Errorf("layer %d: name and service_uri are required", i)
		}
		if seen[l.Name] {
			return fmt.Errorf("duplicate layer name %q", l.Name)
		}
		seen[l.Name] = true
	}
	return nil
}

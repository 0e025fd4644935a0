package register

import (
	"fmt"
	"os"
	"strconv"
)

// Config names the public register provider and the attribute fields
// written on each published feature.
type Config struct {
	Provider           string `toml:"provider"`
	FeatureKeyField    string `toml:"feature_key_field"`
	CaseField          string `toml:"case_field"`
	StatusField        string `toml:"status_field"`
	LookupBatchSize    int    `toml:"lookup_batch_size"`
	MaxParallelLookups int    `toml:"max_parallel_lookups"`
}

// Env names the environment variables that override Config.
type Env struct {
	Provider        string
	FeatureKeyField string
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
	if overlay.FeatureKeyField != "" {
		c.FeatureKeyField = overlay.FeatureKeyField
	}
	if overlay.CaseField != "" {
		c.CaseField = overlay.CaseField
	}
	if overlay.StatusField != "" {
		c.StatusField = overlay.StatusField
	}
	if overlay.LookupBatchSize != 0 {
		c.LookupBatchSize = overlay.LookupBatchSize
	}
	if overlay.MaxParallelLookups != 0 {
		c.MaxParallelLookups = overlay.MaxParallelLookups
	}
}

func (c *Config) loadDefaults() {
	if c.Provider == "" {
		c.Provider = "public-register"
	}
	if c.FeatureKeyField == "" {
		c.FeatureKeyField = "FEATURE_KEY"
	}
	if c.CaseField == "" {
		c.CaseField = "CASE_REFERENCE"
	}
	if c.StatusField == "" {
		c.StatusField = "STATUS"
	}
	if c.LookupBatchSize == 0 {
		c.LookupBatchSize = 100
	}
	if c.MaxParallelLookups == 0 {
		c.MaxParallelLookups = 4
	}
}

func (c *Config) loadEnv(env *Env) {
	if env.Provider != "" {
		if v := os.Getenv(env.Provider); v != "" {
			c.Provider = v
		}
	}
	if env.FeatureKeyField != "" {
		if v := os.Getenv(env.FeatureKeyField); v != "" {
			c.FeatureKeyField = v
		}
	}
}

func (c *Config) validate() error {
	if c.LookupBatchSize < 1 {
		return fmt.Errorf("lookup_batch_size must be at least 1")
	}
	if c.MaxParallelLookups < 1 {
		return fmt.Errorf("max_parallel_lookups must be at least 1, got %s", strconv.Itoa(c.MaxParallelLookups))
	}
	return nil
}

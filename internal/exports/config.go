package exports

import (
	"fmt"
	"os"
	"strings"
	"time"
)

// Config controls Web_Map_as_JSON composition and job polling.
type Config struct {
	Provider       string        `toml:"provider"`
	Format         string        `toml:"format"`
	LayoutTemplate string        `toml:"layout_template"`
	DPI            int           `toml:"dpi"`
	Width          int           `toml:"width"`
	Height         int           `toml:"height"`
	Padding        float64       `toml:"padding"`
	MinPadding     float64       `toml:"min_padding"`
	Copyright      string        `toml:"copyright"`
	Basemap        BasemapConfig `toml:"basemap"`
	Symbology      Symbology     `toml:"symbology"`
	ResultParam    string        `toml:"result_param"`
	MaxWait        string        `toml:"max_wait"`
	PollInterval   string        `toml:"poll_interval"`
	JitterFraction float64       `toml:"jitter_fraction"`
}

// BasemapConfig names the basemap tile service rendered beneath the layers.
type BasemapConfig struct {
	Title string `toml:"title"`
	URL   string `toml:"url"`
}

// Symbology is the rendering of submitted geometry. Colors are RGBA.
type Symbology struct {
	FillColor    [4]int  `toml:"fill_color"`
	OutlineColor [4]int  `toml:"outline_color"`
	OutlineWidth float64 `toml:"outline_width"`
	MarkerSize   float64 `toml:"marker_size"`
}

// Env names the environment variables that override Config.
type Env struct {
	Provider     string
	MaxWait      string
	PollInterval string
}

// MaxWaitDuration returns MaxWait as a time.Duration.
func (c *Config) MaxWaitDuration() time.Duration {
	d, _ := time.ParseDuration(c.MaxWait)
	return d
}

// PollIntervalDuration returns PollInterval as a time.Duration.
func (c *Config) PollIntervalDuration() time.Duration {
	d, _ := time.ParseDuration(c.PollInterval)
	return d
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
	if overlay.Format != "" {
		c.Format = overlay.Format
	}
	if overlay.LayoutTemplate != "" {
		c.LayoutTemplate = overlay.LayoutTemplate
	}
	if overlay.DPI != 0 {
		c.DPI = overlay.DPI
	}
	if overlay.Width != 0 {
		c.Width = overlay.Width
	}
	if overlay.Height != 0 {
		c.Height = overlay.Height
	}
	if overlay.Padding != 0 {
		c.Padding = overlay.Padding
	}
	if overlay.MinPadding != 0 {
		c.MinPadding = overlay.MinPadding
	}
	if overlay.Copyright != "" {
		c.Copyright = overlay.Copyright
	}
	if overlay.Basemap.URL != "" {
		c.Basemap = overlay.Basemap
	}
	if overlay.Symbology.OutlineWidth != 0 {
		c.Symbology = overlay.Symbology
	}
	if overlay.ResultParam != "" {
		c.ResultParam = overlay.ResultParam
	}
	if overlay.MaxWait != "" {
		c.MaxWait = overlay.MaxWait
	}
	if overlay.PollInterval != "" {
		c.PollInterval = overlay.PollInterval
	}
	if overlay.JitterFraction != 0 {
		c.JitterFraction = overlay.JitterFraction
	}
}

func (c *Config) loadDefaults() {
	if c.Provider == "" {
		c.Provider = "agol"
	}
	if c.Format == "" {
		c.Format = "PDF"
	}
	if c.LayoutTemplate == "" {
		c.LayoutTemplate = "A4 Landscape"
	}
	if c.DPI == 0 {
		c.DPI = 96
	}
	if c.Width == 0 {
		c.Width = 1100
	}
	if c.Height == 0 {
		c.Height = 800
	}
	if c.Padding == 0 {
		c.Padding = 0.1
	}
	if c.MinPadding == 0 {
		c.MinPadding = 50
	}
	if c.Basemap.URL == "" {
		c.Basemap = BasemapConfig{
			Title: "World Topographic Map",
			URL:   "https://services.arcgisonline.com/ArcGIS/rest/services/World_Topo_Map/MapServer",
		}
	}
	if c.Symbology.OutlineWidth == 0 {
		c.Symbology = Symbology{
			FillColor:    [4]int{255, 0, 0, 64},
			OutlineColor: [4]int{255, 0, 0, 255},
			OutlineWidth: 2,
			MarkerSize:   8,
		}
	}
	if c.ResultParam == "" {
		c.ResultParam = "Output_File"
	}
	if c.MaxWait == "" {
		c.MaxWait = "2m"
	}
	if c.PollInterval == "" {
		c.PollInterval = "2s"
	}
	if c.JitterFraction == 0 {
		c.JitterFraction = 0.2
	}
}

func (c *Config) loadEnv(env *Env) {
	if env.Provider != "" {
		if v := os.Getenv(env.Provider); v != "" {
			c.Provider = v
		}
	}
	if env.MaxWait != "" {
		if v := os.Getenv(env.MaxWait); v != "" {
			c.MaxWait = v
		}
	}
	if env.PollInterval != "" {
		if v := os.Getenv(env.PollInterval); v != "" {
			c.PollInterval = v
		}
	}
}

func (c *Config) validate() error {
	if d, err := time.ParseDuration(c.MaxWait); err != nil || d <= 0 {
		return fmt.Errorf("invalid max_wait: %q", c.MaxWait)
	}
	if d, err := time.ParseDuration(c.PollInterval); err != nil || d <= 0 {
		return fmt.Errorf("invalid poll_interval: %q", c.PollInterval)
	}
	if c.JitterFraction < 0 || c.JitterFraction > 1 {
		return fmt.Errorf("jitter_fraction must be between 0 and 1")
	}
	if c.Padding < 0 || c.MinPadding < 0 {
		return fmt.Errorf("padding must not be negative")
	}
	if _, ok := formatExtension(c.Format); !ok {
		return fmt.Errorf("unsupported format %q", c.Format)
	}
	return nil
}

var formatExtensions = map[string]string{
	"PDF":   "pdf",
	"PNG8":  "png",
	"PNG32": "png",
	"JPG":   "jpg",
	"GIF":   "gif",
	"SVG":   "svg",
	"SVGZ":  "svgz",
	"EPS":   "eps",
	"AIX":   "aix",
	"TIFF":  "tif",
}

func formatExtension(format string) (string, bool) {
	ext, ok := formatExtensions[strings.ToUpper(format)]
	return ext, ok
}

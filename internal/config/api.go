package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/JaimeStill/canopy/pkg/formatting"
	"github.com/JaimeStill/canopy/pkg/middleware"
	"github.com/JaimeStill/canopy/pkg/pagination"
)

var corsEnv = &middleware.CORSEnv{
	Enabled:          "CANOPY_CORS_ENABLED",
	Origins:          "CANOPY_CORS_ORIGINS",
	AllowedMethods:   "CANOPY_CORS_ALLOWED_METHODS",
	AllowedHeaders:   "CANOPY_CORS_ALLOWED_HEADERS",
	ExposedHeaders:   "CANOPY_CORS_EXPOSED_HEADERS",
	AllowCredentials: "CANOPY_CORS_ALLOW_CREDENTIALS",
	MaxAge:           "CANOPY_CORS_MAX_AGE",
}

var paginationEnv = &pagination.ConfigEnv{
	DefaultPageSize: "CANOPY_PAGINATION_DEFAULT_PAGE_SIZE",
	MaxPageSize:     "CANOPY_PAGINATION_MAX_PAGE_SIZE",
	MaxSearchLength: "CANOPY_PAGINATION_MAX_SEARCH_LENGTH",
}

// APIConfig is the GIS API surface mounted under BasePath.
type APIConfig struct {
	BasePath      string                `toml:"base_path"`
	MaxUploadSize string                `toml:"max_upload_size"`
	Routes        APIRoutes             `toml:"routes"`
	CORS          middleware.CORSConfig `toml:"cors"`
	Pagination    pagination.Config     `toml:"pagination"`
}

// APIRoutes places each GIS handler under BasePath.
type APIRoutes struct {
	Ingest   string `toml:"ingest"`
	Zones    string `toml:"zones"`
	Exports  string `toml:"exports"`
	Register string `toml:"register"`
	Archives string `toml:"archives"`
}

func (r *APIRoutes) fields() map[string]*string {
	return map[string]*string{
		"ingest":   &r.Ingest,
		"zones":    &r.Zones,
		"exports":  &r.Exports,
		"register": &r.Register,
		"archives": &r.Archives,
	}
}

func (c *APIConfig) MaxUploadSizeBytes() int64 {
	size, err := formatting.ParseBytes(c.MaxUploadSize)
	if err != nil {
		return 50 * 1024 * 1024
	}
	return size
}

// Finalize applies defaults, environment variable overrides, and validation
// for the API config and its nested CORS and pagination configs.
func (c *APIConfig) Finalize() error {
	c.loadDefaults()
	c.loadEnv()

	if err := c.validate(); err != nil {
		return err
	}
	if err := c.CORS.Finalize(corsEnv); err != nil {
		return fmt.Errorf("cors: %w", err)
	}
	if err := c.Pagination.Finalize(paginationEnv); err != nil {
		return fmt.Errorf("pagination: %w", err)
	}
	return nil
}

// Merge overwrites fields set in overlay across nested configs.
func (c *APIConfig) Merge(overlay *APIConfig) {
	if overlay.BasePath != "" {
		c.BasePath = overlay.BasePath
	}
	if overlay.MaxUploadSize != "" {
		c.MaxUploadSize = overlay.MaxUploadSize
	}

	over := overlay.Routes.fields()
	for name, dst := range c.Routes.fields() {
		if v := *over[name]; v != "" {
			*dst = v
		}
	}

	c.CORS.Merge(&overlay.CORS)
	c.Pagination.Merge(&overlay.Pagination)
}

func (c *APIConfig) loadDefaults() {
	if c.BasePath == "" {
		c.BasePath = "/api"
	}
	if c.MaxUploadSize == "" {
		c.MaxUploadSize = "50MB"
	}
	for name, dst := range c.Routes.fields() {
		if *dst == "" {
			*dst = "/" + name
		}
	}
}

func (c *APIConfig) loadEnv() {
	if v := os.Getenv("CANOPY_API_BASE_PATH"); v != "" {
		c.BasePath = v
	}
	if v := os.Getenv("CANOPY_API_MAX_UPLOAD_SIZE"); v != "" {
		c.MaxUploadSize = v
	}
	for name, dst := range c.Routes.fields() {
		if v := os.Getenv("CANOPY_API_ROUTES_" + strings.ToUpper(name)); v != "" {
			*dst = v
		}
	}
}

func (c *APIConfig) validate() error {
	if !strings.HasPrefix(c.BasePath, "/") || strings.Count(c.BasePath, "/") != 1 || len(c.BasePath) == 1 {
		return fmt.Errorf("base_path must be a single path segment: %q", c.BasePath)
	}
	if _, err := formatting.ParseBytes(c.MaxUploadSize); err != nil {
		return fmt.Errorf("invalid max_upload_size: %w", err)
	}

	var errs []error
	seen := make(map[string]string)
	for name, prefix := range c.Routes.fields() {
		switch {
		case !strings.HasPrefix(*prefix, "/") || strings.HasSuffix(*prefix, "/"):
			errs = append(errs, fmt.Errorf("routes.%s must start with / and not end with one: %q", name, *prefix))
		case seen[*prefix] != "":
			errs = append(errs, fmt.Errorf("routes.%s and routes.%s share %s", seen[*prefix], name, *prefix))
		default:
			seen[*prefix] = name
		}
	}
	return errors.Join(errs...)
}

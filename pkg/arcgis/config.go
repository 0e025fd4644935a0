package arcgis

import (
	"fmt"
	"net/url"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

// GrantType selects how a provider's bearer token is obtained.
type GrantType string

const (
	GrantNone              GrantType = "none"
	GrantClientCredentials GrantType = "client_credentials"
	GrantResourceOwner     GrantType = "resource_owner"
)

// Capability names an upstream endpoint group.
type Capability string

const (
	CapGenerate Capability = "generate"
	CapGeometry Capability = "geometry"
	CapExport   Capability = "export"
	CapFeatures Capability = "features"
)

const (
	defaultTokenPath    = "sharing/rest/oauth2/token"
	defaultGeneratePath = "sharing/rest/content/features/generate"
	defaultGeometryURL  = "https://utility.arcgisonline.com/arcgis/rest/services/Geometry/GeometryServer"
	defaultExportURL    = "https://utility.arcgisonline.com/arcgis/rest/services/Utilities/PrintingTools/GPServer/Export%20Web%20Map%20Task"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// Config holds every configured provider and the shared client policy.
type Config struct {
	TokenSafetyMargin string                     `toml:"token_safety_margin"`
	Retry             RetryConfig                `toml:"retry"`
	Providers         map[string]*ProviderConfig `toml:"providers"`
}

// Env names the environment variables that override Config. Provider
// secrets are read from <Prefix>_<KEY>_<FIELD>, for example
// CANOPY_GIS_AGOL_CLIENT_SECRET.
type Env struct {
	TokenSafetyMargin string
	Prefix            string
}

// RetryConfig bounds retries of transient failures.
type RetryConfig struct {
	MaxAttempts   int    `toml:"max_attempts"`
	BaseDelay     string `toml:"base_delay"`
	MaxDelay      string `toml:"max_delay"`
	JitterPercent int    `toml:"jitter_percent"`
}

// Endpoint is one capability's service URL. A relative URL is resolved
// against the provider's base URL.
type Endpoint struct {
	URL    string `toml:"url"`
	Public *bool  `toml:"public"`
}

// IsPublic reports whether the endpoint is called without credentials.
func (e Endpoint) IsPublic() bool {
	return e.Public != nil && *e.Public
}

// Endpoints groups a provider's per-capability endpoints.
type Endpoints struct {
	Generate Endpoint `toml:"generate"`
	Geometry Endpoint `toml:"geometry"`
	Export   Endpoint `toml:"export"`
	Features Endpoint `toml:"features"`
}

// JobStatus lists the raw job status strings for each export outcome.
type JobStatus struct {
	Pending []string `toml:"pending"`
	Success []string `toml:"success"`
	Failed  []string `toml:"failed"`
}

// ProviderConfig describes one upstream GIS account. It is read-only once
// finalized.
type ProviderConfig struct {
	Key          string         `toml:"-" validate:"required"`
	BaseURL      string         `toml:"base_url" validate:"required,url"`
	CountryCode  string         `toml:"country_code" validate:"omitempty,len=2"`
	APIKey       string         `toml:"api_key"`
	Grant        GrantType      `toml:"grant" validate:"oneof=none client_credentials resource_owner"`
	ClientID     string         `toml:"client_id" validate:"required_if=Grant client_credentials"`
	ClientSecret string         `toml:"client_secret" validate:"required_if=Grant client_credentials"`
	Username     string         `toml:"username" validate:"required_if=Grant resource_owner"`
	Password     string         `toml:"password" validate:"required_if=Grant resource_owner"`
	TokenURL     string         `toml:"token_url"`
	NeedsToken   *bool          `toml:"needs_token"`
	Timeout      string         `toml:"timeout"`
	Endpoints    Endpoints      `toml:"endpoints"`
	JobStatus    JobStatus      `toml:"job_status"`
	StatusCodes  map[string]int `toml:"status_codes"`
}

// TokenSafetyMarginDuration returns TokenSafetyMargin as a time.Duration.
func (c *Config) TokenSafetyMarginDuration() time.Duration {
	d, _ := time.ParseDuration(c.TokenSafetyMargin)
	return d
}

// Provider returns the provider registered under key.
func (c *Config) Provider(key string) (*ProviderConfig, error) {
	p, ok := c.Providers[key]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownProvider, key)
	}
	return p, nil
}

// Finalize applies defaults, environment variable overrides, and validation
// to the client policy and every provider.
func (c *Config) Finalize(env *Env) error {
	c.loadDefaults()
	if env != nil {
		c.loadEnv(env)
	}
	if err := c.validate(); err != nil {
		return err
	}

	for key, p := range c.Providers {
		p.Key = key
		var penv *ProviderEnv
		if env != nil && env.Prefix != "" {
			penv = NewProviderEnv(env.Prefix, key)
		}
		if err := p.Finalize(penv); err != nil {
			return fmt.Errorf("provider %s: %w", key, err)
		}
	}
	return nil
}

// Merge overwrites non-zero fields from overlay. Providers present in the
// overlay are merged field by field; new providers are added.
func (c *Config) Merge(overlay *Config) {
	if overlay.TokenSafetyMargin != "" {
		c.TokenSafetyMargin = overlay.TokenSafetyMargin
	}
	c.Retry.Merge(&overlay.Retry)

	if len(overlay.Providers) > 0 && c.Providers == nil {
		c.Providers = make(map[string]*ProviderConfig, len(overlay.Providers))
	}
	for key, p := range overlay.Providers {
		if existing, ok := c.Providers[key]; ok {
			existing.Merge(p)
			continue
		}
		c.Providers[key] = p
	}
}

func (c *Config) loadDefaults() {
	if c.TokenSafetyMargin == "" {
		c.TokenSafetyMargin = "2m"
	}
	c.Retry.loadDefaults()
}

func (c *Config) loadEnv(env *Env) {
	if env.TokenSafetyMargin != "" {
		if v := os.Getenv(env.TokenSafetyMargin); v != "" {
			c.TokenSafetyMargin = v
		}
	}
}

func (c *Config) validate() error {
	if _, err := time.ParseDuration(c.TokenSafetyMargin); err != nil {
		return fmt.Errorf("invalid token_safety_margin: %w", err)
	}
	return c.Retry.validate()
}

// BaseDelayDuration returns BaseDelay as a time.Duration.
func (c *RetryConfig) BaseDelayDuration() time.Duration {
	d, _ := time.ParseDuration(c.BaseDelay)
	return d
}

// MaxDelayDuration returns MaxDelay as a time.Duration.
func (c *RetryConfig) MaxDelayDuration() time.Duration {
	d, _ := time.ParseDuration(c.MaxDelay)
	return d
}

// Merge overwrites non-zero fields from overlay.
func (c *RetryConfig) Merge(overlay *RetryConfig) {
	if overlay.MaxAttempts != 0 {
		c.MaxAttempts = overlay.MaxAttempts
	}
	if overlay.BaseDelay != "" {
		c.BaseDelay = overlay.BaseDelay
	}
	if overlay.MaxDelay != "" {
		c.MaxDelay = overlay.MaxDelay
	}
	if overlay.JitterPercent != 0 {
		c.JitterPercent = overlay.JitterPercent
	}
}

func (c *RetryConfig) loadDefaults() {
	if c.MaxAttempts == 0 {
		c.MaxAttempts = 3
	}
	if c.BaseDelay == "" {
		c.BaseDelay = "500ms"
	}
	if c.MaxDelay == "" {
		c.MaxDelay = "5s"
	}
	if c.JitterPercent == 0 {
		c.JitterPercent = 20
	}
}

func (c *RetryConfig) validate() error {
	if c.MaxAttempts < 1 {
		return fmt.Errorf("retry max_attempts must be at least 1")
	}
	if d, err := time.ParseDuration(c.BaseDelay); err != nil || d <= 0 {
		return fmt.Errorf("invalid retry base_delay: %q", c.BaseDelay)
	}
	if _, err := time.ParseDuration(c.MaxDelay); err != nil {
		return fmt.Errorf("invalid retry max_delay: %w", err)
	}
	if c.JitterPercent < 0 || c.JitterPercent > 100 {
		return fmt.Errorf("retry jitter_percent must be between 0 and 100")
	}
	return nil
}

// ProviderEnv maps provider fields to environment variable names.
type ProviderEnv struct {
	BaseURL      string
	APIKey       string
	ClientID     string
	ClientSecret string
	Username     string
	Password     string
}

// NewProviderEnv derives the environment variable names for provider key.
func NewProviderEnv(prefix, key string) *ProviderEnv {
	base := prefix + "_" + strings.ToUpper(strings.ReplaceAll(key, "-", "_")) + "_"
	return &ProviderEnv{
		BaseURL:      base + "BASE_URL",
		APIKey:       base + "API_KEY",
		ClientID:     base + "CLIENT_ID",
		ClientSecret: base + "CLIENT_SECRET",
		Username:     base + "USERNAME",
		Password:     base + "PASSWORD",
	}
}

// TimeoutDuration returns Timeout as a time.Duration.
func (c *ProviderConfig) TimeoutDuration() time.Duration {
	d, _ := time.ParseDuration(c.Timeout)
	return d
}

// Endpoint returns the configured endpoint for capability. Layer calls
// carry no capability and get the zero Endpoint.
func (c *ProviderConfig) Endpoint(capability Capability) Endpoint {
	switch capability {
	case CapGenerate:
		return c.Endpoints.Generate
	case CapGeometry:
		return c.Endpoints.Geometry
	case CapExport:
		return c.Endpoints.Export
	case CapFeatures:
		return c.Endpoints.Features
	}
	return Endpoint{}
}

// TokenNeeded reports whether the provider's services expect credentials.
func (c *ProviderConfig) TokenNeeded() bool {
	return c.NeedsToken != nil && *c.NeedsToken
}

// RequiresToken reports whether calls to capability must carry a bearer
// token.
func (c *ProviderConfig) RequiresToken(capability Capability) bool {
	return c.TokenNeeded() && c.Grant != GrantNone && !c.Endpoint(capability).IsPublic()
}

// Finalize applies defaults, environment variable overrides, and validation.
func (c *ProviderConfig) Finalize(env *ProviderEnv) error {
	if env != nil {
		c.loadEnv(env)
	}
	c.loadDefaults()
	return c.validate()
}

// Merge overwrites non-zero fields from overlay.
func (c *ProviderConfig) Merge(overlay *ProviderConfig) {
	if overlay.BaseURL != "" {
		c.BaseURL = overlay.BaseURL
	}
	if overlay.CountryCode != "" {
		c.CountryCode = overlay.CountryCode
	}
	if overlay.APIKey != "" {
		c.APIKey = overlay.APIKey
	}
	if overlay.Grant != "" {
		c.Grant = overlay.Grant
	}
	if overlay.ClientID != "" {
		c.ClientID = overlay.ClientID
	}
	if overlay.ClientSecret != "" {
		c.ClientSecret = overlay.ClientSecret
	}
	if overlay.Username != "" {
		c.Username = overlay.Username
	}
	if overlay.Password != "" {
		c.Password = overlay.Password
	}
	if overlay.TokenURL != "" {
		c.TokenURL = overlay.TokenURL
	}
	if overlay.NeedsToken != nil {
		c.NeedsToken = overlay.NeedsToken
	}
	if overlay.Timeout != "" {
		c.Timeout = overlay.Timeout
	}
	mergeEndpoint(&c.Endpoints.Generate, overlay.Endpoints.Generate)
	mergeEndpoint(&c.Endpoints.Geometry, overlay.Endpoints.Geometry)
	mergeEndpoint(&c.Endpoints.Export, overlay.Endpoints.Export)
	mergeEndpoint(&c.Endpoints.Features, overlay.Endpoints.Features)
	if len(overlay.JobStatus.Pending) > 0 {
		c.JobStatus.Pending = overlay.JobStatus.Pending
	}
	if len(overlay.JobStatus.Success) > 0 {
		c.JobStatus.Success = overlay.JobStatus.Success
	}
	if len(overlay.JobStatus.Failed) > 0 {
		c.JobStatus.Failed = overlay.JobStatus.Failed
	}
	if len(overlay.StatusCodes) > 0 {
		c.StatusCodes = overlay.StatusCodes
	}
}

func mergeEndpoint(dst *Endpoint, overlay Endpoint) {
	if overlay.URL != "" {
		dst.URL = overlay.URL
	}
	if overlay.Public != nil {
		dst.Public = overlay.Public
	}
}

func (c *ProviderConfig) loadDefaults() {
	if c.Grant == "" {
		c.Grant = GrantNone
	}
	if c.Timeout == "" {
		c.Timeout = "30s"
	}
	if c.TokenURL == "" {
		c.TokenURL = defaultTokenPath
	}
	if c.Endpoints.Generate.URL == "" {
		c.Endpoints.Generate.URL = defaultGeneratePath
	}
	if c.Endpoints.Geometry.URL == "" {
		c.Endpoints.Geometry.URL = defaultGeometryURL
	}
	if c.Endpoints.Export.URL == "" {
		c.Endpoints.Export.URL = defaultExportURL
	}
	if len(c.JobStatus.Pending) == 0 {
		c.JobStatus.Pending = []string{"esriJobNew", "esriJobSubmitted", "esriJobWaiting", "esriJobExecuting"}
	}
	if len(c.JobStatus.Success) == 0 {
		c.JobStatus.Success = []string{"esriJobSucceeded"}
	}
	if len(c.JobStatus.Failed) == 0 {
		c.JobStatus.Failed = []string{"esriJobFailed", "esriJobCancelling", "esriJobCancelled", "esriJobTimedOut", "esriJobDeleted"}
	}

	c.TokenURL = resolve(c.BaseURL, c.TokenURL)
	c.Endpoints.Generate.URL = resolve(c.BaseURL, c.Endpoints.Generate.URL)
	c.Endpoints.Geometry.URL = resolve(c.BaseURL, c.Endpoints.Geometry.URL)
	c.Endpoints.Export.URL = resolve(c.BaseURL, c.Endpoints.Export.URL)
	c.Endpoints.Features.URL = resolve(c.BaseURL, c.Endpoints.Features.URL)
}

func (c *ProviderConfig) loadEnv(env *ProviderEnv) {
	if v := os.Getenv(env.BaseURL); v != "" {
		c.BaseURL = v
	}
	if v := os.Getenv(env.APIKey); v != "" {
		c.APIKey = v
	}
	if v := os.Getenv(env.ClientID); v != "" {
		c.ClientID = v
	}
	if v := os.Getenv(env.ClientSecret); v != "" {
		c.ClientSecret = v
	}
	if v := os.Getenv(env.Username); v != "" {
		c.Username = v
	}
	if v := os.Getenv(env.Password); v != "" {
		c.Password = v
	}
}

func (c *ProviderConfig) validate() error {
	if err := validate.Struct(c); err != nil {
		return err
	}
	if _, err := time.ParseDuration(c.Timeout); err != nil {
		return fmt.Errorf("invalid timeout: %w", err)
	}
	if c.TokenNeeded() && c.Grant == GrantNone && c.APIKey == "" {
		return fmt.Errorf("needs_token requires a grant or api_key")
	}
	return c.JobStatus.validate()
}

func (s JobStatus) validate() error {
	sets := map[string][]string{"pending": s.Pending, "success": s.Success, "failed": s.Failed}
	seen := make(map[string]string)
	for _, name := range []string{"pending", "success", "failed"} {
		for _, v := range sets[name] {
			if prev, ok := seen[v]; ok && prev != name {
				return fmt.Errorf("job status %q is in both %s and %s", v, prev, name)
			}
			seen[v] = name
		}
	}
	return nil
}

// Classify maps a raw job status onto the configured outcome sets.
// ok is false when the status appears in none of them.
func (s JobStatus) Classify(raw string) (outcome string, ok bool) {
	switch {
	case slices.Contains(s.Pending, raw):
		return "pending", true
	case slices.Contains(s.Success, raw):
		return "success", true
	case slices.Contains(s.Failed, raw):
		return "failed", true
	}
	return "", false
}

// StatusCode looks up a register status code by name.
func (c *ProviderConfig) StatusCode(status string) (int, bool) {
	code, ok := c.StatusCodes[status]
	return code, ok
}

func resolve(base, ref string) string {
	if ref == "" {
		return ""
	}
	u, err := url.Parse(ref)
	if err != nil || u.IsAbs() {
		return ref
	}
	b, err := url.Parse(strings.TrimRight(base, "/") + "/")
	if err != nil {
		return ref
	}
	return b.ResolveReference(u).String()
}

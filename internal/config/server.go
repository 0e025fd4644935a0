package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

const (
	EnvServerHost              = "CANOPY_SERVER_HOST"
	EnvServerPort              = "CANOPY_SERVER_PORT"
	EnvServerReadTimeout       = "CANOPY_SERVER_READ_TIMEOUT"
	EnvServerReadHeaderTimeout = "CANOPY_SERVER_READ_HEADER_TIMEOUT"
	EnvServerWriteTimeout      = "CANOPY_SERVER_WRITE_TIMEOUT"
	EnvServerIdleTimeout       = "CANOPY_SERVER_IDLE_TIMEOUT"
	EnvServerShutdownTimeout   = "CANOPY_SERVER_SHUTDOWN_TIMEOUT"
)

// ServerConfig is the HTTP listener. WriteTimeout bounds the slowest
// handler, which is an export awaiting its print job.
type ServerConfig struct {
	Host              string `toml:"host"`
	Port              int    `toml:"port"`
	ReadTimeout       string `toml:"read_timeout"`
	ReadHeaderTimeout string `toml:"read_header_timeout"`
	WriteTimeout      string `toml:"write_timeout"`
	IdleTimeout       string `toml:"idle_timeout"`
	ShutdownTimeout   string `toml:"shutdown_timeout"`
}

// Addr returns the host:port listen address.
func (c *ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Timeouts holds the parsed server durations.
type Timeouts struct {
	Read       time.Duration
	ReadHeader time.Duration
	Write      time.Duration
	Idle       time.Duration
	Shutdown   time.Duration
}

// Timeouts parses the duration fields. Finalize has already validated them.
func (c *ServerConfig) Timeouts() Timeouts {
	var t Timeouts
	for src, dst := range c.durations(&t) {
		*dst, _ = time.ParseDuration(*src)
	}
	return t
}

func (c *ServerConfig) durations(t *Timeouts) map[*string]*time.Duration {
	return map[*string]*time.Duration{
		&c.ReadTimeout:       &t.Read,
		&c.ReadHeaderTimeout: &t.ReadHeader,
		&c.WriteTimeout:      &t.Write,
		&c.IdleTimeout:       &t.Idle,
		&c.ShutdownTimeout:   &t.Shutdown,
	}
}

// Finalize applies defaults, environment variable overrides, and validation.
func (c *ServerConfig) Finalize() error {
	c.loadDefaults()
	c.loadEnv()
	return c.validate()
}

// Merge overwrites fields set in overlay.
func (c *ServerConfig) Merge(overlay *ServerConfig) {
	if overlay.Host != "" {
		c.Host = overlay.Host
	}
	if overlay.Port != 0 {
		c.Port = overlay.Port
	}
	for dst, src := range map[*string]string{
		&c.ReadTimeout:       overlay.ReadTimeout,
		&c.ReadHeaderTimeout: overlay.ReadHeaderTimeout,
		&c.WriteTimeout:      overlay.WriteTimeout,
		&c.IdleTimeout:       overlay.IdleTimeout,
		&c.ShutdownTimeout:   overlay.ShutdownTimeout,
	} {
		if src != "" {
			*dst = src
		}
	}
}

func (c *ServerConfig) loadDefaults() {
	if c.Host == "" {
		c.Host = "0.0.0.0"
	}
	if c.Port == 0 {
		c.Port = 8080
	}
	for dst, def := range map[*string]string{
		&c.ReadTimeout:       "1m",
		&c.ReadHeaderTimeout: "10s",
		&c.WriteTimeout:      "15m",
		&c.IdleTimeout:       "2m",
		&c.ShutdownTimeout:   "30s",
	} {
		if *dst == "" {
			*dst = def
		}
	}
}

func (c *ServerConfig) loadEnv() {
	if v := os.Getenv(EnvServerPort); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			c.Port = port
		}
	}
	for name, dst := range map[string]*string{
		EnvServerHost:              &c.Host,
		EnvServerReadTimeout:       &c.ReadTimeout,
		EnvServerReadHeaderTimeout: &c.ReadHeaderTimeout,
		EnvServerWriteTimeout:      &c.WriteTimeout,
		EnvServerIdleTimeout:       &c.IdleTimeout,
		EnvServerShutdownTimeout:   &c.ShutdownTimeout,
	} {
		if v := os.Getenv(name); v != "" {
			*dst = v
		}
	}
}

func (c *ServerConfig) validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Port)
	}
	for key, v := range map[string]string{
		"read_timeout":        c.ReadTimeout,
		"read_header_timeout": c.ReadHeaderTimeout,
		"write_timeout":       c.WriteTimeout,
		"idle_timeout":        c.IdleTimeout,
		"shutdown_timeout":    c.ShutdownTimeout,
	} {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", key, err)
		}
		if d <= 0 {
			return fmt.Errorf("%s must be positive", key)
		}
	}
	if t := c.Timeouts(); t.ReadHeader > t.Read {
		return fmt.Errorf("read_header_timeout cannot exceed read_timeout")
	}
	return nil
}

// Package config provides configuration loading and management for the seed
// fetch service.
package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"gopkg.in/yaml.v3"
)

// EnvPrefix is the prefix for environment variables consumed by the CLI
// layer (e.g. SEEDFETCH_LOG_LEVEL).
const EnvPrefix = "SEEDFETCH"

// Defaults applied when the corresponding field is absent from the config
// file. The seed endpoint and timeouts mirror the production first-run
// fetch: a short connect bound and a slightly longer read bound.
const (
	DefaultEndpoint       = "https://clientservices.example.com/seed"
	DefaultConnectTimeout = 1 * time.Second
	DefaultReadTimeout    = 3 * time.Second
	DefaultMaxSeedSize    = 4 * 1024 * 1024
	DefaultDataDir        = "./data"
	DefaultAddress        = ":8080"
)

// Option defines the interface for configuration options
type Option func(*loaderConfig) error

// loaderConfig defines the configuration for loading a configuration
type loaderConfig struct {
	path string
}

// WithConfigPath loads configuration from a YAML file
func WithConfigPath(path string) Option {
	return func(cfg *loaderConfig) error {
		if path == "" {
			return fmt.Errorf("path is required")
		}

		// Resolve symlinks to prevent symlink attacks.
		// Note that this calls filepath.Clean internally.
		realPath, err := filepath.EvalSymlinks(path)
		if err != nil {
			return fmt.Errorf("failed to evaluate symlinks: %w", err)
		}

		// Validate the path to prevent path traversal attacks
		if !filepath.IsAbs(realPath) {
			if !filepath.IsLocal(realPath) {
				return fmt.Errorf("path is not local or contains invalid traversal: %s", path)
			}
		}

		cfg.path = realPath
		return nil
	}
}

// Config represents the root configuration structure
type Config struct {
	Seed      SeedConfig      `yaml:"seed"`
	Storage   StorageConfig   `yaml:"storage"`
	Server    ServerConfig    `yaml:"server"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

// SeedConfig defines the seed server and fetch bounds
type SeedConfig struct {
	// Endpoint is the seed server URL without query parameters
	Endpoint string `yaml:"endpoint,omitempty"`

	// OSName is sent as the osname query parameter. Defaults to the
	// build platform.
	OSName string `yaml:"osName,omitempty"`

	// RestrictMode is forwarded as the restrict query parameter when
	// non-empty
	RestrictMode string `yaml:"restrictMode,omitempty"`

	// ConnectTimeout bounds connection setup (e.g. "1s")
	ConnectTimeout string `yaml:"connectTimeout,omitempty"`

	// ReadTimeout bounds reading the response once connected (e.g. "3s")
	ReadTimeout string `yaml:"readTimeout,omitempty"`

	// MaxSeedSize is the maximum accepted seed payload in bytes
	MaxSeedSize int64 `yaml:"maxSeedSize,omitempty"`
}

// StorageConfig defines where the service keeps its durable state
type StorageConfig struct {
	// DataDir holds the attempt flag, the installed seed, and the
	// instance lock
	DataDir string `yaml:"dataDir,omitempty"`

	// NativeSeedMarker is an optional path to a marker file maintained by
	// the native seed consumer. When present on disk, the install counts
	// as already attempted. This service never writes it.
	NativeSeedMarker string `yaml:"nativeSeedMarker,omitempty"`
}

// ServerConfig defines the HTTP API listener
type ServerConfig struct {
	Address string `yaml:"address,omitempty"`
}

// TelemetryConfig defines metrics export settings
type TelemetryConfig struct {
	Enabled bool `yaml:"enabled,omitempty"`
}

// LoadConfig loads and parses configuration. Without a WithConfigPath
// option, all defaults are used.
func LoadConfig(opts ...Option) (*Config, error) {
	loaderCfg := &loaderConfig{}
	for _, opt := range opts {
		if err := opt(loaderCfg); err != nil {
			return nil, err
		}
	}

	var config Config
	if loaderCfg.path != "" {
		data, err := os.ReadFile(loaderCfg.path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}

		if err := yaml.Unmarshal(data, &config); err != nil {
			return nil, fmt.Errorf("failed to parse YAML config: %w", err)
		}
	}

	config.applyDefaults()

	if err := config.validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// applyDefaults fills in every unset field
func (c *Config) applyDefaults() {
	if c.Seed.Endpoint == "" {
		c.Seed.Endpoint = DefaultEndpoint
	}
	if c.Seed.OSName == "" {
		c.Seed.OSName = runtime.GOOS
	}
	if c.Seed.ConnectTimeout == "" {
		c.Seed.ConnectTimeout = DefaultConnectTimeout.String()
	}
	if c.Seed.ReadTimeout == "" {
		c.Seed.ReadTimeout = DefaultReadTimeout.String()
	}
	if c.Seed.MaxSeedSize == 0 {
		c.Seed.MaxSeedSize = DefaultMaxSeedSize
	}
	if c.Storage.DataDir == "" {
		c.Storage.DataDir = DefaultDataDir
	}
	if c.Server.Address == "" {
		c.Server.Address = DefaultAddress
	}
}

// validate performs validation on the configuration
func (c *Config) validate() error {
	u, err := url.Parse(c.Seed.Endpoint)
	if err != nil {
		return fmt.Errorf("seed.endpoint is not a valid URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("seed.endpoint must be an http(s) URL, got %q", c.Seed.Endpoint)
	}

	if _, err := time.ParseDuration(c.Seed.ConnectTimeout); err != nil {
		return fmt.Errorf("seed.connectTimeout must be a valid duration (e.g. '1s'): %w", err)
	}
	if _, err := time.ParseDuration(c.Seed.ReadTimeout); err != nil {
		return fmt.Errorf("seed.readTimeout must be a valid duration (e.g. '3s'): %w", err)
	}

	if c.Seed.MaxSeedSize < 0 {
		return fmt.Errorf("seed.maxSeedSize must be positive, got %d", c.Seed.MaxSeedSize)
	}

	return nil
}

// GetConnectTimeout returns the parsed connect timeout.
func (c *SeedConfig) GetConnectTimeout() time.Duration {
	d, err := time.ParseDuration(c.ConnectTimeout)
	if err != nil {
		return DefaultConnectTimeout
	}
	return d
}

// GetReadTimeout returns the parsed read timeout.
func (c *SeedConfig) GetReadTimeout() time.Duration {
	d, err := time.ParseDuration(c.ReadTimeout)
	if err != nil {
		return DefaultReadTimeout
	}
	return d
}

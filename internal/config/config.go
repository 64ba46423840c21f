// Package config provides configuration loading and management for the
// country snapshot server.
package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// EnvPrefix is the prefix for all environment variables read by the server.
const EnvPrefix = "CSNAP"

// Defaults for every externally configurable value.
const (
	// DefaultAddress is the default listen address.
	DefaultAddress = ":8080"

	// DefaultArtifactPath is the default path of the rendered summary image.
	DefaultArtifactPath = "./cache/summary.png"

	// DefaultCountriesURL is the default countries catalog endpoint.
	DefaultCountriesURL = "https://restcountries.com/v2/all?fields=name,capital,region,population,flag,currencies"

	// DefaultExchangeRatesURL is the default exchange-rate table endpoint.
	DefaultExchangeRatesURL = "https://open.er-api.com/v6/latest/USD"

	// DefaultFetchTimeoutMS is the default timeout for each external call,
	// in milliseconds.
	DefaultFetchTimeoutMS = 10000
)

// Option defines the interface for configuration loading options
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
	// Address is the listen address of the HTTP server (host:port)
	Address string `yaml:"address,omitempty"`

	// ArtifactPath is the path of the rendered summary image
	ArtifactPath string `yaml:"artifactPath,omitempty"`

	// CountriesURL is the countries catalog endpoint
	CountriesURL string `yaml:"countriesUrl,omitempty"`

	// ExchangeRatesURL is the exchange-rate table endpoint
	ExchangeRatesURL string `yaml:"exchangeRatesUrl,omitempty"`

	// FetchTimeoutMS bounds each external call, in milliseconds
	FetchTimeoutMS int `yaml:"fetchTimeoutMs,omitempty"`

	Database *DatabaseConfig `yaml:"database,omitempty"`
}

// FetchTimeout returns the external call timeout as a duration
func (c *Config) FetchTimeout() time.Duration {
	return time.Duration(c.FetchTimeoutMS) * time.Millisecond
}

// DatabaseConfig defines database connection settings
type DatabaseConfig struct {
	// Host is the database server hostname or IP address
	Host string `yaml:"host"`

	// Port is the database server port
	Port int `yaml:"port"`

	// User is the database username
	User string `yaml:"user"`

	// PasswordFile is the path to a file containing the database password.
	// This is the recommended approach for production deployments.
	PasswordFile string `yaml:"passwordFile,omitempty"`

	// Database is the database name
	Database string `yaml:"database"`

	// SSLMode is the SSL mode for the connection (disable, require, verify-ca, verify-full)
	SSLMode string `yaml:"sslMode,omitempty"`

	// MaxConns is the maximum number of connections in the pool
	MaxConns int32 `yaml:"maxConns,omitempty"`

	// ConnMaxLifetime is the maximum lifetime of a connection (e.g., "1h", "30m")
	ConnMaxLifetime string `yaml:"connMaxLifetime,omitempty"`
}

// GetPassword returns the database password using the following priority:
// 1. Read from PasswordFile if specified
// 2. Read from CSNAP_DATABASE_PASSWORD environment variable
//
// The password from file will have leading/trailing whitespace trimmed.
func (d *DatabaseConfig) GetPassword() (string, error) {
	if d.PasswordFile != "" {
		cleanPath := filepath.Clean(d.PasswordFile)

		data, err := os.ReadFile(cleanPath)
		if err != nil {
			return "", fmt.Errorf("failed to read password from file %s: %w", d.PasswordFile, err)
		}

		return strings.TrimSpace(string(data)), nil
	}

	if envPassword := os.Getenv(EnvPrefix + "_DATABASE_PASSWORD"); envPassword != "" {
		return envPassword, nil
	}

	return "", fmt.Errorf(
		"no database password configured: set passwordFile or %s_DATABASE_PASSWORD environment variable",
		EnvPrefix,
	)
}

// GetConnectionString builds a PostgreSQL connection string with proper
// password handling. The password is URL-escaped to handle special characters
// safely.
func (d *DatabaseConfig) GetConnectionString() (string, error) {
	password, err := d.GetPassword()
	if err != nil {
		return "", err
	}

	sslMode := d.SSLMode
	if sslMode == "" {
		sslMode = "require"
	}

	connString := fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User,
		url.QueryEscape(password),
		d.Host,
		d.Port,
		d.Database,
		sslMode,
	)

	return connString, nil
}

// LoadConfig loads configuration from an optional YAML file, then applies
// environment overrides and defaults. Precedence: environment > file > default.
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

	config.applyEnvOverrides()
	config.applyDefaults()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// applyEnvOverrides applies CSNAP_* environment variables over file values
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv(EnvPrefix + "_ADDRESS"); v != "" {
		c.Address = v
	}
	if v := os.Getenv(EnvPrefix + "_ARTIFACT_PATH"); v != "" {
		c.ArtifactPath = v
	}
	if v := os.Getenv(EnvPrefix + "_COUNTRIES_URL"); v != "" {
		c.CountriesURL = v
	}
	if v := os.Getenv(EnvPrefix + "_EXCHANGE_RATES_URL"); v != "" {
		c.ExchangeRatesURL = v
	}
	if v := os.Getenv(EnvPrefix + "_FETCH_TIMEOUT_MS"); v != "" {
		if ms, err := parsePositiveInt(v); err == nil {
			c.FetchTimeoutMS = ms
		}
	}
}

// applyDefaults fills every unset field with its documented default
func (c *Config) applyDefaults() {
	if c.Address == "" {
		c.Address = DefaultAddress
	}
	if c.ArtifactPath == "" {
		c.ArtifactPath = DefaultArtifactPath
	}
	if c.CountriesURL == "" {
		c.CountriesURL = DefaultCountriesURL
	}
	if c.ExchangeRatesURL == "" {
		c.ExchangeRatesURL = DefaultExchangeRatesURL
	}
	if c.FetchTimeoutMS <= 0 {
		c.FetchTimeoutMS = DefaultFetchTimeoutMS
	}
}

// Validate performs validation on the configuration
func (c *Config) Validate() error {
	if c == nil {
		return fmt.Errorf("config cannot be nil")
	}

	if c.FetchTimeoutMS <= 0 {
		return fmt.Errorf("fetchTimeoutMs must be positive, got %d", c.FetchTimeoutMS)
	}

	if !strings.HasPrefix(c.CountriesURL, "http://") && !strings.HasPrefix(c.CountriesURL, "https://") {
		return fmt.Errorf("countriesUrl must be an HTTP(S) URL: %s", c.CountriesURL)
	}
	if !strings.HasPrefix(c.ExchangeRatesURL, "http://") && !strings.HasPrefix(c.ExchangeRatesURL, "https://") {
		return fmt.Errorf("exchangeRatesUrl must be an HTTP(S) URL: %s", c.ExchangeRatesURL)
	}

	if c.Database != nil {
		if err := c.Database.validate(); err != nil {
			return err
		}
	}

	return nil
}

// validate checks the required database connection fields
func (d *DatabaseConfig) validate() error {
	if d.Host == "" {
		return fmt.Errorf("database host is required")
	}
	if d.Port == 0 {
		return fmt.Errorf("database port is required")
	}
	if d.User == "" {
		return fmt.Errorf("database user is required")
	}
	if d.Database == "" {
		return fmt.Errorf("database name is required")
	}
	if d.ConnMaxLifetime != "" {
		if _, err := time.ParseDuration(d.ConnMaxLifetime); err != nil {
			return fmt.Errorf("invalid connMaxLifetime: %w", err)
		}
	}
	return nil
}

func parsePositiveInt(s string) (int, error) {
	var n int
	if _, err := fmt.Sscanf(s, "%d", &n); err != nil {
		return 0, err
	}
	if n <= 0 {
		return 0, fmt.Errorf("value must be positive, got %d", n)
	}
	return n, nil
}

package shared

import (
	_ "embed"
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"
)

//go:embed config.example.toml
var exampleConf []byte

// Config represents the application configuration loaded from a TOML file.
type Config struct {
	Credentials CredentialsConfig `toml:"credentials"`
	Database    DatabaseConfig    `toml:"database"`
	Server      ServerConfig      `toml:"server"`
	OAuth       OAuthConfig       `toml:"oauth"`
	Retry       RetryConfig       `toml:"retry"`
	Migration   MigrationConfig   `toml:"migration"`
	Log         LogConfig         `toml:"log"`
}

// CredentialsConfig contains per-provider OAuth client settings.
type CredentialsConfig struct {
	Spotify ProviderConfig `toml:"spotify"`
	YouTube ProviderConfig `toml:"youtube"`
}

// ProviderConfig contains one provider's OAuth client and API endpoints.
type ProviderConfig struct {
	ClientID     string   `toml:"client_id"`
	ClientSecret string   `toml:"client_secret"`
	RedirectURI  string   `toml:"redirect_uri"`
	APIBaseURL   string   `toml:"api_base_url"`
	AuthURL      string   `toml:"auth_url"`
	TokenURL     string   `toml:"token_url"`
	Scopes       []string `toml:"scopes"`
}

// Configured reports whether client credentials are present.
func (p ProviderConfig) Configured() bool {
	return p.ClientID != "" && p.ClientSecret != ""
}

// DatabaseConfig contains credential store settings.
type DatabaseConfig struct {
	Backend      string `toml:"backend"`
	Path         string `toml:"path"`
	MaxOpenConns int    `toml:"max_open_conns"`
	MaxIdleConns int    `toml:"max_idle_conns"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Host string `toml:"host"`
	Port int    `toml:"port"`
}

// Addr returns host:port.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// OAuthConfig contains correlation state and token expiry settings.
type OAuthConfig struct {
	StateTTL     time.Duration `toml:"state_ttl"`
	ExpiryMargin time.Duration `toml:"expiry_margin"`
}

// RetryConfig bounds the provider gateway's retry loop.
type RetryConfig struct {
	MaxAttempts       int           `toml:"max_attempts"`
	BaseBackoff       time.Duration `toml:"base_backoff"`
	DefaultRetryAfter time.Duration `toml:"default_retry_after"`
	Timeout           time.Duration `toml:"timeout"`
	RequestsPerSecond float64       `toml:"requests_per_second"`
}

// MigrationConfig contains migration engine defaults.
type MigrationConfig struct {
	MinScore    float64 `toml:"min_score"`
	Concurrency int     `toml:"concurrency"`
}

// LogConfig contains logger settings.
type LogConfig struct {
	Level string `toml:"level"`
}

// LoadConfig reads a TOML configuration file and overlays it on the defaults.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := DefaultConfig()
	if err := toml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// DefaultConfig returns a Config with sensible defaults loaded from the embedded example config.
func DefaultConfig() *Config {
	var config Config
	if err := toml.Unmarshal(exampleConf, &config); err != nil {
		panic(fmt.Sprintf("failed to parse embedded default config: %v", err))
	}
	return &config
}

// CreateConfigFile creates a config.toml file at the specified path using the embedded example config.
func CreateConfigFile(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}

	if err := os.WriteFile(path, exampleConf, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Validate rejects settings the gateways and engine cannot work with.
func (c *Config) Validate() error {
	switch {
	case c.Retry.MaxAttempts < 1:
		return fmt.Errorf("%w: retry.max_attempts must be at least 1", ErrInvalidConfig)
	case c.Retry.BaseBackoff < 0 || c.Retry.DefaultRetryAfter < 0 || c.Retry.Timeout < 0:
		return fmt.Errorf("%w: retry durations must not be negative", ErrInvalidConfig)
	case c.Retry.RequestsPerSecond < 0:
		return fmt.Errorf("%w: retry.requests_per_second must not be negative", ErrInvalidConfig)
	case c.OAuth.StateTTL <= 0:
		return fmt.Errorf("%w: oauth.state_ttl must be positive", ErrInvalidConfig)
	case c.OAuth.ExpiryMargin < 0:
		return fmt.Errorf("%w: oauth.expiry_margin must not be negative", ErrInvalidConfig)
	case c.Migration.MinScore < 0 || c.Migration.MinScore > 100:
		return fmt.Errorf("%w: migration.min_score must be within [0, 100]", ErrInvalidConfig)
	case c.Migration.Concurrency < 1:
		return fmt.Errorf("%w: migration.concurrency must be at least 1", ErrInvalidConfig)
	}

	switch c.Database.Backend {
	case "sqlite", "memory":
	default:
		return fmt.Errorf("%w: database.backend must be sqlite or memory, got %q", ErrInvalidConfig, c.Database.Backend)
	}

	return nil
}

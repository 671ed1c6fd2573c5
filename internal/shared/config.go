package shared

import (
	"bytes"
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
	"golang.org/x/oauth2"
)

//go:embed config.example.toml
var exampleConf []byte

// Config represents the application configuration loaded from a TOML file.
type Config struct {
	Reddit   RedditConfig   `toml:"reddit"`
	Database DatabaseConfig `toml:"database"`
	Remote   RemoteConfig   `toml:"remote"`
	Import   ImportConfig   `toml:"import"`
	Server   ServerConfig   `toml:"server"`
	Log      LogConfig      `toml:"log"`
}

// RedditConfig contains the Reddit OAuth application credentials and the cached token.
type RedditConfig struct {
	ClientID     string `toml:"client_id"`
	ClientSecret string `toml:"client_secret"`
	RedirectURI  string `toml:"redirect_uri"`
	UserAgent    string `toml:"user_agent"`
	BaseURL      string `toml:"base_url"`

	AccessToken  string    `toml:"access_token"`
	RefreshToken string    `toml:"refresh_token"`
	TokenExpiry  time.Time `toml:"token_expiry"`
}

// HasToken reports whether a Reddit session has been stored by `auth login`.
func (c RedditConfig) HasToken() bool {
	return c.AccessToken != "" || c.RefreshToken != ""
}

// Token returns the stored session, nil when there is none.
func (c RedditConfig) Token() *oauth2.Token {
	if !c.HasToken() {
		return nil
	}
	return &oauth2.Token{
		AccessToken:  c.AccessToken,
		RefreshToken: c.RefreshToken,
		TokenType:    "bearer",
		Expiry:       c.TokenExpiry,
	}
}

// Update stores token as the current session. A token without a refresh token keeps the stored one, Reddit omits
// it on refresh.
func (c *RedditConfig) Update(token *oauth2.Token) error {
	if token == nil {
		return fmt.Errorf("%w: token cannot be nil", ErrInvalidInput)
	}
	c.AccessToken = token.AccessToken
	if token.RefreshToken != "" {
		c.RefreshToken = token.RefreshToken
	}
	c.TokenExpiry = token.Expiry
	return nil
}

// ClearToken forgets the stored session.
func (c *RedditConfig) ClearToken() {
	c.AccessToken = ""
	c.RefreshToken = ""
	c.TokenExpiry = time.Time{}
}

// DatabaseConfig contains local SQLite settings.
type DatabaseConfig struct {
	Path         string `toml:"path"`
	MaxOpenConns int    `toml:"max_open_conns"`
	MaxIdleConns int    `toml:"max_idle_conns"`
}

// RemoteConfig selects and configures the hosted document store.
type RemoteConfig struct {
	Driver      string `toml:"driver"`
	RedisURL    string `toml:"redis_url"`
	PostgresURL string `toml:"postgres_url"`
	Environment string `toml:"environment"`
}

// ImportConfig tunes the follow-list import.
type ImportConfig struct {
	MaxPages    int     `toml:"max_pages"`
	PageSize    int     `toml:"page_size"`
	RateLimit   float64 `toml:"rate_limit"`
	IconWorkers int     `toml:"icon_workers"`
}

// ServerConfig contains the local OAuth callback listener settings.
type ServerConfig struct {
	Host string `toml:"host"`
	Port int    `toml:"port"`
}

// LogConfig contains logging settings.
type LogConfig struct {
	Level string `toml:"level"`
}

// Validate reports missing or out-of-range values.
func (c *Config) Validate() error {
	switch c.Remote.Driver {
	case "redis":
		if c.Remote.RedisURL == "" {
			return fmt.Errorf("%w: remote.redis_url is required for the redis driver", ErrInvalidConfig)
		}
	case "postgres":
		if c.Remote.PostgresURL == "" {
			return fmt.Errorf("%w: remote.postgres_url is required for the postgres driver", ErrInvalidConfig)
		}
	default:
		return fmt.Errorf("%w: unknown remote.driver %q", ErrInvalidConfig, c.Remote.Driver)
	}

	if c.Import.MaxPages < 1 {
		return fmt.Errorf("%w: import.max_pages must be positive", ErrInvalidConfig)
	}
	if c.Import.PageSize < 1 || c.Import.PageSize > 100 {
		return fmt.Errorf("%w: import.page_size must be between 1 and 100", ErrInvalidConfig)
	}
	if c.Import.IconWorkers < 1 {
		return fmt.Errorf("%w: import.icon_workers must be positive", ErrInvalidConfig)
	}
	return nil
}

// LoadConfig reads and parses a TOML configuration file from the specified path.
//
// Keys absent from the file keep the values of [DefaultConfig].
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read config file: %w", ErrMissingConfig, err)
	}

	config := DefaultConfig()
	if err := toml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("%w: failed to parse config: %w", ErrInvalidConfig, err)
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

	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, exampleConf, 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// SaveConfig writes config to path, replacing the file. Used to persist tokens after `auth login`.
func SaveConfig(path string, config *Config) error {
	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(config); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}

	// Tokens live in this file.
	if err := os.WriteFile(path, buf.Bytes(), 0o600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

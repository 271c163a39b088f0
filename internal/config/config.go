// Package config loads the daemon configuration from ~/.lebleb/config.toml,
// with environment overrides for the gateway credentials.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Duration is a time.Duration that (un)marshals as a TOML string like "5m".
type Duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(b []byte) error {
	parsed, err := time.ParseDuration(string(b))
	if err != nil {
		return err
	}
	d.Duration = parsed
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// GatewayConfig holds the messaging-gateway connection settings.
type GatewayConfig struct {
	BaseURL  string `toml:"base_url"`
	APIKey   string `toml:"api_key"`
	Instance string `toml:"instance"`
}

// CacheConfig holds the per-domain cache lifetimes.
type CacheConfig struct {
	ContactsTTL Duration `toml:"contacts_ttl"`
	SubjectsTTL Duration `toml:"subjects_ttl"`
	PicturesTTL Duration `toml:"pictures_ttl"`
	PagesTTL    Duration `toml:"pages_ttl"`
}

// ChatsConfig tunes the chat-list aggregation.
type ChatsConfig struct {
	// SelfExclusions are display names the gateway reports for the owning
	// account; they never label another party. Matched case-insensitively.
	SelfExclusions []string `toml:"self_exclusions"`
	// BannedNumbers are phone numbers hidden from the chat list.
	BannedNumbers []string `toml:"banned_numbers"`
}

// HTTPConfig holds the local API server settings.
type HTTPConfig struct {
	Listen string `toml:"listen"`
}

// Config represents the global ~/.lebleb/config.toml.
type Config struct {
	DefaultInstance string        `toml:"default_instance"`
	Gateway         GatewayConfig `toml:"gateway"`
	Cache           CacheConfig   `toml:"cache"`
	Chats           ChatsConfig   `toml:"chats"`
	HTTP            HTTPConfig    `toml:"http"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		DefaultInstance: "main",
		Cache: CacheConfig{
			ContactsTTL: Duration{5 * time.Minute},
			SubjectsTTL: Duration{5 * time.Minute},
			PicturesTTL: Duration{30 * time.Minute},
			PagesTTL:    Duration{30 * time.Second},
		},
		Chats: ChatsConfig{
			SelfExclusions: []string{"You", "Você", "أنت"},
		},
		HTTP: HTTPConfig{Listen: "127.0.0.1:8088"},
	}
}

// DefaultPath returns the config file location under the user's home.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home dir: %w", err)
	}
	return filepath.Join(home, ".lebleb", "config.toml"), nil
}

// Load reads config from the given path. Returns zero config and error if file missing.
func Load(path string) (*Config, error) {
	cfg := Default()
	_, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, err
	}
	return cfg, nil
}

// Resolve produces the effective configuration: a .env file if present, then
// the config file if present, then environment overrides. A missing config
// file is not an error.
func Resolve(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg := Default()
	if path != "" {
		if _, err := os.Stat(path); err == nil {
			loaded, err := Load(path)
			if err != nil {
				return nil, fmt.Errorf("load config %s: %w", path, err)
			}
			cfg = loaded
		}
	}
	applyEnv(cfg)
	return cfg, nil
}

// applyEnv overlays gateway credentials from the environment. Credentials
// belong in the environment, not on disk.
func applyEnv(cfg *Config) {
	if v := os.Getenv("EVOLUTION_API_URL"); v != "" {
		cfg.Gateway.BaseURL = v
	}
	if v := os.Getenv("EVOLUTION_API_KEY"); v != "" {
		cfg.Gateway.APIKey = v
	}
	if v := os.Getenv("EVOLUTION_INSTANCE"); v != "" {
		cfg.Gateway.Instance = v
	}
	if v := os.Getenv("LEBLEB_LISTEN"); v != "" {
		cfg.HTTP.Listen = v
	}
}

// Validate checks that the gateway connection is fully specified.
func (c *Config) Validate() error {
	if c.Gateway.BaseURL == "" {
		return fmt.Errorf("gateway base_url is required (or EVOLUTION_API_URL)")
	}
	if c.Gateway.APIKey == "" {
		return fmt.Errorf("gateway api_key is required (or EVOLUTION_API_KEY)")
	}
	if c.Gateway.Instance == "" {
		c.Gateway.Instance = c.DefaultInstance
	}
	return nil
}

// Save writes config to the given path, creating parent dirs as needed.
func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	encErr := toml.NewEncoder(f).Encode(cfg)
	if closeErr := f.Close(); closeErr != nil && encErr == nil {
		return closeErr
	}
	return encErr
}

package config

import (
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// PlatformConfig holds per-platform overrides.
type PlatformConfig struct {
	// BaseURL overrides the platform's default API base URL (proxies, tests).
	BaseURL string `toml:"base_url"`
	// Credential is a static credential loaded into the credential store at
	// daemon start. Normally credentials arrive over the command surface
	// instead; this is for headless setups.
	Credential string `toml:"credential"`
}

// Config represents the global ~/.chatsync/config.toml.
type Config struct {
	// BackupBeforeDelete makes every delete take a backup first unless the
	// caller says otherwise.
	BackupBeforeDelete bool `toml:"backup_before_delete"`
	// HTTPTimeoutSeconds bounds each remote API call. 0 means the default (30).
	HTTPTimeoutSeconds int `toml:"http_timeout_seconds"`

	Platforms map[string]PlatformConfig `toml:"platforms"`
}

// Load reads config from the given path. Returns an error if the file is missing.
func Load(path string) (*Config, error) {
	var cfg Config
	_, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadOrDefault reads config from the given path, falling back to the zero
// config when the file does not exist.
func LoadOrDefault(path string) (*Config, error) {
	cfg, err := Load(path)
	if os.IsNotExist(err) {
		return &Config{}, nil
	}
	if err != nil {
		return nil, err
	}
	return cfg, nil
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

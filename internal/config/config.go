package config

import (
	"errors"
	"os"
	"time"

	toml "github.com/pelletier/go-toml/v2"
)

const defaultBackendAddress = "http://127.0.0.1:7171"

const (
	defaultPendingStartupTTL       = 10 * time.Second
	defaultExpectedSessionTTL      = 15 * time.Second
	defaultRemovalProtectionWindow = 4 * time.Second
)

type Config struct {
	Backend BackendConfig `toml:"backend"`
	Logging LoggingConfig `toml:"logging"`
	Engine  EngineConfig  `toml:"engine"`
	Merge   MergeConfig   `toml:"merge"`
}

type BackendConfig struct {
	Address string `toml:"address"`
}

type LoggingConfig struct {
	Level string `toml:"level"`
}

// EngineConfig holds the TTLs for the engine's ephemeral entries, in
// seconds. Zero values fall back to the defaults.
type EngineConfig struct {
	PendingStartupTTLSeconds       int `toml:"pending_startup_ttl_seconds"`
	ExpectedSessionTTLSeconds      int `toml:"expected_session_ttl_seconds"`
	RemovalProtectionWindowSeconds int `toml:"removal_protection_window_seconds"`
}

type MergeConfig struct {
	// AutoCancelAfterMerge cancels a session via the backend once its merge
	// operation completes successfully, then refreshes.
	AutoCancelAfterMerge bool `toml:"auto_cancel_after_merge"`
}

func Default() Config {
	return Config{
		Backend: BackendConfig{Address: defaultBackendAddress},
		Logging: LoggingConfig{Level: "info"},
	}
}

// Load reads the settings file, layering it over the defaults. A missing
// file is not an error.
func Load() (Config, error) {
	path, err := ConfigPath()
	if err != nil {
		return Default(), err
	}
	return LoadFile(path)
}

func LoadFile(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return cfg, err
	}
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return Default(), err
	}
	cfg.normalize()
	return cfg, nil
}

func (c *Config) normalize() {
	if c.Backend.Address == "" {
		c.Backend.Address = defaultBackendAddress
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Engine.PendingStartupTTLSeconds < 0 {
		c.Engine.PendingStartupTTLSeconds = 0
	}
	if c.Engine.ExpectedSessionTTLSeconds < 0 {
		c.Engine.ExpectedSessionTTLSeconds = 0
	}
	if c.Engine.RemovalProtectionWindowSeconds < 0 {
		c.Engine.RemovalProtectionWindowSeconds = 0
	}
}

func (c Config) PendingStartupTTL() time.Duration {
	if c.Engine.PendingStartupTTLSeconds > 0 {
		return time.Duration(c.Engine.PendingStartupTTLSeconds) * time.Second
	}
	return defaultPendingStartupTTL
}

func (c Config) ExpectedSessionTTL() time.Duration {
	if c.Engine.ExpectedSessionTTLSeconds > 0 {
		return time.Duration(c.Engine.ExpectedSessionTTLSeconds) * time.Second
	}
	return defaultExpectedSessionTTL
}

func (c Config) RemovalProtectionWindow() time.Duration {
	if c.Engine.RemovalProtectionWindowSeconds > 0 {
		return time.Duration(c.Engine.RemovalProtectionWindowSeconds) * time.Second
	}
	return defaultRemovalProtectionWindow
}

// Encode renders the effective configuration as TOML.
func (c Config) Encode() ([]byte, error) {
	return toml.Marshal(c)
}

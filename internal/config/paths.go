package config

import (
	"os"
	"path/filepath"
)

const appDirName = ".surface"

// DataDir returns the base data directory for Surface.
func DataDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, appDirName), nil
}

// ConfigPath returns the path to the settings file. SURFACE_CONFIG overrides
// it, which the tests rely on.
func ConfigPath() (string, error) {
	if override := os.Getenv("SURFACE_CONFIG"); override != "" {
		return override, nil
	}
	dataDir, err := DataDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dataDir, "config.toml"), nil
}

// TokenPath returns the path to the backend auth token file.
func TokenPath() (string, error) {
	dataDir, err := DataDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dataDir, "token"), nil
}

// SnapshotDBPath returns the path of the last-known-good snapshot cache.
func SnapshotDBPath() (string, error) {
	dataDir, err := DataDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dataDir, "snapshots.db"), nil
}

// LogPath returns the path of the engine log file.
func LogPath() (string, error) {
	dataDir, err := DataDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dataDir, "surface.log"), nil
}

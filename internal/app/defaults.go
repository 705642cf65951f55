package app

import (
	"fmt"
	"os"
	"path/filepath"
)

// GetDefaults returns application default paths, checking environment variables first.
// Environment variables:
//   - TREEBAK_CONFIG_PATH: config file location (default: ~/.config/treebak.toml)
//   - TREEBAK_HOME: base directory for treebak data (default: ~/.local/share/treebak)
func GetDefaults() (map[string]string, error) {
	configPath, err := getConfigPath()
	if err != nil {
		return nil, err
	}

	baseDir, err := getBaseDir()
	if err != nil {
		return nil, err
	}

	return map[string]string{
		"config_path": configPath,
		"base_dir":    baseDir,
		"log_dir":     filepath.Join(baseDir, "log"),
	}, nil
}

// getConfigPath returns the config file path, checking TREEBAK_CONFIG_PATH first,
// then falling back to ~/.config/treebak.toml.
func getConfigPath() (string, error) {
	if path := os.Getenv("TREEBAK_CONFIG_PATH"); path != "" {
		return path, nil
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory: %w", err)
	}
	return filepath.Join(homeDir, ".config", "treebak.toml"), nil
}

// getBaseDir returns the data directory, checking TREEBAK_HOME first,
// then falling back to the XDG default ~/.local/share/treebak.
func getBaseDir() (string, error) {
	if path := os.Getenv("TREEBAK_HOME"); path != "" {
		return path, nil
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory: %w", err)
	}
	return filepath.Join(homeDir, ".local", "share", "treebak"), nil
}

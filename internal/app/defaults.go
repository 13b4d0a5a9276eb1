package app

import (
	"fmt"
	"os"
	"path/filepath"
)

// GetDefaults returns application default paths, checking environment variables first.
// Environment variables:
//   - LEDGERBAK_CONFIG_PATH: config file location (default: ~/.config/ledgerbak.toml)
//   - LEDGERBAK_HOME: base directory for ledgerbak data (default: ~/.local/share/ledgerbak)
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
		"work_dir":    filepath.Join(baseDir, "work"),
	}, nil
}

func getConfigPath() (string, error) {
	if path := os.Getenv("LEDGERBAK_CONFIG_PATH"); path != "" {
		return path, nil
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory: %w", err)
	}
	return filepath.Join(homeDir, ".config", "ledgerbak.toml"), nil
}

// getBaseDir follows the XDG data layout unless LEDGERBAK_HOME is set.
func getBaseDir() (string, error) {
	if path := os.Getenv("LEDGERBAK_HOME"); path != "" {
		return path, nil
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory: %w", err)
	}
	return filepath.Join(homeDir, ".local", "share", "ledgerbak"), nil
}

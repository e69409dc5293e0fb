package config

import (
	"os"
	"path/filepath"
)

// Dir returns the durango config directory, honoring DURANGO_CONFIG_DIR.
func Dir() (string, error) {
	if dir := os.Getenv("DURANGO_CONFIG_DIR"); dir != "" {
		return dir, nil
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(homeDir, ".durango"), nil
}

// ConfigPath returns the path of the user config file.
func ConfigPath() (string, error) {
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.yaml"), nil
}

// ProjectsPath returns the path of the project manifest file.
func ProjectsPath() (string, error) {
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "projects.yaml"), nil
}

// EnsureDir creates the config directory if it does not exist.
func EnsureDir() (string, error) {
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", err
	}
	return dir, nil
}

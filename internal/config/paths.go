package config

import (
	"fmt"
	"os"
	"path/filepath"
)

const (
	appName      = "battctl"
	settingsFile = "settings.yaml"
)

// GetConfigDir returns $XDG_CONFIG_HOME/battctl, falling back to
// $HOME/.config/battctl.
func GetConfigDir() (string, error) {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, appName), nil
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory: %w", err)
	}
	return filepath.Join(homeDir, ".config", appName), nil
}

// GetConfigPath returns the full path to the settings file.
func GetConfigPath() (string, error) {
	configDir, err := GetConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(configDir, settingsFile), nil
}

package config

import (
	"os"
	"path/filepath"
	"time"
)

// GetConfigBaseDir returns the base directory for configuration files
func GetConfigBaseDir() string {
	if dir := os.Getenv("XDG_CONFIG_HOME"); dir != "" {
		// For the system service XDG_CONFIG_HOME points straight at /etc/keylight2mqtt
		if dir == "/etc/"+AppName {
			return dir
		}
		return filepath.Join(dir, ConfigDirName)
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", ConfigDirName)
}

// GetConfigPath returns the full path to a configuration file
func GetConfigPath(filename string) string {
	return filepath.Join(GetConfigBaseDir(), filename)
}

// GetDaemonConfigPath returns the full path to the bridge configuration file
func GetDaemonConfigPath() string {
	return GetConfigPath(DaemonConfigFilename)
}

// ValidateDiscoveryTimeout converts a timeout in seconds to a duration,
// clamped to the minimum allowed value
func ValidateDiscoveryTimeout(seconds int) time.Duration {
	d := time.Duration(seconds) * time.Second
	if d < MinDiscoveryTimeout {
		return MinDiscoveryTimeout
	}
	return d
}

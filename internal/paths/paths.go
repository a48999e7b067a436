// Package paths provides centralized path configuration for the application
package paths

import "path/filepath"

// Paths holds all configurable paths for the application
type Paths struct {
	ConfigPath      string // /etc/homeops/config.json
	EnvFile         string // /etc/homeops/.env
	DataDir         string // /etc/homeops/data
	PermissionsPath string // /etc/homeops/data/permissions.json
	IPHistoryPath   string // /etc/homeops/data/ip_history.json
	LogPath         string // /tmp/homeops-bot.log
}

// Default returns the default paths for production use
func Default() Paths {
	return fromDirs("/etc/homeops", "/tmp")
}

// DevPaths returns paths rooted at testdata/dev for local runs
func DevPaths() Paths {
	return fromDirs("testdata/dev", "testdata/dev")
}

func fromDirs(base, logDir string) Paths {
	data := filepath.Join(base, "data")
	return Paths{
		ConfigPath:      filepath.Join(base, "config.json"),
		EnvFile:         filepath.Join(base, ".env"),
		DataDir:         data,
		PermissionsPath: filepath.Join(data, "permissions.json"),
		IPHistoryPath:   filepath.Join(data, "ip_history.json"),
		LogPath:         filepath.Join(logDir, "homeops-bot.log"),
	}
}

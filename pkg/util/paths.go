package util

import (
	"os"
	"path/filepath"
)

// AppName is the directory segment used for default data and log locations.
const AppName = "quickvids"

// DefaultDataDir returns the per-user cache directory for the bot, falling
// back to ./data when the platform directory cannot be resolved.
func DefaultDataDir() string {
	if dir, err := os.UserCacheDir(); err == nil && dir != "" {
		return filepath.Join(dir, AppName)
	}
	return filepath.Join(".", "data")
}

// DefaultDBPath is the SQLite file used when no path is configured.
func DefaultDBPath() string {
	return filepath.Join(DefaultDataDir(), "quickvids.db")
}

// DefaultLogDir is the log directory used when none is configured.
func DefaultLogDir() string {
	return filepath.Join(DefaultDataDir(), "logs")
}

// Package paths resolves the per-user directories ShieldFlow writes to.
package paths

import (
	"os"
	"path/filepath"
)

const appName = "shieldflow"

// HomeDir returns the user's home directory. SHIELDFLOW_HOME overrides it,
// which keeps tests and demos away from the real profile.
func HomeDir() (string, error) {
	if home := os.Getenv("SHIELDFLOW_HOME"); home != "" {
		return home, nil
	}
	return os.UserHomeDir()
}

// base returns $XDG_* when set, otherwise ~/<fallback>.
func base(xdgEnv string, fallback ...string) (string, error) {
	if dir := os.Getenv(xdgEnv); dir != "" && os.Getenv("SHIELDFLOW_HOME") == "" {
		return dir, nil
	}
	home, err := HomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(append([]string{home}, fallback...)...), nil
}

func ensure(xdgEnv string, fallback ...string) (string, error) {
	root, err := base(xdgEnv, fallback...)
	if err != nil {
		return "", err
	}
	dir := filepath.Join(root, appName)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", err
	}
	return dir, nil
}

// CacheDir returns ~/.cache/shieldflow, creating it if needed. The log file
// lives here.
func CacheDir() (string, error) {
	return ensure("XDG_CACHE_HOME", ".cache")
}

// DataDir returns ~/.local/share/shieldflow, creating it if needed. The
// database lives here.
func DataDir() (string, error) {
	return ensure("XDG_DATA_HOME", ".local", "share")
}

// ConfigDir returns ~/.config/shieldflow, creating it if needed.
func ConfigDir() (string, error) {
	return ensure("XDG_CONFIG_HOME", ".config")
}

// DefaultConfigFile returns the path of config.yaml in ConfigDir.
func DefaultConfigFile() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.yaml"), nil
}

// DefaultDBFile returns the path of the database in DataDir.
func DefaultDBFile() (string, error) {
	dir, err := DataDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "shieldflow.db"), nil
}

// DefaultLogFile returns the path of the diagnostics log in CacheDir.
func DefaultLogFile() (string, error) {
	dir, err := CacheDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "shieldflow.log"), nil
}

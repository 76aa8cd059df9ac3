package config

import (
	"os"
	"path/filepath"
)

// Config file names, in lookup order.
const (
	ConfigFileName    = "sqlglider.yaml"
	ConfigFileNameAlt = "sqlglider.yml"
)

// findConfigFile returns the config file path in dir, or "" if absent.
func findConfigFile(dir string) string {
	for _, name := range []string{ConfigFileName, ConfigFileNameAlt} {
		candidate := filepath.Join(dir, name)
		if _, err := os.Stat(candidate); err == nil {
			return candidate
		}
	}
	return ""
}

// FindProjectRoot walks up from startDir to the first directory
// containing a config file. Returns "" if none is found.
func FindProjectRoot(startDir string) string {
	dir := startDir
	for {
		if findConfigFile(dir) != "" {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}

// StateDBPath resolves the run-history database path against the
// project root.
func (c *Config) StateDBPath() string {
	if filepath.IsAbs(c.StatePath) {
		return c.StatePath
	}
	return filepath.Join(c.ProjectRoot, c.StatePath)
}

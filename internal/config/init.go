package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/sqlglider/sqlglider/pkg/sqlparse"
)

// starterConfig is the document written by WriteDefault. Field order
// here is the order in the emitted file.
type starterConfig struct {
	Dialect      string `yaml:"dialect"`
	StrictStar   bool   `yaml:"strict_star"`
	StrictSchema bool   `yaml:"strict_schema"`
	NodeFormat   string `yaml:"node_format"`
	StatePath    string `yaml:"state_path"`
	Output       string `yaml:"output"`
}

// WriteDefault creates a sqlglider.yaml with default settings in dir
// and returns its path. An existing config file is never overwritten.
func WriteDefault(dir string) (string, error) {
	if existing := findConfigFile(dir); existing != "" {
		return "", fmt.Errorf("config file already exists: %s", existing)
	}

	data, err := yaml.Marshal(starterConfig{
		Dialect:    sqlparse.DefaultDialect,
		NodeFormat: DefaultNodeFormat,
		StatePath:  DefaultStatePath,
		Output:     DefaultOutput,
	})
	if err != nil {
		return "", err
	}

	path := filepath.Join(dir, ConfigFileName)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", err
	}
	return path, nil
}

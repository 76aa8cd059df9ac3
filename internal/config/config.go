// Package config loads sqlglider project configuration. Settings
// layer in precedence order: defaults, sqlglider.yaml, SQLGLIDER_
// environment variables, then explicitly set command-line flags.
package config

import (
	"fmt"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"

	"github.com/sqlglider/sqlglider/internal/graph"
	"github.com/sqlglider/sqlglider/pkg/sqlparse"
)

// Default configuration values.
const (
	DefaultNodeFormat = graph.NodeFormatFlat
	DefaultStatePath  = ".sqlglider/state.db"
	DefaultOutput     = "text"
)

// CatalogConfig selects and connects a catalog provider.
type CatalogConfig struct {
	Provider string `koanf:"provider"`
	DSN      string `koanf:"dsn"`
	// Schema qualifies unqualified table names during lookups.
	Schema string `koanf:"schema"`
}

// Config is the resolved project configuration.
type Config struct {
	// Dialect is the default SQL dialect for files without an
	// override.
	Dialect      string `koanf:"dialect"`
	StrictStar   bool   `koanf:"strict_star"`
	StrictSchema bool   `koanf:"strict_schema"`
	// NodeFormat controls graph identifier serialization, "flat" or
	// "parts".
	NodeFormat string `koanf:"node_format"`
	// StatePath is the run-history database, relative to the project
	// root unless absolute.
	StatePath string `koanf:"state_path"`
	Output    string `koanf:"output"`
	Verbose   bool   `koanf:"verbose"`
	Catalog   *CatalogConfig `koanf:"catalog"`

	// ProjectRoot is the directory the config was resolved against.
	ProjectRoot string `koanf:"-"`
}

// Validate checks dialect and node format against their registries.
func (c *Config) Validate() error {
	if _, err := sqlparse.GetDialect(c.Dialect); err != nil {
		return err
	}
	switch c.NodeFormat {
	case graph.NodeFormatFlat, graph.NodeFormatParts:
	default:
		return fmt.Errorf("unknown node format %q (want %q or %q)",
			c.NodeFormat, graph.NodeFormatFlat, graph.NodeFormatParts)
	}
	return nil
}

// Load resolves configuration for the project containing dir. Flags
// may be nil; only flags the user actually set override the file and
// environment layers.
func Load(dir string, flags *pflag.FlagSet) (*Config, error) {
	root := FindProjectRoot(dir)
	if root == "" {
		root = dir
	}

	k := koanf.New(".")

	if err := k.Load(confmap.Provider(map[string]interface{}{
		"dialect":     sqlparse.DefaultDialect,
		"node_format": DefaultNodeFormat,
		"state_path":  DefaultStatePath,
		"output":      DefaultOutput,
		"verbose":     false,
	}, "."), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if path := findConfigFile(root); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("error reading config file %s: %w", path, err)
		}
	}

	// SQLGLIDER_STRICT_STAR -> strict_star, SQLGLIDER_CATALOG_DSN ->
	// catalog.dsn.
	if err := k.Load(env.Provider("SQLGLIDER_", ".", func(s string) string {
		key := strings.ToLower(strings.TrimPrefix(s, "SQLGLIDER_"))
		if rest, ok := strings.CutPrefix(key, "catalog_"); ok {
			return "catalog." + rest
		}
		return key
	}), nil); err != nil {
		return nil, fmt.Errorf("failed to load env vars: %w", err)
	}

	if flags != nil {
		if err := k.Load(posflag.ProviderWithFlag(flags, ".", k, func(f *pflag.Flag) (string, interface{}) {
			if !f.Changed {
				return "", nil
			}
			key := strings.ReplaceAll(f.Name, "-", "_")
			return key, posflag.FlagVal(flags, f)
		}), nil); err != nil {
			return nil, fmt.Errorf("failed to load flags: %w", err)
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}
	cfg.ProjectRoot = root

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

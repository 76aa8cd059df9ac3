package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sqlglider/sqlglider/internal/config"
)

func writeConfig(t *testing.T, dir, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, config.ConfigFileName), []byte(content), 0o644))
}

func TestLoadDefaults(t *testing.T) {
	dir := t.TempDir()

	cfg, err := config.Load(dir, nil)
	require.NoError(t, err)
	assert.Equal(t, "spark", cfg.Dialect)
	assert.Equal(t, config.DefaultNodeFormat, cfg.NodeFormat)
	assert.Equal(t, config.DefaultStatePath, cfg.StatePath)
	assert.False(t, cfg.StrictStar)
	assert.Nil(t, cfg.Catalog)
	assert.Equal(t, dir, cfg.ProjectRoot)
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, `
dialect: duckdb
strict_star: true
node_format: parts
catalog:
  provider: postgres
  dsn: host=localhost dbname=meta
  schema: analytics
`)

	cfg, err := config.Load(dir, nil)
	require.NoError(t, err)
	assert.Equal(t, "duckdb", cfg.Dialect)
	assert.True(t, cfg.StrictStar)
	assert.Equal(t, "parts", cfg.NodeFormat)
	require.NotNil(t, cfg.Catalog)
	assert.Equal(t, "postgres", cfg.Catalog.Provider)
	assert.Equal(t, "analytics", cfg.Catalog.Schema)
}

func TestFindProjectRootWalksUp(t *testing.T) {
	root := t.TempDir()
	writeConfig(t, root, "dialect: ansi\n")
	nested := filepath.Join(root, "models", "staging")
	require.NoError(t, os.MkdirAll(nested, 0o755))

	assert.Equal(t, root, config.FindProjectRoot(nested))

	cfg, err := config.Load(nested, nil)
	require.NoError(t, err)
	assert.Equal(t, "ansi", cfg.Dialect)
	assert.Equal(t, root, cfg.ProjectRoot)
}

func TestEnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, "dialect: duckdb\n")
	t.Setenv("SQLGLIDER_DIALECT", "postgres")
	t.Setenv("SQLGLIDER_CATALOG_DSN", "host=db")

	cfg, err := config.Load(dir, nil)
	require.NoError(t, err)
	assert.Equal(t, "postgres", cfg.Dialect)
	require.NotNil(t, cfg.Catalog)
	assert.Equal(t, "host=db", cfg.Catalog.DSN)
}

func TestChangedFlagWins(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, "dialect: duckdb\n")

	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.String("dialect", "spark", "")
	flags.Bool("strict-star", false, "")
	require.NoError(t, flags.Parse([]string{"--dialect", "snowflake", "--strict-star"}))

	cfg, err := config.Load(dir, flags)
	require.NoError(t, err)
	assert.Equal(t, "snowflake", cfg.Dialect)
	assert.True(t, cfg.StrictStar)
}

func TestUnsetFlagDoesNotOverride(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, "dialect: duckdb\n")

	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.String("dialect", "spark", "")
	require.NoError(t, flags.Parse(nil))

	cfg, err := config.Load(dir, flags)
	require.NoError(t, err)
	assert.Equal(t, "duckdb", cfg.Dialect)
}

func TestLoadRejectsUnknownDialect(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, "dialect: oracle9\n")

	_, err := config.Load(dir, nil)
	assert.Error(t, err)
}

func TestLoadRejectsUnknownNodeFormat(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, "node_format: fancy\n")

	_, err := config.Load(dir, nil)
	assert.ErrorContains(t, err, "node format")
}

func TestStateDBPath(t *testing.T) {
	cfg := &config.Config{ProjectRoot: "/proj", StatePath: ".sqlglider/state.db"}
	assert.Equal(t, filepath.Join("/proj", ".sqlglider", "state.db"), cfg.StateDBPath())

	cfg.StatePath = "/var/lib/state.db"
	assert.Equal(t, "/var/lib/state.db", cfg.StateDBPath())
}

func TestWriteDefaultRoundTrips(t *testing.T) {
	dir := t.TempDir()

	path, err := config.WriteDefault(dir)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, config.ConfigFileName), path)

	cfg, err := config.Load(dir, nil)
	require.NoError(t, err)
	assert.Equal(t, "spark", cfg.Dialect)
	assert.Equal(t, config.DefaultStatePath, cfg.StatePath)
	assert.Equal(t, config.DefaultOutput, cfg.Output)
}

func TestWriteDefaultRefusesOverwrite(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, "dialect: duckdb\n")

	_, err := config.WriteDefault(dir)
	assert.ErrorContains(t, err, "already exists")
}

package catalog

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"
)

// Config carries provider connection settings.
type Config struct {
	// DSN is the provider-specific connection string.
	DSN string
	// DefaultSchema qualifies unqualified table names, when the
	// provider distinguishes schemas. Empty means provider default.
	DefaultSchema string
	Logger        *slog.Logger
}

// Factory opens a catalog from a config.
type Factory func(cfg Config) (Catalog, error)

var (
	registryMu sync.RWMutex
	registry   = make(map[string]Factory)
)

// Register adds a provider factory under a name. Later registrations
// replace earlier ones.
func Register(name string, factory Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[name] = factory
}

// Get returns the factory registered under name.
func Get(name string) (Factory, bool) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	f, ok := registry[name]
	return f, ok
}

// Open opens the named provider with the given config.
func Open(name string, cfg Config) (Catalog, error) {
	f, ok := Get(name)
	if !ok {
		return nil, fmt.Errorf("unknown catalog provider %q (registered: %v)", name, List())
	}
	return f(cfg)
}

// List returns the registered provider names, sorted.
func List() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

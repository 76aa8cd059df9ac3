package sqlparse

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Dialect describes name normalization and feature toggles for a SQL
// dialect. Dialects are data, not behavior: the parser accepts a superset
// grammar and the dialect controls identifier folding and which optional
// features are recognized.
type Dialect struct {
	Name string

	// FoldCase lowercases unquoted identifiers during normalization.
	FoldCase bool

	// AllowQualify enables the QUALIFY clause.
	AllowQualify bool

	// AllowIlike enables the ILIKE operator.
	AllowIlike bool

	// AllowDoubleColonCast enables expr::type casts.
	AllowDoubleColonCast bool
}

// NormalizeName normalizes an identifier according to dialect rules.
func (d *Dialect) NormalizeName(name string) string {
	if d.FoldCase {
		return strings.ToLower(name)
	}
	return name
}

var (
	dialectMu sync.RWMutex
	dialects  = map[string]*Dialect{}
)

// RegisterDialect adds a dialect to the registry, replacing any existing
// dialect with the same name.
func RegisterDialect(d *Dialect) {
	dialectMu.Lock()
	defer dialectMu.Unlock()
	dialects[strings.ToLower(d.Name)] = d
}

// GetDialect looks up a dialect by name (case-insensitive).
func GetDialect(name string) (*Dialect, error) {
	dialectMu.RLock()
	defer dialectMu.RUnlock()
	d, ok := dialects[strings.ToLower(name)]
	if !ok {
		return nil, fmt.Errorf(ErrUnknownDialect, name)
	}
	return d, nil
}

// DialectNames returns the registered dialect names, sorted.
func DialectNames() []string {
	dialectMu.RLock()
	defer dialectMu.RUnlock()
	names := make([]string, 0, len(dialects))
	for name := range dialects {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// DefaultDialect is the dialect used when none is specified.
const DefaultDialect = "spark"

func init() {
	RegisterDialect(&Dialect{Name: "spark", FoldCase: true, AllowQualify: true})
	RegisterDialect(&Dialect{Name: "ansi", FoldCase: true})
	RegisterDialect(&Dialect{Name: "duckdb", FoldCase: true, AllowQualify: true, AllowIlike: true, AllowDoubleColonCast: true})
	RegisterDialect(&Dialect{Name: "postgres", FoldCase: true, AllowIlike: true, AllowDoubleColonCast: true})
	RegisterDialect(&Dialect{Name: "snowflake", FoldCase: true, AllowQualify: true, AllowIlike: true, AllowDoubleColonCast: true})
}

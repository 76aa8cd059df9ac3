// Package catalog fetches table DDL from external metadata stores to
// fill schema gaps the SQL files themselves do not cover. Providers
// register themselves by name; lookups fail softly per table.
package catalog

import (
	"context"

	"github.com/sqlglider/sqlglider/internal/schema"
)

// Result is one table's DDL lookup outcome.
type Result = schema.DDLResult

// Catalog supplies CREATE TABLE statements for named tables. Every
// Catalog satisfies schema.DDLSource.
type Catalog interface {
	// Name identifies the provider.
	Name() string
	// FetchDDL returns a result per requested table. A missing entry
	// or a Result with Err set marks that table as failed; other
	// tables in the same batch are unaffected.
	FetchDDL(ctx context.Context, tables []string) map[string]Result
	// Close releases the provider's resources.
	Close() error
}

// LookupError is a per-table catalog failure.
type LookupError struct {
	Table string
	Err   error
}

func (e *LookupError) Error() string {
	return "catalog lookup failed for " + e.Table + ": " + e.Err.Error()
}

func (e *LookupError) Unwrap() error { return e.Err }

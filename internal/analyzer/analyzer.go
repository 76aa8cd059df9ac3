// Package analyzer extracts column- and table-level lineage from parsed
// SQL statements, one statement at a time. Write statements qualify
// their outputs with the target table; reverse (impact) lineage inverts
// the forward results.
package analyzer

import (
	"strings"

	"github.com/sqlglider/sqlglider/internal/schema"
	"github.com/sqlglider/sqlglider/pkg/lintree"
	"github.com/sqlglider/sqlglider/pkg/sqlparse"
)

// Granularity selects column- or table-level extraction.
type Granularity string

// Granularity constants.
const (
	GranularityColumn Granularity = "column"
	GranularityTable  Granularity = "table"
)

// LineageItem is the smallest lineage fact for one statement: an output
// identifier and one source it depends on. Source is a qualified column
// identifier or a literal marker, never empty.
type LineageItem struct {
	Output string `json:"output"`
	Source string `json:"source"`
}

// QueryLineageResult is one statement's extracted lineage.
type QueryLineageResult struct {
	Index       int           `json:"index"`
	Preview     string        `json:"preview"`
	Granularity Granularity   `json:"granularity"`
	Items       []LineageItem `json:"items"`
}

// SkippedQuery records a statement with no lineage-relevant body.
type SkippedQuery struct {
	Index  int    `json:"index"`
	Kind   string `json:"kind"`
	Reason string `json:"reason"`
}

// StarResolutionError is re-exported so callers can match strict
// wildcard failures without importing the tracing package.
type StarResolutionError = lintree.StarResolutionError

// NotFoundError reports an identifier that appeared in none of the
// statements searched. Candidates lists the identifiers that were seen.
type NotFoundError struct {
	Identifier string
	Candidates []string
}

func (e *NotFoundError) Error() string {
	msg := "not found: " + e.Identifier
	if len(e.Candidates) > 0 {
		msg += " (known: " + strings.Join(e.Candidates, ", ") + ")"
	}
	return msg
}

// Options configures an Extractor.
type Options struct {
	Dialect *sqlparse.Dialect
	Schema  *schema.Context
	// StrictStar makes unresolvable wildcards a hard error.
	StrictStar bool
}

// Extractor extracts lineage for single statements against a schema
// context.
type Extractor struct {
	dialect    *sqlparse.Dialect
	schema     *schema.Context
	strictStar bool
}

// NewExtractor creates an extractor. A nil dialect falls back to the
// default; a nil schema context means no wildcard resolution.
func NewExtractor(opts Options) *Extractor {
	d := opts.Dialect
	if d == nil {
		d, _ = sqlparse.GetDialect(sqlparse.DefaultDialect)
	}
	ctx := opts.Schema
	if ctx == nil {
		ctx = schema.NewContext(schema.Options{Dialect: d, StrictStar: opts.StrictStar})
	}
	return &Extractor{dialect: d, schema: ctx, strictStar: opts.StrictStar}
}

// Schema returns the extractor's schema context.
func (e *Extractor) Schema() *schema.Context {
	return e.schema
}

// HasLineage reports whether a statement kind can yield column lineage.
func HasLineage(stmt sqlparse.Statement) bool {
	switch s := stmt.(type) {
	case *sqlparse.SelectStmt, *sqlparse.MergeStmt, *sqlparse.UpdateStmt:
		return true
	case *sqlparse.InsertStmt:
		return true
	case *sqlparse.CreateStmt:
		return s.Select != nil
	}
	return false
}

// ForwardColumn extracts forward column lineage for one statement. The
// schema handed to tracing is pruned to the statement's referenced
// tables. Outputs of write statements are qualified with the target
// table; UNION bodies take output names from the first branch. Output
// columns with no resolvable source yield no items.
func (e *Extractor) ForwardColumn(stmt sqlparse.Statement) ([]LineageItem, error) {
	tracer := lintree.NewTracer(lintree.Options{
		Dialect:    e.dialect,
		Schema:     e.schema.Pruned(stmt),
		StrictStar: e.strictStar,
	})
	nodes, err := tracer.TraceAll(stmt)
	if err != nil {
		return nil, err
	}

	prefix := ""
	if target := sqlparse.TargetOf(stmt); target != nil {
		prefix = target.Qualified() + "."
	}

	var items []LineageItem
	seen := make(map[string]struct{})
	for _, node := range nodes {
		output := prefix + node.Name
		for _, leaf := range node.SourceLeaves() {
			source := leaf.Name
			if leaf.Literal {
				source = LiteralMarker(leaf.Value)
			}
			key := e.dialect.NormalizeName(output) + "\x00" + e.dialect.NormalizeName(source)
			if _, ok := seen[key]; ok {
				continue
			}
			seen[key] = struct{}{}
			items = append(items, LineageItem{Output: output, Source: source})
		}
	}
	return items, nil
}

// ReverseColumn extracts the forward lineage of a statement and filters
// it to items whose source matches the requested column. An empty
// result is not an error; only a multi-statement caller decides the
// column is absent everywhere.
func (e *Extractor) ReverseColumn(source string, stmt sqlparse.Statement) ([]LineageItem, error) {
	forward, err := e.ForwardColumn(stmt)
	if err != nil {
		return nil, err
	}
	var items []LineageItem
	for _, item := range forward {
		if e.matches(item.Source, source) {
			items = append(items, item)
		}
	}
	return items, nil
}

// SingleColumn extracts forward lineage filtered to one output column.
func (e *Extractor) SingleColumn(output string, stmt sqlparse.Statement) ([]LineageItem, error) {
	forward, err := e.ForwardColumn(stmt)
	if err != nil {
		return nil, err
	}
	var items []LineageItem
	for _, item := range forward {
		if e.matches(item.Output, output) {
			items = append(items, item)
		}
	}
	return items, nil
}

// matches compares identifiers case-insensitively. An unqualified
// request matches any identifier with the same final segment.
func (e *Extractor) matches(identifier, requested string) bool {
	id := e.dialect.NormalizeName(identifier)
	req := e.dialect.NormalizeName(requested)
	if id == req {
		return true
	}
	if !strings.Contains(req, ".") {
		if i := strings.LastIndex(id, "."); i >= 0 && id[i+1:] == req {
			return true
		}
	}
	return false
}

// LiteralMarker renders a constant source the way lineage output
// reports it.
func LiteralMarker(value string) string {
	return "<literal: " + value + ">"
}

// IsLiteralMarker reports whether a source identifier is a literal
// marker rather than a column.
func IsLiteralMarker(source string) bool {
	return strings.HasPrefix(source, "<literal: ") && strings.HasSuffix(source, ">")
}

// Preview returns a single-line, truncated rendering of a statement for
// result reporting.
func Preview(raw string) string {
	flat := strings.Join(strings.Fields(raw), " ")
	if len(flat) > 80 {
		return flat[:77] + "..."
	}
	return flat
}

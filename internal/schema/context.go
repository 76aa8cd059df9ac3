// Package schema accumulates table schemas across SQL statements and
// files. A Context starts from explicit DDL and optionally a catalog,
// learns the shapes of tables written by CTAS, CREATE VIEW, and INSERT
// statements, and can infer columns from how queries reference tables.
package schema

import (
	"context"
	"os"
	"sort"
	"strings"
	"sync"

	"github.com/sqlglider/sqlglider/pkg/lintree"
	"github.com/sqlglider/sqlglider/pkg/sqlparse"
)

// Origin records where a schema entry came from. Higher values take
// precedence: a file-derived entry is never overwritten by catalog or
// inferred data.
type Origin int

// Origin constants, lowest precedence first.
const (
	OriginInferred Origin = iota
	OriginCatalog
	OriginFile
)

// Options configures a Context.
type Options struct {
	Dialect *sqlparse.Dialect
	// StrictStar makes unresolvable wildcards in recorded statements a
	// hard error instead of leaving the target's schema unknown.
	StrictStar bool
	// StrictSchema makes ambiguous unqualified column references a hard
	// error during inference.
	StrictSchema bool
}

type entry struct {
	name    string // as first seen, before normalization
	columns []string
	origin  Origin
}

// Context is a mutable collection of table schemas. It is safe for
// concurrent reads; writers must not race with readers.
type Context struct {
	mu sync.RWMutex

	dialect      *sqlparse.Dialect
	strictStar   bool
	strictSchema bool

	// entries is keyed by the normalized qualified name. unqualified
	// maps bare table names to qualified keys for fallback lookup.
	entries     map[string]*entry
	unqualified map[string]string
}

// NewContext creates an empty schema context. A nil dialect falls back
// to the default dialect.
func NewContext(opts Options) *Context {
	d := opts.Dialect
	if d == nil {
		d, _ = sqlparse.GetDialect(sqlparse.DefaultDialect)
	}
	return &Context{
		dialect:      d,
		strictStar:   opts.StrictStar,
		strictSchema: opts.StrictSchema,
		entries:      make(map[string]*entry),
		unqualified:  make(map[string]string),
	}
}

// AddTable records a table's ordered column list. Entries with a higher
// precedence origin are kept; same-origin entries are replaced so later
// statements see schema evolution.
func (c *Context) AddTable(name string, columns []string, origin Origin) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.addTable(name, columns, origin)
}

func (c *Context) addTable(name string, columns []string, origin Origin) {
	key := c.dialect.NormalizeName(name)
	if existing, ok := c.entries[key]; ok && existing.origin > origin {
		return
	}
	c.entries[key] = &entry{name: name, columns: columns, origin: origin}

	if i := strings.LastIndex(key, "."); i >= 0 {
		c.unqualified[key[i+1:]] = key
	}
}

// Lookup returns the columns of a table by exact or bare-name match.
func (c *Context) Lookup(name string) ([]string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	key := c.dialect.NormalizeName(name)
	if e, ok := c.entries[key]; ok {
		return e.columns, true
	}
	if qualified, ok := c.unqualified[key]; ok {
		return c.entries[qualified].columns, true
	}
	return nil, false
}

// Tables returns the known table names, sorted.
func (c *Context) Tables() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	names := make([]string, 0, len(c.entries))
	for key := range c.entries {
		names = append(names, key)
	}
	sort.Strings(names)
	return names
}

// Schema returns a snapshot usable for scope resolution. Entries appear
// under both their qualified and bare names.
func (c *Context) Schema() sqlparse.Schema {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make(sqlparse.Schema, len(c.entries)+len(c.unqualified))
	for key, e := range c.entries {
		out[key] = e.columns
	}
	for bare, qualified := range c.unqualified {
		if _, ok := out[bare]; !ok {
			out[bare] = c.entries[qualified].columns
		}
	}
	return out
}

// Pruned returns a schema restricted to the tables the statement
// references. Passing the full context to scope resolution would let
// unrelated tables capture unqualified columns.
func (c *Context) Pruned(stmt sqlparse.Statement) sqlparse.Schema {
	out := make(sqlparse.Schema)
	for _, table := range ReferencedTables(stmt, c.dialect) {
		if cols, ok := c.Lookup(table); ok {
			key := c.dialect.NormalizeName(table)
			out[key] = cols
			if i := strings.LastIndex(key, "."); i >= 0 {
				out[key[i+1:]] = cols
			}
		}
	}
	return out
}

// Record updates the context from a statement's write target. Called
// after the statement has been analyzed, so the statement itself
// resolves against the schema that preceded it.
//
// CTAS and CREATE VIEW define their target's columns from the SELECT
// body. CREATE TABLE with column definitions records them directly.
// INSERT defines a previously unknown target from its column list or
// SELECT body. Unresolvable wildcards leave the target unknown unless
// StrictStar is set.
func (c *Context) Record(stmt sqlparse.Statement, d *sqlparse.Dialect) error {
	if d == nil {
		d = c.dialect
	}

	switch s := stmt.(type) {
	case *sqlparse.CreateStmt:
		if len(s.ColumnDefs) > 0 {
			cols := make([]string, len(s.ColumnDefs))
			for i, def := range s.ColumnDefs {
				cols[i] = def.Name
			}
			c.AddTable(s.Target.Qualified(), cols, OriginFile)
			return nil
		}
		if s.Select == nil {
			return nil
		}
		return c.recordResolved(s, s.Target, d)

	case *sqlparse.InsertStmt:
		if _, known := c.Lookup(s.Target.Qualified()); known {
			return nil
		}
		if len(s.Columns) > 0 {
			c.AddTable(s.Target.Qualified(), s.Columns, OriginFile)
			return nil
		}
		if s.Select == nil {
			return nil
		}
		return c.recordResolved(s, s.Target, d)
	}
	return nil
}

func (c *Context) recordResolved(stmt sqlparse.Statement, target *sqlparse.TableName, d *sqlparse.Dialect) error {
	tracer := lintree.NewTracer(lintree.Options{
		Dialect:    d,
		Schema:     c.Pruned(stmt),
		StrictStar: c.strictStar,
	})
	cols, err := tracer.OutputColumns(stmt)
	if err != nil {
		return err
	}
	for _, col := range cols {
		// An unresolved wildcard means the target's shape is unknown.
		if col == "*" || strings.HasSuffix(col, ".*") {
			return nil
		}
	}
	if len(cols) > 0 {
		c.AddTable(target.Qualified(), cols, OriginFile)
	}
	return nil
}

// ExtractFromFiles parses each file and records the schemas its DDL and
// write statements define. Unreadable files are reported per path; the
// scan continues. Individual parse failures within a file are skipped
// here and surface during analysis.
func (c *Context) ExtractFromFiles(files []string, d *sqlparse.Dialect) map[string]error {
	if d == nil {
		d = c.dialect
	}
	failed := make(map[string]error)
	for _, path := range files {
		data, err := os.ReadFile(path)
		if err != nil {
			failed[path] = err
			continue
		}
		for _, res := range sqlparse.ParseScript(string(data), d) {
			if res.Err != nil || res.Stmt == nil {
				continue
			}
			if err := c.Record(res.Stmt, d); err != nil {
				failed[path] = err
				break
			}
		}
	}
	if len(failed) == 0 {
		return nil
	}
	return failed
}

// DDLResult is one table's outcome from a catalog lookup.
type DDLResult struct {
	DDL string
	Err error
}

// DDLSource fetches CREATE TABLE statements for the named tables.
// Implemented by catalog providers.
type DDLSource interface {
	FetchDDL(ctx context.Context, tables []string) map[string]DDLResult
}

// MissingTables returns the referenced tables the context has no entry
// for, in order of first reference.
func (c *Context) MissingTables(stmts []sqlparse.Statement) []string {
	var missing []string
	seen := make(map[string]struct{})
	for _, stmt := range stmts {
		for _, table := range ReferencedTables(stmt, c.dialect) {
			key := c.dialect.NormalizeName(table)
			if _, ok := seen[key]; ok {
				continue
			}
			seen[key] = struct{}{}
			if _, ok := c.Lookup(table); !ok {
				missing = append(missing, table)
			}
		}
	}
	return missing
}

// FillFromCatalog fetches DDL for tables missing from the context and
// records the parseable results. Failures are soft and reported per
// table.
func (c *Context) FillFromCatalog(ctx context.Context, src DDLSource, tables []string) map[string]error {
	if len(tables) == 0 {
		return nil
	}

	failed := make(map[string]error)
	for table, result := range src.FetchDDL(ctx, tables) {
		if result.Err != nil {
			failed[table] = result.Err
			continue
		}
		stmt, err := sqlparse.Parse(result.DDL, c.dialect)
		if err != nil {
			failed[table] = err
			continue
		}
		create, ok := stmt.(*sqlparse.CreateStmt)
		if !ok || len(create.ColumnDefs) == 0 {
			continue
		}
		cols := make([]string, len(create.ColumnDefs))
		for i, def := range create.ColumnDefs {
			cols[i] = def.Name
		}
		c.AddTable(table, cols, OriginCatalog)
	}
	if len(failed) == 0 {
		return nil
	}
	return failed
}

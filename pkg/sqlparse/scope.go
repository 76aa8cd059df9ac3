package sqlparse

// Schema maps table identifiers to their ordered column lists.
// Used for SELECT * expansion when schema information is available.
type Schema map[string][]string

// Clone returns a shallow copy of the schema (column slices are shared).
func (s Schema) Clone() Schema {
	out := make(Schema, len(s))
	for k, v := range s {
		out[k] = v
	}
	return out
}

// ScopeType indicates the type of scope entry.
type ScopeType int

const (
	// ScopeTable represents a physical table.
	ScopeTable ScopeType = iota
	// ScopeCTE represents a Common Table Expression.
	ScopeCTE
	// ScopeDerived represents a derived table (subquery in FROM).
	ScopeDerived
)

// ScopeEntry represents a table/CTE/derived table in scope.
type ScopeEntry struct {
	Type        ScopeType
	Name        string   // original table/CTE name
	Alias       string   // alias (if any)
	Columns     []string // known columns (from schema or derived query)
	SourceTable string   // for physical tables: fully qualified name
}

// EffectiveName returns the name used to reference this entry.
func (e *ScopeEntry) EffectiveName() string {
	if e.Alias != "" {
		return e.Alias
	}
	return e.Name
}

// Scope tracks the tables, CTEs, and derived tables visible to a query,
// in declaration order. Order matters for deterministic star expansion.
type Scope struct {
	parent  *Scope
	names   []string               // declaration order of entries
	entries map[string]*ScopeEntry // normalized name/alias -> entry
	dialect *Dialect
	schema  Schema
}

// NewScope creates a new root scope. A nil dialect falls back to the
// default dialect.
func NewScope(d *Dialect, schema Schema) *Scope {
	if d == nil {
		d, _ = GetDialect(DefaultDialect)
	}
	return &Scope{
		entries: make(map[string]*ScopeEntry),
		dialect: d,
		schema:  schema,
	}
}

// Child creates a child scope for nested queries.
func (s *Scope) Child() *Scope {
	return &Scope{
		parent:  s,
		entries: make(map[string]*ScopeEntry),
		dialect: s.dialect,
		schema:  s.schema,
	}
}

// normalize normalizes an identifier according to dialect rules.
func (s *Scope) normalize(name string) string {
	return s.dialect.NormalizeName(name)
}

// register stores an entry under its effective name, preserving order.
func (s *Scope) register(entry *ScopeEntry) {
	key := s.normalize(entry.EffectiveName())
	if _, exists := s.entries[key]; !exists {
		s.names = append(s.names, key)
	}
	s.entries[key] = entry
}

// RegisterCTE registers a CTE with its resolved columns.
func (s *Scope) RegisterCTE(name string, columns []string) {
	s.register(&ScopeEntry{
		Type:    ScopeCTE,
		Name:    name,
		Columns: columns,
	})
}

// RegisterCTERef registers a FROM-clause reference to a previously
// defined CTE, under its alias when one is present.
func (s *Scope) RegisterCTERef(cte *ScopeEntry, alias string) {
	s.register(&ScopeEntry{
		Type:    ScopeCTE,
		Name:    cte.Name,
		Alias:   alias,
		Columns: cte.Columns,
	})
}

// RegisterTable registers a physical table from a FROM clause, pulling
// columns from the schema when known.
func (s *Scope) RegisterTable(table *TableName) {
	entry := &ScopeEntry{
		Type:        ScopeTable,
		Name:        table.Name,
		Alias:       table.Alias,
		SourceTable: table.Qualified(),
	}

	if s.schema != nil {
		for _, key := range []string{
			s.normalize(entry.SourceTable),
			s.normalize(table.Name),
			entry.SourceTable,
			table.Name,
		} {
			if cols, ok := s.schema[key]; ok {
				entry.Columns = cols
				break
			}
		}
	}

	s.register(entry)
}

// RegisterDerived registers a derived table (subquery in FROM).
func (s *Scope) RegisterDerived(alias string, columns []string) {
	s.register(&ScopeEntry{
		Type:    ScopeDerived,
		Name:    alias,
		Alias:   alias,
		Columns: columns,
	})
}

// Lookup finds a scope entry by name (table name or alias).
// Searches the current scope first, then parent scopes.
func (s *Scope) Lookup(name string) (*ScopeEntry, bool) {
	normalized := s.normalize(name)

	if entry, ok := s.entries[normalized]; ok {
		return entry, true
	}

	if s.parent != nil {
		return s.parent.Lookup(name)
	}

	return nil, false
}

// LookupCTE looks up a CTE by name in this scope or any parent.
func (s *Scope) LookupCTE(name string) (*ScopeEntry, bool) {
	normalized := s.normalize(name)

	if entry, ok := s.entries[normalized]; ok && entry.Type == ScopeCTE {
		return entry, true
	}

	if s.parent != nil {
		return s.parent.LookupCTE(name)
	}

	return nil, false
}

// Entries returns the entries of the current scope in declaration order.
func (s *Scope) Entries() []*ScopeEntry {
	entries := make([]*ScopeEntry, 0, len(s.names))
	for _, name := range s.names {
		entries = append(entries, s.entries[name])
	}
	return entries
}

// Tables returns the physical table entries in declaration order.
func (s *Scope) Tables() []*ScopeEntry {
	var tables []*ScopeEntry
	for _, e := range s.Entries() {
		if e.Type == ScopeTable {
			tables = append(tables, e)
		}
	}
	return tables
}

// ResolveColumn attempts to resolve a column reference to its scope entry.
//
// For qualified columns (table.column), it looks up by qualifier. For
// unqualified columns it searches entries in declaration order, then
// falls back to single-table inference when exactly one physical table
// is in scope.
func (s *Scope) ResolveColumn(ref *ColumnRef) (*ScopeEntry, bool) {
	if ref.Table != "" {
		return s.Lookup(ref.Table)
	}

	want := s.normalize(ref.Column)
	for _, entry := range s.Entries() {
		for _, col := range entry.Columns {
			if s.normalize(col) == want {
				return entry, true
			}
		}
	}

	// Single-table inference: with exactly one physical table in scope,
	// assume unqualified columns belong to it.
	tables := s.Tables()
	if len(tables) == 1 {
		return tables[0], true
	}

	if s.parent != nil {
		return s.parent.ResolveColumn(ref)
	}

	return nil, false
}

// ExpandStar expands a * or table.* to column references in declaration
// order. Returns nil if the columns are unknown.
func (s *Scope) ExpandStar(tableName string) []*ColumnRef {
	if tableName != "" {
		entry, ok := s.Lookup(tableName)
		if !ok || len(entry.Columns) == 0 {
			return nil
		}

		refs := make([]*ColumnRef, len(entry.Columns))
		for i, col := range entry.Columns {
			refs[i] = &ColumnRef{
				Table:  entry.EffectiveName(),
				Column: col,
			}
		}
		return refs
	}

	var refs []*ColumnRef
	for _, entry := range s.Entries() {
		for _, col := range entry.Columns {
			refs = append(refs, &ColumnRef{
				Table:  entry.EffectiveName(),
				Column: col,
			})
		}
	}
	return refs
}

// HasFullSchemaInfo returns true if every entry in the current scope has
// column information.
func (s *Scope) HasFullSchemaInfo() bool {
	for _, entry := range s.entries {
		if len(entry.Columns) == 0 {
			return false
		}
	}
	return len(s.entries) > 0
}

// ColumnSource represents a resolved source for a column reference.
type ColumnSource struct {
	Table       string // source table name or alias
	SourceTable string // fully qualified source (e.g., schema.table)
	Column      string
	FromCTE     bool
	FromDerived bool
}

// ResolveColumnFull resolves a column reference and returns full source
// information. Unresolvable qualified references fall back to a
// best-effort source built from the qualifier.
func (s *Scope) ResolveColumnFull(ref *ColumnRef) (*ColumnSource, bool) {
	entry, ok := s.ResolveColumn(ref)
	if !ok {
		if ref.Table != "" {
			return &ColumnSource{
				Table:       ref.Table,
				SourceTable: ref.Table,
				Column:      ref.Column,
			}, true
		}
		return nil, false
	}

	source := &ColumnSource{
		Table:       entry.EffectiveName(),
		Column:      ref.Column,
		FromCTE:     entry.Type == ScopeCTE,
		FromDerived: entry.Type == ScopeDerived,
	}

	if entry.SourceTable != "" {
		source.SourceTable = entry.SourceTable
	} else {
		source.SourceTable = entry.Name
	}

	return source, true
}

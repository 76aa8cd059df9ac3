package analyzer

import (
	"github.com/sqlglider/sqlglider/internal/schema"
	"github.com/sqlglider/sqlglider/pkg/sqlparse"
)

// TableUsage describes how a statement uses a table.
type TableUsage string

// TableUsage constants.
const (
	UsageInput  TableUsage = "INPUT"
	UsageOutput TableUsage = "OUTPUT"
	UsageBoth   TableUsage = "BOTH"
)

// TableType classifies a referenced object.
type TableType string

// TableType constants.
const (
	TypeTable   TableType = "TABLE"
	TypeView    TableType = "VIEW"
	TypeCTE     TableType = "CTE"
	TypeUnknown TableType = "UNKNOWN"
)

// TableInfo is one table's role within a statement.
type TableInfo struct {
	Name  string     `json:"name"`
	Usage TableUsage `json:"usage"`
	Type  TableType  `json:"type"`
}

// ForwardTable extracts table-level lineage: one item per input table
// feeding the statement's write target. Read-only statements have no
// target and yield no items.
func (e *Extractor) ForwardTable(stmt sqlparse.Statement) []LineageItem {
	target := sqlparse.TargetOf(stmt)
	if target == nil {
		return nil
	}

	var items []LineageItem
	out := target.Qualified()
	for _, input := range schema.ReferencedTables(stmt, e.dialect) {
		items = append(items, LineageItem{Output: out, Source: input})
	}
	return items
}

// AnalyzeTables reports every table an individual statement touches,
// with usage direction and object type. CTEs defined by the statement
// are listed with type CTE.
func (e *Extractor) AnalyzeTables(stmt sqlparse.Statement) []TableInfo {
	var infos []TableInfo
	seen := make(map[string]int) // name -> index into infos

	add := func(name string, usage TableUsage, typ TableType) {
		key := e.dialect.NormalizeName(name)
		if i, ok := seen[key]; ok {
			if infos[i].Usage != usage {
				infos[i].Usage = UsageBoth
			}
			return
		}
		seen[key] = len(infos)
		infos = append(infos, TableInfo{Name: name, Usage: usage, Type: typ})
	}

	for _, input := range schema.ReferencedTables(stmt, e.dialect) {
		typ := TypeUnknown
		if _, ok := e.schema.Lookup(input); ok {
			typ = TypeTable
		}
		add(input, UsageInput, typ)
	}

	if target := sqlparse.TargetOf(stmt); target != nil {
		typ := TypeTable
		if create, ok := stmt.(*sqlparse.CreateStmt); ok && create.Create == sqlparse.CreateView {
			typ = TypeView
		}
		add(target.Qualified(), UsageOutput, typ)
	}

	for _, name := range cteNames(stmt) {
		add(name, UsageInput, TypeCTE)
	}

	return infos
}

// cteNames collects the CTE names a statement defines, including those
// of nested queries, in declaration order.
func cteNames(stmt sqlparse.Statement) []string {
	sel := sqlparse.SelectBodyOf(stmt)
	if sel == nil {
		return nil
	}
	var names []string
	collectCTENames(sel, &names)
	return names
}

func collectCTENames(sel *sqlparse.SelectStmt, names *[]string) {
	if sel == nil || sel.With == nil {
		return
	}
	for _, cte := range sel.With.CTEs {
		*names = append(*names, cte.Name)
		collectCTENames(cte.Select, names)
	}
}

// ReferencesTable reports whether a statement reads or writes the named
// table. Matching is case-insensitive; an unqualified name matches any
// qualified reference with the same final segment.
func (e *Extractor) ReferencesTable(stmt sqlparse.Statement, table string) bool {
	if target := sqlparse.TargetOf(stmt); target != nil {
		if e.matches(target.Qualified(), table) {
			return true
		}
	}
	for _, input := range schema.ReferencedTables(stmt, e.dialect) {
		if e.matches(input, table) {
			return true
		}
	}
	return false
}

// FilterByTable keeps the parsed statements that reference the named
// table. Unparsable statements are dropped.
func (e *Extractor) FilterByTable(results []sqlparse.StatementResult, table string) []sqlparse.StatementResult {
	var kept []sqlparse.StatementResult
	for _, res := range results {
		if res.Err != nil || res.Stmt == nil {
			continue
		}
		if e.ReferencesTable(res.Stmt, table) {
			kept = append(kept, res)
		}
	}
	return kept
}

package lintree

import (
	"strconv"

	"github.com/sqlglider/sqlglider/pkg/sqlparse"
)

// Options configures a Tracer.
type Options struct {
	Dialect *sqlparse.Dialect
	Schema  sqlparse.Schema
	// StrictStar makes unresolvable wildcards a hard error instead of
	// degrading to a "*" output column.
	StrictStar bool
}

// Tracer traces output columns of parsed statements back to their
// sources. A Tracer is not safe for concurrent use.
type Tracer struct {
	dialect    *sqlparse.Dialect
	schema     sqlparse.Schema
	strictStar bool
	visiting   map[string]struct{}
}

// NewTracer creates a tracer. A nil dialect falls back to the default
// dialect.
func NewTracer(opts Options) *Tracer {
	d := opts.Dialect
	if d == nil {
		d, _ = sqlparse.GetDialect(sqlparse.DefaultDialect)
	}
	return &Tracer{
		dialect:    d,
		schema:     opts.Schema,
		strictStar: opts.StrictStar,
		visiting:   make(map[string]struct{}),
	}
}

// Trace returns the dependency tree for a single output column of stmt.
func Trace(column string, stmt sqlparse.Statement, d *sqlparse.Dialect, schema sqlparse.Schema) (*Node, error) {
	return NewTracer(Options{Dialect: d, Schema: schema}).Trace(column, stmt)
}

// Trace returns the dependency tree for one output column of stmt.
// Column matching is dialect-normalized.
func (t *Tracer) Trace(column string, stmt sqlparse.Statement) (*Node, error) {
	nodes, err := t.TraceAll(stmt)
	if err != nil {
		return nil, err
	}
	want := t.dialect.NormalizeName(column)
	for _, n := range nodes {
		if t.dialect.NormalizeName(n.Name) == want {
			return n, nil
		}
	}
	return nil, &TraceError{Column: column, Message: "not present in the statement's output"}
}

// TraceAll returns dependency trees for every output column of stmt, in
// projection order. Statements without a column-producing body return
// nil trees and no error.
func (t *Tracer) TraceAll(stmt sqlparse.Statement) ([]*Node, error) {
	switch s := stmt.(type) {
	case *sqlparse.MergeStmt:
		return t.traceMerge(s)
	case *sqlparse.UpdateStmt:
		return t.traceUpdate(s)
	case *sqlparse.InsertStmt:
		if s.Select == nil {
			return t.traceInsertValues(s)
		}
	}

	sel := sqlparse.SelectBodyOf(stmt)
	if sel == nil || sel.Body == nil {
		return nil, nil
	}

	f, err := t.buildStmtFrame(nil, sel)
	if err != nil {
		return nil, err
	}
	return t.traceBody(f, sel.Body)
}

// OutputColumns resolves the output column names of stmt, in projection
// order. A degraded wildcard appears as a "*" entry.
func (t *Tracer) OutputColumns(stmt sqlparse.Statement) ([]string, error) {
	nodes, err := t.TraceAll(stmt)
	if err != nil {
		return nil, err
	}
	if len(nodes) == 0 {
		return nil, nil
	}
	names := make([]string, len(nodes))
	for i, n := range nodes {
		names[i] = n.Name
	}
	return names, nil
}

// traceBody traces every output column of a SELECT body. Set-operation
// branches merge positionally; output names follow the first branch.
func (t *Tracer) traceBody(f *frame, body *sqlparse.SelectBody) ([]*Node, error) {
	type resolvedCore struct {
		cs   *coreScope
		core *sqlparse.SelectCore
		outs []outputColumn
	}

	cores := body.Cores()
	resolved := make([]resolvedCore, 0, len(cores))
	for _, core := range cores {
		cs, err := t.buildCoreScope(f, core)
		if err != nil {
			return nil, err
		}
		outs, err := t.outputColumns(cs, core)
		if err != nil {
			return nil, err
		}
		resolved = append(resolved, resolvedCore{cs: cs, core: core, outs: outs})
	}

	first := resolved[0]
	nodes := make([]*Node, 0, len(first.outs))
	for i, out := range first.outs {
		node := &Node{Name: out.Name, Column: out.Name}
		seen := make(map[string]struct{})
		for _, rc := range resolved {
			if i >= len(rc.outs) {
				continue
			}
			children, err := t.outputChildren(rc.cs, rc.core, rc.outs[i])
			if err != nil {
				return nil, err
			}
			for _, c := range children {
				key := childKey(c)
				if _, ok := seen[key]; ok {
					continue
				}
				seen[key] = struct{}{}
				node.Children = append(node.Children, c)
			}
		}
		nodes = append(nodes, node)
	}
	return nodes, nil
}

// traceMerge traces MERGE actions: UPDATE SET items, explicit INSERT
// column lists, and INSERT * (copies all source columns by name).
func (t *Tracer) traceMerge(stmt *sqlparse.MergeStmt) ([]*Node, error) {
	scope := sqlparse.NewScope(t.dialect, t.schema)
	f := &frame{scope: scope, defs: make(map[string]*tableDef)}
	cs := &coreScope{frame: f, excluded: make(map[string]struct{})}

	if stmt.Target != nil {
		scope.RegisterTable(stmt.Target)
	}
	if err := t.registerRef(f, stmt.Source); err != nil {
		return nil, err
	}

	var ordered []string
	children := make(map[string][]*Node)
	seen := make(map[string]map[string]struct{})
	add := func(col string, nodes []*Node) {
		key := t.dialect.NormalizeName(col)
		if _, ok := seen[key]; !ok {
			seen[key] = make(map[string]struct{})
			ordered = append(ordered, col)
		}
		for _, n := range nodes {
			ck := childKey(n)
			if _, ok := seen[key][ck]; ok {
				continue
			}
			seen[key][ck] = struct{}{}
			children[key] = append(children[key], n)
		}
	}

	for _, action := range stmt.Actions {
		for _, set := range action.Update {
			nodes, err := t.exprChildren(cs, set.Value)
			if err != nil {
				return nil, err
			}
			add(set.Column, nodes)
		}
		for i, col := range action.InsertCols {
			if i >= len(action.InsertValues) {
				break
			}
			nodes, err := t.exprChildren(cs, action.InsertValues[i])
			if err != nil {
				return nil, err
			}
			add(col, nodes)
		}
		if t.isInsertStar(action) {
			for _, n := range t.sourceStarNodes(stmt.Source, scope) {
				add(n.Column, []*Node{n})
			}
		}
	}

	nodes := make([]*Node, 0, len(ordered))
	for _, col := range ordered {
		nodes = append(nodes, &Node{
			Name:     col,
			Column:   col,
			Children: children[t.dialect.NormalizeName(col)],
		})
	}
	return nodes, nil
}

// isInsertStar reports whether a merge action is a bare INSERT *.
func (t *Tracer) isInsertStar(action sqlparse.MergeAction) bool {
	return !action.Delete &&
		len(action.Update) == 0 &&
		len(action.InsertCols) == 0 &&
		len(action.InsertValues) == 0
}

// sourceStarNodes expands the merge source into one node per column, by
// name. Unknown source columns yield a single table-level star node.
func (t *Tracer) sourceStarNodes(source sqlparse.TableRef, scope *sqlparse.Scope) []*Node {
	name := refName(source)
	if name == "" {
		return nil
	}
	entry, ok := scope.Lookup(name)
	if !ok {
		return nil
	}
	src := entrySource(entry)
	if len(entry.Columns) == 0 {
		return []*Node{{Name: src + ".*", Table: src, Column: "*"}}
	}
	nodes := make([]*Node, 0, len(entry.Columns))
	for _, col := range entry.Columns {
		nodes = append(nodes, &Node{
			Name:   src + "." + col,
			Table:  src,
			Column: col,
		})
	}
	return nodes
}

// traceUpdate traces UPDATE SET items. The target table and any FROM
// clause sources are all in scope for the assigned expressions.
func (t *Tracer) traceUpdate(stmt *sqlparse.UpdateStmt) ([]*Node, error) {
	scope := sqlparse.NewScope(t.dialect, t.schema)
	f := &frame{scope: scope, defs: make(map[string]*tableDef)}
	cs := &coreScope{frame: f, excluded: make(map[string]struct{})}

	if stmt.Target != nil {
		scope.RegisterTable(stmt.Target)
	}
	if stmt.From != nil {
		if err := t.registerFrom(cs, stmt.From); err != nil {
			return nil, err
		}
	}

	nodes := make([]*Node, 0, len(stmt.Set))
	for _, set := range stmt.Set {
		children, err := t.exprChildren(cs, set.Value)
		if err != nil {
			return nil, err
		}
		nodes = append(nodes, &Node{
			Name:     set.Column,
			Column:   set.Column,
			Children: children,
		})
	}
	return nodes, nil
}

// traceInsertValues traces INSERT ... VALUES. Only the first row is
// inspected; sources are literals by construction.
func (t *Tracer) traceInsertValues(stmt *sqlparse.InsertStmt) ([]*Node, error) {
	if len(stmt.Values) == 0 {
		return nil, nil
	}

	scope := sqlparse.NewScope(t.dialect, t.schema)
	cs := &coreScope{
		frame:    &frame{scope: scope, defs: make(map[string]*tableDef)},
		excluded: make(map[string]struct{}),
	}

	row := stmt.Values[0]
	nodes := make([]*Node, 0, len(row))
	for i, expr := range row {
		name := "column" + strconv.Itoa(i)
		if i < len(stmt.Columns) {
			name = stmt.Columns[i]
		}
		children, err := t.exprChildren(cs, expr)
		if err != nil {
			return nil, err
		}
		nodes = append(nodes, &Node{
			Name:     name,
			Column:   name,
			Children: children,
		})
	}
	return nodes, nil
}

// childKey dedups sibling nodes. Literals key on their value so the same
// constant is not recorded twice.
func childKey(n *Node) string {
	if n.Literal {
		return "literal:" + n.Value
	}
	return n.Name
}

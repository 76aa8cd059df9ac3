package lintree

import (
	"strconv"

	"github.com/sqlglider/sqlglider/pkg/sqlparse"
)

// tableDef is the definition behind a CTE or derived table, kept so a
// reference into it can be traced recursively. columns holds an explicit
// column list (WITH c (a, b) AS ...) that renames outputs positionally.
type tableDef struct {
	stmt    *sqlparse.SelectStmt
	columns []string
}

// frame pairs a resolution scope with the CTE and derived-table
// definitions declared at that level.
type frame struct {
	parent *frame
	scope  *sqlparse.Scope
	defs   map[string]*tableDef
}

// lookupDef finds a definition by normalized name, walking parents.
// Returns the frame that owns it so recursion resolves in the right
// context.
func (f *frame) lookupDef(name string) (*tableDef, *frame, bool) {
	for cur := f; cur != nil; cur = cur.parent {
		if def, ok := cur.defs[name]; ok {
			return def, cur, true
		}
	}
	return nil, nil, false
}

// coreScope is the resolution context for one SELECT core.
type coreScope struct {
	frame    *frame
	excluded map[string]struct{} // sources hidden from bare-star expansion
}

// outputColumn is one resolved projection output.
type outputColumn struct {
	Name string
	Item int                 // index into the core's select list
	Star *sqlparse.ColumnRef // set when produced by wildcard expansion
}

// buildStmtFrame creates the frame for a SELECT statement, registering
// its CTEs in order. Each CTE may reference those declared before it.
func (t *Tracer) buildStmtFrame(parent *frame, stmt *sqlparse.SelectStmt) (*frame, error) {
	var scope *sqlparse.Scope
	if parent != nil {
		scope = parent.scope.Child()
	} else {
		scope = sqlparse.NewScope(t.dialect, t.schema)
	}
	f := &frame{parent: parent, scope: scope, defs: make(map[string]*tableDef)}

	if stmt.With == nil {
		return f, nil
	}
	for _, cte := range stmt.With.CTEs {
		if cte.Select == nil {
			continue
		}
		cols := cte.Columns
		if len(cols) == 0 {
			cteFrame, err := t.buildStmtFrame(f, cte.Select)
			if err != nil {
				return nil, err
			}
			cols, err = t.outputNames(cteFrame, cte.Select.Body)
			if err != nil {
				return nil, err
			}
		}
		scope.RegisterCTE(cte.Name, cols)
		f.defs[t.dialect.NormalizeName(cte.Name)] = &tableDef{
			stmt:    cte.Select,
			columns: cte.Columns,
		}
	}
	return f, nil
}

// buildCoreScope creates the resolution context for one SELECT core,
// registering its FROM clause sources.
func (t *Tracer) buildCoreScope(f *frame, core *sqlparse.SelectCore) (*coreScope, error) {
	cf := &frame{parent: f, scope: f.scope.Child(), defs: make(map[string]*tableDef)}
	cs := &coreScope{frame: cf, excluded: make(map[string]struct{})}

	if core.From == nil {
		return cs, nil
	}
	if err := t.registerFrom(cs, core.From); err != nil {
		return nil, err
	}
	return cs, nil
}

// registerFrom registers a FROM clause's source and joins. Right sides
// of SEMI and ANTI joins stay resolvable but are excluded from bare-star
// expansion.
func (t *Tracer) registerFrom(cs *coreScope, from *sqlparse.FromClause) error {
	if err := t.registerRef(cs.frame, from.Source); err != nil {
		return err
	}
	for _, join := range from.Joins {
		if err := t.registerRef(cs.frame, join.Right); err != nil {
			return err
		}
		if !join.ContributesColumns() {
			cs.excluded[t.dialect.NormalizeName(refName(join.Right))] = struct{}{}
		}
	}
	return nil
}

// registerRef registers a single table reference. Table names that match
// a CTE become CTE references; derived tables are resolved to their
// output columns first.
func (t *Tracer) registerRef(cf *frame, ref sqlparse.TableRef) error {
	switch r := ref.(type) {
	case *sqlparse.TableName:
		if cte, ok := cf.scope.LookupCTE(r.Name); ok {
			cf.scope.RegisterCTERef(cte, r.Alias)
			return nil
		}
		cf.scope.RegisterTable(r)

	case *sqlparse.DerivedTable:
		if r.Select == nil {
			return nil
		}
		sub, err := t.buildStmtFrame(cf.parent, r.Select)
		if err != nil {
			return err
		}
		cols, err := t.outputNames(sub, r.Select.Body)
		if err != nil {
			return err
		}
		cf.scope.RegisterDerived(r.Alias, cols)
		cf.defs[t.dialect.NormalizeName(r.Alias)] = &tableDef{stmt: r.Select}

	case *sqlparse.LateralTable:
		if r.Select == nil {
			return nil
		}
		// LATERAL sees the sources registered before it.
		sub, err := t.buildStmtFrame(cf, r.Select)
		if err != nil {
			return err
		}
		cols, err := t.outputNames(sub, r.Select.Body)
		if err != nil {
			return err
		}
		cf.scope.RegisterDerived(r.Alias, cols)
		cf.defs[t.dialect.NormalizeName(r.Alias)] = &tableDef{stmt: r.Select}
	}
	return nil
}

// outputNames resolves the output column names of a SELECT body, based
// on its first core.
func (t *Tracer) outputNames(f *frame, body *sqlparse.SelectBody) ([]string, error) {
	if body == nil || body.First() == nil {
		return nil, nil
	}
	cs, err := t.buildCoreScope(f, body.First())
	if err != nil {
		return nil, err
	}
	outs, err := t.outputColumns(cs, body.First())
	if err != nil {
		return nil, err
	}
	names := make([]string, len(outs))
	for i, out := range outs {
		names[i] = out.Name
	}
	return names, nil
}

// outputColumns resolves one core's select list into named outputs.
// Wildcards expand in declaration order; an unresolvable wildcard
// degrades to a single "*" output, or errors under StrictStar.
func (t *Tracer) outputColumns(cs *coreScope, core *sqlparse.SelectCore) ([]outputColumn, error) {
	var outs []outputColumn
	for i, item := range core.Columns {
		switch {
		case item.Star:
			refs := t.expandStar(cs, "")
			if refs == nil {
				if t.strictStar {
					return nil, &StarResolutionError{}
				}
				outs = append(outs, outputColumn{Name: "*", Item: i})
				continue
			}
			for _, ref := range refs {
				outs = append(outs, outputColumn{Name: ref.Column, Item: i, Star: ref})
			}

		case item.TableStar != "":
			refs := t.expandStar(cs, item.TableStar)
			if refs == nil {
				if t.strictStar {
					return nil, &StarResolutionError{Table: item.TableStar}
				}
				outs = append(outs, outputColumn{Name: item.TableStar + ".*", Item: i})
				continue
			}
			for _, ref := range refs {
				outs = append(outs, outputColumn{Name: ref.Column, Item: i, Star: ref})
			}

		case item.Alias != "":
			outs = append(outs, outputColumn{Name: item.Alias, Item: i})

		default:
			outs = append(outs, outputColumn{Name: t.inferName(item.Expr, i), Item: i})
		}
	}
	return outs, nil
}

// expandStar expands a wildcard into qualified column refs in
// declaration order. Returns nil when column information is incomplete.
func (t *Tracer) expandStar(cs *coreScope, table string) []*sqlparse.ColumnRef {
	scope := cs.frame.scope
	if table != "" {
		return scope.ExpandStar(table)
	}

	var refs []*sqlparse.ColumnRef
	for _, entry := range scope.Entries() {
		name := t.dialect.NormalizeName(entry.EffectiveName())
		if _, ok := cs.excluded[name]; ok {
			continue
		}
		if len(entry.Columns) == 0 {
			return nil
		}
		for _, col := range entry.Columns {
			refs = append(refs, &sqlparse.ColumnRef{
				Table:  entry.EffectiveName(),
				Column: col,
			})
		}
	}
	return refs
}

// outputChildren produces the child nodes for one output column.
func (t *Tracer) outputChildren(cs *coreScope, core *sqlparse.SelectCore, out outputColumn) ([]*Node, error) {
	if out.Star != nil {
		node, err := t.resolveRef(cs, out.Star)
		if err != nil {
			return nil, err
		}
		return []*Node{node}, nil
	}

	item := core.Columns[out.Item]
	switch {
	case item.Star:
		// Unresolved bare star: one table-level node per contributing
		// source.
		var nodes []*Node
		for _, entry := range cs.frame.scope.Entries() {
			name := t.dialect.NormalizeName(entry.EffectiveName())
			if _, ok := cs.excluded[name]; ok {
				continue
			}
			src := entrySource(entry)
			nodes = append(nodes, &Node{
				Name:   src + ".*",
				Table:  src,
				Column: "*",
			})
		}
		return nodes, nil

	case item.TableStar != "":
		src := item.TableStar
		if entry, ok := cs.frame.scope.Lookup(item.TableStar); ok {
			src = entrySource(entry)
		}
		return []*Node{{Name: src + ".*", Table: src, Column: "*"}}, nil
	}

	return t.exprChildren(cs, item.Expr)
}

// exprChildren resolves every column referenced by an expression into a
// node, deduplicated. Expressions built only from constants yield
// literal leaves instead.
func (t *Tracer) exprChildren(cs *coreScope, expr sqlparse.Expr) ([]*Node, error) {
	refs, lits := collectExpr(expr)

	if len(refs) == 0 {
		var nodes []*Node
		seen := make(map[string]struct{})
		for _, lit := range lits {
			if _, ok := seen[lit.Value]; ok {
				continue
			}
			seen[lit.Value] = struct{}{}
			nodes = append(nodes, &Node{
				Name:    lit.Value,
				Value:   lit.Value,
				Literal: true,
			})
		}
		return nodes, nil
	}

	var nodes []*Node
	seen := make(map[string]struct{})
	for _, ref := range refs {
		node, err := t.resolveRef(cs, ref)
		if err != nil {
			return nil, err
		}
		if node == nil {
			continue
		}
		if _, ok := seen[node.Name]; ok {
			continue
		}
		seen[node.Name] = struct{}{}
		nodes = append(nodes, node)
	}
	return nodes, nil
}

// resolveRef resolves one column reference into a node. References into
// CTEs and derived tables recurse into their definitions; recursive
// references stop at the repeated column.
func (t *Tracer) resolveRef(cs *coreScope, ref *sqlparse.ColumnRef) (*Node, error) {
	src, ok := cs.frame.scope.ResolveColumnFull(ref)
	if !ok {
		// Unresolvable bare column, keep it as-is.
		return &Node{Name: ref.Column, Column: ref.Column}, nil
	}

	node := &Node{
		Name:   src.SourceTable + "." + src.Column,
		Table:  src.SourceTable,
		Column: src.Column,
	}
	if !src.FromCTE && !src.FromDerived {
		return node, nil
	}

	node.Virtual = true
	def, owner, found := cs.frame.lookupDef(t.dialect.NormalizeName(src.SourceTable))
	if !found {
		return node, nil
	}

	key := t.dialect.NormalizeName(src.SourceTable) + "." + t.dialect.NormalizeName(src.Column)
	if _, busy := t.visiting[key]; busy {
		return node, nil
	}
	t.visiting[key] = struct{}{}
	defer delete(t.visiting, key)

	children, err := t.traceInto(owner, def, src.Column)
	if err != nil {
		return nil, err
	}
	node.Children = children
	return node, nil
}

// traceInto traces one column inside a CTE or derived-table definition.
// The first branch locates the column by name (or by position when an
// explicit column list renames outputs); set-operation branches merge
// positionally.
func (t *Tracer) traceInto(owner *frame, def *tableDef, column string) ([]*Node, error) {
	f, err := t.buildStmtFrame(owner, def.stmt)
	if err != nil {
		return nil, err
	}
	if def.stmt.Body == nil {
		return nil, nil
	}
	want := t.dialect.NormalizeName(column)

	pos := -1
	if len(def.columns) > 0 {
		for i, name := range def.columns {
			if t.dialect.NormalizeName(name) == want {
				pos = i
				break
			}
		}
		if pos < 0 {
			return nil, nil
		}
	}

	var children []*Node
	seen := make(map[string]struct{})
	for i, core := range def.stmt.Body.Cores() {
		cs, err := t.buildCoreScope(f, core)
		if err != nil {
			return nil, err
		}
		outs, err := t.outputColumns(cs, core)
		if err != nil {
			return nil, err
		}

		var out *outputColumn
		switch {
		case pos >= 0:
			if pos >= len(outs) {
				continue
			}
			out = &outs[pos]
		case i == 0:
			for j := range outs {
				if t.dialect.NormalizeName(outs[j].Name) == want {
					pos = j
					out = &outs[j]
					break
				}
			}
			if out == nil {
				return nil, nil
			}
		default:
			if pos >= len(outs) {
				continue
			}
			out = &outs[pos]
		}

		nodes, err := t.outputChildren(cs, core, *out)
		if err != nil {
			return nil, err
		}
		for _, n := range nodes {
			key := childKey(n)
			if _, ok := seen[key]; ok {
				continue
			}
			seen[key] = struct{}{}
			children = append(children, n)
		}
	}
	return children, nil
}

// inferName infers an output column name from an expression, falling
// back to a positional name.
func (t *Tracer) inferName(expr sqlparse.Expr, index int) string {
	switch e := expr.(type) {
	case *sqlparse.ColumnRef:
		return e.Column
	case *sqlparse.FuncCall:
		return t.dialect.NormalizeName(e.Name)
	case *sqlparse.CastExpr:
		return t.inferName(e.Expr, index)
	case *sqlparse.ParenExpr:
		return t.inferName(e.Expr, index)
	}
	return "column" + strconv.Itoa(index)
}

// refName returns the effective name of a table reference.
func refName(ref sqlparse.TableRef) string {
	switch r := ref.(type) {
	case *sqlparse.TableName:
		if r.Alias != "" {
			return r.Alias
		}
		return r.Name
	case *sqlparse.DerivedTable:
		return r.Alias
	case *sqlparse.LateralTable:
		return r.Alias
	}
	return ""
}

// entrySource returns the fully qualified source name of a scope entry.
func entrySource(entry *sqlparse.ScopeEntry) string {
	if entry.SourceTable != "" {
		return entry.SourceTable
	}
	return entry.Name
}

// exprCollector gathers column references and literals from an
// expression tree. Subqueries are not entered; they carry their own
// scope.
type exprCollector struct {
	refs []*sqlparse.ColumnRef
	lits []*sqlparse.Literal
}

func collectExpr(expr sqlparse.Expr) ([]*sqlparse.ColumnRef, []*sqlparse.Literal) {
	c := &exprCollector{}
	c.walk(expr)
	return c.refs, c.lits
}

func (c *exprCollector) walk(expr sqlparse.Expr) {
	if expr == nil {
		return
	}

	switch e := expr.(type) {
	case *sqlparse.ColumnRef:
		c.refs = append(c.refs, e)

	case *sqlparse.Literal:
		c.lits = append(c.lits, e)

	case *sqlparse.BinaryExpr:
		c.walk(e.Left)
		c.walk(e.Right)

	case *sqlparse.UnaryExpr:
		c.walk(e.Expr)

	case *sqlparse.FuncCall:
		for _, arg := range e.Args {
			c.walk(arg)
		}
		c.walk(e.Filter)
		if e.Window != nil {
			for _, p := range e.Window.PartitionBy {
				c.walk(p)
			}
			for _, o := range e.Window.OrderBy {
				c.walk(o.Expr)
			}
		}

	case *sqlparse.CaseExpr:
		c.walk(e.Operand)
		for _, w := range e.Whens {
			c.walk(w.Condition)
			c.walk(w.Result)
		}
		c.walk(e.Else)

	case *sqlparse.CastExpr:
		c.walk(e.Expr)

	case *sqlparse.InExpr:
		c.walk(e.Expr)
		for _, v := range e.Values {
			c.walk(v)
		}

	case *sqlparse.BetweenExpr:
		c.walk(e.Expr)
		c.walk(e.Low)
		c.walk(e.High)

	case *sqlparse.IsNullExpr:
		c.walk(e.Expr)

	case *sqlparse.IsBoolExpr:
		c.walk(e.Expr)

	case *sqlparse.LikeExpr:
		c.walk(e.Expr)
		c.walk(e.Pattern)

	case *sqlparse.ParenExpr:
		c.walk(e.Expr)
	}
}

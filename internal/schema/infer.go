package schema

import (
	"sort"
	"strings"

	"github.com/sqlglider/sqlglider/pkg/sqlparse"
)

// ResolutionError reports an unqualified column that could not be
// attributed to a single table during strict schema inference.
type ResolutionError struct {
	Column string
	Tables []string
}

func (e *ResolutionError) Error() string {
	return "cannot attribute column " + e.Column + " to one of: " + strings.Join(e.Tables, ", ")
}

// ReferencedTables returns the physical tables a statement reads, in
// order of first reference. CTE names are excluded; subqueries and CTE
// bodies are included.
func ReferencedTables(stmt sqlparse.Statement, d *sqlparse.Dialect) []string {
	if d == nil {
		d, _ = sqlparse.GetDialect(sqlparse.DefaultDialect)
	}
	w := &tableWalker{dialect: d, seen: make(map[string]struct{})}
	w.walkStmt(stmt)
	return w.tables
}

type tableWalker struct {
	dialect *sqlparse.Dialect
	seen    map[string]struct{}
	tables  []string
}

func (w *tableWalker) add(name string) {
	key := w.dialect.NormalizeName(name)
	if _, ok := w.seen[key]; ok {
		return
	}
	w.seen[key] = struct{}{}
	w.tables = append(w.tables, name)
}

func (w *tableWalker) walkStmt(stmt sqlparse.Statement) {
	switch s := stmt.(type) {
	case *sqlparse.SelectStmt:
		w.walkSelect(s, nil)
	case *sqlparse.InsertStmt:
		if s.Select != nil {
			w.walkSelect(s.Select, nil)
		}
	case *sqlparse.CreateStmt:
		if s.Select != nil {
			w.walkSelect(s.Select, nil)
		}
	case *sqlparse.MergeStmt:
		w.walkRef(s.Source, nil)
	case *sqlparse.UpdateStmt:
		if s.From != nil {
			w.walkFrom(s.From, nil)
		}
		w.walkExpr(s.Where, nil)
	case *sqlparse.DeleteStmt:
		w.walkExpr(s.Where, nil)
	}
}

// walkSelect walks one SELECT statement. ctes holds the normalized CTE
// names visible from enclosing scopes; names defined here extend it.
func (w *tableWalker) walkSelect(sel *sqlparse.SelectStmt, outer map[string]struct{}) {
	if sel == nil {
		return
	}

	ctes := make(map[string]struct{}, len(outer))
	for name := range outer {
		ctes[name] = struct{}{}
	}

	if sel.With != nil {
		for _, cte := range sel.With.CTEs {
			// A recursive CTE may reference itself; register the name
			// first so it is not mistaken for a physical table.
			if sel.With.Recursive {
				ctes[w.dialect.NormalizeName(cte.Name)] = struct{}{}
			}
			w.walkSelect(cte.Select, ctes)
			ctes[w.dialect.NormalizeName(cte.Name)] = struct{}{}
		}
	}

	for body := sel.Body; body != nil; body = body.Right {
		w.walkCore(body.Left, ctes)
	}
}

func (w *tableWalker) walkCore(core *sqlparse.SelectCore, ctes map[string]struct{}) {
	if core == nil {
		return
	}
	if core.From != nil {
		w.walkFrom(core.From, ctes)
	}
	for _, item := range core.Columns {
		w.walkExpr(item.Expr, ctes)
	}
	w.walkExpr(core.Where, ctes)
	w.walkExpr(core.Having, ctes)
	w.walkExpr(core.Qualify, ctes)
}

func (w *tableWalker) walkFrom(from *sqlparse.FromClause, ctes map[string]struct{}) {
	w.walkRef(from.Source, ctes)
	for _, join := range from.Joins {
		w.walkRef(join.Right, ctes)
		w.walkExpr(join.Condition, ctes)
	}
}

func (w *tableWalker) walkRef(ref sqlparse.TableRef, ctes map[string]struct{}) {
	switch r := ref.(type) {
	case *sqlparse.TableName:
		if r.Schema == "" && r.Catalog == "" {
			if _, ok := ctes[w.dialect.NormalizeName(r.Name)]; ok {
				return
			}
		}
		w.add(r.Qualified())
	case *sqlparse.DerivedTable:
		w.walkSelect(r.Select, ctes)
	case *sqlparse.LateralTable:
		w.walkSelect(r.Select, ctes)
	}
}

// walkExpr descends into subqueries nested in an expression.
func (w *tableWalker) walkExpr(expr sqlparse.Expr, ctes map[string]struct{}) {
	if expr == nil {
		return
	}
	switch e := expr.(type) {
	case *sqlparse.SubqueryExpr:
		w.walkSelect(e.Select, ctes)
	case *sqlparse.ExistsExpr:
		w.walkSelect(e.Select, ctes)
	case *sqlparse.InExpr:
		w.walkExpr(e.Expr, ctes)
		for _, v := range e.Values {
			w.walkExpr(v, ctes)
		}
		if e.Query != nil {
			w.walkSelect(e.Query, ctes)
		}
	case *sqlparse.BinaryExpr:
		w.walkExpr(e.Left, ctes)
		w.walkExpr(e.Right, ctes)
	case *sqlparse.UnaryExpr:
		w.walkExpr(e.Expr, ctes)
	case *sqlparse.FuncCall:
		for _, arg := range e.Args {
			w.walkExpr(arg, ctes)
		}
		w.walkExpr(e.Filter, ctes)
	case *sqlparse.CaseExpr:
		w.walkExpr(e.Operand, ctes)
		for _, when := range e.Whens {
			w.walkExpr(when.Condition, ctes)
			w.walkExpr(when.Result, ctes)
		}
		w.walkExpr(e.Else, ctes)
	case *sqlparse.CastExpr:
		w.walkExpr(e.Expr, ctes)
	case *sqlparse.BetweenExpr:
		w.walkExpr(e.Expr, ctes)
		w.walkExpr(e.Low, ctes)
		w.walkExpr(e.High, ctes)
	case *sqlparse.IsNullExpr:
		w.walkExpr(e.Expr, ctes)
	case *sqlparse.IsBoolExpr:
		w.walkExpr(e.Expr, ctes)
	case *sqlparse.LikeExpr:
		w.walkExpr(e.Expr, ctes)
		w.walkExpr(e.Pattern, ctes)
	case *sqlparse.ParenExpr:
		w.walkExpr(e.Expr, ctes)
	}
}

// InferFromQuery learns table columns from how a query references them.
// Qualified references always attribute; unqualified references only
// when the enclosing core reads exactly one physical table. Under
// StrictSchema, an unattributable unqualified reference is an error.
//
// Inferred columns never override file- or catalog-derived entries.
func (c *Context) InferFromQuery(stmt sqlparse.Statement) error {
	inf := &inferencer{ctx: c}
	switch s := stmt.(type) {
	case *sqlparse.SelectStmt:
		return inf.walkSelect(s, nil)
	case *sqlparse.InsertStmt:
		if s.Select != nil {
			return inf.walkSelect(s.Select, nil)
		}
	case *sqlparse.CreateStmt:
		if s.Select != nil {
			return inf.walkSelect(s.Select, nil)
		}
	}
	return nil
}

type inferencer struct {
	ctx *Context
}

func (inf *inferencer) walkSelect(sel *sqlparse.SelectStmt, outer map[string]struct{}) error {
	if sel == nil {
		return nil
	}

	ctes := make(map[string]struct{}, len(outer))
	for name := range outer {
		ctes[name] = struct{}{}
	}
	if sel.With != nil {
		for _, cte := range sel.With.CTEs {
			if err := inf.walkSelect(cte.Select, ctes); err != nil {
				return err
			}
			ctes[inf.ctx.dialect.NormalizeName(cte.Name)] = struct{}{}
		}
	}

	for body := sel.Body; body != nil; body = body.Right {
		if err := inf.walkCore(body.Left, ctes); err != nil {
			return err
		}
	}
	return nil
}

func (inf *inferencer) walkCore(core *sqlparse.SelectCore, ctes map[string]struct{}) error {
	if core == nil || core.From == nil {
		return nil
	}

	// Map aliases to physical tables, tracking whether any non-physical
	// source (CTE, derived table) shares the namespace.
	byAlias := make(map[string]string)
	var physical []string
	onlyPhysical := true
	for _, ref := range core.From.Sources() {
		switch r := ref.(type) {
		case *sqlparse.TableName:
			if r.Schema == "" && r.Catalog == "" {
				if _, ok := ctes[inf.ctx.dialect.NormalizeName(r.Name)]; ok {
					onlyPhysical = false
					continue
				}
			}
			qualified := r.Qualified()
			physical = append(physical, qualified)
			byAlias[inf.ctx.dialect.NormalizeName(r.Name)] = qualified
			if r.Alias != "" {
				byAlias[inf.ctx.dialect.NormalizeName(r.Alias)] = qualified
			}
		case *sqlparse.DerivedTable:
			onlyPhysical = false
			if err := inf.walkSelect(r.Select, ctes); err != nil {
				return err
			}
		case *sqlparse.LateralTable:
			onlyPhysical = false
			if err := inf.walkSelect(r.Select, ctes); err != nil {
				return err
			}
		}
	}

	refs := coreColumnRefs(core)
	for _, ref := range refs {
		if ref.Table != "" {
			if table, ok := byAlias[inf.ctx.dialect.NormalizeName(ref.Table)]; ok {
				inf.ctx.addInferredColumn(table, ref.Column)
			}
			continue
		}
		if onlyPhysical && len(physical) == 1 {
			inf.ctx.addInferredColumn(physical[0], ref.Column)
			continue
		}
		if inf.ctx.strictSchema && len(physical) > 1 {
			tables := append([]string(nil), physical...)
			sort.Strings(tables)
			return &ResolutionError{Column: ref.Column, Tables: tables}
		}
	}
	return nil
}

// coreColumnRefs collects the column references of one core without
// entering subqueries.
func coreColumnRefs(core *sqlparse.SelectCore) []*sqlparse.ColumnRef {
	rc := &refCollector{}
	for _, item := range core.Columns {
		rc.walk(item.Expr)
	}
	rc.walk(core.Where)
	for _, g := range core.GroupBy {
		rc.walk(g)
	}
	rc.walk(core.Having)
	rc.walk(core.Qualify)
	for _, o := range core.OrderBy {
		rc.walk(o.Expr)
	}
	if core.From != nil {
		for _, join := range core.From.Joins {
			rc.walk(join.Condition)
		}
	}
	return rc.refs
}

type refCollector struct {
	refs []*sqlparse.ColumnRef
}

func (rc *refCollector) walk(expr sqlparse.Expr) {
	if expr == nil {
		return
	}
	switch e := expr.(type) {
	case *sqlparse.ColumnRef:
		rc.refs = append(rc.refs, e)
	case *sqlparse.BinaryExpr:
		rc.walk(e.Left)
		rc.walk(e.Right)
	case *sqlparse.UnaryExpr:
		rc.walk(e.Expr)
	case *sqlparse.FuncCall:
		for _, arg := range e.Args {
			rc.walk(arg)
		}
		rc.walk(e.Filter)
		if e.Window != nil {
			for _, p := range e.Window.PartitionBy {
				rc.walk(p)
			}
			for _, o := range e.Window.OrderBy {
				rc.walk(o.Expr)
			}
		}
	case *sqlparse.CaseExpr:
		rc.walk(e.Operand)
		for _, when := range e.Whens {
			rc.walk(when.Condition)
			rc.walk(when.Result)
		}
		rc.walk(e.Else)
	case *sqlparse.CastExpr:
		rc.walk(e.Expr)
	case *sqlparse.InExpr:
		rc.walk(e.Expr)
		for _, v := range e.Values {
			rc.walk(v)
		}
	case *sqlparse.BetweenExpr:
		rc.walk(e.Expr)
		rc.walk(e.Low)
		rc.walk(e.High)
	case *sqlparse.IsNullExpr:
		rc.walk(e.Expr)
	case *sqlparse.IsBoolExpr:
		rc.walk(e.Expr)
	case *sqlparse.LikeExpr:
		rc.walk(e.Expr)
		rc.walk(e.Pattern)
	case *sqlparse.ParenExpr:
		rc.walk(e.Expr)
	}
}

// addInferredColumn appends a column to a table's inferred entry,
// creating it when absent. Entries from files or the catalog are left
// alone.
func (c *Context) addInferredColumn(table, column string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	key := c.dialect.NormalizeName(table)
	e, ok := c.entries[key]
	if !ok {
		c.addTable(table, []string{column}, OriginInferred)
		return
	}
	if e.origin != OriginInferred {
		return
	}
	want := c.dialect.NormalizeName(column)
	for _, col := range e.columns {
		if c.dialect.NormalizeName(col) == want {
			return
		}
	}
	e.columns = append(e.columns, column)
}

package sqlparse

import "strings"

// Statement parsing: statement dispatch, write statements, WITH clause,
// CTEs, SELECT body, SELECT list, ORDER BY.
//
// Grammar:
//
//	statement     → select_stmt | insert_stmt | create_stmt | merge_stmt
//	              | update_stmt | delete_stmt | admin_stmt
//	insert_stmt   → INSERT (INTO | OVERWRITE [TABLE]) table_name
//	                ["(" ident_list ")"] (select_stmt | VALUES value_rows)
//	create_stmt   → CREATE [OR REPLACE] [TEMPORARY] (TABLE | VIEW)
//	                [IF NOT EXISTS] table_name
//	                ["(" column_defs ")"] [AS select_stmt]
//	merge_stmt    → MERGE INTO table_name USING table_ref ON expr merge_action+
//	update_stmt   → UPDATE table_name SET set_list [FROM from_clause] [WHERE expr]
//	delete_stmt   → DELETE FROM table_name [WHERE expr]
//	cte_list      → cte ("," cte)*
//	cte           → identifier ["(" ident_list ")"] AS "(" select_stmt ")"
//	select_body   → select_core [(UNION|INTERSECT|EXCEPT) [ALL|DISTINCT] select_body]
//	select_list   → select_item ("," select_item)*
//	select_item   → "*" | table "." "*" | expr [AS identifier]

// parseStatement parses a complete SQL statement of any supported kind.
// Statements without a lineage-bearing body parse into AdminStmt.
func (p *Parser) parseStatement(raw string) Statement {
	switch p.token.Type {
	case TOKEN_SELECT, TOKEN_WITH, TOKEN_LPAREN:
		return p.parseSelectStmt()
	case TOKEN_INSERT:
		return p.parseInsertStmt()
	case TOKEN_CREATE:
		return p.parseCreateStmt(raw)
	case TOKEN_MERGE:
		return p.parseMergeStmt()
	case TOKEN_UPDATE:
		return p.parseUpdateStmt()
	case TOKEN_DELETE:
		return p.parseDeleteStmt()
	default:
		// CACHE [LAZY] TABLE t [AS select] behaves like a temp CTAS
		if p.check(TOKEN_IDENT) && strings.EqualFold(p.token.Literal, "cache") {
			return p.parseCacheTableStmt(raw)
		}
		return p.parseAdminStmt(raw)
	}
}

// parseAdminStmt consumes the rest of the statement as an opaque command.
func (p *Parser) parseAdminStmt(raw string) *AdminStmt {
	stmt := &AdminStmt{
		Keyword: strings.ToUpper(p.token.Literal),
		Raw:     raw,
	}
	if stmt.Keyword == "" {
		stmt.Keyword = p.token.Type.String()
	}
	for !p.check(TOKEN_EOF) {
		p.nextToken()
	}
	return stmt
}

// parseSelectStmt parses a SELECT statement with optional WITH clause.
// A leading paren wraps the whole statement: (SELECT ...).
func (p *Parser) parseSelectStmt() *SelectStmt {
	if p.check(TOKEN_LPAREN) && (p.checkPeek(TOKEN_SELECT) || p.checkPeek(TOKEN_WITH)) {
		p.nextToken()
		stmt := p.parseSelectStmt()
		p.expect(TOKEN_RPAREN)
		return stmt
	}

	stmt := &SelectStmt{}

	if p.check(TOKEN_WITH) {
		stmt.With = p.parseWithClause()
	}

	stmt.Body = p.parseSelectBody()

	return stmt
}

// parseInsertStmt parses INSERT INTO / INSERT OVERWRITE.
func (p *Parser) parseInsertStmt() *InsertStmt {
	p.expect(TOKEN_INSERT)
	stmt := &InsertStmt{}

	switch {
	case p.match(TOKEN_INTO):
	case p.match(TOKEN_OVERWRITE):
		stmt.Overwrite = true
		p.match(TOKEN_TABLE) // Spark: INSERT OVERWRITE TABLE t
	default:
		p.addError("expected INTO or OVERWRITE after INSERT")
	}
	p.match(TOKEN_TABLE)

	stmt.Target = p.parseTableNameNoAlias()

	// Optional explicit column list
	if p.check(TOKEN_LPAREN) && !p.checkPeek(TOKEN_SELECT) && !p.checkPeek(TOKEN_WITH) {
		stmt.Columns = p.parseIdentList()
	}

	switch {
	case p.check(TOKEN_SELECT) || p.check(TOKEN_WITH) || p.check(TOKEN_LPAREN):
		stmt.Select = p.parseSelectStmt()
	case p.match(TOKEN_VALUES):
		stmt.Values = p.parseValueRows()
	default:
		p.addError("expected SELECT or VALUES in INSERT")
	}

	return stmt
}

// parseCreateStmt parses CREATE TABLE/VIEW. Other CREATE statements
// (INDEX, FUNCTION, DATABASE, ...) fall back to AdminStmt.
func (p *Parser) parseCreateStmt(raw string) Statement {
	p.expect(TOKEN_CREATE)
	stmt := &CreateStmt{}

	if p.check(TOKEN_OR) && p.checkPeek(TOKEN_REPLACE) {
		p.nextToken()
		p.nextToken()
		stmt.OrReplace = true
	}
	if p.match(TOKEN_TEMPORARY) {
		stmt.Temporary = true
	}

	switch {
	case p.match(TOKEN_TABLE):
		stmt.Create = CreateTable
	case p.match(TOKEN_VIEW):
		stmt.Create = CreateView
	default:
		return p.parseAdminStmt(raw)
	}

	if p.check(TOKEN_IF) && p.checkPeek(TOKEN_NOT) && p.checkPeek2(TOKEN_EXISTS) {
		p.nextToken()
		p.nextToken()
		p.nextToken()
		stmt.IfNotExists = true
	}

	stmt.Target = p.parseTableNameNoAlias()

	// Column definition list: CREATE TABLE t (a INT, b TEXT)
	if p.check(TOKEN_LPAREN) && !p.checkPeek(TOKEN_SELECT) && !p.checkPeek(TOKEN_WITH) {
		stmt.ColumnDefs = p.parseColumnDefs()
	}

	// Table options (USING delta, PARTITIONED BY, ...) may sit between the
	// name and AS; skip ahead to the AS if one exists.
	for !p.check(TOKEN_EOF) && !p.check(TOKEN_AS) {
		p.nextToken()
	}

	if p.match(TOKEN_AS) {
		stmt.Select = p.parseSelectStmt()
	}

	for !p.check(TOKEN_EOF) {
		p.nextToken()
	}

	return stmt
}

// parseCacheTableStmt parses Spark's CACHE [LAZY] TABLE t [AS select],
// treating it as a temporary CTAS.
func (p *Parser) parseCacheTableStmt(raw string) Statement {
	p.nextToken() // consume CACHE
	if p.check(TOKEN_IDENT) && strings.EqualFold(p.token.Literal, "lazy") {
		p.nextToken()
	}
	if !p.match(TOKEN_TABLE) {
		return p.parseAdminStmt(raw)
	}

	stmt := &CreateStmt{Create: CreateTable, Temporary: true}
	stmt.Target = p.parseTableNameNoAlias()

	if p.match(TOKEN_AS) {
		stmt.Select = p.parseSelectStmt()
	}

	return stmt
}

// parseColumnDefs parses a CREATE TABLE column definition list.
// Constraint clauses and type parameters are folded into the type string.
func (p *Parser) parseColumnDefs() []ColumnDef {
	p.expect(TOKEN_LPAREN)
	var defs []ColumnDef

	for {
		if !p.isIdentLike(p.token) {
			p.addError("expected column name in definition list")
			break
		}
		def := ColumnDef{Name: p.token.Literal}
		p.nextToken()

		// Consume the type and any constraints up to the next comma or
		// the closing paren, tracking paren depth for DECIMAL(10, 2).
		var typeParts []string
		depth := 0
		for {
			if p.check(TOKEN_EOF) {
				break
			}
			if depth == 0 && (p.check(TOKEN_COMMA) || p.check(TOKEN_RPAREN)) {
				break
			}
			switch p.token.Type {
			case TOKEN_LPAREN:
				depth++
			case TOKEN_RPAREN:
				depth--
			}
			typeParts = append(typeParts, p.token.Literal)
			p.nextToken()
		}
		def.Type = strings.Join(typeParts, " ")
		defs = append(defs, def)

		if !p.match(TOKEN_COMMA) {
			break
		}
	}

	p.expect(TOKEN_RPAREN)
	return defs
}

// parseMergeStmt parses MERGE INTO target USING source ON cond WHEN ...
func (p *Parser) parseMergeStmt() *MergeStmt {
	p.expect(TOKEN_MERGE)
	p.expect(TOKEN_INTO)
	stmt := &MergeStmt{}

	stmt.Target = p.parseTableName()

	p.expect(TOKEN_USING)
	stmt.Source = p.parseTableRef()

	p.expect(TOKEN_ON)
	stmt.On = p.parseExpression()

	for p.check(TOKEN_WHEN) {
		stmt.Actions = append(stmt.Actions, p.parseMergeAction())
	}

	return stmt
}

// parseMergeAction parses one WHEN [NOT] MATCHED [AND cond] THEN action.
func (p *Parser) parseMergeAction() MergeAction {
	p.expect(TOKEN_WHEN)
	action := MergeAction{Matched: true}

	if p.match(TOKEN_NOT) {
		action.Matched = false
	}
	p.expect(TOKEN_MATCHED)

	if p.match(TOKEN_AND) {
		action.Condition = p.parseExpression()
	}

	p.expect(TOKEN_THEN)

	switch {
	case p.match(TOKEN_UPDATE):
		p.expect(TOKEN_SET)
		action.Update = p.parseSetList()
	case p.match(TOKEN_DELETE):
		action.Delete = true
	case p.match(TOKEN_INSERT):
		if p.check(TOKEN_STAR) {
			// INSERT * copies all source columns
			p.nextToken()
			break
		}
		if p.check(TOKEN_LPAREN) {
			action.InsertCols = p.parseIdentList()
		}
		if p.match(TOKEN_VALUES) {
			p.expect(TOKEN_LPAREN)
			action.InsertValues = p.parseExpressionList()
			p.expect(TOKEN_RPAREN)
		}
	default:
		p.addError("expected UPDATE, DELETE, or INSERT in MERGE action")
	}

	return action
}

// parseUpdateStmt parses UPDATE target SET ... [FROM ...] [WHERE ...].
func (p *Parser) parseUpdateStmt() *UpdateStmt {
	p.expect(TOKEN_UPDATE)
	stmt := &UpdateStmt{}

	stmt.Target = p.parseTableName()

	p.expect(TOKEN_SET)
	stmt.Set = p.parseSetList()

	if p.match(TOKEN_FROM) {
		stmt.From = p.parseFromClause()
	}
	if p.match(TOKEN_WHERE) {
		stmt.Where = p.parseExpression()
	}

	return stmt
}

// parseDeleteStmt parses DELETE FROM target [WHERE ...].
func (p *Parser) parseDeleteStmt() *DeleteStmt {
	p.expect(TOKEN_DELETE)
	p.expect(TOKEN_FROM)
	stmt := &DeleteStmt{}

	stmt.Target = p.parseTableName()

	if p.match(TOKEN_WHERE) {
		stmt.Where = p.parseExpression()
	}

	return stmt
}

// parseSetList parses col = expr ("," col = expr)*.
func (p *Parser) parseSetList() []SetItem {
	var items []SetItem
	for {
		if !p.isIdentLike(p.token) {
			p.addError("expected column name in SET clause")
			break
		}
		item := SetItem{Column: p.token.Literal}
		p.nextToken()
		// Tolerate qualified targets: t.col = expr
		for p.match(TOKEN_DOT) {
			if p.isIdentLike(p.token) {
				item.Column = p.token.Literal
				p.nextToken()
			}
		}
		p.expect(TOKEN_EQ)
		item.Value = p.parseExpression()
		items = append(items, item)

		if !p.match(TOKEN_COMMA) {
			break
		}
	}
	return items
}

// parseIdentList parses "(" ident ("," ident)* ")".
func (p *Parser) parseIdentList() []string {
	p.expect(TOKEN_LPAREN)
	var names []string
	for {
		if !p.isIdentLike(p.token) {
			p.addError("expected identifier")
			break
		}
		names = append(names, p.token.Literal)
		p.nextToken()
		if !p.match(TOKEN_COMMA) {
			break
		}
	}
	p.expect(TOKEN_RPAREN)
	return names
}

// parseValueRows parses "(" expr_list ")" ("," "(" expr_list ")")*.
func (p *Parser) parseValueRows() [][]Expr {
	var rows [][]Expr
	for {
		p.expect(TOKEN_LPAREN)
		rows = append(rows, p.parseExpressionList())
		p.expect(TOKEN_RPAREN)
		if !p.match(TOKEN_COMMA) {
			break
		}
	}
	return rows
}

// parseWithClause parses a WITH clause with CTEs.
func (p *Parser) parseWithClause() *WithClause {
	p.expect(TOKEN_WITH)
	with := &WithClause{}

	if p.match(TOKEN_RECURSIVE) {
		with.Recursive = true
	}

	for {
		cte := p.parseCTE()
		with.CTEs = append(with.CTEs, cte)

		if !p.match(TOKEN_COMMA) {
			break
		}
	}

	return with
}

// parseCTE parses a single CTE.
func (p *Parser) parseCTE() *CTE {
	cte := &CTE{}

	if !p.isIdentLike(p.token) {
		p.addError("expected CTE name")
		return cte
	}
	cte.Name = p.token.Literal
	p.nextToken()

	// Optional explicit column list: WITH c (a, b) AS (...)
	if p.check(TOKEN_LPAREN) {
		cte.Columns = p.parseIdentList()
	}

	p.expect(TOKEN_AS)

	p.expect(TOKEN_LPAREN)
	cte.Select = p.parseSelectStmt()
	p.expect(TOKEN_RPAREN)

	return cte
}

// parseSelectBody parses a SELECT body with possible set operations.
func (p *Parser) parseSelectBody() *SelectBody {
	body := &SelectBody{}
	body.Left = p.parseSelectCore()

	if p.check(TOKEN_UNION) || p.check(TOKEN_INTERSECT) || p.check(TOKEN_EXCEPT) {
		switch p.token.Type {
		case TOKEN_UNION:
			p.nextToken()
			if p.match(TOKEN_ALL) {
				body.Op = SetOpUnionAll
				body.All = true
			} else {
				body.Op = SetOpUnion
				p.match(TOKEN_DISTINCT) // optional
			}
		case TOKEN_INTERSECT:
			p.nextToken()
			body.Op = SetOpIntersect
			p.match(TOKEN_ALL) // optional
		case TOKEN_EXCEPT:
			p.nextToken()
			body.Op = SetOpExcept
			p.match(TOKEN_ALL) // optional
		}

		// Parse the right side (recursively for chained operations)
		body.Right = p.parseSelectBody()
	}

	return body
}

// parseSelectCore parses a single SELECT clause.
func (p *Parser) parseSelectCore() *SelectCore {
	p.expect(TOKEN_SELECT)
	core := &SelectCore{}

	if p.match(TOKEN_DISTINCT) {
		core.Distinct = true
	} else {
		p.match(TOKEN_ALL) // optional, consume if present
	}

	core.Columns = p.parseSelectList()

	if p.match(TOKEN_FROM) {
		core.From = p.parseFromClause()
	}

	p.parseClauses(core)

	return core
}

// parseClauses parses the optional trailing clauses of a SELECT core.
func (p *Parser) parseClauses(core *SelectCore) {
	if p.match(TOKEN_WHERE) {
		core.Where = p.parseExpression()
	}

	if p.check(TOKEN_GROUP) && p.checkPeek(TOKEN_BY) {
		p.nextToken()
		p.nextToken()
		core.GroupBy = p.parseExpressionList()
	}

	if p.match(TOKEN_HAVING) {
		core.Having = p.parseExpression()
	}

	if p.check(TOKEN_QUALIFY) {
		if !p.dialect.AllowQualify {
			p.addError("QUALIFY is not supported in " + p.dialect.Name + " dialect")
		}
		p.nextToken()
		core.Qualify = p.parseExpression()
	}

	if p.match(TOKEN_WINDOW) {
		core.Windows = p.parseWindowDefs()
	}

	if p.check(TOKEN_ORDER) && p.checkPeek(TOKEN_BY) {
		p.nextToken()
		p.nextToken()
		core.OrderBy = p.parseOrderByList()
	}

	if p.match(TOKEN_LIMIT) {
		core.Limit = p.parseExpression()
	}

	if p.match(TOKEN_OFFSET) {
		core.Offset = p.parseExpression()
	}
}

// parseWindowDefs parses the named window list: WINDOW w AS (...), v AS (...).
func (p *Parser) parseWindowDefs() []WindowDef {
	var defs []WindowDef
	for {
		def := WindowDef{}
		if !p.isIdentLike(p.token) {
			p.addError("expected window name")
			break
		}
		def.Name = p.token.Literal
		p.nextToken()
		p.expect(TOKEN_AS)
		def.Spec = p.parseWindowSpec()
		defs = append(defs, def)

		if !p.match(TOKEN_COMMA) {
			break
		}
	}
	return defs
}

// parseSelectList parses the list of SELECT items.
func (p *Parser) parseSelectList() []SelectItem {
	var items []SelectItem

	for {
		item := p.parseSelectItem()
		items = append(items, item)

		if !p.match(TOKEN_COMMA) {
			break
		}
	}

	return items
}

// parseSelectItem parses a single SELECT item.
func (p *Parser) parseSelectItem() SelectItem {
	item := SelectItem{}

	// Check for * or table.*
	if p.check(TOKEN_STAR) {
		item.Star = true
		p.nextToken()
		return item
	}

	// Check for table.* pattern using 3-token lookahead (no rollback needed)
	if p.check(TOKEN_IDENT) && p.checkPeek(TOKEN_DOT) && p.checkPeek2(TOKEN_STAR) {
		tableName := p.token.Literal
		p.nextToken() // consume identifier
		p.nextToken() // consume DOT
		p.nextToken() // consume STAR
		item.TableStar = tableName
		return item
	}

	item.Expr = p.parseExpression()

	// Optional alias
	if p.match(TOKEN_AS) {
		if p.isIdentLike(p.token) {
			item.Alias = p.token.Literal
			p.nextToken()
		} else {
			p.addError("expected alias after AS")
		}
	} else if p.check(TOKEN_IDENT) {
		// Alias without AS
		item.Alias = p.token.Literal
		p.nextToken()
	}

	return item
}

// parseOrderByList parses a list of ORDER BY items.
func (p *Parser) parseOrderByList() []OrderByItem {
	var items []OrderByItem

	for {
		item := p.parseOrderByItem()
		items = append(items, item)

		if !p.match(TOKEN_COMMA) {
			break
		}
	}

	return items
}

// parseOrderByItem parses a single ORDER BY item.
func (p *Parser) parseOrderByItem() OrderByItem {
	item := OrderByItem{}
	item.Expr = p.parseExpression()

	if p.match(TOKEN_ASC) {
		item.Desc = false
	} else if p.match(TOKEN_DESC) {
		item.Desc = true
	}

	if p.match(TOKEN_NULLS) {
		if p.match(TOKEN_FIRST) {
			b := true
			item.NullsFirst = &b
		} else if p.match(TOKEN_LAST) {
			b := false
			item.NullsFirst = &b
		}
	}

	return item
}

// parseExpressionList parses a comma-separated list of expressions.
func (p *Parser) parseExpressionList() []Expr {
	var exprs []Expr

	for {
		expr := p.parseExpression()
		exprs = append(exprs, expr)

		if !p.match(TOKEN_COMMA) {
			break
		}
	}

	return exprs
}

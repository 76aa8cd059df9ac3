package sqlparse

// FROM clause parsing: table references, derived tables, lateral joins, JOINs.
//
// Grammar:
//
//	from_clause   → table_ref (join)*
//	table_ref     → table_name | derived_table | lateral_table
//	table_name    → [catalog "."] [schema "."] identifier [AS identifier]
//	derived_table → "(" select_stmt ")" [AS] identifier
//	lateral_table → LATERAL "(" select_stmt ")" [AS] identifier
//	join          → join_type JOIN table_ref [ON expr | USING "(" ident_list ")"]
//	              | "," table_ref
//	join_type     → [INNER] | LEFT [OUTER|SEMI|ANTI] | RIGHT [OUTER]
//	              | FULL [OUTER] | CROSS | SEMI | ANTI

// parseFromClause parses the FROM clause.
func (p *Parser) parseFromClause() *FromClause {
	from := &FromClause{}
	from.Source = p.parseTableRef()

	for {
		join := p.parseJoin()
		if join == nil {
			break
		}
		from.Joins = append(from.Joins, join)
	}

	return from
}

// parseTableRef parses a table reference.
func (p *Parser) parseTableRef() TableRef {
	// LATERAL subquery
	if p.match(TOKEN_LATERAL) {
		return p.parseLateralTable()
	}

	// Derived table (subquery)
	if p.check(TOKEN_LPAREN) {
		return p.parseDerivedTable()
	}

	// Simple table name
	return p.parseTableName()
}

// parseTableName parses a table name with optional schema/catalog and alias.
func (p *Parser) parseTableName() *TableName {
	table := p.parseTableNameNoAlias()

	// Optional alias
	if p.match(TOKEN_AS) {
		if p.isIdentLike(p.token) {
			table.Alias = p.token.Literal
			p.nextToken()
		}
	} else if p.check(TOKEN_IDENT) && !p.isJoinKeyword(p.token) && !p.isClauseKeyword(p.token) {
		table.Alias = p.token.Literal
		p.nextToken()
	}

	return table
}

// parseTableNameNoAlias parses a possibly qualified table name without
// consuming a trailing alias.
func (p *Parser) parseTableNameNoAlias() *TableName {
	table := &TableName{}

	if !p.isIdentLike(p.token) {
		p.addError("expected table name")
		return table
	}

	// Parse potentially qualified name: catalog.schema.table
	parts := []string{p.token.Literal}
	p.nextToken()

	for p.match(TOKEN_DOT) {
		if p.isIdentLike(p.token) {
			parts = append(parts, p.token.Literal)
			p.nextToken()
		}
	}

	switch len(parts) {
	case 1:
		table.Name = parts[0]
	case 2:
		table.Schema = parts[0]
		table.Name = parts[1]
	default:
		table.Catalog = parts[0]
		table.Schema = parts[1]
		table.Name = parts[len(parts)-1]
	}

	return table
}

// parseDerivedTable parses a derived table (subquery in FROM).
func (p *Parser) parseDerivedTable() *DerivedTable {
	p.expect(TOKEN_LPAREN)
	derived := &DerivedTable{}
	derived.Select = p.parseSelectStmt()
	p.expect(TOKEN_RPAREN)

	// Alias is required for derived tables
	if p.match(TOKEN_AS) {
		if p.isIdentLike(p.token) {
			derived.Alias = p.token.Literal
			p.nextToken()
		}
	} else if p.check(TOKEN_IDENT) {
		derived.Alias = p.token.Literal
		p.nextToken()
	}

	return derived
}

// parseLateralTable parses a LATERAL subquery.
func (p *Parser) parseLateralTable() *LateralTable {
	p.expect(TOKEN_LPAREN)
	lateral := &LateralTable{}
	lateral.Select = p.parseSelectStmt()
	p.expect(TOKEN_RPAREN)

	if p.match(TOKEN_AS) {
		if p.isIdentLike(p.token) {
			lateral.Alias = p.token.Literal
			p.nextToken()
		}
	} else if p.check(TOKEN_IDENT) {
		lateral.Alias = p.token.Literal
		p.nextToken()
	}

	return lateral
}

// parseJoin parses a JOIN clause. Returns nil when the current token
// does not start a join.
func (p *Parser) parseJoin() *Join {
	join := &Join{}

	// Comma join (implicit cross join)
	if p.match(TOKEN_COMMA) {
		join.Type = JoinComma
		join.Right = p.parseTableRef()
		return join
	}

	if p.match(TOKEN_NATURAL) {
		join.Natural = true
	}

	switch p.token.Type {
	case TOKEN_INNER:
		join.Type = JoinInner
		p.nextToken()
	case TOKEN_LEFT:
		join.Type = JoinLeft
		p.nextToken()
		switch {
		case p.match(TOKEN_OUTER):
		case p.match(TOKEN_SEMI):
			join.Type = JoinSemi
		case p.match(TOKEN_ANTI):
			join.Type = JoinAnti
		}
	case TOKEN_RIGHT:
		join.Type = JoinRight
		p.nextToken()
		p.match(TOKEN_OUTER)
	case TOKEN_FULL:
		join.Type = JoinFull
		p.nextToken()
		p.match(TOKEN_OUTER)
	case TOKEN_CROSS:
		join.Type = JoinCross
		p.nextToken()
	case TOKEN_SEMI:
		join.Type = JoinSemi
		p.nextToken()
	case TOKEN_ANTI:
		join.Type = JoinAnti
		p.nextToken()
	case TOKEN_JOIN:
		// Plain JOIN = INNER JOIN
		join.Type = JoinInner
	default:
		if join.Natural {
			p.addError("expected JOIN after NATURAL")
		}
		return nil
	}

	if !p.expect(TOKEN_JOIN) {
		return nil
	}

	join.Right = p.parseTableRef()
	p.parseJoinCondition(join)
	return join
}

// parseJoinCondition handles ON/USING/NATURAL validation.
func (p *Parser) parseJoinCondition(join *Join) {
	switch {
	case join.Natural:
		// NATURAL JOIN cannot have ON or USING
		if p.check(TOKEN_ON) {
			p.addError("NATURAL JOIN cannot have ON clause")
		}
		if p.check(TOKEN_USING) {
			p.addError("NATURAL JOIN cannot have USING clause")
		}
	case p.match(TOKEN_ON):
		join.Condition = p.parseExpression()
	case p.check(TOKEN_USING):
		p.nextToken()
		join.Using = p.parseIdentList()
	}
}
